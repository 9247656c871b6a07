package malloc

import "fmt"

import "github.com/cloudfoundry/gosigar"

// MEMUtilization targeted between adjacent chunk sizes generated by
// Blocksizes.
const MEMUtilization = float64(0.95)

// Sizeinterval minblock and maxblock should be multiples of Sizeinterval.
const Sizeinterval = int64(32)

// Blocksizes generate suitable chunk-sizes between minblock-size and
// maxblock-size, so that a request rounded up to the next chunk-size
// wastes no more than (1 - MEMUtilization) on average.
func Blocksizes(minblock, maxblock int64) []int64 {
	if maxblock < minblock {
		panicerr("minblock(%v) > maxblock(%v)", minblock, maxblock)
	} else if (minblock % Sizeinterval) != 0 {
		panicerr("minblock %v is not multiple of %v", minblock, Sizeinterval)
	} else if (maxblock % Sizeinterval) != 0 {
		panicerr("maxblock %v is not multiple of %v", maxblock, Sizeinterval)
	}

	sizes := make([]int64, 0, 64)
	for size := minblock; size < maxblock; size = nextblocksize(size) {
		sizes = append(sizes, size)
	}
	return append(sizes, maxblock)
}

// nextblocksize step up from size in multiples of Sizeinterval, till
// the average request between the two sizes uses MEMUtilization of
// the larger one.
func nextblocksize(size int64) int64 {
	step := int64(float64(size)*(1.0-MEMUtilization)) / Sizeinterval * Sizeinterval
	if step < Sizeinterval {
		step = Sizeinterval
	}
	next := size + step
	for float64(size+next)/2.0 > MEMUtilization*float64(next) {
		next += step
	}
	return next
}

func checksize(size int64) {
	if size <= 0 {
		panicerr("invalid allocation size %v", size)
	}
}

func checkalignment(alignment int64) {
	if alignment <= 0 || (alignment&(alignment-1)) != 0 {
		panicerr("alignment %v is not a power of 2", alignment)
	}
}

// alignpadding number of bytes to skip from addr to reach the next
// address aligned to alignment.
func alignpadding(addr uintptr, alignment int64) int64 {
	mask := uintptr(alignment - 1)
	return int64(((addr + mask) &^ mask) - addr)
}

// headerpadding same as alignpadding, except that the gap shall be
// large enough to hold a header of headersize bytes.
func headerpadding(addr uintptr, alignment, headersize int64) int64 {
	padding := alignpadding(addr, alignment)
	if padding < headersize {
		needed := headersize - padding
		padding += alignment * ((needed + alignment - 1) / alignment)
	}
	return padding
}

func roundup(n, multiple int64) int64 {
	return ((n + multiple - 1) / multiple) * multiple
}

// lowbit largest power of 2 that divides x.
func lowbit(x uint64) int64 {
	return int64(x & -x)
}

func sysfreememory() (uint64, bool) {
	mem := sigar.Mem{}
	if err := mem.Get(); err != nil {
		return 0, false
	}
	return mem.Free, true
}

func panicerr(fmsg string, args ...interface{}) {
	panic(fmt.Errorf(fmsg, args...))
}
