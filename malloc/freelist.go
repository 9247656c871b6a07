package malloc

import "fmt"
import "sync"
import "unsafe"
import "sync/atomic"

import "github.com/apache/arrow/go/v17/arrow/memory"
import s "github.com/bnclabs/gosettings"
import humanize "github.com/dustin/go-humanize"

import "github.com/bnclabs/gomalloc/api"
import "github.com/bnclabs/gomalloc/lib"

// freelistheadersize every allocation is preceded by a 16-byte header,
// {blocksize uint64, padding uint64}, where padding is the distance
// from the start of the block to the returned pointer.
const freelistheadersize = int64(16)

// FreeListAllocator manages variable sized allocations using a bounded
// directory of free blocks. Placement policy picks the free block for
// each allocation and merge policy decides when adjacent free blocks
// are coalesced.
type FreeListAllocator struct {
	// 64-bit aligned stats
	used int64

	capacity  int64
	placement Placement
	merge     Mergepolicy
	threading Threading
	dir       *freedirectory
	arena     *arena
	lock      sync.Locker
	logprefix string

	// statistics
	sizes  lib.SizeHistogram // requested sizes
	nfrees int64
}

// NewFreeListAllocator create a free-list allocator managing capacity
// bytes, capacity must be a multiple of api.Wordsize. Call Init()
// before allocating.
func NewFreeListAllocator(capacity int64, setts s.Settings) *FreeListAllocator {
	if capacity <= 0 || (capacity%api.Wordsize) != 0 {
		panicerr("capacity %v is not multiple of %v", capacity, api.Wordsize)
	}
	setts = make(s.Settings).Mixin(Defaultsettings(), setts)
	fl := &FreeListAllocator{
		capacity:  capacity,
		placement: placementpolicy(setts),
		merge:     mergepolicy(setts),
		threading: threadingpolicy(setts),
		dir:       newfreedirectory(int(setts.Int64("directory.size"))),
		arena:     newarena(capacity),
		lock:      newlocker(setts),
	}
	fl.logprefix = fmt.Sprintf("FREELIST [%v]", humanize.Bytes(uint64(capacity)))
	return fl
}

// SetMemory provider for the arena, must be called before Init().
func (fl *FreeListAllocator) SetMemory(mem memory.Allocator) *FreeListAllocator {
	fl.arena.setmemory(mem)
	return fl
}

// Init implement api.Allocator{} interface.
func (fl *FreeListAllocator) Init() {
	fl.lock.Lock()
	defer fl.lock.Unlock()

	fl.arena.acquire(fl.logprefix)
	fl.reset()
	fl.sizes.Reset()
	fl.nfrees = 0
	fmsg := "%v initialized, placement:%v merge:%v lock:%v directory:%v\n"
	infof(fmsg, fl.logprefix, fl.placement, fl.merge, fl.threading, fl.dir.size)
}

// Allocate implement api.Allocator{} interface.
func (fl *FreeListAllocator) Allocate(size, alignment int64) (unsafe.Pointer, error) {
	checksize(size)
	checkalignment(alignment)

	fl.lock.Lock()
	defer fl.lock.Unlock()

	fl.arena.mustready(fl.logprefix)
	if size > fl.capacity {
		return nil, api.ErrorOutofMemory
	}

	// block offsets and sizes are always multiples of Wordsize, hence
	// padding can exceed the header only for alignments > Wordsize.
	payload := roundup(size, api.Wordsize)
	required := freelistheadersize + payload
	if alignment > api.Wordsize {
		required += alignment - api.Wordsize
	}
	i := fl.dir.find(required, fl.placement)
	if i < 0 {
		return nil, api.ErrorOutofMemory
	}

	blk := fl.dir.blocks[i]
	addr := fl.arena.address(blk.Offset)
	padding := headerpadding(addr, alignment, freelistheadersize)
	blocksize := padding + payload
	fl.dir.consume(i, blocksize)

	dataoff := blk.Offset + padding
	fl.arena.putuint64(dataoff-freelistheadersize, uint64(blocksize))
	fl.arena.putuint64(dataoff-api.Wordsize, uint64(padding))
	atomic.AddInt64(&fl.used, blocksize)
	fl.sizes.Add(size)
	return fl.arena.pointer(dataoff), nil
}

// Alloc same as Allocate() with word alignment.
func (fl *FreeListAllocator) Alloc(size int64) (unsafe.Pointer, error) {
	return fl.Allocate(size, api.Wordsize)
}

// Free implement api.Allocator{} interface. Panics with
// api.ErrorSaturated if the directory has no room to record the
// freed block, allocator's state is left untouched.
func (fl *FreeListAllocator) Free(ptr unsafe.Pointer) bool {
	fl.lock.Lock()
	defer fl.lock.Unlock()

	fl.arena.mustready(fl.logprefix)
	dataoff, ok := fl.arena.offset(ptr)
	if !ok || dataoff < freelistheadersize {
		return false
	}
	blocksize := int64(fl.arena.getuint64(dataoff - freelistheadersize))
	padding := int64(fl.arena.getuint64(dataoff - api.Wordsize))

	if fl.dir.full() {
		warnf("%v no room in directory to free %v bytes\n", fl.logprefix, blocksize)
		panic(api.ErrorSaturated)
	}
	pivot := fl.dir.insert(Freeblock{Offset: dataoff - padding, Size: blocksize})
	atomic.AddInt64(&fl.used, -blocksize)
	fl.nfrees++

	switch fl.merge {
	case FastMerge:
		fl.dir.fastmerge(pivot)
	case FullMerge:
		fl.dir.fullmerge()
	case FullMergeIfSaturated:
		fl.dir.fastmerge(pivot)
		if fl.dir.full() {
			debugf("%v directory saturated, full merge\n", fl.logprefix)
			fl.dir.fullmerge()
		}
	}
	return true
}

// Reset implement api.Allocator{} interface.
func (fl *FreeListAllocator) Reset() {
	fl.lock.Lock()
	defer fl.lock.Unlock()

	fl.arena.mustready(fl.logprefix)
	fl.reset()
	debugf("%v reset\n", fl.logprefix)
}

// Release implement api.Allocator{} interface.
func (fl *FreeListAllocator) Release() {
	fl.lock.Lock()
	defer fl.lock.Unlock()

	fl.arena.release()
	fl.dir.blocks = fl.dir.blocks[:0]
	atomic.StoreInt64(&fl.used, 0)
	infof("%v released, allocations: %v\n", fl.logprefix, fl.sizes.Logstring())
}

// Totalsize implement api.Allocator{} interface.
func (fl *FreeListAllocator) Totalsize() int64 {
	return fl.capacity
}

// Usedsize implement api.Allocator{} interface.
func (fl *FreeListAllocator) Usedsize() int64 {
	return atomic.LoadInt64(&fl.used)
}

// Fullmerge coalesce every pair of adjacent free blocks, irrespective
// of the configured merge policy.
func (fl *FreeListAllocator) Fullmerge() {
	fl.lock.Lock()
	defer fl.lock.Unlock()
	fl.dir.fullmerge()
}

// Isfullymerged return true if the directory is left with a single
// block spanning the whole arena.
func (fl *FreeListAllocator) Isfullymerged() bool {
	fl.lock.Lock()
	defer fl.lock.Unlock()

	blocks := fl.dir.blocks
	return len(blocks) == 1 && blocks[0].Offset == 0 && blocks[0].Size == fl.capacity
}

// Freeblocks return a copy of the free directory.
func (fl *FreeListAllocator) Freeblocks() []Freeblock {
	fl.lock.Lock()
	defer fl.lock.Unlock()
	return fl.dir.clone()
}

// Freesize return number of bytes available in free blocks.
func (fl *FreeListAllocator) Freesize() int64 {
	fl.lock.Lock()
	defer fl.lock.Unlock()
	return fl.dir.freesize()
}

// Stats return allocation statistics since Init().
func (fl *FreeListAllocator) Stats() map[string]interface{} {
	fl.lock.Lock()
	defer fl.lock.Unlock()

	largest := int64(0)
	for _, blk := range fl.dir.blocks {
		if blk.Size > largest {
			largest = blk.Size
		}
	}
	return map[string]interface{}{
		"capacity":    fl.capacity,
		"used":        atomic.LoadInt64(&fl.used),
		"free":        fl.dir.freesize(),
		"freeblocks":  int64(len(fl.dir.blocks)),
		"largest":     largest,
		"n_allocs":    fl.sizes.Samples(),
		"n_frees":     fl.nfrees,
		"alloc.sizes": fl.sizes.Fullstats(),
	}
}

// Placement policy configured for this allocator.
func (fl *FreeListAllocator) Placement() Placement {
	return fl.placement
}

// Mergepolicy configured for this allocator.
func (fl *FreeListAllocator) Mergepolicy() Mergepolicy {
	return fl.merge
}

func (fl *FreeListAllocator) reset() {
	fl.dir.reset(fl.capacity)
	atomic.StoreInt64(&fl.used, 0)
}
