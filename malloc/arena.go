package malloc

import "unsafe"
import "encoding/binary"

import "github.com/apache/arrow/go/v17/arrow/memory"
import humanize "github.com/dustin/go-humanize"

import "github.com/bnclabs/gomalloc/api"

// arena is a single contiguous block of memory, owned by one allocator
// instance. Allocators address the arena using offsets, pointers are
// computed only when handed over to the application.
type arena struct {
	mem      memory.Allocator
	buf      []byte
	base     uintptr // address of buf[0]
	capacity int64
}

func newarena(capacity int64) *arena {
	if capacity <= 0 {
		panicerr("invalid arena capacity %v", capacity)
	}
	return &arena{mem: memory.DefaultAllocator, capacity: capacity}
}

func (a *arena) setmemory(mem memory.Allocator) {
	if a.buf != nil {
		panicerr("cannot change memory provider for an acquired arena")
	} else if mem == nil {
		panicerr("nil memory provider")
	}
	a.mem = mem
}

// acquire a fresh block of memory, releasing the previous one.
func (a *arena) acquire(logprefix string) {
	a.release()

	if free, ok := sysfreememory(); ok && uint64(a.capacity) > free {
		fmsg := "%v arena capacity %v exceeds free memory %v\n"
		cp, fr := humanize.Bytes(uint64(a.capacity)), humanize.Bytes(free)
		warnf(fmsg, logprefix, cp, fr)
	}

	buf := a.mem.Allocate(int(a.capacity))
	if int64(len(buf)) < a.capacity {
		panicerr("memory provider returned %v bytes, want %v", len(buf), a.capacity)
	}
	a.buf = buf[:a.capacity]
	a.base = uintptr(unsafe.Pointer(unsafe.SliceData(a.buf)))
	if (a.base & uintptr(api.Wordsize-1)) != 0 {
		a.release()
		panicerr("arena base is not %v byte aligned", api.Wordsize)
	}
	debugf("%v acquired arena of %v\n", logprefix, humanize.Bytes(uint64(a.capacity)))
}

func (a *arena) release() {
	if a.buf != nil {
		a.mem.Free(a.buf)
		a.buf, a.base = nil, 0
	}
}

func (a *arena) mustready(logprefix string) {
	if a.buf == nil {
		panicerr("%v not initialized or released", logprefix)
	}
}

// address of byte at offset.
func (a *arena) address(offset int64) uintptr {
	return a.base + uintptr(offset)
}

func (a *arena) pointer(offset int64) unsafe.Pointer {
	return unsafe.Pointer(&a.buf[offset])
}

// offset of ptr from arena base, false if ptr does not belong to arena.
func (a *arena) offset(ptr unsafe.Pointer) (int64, bool) {
	addr := uintptr(ptr)
	if a.buf == nil || addr < a.base || addr >= a.base+uintptr(a.capacity) {
		return 0, false
	}
	return int64(addr - a.base), true
}

func (a *arena) putuint32(offset int64, v uint32) {
	binary.LittleEndian.PutUint32(a.buf[offset:], v)
}

func (a *arena) getuint32(offset int64) uint32 {
	return binary.LittleEndian.Uint32(a.buf[offset:])
}

func (a *arena) putuint64(offset int64, v uint64) {
	binary.LittleEndian.PutUint64(a.buf[offset:], v)
}

func (a *arena) getuint64(offset int64) uint64 {
	return binary.LittleEndian.Uint64(a.buf[offset:])
}
