package malloc

import "fmt"
import "sync"
import "unsafe"
import "sync/atomic"

import "github.com/apache/arrow/go/v17/arrow/memory"
import s "github.com/bnclabs/gosettings"
import humanize "github.com/dustin/go-humanize"

import "github.com/bnclabs/gomalloc/api"

// LinearAllocator bump allocator, allocations only advance an offset
// into the arena. Individual allocations cannot be freed, use Reset()
// to reclaim the whole arena at once.
type LinearAllocator struct {
	// 64-bit aligned stats
	used int64

	offset    int64
	capacity  int64
	arena     *arena
	lock      sync.Locker
	logprefix string
}

// NewLinearAllocator create a bump allocator managing capacity bytes.
// Call Init() before allocating.
func NewLinearAllocator(capacity int64, setts s.Settings) *LinearAllocator {
	setts = make(s.Settings).Mixin(Defaultsettings(), setts)
	la := &LinearAllocator{
		capacity: capacity,
		arena:    newarena(capacity),
		lock:     newlocker(setts),
	}
	la.logprefix = fmt.Sprintf("LINEAR [%v]", humanize.Bytes(uint64(capacity)))
	return la
}

// SetMemory provider for the arena, must be called before Init().
func (la *LinearAllocator) SetMemory(mem memory.Allocator) *LinearAllocator {
	la.arena.setmemory(mem)
	return la
}

// Init implement api.Allocator{} interface.
func (la *LinearAllocator) Init() {
	la.lock.Lock()
	defer la.lock.Unlock()

	la.arena.acquire(la.logprefix)
	la.offset = 0
	atomic.StoreInt64(&la.used, 0)
	infof("%v initialized\n", la.logprefix)
}

// Allocate implement api.Allocator{} interface.
func (la *LinearAllocator) Allocate(size, alignment int64) (unsafe.Pointer, error) {
	checksize(size)
	checkalignment(alignment)

	la.lock.Lock()
	defer la.lock.Unlock()

	la.arena.mustready(la.logprefix)
	padding := alignpadding(la.arena.address(la.offset), alignment)
	if size > la.capacity || la.offset+padding+size > la.capacity {
		return nil, api.ErrorOutofMemory
	}
	dataoff := la.offset + padding
	la.offset = dataoff + size
	atomic.StoreInt64(&la.used, la.offset)
	return la.arena.pointer(dataoff), nil
}

// Alloc same as Allocate() with word alignment.
func (la *LinearAllocator) Alloc(size int64) (unsafe.Pointer, error) {
	return la.Allocate(size, api.Wordsize)
}

// Free implement api.Allocator{} interface. Not supported by bump
// allocator, use Reset().
func (la *LinearAllocator) Free(ptr unsafe.Pointer) bool {
	panicerr("%v Free() not supported, use Reset()", la.logprefix)
	return false
}

// Reset implement api.Allocator{} interface.
func (la *LinearAllocator) Reset() {
	la.lock.Lock()
	defer la.lock.Unlock()

	la.arena.mustready(la.logprefix)
	la.offset = 0
	atomic.StoreInt64(&la.used, 0)
	debugf("%v reset\n", la.logprefix)
}

// Release implement api.Allocator{} interface.
func (la *LinearAllocator) Release() {
	la.lock.Lock()
	defer la.lock.Unlock()

	la.arena.release()
	la.offset = 0
	atomic.StoreInt64(&la.used, 0)
	infof("%v released\n", la.logprefix)
}

// Totalsize implement api.Allocator{} interface.
func (la *LinearAllocator) Totalsize() int64 {
	return la.capacity
}

// Usedsize implement api.Allocator{} interface.
func (la *LinearAllocator) Usedsize() int64 {
	return atomic.LoadInt64(&la.used)
}
