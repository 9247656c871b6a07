package malloc

import "fmt"
import "sync"
import "unsafe"
import "sync/atomic"

import "github.com/apache/arrow/go/v17/arrow/memory"
import s "github.com/bnclabs/gosettings"
import humanize "github.com/dustin/go-humanize"

import "github.com/bnclabs/gomalloc/api"

// stackheadersize every allocation is preceded by a 4-byte header
// recording the padding applied before the allocation.
const stackheadersize = int64(4)

// StackAllocator bump allocator that can free allocations in LIFO
// order. Freeing out of order is not detected and corrupts the
// allocator's offset.
type StackAllocator struct {
	// 64-bit aligned stats
	used int64

	offset    int64
	capacity  int64
	arena     *arena
	lock      sync.Locker
	logprefix string
}

// NewStackAllocator create a LIFO allocator managing capacity bytes.
// Call Init() before allocating.
func NewStackAllocator(capacity int64, setts s.Settings) *StackAllocator {
	setts = make(s.Settings).Mixin(Defaultsettings(), setts)
	sa := &StackAllocator{
		capacity: capacity,
		arena:    newarena(capacity),
		lock:     newlocker(setts),
	}
	sa.logprefix = fmt.Sprintf("STACK [%v]", humanize.Bytes(uint64(capacity)))
	return sa
}

// SetMemory provider for the arena, must be called before Init().
func (sa *StackAllocator) SetMemory(mem memory.Allocator) *StackAllocator {
	sa.arena.setmemory(mem)
	return sa
}

// Init implement api.Allocator{} interface.
func (sa *StackAllocator) Init() {
	sa.lock.Lock()
	defer sa.lock.Unlock()

	sa.arena.acquire(sa.logprefix)
	sa.offset = 0
	atomic.StoreInt64(&sa.used, 0)
	infof("%v initialized\n", sa.logprefix)
}

// Allocate implement api.Allocator{} interface.
func (sa *StackAllocator) Allocate(size, alignment int64) (unsafe.Pointer, error) {
	checksize(size)
	checkalignment(alignment)

	sa.lock.Lock()
	defer sa.lock.Unlock()

	sa.arena.mustready(sa.logprefix)
	addr := sa.arena.address(sa.offset)
	padding := headerpadding(addr, alignment, stackheadersize)
	if size > sa.capacity || sa.offset+padding+size > sa.capacity {
		return nil, api.ErrorOutofMemory
	}
	dataoff := sa.offset + padding
	sa.arena.putuint32(dataoff-stackheadersize, uint32(padding))
	sa.offset = dataoff + size
	atomic.StoreInt64(&sa.used, sa.offset)
	return sa.arena.pointer(dataoff), nil
}

// Alloc same as Allocate() with word alignment.
func (sa *StackAllocator) Alloc(size int64) (unsafe.Pointer, error) {
	return sa.Allocate(size, api.Wordsize)
}

// Free implement api.Allocator{} interface. ptr must be the most
// recent allocation that is not yet freed.
func (sa *StackAllocator) Free(ptr unsafe.Pointer) bool {
	sa.lock.Lock()
	defer sa.lock.Unlock()

	sa.arena.mustready(sa.logprefix)
	dataoff, ok := sa.arena.offset(ptr)
	if !ok || dataoff < stackheadersize {
		return false
	}
	padding := int64(sa.arena.getuint32(dataoff - stackheadersize))
	sa.offset = dataoff - padding
	atomic.StoreInt64(&sa.used, sa.offset)
	return true
}

// Reset implement api.Allocator{} interface.
func (sa *StackAllocator) Reset() {
	sa.lock.Lock()
	defer sa.lock.Unlock()

	sa.arena.mustready(sa.logprefix)
	sa.offset = 0
	atomic.StoreInt64(&sa.used, 0)
	debugf("%v reset\n", sa.logprefix)
}

// Release implement api.Allocator{} interface.
func (sa *StackAllocator) Release() {
	sa.lock.Lock()
	defer sa.lock.Unlock()

	sa.arena.release()
	sa.offset = 0
	atomic.StoreInt64(&sa.used, 0)
	infof("%v released\n", sa.logprefix)
}

// Totalsize implement api.Allocator{} interface.
func (sa *StackAllocator) Totalsize() int64 {
	return sa.capacity
}

// Usedsize implement api.Allocator{} interface.
func (sa *StackAllocator) Usedsize() int64 {
	return atomic.LoadInt64(&sa.used)
}
