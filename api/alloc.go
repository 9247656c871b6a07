package api

import "unsafe"

// Allocator interface for sub-allocating memory out of a single,
// pre-reserved arena.
type Allocator interface {
	// Init acquire a fresh arena of Totalsize() bytes, releasing the
	// previous one if any. All outstanding allocations are invalidated.
	Init()

	// Allocate a block of `size` bytes from the arena, the returned
	// pointer shall be aligned to `alignment`, which must be a power
	// of 2. Return ErrorOutofMemory when no free region can satisfy
	// the request.
	Allocate(size, alignment int64) (unsafe.Pointer, error)

	// Free a block previously returned by Allocate. Return false if
	// ptr is not owned by this allocator.
	Free(ptr unsafe.Pointer) bool

	// Reset invalidate all outstanding allocations at once, making
	// the full capacity available again.
	Reset()

	// Release arena back to the memory provider.
	Release()

	// Totalsize return the arena capacity in bytes.
	Totalsize() int64

	// Usedsize return bytes consumed by live allocations, including
	// headers and padding.
	Usedsize() int64
}
