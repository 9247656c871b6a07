// Package malloc supplies special purpose allocators that sub-allocate
// memory out of a single pre-reserved arena, with a limited scope:
//
//  * Every allocator owns exactly one arena of fixed capacity, acquired
//    from a memory provider on Init() and handed back on Release() or
//    when Init() is called again.
//  * Types and functions exported by this package are not thread safe,
//    unless the allocator is configured with {"lock": "spin"}, in which
//    case every mutation is serialized by a spin-lock.
//  * Allocators never read or write payload bytes, only the headers
//    they place immediately before the returned pointer.
//  * Double free, use after free and out-of-order stack free are not
//    detected, they silently corrupt the book-keeping.
//
// LinearAllocator is a bump allocator, memory can only be reclaimed
// all at once using Reset().
//
// StackAllocator is a bump allocator that can free in LIFO order.
//
// PoolAllocator slices the arena into equal sized chunks, with O(1)
// alloc and free.
//
// FreeListAllocator supports variable sized allocations, managing a
// bounded directory of free blocks with configurable placement and
// merge policies.
//
// PoolAllocators is a set of pool allocators of increasing chunk size,
// falling back to the Go heap when all of them are saturated.
//
// Collector exports memory accounting of allocators as prometheus
// metrics.
package malloc
