// Package gomalloc implement a family of arena allocators, that
// sub-allocate memory out of a single pre-reserved block.
//
// api:
//
// Allocator interface and errors common to all allocators.
//
// lib:
//
// Spin-lock and allocation size histogram, shall not import
// packages other than golang's standard packages.
//
// malloc:
//
// Linear, stack, pool and free-list allocators, a composite of pool
// allocators with heap fallback, and a prometheus collector to export
// memory accounting.
package gomalloc
