package api

import "errors"

// ErrorOutofMemory no free region in the arena can satisfy the request.
var ErrorOutofMemory = errors.New("malloc.outofmemory")

// ErrorInvalidSize request size cannot be served by the allocator,
// like a request larger than a pool's chunk size.
var ErrorInvalidSize = errors.New("malloc.invalidsize")

// ErrorSaturated free-block directory has no room left to record a
// freed block.
var ErrorSaturated = errors.New("malloc.saturated")

// Wordsize is the default alignment for allocations.
const Wordsize = int64(8)
