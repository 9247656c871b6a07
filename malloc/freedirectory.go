package malloc

import "math"
import "sort"

// Freeblock describe a reclaimable region of the arena.
type Freeblock struct {
	Offset int64
	Size   int64
}

// freedirectory bounded, unsorted array of non-overlapping free blocks.
// Entries are removed by swapping with the last entry.
type freedirectory struct {
	blocks []Freeblock
	size   int // maximum number of entries
}

func newfreedirectory(size int) *freedirectory {
	if size < 1 {
		panicerr("invalid directory size %v", size)
	}
	return &freedirectory{blocks: make([]Freeblock, 0, size), size: size}
}

// reset to a single block spanning the whole arena.
func (dir *freedirectory) reset(capacity int64) {
	dir.blocks = append(dir.blocks[:0], Freeblock{Offset: 0, Size: capacity})
}

func (dir *freedirectory) full() bool {
	return len(dir.blocks) >= dir.size
}

// find index of a block that can hold required bytes, -1 if none.
func (dir *freedirectory) find(required int64, placement Placement) int {
	best, bestdiff := -1, int64(math.MaxInt64)
	for i, blk := range dir.blocks {
		if blk.Size < required {
			continue
		} else if placement == FindFirst {
			return i
		}
		diff := blk.Size - required
		if diff == 0 {
			return i
		} else if diff < bestdiff {
			best, bestdiff = i, diff
		}
	}
	return best
}

// consume n bytes from the head of block i, removing the block if
// nothing is left.
func (dir *freedirectory) consume(i int, n int64) {
	blk := dir.blocks[i]
	if rest := blk.Size - n; rest > 0 {
		dir.blocks[i] = Freeblock{Offset: blk.Offset + n, Size: rest}
		return
	}
	dir.remove(i)
}

// insert block at the end of the directory, return its index. Caller
// shall make sure directory is not full.
func (dir *freedirectory) insert(blk Freeblock) int {
	dir.blocks = append(dir.blocks, blk)
	return len(dir.blocks) - 1
}

func (dir *freedirectory) remove(i int) {
	last := len(dir.blocks) - 1
	dir.blocks[i] = dir.blocks[last]
	dir.blocks = dir.blocks[:last]
}

// fastmerge coalesce block at pivot with the blocks immediately
// before and after it, in a single pass.
func (dir *freedirectory) fastmerge(pivot int) {
	blk := dir.blocks[pivot]
	left, right := -1, -1
	for i, other := range dir.blocks {
		if i == pivot {
			continue
		} else if other.Offset+other.Size == blk.Offset {
			left = i
		} else if other.Offset == blk.Offset+blk.Size {
			right = i
		}
		if left >= 0 && right >= 0 {
			break
		}
	}

	switch {
	case left >= 0 && right >= 0:
		dir.blocks[left].Size += blk.Size + dir.blocks[right].Size
		// remove the higher index first, so that the lower index
		// is not disturbed by the swap.
		if pivot > right {
			dir.remove(pivot)
			dir.remove(right)
		} else {
			dir.remove(right)
			dir.remove(pivot)
		}

	case left >= 0:
		dir.blocks[left].Size += blk.Size
		dir.remove(pivot)

	case right >= 0:
		dir.blocks[right].Offset = blk.Offset
		dir.blocks[right].Size += blk.Size
		dir.remove(pivot)
	}
}

// fullmerge coalesce every pair of adjacent blocks, leaving the
// directory sorted by offset.
func (dir *freedirectory) fullmerge() {
	if len(dir.blocks) < 2 {
		return
	}
	sort.Slice(dir.blocks, func(i, j int) bool {
		return dir.blocks[i].Offset < dir.blocks[j].Offset
	})
	merged := dir.blocks[:1]
	for _, blk := range dir.blocks[1:] {
		last := &merged[len(merged)-1]
		if last.Offset+last.Size == blk.Offset {
			last.Size += blk.Size
			continue
		}
		merged = append(merged, blk)
	}
	dir.blocks = merged
}

// sum of free bytes.
func (dir *freedirectory) freesize() (n int64) {
	for _, blk := range dir.blocks {
		n += blk.Size
	}
	return n
}

func (dir *freedirectory) clone() []Freeblock {
	blocks := make([]Freeblock, len(dir.blocks))
	copy(blocks, dir.blocks)
	return blocks
}
