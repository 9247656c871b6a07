package malloc

import "fmt"
import "sync"
import "unsafe"

import s "github.com/bnclabs/gosettings"
import "github.com/bnclabs/gomalloc/lib"

// L1cachesize free-list directory is sized to fit within L1 cache.
const L1cachesize = int64(32 * 1024)

// Maxfreeblocks default number of entries in a free-list directory.
var Maxfreeblocks = L1cachesize / int64(unsafe.Sizeof(Freeblock{}))

// Placement policy to pick a free block for an allocation request.
type Placement int

const (
	// FindFirst pick the first free block that is large enough.
	FindFirst Placement = iota + 1
	// FindBest pick the smallest free block that is large enough.
	FindBest
)

func (p Placement) String() string {
	switch p {
	case FindFirst:
		return "first"
	case FindBest:
		return "best"
	}
	return fmt.Sprintf("placement(%d)", int(p))
}

// Mergepolicy decides when free blocks are coalesced.
type Mergepolicy int

const (
	// FastMerge coalesce the freed block with its neighbours.
	FastMerge Mergepolicy = iota + 1
	// FullMerge coalesce every adjacent pair on every free.
	FullMerge
	// FullMergeIfSaturated same as FastMerge, and coalesce every adjacent
	// pair when the directory is left with no free slot.
	FullMergeIfSaturated
)

func (m Mergepolicy) String() string {
	switch m {
	case FastMerge:
		return "fast"
	case FullMerge:
		return "full"
	case FullMergeIfSaturated:
		return "saturated"
	}
	return fmt.Sprintf("merge(%d)", int(m))
}

// Threading policy for allocator instances.
type Threading int

const (
	// Unsynchronized caller shall serialize access to the allocator.
	Unsynchronized Threading = iota + 1
	// SpinLocked allocator serializes mutations using a spin-lock.
	SpinLocked
)

func (t Threading) String() string {
	switch t {
	case Unsynchronized:
		return "none"
	case SpinLocked:
		return "spin"
	}
	return fmt.Sprintf("threading(%d)", int(t))
}

// Defaultsettings for allocators, settings that don't apply to an
// allocator type are ignored.
//
// "lock" (string, default: "none")
//		Threading policy, "none" or "spin".
//
// "placement" (string, default: "best")
//		Free-list placement policy, "first" or "best".
//
// "merge" (string, default: "saturated")
//		Free-list merge policy, "fast", "full" or "saturated".
//
// "directory.size" (int64, default: <Maxfreeblocks>)
//		Maximum number of free blocks tracked by a free-list allocator.
//
// "numchunks" (int64, default: 1024)
//		Number of chunks in each pool of PoolAllocators.
//
// "minblock" (int64, default: 64)
//		Smallest chunk size, when PoolAllocators derive chunk sizes.
//
// "maxblock" (int64, default: 5120)
//		Largest chunk size, when PoolAllocators derive chunk sizes.
func Defaultsettings() s.Settings {
	return s.Settings{
		"lock":           "none",
		"placement":      "best",
		"merge":          "saturated",
		"directory.size": Maxfreeblocks,
		"numchunks":      int64(1024),
		"minblock":       int64(64),
		"maxblock":       int64(5120),
	}
}

func threadingpolicy(setts s.Settings) Threading {
	switch lock := setts.String("lock"); lock {
	case "none":
		return Unsynchronized
	case "spin":
		return SpinLocked
	default:
		panicerr("invalid lock setting %q", lock)
	}
	return 0
}

func placementpolicy(setts s.Settings) Placement {
	switch placement := setts.String("placement"); placement {
	case "first":
		return FindFirst
	case "best":
		return FindBest
	default:
		panicerr("invalid placement setting %q", placement)
	}
	return 0
}

func mergepolicy(setts s.Settings) Mergepolicy {
	switch merge := setts.String("merge"); merge {
	case "fast":
		return FastMerge
	case "full":
		return FullMerge
	case "saturated":
		return FullMergeIfSaturated
	default:
		panicerr("invalid merge setting %q", merge)
	}
	return 0
}

func newlocker(setts s.Settings) sync.Locker {
	if threadingpolicy(setts) == SpinLocked {
		return &lib.Spinlock{}
	}
	return nolock{}
}

// nolock for Unsynchronized allocators.
type nolock struct{}

func (nolock) Lock()   {}
func (nolock) Unlock() {}
