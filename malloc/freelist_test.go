package malloc

import "testing"
import "unsafe"
import "reflect"
import "math/rand"

import s "github.com/bnclabs/gosettings"
import "github.com/bnclabs/gomalloc/api"

func newfreelist(capacity int64, setts s.Settings) *FreeListAllocator {
	setts = make(s.Settings).Mixin(Defaultsettings(), setts)
	fl := NewFreeListAllocator(capacity, setts)
	fl.Init()
	return fl
}

func TestFreeListAlloc(t *testing.T) {
	mem := newcheckedmem()
	fl := NewFreeListAllocator(4096, Defaultsettings()).SetMemory(mem)
	fl.Init()
	if fl.Isfullymerged() == false {
		t.Errorf("expected fully merged directory after init")
	} else if x := fl.Placement(); x != FindBest {
		t.Errorf("expected %v, got %v", FindBest, x)
	} else if y := fl.Mergepolicy(); y != FullMergeIfSaturated {
		t.Errorf("expected %v, got %v", FullMergeIfSaturated, y)
	}

	ptr, err := fl.Alloc(10)
	if err != nil {
		t.Fatal(err)
	} else if x := fl.Usedsize(); x != 32 {
		t.Errorf("expected %v, got %v", 32, x)
	}
	ref := []Freeblock{{Offset: 32, Size: 4064}}
	if blocks := fl.Freeblocks(); !reflect.DeepEqual(blocks, ref) {
		t.Errorf("expected %v, got %v", ref, blocks)
	} else if x := fl.Freesize(); x != 4064 {
		t.Errorf("expected %v, got %v", 4064, x)
	}

	if fl.Free(ptr) == false {
		t.Errorf("expected free to succeed")
	} else if x := fl.Usedsize(); x != 0 {
		t.Errorf("expected %v, got %v", 0, x)
	} else if fl.Isfullymerged() == false {
		t.Errorf("expected fully merged, got %v", fl.Freeblocks())
	}

	var local [4]int64
	if fl.Free(unsafe.Pointer(&local[0])) {
		t.Errorf("expected free to fail for foreign pointer")
	} else if fl.Free(nil) {
		t.Errorf("expected free to fail for nil pointer")
	}

	fl.Release()
	mem.AssertSize(t, 0)
	expectpanic(t, func() { fl.Alloc(8) })
}

func TestFreeListOutofmemory(t *testing.T) {
	fl := newfreelist(4096, nil)
	defer fl.Release()

	if _, err := fl.Alloc(4096); err != api.ErrorOutofMemory {
		t.Errorf("expected %v, got %v", api.ErrorOutofMemory, err)
	} else if _, err := fl.Alloc(5000); err != api.ErrorOutofMemory {
		t.Errorf("expected %v, got %v", api.ErrorOutofMemory, err)
	} else if _, err := fl.Alloc(4096 - 16); err != nil {
		t.Errorf("unexpected %v", err)
	} else if x := fl.Usedsize(); x != 4096 {
		t.Errorf("expected %v, got %v", 4096, x)
	} else if _, err := fl.Alloc(1); err != api.ErrorOutofMemory {
		t.Errorf("expected %v, got %v", api.ErrorOutofMemory, err)
	}

	fl.Reset()
	if x := fl.Usedsize(); x != 0 {
		t.Errorf("expected %v, got %v", 0, x)
	} else if _, err := fl.Alloc(4096 - 16); err != nil {
		t.Errorf("unexpected %v", err)
	}
}

func TestFreeListAlignments(t *testing.T) {
	for _, placement := range []string{"first", "best"} {
		fl := newfreelist(64*1024, s.Settings{"placement": placement})
		for alignment := int64(1); alignment <= 256; alignment <<= 1 {
			ptr, err := fl.Allocate(24, alignment)
			if err != nil {
				t.Fatal(err)
			} else if !isaligned(ptr, alignment) {
				t.Errorf("expected %v alignment for %p", alignment, ptr)
			}
			block := unsafe.Slice((*byte)(ptr), 24)
			for i := range block {
				block[i] = 0xff
			}
			if fl.Free(ptr) == false {
				t.Errorf("expected free to succeed")
			} else if x := fl.Usedsize(); x != 0 {
				t.Errorf("expected %v, got %v", 0, x)
			} else if fl.Isfullymerged() == false {
				t.Errorf("expected fully merged, got %v", fl.Freeblocks())
			}
		}
		fl.Release()
	}
}

func TestFreeListBalanced(t *testing.T) {
	testcases := []s.Settings{
		{"placement": "first", "merge": "fast"},
		{"placement": "first", "merge": "full"},
		{"placement": "first", "merge": "saturated"},
		{"placement": "best", "merge": "fast"},
		{"placement": "best", "merge": "full"},
		{"placement": "best", "merge": "saturated"},
	}
	for _, setts := range testcases {
		fl := newfreelist(1024*1024, setts)
		ptrs := make([]unsafe.Pointer, 0, 1024)
		for i := 0; i < 2000; i++ {
			if len(ptrs) > 0 && rand.Intn(3) == 0 {
				j := rand.Intn(len(ptrs))
				if fl.Free(ptrs[j]) == false {
					t.Fatalf("%v expected free to succeed", setts)
				}
				ptrs[j] = ptrs[len(ptrs)-1]
				ptrs = ptrs[:len(ptrs)-1]
				continue
			}
			size, alignment := int64(rand.Intn(512)+1), int64(1)<<uint(rand.Intn(7))
			ptr, err := fl.Allocate(size, alignment)
			if err == api.ErrorOutofMemory {
				continue
			} else if err != nil {
				t.Fatal(err)
			} else if !isaligned(ptr, alignment) {
				t.Errorf("expected %v alignment for %p", alignment, ptr)
			}
			ptrs = append(ptrs, ptr)
		}
		for _, ptr := range ptrs {
			fl.Free(ptr)
		}
		if x := fl.Usedsize(); x != 0 {
			t.Errorf("%v expected %v, got %v", setts, 0, x)
		}
		fl.Fullmerge()
		if fl.Isfullymerged() == false {
			t.Errorf("%v expected fully merged, got %v", setts, fl.Freeblocks())
		}
		fl.Release()
	}
}

func TestFreeListFullMerge(t *testing.T) {
	fl := newfreelist(1024, s.Settings{"merge": "full"})
	defer fl.Release()

	ptrs := make([]unsafe.Pointer, 0, 4)
	for i := 0; i < 4; i++ {
		ptr, err := fl.Alloc(8) // 24 byte blocks
		if err != nil {
			t.Fatal(err)
		}
		ptrs = append(ptrs, ptr)
	}
	fl.Free(ptrs[0])
	fl.Free(ptrs[2])
	ref := []Freeblock{{0, 24}, {48, 24}, {96, 928}}
	if blocks := fl.Freeblocks(); !reflect.DeepEqual(blocks, ref) {
		t.Errorf("expected %v, got %v", ref, blocks)
	}
	fl.Free(ptrs[1])
	ref = []Freeblock{{0, 72}, {96, 928}}
	if blocks := fl.Freeblocks(); !reflect.DeepEqual(blocks, ref) {
		t.Errorf("expected %v, got %v", ref, blocks)
	}
	fl.Free(ptrs[3])
	if fl.Isfullymerged() == false {
		t.Errorf("expected fully merged, got %v", fl.Freeblocks())
	}
}

func TestFreeListSaturated(t *testing.T) {
	for _, merge := range []string{"fast", "saturated"} {
		setts := s.Settings{"merge": merge, "directory.size": int64(2)}
		fl := newfreelist(1024, setts)

		a, _ := fl.Alloc(8)
		_, _ = fl.Alloc(8)
		c, _ := fl.Alloc(8)
		if fl.Free(a) == false {
			t.Errorf("expected free to succeed")
		}
		used, blocks := fl.Usedsize(), fl.Freeblocks()
		func() {
			defer func() {
				if r := recover(); r != api.ErrorSaturated {
					t.Errorf("expected %v, got %v", api.ErrorSaturated, r)
				}
			}()
			fl.Free(c)
		}()
		if x := fl.Usedsize(); x != used {
			t.Errorf("expected %v, got %v", used, x)
		} else if x := fl.Freeblocks(); !reflect.DeepEqual(x, blocks) {
			t.Errorf("expected %v, got %v", blocks, x)
		}
		fl.Release()
	}
}

func TestFreeListPanic(t *testing.T) {
	expectpanic(t, func() { NewFreeListAllocator(12, Defaultsettings()) })
	expectpanic(t, func() { NewFreeListAllocator(0, Defaultsettings()) })
	expectpanic(t, func() {
		NewFreeListAllocator(1024, s.Settings{"placement": "worst"})
	})
	expectpanic(t, func() {
		NewFreeListAllocator(1024, s.Settings{"directory.size": int64(0)})
	})

	fl := newfreelist(1024, nil)
	defer fl.Release()
	expectpanic(t, func() { fl.Alloc(0) })
	expectpanic(t, func() { fl.Allocate(8, 12) })
}

func BenchmarkFreeListAlloc(b *testing.B) {
	fl := newfreelist(1024*1024, nil)
	defer fl.Release()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ptr, _ := fl.Alloc(96)
		fl.Free(ptr)
	}
}

func TestFreeListStats(t *testing.T) {
	fl := newfreelist(4096, nil)
	defer fl.Release()

	ptrs := []unsafe.Pointer{}
	for _, size := range []int64{10, 24, 100} {
		ptr, err := fl.Alloc(size)
		if err != nil {
			t.Fatal(err)
		}
		ptrs = append(ptrs, ptr)
	}
	fl.Free(ptrs[1])

	stats := fl.Stats()
	if x := stats["n_allocs"].(int64); x != 3 {
		t.Errorf("expected %v, got %v", 3, x)
	} else if x := stats["n_frees"].(int64); x != 1 {
		t.Errorf("expected %v, got %v", 1, x)
	} else if x := stats["used"].(int64); x != 32+120 {
		t.Errorf("expected %v, got %v", 32+120, x)
	} else if x := stats["free"].(int64); x != 4096-152 {
		t.Errorf("expected %v, got %v", 4096-152, x)
	} else if x := stats["freeblocks"].(int64); x != 2 {
		t.Errorf("expected %v, got %v", 2, x)
	} else if x := stats["largest"].(int64); x != 4096-192 {
		t.Errorf("expected %v, got %v", 4096-192, x)
	}
	sizes := stats["alloc.sizes"].(map[string]interface{})
	if x := sizes["max"].(int64); x != 100 {
		t.Errorf("expected %v, got %v", 100, x)
	} else if x := sizes["min"].(int64); x != 10 {
		t.Errorf("expected %v, got %v", 10, x)
	}

	fl.Init()
	if x := fl.Stats()["n_allocs"].(int64); x != 0 {
		t.Errorf("expected %v, got %v", 0, x)
	}
}
