package malloc

import "testing"
import "unsafe"

import "github.com/apache/arrow/go/v17/arrow/memory"
import "github.com/bnclabs/golog"

func init() {
	setts := map[string]interface{}{
		"log.level":      "ignore",
		"log.colorfatal": "red",
		"log.colorerror": "hired",
		"log.colorwarn":  "yellow",
	}
	log.SetLogger(nil, setts)
	LogComponents("self")
}

func newcheckedmem() *memory.CheckedAllocator {
	return memory.NewCheckedAllocator(memory.NewGoAllocator())
}

func isaligned(ptr unsafe.Pointer, alignment int64) bool {
	return (uintptr(ptr) & uintptr(alignment-1)) == 0
}

func expectpanic(t *testing.T, fn func()) {
	t.Helper()
	defer func() {
		if r := recover(); r == nil {
			t.Errorf("expected panic")
		}
	}()
	fn()
}
