package lib

import "runtime"
import "sync/atomic"

// spinsToYield number of failed attempts before yielding the processor.
const spinsToYield = 10

// Spinlock busy-wait mutual exclusion, optimized for very short
// critical sections. After spinsToYield failed attempts the calling
// goroutine yields to the scheduler before retrying. Zero value is an
// unlocked Spinlock. A Spinlock must not be copied after first use.
type Spinlock struct {
	flag int32
}

// Lock acquire the spinlock, spin until it is available.
func (sl *Spinlock) Lock() {
	counter := spinsToYield
	for {
		if atomic.LoadInt32(&sl.flag) == 0 {
			if atomic.CompareAndSwapInt32(&sl.flag, 0, 1) {
				return
			}
		}
		if counter--; counter == 0 {
			counter = spinsToYield
			runtime.Gosched()
		}
	}
}

// TryLock single attempt to acquire the spinlock, return whether it
// was acquired.
func (sl *Spinlock) TryLock() bool {
	return atomic.CompareAndSwapInt32(&sl.flag, 0, 1)
}

// Unlock release the spinlock.
func (sl *Spinlock) Unlock() {
	atomic.StoreInt32(&sl.flag, 0)
}
