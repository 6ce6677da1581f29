package ksync

import "sync/atomic"

// SpinMutex is a single-word lock plus a recorded owner tid. Acquisition
// spins on an atomic exchange; on contention it yields directly to the
// recorded owner if that thread is runnable (cooperative priority
// donation), else to the scheduler's own choice. Before the scheduler has
// started, Lock/Unlock are no-ops, matching boot-time behavior in the
// original kernel (mutex_lock checks `sched.started`).
type SpinMutex struct {
	locked int32 // 0 = free, 1 = held
	owner  int32 // tid of current holder, or -1
}

// NewSpinMutex returns an unlocked mutex.
func NewSpinMutex() *SpinMutex {
	return &SpinMutex{owner: -1}
}

// Lock blocks until the mutex is acquired.
func (m *SpinMutex) Lock() {
	if !started() {
		return
	}
	h := hooksOrNil()
	curTid := -1
	if h != nil {
		curTid = h.CurrentTid()
	}
	for !atomic.CompareAndSwapInt32(&m.locked, 0, 1) {
		owner := int(atomic.LoadInt32(&m.owner))
		if owner >= 0 && h != nil && h.IsRunnable(owner) {
			h.Yield(owner)
		} else if h != nil {
			h.Yield(-1)
		}
	}
	atomic.StoreInt32(&m.owner, int32(curTid))
}

// Unlock releases the mutex. The owner is cleared before the lock word is
// released so a thread that immediately reacquires doesn't see stale
// donation information.
func (m *SpinMutex) Unlock() {
	if !started() {
		return
	}
	atomic.StoreInt32(&m.owner, -1)
	atomic.StoreInt32(&m.locked, 0)
}

// Owner returns the tid of the current holder, or -1 if unlocked.
func (m *SpinMutex) Owner() int {
	return int(atomic.LoadInt32(&m.owner))
}
