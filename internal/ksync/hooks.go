// Package ksync implements the kernel's own synchronization primitives:
// a spin-mutex with owner-yield, a counting semaphore, a condition
// variable, a writer-preferring reader/writer lock, and the
// interrupt-masking scheduler lock. The rest of the kernel — the frame
// manager, each PCB, the thread pool — is written against these, not
// against sync.Mutex/sync.Cond: they are the domain logic this kernel
// specifies (§1 item 4), so reimplementing them by hand rather than
// delegating to the standard library is the point, not a shortcut.
//
// Grounded on the original kernel's kern/locks/{mutex,sem,cond,sched_mutex}.c
// and kern/ (rwlock via user/libthread/rwlock.c, which mirrors the kernel
// pattern exactly, per the distilled spec's own note that the user-level
// library "reimplements the kernel patterns in user space").
package ksync

import "sync/atomic"

// Hooks is the small scheduler surface these primitives are written
// against: a spin-mutex yields to its owner or to the scheduler instead
// of busy-waiting, and a semaphore/condition-variable wait descends into
// "make me WAITING and pick someone else to run". Concrete wiring is
// supplied once, at boot, by the sched package via SetHooks — the one
// module-level mutable static this kernel accepts outside of the paging
// kernel template, exactly as gopheros's vmm.SetFrameAllocator registers
// a function pointer for a lower layer to call into a layer defined above
// it, breaking what would otherwise be an import cycle (sched depends on
// ksync for its own locking; ksync must not depend back on sched).
type Hooks interface {
	// CurrentTid returns the tid of the calling thread, or -1 before the
	// scheduler has started.
	CurrentTid() int
	// IsRunnable reports whether tid is currently in the runnable pool.
	IsRunnable(tid int) bool
	// Yield gives up the CPU. If tid >= 0 it asks the scheduler to run
	// that specific thread next (priority donation); tid < 0 asks for
	// the scheduler's own choice.
	Yield(tid int)
	// Deschedule transitions the calling thread to WAITING and yields,
	// unless *reject is already non-zero (matched by a racing
	// MakeRunnable/signal), in which case it returns immediately.
	Deschedule(reject *int32)
	// MakeRunnable transitions tid from WAITING to RUNNABLE.
	MakeRunnable(tid int)
	// Started reports whether the scheduler has begun running threads;
	// before that point every primitive here is a no-op, matching the
	// teacher and original kernel's boot-time behavior.
	Started() bool
}

var hooks atomic.Pointer[Hooks]

// SetHooks registers the scheduler's implementation of Hooks. Called
// exactly once, during boot, by sched.New.
func SetHooks(h Hooks) {
	hooks.Store(&h)
}

func hooksOrNil() Hooks {
	p := hooks.Load()
	if p == nil {
		return nil
	}
	return *p
}

func started() bool {
	h := hooksOrNil()
	return h != nil && h.Started()
}
