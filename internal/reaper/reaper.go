// Package reaper is the reaper task (component K, §4.K): a dedicated
// loop that waits for zombies, removes their TCB (and PCB, if it was the
// last thread) under the scheduler lock, then frees their kernel-stack
// backing memory outside the lock, grounded on the original kernel's
// tcb_pool_reap: "we want to not lock the scheduler while freeing... we
// save all the addresses in a separate buffer, and free them after
// unlocking the scheduler lock."
package reaper

import (
	"nucleus/internal/klist"
	"nucleus/internal/klog"
	"nucleus/internal/proc"
)

// scheduler is the subset of *sched.Scheduler the reaper drives. Declared
// as a local interface (rather than importing internal/sched directly)
// to match the original's tcb_pool_reap taking only a *tcb_pool_t, the
// narrowest collaborator it actually needs.
type scheduler interface {
	ZombieAvailable()
	PeekZombie() (*proc.TCB, bool)
	ReapZombie(tcb *proc.TCB) (freePCB bool)
}

// deferredFreeCapacity bounds the ring buffer of kernel stacks queued for
// release after each lock-held removal, mirroring the original's
// circ_buf_init(&addrs_to_free, NUM_ADDRS).
const deferredFreeCapacity = 64

// Reaper drains zombie threads one at a time, forever.
type Reaper struct {
	sched    scheduler
	toFree   *klist.RingBuffer[[]byte]
	onReaped func(tid int)
}

// New returns a Reaper over sched. onReaped, if non-nil, is called after
// each thread is fully reaped (tid freed from every index) — tests use it
// to observe reap order without racing the loop goroutine.
func New(sched scheduler, onReaped func(tid int)) *Reaper {
	return &Reaper{
		sched:    sched,
		toFree:   klist.NewRingBuffer[[]byte](deferredFreeCapacity),
		onReaped: onReaped,
	}
}

// Run is the reaper's loop body; it returns only once stop is closed. Callers run
// it as the goroutine body registered for the reaper TCB
// (sched.Scheduler.RegisterBody / Bootstrap).
func (r *Reaper) Run(stop <-chan struct{}) {
	log := klog.For("reaper")
	for {
		select {
		case <-stop:
			return
		default:
		}

		r.sched.ZombieAvailable()

		tcb, ok := r.sched.PeekZombie()
		if !ok {
			continue
		}

		freePCB := r.sched.ReapZombie(tcb)
		if err := r.toFree.Write(tcb.KernelStack); err != nil {
			log.WithField("tid", tcb.Tid).Warn("reaper: deferred-free buffer full, stack reclaimed immediately")
		}

		r.drainDeferredFrees()
		log.WithField("tid", tcb.Tid).WithField("freedPCB", freePCB).Debug("reaped zombie thread")
		if r.onReaped != nil {
			r.onReaped(tcb.Tid)
		}
	}
}

// drainDeferredFrees releases every kernel stack queued since the last
// drain. A hosted kernel stack is ordinary Go memory the GC reclaims on
// its own; draining here exists to preserve the original's two-phase
// shape (collect addresses under the lock, release them after) rather
// than to perform a literal free.
func (r *Reaper) drainDeferredFrees() {
	r.toFree.DrainAll(func([]byte) {})
}
