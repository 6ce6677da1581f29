// Package sched implements the thread pool (component G) and scheduler
// (component H): four lists (runnable/waiting/sleeping/zombie) plus
// tid/pid indices, round-robin next-thread selection, timer-tick-driven
// sleeper wakeups, and the state-transition table of §4.H. Grounded on
// the original kernel's kern/scheduler/tcb_pool.c (hash-table-of-lists
// layout, tid_hash/pid_hash, tcb_pool_get_next_tcb's rotate-then-peek) and
// scheduler.c (scheduler_make_current_sleeping/make_runnable/
// deschedule_current/add_process/add_reaper_proc/add_idle_process).
package sched

import (
	"nucleus/internal/kconfig"
	"nucleus/internal/klist"
	"nucleus/internal/ksync"
	"nucleus/internal/proc"
)

// poolKind names which of the four lists a TCB currently sits in.
type poolKind int

const (
	poolRunnable poolKind = iota
	poolWaiting
	poolSleeping
	poolZombie
)

// pool is the thread pool's four lists plus tid/pid indices and the
// zombie-availability semaphore (§3 "Thread pool").
type pool struct {
	runnable klist.List[*proc.TCB]
	waiting  klist.List[*proc.TCB]
	sleeping klist.List[*proc.TCB]
	zombie   klist.List[*proc.TCB]

	tids klist.HashTable[*proc.TCB]
	pids klist.HashTable[*proc.PCB]

	// location tracks, per tid, which list currently holds the TCB and
	// the node to Unlink without a linear search.
	location map[int]locEntry

	zombieSem *ksync.Semaphore
}

type locEntry struct {
	kind poolKind
	node *klist.Node[*proc.TCB]
}

func newPool() *pool {
	return &pool{
		tids:      *klist.NewHashTable[*proc.TCB](64),
		pids:      *klist.NewHashTable[*proc.PCB](64),
		location:  make(map[int]locEntry),
		zombieSem: ksync.NewSemaphore(0),
	}
}

func (p *pool) listFor(kind poolKind) *klist.List[*proc.TCB] {
	switch kind {
	case poolRunnable:
		return &p.runnable
	case poolWaiting:
		return &p.waiting
	case poolSleeping:
		return &p.sleeping
	case poolZombie:
		return &p.zombie
	default:
		return nil
	}
}

// addRunnable inserts a brand-new tcb into the tid index and the tail of
// the runnable list, per "insert a new runnable TCB" (§4.F/G).
func (p *pool) addRunnable(tcb *proc.TCB) {
	p.tids.Put(int64(tcb.Tid), tcb)
	node := p.runnable.PushBack(tcb)
	p.location[tcb.Tid] = locEntry{kind: poolRunnable, node: node}
}

// addPCB registers a new process in the pid index.
func (p *pool) addPCB(pcb *proc.PCB) {
	p.pids.Put(int64(pcb.Pid), pcb)
}

// unlink removes tid from whichever list currently holds it. No-op if
// tid isn't tracked.
func (p *pool) unlink(tid int) (poolKind, bool) {
	loc, ok := p.location[tid]
	if !ok {
		return 0, false
	}
	p.listFor(loc.kind).Unlink(loc.node)
	delete(p.location, tid)
	return loc.kind, true
}

// moveTo unlinks tcb from its current list and pushes it onto kind's
// list (tail for runnable/waiting/zombie; the caller handles sleeping's
// sorted insert separately via moveToSleeping).
func (p *pool) moveTo(tcb *proc.TCB, kind poolKind) {
	p.unlink(tcb.Tid)
	node := p.listFor(kind).PushBack(tcb)
	p.location[tcb.Tid] = locEntry{kind: kind, node: node}
}

// moveToSleeping unlinks tcb and sorted-inserts it into the sleeping list
// by ascending wake-time, ties broken by insertion order (§3).
func (p *pool) moveToSleeping(tcb *proc.TCB) {
	p.unlink(tcb.Tid)
	node := p.sleeping.InsertSorted(tcb, func(a, b *proc.TCB) bool {
		return a.WakeTime < b.WakeTime
	})
	p.location[tcb.Tid] = locEntry{kind: poolSleeping, node: node}
}

// removeToZombie unlinks tcb from wherever it is, appends it to the
// zombie list, and signals the zombie-availability semaphore.
func (p *pool) removeToZombie(tcb *proc.TCB) {
	p.moveTo(tcb, poolZombie)
	p.zombieSem.Signal()
}

// findTCB looks up a tid.
func (p *pool) findTCB(tid int) (*proc.TCB, bool) {
	return p.tids.Get(int64(tid))
}

// findPCB looks up a pid.
func (p *pool) findPCB(pid int) (*proc.PCB, bool) {
	return p.pids.Get(int64(pid))
}

// isRunnable reports whether tid currently sits in the runnable list.
func (p *pool) isRunnable(tid int) bool {
	loc, ok := p.location[tid]
	return ok && loc.kind == poolRunnable
}

// getNextTCB rotates the runnable list head to tail and returns the new
// head's TCB, or nil if the runnable list is empty (the caller substitutes
// the idle TCB in that case, per "get-next-tcb", §4.H).
func (p *pool) getNextTCB() *proc.TCB {
	if p.runnable.Len() == 0 {
		return nil
	}
	front := p.runnable.Front()
	outgoing := front.Value
	p.runnable.RotateHeadToTail()
	// RotateHeadToTail allocates a fresh node for the value it moved to
	// the tail; resync our node handle for it.
	p.location[outgoing.Tid] = locEntry{kind: poolRunnable, node: p.runnable.Back()}
	return p.runnable.Front().Value
}

// drainWokenSleepers removes every sleeping TCB whose wake-time has
// arrived (<= currentTicks) from the head of the sorted sleeping list,
// moving each to runnable, and returns them in wake order. The scan stops
// at the first remaining wake-time greater than currentTicks since the
// list is sorted (§4.H "Wakeup").
func (p *pool) drainWokenSleepers(currentTicks uint64) []*proc.TCB {
	var woken []*proc.TCB
	for {
		front := p.sleeping.Front()
		if front == nil || front.Value.WakeTime > currentTicks {
			break
		}
		tcb := front.Value
		p.moveTo(tcb, poolRunnable)
		woken = append(woken, tcb)
	}
	return woken
}

// kernelStackPagesFor returns the kernel stack size, in pages, for an
// ordinary thread vs. the reaper's dedicated oversized stack (§4.H).
func kernelStackPagesFor(isReaper bool) int {
	if isReaper {
		return kconfig.ReaperStackPages
	}
	return kconfig.KernelStackPages
}
