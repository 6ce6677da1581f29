// Package proc defines the thread and process control blocks the
// scheduler (internal/sched) operates on: TCB and PCB exactly as
// specified in §3, grounded on the original kernel's kern/inc/tcb.h and
// kern/inc/pcb.h (both left as near-empty TODO stubs there — "// TODO: add
// register context" on tcb_t is the clearest signal the real shape lives
// in the surrounding scheduler/context-switch code, which is what this
// file actually follows) and kern/scheduler/{pcb,tcb}.c's pcb_inc_threads/
// pcb_dec_threads/pcb_signal_status/pcb_wait_on_status behavior.
package proc

import (
	"nucleus/internal/kconfig"
	"nucleus/internal/ksync"
	"nucleus/internal/paging"
)

// Status is a TCB's position in the thread pool (§3).
type Status int

const (
	Runnable Status = iota
	Running
	Waiting
	Sleeping
	Zombie
)

func (s Status) String() string {
	switch s {
	case Runnable:
		return "RUNNABLE"
	case Running:
		return "RUNNING"
	case Waiting:
		return "WAITING"
	case Sleeping:
		return "SLEEPING"
	case Zombie:
		return "ZOMBIE"
	default:
		return "UNKNOWN"
	}
}

// ExceptionHandler is the optional per-thread software-exception handler
// installed by swexn: the user entry point to call, the stack to call it
// on, and the opaque argument to pass.
type ExceptionHandler struct {
	EntryPoint uint32
	StackTop   uint32
	Arg        uint32
}

// TCB is a thread control block (§3): identity, owning process, scheduling
// state, and the one-page kernel stack privileged execution runs on. The
// "saved kernel-stack pointer" of the distilled spec becomes, in the
// hosted ctxswitch implementation, the identity of a parked goroutine; TCB
// itself carries only the kernel stack's backing bytes, not an esp value,
// since nothing in this module ever interprets one as an address.
type TCB struct {
	Tid        int
	PCB        *PCB
	Status     Status
	WakeTime   uint64
	ExitStatus int32
	Handler    *ExceptionHandler

	// KernelStack is this thread's privileged-mode stack, sized in pages
	// by the caller (one page for an ordinary thread, ReaperStackPages
	// for the reaper, per §4.H).
	KernelStack []byte
}

// NewTCB returns a fresh RUNNABLE TCB with a zeroed kernel stack of
// stackPages pages.
func NewTCB(tid int, pcb *PCB, stackPages int) *TCB {
	return &TCB{
		Tid:         tid,
		PCB:         pcb,
		Status:      Runnable,
		KernelStack: make([]byte, stackPages*kconfig.PageSize),
	}
}

// ChildStatus is one record in a PCB's child-status queue: the exit status
// and original tid of a child process that has fully exited, reported by
// vanish and consumed by wait.
type ChildStatus struct {
	ExitStatus  int32
	OriginalTid int
}

// PCB is a process control block (§3): an owned address space, parentage,
// live thread/child counts, and the FIFO queue (+ counting semaphore) of
// child-exit reports that wait drains.
type PCB struct {
	Pid         int
	Dir         *paging.Directory
	ParentPid   int
	OriginalTid int

	mu           ksync.SpinMutex
	liveThreads  int
	liveChildren int
	childStatus  []ChildStatus
	waitSem      *ksync.Semaphore
}

// NewPCB returns a PCB owning dir, with one live thread (the caller is
// expected to immediately attach a TCB) and zero live children.
func NewPCB(pid int, dir *paging.Directory, parentPid, originalTid int) *PCB {
	return &PCB{
		Pid:         pid,
		Dir:         dir,
		ParentPid:   parentPid,
		OriginalTid: originalTid,
		liveThreads: 1,
		waitSem:     ksync.NewSemaphore(0),
	}
}

// IncThreads increments the live thread count, e.g. on thread_fork.
func (p *PCB) IncThreads() {
	p.mu.Lock()
	p.liveThreads++
	p.mu.Unlock()
}

// DecThreads decrements the live thread count and reports whether it
// reached zero (the last thread of this process just exited).
func (p *PCB) DecThreads() (isLast bool) {
	p.mu.Lock()
	p.liveThreads--
	isLast = p.liveThreads == 0
	p.mu.Unlock()
	return isLast
}

// LiveThreads returns the current live thread count.
func (p *PCB) LiveThreads() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.liveThreads
}

// IncChildren increments the live child-process count, e.g. on fork or
// re-parenting an orphan to init.
func (p *PCB) IncChildren() {
	p.mu.Lock()
	p.liveChildren++
	p.mu.Unlock()
}

// DecChildren decrements the live child-process count.
func (p *PCB) DecChildren() {
	p.mu.Lock()
	p.liveChildren--
	p.mu.Unlock()
}

// LiveChildren returns the current live child-process count.
func (p *PCB) LiveChildren() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.liveChildren
}

// SignalStatus enqueues a child's exit report and wakes one waiter in
// Wait, per vanish's "enqueue in the target parent's status queue and
// signal its wait semaphore" (§4.H).
func (p *PCB) SignalStatus(cs ChildStatus) {
	p.mu.Lock()
	p.childStatus = append(p.childStatus, cs)
	p.mu.Unlock()
	p.waitSem.Signal()
}

// Wait blocks on the child-status semaphore until a report is available,
// then dequeues and returns it. Callers must first check LiveChildren() >
// 0 themselves — Wait never returns an error for "no children", matching
// wait's own division of labor in §4.H (the policy-error check happens
// one layer up, in sched.Scheduler.Wait, where the PCB's child count is
// known to be zero before any blocking occurs).
//
// Relies on waitSem.Wait() only returning on a matching Signal (never on
// a stray make_runnable) so childStatus is guaranteed non-empty here.
func (p *PCB) Wait() ChildStatus {
	p.waitSem.Wait()
	p.mu.Lock()
	defer p.mu.Unlock()
	cs := p.childStatus[0]
	p.childStatus = p.childStatus[1:]
	return cs
}
