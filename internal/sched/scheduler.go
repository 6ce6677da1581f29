package sched

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/zoobzio/clockz"

	"nucleus/internal/ctxswitch"
	"nucleus/internal/kerrors"
	"nucleus/internal/klog"
	"nucleus/internal/ksync"
	"nucleus/internal/paging"
	"nucleus/internal/proc"
)

// Switcher is the subset of ctxswitch's hosted implementation the
// scheduler needs: Suspend/Resume to run the dispatch loop (§4.I), plus
// ParkSelf so a thread's own Hooks calls (Yield/Deschedule, invoked from
// inside that thread's own goroutine) can actually block until resumed.
// The dispatch loop and ParkSelf together are this module's hosted stand-in
// for a hardware timer interrupt forcibly suspending a running thread:
// every suspension here is the running thread voluntarily reaching a
// yield/deschedule/wait point, since nothing in a goroutine-hosted model
// can safely force another goroutine to stop running mid-instruction the
// way real hardware forces a CPU to trap. Every §8 testable scenario
// (sleep ordering, fork/wait, deschedule, spin-mutex contention) only
// ever exercises cooperative suspension, so this is a deliberate,
// documented simplification rather than a missing feature.
type Switcher interface {
	ctxswitch.Switcher
	ParkSelf(tid int)
}

// Scheduler composes the thread pool (component G) with next-thread
// selection, tick-driven wakeups, and process lifecycle (component H),
// implementing ksync.Hooks and ksync.InterruptController so every
// synchronization primitive in internal/ksync is driven by a real
// scheduler once one is constructed (§4.E/F/G/H).
type Scheduler struct {
	pool pool

	switcher Switcher
	clock    clockz.Clock

	schedLock ksync.SchedLock

	nextTid int
	nextPid int
	ticks   uint64

	started           bool
	interruptsEnabled bool

	curTCB    *proc.TCB
	idleTCB   *proc.TCB
	reaperTCB *proc.TCB
	initPCB   *proc.PCB

	log *logrus.Entry
}

// New constructs a Scheduler, registers it as the package-level
// ksync.Hooks/InterruptController implementation, and returns it ready
// for idle/reaper/init bootstrap via Bootstrap. Grounded on
// scheduler_init's sequencing in kern/scheduler/scheduler.c.
func New(switcher Switcher, clock clockz.Clock) *Scheduler {
	s := &Scheduler{
		pool:     *newPool(),
		switcher: switcher,
		clock:    clock,
		log:      klog.For("sched"),
	}
	ksync.SetHooks(s)
	ksync.SetInterruptController(s)
	return s
}

// --- tid/pid allocation ---

func (s *Scheduler) allocTid() int {
	tid := s.nextTid
	s.nextTid++
	return tid
}

func (s *Scheduler) allocPid() int {
	pid := s.nextPid
	s.nextPid++
	return pid
}

// --- bootstrap: idle, reaper, init (scheduler_init) ---

// Bootstrap creates the idle TCB (no PCB work, selected only when the
// runnable list is empty), the reaper TCB (oversized kernel stack, see
// internal/reaper), and the init PCB/TCB (the root of the reparenting
// tree), then marks the scheduler started. idleBody and reaperBody are
// the goroutine bodies ctxswitch will run for those two threads; initDir
// is the page directory already populated for the init program's image.
func (s *Scheduler) Bootstrap(
	idleBody func(ctxswitch.RegisterFrame, <-chan struct{}, chan<- ctxswitch.RegisterFrame),
	reaperBody func(ctxswitch.RegisterFrame, <-chan struct{}, chan<- ctxswitch.RegisterFrame),
	initDir *paging.Directory,
) (initPCB *proc.PCB, reaperTCB *proc.TCB) {
	idlePid := s.allocPid()
	idlePCB := proc.NewPCB(idlePid, nil, -1, 0)
	idleTid := s.allocTid()
	s.idleTCB = proc.NewTCB(idleTid, idlePCB, kernelStackPagesFor(false))
	s.RegisterBody(idleTid, idleBody)

	reaperPid := s.allocPid()
	reaperPCB := proc.NewPCB(reaperPid, nil, -1, 0)
	reaperTid := s.allocTid()
	s.reaperTCB = proc.NewTCB(reaperTid, reaperPCB, kernelStackPagesFor(true))
	s.RegisterBody(reaperTid, reaperBody)
	s.pool.addPCB(reaperPCB)
	s.pool.addRunnable(s.reaperTCB)

	initPid := s.allocPid()
	initPCBv := proc.NewPCB(initPid, initDir, -1, 0)
	initTid := s.allocTid()
	initPCBv.OriginalTid = initTid
	initTCB := proc.NewTCB(initTid, initPCBv, kernelStackPagesFor(false))
	s.pool.addPCB(initPCBv)
	s.pool.addRunnable(initTCB)
	s.initPCB = initPCBv

	s.started = true
	return initPCBv, s.reaperTCB
}

// --- fork / exec / thread-create entry points (scheduler_add_process) ---

// AddProcess creates a fresh PCB owning dir and a TCB to run it, assigns
// the next pid and tid, and inserts the TCB into the runnable pool.
func (s *Scheduler) AddProcess(dir *paging.Directory, parentPid int) (*proc.PCB, *proc.TCB) {
	s.schedLock.Lock()
	defer s.schedLock.Unlock()

	pid := s.allocPid()
	tid := s.allocTid()
	pcb := proc.NewPCB(pid, dir, parentPid, tid)
	tcb := proc.NewTCB(tid, pcb, kernelStackPagesFor(false))
	s.pool.addPCB(pcb)
	s.pool.addRunnable(tcb)
	if parent, ok := s.pool.findPCB(parentPid); ok {
		parent.IncChildren()
	}
	return pcb, tcb
}

// AddThread creates a new TCB sharing pcb's address space (thread_fork,
// §9 open question 2) and inserts it into the runnable pool.
func (s *Scheduler) AddThread(pcb *proc.PCB) *proc.TCB {
	s.schedLock.Lock()
	defer s.schedLock.Unlock()

	tid := s.allocTid()
	tcb := proc.NewTCB(tid, pcb, kernelStackPagesFor(false))
	pcb.IncThreads()
	s.pool.addRunnable(tcb)
	return tcb
}

// TCBStatus reports tid's current status, for syscall-level policy
// validation before issuing a pool transition (§6), or false if tid is
// unknown.
func (s *Scheduler) TCBStatus(tid int) (proc.Status, bool) {
	s.schedLock.Lock()
	defer s.schedLock.Unlock()
	tcb, ok := s.pool.findTCB(tid)
	if !ok {
		return 0, false
	}
	return tcb.Status, true
}

// RegisterBody associates tid with the goroutine body the switcher will
// run the first time tid is resumed — the hosted stand-in for
// initializing a freshly created thread's kernel stack with a synthetic
// first-resume frame (§4.H "for a newly-forked thread..."). A no-op if
// the configured switcher doesn't support registration (e.g. a test
// double used only to exercise pool bookkeeping).
func (s *Scheduler) RegisterBody(tid int, fn func(ctxswitch.RegisterFrame, <-chan struct{}, chan<- ctxswitch.RegisterFrame)) {
	if hs, ok := s.switcher.(interface {
		Register(int, func(ctxswitch.RegisterFrame, <-chan struct{}, chan<- ctxswitch.RegisterFrame))
	}); ok {
		hs.Register(tid, fn)
	}
}

// --- next-thread selection ---

// GetNextTCB implements get-next-tcb: rotate the runnable list and
// return the new head, or the idle TCB if the runnable list is empty.
func (s *Scheduler) GetNextTCB() *proc.TCB {
	s.schedLock.Lock()
	defer s.schedLock.Unlock()
	if tcb := s.pool.getNextTCB(); tcb != nil {
		return tcb
	}
	return s.idleTCB
}

// CurrentTCB returns the TCB currently marked RUNNING, or nil before the
// dispatch loop has run.
func (s *Scheduler) CurrentTCB() *proc.TCB {
	return s.curTCB
}

// FindTCB looks up a thread by tid regardless of which pool list it
// currently sits on (runnable, waiting, sleeping, or zombie) — used by
// fork to hand the caller the freshly created child's TCB, and by
// anything that needs to resolve a bare tid (e.g. a future signal/kill)
// to the thread it names.
func (s *Scheduler) FindTCB(tid int) (*proc.TCB, bool) {
	s.schedLock.Lock()
	defer s.schedLock.Unlock()
	return s.pool.findTCB(tid)
}

// DispatchOnce hands the CPU to tcb for one quantum: marks it RUNNING,
// resumes its goroutine via the switcher until it next suspends, then
// marks it Runnable again if it wasn't moved elsewhere meanwhile (e.g.
// into SLEEPING or WAITING by a syscall it made while running). Exported
// so a trap dispatcher (internal/syscall) can drive a single thread
// through its syscall body outside of the free-running loop below.
func (s *Scheduler) DispatchOnce(tcb *proc.TCB) {
	s.schedLock.Lock()
	tcb.Status = proc.Running
	s.curTCB = tcb
	s.schedLock.Unlock()

	frame := s.switcher.Resume(tcb)
	s.switcher.Suspend(tcb, frame)

	s.schedLock.Lock()
	if tcb.Status == proc.Running {
		tcb.Status = proc.Runnable
	}
	s.curTCB = nil
	s.schedLock.Unlock()
}

// Run is the dispatch loop: repeatedly pick the next runnable TCB and
// DispatchOnce it. Exits when stop is closed.
func (s *Scheduler) Run(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}
		s.DispatchOnce(s.GetNextTCB())
	}
}

// RunTicks drives Tick once per tickInterval, using clock.After in a loop
// (grounded in clockz's fake-clock-driven test pattern, §2.2) so tests
// can advance a fake clock deterministically instead of racing a real
// timer. Exits when stop is closed.
func (s *Scheduler) RunTicks(tickInterval time.Duration, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-s.clock.After(tickInterval):
			s.Tick()
		}
	}
}

// Tick increments num_ticks and drains the sleeping list (§4.H "Wakeup").
func (s *Scheduler) Tick() {
	s.schedLock.Lock()
	s.ticks++
	woken := s.pool.drainWokenSleepers(s.ticks)
	s.schedLock.Unlock()

	for _, tcb := range woken {
		tcb.Status = proc.Runnable
	}
}

// Ticks returns the current tick count (get_ticks).
func (s *Scheduler) Ticks() uint64 {
	return s.ticks
}

// --- state transitions (§4.H) ---

// Sleep transitions the current thread from RUNNING to SLEEPING for the
// given number of ticks (sleep(ticks) >= 1).
func (s *Scheduler) Sleep(tcb *proc.TCB, ticks uint64) error {
	if ticks < 1 {
		return kerrors.New("Scheduler.Sleep", kerrors.BadPointer, "ticks must be >= 1")
	}
	s.schedLock.Lock()
	if tcb.Status == proc.Sleeping {
		s.schedLock.Unlock()
		return kerrors.New("Scheduler.Sleep", kerrors.AlreadyInState, "thread is already sleeping")
	}
	tcb.WakeTime = s.ticks + ticks
	tcb.Status = proc.Sleeping
	s.pool.moveToSleeping(tcb)
	s.schedLock.Unlock()

	s.switcher.ParkSelf(tcb.Tid)
	return nil
}

// DeschedulePolicyCheck reports whether tid may be descheduled (policy
// error if already WAITING, per §7 item 3).
func (s *Scheduler) DeschedulePolicyCheck(tid int) error {
	tcb, ok := s.pool.findTCB(tid)
	if !ok {
		return kerrors.New("Scheduler.Deschedule", kerrors.NotFound, "unknown tid")
	}
	if tcb.Status == proc.Waiting {
		return kerrors.New("Scheduler.Deschedule", kerrors.AlreadyInState, "thread is already waiting")
	}
	return nil
}

// MarkZombie transitions tcb to ZOMBIE and enqueues it for the reaper,
// per vanish's final step (§4.H). It does not yield; callers that need
// vanish's "never returns" behavior call ParkSelf themselves afterward.
func (s *Scheduler) MarkZombie(tcb *proc.TCB) {
	s.schedLock.Lock()
	tcb.Status = proc.Zombie
	s.pool.removeToZombie(tcb)
	if s.curTCB == tcb {
		s.curTCB = nil
	}
	s.schedLock.Unlock()
}

// --- vanish / wait (§4.H) ---

// Vanish implements the non-reaper half of vanish: find the parent PCB
// (re-parenting to init if it's gone), decrement the thread count, and
// if this was the last thread, report (exitStatus, originalTid) to the
// parent and signal its wait semaphore. It marks the current TCB zombie
// and parks it; callers must not expect Vanish to return.
func (s *Scheduler) Vanish(tcb *proc.TCB, exitStatus int32) {
	pcb := tcb.PCB
	parent, ok := s.pool.findPCB(pcb.ParentPid)
	if !ok {
		parent = s.initPCB
		parent.IncChildren()
		s.log.WithField("orphan_pid", pcb.Pid).Info("reparented to init")
	}

	if pcb.DecThreads() {
		parent.SignalStatus(proc.ChildStatus{ExitStatus: exitStatus, OriginalTid: pcb.OriginalTid})
	}

	tcb.ExitStatus = exitStatus
	s.MarkZombie(tcb)
	s.switcher.ParkSelf(tcb.Tid)
}

// Wait implements wait: fails if the PCB has no live children, otherwise
// blocks on the PCB's child-status semaphore and returns the next report,
// decrementing the live-child count once that report is consumed.
func (s *Scheduler) Wait(pcb *proc.PCB) (proc.ChildStatus, error) {
	if pcb.LiveChildren() == 0 {
		return proc.ChildStatus{}, kerrors.New("Scheduler.Wait", kerrors.NotFound, "no children")
	}
	cs := pcb.Wait()
	pcb.DecChildren()
	return cs, nil
}

// --- ksync.Hooks ---

// CurrentTid implements ksync.Hooks.
func (s *Scheduler) CurrentTid() int {
	if s.curTCB == nil {
		return -1
	}
	return s.curTCB.Tid
}

// IsRunnable implements ksync.Hooks.
func (s *Scheduler) IsRunnable(tid int) bool {
	s.schedLock.Lock()
	defer s.schedLock.Unlock()
	return s.pool.isRunnable(tid)
}

// Yield implements ksync.Hooks: if tid >= 0 and runnable, donate the CPU
// to it by rotating it to the runnable head; either way, park the
// calling thread so the dispatch loop picks a next TCB.
func (s *Scheduler) Yield(tid int) {
	cur := s.curTCB
	if cur == nil {
		return
	}
	if tid >= 0 {
		s.schedLock.Lock()
		if s.pool.isRunnable(tid) {
			for s.pool.runnable.Front() != nil && s.pool.runnable.Front().Value.Tid != tid {
				s.pool.getNextTCB()
			}
		}
		s.schedLock.Unlock()
	}
	s.switcher.ParkSelf(cur.Tid)
}

// Deschedule implements ksync.Hooks: transitions the calling thread to
// WAITING and parks it, unless reject is already non-zero.
func (s *Scheduler) Deschedule(reject *int32) {
	cur := s.curTCB
	if cur == nil {
		return
	}
	s.schedLock.Lock()
	if *reject != 0 {
		s.schedLock.Unlock()
		return
	}
	cur.Status = proc.Waiting
	s.pool.moveTo(cur, poolWaiting)
	s.schedLock.Unlock()

	s.switcher.ParkSelf(cur.Tid)
}

// MakeRunnable implements ksync.Hooks: moves tid from WAITING/SLEEPING to
// RUNNABLE.
func (s *Scheduler) MakeRunnable(tid int) {
	s.schedLock.Lock()
	defer s.schedLock.Unlock()
	tcb, ok := s.pool.findTCB(tid)
	if !ok || tcb.Status == proc.Runnable {
		return
	}
	tcb.Status = proc.Runnable
	s.pool.moveTo(tcb, poolRunnable)
}

// Started implements ksync.Hooks.
func (s *Scheduler) Started() bool {
	return s.started
}

// --- ksync.InterruptController ---

// DisableInterrupts implements ksync.InterruptController.
func (s *Scheduler) DisableInterrupts() {
	s.interruptsEnabled = false
}

// EnableInterrupts implements ksync.InterruptController.
func (s *Scheduler) EnableInterrupts() {
	s.interruptsEnabled = true
}

// InterruptsEnabled reports the current mask state, for diagnostics.
func (s *Scheduler) InterruptsEnabled() bool {
	return s.interruptsEnabled
}

// ZombieAvailable blocks until at least one zombie is available, for the
// reaper loop (§4.K).
func (s *Scheduler) ZombieAvailable() {
	s.pool.zombieSem.Wait()
}

// PeekZombie returns the head of the zombie list without removing it.
func (s *Scheduler) PeekZombie() (*proc.TCB, bool) {
	s.schedLock.Lock()
	defer s.schedLock.Unlock()
	front := s.pool.zombie.Front()
	if front == nil {
		return nil, false
	}
	return front.Value, true
}

// ReapZombie removes tcb from the zombie list and tid index under the
// scheduler lock, and if its PCB has zero live threads, removes the PCB
// from the pid index too, returning whether the PCB should be freed.
func (s *Scheduler) ReapZombie(tcb *proc.TCB) (freePCB bool) {
	s.schedLock.Lock()
	defer s.schedLock.Unlock()
	s.pool.unlink(tcb.Tid)
	s.pool.tids.Remove(int64(tcb.Tid), nil)
	if tcb.PCB.LiveThreads() == 0 {
		s.pool.pids.Remove(int64(tcb.PCB.Pid), nil)
		return true
	}
	return false
}
