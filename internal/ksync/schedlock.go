package ksync

import "sync/atomic"

// InterruptController is the small surface the scheduler lock needs to
// mask the timer: Disable/Enable interrupts. sched.Scheduler implements
// it by recording the masked/unmasked state in a flag; the tick driver
// does not read that flag, since a tick never forces a context switch in
// the hosted model.
type InterruptController interface {
	DisableInterrupts()
	EnableInterrupts()
}

var interruptController atomic.Pointer[InterruptController]

// SetInterruptController registers the machine's interrupt controller.
// Called once at boot, alongside SetHooks.
func SetInterruptController(ic InterruptController) {
	interruptController.Store(&ic)
}

// SchedLock is the scheduler's own lock: it disables interrupts on Lock
// and re-enables them on Unlock, but only once the scheduler has started
// (matching sched_mutex.c exactly, including the no-op-before-boot
// behavior shared with SpinMutex). It protects the thread-pool lists and
// indices (§4.G/H) — the only lock that does.
type SchedLock struct{}

// Lock disables interrupts, if the scheduler has started.
func (SchedLock) Lock() {
	if !started() {
		return
	}
	if p := interruptController.Load(); p != nil {
		(*p).DisableInterrupts()
	}
}

// Unlock re-enables interrupts, if the scheduler has started.
func (SchedLock) Unlock() {
	if !started() {
		return
	}
	if p := interruptController.Load(); p != nil {
		(*p).EnableInterrupts()
	}
}
