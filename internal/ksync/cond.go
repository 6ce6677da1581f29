package ksync

import "nucleus/internal/klist"

// Locker is the minimal interface CondVar.Wait needs from an external
// mutex: Lock/Unlock. *SpinMutex satisfies it.
type Locker interface {
	Lock()
	Unlock()
}

// CondVar is a condition variable: an internal SpinMutex plus a FIFO wait
// queue. Wait is atomic-unlock-and-sleep: enqueue, release the external
// mutex, release the internal mutex, then loop on the reject flag so a
// spurious wake (anything that isn't a matched Signal/Broadcast) simply
// re-enters the deschedule. Grounded on kern/locks/cond.c.
//
// The external mutex passed to Wait must never itself lock this CondVar's
// internal mutex (directly or transitively) — cond_wait in the original
// kernel unlocks the external mutex before the internal one, which is
// only correct under that restriction (§9 open question 4).
type CondVar struct {
	mu SpinMutex
	q  klist.Queue[*waiter]
}

// NewCondVar returns an initialized, empty condition variable.
func NewCondVar() *CondVar {
	return &CondVar{mu: SpinMutex{owner: -1}}
}

// Wait releases external, blocks until a matching Signal or Broadcast,
// then reacquires external before returning.
func (c *CondVar) Wait(external Locker) {
	c.mu.Lock()

	h := hooksOrNil()
	tid := -1
	if h != nil {
		tid = h.CurrentTid()
	}
	w := &waiter{tid: tid}
	c.q.Enqueue(w)

	external.Unlock()
	c.mu.Unlock()

	if h != nil {
		for w.reject == 0 {
			h.Deschedule(&w.reject)
		}
	}

	external.Lock()
}

// Signal wakes at most one waiter, if any are queued.
func (c *CondVar) Signal() {
	c.mu.Lock()
	w, ok := c.q.Dequeue()
	c.mu.Unlock()
	if !ok {
		return
	}
	w.reject = 1
	if h := hooksOrNil(); h != nil {
		h.MakeRunnable(w.tid)
	}
}

// Broadcast wakes every currently queued waiter.
func (c *CondVar) Broadcast() {
	c.mu.Lock()
	var woken []*waiter
	for {
		w, ok := c.q.Dequeue()
		if !ok {
			break
		}
		woken = append(woken, w)
	}
	c.mu.Unlock()

	h := hooksOrNil()
	for _, w := range woken {
		w.reject = 1
		if h != nil {
			h.MakeRunnable(w.tid)
		}
	}
}
