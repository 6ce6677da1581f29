package ksync

import "nucleus/internal/klist"

// waiter is the record enqueued by a thread blocked on a Semaphore or
// CondVar: its tid (so a signaler can make it runnable) and a reject flag
// that closes the unlock-then-block race (§4.E).
type waiter struct {
	tid    int
	reject int32
}

// Semaphore is a counting semaphore: a count, an internal SpinMutex, and
// a FIFO wait queue of waiter records. Grounded on kern/locks/sem.c.
type Semaphore struct {
	mu    SpinMutex
	count int
	q     klist.Queue[*waiter]
}

// NewSemaphore returns a semaphore initialized to count.
func NewSemaphore(count int) *Semaphore {
	return &Semaphore{mu: SpinMutex{owner: -1}, count: count}
}

// Wait decrements the count; if the result is negative the calling thread
// enqueues itself and deschedules until a matching Signal. Loops on the
// reject flag, same as CondVar.Wait, so a stray make_runnable racing the
// matching Signal (anything that isn't a matched Signal) simply re-enters
// the deschedule instead of returning with the waiter still queued.
func (s *Semaphore) Wait() {
	s.mu.Lock()
	s.count--
	if s.count < 0 {
		h := hooksOrNil()
		tid := -1
		if h != nil {
			tid = h.CurrentTid()
		}
		w := &waiter{tid: tid}
		s.q.Enqueue(w)
		s.mu.Unlock()
		if h != nil {
			for w.reject == 0 {
				h.Deschedule(&w.reject)
			}
		}
		return
	}
	s.mu.Unlock()
}

// Signal increments the count; if the result is <= 0 a waiter is present
// and is woken.
func (s *Semaphore) Signal() {
	s.mu.Lock()
	s.count++
	if s.count <= 0 {
		w, ok := s.q.Dequeue()
		s.mu.Unlock()
		if ok {
			w.reject = 1
			if h := hooksOrNil(); h != nil {
				h.MakeRunnable(w.tid)
			}
		}
		return
	}
	s.mu.Unlock()
}

// Count returns the current counter value, for diagnostics/tests only.
func (s *Semaphore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}
