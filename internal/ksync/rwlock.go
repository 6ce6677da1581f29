package ksync

// RWMutex is a writer-preferring reader/writer lock: an internal
// SpinMutex, a CondVar, a reader count, and a writer-held flag. Readers
// block while a writer holds or is waiting... no — per the original
// kernel (and this spec's explicit resolution of §9 open question 3),
// only the writer-held flag (not pending writers) blocks new readers;
// writer preference here means a releasing writer broadcasts so other
// waiting writers are not starved by a flood of readers queued behind
// them, and a writer waits for both writer-held and count > 0. This
// matches kern's user/libthread/rwlock.c exactly (the kernel-pattern
// mirror the distilled spec calls out).
type RWMutex struct {
	mu         SpinMutex
	cv         *CondVar
	count      int
	writerHeld bool
}

// NewRWMutex returns an unlocked reader/writer lock.
func NewRWMutex() *RWMutex {
	return &RWMutex{mu: SpinMutex{owner: -1}, cv: NewCondVar()}
}

// RLock acquires the lock for reading, blocking while a writer holds it.
func (rw *RWMutex) RLock() {
	rw.mu.Lock()
	for rw.writerHeld {
		rw.cv.Wait(&rw.mu)
	}
	rw.count++
	rw.mu.Unlock()
}

// Lock acquires the lock for writing, blocking while a writer holds it or
// any readers are active.
func (rw *RWMutex) Lock() {
	rw.mu.Lock()
	for rw.writerHeld || rw.count > 0 {
		rw.cv.Wait(&rw.mu)
	}
	rw.writerHeld = true
	rw.mu.Unlock()
}

// Unlock releases either a reader or writer hold, whichever this caller
// took. A released write wakes every waiter (readers and the next writer
// race fairly on the internal mutex; the single-waiter wake below only
// applies to the last-reader-out case). A released read that drops the
// count to zero wakes a single waiter — the reader count cannot make
// further progress possible for another reader, only for a writer.
func (rw *RWMutex) Unlock() {
	rw.mu.Lock()
	switch {
	case rw.writerHeld:
		rw.writerHeld = false
		rw.cv.Broadcast()
	case rw.count > 0:
		rw.count--
		if rw.count == 0 {
			rw.cv.Signal()
		}
	}
	rw.mu.Unlock()
}

// Downgrade atomically converts a held write lock into a held read lock
// and wakes any other waiting readers.
func (rw *RWMutex) Downgrade() {
	rw.mu.Lock()
	rw.writerHeld = false
	rw.count = 1
	rw.cv.Broadcast()
	rw.mu.Unlock()
}
