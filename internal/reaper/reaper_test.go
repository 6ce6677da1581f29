package reaper

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"nucleus/internal/proc"
)

// fakeScheduler is a minimal zombie queue driven directly by the test,
// using a plain channel (rather than internal/ksync.Semaphore, which only
// actually blocks once a real scheduler has registered itself as
// ksync.Hooks) so ZombieAvailable genuinely blocks the reaper goroutine
// between pushes here.
type fakeScheduler struct {
	available chan struct{}
	zombies   []*proc.TCB
	reaped    []int
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{available: make(chan struct{}, 64)}
}

func (f *fakeScheduler) push(tcb *proc.TCB) {
	f.zombies = append(f.zombies, tcb)
	f.available <- struct{}{}
}

func (f *fakeScheduler) ZombieAvailable() { <-f.available }

func (f *fakeScheduler) PeekZombie() (*proc.TCB, bool) {
	if len(f.zombies) == 0 {
		return nil, false
	}
	return f.zombies[0], true
}

func (f *fakeScheduler) ReapZombie(tcb *proc.TCB) bool {
	f.zombies = f.zombies[1:]
	f.reaped = append(f.reaped, tcb.Tid)
	return true
}

func tcbFor(tid int) *proc.TCB {
	pcb := proc.NewPCB(tid, nil, -1, tid)
	return proc.NewTCB(tid, pcb, 1)
}

func TestReaperReapsInArrivalOrder(t *testing.T) {
	fs := newFakeScheduler()
	fs.push(tcbFor(1))
	fs.push(tcbFor(2))

	var order []int
	done := make(chan struct{})
	r := New(fs, func(tid int) {
		order = append(order, tid)
		if len(order) == 2 {
			close(done)
		}
	})

	stop := make(chan struct{})
	go r.Run(stop)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reaper did not reap both zombies in time")
	}
	close(stop)

	require.Equal(t, []int{1, 2}, order)
	require.Equal(t, []int{1, 2}, fs.reaped)
}

func TestReaperStopsOnSignal(t *testing.T) {
	fs := newFakeScheduler()
	r := New(fs, nil)

	stop := make(chan struct{})
	runExited := make(chan struct{})
	go func() {
		r.Run(stop)
		close(runExited)
	}()

	close(stop)
	fs.push(tcbFor(1)) // wake ZombieAvailable so Run can observe stop

	select {
	case <-runExited:
	case <-time.After(time.Second):
		t.Fatal("reaper did not stop after stop was closed")
	}
}
