package ctxswitch

import (
	"testing"

	"github.com/stretchr/testify/require"

	"nucleus/internal/proc"
)

// countingThread runs fn once per resume, incrementing counter each time,
// and suspends with a frame whose EAX carries the running count.
func countingThread(counter *int) func(RegisterFrame, <-chan struct{}, chan<- RegisterFrame) {
	return func(initial RegisterFrame, resumeCh <-chan struct{}, suspendCh chan<- RegisterFrame) {
		for {
			*counter++
			suspendCh <- RegisterFrame{EAX: uint32(*counter)}
			<-resumeCh
		}
	}
}

func TestResumeStartsGoroutineOnFirstCall(t *testing.T) {
	h := NewHostSwitcher()
	counter := 0
	h.Register(1, countingThread(&counter))

	tcb := &proc.TCB{Tid: 1}
	frame := h.Resume(tcb)
	require.Equal(t, uint32(1), frame.EAX)
}

func TestResumeWakesParkedGoroutine(t *testing.T) {
	h := NewHostSwitcher()
	counter := 0
	h.Register(1, countingThread(&counter))

	tcb := &proc.TCB{Tid: 1}
	first := h.Resume(tcb)
	require.Equal(t, uint32(1), first.EAX)

	second := h.Resume(tcb)
	require.Equal(t, uint32(2), second.EAX)
}

func TestSuspendRecordsLastFrameForReResume(t *testing.T) {
	h := NewHostSwitcher()
	counter := 0
	h.Register(1, countingThread(&counter))
	tcb := &proc.TCB{Tid: 1}

	frame := h.Resume(tcb)
	h.Suspend(tcb, frame)
	require.Equal(t, frame, h.slots[1].lastSuspend)
}

func TestTwoThreadsRoundRobin(t *testing.T) {
	h := NewHostSwitcher()
	var c1, c2 int
	h.Register(1, countingThread(&c1))
	h.Register(2, countingThread(&c2))

	t1 := &proc.TCB{Tid: 1}
	t2 := &proc.TCB{Tid: 2}

	f1 := h.Resume(t1)
	h.Suspend(t1, f1)
	f2 := h.Resume(t2)
	h.Suspend(t2, f2)
	f1b := h.Resume(t1)

	require.Equal(t, uint32(1), f1.EAX)
	require.Equal(t, uint32(1), f2.EAX)
	require.Equal(t, uint32(2), f1b.EAX)
}
