package proc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"nucleus/internal/kconfig"
)

func TestNewTCBAllocatesKernelStack(t *testing.T) {
	pcb := NewPCB(1, nil, 0, 1)
	tcb := NewTCB(1, pcb, kconfig.KernelStackPages)
	require.Equal(t, kconfig.PageSize, len(tcb.KernelStack))
	require.Equal(t, Runnable, tcb.Status)
}

func TestPCBThreadCountReachesZero(t *testing.T) {
	pcb := NewPCB(1, nil, 0, 1)
	require.Equal(t, 1, pcb.LiveThreads())
	pcb.IncThreads()
	require.Equal(t, 2, pcb.LiveThreads())

	require.False(t, pcb.DecThreads())
	require.True(t, pcb.DecThreads())
	require.Equal(t, 0, pcb.LiveThreads())
}

func TestPCBChildCount(t *testing.T) {
	pcb := NewPCB(1, nil, 0, 1)
	pcb.IncChildren()
	pcb.IncChildren()
	require.Equal(t, 2, pcb.LiveChildren())
	pcb.DecChildren()
	require.Equal(t, 1, pcb.LiveChildren())
}

func TestPCBSignalAndWait(t *testing.T) {
	pcb := NewPCB(1, nil, 0, 1)
	pcb.SignalStatus(ChildStatus{ExitStatus: 42, OriginalTid: 7})
	cs := pcb.Wait()
	require.Equal(t, int32(42), cs.ExitStatus)
	require.Equal(t, 7, cs.OriginalTid)
}

func TestPCBSignalAndWaitFIFOOrder(t *testing.T) {
	pcb := NewPCB(1, nil, 0, 1)
	pcb.SignalStatus(ChildStatus{ExitStatus: 1, OriginalTid: 1})
	pcb.SignalStatus(ChildStatus{ExitStatus: 2, OriginalTid: 2})

	first := pcb.Wait()
	second := pcb.Wait()
	require.Equal(t, int32(1), first.ExitStatus)
	require.Equal(t, int32(2), second.ExitStatus)
}
