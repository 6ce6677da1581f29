package sched

import (
	"testing"

	"github.com/stretchr/testify/require"

	"nucleus/internal/proc"
)

func tcbFor(tid int) *proc.TCB {
	pcb := proc.NewPCB(tid, nil, -1, tid)
	return proc.NewTCB(tid, pcb, 1)
}

func TestPoolRoundRobinRotation(t *testing.T) {
	p := newPool()
	a, b, c := tcbFor(1), tcbFor(2), tcbFor(3)
	p.addRunnable(a)
	p.addRunnable(b)
	p.addRunnable(c)

	require.Equal(t, b, p.getNextTCB())
	require.Equal(t, c, p.getNextTCB())
	require.Equal(t, a, p.getNextTCB())
	require.Equal(t, b, p.getNextTCB())
}

func TestPoolGetNextTCBEmptyReturnsNil(t *testing.T) {
	p := newPool()
	require.Nil(t, p.getNextTCB())
}

func TestPoolGetNextTCBSingleThreadStaysHead(t *testing.T) {
	p := newPool()
	a := tcbFor(1)
	p.addRunnable(a)
	require.Equal(t, a, p.getNextTCB())
	require.Equal(t, a, p.getNextTCB())
}

func TestPoolMoveToWaitingThenMakeRunnable(t *testing.T) {
	p := newPool()
	a := tcbFor(1)
	p.addRunnable(a)
	p.moveTo(a, poolWaiting)
	require.False(t, p.isRunnable(a.Tid))
	require.Equal(t, 0, p.runnable.Len())

	p.moveTo(a, poolRunnable)
	require.True(t, p.isRunnable(a.Tid))
}

func TestPoolSleepingSortedByWakeTime(t *testing.T) {
	p := newPool()
	a, b, c := tcbFor(1), tcbFor(2), tcbFor(3)
	a.WakeTime, b.WakeTime, c.WakeTime = 100, 5, 50
	p.addRunnable(a)
	p.addRunnable(b)
	p.addRunnable(c)
	p.moveToSleeping(a)
	p.moveToSleeping(b)
	p.moveToSleeping(c)

	var order []int
	p.sleeping.Foreach(func(t *proc.TCB) { order = append(order, t.Tid) })
	require.Equal(t, []int{2, 3, 1}, order)
}

func TestPoolDrainWokenSleepersStopsAtFirstFutureWake(t *testing.T) {
	p := newPool()
	a, b, c := tcbFor(1), tcbFor(2), tcbFor(3)
	a.WakeTime, b.WakeTime, c.WakeTime = 5, 10, 50
	p.addRunnable(a)
	p.addRunnable(b)
	p.addRunnable(c)
	p.moveToSleeping(a)
	p.moveToSleeping(b)
	p.moveToSleeping(c)

	woken := p.drainWokenSleepers(10)
	require.Len(t, woken, 2)
	require.Equal(t, 1, woken[0].Tid)
	require.Equal(t, 2, woken[1].Tid)
	require.Equal(t, 1, p.sleeping.Len())
	require.True(t, p.isRunnable(1))
	require.True(t, p.isRunnable(2))
}

func TestPoolRemoveToZombieSignalsSemaphore(t *testing.T) {
	p := newPool()
	a := tcbFor(1)
	p.addRunnable(a)
	require.Equal(t, 0, p.zombieSem.Count())
	p.removeToZombie(a)
	require.Equal(t, 1, p.zombieSem.Count())
	require.Equal(t, 0, p.runnable.Len())
	require.Equal(t, 1, p.zombie.Len())
}

func TestPoolFindTCBAndPCB(t *testing.T) {
	p := newPool()
	a := tcbFor(1)
	p.addRunnable(a)
	p.addPCB(a.PCB)

	got, ok := p.findTCB(1)
	require.True(t, ok)
	require.Equal(t, a, got)

	gotPCB, ok := p.findPCB(a.PCB.Pid)
	require.True(t, ok)
	require.Equal(t, a.PCB, gotPCB)

	_, ok = p.findTCB(999)
	require.False(t, ok)
}
