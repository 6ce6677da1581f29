package klist

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestListPushAndUnlink(t *testing.T) {
	var l List[int]
	a := l.PushBack(1)
	l.PushBack(2)
	c := l.PushBack(3)
	require.Equal(t, 3, l.Len())

	l.Unlink(a)
	require.Equal(t, 2, l.Len())
	require.Equal(t, 2, l.Front().Value)

	l.Unlink(c)
	require.Equal(t, 1, l.Len())
	require.Equal(t, l.Front(), l.Back())
}

func TestListRotateHeadToTail(t *testing.T) {
	var l List[string]
	l.PushBack("a")
	l.PushBack("b")
	l.PushBack("c")

	head := l.RotateHeadToTail()
	require.Equal(t, "b", head.Value)
	require.Equal(t, "a", l.Back().Value)

	head = l.RotateHeadToTail()
	require.Equal(t, "c", head.Value)
}

func TestListRotateSingleElement(t *testing.T) {
	var l List[int]
	l.PushBack(42)
	head := l.RotateHeadToTail()
	require.Equal(t, 42, head.Value)
	require.Equal(t, 1, l.Len())
}

func TestListRotateEmpty(t *testing.T) {
	var l List[int]
	require.Nil(t, l.RotateHeadToTail())
}

func TestListFind(t *testing.T) {
	var l List[int]
	l.PushBack(10)
	l.PushBack(20)
	l.PushBack(30)

	n := l.Find(func(v int) bool { return v == 20 })
	require.NotNil(t, n)
	require.Equal(t, 20, n.Value)

	require.Nil(t, l.Find(func(v int) bool { return v == 99 }))
}

func TestListInsertSortedMaintainsOrderAndTieBreak(t *testing.T) {
	var l List[int]
	less := func(a, b int) bool { return a < b }

	l.InsertSorted(5, less)
	l.InsertSorted(1, less)
	l.InsertSorted(3, less)
	l.InsertSorted(3, less) // tie: must land after the existing 3

	var got []int
	l.Foreach(func(v int) { got = append(got, v) })
	require.Equal(t, []int{1, 3, 3, 5}, got)
}

func TestQueueFIFO(t *testing.T) {
	var q Queue[int]
	q.Enqueue(1)
	q.Enqueue(2)
	q.Enqueue(3)

	v, ok := q.Dequeue()
	require.True(t, ok)
	require.Equal(t, 1, v)

	v, ok = q.Dequeue()
	require.True(t, ok)
	require.Equal(t, 2, v)

	require.Equal(t, 1, q.Len())
}

func TestQueueEmpty(t *testing.T) {
	var q Queue[int]
	_, ok := q.Dequeue()
	require.False(t, ok)
}

func TestStackLIFO(t *testing.T) {
	var s Stack[int]
	s.Push(1)
	s.Push(2)
	s.Push(3)

	v, ok := s.Pop()
	require.True(t, ok)
	require.Equal(t, 3, v)

	v, ok = s.Pop()
	require.True(t, ok)
	require.Equal(t, 2, v)
}
