package klist

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRingBufferWriteReadOrder(t *testing.T) {
	rb := NewRingBuffer[int](4)
	require.NoError(t, rb.Write(1))
	require.NoError(t, rb.Write(2))

	v, err := rb.Read()
	require.NoError(t, err)
	require.Equal(t, 1, v)

	v, err = rb.Read()
	require.NoError(t, err)
	require.Equal(t, 2, v)
}

func TestRingBufferFullFails(t *testing.T) {
	rb := NewRingBuffer[int](3) // holds at most 2 items
	require.NoError(t, rb.Write(1))
	require.NoError(t, rb.Write(2))
	require.Error(t, rb.Write(3))
}

func TestRingBufferEmptyFails(t *testing.T) {
	rb := NewRingBuffer[int](3)
	_, err := rb.Read()
	require.Error(t, err)
}

func TestRingBufferDrainAll(t *testing.T) {
	rb := NewRingBuffer[int](8)
	for i := 0; i < 5; i++ {
		require.NoError(t, rb.Write(i))
	}
	var drained []int
	rb.DrainAll(func(v int) { drained = append(drained, v) })
	require.Equal(t, []int{0, 1, 2, 3, 4}, drained)
	require.True(t, rb.Empty())
}
