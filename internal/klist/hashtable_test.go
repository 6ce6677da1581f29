package klist

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashTablePutGet(t *testing.T) {
	h := NewHashTable[string](8)
	h.Put(1, "one")
	h.Put(2, "two")

	v, ok := h.Get(1)
	require.True(t, ok)
	require.Equal(t, "one", v)
	require.Equal(t, 2, h.Len())
}

func TestHashTableOverwrite(t *testing.T) {
	h := NewHashTable[int](4)
	h.Put(5, 1)
	h.Put(5, 2)
	require.Equal(t, 1, h.Len())
	v, _ := h.Get(5)
	require.Equal(t, 2, v)
}

func TestHashTableRemoveNotFound(t *testing.T) {
	h := NewHashTable[int](4)
	_, err := h.Remove(1, nil)
	require.Error(t, err)
}

func TestHashTableRemoveDeferred(t *testing.T) {
	h := NewHashTable[int](4)
	h.Put(1, 100)
	rb := NewRingBuffer[int](4)

	_, err := h.Remove(1, rb)
	require.NoError(t, err)
	require.Equal(t, 0, h.Len())

	v, err := rb.Read()
	require.NoError(t, err)
	require.Equal(t, 100, v)
}

func TestHashTableNegativeKeys(t *testing.T) {
	h := NewHashTable[int](4)
	h.Put(-7, 1)
	v, ok := h.Get(-7)
	require.True(t, ok)
	require.Equal(t, 1, v)
}
