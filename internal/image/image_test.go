package image

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTableGetBytesCopiesRequestedRange(t *testing.T) {
	tab := New(map[string][]byte{"hello": []byte("hello world")})

	buf := make([]byte, 5)
	n, err := tab.GetBytes("hello", 6, 5, buf)
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.Equal(t, "world", string(buf))
}

func TestTableGetBytesTruncatesAtEndOfImage(t *testing.T) {
	tab := New(map[string][]byte{"hi": []byte("hi")})

	buf := make([]byte, 10)
	n, err := tab.GetBytes("hi", 0, 10, buf)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, "hi", string(buf[:n]))
}

func TestTableGetBytesUnknownImage(t *testing.T) {
	tab := New(map[string][]byte{})
	_, err := tab.GetBytes("missing", 0, 1, make([]byte, 1))
	require.Error(t, err)
}

func TestTableGetBytesOffsetOutOfRange(t *testing.T) {
	tab := New(map[string][]byte{"x": []byte("abc")})
	_, err := tab.GetBytes("x", 10, 1, make([]byte, 1))
	require.Error(t, err)
}

func TestTableBytesReturnsFullImage(t *testing.T) {
	tab := New(map[string][]byte{"x": []byte("abc")})
	b, ok := tab.Bytes("x")
	require.True(t, ok)
	require.Equal(t, "abc", string(b))
}
