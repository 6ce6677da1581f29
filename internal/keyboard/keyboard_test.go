package keyboard

import (
	"bytes"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/require"

	"nucleus/internal/console"
)

func TestKeyboardReadlineReturnsFullLine(t *testing.T) {
	color.NoColor = true
	var out bytes.Buffer
	con := console.New(&out)
	kb := New(con)

	for _, ch := range []byte("hi\n") {
		kb.Feed(ch)
	}

	line := kb.Readline(80)
	require.Equal(t, []byte("hi\n"), line)
}

func TestKeyboardReadlineTruncatesAtMaxLen(t *testing.T) {
	var out bytes.Buffer
	con := console.New(&out)
	kb := New(con)

	for _, ch := range []byte("hello\n") {
		kb.Feed(ch)
	}

	line := kb.Readline(3)
	require.Equal(t, []byte("hel"), line)
}

func TestKeyboardReadlineDoesNotDuplicateAcrossCalls(t *testing.T) {
	var out bytes.Buffer
	con := console.New(&out)
	kb := New(con)

	for _, ch := range []byte("ab\ncd\n") {
		kb.Feed(ch)
	}

	first := kb.Readline(80)
	second := kb.Readline(80)
	require.Equal(t, []byte("ab\n"), first)
	require.Equal(t, []byte("cd\n"), second)
}

func TestKeyboardEchoesOnlyWhilePending(t *testing.T) {
	color.NoColor = true
	var out bytes.Buffer
	con := console.New(&out)
	kb := New(con)

	kb.Feed('x') // no read pending yet, not echoed
	require.Equal(t, "", out.String())

	kb2 := New(con)
	kb2.pendingRead = true
	kb2.Feed('y')
	require.Contains(t, out.String(), "y")
}
