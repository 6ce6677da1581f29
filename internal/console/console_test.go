package console

import (
	"bytes"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/require"
)

func TestConsolePrintAdvancesCursor(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	c := New(&buf)

	c.Print("hi")
	row, col := c.GetCursorPos()
	require.Equal(t, 0, row)
	require.Equal(t, 2, col)
	require.Equal(t, "hi", buf.String())
}

func TestConsolePrintNewlineResetsColumn(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	c := New(&buf)

	c.Print("ab\ncd")
	row, col := c.GetCursorPos()
	require.Equal(t, 1, row)
	require.Equal(t, 2, col)
}

func TestConsoleSetCursorPosRejectsNegative(t *testing.T) {
	c := New(&bytes.Buffer{})
	require.Error(t, c.SetCursorPos(-1, 0))
}

func TestConsoleSetCursorPosRoundTrips(t *testing.T) {
	c := New(&bytes.Buffer{})
	require.NoError(t, c.SetCursorPos(3, 4))
	row, col := c.GetCursorPos()
	require.Equal(t, 3, row)
	require.Equal(t, 4, col)
}

func TestConsoleSetTermColorAppliesToOutput(t *testing.T) {
	color.NoColor = false
	var buf bytes.Buffer
	c := New(&buf)
	c.SetTermColor(color.FgRed)
	c.Print("x")
	require.Contains(t, buf.String(), "x")
}
