// Package console is the hosted stand-in for the out-of-scope console
// driver (§1 Non-goals, §4.L): just enough of print/set_term_color/
// get-and-set-cursor-pos to drive those syscalls end-to-end. Grounded on
// the pack's github.com/fatih/color usage (jesseduffield-lazydocker's
// utils.ColoredString/ColoredStringDirect, color.New(attr).SprintFunc())
// for set_term_color; cursor position is tracked locally rather than
// queried from a real terminal, since there is no real terminal behind
// this console in tests.
package console

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

// defaultWidth is the column count a fixed-width console wraps at when no
// real terminal geometry is available.
const defaultWidth = 80

// Console writes through a configurable color attribute to an underlying
// writer, tracking a cursor position the same way the original console
// driver advances its own row/col counters on every byte written.
type Console struct {
	out   io.Writer
	attr  color.Attribute
	row   int
	col   int
	width int
}

// New returns a Console over out with the default attribute and width.
func New(out io.Writer) *Console {
	return &Console{out: out, attr: color.Reset, width: defaultWidth}
}

// Print writes s through the current color attribute and advances the
// tracked cursor, wrapping at width and treating '\n' as a line break.
// Mirrors the print syscall.
func (c *Console) Print(s string) {
	fmt.Fprint(c.out, color.New(c.attr).Sprint(s))
	for _, r := range s {
		if r == '\n' {
			c.row++
			c.col = 0
			continue
		}
		c.col++
		if c.col >= c.width {
			c.col = 0
			c.row++
		}
	}
}

// SetTermColor installs attr as the attribute applied to subsequent
// Print calls. Mirrors set_term_color.
func (c *Console) SetTermColor(attr color.Attribute) {
	c.attr = attr
}

// SetCursorPos moves the tracked cursor. Mirrors set_cursor_pos.
func (c *Console) SetCursorPos(row, col int) error {
	if row < 0 || col < 0 {
		return errInvalidCursor
	}
	c.row, c.col = row, col
	return nil
}

// GetCursorPos reports the tracked cursor position. Mirrors
// get_cursor_pos.
func (c *Console) GetCursorPos() (row, col int) {
	return c.row, c.col
}

var errInvalidCursor = fmt.Errorf("console: row and col must be non-negative")
