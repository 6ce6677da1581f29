// Package keyboard is the hosted stand-in for the out-of-scope keyboard
// driver and its IRQ-to-readline protocol (§1 Non-goals, §4.L, §6
// "Keyboard → readline protocol"). Real 8042 scancode decoding is out of
// scope; Feed takes the place of the IRQ handler's decode step, accepting
// already-decoded bytes the way a host terminal put into raw mode via
// golang.org/x/term would deliver one keystroke at a time instead of a
// line the host's own line-discipline would otherwise buffer.
package keyboard

import (
	"golang.org/x/term"

	"nucleus/internal/console"
	"nucleus/internal/klist"
	"nucleus/internal/ksync"
)

// bufCapacity bounds the circular buffer readline drains from; the
// original's circ_buf_t is similarly a fixed-size ring, not an unbounded
// queue.
const bufCapacity = 256

// Keyboard decodes fed characters into the readline protocol: printable
// characters and backspace are echoed to the console only while a read is
// pending, and each newline signals a counting semaphore whose value is
// the number of unread lines, per §6.
type Keyboard struct {
	console     *console.Console
	lineSem     *ksync.Semaphore
	buf         *klist.RingBuffer[byte]
	pendingRead bool

	rawState *term.State
}

// New returns a Keyboard that echoes pending-read input to con.
func New(con *console.Console) *Keyboard {
	return &Keyboard{
		console: con,
		lineSem: ksync.NewSemaphore(0),
		buf:     klist.NewRingBuffer[byte](bufCapacity),
	}
}

// EnableRawMode puts fd into raw mode so the host terminal delivers one
// keystroke at a time instead of buffering a line, mirroring the
// scancode-by-scancode delivery Feed otherwise expects to be driven with
// directly in tests.
func (k *Keyboard) EnableRawMode(fd int) error {
	state, err := term.MakeRaw(fd)
	if err != nil {
		return err
	}
	k.rawState = state
	return nil
}

// DisableRawMode restores the terminal state saved by EnableRawMode, if
// any.
func (k *Keyboard) DisableRawMode(fd int) error {
	if k.rawState == nil {
		return nil
	}
	return term.Restore(fd, k.rawState)
}

func isPrintable(ch byte) bool {
	return ch >= 0x20 && ch < 0x7f
}

// Feed delivers one decoded character: echoes it to the console if a
// readline is currently pending and it's printable or a backspace, then
// enqueues it and signals the line semaphore on a newline. Overflow past
// bufCapacity is dropped, matching a best-effort hosted stand-in rather
// than the original's fixed-size ring overwrite behavior.
func (k *Keyboard) Feed(ch byte) {
	if err := k.buf.Write(ch); err != nil {
		return
	}
	if k.pendingRead && (isPrintable(ch) || ch == '\b') {
		k.console.Print(string(ch))
	}
	if ch == '\n' {
		k.lineSem.Signal()
	}
}

// Readline implements readline(len, buf): blocks until a line is
// available, then drains up to maxLen bytes from the ring buffer, stopping
// after the first newline. Characters already returned are never
// re-delivered, and none are dropped between successive calls.
func (k *Keyboard) Readline(maxLen int) []byte {
	k.pendingRead = true
	k.lineSem.Wait()
	k.pendingRead = false

	out := make([]byte, 0, maxLen)
	for len(out) < maxLen {
		ch, err := k.buf.Read()
		if err != nil {
			break
		}
		out = append(out, ch)
		if ch == '\n' {
			break
		}
	}
	return out
}
