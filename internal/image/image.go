// Package image is the hosted stand-in for the out-of-scope ELF loader's
// backing store (§1 Non-goals, §4.L, §6 "Executable file table"): a
// static, read-only table of named byte blobs built into the kernel
// image, consulted by exec and readfile. No pack library models "an
// embedded read-only blob table keyed by program name"; this is one of
// the few pieces of the ambient stack built entirely on the standard
// library, per §4.L's "just enough of an interface-shaped, hosted
// implementation" scope.
package image

import "nucleus/internal/kerrors"

// Table is a read-only set of named images.
type Table struct {
	images map[string][]byte
}

// New returns a Table over the given name->bytes images. Callers own the
// byte slices; Table never mutates them.
func New(images map[string][]byte) *Table {
	t := &Table{images: make(map[string][]byte, len(images))}
	for name, bytes := range images {
		t.images[name] = bytes
	}
	return t
}

// Bytes returns the full contents of the named image, for exec's loader
// to parse section headers from.
func (t *Table) Bytes(name string) ([]byte, bool) {
	img, ok := t.images[name]
	return img, ok
}

// GetBytes performs a bounded copy-out of up to count bytes starting at
// offset from the named image into buf, returning the number of bytes
// actually copied (fewer than count at end-of-image). Mirrors getbytes.
func (t *Table) GetBytes(name string, offset, count int, buf []byte) (int, error) {
	img, ok := t.images[name]
	if !ok {
		return 0, kerrors.New("Table.GetBytes", kerrors.NotFound, "no such image")
	}
	if offset < 0 || offset > len(img) {
		return 0, kerrors.New("Table.GetBytes", kerrors.BadPointer, "offset out of range")
	}
	n := count
	if offset+n > len(img) {
		n = len(img) - offset
	}
	if n > len(buf) {
		n = len(buf)
	}
	if n < 0 {
		n = 0
	}
	copy(buf, img[offset:offset+n])
	return n, nil
}
