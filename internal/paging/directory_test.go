package paging

import (
	"testing"

	"github.com/stretchr/testify/require"

	"nucleus/internal/kconfig"
)

// fakeFrames is a trivial bump allocator + byte arena standing in for
// frame.Manager/frame.Arena in tests that don't need the real buddy
// allocator, only something that hands out distinct page-aligned bases.
type fakeFrames struct {
	next uint32
	mem  map[uint32][]byte
}

func newFakeFrames() *fakeFrames {
	return &fakeFrames{next: 0x02000000, mem: map[uint32][]byte{}}
}

func (f *fakeFrames) Alloc(numPages uint32) (uint32, error) {
	base := f.next
	f.next += numPages * kconfig.PageSize
	f.mem[base] = make([]byte, numPages*kconfig.PageSize)
	return base, nil
}

func (f *fakeFrames) Bytes(base, length uint32) []byte {
	buf, ok := f.mem[base]
	if !ok {
		buf = make([]byte, length)
		f.mem[base] = buf
	}
	return buf[:length]
}

func TestDirectoryKernelRangeMappedIdentity(t *testing.T) {
	cfg := kconfig.Default()
	d := NewDirectory(cfg)

	entry, err := d.GetMapping(kconfig.PageSize)
	require.NoError(t, err)
	require.Equal(t, uint32(kconfig.PageSize), decodePTEFrame(entry))
}

func TestDirectoryZeroPageUnmapped(t *testing.T) {
	d := NewDirectory(kconfig.Default())
	_, err := d.GetMapping(0)
	require.Error(t, err)
}

func TestDirectoryCreateAndRemoveMapping(t *testing.T) {
	d := NewDirectory(kconfig.Default())
	vAddr := kconfig.Default().UserMemStart
	pAddr := uint32(0x02000000)

	require.NoError(t, d.CreateMapping(vAddr, pAddr, EntryFlags{Present: true, Writable: true, User: true}, EntryFlags{Present: true, Writable: true, User: true}))

	entry, err := d.GetMapping(vAddr)
	require.NoError(t, err)
	require.Equal(t, pAddr, decodePTEFrame(entry))

	require.NoError(t, d.RemoveMapping(vAddr))
	_, err = d.GetMapping(vAddr)
	require.Error(t, err)
}

func TestDirectoryCreateMappingRejectsUnaligned(t *testing.T) {
	d := NewDirectory(kconfig.Default())
	err := d.CreateMapping(1, 0x02000000, EntryFlags{Present: true}, EntryFlags{Present: true})
	require.Error(t, err)
}

func TestDirectoryGetPermissionsCombinesLevels(t *testing.T) {
	d := NewDirectory(kconfig.Default())
	vAddr := kconfig.Default().UserMemStart

	require.NoError(t, d.CreateMapping(vAddr, 0x02000000, EntryFlags{Present: true, Writable: false, User: true}, EntryFlags{Present: true, Writable: true, User: true}))
	user, writable, err := d.GetPermissions(vAddr)
	require.NoError(t, err)
	require.True(t, user)
	require.False(t, writable) // table-level Writable=false pulls the combined access down

	entry, err := d.GetMapping(kconfig.PageSize) // a kernel page
	require.NoError(t, err)
	require.True(t, decodePTEFlags(entry).Present)
	kUser, kWritable, err := d.GetPermissions(kconfig.PageSize)
	require.NoError(t, err)
	require.False(t, kUser)
	require.True(t, kWritable) // non-user mappings are always read/write
}

func TestDirectoryBatchCommitAppliesAll(t *testing.T) {
	d := NewDirectory(kconfig.Default())
	base := kconfig.Default().UserMemStart

	require.NoError(t, d.BeginBatch())
	require.NoError(t, d.CreateMapping(base, 0x02000000, EntryFlags{Present: true}, EntryFlags{Present: true}))
	require.NoError(t, d.CreateMapping(base+kconfig.PageSize, 0x02001000, EntryFlags{Present: true}, EntryFlags{Present: true}))

	// Not yet visible: nothing has been committed.
	_, err := d.GetMapping(base)
	require.Error(t, err)

	d.Commit()

	_, err = d.GetMapping(base)
	require.NoError(t, err)
	_, err = d.GetMapping(base + kconfig.PageSize)
	require.NoError(t, err)
}

func TestDirectoryBatchAbortDiscardsAll(t *testing.T) {
	d := NewDirectory(kconfig.Default())
	base := kconfig.Default().UserMemStart

	require.NoError(t, d.BeginBatch())
	require.NoError(t, d.CreateMapping(base, 0x02000000, EntryFlags{Present: true}, EntryFlags{Present: true}))
	d.Abort()

	_, err := d.GetMapping(base)
	require.Error(t, err)
	require.False(t, d.batchEnabled)
}

func TestDirectoryBeginBatchTwiceFails(t *testing.T) {
	d := NewDirectory(kconfig.Default())
	require.NoError(t, d.BeginBatch())
	require.Error(t, d.BeginBatch())
}

func TestDirectoryFrameBookkeeping(t *testing.T) {
	d := NewDirectory(kconfig.Default())
	d.RecordFrame(0x02000000, 4)
	require.Equal(t, 1, d.NumFrames())

	n, err := d.ForgetFrame(0x02000000)
	require.NoError(t, err)
	require.Equal(t, uint32(4), n)
	require.Equal(t, 0, d.NumFrames())

	_, err = d.ForgetFrame(0x02000000)
	require.Error(t, err)
}

func TestDirectoryClearUserSpaceDropsOnlyUserRange(t *testing.T) {
	cfg := kconfig.Default()
	d := NewDirectory(cfg)
	vAddr := cfg.UserMemStart

	require.NoError(t, d.CreateMapping(vAddr, 0x02000000, EntryFlags{Present: true}, EntryFlags{Present: true}))
	d.ClearUserSpace()

	_, err := d.GetMapping(vAddr)
	require.Error(t, err)

	// Kernel range untouched.
	_, err = d.GetMapping(kconfig.PageSize)
	require.NoError(t, err)
}

func TestDirectoryDeepCopyDuplicatesUserMappingsWithFreshFrames(t *testing.T) {
	cfg := kconfig.Default()
	src := NewDirectory(cfg)
	vAddr := cfg.UserMemStart

	frames := newFakeFrames()
	srcBase, err := frames.Alloc(1)
	require.NoError(t, err)
	copy(frames.Bytes(srcBase, kconfig.PageSize), []byte("hello kernel"))

	require.NoError(t, src.CreateMapping(vAddr, srcBase, EntryFlags{Present: true, Writable: true, User: true}, EntryFlags{Present: true, Writable: true, User: true}))

	dst, err := src.DeepCopy(frames, frames)
	require.NoError(t, err)

	dstEntry, err := dst.GetMapping(vAddr)
	require.NoError(t, err)
	dstBase := decodePTEFrame(dstEntry)
	require.NotEqual(t, srcBase, dstBase)
	require.Equal(t, frames.Bytes(srcBase, kconfig.PageSize), frames.Bytes(dstBase, kconfig.PageSize))

	// Kernel range is shared by pointer, not copied.
	srcKernelEntry, err := src.GetMapping(kconfig.PageSize)
	require.NoError(t, err)
	dstKernelEntry, err := dst.GetMapping(kconfig.PageSize)
	require.NoError(t, err)
	require.Equal(t, srcKernelEntry, dstKernelEntry)
}
