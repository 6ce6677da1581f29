package paging

import (
	"sync"

	"nucleus/internal/kconfig"
	"nucleus/internal/kerrors"
)

// pdeShift is the number of bits a virtual address is shifted right to
// get its page-directory index (10 bits of page-table index + 12 bits of
// in-page offset below it).
const pdeShift = kconfig.PageShift + 10

// indexMask isolates the 10-bit directory/table index fields.
const indexMask = kconfig.PageTableEntries - 1

type pageTable struct {
	entries [kconfig.PageTableEntries]uint32
}

// FrameRun records one physical frame run owned by a Directory, so it can
// be returned to the frame manager on teardown. Mirrors pd_frame_metadata_t.
type FrameRun struct {
	Base     uint32
	NumPages uint32
}

// mappingTask is one queued mapping or unmapping, applied only when a
// batch is committed. Mirrors mapping_task_t.
type mappingTask struct {
	pdeIndex int
	pteIndex int
	pte      uint32
}

// Directory is a two-level page directory. The top level is an array of
// optional pointers to second-level tables rather than a packed array of
// raw addresses — there is no meaningful flat physical address for
// host-heap-allocated page table memory the way there is for the user data
// frames a Directory maps, so only page table entries (which do point at
// real frame-manager-owned physical frames) use the packed encoding of
// entry.go. A parallel pdeFlags array carries the directory-entry-level
// flags (present/writable/user/range markers) that would otherwise have
// nowhere to live.
type Directory struct {
	tables       [kconfig.PageTableEntries]*pageTable
	pdeFlags     [kconfig.PageTableEntries]uint32
	ownedFrames  []FrameRun
	numPages     uint32
	batchEnabled bool
	journal      []mappingTask
	firstUserPDE int
}

var (
	kernelOnce     sync.Once
	kernelTables   [kconfig.PageTableEntries]*pageTable
	kernelPDEFlags [kconfig.PageTableEntries]uint32
	kernelPDECount int
)

// initKernelTemplate builds the identity-mapped kernel range once; every
// Directory shares these same second-level tables by pointer rather than
// copying them, matching pd_init_kernel/initialize_kernel's memcpy of PDE
// values that all point at the same underlying kernel page tables.
func initKernelTemplate(cfg kconfig.Config) {
	kernelOnce.Do(func() {
		kernelPDECount = int(cfg.UserMemStart >> pdeShift)
		for pdeI := 0; pdeI < kernelPDECount; pdeI++ {
			pt := &pageTable{}
			for pteI := 0; pteI < kconfig.PageTableEntries; pteI++ {
				virt := uint32(pdeI)<<pdeShift | uint32(pteI)<<kconfig.PageShift
				if virt == 0 {
					continue // leave the 0th page unmapped, as the original does
				}
				pt.entries[pteI] = encodePTE(virt, EntryFlags{Present: true, Writable: true})
			}
			kernelTables[pdeI] = pt
			kernelPDEFlags[pdeI] = packFlags(EntryFlags{Present: true, Writable: true})
		}
	})
}

// NewDirectory returns a directory with the kernel range already mapped
// (shared with every other directory) and an empty user range.
func NewDirectory(cfg kconfig.Config) *Directory {
	initKernelTemplate(cfg)
	d := &Directory{firstUserPDE: kernelPDECount}
	for i := 0; i < kernelPDECount; i++ {
		d.tables[i] = kernelTables[i]
		d.pdeFlags[i] = kernelPDEFlags[i]
	}
	if kernelPDECount < kconfig.PageTableEntries {
		d.pdeFlags[kernelPDECount] |= packFlags(EntryFlags{KernelBoundaryLow: true})
		d.pdeFlags[kconfig.PageTableEntries-1] |= packFlags(EntryFlags{KernelBoundaryHigh: true})
	}
	return d
}

func splitIndices(vAddr uint32) (pdeI, pteI int) {
	return int((vAddr >> pdeShift) & indexMask), int((vAddr >> kconfig.PageShift) & indexMask)
}

func pageAligned(addr uint32) bool {
	return addr%kconfig.PageSize == 0
}

// GetMapping returns the raw page table entry mapped at vAddr.
func (d *Directory) GetMapping(vAddr uint32) (uint32, error) {
	pdeI, pteI := splitIndices(vAddr)
	pt := d.tables[pdeI]
	if pt == nil {
		return 0, kerrors.New("Directory.GetMapping", kerrors.NotFound, "page directory entry not present")
	}
	entry := pt.entries[pteI]
	if !decodePTEFlags(entry).Present {
		return 0, kerrors.New("Directory.GetMapping", kerrors.NotFound, "page table entry not present")
	}
	return entry, nil
}

// GetPermissions reports the combined privilege/access level of vAddr: a
// mapping is user-accessible only if both the directory and table level
// entries are marked User; if so, it is writable only if both levels are
// marked Writable, otherwise (kernel-only mapping) it is always
// read/write. Mirrors pd_get_permissions.
func (d *Directory) GetPermissions(vAddr uint32) (user bool, writable bool, err error) {
	pdeI, pteI := splitIndices(vAddr)
	pt := d.tables[pdeI]
	pdeFlags := unpackFlags(d.pdeFlags[pdeI])
	if pt == nil || !pdeFlags.Present {
		return false, false, kerrors.New("Directory.GetPermissions", kerrors.NotFound, "page directory entry not present")
	}
	entry := pt.entries[pteI]
	pteFlags := decodePTEFlags(entry)
	if !pteFlags.Present {
		return false, false, kerrors.New("Directory.GetPermissions", kerrors.NotFound, "page table entry not present")
	}
	user = pdeFlags.User && pteFlags.User
	if user {
		writable = pdeFlags.Writable && pteFlags.Writable
	} else {
		writable = true
	}
	return user, writable, nil
}

// CreateMapping maps vAddr to pAddr with the given table- and
// directory-level flags, allocating a second-level table on demand. If a
// batch is in progress the write is queued in the journal instead of
// applied immediately. Mirrors pd_create_mapping.
func (d *Directory) CreateMapping(vAddr, pAddr uint32, pteFlags, pdeFlags EntryFlags) error {
	if !pageAligned(vAddr) || !pageAligned(pAddr) {
		return kerrors.New("Directory.CreateMapping", kerrors.BadPointer, "addresses must be page-aligned")
	}
	pdeI, pteI := splitIndices(vAddr)
	pt := d.tables[pdeI]
	if pt == nil {
		pt = &pageTable{}
		d.tables[pdeI] = pt
		preserved := d.pdeFlags[pdeI] & boundaryMarkerMask
		d.pdeFlags[pdeI] = packFlags(pdeFlags) | preserved
	}

	pte := encodePTE(pAddr, pteFlags)
	if d.batchEnabled {
		d.journal = append(d.journal, mappingTask{pdeIndex: pdeI, pteIndex: pteI, pte: pte})
		return nil
	}
	pt.entries[pteI] = pte
	return nil
}

// RemoveMapping clears the mapping at vAddr, or queues the clear if a
// batch is in progress. Mirrors pd_remove_mapping.
func (d *Directory) RemoveMapping(vAddr uint32) error {
	if !pageAligned(vAddr) {
		return kerrors.New("Directory.RemoveMapping", kerrors.BadPointer, "address must be page-aligned")
	}
	pdeI, pteI := splitIndices(vAddr)
	pt := d.tables[pdeI]
	if pt == nil || !decodePTEFlags(pt.entries[pteI]).Present {
		return kerrors.New("Directory.RemoveMapping", kerrors.NotFound, "mapping not present")
	}
	if d.batchEnabled {
		d.journal = append(d.journal, mappingTask{pdeIndex: pdeI, pteIndex: pteI, pte: 0})
		return nil
	}
	pt.entries[pteI] = 0
	return nil
}

// BeginBatch starts a batch: subsequent CreateMapping/RemoveMapping calls
// are journaled rather than applied. Mirrors pd_begin_mapping.
func (d *Directory) BeginBatch() error {
	if d.batchEnabled {
		return kerrors.New("Directory.BeginBatch", kerrors.AlreadyInState, "batch already in progress")
	}
	d.batchEnabled = true
	d.journal = nil
	return nil
}

// Abort discards every queued mapping task without applying it. Mirrors
// pd_abort_mapping.
func (d *Directory) Abort() {
	d.journal = nil
	d.batchEnabled = false
}

// Commit applies every queued mapping task. The caller is responsible for
// having verified every task in the batch can succeed before calling
// Commit — by construction CreateMapping/RemoveMapping only fail before
// anything is journaled, so a committed batch cannot itself fail. Mirrors
// pd_commit_mapping.
func (d *Directory) Commit() {
	for _, task := range d.journal {
		d.tables[task.pdeIndex].entries[task.pteIndex] = task.pte
	}
	d.journal = nil
	d.batchEnabled = false
}

// RecordFrame remembers that the directory now owns a physical frame run,
// for later teardown accounting. Mirrors pd_alloc_frame.
func (d *Directory) RecordFrame(base, numPages uint32) {
	d.numPages += numPages
	d.ownedFrames = append(d.ownedFrames, FrameRun{Base: base, NumPages: numPages})
}

// ForgetFrame removes a previously recorded frame run and returns its
// page count. Mirrors pd_dealloc_frame.
func (d *Directory) ForgetFrame(base uint32) (uint32, error) {
	for i, r := range d.ownedFrames {
		if r.Base == base {
			d.ownedFrames = append(d.ownedFrames[:i], d.ownedFrames[i+1:]...)
			d.numPages -= r.NumPages
			return r.NumPages, nil
		}
	}
	return 0, kerrors.New("Directory.ForgetFrame", kerrors.NotFound, "no such frame recorded")
}

// FrameRunLength reports the page count of the frame run starting exactly
// at physBase, without removing it, or false if no run is recorded there
// — the case a single-argument remove_pages(base) uses to reject a base
// that isn't the start of a new_pages region (§6).
func (d *Directory) FrameRunLength(physBase uint32) (uint32, bool) {
	for _, r := range d.ownedFrames {
		if r.Base == physBase {
			return r.NumPages, true
		}
	}
	return 0, false
}

// NumFrames returns the number of distinct frame runs currently recorded.
// Mirrors pd_num_frames.
func (d *Directory) NumFrames() int {
	return len(d.ownedFrames)
}

// DeallocAllFrames removes and returns every recorded frame run, clearing
// the directory's own bookkeeping; the caller is responsible for actually
// returning each run to the frame manager. Mirrors pd_dealloc_all_frames.
func (d *Directory) DeallocAllFrames() []FrameRun {
	out := d.ownedFrames
	d.ownedFrames = nil
	d.numPages = 0
	return out
}

// ClearUserSpace drops every second-level table in the user range,
// preserving only the non-architectural range-marker bits. Mirrors
// pd_clear_user_space.
func (d *Directory) ClearUserSpace() {
	for i := d.firstUserPDE; i < kconfig.PageTableEntries; i++ {
		d.tables[i] = nil
		d.pdeFlags[i] &= boundaryMarkerMask
	}
}

// FrameAllocator is the minimal surface DeepCopy needs to obtain a fresh
// physical frame for each copied page, satisfied by *frame.Manager. Kept
// as an interface here, rather than importing internal/frame directly, so
// that component D (internal/vmm) is the one composing B (frame) and C
// (paging) — paging itself stays one level below that seam.
type FrameAllocator interface {
	Alloc(numPages uint32) (uint32, error)
}

// PhysMem is the minimal surface DeepCopy needs to move page contents
// between two physical addresses, satisfied by *frame.Arena.
type PhysMem interface {
	Bytes(base, length uint32) []byte
}

// DeepCopy returns a new Directory sharing the same kernel range and a
// freshly copied, freshly backed user range: every present user-space
// mapping gets a new physical frame (via alloc) whose contents are copied
// from the source frame (via mem). Mirrors pd_deep_copy/pt_copy/p_copy.
//
// The original kernel's p_copy temporarily remaps the destination frame
// into the source's virtual address and flushes the TLB to populate it,
// because bare x86 has no way to touch a physical address that isn't
// currently mapped somewhere. The hosted arena backing PhysMem is already
// byte-addressable host memory, so that remap-and-flush dance has nothing
// to work around here; DeepCopy copies frame to frame directly.
func (d *Directory) DeepCopy(alloc FrameAllocator, mem PhysMem) (*Directory, error) {
	dst := &Directory{firstUserPDE: d.firstUserPDE}
	for i := 0; i < d.firstUserPDE; i++ {
		dst.tables[i] = d.tables[i]
		dst.pdeFlags[i] = d.pdeFlags[i]
	}
	for i := d.firstUserPDE; i < kconfig.PageTableEntries; i++ {
		dst.pdeFlags[i] = d.pdeFlags[i] & boundaryMarkerMask
	}

	for pdeI := d.firstUserPDE; pdeI < kconfig.PageTableEntries; pdeI++ {
		src := d.tables[pdeI]
		if src == nil {
			continue
		}
		dstPT := &pageTable{}
		for pteI := 0; pteI < kconfig.PageTableEntries; pteI++ {
			entry := src.entries[pteI]
			flags := decodePTEFlags(entry)
			if !flags.Present {
				continue
			}
			newBase, err := alloc.Alloc(1)
			if err != nil {
				return nil, err
			}
			dst.RecordFrame(newBase, 1)
			copy(mem.Bytes(newBase, kconfig.PageSize), mem.Bytes(decodePTEFrame(entry), kconfig.PageSize))
			dstPT.entries[pteI] = encodePTE(newBase, flags)
		}
		dst.tables[pdeI] = dstPT
		dst.pdeFlags[pdeI] = d.pdeFlags[pdeI]
	}
	return dst, nil
}
