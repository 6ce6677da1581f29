// Package vmm is the facade component D of the virtual-memory subsystem:
// it composes the buddy-allocator frame manager (internal/frame) with the
// two-level page directory (internal/paging) into the handful of
// operations the rest of the kernel actually calls — mapping an image's
// sections, granting/revoking a new_pages-style anonymous region, deep
// copying an address space for fork, and tearing one down.
package vmm

import (
	"nucleus/internal/frame"
	"nucleus/internal/kconfig"
	"nucleus/internal/kerrors"
	"nucleus/internal/paging"
)

// Section is an immutable descriptor for one piece of an executable image
// to be mapped into a fresh address space: where, how much, with what
// permissions at each level, and optionally what initial bytes to copy in
// (the remainder of the region is zero-filled).
type Section struct {
	VAddrStart uint32
	Length     uint32
	PTEFlags   paging.EntryFlags
	PDEFlags   paging.EntryFlags
	Source     []byte
}

// VMM composes a frame manager and its backing arena with kconfig's page
// size to implement §4.D.
type VMM struct {
	frames *frame.Manager
	arena  *frame.Arena
}

// New returns a VMM over the given frame manager and arena. Both must
// already be constructed from the same kconfig.Config.
func New(frames *frame.Manager, arena *frame.Arena) *VMM {
	return &VMM{frames: frames, arena: arena}
}

func numPagesFor(length uint32) uint32 {
	return (length + kconfig.PageSize - 1) / kconfig.PageSize
}

func pageAligned(addr uint32) bool {
	return addr%kconfig.PageSize == 0
}

// MapSections maps every section into dir, all-or-nothing: if any section
// fails (misaligned address, memory exhaustion), every mapping and frame
// allocated by this call is rolled back and dir is left exactly as it was
// found. Mirrors the loader's use of pd_begin_mapping/commit/abort across
// a whole program image.
func (v *VMM) MapSections(dir *paging.Directory, sections []Section) error {
	if err := dir.BeginBatch(); err != nil {
		return err
	}

	var allocated []uint32
	rollback := func() {
		dir.Abort()
		for _, base := range allocated {
			dir.ForgetFrame(base) //nolint:errcheck // best-effort; base may not have been recorded yet
			v.frames.Dealloc(base)
		}
	}

	for _, sec := range sections {
		if !pageAligned(sec.VAddrStart) {
			rollback()
			return kerrors.New("VMM.MapSections", kerrors.BadPointer, "section start must be page-aligned")
		}
		numPages := numPagesFor(sec.Length)
		if numPages == 0 {
			continue
		}

		base, err := v.frames.Alloc(numPages)
		if err != nil {
			rollback()
			return err
		}
		allocated = append(allocated, base)

		v.arena.Zero(base, numPages*kconfig.PageSize)
		if len(sec.Source) > 0 {
			copy(v.arena.Bytes(base, uint32(len(sec.Source))), sec.Source)
		}

		for p := uint32(0); p < numPages; p++ {
			vAddr := sec.VAddrStart + p*kconfig.PageSize
			pAddr := base + p*kconfig.PageSize
			if err := dir.CreateMapping(vAddr, pAddr, sec.PTEFlags, sec.PDEFlags); err != nil {
				rollback()
				return err
			}
		}
		dir.RecordFrame(base, numPages)
	}

	dir.Commit()
	return nil
}

// NewUserPage grants a fresh, zero-filled, page-aligned anonymous region
// of the given length, failing if any page in the region is already
// mapped. Mirrors the new_pages syscall's use of the frame manager and
// page directory together.
func (v *VMM) NewUserPage(dir *paging.Directory, vAddr, length uint32) error {
	if !pageAligned(vAddr) || length == 0 || length%kconfig.PageSize != 0 {
		return kerrors.New("VMM.NewUserPage", kerrors.BadPointer, "region must be page-aligned and a whole number of pages")
	}
	numPages := length / kconfig.PageSize

	for p := uint32(0); p < numPages; p++ {
		if _, err := dir.GetMapping(vAddr + p*kconfig.PageSize); err == nil {
			return kerrors.New("VMM.NewUserPage", kerrors.Overlap, "region overlaps an existing mapping")
		}
	}

	base, err := v.frames.Alloc(numPages)
	if err != nil {
		return err
	}
	v.arena.Zero(base, numPages*kconfig.PageSize)

	if err := dir.BeginBatch(); err != nil {
		v.frames.Dealloc(base)
		return err
	}
	userFlags := paging.EntryFlags{Present: true, Writable: true, User: true}
	for p := uint32(0); p < numPages; p++ {
		vPage := vAddr + p*kconfig.PageSize
		pPage := base + p*kconfig.PageSize
		if err := dir.CreateMapping(vPage, pPage, userFlags, userFlags); err != nil {
			dir.Abort()
			v.frames.Dealloc(base)
			return err
		}
	}
	dir.Commit()
	dir.RecordFrame(base, numPages)
	return nil
}

// RemoveUserPage revokes a region previously granted by NewUserPage,
// unmapping every page and returning the backing frame run to the frame
// manager. Mirrors the remove_pages syscall.
func (v *VMM) RemoveUserPage(dir *paging.Directory, vAddr, length uint32) error {
	if !pageAligned(vAddr) || length == 0 || length%kconfig.PageSize != 0 {
		return kerrors.New("VMM.RemoveUserPage", kerrors.BadPointer, "region must be page-aligned and a whole number of pages")
	}
	numPages := length / kconfig.PageSize

	entry, err := dir.GetMapping(vAddr)
	if err != nil {
		return err
	}
	base := paging.FrameBase(entry)

	for p := uint32(0); p < numPages; p++ {
		if err := dir.RemoveMapping(vAddr + p*kconfig.PageSize); err != nil {
			return err
		}
	}
	if _, err := dir.ForgetFrame(base); err != nil {
		return err
	}
	return v.frames.Dealloc(base)
}

// DeepCopy returns a fresh address space with the same kernel range and a
// copy-on-fork of dir's user range, each user page backed by its own new
// physical frame. Mirrors the fork syscall's use of pd_deep_copy.
func (v *VMM) DeepCopy(dir *paging.Directory) (*paging.Directory, error) {
	return dir.DeepCopy(v.frames, v.arena)
}

// ClearUserSpace tears down every user mapping in dir and returns every
// backing frame run to the frame manager. Mirrors vanish's use of
// pd_dealloc_all_frames followed by pd_clear_user_space.
func (v *VMM) ClearUserSpace(dir *paging.Directory) error {
	runs := dir.DeallocAllFrames()
	dir.ClearUserSpace()

	var firstErr error
	for _, r := range runs {
		if err := v.frames.Dealloc(r.Base); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
