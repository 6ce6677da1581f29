// Package paging implements the two-level page directory: a top-level
// directory of 1024 entries, each optionally pointing at a second-level
// table of 1024 entries, plus the all-or-nothing batch-mapping journal and
// deep-copy-for-fork machinery. Grounded on the original kernel's
// kern/virtual_mem_mgmt/page_directory.c.
package paging

import "nucleus/internal/bitfield"

// entryFlagsBits is the width, in bits, of the flags packed into the low
// bits of every directory and table entry.
const entryFlagsBits = 12

// EntryFlags are the flags carried by a directory or table entry: the
// architectural ones the original kernel checks (present, writable, user)
// plus two non-architectural markers this abstraction adds — KernelBoundaryLow
// and KernelBoundaryHigh. These are set exactly once each by NewDirectory:
// KernelBoundaryLow on the first user-range directory entry and
// KernelBoundaryHigh on the last directory entry, bracketing the user range, so ClearUserSpace, DeepCopy, and CreateMapping can find
// that single boundary on the directory itself instead of depending on a
// compiled-in NUM_KERNEL_PDE constant. Unlike the original kernel's
// per-region start/end markers that pd_remove_pages walks to recover a
// new_pages region's length, these two bits mark only the one directory-wide
// boundary; region length recovery for remove_pages is instead handled by
// Directory.FrameRunLength, which answers the same question (how many pages
// does the run starting at this base span) directly from the owned-frame
// bookkeeping CreateMapping's caller already records (see internal/vmm).
type EntryFlags struct {
	Present            bool   `bitfield:",1"`
	Writable           bool   `bitfield:",1"`
	User               bool   `bitfield:",1"`
	KernelBoundaryLow  bool   `bitfield:",1"`
	KernelBoundaryHigh bool   `bitfield:",1"`
	Reserved           uint32 `bitfield:",7"`
}

func packFlags(f EntryFlags) uint32 {
	packed, err := bitfield.Pack(f, &bitfield.Config{NumBits: entryFlagsBits})
	if err != nil {
		// Every field width above is fixed at compile time and sums to
		// exactly entryFlagsBits; this can only fire if those tags are
		// edited inconsistently with each other.
		panic(err)
	}
	return uint32(packed)
}

func unpackFlags(packed uint32) EntryFlags {
	var f EntryFlags
	if err := bitfield.Unpack(uint64(packed&0xFFF), &f, &bitfield.Config{NumBits: entryFlagsBits}); err != nil {
		panic(err)
	}
	return f
}

// boundaryMarkerMask isolates the two non-architectural boundary bits so
// they can be preserved across operations (CreateMapping, ClearUserSpace,
// DeepCopy) that otherwise overwrite a directory entry's flags wholesale.
var boundaryMarkerMask = packFlags(EntryFlags{KernelBoundaryLow: true, KernelBoundaryHigh: true})

// encodePTE packs an already page-aligned physical frame base and flags
// into one page table entry: frame number in the high bits, flags in the
// low entryFlagsBits bits.
func encodePTE(frameBase uint32, f EntryFlags) uint32 {
	return (frameBase &^ 0xFFF) | packFlags(f)
}

func decodePTEFrame(entry uint32) uint32 {
	return entry &^ 0xFFF
}

func decodePTEFlags(entry uint32) EntryFlags {
	return unpackFlags(entry)
}

// FrameBase extracts the physical frame base packed into a raw page table
// entry, such as one returned by Directory.GetMapping.
func FrameBase(entry uint32) uint32 {
	return decodePTEFrame(entry)
}
