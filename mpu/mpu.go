package mpu

import (
	"fmt"
	"strings"

	cerrors "github.com/cockroachdb/errors"
	"github.com/mpukernel/memcore/fpage"
	"github.com/mpukernel/memcore/memutils"
	"github.com/mpukernel/memcore/memutils/ktable"
)

// RegionCount is the number of regions the Cortex-M3 MPU provides
const RegionCount = 8

// Programmer writes region descriptors into the MPU. Implementations live outside this
// module; the kernel's register-level driver is one, Recorder is another.
type Programmer interface {
	// SetupRegion programs region n to cover fp. A nil fpage disables the region.
	SetupRegion(n int, fp *fpage.Fpage)
	Enable(enabled bool)
}

// SlotTable is the result of one slot assignment pass
type SlotTable struct {
	// Slots holds the fpage assigned to each MPU region, or ktable.NoHandle
	Slots [RegionCount]ktable.Handle
	// Always is the number of low slots taken by always-mapped fpages
	Always int
	// LRU has bit n set when the fpage in slot n was referenced before the pass
	LRU uint8
}

func (t SlotTable) String() string {
	var sb strings.Builder
	sb.WriteString("[")
	for n, handle := range t.Slots {
		if n > 0 {
			sb.WriteString(" ")
		}

		if handle == ktable.NoHandle {
			fmt.Fprintf(&sb, "%d:-", n)
		} else {
			fmt.Fprintf(&sb, "%d:%d", n, handle)
		}
	}
	fmt.Fprintf(&sb, "] always=%d lru=%08b", t.Always, t.LRU)
	return sb.String()
}

// Used returns the number of slots holding an fpage
func (t SlotTable) Used() int {
	used := 0
	for _, handle := range t.Slots {
		if handle != ktable.NoHandle {
			used++
		}
	}
	return used
}

// Assign walks the space's fpage chain once and decides which fpage goes into which MPU
// region. Always-mapped fpages fill slots upward from 0; demand fpages fill slots downward
// from RegionCount-1. Once the two bands meet, a referenced demand fpage replaces the first
// high-band slot whose occupant was not referenced. The LRU flag of every fpage is cleared.
//
// More always-mapped fpages than regions yields a table holding the first RegionCount of
// them along with an error matching memutils.ErrSlotCapacity.
func Assign(store *fpage.Store, space ktable.Handle) (SlotTable, error) {
	var table SlotTable
	for n := range table.Slots {
		table.Slots[n] = ktable.NoHandle
	}

	if store.Space(space) == nil {
		return table, cerrors.Wrapf(memutils.ErrInvalidHandle, "address space %d", space)
	}

	var err error
	low, high := 0, RegionCount-1
	store.Walk(space, func(handle ktable.Handle, fp *fpage.Fpage) bool {
		switch {
		case fp.IsAlways():
			if low >= RegionCount {
				if err == nil {
					err = cerrors.Wrapf(memutils.ErrSlotCapacity, "address space %d", store.Space(space).ID)
				}
				break
			}

			// Meeting the demand band evicts whatever it placed here
			table.Slots[low] = handle
			table.LRU &^= 1 << low
			low++
		case high >= low:
			table.Slots[high] = handle
			if fp.IsReferenced() {
				table.LRU |= 1 << high
			}
			high--
		case fp.IsReferenced():
			for n := low; n < RegionCount; n++ {
				if table.LRU&(1<<n) == 0 {
					table.Slots[n] = handle
					table.LRU |= 1 << n
					break
				}
			}
		}

		fp.Flags &^= fpage.FlagLRU
		return true
	})

	table.Always = low
	return table, err
}

// CheckCapacity reports whether the space's always-mapped fpages fit into the MPU
func CheckCapacity(store *fpage.Store, space ktable.Handle) error {
	as := store.Space(space)
	if as == nil {
		return cerrors.Wrapf(memutils.ErrInvalidHandle, "address space %d", space)
	}

	count := store.AlwaysCount(space)
	if count > RegionCount {
		return cerrors.Wrapf(memutils.ErrSlotCapacity, "address space %d holds %d always-mapped fpages", as.ID, count)
	}
	return nil
}

// Program disables the MPU, programs every region from the slot table and enables it again
func Program(store *fpage.Store, table SlotTable, prog Programmer) {
	prog.Enable(false)
	for n, handle := range table.Slots {
		prog.SetupRegion(n, store.Fpage(handle))
	}
	prog.Enable(true)
}
