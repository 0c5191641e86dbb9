package fpage

import (
	"strings"

	"github.com/mpukernel/memcore/mempool"
	"github.com/mpukernel/memcore/memutils/ktable"
)

// Flags are the transient state bits of an fpage
type Flags uint8

const (
	// FlagAlways marks an fpage that must occupy an MPU region at all times
	FlagAlways Flags = 1 << iota
	// FlagLRU marks an fpage that was referenced since the last slot assignment pass.
	// It is set by the fault path and cleared by every pass.
	FlagLRU
)

var flagsMapping = map[Flags]string{
	FlagAlways: "FlagAlways",
	FlagLRU:    "FlagLRU",
}

func (f Flags) String() string {
	if f == 0 {
		return "None"
	}

	var names []string
	for _, flag := range []Flags{FlagAlways, FlagLRU} {
		if f&flag != 0 {
			names = append(names, flagsMapping[flag])
		}
	}
	return strings.Join(names, "|")
}

// Fpage is a power-of-two sized, naturally aligned region of an address space
type Fpage struct {
	// Space is the owning address space
	Space ktable.Handle
	// AsNext is the next fpage of the owning space, in ascending base order
	AsNext ktable.Handle
	// MapNext is the next fpage produced by the same split, forming a cycle.
	// An fpage that was not split points to itself.
	MapNext ktable.Handle

	Base  uint32
	Shift uint8
	Pool  mempool.ID
	Perm  mempool.Perm
	Flags Flags
}

func (f *Fpage) Size() uint64 {
	return uint64(1) << f.Shift
}

// End returns the first address past the fpage
func (f *Fpage) End() uint64 {
	return uint64(f.Base) + f.Size()
}

func (f *Fpage) Contains(addr uint32) bool {
	return f.Base <= addr && uint64(addr) < f.End()
}

func (f *Fpage) Overlaps(other *Fpage) bool {
	return uint64(f.Base) < other.End() && uint64(other.Base) < f.End()
}

func (f *Fpage) IsAlways() bool {
	return f.Flags&FlagAlways != 0
}

func (f *Fpage) IsReferenced() bool {
	return f.Flags&FlagLRU != 0
}

// AddressSpace is the ordered collection of fpages visible to one execution context
type AddressSpace struct {
	ID uint32
	// First heads the AsNext chain
	First ktable.Handle
}
