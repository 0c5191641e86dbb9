package fpage

import (
	cerrors "github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/mpukernel/memcore/mempool"
	"github.com/mpukernel/memcore/memutils"
	"github.com/mpukernel/memcore/memutils/ktable"
	"github.com/pkg/errors"
)

// Store holds every address space and fpage in two fixed-capacity tables. Objects are
// referred to by their table handles; links between them are handles as well.
type Store struct {
	spaces *ktable.Table[AddressSpace]
	fpages *ktable.Table[Fpage]
}

func NewStore(maxSpaces, maxFpages int) *Store {
	return &Store{
		spaces: ktable.New[AddressSpace]("as_table", maxSpaces),
		fpages: ktable.New[Fpage]("fpage_table", maxFpages),
	}
}

// Init empties both tables. It must be called once before the store is used.
func (s *Store) Init() {
	s.spaces.Init()
	s.fpages.Init()
}

// NewSpace allocates an empty address space
func (s *Store) NewSpace(id uint32) (ktable.Handle, error) {
	handle, space, err := s.spaces.Alloc()
	if err != nil {
		return ktable.NoHandle, err
	}

	space.ID = id
	space.First = ktable.NoHandle
	return handle, nil
}

// Space returns the live address space identified by handle, or nil
func (s *Store) Space(handle ktable.Handle) *AddressSpace {
	if !s.spaces.IsAllocated(handle) {
		return nil
	}
	return s.spaces.Get(handle)
}

// Fpage returns the live fpage identified by handle, or nil
func (s *Store) Fpage(handle ktable.Handle) *Fpage {
	if !s.fpages.IsAllocated(handle) {
		return nil
	}
	return s.fpages.Get(handle)
}

// NewFpage allocates an fpage owned by space. The fpage is not linked into the space's chain
// and forms a mapping group of its own.
func (s *Store) NewFpage(space ktable.Handle, pool mempool.ID, base uint32, shift uint8, perm mempool.Perm, flags Flags) (ktable.Handle, error) {
	handle, fp, err := s.fpages.Alloc()
	if err != nil {
		return ktable.NoHandle, err
	}

	fp.Space = space
	fp.AsNext = ktable.NoHandle
	fp.MapNext = handle
	fp.Base = base
	fp.Shift = shift
	fp.Pool = pool
	fp.Perm = perm
	fp.Flags = flags

	return handle, nil
}

// FreeChain releases every fpage reachable through AsNext from first. The chain must not
// be linked into an address space.
func (s *Store) FreeChain(first ktable.Handle) {
	for handle := first; handle != ktable.NoHandle; {
		fp := s.Fpage(handle)
		if fp == nil {
			memutils.DebugAssert(false, "fpage chain links to dead fpage %d", handle)
			return
		}

		next := fp.AsNext
		s.fpages.Free(handle)
		handle = next
	}
}

// FreeSpace releases an address space together with its fpage chain
func (s *Store) FreeSpace(space ktable.Handle) error {
	as := s.Space(space)
	if as == nil {
		return cerrors.Wrapf(memutils.ErrInvalidHandle, "address space %d", space)
	}

	s.FreeChain(as.First)
	as.First = ktable.NoHandle
	s.spaces.Free(space)
	return nil
}

// LinkMapGroup joins the provided fpages into a single MapNext cycle, in slice order
func (s *Store) LinkMapGroup(handles []ktable.Handle) {
	for i, handle := range handles {
		s.fpages.Get(handle).MapNext = handles[(i+1)%len(handles)]
	}
}

// MapGroup returns the fpages of the mapping group that fp belongs to, starting at fp
func (s *Store) MapGroup(fp ktable.Handle) []ktable.Handle {
	if s.Fpage(fp) == nil {
		return nil
	}

	group := []ktable.Handle{fp}
	for next := s.fpages.Get(fp).MapNext; next != fp && next != ktable.NoHandle; next = s.fpages.Get(next).MapNext {
		group = append(group, next)
		if len(group) > s.fpages.Len() {
			memutils.DebugAssert(false, "mapping group of fpage %d does not cycle back", fp)
			break
		}
	}
	return group
}

// InsertChain merges the chain [first..last], already linked through AsNext in ascending
// base order, into the space's chain. The incoming chain is spliced as one unit in front of
// the first existing fpage whose base is not smaller than first's base. A chain that would
// overlap its neighbours returns an error matching memutils.ErrOverlap and leaves the space
// unchanged.
func (s *Store) InsertChain(space, first, last ktable.Handle) error {
	as := s.Space(space)
	if as == nil {
		return cerrors.Wrapf(memutils.ErrInvalidHandle, "address space %d", space)
	}

	head, tail := s.Fpage(first), s.Fpage(last)
	if head == nil || tail == nil {
		return cerrors.Wrapf(memutils.ErrInvalidHandle, "fpage chain [%d..%d]", first, last)
	}

	if head.Space != space || tail.Space != space {
		return cerrors.Wrapf(memutils.ErrInvalidHandle, "fpage chain [%d..%d] belongs to another address space", first, last)
	}

	prev, next := ktable.NoHandle, as.First
	for next != ktable.NoHandle && s.fpages.Get(next).Base < head.Base {
		prev = next
		next = s.fpages.Get(next).AsNext
	}

	if prev != ktable.NoHandle && s.fpages.Get(prev).End() > uint64(head.Base) {
		return s.overlapError(as, head, tail, prev)
	}
	if next != ktable.NoHandle && uint64(s.fpages.Get(next).Base) < tail.End() {
		return s.overlapError(as, head, tail, next)
	}

	tail.AsNext = next
	if prev == ktable.NoHandle {
		as.First = first
	} else {
		s.fpages.Get(prev).AsNext = first
	}

	memutils.DebugValidate(memutils.ValidateFunc(func() error {
		return s.Validate(space)
	}))
	return nil
}

func (s *Store) overlapError(as *AddressSpace, head, tail *Fpage, existing ktable.Handle) error {
	fp := s.fpages.Get(existing)
	return cerrors.Wrapf(memutils.ErrOverlap, "fpage chain [%#x, %#x) overlaps fpage %d [%#x, %#x) in address space %d",
		head.Base, tail.End(), existing, fp.Base, fp.End(), as.ID)
}

// InsertSingle merges one fpage into the space's chain
func (s *Store) InsertSingle(space, fp ktable.Handle) error {
	return s.InsertChain(space, fp, fp)
}

// Walk calls fn for each fpage of the space in ascending base order until fn returns false
func (s *Store) Walk(space ktable.Handle, fn func(handle ktable.Handle, fp *Fpage) bool) {
	as := s.Space(space)
	if as == nil {
		return
	}

	for handle := as.First; handle != ktable.NoHandle; {
		fp := s.fpages.Get(handle)
		next := fp.AsNext
		if !fn(handle, fp) {
			return
		}
		handle = next
	}
}

// Find returns the fpage of the space that contains addr
func (s *Store) Find(space ktable.Handle, addr uint32) (ktable.Handle, bool) {
	found := ktable.NoHandle
	s.Walk(space, func(handle ktable.Handle, fp *Fpage) bool {
		if fp.Contains(addr) {
			found = handle
			return false
		}
		return fp.Base <= addr
	})
	return found, found != ktable.NoHandle
}

// AlwaysCount returns the number of always-mapped fpages in the space
func (s *Store) AlwaysCount(space ktable.Handle) int {
	count := 0
	s.Walk(space, func(_ ktable.Handle, fp *Fpage) bool {
		if fp.IsAlways() {
			count++
		}
		return true
	})
	return count
}

// Validate checks the chain of one space: every link is live and owned by the space, bases
// never decrease and no two fpages overlap.
func (s *Store) Validate(space ktable.Handle) error {
	as := s.Space(space)
	if as == nil {
		return errors.Errorf("address space %d is not allocated", space)
	}

	var prev *Fpage
	count := 0
	for handle := as.First; handle != ktable.NoHandle; {
		fp := s.Fpage(handle)
		if fp == nil {
			return errors.Errorf("address space %d links to fpage %d, which is not allocated", as.ID, handle)
		}

		if fp.Space != space {
			return errors.Errorf("fpage %d in the chain of address space %d is owned by space handle %d", handle, as.ID, fp.Space)
		}

		if prev != nil {
			if fp.Base < prev.Base {
				return errors.Errorf("fpage %d at %#x follows an fpage at %#x", handle, fp.Base, prev.Base)
			}

			if fp.Overlaps(prev) {
				return errors.Errorf("fpage %d at %#x overlaps the fpage at %#x", handle, fp.Base, prev.Base)
			}
		}

		count++
		if count > s.fpages.Len() {
			return errors.Errorf("the chain of address space %d contains a cycle", as.ID)
		}

		prev = fp
		handle = fp.AsNext
	}

	return nil
}

// ValidateTables checks the consistency of both underlying tables
func (s *Store) ValidateTables() error {
	err := s.spaces.Validate()
	if err != nil {
		return err
	}
	return s.fpages.Validate()
}

// AddStatistics sums the occupancy of both tables into stats
func (s *Store) AddStatistics(stats *memutils.Statistics) {
	s.spaces.AddStatistics(stats)
	s.fpages.AddStatistics(stats)
}

// AddRegionStatistics sums the fpages of one space into stats
func (s *Store) AddRegionStatistics(space ktable.Handle, stats *memutils.RegionStatistics) {
	if s.Space(space) == nil {
		return
	}

	stats.SpaceCount++
	s.Walk(space, func(_ ktable.Handle, fp *Fpage) bool {
		stats.AddRegion(fp.Size(), fp.IsAlways())
		return true
	})
}

// WriteTablesJSON populates a json object with the occupancy of both tables
func (s *Store) WriteTablesJSON(json jwriter.ObjectState) {
	obj := json.Name("AddressSpaces").Object()
	s.spaces.WriteJSON(obj)
	obj.End()

	obj = json.Name("Fpages").Object()
	s.fpages.WriteJSON(obj)
	obj.End()
}

// WriteSpaceJSON populates a json object with one space and its fpage chain
func (s *Store) WriteSpaceJSON(space ktable.Handle, json jwriter.ObjectState) {
	as := s.Space(space)
	if as == nil {
		return
	}

	json.Name("ID").Int(int(as.ID))
	arr := json.Name("Fpages").Array()
	s.Walk(space, func(handle ktable.Handle, fp *Fpage) bool {
		obj := arr.Object()
		obj.Name("Handle").Int(int(handle))
		obj.Name("Base").Int(int(fp.Base))
		obj.Name("Size").Int(int(fp.Size()))
		obj.Name("Pool").Int(int(fp.Pool))
		obj.Name("Perm").String(fp.Perm.String())
		obj.Name("Flags").String(fp.Flags.String())
		obj.End()
		return true
	})
	arr.End()
}
