package fpage_test

import (
	"encoding/json"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/mpukernel/memcore/fpage"
	"github.com/mpukernel/memcore/mempool"
	"github.com/mpukernel/memcore/memutils"
	"github.com/mpukernel/memcore/memutils/ktable"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) (*fpage.Store, ktable.Handle) {
	store := fpage.NewStore(4, 64)
	store.Init()

	space, err := store.NewSpace(7)
	require.NoError(t, err)
	return store, space
}

func newFpage(t *testing.T, store *fpage.Store, space ktable.Handle, base uint32, shift uint8) ktable.Handle {
	handle, err := store.NewFpage(space, mempool.Memory0, base, shift, mempool.PermRW, 0)
	require.NoError(t, err)
	return handle
}

// newChain creates fpages of 2^shift bytes at each base, linked in slice order
func newChain(t *testing.T, store *fpage.Store, space ktable.Handle, shift uint8, bases ...uint32) (ktable.Handle, ktable.Handle) {
	var first, last ktable.Handle = ktable.NoHandle, ktable.NoHandle
	for _, base := range bases {
		handle := newFpage(t, store, space, base, shift)
		if first == ktable.NoHandle {
			first = handle
		} else {
			store.Fpage(last).AsNext = handle
		}
		last = handle
	}
	return first, last
}

func bases(store *fpage.Store, space ktable.Handle) []uint32 {
	var result []uint32
	store.Walk(space, func(_ ktable.Handle, fp *fpage.Fpage) bool {
		result = append(result, fp.Base)
		return true
	})
	return result
}

func TestInsertSingleAscending(t *testing.T) {
	store, space := newStore(t)

	for _, base := range []uint32{0x000, 0x100, 0x200, 0x300} {
		require.NoError(t, store.InsertSingle(space, newFpage(t, store, space, base, 8)))
		require.NoError(t, store.Validate(space))
	}

	require.Equal(t, []uint32{0x000, 0x100, 0x200, 0x300}, bases(store, space))
}

func TestInsertSingleDescending(t *testing.T) {
	store, space := newStore(t)

	for _, base := range []uint32{0x300, 0x200, 0x100, 0x000} {
		require.NoError(t, store.InsertSingle(space, newFpage(t, store, space, base, 8)))
		require.NoError(t, store.Validate(space))
	}

	require.Equal(t, []uint32{0x000, 0x100, 0x200, 0x300}, bases(store, space))
}

func TestInsertChainIntoGap(t *testing.T) {
	store, space := newStore(t)

	first, last := newChain(t, store, space, 8, 0x000, 0x100)
	require.NoError(t, store.InsertChain(space, first, last))

	first, last = newChain(t, store, space, 8, 0x800, 0x900)
	require.NoError(t, store.InsertChain(space, first, last))

	first, last = newChain(t, store, space, 8, 0x400, 0x500, 0x600)
	require.NoError(t, store.InsertChain(space, first, last))

	require.Equal(t, []uint32{0x000, 0x100, 0x400, 0x500, 0x600, 0x800, 0x900}, bases(store, space))
	require.NoError(t, store.Validate(space))
}

func TestInsertChainAtFront(t *testing.T) {
	store, space := newStore(t)

	first, last := newChain(t, store, space, 8, 0x1000, 0x1100)
	require.NoError(t, store.InsertChain(space, first, last))

	first, last = newChain(t, store, space, 8, 0x200, 0x300)
	require.NoError(t, store.InsertChain(space, first, last))

	require.Equal(t, []uint32{0x200, 0x300, 0x1000, 0x1100}, bases(store, space))
}

var overlapCases = map[string]struct {
	Bases []uint32
	Shift uint8
}{
	"Equal Base":            {Bases: []uint32{0x400}, Shift: 4},
	"Tail Of Previous":      {Bases: []uint32{0x180}, Shift: 7},
	"Runs Into Next":        {Bases: []uint32{0x380, 0x400}, Shift: 7},
	"Covers Whole Fpage":    {Bases: []uint32{0x000}, Shift: 12},
	"Inside Existing Fpage": {Bases: []uint32{0x440}, Shift: 4},
}

func TestInsertRejectsOverlap(t *testing.T) {
	for name, tc := range overlapCases {
		t.Run(name, func(t *testing.T) {
			store, space := newStore(t)

			require.NoError(t, store.InsertSingle(space, newFpage(t, store, space, 0x100, 8)))
			require.NoError(t, store.InsertSingle(space, newFpage(t, store, space, 0x400, 8)))

			first, last := newChain(t, store, space, tc.Shift, tc.Bases...)
			err := store.InsertChain(space, first, last)
			require.True(t, errors.Is(err, memutils.ErrOverlap), "got %v", err)

			require.Equal(t, []uint32{0x100, 0x400}, bases(store, space))
			require.NoError(t, store.Validate(space))
		})
	}
}

func TestInsertAdjacentIsNotOverlap(t *testing.T) {
	store, space := newStore(t)

	require.NoError(t, store.InsertSingle(space, newFpage(t, store, space, 0x100, 8)))
	require.NoError(t, store.InsertSingle(space, newFpage(t, store, space, 0x300, 8)))

	// Fills [0x200, 0x300) exactly, touching both neighbours
	require.NoError(t, store.InsertSingle(space, newFpage(t, store, space, 0x200, 8)))
	require.Equal(t, []uint32{0x100, 0x200, 0x300}, bases(store, space))
	require.NoError(t, store.Validate(space))
}

func TestInsertRejectsForeignFpage(t *testing.T) {
	store, space := newStore(t)
	other, err := store.NewSpace(8)
	require.NoError(t, err)

	fp := newFpage(t, store, other, 0, 8)
	err = store.InsertSingle(space, fp)
	require.True(t, errors.Is(err, memutils.ErrInvalidHandle))

	err = store.InsertSingle(ktable.Handle(3), fp)
	require.True(t, errors.Is(err, memutils.ErrInvalidHandle))
}

func TestValidateDetectsOverlap(t *testing.T) {
	store, space := newStore(t)

	require.NoError(t, store.InsertSingle(space, newFpage(t, store, space, 0x000, 9)))
	require.NoError(t, store.InsertSingle(space, newFpage(t, store, space, 0x400, 8)))

	// Hand-link an overlapping fpage behind the validator's back
	overlapping := newFpage(t, store, space, 0x100, 8)
	store.Walk(space, func(handle ktable.Handle, fp *fpage.Fpage) bool {
		if fp.Base == 0 {
			store.Fpage(overlapping).AsNext = fp.AsNext
			fp.AsNext = overlapping
			return false
		}
		return true
	})

	require.Error(t, store.Validate(space))
}

func TestFind(t *testing.T) {
	store, space := newStore(t)

	first, last := newChain(t, store, space, 8, 0x1000, 0x1100, 0x1300)
	require.NoError(t, store.InsertChain(space, first, last))

	handle, ok := store.Find(space, 0x1180)
	require.True(t, ok)
	require.Equal(t, uint32(0x1100), store.Fpage(handle).Base)

	_, ok = store.Find(space, 0x1200)
	require.False(t, ok)

	_, ok = store.Find(space, 0xfff)
	require.False(t, ok)

	_, ok = store.Find(space, 0x1400)
	require.False(t, ok)
}

func TestMapGroup(t *testing.T) {
	store, space := newStore(t)

	single := newFpage(t, store, space, 0, 8)
	require.Equal(t, []ktable.Handle{single}, store.MapGroup(single))

	a := newFpage(t, store, space, 0x100, 8)
	b := newFpage(t, store, space, 0x200, 9)
	c := newFpage(t, store, space, 0x400, 10)
	store.LinkMapGroup([]ktable.Handle{a, b, c})

	require.Equal(t, []ktable.Handle{a, b, c}, store.MapGroup(a))
	require.Equal(t, []ktable.Handle{b, c, a}, store.MapGroup(b))
	require.Nil(t, store.MapGroup(ktable.NoHandle))
}

func TestFreeSpaceReturnsSlots(t *testing.T) {
	store, space := newStore(t)

	first, last := newChain(t, store, space, 8, 0x000, 0x100, 0x200)
	require.NoError(t, store.InsertChain(space, first, last))

	var stats memutils.Statistics
	store.AddStatistics(&stats)
	require.Equal(t, 4, stats.AllocationCount)

	require.NoError(t, store.FreeSpace(space))
	require.Nil(t, store.Space(space))
	require.Nil(t, store.Fpage(first))

	stats.Clear()
	store.AddStatistics(&stats)
	require.Equal(t, 0, stats.AllocationCount)
	require.NoError(t, store.ValidateTables())

	require.True(t, errors.Is(store.FreeSpace(space), memutils.ErrInvalidHandle))
}

func TestRegionStatistics(t *testing.T) {
	store, space := newStore(t)

	require.NoError(t, store.InsertSingle(space, newFpage(t, store, space, 0x000, 8)))
	always, err := store.NewFpage(space, mempool.UserText, 0x400, 10, mempool.PermRX, fpage.FlagAlways)
	require.NoError(t, err)
	require.NoError(t, store.InsertSingle(space, always))

	var stats memutils.RegionStatistics
	stats.Clear()
	store.AddRegionStatistics(space, &stats)

	require.Equal(t, memutils.RegionStatistics{
		SpaceCount:    1,
		FpageCount:    2,
		AlwaysCount:   1,
		MappedBytes:   0x500,
		RegionSizeMin: 0x100,
		RegionSizeMax: 0x400,
	}, stats)
	require.Equal(t, 1, store.AlwaysCount(space))
}

func TestWriteSpaceJSON(t *testing.T) {
	store, space := newStore(t)
	require.NoError(t, store.InsertSingle(space, newFpage(t, store, space, 0x200, 8)))

	writer := jwriter.NewWriter()
	obj := writer.Object()
	store.WriteSpaceJSON(space, obj)
	obj.End()
	require.NoError(t, writer.Error())

	var decoded struct {
		ID     int
		Fpages []struct {
			Base  int
			Size  int
			Flags string
		}
	}
	require.NoError(t, json.Unmarshal(writer.Bytes(), &decoded))
	require.Equal(t, 7, decoded.ID)
	require.Len(t, decoded.Fpages, 1)
	require.Equal(t, 0x200, decoded.Fpages[0].Base)
	require.Equal(t, 0x100, decoded.Fpages[0].Size)
	require.Equal(t, "None", decoded.Fpages[0].Flags)
}

func TestFlagsString(t *testing.T) {
	require.Equal(t, "None", fpage.Flags(0).String())
	require.Equal(t, "FlagAlways|FlagLRU", (fpage.FlagAlways | fpage.FlagLRU).String())
}
