package memory

import (
	"context"
	"math/bits"
	"strconv"

	cerrors "github.com/cockroachdb/errors"
	"github.com/mpukernel/memcore/fpage"
	"github.com/mpukernel/memcore/mempool"
	"github.com/mpukernel/memcore/memutils"
	"github.com/mpukernel/memcore/memutils/ktable"
	"golang.org/x/exp/slog"
)

const addressSpaceEnd uint64 = 1 << 32

// region is one naturally aligned piece of a split range
type region struct {
	base  uint64
	shift uint8
}

// SplitIntoRegions covers [base, base+size) of a pool with a chain of fpages and inserts
// the chain into space. If pool is mempool.Unknown, the pool is the first one that contains
// the whole range; an error matching memutils.ErrNotFound is returned if none does.
//
// The range is first normalized according to the pool's class, then carved into the fewest
// naturally aligned power-of-two regions between the least and the largest fpage size.
// On failure no fpage is left behind.
func (m *Manager) SplitIntoRegions(pool mempool.ID, space ktable.Handle, base, size uint32) error {
	m.logger.Debug("Manager::SplitIntoRegions",
		slog.Int("Pool", int(pool)),
		slog.String("Base", hexAddr(base)),
		slog.Int("Size", int(size)),
	)

	m.mutex.Lock()
	defer m.mutex.Unlock()

	return m.splitIntoRegions(pool, space, base, size)
}

func (m *Manager) splitIntoRegions(id mempool.ID, space ktable.Handle, base, size uint32) error {
	if m.store.Space(space) == nil {
		return cerrors.Wrapf(memutils.ErrInvalidHandle, "address space %d", space)
	}

	if id == mempool.Unknown {
		var err error
		id, err = m.pools.FindByAddress(base, size)
		if err != nil {
			return err
		}
	}

	pool := m.pools.Get(id)
	if pool == nil {
		return cerrors.Wrapf(memutils.ErrNotFound, "memory pool %d", id)
	}

	normalBase, normalSize := m.normalize(pool, base, size)
	if normalSize == 0 {
		m.logger.Debug("    Nothing to split", slog.String("Pool", pool.Name), slog.String("Base", hexAddr(base)))
		return nil
	}

	regions, err := m.planRegions(normalBase, normalSize)
	if err != nil {
		return cerrors.Wrapf(err, "splitting pool %s", pool.Name)
	}

	handles := make([]ktable.Handle, 0, len(regions))
	for _, r := range regions {
		handle, err := m.newFpage(space, id, pool, uint32(r.base), r.shift)
		if err != nil {
			m.releaseSplit(handles, pool, err)
			return err
		}

		if len(handles) > 0 {
			m.store.Fpage(handles[len(handles)-1]).AsNext = handle
		}
		handles = append(handles, handle)
	}

	m.store.LinkMapGroup(handles)

	err = m.store.InsertChain(space, handles[0], handles[len(handles)-1])
	if err != nil {
		m.releaseSplit(handles, pool, err)
		return err
	}

	return nil
}

func (m *Manager) releaseSplit(handles []ktable.Handle, pool *mempool.Pool, cause error) {
	m.logger.LogAttrs(context.Background(), slog.LevelError, "split failed, releasing carved fpages",
		slog.String("Pool", pool.Name),
		slog.Int("Count", len(handles)),
		slog.Any("error", cause),
	)

	if len(handles) > 0 {
		m.store.FreeChain(handles[0])
	}
}

// normalize rounds a range according to the pool class. Whole pools always cover the
// pool's own range, RAM pools round outward to the least fpage size and device windows
// are truncated to the device granularity.
func (m *Manager) normalize(pool *mempool.Pool, base, size uint32) (uint64, uint64) {
	least := uint64(1) << m.leastShift

	switch pool.Class {
	case mempool.ClassWholePool:
		return memutils.AlignUp(uint64(pool.Start), least), memutils.AlignUp(uint64(pool.Size()), least)
	case mempool.ClassSRAM, mempool.ClassAHBRAM:
		return memutils.AlignUp(uint64(base), least), memutils.AlignUp(uint64(size), least)
	case mempool.ClassDevices:
		return uint64(base & m.deviceMask), uint64(size & m.deviceMask)
	}

	return uint64(base), uint64(size)
}

// planRegions decomposes a normalized range largest-first. Each region is capped by the
// largest fpage size, by the remaining size and by the alignment of its base, which keeps
// every region naturally aligned as the MPU requires.
func (m *Manager) planRegions(base, size uint64) ([]region, error) {
	least := uint64(1) << m.leastShift
	if !memutils.IsAligned(base, least) || !memutils.IsAligned(size, least) {
		return nil, cerrors.Wrapf(memutils.ErrUnaligned, "range [%#x, +%#x) with least fpage size %d", base, size, least)
	}

	if base+size > addressSpaceEnd {
		return nil, cerrors.Wrapf(memutils.ErrUnaligned, "range [%#x, +%#x) ends past the address space", base, size)
	}

	var regions []region
	for size > 0 {
		shift := m.largestShift
		if base != 0 {
			if align := uint8(bits.TrailingZeros64(base)); align < shift {
				shift = align
			}
		}
		if fit := uint8(bits.Len64(size) - 1); fit < shift {
			shift = fit
		}

		regions = append(regions, region{base: base, shift: shift})
		base += uint64(1) << shift
		size -= uint64(1) << shift
	}

	return regions, nil
}

func (m *Manager) newFpage(space ktable.Handle, id mempool.ID, pool *mempool.Pool, base uint32, shift uint8) (ktable.Handle, error) {
	var flags fpage.Flags
	if pool.MapAlways {
		flags |= fpage.FlagAlways
	}

	handle, err := m.store.NewFpage(space, id, base, shift, pool.User, flags)
	if err != nil {
		return ktable.NoHandle, err
	}

	m.logger.LogAttrs(context.Background(), slog.LevelDebug, "fpage",
		slog.String("Pool", pool.Name),
		slog.String("Base", hexAddr(base)),
		slog.Int("Size", 1<<shift),
		slog.Int("Space", int(space)),
	)
	return handle, nil
}

// CreateFpage allocates a single fpage of 2^shift bytes at base, taking its permissions
// and always-mapped flag from the pool. The fpage is not inserted into the space.
func (m *Manager) CreateFpage(space ktable.Handle, id mempool.ID, base uint32, shift uint8) (ktable.Handle, error) {
	m.logger.Debug("Manager::CreateFpage")

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.store.Space(space) == nil {
		return ktable.NoHandle, cerrors.Wrapf(memutils.ErrInvalidHandle, "address space %d", space)
	}

	pool := m.pools.Get(id)
	if pool == nil {
		return ktable.NoHandle, cerrors.Wrapf(memutils.ErrNotFound, "memory pool %d", id)
	}

	if shift < m.leastShift || shift > m.largestShift {
		return ktable.NoHandle, cerrors.Wrapf(memutils.ErrUnaligned, "fpage size %d is outside [%d, %d]",
			uint64(1)<<shift, m.LeastFpageSize(), m.LargestFpageSize())
	}

	if !memutils.IsAligned(uint64(base), uint64(1)<<shift) {
		return ktable.NoHandle, cerrors.Wrapf(memutils.ErrUnaligned, "fpage base %#x is not aligned to its size %d", base, uint64(1)<<shift)
	}

	return m.newFpage(space, id, pool, base, shift)
}

// InsertRegionChain merges a chain of fpages, linked in ascending base order and owned by
// space, into the space. The chain must not overlap fpages already in the space.
func (m *Manager) InsertRegionChain(space, first, last ktable.Handle) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	return m.store.InsertChain(space, first, last)
}

// InsertSingleRegion merges one fpage into the space
func (m *Manager) InsertSingleRegion(space, fp ktable.Handle) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	return m.store.InsertSingle(space, fp)
}

func hexAddr(addr uint32) string {
	return "0x" + strconv.FormatUint(uint64(addr), 16)
}
