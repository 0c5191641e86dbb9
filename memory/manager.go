package memory

import (
	"context"

	cerrors "github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/mpukernel/memcore/fpage"
	"github.com/mpukernel/memcore/memory/internal/utils"
	"github.com/mpukernel/memcore/mempool"
	"github.com/mpukernel/memcore/memutils"
	"github.com/mpukernel/memcore/memutils/ktable"
	"github.com/mpukernel/memcore/mpu"
	"github.com/pkg/errors"
	"golang.org/x/exp/slices"
	"golang.org/x/exp/slog"
)

// MapAction is the kind of mapping operation requested between two address spaces
type MapAction uint8

const (
	MapActionMap MapAction = iota
	MapActionGrant
	MapActionUnmap
)

var mapActionMapping = map[MapAction]string{
	MapActionMap:   "MapActionMap",
	MapActionGrant: "MapActionGrant",
	MapActionUnmap: "MapActionUnmap",
}

func (a MapAction) String() string {
	return mapActionMapping[a]
}

// Manager owns the pool table, the address space and fpage tables, and the registry of
// address space IDs. All of its state is created once in New and never resized.
type Manager struct {
	mutex       utils.OptionalRWMutex
	logger      *slog.Logger
	createFlags CreateFlags

	pools  *mempool.Table
	store  *fpage.Store
	spaces *swiss.Map[uint32, ktable.Handle]

	leastShift   uint8
	largestShift uint8
	deviceMask   uint32
}

// Pools returns the immutable pool table
func (m *Manager) Pools() *mempool.Table {
	return m.pools
}

// Store returns the underlying fpage store. Callers that use it directly bypass the
// manager's mutex.
func (m *Manager) Store() *fpage.Store {
	return m.store
}

// LeastFpageSize returns the smallest fpage size the region splitter produces
func (m *Manager) LeastFpageSize() uint32 {
	return 1 << m.leastShift
}

// LargestFpageSize returns the largest fpage size the region splitter produces
func (m *Manager) LargestFpageSize() uint32 {
	return 1 << m.largestShift
}

// CreateAddressSpace allocates an empty address space and registers it under spaceID.
// The root space (RootSpaceID) is additionally populated with one fpage chain per
// user-readable pool.
//
// A root space holding more always-mapped fpages than there are MPU regions can never run,
// so that case panics.
func (m *Manager) CreateAddressSpace(spaceID uint32) (ktable.Handle, error) {
	m.logger.Debug("Manager::CreateAddressSpace", slog.Int("SpaceID", int(spaceID)))

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.spaces.Has(spaceID) {
		return ktable.NoHandle, cerrors.Wrapf(memutils.ErrSpaceExists, "address space %d", spaceID)
	}

	space, err := m.store.NewSpace(spaceID)
	if err != nil {
		return ktable.NoHandle, err
	}

	if spaceID == RootSpaceID {
		err = m.populateRoot(space)
		if err != nil {
			_ = m.store.FreeSpace(space)
			return ktable.NoHandle, err
		}
	}

	m.spaces.Put(spaceID, space)
	return space, nil
}

func (m *Manager) populateRoot(space ktable.Handle) error {
	for id := mempool.ID(0); int(id) < m.pools.Len(); id++ {
		pool := m.pools.Get(id)
		if pool.User&mempool.PermRead == 0 {
			continue
		}

		err := m.splitIntoRegions(id, space, pool.Start, pool.Size())
		if err != nil {
			return cerrors.Wrapf(err, "populating root address space from pool %s", pool.Name)
		}
	}

	err := mpu.CheckCapacity(m.store, space)
	if err != nil {
		panic(err)
	}
	return nil
}

// Space returns the handle of the address space registered under spaceID
func (m *Manager) Space(spaceID uint32) (ktable.Handle, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	return m.spaces.Get(spaceID)
}

// DestroyAddressSpace returns an address space and all of its fpages to their tables and
// forgets spaceID. Handles to the destroyed objects must not be used afterwards.
func (m *Manager) DestroyAddressSpace(spaceID uint32) error {
	m.logger.Debug("Manager::DestroyAddressSpace", slog.Int("SpaceID", int(spaceID)))

	m.mutex.Lock()
	defer m.mutex.Unlock()

	space, ok := m.spaces.Get(spaceID)
	if !ok {
		return cerrors.Wrapf(memutils.ErrInvalidHandle, "address space %d is not registered", spaceID)
	}

	err := m.store.FreeSpace(space)
	if err != nil {
		return err
	}

	m.spaces.Delete(spaceID)
	return nil
}

// Map would map, grant or unmap fp into space. Mapping between address spaces is not
// supported and always fails with an error matching memutils.ErrNotImplemented.
func (m *Manager) Map(space, fp ktable.Handle, action MapAction) error {
	m.logger.Debug("Manager::Map", slog.String("Action", action.String()))

	return cerrors.Wrapf(memutils.ErrNotImplemented, "%s of fpage %d into address space %d", action, fp, space)
}

// Touch marks the fpage of space that contains addr as referenced, so the next slot
// assignment pass prefers it over fpages that were not touched
func (m *Manager) Touch(space ktable.Handle, addr uint32) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	return m.touch(space, addr)
}

func (m *Manager) touch(space ktable.Handle, addr uint32) error {
	if m.store.Space(space) == nil {
		return cerrors.Wrapf(memutils.ErrInvalidHandle, "address space %d", space)
	}

	handle, ok := m.store.Find(space, addr)
	if !ok {
		return cerrors.Wrapf(memutils.ErrNotFound, "address %#x is not mapped in address space %d", addr, m.store.Space(space).ID)
	}

	m.store.Fpage(handle).Flags |= fpage.FlagLRU
	return nil
}

// SetupMPU runs one slot assignment pass over space and programs the result through prog.
// A nil prog only computes the slot table. A capacity error is returned alongside a table
// that was still programmed with the always-mapped fpages that fit.
func (m *Manager) SetupMPU(space ktable.Handle, prog mpu.Programmer) (mpu.SlotTable, error) {
	m.logger.Debug("Manager::SetupMPU")

	m.mutex.Lock()
	defer m.mutex.Unlock()

	return m.setupMPU(space, prog)
}

func (m *Manager) setupMPU(space ktable.Handle, prog mpu.Programmer) (mpu.SlotTable, error) {
	table, err := mpu.Assign(m.store, space)
	if cerrors.Is(err, memutils.ErrInvalidHandle) {
		return table, err
	}

	if err != nil {
		m.logger.LogAttrs(context.Background(), slog.LevelError, "address space does not fit into the MPU",
			slog.Int("Space", int(space)),
			slog.Any("error", err),
		)
	}

	if prog != nil {
		mpu.Program(m.store, table, prog)
	}
	return table, err
}

// HandleFault is the memory fault path: it marks the fpage containing addr as referenced
// and reprograms the MPU for space
func (m *Manager) HandleFault(space ktable.Handle, addr uint32, prog mpu.Programmer) (mpu.SlotTable, error) {
	m.logger.Debug("Manager::HandleFault", slog.String("Address", hexAddr(addr)))

	m.mutex.Lock()
	defer m.mutex.Unlock()

	err := m.touch(space, addr)
	if err != nil {
		return mpu.SlotTable{}, err
	}

	return m.setupMPU(space, prog)
}

// Validate checks the tables, the pool table and every registered address space
func (m *Manager) Validate() error {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	err := m.pools.Validate()
	if err != nil {
		return err
	}

	err = m.store.ValidateTables()
	if err != nil {
		return err
	}

	m.spaces.Iter(func(spaceID uint32, space ktable.Handle) bool {
		as := m.store.Space(space)
		if as == nil || as.ID != spaceID {
			err = errors.Errorf("address space %d is registered with handle %d, which does not hold it", spaceID, space)
			return true
		}

		err = m.store.Validate(space)
		return err != nil
	})
	return err
}

// AddStatistics sums the occupancy of the address space and fpage tables into stats
func (m *Manager) AddStatistics(stats *memutils.Statistics) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	m.store.AddStatistics(stats)
}

// AddRegionStatistics sums the fpages of every registered address space into stats
func (m *Manager) AddRegionStatistics(stats *memutils.RegionStatistics) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	m.spaces.Iter(func(_ uint32, space ktable.Handle) bool {
		m.store.AddRegionStatistics(space, stats)
		return false
	})
}

// PrintDetailedMap writes the table occupancy and every registered address space with its
// fpage chain as a json object
func (m *Manager) PrintDetailedMap(writer *jwriter.Writer) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	objState := writer.Object()
	defer objState.End()

	tables := objState.Name("Tables").Object()
	m.store.WriteTablesJSON(tables)
	tables.End()

	var stats memutils.RegionStatistics
	stats.Clear()
	m.spaces.Iter(func(_ uint32, space ktable.Handle) bool {
		m.store.AddRegionStatistics(space, &stats)
		return false
	})

	total := objState.Name("Total").Object()
	total.Name("SpaceCount").Int(stats.SpaceCount)
	total.Name("FpageCount").Int(stats.FpageCount)
	total.Name("AlwaysCount").Int(stats.AlwaysCount)
	total.Name("MappedBytes").Float64(float64(stats.MappedBytes))
	total.End()

	spaces := objState.Name("AddressSpaces").Array()
	for _, space := range m.sortedSpaces() {
		obj := spaces.Object()
		m.store.WriteSpaceJSON(space, obj)
		obj.End()
	}
	spaces.End()
}

// sortedSpaces returns the registered space handles ordered by space ID
func (m *Manager) sortedSpaces() []ktable.Handle {
	ids := make([]uint32, 0, m.spaces.Count())
	m.spaces.Iter(func(spaceID uint32, _ ktable.Handle) bool {
		ids = append(ids, spaceID)
		return false
	})
	slices.Sort(ids)

	handles := make([]ktable.Handle, 0, len(ids))
	for _, id := range ids {
		handle, _ := m.spaces.Get(id)
		handles = append(handles, handle)
	}
	return handles
}
