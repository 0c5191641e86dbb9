package memory

import (
	"io"
	"strings"

	cerrors "github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/mpukernel/memcore/fpage"
	"github.com/mpukernel/memcore/mempool"
	"github.com/mpukernel/memcore/memutils"
	"github.com/mpukernel/memcore/memutils/ktable"
	"golang.org/x/exp/slog"
)

// CreateFlags indicate specific manager behaviors to activate or deactivate
type CreateFlags int32

var createFlagsMapping = map[CreateFlags]string{
	CreateExternallySynchronized: "CreateExternallySynchronized",
}

func (f CreateFlags) String() string {
	if f == 0 {
		return "None"
	}

	var names []string
	for flag, name := range createFlagsMapping {
		if f&flag != 0 {
			names = append(names, name)
		}
	}
	return strings.Join(names, "|")
}

const (
	// CreateExternallySynchronized disables the manager's internal mutex. The host must
	// guarantee that the manager is used from one context at a time, for instance by only
	// calling it with interrupts masked.
	CreateExternallySynchronized CreateFlags = 1 << iota
)

const (
	// RootSpaceID identifies the address space that is populated with every user-readable
	// pool when it is created
	RootSpaceID uint32 = 0

	defaultMaxAddressSpaces  int    = 16
	defaultMaxFpages         int    = 256
	defaultLeastFpageSize    uint32 = 256
	defaultLargestFpageSize  uint32 = 16 * 1024 * 1024
	defaultDeviceGranularity uint32 = 256 * 1024

	// minLeastFpageSize is the smallest region the Cortex-M3 MPU can describe
	minLeastFpageSize uint32 = 32
)

// CreateOptions contains optional settings when creating a manager. It is valid to leave
// every field blank.
type CreateOptions struct {
	Flags CreateFlags

	// MaxAddressSpaces is the capacity of the address space table
	MaxAddressSpaces int
	// MaxFpages is the capacity of the fpage table, shared by every address space
	MaxFpages int

	// LeastFpageSize is the smallest fpage the region splitter produces. Must be a power
	// of two of at least 32 bytes.
	LeastFpageSize uint32
	// LargestFpageSize is the largest fpage the region splitter produces. Must be a power
	// of two no smaller than LeastFpageSize, so at most 2 GiB.
	LargestFpageSize uint32
	// DeviceGranularity is the size device windows are truncated to before splitting. Must be
	// a power of two no smaller than LeastFpageSize.
	DeviceGranularity uint32

	// Sections are the linker-provided section boundaries used to build the default pool
	// table. Left blank, mempool.DefaultSections is used.
	Sections mempool.Sections
	// Pools replaces the default pool table entirely when provided
	Pools []mempool.Pool
}

// New creates a manager: it builds the pool table and empties the address space and
// fpage tables
func New(logger *slog.Logger, options CreateOptions) (*Manager, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	options.applyDefaults()
	err := options.validate()
	if err != nil {
		return nil, err
	}

	var pools *mempool.Table
	if options.Pools != nil {
		pools, err = mempool.NewTable(options.Pools)
	} else {
		pools, err = mempool.NewDefaultTable(options.Sections)
	}
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		logger:       logger,
		createFlags:  options.Flags,
		pools:        pools,
		store:        fpage.NewStore(options.MaxAddressSpaces, options.MaxFpages),
		spaces:       swiss.NewMap[uint32, ktable.Handle](uint32(options.MaxAddressSpaces)),
		leastShift:   memutils.Log2(options.LeastFpageSize),
		largestShift: memutils.Log2(options.LargestFpageSize),
		deviceMask:   ^(options.DeviceGranularity - 1),
	}
	manager.mutex.UseMutex = options.Flags&CreateExternallySynchronized == 0
	manager.store.Init()

	logger.Debug("Manager::New",
		slog.Int("MaxAddressSpaces", options.MaxAddressSpaces),
		slog.Int("MaxFpages", options.MaxFpages),
		slog.Int("LeastFpageSize", int(options.LeastFpageSize)),
		slog.Int("LargestFpageSize", int(options.LargestFpageSize)),
		slog.String("Flags", options.Flags.String()),
	)
	pools.DebugLogPools(logger)

	return manager, nil
}

func (o *CreateOptions) applyDefaults() {
	if o.MaxAddressSpaces == 0 {
		o.MaxAddressSpaces = defaultMaxAddressSpaces
	}

	if o.MaxFpages == 0 {
		o.MaxFpages = defaultMaxFpages
	}

	if o.LeastFpageSize == 0 {
		o.LeastFpageSize = defaultLeastFpageSize
	}

	if o.LargestFpageSize == 0 {
		o.LargestFpageSize = defaultLargestFpageSize
	}

	if o.DeviceGranularity == 0 {
		o.DeviceGranularity = defaultDeviceGranularity
	}

	if o.Sections == (mempool.Sections{}) {
		o.Sections = mempool.DefaultSections()
	}
}

func (o *CreateOptions) validate() error {
	if o.MaxAddressSpaces < 0 || o.MaxFpages < 0 {
		return cerrors.Wrapf(memutils.ErrInvalidConfig, "table capacities must be positive, got %d address spaces and %d fpages",
			o.MaxAddressSpaces, o.MaxFpages)
	}

	for _, check := range []struct {
		value uint32
		name  string
	}{
		{o.LeastFpageSize, "LeastFpageSize"},
		{o.LargestFpageSize, "LargestFpageSize"},
		{o.DeviceGranularity, "DeviceGranularity"},
	} {
		err := memutils.CheckPow2(check.value, check.name)
		if err != nil {
			return cerrors.Mark(err, memutils.ErrInvalidConfig)
		}
	}

	if o.LeastFpageSize < minLeastFpageSize {
		return cerrors.Wrapf(memutils.ErrInvalidConfig, "LeastFpageSize is %d, the MPU cannot describe regions smaller than %d",
			o.LeastFpageSize, minLeastFpageSize)
	}

	if o.LargestFpageSize < o.LeastFpageSize {
		return cerrors.Wrapf(memutils.ErrInvalidConfig, "LargestFpageSize %d is smaller than LeastFpageSize %d",
			o.LargestFpageSize, o.LeastFpageSize)
	}

	if o.DeviceGranularity < o.LeastFpageSize {
		return cerrors.Wrapf(memutils.ErrInvalidConfig, "DeviceGranularity %d is smaller than LeastFpageSize %d",
			o.DeviceGranularity, o.LeastFpageSize)
	}

	return nil
}
