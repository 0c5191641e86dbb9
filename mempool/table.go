package mempool

import (
	"context"

	cerrors "github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/mpukernel/memcore/memutils"
	"github.com/pkg/errors"
	"golang.org/x/exp/slog"
)

// UTCBSize is the size in bytes of a user thread control block. Relocated control blocks
// are checked against the pool table with ValidateUserBuffer before use.
const UTCBSize uint32 = 128

// Table is the immutable, process-wide list of memory pools. Pool IDs are indexes into
// the table.
type Table struct {
	pools  []Pool
	byName *swiss.Map[string, ID]
}

// NewTable builds a table from the provided pools. The pools are copied; the order of the
// slice determines pool IDs.
func NewTable(pools []Pool) (*Table, error) {
	t := &Table{
		pools:  make([]Pool, len(pools)),
		byName: swiss.NewMap[string, ID](uint32(len(pools))),
	}
	copy(t.pools, pools)

	for i := range t.pools {
		if _, exists := t.byName.Get(t.pools[i].Name); exists {
			return nil, cerrors.Wrapf(memutils.ErrInvalidConfig, "memory pool name %q is used twice", t.pools[i].Name)
		}
		t.byName.Put(t.pools[i].Name, ID(i))
	}

	err := t.Validate()
	if err != nil {
		return nil, cerrors.Mark(err, memutils.ErrInvalidConfig)
	}

	return t, nil
}

// NewDefaultTable builds the standard pool table from linker section boundaries
func NewDefaultTable(sections Sections) (*Table, error) {
	return NewTable(DefaultPools(sections))
}

func (t *Table) Len() int {
	return len(t.pools)
}

// Get returns the pool with the provided id, or nil if there is none
func (t *Table) Get(id ID) *Pool {
	if id < 0 || int(id) >= len(t.pools) {
		return nil
	}
	return &t.pools[id]
}

// ByName returns the id of the pool with the provided name
func (t *Table) ByName(name string) (ID, bool) {
	return t.byName.Get(name)
}

// FindByAddress returns the first pool that fully contains [addr, addr+length). If no pool
// does, the returned error matches memutils.ErrNotFound.
func (t *Table) FindByAddress(addr, length uint32) (ID, error) {
	for i := range t.pools {
		if t.pools[i].Contains(addr, length) {
			return ID(i), nil
		}
	}

	return Unknown, cerrors.Wrapf(memutils.ErrNotFound, "range [%#x, +%#x)", addr, length)
}

// ValidateUserBuffer checks that [addr, addr+length) lies within a single pool that user
// code may read or write, and returns that pool's id.
func (t *Table) ValidateUserBuffer(addr, length uint32) (ID, error) {
	id, err := t.FindByAddress(addr, length)
	if err != nil {
		return Unknown, err
	}

	if t.pools[id].User&PermRW == 0 {
		return Unknown, cerrors.Wrapf(memutils.ErrPermission, "pool %s is not user accessible", t.pools[id].Name)
	}

	return id, nil
}

// Validate checks that every pool's range is well-formed
func (t *Table) Validate() error {
	for i := range t.pools {
		pool := &t.pools[i]
		if pool.Name == "" {
			return errors.Errorf("memory pool %d has no name", i)
		}

		if pool.End < pool.Start {
			return errors.Errorf("memory pool %s ends at %#x, before its start %#x", pool.Name, pool.End, pool.Start)
		}

		if pool.Class > ClassWholePool {
			return errors.Errorf("memory pool %s has unknown class %d", pool.Name, pool.Class)
		}
	}

	return nil
}

// WriteJSON writes the pool table as a json array
func (t *Table) WriteJSON(writer *jwriter.Writer) {
	arr := writer.Array()
	defer arr.End()

	for i := range t.pools {
		pool := &t.pools[i]
		obj := arr.Object()
		obj.Name("ID").Int(i)
		obj.Name("Name").String(pool.Name)
		obj.Name("Start").Int(int(pool.Start))
		obj.Name("End").Int(int(pool.End))
		obj.Name("Size").Int(int(pool.Size()))
		obj.Name("Kernel").String(pool.Kernel.String())
		obj.Name("User").String(pool.User.String())
		obj.Name("Class").String(pool.Class.String())
		obj.Name("MapAlways").Bool(pool.MapAlways)
		obj.End()
	}
}

// DebugLogPools writes one log record per pool, carrying the same information as the
// pool dump of the kernel debugger
func (t *Table) DebugLogPools(logger *slog.Logger) {
	for i := range t.pools {
		pool := &t.pools[i]
		logger.LogAttrs(context.Background(), slog.LevelDebug, "memory pool",
			slog.String("name", pool.Name),
			slog.Int("size", int(pool.Size())),
			slog.String("start", hex(pool.Start)),
			slog.String("end", hex(pool.End)),
			slog.String("flags", pool.Properties()),
		)
	}
}
