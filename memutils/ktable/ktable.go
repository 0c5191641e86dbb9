package ktable

import (
	"math"
	"math/bits"
	"unsafe"

	cerrors "github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/mpukernel/memcore/memutils"
	"github.com/pkg/errors"
)

// Handle identifies a slot within a Table. The handle of an element is its slot index.
type Handle uint32

const (
	// NoHandle is the handle value that refers to no slot at all. It terminates every
	// chain of handles.
	NoHandle Handle = math.MaxUint32
)

// Table is a fixed-capacity pool of same-typed elements. Slot occupancy is tracked by a
// bitmap with one bit per slot; a bit is set iff the slot is allocated.
//
// A Table is not safe for concurrent use. Callers that share a Table between execution
// contexts must serialize access themselves.
type Table[T any] struct {
	name     string
	num      int
	live     int
	elemSize uintptr

	bitmap []uint64
	data   []T
}

// New creates a table named name that holds up to num elements. The table must be
// initialized with Init before the first allocation.
func New[T any](name string, num int) *Table[T] {
	if num <= 0 {
		panic("ktable: capacity must be positive")
	}

	var zero T
	size := unsafe.Sizeof(zero)
	if size == 0 {
		panic("ktable: zero-sized element types cannot be addressed by index")
	}

	return &Table[T]{
		name:     name,
		num:      num,
		elemSize: size,
		bitmap:   make([]uint64, (num+63)/64),
		data:     make([]T, num),
	}
}

// Init empties the table. It must be called once before the table is used; calling it on a
// table with live elements abandons them.
func (t *Table[T]) Init() {
	for i := range t.bitmap {
		t.bitmap[i] = 0
	}
	t.live = 0
}

func (t *Table[T]) Name() string  { return t.name }
func (t *Table[T]) Capacity() int { return t.num }
func (t *Table[T]) Len() int      { return t.live }

// Alloc claims the first free slot and returns its handle and element. The element's
// contents are whatever the slot last held. When every slot is taken, the returned
// error matches memutils.ErrExhausted.
func (t *Table[T]) Alloc() (Handle, *T, error) {
	for word := range t.bitmap {
		free := ^t.bitmap[word]
		if free == 0 {
			continue
		}

		index := word*64 + bits.TrailingZeros64(free)
		if index >= t.num {
			break
		}

		t.bitmap[word] |= 1 << uint(index%64)
		t.live++
		return Handle(index), &t.data[index], nil
	}

	return NoHandle, nil, cerrors.Wrapf(memutils.ErrExhausted, "ktable %s: all %d slots are allocated", t.name, t.num)
}

// Free releases the slot identified by handle. Releasing a handle that is out of range
// or already free panics in debug builds and is ignored otherwise.
func (t *Table[T]) Free(handle Handle) {
	if !t.inRange(handle) {
		memutils.DebugAssert(false, "ktable %s: free of out-of-range handle %d", t.name, handle)
		return
	}

	word, bit := int(handle)/64, uint(handle)%64
	if t.bitmap[word]&(1<<bit) == 0 {
		memutils.DebugAssert(false, "ktable %s: double free of slot %d", t.name, handle)
		return
	}

	t.bitmap[word] &^= 1 << bit
	t.live--
}

// FreeElement releases the slot that holds element. element must have been returned
// by Alloc or Get on this table.
func (t *Table[T]) FreeElement(element *T) {
	index := t.IndexOf(element)
	if index < 0 {
		memutils.DebugAssert(false, "ktable %s: free of foreign or misaligned element %p", t.name, element)
		return
	}

	t.Free(Handle(index))
}

// IndexOf recovers the slot index of element from its address. It returns -1 if element
// does not point at the start of a slot in this table.
func (t *Table[T]) IndexOf(element *T) int {
	if element == nil {
		return -1
	}

	base := uintptr(unsafe.Pointer(&t.data[0]))
	addr := uintptr(unsafe.Pointer(element))
	if addr < base {
		return -1
	}

	offset := addr - base
	if offset%t.elemSize != 0 {
		return -1
	}

	index := offset / t.elemSize
	if index >= uintptr(t.num) {
		return -1
	}

	return int(index)
}

// Get returns the element in the slot identified by handle, or nil if the handle
// is out of range. The slot is not required to be allocated.
func (t *Table[T]) Get(handle Handle) *T {
	if !t.inRange(handle) {
		return nil
	}
	return &t.data[handle]
}

// IsAllocated returns true if the slot identified by handle is currently allocated
func (t *Table[T]) IsAllocated(handle Handle) bool {
	if !t.inRange(handle) {
		return false
	}
	return t.bitmap[handle/64]&(1<<(uint(handle)%64)) != 0
}

func (t *Table[T]) inRange(handle Handle) bool {
	return handle != NoHandle && int(handle) < t.num
}

// Validate checks that the bitmap agrees with the live count and that no bit past
// the table's capacity is set.
func (t *Table[T]) Validate() error {
	counted := 0
	for _, word := range t.bitmap {
		counted += bits.OnesCount64(word)
	}

	if counted != t.live {
		return errors.Errorf("ktable %s: bitmap holds %d allocated slots, but the live count is %d", t.name, counted, t.live)
	}

	if tail := t.num % 64; tail != 0 {
		last := t.bitmap[len(t.bitmap)-1]
		if last>>uint(tail) != 0 {
			return errors.Errorf("ktable %s: bits beyond capacity %d are set", t.name, t.num)
		}
	}

	return nil
}

// AddStatistics sums this table's occupancy into stats
func (t *Table[T]) AddStatistics(stats *memutils.Statistics) {
	stats.TableCount++
	stats.SlotCount += t.num
	stats.AllocationCount += t.live
	stats.SlotBytes += t.num * int(t.elemSize)
	stats.AllocationBytes += t.live * int(t.elemSize)
}

// WriteJSON populates a json object with information about this table
func (t *Table[T]) WriteJSON(json jwriter.ObjectState) {
	json.Name("Name").String(t.name)
	json.Name("Capacity").Int(t.num)
	json.Name("Allocated").Int(t.live)
	json.Name("ElementSize").Int(int(t.elemSize))
}
