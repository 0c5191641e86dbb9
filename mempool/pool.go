package mempool

import "fmt"

// ID is the index of a pool within its Table
type ID int

// Unknown asks for the pool to be resolved from an address range
const Unknown ID = -1

// Pool identifiers of the table built by NewDefaultTable
const (
	KernelText ID = iota
	UserText
	KernelData
	KernelBSS
	UserData
	UserBSS
	Memory0
	KernelBitmap
	Memory1
	APBDevices
	AHBDevices
)

// Perm is a set of access permissions
type Perm uint8

const (
	PermRead Perm = 1 << iota
	PermWrite
	PermExec

	PermNone Perm = 0
	PermRW        = PermRead | PermWrite
	PermRX        = PermRead | PermExec
)

// String renders the permission as an "rwx" triple with '-' for missing bits
func (p Perm) String() string {
	b := []byte("---")
	if p&PermRead != 0 {
		b[0] = 'r'
	}
	if p&PermWrite != 0 {
		b[1] = 'w'
	}
	if p&PermExec != 0 {
		b[2] = 'x'
	}
	return string(b)
}

// Class determines how requested ranges in a pool are rounded before they are split into fpages
type Class uint8

const (
	// ClassNone pools are kernel-only and not mapped into address spaces
	ClassNone Class = iota
	// ClassSRAM pools are on-chip SRAM, rounded up to the least fpage size
	ClassSRAM
	// ClassAHBRAM pools are AHB SRAM, rounded up to the least fpage size
	ClassAHBRAM
	// ClassDevices pools are peripheral windows, masked down to the device granularity
	ClassDevices
	// ClassWholePool pools are always mapped in their entirety
	ClassWholePool
)

var classMapping = map[Class]string{
	ClassNone:      "ClassNone",
	ClassSRAM:      "ClassSRAM",
	ClassAHBRAM:    "ClassAHBRAM",
	ClassDevices:   "ClassDevices",
	ClassWholePool: "ClassWholePool",
}

var classLetters = map[Class]byte{
	ClassNone:      'N',
	ClassSRAM:      'S',
	ClassAHBRAM:    'A',
	ClassDevices:   'D',
	ClassWholePool: 'M',
}

func (c Class) String() string {
	return classMapping[c]
}

// Letter returns the single-character tag used by pool dumps
func (c Class) Letter() byte {
	letter, ok := classLetters[c]
	if !ok {
		return '?'
	}
	return letter
}

// Pool describes a named physical memory range
type Pool struct {
	Name  string
	Start uint32
	End   uint32

	Kernel Perm
	User   Perm
	Class  Class

	// MapAlways marks pools whose fpages must stay in an MPU region at all times,
	// e.g. user text without which no thread could run
	MapAlways bool
}

func (p *Pool) Size() uint32 {
	return p.End - p.Start
}

// Contains returns true if [addr, addr+length) lies entirely within the pool
func (p *Pool) Contains(addr, length uint32) bool {
	end := uint64(addr) + uint64(length)
	return p.Start <= addr && end <= uint64(p.End)
}

// Mappable returns true if fpages may be created for the pool
func (p *Pool) Mappable() bool {
	return p.Class != ClassNone
}

// Properties renders the "rwx rwx C" string used by pool dumps: kernel permissions, user
// permissions and the class letter
func (p *Pool) Properties() string {
	return fmt.Sprintf("%s %s %c", p.Kernel, p.User, p.Class.Letter())
}

func (p Pool) String() string {
	return fmt.Sprintf("%8s %8d [%#08x:%#08x] %10s", p.Name, p.Size(), p.Start, p.End, p.Properties())
}
