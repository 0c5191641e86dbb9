package mempool

import "strconv"

// Section is a [Start, End) address range provided by the linker
type Section struct {
	Start uint32
	End   uint32
}

// Sections holds the linker-provided boundaries the default pool table is built from
type Sections struct {
	KernelText Section
	UserText   Section
	KernelData Section
	KernelBSS  Section
	UserData   Section
	UserBSS    Section
	// KernelAHB is the kernel's bitmap area at the start of AHB SRAM
	KernelAHB Section
}

// Fixed end addresses and device windows of the LPC17xx memory map
const (
	SRAMEnd    uint32 = 0x10008000
	AHBRAMEnd  uint32 = 0x20084000
	APBDevBase uint32 = 0x40000000
	APBDevEnd  uint32 = 0x40100000
	AHBDevBase uint32 = 0x50000000
	AHBDevEnd  uint32 = 0x50200000
)

// DefaultSections returns a representative section layout for hosts that are not linked
// against a real kernel image
func DefaultSections() Sections {
	return Sections{
		KernelText: Section{Start: 0x00000000, End: 0x00004000},
		UserText:   Section{Start: 0x00004000, End: 0x00008000},
		KernelData: Section{Start: 0x10000000, End: 0x10000400},
		KernelBSS:  Section{Start: 0x10000400, End: 0x10001000},
		UserData:   Section{Start: 0x10001000, End: 0x10001400},
		UserBSS:    Section{Start: 0x10001400, End: 0x10001800},
		KernelAHB:  Section{Start: 0x2007c000, End: 0x2007c400},
	}
}

// DefaultPools lays out the standard pools in ID order (see KernelText..AHBDevices)
func DefaultPools(s Sections) []Pool {
	return []Pool{
		{Name: "KTEXT", Start: s.KernelText.Start, End: s.KernelText.End, Kernel: PermRX, Class: ClassNone},
		{Name: "UTEXT", Start: s.UserText.Start, End: s.UserText.End, User: PermRX, Class: ClassWholePool, MapAlways: true},
		{Name: "KDATA", Start: s.KernelData.Start, End: s.KernelData.End, Kernel: PermRW, Class: ClassNone},
		{Name: "KBSS", Start: s.KernelBSS.Start, End: s.KernelBSS.End, Kernel: PermRW, Class: ClassNone},
		{Name: "UDATA", Start: s.UserData.Start, End: s.UserData.End, User: PermRW, Class: ClassWholePool, MapAlways: true},
		{Name: "UBSS", Start: s.UserBSS.Start, End: s.UserBSS.End, User: PermRW, Class: ClassWholePool, MapAlways: true},
		{Name: "MEM0", Start: s.UserBSS.End, End: SRAMEnd, User: PermRW, Class: ClassSRAM},
		{Name: "KBITMAP", Start: s.KernelAHB.Start, End: s.KernelAHB.End, Kernel: PermRW, Class: ClassNone},
		{Name: "MEM1", Start: s.KernelAHB.End, End: AHBRAMEnd, User: PermRW, Class: ClassAHBRAM},
		{Name: "APBDEV", Start: APBDevBase, End: APBDevEnd, User: PermRW, Class: ClassDevices},
		{Name: "AHBDEV", Start: AHBDevBase, End: AHBDevEnd, User: PermRW, Class: ClassDevices},
	}
}

func hex(value uint32) string {
	return "0x" + strconv.FormatUint(uint64(value), 16)
}
