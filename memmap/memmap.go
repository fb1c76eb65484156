// Package memmap defines the fixed memory map shared between the boot stage
// and the application runtime. Both sides must agree on these addresses
// byte for byte: the boot sequencer writes calibration data where the
// runtime validator reads it, and the region guard derives its protection
// table from the same layout.
//
// The map targets an STM32F407-class part: 1MB flash split into a
// bootloader region, an erase-aligned config/calibration sector, and the
// application image; 128KB main RAM plus 64KB core-coupled RAM for stacks.
package memmap

// Flash regions.
const (
	// BootFlashStart is the base of the bootloader region (sectors 0-2)
	BootFlashStart = 0x08000000

	// BootFlashSize is the bootloader region size (48KB)
	BootFlashSize = 0x0000C000

	// BootFlashEnd is the last byte of the bootloader region
	BootFlashEnd = BootFlashStart + BootFlashSize - 1

	// ConfigFlashStart is the base of the config/calibration sector
	ConfigFlashStart = 0x0800C000

	// ConfigFlashSize is the config sector size (16KB, one erase unit)
	ConfigFlashSize = 0x00004000

	// ConfigFlashEnd is the last byte of the config sector
	ConfigFlashEnd = ConfigFlashStart + ConfigFlashSize - 1

	// AppFlashStart is the base of the application image (sectors 4-7)
	AppFlashStart = 0x08010000

	// AppFlashSize is the application region size (448KB)
	AppFlashSize = 0x00070000

	// AppFlashEnd is the last byte of the application region
	AppFlashEnd = AppFlashStart + AppFlashSize - 1

	// AppCRCAddr holds the application image CRC (last 4 bytes)
	AppCRCAddr = AppFlashEnd - 3
)

// RAM regions.
const (
	// RAMStart is the base of main RAM
	RAMStart = 0x20000000

	// RAMSize is the main RAM size (128KB)
	RAMSize = 0x00020000

	// RAMEnd is the first address past main RAM
	RAMEnd = RAMStart + RAMSize

	// CCMRAMStart is the base of core-coupled RAM (stacks, error log)
	CCMRAMStart = 0x10000000

	// CCMRAMSize is the CCM RAM size (64KB)
	CCMRAMSize = 0x00010000

	// RAMTestStart is the base of the startup RAM test window
	RAMTestStart = 0x20018000

	// RAMTestSize is the RAM test window size (32KB)
	RAMTestSize = 0x00008000
)

// Peripheral window.
const (
	// PeriphBase is the base of the peripheral address space
	PeriphBase = 0x40000000

	// PeriphSize is the peripheral window size (512MB)
	PeriphSize = 0x20000000
)

// Factory protocol mailbox, placed at the bottom of CCM RAM where an
// attached debugger can reach it without touching application memory.
const (
	// FactoryCmdAddr is the command word slot
	FactoryCmdAddr = CCMRAMStart

	// FactoryRspAddr is the response word slot
	FactoryRspAddr = CCMRAMStart + 4

	// FactoryDataAddr is the start of the record exchange buffer
	FactoryDataAddr = CCMRAMStart + 8
)

// InRAM reports whether addr lies inside main RAM.
func InRAM(addr uint32) bool {
	return addr >= RAMStart && addr < RAMEnd
}

// InAppFlash reports whether addr lies inside the application region.
func InAppFlash(addr uint32) bool {
	return addr >= AppFlashStart && addr <= AppFlashEnd
}
