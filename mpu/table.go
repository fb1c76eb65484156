package mpu

import "github.com/ycx81/go-safekernel/memmap"

// DefaultRegions returns the fixed six-region protection table derived
// from the shared memory map:
//
//	0: application flash, read-only, executable. A 512KB region must be
//	   512KB-aligned, so it is based at the flash origin with the first
//	   64KB subregion masked; that subregion is exactly the boot and
//	   config sectors, which get their own stricter regions below
//	1: main RAM, full access, execute-never
//	2: CCM RAM (stacks, error log), full access, execute-never,
//	   strongly ordered so stack writes are never reordered
//	3: peripheral window, device memory, execute-never
//	4: config/calibration flash, read-only even to privileged code;
//	   calibration writes go through a temporary region change
//	5: bootloader flash, privileged read-only, upper subregions masked
//	   because 48KB sits in a 64KB region
func DefaultRegions() []Region {
	return []Region{
		{
			Base:             memmap.BootFlashStart,
			Index:            RegionAppFlash,
			Size:             Size512KB,
			AccessPermission: APReadOnly,
			ExecuteNever:     false,
			Cacheable:        true,
			TEX:              TEXNormalWT,
			SubregionDisable: 0x01,
			Enabled:          true,
		},
		{
			Base:             memmap.RAMStart,
			Index:            RegionRAM,
			Size:             Size128KB,
			AccessPermission: APFullAccess,
			ExecuteNever:     true,
			Shareable:        true,
			Cacheable:        true,
			Bufferable:       true,
			TEX:              TEXNormalWB,
			Enabled:          true,
		},
		{
			Base:             memmap.CCMRAMStart,
			Index:            RegionCCM,
			Size:             Size64KB,
			AccessPermission: APFullAccess,
			ExecuteNever:     true,
			TEX:              TEXStronglyOrdered,
			Enabled:          true,
		},
		{
			Base:             memmap.PeriphBase,
			Index:            RegionPeriph,
			Size:             Size512MB,
			AccessPermission: APFullAccess,
			ExecuteNever:     true,
			Shareable:        true,
			Bufferable:       true,
			TEX:              TEXDevice,
			Enabled:          true,
		},
		{
			Base:             memmap.ConfigFlashStart,
			Index:            RegionConfigFlash,
			Size:             Size16KB,
			AccessPermission: APReadOnly,
			ExecuteNever:     true,
			Cacheable:        true,
			TEX:              TEXNormalWT,
			Enabled:          true,
		},
		{
			Base:             memmap.BootFlashStart,
			Index:            RegionBootFlash,
			Size:             Size64KB,
			AccessPermission: APPrivRO,
			ExecuteNever:     true,
			Cacheable:        true,
			TEX:              TEXNormalWT,
			SubregionDisable: 0xC0,
			Enabled:          true,
		},
	}
}
