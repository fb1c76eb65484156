package boot

import (
	"encoding/binary"
	"fmt"

	"github.com/ycx81/go-safekernel/integrity"
	"github.com/ycx81/go-safekernel/memmap"
)

// Vector table word offsets.
const (
	vectorSPOffset    = 0
	vectorEntryOffset = 4
)

// erasedWord is the value of an erased flash word.
const erasedWord = 0xFFFFFFFF

// AppImageError reports an implausible or corrupt application image.
type AppImageError struct {
	Reason string
}

func (e *AppImageError) Error() string {
	return "invalid application image: " + e.Reason
}

// AppCRCError reports an application image CRC mismatch.
type AppCRCError struct {
	Calculated uint32
	Stored     uint32
}

func (e *AppCRCError) Error() string {
	return fmt.Sprintf("application crc mismatch: calculated 0x%08X, stored 0x%08X",
		e.Calculated, e.Stored)
}

// ValidateVectorTable runs the plausibility check on the image's vector
// table: the initial stack pointer must fall inside RAM and be
// word-aligned; the entry address must fall inside the application
// region, carry the thumb bit, and not read as erased flash.
func ValidateVectorTable(image []byte) error {
	if len(image) < vectorEntryOffset+4 {
		return &AppImageError{Reason: "too small to hold a vector table"}
	}

	sp := binary.LittleEndian.Uint32(image[vectorSPOffset:])
	entry := binary.LittleEndian.Uint32(image[vectorEntryOffset:])

	if !memmap.InRAM(sp) {
		return &AppImageError{Reason: fmt.Sprintf("stack pointer 0x%08X outside RAM", sp)}
	}
	if sp%4 != 0 {
		return &AppImageError{Reason: fmt.Sprintf("stack pointer 0x%08X not word-aligned", sp)}
	}
	if entry == erasedWord {
		return &AppImageError{Reason: "entry address reads as erased flash"}
	}
	if !memmap.InAppFlash(entry) {
		return &AppImageError{Reason: fmt.Sprintf("entry 0x%08X outside application region", entry)}
	}
	if entry&0x1 == 0 {
		return &AppImageError{Reason: fmt.Sprintf("entry 0x%08X missing thumb bit", entry)}
	}

	return nil
}

// VerifyAppCRC checks the application image against the CRC stored in
// its last word. The plausibility check runs first; an image that fails
// it is not worth the full CRC pass.
func VerifyAppCRC(image []byte) (uint32, error) {
	if err := ValidateVectorTable(image); err != nil {
		return 0, err
	}
	if len(image) < 8 || len(image)%4 != 0 {
		return 0, &AppImageError{Reason: "region size not word-aligned"}
	}

	stored := binary.LittleEndian.Uint32(image[len(image)-4:])
	calc := integrity.Checksum32(image[:len(image)-4])
	if calc != stored {
		return 0, &AppCRCError{Calculated: calc, Stored: stored}
	}

	return calc, nil
}

// EntryPoints extracts the initial stack pointer and entry address from
// a validated image.
func EntryPoints(image []byte) (sp, entry uint32) {
	sp = binary.LittleEndian.Uint32(image[vectorSPOffset:])
	entry = binary.LittleEndian.Uint32(image[vectorEntryOffset:])
	return sp, entry
}
