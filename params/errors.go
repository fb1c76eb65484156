package params

import "fmt"

// MagicError indicates the record magic does not identify a calibration
// record.
type MagicError struct {
	Got  uint32
	Want uint32
}

func (e *MagicError) Error() string {
	return fmt.Sprintf("invalid record magic: got 0x%08X, want 0x%08X", e.Got, e.Want)
}

// VersionError indicates a record structure version mismatch.
type VersionError struct {
	Got  uint16
	Want uint16
}

func (e *VersionError) Error() string {
	return fmt.Sprintf("record version mismatch: got 0x%04X, want 0x%04X", e.Got, e.Want)
}

// SizeError indicates the declared record size does not match the
// structure layout.
type SizeError struct {
	Got  uint16
	Want uint16
}

func (e *SizeError) Error() string {
	return fmt.Sprintf("record size mismatch: declared %d, want %d", e.Got, e.Want)
}

// CRCMismatchError indicates the trailing CRC does not cover the record
// contents.
type CRCMismatchError struct {
	Calculated uint32
	Stored     uint32
}

func (e *CRCMismatchError) Error() string {
	return fmt.Sprintf("record CRC mismatch: calculated 0x%08X, stored 0x%08X",
		e.Calculated, e.Stored)
}

// RangeError indicates a calibration value outside its permitted range,
// or a NaN/infinity.
type RangeError struct {
	Field string
	Index int
	Value float32
	Min   float32
	Max   float32
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%s[%d] = %v outside range [%v, %v]",
		e.Field, e.Index, e.Value, e.Min, e.Max)
}

// RedundancyError indicates a stored inverted copy no longer matches its
// primary value.
type RedundancyError struct {
	Field string
	Index int
}

func (e *RedundancyError) Error() string {
	return fmt.Sprintf("%s[%d] redundancy check failed: inverse copy corrupt",
		e.Field, e.Index)
}
