package params

import (
	"encoding/binary"
	"fmt"

	"github.com/ycx81/go-safekernel/integrity"
)

// Record layout constants.
const (
	// RecordMagic identifies a calibration record (0xCA11B000)
	RecordMagic = 0xCA11B000

	// RecordVersion is the record structure version (1.0)
	RecordVersion = 0x0100

	// RecordSize is the serialized record size in bytes
	RecordSize = 168

	// crcOffset is the byte offset of the trailing CRC field
	crcOffset = RecordSize - 4
)

// Array dimensions.
const (
	// HallChannels is the number of hall sensor channels
	HallChannels = 3

	// ADCChannels is the number of calibrated ADC channels
	ADCChannels = 8

	// ThresholdCount is the number of safety thresholds
	ThresholdCount = 4

	// ReservedWords is the number of reserved words in the record
	ReservedWords = 7
)

// Record is a safety calibration record as persisted in config flash.
type Record struct {
	// Magic must equal RecordMagic
	Magic uint32

	// Version is the structure version
	Version uint16

	// Size is the declared structure size, must equal RecordSize
	Size uint16

	// HallOffset holds per-channel hall sensor offsets
	HallOffset [HallChannels]float32

	// HallGain holds per-channel hall sensor gains
	HallGain [HallChannels]float32

	// HallOffsetInv holds the bitwise-inverted copies of HallOffset
	HallOffsetInv [HallChannels]float32

	// HallGainInv holds the bitwise-inverted copies of HallGain
	HallGainInv [HallChannels]float32

	// ADCGain holds per-channel ADC gains
	ADCGain [ADCChannels]float32

	// ADCOffset holds per-channel ADC offsets
	ADCOffset [ADCChannels]float32

	// Threshold holds the safety threshold values
	Threshold [ThresholdCount]float32

	// Reserved is kept for future use, persisted as-is
	Reserved [ReservedWords]uint32

	// CRC is the CRC-32 over every preceding byte
	CRC uint32
}

// Default returns the factory default record: zero offsets, unity gains,
// the default threshold ladder, redundancy prepared and CRC sealed.
func Default() *Record {
	r := &Record{}
	for i := 0; i < HallChannels; i++ {
		r.HallOffset[i] = 0
		r.HallGain[i] = 1.0
	}
	for i := 0; i < ADCChannels; i++ {
		r.ADCGain[i] = 1.0
		r.ADCOffset[i] = 0
	}
	r.Threshold = [ThresholdCount]float32{1000, 2000, 3000, 4000}
	r.Seal()
	return r
}

// PrepareRedundancy regenerates the inverted copies from the primary
// hall calibration values. Must be called after any mutation of
// HallOffset or HallGain and before Seal.
func (r *Record) PrepareRedundancy() {
	for i := 0; i < HallChannels; i++ {
		r.HallOffsetInv[i] = integrity.Float32Inverse(r.HallOffset[i])
		r.HallGainInv[i] = integrity.Float32Inverse(r.HallGain[i])
	}
}

// Seal stamps the header, regenerates the redundancy copies, and computes
// the trailing CRC, making the record ready to persist.
func (r *Record) Seal() {
	r.Magic = RecordMagic
	r.Version = RecordVersion
	r.Size = RecordSize
	r.PrepareRedundancy()
	r.CRC = r.ComputeCRC()
}

// ComputeCRC returns the CRC-32 over the serialized record excluding the
// trailing CRC field itself.
func (r *Record) ComputeCRC() uint32 {
	buf := r.Marshal()
	return integrity.Checksum32(buf[:crcOffset])
}

// Marshal serializes the record into its fixed little-endian layout.
func (r *Record) Marshal() []byte {
	buf := make([]byte, RecordSize)
	le := binary.LittleEndian

	le.PutUint32(buf[0:], r.Magic)
	le.PutUint16(buf[4:], r.Version)
	le.PutUint16(buf[6:], r.Size)

	off := 8
	off = putFloats(buf, off, r.HallOffset[:])
	off = putFloats(buf, off, r.HallGain[:])
	off = putFloats(buf, off, r.HallOffsetInv[:])
	off = putFloats(buf, off, r.HallGainInv[:])
	off = putFloats(buf, off, r.ADCGain[:])
	off = putFloats(buf, off, r.ADCOffset[:])
	off = putFloats(buf, off, r.Threshold[:])

	for _, w := range r.Reserved {
		le.PutUint32(buf[off:], w)
		off += 4
	}

	le.PutUint32(buf[crcOffset:], r.CRC)
	return buf
}

// Unmarshal parses a serialized record. It checks only the length; all
// content checks belong to the Validator.
func Unmarshal(data []byte) (*Record, error) {
	if len(data) != RecordSize {
		return nil, fmt.Errorf("record must be exactly %d bytes, got %d", RecordSize, len(data))
	}

	le := binary.LittleEndian
	r := &Record{
		Magic:   le.Uint32(data[0:]),
		Version: le.Uint16(data[4:]),
		Size:    le.Uint16(data[6:]),
	}

	off := 8
	off = getFloats(data, off, r.HallOffset[:])
	off = getFloats(data, off, r.HallGain[:])
	off = getFloats(data, off, r.HallOffsetInv[:])
	off = getFloats(data, off, r.HallGainInv[:])
	off = getFloats(data, off, r.ADCGain[:])
	off = getFloats(data, off, r.ADCOffset[:])
	off = getFloats(data, off, r.Threshold[:])

	for i := range r.Reserved {
		r.Reserved[i] = le.Uint32(data[off:])
		off += 4
	}

	r.CRC = le.Uint32(data[crcOffset:])
	return r, nil
}

func putFloats(buf []byte, off int, vals []float32) int {
	for _, v := range vals {
		binary.LittleEndian.PutUint32(buf[off:], integrity.Float32Bits(v))
		off += 4
	}
	return off
}

func getFloats(data []byte, off int, vals []float32) int {
	for i := range vals {
		bits := binary.LittleEndian.Uint32(data[off:])
		vals[i] = integrity.Float32FromBits(bits)
		off += 4
	}
	return off
}
