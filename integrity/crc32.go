package integrity

import "encoding/binary"

// CRC-32 algorithm constants, matching the STM32 hardware CRC unit.
const (
	// CRC32Polynomial is the Ethernet polynomial (0x04C11DB7)
	CRC32Polynomial = 0x04C11DB7

	// CRC32InitialValue is the CRC-32 initial value
	CRC32InitialValue = 0xFFFFFFFF

	// CRC32HighBitMask is the high bit mask for CRC-32 calculations
	CRC32HighBitMask = 0x80000000

	// CRC32WordSize is the input word size in bytes
	CRC32WordSize = 4

	// ErasedBytePattern is the value of an erased flash byte, used to pad
	// a trailing partial word
	ErasedBytePattern = 0xFF
)

// CRC32 is an incremental CRC-32 calculator. The zero value is not ready
// for use; call NewCRC32 or Reset first.
//
// CRC32 is not safe for concurrent use. The runtime monitor is the sole
// writer of the incremental flash-check state, so no locking is needed.
type CRC32 struct {
	crc     uint32
	pending [CRC32WordSize]byte
	npend   int
}

// NewCRC32 returns a CRC-32 calculator seeded with the initial value.
func NewCRC32() *CRC32 {
	return &CRC32{crc: CRC32InitialValue}
}

// Reset restores the calculator to its initial state.
func (c *CRC32) Reset() {
	c.crc = CRC32InitialValue
	c.npend = 0
}

// Update feeds data into the calculation. Data fed across multiple calls
// produces the same result as a single call over the concatenation; a
// partial trailing word is buffered until the next call or Sum.
func (c *CRC32) Update(data []byte) {
	// Complete a buffered partial word first.
	if c.npend > 0 {
		n := copy(c.pending[c.npend:], data)
		c.npend += n
		data = data[n:]
		if c.npend < CRC32WordSize {
			return
		}
		c.accumulate(binary.LittleEndian.Uint32(c.pending[:]))
		c.npend = 0
	}

	for len(data) >= CRC32WordSize {
		c.accumulate(binary.LittleEndian.Uint32(data))
		data = data[CRC32WordSize:]
	}

	c.npend = copy(c.pending[:], data)
}

// Sum returns the CRC over all data fed so far. A buffered partial word is
// folded in padded with 0xFF, as the hardware unit sees erased flash; the
// calculator state itself is left untouched, so Update may continue.
func (c *CRC32) Sum() uint32 {
	if c.npend == 0 {
		return c.crc
	}

	tail := *c
	for i := tail.npend; i < CRC32WordSize; i++ {
		tail.pending[i] = ErasedBytePattern
	}
	tail.accumulate(binary.LittleEndian.Uint32(tail.pending[:]))
	return tail.crc
}

// accumulate folds one 32-bit word into the CRC, MSB first.
func (c *CRC32) accumulate(word uint32) {
	c.crc ^= word
	for i := 0; i < 32; i++ {
		if c.crc&CRC32HighBitMask != 0 {
			c.crc = (c.crc << 1) ^ CRC32Polynomial
		} else {
			c.crc = c.crc << 1
		}
	}
}

// Checksum32 computes the CRC-32 of data in one pass.
// Returns 0 for empty input, matching the hardware wrapper it replaces.
func Checksum32(data []byte) uint32 {
	if len(data) == 0 {
		return 0
	}

	c := NewCRC32()
	c.Update(data)
	return c.Sum()
}
