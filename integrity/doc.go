// Package integrity provides the integrity primitives shared by every layer
// of the safety kernel: CRC-32 as computed by the STM32 hardware CRC unit,
// software CRC-16-CCITT, and the bit-inversion redundancy checks used for
// safety-critical calibration values.
//
// # CRC-32
//
// The CRC-32 here is NOT the reflected IEEE variant from hash/crc32. It
// matches the STM32F4 hardware CRC peripheral: polynomial 0x04C11DB7,
// initial value 0xFFFFFFFF, MSB-first, fed one 32-bit word at a time with
// no final XOR. Input bytes are assembled into words little-endian; a
// trailing partial word is padded with 0xFF, the value of erased flash.
//
// Both one-shot and incremental calculation are supported. The incremental
// form exists so the runtime flash check can spread a full-image CRC over
// many monitor cycles:
//
//	crc := integrity.NewCRC32()
//	for _, block := range blocks {
//	    crc.Update(block)
//	}
//	sum := crc.Sum() // identical to integrity.Checksum32(image)
//
// # Redundancy
//
// Safety-critical values are stored twice: the primary value and its
// bitwise complement. A stored pair is intact only if
// bits(primary) == ^bits(inverse). The bit reinterpretation of float32
// values is confined to this package.
package integrity
