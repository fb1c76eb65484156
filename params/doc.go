// Package params defines the safety calibration record and its validator.
//
// # Record Layout
//
// A Record is a fixed 168-byte, little-endian structure stored in the
// erase-aligned config flash sector, immediately after the boot
// configuration:
//
//	offset size field
//	0      4    magic (0xCA11B000)
//	4      2    version
//	6      2    declared size
//	8      12   hall offsets (3 × float32)
//	20     12   hall gains
//	32     12   hall offset inverted copies
//	44     12   hall gain inverted copies
//	56     32   ADC gains (8 × float32)
//	88     32   ADC offsets
//	120    16   safety thresholds (4 × float32)
//	136    28   reserved
//	164    4    CRC-32 over bytes 0..163
//
// Hall calibration values carry bitwise-inverted copies as a cheap
// single-fault-detecting redundancy; see the integrity package.
//
// # Validation
//
// Validation is a short-circuiting pipeline: header (magic, version,
// declared size), CRC, range checks against the fixed limits in this
// package (NaN and infinities always rejected), then the redundancy
// pairs. The first failing step is reported as a typed error naming the
// offending field.
//
// The periodic runtime re-check repeats only the CRC step against the
// persisted bytes, keeping the monitor-cycle overhead bounded.
//
// Records are written only by the factory calibration protocol while a
// debugger is attached; everything else treats them as read-only.
package params
