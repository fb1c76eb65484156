package boot

import (
	"encoding/binary"
	"fmt"

	"github.com/ycx81/go-safekernel/integrity"
)

// Boot configuration constants.
const (
	// ConfigMagic identifies a valid boot configuration (0xC0F16000)
	ConfigMagic = 0xC0F16000

	// ConfigSize is the serialized size in bytes
	ConfigSize = 36

	// configCRCOffset is the byte offset of the trailing CRC
	configCRCOffset = ConfigSize - 4

	// configReservedWords is the number of reserved words
	configReservedWords = 2
)

// Config is the boot configuration record, stored at the start of the
// config flash sector, ahead of the calibration record.
type Config struct {
	Magic       uint32
	FactoryMode uint32 // zero = normal boot, non-zero = factory divert
	CalValid    uint32
	AppCRC      uint32 // cached application CRC
	BootCount   uint32
	LastError   uint32
	Reserved    [configReservedWords]uint32
	CRC         uint32
}

// ConfigMagicError reports a missing or foreign boot configuration.
type ConfigMagicError struct {
	Got uint32
}

func (e *ConfigMagicError) Error() string {
	return fmt.Sprintf("boot config magic 0x%08X, want 0x%08X", e.Got, uint32(ConfigMagic))
}

// ConfigCRCError reports boot configuration corruption.
type ConfigCRCError struct {
	Calculated uint32
	Stored     uint32
}

func (e *ConfigCRCError) Error() string {
	return fmt.Sprintf("boot config crc mismatch: calculated 0x%08X, stored 0x%08X",
		e.Calculated, e.Stored)
}

// DefaultConfig returns a fresh boot configuration, as written on first
// boot or after config-sector corruption.
func DefaultConfig() *Config {
	return &Config{Magic: ConfigMagic}
}

// ComputeCRC calculates the CRC over every field before the CRC itself.
func (c *Config) ComputeCRC() uint32 {
	return integrity.Checksum32(c.Marshal()[:configCRCOffset])
}

// Seal stamps the CRC.
func (c *Config) Seal() {
	c.CRC = c.ComputeCRC()
}

// Marshal serializes the configuration, little-endian.
func (c *Config) Marshal() []byte {
	buf := make([]byte, ConfigSize)
	binary.LittleEndian.PutUint32(buf[0:], c.Magic)
	binary.LittleEndian.PutUint32(buf[4:], c.FactoryMode)
	binary.LittleEndian.PutUint32(buf[8:], c.CalValid)
	binary.LittleEndian.PutUint32(buf[12:], c.AppCRC)
	binary.LittleEndian.PutUint32(buf[16:], c.BootCount)
	binary.LittleEndian.PutUint32(buf[20:], c.LastError)
	for i, w := range c.Reserved {
		binary.LittleEndian.PutUint32(buf[24+4*i:], w)
	}
	binary.LittleEndian.PutUint32(buf[configCRCOffset:], c.CRC)
	return buf
}

// UnmarshalConfig parses and verifies a serialized boot configuration:
// magic first, then the trailing CRC.
func UnmarshalConfig(data []byte) (*Config, error) {
	if len(data) < ConfigSize {
		return nil, fmt.Errorf("boot config truncated: %d bytes, need %d", len(data), ConfigSize)
	}

	c := &Config{
		Magic:       binary.LittleEndian.Uint32(data[0:]),
		FactoryMode: binary.LittleEndian.Uint32(data[4:]),
		CalValid:    binary.LittleEndian.Uint32(data[8:]),
		AppCRC:      binary.LittleEndian.Uint32(data[12:]),
		BootCount:   binary.LittleEndian.Uint32(data[16:]),
		LastError:   binary.LittleEndian.Uint32(data[20:]),
		CRC:         binary.LittleEndian.Uint32(data[configCRCOffset:]),
	}
	for i := range c.Reserved {
		c.Reserved[i] = binary.LittleEndian.Uint32(data[24+4*i:])
	}

	if c.Magic != ConfigMagic {
		return nil, &ConfigMagicError{Got: c.Magic}
	}
	if calc := c.ComputeCRC(); calc != c.CRC {
		return nil, &ConfigCRCError{Calculated: calc, Stored: c.CRC}
	}

	return c, nil
}
