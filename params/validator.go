package params

import (
	"math"
	"time"

	"github.com/ycx81/go-safekernel/integrity"
)

// Stats holds validation statistics for diagnostics.
type Stats struct {
	// ValidationCount is the number of full validations attempted
	ValidationCount uint32

	// PassCount is the number of validations that passed
	PassCount uint32

	// FailCount is the number of validations that failed
	FailCount uint32

	// LastResult is the error from the most recent validation, nil on pass
	LastResult error

	// LastValidation is when the most recent validation ran
	LastValidation time.Time
}

// Validator validates calibration records and caches the last record that
// passed. It is used single-threaded: once at boot, and from the safety
// monitor goroutine at runtime.
type Validator struct {
	stats  Stats
	cached *Record
	valid  bool
	now    func() time.Time
}

// NewValidator creates a calibration record validator.
func NewValidator() *Validator {
	return &Validator{now: time.Now}
}

// Validate runs the full validation pipeline, short-circuiting on the
// first failure: header, CRC, ranges, redundancy. On success the record
// is cached and nil is returned; on failure the typed error identifies
// the first failing check.
func (v *Validator) Validate(r *Record) error {
	v.stats.ValidationCount++
	v.stats.LastValidation = v.now()

	err := check(r)
	v.stats.LastResult = err
	if err != nil {
		v.stats.FailCount++
		v.valid = false
		return err
	}

	v.stats.PassCount++
	v.valid = true
	cached := *r
	v.cached = &cached
	return nil
}

// ValidateBytes parses and validates a serialized record.
func (v *Validator) ValidateBytes(data []byte) error {
	r, err := Unmarshal(data)
	if err != nil {
		v.stats.ValidationCount++
		v.stats.FailCount++
		v.stats.LastResult = err
		v.valid = false
		return err
	}
	return v.Validate(r)
}

// PeriodicCheck re-verifies only the CRC of the persisted record bytes.
// This is the low-overhead runtime check; a mismatch invalidates the
// cached record.
func (v *Validator) PeriodicCheck(persisted []byte) error {
	r, err := Unmarshal(persisted)
	if err != nil {
		v.valid = false
		return err
	}

	if calc := r.ComputeCRC(); calc != r.CRC {
		v.valid = false
		v.stats.LastResult = &CRCMismatchError{Calculated: calc, Stored: r.CRC}
		return v.stats.LastResult
	}

	return nil
}

// Valid reports whether the last full validation passed and has not been
// invalidated by a periodic check.
func (v *Validator) Valid() bool {
	return v.valid
}

// Cached returns a copy of the last record that passed full validation,
// or nil if none has.
func (v *Validator) Cached() *Record {
	if !v.valid || v.cached == nil {
		return nil
	}
	cached := *v.cached
	return &cached
}

// Stats returns a snapshot of the validation statistics.
func (v *Validator) Stats() Stats {
	return v.stats
}

// check runs the stateless validation pipeline.
func check(r *Record) error {
	// Step 1: header.
	if r.Magic != RecordMagic {
		return &MagicError{Got: r.Magic, Want: RecordMagic}
	}
	if r.Version != RecordVersion {
		return &VersionError{Got: r.Version, Want: RecordVersion}
	}
	if r.Size != RecordSize {
		return &SizeError{Got: r.Size, Want: RecordSize}
	}

	// Step 2: CRC over everything but the CRC field.
	if calc := r.ComputeCRC(); calc != r.CRC {
		return &CRCMismatchError{Calculated: calc, Stored: r.CRC}
	}

	// Step 3: ranges. NaN and infinities never pass.
	for i, val := range r.HallOffset {
		if !inRange(val, HallOffsetMin, HallOffsetMax) {
			return &RangeError{Field: "hall_offset", Index: i, Value: val,
				Min: HallOffsetMin, Max: HallOffsetMax}
		}
	}
	for i, val := range r.HallGain {
		if !inRange(val, HallGainMin, HallGainMax) {
			return &RangeError{Field: "hall_gain", Index: i, Value: val,
				Min: HallGainMin, Max: HallGainMax}
		}
	}
	for i, val := range r.ADCGain {
		if !inRange(val, ADCGainMin, ADCGainMax) {
			return &RangeError{Field: "adc_gain", Index: i, Value: val,
				Min: ADCGainMin, Max: ADCGainMax}
		}
	}
	for i, val := range r.ADCOffset {
		if !inRange(val, ADCOffsetMin, ADCOffsetMax) {
			return &RangeError{Field: "adc_offset", Index: i, Value: val,
				Min: ADCOffsetMin, Max: ADCOffsetMax}
		}
	}
	for i, val := range r.Threshold {
		if !inRange(val, ThresholdMin, ThresholdMax) {
			return &RangeError{Field: "threshold", Index: i, Value: val,
				Min: ThresholdMin, Max: ThresholdMax}
		}
	}

	// Step 4: redundancy pairs.
	for i := 0; i < HallChannels; i++ {
		if !integrity.Float32Redundant(r.HallOffset[i], r.HallOffsetInv[i]) {
			return &RedundancyError{Field: "hall_offset", Index: i}
		}
		if !integrity.Float32Redundant(r.HallGain[i], r.HallGainInv[i]) {
			return &RedundancyError{Field: "hall_gain", Index: i}
		}
	}

	return nil
}

func inRange(v float32, min, max float32) bool {
	f := float64(v)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return false
	}
	return v >= min && v <= max
}
