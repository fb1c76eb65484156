package params

import (
	"errors"
	"math"
	"testing"

	"github.com/ycx81/go-safekernel/integrity"
)

func TestValidatePipeline(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Record)
		want   error
	}{
		{
			name:   "bad magic",
			mutate: func(r *Record) { r.Magic = 0xDEADBEEF },
			want:   &MagicError{},
		},
		{
			name:   "bad version",
			mutate: func(r *Record) { r.Version = 0x0200 },
			want:   &VersionError{},
		},
		{
			name:   "bad declared size",
			mutate: func(r *Record) { r.Size = RecordSize - 8 },
			want:   &SizeError{},
		},
		{
			name:   "stale CRC",
			mutate: func(r *Record) { r.CRC ^= 1 },
			want:   &CRCMismatchError{},
		},
		{
			name: "hall offset out of range",
			mutate: func(r *Record) {
				r.HallOffset[2] = HallOffsetMax + 1
				reseal(r)
			},
			want: &RangeError{},
		},
		{
			name: "hall gain NaN",
			mutate: func(r *Record) {
				r.HallGain[0] = float32(math.NaN())
				reseal(r)
			},
			want: &RangeError{},
		},
		{
			name: "adc gain infinity",
			mutate: func(r *Record) {
				r.ADCGain[3] = float32(math.Inf(1))
				resealKeepRedundancy(r)
			},
			want: &RangeError{},
		},
		{
			name: "adc offset out of range",
			mutate: func(r *Record) {
				r.ADCOffset[5] = ADCOffsetMin - 0.5
				resealKeepRedundancy(r)
			},
			want: &RangeError{},
		},
		{
			name: "threshold out of range",
			mutate: func(r *Record) {
				r.Threshold[3] = ThresholdMax * 2
				resealKeepRedundancy(r)
			},
			want: &RangeError{},
		},
		{
			name: "redundancy corrupt",
			mutate: func(r *Record) {
				r.HallGainInv[1] = integrity.Float32FromBits(
					integrity.Float32Bits(r.HallGainInv[1]) ^ 0x10)
				resealKeepRedundancy(r)
			},
			want: &RedundancyError{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Default()
			tt.mutate(r)

			v := NewValidator()
			err := v.Validate(r)
			if err == nil {
				t.Fatal("Validate() accepted corrupt record")
			}
			if !sameKind(err, tt.want) {
				t.Errorf("Validate() = %v (%T), want kind %T", err, err, tt.want)
			}
			if v.Valid() {
				t.Error("validator reports valid after failure")
			}
		})
	}
}

// reseal recomputes header, redundancy and CRC so later pipeline steps
// are reached.
func reseal(r *Record) { r.Seal() }

// resealKeepRedundancy recomputes the CRC without touching the stored
// inverse copies.
func resealKeepRedundancy(r *Record) {
	r.Magic = RecordMagic
	r.Version = RecordVersion
	r.Size = RecordSize
	r.CRC = r.ComputeCRC()
}

func sameKind(err, want error) bool {
	switch want.(type) {
	case *MagicError:
		var e *MagicError
		return errors.As(err, &e)
	case *VersionError:
		var e *VersionError
		return errors.As(err, &e)
	case *SizeError:
		var e *SizeError
		return errors.As(err, &e)
	case *CRCMismatchError:
		var e *CRCMismatchError
		return errors.As(err, &e)
	case *RangeError:
		var e *RangeError
		return errors.As(err, &e)
	case *RedundancyError:
		var e *RedundancyError
		return errors.As(err, &e)
	}
	return false
}

func TestValidateCorruptAnyByte(t *testing.T) {
	r := Default()
	buf := r.Marshal()

	// Any single corrupted byte must fail validation. Reserved bytes and
	// the CRC itself are covered by the CRC step.
	for i := 0; i < len(buf); i += 7 {
		corrupt := make([]byte, len(buf))
		copy(corrupt, buf)
		corrupt[i] ^= 0xFF

		if err := NewValidator().ValidateBytes(corrupt); err == nil {
			t.Errorf("corruption at byte %d accepted", i)
		}
	}
}

func TestValidateCachesRecord(t *testing.T) {
	v := NewValidator()
	r := Default()
	r.HallOffset[0] = 7.5
	r.Seal()

	if err := v.Validate(r); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}

	cached := v.Cached()
	if cached == nil {
		t.Fatal("no cached record after pass")
	}
	if cached.HallOffset[0] != 7.5 {
		t.Errorf("cached hall offset = %v, want 7.5", cached.HallOffset[0])
	}

	// The cache is a copy: mutating it must not affect the validator.
	cached.HallOffset[0] = 99
	if v.Cached().HallOffset[0] != 7.5 {
		t.Error("cached record aliases validator state")
	}
}

func TestPeriodicCheck(t *testing.T) {
	v := NewValidator()
	r := Default()
	if err := v.Validate(r); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}

	persisted := r.Marshal()
	if err := v.PeriodicCheck(persisted); err != nil {
		t.Fatalf("PeriodicCheck() on intact bytes: %v", err)
	}
	if !v.Valid() {
		t.Error("valid flag cleared by passing periodic check")
	}

	persisted[20] ^= 0x01
	if err := v.PeriodicCheck(persisted); err == nil {
		t.Fatal("PeriodicCheck() accepted corrupt bytes")
	}
	if v.Valid() {
		t.Error("cached record not invalidated by periodic check failure")
	}
	if v.Cached() != nil {
		t.Error("Cached() returned record after invalidation")
	}
}

func TestValidatorStats(t *testing.T) {
	v := NewValidator()
	good := Default()
	bad := Default()
	bad.CRC ^= 1

	_ = v.Validate(good)
	_ = v.Validate(bad)
	_ = v.Validate(good)

	s := v.Stats()
	if s.ValidationCount != 3 || s.PassCount != 2 || s.FailCount != 1 {
		t.Errorf("stats = %d/%d/%d, want 3/2/1",
			s.ValidationCount, s.PassCount, s.FailCount)
	}
	if s.LastResult != nil {
		t.Errorf("last result = %v, want nil after pass", s.LastResult)
	}
}
