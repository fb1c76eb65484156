package mpu

import (
	"errors"
	"testing"

	"github.com/ycx81/go-safekernel/memmap"
)

// fakePort records every register access and checks that region writes
// only happen while interrupts are masked.
type fakePort struct {
	t *testing.T

	regions  int
	selected uint8
	rbar     [MaxRegions]uint32
	rasr     [MaxRegions]uint32
	ctrl     uint32

	masked      bool
	barriers    int
	maskCount   int
	faultTrap   bool
	writeEvents []string
}

func newFakePort(t *testing.T) *fakePort {
	return &fakePort{t: t, regions: MaxRegions}
}

func (p *fakePort) RegionCount() int { return p.regions }

func (p *fakePort) SelectRegion(index uint8) { p.selected = index }

func (p *fakePort) WriteBase(rbar uint32) {
	if !p.masked {
		p.t.Error("WriteBase with interrupts unmasked")
	}
	p.rbar[p.selected] = rbar
	p.writeEvents = append(p.writeEvents, "rbar")
}

func (p *fakePort) WriteAttributes(rasr uint32) {
	if !p.masked {
		p.t.Error("WriteAttributes with interrupts unmasked")
	}
	p.rasr[p.selected] = rasr
	p.writeEvents = append(p.writeEvents, "rasr")
}

func (p *fakePort) ReadBase() uint32       { return p.rbar[p.selected] }
func (p *fakePort) ReadAttributes() uint32 { return p.rasr[p.selected] }

func (p *fakePort) WriteControl(ctrl uint32) {
	if !p.masked {
		p.t.Error("WriteControl with interrupts unmasked")
	}
	p.ctrl = ctrl
	p.writeEvents = append(p.writeEvents, "ctrl")
}

func (p *fakePort) ReadControl() uint32 { return p.ctrl }

func (p *fakePort) EnableFaultTrap() { p.faultTrap = true }

func (p *fakePort) MaskInterrupts() func() {
	p.masked = true
	p.maskCount++
	return func() { p.masked = false }
}

func (p *fakePort) Barrier() { p.barriers++ }

func TestNewGuardRequiresMPU(t *testing.T) {
	p := newFakePort(t)
	p.regions = 0

	if _, err := NewGuard(p); !errors.Is(err, ErrNoMPU) {
		t.Errorf("NewGuard() = %v, want ErrNoMPU", err)
	}
}

func TestApplyDefaultTable(t *testing.T) {
	p := newFakePort(t)
	g, err := NewGuard(p)
	if err != nil {
		t.Fatalf("NewGuard() error: %v", err)
	}

	if err := g.Apply(DefaultRegions()); err != nil {
		t.Fatalf("Apply() error: %v", err)
	}

	if p.ctrl != CtrlEnable|CtrlPrivDefault {
		t.Errorf("ctrl = %#x, want enable with privileged default map", p.ctrl)
	}
	if !p.faultTrap {
		t.Error("memory-management fault trap not armed")
	}
	if !g.Enabled() {
		t.Error("guard should report enabled")
	}

	// every programmed region reads back equal to its table entry
	for _, want := range DefaultRegions() {
		got, err := g.ReadRegion(want.Index)
		if err != nil {
			t.Fatalf("ReadRegion(%d) error: %v", want.Index, err)
		}
		if got != want {
			t.Errorf("region %d readback = %+v, want %+v", want.Index, got, want)
		}
	}
}

func TestApplyRejectsMisalignedBase(t *testing.T) {
	p := newFakePort(t)
	g, err := NewGuard(p)
	if err != nil {
		t.Fatalf("NewGuard() error: %v", err)
	}

	bad := DefaultRegions()
	bad[1].Base += 4

	var regionErr *RegionError
	if err := g.Apply(bad); !errors.As(err, &regionErr) {
		t.Fatalf("Apply() = %v, want RegionError", err)
	}
	if regionErr.Index != bad[1].Index {
		t.Errorf("error names region %d, want %d", regionErr.Index, bad[1].Index)
	}

	// validation failure must precede any register write
	if len(p.writeEvents) != 0 {
		t.Errorf("register writes happened despite invalid table: %v", p.writeEvents)
	}
}

func TestRegionValidate(t *testing.T) {
	valid := Region{
		Base:             memmap.RAMStart,
		Index:            RegionRAM,
		Size:             Size128KB,
		AccessPermission: APFullAccess,
		Enabled:          true,
	}

	tests := []struct {
		name    string
		mutate  func(*Region)
		wantErr bool
	}{
		{"valid", func(r *Region) {}, false},
		{"index too high", func(r *Region) { r.Index = MaxRegions }, true},
		{"size class too small", func(r *Region) { r.Size = 3 }, true},
		{"size class too large", func(r *Region) { r.Size = 32 }, true},
		{"misaligned base", func(r *Region) { r.Base = memmap.RAMStart + 0x100 }, true},
		{"reserved access permission", func(r *Region) { r.AccessPermission = 0x04 }, true},
		{"tex out of range", func(r *Region) { r.TEX = 0x8 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid
			tt.mutate(&r)
			err := r.Validate()
			if tt.wantErr && err == nil {
				t.Error("Validate() passed, want error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Validate() error: %v", err)
			}
		})
	}
}

func TestAttributesEncoding(t *testing.T) {
	r := Region{
		Base:             memmap.BootFlashStart,
		Index:            RegionAppFlash,
		Size:             Size512KB,
		AccessPermission: APReadOnly,
		Cacheable:        true,
		SubregionDisable: 0x01,
		Enabled:          true,
	}

	rasr := r.Attributes()

	want := uint32(1) | // enable
		uint32(Size512KB)<<1 |
		uint32(0x01)<<8 |
		uint32(1)<<17 | // cacheable
		uint32(APReadOnly)<<24
	if rasr != want {
		t.Errorf("Attributes() = %#08x, want %#08x", rasr, want)
	}
}

func TestAppFlashRegionGeometry(t *testing.T) {
	region := DefaultRegions()[RegionAppFlash]

	if err := region.Validate(); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}

	size := region.SizeBytes()
	if uint64(region.Base)%size != 0 {
		t.Errorf("base 0x%08X not aligned to region size %d", region.Base, size)
	}

	// Each subregion is an eighth of the region. The masked first
	// subregion must cover exactly the boot and config sectors, and the
	// application image must start in the first enabled subregion.
	sub := size / 8
	if sub != memmap.BootFlashSize+memmap.ConfigFlashSize {
		t.Errorf("subregion size = %d, want %d", sub,
			uint64(memmap.BootFlashSize+memmap.ConfigFlashSize))
	}
	if region.SubregionDisable&0x01 == 0 {
		t.Error("boot/config subregion not masked")
	}

	appSub := (uint64(memmap.AppFlashStart) - uint64(region.Base)) / sub
	if region.SubregionDisable&(1<<appSub) != 0 {
		t.Errorf("application subregion %d masked", appSub)
	}
	if end := uint64(region.Base) + size; end != memmap.AppFlashEnd+1 {
		t.Errorf("region end = 0x%08X, want 0x%08X", end, uint64(memmap.AppFlashEnd)+1)
	}
}

func TestDisableRegion(t *testing.T) {
	p := newFakePort(t)
	g, err := NewGuard(p)
	if err != nil {
		t.Fatalf("NewGuard() error: %v", err)
	}

	if err := g.Apply(DefaultRegions()); err != nil {
		t.Fatalf("Apply() error: %v", err)
	}
	if err := g.DisableRegion(RegionConfigFlash); err != nil {
		t.Fatalf("DisableRegion() error: %v", err)
	}

	got, err := g.ReadRegion(RegionConfigFlash)
	if err != nil {
		t.Fatalf("ReadRegion() error: %v", err)
	}
	if got.Enabled {
		t.Error("region still enabled after DisableRegion")
	}

	if err := g.DisableRegion(MaxRegions); err == nil {
		t.Error("DisableRegion accepted out-of-range index")
	}
}

func TestApplyBarriersAndMasking(t *testing.T) {
	p := newFakePort(t)
	g, err := NewGuard(p)
	if err != nil {
		t.Fatalf("NewGuard() error: %v", err)
	}

	if err := g.Apply(DefaultRegions()); err != nil {
		t.Fatalf("Apply() error: %v", err)
	}

	// disable + six regions + enable, one critical section each
	if p.maskCount != RegionCount+2 {
		t.Errorf("critical sections = %d, want %d", p.maskCount, RegionCount+2)
	}
	if p.barriers < p.maskCount {
		t.Errorf("barriers = %d, want at least one per critical section (%d)", p.barriers, p.maskCount)
	}
	if p.masked {
		t.Error("interrupts left masked after Apply")
	}
}

func TestDefaultRegionsValid(t *testing.T) {
	for _, r := range DefaultRegions() {
		if err := r.Validate(); err != nil {
			t.Errorf("default region %d invalid: %v", r.Index, err)
		}
	}
}
