package mpu

import "errors"

// ErrNoMPU indicates the hardware reports zero protection regions.
var ErrNoMPU = errors.New("no mpu present")

// Port is the hardware access surface of the protection unit. An
// implementation maps directly onto the system control block registers;
// tests substitute a recording fake.
type Port interface {
	// RegionCount returns the number of regions the hardware supports
	// (zero when no MPU is fitted).
	RegionCount() int

	// SelectRegion writes the region number register.
	SelectRegion(index uint8)

	// WriteBase and WriteAttributes program the selected region.
	WriteBase(rbar uint32)
	WriteAttributes(rasr uint32)

	// ReadBase and ReadAttributes read the selected region back.
	ReadBase() uint32
	ReadAttributes() uint32

	// WriteControl and ReadControl access the MPU control register.
	WriteControl(ctrl uint32)
	ReadControl() uint32

	// EnableFaultTrap arms the memory-management fault exception so
	// violations surface as faults instead of silent escalation.
	EnableFaultTrap()

	// MaskInterrupts disables interrupts and returns the function that
	// restores the previous state.
	MaskInterrupts() func()

	// Barrier issues the data and instruction synchronization barriers.
	Barrier()
}

// Guard owns the protection unit. All methods run their register writes
// inside an interrupt-masked critical section closed by a barrier.
type Guard struct {
	port Port
}

// NewGuard returns a guard over the given port, or ErrNoMPU when the
// hardware has no protection regions.
func NewGuard(port Port) (*Guard, error) {
	if port.RegionCount() == 0 {
		return nil, ErrNoMPU
	}
	return &Guard{port: port}, nil
}

// Apply validates every region, then programs the whole table and
// enables the unit with the privileged default map as fallback. Nothing
// is written until all regions validate: the hardware never sees a
// partially valid table.
func (g *Guard) Apply(regions []Region) error {
	for _, r := range regions {
		if err := r.Validate(); err != nil {
			return err
		}
		if int(r.Index) >= g.port.RegionCount() {
			return &RegionError{Index: r.Index, Reason: "index beyond hardware region count"}
		}
	}

	g.Disable()

	for _, r := range regions {
		g.configRegion(r)
	}

	g.Enable()
	return nil
}

// ConfigRegion validates and programs a single region.
func (g *Guard) ConfigRegion(r Region) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if int(r.Index) >= g.port.RegionCount() {
		return &RegionError{Index: r.Index, Reason: "index beyond hardware region count"}
	}

	g.configRegion(r)
	return nil
}

func (g *Guard) configRegion(r Region) {
	restore := g.port.MaskInterrupts()
	g.port.SelectRegion(r.Index)
	g.port.WriteBase(r.Base &^ 0x1F)
	g.port.WriteAttributes(r.Attributes())
	restore()
	g.port.Barrier()
}

// Enable turns the unit on with the privileged default memory map
// enabled, and arms the memory-management fault trap.
func (g *Guard) Enable() {
	restore := g.port.MaskInterrupts()
	g.port.WriteControl(CtrlEnable | CtrlPrivDefault)
	g.port.Barrier()
	restore()

	g.port.EnableFaultTrap()
}

// Disable turns the unit off.
func (g *Guard) Disable() {
	restore := g.port.MaskInterrupts()
	g.port.WriteControl(0)
	g.port.Barrier()
	restore()
}

// Enabled reports whether the unit is on.
func (g *Guard) Enabled() bool {
	return g.port.ReadControl()&CtrlEnable != 0
}

// DisableRegion clears a single region slot.
func (g *Guard) DisableRegion(index uint8) error {
	if int(index) >= g.port.RegionCount() {
		return &RegionError{Index: index, Reason: "index beyond hardware region count"}
	}

	restore := g.port.MaskInterrupts()
	g.port.SelectRegion(index)
	g.port.WriteAttributes(0)
	restore()
	g.port.Barrier()
	return nil
}

// ReadRegion reads a region slot back from the hardware.
func (g *Guard) ReadRegion(index uint8) (Region, error) {
	if int(index) >= g.port.RegionCount() {
		return Region{}, &RegionError{Index: index, Reason: "index beyond hardware region count"}
	}

	g.port.SelectRegion(index)
	rasr := g.port.ReadAttributes()

	return Region{
		Base:             g.port.ReadBase() &^ 0x1F,
		Index:            index,
		Size:             uint8((rasr >> rasrSizeShift) & 0x1F),
		AccessPermission: uint8((rasr >> rasrAPShift) & 0x7),
		ExecuteNever:     rasr&(1<<rasrXNShift) != 0,
		Shareable:        rasr&(1<<rasrSShift) != 0,
		Cacheable:        rasr&(1<<rasrCShift) != 0,
		Bufferable:       rasr&(1<<rasrBShift) != 0,
		TEX:              uint8((rasr >> rasrTEXShift) & 0x7),
		SubregionDisable: uint8((rasr >> rasrSRDShift) & 0xFF),
		Enabled:          rasr&rasrEnable != 0,
	}, nil
}
