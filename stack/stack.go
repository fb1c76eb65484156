// Package stack measures thread stack usage by scanning for the
// kernel's fill pattern. Stacks are filled with 0xEF at creation; the
// contiguous run of fill bytes from the unused end tells how deep the
// stack has ever grown. Crossing the warning threshold is reported once
// per check pass, crossing the critical threshold is a stack-overflow
// hazard.
package stack

import "fmt"

// FillByte is the pattern the kernel writes into fresh stack memory.
const FillByte = 0xEF

// Default usage thresholds in percent.
const (
	DefaultWarningPercent  = 70
	DefaultCriticalPercent = 90
)

// MaxRegions bounds the number of monitored stacks.
const MaxRegions = 16

// Region is one monitored stack. Memory must cover the whole stack,
// index 0 at the unused (deepest) end.
type Region struct {
	Name   string
	Memory []byte
}

// Info is the measured state of one stack.
type Info struct {
	Name         string
	Size         int
	Used         int
	Available    int
	UsagePercent int
	Warning      bool
	Critical     bool
}

// UsageError reports a stack past its critical threshold.
type UsageError struct {
	Name         string
	UsagePercent int
}

func (e *UsageError) Error() string {
	return fmt.Sprintf("stack %q at %d%% usage", e.Name, e.UsagePercent)
}

// Monitor tracks registered stack regions.
type Monitor struct {
	regions         []Region
	warningPercent  int
	criticalPercent int

	// onWarning is invoked for each stack past the warning threshold
	// but below critical.
	onWarning func(Info)
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithThresholds overrides the warning and critical usage percentages.
func WithThresholds(warning, critical int) Option {
	return func(m *Monitor) {
		m.warningPercent = warning
		m.criticalPercent = critical
	}
}

// WithWarningHandler sets the callback for warning-level usage.
func WithWarningHandler(fn func(Info)) Option {
	return func(m *Monitor) {
		m.onWarning = fn
	}
}

// NewMonitor returns an empty stack monitor.
func NewMonitor(opts ...Option) *Monitor {
	m := &Monitor{
		warningPercent:  DefaultWarningPercent,
		criticalPercent: DefaultCriticalPercent,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register adds a stack region. Registering the same name again is a
// no-op.
func (m *Monitor) Register(r Region) error {
	if r.Name == "" || len(r.Memory) == 0 {
		return fmt.Errorf("invalid stack region %q", r.Name)
	}

	for _, have := range m.regions {
		if have.Name == r.Name {
			return nil
		}
	}
	if len(m.regions) >= MaxRegions {
		return fmt.Errorf("stack region limit (%d) reached", MaxRegions)
	}

	m.regions = append(m.regions, r)
	return nil
}

// Unregister removes a stack region by name.
func (m *Monitor) Unregister(name string) error {
	for i, have := range m.regions {
		if have.Name == name {
			m.regions = append(m.regions[:i], m.regions[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("stack region %q not registered", name)
}

// Count returns the number of monitored regions.
func (m *Monitor) Count() int {
	return len(m.regions)
}

// Measure scans one region and classifies its usage.
func (m *Monitor) Measure(r Region) Info {
	unused := 0
	for _, b := range r.Memory {
		if b != FillByte {
			break
		}
		unused++
	}

	size := len(r.Memory)
	used := size - unused
	percent := used * 100 / size

	return Info{
		Name:         r.Name,
		Size:         size,
		Used:         used,
		Available:    unused,
		UsagePercent: percent,
		Warning:      percent >= m.warningPercent,
		Critical:     percent >= m.criticalPercent,
	}
}

// CheckAll measures every region. Warning-level stacks go to the
// warning handler; the first critical-level stack is returned as a
// UsageError.
func (m *Monitor) CheckAll() error {
	var firstCritical *UsageError

	for _, r := range m.regions {
		info := m.Measure(r)
		switch {
		case info.Critical:
			if firstCritical == nil {
				firstCritical = &UsageError{Name: info.Name, UsagePercent: info.UsagePercent}
			}
		case info.Warning:
			if m.onWarning != nil {
				m.onWarning(info)
			}
		}
	}

	if firstCritical != nil {
		return firstCritical
	}
	return nil
}

// Snapshot measures every region.
func (m *Monitor) Snapshot() []Info {
	out := make([]Info, 0, len(m.regions))
	for _, r := range m.regions {
		out = append(out, m.Measure(r))
	}
	return out
}
