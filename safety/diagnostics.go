package safety

import (
	"fmt"
	"io"
)

// WriteDiagnostics writes a fixed-format diagnostic dump: state, error
// bookkeeping, validity flags, and the four most recent error log
// entries.
func (m *Manager) WriteDiagnostics(w io.Writer) error {
	m.mu.Lock()
	state := m.state
	lastError := m.lastError
	errorCount := m.errorCount
	uptime := m.now().Sub(m.started)
	startupOK := m.startupTestPassed
	paramsOK := m.paramsValid
	mpuOK := m.mpuEnabled
	wdgOK := m.watchdogActive
	m.mu.Unlock()

	yn := func(b bool) string {
		if b {
			return "Yes"
		}
		return "No"
	}

	var err error
	p := func(format string, args ...interface{}) {
		if err == nil {
			_, err = fmt.Fprintf(w, format+"\n", args...)
		}
	}

	p("========== Safety Diagnostics ==========")
	p("State:       %s", state)
	p("Last Error:  %s", lastError)
	p("Error Count: %d", errorCount)
	p("Uptime:      %d ms", uptime.Milliseconds())
	p("Startup OK:  %s", yn(startupOK))
	p("Params OK:   %s", yn(paramsOK))
	p("MPU Active:  %s", yn(mpuOK))
	p("WDG Active:  %s", yn(wdgOK))

	p("--- Error Log (last 4) ---")
	for i, entry := range m.ErrorLog() {
		if i >= 4 {
			break
		}
		p("[%d] %s @%d P1=%X P2=%X",
			i, entry.Code, entry.Timestamp.UnixMilli(), entry.Param1, entry.Param2)
	}
	p("=========================================")

	return err
}
