package safety

import "fmt"

// State is the safety state. Transitions follow a fixed table; anything
// not in the table fails with an InvalidTransitionError and leaves the
// state unchanged.
type State int

const (
	// StateInit is the pre-test state at power-on
	StateInit State = iota

	// StateStartupTest is active while the startup self-tests run
	StateStartupTest

	// StateNormal is full operation
	StateNormal

	// StateDegraded is reduced operation after a serious error
	StateDegraded

	// StateSafe is the terminal state; only a reset leaves it
	StateSafe
)

var stateNames = map[State]string{
	StateInit:        "INIT",
	StateStartupTest: "STARTUP_TEST",
	StateNormal:      "NORMAL",
	StateDegraded:    "DEGRADED",
	StateSafe:        "SAFE",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// transitions is the complete table of permitted state changes.
var transitions = map[State][]State{
	StateInit:        {StateStartupTest, StateSafe},
	StateStartupTest: {StateNormal, StateSafe},
	StateNormal:      {StateDegraded, StateSafe},
	StateDegraded:    {StateNormal, StateSafe},
	StateSafe:        nil, // terminal
}

// canTransition reports whether from -> to is in the table.
func canTransition(from, to State) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// InvalidTransitionError reports a state change that is not in the
// transition table.
type InvalidTransitionError struct {
	From State
	To   State
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid safety state transition: %s -> %s", e.From, e.To)
}
