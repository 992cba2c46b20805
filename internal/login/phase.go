package login

import "fmt"

// Phase is where a login attempt is in its lifecycle. SessionIssued and
// Failed are terminal; a retry always starts a new attempt.
type Phase int

const (
	Initiated Phase = iota
	AwaitingCallback
	Exchanging
	Normalizing
	SessionIssued
	Failed
)

var phaseNames = [...]string{
	Initiated:        "initiated",
	AwaitingCallback: "awaiting_callback",
	Exchanging:       "exchanging",
	Normalizing:      "normalizing",
	SessionIssued:    "session_issued",
	Failed:           "failed",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("phase(%d)", int(p))
	}
	return phaseNames[p]
}

// Terminal reports whether no further transition is allowed.
func (p Phase) Terminal() bool { return p == SessionIssued || p == Failed }

var next = map[Phase]Phase{
	Initiated:        AwaitingCallback,
	AwaitingCallback: Exchanging,
	Exchanging:       Normalizing,
	Normalizing:      SessionIssued,
}

// flow tracks one attempt's phase and enforces forward-only transitions.
type flow struct {
	phase Phase
}

func (f *flow) advance(to Phase) error {
	if f.phase.Terminal() {
		return fmt.Errorf("login: attempt already %s", f.phase)
	}
	if to != Failed && next[f.phase] != to {
		return fmt.Errorf("login: illegal transition %s -> %s", f.phase, to)
	}
	f.phase = to
	return nil
}
