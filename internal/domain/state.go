package domain

import (
	"fmt"
	"time"
)

// LoadState is the lifecycle state of one domain.
type LoadState int

const (
	StateEmpty LoadState = iota
	StateLoading
	StateLoaded
	StateFailed
)

var stateNames = map[LoadState]string{
	StateEmpty:   "empty",
	StateLoading: "loading",
	StateLoaded:  "loaded",
	StateFailed:  "failed",
}

// transitions lists the legal target states for each source state.
var transitions = map[LoadState][]LoadState{
	StateEmpty:   {StateLoading},
	StateLoading: {StateLoaded, StateFailed},
	StateLoaded:  {StateEmpty},
	StateFailed:  {StateLoading, StateEmpty},
}

func (s LoadState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("LoadState(%d)", int(s))
}

// MarshalText encodes the state by name.
func (s LoadState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *LoadState) UnmarshalText(b []byte) error {
	for state, name := range stateNames {
		if name == string(b) {
			*s = state
			return nil
		}
	}
	return fmt.Errorf("unknown load state %q", b)
}

// CanTransition reports whether moving from s to next is legal.
func (s LoadState) CanTransition(next LoadState) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// Transition returns next if the move is legal, otherwise s and an error
// wrapping ErrInvalidTransition.
func (s LoadState) Transition(next LoadState) (LoadState, error) {
	if !s.CanTransition(next) {
		return s, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s, next)
	}
	return next, nil
}

// DomainStatus is the externally visible status of a domain.
type DomainStatus struct {
	Domain    DataDomain `json:"domain"`
	State     LoadState  `json:"state"`
	IsLoading bool       `json:"is_loading"`
	IsLoaded  bool       `json:"is_loaded"`
	Error     string     `json:"error,omitempty"`
	AttemptID string     `json:"attempt_id,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// StateChange records one transition of a domain's load state.
type StateChange struct {
	ID        string     `json:"id"`
	Domain    DataDomain `json:"domain"`
	From      LoadState  `json:"from"`
	To        LoadState  `json:"to"`
	Error     string     `json:"error,omitempty"`
	AttemptID string     `json:"attempt_id,omitempty"`
	At        time.Time  `json:"at"`
}
