// Package simulator models a set of simulated devices stored as a YAML
// device set and the state transitions the command interpreter drives.
package simulator

import (
	"errors"
	"fmt"
	"strings"
)

// State is the lifecycle state of a simulator.
type State string

const (
	StateCreating     State = "creating"
	StateShutdown     State = "shutdown"
	StateBooting      State = "booting"
	StateBooted       State = "booted"
	StateShuttingDown State = "shutting-down"
	StateUnknown      State = "unknown"
)

var (
	ErrNotFound     = errors.New("simulator not found")
	ErrInvalidState = errors.New("invalid simulator state")
)

var knownStates = []State{StateCreating, StateShutdown, StateBooting, StateBooted, StateShuttingDown, StateUnknown}

// ParseState accepts state names case-insensitively. "shutting_down" and
// "shuttingdown" are accepted for shutting-down.
func ParseState(s string) (State, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	switch norm {
	case "shutting_down", "shuttingdown":
		return StateShuttingDown, nil
	}
	for _, st := range knownStates {
		if string(st) == norm {
			return st, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidState, s)
}

// Simulator is one device in a device set.
type Simulator struct {
	UDID       string `yaml:"udid"`
	Name       string `yaml:"name"`
	DeviceName string `yaml:"deviceName"`
	OSVersion  string `yaml:"osVersion"`
	State      State  `yaml:"state"`
}

func (s Simulator) String() string {
	return fmt.Sprintf("%s | %s | %s", s.Name, s.UDID, s.State)
}
