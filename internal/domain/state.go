// Package domain defines the core model of the RPC server framework:
// the server state machine, command contracts, and the typed errors the
// framework reports.
package domain

import (
	"sync/atomic"
	"time"

	"github.com/piperpc/piperpc/internal/domain/shared"
)

// Status represents the protocol phase of the server.
type Status int

// Server lifecycle phases. Transitions are monotonic: a server never moves
// backward to an earlier phase.
const (
	// StatusStarted is the phase between process start and a successful
	// initialize handshake. Only the initialize command is admissible.
	StatusStarted Status = iota
	// StatusInitialized is the normal operating phase.
	StatusInitialized
	// StatusShuttingDown is entered when a shutdown request is received.
	StatusShuttingDown
	// StatusStopped is the terminal phase, entered on exit.
	StatusStopped
)

// String returns the wire-friendly name of the status.
func (s Status) String() string {
	switch s {
	case StatusStarted:
		return "Started"
	case StatusInitialized:
		return "Initialized"
	case StatusShuttingDown:
		return "ShuttingDown"
	case StatusStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// ServerState is a point-in-time snapshot of the server's phase and
// identity facts. The identity fields are fixed at construction; only
// Status changes over the process lifetime.
type ServerState struct {
	Status    Status
	ProcessID int
	StartTime *time.Time
	Version   string
	Name      string
}

// StateProvider exposes a read-only view of the server state to commands.
type StateProvider interface {
	// Current returns a consistent snapshot of the server state. It never
	// blocks and is safe for concurrent use.
	Current() ServerState
}

// StateStore holds the mutable server state. Reads return atomic
// snapshots; writes are restricted to the handshake and shutdown choke
// points, each of which validates the transition it performs.
type StateStore struct {
	state atomic.Pointer[ServerState]
}

// NewStateStore creates a StateStore in the Started phase with the given
// identity facts.
func NewStateStore(name, version string, processID int, startTime time.Time) *StateStore {
	s := &StateStore{}
	s.state.Store(&ServerState{
		Status:    StatusStarted,
		ProcessID: processID,
		StartTime: &startTime,
		Version:   version,
		Name:      name,
	})
	return s
}

// Current returns a consistent snapshot of the server state.
func (s *StateStore) Current() ServerState {
	return *s.state.Load()
}

// MarkInitialized completes the handshake, moving the server from Started
// to Initialized. It is the only legal entry into the Initialized phase.
func (s *StateStore) MarkInitialized() error {
	return s.transition(StatusStarted, StatusInitialized)
}

// BeginShutdown moves the server from Initialized to ShuttingDown.
func (s *StateStore) BeginShutdown() error {
	return s.transition(StatusInitialized, StatusShuttingDown)
}

// MarkStopped moves the server into the terminal Stopped phase. Unlike the
// other transitions it is admissible from any non-terminal phase, since an
// exit notification may arrive without a prior shutdown request.
func (s *StateStore) MarkStopped() error {
	for {
		current := s.state.Load()
		if current.Status == StatusStopped {
			return &InvalidStateError{
				Command:        shared.OpExit,
				Actual:         current.Status,
				ExpectedStates: []Status{StatusStarted, StatusInitialized, StatusShuttingDown},
			}
		}
		next := *current
		next.Status = StatusStopped
		if s.state.CompareAndSwap(current, &next) {
			return nil
		}
	}
}

func (s *StateStore) transition(from, to Status) error {
	for {
		current := s.state.Load()
		if current.Status != from {
			return &InvalidStateError{
				Actual:         current.Status,
				ExpectedStates: []Status{from},
			}
		}
		next := *current
		next.Status = to
		if s.state.CompareAndSwap(current, &next) {
			return nil
		}
	}
}
