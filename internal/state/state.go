// Package state holds the system-wide operating state of the heater.
// Transitions are guarded by a fixed table; an illegal request drives the
// machine into Error, which the core never leaves on its own.
package state

import (
	"fmt"
	"log"

	"github.com/qmuntal/stateless"
)

// State is a system operating state.
type State int

const (
	Init State = iota
	Ready
	PreHeat
	Running
	Error
	Shutdown
)

var names = map[State]string{
	Init:     "initializing",
	Ready:    "ready",
	PreHeat:  "pre-heating",
	Running:  "running",
	Error:    "error",
	Shutdown: "shut-down",
}

// String returns the operator-facing name of the state.
func (s State) String() string {
	if n, ok := names[s]; ok {
		return n
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// All lists every state in declaration order.
func All() []State {
	return []State{Init, Ready, PreHeat, Running, Error, Shutdown}
}

// transitions is the legal transition table, excluding the implicit
// any -> Error edge.
var transitions = map[State][]State{
	Init:    {Ready},
	Ready:   {PreHeat, Running},
	PreHeat: {Running},
	Running: {Ready, Shutdown},
}

// Machine is the guarded state machine. Not safe for concurrent use; it is
// owned by the control loop.
type Machine struct {
	sm    *stateless.StateMachine
	fault Fault
}

// NewMachine returns a machine in the Init state.
func NewMachine() *Machine {
	m := &Machine{}
	m.Reset()
	return m
}

// Reset rebuilds the machine in Init with no fault recorded. Only the
// external driver uses this (full restart).
func (m *Machine) Reset() {
	sm := stateless.NewStateMachine(Init)
	for _, s := range All() {
		cfg := sm.Configure(s)
		for _, next := range transitions[s] {
			cfg.Permit(next, next)
		}
		if s != Error {
			cfg.Permit(Error, Error)
		}
	}
	m.sm = sm
	m.fault = FaultNone
}

// Get returns the current state.
func (m *Machine) Get() State {
	return m.sm.MustState().(State)
}

// Set requests a transition and returns the resulting state. Requesting the
// current state is a no-op. A request outside the transition table is
// logged and forces Error.
func (m *Machine) Set(next State) State {
	cur := m.Get()
	if next == cur {
		return cur
	}

	if ok, _ := m.sm.CanFire(next); !ok {
		log.Printf("error: state: illegal transition %s -> %s", cur, next)
		if m.fault == FaultNone {
			m.fault = FaultInvalidTransition
		}
		next = Error
		if cur == Error {
			return cur
		}
	}

	if err := m.sm.Fire(next); err != nil {
		// The table was checked above; a failure here means the machine
		// itself is broken.
		panic(fmt.Sprintf("state: fire %s -> %s: %v", cur, next, err))
	}
	log.Printf("state: %s -> %s", cur, next)
	return next
}

// Is reports whether the machine is in one of the given states.
func (m *Machine) Is(states ...State) bool {
	cur := m.Get()
	for _, s := range states {
		if s == cur {
			return true
		}
	}
	return false
}

// Halted reports whether the machine is in a state where heaters must stay
// off.
func (m *Machine) Halted() bool {
	return m.Is(Error, Shutdown)
}

// SetFault records why the system went to Error. The first fault wins so the
// root cause is not overwritten by follow-on failures.
func (m *Machine) SetFault(f Fault) {
	if m.fault == FaultNone {
		m.fault = f
	}
}

// Fault returns the recorded fault code.
func (m *Machine) Fault() Fault {
	return m.fault
}
