// Package event provides the in-process publish/subscribe bus that connects
// the control loop, zones and telemetry sinks.
//
// Delivery is synchronous and depth-first: Publish returns after every
// listener has run, and a listener that publishes causes a nested delivery
// before the outer one resumes.
package event

import (
	"fmt"

	"github.com/sweeney/hive-heater/internal/program"
)

// Kind identifies an event.
type Kind int

const (
	Process Kind = iota
	ProgramStart
	ProgramUpdate
	ProgramStop
	ProgramPause
	ProgramResume
	TemperatureAlert
	TemperatureHigh
	TemperatureNormal
)

var kindNames = [...]string{
	Process:           "PROCESS",
	ProgramStart:      "PROGRAM_START",
	ProgramUpdate:     "PROGRAM_UPDATE",
	ProgramStop:       "PROGRAM_STOP",
	ProgramPause:      "PROGRAM_PAUSE",
	ProgramResume:     "PROGRAM_RESUME",
	TemperatureAlert:  "TEMPERATURE_ALERT",
	TemperatureHigh:   "TEMPERATURE_HIGH",
	TemperatureNormal: "TEMPERATURE_NORMAL",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("KIND(%d)", int(k))
}

// IsProgram reports whether events of this kind carry a program payload.
func (k Kind) IsProgram() bool {
	switch k {
	case ProgramStart, ProgramUpdate, ProgramStop, ProgramPause, ProgramResume:
		return true
	}
	return false
}

// IsTemperature reports whether events of this kind carry a zone reading.
func (k Kind) IsTemperature() bool {
	switch k {
	case TemperatureAlert, TemperatureHigh, TemperatureNormal:
		return true
	}
	return false
}

// Event is a message on the bus. Program is set for program events; Zone
// and Temperature are set for temperature events.
type Event struct {
	Kind        Kind
	Program     program.Program
	Zone        int
	Temperature int16
}

// Tick returns the per-cycle processing event.
func Tick() Event {
	return Event{Kind: Process}
}

// ForProgram returns a program event carrying a copy of p.
func ForProgram(k Kind, p program.Program) Event {
	return Event{Kind: k, Program: p}
}

// ForZone returns a temperature event for the given zone reading.
func ForZone(k Kind, zone int, temperature int16) Event {
	return Event{Kind: k, Zone: zone, Temperature: temperature}
}
