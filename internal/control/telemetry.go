package control

import (
	"time"

	"github.com/sweeney/hive-heater/internal/hw"
	"github.com/sweeney/hive-heater/internal/state"
)

// PlateTelemetry is the last recorded state of one plate.
type PlateTelemetry struct {
	Index       int
	Temperature int16
	Target      int16
	Power       uint8
	FanSpeed    uint8
	SensorOK    bool
}

// ZoneTelemetry is the last recorded state of one zone.
type ZoneTelemetry struct {
	Index        int
	Temperature  int16
	Target       int16
	PlateCeiling int16
	PlateCap     int16
	High         bool
}

// Telemetry is a snapshot of the controller, safe to hand to other
// goroutines once copied out by Controller.Telemetry.
type Telemetry struct {
	State  state.State
	Fault  state.Fault
	Cycles uint64

	Program        string
	ProgramRunning bool
	PreHeat        bool
	Paused         bool
	Elapsed        time.Duration
	Remaining      time.Duration

	Plates []PlateTelemetry
	Zones  []ZoneTelemetry

	Humidity      uint8
	Vaporizer     hw.VaporizerMode
	HumidifierFan uint8
	HeaterRelay   bool
	ActiveHeaters int
	MaxHeaters    int
	UsePWM        bool
}

func (t Telemetry) clone() Telemetry {
	out := t
	out.Plates = append([]PlateTelemetry(nil), t.Plates...)
	out.Zones = append([]ZoneTelemetry(nil), t.Zones...)
	return out
}
