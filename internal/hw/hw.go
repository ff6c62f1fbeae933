// Package hw defines the hardware the controller drives and provides the
// board implementation, a thermal simulator and a scripted fake.
package hw

import (
	"github.com/sweeney/hive-heater/internal/config"
)

// Unknown is the temperature reported for a probe that has never produced a
// valid reading.
const Unknown int16 = -999

// VaporizerMode is the humidifier element state.
type VaporizerMode int

const (
	VaporizerOff VaporizerMode = iota
	VaporizerOn
)

func (m VaporizerMode) String() string {
	if m == VaporizerOn {
		return "ON"
	}
	return "OFF"
}

// Sensors reads probes. Temperatures are tenths of a degree Celsius. An
// implementation may return a last known value together with an error.
type Sensors interface {
	Temperature(addr config.SensorAddress) (int16, error)
	Humidity() (uint8, error)
}

// Actuators drives outputs. Plate indexes are zero-based.
type Actuators interface {
	SetHeaterPower(plate int, power uint8) error
	SetFanSpeed(plate int, speed uint8) error
	SetHumidifierFanSpeed(speed uint8) error
	SetVaporizer(mode VaporizerMode) error
	SetHeaterRelay(on bool) error
}

// Hardware is a complete device.
type Hardware interface {
	Sensors
	Actuators
	Close() error
}
