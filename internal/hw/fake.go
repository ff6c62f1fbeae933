package hw

import (
	"errors"

	"github.com/sweeney/hive-heater/internal/config"
)

// ErrNoSample is returned by Fake for a probe without a scripted value.
var ErrNoSample = errors.New("no sample configured")

// Fake is a test double with settable readings and recorded outputs.
type Fake struct {
	// Temps holds the current reading per probe.
	Temps map[config.SensorAddress]int16

	// TempErrors, if set for a probe, is returned with its reading.
	TempErrors map[config.SensorAddress]error

	// HumidityValue and HumidityError script Humidity().
	HumidityValue uint8
	HumidityError error

	// Outputs as last written.
	HeaterPower   [config.MaxPlates]uint8
	FanSpeed      [config.MaxPlates]uint8
	HumidifierFan uint8
	Vaporizer     VaporizerMode
	HeaterRelay   bool

	// HeaterWrites records every SetHeaterPower call in order.
	HeaterWrites []HeaterWrite

	// ActuateError, if set, is returned by every setter.
	ActuateError error

	Closed bool
}

// HeaterWrite is a recorded SetHeaterPower call.
type HeaterWrite struct {
	Plate int
	Power uint8
}

// NewFake creates a Fake with no readings.
func NewFake() *Fake {
	return &Fake{
		Temps:      make(map[config.SensorAddress]int16),
		TempErrors: make(map[config.SensorAddress]error),
	}
}

func (f *Fake) Temperature(addr config.SensorAddress) (int16, error) {
	if err := f.TempErrors[addr]; err != nil {
		return f.Temps[addr], err
	}
	v, ok := f.Temps[addr]
	if !ok {
		return 0, ErrNoSample
	}
	return v, nil
}

func (f *Fake) Humidity() (uint8, error) {
	return f.HumidityValue, f.HumidityError
}

func (f *Fake) SetHeaterPower(plate int, power uint8) error {
	if f.ActuateError != nil {
		return f.ActuateError
	}
	f.HeaterPower[plate] = power
	f.HeaterWrites = append(f.HeaterWrites, HeaterWrite{Plate: plate, Power: power})
	return nil
}

func (f *Fake) SetFanSpeed(plate int, speed uint8) error {
	if f.ActuateError != nil {
		return f.ActuateError
	}
	f.FanSpeed[plate] = speed
	return nil
}

func (f *Fake) SetHumidifierFanSpeed(speed uint8) error {
	if f.ActuateError != nil {
		return f.ActuateError
	}
	f.HumidifierFan = speed
	return nil
}

func (f *Fake) SetVaporizer(mode VaporizerMode) error {
	if f.ActuateError != nil {
		return f.ActuateError
	}
	f.Vaporizer = mode
	return nil
}

func (f *Fake) SetHeaterRelay(on bool) error {
	if f.ActuateError != nil {
		return f.ActuateError
	}
	f.HeaterRelay = on
	return nil
}

func (f *Fake) Close() error {
	f.Closed = true
	return nil
}

// ResetWrites clears the recorded heater writes.
func (f *Fake) ResetWrites() {
	f.HeaterWrites = nil
}
