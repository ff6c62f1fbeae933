package hw

import (
	"fmt"

	"github.com/sweeney/hive-heater/internal/config"
	"github.com/sweeney/hive-heater/internal/gpio"
)

// Coprocessor is the serial I/O co-processor carrying probes and PWM
// outputs.
type Coprocessor interface {
	Sensors
	SetHeaterPower(plate int, power uint8) error
	SetFanSpeed(plate int, speed uint8) error
	SetHumidifierFanSpeed(speed uint8) error
	Close() error
}

// Board is the production device: the co-processor for probes, heaters and
// fans, and host GPIO for the vaporizer and the heater master relay.
type Board struct {
	mcu  Coprocessor
	gpio gpio.Writer
	pins config.IO
}

// NewBoard combines a co-processor link and a GPIO writer. The writer must
// already own pins.Vaporizer and pins.HeaterRelay.
func NewBoard(mcu Coprocessor, w gpio.Writer, pins config.IO) *Board {
	return &Board{mcu: mcu, gpio: w, pins: pins}
}

func (b *Board) Temperature(addr config.SensorAddress) (int16, error) {
	return b.mcu.Temperature(addr)
}

func (b *Board) Humidity() (uint8, error) {
	return b.mcu.Humidity()
}

func (b *Board) SetHeaterPower(plate int, power uint8) error {
	return b.mcu.SetHeaterPower(plate, power)
}

func (b *Board) SetFanSpeed(plate int, speed uint8) error {
	return b.mcu.SetFanSpeed(plate, speed)
}

func (b *Board) SetHumidifierFanSpeed(speed uint8) error {
	return b.mcu.SetHumidifierFanSpeed(speed)
}

func (b *Board) SetVaporizer(mode VaporizerMode) error {
	return b.gpio.Set(int(b.pins.Vaporizer), mode == VaporizerOn)
}

func (b *Board) SetHeaterRelay(on bool) error {
	return b.gpio.Set(int(b.pins.HeaterRelay), on)
}

// Close turns every output off and releases both links.
func (b *Board) Close() error {
	var errs []error
	for i := 0; i < config.MaxPlates; i++ {
		if err := b.mcu.SetHeaterPower(i, 0); err != nil {
			errs = append(errs, err)
			break
		}
	}
	if err := b.gpio.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close gpio: %w", err))
	}
	if err := b.mcu.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close mcu: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
