// Package program defines heat treatment programs and the built-in catalog.
//
// Temperatures are tenths of a degree Celsius. Fan speeds and duty values
// are 0..255. Durations are whole minutes.
package program

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnknown is returned when a program name or index is not in the catalog.
var ErrUnknown = errors.New("unknown program")

// Gains holds PID tuning values.
type Gains struct {
	Kp float64
	Ki float64
	Kd float64
}

// Program is a complete treatment recipe plus its run flags. It is a value
// type: every subscriber gets its own copy.
type Program struct {
	Name string

	Running bool
	PreHeat bool

	TemperaturePreHeat int16
	FanSpeedPreHeat    uint8
	DurationPreHeat    uint16

	TemperatureHive int16
	HiveGains       Gains

	TemperaturePlate int16
	PlateGains       Gains

	FanSpeed uint8

	HumidityMin        uint8
	HumidityMax        uint8
	FanSpeedHumidifier uint8

	Duration uint16
}

// Setpoint returns the zone target for the current phase.
func (p Program) Setpoint() int16 {
	if p.PreHeat {
		return p.TemperaturePreHeat
	}
	return p.TemperatureHive
}

// PlateFanSpeed returns the plate fan speed for the current phase.
func (p Program) PlateFanSpeed() uint8 {
	if p.PreHeat {
		return p.FanSpeedPreHeat
	}
	return p.FanSpeed
}

// Catalog is an ordered, read-only list of programs.
type Catalog struct {
	programs []Program
}

// NewCatalog returns a catalog holding copies of the given programs.
func NewCatalog(programs ...Program) *Catalog {
	c := &Catalog{programs: make([]Program, len(programs))}
	copy(c.programs, programs)
	return c
}

// DefaultCatalog returns the built-in programs.
func DefaultCatalog() *Catalog {
	return NewCatalog(
		Program{
			Name:               "Varroa Killer",
			TemperaturePreHeat: 400,
			FanSpeedPreHeat:    250,
			DurationPreHeat:    60,
			TemperatureHive:    410,
			HiveGains:          Gains{Kp: 4, Ki: 0.2, Kd: 7},
			TemperaturePlate:   800,
			PlateGains:         Gains{Kp: 1, Ki: 0.1, Kd: 7},
			FanSpeed:           200,
			HumidityMin:        30,
			HumidityMax:        35,
			FanSpeedHumidifier: 100,
			Duration:           210,
		},
		Program{
			Name:               "Winter Treat",
			TemperaturePreHeat: 400,
			FanSpeedPreHeat:    255,
			DurationPreHeat:    60,
			TemperatureHive:    420,
			HiveGains:          Gains{Kp: 8, Ki: 0.2, Kd: 5},
			TemperaturePlate:   850,
			PlateGains:         Gains{Kp: 4, Ki: 0.09, Kd: 50},
			FanSpeed:           255,
			HumidityMin:        30,
			HumidityMax:        35,
			FanSpeedHumidifier: 100,
			Duration:           180,
		},
		Program{
			Name:               "Cleaning",
			TemperaturePreHeat: 380,
			FanSpeedPreHeat:    10,
			DurationPreHeat:    0,
			TemperatureHive:    425,
			HiveGains:          Gains{Kp: 8, Ki: 0.2, Kd: 5},
			TemperaturePlate:   600,
			PlateGains:         Gains{Kp: 4, Ki: 0.09, Kd: 50},
			FanSpeed:           10,
			HumidityMin:        1,
			HumidityMax:        2,
			FanSpeedHumidifier: 0,
			Duration:           15,
		},
		Program{
			Name:               "Melt Honey",
			TemperaturePreHeat: 300,
			FanSpeedPreHeat:    10,
			DurationPreHeat:    0,
			TemperatureHive:    300,
			HiveGains:          Gains{Kp: 8, Ki: 0.2, Kd: 5},
			TemperaturePlate:   500,
			PlateGains:         Gains{Kp: 4, Ki: 0.09, Kd: 50},
			FanSpeed:           10,
			HumidityMin:        1,
			HumidityMax:        2,
			FanSpeedHumidifier: 0,
			Duration:           720,
		},
	)
}

// Len returns the number of programs.
func (c *Catalog) Len() int { return len(c.programs) }

// Programs returns a copy of every program in catalog order.
func (c *Catalog) Programs() []Program {
	out := make([]Program, len(c.programs))
	copy(out, c.programs)
	return out
}

// Get returns the program at index i.
func (c *Catalog) Get(i int) (Program, error) {
	if i < 0 || i >= len(c.programs) {
		return Program{}, fmt.Errorf("index %d: %w", i, ErrUnknown)
	}
	return c.programs[i], nil
}

// Lookup finds a program by case-insensitive name or by zero-based index.
func (c *Catalog) Lookup(key string) (Program, error) {
	key = strings.TrimSpace(key)
	if i, err := strconv.Atoi(key); err == nil {
		return c.Get(i)
	}
	for _, p := range c.programs {
		if strings.EqualFold(p.Name, key) {
			return p, nil
		}
	}
	return Program{}, fmt.Errorf("%q: %w", key, ErrUnknown)
}
