package program

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
)

// ErrUnknownField is returned by Set for an unrecognised name.
var ErrUnknownField = errors.New("unknown field")

type field func(p *Program, v string) error

func temp(ptr func(p *Program) *int16) field {
	return func(p *Program, v string) error {
		n, err := strconv.ParseInt(v, 10, 16)
		if err != nil {
			return err
		}
		if n < 0 {
			return fmt.Errorf("negative temperature %d", n)
		}
		*ptr(p) = int16(n)
		return nil
	}
}

func byteValue(ptr func(p *Program) *uint8) field {
	return func(p *Program, v string) error {
		n, err := strconv.ParseUint(v, 10, 8)
		if err != nil {
			return err
		}
		*ptr(p) = uint8(n)
		return nil
	}
}

func minutes(ptr func(p *Program) *uint16) field {
	return func(p *Program, v string) error {
		n, err := strconv.ParseUint(v, 10, 16)
		if err != nil {
			return err
		}
		*ptr(p) = uint16(n)
		return nil
	}
}

func gain(ptr func(p *Program) *float64) field {
	return func(p *Program, v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		if f < 0 {
			return fmt.Errorf("negative gain %v", f)
		}
		*ptr(p) = f
		return nil
	}
}

var fields = map[string]field{
	"preHeatTemp":     temp(func(p *Program) *int16 { return &p.TemperaturePreHeat }),
	"preHeatFan":      byteValue(func(p *Program) *uint8 { return &p.FanSpeedPreHeat }),
	"preHeatDuration": minutes(func(p *Program) *uint16 { return &p.DurationPreHeat }),
	"hiveTemp":        temp(func(p *Program) *int16 { return &p.TemperatureHive }),
	"hiveKp":          gain(func(p *Program) *float64 { return &p.HiveGains.Kp }),
	"hiveKi":          gain(func(p *Program) *float64 { return &p.HiveGains.Ki }),
	"hiveKd":          gain(func(p *Program) *float64 { return &p.HiveGains.Kd }),
	"plateTemp":       temp(func(p *Program) *int16 { return &p.TemperaturePlate }),
	"plateKp":         gain(func(p *Program) *float64 { return &p.PlateGains.Kp }),
	"plateKi":         gain(func(p *Program) *float64 { return &p.PlateGains.Ki }),
	"plateKd":         gain(func(p *Program) *float64 { return &p.PlateGains.Kd }),
	"fan":             byteValue(func(p *Program) *uint8 { return &p.FanSpeed }),
	"humidityMin":     byteValue(func(p *Program) *uint8 { return &p.HumidityMin }),
	"humidityMax":     byteValue(func(p *Program) *uint8 { return &p.HumidityMax }),
	"humidifierFan":   byteValue(func(p *Program) *uint8 { return &p.FanSpeedHumidifier }),
	"duration":        minutes(func(p *Program) *uint16 { return &p.Duration }),
}

// FieldNames lists the names accepted by Set, sorted.
func FieldNames() []string {
	names := make([]string, 0, len(fields))
	for n := range fields {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Set returns a copy of p with the named tunable replaced. p itself is never
// modified, so a rejected edit leaves no trace.
func (p Program) Set(name, value string) (Program, error) {
	f, ok := fields[name]
	if !ok {
		return p, fmt.Errorf("%q: %w", name, ErrUnknownField)
	}
	next := p
	if err := f(&next, value); err != nil {
		return p, fmt.Errorf("set %s: %w", name, err)
	}
	if next.HumidityMin > next.HumidityMax {
		return p, fmt.Errorf("set %s: humidity band %d..%d is inverted", name, next.HumidityMin, next.HumidityMax)
	}
	return next, nil
}
