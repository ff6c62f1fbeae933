package config

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
)

// ErrUnknownField is returned by Params.Set for an unrecognised name.
var ErrUnknownField = errors.New("unknown field")

// Validate checks cross-field invariants.
func (p *Params) Validate() error {
	if p.HiveOverTemp <= p.HiveMaxTemp {
		return fmt.Errorf("%w (%d <= %d)", ErrThresholds, p.HiveOverTemp, p.HiveMaxTemp)
	}
	return nil
}

type paramField struct {
	get func(p *Params) string
	set func(p *Params, v string) error
}

func uint8Field(ptr func(p *Params) *uint8) paramField {
	return paramField{
		get: func(p *Params) string { return strconv.Itoa(int(*ptr(p))) },
		set: func(p *Params, v string) error {
			n, err := strconv.ParseUint(v, 10, 8)
			if err != nil {
				return err
			}
			*ptr(p) = uint8(n)
			return nil
		},
	}
}

func int16Field(ptr func(p *Params) *int16) paramField {
	return paramField{
		get: func(p *Params) string { return strconv.Itoa(int(*ptr(p))) },
		set: func(p *Params, v string) error {
			n, err := strconv.ParseInt(v, 10, 16)
			if err != nil {
				return err
			}
			*ptr(p) = int16(n)
			return nil
		},
	}
}

func float32Field(ptr func(p *Params) *float32) paramField {
	return paramField{
		get: func(p *Params) string { return strconv.FormatFloat(float64(*ptr(p)), 'g', -1, 32) },
		set: func(p *Params, v string) error {
			f, err := strconv.ParseFloat(v, 32)
			if err != nil {
				return err
			}
			if f < 0 {
				return fmt.Errorf("negative gain %v", f)
			}
			*ptr(p) = float32(f)
			return nil
		},
	}
}

var paramFields = map[string]paramField{
	"plates":         uint8Field(func(p *Params) *uint8 { return &p.NumberOfPlates }),
	"maxHeaterPower": uint8Field(func(p *Params) *uint8 { return &p.MaxHeaterPower }),
	"minFanSpeed":    uint8Field(func(p *Params) *uint8 { return &p.MinFanSpeed }),
	"maxHeaters":     uint8Field(func(p *Params) *uint8 { return &p.MaxConcurrentHeaters }),
	"hiveMaxTemp":    int16Field(func(p *Params) *int16 { return &p.HiveMaxTemp }),
	"hiveOverTemp":   int16Field(func(p *Params) *int16 { return &p.HiveOverTemp }),
	"plateOverTemp":  int16Field(func(p *Params) *int16 { return &p.PlateOverTemp }),
	"plateKp":        float32Field(func(p *Params) *float32 { return &p.PlateKp }),
	"plateKi":        float32Field(func(p *Params) *float32 { return &p.PlateKi }),
	"plateKd":        float32Field(func(p *Params) *float32 { return &p.PlateKd }),
	"hiveKp":         float32Field(func(p *Params) *float32 { return &p.HiveKp }),
	"hiveKi":         float32Field(func(p *Params) *float32 { return &p.HiveKi }),
	"hiveKd":         float32Field(func(p *Params) *float32 { return &p.HiveKd }),
	"usePWM": {
		get: func(p *Params) string { return strconv.FormatBool(p.UsePWM) },
		set: func(p *Params, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return err
			}
			p.UsePWM = b
			return nil
		},
	},
}

// ParamNames lists the names accepted by Set, sorted.
func ParamNames() []string {
	names := make([]string, 0, len(paramFields))
	for n := range paramFields {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Set parses value into the named field. The change is rejected, leaving p
// untouched, if it would break Validate or the plate count limit.
func (p *Params) Set(name, value string) error {
	f, ok := paramFields[name]
	if !ok {
		return fmt.Errorf("%q: %w", name, ErrUnknownField)
	}
	next := *p
	if err := f.set(&next, value); err != nil {
		return fmt.Errorf("set %s: %w", name, err)
	}
	if next.NumberOfPlates > MaxPlates {
		return fmt.Errorf("set %s: at most %d plates", name, MaxPlates)
	}
	if err := next.Validate(); err != nil {
		return fmt.Errorf("set %s: %w", name, err)
	}
	*p = next
	return nil
}

// Get returns the named field formatted as text.
func (p *Params) Get(name string) (string, error) {
	f, ok := paramFields[name]
	if !ok {
		return "", fmt.Errorf("%q: %w", name, ErrUnknownField)
	}
	return f.get(p), nil
}
