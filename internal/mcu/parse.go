package mcu

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sweeney/hive-heater/internal/config"
)

type kind byte

const (
	kindTemperature kind = 'T'
	kindHumidity    kind = 'H'
)

type message struct {
	kind  kind
	addr  config.SensorAddress
	value int16
}

// parseLine parses a reading from the co-processor.
// Examples: "T 3d0516a4f187ff28 412", "H 34".
func parseLine(line string) (message, error) {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return message{}, fmt.Errorf("empty line")
	}

	switch parts[0] {
	case "T":
		if len(parts) != 3 {
			return message{}, fmt.Errorf("temperature: expected 3 fields, got %d", len(parts))
		}
		addr, err := strconv.ParseUint(parts[1], 16, 64)
		if err != nil {
			return message{}, fmt.Errorf("invalid address: %w", err)
		}
		v, err := strconv.ParseInt(parts[2], 10, 16)
		if err != nil {
			return message{}, fmt.Errorf("invalid temperature: %w", err)
		}
		return message{kind: kindTemperature, addr: config.SensorAddress(addr), value: int16(v)}, nil

	case "H":
		if len(parts) != 2 {
			return message{}, fmt.Errorf("humidity: expected 2 fields, got %d", len(parts))
		}
		v, err := strconv.ParseUint(parts[1], 10, 8)
		if err != nil {
			return message{}, fmt.Errorf("invalid humidity: %w", err)
		}
		if v > 100 {
			return message{}, fmt.Errorf("humidity out of range: %d", v)
		}
		return message{kind: kindHumidity, value: int16(v)}, nil
	}
	return message{}, fmt.Errorf("unknown record %q", parts[0])
}
