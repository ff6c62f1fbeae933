package control

import (
	"fmt"

	"github.com/sweeney/hive-heater/internal/config"
)

// ZoneLayout assigns hive probes and plates to a zone. Both are indexes into
// the configured sensor and plate slots.
type ZoneLayout struct {
	HiveSensors []int
	Plates      []int
}

// DefaultLayout puts every configured plate and hive probe into one zone.
func DefaultLayout(params config.Params, sensors config.Sensor) []ZoneLayout {
	z := ZoneLayout{}
	for i, a := range sensors.AddressHive {
		if a != 0 {
			z.HiveSensors = append(z.HiveSensors, i)
		}
	}
	for i := 0; i < int(params.NumberOfPlates); i++ {
		z.Plates = append(z.Plates, i)
	}
	return []ZoneLayout{z}
}

// validateLayout checks every index is in range and every plate belongs to
// at most one zone.
func validateLayout(layout []ZoneLayout, params config.Params, sensors config.Sensor) error {
	owner := make(map[int]int)
	for zi, z := range layout {
		for _, s := range z.HiveSensors {
			if s < 0 || s >= config.MaxPlates {
				return fmt.Errorf("zone %d: hive sensor %d out of range", zi, s)
			}
			if sensors.AddressHive[s] == 0 {
				return fmt.Errorf("zone %d: hive sensor %d has no address", zi, s)
			}
		}
		for _, p := range z.Plates {
			if p < 0 || p >= int(params.NumberOfPlates) {
				return fmt.Errorf("zone %d: plate %d out of range (plates=%d)", zi, p, params.NumberOfPlates)
			}
			if prev, ok := owner[p]; ok {
				return fmt.Errorf("zone %d: plate %d already in zone %d", zi, p, prev)
			}
			owner[p] = zi
		}
	}
	return nil
}
