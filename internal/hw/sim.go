package hw

import (
	"math"
	"time"

	"github.com/sweeney/hive-heater/internal/config"
)

// Sim is a lumped thermal model of the enclosure: plates heated by their
// elements and cooled into the hive air, the hive air losing heat to the
// ambient. It lets the daemon run end to end without hardware. Call Step
// once per control cycle.
type Sim struct {
	plateAddr map[config.SensorAddress]int
	hiveAddr  map[config.SensorAddress]int

	ambient  float64
	plate    [config.MaxPlates]float64
	hive     float64
	humidity float64

	power         [config.MaxPlates]uint8
	fan           [config.MaxPlates]uint8
	humidifierFan uint8
	vaporizer     VaporizerMode
	relay         bool
}

// Model constants, per second, temperatures in tenths of a degree.
const (
	simHeatRate      = 40.0
	simPlateLoss     = 0.02
	simHiveGain      = 0.0008
	simAmbientLoss   = 0.001
	simVaporizerRate = 0.5
	simDryingRate    = 0.02
	simDryHumidity   = 20.0
)

// NewSim returns a simulator whose probes are the configured addresses, all
// starting at ambient.
func NewSim(sensors config.Sensor, ambient int16) *Sim {
	s := &Sim{
		plateAddr: make(map[config.SensorAddress]int),
		hiveAddr:  make(map[config.SensorAddress]int),
		ambient:   float64(ambient),
		hive:      float64(ambient),
		humidity:  simDryHumidity,
	}
	for i, a := range sensors.AddressPlate {
		if a != 0 {
			s.plateAddr[a] = i
		}
		s.plate[i] = float64(ambient)
	}
	for i, a := range sensors.AddressHive {
		if a != 0 {
			s.hiveAddr[a] = i
		}
	}
	return s
}

// Step advances the model by dt.
func (s *Sim) Step(dt time.Duration) {
	secs := dt.Seconds()
	var intoHive float64
	for i := range s.plate {
		airflow := 1 + float64(s.fan[i])/255
		heat := 0.0
		if s.relay {
			heat = float64(s.power[i]) / 255 * simHeatRate
		}
		delta := s.plate[i] - s.hive
		s.plate[i] += (heat - delta*simPlateLoss*airflow) * secs
		intoHive += delta * simHiveGain * airflow
	}
	s.hive += (intoHive - (s.hive-s.ambient)*simAmbientLoss) * secs

	if s.vaporizer == VaporizerOn {
		s.humidity += simVaporizerRate * (1 + float64(s.humidifierFan)/255) * secs
	} else {
		s.humidity -= (s.humidity - simDryHumidity) * simDryingRate * secs
	}
	s.humidity = math.Max(0, math.Min(100, s.humidity))
}

// SetPlateTemperature forces a plate temperature, for fault injection.
func (s *Sim) SetPlateTemperature(plate int, t int16) {
	s.plate[plate] = float64(t)
}

// SetHiveTemperature forces the hive air temperature.
func (s *Sim) SetHiveTemperature(t int16) {
	s.hive = float64(t)
}

func (s *Sim) Temperature(addr config.SensorAddress) (int16, error) {
	if i, ok := s.plateAddr[addr]; ok {
		return int16(math.Round(s.plate[i])), nil
	}
	if i, ok := s.hiveAddr[addr]; ok {
		// Probes higher in the hive read slightly warmer.
		return int16(math.Round(s.hive)) + int16(i), nil
	}
	return 0, ErrNoSample
}

func (s *Sim) Humidity() (uint8, error) {
	return uint8(math.Round(s.humidity)), nil
}

func (s *Sim) SetHeaterPower(plate int, power uint8) error {
	s.power[plate] = power
	return nil
}

func (s *Sim) SetFanSpeed(plate int, speed uint8) error {
	s.fan[plate] = speed
	return nil
}

func (s *Sim) SetHumidifierFanSpeed(speed uint8) error {
	s.humidifierFan = speed
	return nil
}

func (s *Sim) SetVaporizer(mode VaporizerMode) error {
	s.vaporizer = mode
	return nil
}

func (s *Sim) SetHeaterRelay(on bool) error {
	s.relay = on
	return nil
}

func (s *Sim) Close() error {
	return nil
}
