// Package settings loads the daemon settings file. Device limits and probe
// addresses live in the checksum store instead (internal/config); this file
// only says where things are and how the daemon talks to the outside.
package settings

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/hive-heater/internal/control"
	"github.com/sweeney/hive-heater/internal/gpio"
	"github.com/sweeney/hive-heater/internal/mcu"
)

// Settings is the daemon configuration.
type Settings struct {
	Control  ControlSettings  `yaml:"control"`
	Storage  StorageSettings  `yaml:"storage"`
	Serial   SerialSettings   `yaml:"serial"`
	GPIO     GPIOSettings     `yaml:"gpio"`
	MQTT     MQTTSettings     `yaml:"mqtt"`
	HTTP     HTTPSettings     `yaml:"http"`
	Influx   InfluxSettings   `yaml:"influx"`
	Simulate SimulateSettings `yaml:"simulate"`
	Zones    []ZoneSettings   `yaml:"zones,omitempty"`
}

// ControlSettings sets the loop timing.
type ControlSettings struct {
	Period    time.Duration `yaml:"period"`
	Heartbeat time.Duration `yaml:"heartbeat"` // 0 disables
	Console   bool          `yaml:"console"`   // read commands from stdin
}

// StorageSettings locates the configuration image.
type StorageSettings struct {
	Image string `yaml:"image"` // empty keeps the configuration in memory
}

// SerialSettings locates the I/O co-processor.
type SerialSettings struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
}

// GPIOSettings names the chip carrying the relay and vaporizer lines.
type GPIOSettings struct {
	Chip string `yaml:"chip"`
}

// MQTTSettings configures event publishing.
type MQTTSettings struct {
	Broker   string `yaml:"broker"` // empty disables MQTT
	ClientID string `yaml:"client_id"`
	Buffer   int    `yaml:"buffer"`
}

// HTTPSettings configures the status server.
type HTTPSettings struct {
	Addr string `yaml:"addr"` // empty disables the server
}

// InfluxSettings configures the telemetry recorder.
type InfluxSettings struct {
	URL    string        `yaml:"url"` // empty disables recording
	Token  string        `yaml:"token"`
	Org    string        `yaml:"org"`
	Bucket string        `yaml:"bucket"`
	Every  time.Duration `yaml:"every"`
}

// SimulateSettings replaces the hardware with the thermal simulator.
type SimulateSettings struct {
	Enabled bool  `yaml:"enabled"`
	Ambient int16 `yaml:"ambient"` // tenths of a degree
}

// ZoneSettings assigns hive probes and plates to a zone by index.
type ZoneSettings struct {
	HiveSensors []int `yaml:"hive_sensors"`
	Plates      []int `yaml:"plates"`
}

// Default returns the settings used when no file exists.
func Default() *Settings {
	return &Settings{
		Control: ControlSettings{
			Period:    control.DefaultPeriod,
			Heartbeat: 15 * time.Minute,
		},
		Storage: StorageSettings{
			Image: "/var/lib/hive-heater/config.bin",
		},
		Serial: SerialSettings{
			Port: "/dev/ttyACM0",
			Baud: mcu.DefaultBaudRate,
		},
		GPIO: GPIOSettings{
			Chip: gpio.DefaultChip,
		},
		MQTT: MQTTSettings{
			Broker:   "tcp://localhost:1883",
			ClientID: "hive-heater",
			Buffer:   256,
		},
		HTTP: HTTPSettings{
			Addr: ":80",
		},
		Influx: InfluxSettings{
			Org:    "hive",
			Bucket: "heater",
			Every:  5 * time.Second,
		},
		Simulate: SimulateSettings{
			Ambient: 150,
		},
	}
}

// Load reads settings from a YAML file. A missing file yields the defaults;
// fields missing from the file keep their defaults.
func Load(filename string) (*Settings, error) {
	s := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("read settings: %w", err)
	}

	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parse settings: %w", err)
	}
	s.ensureDefaults()

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Save writes the settings to a YAML file.
func (s *Settings) Save(filename string) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}

// Validate rejects values the daemon cannot run with.
func (s *Settings) Validate() error {
	if s.Control.Period < 10*time.Millisecond {
		return fmt.Errorf("control.period %v is too short", s.Control.Period)
	}
	if s.Control.Heartbeat < 0 {
		return fmt.Errorf("control.heartbeat must not be negative")
	}
	for i, z := range s.Zones {
		if len(z.Plates) == 0 {
			return fmt.Errorf("zones[%d]: no plates", i)
		}
		if len(z.HiveSensors) == 0 {
			return fmt.Errorf("zones[%d]: no hive sensors", i)
		}
	}
	return nil
}

// Layout returns the zone layout for the controller, or nil for the default
// single zone.
func (s *Settings) Layout() []control.ZoneLayout {
	if len(s.Zones) == 0 {
		return nil
	}
	out := make([]control.ZoneLayout, len(s.Zones))
	for i, z := range s.Zones {
		out[i] = control.ZoneLayout{HiveSensors: z.HiveSensors, Plates: z.Plates}
	}
	return out
}

func (s *Settings) ensureDefaults() {
	def := Default()

	if s.Control.Period == 0 {
		s.Control.Period = def.Control.Period
	}
	if s.Serial.Port == "" {
		s.Serial.Port = def.Serial.Port
	}
	if s.Serial.Baud == 0 {
		s.Serial.Baud = def.Serial.Baud
	}
	if s.GPIO.Chip == "" {
		s.GPIO.Chip = def.GPIO.Chip
	}
	if s.MQTT.ClientID == "" {
		s.MQTT.ClientID = def.MQTT.ClientID
	}
	if s.MQTT.Buffer == 0 {
		s.MQTT.Buffer = def.MQTT.Buffer
	}
	if s.Influx.Org == "" {
		s.Influx.Org = def.Influx.Org
	}
	if s.Influx.Bucket == "" {
		s.Influx.Bucket = def.Influx.Bucket
	}
	if s.Influx.Every == 0 {
		s.Influx.Every = def.Influx.Every
	}
	if s.Simulate.Ambient == 0 {
		s.Simulate.Ambient = def.Simulate.Ambient
	}
}
