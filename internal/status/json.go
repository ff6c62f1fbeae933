package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/hive-heater/internal/control"
	"github.com/sweeney/hive-heater/internal/hw"
	"github.com/sweeney/hive-heater/internal/state"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details. Temperatures are degrees
// Celsius; a probe that never reported is null.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	State         string       `json:"state"`
	Fault         string       `json:"fault"`
	Ready         bool         `json:"ready"`
	Cycles        uint64       `json:"cycles"`
	Program       *ProgramJSON `json:"program,omitempty"`
	Zones         []ZoneJSON   `json:"zones"`
	Plates        []PlateJSON  `json:"plates"`
	Heaters       HeatersJSON  `json:"heaters"`
	Humidity      HumidityJSON `json:"humidity"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// ProgramJSON describes the running program.
type ProgramJSON struct {
	Name             string `json:"name"`
	PreHeat          bool   `json:"pre_heat"`
	Paused           bool   `json:"paused"`
	ElapsedSeconds   int64  `json:"elapsed_seconds"`
	RemainingSeconds int64  `json:"remaining_seconds"`
}

// ZoneJSON is one zone.
type ZoneJSON struct {
	Index        int      `json:"index"`
	Temperature  *float64 `json:"temperature"`
	Target       float64  `json:"target"`
	PlateCeiling float64  `json:"plate_ceiling"`
	PlateCap     float64  `json:"plate_cap"`
	High         bool     `json:"high"`
}

// PlateJSON is one plate.
type PlateJSON struct {
	Index       int      `json:"index"`
	Temperature *float64 `json:"temperature"`
	Target      float64  `json:"target"`
	Power       uint8    `json:"power"`
	Fan         uint8    `json:"fan"`
	SensorOK    bool     `json:"sensor_ok"`
}

// HeatersJSON reports the shared heater budget and relay.
type HeatersJSON struct {
	Active int  `json:"active"`
	Max    int  `json:"max"`
	Relay  bool `json:"relay"`
	PWM    bool `json:"pwm"`
}

// HumidityJSON reports humidity control.
type HumidityJSON struct {
	Percent   uint8  `json:"percent"`
	Vaporizer string `json:"vaporizer"`
	Fan       uint8  `json:"fan"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	PeriodMs    int64  `json:"period_ms"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	Broker      string `json:"broker"`
	HTTPPort    string `json:"http_port"`
	SerialPort  string `json:"serial_port,omitempty"`
	Simulate    bool   `json:"simulate"`
}

// Degrees converts tenths of a degree to degrees, or nil for an unknown
// reading.
func Degrees(tenths int16) *float64 {
	if tenths == hw.Unknown {
		return nil
	}
	v := float64(tenths) / 10
	return &v
}

func buildInner(snap Snapshot) StatusInner {
	c := snap.Control
	fault := c.Fault
	if fault == "" {
		fault = state.FaultNone
	}

	inner := StatusInner{
		State:         c.State.String(),
		Fault:         string(fault),
		Ready:         c.State == state.Ready,
		Cycles:        c.Cycles,
		Zones:         make([]ZoneJSON, 0, len(c.Zones)),
		Plates:        make([]PlateJSON, 0, len(c.Plates)),
		Heaters:       HeatersJSON{Active: c.ActiveHeaters, Max: c.MaxHeaters, Relay: c.HeaterRelay, PWM: c.UsePWM},
		Humidity:      HumidityJSON{Percent: c.Humidity, Vaporizer: c.Vaporizer.String(), Fan: c.HumidifierFan},
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Config: ConfigJSON{
			PeriodMs:    snap.Config.PeriodMs,
			HeartbeatMs: snap.Config.HeartbeatMs,
			Broker:      snap.Config.Broker,
			HTTPPort:    snap.Config.HTTPPort,
			SerialPort:  snap.Config.SerialPort,
			Simulate:    snap.Config.Simulate,
		},
	}
	if c.ProgramRunning {
		inner.Program = &ProgramJSON{
			Name:             c.Program,
			PreHeat:          c.PreHeat,
			Paused:           c.Paused,
			ElapsedSeconds:   int64(c.Elapsed / time.Second),
			RemainingSeconds: int64(c.Remaining / time.Second),
		}
	}
	for _, z := range c.Zones {
		inner.Zones = append(inner.Zones, zoneJSON(z))
	}
	for _, p := range c.Plates {
		inner.Plates = append(inner.Plates, plateJSON(p))
	}
	return inner
}

func zoneJSON(z control.ZoneTelemetry) ZoneJSON {
	return ZoneJSON{
		Index:        z.Index,
		Temperature:  Degrees(z.Temperature),
		Target:       float64(z.Target) / 10,
		PlateCeiling: float64(z.PlateCeiling) / 10,
		PlateCap:     float64(z.PlateCap) / 10,
		High:         z.High,
	}
}

func plateJSON(p control.PlateTelemetry) PlateJSON {
	return PlateJSON{
		Index:       p.Index,
		Temperature: Degrees(p.Temperature),
		Target:      float64(p.Target) / 10,
		Power:       p.Power,
		Fan:         p.FanSpeed,
		SensorOK:    p.SensorOK,
	}
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
