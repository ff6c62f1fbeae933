// Package metrics exposes controller telemetry as Prometheus gauges.
package metrics

import (
	"math"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sweeney/hive-heater/internal/control"
	"github.com/sweeney/hive-heater/internal/event"
	"github.com/sweeney/hive-heater/internal/hw"
	"github.com/sweeney/hive-heater/internal/state"
)

const namespace = "hive_heater"

// Collector owns a private registry. Update is called from the control
// loop; scrapes run on HTTP goroutines.
type Collector struct {
	registry *prometheus.Registry

	plateTemp   *prometheus.GaugeVec
	plateTarget *prometheus.GaugeVec
	platePower  *prometheus.GaugeVec
	plateFan    *prometheus.GaugeVec

	zoneTemp    *prometheus.GaugeVec
	zoneTarget  *prometheus.GaugeVec
	zoneCeiling *prometheus.GaugeVec

	state   *prometheus.GaugeVec
	events  *prometheus.CounterVec
	cycles  prometheus.Gauge
	active  prometheus.Gauge
	maxHeat prometheus.Gauge
	relay   prometheus.Gauge

	humidity  prometheus.Gauge
	vaporizer prometheus.Gauge
}

func gaugeVec(name, help string, labels ...string) *prometheus.GaugeVec {
	return prometheus.NewGaugeVec(prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help}, labels)
}

func gauge(name, help string) prometheus.Gauge {
	return prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help})
}

// New creates a Collector with Go runtime and process metrics registered.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),

		plateTemp:   gaugeVec("plate_temperature_celsius", "Plate temperature; NaN when unknown.", "plate"),
		plateTarget: gaugeVec("plate_target_celsius", "Plate temperature setpoint.", "plate"),
		platePower:  gaugeVec("plate_heater_duty", "Heater duty applied on the last cycle (0-255).", "plate"),
		plateFan:    gaugeVec("plate_fan_speed", "Plate fan speed (0-255).", "plate"),

		zoneTemp:    gaugeVec("zone_temperature_celsius", "Hottest hive probe in the zone; NaN when unknown.", "zone"),
		zoneTarget:  gaugeVec("zone_target_celsius", "Hive air setpoint.", "zone"),
		zoneCeiling: gaugeVec("zone_plate_ceiling_celsius", "Live plate target set by the zone.", "zone"),

		state: gaugeVec("state", "1 for the current system state.", "state"),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Bus events by kind, excluding the per-cycle tick.",
		}, []string{"kind"}),
		cycles:  gauge("cycles", "Control passes since start."),
		active:  gauge("active_heaters", "Plates holding a heater slot."),
		maxHeat: gauge("max_heaters", "Concurrent heater cap."),
		relay:   gauge("heater_relay", "Heater master relay, 1 when closed."),

		humidity:  gauge("humidity_percent", "Relative humidity."),
		vaporizer: gauge("vaporizer", "Vaporizer, 1 when on."),
	}
	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.plateTemp, c.plateTarget, c.platePower, c.plateFan,
		c.zoneTemp, c.zoneTarget, c.zoneCeiling,
		c.state, c.events, c.cycles, c.active, c.maxHeat, c.relay,
		c.humidity, c.vaporizer,
	)
	return c
}

// Registry returns the registry the gauges live in.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Update copies one telemetry snapshot into the gauges.
func (c *Collector) Update(t control.Telemetry) {
	for _, p := range t.Plates {
		l := strconv.Itoa(p.Index)
		c.plateTemp.WithLabelValues(l).Set(celsius(p.Temperature))
		c.plateTarget.WithLabelValues(l).Set(celsius(p.Target))
		c.platePower.WithLabelValues(l).Set(float64(p.Power))
		c.plateFan.WithLabelValues(l).Set(float64(p.FanSpeed))
	}
	for _, z := range t.Zones {
		l := strconv.Itoa(z.Index)
		c.zoneTemp.WithLabelValues(l).Set(celsius(z.Temperature))
		c.zoneTarget.WithLabelValues(l).Set(celsius(z.Target))
		c.zoneCeiling.WithLabelValues(l).Set(celsius(z.PlateCeiling))
	}
	for _, s := range state.All() {
		c.state.WithLabelValues(s.String()).Set(flag(s == t.State))
	}
	c.cycles.Set(float64(t.Cycles))
	c.active.Set(float64(t.ActiveHeaters))
	c.maxHeat.Set(float64(t.MaxHeaters))
	c.relay.Set(flag(t.HeaterRelay))
	c.humidity.Set(float64(t.Humidity))
	c.vaporizer.Set(flag(t.Vaporizer == hw.VaporizerOn))
}

// OnEvent implements event.Listener.
func (c *Collector) OnEvent(e event.Event) {
	if e.Kind == event.Process {
		return
	}
	c.events.WithLabelValues(e.Kind.String()).Inc()
}

func celsius(tenths int16) float64 {
	if tenths == hw.Unknown {
		return math.NaN()
	}
	return float64(tenths) / 10
}

func flag(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
