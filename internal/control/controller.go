// Package control runs the heating cascade: zones regulate hive air by
// setting plate targets, plates regulate their own heater. The Controller
// assembles both from the stored configuration, drives one pass per tick
// and is the single entry point for operator commands.
package control

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/sweeney/hive-heater/internal/config"
	"github.com/sweeney/hive-heater/internal/event"
	"github.com/sweeney/hive-heater/internal/hw"
	"github.com/sweeney/hive-heater/internal/program"
	"github.com/sweeney/hive-heater/internal/state"
)

// DefaultPeriod is the control cycle length.
const DefaultPeriod = 200 * time.Millisecond

var (
	ErrNotReady  = errors.New("controller is not ready")
	ErrNoProgram = errors.New("no program running")
	ErrPaused    = errors.New("program is paused")
	ErrNotPaused = errors.New("program is not paused")
)

// Options configures a Controller.
type Options struct {
	Store    *config.Store
	Machine  *state.Machine
	Bus      *event.Bus
	Catalog  *program.Catalog
	Hardware hw.Hardware

	// Period is the fixed control cycle, also the PID sample period.
	Period time.Duration

	// Layout assigns plates and probes to zones. Empty means one zone with
	// everything.
	Layout []ZoneLayout
}

// Controller owns the zones and plates and the active program. Not safe for
// concurrent use: every method must be called from the control loop.
type Controller struct {
	store   *config.Store
	machine *state.Machine
	bus     *event.Bus
	catalog *program.Catalog
	hw      hw.Hardware
	period  time.Duration
	layout  []ZoneLayout

	env    *env
	budget *HeaterBudget
	zones  []*Zone
	plates []*Plate
	subs   []event.Subscription

	active  program.Program
	paused  bool
	elapsed time.Duration

	relay         bool
	relayKnown    bool
	vaporizer     hw.VaporizerMode
	humidifierFan uint8
	humidity      uint8
	humidityErr   error

	tel    Telemetry
	cycles uint64
}

// New builds a controller. It does not touch storage; call Init.
func New(opts Options) (*Controller, error) {
	if opts.Store == nil || opts.Machine == nil || opts.Bus == nil || opts.Hardware == nil {
		return nil, errors.New("control: store, machine, bus and hardware are required")
	}
	if opts.Catalog == nil {
		opts.Catalog = program.DefaultCatalog()
	}
	if opts.Period <= 0 {
		opts.Period = DefaultPeriod
	}
	c := &Controller{
		store:   opts.Store,
		machine: opts.Machine,
		bus:     opts.Bus,
		catalog: opts.Catalog,
		hw:      opts.Hardware,
		period:  opts.Period,
		layout:  opts.Layout,
		budget:  NewHeaterBudget(0),
	}
	c.bus.Subscribe(event.ListenerFunc(c.onEvent))
	return c, nil
}

// Init loads the configuration, builds zones and plates and moves the
// system to Ready. A configuration failure leaves the system in Error with
// zones built from defaults so telemetry keeps flowing; the error is
// returned for logging.
func (c *Controller) Init() error {
	loadErr := c.store.Load()
	if loadErr != nil {
		log.Printf("error: control: load configuration: %v", loadErr)
		c.store.Reset()
		c.machine.SetFault(state.FaultConfigIntegrity)
		c.machine.Set(state.Error)
	}

	if err := c.build(); err != nil {
		c.machine.SetFault(state.FaultConfigIntegrity)
		c.machine.Set(state.Error)
		return err
	}

	c.setRelay(false)
	if err := c.hw.SetVaporizer(hw.VaporizerOff); err != nil {
		log.Printf("control: set vaporizer: %v", err)
	}
	if err := c.hw.SetHumidifierFanSpeed(0); err != nil {
		log.Printf("control: set humidifier fan: %v", err)
	}

	if loadErr != nil {
		return fmt.Errorf("load configuration: %w", loadErr)
	}
	c.machine.Set(state.Ready)
	return nil
}

func (c *Controller) build() error {
	params, sensors := &c.store.Params, c.store.Sensor

	layout := c.layout
	if len(layout) == 0 {
		layout = DefaultLayout(*params, sensors)
	}
	if err := validateLayout(layout, *params, sensors); err != nil {
		return fmt.Errorf("zone layout: %w", err)
	}

	c.budget = NewHeaterBudget(int(params.MaxConcurrentHeaters))
	c.env = &env{
		params:  params,
		machine: c.machine,
		budget:  c.budget,
		sensors: c.hw,
		out:     c.hw,
		bus:     c.bus,
		period:  c.period,
	}

	n := int(params.NumberOfPlates)
	c.tel.Plates = make([]PlateTelemetry, n)
	c.tel.Zones = make([]ZoneTelemetry, len(layout))
	c.plates = make([]*Plate, n)
	for i := 0; i < n; i++ {
		p, err := newPlate(i, sensors.AddressPlate[i], c.env, &c.tel.Plates[i])
		if err != nil {
			return err
		}
		c.plates[i] = p
	}

	for _, s := range c.subs {
		c.bus.Unsubscribe(s)
	}
	c.subs = nil
	c.zones = nil
	for zi, zl := range layout {
		var addrs []config.SensorAddress
		for _, s := range zl.HiveSensors {
			addrs = append(addrs, sensors.AddressHive[s])
		}
		var plates []*Plate
		for _, pi := range zl.Plates {
			plates = append(plates, c.plates[pi])
		}
		z, err := newZone(zi, addrs, plates, c.env, &c.tel.Zones[zi])
		if err != nil {
			return err
		}
		c.zones = append(c.zones, z)
		c.subs = append(c.subs, c.bus.Subscribe(z))
	}
	log.Printf("control: %d plates in %d zones, pwm=%v max heaters=%d",
		n, len(c.zones), params.UsePWM, params.MaxConcurrentHeaters)
	return nil
}

// Process runs one control pass.
func (c *Controller) Process() {
	c.cycles++
	c.advanceProgram()
	beginCycle(c.plates)
	c.bus.Publish(event.Tick())
	c.controlHumidity()
	c.setRelay(c.machine.Is(state.PreHeat, state.Running) && !c.paused)
	c.refreshTelemetry()
}

// onEvent handles the events the controller reacts to itself.
func (c *Controller) onEvent(e event.Event) {
	switch e.Kind {
	case event.TemperatureAlert:
		log.Printf("error: zone %d: over-temperature %d > %d", e.Zone, e.Temperature, c.store.Params.HiveOverTemp)
		c.machine.SetFault(state.FaultOverTempZone)
		c.machine.Set(state.Error)
	}
}

func (c *Controller) advanceProgram() {
	if !c.active.Running || c.paused || c.machine.Halted() {
		return
	}
	c.elapsed += c.period

	preHeat := time.Duration(c.active.DurationPreHeat) * time.Minute
	total := preHeat + time.Duration(c.active.Duration)*time.Minute

	if c.active.PreHeat && c.elapsed >= preHeat {
		log.Printf("control: program %q pre-heat done", c.active.Name)
		c.active.PreHeat = false
		c.machine.Set(state.Running)
		c.bus.Publish(event.ForProgram(event.ProgramUpdate, c.active))
	}
	if !c.active.PreHeat && c.elapsed >= total {
		log.Printf("control: program %q finished after %v", c.active.Name, c.elapsed)
		if err := c.StopProgram(); err != nil {
			log.Printf("control: stop program: %v", err)
		}
	}
}

func (c *Controller) controlHumidity() {
	if !c.active.Running || c.paused || c.machine.Halted() {
		c.setVaporizer(hw.VaporizerOff, 0)
		c.readHumidity()
		return
	}
	if !c.readHumidity() {
		// Keep the last decision until the sensor comes back.
		return
	}
	switch {
	case c.humidity < c.active.HumidityMin:
		c.setVaporizer(hw.VaporizerOn, c.active.FanSpeedHumidifier)
	case c.humidity > c.active.HumidityMax:
		c.setVaporizer(hw.VaporizerOff, 0)
	}
}

func (c *Controller) readHumidity() bool {
	h, err := c.hw.Humidity()
	if err != nil {
		if c.humidityErr == nil {
			log.Printf("warn: humidity sensor: %v", err)
		}
		c.humidityErr = err
		return false
	}
	if c.humidityErr != nil {
		log.Printf("humidity sensor recovered")
		c.humidityErr = nil
	}
	c.humidity = h
	return true
}

func (c *Controller) setVaporizer(mode hw.VaporizerMode, fan uint8) {
	if mode != c.vaporizer {
		if err := c.hw.SetVaporizer(mode); err != nil {
			log.Printf("control: set vaporizer: %v", err)
			return
		}
		log.Printf("control: vaporizer %s", mode)
		c.vaporizer = mode
	}
	if fan != c.humidifierFan {
		if err := c.hw.SetHumidifierFanSpeed(fan); err != nil {
			log.Printf("control: set humidifier fan: %v", err)
			return
		}
		c.humidifierFan = fan
	}
}

func (c *Controller) setRelay(on bool) {
	if c.relayKnown && on == c.relay {
		return
	}
	if err := c.hw.SetHeaterRelay(on); err != nil {
		log.Printf("control: set heater relay: %v", err)
		return
	}
	c.relay, c.relayKnown = on, true
}

func (c *Controller) refreshTelemetry() {
	c.tel.State = c.machine.Get()
	c.tel.Fault = c.machine.Fault()
	c.tel.Cycles = c.cycles
	c.tel.Program = c.active.Name
	c.tel.ProgramRunning = c.active.Running
	c.tel.PreHeat = c.active.PreHeat
	c.tel.Paused = c.paused
	c.tel.Elapsed = c.elapsed
	c.tel.Remaining = 0
	if c.active.Running {
		total := time.Duration(c.active.DurationPreHeat)*time.Minute + time.Duration(c.active.Duration)*time.Minute
		if total > c.elapsed {
			c.tel.Remaining = total - c.elapsed
		}
	}
	c.tel.Humidity = c.humidity
	c.tel.Vaporizer = c.vaporizer
	c.tel.HumidifierFan = c.humidifierFan
	c.tel.HeaterRelay = c.relay
	c.tel.ActiveHeaters = c.budget.Active()
	c.tel.MaxHeaters = c.budget.Cap()
	c.tel.UsePWM = c.store.Params.UsePWM
}

// Telemetry returns a copy of the latest recorded state.
func (c *Controller) Telemetry() Telemetry {
	c.refreshTelemetry()
	return c.tel.clone()
}

// Zones returns the zones in index order.
func (c *Controller) Zones() []*Zone { return c.zones }

// Plates returns the plates in index order.
func (c *Controller) Plates() []*Plate { return c.plates }

// Budget returns the shared heater budget.
func (c *Controller) Budget() *HeaterBudget { return c.budget }

// Catalog returns the program catalog.
func (c *Controller) Catalog() *program.Catalog { return c.catalog }

// Program returns the active program and whether one is running.
func (c *Controller) Program() (program.Program, bool) {
	return c.active, c.active.Running
}

// State returns the system state.
func (c *Controller) State() state.State { return c.machine.Get() }

// Close turns every output off. The controller must not be used afterwards.
func (c *Controller) Close() {
	for _, p := range c.plates {
		if err := c.hw.SetHeaterPower(p.index, 0); err != nil {
			log.Printf("plate %d: set heater: %v", p.index, err)
		}
	}
	c.setVaporizer(hw.VaporizerOff, 0)
	c.setRelay(false)
}
