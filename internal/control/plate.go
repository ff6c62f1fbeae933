package control

import (
	"fmt"
	"log"
	"time"

	"github.com/sweeney/hive-heater/internal/config"
	"github.com/sweeney/hive-heater/internal/event"
	"github.com/sweeney/hive-heater/internal/hw"
	"github.com/sweeney/hive-heater/internal/pid"
	"github.com/sweeney/hive-heater/internal/program"
	"github.com/sweeney/hive-heater/internal/state"
)

// env is the process-wide context shared by plates and zones.
type env struct {
	params  *config.Params
	machine *state.Machine
	budget  *HeaterBudget
	sensors hw.Sensors
	out     hw.Actuators
	bus     *event.Bus
	period  time.Duration
}

// fullPower is the duty applied to a plate holding a heater slot in
// quantized mode.
const fullPower = 255

// sensorGrace is how many consecutive failed reads a plate rides out on its
// last known temperature before it stops heating.
const sensorGrace = 5

// Plate regulates one heating plate: its own probe, heater and fan.
type Plate struct {
	index  int
	sensor config.SensorAddress
	env    *env
	pid    *pid.PID
	tel    *PlateTelemetry

	target   int16
	maxPower uint8
	fanSpeed uint8

	current   int16
	sensorOK  bool
	sensorErr error
	misses    int

	request float64 // latest PID output
	holding bool    // holds a heater slot
	applied uint8
}

func newPlate(index int, sensor config.SensorAddress, e *env, tel *PlateTelemetry) (*Plate, error) {
	p := &Plate{
		index:    index,
		sensor:   sensor,
		env:      e,
		tel:      tel,
		current:  hw.Unknown,
		maxPower: e.params.MaxHeaterPower,
	}
	ctl, err := pid.New(
		float64(e.params.PlateKp), float64(e.params.PlateKi), float64(e.params.PlateKd),
		0, float64(p.maxPower), e.period)
	if err != nil {
		return nil, fmt.Errorf("plate %d pid: %w", index, err)
	}
	p.pid = ctl
	if err := p.SetFanSpeed(e.params.MinFanSpeed); err != nil {
		log.Printf("plate %d: set fan: %v", index, err)
	}
	tel.Index = index
	tel.Temperature = hw.Unknown
	return p, nil
}

// Index returns the plate's zero-based position.
func (p *Plate) Index() int { return p.index }

// Target returns the plate temperature setpoint.
func (p *Plate) Target() int16 { return p.target }

// Power returns the duty applied on the last cycle.
func (p *Plate) Power() uint8 { return p.applied }

// Temperature returns the last known plate temperature, or hw.Unknown.
func (p *Plate) Temperature() int16 { return p.current }

// SetTargetTemperature sets the setpoint, clamped to [0, plate over-temperature].
func (p *Plate) SetTargetTemperature(t int16) {
	p.target = clamp16(t, 0, p.env.params.PlateOverTemp)
}

// SetMaximumPower limits the PID output, clamped to the configured maximum
// heater power.
func (p *Plate) SetMaximumPower(max uint8) {
	if max > p.env.params.MaxHeaterPower {
		max = p.env.params.MaxHeaterPower
	}
	p.maxPower = max
	// Limits are never inverted here, so the error is impossible.
	_ = p.pid.SetLimits(0, float64(max))
}

// SetPIDTuning replaces the plate loop gains.
func (p *Plate) SetPIDTuning(g program.Gains) error {
	if err := p.pid.SetTunings(g.Kp, g.Ki, g.Kd); err != nil {
		return fmt.Errorf("plate %d: %w", p.index, err)
	}
	return nil
}

// SetFanSpeed drives the plate fan, never below the configured minimum.
func (p *Plate) SetFanSpeed(speed uint8) error {
	if speed < p.env.params.MinFanSpeed {
		speed = p.env.params.MinFanSpeed
	}
	p.fanSpeed = speed
	p.tel.FanSpeed = speed
	return p.env.out.SetFanSpeed(p.index, speed)
}

// reconfigure re-applies configuration limits after the parameters changed.
func (p *Plate) reconfigure() {
	p.SetMaximumPower(p.env.params.MaxHeaterPower)
	p.SetTargetTemperature(p.target)
	if p.fanSpeed < p.env.params.MinFanSpeed {
		if err := p.SetFanSpeed(p.env.params.MinFanSpeed); err != nil {
			log.Printf("plate %d: set fan: %v", p.index, err)
		}
	}
}

// Process runs one control cycle.
func (p *Plate) Process() {
	p.readSensor()

	if p.sensorOK {
		p.request = p.pid.Compute(float64(p.current), float64(p.target))
	} else {
		// No reading: never heat blind.
		p.request = 0
	}

	if p.sensorOK && p.current > p.env.params.PlateOverTemp {
		log.Printf("error: plate %d: over-temperature %d > %d", p.index, p.current, p.env.params.PlateOverTemp)
		p.env.machine.SetFault(state.FaultOverTempPlate)
		p.env.machine.Set(state.Error)
	}

	p.applied = p.resolve()
	if err := p.env.out.SetHeaterPower(p.index, p.applied); err != nil {
		log.Printf("plate %d: set heater: %v", p.index, err)
	}

	p.tel.Temperature = p.current
	p.tel.Target = p.target
	p.tel.Power = p.applied
	p.tel.FanSpeed = p.fanSpeed
	p.tel.SensorOK = p.sensorOK
}

// resolve turns the PID request into the duty to apply.
func (p *Plate) resolve() uint8 {
	// Normally already released by beginCycle.
	p.releaseSlot()

	if p.env.machine.Halted() {
		return 0
	}

	if p.env.params.UsePWM {
		return uint8(clampF(p.request, 0, float64(p.maxPower)))
	}

	requesting := p.request > float64(p.env.params.MaxHeaterPower)/2
	if requesting && p.env.budget.Acquire() {
		p.holding = true
		return fullPower
	}
	return 0
}

func (p *Plate) releaseSlot() {
	if p.holding {
		p.env.budget.Release()
		p.holding = false
	}
}

// shed gives up the heater slot and switches the heater off at once.
func (p *Plate) shed() {
	p.releaseSlot()
	p.applied = 0
	p.tel.Power = 0
	if err := p.env.out.SetHeaterPower(p.index, 0); err != nil {
		log.Printf("plate %d: set heater: %v", p.index, err)
	}
}

// beginCycle frees every heater slot before the plates run, so slots go to
// the requesting plates in processing order each cycle.
func beginCycle(plates []*Plate) {
	for _, p := range plates {
		p.releaseSlot()
	}
}

// shedExcess drops slots from the highest-indexed holders until the budget
// is back within its cap.
func shedExcess(b *HeaterBudget, plates []*Plate) {
	for i := len(plates) - 1; i >= 0 && b.Active() > b.Cap(); i-- {
		if plates[i].holding {
			log.Printf("plate %d: heater slot dropped, cap now %d", plates[i].index, b.Cap())
			plates[i].shed()
		}
	}
}

func (p *Plate) readSensor() {
	v, err := p.env.sensors.Temperature(p.sensor)
	if err != nil {
		if p.sensorErr == nil {
			log.Printf("warn: plate %d: sensor %s: %v", p.index, p.sensor, err)
		}
		p.sensorErr = err
		p.misses++
		if p.misses > sensorGrace {
			p.sensorOK = false
		}
		return
	}
	if p.sensorErr != nil {
		log.Printf("plate %d: sensor %s recovered", p.index, p.sensor)
		p.sensorErr = nil
	}
	p.misses = 0
	p.current = v
	p.sensorOK = true
}

func clamp16(v, lo, hi int16) int16 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
