package control

import (
	"fmt"
	"log"

	"github.com/sweeney/hive-heater/internal/config"
	"github.com/sweeney/hive-heater/internal/event"
	"github.com/sweeney/hive-heater/internal/hw"
	"github.com/sweeney/hive-heater/internal/pid"
	"github.com/sweeney/hive-heater/internal/program"
)

// Zone is the outer loop of the cascade: it regulates the hive air
// temperature by moving the temperature target of its plates.
type Zone struct {
	index   int
	sensors []config.SensorAddress
	plates  []*Plate
	env     *env
	pid     *pid.PID
	tel     *ZoneTelemetry

	lastKnown map[config.SensorAddress]int16
	failing   map[config.SensorAddress]bool

	actual      int16
	target      int16
	plateTarget int16 // live plate ceiling
	plateCap    int16 // program plate temperature

	active bool
	paused bool
	high   bool
}

func newZone(index int, sensors []config.SensorAddress, plates []*Plate, e *env, tel *ZoneTelemetry) (*Zone, error) {
	ctl, err := pid.New(
		float64(e.params.HiveKp), float64(e.params.HiveKi), float64(e.params.HiveKd),
		0, 0, e.period)
	if err != nil {
		return nil, fmt.Errorf("zone %d pid: %w", index, err)
	}
	tel.Index = index
	tel.Temperature = hw.Unknown
	return &Zone{
		index:     index,
		sensors:   sensors,
		plates:    plates,
		env:       e,
		pid:       ctl,
		tel:       tel,
		lastKnown: make(map[config.SensorAddress]int16),
		failing:   make(map[config.SensorAddress]bool),
		actual:    hw.Unknown,
	}, nil
}

// Index returns the zone's zero-based position.
func (z *Zone) Index() int { return z.index }

// Plates returns the plates owned by the zone.
func (z *Zone) Plates() []*Plate { return z.plates }

// Temperature returns the hottest probe reading, or hw.Unknown.
func (z *Zone) Temperature() int16 { return z.actual }

// PlateTarget returns the live plate ceiling.
func (z *Zone) PlateTarget() int16 { return z.plateTarget }

// OnEvent implements event.Listener.
func (z *Zone) OnEvent(e event.Event) {
	switch e.Kind {
	case event.Process:
		z.process()
	case event.ProgramStart, event.ProgramUpdate:
		z.programChange(e.Program)
	case event.ProgramStop:
		z.programStop()
	case event.ProgramPause:
		z.paused = true
	case event.ProgramResume:
		z.paused = false
	}
}

func (z *Zone) process() {
	z.actual = z.readSensors()

	if z.actual == hw.Unknown {
		z.applyPlateTargets(0)
	} else {
		if z.active && !z.paused {
			candidate := int16(z.pid.Compute(float64(z.actual), float64(z.target)))
			switch {
			case candidate > z.plateTarget:
				z.plateTarget++
			case candidate < z.plateTarget:
				z.plateTarget--
			}
		}
		z.plateTarget = clamp16(z.plateTarget, 0, z.plateCap)

		if z.paused {
			z.applyPlateTargets(0)
		} else {
			z.applyPlateTargets(z.plateTarget)
		}
		z.checkThresholds()
	}

	for _, p := range z.plates {
		p.Process()
	}

	z.tel.Temperature = z.actual
	z.tel.Target = z.target
	z.tel.PlateCeiling = z.plateTarget
	z.tel.PlateCap = z.plateCap
	z.tel.High = z.high
}

// readSensors returns the hottest reading across the zone's probes, using
// each probe's last good value when a read fails.
func (z *Zone) readSensors() int16 {
	actual := hw.Unknown
	for _, addr := range z.sensors {
		v, err := z.env.sensors.Temperature(addr)
		if err != nil {
			if !z.failing[addr] {
				log.Printf("warn: zone %d: sensor %s: %v", z.index, addr, err)
				z.failing[addr] = true
			}
			last, ok := z.lastKnown[addr]
			if !ok {
				continue
			}
			v = last
		} else {
			if z.failing[addr] {
				log.Printf("zone %d: sensor %s recovered", z.index, addr)
				z.failing[addr] = false
			}
			z.lastKnown[addr] = v
		}
		if v > actual {
			actual = v
		}
	}
	return actual
}

func (z *Zone) applyPlateTargets(t int16) {
	for _, p := range z.plates {
		p.SetTargetTemperature(t)
	}
}

func (z *Zone) checkThresholds() {
	high := z.env.params.HiveMaxTemp
	over := z.env.params.HiveOverTemp

	if z.actual > high && !z.high {
		z.high = true
		log.Printf("warn: zone %d: temperature high %d > %d", z.index, z.actual, high)
		z.env.bus.Publish(event.ForZone(event.TemperatureHigh, z.index, z.actual))
	}
	if z.actual > over {
		z.env.bus.Publish(event.ForZone(event.TemperatureAlert, z.index, z.actual))
	}
	if z.actual < high && z.high {
		z.high = false
		log.Printf("zone %d: temperature normal %d", z.index, z.actual)
		z.env.bus.Publish(event.ForZone(event.TemperatureNormal, z.index, z.actual))
	}
}

func (z *Zone) setTuning(g program.Gains) error {
	if err := z.pid.SetTunings(g.Kp, g.Ki, g.Kd); err != nil {
		return fmt.Errorf("zone %d: %w", z.index, err)
	}
	return nil
}

// programChange applies a full program bundle.
func (z *Zone) programChange(p program.Program) {
	if err := z.pid.SetTunings(p.HiveGains.Kp, p.HiveGains.Ki, p.HiveGains.Kd); err != nil {
		log.Printf("zone %d: %v", z.index, err)
	}
	z.target = p.Setpoint()
	z.plateCap = clamp16(p.TemperaturePlate, 0, z.env.params.PlateOverTemp)
	// Limits are never inverted here, so the error is impossible.
	_ = z.pid.SetLimits(0, float64(z.plateCap))
	z.plateTarget = clamp16(z.plateTarget, 0, z.plateCap)
	z.active = p.Running

	for _, pl := range z.plates {
		if err := pl.SetPIDTuning(p.PlateGains); err != nil {
			log.Printf("zone %d: %v", z.index, err)
		}
		if err := pl.SetFanSpeed(p.PlateFanSpeed()); err != nil {
			log.Printf("plate %d: set fan: %v", pl.index, err)
		}
	}
	log.Printf("zone %d: program %q target=%d plate cap=%d", z.index, p.Name, z.target, z.plateCap)
}

func (z *Zone) programStop() {
	z.active = false
	z.paused = false
	z.target = 0
	z.plateCap = 0
	z.plateTarget = 0
	_ = z.pid.SetLimits(0, 0)
	z.pid.Reset(0)
	for _, pl := range z.plates {
		if err := pl.SetFanSpeed(z.env.params.MinFanSpeed); err != nil {
			log.Printf("plate %d: set fan: %v", pl.index, err)
		}
	}
	z.applyPlateTargets(0)
}
