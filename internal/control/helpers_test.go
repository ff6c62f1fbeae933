package control

import (
	"testing"

	"github.com/sweeney/hive-heater/internal/config"
	"github.com/sweeney/hive-heater/internal/event"
	"github.com/sweeney/hive-heater/internal/hw"
	"github.com/sweeney/hive-heater/internal/state"
)

var testSensors = config.DefaultSensor()

func newTestEnv(t *testing.T) (*env, *hw.Fake) {
	t.Helper()
	params := config.DefaultParams()
	f := hw.NewFake()
	e := &env{
		params:  &params,
		machine: state.NewMachine(),
		budget:  NewHeaterBudget(int(params.MaxConcurrentHeaters)),
		sensors: f,
		out:     f,
		bus:     event.NewBus(),
		period:  DefaultPeriod,
	}
	e.machine.Set(state.Ready)
	return e, f
}

func newTestPlates(t *testing.T, e *env, n int) []*Plate {
	t.Helper()
	tel := make([]PlateTelemetry, n)
	plates := make([]*Plate, n)
	for i := range plates {
		p, err := newPlate(i, testSensors.AddressPlate[i], e, &tel[i])
		if err != nil {
			t.Fatalf("newPlate(%d): %v", i, err)
		}
		plates[i] = p
	}
	return plates
}

func setPlateTemps(f *hw.Fake, temps ...int16) {
	for i, v := range temps {
		f.Temps[testSensors.AddressPlate[i]] = v
	}
}

func setHiveTemps(f *hw.Fake, v int16) {
	for _, a := range testSensors.AddressHive {
		f.Temps[a] = v
	}
}

func powers(plates []*Plate) []uint8 {
	out := make([]uint8, len(plates))
	for i, p := range plates {
		out[i] = p.Power()
	}
	return out
}

func equalPowers(a, b []uint8) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// eventLog records events published on a bus.
type eventLog struct {
	events []event.Event
}

func (l *eventLog) OnEvent(e event.Event) {
	if e.Kind != event.Process {
		l.events = append(l.events, e)
	}
}

func (l *eventLog) kinds() []event.Kind {
	out := make([]event.Kind, len(l.events))
	for i, e := range l.events {
		out[i] = e.Kind
	}
	return out
}

// runCycle runs one pass over the plates the way the controller does.
func runCycle(plates []*Plate) {
	beginCycle(plates)
	for _, p := range plates {
		p.Process()
	}
}
