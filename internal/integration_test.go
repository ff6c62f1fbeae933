package internal

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/sweeney/hive-heater/internal/config"
	"github.com/sweeney/hive-heater/internal/control"
	"github.com/sweeney/hive-heater/internal/event"
	"github.com/sweeney/hive-heater/internal/hw"
	"github.com/sweeney/hive-heater/internal/mqtt"
	"github.com/sweeney/hive-heater/internal/state"
	"github.com/sweeney/hive-heater/internal/status"
)

// plant is a controller driving the thermal simulator, with every bus event
// forwarded to a fake MQTT publisher the way the daemon does.
type plant struct {
	ctl       *control.Controller
	sim       *hw.Sim
	publisher *mqtt.FakePublisher
	now       time.Time
}

func newPlant(t *testing.T, mem *config.MemStorage, ambient int16) *plant {
	t.Helper()
	bus := event.NewBus()
	sim := hw.NewSim(config.DefaultSensor(), ambient)
	ctl, err := control.New(control.Options{
		Store:    config.NewStore(mem),
		Machine:  state.NewMachine(),
		Bus:      bus,
		Hardware: sim,
		Period:   time.Second,
	})
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}
	if err := ctl.Init(); err != nil {
		t.Fatalf("init: %v", err)
	}

	p := &plant{
		ctl:       ctl,
		sim:       sim,
		publisher: mqtt.NewFakePublisher(),
		now:       time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
	}
	bus.Subscribe(event.ListenerFunc(func(e event.Event) {
		if e.Kind == event.Process {
			return
		}
		p.publisher.Publish(mqtt.HeaterEvent{Timestamp: p.now, Event: e, State: ctl.State()})
	}))
	return p
}

func (p *plant) cycle() control.Telemetry {
	p.now = p.now.Add(time.Second)
	p.sim.Step(time.Second)
	p.ctl.Process()
	return p.ctl.Telemetry()
}

func (p *plant) kinds() []event.Kind {
	var out []event.Kind
	for _, e := range p.publisher.Events {
		out = append(out, e.Event.Kind)
	}
	return out
}

// TestIntegrationPreHeatWithSimulator runs the first minutes of a treatment
// against the simulator from a cold start.
func TestIntegrationPreHeatWithSimulator(t *testing.T) {
	p := newPlant(t, config.NewMemStorage(1024), 0)
	if err := p.ctl.StartProgram("Varroa Killer"); err != nil {
		t.Fatalf("start: %v", err)
	}

	var tel control.Telemetry
	for i := 0; i < 300; i++ {
		tel = p.cycle()

		if tel.ActiveHeaters > tel.MaxHeaters {
			t.Fatalf("cycle %d: %d heaters active, cap %d", i, tel.ActiveHeaters, tel.MaxHeaters)
		}
		on := 0
		for _, pl := range tel.Plates {
			if pl.Power > 0 {
				on++
			}
			if pl.Target > tel.Zones[0].PlateCeiling {
				t.Fatalf("cycle %d: plate %d target %d above ceiling %d", i, pl.Index, pl.Target, tel.Zones[0].PlateCeiling)
			}
		}
		if on > tel.MaxHeaters {
			t.Fatalf("cycle %d: %d plates powered, cap %d", i, on, tel.MaxHeaters)
		}
	}

	if tel.State != state.PreHeat {
		t.Fatalf("state: got %v, want pre-heating", tel.State)
	}
	if !tel.HeaterRelay {
		t.Error("heater relay should be closed during pre-heat")
	}
	if tel.Zones[0].PlateCeiling != 300 {
		t.Errorf("plate ceiling: got %d, want 300 after 300 cycles", tel.Zones[0].PlateCeiling)
	}
	if tel.Zones[0].Temperature <= 0 {
		t.Errorf("hive did not warm: %d", tel.Zones[0].Temperature)
	}
	warm := 0
	for _, pl := range tel.Plates {
		if pl.Temperature > 100 {
			warm++
		}
	}
	if warm == 0 {
		t.Error("no plate heated above 10 degrees")
	}

	kinds := p.kinds()
	if len(kinds) == 0 || kinds[0] != event.ProgramStart {
		t.Fatalf("events: got %v, want PROGRAM_START first", kinds)
	}
	var parsed mqtt.Payload
	if err := json.Unmarshal(p.publisher.Payloads[0], &parsed); err != nil {
		t.Fatalf("payload: invalid JSON: %v", err)
	}
	if parsed.Heater.Program != "Varroa Killer" {
		t.Errorf("payload program: got %q", parsed.Heater.Program)
	}
	if parsed.Heater.Timestamp == "" {
		t.Error("payload: missing timestamp")
	}
}

// TestIntegrationHiveOverheatHalts forces the hive past the hard ceiling
// and checks that everything stops and the alert reaches MQTT.
func TestIntegrationHiveOverheatHalts(t *testing.T) {
	p := newPlant(t, config.NewMemStorage(1024), 300)
	if err := p.ctl.StartProgram("Cleaning"); err != nil {
		t.Fatalf("start: %v", err)
	}
	for i := 0; i < 5; i++ {
		p.cycle()
	}

	p.sim.SetHiveTemperature(470)
	tel := p.cycle()

	if tel.State != state.Error {
		t.Fatalf("state: got %v, want error", tel.State)
	}
	if tel.Fault != state.FaultOverTempZone {
		t.Errorf("fault: got %q, want %q", tel.Fault, state.FaultOverTempZone)
	}
	if tel.HeaterRelay {
		t.Error("heater relay still closed")
	}
	for _, pl := range tel.Plates {
		if pl.Power != 0 {
			t.Errorf("plate %d: power %d after halt", pl.Index, pl.Power)
		}
	}

	var alert *mqtt.HeaterEvent
	for i := range p.publisher.Events {
		if p.publisher.Events[i].Event.Kind == event.TemperatureAlert {
			alert = &p.publisher.Events[i]
			break
		}
	}
	if alert == nil {
		t.Fatalf("no TEMPERATURE_ALERT published, got %v", p.kinds())
	}
	if alert.Event.Zone != 0 {
		t.Errorf("alert zone: got %d, want 0", alert.Event.Zone)
	}
	if alert.Event.Temperature < 470 {
		t.Errorf("alert temperature: got %d, want >= 470", alert.Event.Temperature)
	}

	// A halted system stays halted.
	for i := 0; i < 3; i++ {
		tel = p.cycle()
	}
	if tel.State != state.Error || tel.HeaterRelay {
		t.Errorf("after halt: state %v relay %v", tel.State, tel.HeaterRelay)
	}

	tr := status.NewTracker(p.now, status.Config{})
	tr.Update(tel)
	payload := string(status.FormatStatusEvent(tr.Snapshot(), "HEARTBEAT", ""))
	for _, want := range []string{`"state":"error"`, `"fault":"overtemp_zone"`} {
		if !strings.Contains(payload, want) {
			t.Errorf("status payload missing %s: %s", want, payload)
		}
	}
}

// TestIntegrationConfigurationSurvivesRestart saves a changed limit and
// brings up a second controller on the same storage.
func TestIntegrationConfigurationSurvivesRestart(t *testing.T) {
	mem := config.NewMemStorage(1024)
	first := newPlant(t, mem, 200)
	if err := first.ctl.SetParam("maxHeaters", "1"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := first.ctl.SaveConfig(); err != nil {
		t.Fatalf("save: %v", err)
	}

	second := newPlant(t, mem, 200)
	if got := second.ctl.Budget().Cap(); got != 1 {
		t.Errorf("heater cap after restart: got %d, want 1", got)
	}
	if got, _ := second.ctl.Param("maxHeaters"); got != "1" {
		t.Errorf("maxHeaters after restart: got %q, want 1", got)
	}
	if got := second.ctl.State(); got != state.Ready {
		t.Errorf("state after restart: got %v, want ready", got)
	}
}

// TestIntegrationCorruptStorageRefusesToStart flips one stored bit and
// checks the controller comes up halted.
func TestIntegrationCorruptStorageRefusesToStart(t *testing.T) {
	mem := config.NewMemStorage(1024)
	newPlant(t, mem, 200)
	mem.Data[config.AddrParams+8] ^= 0x01

	bus := event.NewBus()
	ctl, err := control.New(control.Options{
		Store:    config.NewStore(mem),
		Machine:  state.NewMachine(),
		Bus:      bus,
		Hardware: hw.NewSim(config.DefaultSensor(), 200),
	})
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}
	if err := ctl.Init(); err == nil {
		t.Fatal("expected init to fail on corrupt storage")
	}
	if got := ctl.State(); got != state.Error {
		t.Errorf("state: got %v, want error", got)
	}
	if err := ctl.StartProgram("Cleaning"); err == nil {
		t.Error("program started on a halted system")
	}
}
