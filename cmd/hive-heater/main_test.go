package main

import (
	"bytes"
	"os"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/sweeney/hive-heater/internal/config"
	"github.com/sweeney/hive-heater/internal/control"
	"github.com/sweeney/hive-heater/internal/event"
	"github.com/sweeney/hive-heater/internal/hw"
	"github.com/sweeney/hive-heater/internal/metrics"
	"github.com/sweeney/hive-heater/internal/mqtt"
	"github.com/sweeney/hive-heater/internal/settings"
	"github.com/sweeney/hive-heater/internal/state"
	"github.com/sweeney/hive-heater/internal/status"
)

// TestEnvVarNames verifies the env var constants match what pi-helper writes
// to /run/pi-helper.env. If pi-helper changes its var names, this test fails
// and we update the constants, not the other way around.
func TestEnvVarNames(t *testing.T) {
	want := map[string]string{
		"NETWORK_TYPE":        envNetworkType,
		"NETWORK_IP":          envNetworkIP,
		"NETWORK_STATUS":      envNetworkStatus,
		"NETWORK_GATEWAY":     envNetworkGateway,
		"NETWORK_WIFI_STATUS": envNetworkWifiStatus,
		"NETWORK_WIFI_SSID":   envNetworkWifiSSID,
	}
	for canonical, got := range want {
		if got != canonical {
			t.Errorf("env var constant: got %q, want %q", got, canonical)
		}
	}
}

func TestReadNetworkInfoAllSet(t *testing.T) {
	t.Setenv(envNetworkType, "wifi")
	t.Setenv(envNetworkIP, "192.168.1.100")
	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkGateway, "192.168.1.1")
	t.Setenv(envNetworkWifiStatus, "connected")
	t.Setenv(envNetworkWifiSSID, "Apiary")

	info := readNetworkInfo()
	if info == nil {
		t.Fatal("expected non-nil NetworkInfo")
	}
	want := status.NetworkInfo{
		Type:       "wifi",
		IP:         "192.168.1.100",
		Status:     "connected",
		Gateway:    "192.168.1.1",
		WifiStatus: "connected",
		SSID:       "Apiary",
	}
	if *info != want {
		t.Errorf("got %+v, want %+v", *info, want)
	}
}

func TestReadNetworkInfoNoneSet(t *testing.T) {
	t.Setenv(envNetworkStatus, "")
	if info := readNetworkInfo(); info != nil {
		t.Errorf("expected nil when NETWORK_STATUS is unset, got %+v", info)
	}
}

func TestReadNetworkInfoPartial(t *testing.T) {
	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkType, "")
	t.Setenv(envNetworkIP, "")

	info := readNetworkInfo()
	if info == nil {
		t.Fatal("expected non-nil NetworkInfo when NETWORK_STATUS is set")
	}
	if info.Status != "connected" {
		t.Errorf("Status: got %q, want connected", info.Status)
	}
	if info.Type != "" || info.IP != "" {
		t.Errorf("expected empty Type and IP, got %q %q", info.Type, info.IP)
	}
}

func TestFlagsOverrideOnlyWhenGiven(t *testing.T) {
	opts, err := parseFlags([]string{"-broker", "", "-simulate", "-period", "500ms"})
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	s := settings.Default()
	wantHTTP := s.HTTP.Addr
	wantSerial := s.Serial.Port
	opts.apply(s)

	if s.MQTT.Broker != "" {
		t.Errorf("broker: got %q, want empty", s.MQTT.Broker)
	}
	if !s.Simulate.Enabled {
		t.Error("expected simulate enabled")
	}
	if s.Control.Period != 500*time.Millisecond {
		t.Errorf("period: got %v, want 500ms", s.Control.Period)
	}
	if s.HTTP.Addr != wantHTTP {
		t.Errorf("http: got %q, want %q (flag not given)", s.HTTP.Addr, wantHTTP)
	}
	if s.Serial.Port != wantSerial {
		t.Errorf("serial: got %q, want %q (flag not given)", s.Serial.Port, wantSerial)
	}
}

func TestWriteConfig(t *testing.T) {
	store := config.NewStore(config.NewMemStorage(1024))
	var buf bytes.Buffer
	if err := writeConfig(&buf, store); err != nil {
		t.Fatalf("writeConfig: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"maxHeaters=", "plate0=", "hive3=", "heaterRelayPin=17"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

// --- runLoop tests ---

// fakeClock returns a function that yields start, start+step, start+2*step, ...
// on successive calls. Not safe for concurrent use (only called from runLoop's goroutine).
func fakeClock(start time.Time, step time.Duration) func() time.Time {
	n := 0
	return func() time.Time {
		t := start.Add(time.Duration(n) * step)
		n++
		return t
	}
}

type rig struct {
	d    *daemon
	hw   *hw.Fake
	pub  *mqtt.FakePublisher
	out  *bytes.Buffer
	tick chan time.Time
	sig  chan os.Signal
	cmds chan string
	err  chan error
}

func newRig(t *testing.T, heartbeat time.Duration) *rig {
	t.Helper()
	f := hw.NewFake()
	sensors := config.DefaultSensor()
	for i := 0; i < config.MaxPlates; i++ {
		f.Temps[sensors.AddressPlate[i]] = 250
		f.Temps[sensors.AddressHive[i]] = 300
	}
	f.HumidityValue = 40

	bus := event.NewBus()
	ctl, err := control.New(control.Options{
		Store:    config.NewStore(config.NewMemStorage(1024)),
		Machine:  state.NewMachine(),
		Bus:      bus,
		Hardware: f,
		Period:   time.Second,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := ctl.Init(); err != nil {
		t.Fatal(err)
	}

	pub := mqtt.NewFakePublisher()
	pub.Connected = true
	out := &bytes.Buffer{}
	collector := metrics.New()
	bus.Subscribe(collector)
	r := &rig{
		d: &daemon{
			ctl:        ctl,
			bus:        bus,
			publisher:  pub,
			mqttStatus: pub,
			tracker:    status.NewTracker(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), status.Config{}),
			metrics:    collector,
			period:     time.Second,
			heartbeat:  heartbeat,
			out:        out,
		},
		hw:   f,
		pub:  pub,
		out:  out,
		tick: make(chan time.Time),
		sig:  make(chan os.Signal, 1),
		cmds: make(chan string),
		err:  make(chan error, 1),
	}
	return r
}

func (r *rig) start(clock func() time.Time) {
	go func() {
		r.err <- r.d.runLoop(clock, r.tick, r.sig, r.cmds)
	}()
}

func (r *rig) ticks(n int) {
	for i := 0; i < n; i++ {
		r.tick <- time.Time{}
	}
}

func (r *rig) stop(t *testing.T, s os.Signal) {
	t.Helper()
	r.sig <- s
	if err := <-r.err; err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}
}

func systemEvents(pub *mqtt.FakePublisher, name string) []mqtt.SystemEvent {
	var out []mqtt.SystemEvent
	for _, e := range pub.SystemEvents {
		if e.Event == name {
			out = append(out, e)
		}
	}
	return out
}

func TestRunLoopTicksUpdateStatus(t *testing.T) {
	r := newRig(t, 0)
	r.start(fakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), time.Second))
	r.ticks(3)
	r.stop(t, syscall.SIGTERM)

	snap := r.d.tracker.Snapshot()
	if snap.Control.Cycles != 3 {
		t.Errorf("cycles: got %d, want 3", snap.Control.Cycles)
	}
	if snap.Control.State != state.Ready {
		t.Errorf("state: got %v, want ready", snap.Control.State)
	}
	if !snap.MQTTConnected {
		t.Error("expected MQTT connected in snapshot")
	}
	if len(r.pub.Events) != 0 {
		t.Errorf("expected no control events, got %d", len(r.pub.Events))
	}
}

func TestRunLoopShutdownSIGTERM(t *testing.T) {
	r := newRig(t, 0)
	r.start(fakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), time.Second))
	r.ticks(1)
	r.stop(t, syscall.SIGTERM)

	shutdowns := systemEvents(r.pub, "SHUTDOWN")
	if len(shutdowns) != 1 {
		t.Fatalf("expected 1 SHUTDOWN event, got %d", len(shutdowns))
	}
	if shutdowns[0].Reason != "SIGTERM" {
		t.Errorf("reason: got %q, want SIGTERM", shutdowns[0].Reason)
	}
	if !shutdowns[0].Retained {
		t.Error("expected SHUTDOWN to be retained")
	}
	if !strings.Contains(string(shutdowns[0].RawPayload), `"reason":"SIGTERM"`) {
		t.Errorf("payload missing reason: %s", shutdowns[0].RawPayload)
	}
}

func TestRunLoopShutdownSIGINT(t *testing.T) {
	r := newRig(t, 0)
	r.start(fakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), time.Second))
	r.stop(t, syscall.SIGINT)

	shutdowns := systemEvents(r.pub, "SHUTDOWN")
	if len(shutdowns) != 1 || shutdowns[0].Reason != "SIGINT" {
		t.Fatalf("got %+v, want one SHUTDOWN with reason SIGINT", shutdowns)
	}
}

func TestRunLoopHeartbeat(t *testing.T) {
	// Clock calls: t0 at start, then +5m per tick. The third tick lands on
	// 15m, exactly one heartbeat interval.
	r := newRig(t, 15*time.Minute)
	r.start(fakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), 5*time.Minute))
	r.ticks(4)
	r.stop(t, syscall.SIGTERM)

	heartbeats := systemEvents(r.pub, "HEARTBEAT")
	if len(heartbeats) != 1 {
		t.Fatalf("expected 1 HEARTBEAT event, got %d", len(heartbeats))
	}
	want := time.Date(2026, 1, 1, 0, 15, 0, 0, time.UTC)
	if !heartbeats[0].Timestamp.Equal(want) {
		t.Errorf("heartbeat time: got %v, want %v", heartbeats[0].Timestamp, want)
	}
	if !strings.Contains(string(heartbeats[0].RawPayload), `"cycles":3`) {
		t.Errorf("heartbeat payload missing cycle count: %s", heartbeats[0].RawPayload)
	}
}

func TestRunLoopHeartbeatIncludesNetworkInfo(t *testing.T) {
	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkIP, "10.0.0.7")

	r := newRig(t, time.Minute)
	r.start(fakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), time.Minute))
	r.ticks(1)
	r.stop(t, syscall.SIGTERM)

	heartbeats := systemEvents(r.pub, "HEARTBEAT")
	if len(heartbeats) != 1 {
		t.Fatalf("expected 1 HEARTBEAT event, got %d", len(heartbeats))
	}
	if !strings.Contains(string(heartbeats[0].RawPayload), `"ip":"10.0.0.7"`) {
		t.Errorf("heartbeat payload missing network: %s", heartbeats[0].RawPayload)
	}
}

func TestRunLoopForwardsProgramEvents(t *testing.T) {
	r := newRig(t, 0)
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r.start(fakeClock(start, time.Second))
	r.cmds <- "start Cleaning"
	r.ticks(2)
	r.cmds <- "stop"
	r.stop(t, syscall.SIGTERM)

	var kinds []event.Kind
	for _, e := range r.pub.Events {
		kinds = append(kinds, e.Event.Kind)
	}
	if len(kinds) != 2 || kinds[0] != event.ProgramStart || kinds[1] != event.ProgramStop {
		t.Fatalf("events: got %v, want [PROGRAM_START PROGRAM_STOP]", kinds)
	}
	if r.pub.Events[0].Event.Program.Name != "Cleaning" {
		t.Errorf("program: got %q, want Cleaning", r.pub.Events[0].Event.Program.Name)
	}
	if !r.pub.Events[0].Timestamp.Equal(start.Add(time.Second)) {
		t.Errorf("timestamp: got %v, want %v", r.pub.Events[0].Timestamp, start.Add(time.Second))
	}
	if !strings.Contains(string(r.pub.Payloads[0]), `"program":"Cleaning"`) {
		t.Errorf("payload: %s", r.pub.Payloads[0])
	}
	if !strings.Contains(r.out.String(), "started Cleaning") {
		t.Errorf("console output: %q", r.out.String())
	}
	if got := r.d.tracker.Snapshot().Control.State; got != state.Ready {
		t.Errorf("state after stop: got %v, want ready", got)
	}
}

func TestRunLoopConsoleErrorIsReported(t *testing.T) {
	r := newRig(t, 0)
	r.start(fakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), time.Second))
	r.cmds <- "pause"
	r.cmds <- "frobnicate"
	r.stop(t, syscall.SIGTERM)

	out := r.out.String()
	if strings.Count(out, "error: ") != 2 {
		t.Errorf("expected two error lines, got %q", out)
	}
}

func TestRunLoopConsoleShutdown(t *testing.T) {
	r := newRig(t, 0)
	r.start(fakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), time.Second))
	r.cmds <- "start Cleaning"
	r.ticks(1)
	r.cmds <- "shutdown"
	if err := <-r.err; err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	shutdowns := systemEvents(r.pub, "SHUTDOWN")
	if len(shutdowns) != 1 || shutdowns[0].Reason != "CONSOLE" {
		t.Fatalf("got %+v, want one SHUTDOWN with reason CONSOLE", shutdowns)
	}
	if r.hw.HeaterRelay {
		t.Error("heater relay left on after shutdown")
	}
	for i, p := range r.hw.HeaterPower {
		if p != 0 {
			t.Errorf("plate %d: power %d after shutdown", i, p)
		}
	}
}

func TestRunLoopSurvivesClosedConsole(t *testing.T) {
	r := newRig(t, 0)
	r.start(fakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), time.Second))
	close(r.cmds)
	r.ticks(2)
	r.stop(t, syscall.SIGTERM)

	if got := r.d.tracker.Snapshot().Control.Cycles; got != 2 {
		t.Errorf("cycles: got %d, want 2", got)
	}
}

func TestRunLoopPublishErrorDoesNotStop(t *testing.T) {
	r := newRig(t, 0)
	r.pub.PublishError = os.ErrDeadlineExceeded
	r.start(fakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), time.Second))
	r.cmds <- "start Cleaning"
	r.ticks(1)
	r.stop(t, syscall.SIGTERM)

	if got := r.d.tracker.Snapshot().Control.Cycles; got != 1 {
		t.Errorf("cycles: got %d, want 1", got)
	}
	if len(systemEvents(r.pub, "SHUTDOWN")) != 1 {
		t.Error("expected SHUTDOWN despite control publish errors")
	}
}
