// Command hive-heater runs the hive thermal-treatment controller: it drives
// the heater plates through the I/O co-processor and publishes state changes
// to MQTT.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sweeney/hive-heater/internal/config"
	"github.com/sweeney/hive-heater/internal/console"
	"github.com/sweeney/hive-heater/internal/control"
	"github.com/sweeney/hive-heater/internal/event"
	"github.com/sweeney/hive-heater/internal/gpio"
	"github.com/sweeney/hive-heater/internal/hw"
	"github.com/sweeney/hive-heater/internal/mcu"
	"github.com/sweeney/hive-heater/internal/metrics"
	"github.com/sweeney/hive-heater/internal/mqtt"
	"github.com/sweeney/hive-heater/internal/program"
	"github.com/sweeney/hive-heater/internal/recorder"
	"github.com/sweeney/hive-heater/internal/settings"
	"github.com/sweeney/hive-heater/internal/state"
	"github.com/sweeney/hive-heater/internal/status"
	"github.com/sweeney/hive-heater/internal/web"
)

func main() {
	opts, err := parseFlags(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		os.Exit(2)
	}

	s, err := settings.Load(opts.configPath)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
	opts.apply(s)
	if err := s.Validate(); err != nil {
		log.Fatalf("fatal: %v", err)
	}

	if err := run(s, opts.printConfig); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

// options holds the command line. Flags that were given override the
// settings file; the rest leave it alone.
type options struct {
	configPath  string
	printConfig bool

	broker     string
	httpAddr   string
	serialPort string
	period     time.Duration
	heartbeat  time.Duration
	simulate   bool
	console    bool

	set map[string]bool
}

func parseFlags(args []string) (*options, error) {
	o := &options{set: make(map[string]bool)}
	fs := flag.NewFlagSet("hive-heater", flag.ContinueOnError)
	fs.StringVar(&o.configPath, "config", "/etc/hive-heater/config.yaml", "Settings file")
	fs.BoolVar(&o.printConfig, "print-config", false, "Print the stored device configuration and exit")
	fs.StringVar(&o.broker, "broker", "", "MQTT broker address (empty disables MQTT)")
	fs.StringVar(&o.httpAddr, "http", "", "HTTP status address (empty to disable)")
	fs.StringVar(&o.serialPort, "serial", "", "Serial port of the I/O co-processor")
	fs.DurationVar(&o.period, "period", control.DefaultPeriod, "Control cycle period")
	fs.DurationVar(&o.heartbeat, "heartbeat", 15*time.Minute, "Heartbeat interval (0 to disable)")
	fs.BoolVar(&o.simulate, "simulate", false, "Run against the thermal simulator instead of hardware")
	fs.BoolVar(&o.console, "console", false, "Read operator commands from stdin")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	fs.Visit(func(f *flag.Flag) { o.set[f.Name] = true })
	return o, nil
}

func (o *options) apply(s *settings.Settings) {
	if o.set["broker"] {
		s.MQTT.Broker = o.broker
	}
	if o.set["http"] {
		s.HTTP.Addr = o.httpAddr
	}
	if o.set["serial"] {
		s.Serial.Port = o.serialPort
	}
	if o.set["period"] {
		s.Control.Period = o.period
	}
	if o.set["heartbeat"] {
		s.Control.Heartbeat = o.heartbeat
	}
	if o.set["simulate"] {
		s.Simulate.Enabled = o.simulate
	}
	if o.set["console"] {
		s.Control.Console = o.console
	}
}

func run(s *settings.Settings, printConfig bool) error {
	storage, err := openStorage(s.Storage.Image)
	if err != nil {
		return err
	}
	if c, ok := storage.(io.Closer); ok {
		defer c.Close()
	}

	// Pin assignments and probe addresses come from the stored blocks, so
	// they are read before the hardware is opened. Init loads them again.
	store := config.NewStore(storage)
	if err := store.Load(); err != nil {
		log.Printf("error: config: %v; using defaults until fixed", err)
	}

	if printConfig {
		return writeConfig(os.Stdout, store)
	}

	hardware, sim, err := openHardware(s, store)
	if err != nil {
		return err
	}
	defer hardware.Close()

	bus := event.NewBus()
	ctl, err := control.New(control.Options{
		Store:    store,
		Machine:  state.NewMachine(),
		Bus:      bus,
		Catalog:  program.DefaultCatalog(),
		Hardware: hardware,
		Period:   s.Control.Period,
		Layout:   s.Layout(),
	})
	if err != nil {
		return fmt.Errorf("init controller: %w", err)
	}
	if err := ctl.Init(); err != nil {
		// The controller stays in Error with outputs off; keep serving
		// status so the fault is visible.
		log.Printf("error: init: %v", err)
	}
	defer ctl.Close()

	publisher, mqttStatus := openPublisher(s)
	defer publisher.Close()

	tracker := status.NewTracker(time.Now(), status.Config{
		PeriodMs:    s.Control.Period.Milliseconds(),
		HeartbeatMs: s.Control.Heartbeat.Milliseconds(),
		Broker:      s.MQTT.Broker,
		HTTPPort:    s.HTTP.Addr,
		SerialPort:  s.Serial.Port,
		Simulate:    s.Simulate.Enabled,
	})
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}
	tracker.Update(ctl.Telemetry())
	tracker.SetMQTTConnected(mqttStatus.IsConnected())

	collector := metrics.New()
	bus.Subscribe(collector)

	var rec *recorder.Recorder
	if s.Influx.URL != "" {
		rec = recorder.New(recorder.Options{
			URL:    s.Influx.URL,
			Token:  s.Influx.Token,
			Org:    s.Influx.Org,
			Bucket: s.Influx.Bucket,
			Every:  s.Influx.Every,
		})
		defer rec.Close()
	}

	// Publish startup event with full status snapshot
	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	} else {
		log.Printf("published startup event")
	}

	if s.HTTP.Addr != "" {
		srv := web.New(s.HTTP.Addr, tracker, collector.Handler())
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", s.HTTP.Addr)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var cmds chan string
	if s.Control.Console {
		cmds = make(chan string)
		go func() {
			if err := console.Read(ctx, os.Stdin, cmds); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("console: %v", err)
			}
		}()
	}

	log.Printf("started: period=%v broker=%q heartbeat=%v simulate=%v state=%s",
		s.Control.Period, s.MQTT.Broker, s.Control.Heartbeat, s.Simulate.Enabled, ctl.State())

	ticker := time.NewTicker(s.Control.Period)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	d := &daemon{
		ctl:        ctl,
		bus:        bus,
		publisher:  publisher,
		mqttStatus: mqttStatus,
		tracker:    tracker,
		metrics:    collector,
		recorder:   rec,
		sim:        sim,
		period:     s.Control.Period,
		heartbeat:  s.Control.Heartbeat,
		out:        os.Stdout,
	}
	return d.runLoop(time.Now, ticker.C, sigCh, cmds)
}

func openStorage(image string) (config.Storage, error) {
	if image == "" {
		log.Printf("warn: config: no image file, configuration is not persisted")
		return config.NewMemStorage(1024), nil
	}
	f, err := config.OpenImage(image)
	if err != nil {
		return nil, fmt.Errorf("open config image: %w", err)
	}
	return f, nil
}

// openHardware returns the board, or the simulator when simulating. The
// second result is non-nil only for the simulator.
func openHardware(s *settings.Settings, store *config.Store) (hw.Hardware, *hw.Sim, error) {
	if s.Simulate.Enabled {
		log.Printf("hw: simulating, ambient %d", s.Simulate.Ambient)
		sim := hw.NewSim(store.Sensor, s.Simulate.Ambient)
		return sim, sim, nil
	}

	link := mcu.New(s.Serial.Port, s.Serial.Baud)
	if err := link.Connect(); err != nil {
		return nil, nil, fmt.Errorf("init mcu: %w", err)
	}
	pins := store.IO
	w, err := gpio.NewRealWriter(s.GPIO.Chip, int(pins.Vaporizer), int(pins.HeaterRelay))
	if err != nil {
		link.Close()
		return nil, nil, fmt.Errorf("init gpio: %w", err)
	}
	return hw.NewBoard(link, w, pins), nil, nil
}

func openPublisher(s *settings.Settings) (mqtt.Publisher, mqtt.ConnectionStatus) {
	if s.MQTT.Broker == "" {
		log.Printf("mqtt: disabled")
		return noPublisher{}, noPublisher{}
	}
	p, err := mqtt.NewRealPublisher(mqtt.Options{
		Broker:         s.MQTT.Broker,
		ClientID:       s.MQTT.ClientID,
		BufferSize:     s.MQTT.Buffer,
		ConnectRetries: 5,
	})
	if err != nil {
		log.Printf("error: mqtt: %v; continuing without MQTT", err)
		return noPublisher{}, noPublisher{}
	}
	return p, p
}

// noPublisher stands in when MQTT is disabled or unreachable.
type noPublisher struct{}

func (noPublisher) Publish(mqtt.HeaterEvent) error       { return nil }
func (noPublisher) PublishSystem(mqtt.SystemEvent) error { return nil }
func (noPublisher) Close() error                         { return nil }
func (noPublisher) IsConnected() bool                    { return false }

func writeConfig(w io.Writer, store *config.Store) error {
	for _, name := range config.ParamNames() {
		v, err := store.Params.Get(name)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s=%s\n", name, v)
	}
	for i, a := range store.Sensor.AddressPlate {
		fmt.Fprintf(w, "plate%d=%s\n", i, a)
	}
	for i, a := range store.Sensor.AddressHive {
		fmt.Fprintf(w, "hive%d=%s\n", i, a)
	}
	fmt.Fprintf(w, "vaporizerPin=%d\nheaterRelayPin=%d\n", store.IO.Vaporizer, store.IO.HeaterRelay)
	return nil
}

// daemon is everything the control loop touches. All fields except the
// tracker are owned by the loop goroutine.
type daemon struct {
	ctl        *control.Controller
	bus        *event.Bus
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	tracker    *status.Tracker
	metrics    *metrics.Collector // may be nil
	recorder   *recorder.Recorder // may be nil
	sim        *hw.Sim            // non-nil when simulating
	period     time.Duration
	heartbeat  time.Duration
	out        io.Writer // console replies

	at            time.Time
	lastHeartbeat time.Time
}

// runLoop drives one control pass per tick and executes console commands
// between passes. It returns on a signal or after a console shutdown.
func (d *daemon) runLoop(now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal, cmds <-chan string) error {
	d.at = now()
	d.lastHeartbeat = d.at
	sub := d.bus.Subscribe(event.ListenerFunc(d.forward))
	defer d.bus.Unsubscribe(sub)

	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			d.at = now()
			d.ctl.Close()
			d.publishShutdown(signalName)
			return nil

		case line, ok := <-cmds:
			if !ok {
				cmds = nil
				continue
			}
			d.at = now()
			if err := console.Execute(d.ctl, line, d.out); err != nil {
				fmt.Fprintf(d.out, "error: %v\n", err)
			}
			d.refresh()
			if d.ctl.State() == state.Shutdown {
				log.Printf("shutdown requested from console")
				d.ctl.Close()
				d.publishShutdown("CONSOLE")
				return nil
			}

		case <-tick:
			d.at = now()
			if d.sim != nil {
				d.sim.Step(d.period)
			}
			d.ctl.Process()
			tel := d.refresh()
			if d.recorder != nil {
				d.recorder.Record(d.at, tel)
			}

			if d.heartbeat > 0 && d.at.Sub(d.lastHeartbeat) >= d.heartbeat {
				d.lastHeartbeat = d.at
				d.publishHeartbeat(tel)
			}
		}
	}
}

// refresh copies the controller telemetry to the status and metrics sinks.
func (d *daemon) refresh() control.Telemetry {
	tel := d.ctl.Telemetry()
	d.tracker.Update(tel)
	if d.mqttStatus != nil {
		d.tracker.SetMQTTConnected(d.mqttStatus.IsConnected())
	}
	if d.metrics != nil {
		d.metrics.Update(tel)
	}
	return tel
}

// forward publishes bus events to MQTT. Process ticks stay local.
func (d *daemon) forward(e event.Event) {
	if e.Kind == event.Process {
		return
	}
	switch {
	case e.Kind.IsTemperature():
		log.Printf("event: %s zone=%d temperature=%d", e.Kind, e.Zone, e.Temperature)
	case e.Kind.IsProgram():
		log.Printf("event: %s program=%q", e.Kind, e.Program.Name)
	}
	he := mqtt.HeaterEvent{Timestamp: d.at, Event: e, State: d.ctl.State()}
	if err := d.publisher.Publish(he); err != nil {
		log.Printf("publish error: %v", err)
	}
}

func (d *daemon) publishHeartbeat(tel control.Telemetry) {
	log.Printf("heartbeat: state=%s cycles=%d program=%q heaters=%d/%d",
		tel.State, tel.Cycles, tel.Program, tel.ActiveHeaters, tel.MaxHeaters)
	if net := readNetworkInfo(); net != nil {
		d.tracker.SetNetwork(net)
	}
	snap := d.tracker.Snapshot()
	hb := mqtt.SystemEvent{
		Timestamp:  d.at,
		Event:      "HEARTBEAT",
		RawPayload: status.FormatStatusEvent(snap, "HEARTBEAT", ""),
	}
	if err := d.publisher.PublishSystem(hb); err != nil {
		log.Printf("heartbeat publish error: %v", err)
	}
}

func (d *daemon) publishShutdown(reason string) {
	d.refresh()
	snap := d.tracker.Snapshot()
	ev := mqtt.SystemEvent{
		Timestamp:  d.at,
		Event:      "SHUTDOWN",
		Reason:     reason,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "SHUTDOWN", reason),
	}
	if err := d.publisher.PublishSystem(ev); err != nil {
		log.Printf("failed to publish shutdown event: %v", err)
	} else {
		log.Printf("published shutdown event")
	}
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
