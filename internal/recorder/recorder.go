// Package recorder keeps a history of controller telemetry in InfluxDB.
//
// Record never blocks the control loop: samples go through a bounded queue
// to a single writer goroutine, and are dropped when the queue is full or
// the circuit breaker is open.
package recorder

import (
	"context"
	"errors"
	"log"
	"strconv"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/sony/gobreaker"

	"github.com/sweeney/hive-heater/internal/control"
	"github.com/sweeney/hive-heater/internal/hw"
)

// Writer stores points. api.WriteAPIBlocking satisfies it.
type Writer interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// Options configures a Recorder.
type Options struct {
	URL    string
	Token  string
	Org    string
	Bucket string

	// Every is the minimum spacing between recorded samples.
	Every time.Duration

	// QueueSize bounds the samples waiting for the writer.
	QueueSize int

	// Timeout bounds one write.
	Timeout time.Duration
}

func (o *Options) defaults() {
	if o.Every <= 0 {
		o.Every = 5 * time.Second
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 64
	}
	if o.Timeout <= 0 {
		o.Timeout = 5 * time.Second
	}
}

type sample struct {
	at  time.Time
	tel control.Telemetry
}

// Recorder writes telemetry samples asynchronously.
type Recorder struct {
	w       Writer
	cb      *gobreaker.CircuitBreaker
	timeout time.Duration
	every   time.Duration
	release func()

	mu      sync.Mutex
	queue   chan sample
	closed  bool
	last    time.Time
	dropped uint64
	done    chan struct{}
}

// New connects to InfluxDB and starts the writer.
func New(o Options) *Recorder {
	client := influxdb2.NewClient(o.URL, o.Token)
	r := NewWithWriter(client.WriteAPIBlocking(o.Org, o.Bucket), o)
	r.release = client.Close
	log.Printf("recorder: writing to %s bucket %s every %v", o.URL, o.Bucket, r.every)
	return r
}

// NewWithWriter starts a recorder on an arbitrary Writer.
func NewWithWriter(w Writer, o Options) *Recorder {
	o.defaults()
	r := &Recorder{
		w:       w,
		timeout: o.Timeout,
		every:   o.Every,
		queue:   make(chan sample, o.QueueSize),
		done:    make(chan struct{}),
	}
	r.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "influx",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("recorder: breaker %s %s -> %s", name, from, to)
		},
	})
	go r.run()
	return r
}

// Record queues a sample taken at ts. It returns false if the sample was
// skipped (too soon after the last one, queue full, or closed).
func (r *Recorder) Record(ts time.Time, tel control.Telemetry) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || (!r.last.IsZero() && ts.Sub(r.last) < r.every) {
		return false
	}
	select {
	case r.queue <- sample{at: ts, tel: tel}:
		r.last = ts
		return true
	default:
		r.dropped++
		if r.dropped == 1 || r.dropped%100 == 0 {
			log.Printf("warn: recorder: queue full, %d samples dropped", r.dropped)
		}
		return false
	}
}

// Dropped returns how many samples were lost to a full queue.
func (r *Recorder) Dropped() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// Close stops accepting samples, waits for queued ones and releases the
// client.
func (r *Recorder) Close() {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()
	<-r.done
	if r.release != nil {
		r.release()
	}
}

func (r *Recorder) run() {
	defer close(r.done)
	for s := range r.queue {
		points := Points(s.at, s.tel)
		_, err := r.cb.Execute(func() (interface{}, error) {
			ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
			defer cancel()
			return nil, r.w.WritePoint(ctx, points...)
		})
		switch {
		case err == nil:
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			// Breaker open: the sample is dropped without a log line each time.
		default:
			log.Printf("warn: recorder: write: %v", err)
		}
	}
}

// Points converts one telemetry sample into line-protocol points: one per
// plate, one per zone and one for the system. Unknown temperatures are
// left out.
func Points(ts time.Time, t control.Telemetry) []*write.Point {
	points := make([]*write.Point, 0, len(t.Plates)+len(t.Zones)+1)
	for _, p := range t.Plates {
		fields := map[string]interface{}{
			"target": celsius(p.Target),
			"power":  int(p.Power),
			"fan":    int(p.FanSpeed),
		}
		if p.Temperature != hw.Unknown {
			fields["temperature"] = celsius(p.Temperature)
		}
		points = append(points, influxdb2.NewPoint("plate",
			map[string]string{"plate": strconv.Itoa(p.Index)}, fields, ts))
	}
	for _, z := range t.Zones {
		fields := map[string]interface{}{
			"target":  celsius(z.Target),
			"ceiling": celsius(z.PlateCeiling),
			"high":    z.High,
		}
		if z.Temperature != hw.Unknown {
			fields["temperature"] = celsius(z.Temperature)
		}
		points = append(points, influxdb2.NewPoint("zone",
			map[string]string{"zone": strconv.Itoa(z.Index)}, fields, ts))
	}
	tags := map[string]string{}
	if t.Program != "" {
		tags["program"] = t.Program
	}
	points = append(points, influxdb2.NewPoint("system", tags,
		map[string]interface{}{
			"state":          t.State.String(),
			"fault":          string(t.Fault),
			"active_heaters": t.ActiveHeaters,
			"relay":          t.HeaterRelay,
			"humidity":       int(t.Humidity),
			"vaporizer":      t.Vaporizer == hw.VaporizerOn,
		}, ts))
	return points
}

func celsius(tenths int16) float64 {
	return float64(tenths) / 10
}
