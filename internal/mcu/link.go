// Package mcu talks to the I/O co-processor over a serial line. The
// co-processor owns the one-wire bus, the humidity sensor and the heater and
// fan PWM outputs; the host sends duty values and receives readings.
//
// Protocol (newline-terminated ASCII):
//
//	MCU -> host  T <address-hex> <tenths-celsius>
//	MCU -> host  H <percent>
//	host -> MCU  P <plate> <duty>
//	host -> MCU  F <plate> <speed>
//	host -> MCU  U <speed>
package mcu

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.bug.st/serial"

	"github.com/sweeney/hive-heater/internal/config"
)

const (
	// DefaultBaudRate matches the co-processor firmware.
	DefaultBaudRate = 115200

	// DefaultStaleAfter is how long a reading stays valid without a refresh.
	DefaultStaleAfter = 5 * time.Second

	// HumidityWarmup is how long after connect the humidity sensor is not
	// trusted.
	HumidityWarmup = 10 * time.Second

	// HumidityFallback is reported during warm-up.
	HumidityFallback = 99
)

var (
	ErrNotConnected = errors.New("not connected")
	ErrNoReading    = errors.New("no reading")
	ErrStale        = errors.New("reading is stale")
)

type reading struct {
	value int16
	at    time.Time
}

// Link is a connection to the co-processor. Readings are cached by a
// background reader; the getters never block on I/O.
type Link struct {
	port       string
	baudRate   int
	staleAfter time.Duration
	now        func() time.Time
	openPort   func() (io.ReadWriteCloser, error)

	mu        sync.RWMutex
	conn      io.ReadWriteCloser
	connected bool
	started   time.Time
	temps     map[config.SensorAddress]reading
	humidity  *reading

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Link for the given serial port. Call Connect to open it.
func New(port string, baudRate int) *Link {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	ctx, cancel := context.WithCancel(context.Background())
	l := &Link{
		port:       port,
		baudRate:   baudRate,
		staleAfter: DefaultStaleAfter,
		now:        time.Now,
		temps:      make(map[config.SensorAddress]reading),
		ctx:        ctx,
		cancel:     cancel,
	}
	l.openPort = l.open
	return l
}

// Connect opens the serial port and starts reading.
func (l *Link) Connect() error {
	conn, err := l.openPort()
	if err != nil {
		return err
	}
	l.attach(conn)
	return nil
}

func (l *Link) open() (io.ReadWriteCloser, error) {
	port, err := serial.Open(l.port, &serial.Mode{BaudRate: l.baudRate})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", l.port, err)
	}
	return port, nil
}

func (l *Link) attach(conn io.ReadWriteCloser) {
	l.mu.Lock()
	l.conn = conn
	l.connected = true
	l.started = l.now()
	l.mu.Unlock()
	go l.readLoop(conn)
}

// Close stops the reader and closes the port.
func (l *Link) Close() error {
	l.cancel()
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return nil
	}
	err := l.conn.Close()
	l.conn = nil
	l.connected = false
	return err
}

// IsConnected reports whether the serial port is open.
func (l *Link) IsConnected() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.connected
}

// Temperature returns the latest reading for a probe in tenths of a degree.
// A stale reading is returned together with ErrStale.
func (l *Link) Temperature(addr config.SensorAddress) (int16, error) {
	l.mu.RLock()
	r, ok := l.temps[addr]
	l.mu.RUnlock()
	if !ok {
		return 0, fmt.Errorf("sensor %s: %w", addr, ErrNoReading)
	}
	if l.now().Sub(r.at) > l.staleAfter {
		return r.value, fmt.Errorf("sensor %s: %w", addr, ErrStale)
	}
	return r.value, nil
}

// Humidity returns relative humidity in percent. During the warm-up after
// connecting it reports HumidityFallback.
func (l *Link) Humidity() (uint8, error) {
	l.mu.RLock()
	started, h := l.started, l.humidity
	l.mu.RUnlock()
	now := l.now()
	if now.Sub(started) < HumidityWarmup {
		return HumidityFallback, nil
	}
	if h == nil {
		return 0, fmt.Errorf("humidity: %w", ErrNoReading)
	}
	if now.Sub(h.at) > l.staleAfter {
		return uint8(h.value), fmt.Errorf("humidity: %w", ErrStale)
	}
	return uint8(h.value), nil
}

// SetHeaterPower sends a heater duty value for a plate.
func (l *Link) SetHeaterPower(plate int, power uint8) error {
	return l.send(fmt.Sprintf("P %d %d\n", plate, power))
}

// SetFanSpeed sends a plate fan speed.
func (l *Link) SetFanSpeed(plate int, speed uint8) error {
	return l.send(fmt.Sprintf("F %d %d\n", plate, speed))
}

// SetHumidifierFanSpeed sends the humidifier fan speed.
func (l *Link) SetHumidifierFanSpeed(speed uint8) error {
	return l.send(fmt.Sprintf("U %d\n", speed))
}

func (l *Link) send(cmd string) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if !l.connected {
		return ErrNotConnected
	}
	if _, err := io.WriteString(l.conn, cmd); err != nil {
		return fmt.Errorf("send %q: %w", strings.TrimSpace(cmd), err)
	}
	return nil
}

// readLoop consumes lines until the port fails, then reopens it with
// exponential backoff until Close is called.
func (l *Link) readLoop(conn io.ReadWriteCloser) {
	for {
		scanner := bufio.NewScanner(conn)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			if err := l.handle(line); err != nil {
				log.Printf("mcu: %v", err)
			}
		}
		if l.ctx.Err() != nil {
			return
		}
		if err := scanner.Err(); err != nil {
			log.Printf("mcu: read error: %v", err)
		}

		l.mu.Lock()
		l.connected = false
		l.mu.Unlock()
		conn.Close()

		next, err := l.reopen()
		if err != nil {
			return
		}
		l.mu.Lock()
		if l.ctx.Err() != nil {
			// Closed while the port was being reopened.
			l.mu.Unlock()
			next.Close()
			return
		}
		l.conn = next
		l.connected = true
		l.mu.Unlock()
		conn = next
		log.Printf("mcu: reconnected to %s", l.port)
	}
}

func (l *Link) reopen() (io.ReadWriteCloser, error) {
	var conn io.ReadWriteCloser
	op := func() error {
		c, err := l.openPort()
		if err != nil {
			log.Printf("mcu: %v", err)
			return err
		}
		conn = c
		return nil
	}
	bo := backoff.NewExponentialBackOff()
	bo.MaxInterval = 30 * time.Second
	bo.MaxElapsedTime = 0
	if err := backoff.Retry(op, backoff.WithContext(bo, l.ctx)); err != nil {
		return nil, err
	}
	return conn, nil
}

// handle parses one line and updates the reading cache.
func (l *Link) handle(line string) error {
	msg, err := parseLine(line)
	if err != nil {
		return fmt.Errorf("parse line %q: %w", line, err)
	}
	at := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	switch msg.kind {
	case kindTemperature:
		l.temps[msg.addr] = reading{value: msg.value, at: at}
	case kindHumidity:
		l.humidity = &reading{value: msg.value, at: at}
	}
	return nil
}
