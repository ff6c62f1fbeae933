package mqtt

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	paho "github.com/eclipse/paho.mqtt.golang"
)

// DefaultBufferSize is how many messages are held while the broker is
// unreachable.
const DefaultBufferSize = 256

// Options configures a RealPublisher.
type Options struct {
	Broker   string
	ClientID string

	// BufferSize bounds the offline queue. Zero means DefaultBufferSize.
	BufferSize int

	// ConnectRetries is how many extra attempts the initial connect makes.
	ConnectRetries uint64
}

// RealPublisher publishes to an actual MQTT broker. Publishing never waits
// on the network: while the client is disconnected, messages are queued and
// replayed in order once the connection comes back.
type RealPublisher struct {
	client paho.Client

	mu  sync.Mutex
	buf *ringBuffer
}

// NewRealPublisher creates a publisher connected to the given broker.
func NewRealPublisher(o Options) (*RealPublisher, error) {
	if o.ClientID == "" {
		o.ClientID = "hive-heater"
	}
	if o.BufferSize <= 0 {
		o.BufferSize = DefaultBufferSize
	}
	p := &RealPublisher{buf: newRingBuffer(o.BufferSize)}

	will, _ := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "SHUTDOWN", Reason: "MQTT_DISCONNECT"})
	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(30*time.Second).
		SetBinaryWill(TopicSystem, will, 1, true).
		SetOnConnectHandler(func(paho.Client) { p.flush() }).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Printf("warn: mqtt: connection lost: %v", err)
		})
	p.client = paho.NewClient(opts)

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = time.Minute
	err := backoff.Retry(func() error {
		token := p.client.Connect()
		if !token.WaitTimeout(10 * time.Second) {
			return fmt.Errorf("connection timeout")
		}
		if err := token.Error(); err != nil {
			log.Printf("warn: mqtt: connect to %s: %v", o.Broker, err)
			return err
		}
		return nil
	}, backoff.WithMaxRetries(bo, o.ConnectRetries))
	if err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	log.Printf("mqtt: connected to %s", o.Broker)
	return p, nil
}

// Publish sends a control event. QoS 0, not retained.
func (p *RealPublisher) Publish(event HeaterEvent) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	p.send(bufferedMsg{topic: Topic, payload: payload})
	return nil
}

// PublishSystem sends a system lifecycle event. QoS 1 so lifecycle events
// survive a broker hiccup.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	p.send(bufferedMsg{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained})
	return nil
}

func (p *RealPublisher) send(m bufferedMsg) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.client.IsConnectionOpen() {
		p.buf.push(m)
		return
	}
	p.client.Publish(m.topic, m.qos, m.retained, m.payload)
}

// flush replays queued messages. Runs on the paho connect callback.
func (p *RealPublisher) flush() {
	p.mu.Lock()
	defer p.mu.Unlock()
	msgs := p.buf.drainAll()
	if len(msgs) > 0 {
		log.Printf("mqtt: reconnected, replaying %d messages", len(msgs))
	}
	for _, m := range msgs {
		p.client.Publish(m.topic, m.qos, m.retained, m.payload)
	}
}

// Buffered returns the number of messages waiting for the connection.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.len()
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close disconnects from the broker. Anything published during shutdown
// gets a second to leave.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000)
	return nil
}
