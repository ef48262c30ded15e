package mqtt

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/treadmill-pod/internal/pace"
)

// Defaults for RealPublisher.
const (
	DefaultClientID   = "treadmill-pod"
	DefaultOutboxSize = 256

	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
)

// Options configures a RealPublisher.
type Options struct {
	Broker     string
	ClientID   string
	Topics     Topics
	Units      Units
	OutboxSize int
	Now        func() time.Time
}

// RealPublisher publishes to an actual MQTT broker. Messages published
// while the connection is down are queued and replayed on reconnect.
type RealPublisher struct {
	client paho.Client
	topics Topics
	units  Units
	now    func() time.Time

	mu         sync.Mutex
	outbox     *outbox
	everOnline bool
}

// NewRealPublisher creates a publisher for the given broker. If the broker
// cannot be reached within the connect timeout the publisher is still
// returned; paho keeps retrying in the background and messages are queued
// until it succeeds.
func NewRealPublisher(o Options) (*RealPublisher, error) {
	if o.Broker == "" {
		return nil, errors.New("mqtt: broker address required")
	}
	if o.ClientID == "" {
		o.ClientID = DefaultClientID
	}
	if o.Topics == (Topics{}) {
		o.Topics = TopicsFor("")
	}
	if o.Units == (Units{}) {
		o.Units = DefaultUnits
	}
	if o.OutboxSize == 0 {
		o.OutboxSize = DefaultOutboxSize
	}
	if o.Now == nil {
		o.Now = time.Now
	}

	p := &RealPublisher{
		topics: o.Topics,
		units:  o.Units,
		now:    o.Now,
		outbox: newOutbox(o.OutboxSize),
	}

	will, err := FormatSystemPayload(SystemEvent{Timestamp: o.Now(), Event: "OFFLINE", Reason: "MQTT_DISCONNECT"})
	if err != nil {
		return nil, fmt.Errorf("format will payload: %w", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(o.Topics.System, string(will), 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Printf("mqtt: connection lost: %v", err)
		})

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		log.Printf("mqtt: %s not reachable yet, queueing until connected", o.Broker)
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return p, nil
}

// onConnect runs on a paho goroutine after every successful (re)connect.
func (p *RealPublisher) onConnect(c paho.Client) {
	p.mu.Lock()
	again := p.everOnline
	p.everOnline = true
	queued := p.outbox.drain()
	p.mu.Unlock()

	if again {
		payload, err := FormatSystemPayload(SystemEvent{Timestamp: p.now(), Event: "RECONNECTED"})
		if err != nil {
			log.Printf("mqtt: format reconnect payload: %v", err)
		} else {
			c.Publish(p.topics.System, 1, true, payload)
		}
	}

	if len(queued) > 0 {
		log.Printf("mqtt: replaying %d queued messages", len(queued))
	}
	for _, m := range queued {
		// Fire and forget: waiting here would stall paho's router.
		c.Publish(m.topic, m.qos, m.retained, m.payload)
	}
}

// Publish sends a telemetry record to the MQTT broker.
func (p *RealPublisher) Publish(tel pace.Telemetry) error {
	payload, err := FormatPayload(tel, p.units)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	// QoS 0 (at-most-once), not retained
	return p.send(queuedMsg{topic: p.topics.Telemetry, payload: payload})
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}

	// QoS 1 (at-least-once) for lifecycle events - we want to ensure delivery
	return p.send(queuedMsg{topic: p.topics.System, payload: payload, qos: 1, retained: event.Retained})
}

func (p *RealPublisher) send(m queuedMsg) error {
	if !p.client.IsConnectionOpen() {
		p.mu.Lock()
		p.outbox.push(m)
		p.mu.Unlock()
		return nil
	}

	token := p.client.Publish(m.topic, m.qos, m.retained, m.payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish %s timeout", m.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", m.topic, err)
	}
	return nil
}

// IsConnected reports whether the broker connection is currently open.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Queued returns the number of messages waiting for a connection and the
// number dropped because the outbox was full.
func (p *RealPublisher) Queued() (queued, dropped int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outbox.len(), p.outbox.dropped
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
