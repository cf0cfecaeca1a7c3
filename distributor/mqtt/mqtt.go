// Package mqtt provides an MQTT publish distributor for gazefan, built on
// the Eclipse Paho client.
package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/bytedance/sonic"
	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/gazefan/gazefan/distributor"
)

// DistributorName is the name used to register this distributor.
const DistributorName = "mqtt"

const defaultSendTimeout = 5 * time.Second

// Params configures the MQTT distributor.
type Params struct {
	// Broker is the broker URI, e.g. "tcp://localhost:1883". Required.
	Broker string `json:"broker"`

	// ClientID identifies this connection to the broker.
	ClientID string `json:"clientId"`

	// Topics maps event names to explicit topics. Events without an entry
	// publish to TopicPrefix + event name.
	Topics map[string]string `json:"topics"`

	// TopicPrefix is the fallback topic prefix, e.g. "gazefan/".
	TopicPrefix string `json:"topicPrefix"`

	// QoS is the MQTT quality-of-service level (0, 1, or 2).
	QoS byte `json:"qos"`

	// Retain marks published messages as retained.
	Retain bool `json:"retain"`

	// Timeout bounds connect and each Send, in milliseconds. Zero uses the
	// default.
	Timeout int `json:"timeout"`
}

func (p Params) sendTimeout() time.Duration {
	if p.Timeout <= 0 {
		return defaultSendTimeout
	}
	return time.Duration(p.Timeout) * time.Millisecond
}

func (p Params) topicFor(event string) string {
	if topic, ok := p.Topics[event]; ok {
		return topic
	}
	return p.TopicPrefix + event
}

// ClientFactory allows overriding the Paho client creation for testing.
var ClientFactory = func(opts *pahomqtt.ClientOptions) pahomqtt.Client {
	return pahomqtt.NewClient(opts)
}

// Register registers the MQTT distributor with the default registry.
func Register() {
	distributor.RegisterWithCapabilities(DistributorName, Build, distributor.MQTTCapabilities)
}

// Build creates a new MQTT distributor from raw params.
func Build(name string, params distributor.Params, logger watermill.LoggerAdapter) (distributor.Distributor, error) {
	var p Params
	if err := distributor.DecodeParams(params, &p); err != nil {
		return nil, fmt.Errorf("mqtt: decode params: %w", err)
	}
	return &Distributor{
		name:   name,
		params: p,
		status: distributor.NewStatus(),
		logger: logger,
	}, nil
}

// Capabilities returns the capabilities of this distributor.
func Capabilities() distributor.Capabilities {
	return distributor.MQTTCapabilities
}

// Distributor publishes event envelopes to per-event MQTT topics.
type Distributor struct {
	name   string
	status *distributor.Status
	logger watermill.LoggerAdapter

	mu     sync.Mutex
	params Params
	client pahomqtt.Client
}

func (d *Distributor) Name() string { return d.name }

func (d *Distributor) State() distributor.State { return d.status.State() }

func (d *Distributor) Connect(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.client != nil && d.client.IsConnected() {
		return nil
	}

	d.status.Set(distributor.StateConnecting)

	opts := pahomqtt.NewClientOptions().
		AddBroker(d.params.Broker).
		SetClientID(d.params.ClientID).
		SetConnectTimeout(d.params.sendTimeout()).
		SetAutoReconnect(true)

	client := ClientFactory(opts)
	token := client.Connect()
	if !token.WaitTimeout(d.params.sendTimeout()) {
		d.status.Set(distributor.StateError)
		return fmt.Errorf("mqtt: connect %s: timed out", d.params.Broker)
	}
	if err := token.Error(); err != nil {
		d.status.Set(distributor.StateError)
		return fmt.Errorf("mqtt: connect %s: %w", d.params.Broker, err)
	}

	d.client = client
	d.status.Set(distributor.StateConnected)
	return nil
}

func (d *Distributor) Send(ctx context.Context, event string, payload any) error {
	d.mu.Lock()
	client := d.client
	params := d.params
	d.mu.Unlock()
	if client == nil || !client.IsConnected() {
		return fmt.Errorf("mqtt: not connected")
	}

	data, err := sonic.ConfigStd.Marshal(distributor.NewEnvelope(event, payload))
	if err != nil {
		return fmt.Errorf("mqtt: marshal payload: %w", err)
	}

	token := client.Publish(params.topicFor(event), params.QoS, params.Retain, data)
	if !token.WaitTimeout(params.sendTimeout()) {
		return fmt.Errorf("mqtt: send %q timed out after %s", event, params.sendTimeout())
	}
	return token.Error()
}

func (d *Distributor) Reconfigure(ctx context.Context, params distributor.Params) error {
	var p Params
	if err := distributor.DecodeParams(params, &p); err != nil {
		d.status.Set(distributor.StateError)
		return fmt.Errorf("mqtt: decode params: %w", err)
	}

	if err := d.Disconnect(); err != nil {
		d.logger.Error("mqtt: disconnect during reconfigure", err, nil)
	}

	d.mu.Lock()
	d.params = p
	d.mu.Unlock()
	return d.Connect(ctx)
}

func (d *Distributor) Disconnect() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.client != nil {
		// 250ms quiesce for in-flight acks; matches the Paho examples.
		d.client.Disconnect(250)
		d.client = nil
	}
	d.status.Set(distributor.StateDisconnected)
	return nil
}
