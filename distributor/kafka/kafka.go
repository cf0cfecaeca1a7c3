// Package kafka provides a Kafka publish distributor for gazefan.
package kafka

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmkafka "github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/bytedance/sonic"

	"github.com/gazefan/gazefan/distributor"
)

// DistributorName is the name used to register this distributor.
const DistributorName = "kafka"

const defaultSendTimeout = 10 * time.Second

// Params configures the Kafka distributor.
type Params struct {
	// Brokers is the Kafka broker address list. Required.
	Brokers []string `json:"brokers"`

	// TopicPrefix is prepended to event names to form topics.
	TopicPrefix string `json:"topicPrefix"`

	// Timeout bounds each Send, in milliseconds. Zero uses the default.
	Timeout int `json:"timeout"`
}

func (p Params) sendTimeout() time.Duration {
	if p.Timeout <= 0 {
		return defaultSendTimeout
	}
	return time.Duration(p.Timeout) * time.Millisecond
}

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(cfg wmkafka.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return wmkafka.NewPublisher(cfg, logger)
}

// Register registers the Kafka distributor with the default registry.
func Register() {
	distributor.RegisterWithCapabilities(DistributorName, Build, distributor.KafkaCapabilities)
}

// Build creates a new Kafka distributor from raw params.
func Build(name string, params distributor.Params, logger watermill.LoggerAdapter) (distributor.Distributor, error) {
	var p Params
	if err := distributor.DecodeParams(params, &p); err != nil {
		return nil, fmt.Errorf("kafka: decode params: %w", err)
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
	return distributor.KafkaCapabilities
}

// Distributor publishes event envelopes to Kafka topics derived from the
// event name.
type Distributor struct {
	name   string
	status *distributor.Status
	logger watermill.LoggerAdapter

	mu     sync.Mutex
	params Params
	pub    message.Publisher
}

func (d *Distributor) Name() string { return d.name }

func (d *Distributor) State() distributor.State { return d.status.State() }

func (d *Distributor) Connect(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pub != nil {
		return nil
	}

	d.status.Set(distributor.StateConnecting)
	pub, err := PublisherFactory(wmkafka.PublisherConfig{
		Brokers:   d.params.Brokers,
		Marshaler: wmkafka.DefaultMarshaler{},
	}, d.logger)
	if err != nil {
		d.status.Set(distributor.StateError)
		return fmt.Errorf("kafka: connect %v: %w", d.params.Brokers, err)
	}

	d.pub = pub
	d.status.Set(distributor.StateConnected)
	return nil
}

func (d *Distributor) Send(ctx context.Context, event string, payload any) error {
	d.mu.Lock()
	pub := d.pub
	timeout := d.params.sendTimeout()
	topic := d.params.TopicPrefix + event
	d.mu.Unlock()
	if pub == nil {
		return fmt.Errorf("kafka: not connected")
	}

	data, err := sonic.ConfigStd.Marshal(distributor.NewEnvelope(event, payload))
	if err != nil {
		return fmt.Errorf("kafka: marshal payload: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), data)
	msg.SetContext(ctx)

	done := make(chan error, 1)
	go func() { done <- pub.Publish(topic, msg) }()
	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		return fmt.Errorf("kafka: send %q timed out after %s", event, timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Distributor) Reconfigure(ctx context.Context, params distributor.Params) error {
	var p Params
	if err := distributor.DecodeParams(params, &p); err != nil {
		d.status.Set(distributor.StateError)
		return fmt.Errorf("kafka: decode params: %w", err)
	}

	if err := d.Disconnect(); err != nil {
		d.logger.Error("kafka: disconnect during reconfigure", err, nil)
	}

	d.mu.Lock()
	d.params = p
	d.mu.Unlock()
	return d.Connect(ctx)
}

func (d *Distributor) Disconnect() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pub != nil {
		if err := d.pub.Close(); err != nil {
			d.logger.Error("kafka: close publisher", err, nil)
		}
		d.pub = nil
	}
	d.status.Set(distributor.StateDisconnected)
	return nil
}
