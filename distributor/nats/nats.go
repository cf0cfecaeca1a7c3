// Package nats provides a NATS Core publish distributor for gazefan.
package nats

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmnats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/bytedance/sonic"

	"github.com/gazefan/gazefan/distributor"
)

// DistributorName is the name used to register this distributor.
const DistributorName = "nats"

const defaultSendTimeout = 5 * time.Second

// Params configures the NATS distributor.
type Params struct {
	// URL is the NATS server URL, e.g. "nats://localhost:4222". Required.
	URL string `json:"url"`

	// SubjectPrefix is prepended to event names to form subjects.
	SubjectPrefix string `json:"subjectPrefix"`

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
var PublisherFactory = func(cfg wmnats.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return wmnats.NewPublisher(cfg, logger)
}

// Register registers the NATS distributor with the default registry.
// This should be called from an init() function in an importing package,
// or explicitly before using the distributor.
func Register() {
	distributor.RegisterWithCapabilities(DistributorName, Build, distributor.NATSCapabilities)
}

// Build creates a new NATS distributor from raw params.
func Build(name string, params distributor.Params, logger watermill.LoggerAdapter) (distributor.Distributor, error) {
	var p Params
	if err := distributor.DecodeParams(params, &p); err != nil {
		return nil, fmt.Errorf("nats: decode params: %w", err)
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
	return distributor.NATSCapabilities
}

// Distributor publishes event envelopes to NATS subjects derived from the
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
	pub, err := PublisherFactory(wmnats.PublisherConfig{
		URL:       d.params.URL,
		Marshaler: &wmnats.NATSMarshaler{},
	}, d.logger)
	if err != nil {
		d.status.Set(distributor.StateError)
		return fmt.Errorf("nats: connect %s: %w", d.params.URL, err)
	}

	d.pub = pub
	d.status.Set(distributor.StateConnected)
	return nil
}

func (d *Distributor) Send(ctx context.Context, event string, payload any) error {
	d.mu.Lock()
	pub := d.pub
	timeout := d.params.sendTimeout()
	subject := d.params.SubjectPrefix + event
	d.mu.Unlock()
	if pub == nil {
		return fmt.Errorf("nats: not connected")
	}

	data, err := sonic.ConfigStd.Marshal(distributor.NewEnvelope(event, payload))
	if err != nil {
		return fmt.Errorf("nats: marshal payload: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), data)
	msg.SetContext(ctx)

	// Publish has no context parameter; bound the wait, not the I/O. A send
	// that outlives the timeout keeps running but its result is dropped.
	done := make(chan error, 1)
	go func() { done <- pub.Publish(subject, msg) }()
	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		return fmt.Errorf("nats: send %q timed out after %s", event, timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Distributor) Reconfigure(ctx context.Context, params distributor.Params) error {
	var p Params
	if err := distributor.DecodeParams(params, &p); err != nil {
		d.status.Set(distributor.StateError)
		return fmt.Errorf("nats: decode params: %w", err)
	}

	if err := d.Disconnect(); err != nil {
		d.logger.Error("nats: disconnect during reconfigure", err, nil)
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
			d.logger.Error("nats: close publisher", err, nil)
		}
		d.pub = nil
	}
	d.status.Set(distributor.StateDisconnected)
	return nil
}
