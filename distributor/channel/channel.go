// Package channel provides an in-memory Go channel distributor for gazefan.
// This distributor is useful for testing and for local producers that want
// to consume their own events without a broker.
package channel

import (
	"context"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/bytedance/sonic"

	"github.com/gazefan/gazefan/distributor"
)

// DistributorName is the name used to register this distributor.
const DistributorName = "channel"

// Params configures the channel distributor.
type Params struct {
	// BufferSize is the per-subscriber channel buffer. Zero means
	// unbuffered.
	BufferSize int64 `json:"bufferSize"`

	// TopicPrefix is prepended to event names to form topics.
	TopicPrefix string `json:"topicPrefix"`
}

// Factory allows overriding the pubsub creation for testing.
var Factory = func(cfg gochannel.Config, logger watermill.LoggerAdapter) *gochannel.GoChannel {
	return gochannel.NewGoChannel(cfg, logger)
}

func init() {
	distributor.RegisterWithCapabilities(DistributorName, Build, distributor.ChannelCapabilities)
}

// Build creates a new channel distributor from raw params.
func Build(name string, params distributor.Params, logger watermill.LoggerAdapter) (distributor.Distributor, error) {
	var p Params
	if err := distributor.DecodeParams(params, &p); err != nil {
		return nil, fmt.Errorf("channel: decode params: %w", err)
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
	return distributor.ChannelCapabilities
}

// Distributor publishes events to an in-process gochannel pubsub.
type Distributor struct {
	name   string
	params Params
	status *distributor.Status
	logger watermill.LoggerAdapter

	mu     sync.Mutex
	pubsub *gochannel.GoChannel
}

func (d *Distributor) Name() string { return d.name }

func (d *Distributor) State() distributor.State { return d.status.State() }

func (d *Distributor) Connect(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pubsub != nil {
		return nil
	}
	d.status.Set(distributor.StateConnecting)
	d.pubsub = Factory(gochannel.Config{
		OutputChannelBuffer: d.params.BufferSize,
	}, d.logger)
	d.status.Set(distributor.StateConnected)
	return nil
}

func (d *Distributor) Send(ctx context.Context, event string, payload any) error {
	d.mu.Lock()
	pubsub := d.pubsub
	d.mu.Unlock()
	if pubsub == nil {
		return fmt.Errorf("channel: not connected")
	}

	data, err := sonic.ConfigStd.Marshal(distributor.NewEnvelope(event, payload))
	if err != nil {
		return fmt.Errorf("channel: marshal payload: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), data)
	msg.SetContext(ctx)
	return pubsub.Publish(d.params.TopicPrefix+event, msg)
}

func (d *Distributor) Reconfigure(ctx context.Context, params distributor.Params) error {
	var p Params
	if err := distributor.DecodeParams(params, &p); err != nil {
		d.status.Set(distributor.StateError)
		return fmt.Errorf("channel: decode params: %w", err)
	}

	if err := d.Disconnect(); err != nil {
		d.logger.Error("channel: disconnect during reconfigure", err, nil)
	}

	d.mu.Lock()
	d.params = p
	d.mu.Unlock()
	return d.Connect(ctx)
}

func (d *Distributor) Disconnect() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pubsub != nil {
		if err := d.pubsub.Close(); err != nil {
			d.logger.Error("channel: close pubsub", err, nil)
		}
		d.pubsub = nil
	}
	d.status.Set(distributor.StateDisconnected)
	return nil
}

// Subscriber exposes the in-process subscriber side so local consumers can
// read back what a session distributes. Returns nil before Connect.
func (d *Distributor) Subscriber() message.Subscriber {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pubsub == nil {
		return nil
	}
	return d.pubsub
}
