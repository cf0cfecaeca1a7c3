// Package http provides an outbound HTTP distributor for gazefan. Each
// event is POSTed as a JSON envelope to an endpoint derived from the event
// name, with bounded retries on transient failures.
package http

import (
	"bytes"
	"context"
	"fmt"
	"io"
	nethttp "net/http"
	"net/url"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/bytedance/sonic"
	"github.com/cenkalti/backoff/v5"

	"github.com/gazefan/gazefan/distributor"
)

// DistributorName is the name used to register this distributor.
const DistributorName = "http"

const defaultSendTimeout = 5 * time.Second

// Params configures the HTTP distributor.
type Params struct {
	// BaseURL is the absolute base URL events are posted to. Required.
	BaseURL string `json:"baseUrl"`

	// Headers are added to every request.
	Headers map[string]string `json:"headers"`

	// Endpoints maps event names to request paths. Events without an entry
	// post to "/events/<event>".
	Endpoints map[string]string `json:"endpoints"`

	// Timeout bounds each request, in milliseconds. Zero uses the default.
	Timeout int `json:"timeout"`

	// RetryCount is the number of retries after the first attempt for
	// transient failures (network errors and 5xx responses).
	RetryCount int `json:"retryCount"`
}

func (p Params) sendTimeout() time.Duration {
	if p.Timeout <= 0 {
		return defaultSendTimeout
	}
	return time.Duration(p.Timeout) * time.Millisecond
}

func (p Params) endpointFor(event string) string {
	if path, ok := p.Endpoints[event]; ok {
		return path
	}
	return "/events/" + event
}

// ClientFactory allows overriding the HTTP client creation for testing.
var ClientFactory = func(timeout time.Duration) *nethttp.Client {
	return &nethttp.Client{Timeout: timeout}
}

// Register registers the HTTP distributor with the default registry.
func Register() {
	distributor.RegisterWithCapabilities(DistributorName, Build, distributor.HTTPCapabilities)
}

// Build creates a new HTTP distributor from raw params.
func Build(name string, params distributor.Params, logger watermill.LoggerAdapter) (distributor.Distributor, error) {
	var p Params
	if err := distributor.DecodeParams(params, &p); err != nil {
		return nil, fmt.Errorf("http: decode params: %w", err)
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
	return distributor.HTTPCapabilities
}

// Distributor POSTs event envelopes to a remote HTTP endpoint.
type Distributor struct {
	name   string
	status *distributor.Status
	logger watermill.LoggerAdapter

	mu     sync.Mutex
	params Params
	client *nethttp.Client
}

func (d *Distributor) Name() string { return d.name }

func (d *Distributor) State() distributor.State { return d.status.State() }

// Connect validates the base URL and prepares the client. HTTP is
// connectionless, so there is nothing to dial up front.
func (d *Distributor) Connect(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.client != nil {
		return nil
	}

	d.status.Set(distributor.StateConnecting)
	parsed, err := url.Parse(d.params.BaseURL)
	if err != nil || !parsed.IsAbs() {
		d.status.Set(distributor.StateError)
		return fmt.Errorf("http: base URL %q is not absolute", d.params.BaseURL)
	}

	d.client = ClientFactory(d.params.sendTimeout())
	d.status.Set(distributor.StateConnected)
	return nil
}

func (d *Distributor) Send(ctx context.Context, event string, payload any) error {
	d.mu.Lock()
	client := d.client
	params := d.params
	d.mu.Unlock()
	if client == nil {
		return fmt.Errorf("http: not connected")
	}

	data, err := sonic.ConfigStd.Marshal(distributor.NewEnvelope(event, payload))
	if err != nil {
		return fmt.Errorf("http: marshal payload: %w", err)
	}

	target := params.BaseURL + params.endpointFor(event)

	post := func() (struct{}, error) {
		req, err := nethttp.NewRequestWithContext(ctx, nethttp.MethodPost, target, bytes.NewReader(data))
		if err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range params.Headers {
			req.Header.Set(k, v)
		}

		resp, err := client.Do(req)
		if err != nil {
			return struct{}{}, err
		}
		defer func() {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
		}()

		if resp.StatusCode >= 500 {
			return struct{}{}, fmt.Errorf("http: %s returned %s", target, resp.Status)
		}
		if resp.StatusCode >= 400 {
			// Client errors will not heal on retry.
			return struct{}{}, backoff.Permanent(fmt.Errorf("http: %s returned %s", target, resp.Status))
		}
		return struct{}{}, nil
	}

	_, err = backoff.Retry(ctx, post,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(uint(params.RetryCount)+1),
	)
	return err
}

func (d *Distributor) Reconfigure(ctx context.Context, params distributor.Params) error {
	var p Params
	if err := distributor.DecodeParams(params, &p); err != nil {
		d.status.Set(distributor.StateError)
		return fmt.Errorf("http: decode params: %w", err)
	}

	if err := d.Disconnect(); err != nil {
		d.logger.Error("http: disconnect during reconfigure", err, nil)
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
		d.client.CloseIdleConnections()
		d.client = nil
	}
	d.status.Set(distributor.StateDisconnected)
	return nil
}
