// Package sse provides a server-sent-events broadcast distributor for
// gazefan. Consumers open a long-lived HTTP response and each Send streams
// the event envelope to every connected client.
package sse

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/bytedance/sonic"

	"github.com/gazefan/gazefan/distributor"
)

// DistributorName is the name used to register this distributor.
const DistributorName = "sse"

const defaultClientBuffer = 256

// Params configures the SSE distributor.
type Params struct {
	// Port is the listen port. Required in session configs; zero picks an
	// ephemeral port.
	Port int `json:"port"`

	// Host is the bind address. Empty binds all interfaces.
	Host string `json:"host"`

	// Path is the stream endpoint. Defaults to "/events".
	Path string `json:"path"`

	// BufferSize is the per-client event buffer. Full buffers drop events
	// for that client instead of blocking dispatch.
	BufferSize int `json:"bufferSize"`
}

func (p Params) path() string {
	if p.Path == "" {
		return "/events"
	}
	return p.Path
}

func (p Params) bufferSize() int {
	if p.BufferSize <= 0 {
		return defaultClientBuffer
	}
	return p.BufferSize
}

// Register registers the SSE distributor with the default registry.
func Register() {
	distributor.RegisterWithCapabilities(DistributorName, Build, distributor.SSECapabilities)
}

// Build creates a new SSE distributor from raw params.
func Build(name string, params distributor.Params, logger watermill.LoggerAdapter) (distributor.Distributor, error) {
	var p Params
	if err := distributor.DecodeParams(params, &p); err != nil {
		return nil, fmt.Errorf("sse: decode params: %w", err)
	}
	return &Distributor{
		name:    name,
		params:  p,
		status:  distributor.NewStatus(),
		logger:  logger,
		clients: make(map[chan []byte]bool),
	}, nil
}

// Capabilities returns the capabilities of this distributor.
func Capabilities() distributor.Capabilities {
	return distributor.SSECapabilities
}

// Distributor owns the SSE server and its connected client channels.
type Distributor struct {
	name   string
	status *distributor.Status
	logger watermill.LoggerAdapter

	mu       sync.Mutex
	params   Params
	listener net.Listener
	server   *http.Server

	clientsMu sync.RWMutex
	clients   map[chan []byte]bool
}

func (d *Distributor) Name() string { return d.name }

func (d *Distributor) State() distributor.State { return d.status.State() }

func (d *Distributor) Connect(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.listener != nil {
		return nil
	}

	d.status.Set(distributor.StateConnecting)

	addr := fmt.Sprintf("%s:%d", d.params.Host, d.params.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		d.status.Set(distributor.StateError)
		return fmt.Errorf("sse: listen %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc(d.params.path(), d.serveStream)

	server := &http.Server{Handler: mux}
	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			d.logger.Error("sse: server stopped", err, nil)
		}
	}()

	d.listener = listener
	d.server = server
	d.status.Set(distributor.StateConnected)
	d.logger.Info("sse: listening", watermill.LogFields{"addr": listener.Addr().String()})
	return nil
}

func (d *Distributor) serveStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	events := make(chan []byte, d.params.bufferSize())
	d.clientsMu.Lock()
	d.clients[events] = true
	d.clientsMu.Unlock()

	defer func() {
		d.clientsMu.Lock()
		if d.clients[events] {
			delete(d.clients, events)
			close(events)
		}
		d.clientsMu.Unlock()
	}()

	for {
		select {
		case <-r.Context().Done():
			return
		case data, open := <-events:
			if !open {
				return
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// ClientCount returns the number of connected clients.
func (d *Distributor) ClientCount() int {
	d.clientsMu.RLock()
	defer d.clientsMu.RUnlock()
	return len(d.clients)
}

// Addr returns the bound listen address, or empty before Connect.
func (d *Distributor) Addr() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.listener == nil {
		return ""
	}
	return d.listener.Addr().String()
}

func (d *Distributor) Send(ctx context.Context, event string, payload any) error {
	d.mu.Lock()
	connected := d.listener != nil
	d.mu.Unlock()
	if !connected {
		return fmt.Errorf("sse: not connected")
	}

	data, err := sonic.ConfigStd.Marshal(distributor.NewEnvelope(event, payload))
	if err != nil {
		return fmt.Errorf("sse: marshal payload: %w", err)
	}

	d.clientsMu.RLock()
	for events := range d.clients {
		select {
		case events <- data:
		default:
			// Client buffer full, skip this event for this client.
		}
	}
	d.clientsMu.RUnlock()
	return nil
}

func (d *Distributor) Reconfigure(ctx context.Context, params distributor.Params) error {
	var p Params
	if err := distributor.DecodeParams(params, &p); err != nil {
		d.status.Set(distributor.StateError)
		return fmt.Errorf("sse: decode params: %w", err)
	}

	if err := d.Disconnect(); err != nil {
		d.logger.Error("sse: disconnect during reconfigure", err, nil)
	}

	d.mu.Lock()
	d.params = p
	d.mu.Unlock()
	return d.Connect(ctx)
}

func (d *Distributor) Disconnect() error {
	d.mu.Lock()
	server := d.server
	d.server = nil
	d.listener = nil
	d.mu.Unlock()

	d.clientsMu.Lock()
	for events := range d.clients {
		close(events)
	}
	d.clients = make(map[chan []byte]bool)
	d.clientsMu.Unlock()

	if server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			d.logger.Error("sse: shutdown server", err, nil)
		}
	}

	d.status.Set(distributor.StateDisconnected)
	return nil
}
