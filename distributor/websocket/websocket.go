// Package websocket provides a WebSocket broadcast distributor for gazefan.
// The adapter runs its own server: consumers connect to it and every Send
// fans the event envelope out to all connected clients. Slow clients are
// dropped rather than allowed to stall the dispatch path.
package websocket

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/bytedance/sonic"
	gorillaws "github.com/gorilla/websocket"

	"github.com/gazefan/gazefan/distributor"
)

// DistributorName is the name used to register this distributor.
const DistributorName = "websocket"

const clientSendBuffer = 64

// Params configures the WebSocket distributor.
type Params struct {
	// Port is the listen port. Required in session configs; zero picks an
	// ephemeral port, which tests rely on.
	Port int `json:"port"`

	// Host is the bind address. Empty binds all interfaces.
	Host string `json:"host"`

	// Path is the upgrade endpoint. Defaults to "/".
	Path string `json:"path"`

	// Compression enables per-message compression negotiation.
	Compression bool `json:"compression"`

	// MaxConnections caps concurrent clients. Zero means unlimited.
	MaxConnections int `json:"maxConnections"`
}

func (p Params) path() string {
	if p.Path == "" {
		return "/"
	}
	return p.Path
}

// Register registers the WebSocket distributor with the default registry.
func Register() {
	distributor.RegisterWithCapabilities(DistributorName, Build, distributor.WebSocketCapabilities)
}

// Build creates a new WebSocket distributor from raw params.
func Build(name string, params distributor.Params, logger watermill.LoggerAdapter) (distributor.Distributor, error) {
	var p Params
	if err := distributor.DecodeParams(params, &p); err != nil {
		return nil, fmt.Errorf("websocket: decode params: %w", err)
	}
	return &Distributor{
		name:    name,
		params:  p,
		status:  distributor.NewStatus(),
		logger:  logger,
		clients: make(map[*client]bool),
	}, nil
}

// Capabilities returns the capabilities of this distributor.
func Capabilities() distributor.Capabilities {
	return distributor.WebSocketCapabilities
}

type client struct {
	conn *gorillaws.Conn
	send chan []byte
}

func newClient(conn *gorillaws.Conn) *client {
	c := &client{
		conn: conn,
		send: make(chan []byte, clientSendBuffer),
	}
	go c.writePump()
	return c
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(gorillaws.TextMessage, msg); err != nil {
			return
		}
	}
}

// Distributor owns the WebSocket server and its connected clients.
type Distributor struct {
	name   string
	status *distributor.Status
	logger watermill.LoggerAdapter

	mu       sync.Mutex
	params   Params
	listener net.Listener
	server   *http.Server

	clientsMu sync.RWMutex
	clients   map[*client]bool
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
		return fmt.Errorf("websocket: listen %s: %w", addr, err)
	}

	upgrader := gorillaws.Upgrader{
		EnableCompression: d.params.Compression,
		CheckOrigin:       func(*http.Request) bool { return true },
	}

	mux := http.NewServeMux()
	mux.HandleFunc(d.params.path(), func(w http.ResponseWriter, r *http.Request) {
		if d.params.MaxConnections > 0 && d.ClientCount() >= d.params.MaxConnections {
			http.Error(w, "too many connections", http.StatusServiceUnavailable)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			d.logger.Error("websocket: upgrade", err, nil)
			return
		}
		d.addClient(conn)
	})

	server := &http.Server{Handler: mux}
	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			d.logger.Error("websocket: server stopped", err, nil)
		}
	}()

	d.listener = listener
	d.server = server
	d.status.Set(distributor.StateConnected)
	d.logger.Info("websocket: listening", watermill.LogFields{"addr": listener.Addr().String()})
	return nil
}

func (d *Distributor) addClient(conn *gorillaws.Conn) {
	c := newClient(conn)
	d.clientsMu.Lock()
	d.clients[c] = true
	d.clientsMu.Unlock()

	// Reader goroutine only notices disconnects; inbound frames are ignored.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				d.removeClient(c)
				return
			}
		}
	}()
}

func (d *Distributor) removeClient(c *client) {
	d.clientsMu.Lock()
	if d.clients[c] {
		delete(d.clients, c)
		close(c.send)
	}
	d.clientsMu.Unlock()
}

// ClientCount returns the number of connected clients.
func (d *Distributor) ClientCount() int {
	d.clientsMu.RLock()
	defer d.clientsMu.RUnlock()
	return len(d.clients)
}

// Addr returns the bound listen address, or empty before Connect. Useful
// when Port was zero.
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
		return fmt.Errorf("websocket: not connected")
	}

	data, err := sonic.ConfigStd.Marshal(distributor.NewEnvelope(event, payload))
	if err != nil {
		return fmt.Errorf("websocket: marshal payload: %w", err)
	}

	d.clientsMu.Lock()
	for c := range d.clients {
		select {
		case c.send <- data:
		default:
			// Client buffer full, disconnect.
			delete(d.clients, c)
			close(c.send)
		}
	}
	d.clientsMu.Unlock()
	return nil
}

func (d *Distributor) Reconfigure(ctx context.Context, params distributor.Params) error {
	var p Params
	if err := distributor.DecodeParams(params, &p); err != nil {
		d.status.Set(distributor.StateError)
		return fmt.Errorf("websocket: decode params: %w", err)
	}

	if err := d.Disconnect(); err != nil {
		d.logger.Error("websocket: disconnect during reconfigure", err, nil)
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
	for c := range d.clients {
		close(c.send)
	}
	d.clients = make(map[*client]bool)
	d.clientsMu.Unlock()

	if server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			d.logger.Error("websocket: shutdown server", err, nil)
		}
	}

	d.status.Set(distributor.StateDisconnected)
	return nil
}
