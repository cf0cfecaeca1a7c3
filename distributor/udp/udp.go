// Package udp provides a raw UDP datagram distributor for gazefan. Events
// go out as JSON datagrams to a fixed target list; head-tracking payloads
// can optionally be encoded as OpenTrack packets so consumers like OpenTrack
// and flight sims can ingest them directly.
package udp

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"net"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/bytedance/sonic"

	"github.com/gazefan/gazefan/distributor"
)

// DistributorName is the name used to register this distributor.
const DistributorName = "udp"

// FormatOpenTrack selects the fixed 6-double little-endian packet layout
// used by OpenTrack head-tracking consumers.
const FormatOpenTrack = "opentrack"

// Params configures the UDP distributor.
type Params struct {
	// Targets is the list of "host:port" destinations. Required.
	Targets []string `json:"targets"`

	// Port optionally binds the local socket to a fixed port. Zero picks an
	// ephemeral port.
	Port int `json:"port"`

	// Format selects the datagram layout: empty for JSON envelopes, or
	// "opentrack" for the binary head-pose packet.
	Format string `json:"format"`
}

// Register registers the UDP distributor with the default registry.
func Register() {
	distributor.RegisterWithCapabilities(DistributorName, Build, distributor.UDPCapabilities)
}

// Build creates a new UDP distributor from raw params.
func Build(name string, params distributor.Params, logger watermill.LoggerAdapter) (distributor.Distributor, error) {
	var p Params
	if err := distributor.DecodeParams(params, &p); err != nil {
		return nil, fmt.Errorf("udp: decode params: %w", err)
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
	return distributor.UDPCapabilities
}

// Distributor writes event datagrams to every configured target.
type Distributor struct {
	name   string
	status *distributor.Status
	logger watermill.LoggerAdapter

	mu      sync.Mutex
	params  Params
	conn    net.PacketConn
	targets []*net.UDPAddr
}

func (d *Distributor) Name() string { return d.name }

func (d *Distributor) State() distributor.State { return d.status.State() }

func (d *Distributor) Connect(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn != nil {
		return nil
	}

	d.status.Set(distributor.StateConnecting)

	targets := make([]*net.UDPAddr, 0, len(d.params.Targets))
	for _, target := range d.params.Targets {
		addr, err := net.ResolveUDPAddr("udp", target)
		if err != nil {
			d.status.Set(distributor.StateError)
			return fmt.Errorf("udp: resolve target %q: %w", target, err)
		}
		targets = append(targets, addr)
	}

	conn, err := net.ListenPacket("udp", fmt.Sprintf(":%d", d.params.Port))
	if err != nil {
		d.status.Set(distributor.StateError)
		return fmt.Errorf("udp: bind port %d: %w", d.params.Port, err)
	}

	d.conn = conn
	d.targets = targets
	d.status.Set(distributor.StateConnected)
	return nil
}

func (d *Distributor) Send(ctx context.Context, event string, payload any) error {
	d.mu.Lock()
	conn := d.conn
	targets := d.targets
	format := d.params.Format
	d.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("udp: not connected")
	}

	var data []byte
	var err error
	if format == FormatOpenTrack {
		data, err = encodeOpenTrack(payload)
	} else {
		data, err = sonic.ConfigStd.Marshal(distributor.NewEnvelope(event, payload))
	}
	if err != nil {
		return fmt.Errorf("udp: encode payload: %w", err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
	}

	var firstErr error
	for _, target := range targets {
		if _, werr := conn.WriteTo(data, target); werr != nil && firstErr == nil {
			firstErr = fmt.Errorf("udp: write %s: %w", target, werr)
		}
	}
	return firstErr
}

func (d *Distributor) Reconfigure(ctx context.Context, params distributor.Params) error {
	var p Params
	if err := distributor.DecodeParams(params, &p); err != nil {
		d.status.Set(distributor.StateError)
		return fmt.Errorf("udp: decode params: %w", err)
	}

	if err := d.Disconnect(); err != nil {
		d.logger.Error("udp: disconnect during reconfigure", err, nil)
	}

	d.mu.Lock()
	d.params = p
	d.mu.Unlock()
	return d.Connect(ctx)
}

func (d *Distributor) Disconnect() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn != nil {
		if err := d.conn.Close(); err != nil {
			d.logger.Error("udp: close socket", err, nil)
		}
		d.conn = nil
		d.targets = nil
	}
	d.status.Set(distributor.StateDisconnected)
	return nil
}

// openTrackPose is the field subset an OpenTrack packet needs. Position in
// centimetres, rotation in degrees.
type openTrackPose struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Z     float64 `json:"z"`
	Yaw   float64 `json:"yaw"`
	Pitch float64 `json:"pitch"`
	Roll  float64 `json:"roll"`
}

// encodeOpenTrack lays the pose out as six little-endian doubles, the wire
// format OpenTrack's UDP input reads.
func encodeOpenTrack(payload any) ([]byte, error) {
	var pose openTrackPose
	if err := distributor.DecodeParams(toParams(payload), &pose); err != nil {
		return nil, err
	}

	buf := make([]byte, 48)
	for i, v := range []float64{pose.X, pose.Y, pose.Z, pose.Yaw, pose.Pitch, pose.Roll} {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf, nil
}

func toParams(payload any) distributor.Params {
	if p, ok := payload.(map[string]any); ok {
		return distributor.Params(p)
	}
	// Structs round-trip through JSON like raw records do.
	var m map[string]any
	if data, err := sonic.ConfigStd.Marshal(payload); err == nil {
		_ = sonic.ConfigStd.Unmarshal(data, &m)
	}
	return distributor.Params(m)
}
