package sse

import (
	"bufio"
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gazefan/gazefan/distributor"
)

func startServer(t *testing.T, params distributor.Params) *Distributor {
	t.Helper()
	if params == nil {
		params = distributor.Params{}
	}
	dist, err := Build(DistributorName, params, watermill.NopLogger{})
	require.NoError(t, err)
	require.NoError(t, dist.Connect(context.Background()))
	t.Cleanup(func() { _ = dist.Disconnect() })
	return dist.(*Distributor)
}

// subscribe opens the event stream and returns a channel of decoded data
// lines.
func subscribe(t *testing.T, addr, path string) <-chan string {
	t.Helper()
	resp, err := http.Get("http://" + addr + path)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	t.Cleanup(func() { _ = resp.Body.Close() })

	lines := make(chan string, 16)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			if data, ok := strings.CutPrefix(scanner.Text(), "data: "); ok {
				lines <- data
			}
		}
	}()
	return lines
}

func receiveEnvelope(t *testing.T, lines <-chan string) distributor.Envelope {
	t.Helper()
	select {
	case data, open := <-lines:
		require.True(t, open, "stream closed")
		var envelope distributor.Envelope
		require.NoError(t, sonic.ConfigStd.Unmarshal([]byte(data), &envelope))
		return envelope
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
		return distributor.Envelope{}
	}
}

func TestRegister(t *testing.T) {
	distributor.DefaultRegistry = distributor.NewRegistry()
	Register()

	caps := distributor.GetCapabilities(DistributorName)
	assert.Equal(t, "sse", caps.Name)
	assert.True(t, caps.Broadcast)
	assert.True(t, caps.Ordered)
}

func TestCapabilities(t *testing.T) {
	assert.Equal(t, distributor.SSECapabilities, Capabilities())
}

func TestStream(t *testing.T) {
	server := startServer(t, nil)

	lines := subscribe(t, server.Addr(), "/events")
	require.Eventually(t, func() bool { return server.ClientCount() == 1 },
		2*time.Second, 10*time.Millisecond)

	require.NoError(t, server.Send(context.Background(), "gaze", map[string]any{"x": 0.5}))

	envelope := receiveEnvelope(t, lines)
	assert.Equal(t, "gaze", envelope.Type)
	assert.NotZero(t, envelope.Timestamp)
}

func TestBroadcastToAllClients(t *testing.T) {
	server := startServer(t, nil)

	first := subscribe(t, server.Addr(), "/events")
	second := subscribe(t, server.Addr(), "/events")
	require.Eventually(t, func() bool { return server.ClientCount() == 2 },
		2*time.Second, 10*time.Millisecond)

	require.NoError(t, server.Send(context.Background(), "presence", nil))

	assert.Equal(t, "presence", receiveEnvelope(t, first).Type)
	assert.Equal(t, "presence", receiveEnvelope(t, second).Type)
}

func TestEventOrder(t *testing.T) {
	server := startServer(t, nil)

	lines := subscribe(t, server.Addr(), "/events")
	require.Eventually(t, func() bool { return server.ClientCount() == 1 },
		2*time.Second, 10*time.Millisecond)

	for i := 0; i < 5; i++ {
		require.NoError(t, server.Send(context.Background(), "gaze", map[string]any{"seq": i}))
	}

	for i := 0; i < 5; i++ {
		envelope := receiveEnvelope(t, lines)
		data, ok := envelope.Data.(map[string]any)
		require.True(t, ok)
		assert.Equal(t, float64(i), data["seq"])
	}
}

func TestCustomPath(t *testing.T) {
	server := startServer(t, distributor.Params{"path": "/stream/gaze"})

	lines := subscribe(t, server.Addr(), "/stream/gaze")
	require.Eventually(t, func() bool { return server.ClientCount() == 1 },
		2*time.Second, 10*time.Millisecond)

	require.NoError(t, server.Send(context.Background(), "gaze", nil))
	assert.Equal(t, "gaze", receiveEnvelope(t, lines).Type)
}

func TestSendWithoutClients(t *testing.T) {
	server := startServer(t, nil)
	require.NoError(t, server.Send(context.Background(), "gaze", nil))
}

func TestSendNotConnected(t *testing.T) {
	dist, err := Build(DistributorName, distributor.Params{}, watermill.NopLogger{})
	require.NoError(t, err)
	assert.ErrorContains(t, dist.Send(context.Background(), "gaze", nil), "not connected")
}

func TestDisconnectClosesStreams(t *testing.T) {
	server := startServer(t, nil)

	lines := subscribe(t, server.Addr(), "/events")
	require.Eventually(t, func() bool { return server.ClientCount() == 1 },
		2*time.Second, 10*time.Millisecond)

	require.NoError(t, server.Disconnect())
	assert.Equal(t, 0, server.ClientCount())

	select {
	case _, open := <-lines:
		assert.False(t, open)
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not close")
	}
}
