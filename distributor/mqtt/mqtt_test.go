package mqtt

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/bytedance/sonic"
	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gazefan/gazefan/distributor"
)

type fakeToken struct {
	err error
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{} {
	done := make(chan struct{})
	close(done)
	return done
}
func (t *fakeToken) Error() error { return t.err }

type publishedMessage struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeClient struct {
	mu           sync.Mutex
	connected    bool
	connectErr   error
	published    []publishedMessage
	disconnected bool
}

func (c *fakeClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeClient) IsConnectionOpen() bool { return c.IsConnected() }

func (c *fakeClient) Connect() pahomqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connectErr == nil {
		c.connected = true
	}
	return &fakeToken{err: c.connectErr}
}

func (c *fakeClient) Disconnect(quiesce uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	c.disconnected = true
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, publishedMessage{
		topic:    topic,
		qos:      qos,
		retained: retained,
		payload:  payload.([]byte),
	})
	return &fakeToken{}
}

func (c *fakeClient) Subscribe(topic string, qos byte, callback pahomqtt.MessageHandler) pahomqtt.Token {
	return &fakeToken{}
}

func (c *fakeClient) SubscribeMultiple(filters map[string]byte, callback pahomqtt.MessageHandler) pahomqtt.Token {
	return &fakeToken{}
}

func (c *fakeClient) Unsubscribe(topics ...string) pahomqtt.Token { return &fakeToken{} }

func (c *fakeClient) AddRoute(topic string, callback pahomqtt.MessageHandler) {}

func (c *fakeClient) OptionsReader() pahomqtt.ClientOptionsReader {
	return pahomqtt.ClientOptionsReader{}
}

func withFakeClient(t *testing.T, fake *fakeClient) *[]*pahomqtt.ClientOptions {
	t.Helper()
	original := ClientFactory
	t.Cleanup(func() { ClientFactory = original })

	var seen []*pahomqtt.ClientOptions
	ClientFactory = func(opts *pahomqtt.ClientOptions) pahomqtt.Client {
		seen = append(seen, opts)
		return fake
	}
	return &seen
}

func TestRegister(t *testing.T) {
	distributor.DefaultRegistry = distributor.NewRegistry()
	Register()

	caps := distributor.GetCapabilities(DistributorName)
	assert.Equal(t, "mqtt", caps.Name)
	assert.True(t, caps.SupportsQoS)
	assert.True(t, caps.RequiresEndpoint)
}

func TestCapabilities(t *testing.T) {
	assert.Equal(t, distributor.MQTTCapabilities, Capabilities())
}

func TestBuildBadParams(t *testing.T) {
	_, err := Build(DistributorName, distributor.Params{"qos": "high"}, watermill.NopLogger{})
	assert.Error(t, err)
}

func TestTopicFor(t *testing.T) {
	p := Params{
		Topics:      map[string]string{"gaze": "lab/tracker/gaze"},
		TopicPrefix: "gazefan/",
	}
	assert.Equal(t, "lab/tracker/gaze", p.topicFor("gaze"))
	assert.Equal(t, "gazefan/presence", p.topicFor("presence"))
}

func TestConnect(t *testing.T) {
	fake := &fakeClient{}
	seen := withFakeClient(t, fake)

	dist, err := Build(DistributorName, distributor.Params{
		"broker":   "tcp://localhost:1883",
		"clientId": "gazefan-test",
	}, watermill.NopLogger{})
	require.NoError(t, err)

	require.NoError(t, dist.Connect(context.Background()))
	assert.Equal(t, distributor.StateConnected, dist.State())
	require.Len(t, *seen, 1)

	// Already connected: no second client.
	require.NoError(t, dist.Connect(context.Background()))
	assert.Len(t, *seen, 1)
}

func TestConnectError(t *testing.T) {
	fake := &fakeClient{connectErr: errors.New("not authorized")}
	withFakeClient(t, fake)

	dist, err := Build(DistributorName, distributor.Params{"broker": "tcp://localhost:1883"}, watermill.NopLogger{})
	require.NoError(t, err)

	err = dist.Connect(context.Background())
	assert.ErrorContains(t, err, "not authorized")
	assert.Equal(t, distributor.StateError, dist.State())
}

func TestSend(t *testing.T) {
	fake := &fakeClient{}
	withFakeClient(t, fake)

	dist, err := Build(DistributorName, distributor.Params{
		"broker":      "tcp://localhost:1883",
		"topicPrefix": "gazefan/",
		"qos":         float64(1),
		"retain":      true,
	}, watermill.NopLogger{})
	require.NoError(t, err)
	require.NoError(t, dist.Connect(context.Background()))

	require.NoError(t, dist.Send(context.Background(), "gaze", map[string]any{"x": 0.1, "y": 0.9}))

	fake.mu.Lock()
	defer fake.mu.Unlock()
	require.Len(t, fake.published, 1)
	assert.Equal(t, "gazefan/gaze", fake.published[0].topic)
	assert.Equal(t, byte(1), fake.published[0].qos)
	assert.True(t, fake.published[0].retained)

	var envelope distributor.Envelope
	require.NoError(t, sonic.ConfigStd.Unmarshal(fake.published[0].payload, &envelope))
	assert.Equal(t, "gaze", envelope.Type)
}

func TestSendExplicitTopic(t *testing.T) {
	fake := &fakeClient{}
	withFakeClient(t, fake)

	dist, err := Build(DistributorName, distributor.Params{
		"broker": "tcp://localhost:1883",
		"topics": map[string]any{"gaze": "lab/tracker/gaze"},
	}, watermill.NopLogger{})
	require.NoError(t, err)
	require.NoError(t, dist.Connect(context.Background()))

	require.NoError(t, dist.Send(context.Background(), "gaze", nil))

	fake.mu.Lock()
	defer fake.mu.Unlock()
	require.Len(t, fake.published, 1)
	assert.Equal(t, "lab/tracker/gaze", fake.published[0].topic)
}

func TestSendNotConnected(t *testing.T) {
	dist, err := Build(DistributorName, distributor.Params{"broker": "tcp://localhost:1883"}, watermill.NopLogger{})
	require.NoError(t, err)
	assert.ErrorContains(t, dist.Send(context.Background(), "gaze", nil), "not connected")
}

func TestReconfigure(t *testing.T) {
	fake := &fakeClient{}
	seen := withFakeClient(t, fake)

	dist, err := Build(DistributorName, distributor.Params{"broker": "tcp://localhost:1883"}, watermill.NopLogger{})
	require.NoError(t, err)
	require.NoError(t, dist.Connect(context.Background()))

	require.NoError(t, dist.Reconfigure(context.Background(), distributor.Params{
		"broker":      "tcp://other:1883",
		"topicPrefix": "new/",
	}))
	assert.True(t, fake.disconnected)
	assert.Len(t, *seen, 2)
	assert.Equal(t, distributor.StateConnected, dist.State())

	require.NoError(t, dist.Send(context.Background(), "gaze", nil))
	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, "new/gaze", fake.published[0].topic)
}

func TestDisconnect(t *testing.T) {
	fake := &fakeClient{}
	withFakeClient(t, fake)

	dist, err := Build(DistributorName, distributor.Params{"broker": "tcp://localhost:1883"}, watermill.NopLogger{})
	require.NoError(t, err)
	require.NoError(t, dist.Connect(context.Background()))

	require.NoError(t, dist.Disconnect())
	assert.True(t, fake.disconnected)
	assert.Equal(t, distributor.StateDisconnected, dist.State())
	require.NoError(t, dist.Disconnect())
}
