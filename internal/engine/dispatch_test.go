package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gazefan/gazefan/distributor"
	enginerrors "github.com/gazefan/gazefan/internal/engine/errors"
)

// stubDistributor is the in-package test double used by dispatch and
// session tests. Behaviour is controlled per instance.
type stubDistributor struct {
	name string

	mu          sync.Mutex
	state       distributor.State
	connectErr  error
	sendErr     error
	sendDelay   time.Duration
	sent        []sentEvent
	params      distributor.Params
	reconfigErr error
	connects    int
	disconnects int
}

type sentEvent struct {
	event   string
	payload any
}

func newStub(name string) *stubDistributor {
	return &stubDistributor{name: name, state: distributor.StateDisconnected}
}

func (s *stubDistributor) Name() string { return s.name }

func (s *stubDistributor) State() distributor.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *stubDistributor) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connects++
	if s.connectErr != nil {
		s.state = distributor.StateError
		return s.connectErr
	}
	s.state = distributor.StateConnected
	return nil
}

func (s *stubDistributor) Send(ctx context.Context, event string, payload any) error {
	s.mu.Lock()
	delay := s.sendDelay
	err := s.sendErr
	s.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.sent = append(s.sent, sentEvent{event: event, payload: payload})
	s.mu.Unlock()
	return nil
}

func (s *stubDistributor) Reconfigure(ctx context.Context, params distributor.Params) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reconfigErr != nil {
		s.state = distributor.StateError
		return s.reconfigErr
	}
	s.params = params
	s.state = distributor.StateConnected
	return nil
}

func (s *stubDistributor) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnects++
	s.state = distributor.StateDisconnected
	return nil
}

func (s *stubDistributor) sentEvents() []sentEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentEvent(nil), s.sent...)
}

// stubRegistry builds a registry whose factories hand out the provided
// stubs by name.
func stubRegistry(stubs ...*stubDistributor) *distributor.Registry {
	reg := distributor.NewRegistry()
	for _, stub := range stubs {
		stub := stub
		reg.Register(stub.name, func(name string, params distributor.Params, logger watermill.LoggerAdapter) (distributor.Distributor, error) {
			return stub, nil
		})
	}
	return reg
}

func TestDistributeAllSucceed(t *testing.T) {
	engine := NewDispatchEngine(nil)
	a, b := newStub("mqtt"), newStub("websocket")

	result := engine.Distribute(context.Background(), "s1", "gaze", map[string]any{"x": 0.5}, []dispatchTarget{
		{name: "mqtt", dist: a},
		{name: "websocket", dist: b},
	})

	assert.Equal(t, Summary{Total: 2, Successful: 2}, result.Summary)
	assert.NotEmpty(t, result.DispatchID)
	require.Len(t, a.sentEvents(), 1)
	assert.Equal(t, "gaze", a.sentEvents()[0].event)
	require.Len(t, b.sentEvents(), 1)
}

func TestDistributeUnknownTargetFailsSoft(t *testing.T) {
	engine := NewDispatchEngine(nil)
	ws := newStub("websocket")

	result := engine.Distribute(context.Background(), "s1", "gaze", nil, []dispatchTarget{
		{name: "mqtt"}, // unknown: no adapter resolved
		{name: "websocket", dist: ws},
	})

	assert.Equal(t, Summary{Total: 2, Successful: 1, Failed: 1}, result.Summary)
	assert.False(t, result.Outcomes[0].Success)
	assert.ErrorIs(t, result.Outcomes[0].Err, enginerrors.ErrUnknownTarget)
	assert.True(t, result.Outcomes[1].Success)
	assert.Len(t, ws.sentEvents(), 1)
}

func TestDistributeFaultIsolation(t *testing.T) {
	engine := NewDispatchEngine(nil)
	failing, healthy := newStub("mqtt"), newStub("websocket")
	failing.sendErr = errors.New("broker gone")

	result := engine.Distribute(context.Background(), "s1", "gaze", nil, []dispatchTarget{
		{name: "mqtt", dist: failing},
		{name: "websocket", dist: healthy},
	})

	assert.Equal(t, Summary{Total: 2, Successful: 1, Failed: 1}, result.Summary)

	var sendErr *enginerrors.SendError
	require.ErrorAs(t, result.Outcomes[0].Err, &sendErr)
	assert.Equal(t, "mqtt", sendErr.Distributor)
	assert.Len(t, healthy.sentEvents(), 1)
}

func TestDistributeOutcomeOrderMatchesTargets(t *testing.T) {
	engine := NewDispatchEngine(nil)
	slow, fast := newStub("slow"), newStub("fast")
	slow.sendDelay = 30 * time.Millisecond

	result := engine.Distribute(context.Background(), "s1", "gaze", nil, []dispatchTarget{
		{name: "slow", dist: slow},
		{name: "fast", dist: fast},
	})

	require.Len(t, result.Outcomes, 2)
	assert.Equal(t, "slow", result.Outcomes[0].Distributor)
	assert.Equal(t, "fast", result.Outcomes[1].Distributor)
}

func TestDistributeZeroTargets(t *testing.T) {
	engine := NewDispatchEngine(nil)
	result := engine.Distribute(context.Background(), "s1", "gaze", nil, nil)
	assert.Equal(t, Summary{}, result.Summary)
	assert.Empty(t, result.Outcomes)
}

func TestDistributeRunsConcurrently(t *testing.T) {
	engine := NewDispatchEngine(nil)
	delay := 40 * time.Millisecond
	targets := make([]dispatchTarget, 4)
	for i := range targets {
		stub := newStub("d")
		stub.sendDelay = delay
		targets[i] = dispatchTarget{name: "d", dist: stub}
	}

	started := time.Now()
	engine.Distribute(context.Background(), "s1", "gaze", nil, targets)
	elapsed := time.Since(started)

	// Sequential sends would take 4*delay; concurrent fan-out stays well
	// under that even on a loaded CI box.
	assert.Less(t, elapsed, 3*delay)
}
