package distributor

import (
	"context"
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Mock distributor for registry tests.
type mockDistributor struct {
	name  string
	state State
}

func (m *mockDistributor) Name() string                                    { return m.name }
func (m *mockDistributor) Connect(ctx context.Context) error               { return nil }
func (m *mockDistributor) Send(ctx context.Context, e string, p any) error { return nil }
func (m *mockDistributor) Reconfigure(ctx context.Context, p Params) error { return nil }
func (m *mockDistributor) Disconnect() error                               { return nil }
func (m *mockDistributor) State() State                                    { return m.state }

func mockFactory(name string, params Params, logger watermill.LoggerAdapter) (Distributor, error) {
	return &mockDistributor{name: name, state: StateDisconnected}, nil
}

func TestNewRegistry(t *testing.T) {
	reg := NewRegistry()
	assert.NotNil(t, reg)
	assert.Empty(t, reg.Names())
}

func TestRegistryRegister(t *testing.T) {
	reg := NewRegistry()
	reg.Register("mock", mockFactory)

	assert.True(t, reg.Has("mock"))
	assert.False(t, reg.Has("other"))
	assert.Equal(t, []string{"mock"}, reg.Names())
}

func TestRegistryRegisterWithCapabilities(t *testing.T) {
	reg := NewRegistry()
	caps := Capabilities{Name: "mock", Broadcast: true}
	reg.RegisterWithCapabilities("mock", mockFactory, caps)

	assert.Equal(t, caps, reg.GetCapabilities("mock"))
}

func TestRegistryGetCapabilitiesUnknown(t *testing.T) {
	reg := NewRegistry()
	caps := reg.GetCapabilities("nope")
	assert.Equal(t, "nope", caps.Name)
	assert.False(t, caps.Broadcast)
}

func TestRegistryBuild(t *testing.T) {
	t.Run("builds registered distributor", func(t *testing.T) {
		reg := NewRegistry()
		reg.Register("mock", mockFactory)

		dist, err := reg.Build("mock", Params{}, watermill.NopLogger{})
		require.NoError(t, err)
		assert.Equal(t, "mock", dist.Name())
	})

	t.Run("unknown name fails", func(t *testing.T) {
		reg := NewRegistry()
		_, err := reg.Build("nope", Params{}, watermill.NopLogger{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown distributor")
	})

	t.Run("factory error propagates", func(t *testing.T) {
		reg := NewRegistry()
		reg.Register("broken", func(name string, params Params, logger watermill.LoggerAdapter) (Distributor, error) {
			return nil, errors.New("bad params")
		})

		_, err := reg.Build("broken", Params{}, watermill.NopLogger{})
		assert.ErrorContains(t, err, "bad params")
	})
}

func TestRegistryOverwrite(t *testing.T) {
	reg := NewRegistry()
	reg.Register("mock", mockFactory)
	reg.Register("mock", func(name string, params Params, logger watermill.LoggerAdapter) (Distributor, error) {
		return &mockDistributor{name: "replaced"}, nil
	})

	dist, err := reg.Build("mock", Params{}, watermill.NopLogger{})
	require.NoError(t, err)
	assert.Equal(t, "replaced", dist.Name())
	assert.Len(t, reg.Names(), 1)
}
