package distributor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParamsClone(t *testing.T) {
	original := Params{
		"broker": "tcp://localhost:1883",
		"nested": map[string]any{"qos": 1},
		"topics": []any{"a", "b"},
	}

	clone := original.Clone()
	clone["broker"] = "tcp://other:1883"
	clone["nested"].(map[string]any)["qos"] = 2
	clone["topics"].([]any)[0] = "c"

	assert.Equal(t, "tcp://localhost:1883", original["broker"])
	assert.Equal(t, 1, original["nested"].(map[string]any)["qos"])
	assert.Equal(t, "a", original["topics"].([]any)[0])
}

func TestParamsCloneNil(t *testing.T) {
	var p Params
	assert.Nil(t, p.Clone())
}

func TestParamsMerge(t *testing.T) {
	t.Run("overlay keys win per field", func(t *testing.T) {
		base := Params{"broker": "tcp://localhost:1883", "qos": 0, "clientId": "base"}
		overlay := Params{"qos": 2}

		merged := base.Merge(overlay)

		assert.Equal(t, "tcp://localhost:1883", merged["broker"])
		assert.Equal(t, 2, merged["qos"])
		assert.Equal(t, "base", merged["clientId"])
	})

	t.Run("nested maps merge field-level, not object-replacement", func(t *testing.T) {
		base := Params{"headers": map[string]any{"Authorization": "Bearer x", "X-Env": "lab"}}
		overlay := Params{"headers": map[string]any{"X-Env": "prod"}}

		merged := base.Merge(overlay)

		headers := merged["headers"].(map[string]any)
		assert.Equal(t, "Bearer x", headers["Authorization"])
		assert.Equal(t, "prod", headers["X-Env"])
	})

	t.Run("inputs are not mutated", func(t *testing.T) {
		base := Params{"qos": 0}
		overlay := Params{"qos": 2}

		_ = base.Merge(overlay)

		assert.Equal(t, 0, base["qos"])
	})

	t.Run("nil base", func(t *testing.T) {
		var base Params
		merged := base.Merge(Params{"port": 8080})
		assert.Equal(t, 8080, merged["port"])
	})
}

func TestDecodeParams(t *testing.T) {
	type params struct {
		Broker  string            `json:"broker"`
		QoS     byte              `json:"qos"`
		Retain  bool              `json:"retain"`
		Topics  map[string]string `json:"topics"`
		Timeout int               `json:"timeout"`
	}

	raw := Params{
		"broker":  "tcp://localhost:1883",
		"qos":     float64(1), // JSON numbers arrive as float64
		"retain":  true,
		"topics":  map[string]any{"gaze": "sensors/gaze"},
		"timeout": 2500,
	}

	var p params
	require.NoError(t, DecodeParams(raw, &p))
	assert.Equal(t, "tcp://localhost:1883", p.Broker)
	assert.Equal(t, byte(1), p.QoS)
	assert.True(t, p.Retain)
	assert.Equal(t, "sensors/gaze", p.Topics["gaze"])
	assert.Equal(t, 2500, p.Timeout)
}

func TestNewEnvelope(t *testing.T) {
	env := NewEnvelope("gaze", map[string]any{"x": 0.5})
	assert.Equal(t, "gaze", env.Type)
	assert.NotZero(t, env.Timestamp)
	assert.Equal(t, map[string]any{"x": 0.5}, env.Data)
}

func TestStatus(t *testing.T) {
	status := NewStatus()
	assert.Equal(t, StateDisconnected, status.State())

	status.Set(StateConnected)
	assert.Equal(t, StateConnected, status.State())

	status.Set(StateError)
	assert.Equal(t, StateError, status.State())
}
