package kafka

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saltline/polar-engine/internal/engine"
)

func TestBuildMessage(t *testing.T) {
	recorded := time.Date(2025, 6, 14, 10, 30, 0, 0, time.UTC)
	obs := engine.RecordedObservation{
		Time:        time.Date(2025, 6, 14, 10, 29, 58, 0, time.UTC),
		TWS:         14.2,
		TWA:         52,
		STW:         7.1,
		SpeedBucket: 7,
		AngleBucket: 5,
		RecordedAt:  recorded,
	}

	msg := buildMessage(obs)

	assert.Equal(t, "7-5", string(msg.Key))

	var decoded engine.RecordedObservation
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, obs, decoded)

	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "recorded_at", msg.Headers[0].Key)
	assert.Equal(t, "2025-06-14T10:30:00Z", string(msg.Headers[0].Value))
}

func TestBuildMessageKeyIsStablePerBucket(t *testing.T) {
	a := buildMessage(engine.RecordedObservation{SpeedBucket: 3, AngleBucket: 12})
	b := buildMessage(engine.RecordedObservation{SpeedBucket: 3, AngleBucket: 12, STW: 9.9})
	assert.Equal(t, a.Key, b.Key)
}
