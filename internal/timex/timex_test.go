package timex

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDuration_UnmarshalJSON(t *testing.T) {
	var cfg struct {
		A Duration `json:"a"`
		B Duration `json:"b"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"1m30s","b":2000000000}`), &cfg))
	assert.Equal(t, 90*time.Second, cfg.A.Duration)
	assert.Equal(t, 2*time.Second, cfg.B.Duration)

	var bad Duration
	require.Error(t, json.Unmarshal([]byte(`"soon"`), &bad))
	require.Error(t, json.Unmarshal([]byte(`true`), &bad))
}

func TestDuration_MarshalJSON(t *testing.T) {
	b, err := json.Marshal(Duration{Duration: 15 * time.Minute})
	require.NoError(t, err)
	assert.Equal(t, `"15m0s"`, string(b))
}

func TestManualClock(t *testing.T) {
	c := NewManualClock(Date(2024, time.December, 17))
	assert.Equal(t, Date(2024, time.December, 17), c.Now())

	got := c.Advance(24 * time.Hour)
	assert.Equal(t, Date(2024, time.December, 18), got)

	c.Set(Date(2020, time.January, 1))
	assert.Equal(t, Date(2020, time.January, 1), c.Now())
}

func TestSystemClock_IsUTCMicroseconds(t *testing.T) {
	now := SystemClock{}.Now()
	assert.Equal(t, time.UTC, now.Location())
	assert.Zero(t, now.Nanosecond()%1000)
}

func TestUnixMicroRoundTrip(t *testing.T) {
	assert.Equal(t, int64(0), ToUnixMicro(time.Time{}))
	assert.True(t, FromUnixMicro(0).IsZero())

	ts := time.Date(2024, 12, 18, 9, 30, 0, 123456000, time.UTC)
	assert.True(t, ts.Equal(FromUnixMicro(ToUnixMicro(ts))))
	assert.Equal(t, time.UTC, FromUnixMicro(ToUnixMicro(ts)).Location())
}
