package bench

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChenBigdata421/jxt-bench/sdk/pkg/json"
	"github.com/ChenBigdata421/jxt-bench/sdk/pkg/tracelog"
)

func TestLatencyStats(t *testing.T) {
	var s LatencyStats
	for _, v := range []float64{30, 10, 20} {
		s.Observe(v)
	}
	assert.Equal(t, uint64(3), s.Count)
	assert.Equal(t, 10.0, s.MinUS)
	assert.Equal(t, 30.0, s.MaxUS)
	assert.Equal(t, 20.0, s.MeanUS)
}

func TestResult_Complete(t *testing.T) {
	r := &Result{Sent: 500, Latency: &LatencyStats{}}
	r.complete(2*time.Second, nil)
	assert.Equal(t, 250.0, r.RatePerSecond)
	assert.Nil(t, r.Latency)
	assert.Equal(t, 0, r.ExitCode())

	r = &Result{}
	r.complete(0, errors.New("boom"))
	assert.Zero(t, r.RatePerSecond)
	assert.Equal(t, "boom", r.Error)
	assert.Equal(t, 1, r.ExitCode())
	assert.Equal(t, 1, ExitCode(&Result{}, r))
	assert.Equal(t, 0, ExitCode())
}

func TestSummary_WriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "summary.json")
	res := &Result{Role: RoleProducer, Transport: "memory", Reason: tracelog.ReasonLimit, Sent: 3}
	res.complete(time.Second, nil)

	require.NoError(t, NewSummary("bench", res).WriteFile(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "bench", decoded["topic"])
	assert.Equal(t, 0.0, decoded["exitCode"])

	results := decoded["results"].([]interface{})
	require.Len(t, results, 1)
	first := results[0].(map[string]interface{})
	assert.Equal(t, "limit", first["reason"])
	assert.Equal(t, 3.0, first["sent"])
	assert.NotContains(t, first, "error")
}
