package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounterAccumulatesAcrossCalls(t *testing.T) {
	r := New()
	r.Counter("jobs_extracted_total", "jobs extracted", nil)
	r.Counter("jobs_extracted_total", "jobs extracted", nil)

	snap, err := r.Snapshot(HealthInputs{})
	require.NoError(t, err)
	assert.Equal(t, 2.0, snap.Counters["jobs_extracted_total"])
}

func TestGaugeReflectsLastSetValue(t *testing.T) {
	r := New()
	r.Gauge("pool_size", "page pool size", nil, 3)
	r.Gauge("pool_size", "page pool size", nil, 5)

	snap, err := r.Snapshot(HealthInputs{})
	require.NoError(t, err)
	assert.Equal(t, 5.0, snap.Gauges["pool_size"])
}

func TestHistogramAccumulatesCountAndSum(t *testing.T) {
	r := New()
	r.Histogram("fetch_seconds", "fetch duration", []float64{0.1, 1, 5}, nil, 0.5)
	r.Histogram("fetch_seconds", "fetch duration", []float64{0.1, 1, 5}, nil, 1.5)

	snap, err := r.Snapshot(HealthInputs{})
	require.NoError(t, err)
	stat := snap.Histograms["fetch_seconds"]
	assert.Equal(t, uint64(2), stat.SampleCount)
	assert.InDelta(t, 2.0, stat.SampleSum, 0.001)
}

func TestCounterWithLabelsProducesLabeledKey(t *testing.T) {
	r := New()
	r.Counter("retry_attempts_total", "retries", []string{"class"}, "timeout")

	snap, err := r.Snapshot(HealthInputs{})
	require.NoError(t, err)
	assert.Contains(t, snap.Counters, `retry_attempts_total{class=timeout}`)
}

func TestSnapshotFoldsInHealthScore(t *testing.T) {
	r := New()
	snap, err := r.Snapshot(HealthInputs{SuccessRatio: 1, MeanValidationScore: 1})
	require.NoError(t, err)
	assert.Equal(t, 100.0, snap.HealthScore)
}

func TestHealthScoreDeductsPerOpenCircuit(t *testing.T) {
	h := HealthInputs{SuccessRatio: 1, MeanValidationScore: 1, OpenCircuitCount: 3}
	assert.Equal(t, 70.0, h.Score())
}

func TestHealthScoreFlooredAtZero(t *testing.T) {
	h := HealthInputs{SuccessRatio: 0, MeanValidationScore: 0, OpenCircuitCount: 50}
	assert.Equal(t, 0.0, h.Score())
}

func TestWriteJSONProducesTrailingNewline(t *testing.T) {
	r := New()
	snap, err := r.Snapshot(HealthInputs{})
	require.NoError(t, err)
	data, err := snap.WriteJSON()
	require.NoError(t, err)
	assert.Equal(t, byte('\n'), data[len(data)-1])
}
