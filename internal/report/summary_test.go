package report

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteSummary(t *testing.T) {
	res := sampleResult(t)
	sum := sampleSummary(res)

	var buf bytes.Buffer
	require.NoError(t, WriteSummary(&buf, sum))

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))

	assert.Equal(t, "run-1", doc["run_id"])
	assert.Equal(t, "2024-05-06T07:08:09Z", doc["created_at"])

	plan := doc["plan"].(map[string]interface{})
	assert.Equal(t, 20.0, plan["window_start"])
	assert.Equal(t, 40.0, plan["window_end"])

	metrics := doc["metrics"].([]interface{})
	require.Len(t, metrics, 6)
	first := metrics[0].(map[string]interface{})
	assert.Equal(t, "raw", first["regime"])
	assert.Equal(t, "x", first["channel"])
	assert.Equal(t, 120.0, first["sample_count"])

	checks := doc["checks"].([]interface{})
	assert.Len(t, checks, 3)
	assert.NotNil(t, doc["diagnostics"])
}

func TestNewSummary_Improvement(t *testing.T) {
	res := sampleResult(t)
	sum := sampleSummary(res)

	require.Len(t, sum.Improvement, 3)
	for axis, imp := range sum.Improvement {
		assert.Greater(t, imp.RawRMSE, imp.CorrectedRMSE, "axis %s", axis)
		assert.Less(t, imp.Ratio, 1.0, "axis %s", axis)
	}
	assert.Equal(t, 6, sum.Meta.PositionCount)
}
