package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_Metric(t *testing.T) {
	r := Run{Data: RunData{Metrics: []Metric{{Key: "rmse", Value: 0.9}, {Key: "mae", Value: 0.4}}}}

	v, ok := r.Metric("rmse")
	assert.True(t, ok)
	assert.Equal(t, 0.9, v)

	_, ok = r.Metric("r2")
	assert.False(t, ok)

	assert.Equal(t, map[string]float64{"rmse": 0.9, "mae": 0.4}, r.Metrics())
}

func TestModelVersion_Status(t *testing.T) {
	assert.True(t, ModelVersion{}.Ready())
	assert.True(t, ModelVersion{Status: VersionStatusReady}.Ready())
	assert.False(t, ModelVersion{Status: VersionStatusPending}.Ready())
	assert.True(t, ModelVersion{Status: VersionStatusFailed}.Failed())
}

func TestPromotionResult_Summary(t *testing.T) {
	r := PromotionResult{
		ModelName: "taxi", ModelVersion: "3", Alias: "champion", BestRunID: "abc",
		Metric: "rmse", MetricValue: 0.9, ExperimentID: "7", RunURI: "runs:/abc/model",
	}
	assert.Equal(t, "taxi version 3 is now @champion (run abc, rmse=0.900000, experiment 7, runs:/abc/model)", r.Summary())
}

func TestPromotionResult_JSONWaitInSeconds(t *testing.T) {
	r := PromotionResult{ModelName: "taxi", ModelVersion: "3", ReadinessWait: 6 * time.Second}

	data, err := json.Marshal(r)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, 6.0, decoded["readiness_wait_seconds"])
	assert.Equal(t, "taxi", decoded["model_name"])
	assert.NotContains(t, decoded, "readiness_wait")
	assert.NotContains(t, decoded, "ReadinessWait")
}
