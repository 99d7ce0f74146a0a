package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// Run statuses reported by the tracking server.
const (
	RunStatusRunning   = "RUNNING"
	RunStatusScheduled = "SCHEDULED"
	RunStatusFinished  = "FINISHED"
	RunStatusFailed    = "FAILED"
	RunStatusKilled    = "KILLED"
)

// Run view types accepted by runs/search.
const (
	ViewActiveOnly  = "ACTIVE_ONLY"
	ViewDeletedOnly = "DELETED_ONLY"
	ViewAll         = "ALL"
)

// Model version statuses reported by the registry.
const (
	VersionStatusPending = "PENDING_REGISTRATION"
	VersionStatusReady   = "READY"
	VersionStatusFailed  = "FAILED_REGISTRATION"
)

type Experiment struct {
	ExperimentID     string `json:"experiment_id"`
	Name             string `json:"name"`
	ArtifactLocation string `json:"artifact_location,omitempty"`
	LifecycleStage   string `json:"lifecycle_stage,omitempty"`
}

type RunInfo struct {
	RunID          string `json:"run_id"`
	RunName        string `json:"run_name,omitempty"`
	Status         string `json:"status"`
	ExperimentID   string `json:"experiment_id"`
	StartTime      int64  `json:"start_time,omitempty"`
	EndTime        int64  `json:"end_time,omitempty"`
	ArtifactURI    string `json:"artifact_uri,omitempty"`
	LifecycleStage string `json:"lifecycle_stage,omitempty"`
}

type Metric struct {
	Key       string  `json:"key"`
	Value     float64 `json:"value"`
	Timestamp int64   `json:"timestamp"`
	Step      int     `json:"step"`
}

type Tag struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type RunData struct {
	Metrics []Metric `json:"metrics,omitempty"`
	Tags    []Tag    `json:"tags,omitempty"`
}

type Run struct {
	Info RunInfo `json:"info"`
	Data RunData `json:"data"`
}

// Metric returns the latest value the run logged under name.
func (r Run) Metric(name string) (float64, bool) {
	for _, m := range r.Data.Metrics {
		if m.Key == name {
			return m.Value, true
		}
	}
	return 0, false
}

// Metrics returns the run's metrics keyed by name.
func (r Run) Metrics() map[string]float64 {
	out := make(map[string]float64, len(r.Data.Metrics))
	for _, m := range r.Data.Metrics {
		out[m.Key] = m.Value
	}
	return out
}

type ModelVersion struct {
	Name                 string   `json:"name"`
	Version              string   `json:"version"`
	Source               string   `json:"source,omitempty"`
	RunID                string   `json:"run_id,omitempty"`
	Status               string   `json:"status,omitempty"`
	StatusMessage        string   `json:"status_message,omitempty"`
	Aliases              []string `json:"aliases,omitempty"`
	Tags                 []Tag    `json:"tags,omitempty"`
	CreationTimestamp    int64    `json:"creation_timestamp,omitempty"`
	LastUpdatedTimestamp int64    `json:"last_updated_timestamp,omitempty"`
}

// Ready reports whether the registry has finished processing the version.
// Servers that do not report a status are treated as ready.
func (v ModelVersion) Ready() bool {
	return v.Status == "" || v.Status == VersionStatusReady
}

func (v ModelVersion) Failed() bool {
	return v.Status == VersionStatusFailed
}

type RegisteredModel struct {
	Name string `json:"name"`
}

type SearchRunsRequest struct {
	ExperimentIDs []string `json:"experiment_ids"`
	Filter        string   `json:"filter,omitempty"`
	RunViewType   string   `json:"run_view_type,omitempty"`
	MaxResults    int      `json:"max_results,omitempty"`
	OrderBy       []string `json:"order_by,omitempty"`
	PageToken     string   `json:"page_token,omitempty"`
}

type SearchRunsResponse struct {
	Runs          []Run  `json:"runs"`
	NextPageToken string `json:"next_page_token,omitempty"`
}

type GetRunResponse struct {
	Run Run `json:"run"`
}

type GetExperimentResponse struct {
	Experiment Experiment `json:"experiment"`
}

type CreateExperimentRequest struct {
	Name string `json:"name"`
}

type CreateExperimentResponse struct {
	ExperimentID string `json:"experiment_id"`
}

type CreateRegisteredModelRequest struct {
	Name string `json:"name"`
}

type CreateModelVersionRequest struct {
	Name   string `json:"name"`
	Source string `json:"source"`
	RunID  string `json:"run_id,omitempty"`
	Tags   []Tag  `json:"tags,omitempty"`
}

type ModelVersionResponse struct {
	ModelVersion ModelVersion `json:"model_version"`
}

type SetAliasRequest struct {
	Name    string `json:"name"`
	Alias   string `json:"alias"`
	Version string `json:"version"`
}

// ErrorResponse is the body MLflow returns alongside non-2xx statuses.
type ErrorResponse struct {
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
}

// PromotionResult describes a completed promotion. It is returned to the
// caller and never stored.
type PromotionResult struct {
	PromotionID   string        `json:"promotion_id"`
	ModelName     string        `json:"model_name"`
	ModelVersion  string        `json:"model_version"`
	Alias         string        `json:"alias"`
	ExperimentID  string        `json:"experiment_id"`
	BestRunID     string        `json:"best_run_id"`
	Metric        string        `json:"metric"`
	MetricValue   float64       `json:"metric_value"`
	RunURI        string        `json:"run_uri"`
	Source        string        `json:"source"`
	ReadinessWait time.Duration `json:"-"`
}

// MarshalJSON reports the readiness wait in seconds.
func (r PromotionResult) MarshalJSON() ([]byte, error) {
	type plain PromotionResult
	return json.Marshal(struct {
		plain
		ReadinessWaitSeconds float64 `json:"readiness_wait_seconds"`
	}{plain(r), r.ReadinessWait.Seconds()})
}

func (r PromotionResult) Summary() string {
	return fmt.Sprintf("%s version %s is now @%s (run %s, %s=%.6f, experiment %s, %s)",
		r.ModelName, r.ModelVersion, r.Alias, r.BestRunID, r.Metric, r.MetricValue, r.ExperimentID, r.RunURI)
}
