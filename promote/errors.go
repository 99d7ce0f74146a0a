package promote

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gidra39/mlflow-promote/types"

	"github.com/pkg/errors"
)

// ConfigurationError means the settings are unusable, or the tracking
// server credentials or the experiment could not be resolved.
type ConfigurationError struct {
	Experiment string
	Err        error
}

func (e *ConfigurationError) Error() string {
	if e.Experiment == "" {
		return fmt.Sprintf("configuration error: %v", e.Err)
	}
	return fmt.Sprintf("cannot resolve experiment %q: %v", e.Experiment, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// NoEligibleRunError means no FINISHED run of the experiment reports the
// ranking metric. Recent holds the latest runs of any status;
// RecentUnavailable is set when that lookup itself failed.
type NoEligibleRunError struct {
	ExperimentID      string
	Metric            string
	Recent            []types.Run
	RecentUnavailable bool
}

func (e *NoEligibleRunError) Error() string {
	msg := fmt.Sprintf("no FINISHED run with metric '%s' found in experiment %s", e.Metric, e.ExperimentID)
	if e.RecentUnavailable {
		return msg + "; recent runs unavailable"
	}
	if len(e.Recent) == 0 {
		return msg + "; the experiment has no runs"
	}
	recent := make([]string, 0, len(e.Recent))
	for _, r := range e.Recent {
		recent = append(recent, r.Info.RunID+" "+r.Info.Status)
	}
	return fmt.Sprintf("%s; recent runs exist (%s), check that they log '%s' and finished",
		msg, strings.Join(recent, ", "), e.Metric)
}

// MissingMetricError means the selected run carries no value for the
// metric it was ranked by.
type MissingMetricError struct {
	RunID  string
	Metric string
}

func (e *MissingMetricError) Error() string {
	return fmt.Sprintf("best run %s has no metric '%s'", e.RunID, e.Metric)
}

type ReadinessTimeoutError struct {
	Model   string
	Version string
	Elapsed time.Duration
	Timeout time.Duration
}

func (e *ReadinessTimeoutError) Error() string {
	return fmt.Sprintf("version %s of '%s' did not become READY within %s (waited %s)",
		e.Version, e.Model, e.Timeout, e.Elapsed)
}

// RegistrationFailedError means the registry gave up processing the version.
type RegistrationFailedError struct {
	Model   string
	Version string
	Message string
}

func (e *RegistrationFailedError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("registration of version %s of '%s' failed", e.Version, e.Model)
	}
	return fmt.Sprintf("registration of version %s of '%s' failed: %s", e.Version, e.Model, e.Message)
}

// AliasAssignmentError means the version was registered but the alias could
// not be moved to it. The version is left in place.
type AliasAssignmentError struct {
	Model   string
	Alias   string
	Version string
	Err     error
}

func (e *AliasAssignmentError) Error() string {
	return fmt.Sprintf("version %s of '%s' is registered but alias @%s was not assigned, set it manually: %v",
		e.Version, e.Model, e.Alias, e.Err)
}

func (e *AliasAssignmentError) Unwrap() error { return e.Err }

// FailureReason classifies err into a short stable label for metrics.
func FailureReason(err error) string {
	var (
		cfgErr   *ConfigurationError
		noRun    *NoEligibleRunError
		missing  *MissingMetricError
		timeout  *ReadinessTimeoutError
		failed   *RegistrationFailedError
		aliasErr *AliasAssignmentError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &cfgErr):
		return "configuration"
	case errors.As(err, &noRun):
		return "no_eligible_run"
	case errors.As(err, &missing):
		return "missing_metric"
	case errors.As(err, &timeout):
		return "readiness_timeout"
	case errors.As(err, &failed):
		return "registration_failed"
	case errors.As(err, &aliasErr):
		return "alias_assignment"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	}
	return "backend"
}
