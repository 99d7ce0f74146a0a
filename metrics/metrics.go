// Package metrics exports the outcome of a promotion in the Prometheus text
// format, for pickup by a node_exporter textfile collector.
package metrics

import (
	"strconv"
	"time"

	"github.com/gidra39/mlflow-promote/promote"
	"github.com/gidra39/mlflow-promote/types"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "mlflow_promote"

type Recorder struct {
	registry *prometheus.Registry

	success       prometheus.Gauge
	lastSuccess   prometheus.Gauge
	failures      *prometheus.CounterVec
	version       *prometheus.GaugeVec
	metricValue   *prometheus.GaugeVec
	readinessWait prometheus.Gauge
}

func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		success: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "success",
			Help:      "1 if the last promotion succeeded, 0 otherwise",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful promotion",
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failures_total",
			Help:      "Failed promotions by reason",
		}, []string{"reason"}),
		version: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "model_version",
			Help:      "Registry version the alias points at after promotion",
		}, []string{"model", "alias"}),
		metricValue: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "metric_value",
			Help:      "Ranking metric value of the promoted run",
		}, []string{"model", "metric"}),
		readinessWait: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "readiness_wait_seconds",
			Help:      "Time spent waiting for the new version to become ready",
		}),
	}
	r.registry.MustRegister(r.success, r.lastSuccess, r.failures, r.version, r.metricValue, r.readinessWait)
	return r
}

// Observe records one promotion outcome.
func (r *Recorder) Observe(result *types.PromotionResult, err error, now time.Time) {
	if err != nil || result == nil {
		r.success.Set(0)
		r.failures.WithLabelValues(promote.FailureReason(err)).Inc()
		return
	}

	r.success.Set(1)
	r.lastSuccess.Set(float64(now.Unix()))
	r.readinessWait.Set(result.ReadinessWait.Seconds())
	r.metricValue.WithLabelValues(result.ModelName, result.Metric).Set(result.MetricValue)
	if v, perr := strconv.ParseFloat(result.ModelVersion, 64); perr == nil {
		r.version.WithLabelValues(result.ModelName, result.Alias).Set(v)
	}
}

func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return errors.Wrapf(err, "failed to write metrics to %s", path)
	}
	return nil
}
