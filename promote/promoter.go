// Package promote picks the best finished run of an experiment, registers
// its model artifact as a new registry version and points an alias at it.
package promote

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gidra39/mlflow-promote/config"
	"github.com/gidra39/mlflow-promote/types"

	"github.com/google/uuid"
	"github.com/juju/clock"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const (
	DefaultAlias        = "champion"
	DefaultArtifactPath = "model"
	DefaultWaitTimeout  = 180 * time.Second

	// recentRunsLimit bounds the diagnostic lookup done when nothing is
	// eligible.
	recentRunsLimit = 5

	finishedFilter = "attributes.status = '" + types.RunStatusFinished + "'"
)

// Version tags written on every promoted version.
const (
	TagPromotionID = "promotion_id"
	TagMetric      = "promotion_metric"
	TagMetricValue = "promotion_metric_value"
)

// Backend is the subset of the tracking and registry API a promotion uses.
type Backend interface {
	GetExperimentByName(ctx context.Context, name string) (*types.Experiment, error)
	CreateExperiment(ctx context.Context, name string) (string, error)
	SearchRuns(ctx context.Context, req types.SearchRunsRequest) ([]types.Run, error)
	RegisterModel(ctx context.Context, name, source, runID string, tags []types.Tag) (*types.ModelVersion, error)
	GetModelVersion(ctx context.Context, name, version string) (*types.ModelVersion, error)
	SetRegisteredModelAlias(ctx context.Context, name, alias, version string) error
}

// Notifier delivers a human-readable outcome message.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

// Settings select what gets promoted and where.
type Settings struct {
	ExperimentName string
	ModelName      string
	Metric         string
	HigherIsBetter bool
	ArtifactPath   string
	Alias          string
	WaitTimeout    time.Duration
}

func SettingsFromConfig(cfg config.Config) Settings {
	return Settings{
		ExperimentName: cfg.ExperimentPath,
		ModelName:      cfg.ModelName,
		Metric:         cfg.Metric,
		HigherIsBetter: cfg.HigherIsBetter,
		ArtifactPath:   cfg.ArtifactPath,
		Alias:          cfg.Alias,
		WaitTimeout:    cfg.WaitTimeout(),
	}
}

func (s Settings) withDefaults() Settings {
	if s.Alias == "" {
		s.Alias = DefaultAlias
	}
	if s.ArtifactPath == "" {
		s.ArtifactPath = DefaultArtifactPath
	}
	if s.WaitTimeout <= 0 {
		s.WaitTimeout = DefaultWaitTimeout
	}
	return s
}

// validate rejects settings the workspace registry and the run search
// grammar cannot serve.
func (s Settings) validate() error {
	switch {
	case strings.TrimSpace(s.ModelName) == "":
		return errors.New("registered model name is required")
	case isUnityCatalogName(s.ModelName):
		return errors.Errorf("registered model name '%s' is a Unity Catalog name (catalog.schema.model); "+
			"only the workspace model registry is supported", s.ModelName)
	case strings.TrimSpace(s.Metric) == "":
		return errors.New("metric name is required")
	case strings.Contains(s.Metric, "`"):
		return errors.Errorf("metric name '%s' contains a backtick and cannot be used to order runs", s.Metric)
	}
	return nil
}

func isUnityCatalogName(name string) bool {
	parts := strings.Split(name, ".")
	if len(parts) != 3 {
		return false
	}
	for _, part := range parts {
		if part == "" {
			return false
		}
	}
	return true
}

func (s Settings) direction() string {
	if s.HigherIsBetter {
		return "DESC"
	}
	return "ASC"
}

type Promoter struct {
	backend  Backend
	clock    clock.Clock
	logger   zerolog.Logger
	notifier Notifier
	newID    func() string
}

type Option func(*Promoter)

func WithClock(c clock.Clock) Option {
	return func(p *Promoter) { p.clock = c }
}

func WithLogger(l zerolog.Logger) Option {
	return func(p *Promoter) { p.logger = l }
}

func WithNotifier(n Notifier) Option {
	return func(p *Promoter) { p.notifier = n }
}

func New(backend Backend, opts ...Option) *Promoter {
	p := &Promoter{
		backend: backend,
		clock:   clock.WallClock,
		logger:  zerolog.Nop(),
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Promote runs one promotion end to end. Any failing step aborts the whole
// operation; nothing already done on the backend is undone.
func (p *Promoter) Promote(ctx context.Context, s Settings) (*types.PromotionResult, error) {
	s = s.withDefaults()
	result, err := p.promote(ctx, s)
	p.notify(ctx, s, result, err)
	return result, err
}

func (p *Promoter) promote(ctx context.Context, s Settings) (*types.PromotionResult, error) {
	if err := s.validate(); err != nil {
		return nil, &ConfigurationError{Err: err}
	}

	expID, err := p.resolveExperiment(ctx, s.ExperimentName)
	if err != nil {
		return nil, err
	}

	best, value, err := p.selectBestRun(ctx, expID, s)
	if err != nil {
		return nil, err
	}
	runID := best.Info.RunID
	artifactPath := strings.Trim(s.ArtifactPath, "/")
	runURI := fmt.Sprintf("runs:/%s/%s", runID, artifactPath)
	source := artifactSource(best, artifactPath, runURI)

	p.logger.Info().Str("run_id", runID).Str("metric", s.Metric).Float64("value", value).Msgf("best run: %s | %s=%.6f", runID, s.Metric, value)
	p.logger.Info().Str("run_uri", runURI).Str("source", source).Msg("registering model")

	promotionID := p.newID()
	mv, err := p.backend.RegisterModel(ctx, s.ModelName, source, runID, []types.Tag{
		{Key: TagPromotionID, Value: promotionID},
		{Key: TagMetric, Value: s.Metric},
		{Key: TagMetricValue, Value: strconv.FormatFloat(value, 'g', -1, 64)},
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to register %s as '%s'", runURI, s.ModelName)
	}
	p.logger.Info().Str("model", s.ModelName).Str("version", mv.Version).Msg("[registry] version created")

	waited, err := p.waitReady(ctx, s.ModelName, mv.Version, s.WaitTimeout)
	if err != nil {
		return nil, err
	}

	if err := p.backend.SetRegisteredModelAlias(ctx, s.ModelName, s.Alias, mv.Version); err != nil {
		return nil, &AliasAssignmentError{Model: s.ModelName, Alias: s.Alias, Version: mv.Version, Err: err}
	}
	p.logger.Info().Str("model", s.ModelName).Str("alias", s.Alias).Str("version", mv.Version).Msg("[registry] alias assigned")

	result := &types.PromotionResult{
		PromotionID:   promotionID,
		ModelName:     s.ModelName,
		ModelVersion:  mv.Version,
		Alias:         s.Alias,
		ExperimentID:  expID,
		BestRunID:     runID,
		Metric:        s.Metric,
		MetricValue:   value,
		RunURI:        runURI,
		Source:        source,
		ReadinessWait: waited,
	}
	p.logger.Info().
		Str("promotion_id", promotionID).
		Str("model", result.ModelName).
		Str("version", result.ModelVersion).
		Str("alias", result.Alias).
		Dur("readiness_wait", waited).
		Msg("promotion complete")
	return result, nil
}

func (p *Promoter) resolveExperiment(ctx context.Context, name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", &ConfigurationError{Experiment: name, Err: errors.New("experiment name is empty")}
	}

	exp, err := p.backend.GetExperimentByName(ctx, name)
	if err != nil {
		return "", &ConfigurationError{Experiment: name, Err: err}
	}
	if exp != nil {
		p.logger.Info().Str("experiment_id", exp.ExperimentID).Str("name", exp.Name).Msg("[exp] using experiment")
		return exp.ExperimentID, nil
	}

	p.logger.Info().Str("name", name).Msg("[exp] experiment does not exist, creating it")
	id, err := p.backend.CreateExperiment(ctx, name)
	if err != nil {
		return "", &ConfigurationError{Experiment: name, Err: err}
	}
	p.logger.Info().Str("experiment_id", id).Msg("[exp] created experiment")
	return id, nil
}

// selectBestRun asks the backend for the top finished run by metric. Ties
// are broken by whatever secondary order the backend applies.
func (p *Promoter) selectBestRun(ctx context.Context, expID string, s Settings) (types.Run, float64, error) {
	runs, err := p.backend.SearchRuns(ctx, types.SearchRunsRequest{
		ExperimentIDs: []string{expID},
		Filter:        finishedFilter,
		RunViewType:   types.ViewActiveOnly,
		MaxResults:    1,
		OrderBy:       []string{MetricOrderKey(s.Metric) + " " + s.direction()},
	})
	if err != nil {
		return types.Run{}, 0, errors.Wrapf(err, "failed to search runs of experiment %s", expID)
	}

	if len(runs) == 0 {
		recent, rerr := p.backend.SearchRuns(ctx, types.SearchRunsRequest{
			ExperimentIDs: []string{expID},
			RunViewType:   types.ViewAll,
			MaxResults:    recentRunsLimit,
			OrderBy:       []string{"attributes.start_time DESC"},
		})
		noRun := &NoEligibleRunError{ExperimentID: expID, Metric: s.Metric, Recent: recent}
		if rerr != nil {
			p.logger.Warn().Err(rerr).Msg("unable to list recent runs for diagnostics")
			noRun.RecentUnavailable = true
		}
		return types.Run{}, 0, noRun
	}

	best := runs[0]
	value, ok := best.Metric(s.Metric)
	if !ok {
		return types.Run{}, 0, &MissingMetricError{RunID: best.Info.RunID, Metric: s.Metric}
	}
	return best, value, nil
}

var plainIdentifier = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// MetricOrderKey renders the search expression for a metric, quoting names
// the search grammar would otherwise split. Names holding a backtick are
// rejected before this is reached.
func MetricOrderKey(metric string) string {
	if plainIdentifier.MatchString(metric) {
		return "metrics." + metric
	}
	return "metrics.`" + metric + "`"
}

// artifactSource resolves the runs:/ URI against the run's artifact root,
// which is what the registry stores as the version source.
func artifactSource(run types.Run, artifactPath, runURI string) string {
	root := strings.TrimRight(run.Info.ArtifactURI, "/")
	if root == "" {
		return runURI
	}
	if artifactPath == "" {
		return root
	}
	return root + "/" + artifactPath
}

func (p *Promoter) notify(ctx context.Context, s Settings, result *types.PromotionResult, err error) {
	if p.notifier == nil {
		return
	}

	var msg string
	if err != nil {
		msg = fmt.Sprintf("❌ Promotion of '%s' failed: %v", s.ModelName, err)
	} else {
		msg = "✅ " + result.Summary()
	}

	if nerr := p.notifier.Notify(ctx, msg); nerr != nil {
		p.logger.Warn().Err(nerr).Msg("failed to send notification")
	}
}
