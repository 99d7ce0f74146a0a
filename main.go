package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gidra39/mlflow-promote/config"
	"github.com/gidra39/mlflow-promote/messaging"
	"github.com/gidra39/mlflow-promote/metrics"
	"github.com/gidra39/mlflow-promote/mlflow"
	"github.com/gidra39/mlflow-promote/promote"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("promotion failed")
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		debug   bool
		envFile string
	)

	cmd := &cobra.Command{
		Use:   "mlflow-promote",
		Short: "Register the best finished MLflow run and point the champion alias at it",
		Long: "Reads settings from the environment (and an optional .env, config.yaml or config.json), " +
			"selects the best FINISHED run of the experiment by metric, registers its model artifact " +
			"as a new version, waits for it to become READY and assigns the alias.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), cmd.OutOrStdout(), envFile, debug)
		},
	}

	cmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging")
	cmd.Flags().StringVar(&envFile, "env-file", "", "Explicit .env path (defaults to ENV_PATH, then discovery)")
	return cmd
}

func setupLogger(out io.Writer, level string, debug bool) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	if debug {
		lvl = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.TimeOnly}).With().Timestamp().Logger()
}

func run(ctx context.Context, out io.Writer, envFile string, debug bool) error {
	setupLogger(out, "info", debug)

	configuration, err := config.LoadConfig(envFile, "config.yaml", "config.json")
	if err != nil {
		return &promote.ConfigurationError{Err: err}
	}
	setupLogger(out, configuration.LogLevel, debug)

	endpoint, err := mlflow.ResolveEndpoint(configuration)
	if err != nil {
		return &promote.ConfigurationError{Err: err}
	}
	log.Info().Str("tracking", endpoint.BaseURL).Str("auth", endpoint.Source).Msg("[auth] using tracking server")

	client := mlflow.NewClient(endpoint, configuration.HTTPTimeout(), mlflow.WithLogger(log.Logger))

	opts := []promote.Option{promote.WithLogger(log.Logger)}
	if svc := messaging.NewService(configuration, nil); svc.Enabled() {
		opts = append(opts, promote.WithNotifier(svc))
	}

	settings := promote.SettingsFromConfig(configuration)
	log.Info().
		Str("experiment", settings.ExperimentName).
		Str("model", settings.ModelName).
		Str("metric", settings.Metric).
		Bool("higher_is_better", settings.HigherIsBetter).
		Msg("starting promotion")

	result, err := promote.New(client, opts...).Promote(ctx, settings)

	if configuration.MetricsTextfile != "" {
		recorder := metrics.New()
		recorder.Observe(result, err, time.Now())
		if werr := recorder.WriteTextfile(configuration.MetricsTextfile); werr != nil {
			log.Warn().Err(werr).Msg("unable to export metrics")
		}
	}

	if err != nil {
		return err
	}

	record, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to render result")
	}
	fmt.Fprintf(out, "Promotion complete: %s\n%s\n", result.Summary(), record)
	return nil
}
