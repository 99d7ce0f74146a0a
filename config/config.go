package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/gidra39/mlflow-promote/validation"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Config contains all application configuration settings
type Config struct {
	ExperimentPath  string `json:"MLFLOW_EXPERIMENT_PATH" koanf:"MLFLOW_EXPERIMENT_PATH" validate:"required"`
	ModelName       string `json:"MODEL_REGISTRY_NAME" koanf:"MODEL_REGISTRY_NAME" validate:"required"`
	Metric          string `json:"BEST_METRIC" koanf:"BEST_METRIC" validate:"required"`
	HigherIsBetter  bool   `json:"HIGHER_IS_BETTER" koanf:"HIGHER_IS_BETTER"`
	ArtifactPath    string `json:"MODEL_ARTIFACT_PATH" koanf:"MODEL_ARTIFACT_PATH" validate:"required"`
	WaitTimeoutSecs int    `json:"MODEL_WAIT_TIMEOUT" koanf:"MODEL_WAIT_TIMEOUT" validate:"gt=0"`
	Alias           string `json:"MODEL_ALIAS" koanf:"MODEL_ALIAS" validate:"required,excludesall=@"`

	MLflowTrackingURI      string `json:"MLFLOW_TRACKING_URI" koanf:"MLFLOW_TRACKING_URI" validate:"required"`
	MLflowTrackingToken    string `json:"MLFLOW_TRACKING_TOKEN" koanf:"MLFLOW_TRACKING_TOKEN"`
	MLflowTrackingUsername string `json:"MLFLOW_TRACKING_USERNAME" koanf:"MLFLOW_TRACKING_USERNAME"`
	MLflowTrackingPassword string `json:"MLFLOW_TRACKING_PASSWORD" koanf:"MLFLOW_TRACKING_PASSWORD"`
	DatabricksHost         string `json:"DATABRICKS_HOST" koanf:"DATABRICKS_HOST"`
	DatabricksToken        string `json:"DATABRICKS_TOKEN" koanf:"DATABRICKS_TOKEN"`
	DatabricksProfile      string `json:"DATABRICKS_CONFIG_PROFILE" koanf:"DATABRICKS_CONFIG_PROFILE"`
	DatabricksConfigFile   string `json:"DATABRICKS_CONFIG_FILE" koanf:"DATABRICKS_CONFIG_FILE"`
	HTTPTimeoutSecs        int    `json:"HTTP_TIMEOUT_SECONDS" koanf:"HTTP_TIMEOUT_SECONDS" validate:"gt=0"`

	TelegramBotToken string `json:"TELEGRAM_BOT_TOKEN" koanf:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID   string `json:"TELEGRAM_CHAT_ID" koanf:"TELEGRAM_CHAT_ID"`
	SlackWebhookURL  string `json:"SLACK_WEBHOOK_URL" koanf:"SLACK_WEBHOOK_URL"`
	MessageChannels  string `json:"MESSAGE_CHANNELS" koanf:"MESSAGE_CHANNELS" validate:"omitempty,oneof=NONE TELEGRAM SLACK BOTH"`

	MetricsTextfile string `json:"METRICS_TEXTFILE" koanf:"METRICS_TEXTFILE"`
	LogLevel        string `json:"LOG_LEVEL" koanf:"LOG_LEVEL"`
}

func (c Config) WaitTimeout() time.Duration {
	return time.Duration(c.WaitTimeoutSecs) * time.Second
}

func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSecs) * time.Second
}

// Defaults are applied before any file or environment layer.
func Defaults() map[string]interface{} {
	return map[string]interface{}{
		"MLFLOW_EXPERIMENT_PATH": "/Shared/model-promotion",
		"MODEL_REGISTRY_NAME":    "promoted-model",
		"BEST_METRIC":            "rmse",
		"HIGHER_IS_BETTER":       false,
		"MODEL_ARTIFACT_PATH":    "model",
		"MODEL_WAIT_TIMEOUT":     180,
		"MODEL_ALIAS":            "champion",
		"MLFLOW_TRACKING_URI":    "databricks",
		"HTTP_TIMEOUT_SECONDS":   30,
		"MESSAGE_CHANNELS":       "NONE",
		"LOG_LEVEL":              "info",
	}
}

// Truthy mirrors the loose boolean parsing used for flag-like env vars:
// only 1, true and yes (any case) count as true.
func Truthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes":
		return true
	}
	return false
}

var boolKeys = map[string]bool{
	"HIGHER_IS_BETTER": true,
}

func parserFor(configFile string) koanf.Parser {
	switch strings.ToLower(filepath.Ext(configFile)) {
	case ".yaml", ".yml":
		return yaml.Parser()
	case ".json":
		return json.Parser()
	}
	return nil
}

// Load builds a Config from defaults, an optional config file and the
// process environment, in increasing order of priority.
func Load(configFile string) (Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return Config{}, errors.Wrap(err, "koanf: error loading defaults")
	}

	if configFile != "" {
		if err := k.Load(file.Provider(configFile), parserFor(configFile)); err != nil {
			log.Warn().Err(err).Str("file", configFile).Msg("unable to load config file")
		} else {
			log.Info().Str("file", configFile).Msg("loaded configuration from file")
		}
	}

	// File values get the same loose boolean reading as the environment.
	for key := range boolKeys {
		if k.Exists(key) {
			if err := k.Set(key, Truthy(fmt.Sprint(k.Get(key)))); err != nil {
				return Config{}, errors.Wrapf(err, "koanf: error normalizing %s", key)
			}
		}
	}

	// Load from environment variables (higher priority)
	if err := k.Load(env.ProviderWithValue("", ".", func(key, value string) (string, interface{}) {
		if boolKeys[key] {
			return key, Truthy(value)
		}
		return key, value
	}), nil); err != nil {
		return Config{}, errors.Wrap(err, "koanf: error loading env")
	}

	config := Config{}

	if err := k.Unmarshal("", &config); err != nil {
		return Config{}, errors.Wrap(err, "koanf: error unmarshalling config")
	}

	config.MessageChannels = strings.ToUpper(config.MessageChannels)

	if err := validation.Validate.Struct(config); err != nil {
		return Config{}, errors.Wrap(ErrInvalidConfig, err.Error())
	}
	return config, nil
}

// LoadConfig is the main entry point for configuration loading. It loads
// the discovered env file into the process environment and then reads the
// first config file found walking upwards from the working directory.
func LoadConfig(envFile string, configFiles ...string) (Config, error) {
	LoadDotEnv(envFile)

	for _, configFile := range configFiles {
		foundFile, err := SearchUpwardsForFile(configFile)
		if err == nil {
			return Load(foundFile)
		}
	}

	// If no config file found, load from environment only
	return Load("")
}
