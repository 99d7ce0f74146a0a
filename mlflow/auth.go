package mlflow

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/gidra39/mlflow-promote/config"

	"github.com/pkg/errors"
	"gopkg.in/ini.v1"
)

const (
	databricksScheme  = "databricks"
	defaultProfile    = "DEFAULT"
	databricksCfgFile = ".databrickscfg"
)

var (
	ErrNoCredentials     = errors.New("no tracking credentials available")
	ErrUnsupportedScheme = errors.New("unsupported tracking URI")
)

// Endpoint is a resolved tracking server address plus credentials.
type Endpoint struct {
	BaseURL  string
	Token    string
	Username string
	Password string
	// Source describes where the credentials came from, for logging.
	Source string
}

// ResolveEndpoint turns the tracking URI and credential settings into a
// concrete endpoint. For Databricks, DATABRICKS_HOST/DATABRICKS_TOKEN win
// unless the URI names a profile, otherwise the profile (DEFAULT when
// unset) is read from the Databricks config file.
func ResolveEndpoint(cfg config.Config) (Endpoint, error) {
	uri := strings.TrimSpace(cfg.MLflowTrackingURI)

	switch {
	case uri == databricksScheme || strings.HasPrefix(uri, databricksScheme+"://"):
		profile := strings.TrimPrefix(strings.TrimPrefix(uri, databricksScheme), "://")
		if profile == "" && cfg.DatabricksHost != "" && cfg.DatabricksToken != "" {
			return Endpoint{
				BaseURL: normalizeHost(cfg.DatabricksHost),
				Token:   cfg.DatabricksToken,
				Source:  "DATABRICKS_HOST/DATABRICKS_TOKEN",
			}, nil
		}
		if profile == "" {
			profile = cfg.DatabricksProfile
		}
		if profile == "" {
			profile = defaultProfile
		}
		return profileEndpoint(databricksConfigPath(cfg), profile)

	case strings.HasPrefix(uri, "http://") || strings.HasPrefix(uri, "https://"):
		return Endpoint{
			BaseURL:  strings.TrimRight(uri, "/"),
			Token:    cfg.MLflowTrackingToken,
			Username: cfg.MLflowTrackingUsername,
			Password: cfg.MLflowTrackingPassword,
			Source:   "MLFLOW_TRACKING_URI",
		}, nil
	}

	return Endpoint{}, errors.Wrap(ErrUnsupportedScheme, uri)
}

func databricksConfigPath(cfg config.Config) string {
	if cfg.DatabricksConfigFile != "" {
		return cfg.DatabricksConfigFile
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return databricksCfgFile
	}
	return filepath.Join(home, databricksCfgFile)
}

func profileEndpoint(path, profile string) (Endpoint, error) {
	f, err := ini.Load(path)
	if err != nil {
		return Endpoint{}, errors.Wrapf(ErrNoCredentials, "no DATABRICKS_HOST/DATABRICKS_TOKEN and cannot read %s: %v", path, err)
	}
	section, err := f.GetSection(profile)
	if err != nil {
		return Endpoint{}, errors.Wrapf(ErrNoCredentials, "profile %q not found in %s", profile, path)
	}

	host := section.Key("host").String()
	token := section.Key("token").String()
	if host == "" || token == "" {
		return Endpoint{}, errors.Wrapf(ErrNoCredentials, "profile %q in %s needs host and token", profile, path)
	}
	return Endpoint{
		BaseURL: normalizeHost(host),
		Token:   token,
		Source:  "profile " + profile,
	}, nil
}

func normalizeHost(host string) string {
	host = strings.TrimRight(strings.TrimSpace(host), "/")
	if !strings.Contains(host, "://") {
		host = "https://" + host
	}
	return host
}
