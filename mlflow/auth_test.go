package mlflow

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gidra39/mlflow-promote/config"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const databricksCfg = `[DEFAULT]
host = adb-111.azuredatabricks.net
token = dapi-default

[staging]
host = https://adb-222.azuredatabricks.net/
token = dapi-staging

[broken]
host = https://adb-333.azuredatabricks.net
`

func writeDatabricksCfg(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".databrickscfg")
	require.NoError(t, os.WriteFile(path, []byte(databricksCfg), 0o600))
	return path
}

func TestResolveEndpoint(t *testing.T) {
	cfgFile := writeDatabricksCfg(t)

	tests := []struct {
		name string
		cfg  config.Config
		want Endpoint
	}{
		{
			name: "databricks env credentials",
			cfg:  config.Config{MLflowTrackingURI: "databricks", DatabricksHost: "adb-9.net", DatabricksToken: "t", DatabricksConfigFile: cfgFile},
			want: Endpoint{BaseURL: "https://adb-9.net", Token: "t", Source: "DATABRICKS_HOST/DATABRICKS_TOKEN"},
		},
		{
			name: "databricks default profile",
			cfg:  config.Config{MLflowTrackingURI: "databricks", DatabricksConfigFile: cfgFile},
			want: Endpoint{BaseURL: "https://adb-111.azuredatabricks.net", Token: "dapi-default", Source: "profile DEFAULT"},
		},
		{
			name: "databricks named profile",
			cfg:  config.Config{MLflowTrackingURI: "databricks", DatabricksProfile: "staging", DatabricksConfigFile: cfgFile},
			want: Endpoint{BaseURL: "https://adb-222.azuredatabricks.net", Token: "dapi-staging", Source: "profile staging"},
		},
		{
			name: "profile in uri beats env credentials",
			cfg:  config.Config{MLflowTrackingURI: "databricks://staging", DatabricksHost: "adb-9.net", DatabricksToken: "t", DatabricksConfigFile: cfgFile},
			want: Endpoint{BaseURL: "https://adb-222.azuredatabricks.net", Token: "dapi-staging", Source: "profile staging"},
		},
		{
			name: "plain mlflow server",
			cfg:  config.Config{MLflowTrackingURI: "http://localhost:5000/", MLflowTrackingUsername: "u", MLflowTrackingPassword: "p"},
			want: Endpoint{BaseURL: "http://localhost:5000", Username: "u", Password: "p", Source: "MLFLOW_TRACKING_URI"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveEndpoint(tt.cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveEndpoint_Errors(t *testing.T) {
	cfgFile := writeDatabricksCfg(t)

	_, err := ResolveEndpoint(config.Config{MLflowTrackingURI: "databricks", DatabricksProfile: "broken", DatabricksConfigFile: cfgFile})
	assert.True(t, errors.Is(err, ErrNoCredentials), "got %v", err)

	_, err = ResolveEndpoint(config.Config{MLflowTrackingURI: "databricks", DatabricksProfile: "missing", DatabricksConfigFile: cfgFile})
	assert.True(t, errors.Is(err, ErrNoCredentials), "got %v", err)

	_, err = ResolveEndpoint(config.Config{MLflowTrackingURI: "databricks", DatabricksConfigFile: filepath.Join(t.TempDir(), "none")})
	assert.True(t, errors.Is(err, ErrNoCredentials), "got %v", err)

	_, err = ResolveEndpoint(config.Config{MLflowTrackingURI: "file:///tmp/mlruns"})
	assert.True(t, errors.Is(err, ErrUnsupportedScheme), "got %v", err)
}
