package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestApplyDefaultsFillsUnsetFields(t *testing.T) {
	cfg := &Config{}

	applyDefaults(cfg)

	require.Equal(t, "data-bridge", cfg.App.Name)
	require.Equal(t, "production", cfg.App.Environment)
	require.Equal(t, "info", cfg.App.LogLevel)
	require.Equal(t, "json", cfg.App.LogFormat)
	require.Equal(t, 100, cfg.App.LookbackDays)
	require.Equal(t, "|", cfg.App.CSVDelimiter)
	require.Equal(t, "data_bridge", cfg.DocStore.Database)
	require.Equal(t, "DATABRIDGE_SOURCE_PASSWORD", cfg.Crypto.PasswordEnvVar)
	require.Equal(t, 9401, cfg.Metrics.Port)
	require.Equal(t, "/metrics", cfg.Metrics.Path)
}

func TestApplyDefaultsPreservesExplicitValues(t *testing.T) {
	cfg := &Config{App: AppConfig{Name: "custom", LookbackDays: 7, CSVDelimiter: ","}}

	applyDefaults(cfg)

	require.Equal(t, "custom", cfg.App.Name)
	require.Equal(t, 7, cfg.App.LookbackDays)
	require.Equal(t, ",", cfg.App.CSVDelimiter)
}

func TestApplyEnvironmentOverridesTakesPrecedence(t *testing.T) {
	os.Setenv("DATABRIDGE_LOG_LEVEL", "debug")
	os.Setenv("DATABRIDGE_LOOKBACK_DAYS", "30")
	os.Setenv("DATABRIDGE_MONGO_URI", "mongodb://example/test")
	defer func() {
		os.Unsetenv("DATABRIDGE_LOG_LEVEL")
		os.Unsetenv("DATABRIDGE_LOOKBACK_DAYS")
		os.Unsetenv("DATABRIDGE_MONGO_URI")
	}()

	cfg := &Config{App: AppConfig{LogLevel: "info", LookbackDays: 100}}

	applyEnvironmentOverrides(cfg)

	require.Equal(t, "debug", cfg.App.LogLevel)
	require.Equal(t, 30, cfg.App.LookbackDays)
	require.Equal(t, "mongodb://example/test", cfg.DocStore.URI)
}

func TestDelimiterDefaultsToPipe(t *testing.T) {
	cfg := &Config{}
	require.Equal(t, '|', cfg.Delimiter())

	cfg.App.CSVDelimiter = ","
	require.Equal(t, ',', cfg.Delimiter())
}

func TestDatasetConfigToDefinitionBuildsAccumulatorSet(t *testing.T) {
	d := DatasetConfig{
		Name:              "farms",
		PrimaryKeyHeaders: []string{"REGION", "FARM_ID"},
		ChangeTypeHeader:  "CHANGE_TYPE",
		Accumulators:      []string{"NOTES", "TAGS"},
	}

	def := d.ToDefinition()

	require.True(t, def.Accumulators["NOTES"])
	require.True(t, def.Accumulators["TAGS"])
	require.False(t, def.Accumulators["REGION"])
}
