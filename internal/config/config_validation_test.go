package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}

func validConfig() *Config {
	return &Config{
		DocStore: DocStoreConfig{URI: "mongodb://localhost:27017", Database: "data_bridge"},
		Crypto:   CryptoConfig{Salt: "salt-value", PasswordEnvVar: "DATABRIDGE_SOURCE_PASSWORD"},
		Datasets: []DatasetConfig{{
			Name:              "farms",
			FilePrefixFormat:  "exports/farms/FARM_{date}",
			DatePattern:       "20060102",
			DatetimePattern:   "20060102150405",
			PrimaryKeyHeaders: []string{"REGION", "FARM_ID"},
			ChangeTypeHeader:  "CHANGE_TYPE",
		}},
	}
}

func TestValidateConfigPasses(t *testing.T) {
	require.NoError(t, ValidateConfig(validConfig()))
}

func TestValidateConfigRejectsNoDatasets(t *testing.T) {
	cfg := validConfig()
	cfg.Datasets = nil

	require.Error(t, ValidateConfig(cfg))
}

func TestValidateConfigRejectsMissingMongoURI(t *testing.T) {
	cfg := validConfig()
	cfg.DocStore.URI = ""

	require.Error(t, ValidateConfig(cfg))
}

func TestValidateConfigRejectsMissingSalt(t *testing.T) {
	cfg := validConfig()
	cfg.Crypto.Salt = ""

	require.Error(t, ValidateConfig(cfg))
}

func TestLoadConfigFromYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/config.yaml"

	yamlContent := `
document_store:
  uri: mongodb://localhost:27017
  database: data_bridge
crypto:
  salt: salt-value
datasets:
  - name: farms
    file_prefix_format: "exports/farms/FARM_{date}"
    date_pattern: "20060102"
    datetime_pattern: "20060102150405"
    primary_key_headers: ["REGION", "FARM_ID"]
    change_type_header: "CHANGE_TYPE"
    accumulators: ["NOTES"]
`
	require.NoError(t, writeFile(path, yamlContent))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "data_bridge", cfg.DocStore.Database)
	require.Len(t, cfg.Datasets, 1)
	require.Equal(t, "farms", cfg.Datasets[0].Name)
	require.Equal(t, "info", cfg.App.LogLevel)
}

func TestLoadConfigFailsValidationWithoutDatasets(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/config.yaml"

	require.NoError(t, writeFile(path, "crypto:\n  salt: x\ndocument_store:\n  uri: mongodb://x\n"))

	_, err := LoadConfig(path)
	require.Error(t, err)
}
