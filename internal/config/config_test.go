package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "categorizer.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"GOOGLE_CLOUD_PROJECT", "CATEGORIZER_BACKEND", "BQ_DATASET", "MONGO_URI",
		"SQLITE_PATH", "GEMINI_MODEL", "LOG_LEVEL", "LOCAL_SOURCE_ROOT", "PORT",
		"DEFAULT_TAXONOMY_ENABLED", "CATEGORIZER_CONFIG",
	} {
		t.Setenv(k, "")
	}
}

func TestDefault_IsValidOnceProjectIsSet(t *testing.T) {
	cfg := Default()
	assert.Error(t, cfg.Validate(), "bigquery backend without project must be rejected")

	cfg.ProjectID = "proj"
	require.NoError(t, cfg.Validate())
	assert.Equal(t, PolicyDrop, cfg.Parser.ConfidencePolicy)
	assert.Equal(t, 2*time.Minute, cfg.Timeouts.Model)
	assert.False(t, cfg.DefaultTaxonomy.Enabled)
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
project_id: file-project
backend: sqlite
sqlite:
  path: /tmp/file.db
timeouts:
  model: 45s
parser:
  confidence_policy: CLAMP
default_taxonomy:
  enabled: true
  categories:
    - category: Food
      subcategories: [Groceries, Restaurants]
`)
	t.Setenv("SQLITE_PATH", "/tmp/env.db")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "file-project", cfg.ProjectID)
	assert.Equal(t, BackendSQLite, cfg.Backend)
	assert.Equal(t, "/tmp/env.db", cfg.SQLite.Path)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 45*time.Second, cfg.Timeouts.Model)
	assert.Equal(t, 30*time.Second, cfg.Timeouts.Store, "unset durations keep defaults")
	assert.Equal(t, PolicyClamp, cfg.Parser.ConfidencePolicy)
	require.Len(t, cfg.DefaultTaxonomy.Categories, 1)
	assert.Equal(t, []string{"Groceries", "Restaurants"}, cfg.DefaultTaxonomy.Categories[0].Subcategories)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_MissingDefaultFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())
	t.Setenv("CATEGORIZER_BACKEND", "memory")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, BackendMemory, cfg.Backend)
	assert.Equal(t, "gemini-2.5-flash", cfg.Model.Name)
}

func TestLoad_InvalidYAML(t *testing.T) {
	clearEnv(t)
	_, err := Load(writeConfig(t, "backend: [unterminated"))
	assert.Error(t, err)
}

func TestApplyEnv_BadBool(t *testing.T) {
	cfg := Default()
	env := map[string]string{"DEFAULT_TAXONOMY_ENABLED": "maybe"}
	err := cfg.applyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"memory ok", func(c *Config) { c.Backend = BackendMemory }, false},
		{"unknown backend", func(c *Config) { c.Backend = "dynamo" }, true},
		{"mongo needs uri", func(c *Config) { c.Backend = BackendMongo }, true},
		{"mongo with uri", func(c *Config) { c.Backend = BackendMongo; c.Mongo.URI = "mongodb://localhost" }, false},
		{"unknown policy", func(c *Config) { c.Backend = BackendMemory; c.Parser.ConfidencePolicy = "round" }, true},
		{"zero timeout", func(c *Config) { c.Backend = BackendMemory; c.Timeouts.Taxonomy = 0 }, true},
		{"enabled empty default taxonomy", func(c *Config) { c.Backend = BackendMemory; c.DefaultTaxonomy.Enabled = true }, true},
		{"no workers", func(c *Config) { c.Backend = BackendMemory; c.Worker.Workers = 0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
