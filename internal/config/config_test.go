package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "outreach.db", cfg.Store.Path)
	assert.Equal(t, 168, cfg.Cache.DefaultTTLHours)
	assert.Equal(t, 336, cfg.Cache.TTLFor("edgar"))
	assert.Equal(t, 720, cfg.Cache.TTLFor("peopledata"))
	assert.Equal(t, 168, cfg.Cache.TTLFor("unknown-provider"))
	assert.Equal(t, 8, cfg.Research.ProviderTimeoutSecs)
	assert.Equal(t, 45, cfg.Research.OverallTimeoutSecs)
	assert.Equal(t, 6, cfg.Research.MaxConcurrent)
	assert.Contains(t, cfg.EDGAR.UserAgent, "@")
	assert.Equal(t, "sonar-pro", cfg.Perplexity.Model)
	assert.Equal(t, "https://r.jina.ai", cfg.Jina.BaseURL)
	assert.Equal(t, "claude-haiku-4-5-20251001", cfg.Anthropic.HaikuModel)
	assert.Equal(t, 100, cfg.Anthropic.MaxBatchSize)
	assert.Equal(t, "https://login.salesforce.com", cfg.Salesforce.LoginURL)
	assert.Equal(t, "standard", cfg.Rules.DefaultTier)
	assert.Equal(t, "drafts", cfg.Render.OutRoot)
	assert.Equal(t, 14, cfg.Artifacts.StaleAfterDays)
	assert.Equal(t, 5, cfg.Batch.MaxConcurrentContacts)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/outreach
cache:
  default_ttl_hours: 48
log:
  level: debug
  format: console
server:
  port: 9090
batch:
  max_concurrent_contacts: 10
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/outreach", cfg.Store.DatabaseURL)
	assert.Equal(t, 48, cfg.Cache.DefaultTTLHours)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 10, cfg.Batch.MaxConcurrentContacts)
	// Defaults still apply for unset values
	assert.Equal(t, 8, cfg.Research.ProviderTimeoutSecs)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("OUTREACH_STORE_DRIVER", "postgres")
	t.Setenv("OUTREACH_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("OUTREACH_SERVER_PORT", "3000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with enough populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Store.Path = "outreach.db"
	cfg.Research.ProviderTimeoutSecs = 8
	cfg.Research.OverallTimeoutSecs = 45
	cfg.Research.MaxConcurrent = 6
	cfg.Rules.Path = "rules.yaml"
	cfg.Batch.MaxConcurrentContacts = 5
	cfg.Server.Port = 8080
	return cfg
}

func TestValidateResearch_AllPresent(t *testing.T) {
	cfg := validDefaults()
	assert.NoError(t, cfg.Validate("research"))
}

func TestValidateResearch_MissingStore(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Path = ""

	err := cfg.Validate("research")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.path is required")
}

func TestValidateResearch_PostgresNeedsURL(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "postgres"

	err := cfg.Validate("research")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")
}

func TestValidateDraft_MissingKey(t *testing.T) {
	cfg := validDefaults()

	err := cfg.Validate("draft")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic.key is required")
}

func TestValidateDraft_ReportsAllProblems(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Path = ""
	cfg.Rules.Path = ""

	err := cfg.Validate("draft")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.path is required")
	assert.Contains(t, err.Error(), "anthropic.key is required")
	assert.Contains(t, err.Error(), "rules.path is required")
}

func TestValidatePromote_NeedsSalesforce(t *testing.T) {
	cfg := validDefaults()

	err := cfg.Validate("promote")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "salesforce.client_id")

	cfg.Salesforce.ClientID = "client-id"
	cfg.Salesforce.Username = "ops@sellsadvisors.com"
	cfg.Salesforce.KeyPath = "sf.key"
	assert.NoError(t, cfg.Validate("promote"))
}

func TestValidateImport_NeedsFTPHost(t *testing.T) {
	cfg := validDefaults()

	err := cfg.Validate("import")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "vendor.ftp_host is required")
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateConcurrencyBounds(t *testing.T) {
	cfg := validDefaults()
	cfg.Anthropic.Key = "sk-ant-key"

	cfg.Batch.MaxConcurrentContacts = 0
	err := cfg.Validate("batch")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "batch.max_concurrent_contacts must be between 1 and 50")

	cfg.Batch.MaxConcurrentContacts = 51
	err = cfg.Validate("batch")
	assert.Error(t, err)

	cfg.Batch.MaxConcurrentContacts = 50
	assert.NoError(t, cfg.Validate("batch"))
}

func TestValidateResearchTimeouts(t *testing.T) {
	cfg := validDefaults()

	cfg.Research.ProviderTimeoutSecs = 0
	err := cfg.Validate("research")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "provider_timeout_secs")

	cfg.Research.ProviderTimeoutSecs = 60
	cfg.Research.OverallTimeoutSecs = 45
	err = cfg.Validate("research")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "overall_timeout_secs")
}
