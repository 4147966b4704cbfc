package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Cache      CacheConfig      `yaml:"cache" mapstructure:"cache"`
	Research   ResearchConfig   `yaml:"research" mapstructure:"research"`
	EDGAR      EDGARConfig      `yaml:"edgar" mapstructure:"edgar"`
	Perplexity PerplexityConfig `yaml:"perplexity" mapstructure:"perplexity"`
	Jina       JinaConfig       `yaml:"jina" mapstructure:"jina"`
	PeopleData PeopleDataConfig `yaml:"peopledata" mapstructure:"peopledata"`
	Salesforce SalesforceConfig `yaml:"salesforce" mapstructure:"salesforce"`
	Notion     NotionConfig     `yaml:"notion" mapstructure:"notion"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Rules      RulesConfig      `yaml:"rules" mapstructure:"rules"`
	Render     RenderConfig     `yaml:"render" mapstructure:"render"`
	Artifacts  ArtifactsConfig  `yaml:"artifacts" mapstructure:"artifacts"`
	Territory  TerritoryConfig  `yaml:"territory" mapstructure:"territory"`
	Vendor     VendorConfig     `yaml:"vendor" mapstructure:"vendor"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Pricing    PricingConfig    `yaml:"pricing" mapstructure:"pricing"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// CacheConfig sets per-provider TTLs for cached snapshots. A provider
// missing from TTLHours falls back to DefaultTTLHours.
type CacheConfig struct {
	DefaultTTLHours int            `yaml:"default_ttl_hours" mapstructure:"default_ttl_hours"`
	TTLHours        map[string]int `yaml:"ttl_hours" mapstructure:"ttl_hours"`
}

// ResearchConfig bounds the orchestrator's fan-out.
type ResearchConfig struct {
	ProviderTimeoutSecs int `yaml:"provider_timeout_secs" mapstructure:"provider_timeout_secs"`
	OverallTimeoutSecs  int `yaml:"overall_timeout_secs" mapstructure:"overall_timeout_secs"`
	MaxConcurrent       int `yaml:"max_concurrent" mapstructure:"max_concurrent"`
}

// EDGARConfig holds SEC EDGAR access settings. EDGAR requires a contact
// user agent, not an API key.
type EDGARConfig struct {
	UserAgent string `yaml:"user_agent" mapstructure:"user_agent"`
}

// PerplexityConfig holds Perplexity API settings.
type PerplexityConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// JinaConfig holds Jina AI Reader settings.
type JinaConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// PeopleDataConfig holds the contact-enrichment vendor settings.
type PeopleDataConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// SalesforceConfig holds Salesforce JWT auth settings.
type SalesforceConfig struct {
	ClientID string `yaml:"client_id" mapstructure:"client_id"`
	Username string `yaml:"username" mapstructure:"username"`
	KeyPath  string `yaml:"key_path" mapstructure:"key_path"`
	LoginURL string `yaml:"login_url" mapstructure:"login_url"`
}

// NotionConfig holds Notion API credentials plus the outreach queue and
// review databases.
type NotionConfig struct {
	Token    string `yaml:"token" mapstructure:"token"`
	QueueDB  string `yaml:"queue_db" mapstructure:"queue_db"`
	ReviewDB string `yaml:"review_db" mapstructure:"review_db"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key                 string `yaml:"key" mapstructure:"key"`
	HaikuModel          string `yaml:"haiku_model" mapstructure:"haiku_model"`
	SonnetModel         string `yaml:"sonnet_model" mapstructure:"sonnet_model"`
	MaxBatchSize        int    `yaml:"max_batch_size" mapstructure:"max_batch_size"`
	NoBatch             bool   `yaml:"no_batch" mapstructure:"no_batch"`
	SmallBatchThreshold int    `yaml:"small_batch_threshold" mapstructure:"small_batch_threshold"`
}

// RulesConfig locates the relevance rule set.
type RulesConfig struct {
	Path        string `yaml:"path" mapstructure:"path"`
	DefaultTier string `yaml:"default_tier" mapstructure:"default_tier"`
}

// RenderConfig configures artifact drafting.
type RenderConfig struct {
	OutRoot    string `yaml:"out_root" mapstructure:"out_root"`
	TargetRoot string `yaml:"target_root" mapstructure:"target_root"`
	VoiceDir   string `yaml:"voice_dir" mapstructure:"voice_dir"`
	Variants   int    `yaml:"variants" mapstructure:"variants"`
}

// ArtifactsConfig configures the read-only artifact scanner.
type ArtifactsConfig struct {
	Root           string `yaml:"root" mapstructure:"root"`
	StaleAfterDays int    `yaml:"stale_after_days" mapstructure:"stale_after_days"`
}

// TerritoryConfig configures rep-territory assignment.
type TerritoryConfig struct {
	ShapefilePath string `yaml:"shapefile_path" mapstructure:"shapefile_path"`
	RepMapPath    string `yaml:"rep_map_path" mapstructure:"rep_map_path"`
}

// VendorConfig configures the vendor feed import.
type VendorConfig struct {
	FTPHost  string `yaml:"ftp_host" mapstructure:"ftp_host"`
	FTPUser  string `yaml:"ftp_user" mapstructure:"ftp_user"`
	FTPPass  string `yaml:"ftp_pass" mapstructure:"ftp_pass"`
	FeedPath string `yaml:"feed_path" mapstructure:"feed_path"`
	TempDir  string `yaml:"temp_dir" mapstructure:"temp_dir"`
}

// BatchConfig configures batch drafting.
type BatchConfig struct {
	MaxConcurrentContacts int `yaml:"max_concurrent_contacts" mapstructure:"max_concurrent_contacts"`
}

// ServerConfig configures the status server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// MonitoringConfig configures the serve-mode health checker and its alert
// webhook. An empty webhook URL means alerts are logged but not delivered.
type MonitoringConfig struct {
	WebhookURL            string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold  float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	FallbackRateThreshold float64 `yaml:"fallback_rate_threshold" mapstructure:"fallback_rate_threshold"`
	CostThresholdUSD      float64 `yaml:"cost_threshold_usd" mapstructure:"cost_threshold_usd"`
	LookbackWindowHours   int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	CheckIntervalSecs     int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
}

// PricingConfig holds per-provider pricing rates.
type PricingConfig struct {
	Anthropic  map[string]ModelPricing `yaml:"anthropic" mapstructure:"anthropic"`
	Jina       JinaPricing             `yaml:"jina" mapstructure:"jina"`
	Perplexity PerplexityPricing       `yaml:"perplexity" mapstructure:"perplexity"`
	PeopleData PeopleDataPricing       `yaml:"peopledata" mapstructure:"peopledata"`
}

// ModelPricing holds per-model token pricing (USD per million tokens).
type ModelPricing struct {
	Input         float64 `yaml:"input" mapstructure:"input"`
	Output        float64 `yaml:"output" mapstructure:"output"`
	BatchDiscount float64 `yaml:"batch_discount" mapstructure:"batch_discount"`
	CacheWriteMul float64 `yaml:"cache_write_mul" mapstructure:"cache_write_mul"`
	CacheReadMul  float64 `yaml:"cache_read_mul" mapstructure:"cache_read_mul"`
}

// JinaPricing holds Jina Reader pricing.
type JinaPricing struct {
	PerMTok float64 `yaml:"per_mtok" mapstructure:"per_mtok"`
}

// PerplexityPricing holds Perplexity pricing.
type PerplexityPricing struct {
	PerQuery float64 `yaml:"per_query" mapstructure:"per_query"`
}

// PeopleDataPricing holds contact-enrichment pricing. The vendor bills
// per successful match, not per request.
type PeopleDataPricing struct {
	PerMatch float64 `yaml:"per_match" mapstructure:"per_match"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("OUTREACH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "outreach.db")
	v.SetDefault("cache.default_ttl_hours", 168)
	v.SetDefault("cache.ttl_hours", map[string]int{
		"edgar":      336,
		"perplexity": 72,
		"jina":       168,
		"peopledata": 720,
		"salesforce": 24,
	})
	v.SetDefault("research.provider_timeout_secs", 8)
	v.SetDefault("research.overall_timeout_secs", 45)
	v.SetDefault("research.max_concurrent", 6)
	v.SetDefault("edgar.user_agent", "Sells Advisors blake@sellsadvisors.com")
	v.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("perplexity.model", "sonar-pro")
	v.SetDefault("jina.base_url", "https://r.jina.ai")
	v.SetDefault("peopledata.base_url", "https://api.peopledatalabs.com/v5")
	v.SetDefault("salesforce.login_url", "https://login.salesforce.com")
	v.SetDefault("anthropic.haiku_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.sonnet_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_batch_size", 100)
	v.SetDefault("anthropic.small_batch_threshold", 3)
	v.SetDefault("rules.path", "rules.yaml")
	v.SetDefault("rules.default_tier", "standard")
	v.SetDefault("render.out_root", "drafts")
	v.SetDefault("render.target_root", "active-accounts")
	v.SetDefault("render.variants", 2)
	v.SetDefault("artifacts.root", "drafts")
	v.SetDefault("artifacts.stale_after_days", 14)
	v.SetDefault("vendor.temp_dir", "/tmp/outreach-vendor")
	v.SetDefault("batch.max_concurrent_contacts", 5)
	v.SetDefault("server.port", 8080)
	v.SetDefault("monitoring.failure_rate_threshold", 0.2)
	v.SetDefault("monitoring.fallback_rate_threshold", 0.3)
	v.SetDefault("monitoring.cost_threshold_usd", 50.0)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("pricing.jina.per_mtok", 0.02)
	v.SetDefault("pricing.perplexity.per_query", 0.005)
	v.SetDefault("pricing.peopledata.per_match", 0.28)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// TTLFor returns the cache TTL in hours for a provider.
func (c CacheConfig) TTLFor(provider string) int {
	if h, ok := c.TTLHours[provider]; ok {
		return h
	}
	return c.DefaultTTLHours
}

// Validate checks the fields a command mode needs before any work starts.
// All problems are reported at once so the operator fixes them in one pass.
func (c *Config) Validate(mode string) error {
	var problems []string

	storeOK := func() {
		switch c.Store.Driver {
		case "sqlite":
			if c.Store.Path == "" {
				problems = append(problems, "store.path is required")
			}
		case "postgres":
			if c.Store.DatabaseURL == "" {
				problems = append(problems, "store.database_url is required")
			}
		default:
			problems = append(problems, fmt.Sprintf("store.driver %q is not one of sqlite, postgres", c.Store.Driver))
		}
	}
	researchOK := func() {
		if c.Research.ProviderTimeoutSecs <= 0 {
			problems = append(problems, "research.provider_timeout_secs must be > 0")
		}
		if c.Research.OverallTimeoutSecs < c.Research.ProviderTimeoutSecs {
			problems = append(problems, "research.overall_timeout_secs must be >= research.provider_timeout_secs")
		}
		if c.Research.MaxConcurrent < 1 || c.Research.MaxConcurrent > 32 {
			problems = append(problems, "research.max_concurrent must be between 1 and 32")
		}
	}
	renderOK := func() {
		if c.Anthropic.Key == "" {
			problems = append(problems, "anthropic.key is required")
		}
		if c.Rules.Path == "" {
			problems = append(problems, "rules.path is required")
		}
	}

	switch mode {
	case "research":
		storeOK()
		researchOK()
	case "draft":
		storeOK()
		researchOK()
		renderOK()
	case "batch":
		storeOK()
		researchOK()
		renderOK()
		if c.Batch.MaxConcurrentContacts < 1 || c.Batch.MaxConcurrentContacts > 50 {
			problems = append(problems, "batch.max_concurrent_contacts must be between 1 and 50")
		}
	case "approve":
		if c.Rules.Path == "" {
			problems = append(problems, "rules.path is required")
		}
	case "promote":
		if c.Rules.Path == "" {
			problems = append(problems, "rules.path is required")
		}
		if c.Salesforce.ClientID == "" || c.Salesforce.Username == "" || c.Salesforce.KeyPath == "" {
			problems = append(problems, "salesforce.client_id, salesforce.username and salesforce.key_path are required")
		}
	case "import":
		storeOK()
		if c.Vendor.FTPHost == "" {
			problems = append(problems, "vendor.ftp_host is required")
		}
	case "serve":
		storeOK()
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
