package config

import (
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration. It is constructed once at
// process start and passed explicitly into each component; nothing reads
// ambient global state.
type Config struct {
	Mailbox   MailboxConfig   `yaml:"mailbox" mapstructure:"mailbox"`
	Notify    NotifyConfig    `yaml:"notify" mapstructure:"notify"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Ledger    LedgerConfig    `yaml:"ledger" mapstructure:"ledger"`
	Reconcile ReconcileConfig `yaml:"reconcile" mapstructure:"reconcile"`
	Retry     RetryConfig     `yaml:"retry" mapstructure:"retry"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// MailboxConfig holds IMAP credentials and candidate selection settings.
type MailboxConfig struct {
	Host               string `yaml:"host" mapstructure:"host"`
	Port               int    `yaml:"port" mapstructure:"port"`
	Username           string `yaml:"username" mapstructure:"username"`
	Password           string `yaml:"password" mapstructure:"password"`
	Folder             string `yaml:"folder" mapstructure:"folder"`
	UseTLS             bool   `yaml:"use_tls" mapstructure:"use_tls"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify" mapstructure:"insecure_skip_verify"`
	TimeoutSecs        int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// NotifyConfig holds SMTP settings for the summary notification.
type NotifyConfig struct {
	Host        string `yaml:"host" mapstructure:"host"`
	Port        int    `yaml:"port" mapstructure:"port"`
	Username    string `yaml:"username" mapstructure:"username"`
	Password    string `yaml:"password" mapstructure:"password"`
	From        string `yaml:"from" mapstructure:"from"`
	To          string `yaml:"to" mapstructure:"to"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key         string  `yaml:"key" mapstructure:"key"`
	Model       string  `yaml:"model" mapstructure:"model"`
	MaxTokens   int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature float64 `yaml:"temperature" mapstructure:"temperature"`
	RatePerMin  int     `yaml:"rate_per_min" mapstructure:"rate_per_min"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// LedgerConfig selects and configures the ledger backend.
type LedgerConfig struct {
	Backend       string   `yaml:"backend" mapstructure:"backend"` // "sheets" or "xlsx"
	SpreadsheetID string   `yaml:"spreadsheet_id" mapstructure:"spreadsheet_id"`
	Worksheet     string   `yaml:"worksheet" mapstructure:"worksheet"`
	AccessToken   string   `yaml:"access_token" mapstructure:"access_token"`
	XLSXPath      string   `yaml:"xlsx_path" mapstructure:"xlsx_path"`
	Columns       []string `yaml:"columns" mapstructure:"columns"`
	TimeoutSecs   int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// ReconcileConfig configures line-item validation.
type ReconcileConfig struct {
	Categories      []string `yaml:"categories" mapstructure:"categories"`
	UnknownCategory string   `yaml:"unknown_category" mapstructure:"unknown_category"` // "reject" or "review"
	MaxAmount       float64  `yaml:"max_amount" mapstructure:"max_amount"`
	MaxYearsPast    int      `yaml:"max_years_past" mapstructure:"max_years_past"`
	MaxYearsFuture  int      `yaml:"max_years_future" mapstructure:"max_years_future"`
}

// RetryConfig holds retry/backoff parameters shared by the model and ledger
// transports.
type RetryConfig struct {
	MaxAttempts       int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMS  int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffSecs    int     `yaml:"max_backoff_secs" mapstructure:"max_backoff_secs"`
	BackoffMultiplier float64 `yaml:"backoff_multiplier" mapstructure:"backoff_multiplier"`
}

// StoreConfig configures the run-history database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ServerConfig configures the webhook server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
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
	v.SetEnvPrefix("INVOICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("mailbox.host", "imap.gmail.com")
	v.SetDefault("mailbox.port", 993)
	v.SetDefault("mailbox.folder", "INBOX")
	v.SetDefault("mailbox.use_tls", true)
	v.SetDefault("mailbox.timeout_secs", 60)
	v.SetDefault("notify.host", "smtp.gmail.com")
	v.SetDefault("notify.port", 587)
	v.SetDefault("notify.timeout_secs", 30)
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 4000)
	v.SetDefault("anthropic.temperature", 0.0)
	v.SetDefault("anthropic.rate_per_min", 30)
	v.SetDefault("anthropic.timeout_secs", 120)
	v.SetDefault("ledger.backend", "sheets")
	v.SetDefault("ledger.worksheet", "Transactions")
	v.SetDefault("ledger.columns", []string{"Date", "Description", "Amount", "Category", "Property"})
	v.SetDefault("ledger.timeout_secs", 30)
	v.SetDefault("reconcile.categories", []string{
		"Rent", "Repairs", "Utilities", "Insurance", "Taxes",
		"Management Fees", "Supplies", "Other",
	})
	v.SetDefault("reconcile.unknown_category", "reject")
	v.SetDefault("reconcile.max_amount", 100000)
	v.SetDefault("reconcile.max_years_past", 2)
	v.SetDefault("reconcile.max_years_future", 1)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 500)
	v.SetDefault("retry.max_backoff_secs", 30)
	v.SetDefault("retry.backoff_multiplier", 2.0)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("server.port", 8080)
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

	if err := cfg.Validate(); err != nil {
		return nil, eris.Wrap(err, "config: validate")
	}

	return &cfg, nil
}

// Validate checks enum-valued settings that would otherwise fail deep inside
// a run.
func (c *Config) Validate() error {
	return validation.Errors{
		"ledger.backend":              validation.Validate(c.Ledger.Backend, validation.In("sheets", "xlsx")),
		"reconcile.unknown_category":  validation.Validate(c.Reconcile.UnknownCategory, validation.In("reject", "review")),
		"store.driver":                validation.Validate(c.Store.Driver, validation.In("sqlite", "postgres")),
	}.Filter()
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
