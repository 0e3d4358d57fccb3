package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/irfndi/pcr-tracker-go/internal/models"
)

type Config struct {
	Environment string           `mapstructure:"environment"`
	LogLevel    string           `mapstructure:"log_level"`
	Logging     LoggingConfig    `mapstructure:"logging"`
	Server      ServerConfig     `mapstructure:"server"`
	Source      SourceConfig     `mapstructure:"source"`
	Extractor   ExtractorConfig  `mapstructure:"extractor"`
	Reconciler  ReconcilerConfig `mapstructure:"reconciler"`
	Sheet       SheetConfig      `mapstructure:"sheet"`
	Schedule    ScheduleConfig   `mapstructure:"schedule"`
	Database    DatabaseConfig   `mapstructure:"database"`
	Redis       RedisConfig      `mapstructure:"redis"`
	Telegram    TelegramConfig   `mapstructure:"telegram"`
	Telemetry   TelemetryConfig  `mapstructure:"telemetry"`
}

type LoggingConfig struct {
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AdminAPIKey    string   `mapstructure:"admin_api_key" json:"-" yaml:"-"`
}

type SourceConfig struct {
	URL       string            `mapstructure:"url"`
	Symbol    string            `mapstructure:"symbol"`
	UserAgent string            `mapstructure:"user_agent"`
	Timeout   string            `mapstructure:"timeout"`
	Headers   map[string]string `mapstructure:"headers"`
}

type ExtractorConfig struct {
	PriceMin int64 `mapstructure:"price_min"`
	PriceMax int64 `mapstructure:"price_max"`
	// ExtraPatterns maps a field name to regexes tried before the built-in ones.
	ExtraPatterns map[string][]string `mapstructure:"extra_patterns"`
}

type ReconcilerConfig struct {
	TrendBasis   string            `mapstructure:"trend_basis"`
	BearishAt    string            `mapstructure:"bearish_threshold"`
	BullishAt    string            `mapstructure:"bullish_threshold"`
	BasisLabels  map[string]string `mapstructure:"basis_labels"`
	NotifyChange bool              `mapstructure:"notify_trend_change"`
}

type SheetConfig struct {
	Backend         string            `mapstructure:"backend"`
	SpreadsheetID   string            `mapstructure:"spreadsheet_id"`
	Worksheet       string            `mapstructure:"worksheet"`
	CredentialsFile string            `mapstructure:"credentials_file"`
	HeaderRow       int               `mapstructure:"header_row"`
	DataStartRow    int               `mapstructure:"data_start_row"`
	DataEndRow      int               `mapstructure:"data_end_row"`
	Columns         map[string]string `mapstructure:"columns"`
	Timezone        string            `mapstructure:"timezone"`
}

type ScheduleConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Cron         string `mapstructure:"cron"`
	WindowStart  string `mapstructure:"window_start"`
	WindowEnd    string `mapstructure:"window_end"`
	WeekdaysOnly bool   `mapstructure:"weekdays_only"`
	Backoff      string `mapstructure:"backoff"`
	ResetCron    string `mapstructure:"reset_cron"`
}

type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"dbname"`
	SSLMode         string `mapstructure:"sslmode"`
	DatabaseURL     string `mapstructure:"database_url"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime string `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime string `mapstructure:"conn_max_idle_time"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token" json:"-" yaml:"-"`
	ChatID   int64  `mapstructure:"chat_id"`
}

type TelemetryConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	OTLPEndpoint   string  `mapstructure:"otlp_endpoint"`
	ServiceName    string  `mapstructure:"service_name"`
	ServiceVersion string  `mapstructure:"service_version"`
	Exporter       string  `mapstructure:"exporter"`
	SampleRate     float64 `mapstructure:"sample_rate"`
	ExportLogs     bool    `mapstructure:"export_logs"`
}

// Backends accepted by sheet.backend.
const (
	BackendSheets   = "sheets"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	// Set default values
	setDefaults()

	// Enable environment variable support
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	bindings := map[string]string{
		"server.admin_api_key":    "ADMIN_API_KEY",
		"telegram.bot_token":      "TELEGRAM_BOT_TOKEN",
		"telegram.chat_id":        "TELEGRAM_CHAT_ID",
		"sheet.credentials_file":  "GOOGLE_APPLICATION_CREDENTIALS",
		"database.database_url":   "DATABASE_URL",
		"telemetry.otlp_endpoint": "OTEL_EXPORTER_OTLP_ENDPOINT",
	}
	for key, env := range bindings {
		if err := viper.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s environment variable: %w", env, err)
		}
	}

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		// Config file not found, use defaults and environment variables
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Normalize environment to lowercase for consistent comparison
	config.Environment = strings.ToLower(config.Environment)
	config.Sheet.Backend = strings.ToLower(config.Sheet.Backend)
	config.Reconciler.TrendBasis = strings.ToLower(config.Reconciler.TrendBasis)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks the settings that would otherwise fail at the first cycle.
func (c *Config) Validate() error {
	s := c.Sheet
	switch s.Backend {
	case BackendSheets:
		if s.SpreadsheetID == "" {
			return errors.New("sheet.spreadsheet_id is required for the sheets backend")
		}
	case BackendPostgres, BackendMemory:
	default:
		return fmt.Errorf("unknown sheet backend %q", s.Backend)
	}
	if s.HeaderRow < 0 {
		return fmt.Errorf("sheet.header_row must not be negative, got %d", s.HeaderRow)
	}
	if s.DataStartRow <= s.HeaderRow {
		return fmt.Errorf("sheet.data_start_row %d must be below header_row %d", s.DataStartRow, s.HeaderRow)
	}
	if s.DataEndRow < s.DataStartRow {
		return fmt.Errorf("sheet.data_end_row %d is before data_start_row %d", s.DataEndRow, s.DataStartRow)
	}
	if _, err := c.ColumnLayout(); err != nil {
		return fmt.Errorf("sheet.columns: %w", err)
	}
	if _, err := c.Location(); err != nil {
		return err
	}

	if !models.TrendBasis(c.Reconciler.TrendBasis).Valid() {
		return fmt.Errorf("reconciler.trend_basis must be intraday or overall, got %q", c.Reconciler.TrendBasis)
	}
	bearish, bullish, err := c.Reconciler.Thresholds()
	if err != nil {
		return err
	}
	if !bearish.LessThan(bullish) {
		return fmt.Errorf("reconciler.bearish_threshold %s must be below bullish_threshold %s", bearish, bullish)
	}

	if c.Extractor.PriceMin >= c.Extractor.PriceMax {
		return fmt.Errorf("extractor.price_min %d must be below price_max %d", c.Extractor.PriceMin, c.Extractor.PriceMax)
	}

	for name, spec := range map[string]string{"schedule.cron": c.Schedule.Cron, "schedule.reset_cron": c.Schedule.ResetCron} {
		if spec == "" && name == "schedule.reset_cron" {
			continue
		}
		if _, err := cronParser.Parse(spec); err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, spec, err)
		}
	}
	for name, v := range map[string]string{"schedule.backoff": c.Schedule.Backoff, "source.timeout": c.Source.Timeout} {
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}
	return nil
}

var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ColumnLayout builds the persisted column layout from sheet.columns.
func (c *Config) ColumnLayout() (models.ColumnLayout, error) {
	return models.NewColumnLayout(c.Sheet.Columns)
}

// Location loads sheet.timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Sheet.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid sheet.timezone %q: %w", c.Sheet.Timezone, err)
	}
	return loc, nil
}

// Thresholds parses the classification thresholds.
func (r ReconcilerConfig) Thresholds() (decimal.Decimal, decimal.Decimal, error) {
	bearish, err := decimal.NewFromString(r.BearishAt)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("invalid reconciler.bearish_threshold: %w", err)
	}
	bullish, err := decimal.NewFromString(r.BullishAt)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("invalid reconciler.bullish_threshold: %w", err)
	}
	return bearish, bullish, nil
}

// Duration parses a validated duration setting, falling back to def.
func Duration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func setDefaults() {
	// Environment
	viper.SetDefault("environment", "development")
	viper.SetDefault("log_level", "info")

	// Logging
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.file", "")
	viper.SetDefault("logging.max_size_mb", 50)
	viper.SetDefault("logging.max_backups", 5)
	viper.SetDefault("logging.max_age_days", 14)

	// Server
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	viper.SetDefault("server.admin_api_key", "")

	// Source
	viper.SetDefault("source.url", "https://www.niftyinvest.com/put-call-ratio/CRUDEOILM")
	viper.SetDefault("source.symbol", "CRUDEOILM")
	viper.SetDefault("source.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36")
	viper.SetDefault("source.timeout", "10s")

	// Extractor
	viper.SetDefault("extractor.price_min", 5000)
	viper.SetDefault("extractor.price_max", 7000)

	// Reconciler
	viper.SetDefault("reconciler.trend_basis", string(models.TrendBasisIntraday))
	viper.SetDefault("reconciler.bearish_threshold", "0.8")
	viper.SetDefault("reconciler.bullish_threshold", "1.2")
	viper.SetDefault("reconciler.notify_trend_change", true)

	// Sheet
	viper.SetDefault("sheet.backend", BackendSheets)
	viper.SetDefault("sheet.spreadsheet_id", "")
	viper.SetDefault("sheet.worksheet", "PCR_Data_Live")
	viper.SetDefault("sheet.credentials_file", "credentials.json")
	viper.SetDefault("sheet.header_row", 1)
	viper.SetDefault("sheet.data_start_row", 18)
	viper.SetDefault("sheet.data_end_row", 2000)
	viper.SetDefault("sheet.timezone", "Asia/Kolkata")

	// Schedule
	viper.SetDefault("schedule.enabled", true)
	viper.SetDefault("schedule.cron", "5 * * * * *")
	viper.SetDefault("schedule.window_start", "09:00")
	viper.SetDefault("schedule.window_end", "23:30")
	viper.SetDefault("schedule.weekdays_only", true)
	viper.SetDefault("schedule.backoff", "30s")
	viper.SetDefault("schedule.reset_cron", "")

	// Set database defaults
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "postgres")
	viper.SetDefault("database.dbname", "pcr_tracker")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("database.database_url", "")
	viper.SetDefault("database.max_open_conns", 10)
	viper.SetDefault("database.max_idle_conns", 2)
	viper.SetDefault("database.conn_max_lifetime", "300s")
	viper.SetDefault("database.conn_max_idle_time", "60s")

	// Redis
	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	// Telegram
	viper.SetDefault("telegram.bot_token", "")
	viper.SetDefault("telegram.chat_id", 0)

	// Telemetry
	viper.SetDefault("telemetry.enabled", false)
	viper.SetDefault("telemetry.otlp_endpoint", "http://localhost:4318")
	viper.SetDefault("telemetry.service_name", "pcr-tracker")
	viper.SetDefault("telemetry.service_version", "1.0.0")
	viper.SetDefault("telemetry.exporter", "otlp")
	viper.SetDefault("telemetry.sample_rate", 1.0)
	viper.SetDefault("telemetry.export_logs", false)
}
