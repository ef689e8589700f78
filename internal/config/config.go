package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Config holds all application configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Logger       LoggerConfig       `mapstructure:"logger"`
	Scoring      ScoringConfig      `mapstructure:"scoring"`
	Policy       PolicyConfig       `mapstructure:"policy"`
	Workflow     WorkflowConfig     `mapstructure:"workflow"`
	Escalation   EscalationConfig   `mapstructure:"escalation"`
	Rules        RulesConfig        `mapstructure:"rules"`
	Cache        CacheConfig        `mapstructure:"cache"`
	Notification NotificationConfig `mapstructure:"notification"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	BusyTimeout     time.Duration `mapstructure:"busy_timeout"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// ScoringConfig holds the history window and every detector knob.
// Money values are decimal strings.
type ScoringConfig struct {
	HistoryWindow time.Duration `mapstructure:"history_window"`
	HistoryLimit  int           `mapstructure:"history_limit"`

	Amount struct {
		RoundFloor      string `mapstructure:"round_floor"`
		RoundMultiple   string `mapstructure:"round_multiple"`
		RoundWeight     int    `mapstructure:"round_weight"`
		HighValue       string `mapstructure:"high_value"`
		HighValueWeight int    `mapstructure:"high_value_weight"`
		RepeatCount     int    `mapstructure:"repeat_count"`
		RepeatWeight    int    `mapstructure:"repeat_weight"`
		Cap             int    `mapstructure:"cap"`
	} `mapstructure:"amount"`

	Timing struct {
		WeekendWeight  int      `mapstructure:"weekend_weight"`
		Holidays       []string `mapstructure:"holidays"`
		OffHoursStart  int      `mapstructure:"off_hours_start"`
		OffHoursEnd    int      `mapstructure:"off_hours_end"`
		OffHoursWeight int      `mapstructure:"off_hours_weight"`
		StaleDays      int      `mapstructure:"stale_days"`
		StaleWeight    int      `mapstructure:"stale_weight"`
		Cap            int      `mapstructure:"cap"`
	} `mapstructure:"timing"`

	Frequency struct {
		Window          time.Duration `mapstructure:"window"`
		MaxClaims       int           `mapstructure:"max_claims"`
		FrequencyWeight int           `mapstructure:"frequency_weight"`
		Ceiling         string        `mapstructure:"ceiling"`
		Band            string        `mapstructure:"band"`
		GamingCount     int           `mapstructure:"gaming_count"`
		GamingWeight    int           `mapstructure:"gaming_weight"`
		Cap             int           `mapstructure:"cap"`
	} `mapstructure:"frequency"`

	Category struct {
		HighRisk          []string `mapstructure:"high_risk"`
		HighRiskWeight    int      `mapstructure:"high_risk_weight"`
		Lookback          int      `mapstructure:"lookback"`
		DistinctThreshold int      `mapstructure:"distinct_threshold"`
		SwitchingWeight   int      `mapstructure:"switching_weight"`
		Cap               int      `mapstructure:"cap"`
	} `mapstructure:"category"`

	Description struct {
		MinLength       int `mapstructure:"min_length"`
		VagueWeight     int `mapstructure:"vague_weight"`
		DuplicateCount  int `mapstructure:"duplicate_count"`
		DuplicateWeight int `mapstructure:"duplicate_weight"`
		Cap             int `mapstructure:"cap"`
	} `mapstructure:"description"`

	Receipt struct {
		MissingWeight int `mapstructure:"missing_weight"`
		Cap           int `mapstructure:"cap"`
	} `mapstructure:"receipt"`
}

// PolicyConfig holds the risk level boundaries.
// The missing-receipt reject override is fixed and has no setting.
type PolicyConfig struct {
	Medium                int  `mapstructure:"medium"`
	High                  int  `mapstructure:"high"`
	Critical              int  `mapstructure:"critical"`
	Investigate           int  `mapstructure:"investigate"`
	InvestigateOnCritical bool `mapstructure:"investigate_on_critical"`
}

// WorkflowConfig holds decision and authorization settings
type WorkflowConfig struct {
	AutoReject struct {
		Enabled     bool          `mapstructure:"enabled"`
		GracePeriod time.Duration `mapstructure:"grace_period"`
	} `mapstructure:"auto_reject"`
	Reviewers          []ReviewerConfig `mapstructure:"reviewers"`
	AdminRole          string           `mapstructure:"admin_role"`
	InitialAssignee    string           `mapstructure:"initial_assignee"`
	RescoreConcurrency int              `mapstructure:"rescore_concurrency"`
}

// ReviewerConfig lists the roles of one reviewer
type ReviewerConfig struct {
	ID    string   `mapstructure:"id"`
	Roles []string `mapstructure:"roles"`
}

// EscalationConfig holds the background sweep settings
type EscalationConfig struct {
	Enabled            bool          `mapstructure:"enabled"`
	Interval           time.Duration `mapstructure:"interval"`
	AutoRejectInterval time.Duration `mapstructure:"auto_reject_interval"`
	PassTimeout        time.Duration `mapstructure:"pass_timeout"`
	BatchSize          int           `mapstructure:"batch_size"`
}

// RulesConfig selects where approval and escalation rules come from
type RulesConfig struct {
	Source string `mapstructure:"source"` // file | database
	Path   string `mapstructure:"path"`
	Watch  bool   `mapstructure:"watch"`
}

// CacheConfig holds review cache configuration
type CacheConfig struct {
	Type  string        `mapstructure:"type"` // memory | redis | none
	TTL   time.Duration `mapstructure:"ttl"`
	Size  int           `mapstructure:"size"`
	Redis struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
	} `mapstructure:"redis"`
}

// NotificationConfig holds the event sinks
type NotificationConfig struct {
	DeliveryTimeout time.Duration `mapstructure:"delivery_timeout"`
	Log             struct {
		Enabled bool `mapstructure:"enabled"`
	} `mapstructure:"log"`
	Lark  LarkConfig  `mapstructure:"lark"`
	Kafka KafkaConfig `mapstructure:"kafka"`
}

// LarkConfig holds Lark API configuration
type LarkConfig struct {
	Enabled       bool             `mapstructure:"enabled"`
	AppID         string           `mapstructure:"app_id"`
	AppSecret     string           `mapstructure:"app_secret"`
	ReceiveIDType string           `mapstructure:"receive_id_type"`
	RoleChats     []RoleChatConfig `mapstructure:"role_chats"`
}

// RoleChatConfig routes a role to a Lark group chat
type RoleChatConfig struct {
	Role   string `mapstructure:"role"`
	ChatID string `mapstructure:"chat_id"`
}

// KafkaConfig holds the event producer configuration
type KafkaConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
}

// MetricsConfig holds the Prometheus endpoint configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Load reads an optional .env file, then the YAML config, then environment overrides.
// Env variables use the CLAIMS_ prefix with underscores for dots (CLAIMS_SERVER_PORT).
func Load(configPath string, envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := gotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("CLAIMS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := bindEnvVars(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	// Database defaults
	v.SetDefault("database.path", "data/claims.db")
	v.SetDefault("database.max_open_conns", 1)
	v.SetDefault("database.max_idle_conns", 1)
	v.SetDefault("database.conn_max_lifetime", 0)
	v.SetDefault("database.busy_timeout", 5*time.Second)

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")

	// Scoring defaults
	v.SetDefault("scoring.history_window", 90*24*time.Hour)
	v.SetDefault("scoring.history_limit", 200)
	v.SetDefault("scoring.amount.round_floor", "100")
	v.SetDefault("scoring.amount.round_multiple", "100")
	v.SetDefault("scoring.amount.round_weight", 10)
	v.SetDefault("scoring.amount.high_value", "1000")
	v.SetDefault("scoring.amount.high_value_weight", 20)
	v.SetDefault("scoring.amount.repeat_count", 3)
	v.SetDefault("scoring.amount.repeat_weight", 25)
	v.SetDefault("scoring.amount.cap", 40)
	v.SetDefault("scoring.timing.weekend_weight", 5)
	v.SetDefault("scoring.timing.holidays", []string{})
	v.SetDefault("scoring.timing.off_hours_start", 22)
	v.SetDefault("scoring.timing.off_hours_end", 6)
	v.SetDefault("scoring.timing.off_hours_weight", 5)
	v.SetDefault("scoring.timing.stale_days", 60)
	v.SetDefault("scoring.timing.stale_weight", 15)
	v.SetDefault("scoring.timing.cap", 20)
	v.SetDefault("scoring.frequency.window", 30*24*time.Hour)
	v.SetDefault("scoring.frequency.max_claims", 10)
	v.SetDefault("scoring.frequency.frequency_weight", 15)
	v.SetDefault("scoring.frequency.ceiling", "5000")
	v.SetDefault("scoring.frequency.band", "0.10")
	v.SetDefault("scoring.frequency.gaming_count", 3)
	v.SetDefault("scoring.frequency.gaming_weight", 45)
	v.SetDefault("scoring.frequency.cap", 45)
	v.SetDefault("scoring.category.high_risk", []string{"Entertainment", "Gifts", "Other"})
	v.SetDefault("scoring.category.high_risk_weight", 20)
	v.SetDefault("scoring.category.lookback", 10)
	v.SetDefault("scoring.category.distinct_threshold", 5)
	v.SetDefault("scoring.category.switching_weight", 10)
	v.SetDefault("scoring.category.cap", 25)
	v.SetDefault("scoring.description.min_length", 10)
	v.SetDefault("scoring.description.vague_weight", 10)
	v.SetDefault("scoring.description.duplicate_count", 2)
	v.SetDefault("scoring.description.duplicate_weight", 20)
	v.SetDefault("scoring.description.cap", 25)
	v.SetDefault("scoring.receipt.missing_weight", 50)
	v.SetDefault("scoring.receipt.cap", 50)

	// Policy defaults
	v.SetDefault("policy.medium", 25)
	v.SetDefault("policy.high", 50)
	v.SetDefault("policy.critical", 90)
	v.SetDefault("policy.investigate", 75)
	v.SetDefault("policy.investigate_on_critical", false)

	// Workflow defaults
	v.SetDefault("workflow.auto_reject.enabled", false)
	v.SetDefault("workflow.auto_reject.grace_period", 48*time.Hour)
	v.SetDefault("workflow.admin_role", "admin")
	v.SetDefault("workflow.initial_assignee", "")
	v.SetDefault("workflow.rescore_concurrency", 8)

	// Escalation defaults
	v.SetDefault("escalation.enabled", true)
	v.SetDefault("escalation.interval", 15*time.Minute)
	v.SetDefault("escalation.auto_reject_interval", time.Hour)
	v.SetDefault("escalation.pass_timeout", 5*time.Minute)
	v.SetDefault("escalation.batch_size", 500)

	// Rules defaults
	v.SetDefault("rules.source", "file")
	v.SetDefault("rules.path", "configs/rules.yaml")
	v.SetDefault("rules.watch", true)

	// Cache defaults
	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.ttl", 5*time.Minute)
	v.SetDefault("cache.size", 10000)
	v.SetDefault("cache.redis.addr", "localhost:6379")
	v.SetDefault("cache.redis.db", 0)

	// Notification defaults
	v.SetDefault("notification.delivery_timeout", 10*time.Second)
	v.SetDefault("notification.log.enabled", true)
	v.SetDefault("notification.lark.enabled", false)
	v.SetDefault("notification.lark.receive_id_type", "open_id")
	v.SetDefault("notification.kafka.enabled", false)
	v.SetDefault("notification.kafka.topic", "claim-events")
	v.SetDefault("notification.kafka.batch_timeout", 50*time.Millisecond)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// bindEnvVars binds well-known credential variables
func bindEnvVars(v *viper.Viper) error {
	bindings := map[string]string{
		"notification.lark.app_id":     "LARK_APP_ID",
		"notification.lark.app_secret": "LARK_APP_SECRET",
		"notification.kafka.brokers":   "KAFKA_BROKERS",
		"cache.redis.addr":             "REDIS_ADDR",
		"cache.redis.password":         "REDIS_PASSWORD",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, "CLAIMS_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("server.mode must be debug, release or test, got %q", c.Server.Mode)
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	switch c.Logger.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logger.format must be json or console, got %q", c.Logger.Format)
	}

	if c.Scoring.HistoryWindow <= 0 {
		return fmt.Errorf("scoring.history_window must be positive")
	}
	if _, err := c.RiskConfig(); err != nil {
		return err
	}
	if err := c.PolicyConfig().Validate(); err != nil {
		return fmt.Errorf("policy: %w", err)
	}

	if c.Workflow.AutoReject.Enabled && c.Workflow.AutoReject.GracePeriod < 0 {
		return fmt.Errorf("workflow.auto_reject.grace_period must not be negative")
	}
	for i, r := range c.Workflow.Reviewers {
		if strings.TrimSpace(r.ID) == "" {
			return fmt.Errorf("workflow.reviewers[%d].id is required", i)
		}
	}

	if c.Escalation.Enabled && c.Escalation.Interval <= 0 {
		return fmt.Errorf("escalation.interval must be positive")
	}
	if c.Workflow.AutoReject.Enabled && c.Escalation.AutoRejectInterval <= 0 {
		return fmt.Errorf("escalation.auto_reject_interval must be positive")
	}

	switch c.Rules.Source {
	case "file":
		if c.Rules.Path == "" {
			return fmt.Errorf("rules.path is required when rules.source is file")
		}
	case "database":
	default:
		return fmt.Errorf("rules.source must be file or database, got %q", c.Rules.Source)
	}

	switch c.Cache.Type {
	case "memory", "redis", "none":
	default:
		return fmt.Errorf("cache.type must be memory, redis or none, got %q", c.Cache.Type)
	}

	if c.Notification.Lark.Enabled {
		if c.Notification.Lark.AppID == "" {
			return fmt.Errorf("notification.lark.app_id is required")
		}
		if c.Notification.Lark.AppSecret == "" {
			return fmt.Errorf("notification.lark.app_secret is required")
		}
	}
	if c.Notification.Kafka.Enabled {
		if len(c.Notification.Kafka.Brokers) == 0 {
			return fmt.Errorf("notification.kafka.brokers is required")
		}
		if c.Notification.Kafka.Topic == "" {
			return fmt.Errorf("notification.kafka.topic is required")
		}
	}

	return nil
}
