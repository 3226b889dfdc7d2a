package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures the full configuration surface for the application.
type Config struct {
	App          AppConfig          `mapstructure:"app"`
	HTTP         HTTPConfig         `mapstructure:"http"`
	Postgres     PostgresConfig     `mapstructure:"postgres"`
	Scylla       ScyllaConfig       `mapstructure:"scylla"`
	Kafka        KafkaConfig        `mapstructure:"kafka"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Asynq        AsynqConfig        `mapstructure:"asynq"`
	Telemetry    TelemetryConfig    `mapstructure:"telemetry"`
	Scheduler    SchedulerConfig    `mapstructure:"scheduler"`
	Dedup        DedupConfig        `mapstructure:"dedup"`
	Outcome      OutcomeConfig      `mapstructure:"outcome"`
	CallProvider CallProviderConfig `mapstructure:"call_provider"`
	LLM          LLMConfig          `mapstructure:"llm"`
	SMTP         SMTPConfig         `mapstructure:"smtp"`
	SMS          SMSConfig          `mapstructure:"sms"`
	CRM          CRMConfig          `mapstructure:"crm"`
}

type AppConfig struct {
	Name    string `mapstructure:"name"`
	Env     string `mapstructure:"env"`
	Version string `mapstructure:"version"`
}

type HTTPConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

type PostgresConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

type ScyllaConfig struct {
	Hosts       []string      `mapstructure:"hosts"`
	Port        int           `mapstructure:"port"`
	Keyspace    string        `mapstructure:"keyspace"`
	Consistency string        `mapstructure:"consistency"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type KafkaConfig struct {
	Brokers         []string      `mapstructure:"brokers"`
	ClientID        string        `mapstructure:"client_id"`
	CallEventTopic  string        `mapstructure:"call_event_topic"`
	ConsumerGroupID string        `mapstructure:"consumer_group_id"`
	CommitInterval  time.Duration `mapstructure:"commit_interval"`
	Partitions      int           `mapstructure:"partitions"`
}

type RedisConfig struct {
	Address      string        `mapstructure:"address"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	MaxRetries   int           `mapstructure:"max_retries"`
}

// AsynqConfig configures the durable follow-up timers.
type AsynqConfig struct {
	Queue       string `mapstructure:"queue"`
	Concurrency int    `mapstructure:"concurrency"`
}

type TelemetryConfig struct {
	Endpoint        string        `mapstructure:"endpoint"`
	ServiceName     string        `mapstructure:"service_name"`
	SampleRatio     float64       `mapstructure:"sample_ratio"`
	TracingEnabled  bool          `mapstructure:"tracing_enabled"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type SchedulerConfig struct {
	TickInterval       time.Duration `mapstructure:"tick_interval"`
	TimeZone           string        `mapstructure:"time_zone"`
	MaxBatchSize       int           `mapstructure:"max_batch_size"`
	CallPacing         time.Duration `mapstructure:"call_pacing"`
	CallbackLookBehind time.Duration `mapstructure:"callback_look_behind"`
}

// Location resolves the configured time zone, falling back to UTC.
func (s SchedulerConfig) Location() *time.Location {
	if s.TimeZone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(s.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// DedupConfig holds the two independently tuned dedup windows.
type DedupConfig struct {
	EventWindow        time.Duration `mapstructure:"event_window"`
	NotificationWindow time.Duration `mapstructure:"notification_window"`
	KeyPrefix          string        `mapstructure:"key_prefix"`
}

// OutcomeConfig tunes the follow-up dates chosen by the resolver.
type OutcomeConfig struct {
	FallbackHour         int `mapstructure:"fallback_hour"`
	BusyOffsetDays       int `mapstructure:"busy_offset_days"`
	RescheduleOffsetDays int `mapstructure:"reschedule_offset_days"`
}

type CallProviderConfig struct {
	ProviderName   string            `mapstructure:"provider_name"`
	BaseURL        string            `mapstructure:"base_url"`
	APIKey         string            `mapstructure:"api_key"`
	FromNumber     string            `mapstructure:"from_number"`
	DefaultRegion  string            `mapstructure:"default_region"`
	RequestTimeout time.Duration     `mapstructure:"request_timeout"`
	Agents         map[string]string `mapstructure:"agents"`
	Prompts        map[string]string `mapstructure:"prompts"`
}

type LLMConfig struct {
	APIKey         string        `mapstructure:"api_key"`
	Model          string        `mapstructure:"model"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type SMTPConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	FromEmail      string        `mapstructure:"from_email"`
	FromName       string        `mapstructure:"from_name"`
	VerifyURL      string        `mapstructure:"verify_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type SMSConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	AccountSID     string        `mapstructure:"account_sid"`
	AuthToken      string        `mapstructure:"auth_token"`
	FromNumber     string        `mapstructure:"from_number"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type CRMConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// Load reads configuration from file and environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetEnvPrefix("LEADS")
	v.SetEnvKeyReplacer(NewEnvReplacer())
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: failed to read config file: %w", err)
	}

	cfg := new(Config)
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// NewEnvReplacer standardizes environment variable names.
func NewEnvReplacer() *strings.Replacer {
	return strings.NewReplacer(".", "_", "-", "_")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "lead-engagement")
	v.SetDefault("app.env", "development")
	v.SetDefault("http.port", 8080)
	v.SetDefault("kafka.call_event_topic", "call-events")
	v.SetDefault("kafka.consumer_group_id", "lead-engagement")
	v.SetDefault("kafka.partitions", 12)
	v.SetDefault("asynq.queue", "followup")
	v.SetDefault("asynq.concurrency", 4)
	v.SetDefault("scheduler.tick_interval", time.Minute)
	v.SetDefault("scheduler.time_zone", "UTC")
	v.SetDefault("scheduler.max_batch_size", 100)
	v.SetDefault("scheduler.call_pacing", 500*time.Millisecond)
	v.SetDefault("dedup.event_window", 80*time.Second)
	v.SetDefault("dedup.notification_window", 60*time.Second)
	v.SetDefault("dedup.key_prefix", "leads:dedup:")
	v.SetDefault("outcome.fallback_hour", 10)
	v.SetDefault("outcome.busy_offset_days", 2)
	v.SetDefault("outcome.reschedule_offset_days", 2)
	v.SetDefault("call_provider.provider_name", "mock")
	v.SetDefault("call_provider.default_region", "US")
	v.SetDefault("call_provider.request_timeout", 10*time.Second)
	v.SetDefault("llm.model", "gemini-2.0-flash")
	v.SetDefault("llm.request_timeout", 30*time.Second)
	v.SetDefault("smtp.request_timeout", 15*time.Second)
	v.SetDefault("sms.request_timeout", 10*time.Second)
	v.SetDefault("crm.request_timeout", 10*time.Second)
}
