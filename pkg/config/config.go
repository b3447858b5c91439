package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

const (
	DefaultListenAddress   = ":5000"
	DefaultSMTPHost        = "smtp.gmail.com"
	DefaultSMTPPort        = 587
	DefaultSenderName      = "MonCoffretElec"
	DefaultFontPath        = "fonts/NotoSans-Regular.ttf"
	DefaultLogoPath        = "logo.png"
	DefaultMaxInFlight     = 8
	DefaultQueueTimeout    = 30 * time.Second
	DefaultRateLimit       = 5
	DefaultRateLimitBurst  = 10
	DefaultDedupTTL        = 10 * time.Minute
	DefaultShutdownTimeout = 15 * time.Second
	DefaultAuditQueueSize  = 1000
	DefaultAuditTopic      = "coffret-audit"
)

// ErrMailCredentialsMissing is returned by Check when mail credentials are
// required but not configured.
var ErrMailCredentialsMissing = errors.New("SMTP_USER or SMTP_PASS not set")

type Server struct {
	ListenAddress string `yaml:"listenAddress"`
	// AllowedOrigins lists the CORS origins accepted by the API. Empty means any origin.
	AllowedOrigins  []string      `yaml:"allowedOrigins"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	TrustedProxies  []string      `yaml:"trustedProxies"`
}

type Mail struct {
	Host               string `yaml:"host"`
	Port               int    `yaml:"port"`
	User               string `yaml:"user"`
	Password           string `yaml:"password"`
	InsecureSkipVerify bool   `yaml:"insecureSkipVerify"`
	SenderAddress      string `yaml:"senderAddress"`
	SenderName         string `yaml:"senderName"`
	// OperatorAddress receives a copy of every submission.
	OperatorAddress string `yaml:"operatorAddress"`
}

type Assets struct {
	FontPath string `yaml:"fontPath"`
	// BoldFontPath is optional. Without it section labels reuse FontPath.
	BoldFontPath string `yaml:"boldFontPath"`
	LogoPath     string `yaml:"logoPath"`
	// OutputDir holds the transient PDF between render and dispatch.
	OutputDir string `yaml:"outputDir"`
}

type Limits struct {
	MaxInFlight int `yaml:"maxInFlight"`
	// QueueTimeout bounds how long a submission waits for a free slot.
	QueueTimeout time.Duration `yaml:"queueTimeout"`
	RatePerIP    float64       `yaml:"ratePerIP"`
	Burst        int           `yaml:"burst"`
}

type Dedup struct {
	// RedisURL enables the duplicate submission guard when set.
	RedisURL string        `yaml:"redisURL"`
	TTL      time.Duration `yaml:"ttl"`
}

type Frontend struct {
	// Dir optionally points at a built wizard bundle served by the API.
	Dir string `yaml:"dir"`
}

type Telemetry struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	Insecure     bool    `yaml:"insecure"`
	SamplingRate float64 `yaml:"samplingRate"`
}

type Kafka struct {
	Brokers            []string `yaml:"brokers"`
	Topic              string   `yaml:"topic"`
	TLS                bool     `yaml:"tls"`
	InsecureSkipVerify bool     `yaml:"insecureSkipVerify"`
	SASLMechanism      string   `yaml:"saslMechanism"`
	Username           string   `yaml:"username"`
	Password           string   `yaml:"password"`
}

type Audit struct {
	// Enabled writes one audit event per submission to the log. Kafka is
	// added as a second sink when brokers are configured.
	Enabled   bool  `yaml:"enabled"`
	QueueSize int   `yaml:"queueSize"`
	Kafka     Kafka `yaml:"kafka"`
}

type Config struct {
	Server    Server    `yaml:"server"`
	Mail      Mail      `yaml:"mail"`
	Assets    Assets    `yaml:"assets"`
	Limits    Limits    `yaml:"limits"`
	Dedup     Dedup     `yaml:"dedup"`
	Frontend  Frontend  `yaml:"frontend"`
	Telemetry Telemetry `yaml:"telemetry"`
	Audit     Audit     `yaml:"audit"`
}

// Load builds the configuration. A .env file in the working directory is
// loaded first if present (existing environment variables win). If
// configPath is non-empty the YAML file is read, then environment variables
// override individual fields. The config file path can also be provided via
// COFFRET_CONFIG_PATH.
func Load(configPath ...string) (Config, error) {
	var config Config

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return config, fmt.Errorf("loading .env file: %w", err)
	}

	var path string
	if len(configPath) > 0 && configPath[0] != "" {
		path = configPath[0]
	} else {
		path = os.Getenv("COFFRET_CONFIG_PATH")
	}

	if path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return config, fmt.Errorf("trying to open coffret config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(content, &config); err != nil {
			return config, fmt.Errorf("error unmarshaling YAML %s: %w", path, err)
		}
	}

	config.applyEnv()
	return config, nil
}

func (c *Config) applyEnv() {
	if port := os.Getenv("PORT"); port != "" {
		c.Server.ListenAddress = ":" + strings.TrimPrefix(port, ":")
	}
	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		c.Server.AllowedOrigins = splitList(origins)
	}

	c.Mail.Host = envString("SMTP_HOST", c.Mail.Host)
	c.Mail.Port = envInt("SMTP_PORT", c.Mail.Port)
	c.Mail.User = envString("SMTP_USER", c.Mail.User)
	c.Mail.Password = envString("SMTP_PASS", c.Mail.Password)
	c.Mail.SenderAddress = envString("SMTP_SENDER_ADDRESS", c.Mail.SenderAddress)
	c.Mail.SenderName = envString("SMTP_SENDER_NAME", c.Mail.SenderName)
	c.Mail.OperatorAddress = envString("MY_PRO_EMAIL", c.Mail.OperatorAddress)
	c.Mail.InsecureSkipVerify = envBool("SMTP_INSECURE_SKIP_VERIFY", c.Mail.InsecureSkipVerify)

	c.Assets.FontPath = envString("FONT_PATH", c.Assets.FontPath)
	c.Assets.BoldFontPath = envString("BOLD_FONT_PATH", c.Assets.BoldFontPath)
	c.Assets.LogoPath = envString("LOGO_PATH", c.Assets.LogoPath)
	c.Assets.OutputDir = envString("OUTPUT_DIR", c.Assets.OutputDir)

	c.Limits.MaxInFlight = envInt("MAX_IN_FLIGHT", c.Limits.MaxInFlight)
	c.Dedup.RedisURL = envString("REDIS_URL", c.Dedup.RedisURL)
	c.Frontend.Dir = envString("FRONTEND_DIR", c.Frontend.Dir)

	c.Telemetry.Enabled = envBool("OTEL_ENABLED", c.Telemetry.Enabled)
	c.Telemetry.Exporter = envString("OTEL_EXPORTER", c.Telemetry.Exporter)
	c.Telemetry.Endpoint = envString("OTEL_EXPORTER_OTLP_ENDPOINT", c.Telemetry.Endpoint)

	c.Audit.Enabled = envBool("AUDIT_ENABLED", c.Audit.Enabled)
	if brokers := os.Getenv("AUDIT_KAFKA_BROKERS"); brokers != "" {
		c.Audit.Kafka.Brokers = splitList(brokers)
	}
	c.Audit.Kafka.Topic = envString("AUDIT_KAFKA_TOPIC", c.Audit.Kafka.Topic)
	c.Audit.Kafka.SASLMechanism = envString("AUDIT_KAFKA_SASL_MECHANISM", c.Audit.Kafka.SASLMechanism)
	c.Audit.Kafka.Username = envString("AUDIT_KAFKA_USERNAME", c.Audit.Kafka.Username)
	c.Audit.Kafka.Password = envString("AUDIT_KAFKA_PASSWORD", c.Audit.Kafka.Password)
}

// Defaults fills every unset field with its default value.
func (c *Config) Defaults() {
	if c.Server.ListenAddress == "" {
		c.Server.ListenAddress = DefaultListenAddress
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.Mail.Host == "" {
		c.Mail.Host = DefaultSMTPHost
	}
	if c.Mail.Port <= 0 {
		c.Mail.Port = DefaultSMTPPort
	}
	if c.Mail.SenderAddress == "" {
		c.Mail.SenderAddress = c.Mail.User
	}
	if c.Mail.SenderName == "" {
		c.Mail.SenderName = DefaultSenderName
	}
	if c.Mail.OperatorAddress == "" {
		c.Mail.OperatorAddress = c.Mail.User
	}
	if c.Assets.FontPath == "" {
		c.Assets.FontPath = DefaultFontPath
	}
	if c.Assets.LogoPath == "" {
		c.Assets.LogoPath = DefaultLogoPath
	}
	if c.Assets.OutputDir == "" {
		c.Assets.OutputDir = os.TempDir()
	}
	if c.Limits.MaxInFlight <= 0 {
		c.Limits.MaxInFlight = DefaultMaxInFlight
	}
	if c.Limits.QueueTimeout <= 0 {
		c.Limits.QueueTimeout = DefaultQueueTimeout
	}
	if c.Limits.RatePerIP <= 0 {
		c.Limits.RatePerIP = DefaultRateLimit
	}
	if c.Limits.Burst <= 0 {
		c.Limits.Burst = DefaultRateLimitBurst
	}
	if c.Dedup.TTL <= 0 {
		c.Dedup.TTL = DefaultDedupTTL
	}
	if c.Telemetry.Exporter == "" {
		c.Telemetry.Exporter = "otlp"
	}
	if c.Telemetry.SamplingRate == 0 {
		c.Telemetry.SamplingRate = 1.0
	}
	if c.Audit.QueueSize <= 0 {
		c.Audit.QueueSize = DefaultAuditQueueSize
	}
	if len(c.Audit.Kafka.Brokers) > 0 && c.Audit.Kafka.Topic == "" {
		c.Audit.Kafka.Topic = DefaultAuditTopic
	}
}

// MailConfigured reports whether SMTP credentials are present.
func (c Config) MailConfigured() bool {
	return c.Mail.User != "" && c.Mail.Password != ""
}

// Check returns human readable warnings about a configuration that will
// start but misbehave at request time. When requireMail is set, missing
// credentials are returned as ErrMailCredentialsMissing instead of a warning.
func (c Config) Check(requireMail bool) ([]string, error) {
	var warnings []string
	if !c.MailConfigured() {
		if requireMail {
			return nil, ErrMailCredentialsMissing
		}
		warnings = append(warnings, "SMTP_USER or SMTP_PASS not set: every submission will fail at send time")
	}
	if c.Mail.OperatorAddress == "" {
		warnings = append(warnings, "no operator address configured (MY_PRO_EMAIL): operator notifications will fail")
	}
	if _, err := os.Stat(c.Assets.FontPath); err != nil {
		warnings = append(warnings, fmt.Sprintf("font not found at %s: falling back to built-in Helvetica", c.Assets.FontPath))
	}
	if _, err := os.Stat(c.Assets.LogoPath); err != nil {
		warnings = append(warnings, fmt.Sprintf("logo not found at %s: documents will show a placeholder", c.Assets.LogoPath))
	}
	if len(c.Audit.Kafka.Brokers) > 0 && !c.Audit.Enabled {
		warnings = append(warnings, "audit Kafka brokers configured but audit is disabled (AUDIT_ENABLED)")
	}
	return warnings, nil
}

func envString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
