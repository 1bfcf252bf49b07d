package bootstrap

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config is the resolved runtime configuration for the affiliation service.
type Config struct {
	ServiceID string

	HTTPPort int
	GRPCPort int

	DatabaseURL string
	RedisURL    string

	JWTPrivateKeyPEM  string
	JWTPublicKeyPEM   string
	JWTKeyID          string
	JWTIssuer         string
	AllowEphemeralJWT bool

	BcryptCost int

	AccessTokenTTL       time.Duration
	RefreshTokenTTL      time.Duration
	LockoutDuration      time.Duration
	FailedLoginThreshold int

	AffiliationBaseURL string
	CommissionRate     decimal.Decimal
	CurrencyLabel      string

	MailEnabled     bool
	MailHost        string
	MailPort        int
	MailUsername    string
	MailPassword    string
	MailFromName    string
	MailFromAddress string
	MailUseTLS      bool

	KafkaBrokers     []string
	KafkaTopicPrefix string

	ReceiptDir      string
	MaxReceiptBytes int64

	DashboardCacheTTL time.Duration
	IntakeRateLimit   int
	IntakeRateWindow  time.Duration
	IdempotencyTTL    time.Duration

	// TrustProxyHeaders lets X-Forwarded-For / X-Real-IP replace the peer
	// address. Enable only behind a proxy that overwrites them.
	TrustProxyHeaders bool

	MaxDBConns         int32
	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxClaimTTL     time.Duration
	OutboxMaxRetries   int
}

// configFile mirrors configs/default.yaml.
type configFile struct {
	Service struct {
		ID                string `yaml:"id"`
		HTTPPort          int    `yaml:"http_port"`
		GRPCPort          int    `yaml:"grpc_port"`
		TrustProxyHeaders *bool  `yaml:"trust_proxy_headers"`
	} `yaml:"service"`
	Dependencies struct {
		PostgresURL  string   `yaml:"postgres_url"`
		RedisURL     string   `yaml:"redis_url"`
		KafkaBrokers []string `yaml:"kafka_brokers"`
	} `yaml:"dependencies"`
	Affiliation struct {
		BaseURL        string `yaml:"base_url"`
		CommissionRate string `yaml:"commission_rate"`
		Currency       string `yaml:"currency"`
		ReceiptDir     string `yaml:"receipt_dir"`
	} `yaml:"affiliation"`
	Mail struct {
		Enabled     *bool  `yaml:"enabled"`
		Host        string `yaml:"host"`
		Port        int    `yaml:"port"`
		FromName    string `yaml:"from_name"`
		FromAddress string `yaml:"from_address"`
		UseTLS      *bool  `yaml:"use_tls"`
	} `yaml:"mail"`
	Events struct {
		TopicPrefix string `yaml:"topic_prefix"`
	} `yaml:"events"`
}

// LoadConfig resolves configuration in priority order: defaults -> file -> env.
func LoadConfig(path string) (Config, error) {
	cfg := Config{
		ServiceID:            "Affiliation-Service",
		HTTPPort:             8080,
		GRPCPort:             9090,
		JWTKeyID:             "affiliation-key-1",
		JWTIssuer:            "affiliation-service",
		AllowEphemeralJWT:    true,
		BcryptCost:           12,
		AccessTokenTTL:       24 * time.Hour,
		RefreshTokenTTL:      7 * 24 * time.Hour,
		LockoutDuration:      30 * time.Minute,
		FailedLoginThreshold: 5,
		AffiliationBaseURL:   "http://localhost:8000",
		CommissionRate:       decimal.NewFromInt(10),
		CurrencyLabel:        "F CFA",
		MailPort:             587,
		MailFromName:         "Affiliation",
		MailUseTLS:           true,
		KafkaTopicPrefix:     "affiliation",
		ReceiptDir:           "media",
		MaxReceiptBytes:      5 << 20,
		DashboardCacheTTL:    time.Minute,
		IntakeRateLimit:      20,
		IntakeRateWindow:     time.Minute,
		IdempotencyTTL:       24 * time.Hour,
		MaxDBConns:           20,
		OutboxPollInterval:   2 * time.Second,
		OutboxBatchSize:      100,
		OutboxClaimTTL:       30 * time.Second,
		OutboxMaxRetries:     5,
	}

	raw, err := os.ReadFile(path)
	if err == nil {
		var f configFile
		if unmarshalErr := yaml.Unmarshal(raw, &f); unmarshalErr != nil {
			return Config{}, fmt.Errorf("parse config file: %w", unmarshalErr)
		}
		if err := cfg.applyFile(f); err != nil {
			return Config{}, err
		}
	}

	cfg.DatabaseURL = envOrDefault("DB_URL", envOrDefault("POSTGRES_URL", cfg.DatabaseURL))
	cfg.RedisURL = envOrDefault("REDIS_URL", cfg.RedisURL)
	cfg.JWTPrivateKeyPEM = envOrDefault("JWT_PRIVATE_KEY_PEM", cfg.JWTPrivateKeyPEM)
	cfg.JWTPublicKeyPEM = envOrDefault("JWT_PUBLIC_KEY_PEM", cfg.JWTPublicKeyPEM)
	cfg.JWTKeyID = envOrDefault("JWT_KEY_ID", cfg.JWTKeyID)
	cfg.JWTIssuer = envOrDefault("JWT_ISSUER", cfg.JWTIssuer)
	cfg.AllowEphemeralJWT = envBool("JWT_ALLOW_EPHEMERAL", cfg.AllowEphemeralJWT)
	cfg.AffiliationBaseURL = strings.TrimRight(envOrDefault("AFFILIATION_BASE_URL", cfg.AffiliationBaseURL), "/")
	cfg.CurrencyLabel = envOrDefault("CURRENCY_LABEL", cfg.CurrencyLabel)
	if rawRate := os.Getenv("COMMISSION_RATE"); rawRate != "" {
		rate, err := parseRate(rawRate)
		if err != nil {
			return Config{}, fmt.Errorf("COMMISSION_RATE: %w", err)
		}
		cfg.CommissionRate = rate
	}

	cfg.MailEnabled = envBool("MAIL_ENABLED", cfg.MailEnabled)
	cfg.MailHost = envOrDefault("MAIL_HOST", cfg.MailHost)
	cfg.MailPort = envInt("MAIL_PORT", cfg.MailPort)
	cfg.MailUsername = envOrDefault("MAIL_USERNAME", cfg.MailUsername)
	cfg.MailPassword = envOrDefault("MAIL_PASSWORD", cfg.MailPassword)
	cfg.MailFromName = envOrDefault("MAIL_FROM_NAME", cfg.MailFromName)
	cfg.MailFromAddress = envOrDefault("MAIL_FROM_ADDRESS", cfg.MailFromAddress)
	cfg.MailUseTLS = envBool("MAIL_USE_TLS", cfg.MailUseTLS)

	cfg.KafkaBrokers = envCSV("KAFKA_BROKERS", cfg.KafkaBrokers)
	cfg.KafkaTopicPrefix = envOrDefault("KAFKA_TOPIC_PREFIX", cfg.KafkaTopicPrefix)

	cfg.ReceiptDir = envOrDefault("RECEIPT_DIR", cfg.ReceiptDir)
	cfg.MaxReceiptBytes = int64(envInt("MAX_RECEIPT_BYTES", int(cfg.MaxReceiptBytes)))

	cfg.TrustProxyHeaders = envBool("TRUST_PROXY_HEADERS", cfg.TrustProxyHeaders)
	cfg.HTTPPort = envInt("HTTP_PORT", cfg.HTTPPort)
	cfg.GRPCPort = envInt("GRPC_PORT", cfg.GRPCPort)
	cfg.BcryptCost = envInt("BCRYPT_ROUNDS", cfg.BcryptCost)
	cfg.FailedLoginThreshold = envInt("FAILED_LOGIN_THRESHOLD", cfg.FailedLoginThreshold)
	cfg.MaxDBConns = int32(envInt("DB_MAX_CONNS", int(cfg.MaxDBConns)))
	cfg.IntakeRateLimit = envInt("INTAKE_RATE_LIMIT", cfg.IntakeRateLimit)

	cfg.AccessTokenTTL = time.Duration(envInt("ACCESS_TOKEN_HOURS", int(cfg.AccessTokenTTL.Hours()))) * time.Hour
	cfg.RefreshTokenTTL = time.Duration(envInt("REFRESH_TOKEN_DAYS", int(cfg.RefreshTokenTTL.Hours()/24))) * 24 * time.Hour
	cfg.LockoutDuration = time.Duration(envInt("ACCOUNT_LOCKOUT_MINUTES", int(cfg.LockoutDuration.Minutes()))) * time.Minute
	cfg.DashboardCacheTTL = time.Duration(envInt("DASHBOARD_CACHE_SECONDS", int(cfg.DashboardCacheTTL.Seconds()))) * time.Second
	cfg.IntakeRateWindow = time.Duration(envInt("INTAKE_RATE_WINDOW_SECONDS", int(cfg.IntakeRateWindow.Seconds()))) * time.Second
	cfg.IdempotencyTTL = time.Duration(envInt("IDEMPOTENCY_TTL_HOURS", int(cfg.IdempotencyTTL.Hours()))) * time.Hour
	cfg.OutboxPollInterval = time.Duration(envInt("OUTBOX_POLL_SECONDS", int(cfg.OutboxPollInterval.Seconds()))) * time.Second
	cfg.OutboxBatchSize = envInt("OUTBOX_BATCH_SIZE", cfg.OutboxBatchSize)
	cfg.OutboxClaimTTL = time.Duration(envInt("OUTBOX_CLAIM_TTL_SECONDS", int(cfg.OutboxClaimTTL.Seconds()))) * time.Second
	cfg.OutboxMaxRetries = envInt("OUTBOX_MAX_RETRIES", cfg.OutboxMaxRetries)

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("missing DB_URL/POSTGRES_URL")
	}
	if cfg.RedisURL == "" {
		return Config{}, fmt.Errorf("missing REDIS_URL")
	}
	if (cfg.JWTPrivateKeyPEM == "" || cfg.JWTPublicKeyPEM == "") && !cfg.AllowEphemeralJWT {
		return Config{}, fmt.Errorf("missing JWT_PRIVATE_KEY_PEM or JWT_PUBLIC_KEY_PEM")
	}
	if cfg.MailEnabled && (cfg.MailHost == "" || cfg.MailFromAddress == "") {
		return Config{}, fmt.Errorf("mail enabled but MAIL_HOST or MAIL_FROM_ADDRESS missing")
	}

	return cfg, nil
}

func (cfg *Config) applyFile(f configFile) error {
	if f.Service.ID != "" {
		cfg.ServiceID = f.Service.ID
	}
	if f.Service.HTTPPort > 0 {
		cfg.HTTPPort = f.Service.HTTPPort
	}
	if f.Service.GRPCPort > 0 {
		cfg.GRPCPort = f.Service.GRPCPort
	}
	if f.Service.TrustProxyHeaders != nil {
		cfg.TrustProxyHeaders = *f.Service.TrustProxyHeaders
	}
	if f.Dependencies.PostgresURL != "" {
		cfg.DatabaseURL = f.Dependencies.PostgresURL
	}
	if f.Dependencies.RedisURL != "" {
		cfg.RedisURL = f.Dependencies.RedisURL
	}
	if len(f.Dependencies.KafkaBrokers) > 0 {
		cfg.KafkaBrokers = f.Dependencies.KafkaBrokers
	}
	if f.Affiliation.BaseURL != "" {
		cfg.AffiliationBaseURL = f.Affiliation.BaseURL
	}
	if f.Affiliation.CommissionRate != "" {
		rate, err := parseRate(f.Affiliation.CommissionRate)
		if err != nil {
			return fmt.Errorf("affiliation.commission_rate: %w", err)
		}
		cfg.CommissionRate = rate
	}
	if f.Affiliation.Currency != "" {
		cfg.CurrencyLabel = f.Affiliation.Currency
	}
	if f.Affiliation.ReceiptDir != "" {
		cfg.ReceiptDir = f.Affiliation.ReceiptDir
	}
	if f.Mail.Enabled != nil {
		cfg.MailEnabled = *f.Mail.Enabled
	}
	if f.Mail.Host != "" {
		cfg.MailHost = f.Mail.Host
	}
	if f.Mail.Port > 0 {
		cfg.MailPort = f.Mail.Port
	}
	if f.Mail.FromName != "" {
		cfg.MailFromName = f.Mail.FromName
	}
	if f.Mail.FromAddress != "" {
		cfg.MailFromAddress = f.Mail.FromAddress
	}
	if f.Mail.UseTLS != nil {
		cfg.MailUseTLS = *f.Mail.UseTLS
	}
	if f.Events.TopicPrefix != "" {
		cfg.KafkaTopicPrefix = f.Events.TopicPrefix
	}
	return nil
}

func parseRate(raw string) (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Decimal{}, err
	}
	if !rate.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("rate must be positive, got %s", raw)
	}
	if !rate.Equal(rate.Round(2)) {
		return decimal.Decimal{}, fmt.Errorf("rate allows at most 2 decimal places, got %s", raw)
	}
	return rate, nil
}

func envOrDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

// envInt parses integer env vars with safe fallback on empty/invalid values.
func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func envBool(name string, fallback bool) bool {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return fallback
	}
}

func envCSV(name string, fallback []string) []string {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	parts := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		parts = append(parts, trimmed)
	}
	if len(parts) == 0 {
		return fallback
	}
	return parts
}
