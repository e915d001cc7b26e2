// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP server listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// DatabaseURL is the Postgres DSN for the mapping store.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or path to file.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	// JWTIssuer is the iss claim on session tokens.
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the aud claim on session tokens.
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// JWTSessionTTL is the session token lifetime (e.g. "1h").
	JWTSessionTTL string `mapstructure:"JWT_SESSION_TTL"`
	// BcryptCost is the bcrypt cost factor (4-31); default 12. Used by the email/password path.
	BcryptCost int `mapstructure:"BCRYPT_COST"`
	// BridgeIssuerDID is the DID the bridge uses as issuer on credentials it mints.
	BridgeIssuerDID string `mapstructure:"BRIDGE_ISSUER_DID"`
	// AllowUnverifiedIssuers is a comma-separated set of issuer DIDs whose
	// credentials skip verification during round-trip VC login. Empty in production.
	AllowUnverifiedIssuers string `mapstructure:"ALLOW_UNVERIFIED_ISSUERS"`
	// WalletSimDelay is how long simulated wallet operations stay pending before
	// a status poll reports them accepted (e.g. "3s").
	WalletSimDelay string `mapstructure:"WALLET_SIM_DELAY"`
	// CollaboratorTimeout bounds each DID/credential/wallet collaborator call (e.g. "5s").
	CollaboratorTimeout string `mapstructure:"COLLABORATOR_TIMEOUT"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
	// CORSAllowedOrigins is a comma-separated allowed-origin list for browsers.
	// Empty allows all origins (development default).
	CORSAllowedOrigins string `mapstructure:"CORS_ALLOWED_ORIGINS"`

	// OTLPEndpoint enables OpenTelemetry trace/metric export when set (e.g. http://localhost:4317).
	OTLPEndpoint string `mapstructure:"OTLP_ENDPOINT"`
	// OTLPInsecure forces plaintext OTLP export even for https endpoints.
	OTLPInsecure bool `mapstructure:"OTLP_INSECURE"`

	// Events (optional). When Kafka brokers are set, the bridge emits migration
	// lifecycle events to Kafka.
	// EventsKafkaBrokers is a comma-separated list of Kafka broker addresses.
	EventsKafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// EventsKafkaTopic is the Kafka topic for migration events (default bridge-migration-events).
	EventsKafkaTopic string `mapstructure:"EVENTS_KAFKA_TOPIC"`

	// Worker-only: Loki URL for the events worker to push logs (e.g. http://localhost:3100).
	LokiURL string `mapstructure:"LOKI_URL"`
	// KafkaGroupID is the consumer group ID for the events worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("JWT_ISSUER", "ssi-migration-bridge")
	v.SetDefault("JWT_AUDIENCE", "bridge-api")
	v.SetDefault("JWT_SESSION_TTL", "1h")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("BRIDGE_ISSUER_DID", "")
	v.SetDefault("ALLOW_UNVERIFIED_ISSUERS", "")
	v.SetDefault("WALLET_SIM_DELAY", "3s")
	v.SetDefault("COLLABORATOR_TIMEOUT", "5s")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "")
	v.SetDefault("OTLP_ENDPOINT", "")
	v.SetDefault("OTLP_INSECURE", false)
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("EVENTS_KAFKA_TOPIC", "bridge-migration-events")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("KAFKA_GROUP_ID", "bridge-events-worker")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}

	if cfg.Env == "production" && cfg.AllowUnverifiedIssuers != "" {
		return nil, errors.New("config: ALLOW_UNVERIFIED_ISSUERS must be empty when APP_ENV=production")
	}

	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}

	return &cfg, nil
}

// SessionTTL parses JWTSessionTTL as a time.Duration. Returns 1h if unset or invalid.
func (c *Config) SessionTTL() time.Duration {
	d, err := time.ParseDuration(c.JWTSessionTTL)
	if err != nil || d <= 0 {
		return time.Hour
	}
	return d
}

// WalletDelay parses WalletSimDelay as a time.Duration. Returns 3s if unset or invalid.
func (c *Config) WalletDelay() time.Duration {
	d, err := time.ParseDuration(c.WalletSimDelay)
	if err != nil || d < 0 {
		return 3 * time.Second
	}
	return d
}

// DependencyTimeout parses CollaboratorTimeout as a time.Duration. Returns 5s if unset or invalid.
func (c *Config) DependencyTimeout() time.Duration {
	d, err := time.ParseDuration(c.CollaboratorTimeout)
	if err != nil || d <= 0 {
		return 5 * time.Second
	}
	return d
}

// UnverifiedIssuerSet returns the issuer DIDs allowed to skip credential
// verification during round-trip VC login, as a set.
func (c *Config) UnverifiedIssuerSet() map[string]bool {
	out := map[string]bool{}
	if c == nil || c.AllowUnverifiedIssuers == "" {
		return out
	}
	for _, p := range strings.Split(c.AllowUnverifiedIssuers, ",") {
		if s := strings.TrimSpace(p); s != "" {
			out[s] = true
		}
	}
	return out
}

// CORSOrigins returns the allowed CORS origins from the comma-separated config.
func (c *Config) CORSOrigins() []string {
	if c == nil || c.CORSAllowedOrigins == "" {
		return nil
	}
	parts := strings.Split(c.CORSAllowedOrigins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// EventsKafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// Used to decide if event emission is enabled (non-empty list) and to create the producer.
func (c *Config) EventsKafkaBrokersList() []string {
	if c == nil || c.EventsKafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.EventsKafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
