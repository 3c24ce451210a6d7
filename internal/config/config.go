// Package config loads engine configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the full engine configuration.
type Config struct {
	ServiceName     string        `env:"SERVICE_NAME" envDefault:"steem-patron-bot"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat       string        `env:"LOG_FORMAT" envDefault:"text"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	Steem        SteemConfig        `envPrefix:"STEEM_"`
	Registration RegistrationConfig `envPrefix:"REGISTRATION_"`
	Curation     CurationConfig     `envPrefix:"CURATION_"`
	Reconcile    ReconcileConfig    `envPrefix:"RECONCILE_"`

	Postgres   PostgresConfig   `envPrefix:"POSTGRES_"`
	ClickHouse ClickHouseConfig `envPrefix:"CLICKHOUSE_"`
	Redis      RedisConfig      `envPrefix:"REDIS_"`
	Discord    DiscordConfig    `envPrefix:"DISCORD_"`
	API        APIConfig        `envPrefix:"API_"`
}

// SteemConfig configures the ledger client.
type SteemConfig struct {
	// Nodes are tried in order; http(s) and ws(s) URLs are both accepted.
	Nodes      []string      `env:"NODES" envSeparator:"," envDefault:"https://api.steemit.com"`
	ChainID    string        `env:"CHAIN_ID" envDefault:"0000000000000000000000000000000000000000000000000000000000000000"`
	Timeout    time.Duration `env:"TIMEOUT" envDefault:"30s"`
	MaxRetries int           `env:"MAX_RETRIES" envDefault:"3"`
}

// RegistrationConfig configures the account receiving verification payments.
type RegistrationConfig struct {
	Account   string `env:"ACCOUNT"`
	ActiveKey string `env:"ACTIVE_KEY"` // WIF, used only for refunds
	Amount    string `env:"AMOUNT" envDefault:"0.001 STEEM"`

	UsernameCheckRetries int           `env:"USERNAME_CHECK_RETRIES" envDefault:"3"`
	UsernameCheckBackoff time.Duration `env:"USERNAME_CHECK_BACKOFF" envDefault:"500ms"`
	UsernameCacheTTL     time.Duration `env:"USERNAME_CACHE_TTL" envDefault:"10m"`
}

// CurationConfig configures the auto-curation loop and manual upvotes.
type CurationConfig struct {
	Account    string `env:"ACCOUNT"`     // casts the votes
	PostingKey string `env:"POSTING_KEY"` // WIF, default operating credential
	// GatingAccount is checked for voting power. Defaults to Account.
	GatingAccount string `env:"GATING_ACCOUNT"`

	Weight            int           `env:"WEIGHT" envDefault:"50"` // percent
	MinVotingPower    float64       `env:"MIN_VOTING_POWER" envDefault:"80"`
	MinAge            time.Duration `env:"MIN_AGE" envDefault:"800s"`
	MaxAge            time.Duration `env:"MAX_AGE" envDefault:"561600s"`
	RecentWindow      time.Duration `env:"RECENT_WINDOW" envDefault:"24h"`
	PostsPerCandidate int           `env:"POSTS_PER_CANDIDATE" envDefault:"10"`
	Interval          time.Duration `env:"INTERVAL" envDefault:"900s"`
	ChannelID         string        `env:"CHANNEL_ID"` // where outcomes are reported
}

// ReconcileConfig configures the transfer reconciliation loop.
type ReconcileConfig struct {
	Interval      time.Duration `env:"INTERVAL" envDefault:"10s"`
	PendingWindow time.Duration `env:"PENDING_WINDOW" envDefault:"1h"`
	ScanWindow    time.Duration `env:"SCAN_WINDOW" envDefault:"1h"`
	ClaimTTL      time.Duration `env:"CLAIM_TTL" envDefault:"1h"`
	DedupTTL      time.Duration `env:"DEDUP_TTL" envDefault:"2h"`
}

// PostgresConfig selects the claim store. Empty DSN means in-memory.
type PostgresConfig struct {
	DSN string `env:"DSN"`
}

// ClickHouseConfig selects the outcome audit store. Empty DSN means in-memory.
type ClickHouseConfig struct {
	DSN string `env:"DSN"`
}

// RedisConfig enables the persistent dedup set and the patron event stream.
type RedisConfig struct {
	Addr          string `env:"ADDR"`
	Password      string `env:"PASSWORD"`
	DB            int    `env:"DB" envDefault:"0"`
	EventsStream  string `env:"EVENTS_STREAM" envDefault:"patron:events"`
	ConsumerGroup string `env:"CONSUMER_GROUP" envDefault:"patron-bot"`
	ConsumerName  string `env:"CONSUMER_NAME" envDefault:"engine-1"`
}

// DiscordConfig configures the chat sinks. Empty token means log-only sinks.
type DiscordConfig struct {
	Token          string `env:"TOKEN"`
	GuildID        string `env:"GUILD_ID"`
	VerifiedRoleID string `env:"VERIFIED_ROLE_ID"`
	BaseURL        string `env:"BASE_URL" envDefault:"https://discord.com/api/v10"`
}

// APIConfig configures the HTTP API.
type APIConfig struct {
	Addr  string `env:"ADDR" envDefault:":8080"`
	Token string `env:"TOKEN"`
}

// Load reads an optional .env file and parses the environment.
func Load() (*Config, error) {
	// .env is optional; production sets variables directly.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return finish(cfg)
}

// LoadFromMap parses configuration from the given variables only.
func LoadFromMap(vars map[string]string) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Environment: vars}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	if cfg.Curation.GatingAccount == "" {
		cfg.Curation.GatingAccount = cfg.Curation.Account
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field rules.
func (c *Config) Validate() error {
	var errs []error
	if c.Registration.Account == "" {
		errs = append(errs, errors.New("REGISTRATION_ACCOUNT is required"))
	}
	if c.Registration.ActiveKey == "" {
		errs = append(errs, errors.New("REGISTRATION_ACTIVE_KEY is required"))
	}
	if c.Curation.Account == "" {
		errs = append(errs, errors.New("CURATION_ACCOUNT is required"))
	}
	if c.Curation.PostingKey == "" {
		errs = append(errs, errors.New("CURATION_POSTING_KEY is required"))
	}
	if len(c.Steem.Nodes) == 0 {
		errs = append(errs, errors.New("STEEM_NODES must list at least one node"))
	}
	if c.Curation.Weight < 0 || c.Curation.Weight > 100 {
		errs = append(errs, fmt.Errorf("CURATION_WEIGHT must be in [0,100], got %d", c.Curation.Weight))
	}
	if c.Curation.MinVotingPower < 0 || c.Curation.MinVotingPower > 100 {
		errs = append(errs, fmt.Errorf("CURATION_MIN_VOTING_POWER must be in [0,100], got %g", c.Curation.MinVotingPower))
	}
	if c.Curation.MinAge > c.Curation.MaxAge {
		errs = append(errs, fmt.Errorf("CURATION_MIN_AGE %s exceeds CURATION_MAX_AGE %s", c.Curation.MinAge, c.Curation.MaxAge))
	}
	if c.Curation.Interval <= 0 || c.Reconcile.Interval <= 0 {
		errs = append(errs, errors.New("loop intervals must be positive"))
	}
	if c.Reconcile.ScanWindow <= 0 || c.Reconcile.PendingWindow <= 0 {
		errs = append(errs, errors.New("reconcile windows must be positive"))
	}
	if c.Registration.UsernameCheckRetries < 0 {
		errs = append(errs, errors.New("REGISTRATION_USERNAME_CHECK_RETRIES must not be negative"))
	}
	return errors.Join(errs...)
}
