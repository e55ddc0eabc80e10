// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

const defaultJWTSecret = "your-secret-key-change-in-production"

type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	Log         LogConfig
	Server      ServerConfig
	Database    DatabaseConfig
	JWT         JWTConfig
	Discord     DiscordConfig `envPrefix:"DISCORD_"`
	Ticket      TicketConfig  `envPrefix:"TICKET_"`
	Payment     PaymentConfig `envPrefix:"PAYMENT_"`
	AWS         AWSConfig     `envPrefix:"AWS_"`
	AMQP        AMQPConfig    `envPrefix:"AMQP_"`
	I18n        I18nConfig
}

type LogConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

type ServerConfig struct {
	Port         string        `env:"SERVER_PORT" envDefault:"8080"`
	Host         string        `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	ReadTimeout  time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"15s"`
	IdleTimeout  time.Duration `env:"SERVER_IDLE_TIMEOUT" envDefault:"60s"`
	CORSOrigins  []string      `env:"CORS_ORIGINS" envSeparator:"," envDefault:"*"`

	RateLimitPerSecond float64 `env:"API_RATE_LIMIT" envDefault:"10"`
	RateLimitBurst     int     `env:"API_RATE_BURST" envDefault:"20"`
}

type DatabaseConfig struct {
	Driver       string        `env:"DB_DRIVER" envDefault:"postgres"`
	Host         string        `env:"DB_HOST" envDefault:"localhost"`
	Port         string        `env:"DB_PORT" envDefault:"5432"`
	User         string        `env:"DB_USER" envDefault:"postgres"`
	Password     string        `env:"DB_PASSWORD"`
	Database     string        `env:"DB_NAME" envDefault:"keyshop"`
	SSLMode      string        `env:"DB_SSL_MODE" envDefault:"disable"`
	SQLitePath   string        `env:"DB_SQLITE_PATH" envDefault:"keyshop.db"`
	MaxOpenConns int           `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns int           `env:"DB_MAX_IDLE_CONNS" envDefault:"25"`
	MaxLifetime  time.Duration `env:"DB_MAX_LIFETIME" envDefault:"5m"`
	LogLevel     string        `env:"DB_LOG_LEVEL" envDefault:"silent"`
}

type JWTConfig struct {
	SecretKey string        `env:"JWT_SECRET" envDefault:"your-secret-key-change-in-production"`
	AdminTTL  time.Duration `env:"JWT_ADMIN_TTL" envDefault:"24h"`
}

type DiscordConfig struct {
	Token               string `env:"TOKEN,required"`
	GuildID             string `env:"GUILD_ID,required"`
	TicketCategoryID    string `env:"TICKET_CATEGORY_ID,required"`
	AdminRoleID         string `env:"ADMIN_ROLE_ID,required"`
	SellerRoleID        string `env:"SELLER_ROLE_ID,required"`
	BuyerRoleID         string `env:"BUYER_ROLE_ID,required"`
	TranscriptChannelID string `env:"TRANSCRIPT_CHANNEL_ID"`
	ReviewsChannelID    string `env:"REVIEWS_CHANNEL_ID"`
	LogsChannelID       string `env:"LOGS_CHANNEL_ID"`
	EmbedColor          string `env:"EMBED_COLOR" envDefault:"0x3498db"`
}

type TicketConfig struct {
	VouchWindow            time.Duration `env:"VOUCH_WINDOW" envDefault:"24h"`
	IdleCloseAfter         time.Duration `env:"IDLE_CLOSE_AFTER" envDefault:"48h"`
	PostDeliveryCloseAfter time.Duration `env:"POST_DELIVERY_CLOSE_AFTER" envDefault:"15m"`
	CloseGrace             time.Duration `env:"CLOSE_GRACE" envDefault:"60s"`
	IdleSweepInterval      time.Duration `env:"IDLE_SWEEP_INTERVAL" envDefault:"1h"`
	JobPollInterval        time.Duration `env:"JOB_POLL_INTERVAL" envDefault:"15s"`
	JobMaxAttempts         int           `env:"JOB_MAX_ATTEMPTS" envDefault:"3"`
	InteractionEvery       time.Duration `env:"INTERACTION_RATE_EVERY" envDefault:"5s"`
	InteractionBurst       int           `env:"INTERACTION_RATE_BURST" envDefault:"3"`
}

type PaymentConfig struct {
	PayPalInstructions       string `env:"PAYPAL_INSTRUCTIONS" envDefault:"Send the amount as Friends & Family to the PayPal address provided by the seller, then press I have paid."`
	CryptoInstructions       string `env:"CRYPTO_INSTRUCTIONS" envDefault:"Send the amount in USDT (TRC20) to the wallet address provided by the seller, then press I have paid."`
	BankTransferInstructions string `env:"BANK_TRANSFER_INSTRUCTIONS" envDefault:"Transfer the amount to the bank account provided by the seller, then press I have paid."`
}

type AWSConfig struct {
	Region           string `env:"REGION" envDefault:"us-east-1"`
	AccessKeyID      string `env:"ACCESS_KEY_ID"`
	SecretAccessKey  string `env:"SECRET_ACCESS_KEY"`
	S3Bucket         string `env:"S3_BUCKET"`
	TranscriptPrefix string `env:"TRANSCRIPT_PREFIX" envDefault:"transcripts/"`
}

type AMQPConfig struct {
	URL      string `env:"URL"`
	Exchange string `env:"EXCHANGE" envDefault:"keyshop.tickets"`
}

type I18nConfig struct {
	DefaultLocale string `env:"DEFAULT_LOCALE" envDefault:"en"`
}

// Load reads .env (when present) and the process environment.
func Load() (*Config, error) {
	// Load .env file if it exists
	godotenv.Load()

	return Parse(env.Options{})
}

// LoadJWT reads only the token settings, so tools that mint ops API tokens
// do not need the bot credentials.
func LoadJWT() (*JWTConfig, error) {
	godotenv.Load()

	cfg := &JWTConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse JWT configuration: %w", err)
	}
	return cfg, nil
}

// Parse builds a Config with the given env options. Tests pass an explicit
// Environment map.
func Parse(opts env.Options) (*Config, error) {
	config := &Config{}
	if err := env.ParseWithOptions(config, opts); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}
	return config, config.Validate()
}

func (c *Config) Validate() error {
	if c.JWT.SecretKey == defaultJWTSecret && c.Environment == "production" {
		return errors.New("JWT secret key must be changed in production")
	}

	if c.Database.Driver == "postgres" && c.Database.Password == "" && c.Environment == "production" {
		return errors.New("database password is required in production")
	}

	switch c.Database.Driver {
	case "postgres":
	case "sqlite":
		if c.Database.SQLitePath == "" {
			return errors.New("DB_SQLITE_PATH is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver)
	}

	durations := map[string]time.Duration{
		"TICKET_VOUCH_WINDOW":              c.Ticket.VouchWindow,
		"TICKET_IDLE_CLOSE_AFTER":          c.Ticket.IdleCloseAfter,
		"TICKET_POST_DELIVERY_CLOSE_AFTER": c.Ticket.PostDeliveryCloseAfter,
		"TICKET_IDLE_SWEEP_INTERVAL":       c.Ticket.IdleSweepInterval,
		"TICKET_JOB_POLL_INTERVAL":         c.Ticket.JobPollInterval,
		"TICKET_INTERACTION_RATE_EVERY":    c.Ticket.InteractionEvery,
	}
	for name, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if c.Ticket.CloseGrace < 0 {
		return errors.New("TICKET_CLOSE_GRACE must not be negative")
	}
	if c.Ticket.JobMaxAttempts < 1 {
		return errors.New("TICKET_JOB_MAX_ATTEMPTS must be at least 1")
	}
	if c.Server.RateLimitPerSecond <= 0 || c.Server.RateLimitBurst < 1 {
		return errors.New("API_RATE_LIMIT and API_RATE_BURST must be positive")
	}
	if c.Ticket.InteractionBurst < 1 {
		return errors.New("TICKET_INTERACTION_RATE_BURST must be at least 1")
	}

	if _, err := c.Discord.Color(); err != nil {
		return fmt.Errorf("invalid DISCORD_EMBED_COLOR: %w", err)
	}

	return nil
}

// Color parses the embed colour, accepting 0x-prefixed hex or decimal.
func (d DiscordConfig) Color() (int, error) {
	v, err := strconv.ParseInt(d.EmbedColor, 0, 32)
	if err != nil {
		return 0, err
	}
	return int(v), nil
}

func (a AWSConfig) ArchiveEnabled() bool {
	return a.S3Bucket != "" && a.AccessKeyID != "" && a.SecretAccessKey != ""
}

func (a AMQPConfig) Enabled() bool {
	return a.URL != ""
}
