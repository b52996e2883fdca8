package conf

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/relaydesk/helpdesk-bridge/internal/biz/domain"
	"github.com/relaydesk/helpdesk-bridge/internal/biz/usecase"
	"github.com/relaydesk/helpdesk-bridge/internal/data"
)

// Config represents application configuration
type Config struct {
	// Telegram configuration
	Telegram TelegramConfig

	// Ticket lifecycle configuration
	Tickets TicketsConfig

	// Storage configuration
	Storage StorageConfig

	// Event publishing configuration (optional)
	Events EventsConfig

	// Outbound delivery tuning
	Delivery DeliveryConfig

	// Texts configuration (loaded from YAML)
	Texts *TextsConfig

	// Ops API port, 0 disables the API
	APIPort int

	// Debug mode
	Debug bool

	// errs collects parse failures of set variables
	errs []*ConfigError
}

// TelegramConfig contains bot configuration
type TelegramConfig struct {
	BotToken       string
	SupportGroupID domain.ChatID
}

// TicketsConfig contains ticket lifecycle settings
type TicketsConfig struct {
	InactivityDays int
	ReapInterval   time.Duration
}

// StorageConfig contains file locations
type StorageConfig struct {
	SnapshotPath string
	LedgerPath   string
}

// EventsConfig contains AMQP settings
type EventsConfig struct {
	AMQPURL  string
	Exchange string
}

// DeliveryConfig contains outbound pacing and retry settings
type DeliveryConfig struct {
	RatePerSecond float64
	MaxAttempts   int
}

// Defaults
const (
	DefaultSnapshotPath  = "./storage.json"
	DefaultLedgerPath    = "./tickets.db"
	DefaultReapSeconds   = 600
	DefaultAPIPort       = 9876
	DefaultExchange      = "helpdesk"
	DefaultSendRate      = 25
	DefaultSendAttempts  = 4
	defaultEventProducer = "helpdesk-bridge"
)

// LoadFromEnv loads configuration from environment variables. Malformed
// values are reported by Validate.
func LoadFromEnv() *Config {
	c := &Config{}

	c.Telegram.BotToken = strings.TrimSpace(os.Getenv("BOT_TOKEN"))
	if val := os.Getenv("SUPPORT_GROUP_ID"); val != "" {
		if parsed, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64); err == nil {
			c.Telegram.SupportGroupID = domain.ChatID(parsed)
		} else {
			c.invalid("SUPPORT_GROUP_ID", "must be an integer")
		}
	}

	if val := os.Getenv("INACTIVITY_DAYS"); val != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			c.Tickets.InactivityDays = parsed
		} else {
			c.invalid("INACTIVITY_DAYS", "must be an integer")
		}
	}

	reapSeconds := c.intEnv("REAP_INTERVAL_SECONDS", DefaultReapSeconds)
	c.Tickets.ReapInterval = time.Duration(reapSeconds) * time.Second

	c.Storage.SnapshotPath = envOr("STORAGE_FILE", DefaultSnapshotPath)
	c.Storage.LedgerPath = envOr("LEDGER_DB_PATH", DefaultLedgerPath)

	c.Events.AMQPURL = os.Getenv("AMQP_URL")
	c.Events.Exchange = envOr("AMQP_EXCHANGE", DefaultExchange)

	c.Delivery.RatePerSecond = DefaultSendRate
	if val := os.Getenv("SEND_RATE_PER_SECOND"); val != "" {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			c.Delivery.RatePerSecond = parsed
		} else {
			c.invalid("SEND_RATE_PER_SECOND", "must be a number")
		}
	}
	c.Delivery.MaxAttempts = c.intEnv("SEND_MAX_ATTEMPTS", DefaultSendAttempts)

	c.APIPort = c.intEnv("API_PORT", DefaultAPIPort)
	c.Debug = os.Getenv("DEBUG") == "true"

	// Load texts from YAML
	texts, err := LoadTextsConfig(os.Getenv("TEXTS_CONFIG_PATH"))
	if err != nil {
		c.invalid("TEXTS_CONFIG_PATH", err.Error())
		texts = &TextsConfig{}
	}
	c.Texts = texts

	return c
}

func envOr(key, def string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return def
}

func (c *Config) intEnv(key string, def int) int {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(val))
	if err != nil {
		c.invalid(key, "must be an integer")
		return def
	}
	return parsed
}

func (c *Config) invalid(field, msg string) {
	c.errs = append(c.errs, &ConfigError{Field: field, Message: msg})
}

// InactivityThreshold returns the idle time after which tickets are closed
func (c *Config) InactivityThreshold() time.Duration {
	return time.Duration(c.Tickets.InactivityDays) * 24 * time.Hour
}

// ToRelayConfig converts to relay usecase configuration. botID is learned
// from the platform at startup.
func (c *Config) ToRelayConfig(botID domain.UserID) usecase.RelayConfig {
	cfg := usecase.RelayConfig{
		GroupID: c.Telegram.SupportGroupID,
		BotID:   botID,
	}
	if c.Texts != nil {
		cfg.Texts = c.Texts.ToTexts()
	}
	return cfg
}

// ToDataOptions converts to data layer options
func (c *Config) ToDataOptions() data.Options {
	return data.Options{
		StoragePath:  c.Storage.SnapshotPath,
		LedgerPath:   c.Storage.LedgerPath,
		AMQPURL:      c.Events.AMQPURL,
		AMQPExchange: c.Events.Exchange,
		Producer:     defaultEventProducer,
		SendRate:     c.Delivery.RatePerSecond,
		SendAttempts: c.Delivery.MaxAttempts,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if len(c.errs) > 0 {
		return c.errs[0]
	}
	if c.Telegram.BotToken == "" {
		return &ConfigError{Field: "BOT_TOKEN", Message: "required"}
	}
	if c.Telegram.SupportGroupID == 0 {
		return &ConfigError{Field: "SUPPORT_GROUP_ID", Message: "required"}
	}
	if c.Tickets.InactivityDays <= 0 {
		return &ConfigError{Field: "INACTIVITY_DAYS", Message: "required, must be a positive integer"}
	}
	if c.Tickets.ReapInterval <= 0 {
		return &ConfigError{Field: "REAP_INTERVAL_SECONDS", Message: "must be positive"}
	}
	if c.APIPort < 0 || c.APIPort > 65535 {
		return &ConfigError{Field: "API_PORT", Message: "out of range"}
	}
	if c.Delivery.MaxAttempts < 1 {
		return &ConfigError{Field: "SEND_MAX_ATTEMPTS", Message: "must be at least 1"}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}
