package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"

	DMProviderWhatsApp = "whatsapp"
	DMProviderTwilio   = "twilio"
	DMProviderTelegram = "telegram"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Store struct {
		Driver string
	}
	DB struct {
		DSN string
	}
	Kafka struct {
		Broker  string
		Topic   string
		GroupID string
	}
	Email struct {
		SMTPServer  string
		SMTPPort    int
		Username    string
		Password    string
		FromAddress string
		FromName    string
	}
	DirectMessage struct {
		Provider string
	}
	Twilio struct {
		AccountSID string
		AuthToken  string
		FromNumber string
	}
	Telegram struct {
		BotToken  string
		RateLimit int
	}
	API struct {
		Port     string
		BasePath string
	}
	Notification struct {
		QueueSize  int
		MaxWorkers int
	}
	Escalation struct {
		BatchDelay           time.Duration
		AutoEscalateCritical bool
	}
	Logging struct {
		Dir   string
		Level string
	}
}

// Load reads environment variables, applies defaults, and returns a Config.
func Load() (Config, error) {
	// Load .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("failed to load .env file: %w", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from getenv without touching the process environment.
func FromEnv(getenv func(string) string) (Config, error) {
	var cfg Config

	cfg.Store.Driver = strings.ToLower(getenv("STORE_DRIVER"))
	cfg.DB.DSN = getenv("DB_DSN")

	// Kafka settings
	cfg.Kafka.Broker = getenv("KAFKA_BROKER")
	cfg.Kafka.Topic = getenv("KAFKA_TOPIC")
	cfg.Kafka.GroupID = getenv("KAFKA_GROUP_ID")

	// Email settings
	cfg.Email.SMTPServer = getenv("EMAIL_SMTP_SERVER")
	if p, err := strconv.Atoi(getenv("EMAIL_SMTP_PORT")); err == nil {
		cfg.Email.SMTPPort = p
	}
	cfg.Email.Username = getenv("EMAIL_USERNAME")
	cfg.Email.Password = getenv("EMAIL_PASSWORD")
	cfg.Email.FromAddress = getenv("EMAIL_FROM_ADDRESS")
	cfg.Email.FromName = getenv("EMAIL_FROM_NAME")

	// Direct message channel
	cfg.DirectMessage.Provider = strings.ToLower(getenv("DM_PROVIDER"))
	cfg.Twilio.AccountSID = getenv("TWILIO_ACCOUNT_SID")
	cfg.Twilio.AuthToken = getenv("TWILIO_AUTH_TOKEN")
	cfg.Twilio.FromNumber = getenv("TWILIO_FROM_NUMBER")
	cfg.Telegram.BotToken = getenv("TELEGRAM_BOT_TOKEN")
	if v := getenv("TELEGRAM_RATE_LIMIT"); v != "" {
		rl, err := strconv.Atoi(v)
		if err != nil || rl <= 0 {
			return Config{}, fmt.Errorf("invalid TELEGRAM_RATE_LIMIT %q: must be a positive integer", v)
		}
		cfg.Telegram.RateLimit = rl
	}

	// API settings
	cfg.API.Port = getenv("API_PORT")
	cfg.API.BasePath = getenv("API_BASE_PATH")

	// Notification worker settings
	if qs, err := strconv.Atoi(getenv("QUEUE_SIZE")); err == nil {
		cfg.Notification.QueueSize = qs
	}
	if mw, err := strconv.Atoi(getenv("MAX_WORKERS")); err == nil {
		cfg.Notification.MaxWorkers = mw
	}

	// Escalation settings
	if v := getenv("ESCALATION_BATCH_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid ESCALATION_BATCH_DELAY %q: %w", v, err)
		}
		cfg.Escalation.BatchDelay = d
	}
	if v := getenv("AUTO_ESCALATE_CRITICAL"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid AUTO_ESCALATE_CRITICAL %q: %w", v, err)
		}
		cfg.Escalation.AutoEscalateCritical = b
	}

	cfg.Logging.Dir = getenv("LOG_DIR")
	cfg.Logging.Level = getenv("LOG_LEVEL")

	// Apply defaults
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = StoreDriverPostgres
	}
	if cfg.DirectMessage.Provider == "" {
		cfg.DirectMessage.Provider = DMProviderWhatsApp
	}
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "critical_alerts"
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = "escalation-service"
	}
	if cfg.Email.FromAddress == "" {
		cfg.Email.FromAddress = cfg.Email.Username
	}
	if cfg.Email.FromName == "" {
		cfg.Email.FromName = "Clinic Alerts"
	}
	if cfg.Telegram.RateLimit == 0 {
		cfg.Telegram.RateLimit = 20
	}
	if cfg.API.Port == "" {
		cfg.API.Port = ":8080"
	}
	if cfg.API.BasePath == "" {
		cfg.API.BasePath = "/api/v0"
	}
	if cfg.Notification.QueueSize == 0 {
		cfg.Notification.QueueSize = 500
	}
	if cfg.Notification.MaxWorkers == 0 {
		cfg.Notification.MaxWorkers = 10
	}
	if cfg.Escalation.BatchDelay == 0 {
		cfg.Escalation.BatchDelay = time.Second
	}
	if cfg.Logging.Dir == "" {
		cfg.Logging.Dir = "logs"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}

	// Validate required settings
	missing := []string{}
	switch cfg.Store.Driver {
	case StoreDriverPostgres:
		if cfg.DB.DSN == "" {
			missing = append(missing, "DB_DSN")
		}
	case StoreDriverMemory:
	default:
		return Config{}, fmt.Errorf("unknown STORE_DRIVER %q", cfg.Store.Driver)
	}
	switch cfg.DirectMessage.Provider {
	case DMProviderWhatsApp:
	case DMProviderTwilio:
		if cfg.Twilio.AccountSID == "" {
			missing = append(missing, "TWILIO_ACCOUNT_SID")
		}
		if cfg.Twilio.AuthToken == "" {
			missing = append(missing, "TWILIO_AUTH_TOKEN")
		}
		if cfg.Twilio.FromNumber == "" {
			missing = append(missing, "TWILIO_FROM_NUMBER")
		}
	case DMProviderTelegram:
		if cfg.Telegram.BotToken == "" {
			missing = append(missing, "TELEGRAM_BOT_TOKEN")
		}
	default:
		return Config{}, fmt.Errorf("unknown DM_PROVIDER %q", cfg.DirectMessage.Provider)
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required configurations: %v", missing)
	}

	return cfg, nil
}
