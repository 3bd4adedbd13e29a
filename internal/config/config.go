package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Env         string // dev|prod
	Release     string
	LogLevel    string
	HTTPAddr    string
	DatabaseURL string
	Location    *time.Location // опорная таймзона расписания

	JWTSecret string

	CronToken      string
	CronInterval   time.Duration // 0 — встроенный планировщик выключен
	ReminderWindow time.Duration
	BackfillWindow time.Duration

	SentryDSN string

	Twilio   TwilioConfig
	Email    EmailConfig
	Telegram TelegramConfig
	Stripe   StripeConfig
}

type TwilioConfig struct {
	AccountSID    string
	AuthToken     string
	FromNumber    string
	DefaultRegion string
	ForceSend     bool // слать настоящие SMS вне prod
}

// Configured — есть ли креды для реальной отправки.
func (c TwilioConfig) Configured() bool {
	return c.AccountSID != "" && c.AuthToken != "" && c.FromNumber != ""
}

type EmailConfig struct {
	SendGridAPIKey string
	FromAddress    string
	FromName       string
}

type TelegramConfig struct {
	BotToken string
}

type StripeConfig struct {
	SecretKey        string
	WebhookSecret    string
	PriceID          string
	TokensPerInvoice int
}

// Load читает .env (если есть), затем окружение. Обязательные ключи проверяются здесь же.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	tz := v.GetString("TZ")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("TZ %q: %w", tz, err)
	}

	cfg := &Config{
		Env:            strings.ToLower(v.GetString("ENV")),
		Release:        v.GetString("RELEASE"),
		LogLevel:       v.GetString("LOG_LEVEL"),
		HTTPAddr:       v.GetString("HTTP_ADDR"),
		DatabaseURL:    v.GetString("DATABASE_URL"),
		Location:       loc,
		JWTSecret:      v.GetString("JWT_SECRET"),
		CronToken:      v.GetString("CRON_TOKEN"),
		CronInterval:   v.GetDuration("CRON_INTERVAL"),
		ReminderWindow: v.GetDuration("REMINDER_WINDOW"),
		BackfillWindow: v.GetDuration("BACKFILL_WINDOW"),
		SentryDSN:      v.GetString("SENTRY_DSN"),
		Twilio: TwilioConfig{
			AccountSID:    v.GetString("TWILIO_ACCOUNT_SID"),
			AuthToken:     v.GetString("TWILIO_AUTH_TOKEN"),
			FromNumber:    v.GetString("TWILIO_FROM_NUMBER"),
			DefaultRegion: v.GetString("SMS_DEFAULT_REGION"),
			ForceSend:     v.GetBool("SMS_FORCE_SEND"),
		},
		Email: EmailConfig{
			SendGridAPIKey: v.GetString("SENDGRID_API_KEY"),
			FromAddress:    v.GetString("EMAIL_FROM"),
			FromName:       v.GetString("EMAIL_FROM_NAME"),
		},
		Telegram: TelegramConfig{
			BotToken: v.GetString("TELEGRAM_BOT_TOKEN"),
		},
		Stripe: StripeConfig{
			SecretKey:        v.GetString("STRIPE_SECRET_KEY"),
			WebhookSecret:    v.GetString("STRIPE_WEBHOOK_SECRET"),
			PriceID:          v.GetString("STRIPE_PRICE_ID"),
			TokensPerInvoice: v.GetInt("TOKENS_PER_INVOICE"),
		},
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", "dev")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("TZ", "Europe/Paris")
	v.SetDefault("CRON_INTERVAL", "0s")
	v.SetDefault("REMINDER_WINDOW", "5m")
	v.SetDefault("BACKFILL_WINDOW", "168h")
	v.SetDefault("SMS_DEFAULT_REGION", "FR")
	v.SetDefault("EMAIL_FROM", "no-reply@localhost")
	v.SetDefault("EMAIL_FROM_NAME", "Tutoring")
	v.SetDefault("TOKENS_PER_INVOICE", 4)
}

func (c *Config) validate() error {
	var missing []string
	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if c.CronToken == "" {
		missing = append(missing, "CRON_TOKEN")
	}
	if len(missing) > 0 {
		return fmt.Errorf("required env is empty: %s", strings.Join(missing, ", "))
	}
	if c.ReminderWindow <= 0 || c.BackfillWindow <= 0 {
		return errors.New("REMINDER_WINDOW and BACKFILL_WINDOW must be positive")
	}
	return nil
}

func (c *Config) IsProd() bool { return c.Env == "prod" }
