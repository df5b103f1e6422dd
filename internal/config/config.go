package config

import (
	"errors"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port string

	DatabaseURL string

	StripeSecret        string
	StripeWebhookSecret string

	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	EmailFrom    string

	SentryDSN string

	RateLimitMax    int
	RateLimitWindow time.Duration

	StoreTimeout time.Duration
}

func New() (*Config, error) {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, errors.New("DATABASE_URL environment variable is required")
	}

	// Stripe and SMTP are optional; the webhook and email notifications
	// stay disabled when they are not configured.
	stripeSecret := os.Getenv("STRIPE_SECRET")
	stripeWebhookSecret := os.Getenv("STRIPE_WEBHOOK_SECRET")

	smtpHost := os.Getenv("SMTP_HOST")
	smtpPort := os.Getenv("SMTP_PORT")
	smtpUsername := os.Getenv("SMTP_USERNAME")
	smtpPassword := os.Getenv("SMTP_PASSWORD")

	emailFrom := os.Getenv("EMAIL_FROM")
	if emailFrom == "" {
		emailFrom = "licenses@licensedesk.app"
	}

	if smtpHost != "" || smtpPort != "" || smtpUsername != "" || smtpPassword != "" {
		if smtpHost == "" || smtpPort == "" || smtpUsername == "" || smtpPassword == "" {
			return nil, errors.New("SMTP_HOST, SMTP_PORT, SMTP_USERNAME, and SMTP_PASSWORD must all be set to enable email")
		}
	}

	rateLimitMax := 60
	if v := os.Getenv("RATE_LIMIT_MAX"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, errors.New("RATE_LIMIT_MAX must be a non-negative integer")
		}
		rateLimitMax = n
	}

	rateLimitWindow := time.Minute
	if v := os.Getenv("RATE_LIMIT_WINDOW"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, errors.New("RATE_LIMIT_WINDOW must be a positive duration")
		}
		rateLimitWindow = d
	}

	storeTimeout := 5 * time.Second
	if v := os.Getenv("STORE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, errors.New("STORE_TIMEOUT must be a positive duration")
		}
		storeTimeout = d
	}

	return &Config{
		Port:                port,
		DatabaseURL:         dbURL,
		StripeSecret:        stripeSecret,
		StripeWebhookSecret: stripeWebhookSecret,
		SMTPHost:            smtpHost,
		SMTPPort:            smtpPort,
		SMTPUsername:        smtpUsername,
		SMTPPassword:        smtpPassword,
		EmailFrom:           emailFrom,
		SentryDSN:           os.Getenv("SENTRY_DSN"),
		RateLimitMax:        rateLimitMax,
		RateLimitWindow:     rateLimitWindow,
		StoreTimeout:        storeTimeout,
	}, nil
}

// EmailEnabled reports whether SMTP is fully configured.
func (c *Config) EmailEnabled() bool {
	return c.SMTPHost != "" && c.SMTPPort != "" && c.SMTPUsername != "" && c.SMTPPassword != ""
}

// StripeEnabled reports whether webhook verification is configured.
func (c *Config) StripeEnabled() bool {
	return c.StripeWebhookSecret != ""
}
