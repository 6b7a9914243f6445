package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gorm.io/gorm"
)

var DB *gorm.DB

// Config holds all configuration for the application
type Config struct {
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	JWTSecret  string
	Port       string
	Env        string

	// Razorpay credentials. The key/secret pair authenticates API calls and
	// signs the checkout callback; the webhook secret is a distinct signing
	// key for inbound webhook bodies. None of these may ever be logged.
	RazorpayKey           string
	RazorpaySecret        string
	RazorpayWebhookSecret string

	// VerifyFetchPayment enables cross-checking the payment against the
	// gateway's payment-fetch API during client-reported verification.
	VerifyFetchPayment bool

	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	AlertEmail   string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	// A missing .env file is fine in production where the environment is
	// injected by the platform.
	_ = godotenv.Load()

	config := &Config{
		DBHost:                os.Getenv("DB_HOST"),
		DBPort:                os.Getenv("DB_PORT"),
		DBUser:                os.Getenv("DB_USER"),
		DBPassword:            os.Getenv("DB_PASSWORD"),
		DBName:                os.Getenv("DB_NAME"),
		JWTSecret:             os.Getenv("JWT_SECRET"),
		Port:                  os.Getenv("PORT"),
		Env:                   os.Getenv("ENV"),
		RazorpayKey:           os.Getenv("RAZORPAY_KEY"),
		RazorpaySecret:        os.Getenv("RAZORPAY_SECRET"),
		RazorpayWebhookSecret: os.Getenv("RAZORPAY_WEBHOOK_SECRET"),
		VerifyFetchPayment:    os.Getenv("VERIFY_FETCH_PAYMENT") != "false",
		SMTPHost:              os.Getenv("SMTP_HOST"),
		SMTPPort:              os.Getenv("SMTP_PORT"),
		SMTPUsername:          os.Getenv("SMTP_USERNAME"),
		SMTPPassword:          os.Getenv("SMTP_PASSWORD"),
		SMTPFrom:              os.Getenv("SMTP_FROM"),
		AlertEmail:            os.Getenv("ALERT_EMAIL"),
	}

	if config.RazorpayKey == "" || config.RazorpaySecret == "" {
		return nil, fmt.Errorf("RAZORPAY_KEY and RAZORPAY_SECRET must be set")
	}
	if config.RazorpayWebhookSecret == "" {
		return nil, fmt.Errorf("RAZORPAY_WEBHOOK_SECRET must be set")
	}

	return config, nil
}

// IsProduction reports whether the service runs with production settings
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}
