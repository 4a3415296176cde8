package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the application configuration
type Config struct {
	DatabaseURL string
	Port        string
	JWTSecret   string

	// OTP policy
	OTPTTL        time.Duration
	OTPCodeLength int

	// Account policy
	MinPasswordLength int
	MaxUsernameLength int

	AccessTokenTTL time.Duration

	// Outbound delivery
	SMSGatewayURL string
	SMSAPIKey     string
	SMSSender     string
	SMTPAddr      string
	SMTPFrom      string

	// NotifyDevMode routes codes to the application log instead of the
	// SMS/email gateways.
	NotifyDevMode bool
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:              "8080",
		OTPTTL:            2 * time.Minute,
		OTPCodeLength:     4,
		MinPasswordLength: 8,
		MaxUsernameLength: 32,
		AccessTokenTTL:    24 * time.Hour,
	}

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}
	cfg.DatabaseURL = databaseURL

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is required")
	}
	cfg.JWTSecret = jwtSecret

	if port := os.Getenv("PORT"); port != "" {
		cfg.Port = port
	}

	if err := loadDuration("OTP_TTL", &cfg.OTPTTL); err != nil {
		return nil, err
	}
	if err := loadInt("OTP_CODE_LENGTH", &cfg.OTPCodeLength); err != nil {
		return nil, err
	}
	if err := loadInt("MIN_PASSWORD_LENGTH", &cfg.MinPasswordLength); err != nil {
		return nil, err
	}
	if err := loadInt("MAX_USERNAME_LENGTH", &cfg.MaxUsernameLength); err != nil {
		return nil, err
	}
	if err := loadDuration("ACCESS_TOKEN_TTL", &cfg.AccessTokenTTL); err != nil {
		return nil, err
	}

	cfg.SMSGatewayURL = os.Getenv("SMS_GATEWAY_URL")
	cfg.SMSAPIKey = os.Getenv("SMS_API_KEY")
	cfg.SMSSender = os.Getenv("SMS_SENDER")
	cfg.SMTPAddr = os.Getenv("SMTP_ADDR")
	cfg.SMTPFrom = os.Getenv("SMTP_FROM")

	cfg.NotifyDevMode = os.Getenv("NOTIFY_DEV_MODE") == "true"

	return cfg, nil
}

func loadDuration(key string, dst *time.Duration) error {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("%s must be a duration like 2m: %w", key, err)
	}
	if d <= 0 {
		return fmt.Errorf("%s must be positive", key)
	}
	*dst = d
	return nil
}

func loadInt(key string, dst *int) error {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("%s must be an integer: %w", key, err)
	}
	if n <= 0 {
		return fmt.Errorf("%s must be positive", key)
	}
	*dst = n
	return nil
}
