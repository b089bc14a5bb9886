package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	DB          DBConfig
	Server      ServerConfig
	Session     SessionConfig
	ActionToken ActionTokenConfig
	TOTP        TOTPConfig
	SMTP        SMTPConfig
}

type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

type ServerConfig struct {
	Port    string
	BaseURL string
}

type SessionConfig struct {
	Secret    string
	Algorithm string
	TTL       time.Duration
}

type ActionTokenConfig struct {
	Secret             string
	VerificationMaxAge time.Duration
	ResetMaxAge        time.Duration
}

type TOTPConfig struct {
	Issuer string
}

type SMTPConfig struct {
	Host     string
	Port     string
	Email    string
	Password string
}

func Load() *Config {
	return &Config{
		DB: DBConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "authgate"),
			Password: getEnv("DB_PASSWORD", "authgate_secret"),
			Name:     getEnv("DB_NAME", "authgate"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Server: ServerConfig{
			Port:    getEnv("SERVER_PORT", "8080"),
			BaseURL: getEnv("SERVER_BASE_URL", "http://localhost:8080"),
		},
		Session: SessionConfig{
			Secret:    getEnv("JWT_SECRET", "change-me-in-production"),
			Algorithm: getEnv("JWT_ALGORITHM", "HS256"),
			TTL:       getEnvAsDuration("SESSION_TTL", 30*time.Minute),
		},
		ActionToken: ActionTokenConfig{
			Secret:             getEnv("ACTION_TOKEN_SECRET", "change-me-too-in-production"),
			VerificationMaxAge: getEnvAsDuration("VERIFICATION_TOKEN_MAX_AGE", 24*time.Hour),
			ResetMaxAge:        getEnvAsDuration("RESET_TOKEN_MAX_AGE", 15*time.Minute),
		},
		TOTP: TOTPConfig{
			Issuer: getEnv("TOTP_ISSUER", "AuthGate"),
		},
		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", "localhost"),
			Port:     getEnv("SMTP_PORT", "587"),
			Email:    getEnv("SMTP_EMAIL", "noreply@authgate.local"),
			Password: getEnv("SMTP_PASSWORD", ""),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := time.ParseDuration(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}
