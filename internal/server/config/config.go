// Package config handles runtime configuration for the server, loaded
// entirely from environment variables with sensible development defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds runtime settings for the broker server.
type Config struct {
	TCPAddr     string
	DBHost      string
	DBPort      int
	DBUser      string
	DBPassword  string
	DBName      string
	StoragePath string
	SessionTTL  time.Duration
	OfferTTL    time.Duration
}

// LoadDefaults populates Config with development defaults. These are not
// fit for production and are expected to be overridden by environment
// variables in any real deployment.
func (c *Config) LoadDefaults() {
	c.TCPAddr = ":9000"
	c.DBHost = "localhost"
	c.DBPort = 5432
	c.DBUser = "fsx"
	c.DBPassword = "fsx"
	c.DBName = "fsx"
	c.StoragePath = "./storage/transfers"
	c.SessionTTL = 24 * time.Hour
	c.OfferTTL = 5 * time.Minute
}

// LoadConfig builds a Config from defaults overlaid with environment
// variables:
//
//	FSX_TCP_PORT       TCP port the server listens on (default 9000)
//	FSX_DB_HOST        Postgres host (default localhost)
//	FSX_DB_PORT        Postgres port (default 5432)
//	FSX_DB_USER        Postgres user (default fsx)
//	FSX_DB_PASSWORD    Postgres password (default fsx)
//	FSX_DB_NAME        Postgres database name (default fsx)
//	FSX_STORAGE_PATH   staging directory root (default ./storage/transfers)
//	FSX_SESSION_TTL    session lifetime, a time.ParseDuration string (default 24h)
//	FSX_OFFER_TTL      how long an unanswered file offer lives, a time.ParseDuration string (default 5m)
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	if v := os.Getenv("FSX_TCP_PORT"); v != "" {
		cfg.TCPAddr = ":" + v
	}
	if v := os.Getenv("FSX_DB_HOST"); v != "" {
		cfg.DBHost = v
	}
	if v := os.Getenv("FSX_DB_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("config: FSX_DB_PORT: %w", err)
		}
		cfg.DBPort = port
	}
	if v := os.Getenv("FSX_DB_USER"); v != "" {
		cfg.DBUser = v
	}
	if v := os.Getenv("FSX_DB_PASSWORD"); v != "" {
		cfg.DBPassword = v
	}
	if v := os.Getenv("FSX_DB_NAME"); v != "" {
		cfg.DBName = v
	}
	if v := os.Getenv("FSX_STORAGE_PATH"); v != "" {
		cfg.StoragePath = v
	}
	if v := os.Getenv("FSX_SESSION_TTL"); v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("config: FSX_SESSION_TTL: %w", err)
		}
		cfg.SessionTTL = ttl
	}
	if v := os.Getenv("FSX_OFFER_TTL"); v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("config: FSX_OFFER_TTL: %w", err)
		}
		cfg.OfferTTL = ttl
	}

	return cfg, nil
}

// DSN builds the pgx connection string for this Config.
func (c *Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
}
