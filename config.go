package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds the environment-driven settings. TELEGRAM_TOKEN is the only
// required variable; everything else has a workable default.
type Config struct {
	Token        string
	AdminID      int64
	RedisAddr    string
	Port         string
	KeepAliveURL string
}

func loadConfig() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Token:        os.Getenv("TELEGRAM_TOKEN"),
		RedisAddr:    os.Getenv("REDIS_ADDR"),
		Port:         os.Getenv("PORT"),
		KeepAliveURL: os.Getenv("KEEP_ALIVE_URL"),
	}
	if cfg.Token == "" {
		return cfg, fmt.Errorf("TELEGRAM_TOKEN not set in environment")
	}
	if raw := os.Getenv("ADMIN_ID"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return cfg, fmt.Errorf("invalid ADMIN_ID %q: %w", raw, err)
		}
		cfg.AdminID = id
	}
	if cfg.RedisAddr == "" {
		cfg.RedisAddr = "localhost:6379"
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	return cfg, nil
}
