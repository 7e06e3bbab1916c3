package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config keeps runtime settings for the bot.
type Config struct {
	BotToken        string
	DatabaseURL     string
	CheckInterval   time.Duration // scheduled-template runner cadence
	SweepInterval   time.Duration // reminder sweep cadence
	DefaultReminder time.Duration // per-task repeat-reminder default
	DefaultDeadline int           // days, applied when a create omits one
	SessionTTL      time.Duration
	AdminChatIDs    []int64
}

// Load reads configuration from environment variables with sane defaults.
func Load() (Config, error) {
	cfg := Config{
		BotToken:        strings.TrimSpace(os.Getenv("BOT_TOKEN")),
		DatabaseURL:     strings.TrimSpace(os.Getenv("DATABASE_URL")),
		CheckInterval:   parseMinutes(os.Getenv("CHECK_INTERVAL_MINUTES")),
		SweepInterval:   parseMinutes(os.Getenv("SWEEP_INTERVAL_MINUTES")),
		DefaultReminder: parseHours(os.Getenv("DEFAULT_REMINDER_HOURS")),
		DefaultDeadline: parseInt(os.Getenv("DEFAULT_DEADLINE_DAYS")),
		SessionTTL:      parseMinutes(os.Getenv("SESSION_TTL_MINUTES")),
		AdminChatIDs:    parseIDList(os.Getenv("ADMIN_IDS")),
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = "taskbot.db"
	}
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = 15 * time.Minute
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = 30 * time.Minute
	}
	if cfg.DefaultReminder == 0 {
		cfg.DefaultReminder = 24 * time.Hour
	}
	if cfg.DefaultDeadline == 0 {
		cfg.DefaultDeadline = 3
	}
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = 10 * time.Minute
	}

	if cfg.BotToken == "" {
		return cfg, fmt.Errorf("BOT_TOKEN is required")
	}

	return cfg, nil
}

// IsAdmin reports whether a chat id is in the configured allow-list.
func (c *Config) IsAdmin(chatID int64) bool {
	for _, id := range c.AdminChatIDs {
		if id == chatID {
			return true
		}
	}
	return false
}

func parseMinutes(raw string) time.Duration {
	n := parseInt(raw)
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Minute
}

func parseHours(raw string) time.Duration {
	n := parseInt(raw)
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Hour
}

func parseInt(raw string) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func parseIDList(raw string) []int64 {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}
