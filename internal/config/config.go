// Package config loads runtime settings from the environment, after an
// optional .env file.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port      string
	Env       string
	LogLevel  string
	LogFormat string

	DatabaseURL string
	SQLitePath  string
	DevSeed     bool

	RedisAddr string
	LockTTL   time.Duration

	KafkaBrokers []string
	KafkaTopic   string

	SchedulerEnabled     bool
	SchedulerCron        string
	SchedulerTZ          string
	SchedulerWorkers     int
	SchedulerLoanTimeout time.Duration
}

// Load reads .env (if present) without overriding variables already set, then
// builds the Config.
func Load() Config {
	_ = godotenv.Load()
	return Config{
		Port:      getEnv("PORT", "8080"),
		Env:       getEnv("APP_ENV", "local"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		SQLitePath:  getEnv("SQLITE_PATH", ""),
		DevSeed:     getEnvBool("DEV_SEED", false),

		RedisAddr: getEnv("REDIS_ADDR", ""),
		LockTTL:   getEnvDuration("LOCK_TTL", 30*time.Second),

		KafkaBrokers: getEnvList("KAFKA_BROKERS"),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "loan-events"),

		SchedulerEnabled:     getEnvBool("SCHEDULER_ENABLED", true),
		SchedulerCron:        getEnv("SCHEDULER_CRON", "0 0 * * *"),
		SchedulerTZ:          getEnv("SCHEDULER_TZ", "UTC"),
		SchedulerWorkers:     int(getEnvInt32("SCHEDULER_WORKERS", 4)),
		SchedulerLoanTimeout: getEnvDuration("SCHEDULER_LOAN_TIMEOUT", 10*time.Second),
	}
}

func (c Config) Addr() string {
	return fmt.Sprintf(":%s", c.Port)
}

// Backend names the storage backend the settings select.
func (c Config) Backend() string {
	switch {
	case c.DatabaseURL != "":
		return "postgres"
	case c.SQLitePath != "":
		return "sqlite"
	default:
		return "memory"
	}
}

// Location resolves SchedulerTZ, falling back to UTC.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.SchedulerTZ)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func getEnvInt32(key string, fallback int32) int32 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		var out int32
		_, err := fmt.Sscanf(v, "%d", &out)
		if err == nil {
			return out
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err == nil {
			return d
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		n := strings.ToLower(strings.TrimSpace(v))
		return n == "1" || n == "true" || n == "yes"
	}
	return fallback
}

func getEnvList(key string) []string {
	v := getEnv(key, "")
	if v == "" {
		return nil
	}
	out := make([]string, 0)
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
