package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr string

	DBDriver string
	DBDSN    string

	AuthHMACSecret string

	SessionTTL        time.Duration // fixed lifetime of a session
	SessionRetention  time.Duration // how long inactive sessions are kept
	SweepInterval     time.Duration // cadence of the maintenance sweep
	MockQuestionCount int           // fixed size of mock-test sessions

	CORSOrigins []string
}

func FromEnv() Config {
	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	return Config{
		HTTPAddr:          addr,
		DBDriver:          envOr("DB_DRIVER", "sqlite"),
		DBDSN:             envOr("DB_DSN", ""),
		AuthHMACSecret:    envOr("AUTH_HMAC_SECRET", "supersecret-dev-key"),
		SessionTTL:        envDuration("SESSION_TTL", 24*time.Hour),
		SessionRetention:  envDuration("SESSION_RETENTION", 7*24*time.Hour),
		SweepInterval:     envDuration("SWEEP_INTERVAL", time.Hour),
		MockQuestionCount: envInt("MOCK_QUESTION_COUNT", 50),
		CORSOrigins:       csvOr("CORS_ORIGINS", "http://localhost:3000"),
	}
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func envInt(k string, def int) int {
	if v, err := strconv.Atoi(os.Getenv(k)); err == nil && v > 0 {
		return v
	}
	return def
}

func envDuration(k string, def time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(k)); err == nil && v > 0 {
		return v
	}
	return def
}

func csvOr(k, def string) []string {
	v := envOr(k, def)
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
