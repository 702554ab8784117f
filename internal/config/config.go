// internal/config/config.go
//
// Process configuration, read from the environment once at startup.
// Any invalid or missing required value is a *ConfigError and aborts startup.

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robalobadob/crackcode/internal/game"
)

// ConfigError names the offending key.
type ConfigError struct {
	Key string
	Msg string
}

func (e *ConfigError) Error() string { return fmt.Sprintf("config %s: %s", e.Key, e.Msg) }

// Config is the full set of startup settings.
type Config struct {
	Port     string
	LogLevel string
	LogJSON  bool

	SigningKey   []byte
	SecretCode   string
	GenerateCode bool
	CodeLength   int
	Alphabet     game.Alphabet

	AttemptBudget int
	TimeBudget    time.Duration
	TokenTTL      time.Duration
	SessionStore  string // "token" | "memory"
	AllowSpaces   bool

	ClientOrigin string
	CookieName   string
	Production   bool

	DBPath            string // "" disables the results ledger
	RedisURL          string
	AdminPasswordHash string

	RateLimitRPS   float64
	RateLimitBurst int
}

// Load reads the environment. Values from a .env file must already be
// in the environment (main calls godotenv.Load first).
func Load() (*Config, error) {
	return load(os.Getenv)
}

func load(getenv func(string) string) (*Config, error) {
	r := reader{getenv: getenv}
	c := &Config{
		Port:              r.str("PORT", "3001"),
		LogLevel:          r.str("LOG_LEVEL", "info"),
		LogJSON:           r.str("LOG_FORMAT", "json") != "console",
		SecretCode:        strings.TrimSpace(getenv("SECRET_CODE")),
		GenerateCode:      r.boolean("GENERATE_CODE", false),
		CodeLength:        r.integer("CODE_LENGTH", 10),
		AttemptBudget:     r.integer("ATTEMPT_BUDGET", 3),
		TimeBudget:        r.duration("TIME_BUDGET", 10*time.Minute),
		TokenTTL:          r.duration("TOKEN_TTL", time.Hour),
		SessionStore:      strings.ToLower(r.str("SESSION_STORE", "token")),
		AllowSpaces:       r.boolean("SUBJECT_ALLOW_SPACES", true),
		ClientOrigin:      r.str("CLIENT_ORIGIN", "http://localhost:3000"),
		CookieName:        r.str("COOKIE_NAME", "crackcode_token"),
		Production:        strings.EqualFold(getenv("APP_ENV"), "production"),
		DBPath:            r.str("DB_PATH", "./data/crackcode.db"),
		RedisURL:          getenv("REDIS_URL"),
		AdminPasswordHash: getenv("ADMIN_PASSWORD_HASH"),
		RateLimitRPS:      r.float("RATE_LIMIT_RPS", 5),
		RateLimitBurst:    r.integer("RATE_LIMIT_BURST", 10),
	}
	if c.DBPath == "off" {
		c.DBPath = ""
	}
	if r.err != nil {
		return nil, r.err
	}

	key := getenv("SESSION_SECRET")
	if key == "" {
		return nil, &ConfigError{Key: "SESSION_SECRET", Msg: "required"}
	}
	c.SigningKey = []byte(key)

	a, err := game.ParseAlphabet(getenv("CODE_ALPHABET"))
	if err != nil {
		return nil, &ConfigError{Key: "CODE_ALPHABET", Msg: err.Error()}
	}
	c.Alphabet = a

	switch {
	case c.CodeLength <= 0:
		return nil, &ConfigError{Key: "CODE_LENGTH", Msg: "must be positive"}
	case c.AttemptBudget <= 0:
		return nil, &ConfigError{Key: "ATTEMPT_BUDGET", Msg: "must be positive"}
	case c.TimeBudget <= 0:
		return nil, &ConfigError{Key: "TIME_BUDGET", Msg: "must be positive"}
	case c.TokenTTL < c.TimeBudget:
		return nil, &ConfigError{Key: "TOKEN_TTL", Msg: "must be at least TIME_BUDGET"}
	case c.SessionStore != "token" && c.SessionStore != "memory":
		return nil, &ConfigError{Key: "SESSION_STORE", Msg: `must be "token" or "memory"`}
	case c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0:
		return nil, &ConfigError{Key: "RATE_LIMIT_RPS", Msg: "limits must be positive"}
	}

	if c.SecretCode == "" && !c.GenerateCode {
		return nil, &ConfigError{Key: "SECRET_CODE", Msg: "required unless GENERATE_CODE=true"}
	}
	if c.SecretCode != "" {
		if _, err := game.NewCode(c.SecretCode, c.CodeLength, c.Alphabet); err != nil {
			return nil, &ConfigError{Key: "SECRET_CODE", Msg: err.Error()}
		}
	}
	return c, nil
}

// reader collects the first parse error so Load can report it once.
type reader struct {
	getenv func(string) string
	err    error
}

func (r *reader) str(k, def string) string {
	if v := r.getenv(k); v != "" {
		return v
	}
	return def
}

func (r *reader) fail(k, v string, err error) {
	if r.err == nil {
		r.err = &ConfigError{Key: k, Msg: fmt.Sprintf("invalid value %q: %v", v, err)}
	}
}

func (r *reader) integer(k string, def int) int {
	v := r.getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.fail(k, v, err)
		return def
	}
	return n
}

func (r *reader) float(k string, def float64) float64 {
	v := r.getenv(k)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.fail(k, v, err)
		return def
	}
	return f
}

func (r *reader) boolean(k string, def bool) bool {
	v := r.getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.fail(k, v, err)
		return def
	}
	return b
}

func (r *reader) duration(k string, def time.Duration) time.Duration {
	v := r.getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.fail(k, v, err)
		return def
	}
	return d
}
