// Package config reads the service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	EnvDevelopment = "development"

	// DevSigningKey signs sessions in development when SESSION_SIGNING_KEY is unset.
	DevSigningKey     = "dev-session-signing-key-change-me-0000"
	minSigningKeySize = 32
)

// Server captures all service level configuration.
type Server struct {
	Addr           string
	Environment    string
	TrustedProxies []string
	Provider       ProviderConfig
	Session        SessionConfig
	Replay         ReplayConfig
	Local          LocalLoginConfig
	Database       DatabaseConfig
	Redis          RedisConfig
	Audit          AuditConfig
}

// ProviderConfig is the Fayda OpenID Connect registration.
type ProviderConfig struct {
	IssuerURL             string
	ClientID              string
	ClientSecret          string
	PrivateKey            string
	RedirectURL           string
	AuthURL               string
	TokenURL              string
	UserInfoURL           string
	JWKSURL               string
	Scopes                []string
	Timeout               time.Duration
	PostLogoutRedirectURL string
}

type SessionConfig struct {
	SigningKey string
	TTL        time.Duration
	Issuer     string
	Audience   string
}

type ReplayConfig struct {
	TTL           time.Duration
	SweepInterval time.Duration
}

// LocalLoginConfig controls the SMS one-time code fallback. It is a
// deployment capability, off unless explicitly enabled.
type LocalLoginConfig struct {
	Enabled        bool
	CodeTTL        time.Duration
	MaxAttempts    int
	SendsPerMinute int
	RevealCodes    bool
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	// AutoMigrate applies the embedded schema at startup.
	AutoMigrate bool
}

type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type AuditConfig struct {
	BufferSize   int
	KafkaBrokers string
	Topic        string
}

// IsDevelopment reports whether insecure development defaults are allowed.
func (s Server) IsDevelopment() bool {
	return s.Environment == EnvDevelopment
}

// FromEnv loads an optional .env file and then reads the process environment.
func FromEnv() (Server, error) {
	_ = godotenv.Load()
	return Load(os.LookupEnv)
}

// Load builds the configuration from lookup, applying defaults and
// validating required values.
func Load(lookup func(string) (string, bool)) (Server, error) {
	e := env{lookup: lookup}
	cfg := Server{
		Addr:           e.str("MEDFAYDA_ADDR", ":8080"),
		Environment:    e.str("ENVIRONMENT", EnvDevelopment),
		TrustedProxies: e.list("TRUSTED_PROXIES", nil),
		Provider: ProviderConfig{
			IssuerURL:             e.str("FAYDA_ISSUER_URL", ""),
			ClientID:              e.str("FAYDA_CLIENT_ID", ""),
			ClientSecret:          e.str("FAYDA_CLIENT_SECRET", ""),
			PrivateKey:            e.str("FAYDA_PRIVATE_KEY", ""),
			RedirectURL:           e.str("FAYDA_REDIRECT_URI", ""),
			AuthURL:               e.str("FAYDA_AUTHORIZATION_URL", ""),
			TokenURL:              e.str("FAYDA_TOKEN_URL", ""),
			UserInfoURL:           e.str("FAYDA_USERINFO_URL", ""),
			JWKSURL:               e.str("FAYDA_JWKS_URL", ""),
			Scopes:                e.list("FAYDA_SCOPES", []string{"openid", "profile", "email", "phone"}),
			Timeout:               e.duration("PROVIDER_TIMEOUT", 10*time.Second),
			PostLogoutRedirectURL: e.str("FAYDA_POST_LOGOUT_REDIRECT_URI", ""),
		},
		Session: SessionConfig{
			SigningKey: e.str("SESSION_SIGNING_KEY", ""),
			TTL:        e.duration("SESSION_TTL", 24*time.Hour),
			Issuer:     e.str("SESSION_ISSUER", "medfayda"),
			Audience:   e.str("SESSION_AUDIENCE", "medfayda-portal"),
		},
		Replay: ReplayConfig{
			TTL:           e.duration("REPLAY_TTL", 5*time.Minute),
			SweepInterval: e.duration("REPLAY_SWEEP_INTERVAL", 5*time.Minute),
		},
		Local: LocalLoginConfig{
			Enabled:        e.bool("LOCAL_LOGIN_ENABLED", false),
			CodeTTL:        e.duration("OTP_TTL", 5*time.Minute),
			MaxAttempts:    e.int("OTP_MAX_ATTEMPTS", 3),
			SendsPerMinute: e.int("OTP_SENDS_PER_MINUTE", 3),
			RevealCodes:    e.bool("OTP_LOG_CODES", false),
		},
		Database: DatabaseConfig{
			URL:             e.str("DATABASE_URL", ""),
			MaxOpenConns:    e.int("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    e.int("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: e.duration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
			AutoMigrate:     e.bool("DATABASE_AUTO_MIGRATE", false),
		},
		Redis: RedisConfig{
			URL:          e.str("REDIS_URL", ""),
			PoolSize:     e.int("REDIS_POOL_SIZE", 10),
			MinIdleConns: e.int("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  e.duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  e.duration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: e.duration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Audit: AuditConfig{
			BufferSize:   e.int("AUDIT_BUFFER_SIZE", 1024),
			KafkaBrokers: e.str("KAFKA_BROKERS", ""),
			Topic:        e.str("AUDIT_TOPIC", "medfayda.audit"),
		},
	}
	if len(e.errs) > 0 {
		return Server{}, errors.Join(e.errs...)
	}

	if cfg.Session.SigningKey == "" && cfg.IsDevelopment() {
		cfg.Session.SigningKey = DevSigningKey
	}
	if err := cfg.validate(); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

func (s Server) validate() error {
	var errs []error
	if len(s.Session.SigningKey) < minSigningKeySize {
		errs = append(errs, fmt.Errorf("SESSION_SIGNING_KEY must be at least %d bytes", minSigningKeySize))
	}
	if s.Provider.ClientID == "" {
		errs = append(errs, errors.New("FAYDA_CLIENT_ID is required"))
	}
	if s.Provider.RedirectURL == "" {
		errs = append(errs, errors.New("FAYDA_REDIRECT_URI is required"))
	}
	if s.Provider.IssuerURL == "" {
		errs = append(errs, errors.New("FAYDA_ISSUER_URL is required"))
	}
	if s.Provider.ClientSecret == "" && s.Provider.PrivateKey == "" {
		errs = append(errs, errors.New("one of FAYDA_CLIENT_SECRET or FAYDA_PRIVATE_KEY is required"))
	}
	if s.Replay.TTL <= 0 || s.Session.TTL <= 0 || s.Local.CodeTTL <= 0 {
		errs = append(errs, errors.New("REPLAY_TTL, SESSION_TTL and OTP_TTL must be positive"))
	}
	if s.Local.MaxAttempts < 1 {
		errs = append(errs, errors.New("OTP_MAX_ATTEMPTS must be at least 1"))
	}
	if s.Local.RevealCodes && !s.IsDevelopment() {
		errs = append(errs, errors.New("OTP_LOG_CODES is only allowed in development"))
	}
	return errors.Join(errs...)
}

// env reads typed values and collects parse errors instead of silently
// falling back to defaults.
type env struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (e *env) raw(key string) (string, bool) {
	v, ok := e.lookup(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (e *env) str(key, def string) string {
	if v, ok := e.raw(key); ok {
		return v
	}
	return def
}

func (e *env) list(key string, def []string) []string {
	v, ok := e.raw(key)
	if !ok {
		return def
	}
	return strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ' ' })
}

func (e *env) duration(key string, def time.Duration) time.Duration {
	v, ok := e.raw(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}

func (e *env) int(key string, def int) int {
	v, ok := e.raw(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func (e *env) bool(key string, def bool) bool {
	v, ok := e.raw(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return b
}
