package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cwrk-planet/huddle-service/internal/pg"

	"gopkg.in/yaml.v3"
)

type HTTP struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	IdleTimeout     time.Duration `yaml:"idleTimeout"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

type GRPC struct {
	Addr string `yaml:"addr"`
}

type Logging struct {
	Env        string `yaml:"env"`     // dev|stage|prod
	Service    string `yaml:"service"` // huddle-service
	Version    string `yaml:"version"` // v0.1.0; пусто — версия сборки
	// пусто — HUDDLE_INSTANCE_ID, POD_NAME или hostname
	InstanceID string `yaml:"instanceId"`
	Backend    string `yaml:"backend"`   // std|zap
	Level      string `yaml:"level"`     // debug|info|warn|error
	AddSource  bool   `yaml:"addSource"` // false|true
	Debug      bool   `yaml:"debug"`     // false|true
}

type Postgres struct {
	DSN               string        `yaml:"dsn"`
	MaxConns          int32         `yaml:"maxConns"`
	MinConns          int32         `yaml:"minConns"`
	MaxConnLifetime   time.Duration `yaml:"maxConnLifetime"`
	MaxConnIdleTime   time.Duration `yaml:"maxConnIdleTime"`
	HealthCheckPeriod time.Duration `yaml:"healthCheckPeriod"`
	ApplicationName   string        `yaml:"applicationName"`
	LockTimeout       time.Duration `yaml:"lockTimeout"`
	StatementTimeout  time.Duration `yaml:"statementTimeout"`
	ConnectAttempts   int           `yaml:"connectAttempts"`
}

type SQLite struct {
	Path        string        `yaml:"path"`
	BusyTimeout time.Duration `yaml:"busyTimeout"`
}

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Storage struct {
	Driver   string   `yaml:"driver"` // postgres|sqlite
	Postgres Postgres `yaml:"postgres"`
	SQLite   SQLite   `yaml:"sqlite"`
}

func (s *Storage) Validate() error {
	switch s.Driver {
	case "":
		s.Driver = DriverPostgres
		return s.Validate()
	case DriverPostgres:
		if s.Postgres.DSN == "" {
			return errors.New("storage.postgres.dsn is required")
		}
	case DriverSQLite:
		if s.SQLite.Path == "" {
			return errors.New("storage.sqlite.path is required")
		}
		if s.SQLite.BusyTimeout <= 0 {
			s.SQLite.BusyTimeout = 5 * time.Second
		}
	default:
		return fmt.Errorf("storage.driver %q is not supported", s.Driver)
	}
	return nil
}

const (
	AuthModeJWT    = "jwt"
	AuthModeHeader = "header" // только для dev: доверяем X-User-ID
)

type Auth struct {
	Mode          string        `yaml:"mode"`
	Secret        string        `yaml:"secret"`        // HS256
	PublicKeyPath string        `yaml:"publicKeyPath"` // RS256
	Issuer        string        `yaml:"issuer"`
	Audience      string        `yaml:"audience"`
	ClockSkew     time.Duration `yaml:"clockSkew"`
}

func (a *Auth) Validate() error {
	if a.Mode == "" {
		a.Mode = AuthModeJWT
	}
	switch a.Mode {
	case AuthModeHeader:
		return nil
	case AuthModeJWT:
	default:
		return fmt.Errorf("auth.mode %q is not supported", a.Mode)
	}
	if a.Secret == "" && a.PublicKeyPath == "" {
		return errors.New("auth.secret or auth.publicKeyPath is required")
	}
	if a.ClockSkew < 0 || a.ClockSkew > time.Minute {
		return errors.New("auth.clockSkew must be in [0..1m]")
	}
	return nil
}

type Huddle struct {
	SignalReadWindow  time.Duration `yaml:"signalReadWindow"`
	SignalPurgeWindow time.Duration `yaml:"signalPurgeWindow"`
	CleanupSchedule   string        `yaml:"cleanupSchedule"`
	StartRetries      int           `yaml:"startRetries"`
}

func (h *Huddle) Validate() error {
	if h.SignalReadWindow <= 0 {
		h.SignalReadWindow = 30 * time.Second
	}
	if h.SignalPurgeWindow <= 0 {
		h.SignalPurgeWindow = 60 * time.Second
	}
	if h.SignalPurgeWindow < h.SignalReadWindow {
		return errors.New("huddle.signalPurgeWindow must be >= huddle.signalReadWindow")
	}
	if h.CleanupSchedule == "" {
		h.CleanupSchedule = "@every 1m"
	}
	if h.StartRetries <= 0 {
		h.StartRetries = 3
	}
	return nil
}

const (
	EventsLocal = "local"
	EventsRedis = "redis"
)

type Events struct {
	Backend  string `yaml:"backend"` // local|redis
	RedisURL string `yaml:"redisURL"`
	Channel  string `yaml:"channel"`
}

func (e *Events) Validate() error {
	if e.Backend == "" {
		e.Backend = EventsLocal
	}
	if e.Channel == "" {
		e.Channel = "huddle-events"
	}
	switch e.Backend {
	case EventsLocal:
	case EventsRedis:
		if e.RedisURL == "" {
			// как в go-chatty: REDIS_URL из окружения
			e.RedisURL = os.Getenv("REDIS_URL")
		}
		if e.RedisURL == "" {
			return errors.New("events.redisURL (or REDIS_URL) is required for redis backend")
		}
	default:
		return fmt.Errorf("events.backend %q is not supported", e.Backend)
	}
	return nil
}

type CORS struct {
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

// Mesh — настройки клиентского оркестратора (команда peer).
type Mesh struct {
	PollInterval   time.Duration `yaml:"pollInterval"`
	RosterInterval time.Duration `yaml:"rosterInterval"`
	ConnectTimeout time.Duration `yaml:"connectTimeout"`
	ICEServers     []string      `yaml:"iceServers"`
	UDPPortMin     uint16        `yaml:"udpPortMin"`
	UDPPortMax     uint16        `yaml:"udpPortMax"`
}

func (m *Mesh) Validate() error {
	if m.PollInterval <= 0 {
		m.PollInterval = 100 * time.Millisecond
	}
	if m.RosterInterval <= 0 {
		m.RosterInterval = time.Second
	}
	if m.ConnectTimeout <= 0 {
		m.ConnectTimeout = 15 * time.Second
	}
	if (m.UDPPortMin == 0) != (m.UDPPortMax == 0) || m.UDPPortMin > m.UDPPortMax {
		return errors.New("mesh.udpPortMin/udpPortMax must be set together and ordered")
	}
	return nil
}

type Config struct {
	HTTP    HTTP    `yaml:"http"`
	GRPC    GRPC    `yaml:"grpc"`
	Logging Logging `yaml:"logging"`
	Storage Storage `yaml:"storage"`
	Auth    Auth    `yaml:"auth"`
	Huddle  Huddle  `yaml:"huddle"`
	Events  Events  `yaml:"events"`
	CORS    CORS    `yaml:"cors"`
	Mesh    Mesh    `yaml:"mesh"`
}

// LoadConfig читает YAML: путь из аргумента, иначе CONFIG_PATH, иначе ./config/config.yaml.
func LoadConfig(path ...string) (*Config, error) {
	filename := os.Getenv("CONFIG_PATH")
	if len(path) > 0 && strings.TrimSpace(path[0]) != "" {
		filename = path[0]
	}
	if filename == "" {
		filename = "./config/config.yaml"
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", filename, err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.HTTP.Addr == "" {
		return errors.New("http.addr is required")
	}
	if c.GRPC.Addr == "" {
		return errors.New("grpc.addr is required")
	}
	for _, v := range []interface{ Validate() error }{&c.Storage, &c.Auth, &c.Huddle, &c.Events, &c.Mesh} {
		if err := v.Validate(); err != nil {
			return err
		}
	}

	// установка дефолтов, если значения не указаны
	c.HTTP.ReadTimeout = durationOr(c.HTTP.ReadTimeout, 10*time.Second)
	c.HTTP.WriteTimeout = durationOr(c.HTTP.WriteTimeout, 15*time.Second)
	c.HTTP.IdleTimeout = durationOr(c.HTTP.IdleTimeout, 60*time.Second)
	c.HTTP.RequestTimeout = durationOr(c.HTTP.RequestTimeout, 30*time.Second)
	c.HTTP.ShutdownTimeout = durationOr(c.HTTP.ShutdownTimeout, 10*time.Second)

	if c.Logging.Service == "" {
		c.Logging.Service = "huddle-service"
	}
	if c.Logging.Env == "" {
		c.Logging.Env = "dev"
	}
	if c.Logging.Version == "" {
		c.Logging.Version = "v0.1.0"
	}
	if c.Logging.Backend == "" {
		c.Logging.Backend = "std"
	}
	if len(c.CORS.AllowedOrigins) == 0 {
		c.CORS.AllowedOrigins = []string{"http://localhost:5173", "http://127.0.0.1:5173"}
	}
	return nil
}

func durationOr(d, def time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return def
}

func (p Postgres) ToPGConfig() pg.Config {
	return pg.Config{
		DSN:               p.DSN,
		MaxConns:          p.MaxConns,
		MinConns:          p.MinConns,
		MaxConnLifetime:   p.MaxConnLifetime,
		MaxConnIdleTime:   p.MaxConnIdleTime,
		HealthCheckPeriod: p.HealthCheckPeriod,
		ApplicationName:   p.ApplicationName,
		LockTimeout:       p.LockTimeout,
		StatementTimeout:  p.StatementTimeout,
		ConnectAttempts:   p.ConnectAttempts,
	}
}
