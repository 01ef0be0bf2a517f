package pg

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const DefaultApplicationName = "huddle-service"

type Config struct {
	DSN               string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
	ApplicationName   string // пусто — huddle-service
	SearchPath        string // изолированная схема в интеграционных тестах

	// LockTimeout ограничивает ожидание FOR UPDATE на строке хадла:
	// лучше вернуть ошибку клиенту, чем держать соединение из пула.
	LockTimeout      time.Duration
	StatementTimeout time.Duration

	// ConnectAttempts — сколько раз пинговать при старте; 0 — один раз.
	ConnectAttempts int
	ConnectBackoff  time.Duration
}

// RuntimeParams — параметры сессии, которые пул выставляет каждому соединению.
func (c Config) RuntimeParams() map[string]string {
	params := map[string]string{"application_name": c.ApplicationName}
	if params["application_name"] == "" {
		params["application_name"] = DefaultApplicationName
	}
	if c.SearchPath != "" {
		params["search_path"] = c.SearchPath
	}
	if c.LockTimeout > 0 {
		params["lock_timeout"] = millis(c.LockTimeout)
	}
	if c.StatementTimeout > 0 {
		params["statement_timeout"] = millis(c.StatementTimeout)
	}
	return params
}

func millis(d time.Duration) string { return fmt.Sprintf("%dms", d.Milliseconds()) }

// NewPool создаёт пул и ждёт, пока база ответит на Ping.
func NewPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}

	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pc.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		pc.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.HealthCheckPeriod > 0 {
		pc.HealthCheckPeriod = cfg.HealthCheckPeriod
	}
	if pc.ConnConfig.RuntimeParams == nil {
		pc.ConnConfig.RuntimeParams = map[string]string{}
	}
	for k, v := range cfg.RuntimeParams() {
		pc.ConnConfig.RuntimeParams[k] = v
	}

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, err
	}
	if err := waitReady(ctx, pool, cfg.ConnectAttempts, cfg.ConnectBackoff); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// waitReady пингует с растущей паузой; база в compose поднимается позже сервиса.
func waitReady(ctx context.Context, pool *pgxpool.Pool, attempts int, backoff time.Duration) error {
	if attempts < 1 {
		attempts = 1
	}
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	var err error
	for i := 1; i <= attempts; i++ {
		if err = Ping(ctx, pool); err == nil {
			return nil
		}
		if i == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(i) * backoff):
		}
	}
	return fmt.Errorf("ping after %d attempts: %w", attempts, err)
}

func Ping(ctx context.Context, pool *pgxpool.Pool) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return pool.Ping(ctx)
}
