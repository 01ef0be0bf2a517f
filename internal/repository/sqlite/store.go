package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"net/url"
	"sort"
	"time"

	"github.com/cwrk-planet/huddle-service/internal/repository"
)

//go:embed migrations/*.sql
var migrations embed.FS

type Config struct {
	Path        string
	BusyTimeout time.Duration
}

// Store — встраиваемое хранилище для dev и тестов. Одно соединение:
// SQLite всё равно допускает одного писателя, а так транзакции не мешают друг другу.
type Store struct {
	db *sql.DB

	huddles   *HuddleRepo
	signals   *SignalRepo
	directory *DirectoryRepo
}

var _ repository.Store = (*Store)(nil)

func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = 5 * time.Second
	}
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", cfg.BusyTimeout.Milliseconds()))
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "journal_mode(WAL)")

	db, err := sql.Open("sqlite", cfg.Path+"?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	return &Store{
		db:        db,
		huddles:   &HuddleRepo{q: db},
		signals:   &SignalRepo{q: db},
		directory: &DirectoryRepo{q: db},
	}, nil
}

func (s *Store) Huddles() repository.HuddleRepository      { return s.huddles }
func (s *Store) Signals() repository.SignalRepository      { return s.signals }
func (s *Store) Directory() repository.DirectoryRepository { return s.directory }

type txRepos struct {
	huddles *HuddleRepo
}

func (t txRepos) Huddles() repository.HuddleRepository { return t.huddles }

func (s *Store) InTx(ctx context.Context, fn func(tx repository.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(txRepos{huddles: &HuddleRepo{q: tx}}); err != nil {
		return err
	}

	return mapSQLiteError(tx.Commit())
}

func (s *Store) Migrate(ctx context.Context) error {
	names, err := fs.Glob(migrations, "migrations/*.sql")
	if err != nil {
		return err
	}
	sort.Strings(names)
	for _, name := range names {
		stmt, err := migrations.ReadFile(name)
		if err != nil {
			return err
		}
		if _, err := s.db.ExecContext(ctx, string(stmt)); err != nil {
			return fmt.Errorf("migration %s: %w", name, err)
		}
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Close() error { return s.db.Close() }
