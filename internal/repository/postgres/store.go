package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"

	"github.com/cwrk-planet/huddle-service/internal/pg"
	"github.com/cwrk-planet/huddle-service/internal/repository"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.sql
var migrations embed.FS

type Store struct {
	pool *pgxpool.Pool

	huddles   *HuddleRepo
	signals   *SignalRepo
	directory *DirectoryRepo
}

var _ repository.Store = (*Store)(nil)

func New(ctx context.Context, cfg pg.Config) (*Store, error) {
	pool, err := pg.NewPool(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pg.NewPool: %w", err)
	}
	return NewFromPool(pool), nil
}

func NewFromPool(pool *pgxpool.Pool) *Store {
	return &Store{
		pool:      pool,
		huddles:   NewHuddleRepoFromPool(pool),
		signals:   NewSignalRepoFromPool(pool),
		directory: NewDirectoryRepoFromPool(pool),
	}
}

func (s *Store) Huddles() repository.HuddleRepository      { return s.huddles }
func (s *Store) Signals() repository.SignalRepository      { return s.signals }
func (s *Store) Directory() repository.DirectoryRepository { return s.directory }

type txRepos struct {
	huddles *HuddleRepo
}

func (t txRepos) Huddles() repository.HuddleRepository { return t.huddles }

// InTx — READ COMMITTED + блокировки строк huddles (FOR UPDATE) дают
// сериализацию мутаций в пределах одного scope.
func (s *Store) InTx(ctx context.Context, fn func(tx repository.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(txRepos{huddles: NewHuddleRepoFromTx(tx)}); err != nil {
		return err
	}

	return mapPgError(tx.Commit(ctx))
}

func (s *Store) Migrate(ctx context.Context) error {
	names, err := fs.Glob(migrations, "migrations/*.sql")
	if err != nil {
		return err
	}
	sort.Strings(names)
	for _, name := range names {
		sql, err := migrations.ReadFile(name)
		if err != nil {
			return err
		}
		if _, err := s.pool.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("migration %s: %w", name, err)
		}
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error { return pg.Ping(ctx, s.pool) }

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
