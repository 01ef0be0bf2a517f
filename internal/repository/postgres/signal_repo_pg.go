package postgres

import (
	"context"
	"time"

	"github.com/cwrk-planet/huddle-service/internal/domain"
	"github.com/cwrk-planet/huddle-service/internal/repository/queries"
)

// SignalRepo — короткоживущий почтовый ящик; строки независимы, без блокировок.
type SignalRepo struct {
	q querier
}

func NewSignalRepoFromPool(q querier) *SignalRepo {
	return &SignalRepo{q: q}
}

func (r *SignalRepo) Append(ctx context.Context, e *domain.SignalEnvelope) error {
	err := r.q.QueryRow(ctx, queries.QueryAppendSignal,
		e.ID, e.SessionID, e.From, e.To, e.Payload, utc(e.CreatedAt),
	).Scan(&e.Seq)
	return mapPgError(err)
}

func (r *SignalRepo) ListFor(ctx context.Context, id domain.SessionID, to domain.MemberID, since time.Time) ([]domain.SignalEnvelope, error) {
	rows, err := r.q.Query(ctx, queries.QueryListSignalsFor, id, to, utc(since))
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()

	var out []domain.SignalEnvelope
	for rows.Next() {
		var e domain.SignalEnvelope
		if err := rows.Scan(&e.Seq, &e.ID, &e.SessionID, &e.From, &e.To, &e.Payload, &e.CreatedAt); err != nil {
			return nil, mapPgError(err)
		}
		out = append(out, e)
	}
	return out, mapPgError(rows.Err())
}

func (r *SignalRepo) PurgeSession(ctx context.Context, id domain.SessionID, before time.Time) (int64, error) {
	cmd, err := r.q.Exec(ctx, queries.QueryPurgeSessionSignals, id, utc(before))
	if err != nil {
		return 0, mapPgError(err)
	}
	return cmd.RowsAffected(), nil
}

func (r *SignalRepo) PurgeBefore(ctx context.Context, before time.Time) (int64, error) {
	cmd, err := r.q.Exec(ctx, queries.QueryPurgeSignals, utc(before))
	if err != nil {
		return 0, mapPgError(err)
	}
	return cmd.RowsAffected(), nil
}
