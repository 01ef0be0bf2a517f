package sqlite

import (
	"context"
	"time"

	"github.com/cwrk-planet/huddle-service/internal/domain"
)

type SignalRepo struct {
	q querier
}

func (r *SignalRepo) Append(ctx context.Context, e *domain.SignalEnvelope) error {
	err := r.q.QueryRowContext(ctx, queryAppendSignal,
		e.ID, string(e.SessionID), string(e.From), string(e.To), e.Payload, toNanos(e.CreatedAt),
	).Scan(&e.Seq)
	return mapSQLiteError(err)
}

func (r *SignalRepo) ListFor(ctx context.Context, id domain.SessionID, to domain.MemberID, since time.Time) ([]domain.SignalEnvelope, error) {
	rows, err := r.q.QueryContext(ctx, queryListSignalsFor, string(id), string(to), toNanos(since))
	if err != nil {
		return nil, mapSQLiteError(err)
	}
	defer rows.Close()

	var out []domain.SignalEnvelope
	for rows.Next() {
		var (
			e         domain.SignalEnvelope
			createdAt int64
		)
		if err := rows.Scan(&e.Seq, &e.ID, &e.SessionID, &e.From, &e.To, &e.Payload, &createdAt); err != nil {
			return nil, mapSQLiteError(err)
		}
		e.CreatedAt = fromNanos(createdAt)
		out = append(out, e)
	}
	return out, mapSQLiteError(rows.Err())
}

func (r *SignalRepo) PurgeSession(ctx context.Context, id domain.SessionID, before time.Time) (int64, error) {
	res, err := r.q.ExecContext(ctx, queryPurgeSessionSignals, string(id), toNanos(before))
	if err != nil {
		return 0, mapSQLiteError(err)
	}
	return res.RowsAffected()
}

func (r *SignalRepo) PurgeBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.q.ExecContext(ctx, queryPurgeSignals, toNanos(before))
	if err != nil {
		return 0, mapSQLiteError(err)
	}
	return res.RowsAffected()
}
