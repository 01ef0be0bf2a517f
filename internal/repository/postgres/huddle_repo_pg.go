package postgres

import (
	"context"
	"time"

	"github.com/cwrk-planet/huddle-service/internal/domain"
	"github.com/cwrk-planet/huddle-service/internal/repository"
	"github.com/cwrk-planet/huddle-service/internal/repository/queries"

	"github.com/jackc/pgx/v5"
)

type HuddleRepo struct {
	q    querier
	lock bool
}

func NewHuddleRepoFromPool(q querier) *HuddleRepo {
	return &HuddleRepo{q: q}
}

// NewHuddleRepoFromTx — чтения сессий внутри транзакции идут с FOR UPDATE.
func NewHuddleRepoFromTx(tx pgx.Tx) *HuddleRepo {
	return &HuddleRepo{q: tx, lock: true}
}

func (r *HuddleRepo) locked(sql string) string {
	if r.lock {
		return sql + queries.ForUpdate
	}
	return sql
}

func scanSession(row pgx.Row) (*domain.Session, error) {
	var (
		s         domain.Session
		scopeType string
	)
	err := row.Scan(
		&s.ID,
		&s.WorkspaceID,
		&scopeType,
		&s.Scope.ID,
		&s.CreatedBy,
		&s.Active,
		&s.CreatedAt,
		&s.StartedAt,
		&s.EndedAt,
	)
	if err != nil {
		return nil, mapPgError(err)
	}
	s.Scope.Type = domain.ScopeType(scopeType)

	return &s, nil
}

func (r *HuddleRepo) GetSession(ctx context.Context, id domain.SessionID) (*domain.Session, error) {
	return scanSession(r.q.QueryRow(ctx, r.locked(queries.QueryGetSession), id))
}

func (r *HuddleRepo) ActiveByScope(ctx context.Context, scope domain.Scope) (*domain.Session, error) {
	return scanSession(r.q.QueryRow(ctx, r.locked(queries.QueryActiveSessionByScope), string(scope.Type), scope.ID))
}

func (r *HuddleRepo) ActiveByScopes(ctx context.Context, scopes []domain.Scope) ([]domain.Session, error) {
	if len(scopes) == 0 {
		return nil, nil
	}
	types := make([]string, len(scopes))
	ids := make([]string, len(scopes))
	for i, sc := range scopes {
		types[i], ids[i] = string(sc.Type), sc.ID
	}

	rows, err := r.q.Query(ctx, queries.QueryActiveSessionsByScopes, types, ids)
	if err != nil {
		return nil, mapPgError(err)
	}
	return collectSessions(rows)
}

func (r *HuddleRepo) ActiveForMember(ctx context.Context, member domain.MemberID) ([]domain.Session, error) {
	rows, err := r.q.Query(ctx, queries.QueryActiveSessionsForMember, member)
	if err != nil {
		return nil, mapPgError(err)
	}
	return collectSessions(rows)
}

func collectSessions(rows pgx.Rows) ([]domain.Session, error) {
	defer rows.Close()

	var out []domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, mapPgError(rows.Err())
}

func (r *HuddleRepo) CreateSession(ctx context.Context, s *domain.Session) error {
	_, err := r.q.Exec(ctx, queries.QueryCreateSession,
		s.ID,
		s.WorkspaceID,
		string(s.Scope.Type),
		s.Scope.ID,
		s.CreatedBy,
		utc(s.CreatedAt),
		utc(s.StartedAt),
	)
	return mapPgError(err)
}

func (r *HuddleRepo) EndSession(ctx context.Context, id domain.SessionID, endedAt time.Time) error {
	cmd, err := r.q.Exec(ctx, queries.QueryEndSession, id, utc(endedAt))
	if err != nil {
		return mapPgError(err)
	}
	if cmd.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func scanParticipant(row pgx.Row) (*domain.Participant, error) {
	var (
		p    domain.Participant
		role string
	)
	if err := row.Scan(&p.SessionID, &p.MemberID, &role, &p.JoinedAt, &p.LeftAt); err != nil {
		return nil, mapPgError(err)
	}
	p.Role = domain.Role(role)

	return &p, nil
}

func (r *HuddleRepo) GetParticipant(ctx context.Context, id domain.SessionID, member domain.MemberID) (*domain.Participant, error) {
	return scanParticipant(r.q.QueryRow(ctx, queries.QueryGetParticipant, id, member))
}

func (r *HuddleRepo) InsertParticipant(ctx context.Context, p *domain.Participant) error {
	_, err := r.q.Exec(ctx, queries.QueryInsertParticipant,
		p.SessionID, p.MemberID, string(p.Role), utc(p.JoinedAt), utcPtr(p.LeftAt))
	return mapPgError(err)
}

func (r *HuddleRepo) UpdateParticipant(ctx context.Context, p *domain.Participant) error {
	cmd, err := r.q.Exec(ctx, queries.QueryUpdateParticipant,
		p.SessionID, p.MemberID, string(p.Role), utc(p.JoinedAt), utcPtr(p.LeftAt))
	if err != nil {
		return mapPgError(err)
	}
	if cmd.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *HuddleRepo) ListParticipants(ctx context.Context, id domain.SessionID, activeOnly bool) ([]domain.Participant, error) {
	rows, err := r.q.Query(ctx, queries.QueryListParticipants, id, activeOnly)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()

	list := make([]domain.Participant, 0, 8)
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *p)
	}
	return list, mapPgError(rows.Err())
}
