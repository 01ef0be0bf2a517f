package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/cwrk-planet/huddle-service/internal/domain"
	"github.com/cwrk-planet/huddle-service/internal/repository"
)

type HuddleRepo struct {
	q querier
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var (
		s                    domain.Session
		scopeType            string
		active               int64
		createdAt, startedAt int64
		endedAt              sql.NullInt64
	)
	err := row.Scan(&s.ID, &s.WorkspaceID, &scopeType, &s.Scope.ID, &s.CreatedBy, &active, &createdAt, &startedAt, &endedAt)
	if err != nil {
		return nil, mapSQLiteError(err)
	}
	s.Scope.Type = domain.ScopeType(scopeType)
	s.Active = active == 1
	s.CreatedAt = fromNanos(createdAt)
	s.StartedAt = fromNanos(startedAt)
	s.EndedAt = fromNullNanos(endedAt)

	return &s, nil
}

func (r *HuddleRepo) GetSession(ctx context.Context, id domain.SessionID) (*domain.Session, error) {
	return scanSession(r.q.QueryRowContext(ctx, queryGetSession, string(id)))
}

func (r *HuddleRepo) ActiveByScope(ctx context.Context, scope domain.Scope) (*domain.Session, error) {
	return scanSession(r.q.QueryRowContext(ctx, queryActiveSessionByScope, string(scope.Type), scope.ID))
}

func (r *HuddleRepo) ActiveByScopes(ctx context.Context, scopes []domain.Scope) ([]domain.Session, error) {
	if len(scopes) == 0 {
		return nil, nil
	}
	var b strings.Builder
	b.WriteString(queryActiveSessionsByScopesPrefix)
	args := make([]any, 0, 2*len(scopes))
	for i, sc := range scopes {
		if i > 0 {
			b.WriteString(" OR ")
		}
		b.WriteString("(scope_type = ? AND scope_id = ?)")
		args = append(args, string(sc.Type), sc.ID)
	}
	b.WriteString(") ORDER BY started_at DESC")

	rows, err := r.q.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, mapSQLiteError(err)
	}
	return collectSessions(rows)
}

func (r *HuddleRepo) ActiveForMember(ctx context.Context, member domain.MemberID) ([]domain.Session, error) {
	rows, err := r.q.QueryContext(ctx, queryActiveSessionsForMember, string(member))
	if err != nil {
		return nil, mapSQLiteError(err)
	}
	return collectSessions(rows)
}

func collectSessions(rows *sql.Rows) ([]domain.Session, error) {
	defer rows.Close()

	var out []domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, mapSQLiteError(rows.Err())
}

func (r *HuddleRepo) CreateSession(ctx context.Context, s *domain.Session) error {
	_, err := r.q.ExecContext(ctx, queryCreateSession,
		string(s.ID),
		string(s.WorkspaceID),
		string(s.Scope.Type),
		s.Scope.ID,
		string(s.CreatedBy),
		toNanos(s.CreatedAt),
		toNanos(s.StartedAt),
	)
	return mapSQLiteError(err)
}

func (r *HuddleRepo) EndSession(ctx context.Context, id domain.SessionID, endedAt time.Time) error {
	res, err := r.q.ExecContext(ctx, queryEndSession, toNanos(endedAt), string(id))
	if err != nil {
		return mapSQLiteError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func scanParticipant(row rowScanner) (*domain.Participant, error) {
	var (
		p        domain.Participant
		role     string
		joinedAt int64
		leftAt   sql.NullInt64
	)
	if err := row.Scan(&p.SessionID, &p.MemberID, &role, &joinedAt, &leftAt); err != nil {
		return nil, mapSQLiteError(err)
	}
	p.Role = domain.Role(role)
	p.JoinedAt = fromNanos(joinedAt)
	p.LeftAt = fromNullNanos(leftAt)

	return &p, nil
}

func (r *HuddleRepo) GetParticipant(ctx context.Context, id domain.SessionID, member domain.MemberID) (*domain.Participant, error) {
	return scanParticipant(r.q.QueryRowContext(ctx, queryGetParticipant, string(id), string(member)))
}

func (r *HuddleRepo) InsertParticipant(ctx context.Context, p *domain.Participant) error {
	_, err := r.q.ExecContext(ctx, queryInsertParticipant,
		string(p.SessionID), string(p.MemberID), string(p.Role), toNanos(p.JoinedAt), toNullNanos(p.LeftAt))
	return mapSQLiteError(err)
}

func (r *HuddleRepo) UpdateParticipant(ctx context.Context, p *domain.Participant) error {
	res, err := r.q.ExecContext(ctx, queryUpdateParticipant,
		string(p.Role), toNanos(p.JoinedAt), toNullNanos(p.LeftAt), string(p.SessionID), string(p.MemberID))
	if err != nil {
		return mapSQLiteError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *HuddleRepo) ListParticipants(ctx context.Context, id domain.SessionID, activeOnly bool) ([]domain.Participant, error) {
	flag := 0
	if activeOnly {
		flag = 1
	}
	rows, err := r.q.QueryContext(ctx, queryListParticipants, string(id), flag)
	if err != nil {
		return nil, mapSQLiteError(err)
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
	return list, mapSQLiteError(rows.Err())
}
