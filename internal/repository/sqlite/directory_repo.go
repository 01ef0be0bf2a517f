package sqlite

import (
	"context"
	"fmt"

	"github.com/cwrk-planet/huddle-service/internal/domain"
	"github.com/cwrk-planet/huddle-service/internal/repository"
)

type DirectoryRepo struct {
	q querier
}

func scanMember(row rowScanner) (*domain.Member, error) {
	var (
		m         domain.Member
		userID    int64
		createdAt int64
	)
	if err := row.Scan(&m.ID, &m.WorkspaceID, &userID, &m.DisplayName, &createdAt); err != nil {
		return nil, mapSQLiteError(err)
	}
	m.UserID = domain.UserID(userID)
	m.CreatedAt = fromNanos(createdAt)
	return &m, nil
}

func (r *DirectoryRepo) GetMember(ctx context.Context, id domain.MemberID) (*domain.Member, error) {
	return scanMember(r.q.QueryRowContext(ctx, queryGetMember, string(id)))
}

func (r *DirectoryRepo) MemberByUser(ctx context.Context, ws domain.WorkspaceID, user domain.UserID) (*domain.Member, error) {
	return scanMember(r.q.QueryRowContext(ctx, queryMemberByUser, string(ws), int64(user)))
}

func (r *DirectoryRepo) AddMember(ctx context.Context, m *domain.Member) error {
	_, err := r.q.ExecContext(ctx, queryAddMember,
		string(m.ID), string(m.WorkspaceID), int64(m.UserID), m.DisplayName, toNanos(m.CreatedAt))
	return mapSQLiteError(err)
}

func (r *DirectoryRepo) RemoveMember(ctx context.Context, id domain.MemberID) error {
	res, err := r.q.ExecContext(ctx, queryRemoveMember, string(id))
	if err != nil {
		return mapSQLiteError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *DirectoryRepo) HasChannelAccess(ctx context.Context, member domain.MemberID, channelID string) (bool, error) {
	var ok int64
	err := r.q.QueryRowContext(ctx, queryHasChannelAccess, channelID, string(member)).Scan(&ok)
	return ok == 1, mapSQLiteError(err)
}

func (r *DirectoryRepo) GrantChannel(ctx context.Context, channelID string, member domain.MemberID) error {
	_, err := r.q.ExecContext(ctx, queryGrantChannel, channelID, string(member))
	return mapSQLiteError(err)
}

func scanConversation(row rowScanner) (*domain.Conversation, error) {
	var (
		c         domain.Conversation
		createdAt int64
	)
	if err := row.Scan(&c.ID, &c.WorkspaceID, &c.MemberA, &c.MemberB, &createdAt); err != nil {
		return nil, mapSQLiteError(err)
	}
	c.CreatedAt = fromNanos(createdAt)
	return &c, nil
}

func (r *DirectoryRepo) GetConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	return scanConversation(r.q.QueryRowContext(ctx, queryGetConversation, id))
}

func (r *DirectoryRepo) FindConversation(ctx context.Context, ws domain.WorkspaceID, a, b domain.MemberID) (*domain.Conversation, error) {
	a, b = domain.OrderedPair(a, b)
	return scanConversation(r.q.QueryRowContext(ctx, queryFindConversation, string(ws), string(a), string(b)))
}

func (r *DirectoryRepo) CreateConversation(ctx context.Context, c *domain.Conversation) error {
	if c.MemberA == c.MemberB {
		return fmt.Errorf("%w: conversation with self", repository.ErrInvalidInput)
	}
	c.MemberA, c.MemberB = domain.OrderedPair(c.MemberA, c.MemberB)
	_, err := r.q.ExecContext(ctx, queryCreateConversation,
		c.ID, string(c.WorkspaceID), string(c.MemberA), string(c.MemberB), toNanos(c.CreatedAt))
	return mapSQLiteError(err)
}

func (r *DirectoryRepo) ListMemberScopes(ctx context.Context, member domain.MemberID) ([]domain.Scope, error) {
	rows, err := r.q.QueryContext(ctx, queryListMemberScopes, string(member))
	if err != nil {
		return nil, mapSQLiteError(err)
	}
	defer rows.Close()

	var out []domain.Scope
	for rows.Next() {
		var typ, id string
		if err := rows.Scan(&typ, &id); err != nil {
			return nil, mapSQLiteError(err)
		}
		out = append(out, domain.Scope{Type: domain.ScopeType(typ), ID: id})
	}
	return out, mapSQLiteError(rows.Err())
}

func (r *DirectoryRepo) ListScopeMembers(ctx context.Context, scope domain.Scope) ([]domain.MemberID, error) {
	q := queryListChannelMembers
	if scope.Type == domain.ScopeConversation {
		q = queryListConversationMembers
	}
	rows, err := r.q.QueryContext(ctx, q, scope.ID)
	if err != nil {
		return nil, mapSQLiteError(err)
	}
	defer rows.Close()

	var out []domain.MemberID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, mapSQLiteError(err)
		}
		out = append(out, domain.MemberID(id))
	}
	return out, mapSQLiteError(rows.Err())
}
