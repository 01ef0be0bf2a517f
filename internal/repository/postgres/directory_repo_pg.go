package postgres

import (
	"context"
	"fmt"

	"github.com/cwrk-planet/huddle-service/internal/domain"
	"github.com/cwrk-planet/huddle-service/internal/repository"
	"github.com/cwrk-planet/huddle-service/internal/repository/queries"

	"github.com/jackc/pgx/v5"
)

type DirectoryRepo struct {
	q querier
}

func NewDirectoryRepoFromPool(q querier) *DirectoryRepo {
	return &DirectoryRepo{q: q}
}

func scanMember(row pgx.Row) (*domain.Member, error) {
	var m domain.Member
	if err := row.Scan(&m.ID, &m.WorkspaceID, &m.UserID, &m.DisplayName, &m.CreatedAt); err != nil {
		return nil, mapPgError(err)
	}
	return &m, nil
}

func (r *DirectoryRepo) GetMember(ctx context.Context, id domain.MemberID) (*domain.Member, error) {
	return scanMember(r.q.QueryRow(ctx, queries.QueryGetMember, id))
}

func (r *DirectoryRepo) MemberByUser(ctx context.Context, ws domain.WorkspaceID, user domain.UserID) (*domain.Member, error) {
	return scanMember(r.q.QueryRow(ctx, queries.QueryMemberByUser, ws, int64(user)))
}

func (r *DirectoryRepo) AddMember(ctx context.Context, m *domain.Member) error {
	_, err := r.q.Exec(ctx, queries.QueryAddMember, m.ID, m.WorkspaceID, int64(m.UserID), m.DisplayName, utc(m.CreatedAt))
	return mapPgError(err)
}

func (r *DirectoryRepo) RemoveMember(ctx context.Context, id domain.MemberID) error {
	cmd, err := r.q.Exec(ctx, queries.QueryRemoveMember, id)
	if err != nil {
		return mapPgError(err)
	}
	if cmd.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *DirectoryRepo) HasChannelAccess(ctx context.Context, member domain.MemberID, channelID string) (bool, error) {
	var ok bool
	err := r.q.QueryRow(ctx, queries.QueryHasChannelAccess, channelID, member).Scan(&ok)
	return ok, mapPgError(err)
}

func (r *DirectoryRepo) GrantChannel(ctx context.Context, channelID string, member domain.MemberID) error {
	_, err := r.q.Exec(ctx, queries.QueryGrantChannel, channelID, member)
	return mapPgError(err)
}

func scanConversation(row pgx.Row) (*domain.Conversation, error) {
	var c domain.Conversation
	if err := row.Scan(&c.ID, &c.WorkspaceID, &c.MemberA, &c.MemberB, &c.CreatedAt); err != nil {
		return nil, mapPgError(err)
	}
	return &c, nil
}

func (r *DirectoryRepo) GetConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	return scanConversation(r.q.QueryRow(ctx, queries.QueryGetConversation, id))
}

func (r *DirectoryRepo) FindConversation(ctx context.Context, ws domain.WorkspaceID, a, b domain.MemberID) (*domain.Conversation, error) {
	a, b = domain.OrderedPair(a, b)
	return scanConversation(r.q.QueryRow(ctx, queries.QueryFindConversation, ws, a, b))
}

func (r *DirectoryRepo) CreateConversation(ctx context.Context, c *domain.Conversation) error {
	if c.MemberA == c.MemberB {
		return fmt.Errorf("%w: conversation with self", repository.ErrInvalidInput)
	}
	c.MemberA, c.MemberB = domain.OrderedPair(c.MemberA, c.MemberB)
	_, err := r.q.Exec(ctx, queries.QueryCreateConversation, c.ID, c.WorkspaceID, c.MemberA, c.MemberB, utc(c.CreatedAt))
	return mapPgError(err)
}

func (r *DirectoryRepo) ListMemberScopes(ctx context.Context, member domain.MemberID) ([]domain.Scope, error) {
	rows, err := r.q.Query(ctx, queries.QueryListMemberScopes, member)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()

	var out []domain.Scope
	for rows.Next() {
		var typ, id string
		if err := rows.Scan(&typ, &id); err != nil {
			return nil, mapPgError(err)
		}
		out = append(out, domain.Scope{Type: domain.ScopeType(typ), ID: id})
	}
	return out, mapPgError(rows.Err())
}

func (r *DirectoryRepo) ListScopeMembers(ctx context.Context, scope domain.Scope) ([]domain.MemberID, error) {
	q := queries.QueryListChannelMembers
	if scope.Type == domain.ScopeConversation {
		q = queries.QueryListConversationMembers
	}
	rows, err := r.q.Query(ctx, q, scope.ID)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()

	var out []domain.MemberID
	for rows.Next() {
		var id domain.MemberID
		if err := rows.Scan(&id); err != nil {
			return nil, mapPgError(err)
		}
		out = append(out, id)
	}
	return out, mapPgError(rows.Err())
}
