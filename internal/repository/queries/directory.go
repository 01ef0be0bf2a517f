package queries

const (
	QueryGetMember = `SELECT id, workspace_id, user_id, display_name, created_at
FROM workspace_members WHERE id = $1`

	QueryMemberByUser = `SELECT id, workspace_id, user_id, display_name, created_at
FROM workspace_members WHERE workspace_id = $1 AND user_id = $2`

	QueryAddMember = `INSERT INTO workspace_members (id, workspace_id, user_id, display_name, created_at)
VALUES ($1, $2, $3, $4, $5)`

	QueryRemoveMember = `DELETE FROM workspace_members WHERE id = $1`

	QueryHasChannelAccess = `SELECT EXISTS(SELECT 1 FROM channel_members WHERE channel_id = $1 AND member_id = $2)`

	QueryGrantChannel = `INSERT INTO channel_members (channel_id, member_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`

	QueryGetConversation = `SELECT id, workspace_id, member_a, member_b, created_at
FROM conversations WHERE id = $1`

	QueryFindConversation = `SELECT id, workspace_id, member_a, member_b, created_at
FROM conversations WHERE workspace_id = $1 AND member_a = $2 AND member_b = $3`

	QueryCreateConversation = `INSERT INTO conversations (id, workspace_id, member_a, member_b, created_at)
VALUES ($1, $2, $3, $4, $5)`

	QueryListMemberScopes = `SELECT 'channel', channel_id FROM channel_members WHERE member_id = $1
UNION ALL
SELECT 'conversation', id FROM conversations WHERE member_a = $1 OR member_b = $1`

	QueryListChannelMembers = `SELECT member_id FROM channel_members WHERE channel_id = $1 ORDER BY member_id`

	QueryListConversationMembers = `SELECT member_a FROM conversations WHERE id = $1
UNION ALL
SELECT member_b FROM conversations WHERE id = $1`
)
