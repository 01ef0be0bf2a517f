package sqlite

const sessionColumns = `id, workspace_id, scope_type, scope_id, created_by, active, created_at, started_at, ended_at`

const (
	queryGetSession = `SELECT ` + sessionColumns + ` FROM huddles WHERE id = ?`

	queryActiveSessionByScope = `SELECT ` + sessionColumns + `
FROM huddles WHERE scope_type = ? AND scope_id = ? AND active = 1`

	// к этому запросу дописывается список (scope_type = ? AND scope_id = ?) OR ...
	queryActiveSessionsByScopesPrefix = `SELECT ` + sessionColumns + ` FROM huddles WHERE active = 1 AND (`

	queryActiveSessionsForMember = `SELECT h.id, h.workspace_id, h.scope_type, h.scope_id, h.created_by, h.active, h.created_at, h.started_at, h.ended_at
FROM huddles AS h
JOIN huddle_participants AS p ON p.huddle_id = h.id
WHERE p.member_id = ? AND p.left_at IS NULL AND h.active = 1
ORDER BY p.joined_at DESC`

	queryCreateSession = `INSERT INTO huddles (id, workspace_id, scope_type, scope_id, created_by, active, created_at, started_at)
VALUES (?, ?, ?, ?, ?, 1, ?, ?)`

	queryEndSession = `UPDATE huddles SET active = 0, ended_at = ? WHERE id = ? AND active = 1`

	queryGetParticipant = `SELECT huddle_id, member_id, role, joined_at, left_at
FROM huddle_participants WHERE huddle_id = ? AND member_id = ?`

	queryInsertParticipant = `INSERT INTO huddle_participants (huddle_id, member_id, role, joined_at, left_at)
VALUES (?, ?, ?, ?, ?)`

	queryUpdateParticipant = `UPDATE huddle_participants SET role = ?, joined_at = ?, left_at = ?
WHERE huddle_id = ? AND member_id = ?`

	queryListParticipants = `SELECT huddle_id, member_id, role, joined_at, left_at
FROM huddle_participants
WHERE huddle_id = ? AND (? = 0 OR left_at IS NULL)
ORDER BY joined_at ASC, member_id ASC`
)

const (
	queryAppendSignal = `INSERT INTO huddle_signals (id, huddle_id, from_member, to_member, payload, created_at)
VALUES (?, ?, ?, ?, ?, ?)
RETURNING seq`

	queryListSignalsFor = `SELECT seq, id, huddle_id, from_member, to_member, payload, created_at
FROM huddle_signals
WHERE huddle_id = ? AND to_member = ? AND created_at > ?
ORDER BY seq ASC`

	queryPurgeSessionSignals = `DELETE FROM huddle_signals WHERE huddle_id = ? AND created_at < ?`

	queryPurgeSignals = `DELETE FROM huddle_signals WHERE created_at < ?`
)

const (
	queryGetMember = `SELECT id, workspace_id, user_id, display_name, created_at
FROM workspace_members WHERE id = ?`

	queryMemberByUser = `SELECT id, workspace_id, user_id, display_name, created_at
FROM workspace_members WHERE workspace_id = ? AND user_id = ?`

	queryAddMember = `INSERT INTO workspace_members (id, workspace_id, user_id, display_name, created_at)
VALUES (?, ?, ?, ?, ?)`

	queryRemoveMember = `DELETE FROM workspace_members WHERE id = ?`

	queryHasChannelAccess = `SELECT EXISTS(SELECT 1 FROM channel_members WHERE channel_id = ? AND member_id = ?)`

	queryGrantChannel = `INSERT INTO channel_members (channel_id, member_id) VALUES (?, ?) ON CONFLICT DO NOTHING`

	queryGetConversation = `SELECT id, workspace_id, member_a, member_b, created_at FROM conversations WHERE id = ?`

	queryFindConversation = `SELECT id, workspace_id, member_a, member_b, created_at
FROM conversations WHERE workspace_id = ? AND member_a = ? AND member_b = ?`

	queryCreateConversation = `INSERT INTO conversations (id, workspace_id, member_a, member_b, created_at)
VALUES (?, ?, ?, ?, ?)`

	queryListMemberScopes = `SELECT 'channel', channel_id FROM channel_members WHERE member_id = ?1
UNION ALL
SELECT 'conversation', id FROM conversations WHERE member_a = ?1 OR member_b = ?1`

	queryListChannelMembers = `SELECT member_id FROM channel_members WHERE channel_id = ? ORDER BY member_id`

	queryListConversationMembers = `SELECT member_a FROM conversations WHERE id = ?1
UNION ALL
SELECT member_b FROM conversations WHERE id = ?1`
)
