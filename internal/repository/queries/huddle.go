package queries

const sessionColumns = `id, workspace_id, scope_type, scope_id, created_by, active, created_at, started_at, ended_at`

const (
	QueryGetSession = `SELECT ` + sessionColumns + ` FROM huddles WHERE id = $1`

	QueryActiveSessionByScope = `SELECT ` + sessionColumns + `
FROM huddles
WHERE scope_type = $1 AND scope_id = $2 AND active`

	QueryActiveSessionsByScopes = `SELECT ` + sessionColumns + `
FROM huddles
WHERE active
  AND (scope_type, scope_id) IN (SELECT * FROM unnest($1::text[], $2::text[]))
ORDER BY started_at DESC`

	QueryActiveSessionsForMember = `SELECT h.id, h.workspace_id, h.scope_type, h.scope_id, h.created_by, h.active, h.created_at, h.started_at, h.ended_at
FROM huddles AS h
JOIN huddle_participants AS p ON p.huddle_id = h.id
WHERE p.member_id = $1 AND p.left_at IS NULL AND h.active
ORDER BY p.joined_at DESC`

	QueryCreateSession = `INSERT INTO huddles (id, workspace_id, scope_type, scope_id, created_by, active, created_at, started_at)
VALUES ($1, $2, $3, $4, $5, TRUE, $6, $7)`

	QueryEndSession = `UPDATE huddles SET active = FALSE, ended_at = $2 WHERE id = $1 AND active`

	// строки сессии блокируются внутри транзакции
	ForUpdate = ` FOR UPDATE`
)

const (
	QueryGetParticipant = `SELECT huddle_id, member_id, role, joined_at, left_at
FROM huddle_participants
WHERE huddle_id = $1 AND member_id = $2`

	QueryInsertParticipant = `INSERT INTO huddle_participants (huddle_id, member_id, role, joined_at, left_at)
VALUES ($1, $2, $3, $4, $5)`

	QueryUpdateParticipant = `UPDATE huddle_participants
SET role = $3, joined_at = $4, left_at = $5
WHERE huddle_id = $1 AND member_id = $2`

	QueryListParticipants = `SELECT huddle_id, member_id, role, joined_at, left_at
FROM huddle_participants
WHERE huddle_id = $1 AND ($2 = FALSE OR left_at IS NULL)
ORDER BY joined_at ASC, member_id ASC`
)
