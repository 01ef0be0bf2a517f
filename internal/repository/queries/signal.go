package queries

const (
	QueryAppendSignal = `INSERT INTO huddle_signals (id, huddle_id, from_member, to_member, payload, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING seq`

	QueryListSignalsFor = `SELECT seq, id, huddle_id, from_member, to_member, payload, created_at
FROM huddle_signals
WHERE huddle_id = $1 AND to_member = $2 AND created_at > $3
ORDER BY seq ASC`

	QueryPurgeSessionSignals = `DELETE FROM huddle_signals WHERE huddle_id = $1 AND created_at < $2`

	QueryPurgeSignals = `DELETE FROM huddle_signals WHERE created_at < $1`
)
