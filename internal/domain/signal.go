package domain

import "time"

// SignalEnvelope is one relayed negotiation payload. ID is the dedup key;
// Seq orders envelopes that share a createdAt.
type SignalEnvelope struct {
	ID        string    `db:"id" json:"id"`
	Seq       int64     `db:"seq" json:"seq"`
	SessionID SessionID `db:"huddle_id" json:"session_id"`
	From      MemberID  `db:"from_member" json:"from"`
	To        MemberID  `db:"to_member" json:"to"`
	Payload   []byte    `db:"payload" json:"payload"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
