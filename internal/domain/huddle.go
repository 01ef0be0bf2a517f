package domain

import "time"

type SessionID string

// Session is one huddle instance. Sessions are never deleted, only ended.
type Session struct {
	ID          SessionID   `db:"id"`
	WorkspaceID WorkspaceID `db:"workspace_id"`
	Scope       Scope
	CreatedBy   MemberID   `db:"created_by"`
	Active      bool       `db:"active"`
	CreatedAt   time.Time  `db:"created_at"`
	StartedAt   time.Time  `db:"started_at"`
	EndedAt     *time.Time `db:"ended_at"`
}

type Role string

const (
	RoleHost        Role = "host"
	RoleParticipant Role = "participant"
)

// Participant is the single row per (session, member); rejoining reuses it.
type Participant struct {
	SessionID SessionID  `db:"huddle_id"`
	MemberID  MemberID   `db:"member_id"`
	Role      Role       `db:"role"`
	JoinedAt  time.Time  `db:"joined_at"`
	LeftAt    *time.Time `db:"left_at"`
}

func (p Participant) Active() bool { return p.LeftAt == nil }

func (p Participant) IsHost() bool { return p.Active() && p.Role == RoleHost }

// EarliestJoined picks the promotion candidate: earliest joinedAt, member id
// breaks exact ties so every observer picks the same row.
func EarliestJoined(ps []Participant) (Participant, bool) {
	var (
		best  Participant
		found bool
	)
	for _, p := range ps {
		if !p.Active() {
			continue
		}
		if !found || p.JoinedAt.Before(best.JoinedAt) ||
			(p.JoinedAt.Equal(best.JoinedAt) && p.MemberID < best.MemberID) {
			best, found = p, true
		}
	}
	return best, found
}
