package grpcx

import (
	"fmt"
	"time"

	"github.com/cwrk-planet/huddle-service/internal/domain"

	"google.golang.org/protobuf/types/known/structpb"
)

// Поля сообщений. Время передаётся строкой RFC 3339 с наносекундами.
const (
	FieldHuddleID  = "huddle_id"
	FieldScopeType = "scope_type"
	FieldTarget    = "target"
	FieldTo        = "to"
	FieldPayload   = "payload"
	FieldMaxAgeMS  = "max_age_ms"
	FieldOlderMS   = "older_than_ms"
	FieldHuddle    = "huddle"
	FieldMemberID  = "member_id"
	FieldItems     = "items"
	FieldEnvelope  = "envelope"
	FieldDeleted   = "deleted"
)

func Str(s *structpb.Struct, key string) string {
	return s.GetFields()[key].GetStringValue()
}

func Millis(s *structpb.Struct, key string) time.Duration {
	return time.Duration(s.GetFields()[key].GetNumberValue()) * time.Millisecond
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

func HuddleValue(s *domain.Session) map[string]any {
	m := map[string]any{
		"id":           string(s.ID),
		"workspace_id": string(s.WorkspaceID),
		"scope_type":   string(s.Scope.Type),
		"scope_id":     s.Scope.ID,
		"created_by":   string(s.CreatedBy),
		"active":       s.Active,
		"created_at":   formatTime(s.CreatedAt),
		"started_at":   formatTime(s.StartedAt),
	}
	if s.EndedAt != nil {
		m["ended_at"] = formatTime(*s.EndedAt)
	}
	return m
}

func ParseHuddle(v *structpb.Struct) (*domain.Session, error) {
	s := &domain.Session{
		ID:          domain.SessionID(Str(v, "id")),
		WorkspaceID: domain.WorkspaceID(Str(v, "workspace_id")),
		Scope:       domain.Scope{Type: domain.ScopeType(Str(v, "scope_type")), ID: Str(v, "scope_id")},
		CreatedBy:   domain.MemberID(Str(v, "created_by")),
		Active:      v.GetFields()["active"].GetBoolValue(),
	}
	var err error
	if s.CreatedAt, err = parseTime(Str(v, "created_at")); err != nil {
		return nil, fmt.Errorf("huddle created_at: %w", err)
	}
	if s.StartedAt, err = parseTime(Str(v, "started_at")); err != nil {
		return nil, fmt.Errorf("huddle started_at: %w", err)
	}
	if ended := Str(v, "ended_at"); ended != "" {
		t, err := parseTime(ended)
		if err != nil {
			return nil, fmt.Errorf("huddle ended_at: %w", err)
		}
		s.EndedAt = &t
	}
	return s, nil
}

func ParticipantValue(p domain.Participant) map[string]any {
	return map[string]any{
		"member_id": string(p.MemberID),
		"role":      string(p.Role),
		"joined_at": formatTime(p.JoinedAt),
	}
}

func ParseParticipant(id domain.SessionID, v *structpb.Struct) (domain.Participant, error) {
	joined, err := parseTime(Str(v, "joined_at"))
	if err != nil {
		return domain.Participant{}, fmt.Errorf("participant joined_at: %w", err)
	}
	return domain.Participant{
		SessionID: id,
		MemberID:  domain.MemberID(Str(v, "member_id")),
		Role:      domain.Role(Str(v, "role")),
		JoinedAt:  joined,
	}, nil
}

// EnvelopeValue carries the payload as a string; it is opaque JSON text.
func EnvelopeValue(e domain.SignalEnvelope) map[string]any {
	return map[string]any{
		"id":         e.ID,
		"seq":        e.Seq,
		"from":       string(e.From),
		"to":         string(e.To),
		"payload":    string(e.Payload),
		"created_at": formatTime(e.CreatedAt),
	}
}

func ParseEnvelope(id domain.SessionID, v *structpb.Struct) (domain.SignalEnvelope, error) {
	created, err := parseTime(Str(v, "created_at"))
	if err != nil {
		return domain.SignalEnvelope{}, fmt.Errorf("envelope created_at: %w", err)
	}
	return domain.SignalEnvelope{
		ID:        Str(v, "id"),
		Seq:       int64(v.GetFields()["seq"].GetNumberValue()),
		SessionID: id,
		From:      domain.MemberID(Str(v, "from")),
		To:        domain.MemberID(Str(v, "to")),
		Payload:   []byte(Str(v, "payload")),
		CreatedAt: created,
	}, nil
}

// Items returns the struct elements of the "items" list.
func Items(s *structpb.Struct) []*structpb.Struct {
	vals := s.GetFields()[FieldItems].GetListValue().GetValues()
	out := make([]*structpb.Struct, 0, len(vals))
	for _, v := range vals {
		if st := v.GetStructValue(); st != nil {
			out = append(out, st)
		}
	}
	return out
}

func list[T any](xs []T, f func(T) map[string]any) []any {
	out := make([]any, 0, len(xs))
	for _, x := range xs {
		out = append(out, f(x))
	}
	return out
}
