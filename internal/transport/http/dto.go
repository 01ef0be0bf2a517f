package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cwrk-planet/huddle-service/internal/domain"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// StartHuddleRequest — target это id канала, id беседы или id собеседника.
type StartHuddleRequest struct {
	ScopeType string `json:"scope_type" validate:"required,oneof=channel conversation"`
	Target    string `json:"target" validate:"required,max=128"`
}

type ActiveHuddleQuery struct {
	ScopeType string `validate:"required,oneof=channel conversation"`
	Target    string `validate:"required,max=128"`
}

type SendSignalRequest struct {
	To      string          `json:"to" validate:"required,max=128"`
	Payload json.RawMessage `json:"payload" validate:"required"`
}

type HuddleItem struct {
	ID          string     `json:"id"`
	WorkspaceID string     `json:"workspace_id"`
	ScopeType   string     `json:"scope_type"`
	ScopeID     string     `json:"scope_id"`
	CreatedBy   string     `json:"created_by"`
	Active      bool       `json:"active"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   time.Time  `json:"started_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
}

type ParticipantItem struct {
	MemberID string    `json:"member_id"`
	Role     string    `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}

type SignalItem struct {
	ID        string          `json:"id"`
	From      string          `json:"from"`
	To        string          `json:"to"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

type PurgeResponse struct {
	Deleted int64 `json:"deleted"`
}

func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) error {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid json", domain.ErrInvalid)
	}
	return validateStruct(dst)
}

func validateStruct(v any) error {
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %s", domain.ErrInvalid, validationMessage(err))
	}
	return nil
}

func validationMessage(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}

func mapHuddle(s *domain.Session) HuddleItem {
	return HuddleItem{
		ID:          string(s.ID),
		WorkspaceID: string(s.WorkspaceID),
		ScopeType:   string(s.Scope.Type),
		ScopeID:     s.Scope.ID,
		CreatedBy:   string(s.CreatedBy),
		Active:      s.Active,
		CreatedAt:   s.CreatedAt,
		StartedAt:   s.StartedAt,
		EndedAt:     s.EndedAt,
	}
}

func mapParticipant(p domain.Participant) ParticipantItem {
	return ParticipantItem{
		MemberID: string(p.MemberID),
		Role:     string(p.Role),
		JoinedAt: p.JoinedAt,
	}
}

func mapSignal(e domain.SignalEnvelope) SignalItem {
	return SignalItem{
		ID:        e.ID,
		From:      string(e.From),
		To:        string(e.To),
		Payload:   json.RawMessage(e.Payload),
		CreatedAt: e.CreatedAt,
	}
}
