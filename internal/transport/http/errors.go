package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/cwrk-planet/huddle-service/internal/domain"
	"github.com/cwrk-planet/huddle-service/pkg/httputil"
)

// userMessages — тексты, которые показываем клиенту как есть.
var userMessages = []struct {
	err error
	msg string
}{
	{domain.ErrHuddleNotFound, "huddle not found"},
	{domain.ErrScopeNotFound, "huddle scope not found"},
	{domain.ErrMemberNotFound, "member not found"},
	{domain.ErrNotHost, "only the host can end this huddle"},
	{domain.ErrNoScopeAccess, "no access to the huddle scope"},
	{domain.ErrNotParticipant, "not an active participant of this huddle"},
	{domain.ErrNotMember, "not a member of this workspace"},
}

func messageFor(err error, fallback string) string {
	for _, m := range userMessages {
		if errors.Is(err, m.err) {
			return m.msg
		}
	}
	return fallback
}

func writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		httputil.Error(w, http.StatusNotFound, "not_found", messageFor(err, "not found"))
	case errors.Is(err, domain.ErrForbidden):
		httputil.Error(w, http.StatusForbidden, "forbidden", messageFor(err, "forbidden"))
	case errors.Is(err, domain.ErrInvalid):
		msg := strings.TrimPrefix(err.Error(), domain.ErrInvalid.Error()+": ")
		httputil.Error(w, http.StatusBadRequest, "invalid_argument", msg)
	default:
		httputil.L(r.Context()).Error("handler."+op+":", "err", err)
		httputil.Error(w, http.StatusInternalServerError, "internal", "internal error")
	}
}
