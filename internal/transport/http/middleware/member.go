package httpmw

import (
	"context"
	"errors"
	"net/http"

	"github.com/cwrk-planet/huddle-service/internal/auth"
	"github.com/cwrk-planet/huddle-service/internal/domain"
	"github.com/cwrk-planet/huddle-service/pkg/httputil"

	"github.com/go-chi/chi/v5"
)

type MemberResolver interface {
	Resolve(ctx context.Context, ws domain.WorkspaceID, user domain.UserID) (*domain.Member, error)
}

type ctxKey int

const ctxKeyMember ctxKey = iota

// Member резолвит участника workspace из {workspaceID} для аутентифицированного пользователя.
func Member(members MemberResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			uid, ok := auth.UserFrom(r.Context())
			if !ok {
				httputil.Error(w, http.StatusUnauthorized, "unauthorized", "missing credentials")
				return
			}
			ws := domain.WorkspaceID(chi.URLParam(r, "workspaceID"))
			if ws == "" {
				httputil.Error(w, http.StatusBadRequest, "invalid_argument", "missing workspace id")
				return
			}

			m, err := members.Resolve(r.Context(), ws, uid)
			if err != nil {
				if errors.Is(err, domain.ErrForbidden) {
					httputil.Error(w, http.StatusForbidden, "forbidden", "not a member of this workspace")
					return
				}
				httputil.L(r.Context()).Error("member middleware: resolve failed", "err", err, "workspace", ws)
				httputil.Error(w, http.StatusInternalServerError, "internal", "internal error")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithMember(r.Context(), m)))
		})
	}
}

func WithMember(ctx context.Context, m *domain.Member) context.Context {
	return context.WithValue(ctx, ctxKeyMember, m)
}

func MemberFrom(ctx context.Context) (*domain.Member, bool) {
	m, ok := ctx.Value(ctxKeyMember).(*domain.Member)
	return m, ok && m != nil
}
