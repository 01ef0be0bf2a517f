package http

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/cwrk-planet/huddle-service/internal/domain"
	httpmw "github.com/cwrk-planet/huddle-service/internal/transport/http/middleware"
	"github.com/cwrk-planet/huddle-service/pkg/httputil"

	"github.com/go-chi/chi/v5"
)

type HuddleSvc interface {
	StartOrJoin(ctx context.Context, caller *domain.Member, target domain.Target) (*domain.Session, error)
	Join(ctx context.Context, caller *domain.Member, id domain.SessionID) (*domain.Session, error)
	Leave(ctx context.Context, caller *domain.Member, id domain.SessionID) error
	End(ctx context.Context, caller *domain.Member, id domain.SessionID) error
	Get(ctx context.Context, caller *domain.Member, id domain.SessionID) (*domain.Session, error)
	ActiveForSource(ctx context.Context, caller *domain.Member, target domain.Target) (*domain.Session, error)
	ActiveForMember(ctx context.Context, member domain.MemberID) (*domain.Session, error)
	ListParticipants(ctx context.Context, caller *domain.Member, id domain.SessionID) ([]domain.Participant, error)
}

type SignalSvc interface {
	Send(ctx context.Context, id domain.SessionID, from, to domain.MemberID, payload []byte) (*domain.SignalEnvelope, error)
	Receive(ctx context.Context, id domain.SessionID, to domain.MemberID, maxAge time.Duration) ([]domain.SignalEnvelope, error)
	PurgeAsHost(ctx context.Context, id domain.SessionID, caller domain.MemberID, olderThan time.Duration) (int64, error)
}

type PresenceSvc interface {
	Incoming(ctx context.Context, member domain.MemberID) ([]domain.Session, error)
}

type Handler struct {
	huddles  HuddleSvc
	signals  SignalSvc
	presence PresenceSvc
}

func NewHandler(huddles HuddleSvc, signals SignalSvc, presence PresenceSvc) *Handler {
	return &Handler{
		huddles:  huddles,
		signals:  signals,
		presence: presence,
	}
}

func caller(r *http.Request) *domain.Member {
	m, _ := httpmw.MemberFrom(r.Context())
	return m
}

func huddleID(r *http.Request) domain.SessionID {
	return domain.SessionID(chi.URLParam(r, "id"))
}

// durationMS читает параметр в миллисекундах; пусто — 0 (окно по умолчанию).
func durationMS(r *http.Request, name string) (time.Duration, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", domain.ErrInvalid, name)
	}
	return time.Duration(n) * time.Millisecond, nil
}

// POST /huddles
func (h *Handler) StartOrJoin(w http.ResponseWriter, r *http.Request) {
	var req StartHuddleRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		writeError(w, r, "StartOrJoin", err)
		return
	}
	sess, err := h.huddles.StartOrJoin(r.Context(), caller(r), domain.Target{Type: domain.ScopeType(req.ScopeType), ID: req.Target})
	if err != nil {
		writeError(w, r, "StartOrJoin", err)
		return
	}
	httputil.OK(w, mapHuddle(sess))
}

// GET /huddles/active?scope_type=&target=
func (h *Handler) ActiveForSource(w http.ResponseWriter, r *http.Request) {
	q := ActiveHuddleQuery{
		ScopeType: r.URL.Query().Get("scope_type"),
		Target:    r.URL.Query().Get("target"),
	}
	if err := validateStruct(q); err != nil {
		writeError(w, r, "ActiveForSource", err)
		return
	}
	sess, err := h.huddles.ActiveForSource(r.Context(), caller(r), domain.Target{Type: domain.ScopeType(q.ScopeType), ID: q.Target})
	if err != nil {
		writeError(w, r, "ActiveForSource", err)
		return
	}
	if sess == nil {
		httputil.OK(w, nil)
		return
	}
	httputil.OK(w, mapHuddle(sess))
}

// GET /huddles/me
func (h *Handler) Mine(w http.ResponseWriter, r *http.Request) {
	sess, err := h.huddles.ActiveForMember(r.Context(), caller(r).ID)
	if err != nil {
		writeError(w, r, "Mine", err)
		return
	}
	if sess == nil {
		httputil.OK(w, nil)
		return
	}
	httputil.OK(w, mapHuddle(sess))
}

// GET /huddles/incoming
func (h *Handler) Incoming(w http.ResponseWriter, r *http.Request) {
	list, err := h.presence.Incoming(r.Context(), caller(r).ID)
	if err != nil {
		writeError(w, r, "Incoming", err)
		return
	}
	items := make([]HuddleItem, 0, len(list))
	for i := range list {
		items = append(items, mapHuddle(&list[i]))
	}
	httputil.OK(w, items)
}

// GET /huddles/{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	sess, err := h.huddles.Get(r.Context(), caller(r), huddleID(r))
	if err != nil {
		writeError(w, r, "Get", err)
		return
	}
	httputil.OK(w, mapHuddle(sess))
}

// POST /huddles/{id}/join
func (h *Handler) Join(w http.ResponseWriter, r *http.Request) {
	sess, err := h.huddles.Join(r.Context(), caller(r), huddleID(r))
	if err != nil {
		writeError(w, r, "Join", err)
		return
	}
	httputil.OK(w, mapHuddle(sess))
}

// POST /huddles/{id}/leave
func (h *Handler) Leave(w http.ResponseWriter, r *http.Request) {
	if err := h.huddles.Leave(r.Context(), caller(r), huddleID(r)); err != nil {
		writeError(w, r, "Leave", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /huddles/{id}/end
func (h *Handler) End(w http.ResponseWriter, r *http.Request) {
	if err := h.huddles.End(r.Context(), caller(r), huddleID(r)); err != nil {
		writeError(w, r, "End", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /huddles/{id}/participants
func (h *Handler) Participants(w http.ResponseWriter, r *http.Request) {
	ps, err := h.huddles.ListParticipants(r.Context(), caller(r), huddleID(r))
	if err != nil {
		writeError(w, r, "Participants", err)
		return
	}
	items := make([]ParticipantItem, 0, len(ps))
	for _, p := range ps {
		items = append(items, mapParticipant(p))
	}
	httputil.OK(w, items)
}

// POST /huddles/{id}/signals
func (h *Handler) SendSignal(w http.ResponseWriter, r *http.Request) {
	var req SendSignalRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		writeError(w, r, "SendSignal", err)
		return
	}
	env, err := h.signals.Send(r.Context(), huddleID(r), caller(r).ID, domain.MemberID(req.To), req.Payload)
	if err != nil {
		writeError(w, r, "SendSignal", err)
		return
	}
	httputil.Created(w, mapSignal(*env))
}

// GET /huddles/{id}/signals?max_age_ms=
func (h *Handler) ReceiveSignals(w http.ResponseWriter, r *http.Request) {
	maxAge, err := durationMS(r, "max_age_ms")
	if err != nil {
		writeError(w, r, "ReceiveSignals", err)
		return
	}
	list, err := h.signals.Receive(r.Context(), huddleID(r), caller(r).ID, maxAge)
	if err != nil {
		writeError(w, r, "ReceiveSignals", err)
		return
	}
	items := make([]SignalItem, 0, len(list))
	for _, e := range list {
		items = append(items, mapSignal(e))
	}
	httputil.OK(w, items)
}

// DELETE /huddles/{id}/signals?older_than_ms=
func (h *Handler) PurgeSignals(w http.ResponseWriter, r *http.Request) {
	olderThan, err := durationMS(r, "older_than_ms")
	if err != nil {
		writeError(w, r, "PurgeSignals", err)
		return
	}
	n, err := h.signals.PurgeAsHost(r.Context(), huddleID(r), caller(r).ID, olderThan)
	if err != nil {
		writeError(w, r, "PurgeSignals", err)
		return
	}
	httputil.OK(w, PurgeResponse{Deleted: n})
}
