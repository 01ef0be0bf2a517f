package ws

import (
	"context"
	"log/slog"
	"sync"

	"github.com/cwrk-planet/huddle-service/internal/domain"
	"github.com/cwrk-planet/huddle-service/internal/events"
)

type Conn interface {
	Send(msg Message) error
	Close() error
	MemberID() domain.MemberID
}

// Hub держит открытые соединения по участнику: у одного участника
// может быть несколько вкладок.
type Hub struct {
	mu      sync.RWMutex
	members map[domain.MemberID]map[Conn]struct{}
	log     *slog.Logger
}

func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		members: make(map[domain.MemberID]map[Conn]struct{}),
		log:     log,
	}
}

func (h *Hub) Add(c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	cs, ok := h.members[c.MemberID()]
	if !ok {
		cs = make(map[Conn]struct{})
		h.members[c.MemberID()] = cs
	}
	cs[c] = struct{}{}
}

func (h *Hub) Remove(c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if cs, ok := h.members[c.MemberID()]; ok {
		delete(cs, c)
		if len(cs) == 0 {
			delete(h.members, c.MemberID())
		}
	}
}

// Connected returns how many feeds the member has open.
func (h *Hub) Connected(m domain.MemberID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.members[m])
}

func (h *Hub) SendTo(m domain.MemberID, msg Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.members[m] {
		if err := c.Send(msg); err != nil { // best-effort
			h.log.Debug("ws send failed", "member", m, "type", msg.Type, "err", err)
		}
	}
}

// Dispatch is an events.Handler: it forwards e to every connected recipient.
func (h *Hub) Dispatch(_ context.Context, e events.Event) {
	msg := Message{Type: string(e.Type), Payload: eventPayload(e)}
	for _, m := range e.Recipients {
		h.SendTo(m, msg)
	}
}
