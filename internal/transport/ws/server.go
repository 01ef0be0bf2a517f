package ws

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/cwrk-planet/huddle-service/internal/domain"
	httpmw "github.com/cwrk-planet/huddle-service/internal/transport/http/middleware"
	"github.com/cwrk-planet/huddle-service/pkg/httputil"

	"github.com/gorilla/websocket"
)

type HuddleSvc interface {
	ActiveForMember(ctx context.Context, member domain.MemberID) (*domain.Session, error)
}

type PresenceSvc interface {
	Incoming(ctx context.Context, member domain.MemberID) ([]domain.Session, error)
}

type Server struct {
	upgrader websocket.Upgrader
	hub      *Hub
	huddles  HuddleSvc
	presence PresenceSvc

	pingEvery time.Duration
}

func NewServer(hub *Hub, huddles HuddleSvc, presence PresenceSvc) *Server {
	return &Server{
		hub:      hub,
		huddles:  huddles,
		presence: presence,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// origin уже проверен cors-мидлварой и токеном
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		pingEvery: 15 * time.Second,
	}
}

// ServeHTTP: GET /v1/workspaces/{workspaceID}/events. Участник уже в контексте.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	me, ok := httpmw.MemberFrom(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "unauthorized", "missing member")
		return
	}
	log := httputil.L(r.Context()).With("member", me.ID)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade уже ответил клиенту
		log.Warn("ws upgrade failed", "err", err)
		return
	}

	c := newWsConn(conn, me.ID)
	s.hub.Add(c)
	defer s.hub.Remove(c)

	if err := s.sendSnapshot(r.Context(), c); err != nil {
		log.Warn("ws send snapshot failed", "err", err)
	}

	go s.writeLoop(r.Context(), c)
	s.readLoop(c)

	if err := c.Close(); err != nil {
		log.Debug("ws close failed", "err", err)
	}
}

func (s *Server) sendSnapshot(ctx context.Context, c *wsConn) error {
	active, err := s.huddles.ActiveForMember(ctx, c.member)
	if err != nil {
		return err
	}
	incoming, err := s.presence.Incoming(ctx, c.member)
	if err != nil {
		return err
	}

	p := SnapshotPayload{Incoming: make([]HuddleItem, 0, len(incoming))}
	if active != nil {
		item := huddleItem(active)
		p.Active = &item
	}
	for i := range incoming {
		p.Incoming = append(p.Incoming, huddleItem(&incoming[i]))
	}
	return c.Send(Message{Type: TypeSnapshot, Payload: p})
}

// readLoop только держит соединение: клиент ничего не присылает, кроме pong/close.
func (s *Server) readLoop(c *wsConn) {
	c.conn.SetReadLimit(4 << 10)
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * s.pingEvery))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(2 * s.pingEvery))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("ws read failed", "member", c.member, "err", err)
			}
			return
		}
	}
}

func (s *Server) writeLoop(ctx context.Context, c *wsConn) {
	ticker := time.NewTicker(s.pingEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
		case <-ctx.Done():
			_ = c.Close()
			return
		case <-c.closed:
			return
		}
	}
}

type wsConn struct {
	conn   *websocket.Conn
	member domain.MemberID
	sendMu chan struct{}
	closed chan struct{}
}

func newWsConn(c *websocket.Conn, member domain.MemberID) *wsConn {
	return &wsConn{
		conn:   c,
		member: member,
		sendMu: make(chan struct{}, 1),
		closed: make(chan struct{}),
	}
}

func (c *wsConn) Send(msg Message) error {
	c.sendMu <- struct{}{}
	defer func() { <-c.sendMu }()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))

	return c.conn.WriteJSON(msg)
}

func (c *wsConn) Close() error {
	c.sendMu <- struct{}{}
	defer func() { <-c.sendMu }()

	select {
	case <-c.closed:
		return nil
	default:
		close(c.closed)
	}

	return c.conn.Close()
}

func (c *wsConn) MemberID() domain.MemberID { return c.member }
