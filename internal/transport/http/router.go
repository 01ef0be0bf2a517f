package http

import (
	"net/http"
	"time"

	"github.com/cwrk-planet/huddle-service/internal/auth"
	httpmw "github.com/cwrk-planet/huddle-service/internal/transport/http/middleware"
	"github.com/cwrk-planet/huddle-service/pkg/httputil"

	"github.com/go-chi/chi/v5"
	middlewareChi "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type Deps struct {
	Handler *Handler
	Auth    auth.Authenticator
	Members httpmw.MemberResolver
	// Events — WebSocket-лента; nil отключает /events.
	Events http.Handler

	AllowedOrigins []string
	RequestTimeout time.Duration
	Ready          func(*http.Request) error
}

func NewRouter(d Deps) http.Handler {
	if d.RequestTimeout <= 0 {
		d.RequestTimeout = 30 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middlewareChi.RealIP)
	r.Use(httputil.MiddlewareRequestID)
	r.Use(httputil.MiddlewareLogging)
	r.Use(middlewareChi.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-User-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// health
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if d.Ready != nil {
			if err := d.Ready(r); err != nil {
				httputil.L(r.Context()).Warn("healthz: not ready", "err", err)
				httputil.Error(w, http.StatusServiceUnavailable, "unavailable", "not ready")
				return
			}
		}
		httputil.OK(w, map[string]string{"status": "ok"})
	})

	h := d.Handler
	r.Route("/v1/workspaces/{workspaceID}", func(wr chi.Router) {
		wr.Use(httpmw.Auth(d.Auth))
		wr.Use(httpmw.Member(d.Members))

		// WS живёт дольше любого request timeout, поэтому вне группы с Timeout
		if d.Events != nil {
			wr.Get("/events", d.Events.ServeHTTP)
		}

		wr.Group(func(pr chi.Router) {
			pr.Use(middlewareChi.Timeout(d.RequestTimeout))

			pr.Route("/huddles", func(hr chi.Router) {
				hr.Post("/", h.StartOrJoin)
				hr.Get("/active", h.ActiveForSource)
				hr.Get("/me", h.Mine)
				hr.Get("/incoming", h.Incoming)

				hr.Route("/{id}", func(rr chi.Router) {
					rr.Get("/", h.Get)
					rr.Post("/join", h.Join)
					rr.Post("/leave", h.Leave)
					rr.Post("/end", h.End)
					rr.Get("/participants", h.Participants)
					rr.Post("/signals", h.SendSignal)
					rr.Get("/signals", h.ReceiveSignals)
					rr.Delete("/signals", h.PurgeSignals)
				})
			})
		})
	})

	return r
}
