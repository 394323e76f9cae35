package web

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"voice-companion/internal/config"
	"voice-companion/internal/domain/model"
	"voice-companion/internal/domain/ports/repository"
	"voice-companion/internal/infra/api"
	"voice-companion/internal/usecase"
)

// Deps are the collaborators behind the HTTP surface. Auth and Limiter may
// be nil.
type Deps struct {
	Turns      usecase.TurnUseCase
	Suggest    usecase.SuggestionUseCase
	History    repository.HistoryStore
	Characters *model.Catalog
	Auth       *AuthManager
	Limiter    api.Limiter
}

type Server struct {
	d        Deps
	cfg      config.ServerConfig
	required bool
	upgrader websocket.Upgrader
	log      *zerolog.Logger
}

func NewServer(d Deps, cfg config.ServerConfig, sessionRequired bool, logger *zerolog.Logger) *Server {
	if d.Characters == nil {
		d.Characters = model.NewCatalog()
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 10 << 20
	}
	l := logger.With().Str("component", "web").Logger()
	s := &Server{d: d, cfg: cfg, required: sessionRequired, log: &l}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 16384,
		CheckOrigin:     s.originAllowed,
	}
	return s
}

// Routes builds the router. The websocket route is kept out of the
// request timeout since a turn stream outlives a plain request.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(
		api.Recover(s.log),
		api.TraceID(s.log),
		api.Metrics(),
	)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(api.RequestLog(s.log))
		r.Post("/session", s.handleSession)
		r.Get("/characters", s.handleCharacters)

		r.Group(func(r chi.Router) {
			r.Use(s.sessionMiddleware)
			r.Get("/chat/stream", s.handleChatStream)

			r.Group(func(r chi.Router) {
				r.Use(api.Timeout(s.cfg.RequestTimeout))
				r.With(api.RateLimit(s.d.Limiter, "/api/chat", rateKey("chat"), s.log)).
					Post("/chat", s.handleChat)

				r.Get("/history", s.handleHistory)
				r.Delete("/history", s.handleHistoryPurge)

				r.Post("/proactive/check", s.handleProactiveCheck)
				r.Post("/proactive/feedback", s.handleProactiveFeedback)
				r.Put("/proactive/quiet-hours", s.handleQuietHours)
				r.Get("/proactive/state", s.handleProactiveState)
			})
		})
	})
	return r
}

// HTTPServer wraps Routes with the configured timeouts.
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

func (s *Server) originAllowed(r *http.Request) bool {
	if len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range s.cfg.AllowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}
