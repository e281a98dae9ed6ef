package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/roachygames/tournament-orchestrator/handlers"
	"github.com/roachygames/tournament-orchestrator/middleware"
	"github.com/roachygames/tournament-orchestrator/services"
)

type Handlers struct {
	Auth       *handlers.AuthHandler
	Tournament *handlers.TournamentHandler
	Admin      *handlers.AdminHandler
	WebSocket  *handlers.WebSocketHandler
	Health     *handlers.HealthHandler
	Metrics    http.Handler
}

func SetupRoutes(router *chi.Mux, h Handlers, jwtSecret string, allowedOrigins []string) {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(chiMiddleware.Logger)
	router.Use(chiMiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	authenticate := middleware.Authenticate([]byte(jwtSecret))

	router.Get("/health", h.Health.Health)
	if h.Metrics != nil {
		router.Method(http.MethodGet, "/metrics", h.Metrics)
	}
	router.Get("/ws/tournaments/{tournamentID}", h.WebSocket.ServeWs)

	router.Group(func(r chi.Router) {
		r.Use(chiMiddleware.Timeout(30 * time.Second))

		r.Post("/auth/token", h.Auth.IssueAdminToken)

		r.Route("/tournaments", func(r chi.Router) {
			r.Get("/", h.Tournament.ListTournaments)
			r.Get("/{tournamentID}", h.Tournament.GetTournament)
			r.Get("/{tournamentID}/bracket", h.Tournament.GetBracket)

			r.Group(func(r chi.Router) {
				r.Use(authenticate)
				r.Use(middleware.Authorize(services.RolePlayer))
				r.Post("/{tournamentID}/join", h.Tournament.JoinTournament)
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(authenticate)
			r.Use(middleware.Authorize(services.RoleAdmin))
			r.Post("/orchestrator/tick", h.Admin.TriggerTick)
			r.Post("/tournaments/{tournamentID}/start", h.Admin.StartTournament)
		})
	})
}
