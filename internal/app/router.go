package app

import (
	"context"
	"net/http"
	"time"

	"progportal/internal/app/apiresp"
	"progportal/internal/app/observability"
	"progportal/internal/docstore"
	"progportal/internal/question"
	"progportal/internal/stats"
	"progportal/internal/upload"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"
)

const QuestionsCollection = "questions"

// Deps are the long-lived collaborators the router needs. Images may be nil
// when no provider is configured.
type Deps struct {
	Store  docstore.DB
	Images upload.ImageStore
}

func NewRouter(cfg Config, deps Deps) http.Handler {
	var collector *observability.Collector
	if pg, ok := deps.Store.(*docstore.Postgres); ok {
		collector = observability.NewCollector(pg.SQLDB(), log.Logger)
	} else {
		collector = observability.NewCollector(nil, log.Logger)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(collector.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         600,
	}))

	questionHandler := question.NewHandler(question.NewService(deps.Store.Collection(QuestionsCollection)))
	statsHandler := stats.NewHandler(stats.NewService(deps.Store.Collection(stats.Collection)))
	uploadHandler := upload.NewHandler(deps.Images)
	viewLimiter := NewIPRateLimiter(cfg.ViewRateLimitPerMinute, time.Minute)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		apiresp.WriteOK(w, map[string]string{"message": "College Programming Portal API"})
	})
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		apiresp.WriteOK(w, map[string]bool{"ok": true})
	})
	r.Get("/metrics", collector.MetricsHandler)

	r.Route("/api", func(api chi.Router) {
		api.Get("/health", healthHandler(deps.Store))

		api.Get("/stats/views", statsHandler.GetViews)
		api.With(RateLimitMiddleware(viewLimiter)).Post("/stats/views", statsHandler.RecordView)

		api.Route("/questions", func(qr chi.Router) {
			qr.Use(BodyLimitMiddleware(cfg.RequestBodyLimitMB))

			qr.Get("/", questionHandler.List)
			qr.Get("/languages", questionHandler.Languages)
			qr.Get("/level/{level}", questionHandler.ListByLevel)
			qr.Get("/{id}", questionHandler.Get)
			// view events come from anonymous readers
			qr.With(RateLimitMiddleware(viewLimiter)).Post("/{id}/views", questionHandler.RecordView)

			qr.Group(func(admin chi.Router) {
				admin.Use(AdminTokenMiddleware(cfg.AdminTokenHash))
				admin.Post("/", questionHandler.Create)
				admin.Put("/{id}", questionHandler.Replace)
				admin.Patch("/{id}", questionHandler.Patch)
				admin.Delete("/{id}", questionHandler.Delete)
				admin.Post("/{id}/answers", questionHandler.UpsertAnswer)
				admin.Delete("/{id}/answers/{language}", questionHandler.RemoveAnswer)
			})
		})

		api.Group(func(up chi.Router) {
			up.Use(AdminTokenMiddleware(cfg.AdminTokenHash))
			up.Post("/upload", uploadHandler.Upload)
			up.Delete("/upload/*", uploadHandler.Delete)
		})
	})

	return r
}

type healthResponse struct {
	Status  string `json:"status"`
	Driver  string `json:"driver"`
	DBState string `json:"dbState"`
}

func healthHandler(db docstore.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		state := "connected"
		if err := db.Ping(ctx); err != nil {
			log.Warn().Err(err).Msg("health ping failed")
			state = "disconnected"
		}
		apiresp.WriteOK(w, healthResponse{Status: "ok", Driver: db.Driver(), DBState: state})
	}
}
