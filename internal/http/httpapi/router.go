package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"voicestudio/internal/http/handlers"
	"voicestudio/internal/middleware"
)

type Options struct {
	Logger          zerolog.Logger
	CORSOrigins     []string
	RateLimitPerMin int
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(opts.Logger),
		middleware.CORS(opts.CORSOrigins),
	)

	// Health
	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/openapi.json", app.OpenAPIJSON)
	r.Get("/v1/docs", app.OpenAPIDocs)

	r.Route("/generation", func(r chi.Router) {
		r.With(middleware.RateLimit(opts.RateLimitPerMin, time.Minute)).Post("/start", app.GenerationStart)
		r.Get("/queue/status", app.GenerationQueueStatus)
		r.Get("/{jobId}", app.GenerationStatus)
		r.Post("/{jobId}/cancel", app.GenerationCancel)
		r.Get("/{jobId}/download", app.GenerationDownload)
	})

	r.Get("/projects/{projectId}/generations", app.ProjectGenerations)

	return r
}
