package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"voicestudio/internal/domain"
	"voicestudio/internal/generation"
	"voicestudio/internal/middleware"
)

type App struct {
	Generations *generation.Manager
	Artifacts   *generation.ArtifactReader
	Logger      zerolog.Logger
	validate    *validator.Validate
	checks      map[string]HealthCheck
}

func NewApp(generations *generation.Manager, artifacts *generation.ArtifactReader, logger zerolog.Logger) *App {
	return &App{
		Generations: generations,
		Artifacts:   artifacts,
		Logger:      logger,
		validate:    newValidator(),
	}
}

type errorBody struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	ExistingJobID string `json:"existing_job_id,omitempty"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, errorBody{Error: errCode, Message: message})
}

// fail maps a domain error onto the HTTP error contract.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	var conflict *domain.ConflictError
	switch {
	case errors.As(err, &conflict):
		a.json(w, http.StatusConflict, errorBody{
			Error:         "conflict",
			Message:       "project already has an active generation job",
			ExistingJobID: conflict.ExistingJobID,
		})
	case errors.Is(err, domain.ErrProjectNotFound):
		a.error(w, http.StatusNotFound, "not_found", "project not found")
	case errors.Is(err, domain.ErrEmptyScript):
		a.error(w, http.StatusBadRequest, "validation_error", "script has no segments with text")
	case errors.Is(err, domain.ErrValidation):
		a.error(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "generation job not found")
	case errors.Is(err, domain.ErrNotReady):
		a.error(w, http.StatusConflict, "not_ready", "audio is not ready yet")
	case errors.Is(err, domain.ErrActiveJobExists):
		a.error(w, http.StatusConflict, "conflict", "project already has an active generation job")
	default:
		a.Logger.Error().
			Err(err).
			Str("request_id", middleware.RequestIDFromContext(r.Context())).
			Str("path", r.URL.Path).
			Msg("handler: internal error")
		a.error(w, http.StatusInternalServerError, "internal", "internal server error")
	}
}
