package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"voicestudio/internal/generation"
	"voicestudio/internal/middleware"
)

func (a *App) GenerationStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "validation_error", "invalid payload")
		return
	}
	if err := a.validateStart(&req); err != nil {
		a.fail(w, r, err)
		return
	}

	job, err := a.Generations.Submit(r.Context(), generation.SubmitRequest{
		ProjectID:    req.ProjectID,
		VoiceMapping: req.VoiceMapping,
		Options:      req.Options,
	})
	if err != nil {
		if job != nil {
			// Recorded but never queued; the job is already failed.
			a.Logger.Error().
				Err(err).
				Str("job_id", job.ID).
				Str("request_id", middleware.RequestIDFromContext(r.Context())).
				Msg("handler: enqueue failed")
			a.error(w, http.StatusServiceUnavailable, "queue_unavailable", "could not queue audio generation")
			return
		}
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusCreated, newJobResponse(job))
}

func (a *App) GenerationStatus(w http.ResponseWriter, r *http.Request) {
	job, err := a.Generations.GetStatus(r.Context(), chi.URLParam(r, "jobId"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, newJobResponse(job))
}

func (a *App) GenerationCancel(w http.ResponseWriter, r *http.Request) {
	job, err := a.Generations.Cancel(r.Context(), chi.URLParam(r, "jobId"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, newJobResponse(job))
}

func (a *App) GenerationQueueStatus(w http.ResponseWriter, r *http.Request) {
	qs, err := a.Generations.QueueStatus(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, newQueueResponse(qs))
}

func (a *App) GenerationDownload(w http.ResponseWriter, r *http.Request) {
	rc, job, err := a.Artifacts.OpenArtifact(r.Context(), chi.URLParam(r, "jobId"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", job.ID+".wav"))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil && r.Context().Err() == nil {
		a.Logger.Warn().Err(err).Str("job_id", job.ID).Msg("handler: download interrupted")
	}
}

func (a *App) ProjectGenerations(w http.ResponseWriter, r *http.Request) {
	jobs, err := a.Generations.ListProjectJobs(r.Context(), chi.URLParam(r, "projectId"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	items := make([]jobResponse, 0, len(jobs))
	for i := range jobs {
		items = append(items, newJobResponse(&jobs[i]))
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}
