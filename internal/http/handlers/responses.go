package handlers

import (
	"encoding/json"
	"time"

	"voicestudio/internal/domain"
)

type jobResponse struct {
	ID                     string              `json:"id"`
	ProjectID              string              `json:"project_id"`
	Status                 domain.JobStatus    `json:"status"`
	Progress               float64             `json:"progress"`
	CurrentChunk           int                 `json:"current_chunk"`
	TotalChunks            int                 `json:"total_chunks"`
	ChunkProgress          float64             `json:"chunk_progress"`
	EstimatedTimeRemaining *int64              `json:"estimated_time_remaining,omitempty"`
	OutputPath             string              `json:"output_path,omitempty"`
	DownloadURL            string              `json:"download_url,omitempty"`
	AudioDuration          *int                `json:"audio_duration,omitempty"`
	ErrorMessage           string              `json:"error_message,omitempty"`
	VoiceMapping           domain.VoiceMapping `json:"voice_mapping,omitempty"`
	Options                json.RawMessage     `json:"options,omitempty"`
	CancelRequested        bool                `json:"cancel_requested"`
	CreatedAt              time.Time           `json:"created_at"`
	StartedAt              *time.Time          `json:"started_at,omitempty"`
	CompletedAt            *time.Time          `json:"completed_at,omitempty"`
	UpdatedAt              time.Time           `json:"updated_at"`
}

func newJobResponse(j *domain.GenerationJob) jobResponse {
	resp := jobResponse{
		ID:              j.ID,
		ProjectID:       j.ProjectID,
		Status:          j.Status,
		Progress:        j.Progress,
		CurrentChunk:    j.CurrentChunk,
		TotalChunks:     j.TotalChunks,
		ChunkProgress:   j.ChunkProgress,
		OutputPath:      j.OutputPath,
		AudioDuration:   j.AudioDuration,
		ErrorMessage:    j.ErrorMessage,
		VoiceMapping:    j.VoiceMapping,
		Options:         j.Options,
		CancelRequested: j.CancelRequested,
		CreatedAt:       j.CreatedAt,
		StartedAt:       j.StartedAt,
		CompletedAt:     j.CompletedAt,
		UpdatedAt:       j.UpdatedAt,
	}
	resp.EstimatedTimeRemaining = wholeSeconds(j.EstimatedTimeRemaining)
	if j.Status == domain.JobStatusCompleted {
		resp.DownloadURL = "/generation/" + j.ID + "/download"
	}
	return resp
}

type queueResponse struct {
	Position      int    `json:"position"`
	EstimatedWait *int64 `json:"estimated_wait,omitempty"`
	ActiveJobs    int    `json:"active_jobs"`
	QueuedJobs    int    `json:"queued_jobs"`
}

func newQueueResponse(q domain.QueueStatus) queueResponse {
	return queueResponse{
		Position:      q.Position,
		EstimatedWait: wholeSeconds(q.EstimatedWait),
		ActiveJobs:    q.ActiveJobs,
		QueuedJobs:    q.QueuedJobs,
	}
}

// wholeSeconds renders an estimate in rounded seconds; nil stays absent.
func wholeSeconds(d *time.Duration) *int64 {
	if d == nil {
		return nil
	}
	secs := int64(d.Round(time.Second) / time.Second)
	return &secs
}
