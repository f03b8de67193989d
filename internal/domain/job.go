package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// JobStatus enumerates generation job lifecycle states.
type JobStatus string

const (
	JobStatusQueued       JobStatus = "queued"
	JobStatusLoadingModel JobStatus = "loading_model"
	JobStatusGenerating   JobStatus = "generating"
	JobStatusStitching    JobStatus = "stitching"
	JobStatusCompleted    JobStatus = "completed"
	JobStatusFailed       JobStatus = "failed"
	JobStatusCancelled    JobStatus = "cancelled"
)

// NonTerminalStatuses lists every state in which a job still occupies its project.
var NonTerminalStatuses = []JobStatus{
	JobStatusQueued,
	JobStatusLoadingModel,
	JobStatusGenerating,
	JobStatusStitching,
}

// ParseJobStatus converts a raw string into a JobStatus, rejecting unknown values.
func ParseJobStatus(raw string) (JobStatus, error) {
	s := JobStatus(strings.ToLower(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("%w: unknown job status %q", ErrValidation, raw)
	}
	return s, nil
}

// Valid reports whether s is one of the known lifecycle states.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusQueued, JobStatusLoadingModel, JobStatusGenerating, JobStatusStitching,
		JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transitions are permitted out of s.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	case JobStatusQueued, JobStatusLoadingModel, JobStatusGenerating, JobStatusStitching:
		return false
	default:
		return false
	}
}

// Active reports whether s counts as consuming worker capacity.
func (s JobStatus) Active() bool {
	switch s {
	case JobStatusLoadingModel, JobStatusGenerating, JobStatusStitching:
		return true
	case JobStatusQueued, JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return false
	default:
		return false
	}
}

// CanTransitionTo reports whether the lifecycle allows moving from s to next.
// Self edges on running states carry chunk advances and heartbeats.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	if !next.Valid() {
		return false
	}
	switch s {
	case JobStatusQueued:
		switch next {
		case JobStatusLoadingModel, JobStatusCancelled, JobStatusFailed:
			return true
		}
	case JobStatusLoadingModel:
		switch next {
		case JobStatusLoadingModel, JobStatusGenerating, JobStatusCancelled, JobStatusFailed:
			return true
		}
	case JobStatusGenerating:
		switch next {
		case JobStatusGenerating, JobStatusStitching, JobStatusCancelled, JobStatusFailed:
			return true
		}
	case JobStatusStitching:
		switch next {
		case JobStatusStitching, JobStatusCompleted, JobStatusCancelled, JobStatusFailed:
			return true
		}
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return false
	}
	return false
}

// GenerationJob tracks one long-form audio generation request for a project.
type GenerationJob struct {
	ID                     string
	ProjectID              string
	Status                 JobStatus
	Progress               float64
	CurrentChunk           int
	TotalChunks            int
	ChunkProgress          float64
	EstimatedTimeRemaining *time.Duration
	OutputPath             string
	AudioDuration          *int
	ErrorMessage           string
	VoiceMapping           VoiceMapping
	Options                json.RawMessage
	CancelRequested        bool
	CreatedAt              time.Time
	StartedAt              *time.Time
	CompletedAt            *time.Time
	UpdatedAt              time.Time
	// Version counts stored writes; Update only succeeds against the version it read.
	Version int64
}

// NewGenerationJob builds a queued job record for the given snapshot.
func NewGenerationJob(id, projectID string, mapping VoiceMapping, options json.RawMessage, now time.Time) *GenerationJob {
	return &GenerationJob{
		ID:           id,
		ProjectID:    projectID,
		Status:       JobStatusQueued,
		VoiceMapping: mapping.Clone(),
		Options:      cloneRaw(options),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Clone returns a deep copy so callers never share mutable state with a store.
func (j *GenerationJob) Clone() *GenerationJob {
	if j == nil {
		return nil
	}
	out := *j
	out.VoiceMapping = j.VoiceMapping.Clone()
	out.Options = cloneRaw(j.Options)
	if j.EstimatedTimeRemaining != nil {
		eta := *j.EstimatedTimeRemaining
		out.EstimatedTimeRemaining = &eta
	}
	if j.AudioDuration != nil {
		d := *j.AudioDuration
		out.AudioDuration = &d
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		out.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		out.CompletedAt = &t
	}
	return &out
}

// ProgressUpdate is a worker-reported change to a job. Nil fields are left untouched.
type ProgressUpdate struct {
	Status                 JobStatus      `json:"status"`
	Progress               *float64       `json:"progress,omitempty"`
	CurrentChunk           *int           `json:"current_chunk,omitempty"`
	TotalChunks            *int           `json:"total_chunks,omitempty"`
	ChunkProgress          *float64       `json:"chunk_progress,omitempty"`
	EstimatedTimeRemaining *time.Duration `json:"-"`
	OutputPath             string         `json:"output_path,omitempty"`
	AudioDuration          *int           `json:"audio_duration,omitempty"`
	ErrorMessage           string         `json:"error_message,omitempty"`
}

type progressUpdateWire struct {
	Status     JobStatus `json:"status"`
	Progress   *float64  `json:"progress,omitempty"`
	Current    *int      `json:"current_chunk,omitempty"`
	Total      *int      `json:"total_chunks,omitempty"`
	ChunkPct   *float64  `json:"chunk_progress,omitempty"`
	ETASeconds *float64  `json:"estimated_time_remaining,omitempty"`
	OutputPath string    `json:"output_path,omitempty"`
	AudioDur   *int      `json:"audio_duration,omitempty"`
	ErrorMsg   string    `json:"error_message,omitempty"`
}

// MarshalJSON encodes the ETA as seconds.
func (u ProgressUpdate) MarshalJSON() ([]byte, error) {
	w := progressUpdateWire{
		Status:     u.Status,
		Progress:   u.Progress,
		Current:    u.CurrentChunk,
		Total:      u.TotalChunks,
		ChunkPct:   u.ChunkProgress,
		OutputPath: u.OutputPath,
		AudioDur:   u.AudioDuration,
		ErrorMsg:   u.ErrorMessage,
	}
	if u.EstimatedTimeRemaining != nil {
		secs := u.EstimatedTimeRemaining.Seconds()
		w.ETASeconds = &secs
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes the wire form and rejects unknown statuses.
func (u *ProgressUpdate) UnmarshalJSON(data []byte) error {
	var w progressUpdateWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.Status != "" && !w.Status.Valid() {
		return fmt.Errorf("%w: unknown job status %q", ErrValidation, w.Status)
	}
	*u = ProgressUpdate{
		Status:        w.Status,
		Progress:      w.Progress,
		CurrentChunk:  w.Current,
		TotalChunks:   w.Total,
		ChunkProgress: w.ChunkPct,
		OutputPath:    w.OutputPath,
		AudioDuration: w.AudioDur,
		ErrorMessage:  w.ErrorMsg,
	}
	if w.ETASeconds != nil {
		eta := time.Duration(*w.ETASeconds * float64(time.Second))
		u.EstimatedTimeRemaining = &eta
	}
	return nil
}

// Apply validates u against the lifecycle and, when legal, mutates j in place.
// On any error j is left exactly as it was.
func (j *GenerationJob) Apply(u ProgressUpdate, now time.Time) error {
	if j.Status.Terminal() {
		return fmt.Errorf("%w: job %s is already %s", ErrStaleTransition, j.ID, j.Status)
	}
	target := u.Status
	if target == "" {
		target = j.Status
	}
	if !j.Status.CanTransitionTo(target) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, target)
	}

	next := j.Clone()
	next.Status = target

	if u.TotalChunks != nil {
		total := *u.TotalChunks
		if total <= 0 {
			return fmt.Errorf("%w: total chunks must be positive, got %d", ErrInvalidTransition, total)
		}
		if next.TotalChunks != 0 && next.TotalChunks != total {
			return fmt.Errorf("%w: total chunks already fixed at %d", ErrInvalidTransition, next.TotalChunks)
		}
		next.TotalChunks = total
	}

	if u.CurrentChunk != nil {
		current := *u.CurrentChunk
		if current < next.CurrentChunk {
			return fmt.Errorf("%w: chunk %d precedes current chunk %d", ErrInvalidTransition, current, next.CurrentChunk)
		}
		if next.TotalChunks == 0 || current > next.TotalChunks {
			return fmt.Errorf("%w: chunk %d outside total %d", ErrInvalidTransition, current, next.TotalChunks)
		}
		if current > next.CurrentChunk {
			next.CurrentChunk = current
			next.ChunkProgress = 0
		}
	}

	if u.ChunkProgress != nil {
		next.ChunkProgress = max(next.ChunkProgress, clampPercent(*u.ChunkProgress))
	}
	if u.Progress != nil {
		next.Progress = max(next.Progress, clampPercent(*u.Progress))
	}
	if u.EstimatedTimeRemaining != nil {
		eta := max(*u.EstimatedTimeRemaining, 0)
		next.EstimatedTimeRemaining = &eta
	}

	if j.Status == JobStatusQueued && target != JobStatusQueued && next.StartedAt == nil {
		started := now
		next.StartedAt = &started
	}

	switch target {
	case JobStatusQueued, JobStatusLoadingModel, JobStatusGenerating, JobStatusStitching:
	case JobStatusCompleted:
		if strings.TrimSpace(u.OutputPath) == "" {
			return fmt.Errorf("%w: completed without output path", ErrInvalidTransition)
		}
		next.OutputPath = u.OutputPath
		next.Progress = 100
		next.EstimatedTimeRemaining = nil
		if u.AudioDuration != nil {
			d := *u.AudioDuration
			next.AudioDuration = &d
		}
		next.finish(now)
	case JobStatusFailed:
		next.ErrorMessage = SanitizeFailure(u.ErrorMessage)
		next.EstimatedTimeRemaining = nil
		next.finish(now)
	case JobStatusCancelled:
		next.EstimatedTimeRemaining = nil
		next.finish(now)
	default:
		return fmt.Errorf("%w: unknown job status %q", ErrInvalidTransition, target)
	}

	next.UpdatedAt = now
	*j = *next
	return nil
}

func (j *GenerationJob) finish(now time.Time) {
	completed := now
	j.CompletedAt = &completed
}

const (
	defaultFailureMessage = "audio generation failed"
	maxFailureMessageLen  = 240
)

// SanitizeFailure reduces a worker-reported failure to a single bounded line
// suitable for end users.
func SanitizeFailure(msg string) string {
	msg = strings.TrimSpace(msg)
	if idx := strings.IndexAny(msg, "\r\n"); idx >= 0 {
		msg = strings.TrimSpace(msg[:idx])
	}
	if msg == "" {
		return defaultFailureMessage
	}
	if r := []rune(msg); len(r) > maxFailureMessageLen {
		msg = string(r[:maxFailureMessageLen])
	}
	return msg
}

func clampPercent(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	return append(json.RawMessage(nil), raw...)
}

// Float returns a pointer to v for building sparse progress updates.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v for building sparse progress updates.
func Int(v int) *int { return &v }
