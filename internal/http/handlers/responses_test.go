package handlers

import (
	"encoding/json"
	"testing"
	"time"

	"voicestudio/internal/domain"
)

func TestEstimatesRenderAsWholeSeconds(t *testing.T) {
	eta := 12*time.Second + 600*time.Millisecond
	job := domain.NewGenerationJob("job-1", "P1", nil, nil, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	job.EstimatedTimeRemaining = &eta

	raw, err := json.Marshal(newJobResponse(job))
	if err != nil {
		t.Fatalf("marshal job: %v", err)
	}
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		t.Fatalf("decode job: %v", err)
	}
	if body["estimated_time_remaining"] != float64(13) {
		t.Fatalf("estimated_time_remaining = %v, want 13", body["estimated_time_remaining"])
	}

	wait := 90*time.Second + 200*time.Millisecond
	raw, err = json.Marshal(newQueueResponse(domain.QueueStatus{QueuedJobs: 1, EstimatedWait: &wait}))
	if err != nil {
		t.Fatalf("marshal queue: %v", err)
	}
	if want := `{"position":0,"estimated_wait":90,"active_jobs":0,"queued_jobs":1}`; string(raw) != want {
		t.Fatalf("queue body = %s, want %s", raw, want)
	}

	raw, err = json.Marshal(newQueueResponse(domain.QueueStatus{}))
	if err != nil {
		t.Fatalf("marshal empty queue: %v", err)
	}
	if want := `{"position":0,"active_jobs":0,"queued_jobs":0}`; string(raw) != want {
		t.Fatalf("empty queue body = %s, want %s", raw, want)
	}
}
