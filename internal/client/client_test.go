package client_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voicestudio/internal/client"
	"voicestudio/internal/domain"
)

func TestStartAndConflict(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/generation/start", r.URL.Path)
		var req client.StartRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "en-Frank_man", req.VoiceMapping[2])

		w.Header().Set("Content-Type", "application/json")
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id":"job-1","project_id":"P1","status":"queued","progress":0,"estimated_time_remaining":12.5}`))
			return
		}
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"conflict","message":"busy","existing_job_id":"job-1"}`))
	}))
	defer srv.Close()

	c := client.New(srv.URL+"/", time.Second)
	req := client.StartRequest{ProjectID: "P1", VoiceMapping: domain.VoiceMapping{2: "en-Frank_man"}}

	job, err := c.Start(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "job-1", job.ID)
	assert.Equal(t, domain.JobStatusQueued, job.Status)
	assert.Equal(t, 12500*time.Millisecond, job.ETA())

	_, err = c.Start(context.Background(), req)
	existing, ok := client.IsConflict(err)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, "job-1", existing)
}

func TestWatchPollsUntilTerminal(t *testing.T) {
	statuses := []string{"queued", "generating", "generating", "completed"}
	var n atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		i := int(n.Add(1)) - 1
		if i == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		if i >= len(statuses) {
			i = len(statuses) - 1
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "job-1", "status": statuses[i], "progress": float64(i) * 25})
	}))
	defer srv.Close()

	var seen []domain.JobStatus
	job, err := client.New(srv.URL, time.Second).Watch(context.Background(), "job-1", 5*time.Millisecond, func(j *client.Job) {
		seen = append(seen, j.Status)
	})
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, job.Status)
	assert.Equal(t, []domain.JobStatus{domain.JobStatusQueued, domain.JobStatusGenerating, domain.JobStatusCompleted}, seen)
}

func TestWatchStopsOnNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"not_found","message":"generation job not found"}`))
	}))
	defer srv.Close()

	_, err := client.New(srv.URL, time.Second).Watch(context.Background(), "nope", time.Millisecond, nil)
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "not_found", apiErr.Code)
}

func TestDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/generation/job-1/download", r.URL.Path)
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write([]byte("RIFF...."))
	}))
	defer srv.Close()

	var buf bytes.Buffer
	n, err := client.New(srv.URL, time.Second).Download(context.Background(), "job-1", &buf)
	require.NoError(t, err)
	assert.EqualValues(t, 8, n)
	assert.Equal(t, "RIFF....", buf.String())
}
