package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"voicestudio/internal/adapter/repo"
	"voicestudio/internal/domain"
	"voicestudio/internal/generation"
	"voicestudio/internal/http/handlers"
	"voicestudio/internal/http/httpapi"
	"voicestudio/internal/storage"
)

type stubPool struct {
	mu         sync.Mutex
	enqueueErr error
	cancels    []string
}

func (p *stubPool) Enqueue(context.Context, domain.SynthesisTask) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enqueueErr
}

func (p *stubPool) RequestCancel(_ context.Context, jobID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancels = append(p.cancels, jobID)
	return nil
}

type testServer struct {
	handler http.Handler
	manager *generation.Manager
	store   *storage.FileStore
	pool    *stubPool
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	scripts := repo.NewMemoryScriptRepository(
		repo.ProjectScript{
			ProjectID:    "P1",
			VoiceMapping: domain.VoiceMapping{1: "en-Carter_man"},
			Segments:     []domain.Segment{{ID: "s1", Order: 1, Text: "Hello there.", SpeakerID: 1}},
		},
		repo.ProjectScript{ProjectID: "EMPTY", Segments: []domain.Segment{{ID: "e1", Order: 1, Text: "  ", SpeakerID: 1}}},
	)
	pool := &stubPool{}
	manager := generation.NewManager(repo.NewMemoryJobRepository(), scripts, pool, zerolog.Nop(), generation.Options{})
	store, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("file store: %v", err)
	}
	app := handlers.NewApp(manager, generation.NewArtifactReader(manager, store), zerolog.Nop())
	return &testServer{
		handler: httpapi.NewRouter(app, httpapi.Options{Logger: zerolog.Nop()}),
		manager: manager,
		store:   store,
		pool:    pool,
	}
}

func (s *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestStartGeneration(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(t, http.MethodPost, "/generation/start", `{"project_id":"P1","voice_mapping":{"1":"en-Frank_man"},"options":{"cfg_scale":1.3}}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rr.Code, rr.Body.String())
	}
	job := decode(t, rr)
	if job["status"] != "queued" || job["project_id"] != "P1" {
		t.Fatalf("unexpected job %v", job)
	}
	if job["progress"] != float64(0) {
		t.Fatalf("progress = %v, want 0", job["progress"])
	}
	mapping, _ := job["voice_mapping"].(map[string]any)
	if mapping["1"] != "en-Frank_man" {
		t.Fatalf("voice mapping override not applied: %v", job["voice_mapping"])
	}

	rr = s.do(t, http.MethodPost, "/generation/start", `{"project_id":"P1"}`)
	if rr.Code != http.StatusConflict {
		t.Fatalf("second start status = %d, want 409", rr.Code)
	}
	conflict := decode(t, rr)
	if conflict["error"] != "conflict" || conflict["existing_job_id"] != job["id"] {
		t.Fatalf("unexpected conflict body %v", conflict)
	}
}

func TestStartGenerationErrors(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{name: "malformed", body: `{`, status: http.StatusBadRequest, code: "validation_error"},
		{name: "missing project", body: `{}`, status: http.StatusBadRequest, code: "validation_error"},
		{name: "blank project", body: `{"project_id":"   "}`, status: http.StatusBadRequest, code: "validation_error"},
		{name: "options not object", body: `{"project_id":"P1","options":[1]}`, status: http.StatusBadRequest, code: "validation_error"},
		{name: "unknown project", body: `{"project_id":"nope"}`, status: http.StatusNotFound, code: "not_found"},
		{name: "empty script", body: `{"project_id":"EMPTY"}`, status: http.StatusBadRequest, code: "validation_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestServer(t)
			rr := s.do(t, http.MethodPost, "/generation/start", tc.body)
			if rr.Code != tc.status {
				t.Fatalf("status = %d, want %d: %s", rr.Code, tc.status, rr.Body.String())
			}
			body := decode(t, rr)
			if body["error"] != tc.code || body["message"] == "" {
				t.Fatalf("unexpected error body %v", body)
			}
		})
	}
}

func TestStartGenerationQueueUnavailable(t *testing.T) {
	s := newTestServer(t)
	s.pool.enqueueErr = errors.New("nats: no responders")

	rr := s.do(t, http.MethodPost, "/generation/start", `{"project_id":"P1"}`)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rr.Code)
	}
	if body := decode(t, rr); strings.Contains(body["message"].(string), "nats") {
		t.Fatalf("internal error leaked: %v", body)
	}

	jobs, err := s.manager.ListProjectJobs(context.Background(), "P1")
	if err != nil || len(jobs) != 1 || jobs[0].Status != domain.JobStatusFailed {
		t.Fatalf("expected one failed job, got %v (%v)", jobs, err)
	}
}

func TestStatusCancelAndHistory(t *testing.T) {
	s := newTestServer(t)
	job := decode(t, s.do(t, http.MethodPost, "/generation/start", `{"project_id":"P1"}`))
	id := job["id"].(string)

	rr := s.do(t, http.MethodGet, "/generation/"+id, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status code = %d", rr.Code)
	}

	if rr := s.do(t, http.MethodGet, "/generation/unknown", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("unknown job status = %d, want 404", rr.Code)
	}
	if rr := s.do(t, http.MethodPost, "/generation/unknown/cancel", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("unknown cancel status = %d, want 404", rr.Code)
	}

	rr = s.do(t, http.MethodPost, "/generation/"+id+"/cancel", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("cancel status = %d", rr.Code)
	}
	if body := decode(t, rr); body["cancel_requested"] != true {
		t.Fatalf("cancel not recorded: %v", body)
	}
	if len(s.pool.cancels) != 1 || s.pool.cancels[0] != id {
		t.Fatalf("pool not signalled: %v", s.pool.cancels)
	}

	rr = s.do(t, http.MethodGet, "/projects/P1/generations", "")
	var history struct {
		Items []map[string]any `json:"items"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&history); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(history.Items) != 1 || history.Items[0]["id"] != id {
		t.Fatalf("unexpected history %v", history.Items)
	}

	rr = s.do(t, http.MethodGet, "/projects/none/generations", "")
	if body := decode(t, rr); len(body["items"].([]any)) != 0 {
		t.Fatalf("expected empty history, got %v", body)
	}
}

func TestQueueStatus(t *testing.T) {
	s := newTestServer(t)
	body := decode(t, s.do(t, http.MethodGet, "/generation/queue/status", ""))
	if body["queued_jobs"] != float64(0) || body["active_jobs"] != float64(0) {
		t.Fatalf("unexpected empty queue %v", body)
	}
	if _, ok := body["estimated_wait"]; ok {
		t.Fatalf("estimated_wait must be absent on an empty queue: %v", body)
	}

	s.do(t, http.MethodPost, "/generation/start", `{"project_id":"P1"}`)
	body = decode(t, s.do(t, http.MethodGet, "/generation/queue/status", ""))
	if body["queued_jobs"] != float64(1) || body["position"] != float64(1) {
		t.Fatalf("unexpected queue %v", body)
	}
	if body["estimated_wait"] != float64(600) {
		t.Fatalf("estimated_wait = %v, want 600", body["estimated_wait"])
	}
}

func TestDownload(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	job := decode(t, s.do(t, http.MethodPost, "/generation/start", `{"project_id":"P1"}`))
	id := job["id"].(string)

	rr := s.do(t, http.MethodGet, "/generation/"+id+"/download", "")
	if rr.Code != http.StatusConflict {
		t.Fatalf("download of queued job = %d, want 409", rr.Code)
	}

	key, err := s.store.Put(ctx, storage.AudioKey(id), bytes.NewReader([]byte("RIFFdata")))
	if err != nil {
		t.Fatalf("put artifact: %v", err)
	}
	for _, u := range []domain.ProgressUpdate{
		{Status: domain.JobStatusLoadingModel},
		{Status: domain.JobStatusGenerating, TotalChunks: domain.Int(1)},
		{Status: domain.JobStatusStitching},
		{Status: domain.JobStatusCompleted, OutputPath: key, AudioDuration: domain.Int(3)},
	} {
		if _, err := s.manager.ReportProgress(ctx, id, u); err != nil {
			t.Fatalf("report %s: %v", u.Status, err)
		}
	}

	rr = s.do(t, http.MethodGet, "/generation/"+id+"/download", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("download status = %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "audio/wav" {
		t.Fatalf("content type = %q", ct)
	}
	if rr.Body.String() != "RIFFdata" {
		t.Fatalf("unexpected body %q", rr.Body.String())
	}

	status := decode(t, s.do(t, http.MethodGet, "/generation/"+id, ""))
	if status["download_url"] != "/generation/"+id+"/download" || status["progress"] != float64(100) {
		t.Fatalf("unexpected completed job %v", status)
	}
}

func TestHealthAndDocs(t *testing.T) {
	s := newTestServer(t)
	if body := decode(t, s.do(t, http.MethodGet, "/v1/healthz", "")); body["status"] != "ok" {
		t.Fatalf("unexpected health %v", body)
	}
	rr := s.do(t, http.MethodGet, "/v1/openapi.json", "")
	if rr.Code != http.StatusOK || !json.Valid(rr.Body.Bytes()) {
		t.Fatalf("openapi document invalid (status %d)", rr.Code)
	}
}
