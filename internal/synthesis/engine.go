package synthesis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
)

// DefaultVoice is used for speakers missing from the voice mapping.
const DefaultVoice = "en-Carter_man"

var (
	ErrEngineUnavailable = errors.New("speech engine unavailable")
	// ErrEngineRejected marks a 4xx answer: retrying the same chunk will not help.
	ErrEngineRejected = errors.New("speech engine rejected the request")
)

// ChunkRequest is one engine call.
type ChunkRequest struct {
	JobID             string
	Index             int
	Text              string
	Voices            []string
	Options           json.RawMessage
	EstimatedDuration time.Duration
}

// Synthesizer renders one chunk to WAV bytes.
type Synthesizer interface {
	Synthesize(ctx context.Context, req ChunkRequest) ([]byte, error)
}

const (
	apiSynthesize = "/v1/synthesize"
	apiHealth     = "/health"
)

type synthesizeRequest struct {
	Text    string          `json:"text"`
	Voices  []string        `json:"speaker_names"`
	Options json.RawMessage `json:"options,omitempty"`
}

type engineError struct {
	Detail string `json:"detail"`
}

// HTTPSynthesizer calls a standalone TTS inference service. A circuit
// breaker stops hammering an engine that keeps failing.
type HTTPSynthesizer struct {
	baseURL string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

func NewHTTPSynthesizer(baseURL string, timeout time.Duration) *HTTPSynthesizer {
	return &HTTPSynthesizer{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "tts-engine",
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
			IsSuccessful: func(err error) bool {
				// Cancellation and rejected input say nothing about engine health.
				return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, ErrEngineRejected)
			},
		}),
	}
}

// Synthesize posts the chunk and returns the WAV body.
func (s *HTTPSynthesizer) Synthesize(ctx context.Context, req ChunkRequest) ([]byte, error) {
	out, err := s.breaker.Execute(func() (interface{}, error) {
		return s.post(ctx, req)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	if err != nil {
		return nil, err
	}
	return out.([]byte), nil
}

func (s *HTTPSynthesizer) post(ctx context.Context, req ChunkRequest) ([]byte, error) {
	body, err := json.Marshal(synthesizeRequest{Text: req.Text, Voices: req.Voices, Options: req.Options})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+apiSynthesize, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "audio/wav")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call engine: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read engine response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("engine returned %s", resp.Status)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			err = fmt.Errorf("%w: %s", ErrEngineRejected, resp.Status)
		}
		var e engineError
		if json.Unmarshal(data, &e) == nil && e.Detail != "" {
			return nil, fmt.Errorf("%w: %s", err, e.Detail)
		}
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.New("engine returned empty audio")
	}
	return data, nil
}

// HealthCheck calls the engine health endpoint.
func (s *HTTPSynthesizer) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+apiHealth, nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health returned %s", ErrEngineUnavailable, resp.Status)
	}
	return nil
}

// ToneSynthesizer renders a quiet tone per chunk lasting the chunk's
// estimated duration. It stands in for the engine in development.
type ToneSynthesizer struct {
	SampleRate  int
	MaxDuration time.Duration
}

func (t ToneSynthesizer) Synthesize(ctx context.Context, req ChunkRequest) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rate := t.SampleRate
	if rate <= 0 {
		rate = 24000
	}
	d := max(req.EstimatedDuration, time.Second)
	if t.MaxDuration > 0 {
		d = min(d, t.MaxDuration)
	}
	frames := int(d * time.Duration(rate) / time.Second)
	freq := 220.0 * float64(1+req.Index%4)
	samples := make([]int16, frames)
	for i := range samples {
		samples[i] = int16(1200 * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
	}
	var buf bytes.Buffer
	if err := EncodeWAV(&buf, &PCM{SampleRate: rate, Channels: 1, Samples: samples}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var (
	_ Synthesizer = (*HTTPSynthesizer)(nil)
	_ Synthesizer = ToneSynthesizer{}
)
