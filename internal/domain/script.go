package domain

import (
	"encoding/json"
	"sort"
	"strings"
	"time"
)

// Segment is one unit of dialogue text attributed to a speaker.
type Segment struct {
	ID          string `json:"id"`
	Order       int    `json:"order"`
	Text        string `json:"text"`
	SpeakerID   int    `json:"speaker_id"`
	SpeakerName string `json:"speaker_name,omitempty"`
	VoiceID     string `json:"voice_id,omitempty"`
}

// VoiceMapping assigns speaker identifiers to synthesizer voice identifiers.
type VoiceMapping map[int]string

// Clone returns an independent copy of m.
func (m VoiceMapping) Clone() VoiceMapping {
	if m == nil {
		return nil
	}
	out := make(VoiceMapping, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Merge returns m overlaid with the non-empty entries of override.
func (m VoiceMapping) Merge(override VoiceMapping) VoiceMapping {
	out := m.Clone()
	if out == nil {
		out = VoiceMapping{}
	}
	for k, v := range override {
		if strings.TrimSpace(v) == "" {
			continue
		}
		out[k] = v
	}
	return out
}

// HasSpeakableText reports whether at least one segment carries non-blank text.
func HasSpeakableText(segments []Segment) bool {
	for _, s := range segments {
		if strings.TrimSpace(s.Text) != "" {
			return true
		}
	}
	return false
}

// SortSegments orders segments by their script position.
func SortSegments(segments []Segment) {
	sort.SliceStable(segments, func(i, j int) bool { return segments[i].Order < segments[j].Order })
}

// SynthesisTask is the immutable unit of work handed to the worker pool. It
// snapshots the script at submission time so later edits never reach an
// in-flight job.
type SynthesisTask struct {
	JobID        string          `json:"job_id"`
	ProjectID    string          `json:"project_id"`
	Segments     []Segment       `json:"segments"`
	VoiceMapping VoiceMapping    `json:"voice_mapping"`
	Options      json.RawMessage `json:"options,omitempty"`
	EnqueuedAt   time.Time       `json:"enqueued_at"`
}

// QueueStatus is an aggregate read-only view over all tracked jobs.
type QueueStatus struct {
	Position      int            `json:"position"`
	EstimatedWait *time.Duration `json:"-"`
	ActiveJobs    int            `json:"active_jobs"`
	QueuedJobs    int            `json:"queued_jobs"`
}
