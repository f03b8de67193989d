package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"voicestudio/internal/domain"
)

// ProjectScript is the fixture form of a project's script.
type ProjectScript struct {
	ProjectID    string              `json:"project_id"`
	VoiceMapping domain.VoiceMapping `json:"voice_mapping"`
	Segments     []domain.Segment    `json:"segments"`
}

// ScriptRepositoryMemory implements domain.ScriptRepository from fixtures.
type ScriptRepositoryMemory struct {
	mu       sync.RWMutex
	projects map[string]ProjectScript
}

// NewMemoryScriptRepository creates a store seeded with scripts.
func NewMemoryScriptRepository(scripts ...ProjectScript) *ScriptRepositoryMemory {
	r := &ScriptRepositoryMemory{projects: make(map[string]ProjectScript)}
	for _, s := range scripts {
		r.Put(s)
	}
	return r
}

// LoadScriptFixtures reads a JSON array of ProjectScript from path.
func LoadScriptFixtures(path string) (*ScriptRepositoryMemory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script fixtures: %w", err)
	}
	var scripts []ProjectScript
	if err := json.Unmarshal(data, &scripts); err != nil {
		return nil, fmt.Errorf("decode script fixtures: %w", err)
	}
	return NewMemoryScriptRepository(scripts...), nil
}

// Put replaces the script of a project.
func (r *ScriptRepositoryMemory) Put(s ProjectScript) {
	segments := append([]domain.Segment(nil), s.Segments...)
	domain.SortSegments(segments)
	r.mu.Lock()
	r.projects[s.ProjectID] = ProjectScript{
		ProjectID:    s.ProjectID,
		VoiceMapping: s.VoiceMapping.Clone(),
		Segments:     segments,
	}
	r.mu.Unlock()
}

// GetSegments returns a copy of the project's ordered segments.
func (r *ScriptRepositoryMemory) GetSegments(_ context.Context, projectID string) ([]domain.Segment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.projects[projectID]
	if !ok {
		return nil, domain.ErrProjectNotFound
	}
	return append([]domain.Segment(nil), s.Segments...), nil
}

// GetVoiceMapping returns a copy of the project's voice mapping.
func (r *ScriptRepositoryMemory) GetVoiceMapping(_ context.Context, projectID string) (domain.VoiceMapping, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.projects[projectID]
	if !ok {
		return nil, domain.ErrProjectNotFound
	}
	return s.VoiceMapping.Clone(), nil
}

var _ domain.ScriptRepository = (*ScriptRepositoryMemory)(nil)
