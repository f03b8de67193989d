package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"voicestudio/internal/domain"
	"voicestudio/internal/infra"
	"voicestudio/internal/sqlinline"
)

// ScriptRepositoryPG reads project scripts owned by the editing service.
type ScriptRepositoryPG struct {
	db infra.SQLExecutor
}

// NewScriptRepository creates a script reader over an audited executor.
func NewScriptRepository(db infra.SQLExecutor) *ScriptRepositoryPG {
	return &ScriptRepositoryPG{db: db}
}

// GetSegments returns the ordered segments of a project.
func (r *ScriptRepositoryPG) GetSegments(ctx context.Context, projectID string) ([]domain.Segment, error) {
	var exists bool
	if err := r.db.QueryRow(ctx, sqlinline.QProjectExists, projectID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, domain.ErrProjectNotFound
	}

	rows, err := r.db.Query(ctx, sqlinline.QScriptSegments, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	segments := make([]domain.Segment, 0)
	for rows.Next() {
		var s domain.Segment
		if err := rows.Scan(&s.ID, &s.Order, &s.Text, &s.SpeakerID, &s.SpeakerName, &s.VoiceID); err != nil {
			return nil, err
		}
		segments = append(segments, s)
	}
	return segments, rows.Err()
}

// GetVoiceMapping returns the project's saved speaker-to-voice assignments.
func (r *ScriptRepositoryPG) GetVoiceMapping(ctx context.Context, projectID string) (domain.VoiceMapping, error) {
	var raw []byte
	if err := r.db.QueryRow(ctx, sqlinline.QProjectVoiceMapping, projectID).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrProjectNotFound
		}
		return nil, err
	}
	mapping := domain.VoiceMapping{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &mapping); err != nil {
			return nil, fmt.Errorf("decode voice mapping: %w", err)
		}
	}
	return mapping, nil
}

var _ domain.ScriptRepository = (*ScriptRepositoryPG)(nil)
