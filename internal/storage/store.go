// Package storage keeps rendered audio artifacts.
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned when no artifact exists under a key.
var ErrNotFound = errors.New("storage: artifact not found")

// ArtifactStore persists final audio files under slash-separated keys.
type ArtifactStore interface {
	Put(ctx context.Context, key string, r io.Reader) (string, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// AudioKey is the artifact key of a job's final mix.
func AudioKey(jobID string) string {
	return "audio/" + jobID + "/final.wav"
}
