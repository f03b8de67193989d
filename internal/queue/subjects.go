// Package queue carries generation work and its progress over NATS: tasks on
// a JetStream work queue, cancels and progress on core subjects.
package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"voicestudio/internal/domain"
)

// DurableName is the pull consumer shared by all synthesis workers.
const DurableName = "synthesis-workers"

// Subjects derives subject and stream names from a prefix.
type Subjects struct {
	prefix string
}

func NewSubjects(prefix string) Subjects {
	prefix = strings.Trim(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		prefix = "generation"
	}
	return Subjects{prefix: prefix}
}

func (s Subjects) Jobs() string     { return s.prefix + ".jobs" }
func (s Subjects) Cancel() string   { return s.prefix + ".cancel" }
func (s Subjects) Progress() string { return s.prefix + ".progress" }

// Stream is the JetStream stream holding queued tasks.
func (s Subjects) Stream() string {
	return strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(s.prefix))
}

// EnsureStream creates or updates the work queue stream and its shared
// durable consumer.
func EnsureStream(js nats.JetStreamContext, s Subjects) error {
	cfg := &nats.StreamConfig{
		Name:       s.Stream(),
		Subjects:   []string{s.Jobs()},
		Retention:  nats.WorkQueuePolicy,
		Storage:    nats.FileStorage,
		Duplicates: 2 * time.Minute,
	}
	if _, err := js.AddStream(cfg); err != nil {
		if !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
			return fmt.Errorf("add stream %s: %w", cfg.Name, err)
		}
		if _, err := js.UpdateStream(cfg); err != nil {
			return fmt.Errorf("update stream %s: %w", cfg.Name, err)
		}
	}

	if _, err := js.ConsumerInfo(cfg.Name, DurableName); err == nil {
		return nil
	} else if !errors.Is(err, nats.ErrConsumerNotFound) {
		return fmt.Errorf("consumer info %s: %w", DurableName, err)
	}
	_, err := js.AddConsumer(cfg.Name, &nats.ConsumerConfig{
		Durable:       DurableName,
		FilterSubject: s.Jobs(),
		AckPolicy:     nats.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    5,
	})
	if err != nil {
		return fmt.Errorf("add consumer %s: %w", DurableName, err)
	}
	return nil
}

// CancelMessage asks every worker to stop a job.
type CancelMessage struct {
	JobID string `json:"job_id"`
}

// ProgressMessage carries one worker report.
type ProgressMessage struct {
	JobID  string                `json:"job_id"`
	Update domain.ProgressUpdate `json:"update"`
}

// ProgressAck is the API's reply to a progress request.
type ProgressAck struct {
	Error string `json:"error,omitempty"`
}

const (
	ackStale    = "stale"
	ackInvalid  = "invalid_transition"
	ackNotFound = "not_found"
	ackInternal = "internal"
)

func ackFor(err error) ProgressAck {
	switch {
	case err == nil:
		return ProgressAck{}
	case errors.Is(err, domain.ErrStaleTransition):
		return ProgressAck{Error: ackStale}
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrValidation):
		return ProgressAck{Error: ackInvalid}
	case errors.Is(err, domain.ErrNotFound):
		return ProgressAck{Error: ackNotFound}
	default:
		return ProgressAck{Error: ackInternal}
	}
}

func (a ProgressAck) err() error {
	switch a.Error {
	case "":
		return nil
	case ackStale:
		return domain.ErrStaleTransition
	case ackInvalid:
		return domain.ErrInvalidTransition
	case ackNotFound:
		return domain.ErrNotFound
	default:
		return errors.New("progress rejected: " + a.Error)
	}
}

func encode(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		// Only plain structs travel here.
		panic(fmt.Sprintf("queue: encode %T: %v", v, err))
	}
	return data
}
