package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"voicestudio/internal/domain"
)

// Dispatcher is the API-side WorkerPool: it publishes tasks to the work
// queue and broadcasts cancels.
type Dispatcher struct {
	nc       *nats.Conn
	js       nats.JetStreamContext
	subjects Subjects
	logger   zerolog.Logger
}

func NewDispatcher(nc *nats.Conn, js nats.JetStreamContext, subjects Subjects, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{nc: nc, js: js, subjects: subjects, logger: logger}
}

// Enqueue publishes the task; the job id doubles as the dedup id so a retried
// publish never queues the job twice.
func (d *Dispatcher) Enqueue(ctx context.Context, task domain.SynthesisTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encode task: %w", err)
	}
	ack, err := d.js.Publish(d.subjects.Jobs(), data, nats.MsgId(task.JobID), nats.Context(ctx))
	if err != nil {
		return fmt.Errorf("publish task: %w", err)
	}
	d.logger.Debug().
		Str("job_id", task.JobID).
		Uint64("seq", ack.Sequence).
		Bool("duplicate", ack.Duplicate).
		Msg("dispatcher: task published")
	return nil
}

// RequestCancel broadcasts a cancel to every worker.
func (d *Dispatcher) RequestCancel(ctx context.Context, jobID string) error {
	if err := d.nc.Publish(d.subjects.Cancel(), encode(CancelMessage{JobID: jobID})); err != nil {
		return fmt.Errorf("publish cancel: %w", err)
	}
	return d.nc.FlushWithContext(ctx)
}
