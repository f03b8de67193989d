package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"voicestudio/internal/domain"
)

// TaskSink runs tasks locally; synthesis.Pool implements it.
type TaskSink interface {
	Enqueue(ctx context.Context, task domain.SynthesisTask) error
	RequestCancel(ctx context.Context, jobID string) error
	Available() int
}

// TaskConsumer pulls tasks only while the local pool has free workers and
// forwards cancel broadcasts to it.
type TaskConsumer struct {
	js       nats.JetStreamContext
	nc       *nats.Conn
	subjects Subjects
	sink     TaskSink
	logger   zerolog.Logger
	maxWait  time.Duration
	idle     time.Duration
}

func NewTaskConsumer(nc *nats.Conn, js nats.JetStreamContext, subjects Subjects, sink TaskSink, logger zerolog.Logger) *TaskConsumer {
	return &TaskConsumer{
		js:       js,
		nc:       nc,
		subjects: subjects,
		sink:     sink,
		logger:   logger,
		maxWait:  2 * time.Second,
		idle:     250 * time.Millisecond,
	}
}

// Run consumes until ctx is cancelled.
func (c *TaskConsumer) Run(ctx context.Context) error {
	cancelSub, err := c.nc.Subscribe(c.subjects.Cancel(), func(msg *nats.Msg) {
		var cm CancelMessage
		if err := json.Unmarshal(msg.Data, &cm); err != nil || cm.JobID == "" {
			c.logger.Warn().Err(err).Msg("consumer: dropping malformed cancel")
			return
		}
		if err := c.sink.RequestCancel(ctx, cm.JobID); err != nil {
			c.logger.Warn().Err(err).Str("job_id", cm.JobID).Msg("consumer: cancel failed")
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe cancel: %w", err)
	}
	defer cancelSub.Unsubscribe()

	// Bound to the consumer EnsureStream created, so unsubscribing leaves it
	// in place for the other workers.
	sub, err := c.js.PullSubscribe(c.subjects.Jobs(), DurableName, nats.Bind(c.subjects.Stream(), DurableName))
	if err != nil {
		return fmt.Errorf("pull subscribe: %w", err)
	}
	defer sub.Unsubscribe()

	c.logger.Info().Str("subject", c.subjects.Jobs()).Str("durable", DurableName).Msg("consumer: started")
	for {
		if ctx.Err() != nil {
			return nil
		}
		free := c.sink.Available()
		if free == 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.idle):
			}
			continue
		}

		fetchCtx, cancel := context.WithTimeout(ctx, c.maxWait)
		msgs, err := sub.Fetch(free, nats.Context(fetchCtx))
		cancel()
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				continue
			}
			c.logger.Error().Err(err).Msg("consumer: fetch failed")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.idle):
			}
			continue
		}
		for _, msg := range msgs {
			c.handle(ctx, msg)
		}
	}
}

// handle hands one task to the pool. The message is acked on hand-off: a
// worker crash mid-job leaves the job to the API watchdog rather than
// re-running a long synthesis.
func (c *TaskConsumer) handle(ctx context.Context, msg *nats.Msg) {
	var task domain.SynthesisTask
	if err := json.Unmarshal(msg.Data, &task); err != nil || task.JobID == "" {
		c.logger.Error().Err(err).Msg("consumer: terminating malformed task")
		_ = msg.Term()
		return
	}
	if err := c.sink.Enqueue(ctx, task); err != nil {
		c.logger.Warn().Err(err).Str("job_id", task.JobID).Msg("consumer: pool refused task")
		_ = msg.Nak()
		return
	}
	if err := msg.Ack(); err != nil {
		c.logger.Warn().Err(err).Str("job_id", task.JobID).Msg("consumer: ack failed")
	}
	c.logger.Info().Str("job_id", task.JobID).Msg("consumer: task accepted")
}
