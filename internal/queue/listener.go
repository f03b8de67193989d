package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"voicestudio/internal/domain"
)

const progressQueueGroup = "api-progress"

// ProgressSink applies worker reports; the generation manager implements it.
type ProgressSink interface {
	ReportProgress(ctx context.Context, jobID string, update domain.ProgressUpdate) (*domain.GenerationJob, error)
}

// ProgressListener feeds worker reports into the manager. API replicas share
// a queue group, so each report is applied once.
type ProgressListener struct {
	nc       *nats.Conn
	subjects Subjects
	sink     ProgressSink
	logger   zerolog.Logger
	timeout  time.Duration
}

func NewProgressListener(nc *nats.Conn, subjects Subjects, sink ProgressSink, logger zerolog.Logger) *ProgressListener {
	return &ProgressListener{nc: nc, subjects: subjects, sink: sink, logger: logger, timeout: 10 * time.Second}
}

// Start subscribes; drain the returned subscription on shutdown.
func (l *ProgressListener) Start() (*nats.Subscription, error) {
	return l.nc.QueueSubscribe(l.subjects.Progress(), progressQueueGroup, l.handle)
}

func (l *ProgressListener) handle(msg *nats.Msg) {
	var pm ProgressMessage
	if err := json.Unmarshal(msg.Data, &pm); err != nil || pm.JobID == "" {
		l.logger.Warn().Err(err).Msg("progress: dropping malformed report")
		l.reply(msg, ProgressAck{Error: ackInvalid})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()
	_, err := l.sink.ReportProgress(ctx, pm.JobID, pm.Update)
	if err != nil && !errors.Is(err, domain.ErrStaleTransition) {
		l.logger.Debug().Err(err).Str("job_id", pm.JobID).Msg("progress: report not applied")
	}
	l.reply(msg, ackFor(err))
}

func (l *ProgressListener) reply(msg *nats.Msg, ack ProgressAck) {
	if msg.Reply == "" {
		return
	}
	if err := msg.Respond(encode(ack)); err != nil {
		l.logger.Warn().Err(err).Msg("progress: reply failed")
	}
}
