package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"voicestudio/internal/domain"
)

// ProgressPublisher is the worker-side Reporter. Each report is a request,
// so a job settled by the API (cancelled, failed by the watchdog) stops the
// worker on its next report.
type ProgressPublisher struct {
	nc       *nats.Conn
	subjects Subjects
	timeout  time.Duration
}

func NewProgressPublisher(nc *nats.Conn, subjects Subjects, timeout time.Duration) *ProgressPublisher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &ProgressPublisher{nc: nc, subjects: subjects, timeout: timeout}
}

func (p *ProgressPublisher) Report(ctx context.Context, jobID string, update domain.ProgressUpdate) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	msg, err := p.nc.RequestWithContext(ctx, p.subjects.Progress(), encode(ProgressMessage{JobID: jobID, Update: update}))
	if err != nil {
		return fmt.Errorf("publish progress: %w", err)
	}
	var ack ProgressAck
	if err := json.Unmarshal(msg.Data, &ack); err != nil {
		return fmt.Errorf("decode progress ack: %w", err)
	}
	return ack.err()
}
