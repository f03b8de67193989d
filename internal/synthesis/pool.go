package synthesis

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"voicestudio/internal/domain"
)

var ErrPoolNotStarted = errors.New("worker pool not started")

// Pool runs tasks on a fixed number of workers in FIFO order. It satisfies
// the manager's WorkerPool contract for single-process deployments and is
// fed by the queue consumer on dedicated worker hosts.
type Pool struct {
	runner  *Runner
	cancels *CancelRegistry
	size    int
	logger  zerolog.Logger

	mu       sync.Mutex
	pending  []domain.SynthesisTask
	running  int
	reporter Reporter
	ctx      context.Context
	wake     chan struct{}
	wg       sync.WaitGroup
}

func NewPool(runner *Runner, size int, logger zerolog.Logger) *Pool {
	return &Pool{
		runner:  runner,
		cancels: NewCancelRegistry(),
		size:    max(size, 1),
		logger:  logger,
		wake:    make(chan struct{}, 1),
	}
}

// Start launches the workers. Reports go to reporter until ctx is done.
func (p *Pool) Start(ctx context.Context, reporter Reporter) {
	p.mu.Lock()
	p.ctx = ctx
	p.reporter = reporter
	p.mu.Unlock()

	for i := range p.size {
		p.wg.Add(1)
		go p.work(ctx, i)
	}
	p.logger.Info().Int("workers", p.size).Msg("pool: started")
}

// Wait blocks until every worker has exited after Start's context ends.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Enqueue accepts a task for execution.
func (p *Pool) Enqueue(_ context.Context, task domain.SynthesisTask) error {
	p.mu.Lock()
	if p.ctx == nil {
		p.mu.Unlock()
		return ErrPoolNotStarted
	}
	if err := p.ctx.Err(); err != nil {
		p.mu.Unlock()
		return err
	}
	p.pending = append(p.pending, task)
	p.mu.Unlock()
	p.signal()
	return nil
}

// RequestCancel stops a job. A task still waiting for a worker is dropped
// and acknowledged at once; a running one stops at its next checkpoint.
func (p *Pool) RequestCancel(ctx context.Context, jobID string) error {
	p.mu.Lock()
	reporter := p.reporter
	for i, t := range p.pending {
		if t.JobID != jobID {
			continue
		}
		p.pending = append(p.pending[:i], p.pending[i+1:]...)
		p.mu.Unlock()
		p.logger.Info().Str("job_id", jobID).Msg("pool: dropped pending task")
		return reporter.Report(ctx, jobID, domain.ProgressUpdate{Status: domain.JobStatusCancelled})
	}
	p.mu.Unlock()

	if !p.cancels.Cancel(jobID) {
		p.logger.Debug().Str("job_id", jobID).Msg("pool: cancel recorded for unseen job")
	}
	return nil
}

// Available is how many more tasks the pool can start right away.
func (p *Pool) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return max(p.size-p.running-len(p.pending), 0)
}

func (p *Pool) signal() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Pool) next() (domain.SynthesisTask, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.pending) == 0 {
		return domain.SynthesisTask{}, false
	}
	task := p.pending[0]
	p.pending = p.pending[1:]
	p.running++
	if len(p.pending) > 0 {
		p.signal()
	}
	return task, true
}

func (p *Pool) work(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		if ctx.Err() != nil {
			p.abandonPending(ctx)
			return
		}
		task, ok := p.next()
		if !ok {
			select {
			case <-ctx.Done():
			case <-p.wake:
			}
			continue
		}

		p.logger.Info().Int("worker", id).Str("job_id", task.JobID).Msg("pool: job started")
		token := p.cancels.Register(task.JobID)
		p.runner.Run(ctx, p.reporter, task, token)
		p.cancels.Release(task.JobID)

		p.mu.Lock()
		p.running--
		p.mu.Unlock()
	}
}

// abandonPending fails tasks that never reached a worker before shutdown so
// their jobs do not sit in queued forever.
func (p *Pool) abandonPending(ctx context.Context) {
	p.mu.Lock()
	abandoned := p.pending
	p.pending = nil
	p.mu.Unlock()

	for _, task := range abandoned {
		p.runner.finish(ctx, p.reporter, task.JobID, p.logger, domain.ProgressUpdate{
			Status:       domain.JobStatusFailed,
			ErrorMessage: "generation interrupted: worker shut down",
		})
	}
}
