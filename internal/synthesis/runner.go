package synthesis

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"

	"voicestudio/internal/domain"
	"voicestudio/internal/storage"
)

// Reporter receives lifecycle updates for a job. The manager implements it
// in process; the queue publisher implements it across hosts.
type Reporter interface {
	Report(ctx context.Context, jobID string, update domain.ProgressUpdate) error
}

var (
	errCancelled = errors.New("generation cancelled")
	errSettled   = errors.New("job settled elsewhere")
	errNoText    = errors.New("script has no text to synthesize")
	errPanic     = errors.New("panic during generation")
	errStore     = errors.New("store artifact")
	errEngine    = errors.New("speech engine error")
)

const terminalReportTimeout = 10 * time.Second

// chunkError ties a failure to the chunk that produced it.
type chunkError struct {
	index int
	err   error
}

func (e *chunkError) Error() string { return fmt.Sprintf("chunk %d: %v", e.index, e.err) }

func (e *chunkError) Unwrap() error { return e.err }

// RunnerConfig tunes chunking and stitching.
type RunnerConfig struct {
	Chunker   ChunkerConfig
	Crossfade time.Duration
}

// Runner executes one synthesis task end to end.
type Runner struct {
	chunker   *Chunker
	synth     Synthesizer
	store     storage.ArtifactStore
	crossfade time.Duration
	logger    zerolog.Logger
	now       func() time.Time
}

func NewRunner(synth Synthesizer, store storage.ArtifactStore, cfg RunnerConfig, logger zerolog.Logger) *Runner {
	if cfg.Crossfade <= 0 {
		cfg.Crossfade = DefaultCrossfade
	}
	return &Runner{
		chunker:   NewChunker(cfg.Chunker),
		synth:     synth,
		store:     store,
		crossfade: cfg.Crossfade,
		logger:    logger,
		now:       time.Now,
	}
}

// Run renders task and reports every transition, including the terminal one.
// It never returns an error: failures become a failed report.
func (r *Runner) Run(ctx context.Context, rep Reporter, task domain.SynthesisTask, token *CancelToken) {
	log := r.logger.With().Str("job_id", task.JobID).Logger()
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Interface("panic", rec).Str("stack", string(debug.Stack())).Msg("runner: recovered panic")
			r.finish(ctx, rep, task.JobID, log, failed(fmt.Errorf("%w: %v", errPanic, rec)))
		}
	}()

	start := r.now()
	err := r.execute(ctx, rep, task, token, log)
	switch {
	case err == nil:
		log.Info().Dur("elapsed", r.now().Sub(start)).Msg("runner: job completed")
	case errors.Is(err, errCancelled):
		log.Info().Msg("runner: job cancelled")
		r.finish(ctx, rep, task.JobID, log, domain.ProgressUpdate{Status: domain.JobStatusCancelled})
	case errors.Is(err, errSettled):
		log.Info().Err(err).Msg("runner: stopping, job no longer accepts updates")
	default:
		if ctx.Err() != nil && errors.Is(err, context.Canceled) {
			err = fmt.Errorf("generation interrupted: worker shut down: %w", err)
		}
		log.Error().Err(err).Msg("runner: job failed")
		r.finish(ctx, rep, task.JobID, log, failed(err))
	}
}

func (r *Runner) execute(ctx context.Context, rep Reporter, task domain.SynthesisTask, token *CancelToken, log zerolog.Logger) error {
	if token.Cancelled() {
		return errCancelled
	}
	if err := r.report(ctx, rep, task.JobID, log, domain.ProgressUpdate{Status: domain.JobStatusLoadingModel}); err != nil {
		return err
	}

	chunks := r.chunker.Split(task.Segments)
	if len(chunks) == 0 {
		return errNoText
	}
	total := len(chunks)
	if err := r.report(ctx, rep, task.JobID, log, domain.ProgressUpdate{
		Status:       domain.JobStatusGenerating,
		TotalChunks:  domain.Int(total),
		CurrentChunk: domain.Int(0),
		Progress:     domain.Float(0),
	}); err != nil {
		return err
	}

	parts := make([]*PCM, 0, total)
	started := r.now()
	for i, chunk := range chunks {
		if token.Cancelled() {
			return errCancelled
		}
		if i > 0 {
			if err := r.report(ctx, rep, task.JobID, log, domain.ProgressUpdate{
				Status:       domain.JobStatusGenerating,
				CurrentChunk: domain.Int(i),
				Progress:     domain.Float(percent(i, total)),
			}); err != nil {
				return err
			}
		}

		pcm, err := r.synthesize(ctx, task, chunk, token)
		if err != nil {
			return err
		}
		parts = append(parts, pcm)
		log.Debug().Int("chunk", i).Int("total", total).Dur("audio", pcm.Duration()).Msg("runner: chunk rendered")

		perChunk := r.now().Sub(started) / time.Duration(i+1)
		eta := perChunk * time.Duration(total-i-1)
		if err := r.report(ctx, rep, task.JobID, log, domain.ProgressUpdate{
			Status:                 domain.JobStatusGenerating,
			ChunkProgress:          domain.Float(100),
			Progress:               domain.Float(percent(i+1, total)),
			EstimatedTimeRemaining: &eta,
		}); err != nil {
			return err
		}
	}

	if token.Cancelled() {
		return errCancelled
	}
	if err := r.report(ctx, rep, task.JobID, log, domain.ProgressUpdate{Status: domain.JobStatusStitching}); err != nil {
		return err
	}
	mix, err := Stitch(parts, r.crossfade)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := EncodeWAV(&buf, mix); err != nil {
		return fmt.Errorf("%w: encode: %v", errStore, err)
	}
	if token.Cancelled() {
		return errCancelled
	}
	key, err := r.store.Put(ctx, storage.AudioKey(task.JobID), &buf)
	if err != nil {
		return fmt.Errorf("%w: %v", errStore, err)
	}

	seconds := int(math.Round(mix.Duration().Seconds()))
	return r.report(ctx, rep, task.JobID, log, domain.ProgressUpdate{
		Status:        domain.JobStatusCompleted,
		OutputPath:    key,
		AudioDuration: &seconds,
	})
}

// synthesize renders one chunk, aborting the engine call when the job is
// cancelled mid-chunk.
func (r *Runner) synthesize(ctx context.Context, task domain.SynthesisTask, chunk Chunk, token *CancelToken) (*PCM, error) {
	chunkCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-token.Done():
			cancel()
		case <-chunkCtx.Done():
		}
	}()

	voices := make([]string, 0, len(chunk.SpeakerIDs))
	for _, id := range chunk.SpeakerIDs {
		voice := task.VoiceMapping[id]
		if voice == "" {
			voice = DefaultVoice
		}
		voices = append(voices, voice)
	}

	data, err := r.synth.Synthesize(chunkCtx, ChunkRequest{
		JobID:             task.JobID,
		Index:             chunk.Index,
		Text:              chunk.Text,
		Voices:            voices,
		Options:           task.Options,
		EstimatedDuration: chunk.EstimatedDuration,
	})
	if err != nil {
		if token.Cancelled() {
			return nil, errCancelled
		}
		if errors.Is(err, ErrEngineUnavailable) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, &chunkError{index: chunk.Index, err: fmt.Errorf("%w: %w", errEngine, err)}
	}
	pcm, err := DecodeWAV(data)
	if err != nil {
		return nil, &chunkError{index: chunk.Index, err: err}
	}
	return pcm, nil
}

// report delivers a progress update. A rejection by the job owner means the
// job was settled elsewhere and work must stop; transport errors are logged
// and the run continues.
func (r *Runner) report(ctx context.Context, rep Reporter, jobID string, log zerolog.Logger, u domain.ProgressUpdate) error {
	err := rep.Report(ctx, jobID, u)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrStaleTransition), errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrNotFound):
		return fmt.Errorf("%w: %v", errSettled, err)
	default:
		log.Warn().Err(err).Str("status", string(u.Status)).Msg("runner: progress report failed")
		return nil
	}
}

func (r *Runner) finish(ctx context.Context, rep Reporter, jobID string, log zerolog.Logger, u domain.ProgressUpdate) {
	reportCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), terminalReportTimeout)
	defer cancel()
	if err := rep.Report(reportCtx, jobID, u); err != nil {
		log.Warn().Err(err).Str("status", string(u.Status)).Msg("runner: terminal report rejected")
	}
}

func failed(err error) domain.ProgressUpdate {
	return domain.ProgressUpdate{Status: domain.JobStatusFailed, ErrorMessage: FailureMessage(err)}
}

// FailureMessage maps an internal error to the text shown to end users.
// Engine and transport text stays in the logs.
func FailureMessage(err error) string {
	switch {
	case errors.Is(err, ErrEngineUnavailable):
		return "speech engine unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return "speech engine timed out"
	case errors.Is(err, ErrInvalidWAV):
		return "speech engine returned unreadable audio"
	case errors.Is(err, ErrFormatMismatch):
		return "audio chunks could not be combined"
	case errors.Is(err, errNoText):
		return errNoText.Error()
	case errors.Is(err, errStore):
		return "could not save generated audio"
	case errors.Is(err, errPanic):
		return "internal error during audio generation"
	case errors.Is(err, ErrEngineRejected):
		return onChunk("speech engine rejected the request", err)
	case errors.Is(err, errEngine):
		return onChunk("speech engine error", err)
	case errors.Is(err, context.Canceled):
		return "generation interrupted: worker shut down"
	default:
		return "audio generation failed"
	}
}

func onChunk(msg string, err error) string {
	var ce *chunkError
	if errors.As(err, &ce) {
		return fmt.Sprintf("%s on chunk %d", msg, ce.index+1)
	}
	return msg
}

func percent(done, total int) float64 {
	return float64(done) / float64(total) * 100
}
