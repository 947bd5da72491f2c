package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/pdfassembler/internal/assembly"
	cfgpkg "github.com/local/pdfassembler/internal/config"
	"github.com/local/pdfassembler/internal/metrics"
	"github.com/local/pdfassembler/internal/queue"
	"github.com/local/pdfassembler/internal/storage"
	"github.com/local/pdfassembler/internal/store"
)

type Queue interface {
	Dequeue(ctx context.Context, consumer string, timeout time.Duration) (string, *queue.Job, error)
	Ack(ctx context.Context, msgID string) error
	IsCancelled(ctx context.Context, runID string) (bool, error)
	EnqueueDelayed(ctx context.Context, job queue.Job, executeAt time.Time) error
	AddDLQ(ctx context.Context, payload []byte, reason string) error
	IsIdemDone(ctx context.Context, key string) (bool, error)
	MarkIdemDone(ctx context.Context, key string, ttl time.Duration) error
}

type StatusStore interface {
	Set(ctx context.Context, runID string, st store.Status) error
	Get(ctx context.Context, runID string) (store.Status, bool, error)
}

type Config struct {
	Concurrency    int
	RunTimeout     time.Duration
	MaxAttempts    int
	RetryBaseDelay time.Duration
	RetryJitter    time.Duration
	BackoffFactor  float64
	CancelPoll     time.Duration
	DequeueTimeout time.Duration
	IdemTTL        time.Duration
}

// FromConfig maps the worker section of the service configuration.
func FromConfig(c cfgpkg.Config) Config {
	return Config{
		Concurrency:    c.Worker.Concurrency,
		RunTimeout:     c.Worker.RunTimeout,
		MaxAttempts:    c.Worker.JobMaxAttempts,
		RetryBaseDelay: c.Worker.RetryBaseDelay,
		RetryJitter:    c.Worker.RetryJitter,
		BackoffFactor:  c.Worker.RetryBackoffFactor,
		CancelPoll:     c.Worker.CancelPoll,
		DequeueTimeout: 2 * time.Second,
		IdemTTL:        c.Queue.StatusTTL,
	}
}

type Dependencies struct {
	Queue     Queue
	Status    StatusStore
	Blobs     storage.BlobStore
	Extractor assembly.PageExtractor
	Sink      assembly.Sink
}

// Worker consumes assembly jobs. Each job is one Assembler run over the
// uploaded sources in their queued order.
type Worker struct {
	cfg  Config
	deps Dependencies
	name string
	stop chan struct{}
	wg   sync.WaitGroup
}

func New(cfg Config, deps Dependencies) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 2
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.CancelPoll <= 0 {
		cfg.CancelPoll = 500 * time.Millisecond
	}
	if cfg.DequeueTimeout <= 0 {
		cfg.DequeueTimeout = 2 * time.Second
	}
	host, _ := os.Hostname()
	if host == "" {
		host = "worker"
	}
	return &Worker{cfg: cfg, deps: deps, name: fmt.Sprintf("%s-%d", host, os.Getpid()), stop: make(chan struct{})}
}

func (w *Worker) Start() {
	for i := 0; i < w.cfg.Concurrency; i++ {
		w.wg.Add(1)
		go w.loop(i)
	}
}

// Stop signals the loops and waits for in-flight jobs until ctx expires.
func (w *Worker) Stop(ctx context.Context) error {
	close(w.stop)
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop(id int) {
	defer w.wg.Done()
	consumer := fmt.Sprintf("%s-%d", w.name, id)
	log.Info().Int("worker", id).Str("consumer", consumer).Msg("assembly worker started")
	for {
		select {
		case <-w.stop:
			log.Info().Int("worker", id).Msg("assembly worker stopped")
			return
		default:
		}

		msgID, job, err := w.deps.Queue.Dequeue(context.Background(), consumer, w.cfg.DequeueTimeout)
		if err != nil {
			if queue.IsInvalidJob(err) {
				log.Error().Err(err).Str("msg_id", msgID).Msg("poison message moved to DLQ")
				metrics.IncJob("invalid")
				continue
			}
			log.Error().Err(err).Msg("queue dequeue error")
			time.Sleep(500 * time.Millisecond)
			continue
		}
		if job == nil {
			continue
		}
		w.handleMessage(context.Background(), id, msgID, job)
	}
}

func idemKey(runID string) string { return "run:" + runID }

// handleMessage runs one job and settles it: ack, retry or dead-letter.
func (w *Worker) handleMessage(ctx context.Context, id int, msgID string, job *queue.Job) {
	defer func() {
		if err := w.deps.Queue.Ack(ctx, msgID); err != nil {
			log.Error().Err(err).Str("msg_id", msgID).Msg("ack failed")
		}
	}()
	lg := log.With().Int("worker", id).Str("run_id", job.RunID).Int("attempt", job.Attempt).Logger()

	if done, _ := w.deps.Queue.IsIdemDone(ctx, idemKey(job.RunID)); done {
		lg.Info().Msg("run already completed; skipping duplicate delivery")
		metrics.IncJob("duplicate")
		return
	}
	if w.cancelled(ctx, job.RunID) {
		lg.Warn().Msg("run cancelled before processing; skipping")
		w.finish(ctx, job.RunID, store.StatusCancelled, "Cancelled", nil)
		metrics.IncJob("cancelled")
		return
	}

	err := w.Handle(ctx, job)
	switch {
	case err == nil:
		_ = w.deps.Queue.MarkIdemDone(ctx, idemKey(job.RunID), w.cfg.IdemTTL)
		w.dropInputs(ctx, job)
		metrics.IncJob("success")
	case errors.Is(err, ErrCancelled) || w.cancelled(ctx, job.RunID):
		lg.Warn().Msg("run cancelled")
		w.finish(ctx, job.RunID, store.StatusCancelled, "Cancelled", nil)
		metrics.IncJob("cancelled")
	case isTransientError(err) && job.Attempt < w.cfg.MaxAttempts:
		next := *job
		next.Attempt = job.Attempt + 1
		delay := retryDelay(next.Attempt, w.cfg.RetryBaseDelay, w.cfg.RetryJitter, w.cfg.BackoffFactor)
		if qerr := w.deps.Queue.EnqueueDelayed(ctx, next, time.Now().Add(delay)); qerr != nil {
			lg.Error().Err(qerr).Msg("retry enqueue failed")
			w.deadLetter(ctx, job, err)
			return
		}
		lg.Warn().Err(err).Dur("delay", delay).Msg("transient failure; retry scheduled")
		w.setStatus(ctx, job.RunID, store.Status{
			Status:  store.StatusQueued,
			Message: fmt.Sprintf("retrying (attempt %d of %d)", next.Attempt, w.cfg.MaxAttempts),
		})
		metrics.IncJob("retry")
	default:
		lg.Error().Err(err).Bool("fatal", isFatalError(err)).Msg("run failed")
		w.deadLetter(ctx, job, err)
	}
}

func (w *Worker) cancelled(ctx context.Context, runID string) bool {
	c, err := w.deps.Queue.IsCancelled(ctx, runID)
	return err == nil && c
}

// dropInputs removes the uploads of a finished run; the output stays.
func (w *Worker) dropInputs(ctx context.Context, job *queue.Job) {
	keys := make([]string, 0, len(job.Sources))
	for _, ref := range job.Sources {
		keys = append(keys, ref.Key)
	}
	if err := w.deps.Blobs.Delete(ctx, keys...); err != nil {
		log.Warn().Err(err).Str("run_id", job.RunID).Msg("input cleanup failed")
	}
}

func (w *Worker) deadLetter(ctx context.Context, job *queue.Job, cause error) {
	payload, _ := job.Encode()
	if err := w.deps.Queue.AddDLQ(ctx, payload, cause.Error()); err != nil {
		log.Error().Err(err).Str("run_id", job.RunID).Msg("dlq push failed")
	}
	w.finish(ctx, job.RunID, store.StatusFailed, cause.Error(), nil)
	metrics.IncJob("failed")
}

// Handle performs one assembly run for job and stores the merged document.
func (w *Worker) Handle(ctx context.Context, job *queue.Job) error {
	if err := job.Validate(); err != nil {
		return &ValidationError{Message: err.Error()}
	}
	w.setStatus(ctx, job.RunID, store.Status{Status: store.StatusProcessing, Message: "loading sources"})

	q, err := w.loadSources(ctx, job)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	if w.cfg.RunTimeout > 0 {
		var cancelTimeout context.CancelFunc
		runCtx, cancelTimeout = context.WithTimeout(runCtx, w.cfg.RunTimeout)
		defer cancelTimeout()
	}
	go w.watchCancel(runCtx, job.RunID, cancel)

	asm := assembly.New(assembly.Options{
		Extractor: w.deps.Extractor,
		Sink:      w.deps.Sink,
		OnProgress: func(p assembly.Progress) {
			msg := fmt.Sprintf("processed %d of %d: %s", p.Processed, p.Total, p.Source.DisplayName)
			if p.Failed {
				msg += " (placeholder)"
			}
			// the last 10% is reserved for serialization and upload
			w.setStatus(ctx, job.RunID, store.Status{
				Status:   store.StatusProcessing,
				Progress: p.Processed * 90 / p.Total,
				Message:  msg,
			})
		},
	})
	res, err := asm.Run(runCtx, q)
	if err != nil {
		if errors.Is(context.Cause(runCtx), ErrCancelled) {
			return ErrCancelled
		}
		return err
	}

	name := job.OutputName
	if name == "" {
		name = "merged-document.pdf"
	}
	key := storage.OutputKey(job.RunID)
	meta := storage.Metadata{Name: name, ContentType: "application/pdf", Extra: map[string]string{"pages": fmt.Sprint(res.PageCount)}}
	if err := w.deps.Blobs.Put(ctx, key, res.Output, meta); err != nil {
		return &StorageError{Op: "put", Key: key, Err: err}
	}

	done := w.finish(ctx, job.RunID, store.StatusSuccess, "completed", map[string]any{
		"output_key":  key,
		"output_name": name,
		"output_size": len(res.Output),
		"page_count":  res.PageCount,
		"failures":    res.Failures,
		"segments":    res.Segments,
		"duration_ms": res.Duration.Milliseconds(),
	})
	if !done {
		// cancelled after the merge finished
		if err := w.deps.Blobs.Delete(ctx, key); err != nil {
			log.Warn().Err(err).Str("run_id", job.RunID).Msg("output cleanup failed")
		}
		return ErrCancelled
	}
	return nil
}

// loadSources fetches the uploaded blobs and rebuilds the queue in order.
func (w *Worker) loadSources(ctx context.Context, job *queue.Job) (*assembly.Queue, error) {
	q := assembly.NewQueue()
	for _, ref := range job.Sources {
		data, meta, err := w.deps.Blobs.Get(ctx, ref.Key)
		if err != nil {
			return nil, &StorageError{Op: "get", Key: ref.Key, Err: err}
		}
		name := ref.Name
		if name == "" {
			name = meta.Name
		}
		src, err := assembly.NewSource(assembly.Intake{Data: data, MIMEType: ref.MIMEType, FileName: name, Size: int64(len(data))})
		if err != nil {
			return nil, &ValidationError{Message: err.Error()}
		}
		q.Append(src)
	}
	return q, nil
}

// watchCancel polls the cancel set until ctx ends.
func (w *Worker) watchCancel(ctx context.Context, runID string, cancel context.CancelCauseFunc) {
	t := time.NewTicker(w.cfg.CancelPoll)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if w.cancelled(ctx, runID) {
				cancel(ErrCancelled)
				return
			}
		}
	}
}

// setStatus keeps the start time and metadata of the stored status.
func (w *Worker) setStatus(ctx context.Context, runID string, st store.Status) {
	if prev, ok, err := w.deps.Status.Get(ctx, runID); err == nil && ok {
		if prev.Status == store.StatusCancelled && st.Status != store.StatusCancelled {
			return
		}
		st.Start = prev.Start
		if st.Metadata == nil {
			st.Metadata = prev.Metadata
		}
	}
	if st.Start == nil {
		now := time.Now()
		st.Start = &now
	}
	if err := w.deps.Status.Set(ctx, runID, st); err != nil {
		log.Error().Err(err).Str("run_id", runID).Msg("status update failed")
	}
}

// finish records the final state of a run and reports whether it was
// written. A run already marked cancelled keeps that status.
func (w *Worker) finish(ctx context.Context, runID, status, message string, meta map[string]any) bool {
	now := time.Now()
	st := store.Status{Status: status, Message: message, End: &now, Metadata: meta}
	if status == store.StatusSuccess {
		st.Progress = 100
	}
	if prev, ok, err := w.deps.Status.Get(ctx, runID); err == nil && ok {
		if prev.Status == store.StatusCancelled {
			return status == store.StatusCancelled
		}
		st.Start = prev.Start
		if meta == nil {
			st.Metadata = prev.Metadata
		} else {
			for k, v := range prev.Metadata {
				if _, set := st.Metadata[k]; !set {
					st.Metadata[k] = v
				}
			}
		}
	}
	if err := w.deps.Status.Set(ctx, runID, st); err != nil {
		log.Error().Err(err).Str("run_id", runID).Msg("status update failed")
	}
	return true
}
