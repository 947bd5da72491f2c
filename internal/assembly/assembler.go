package assembly

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/local/pdfassembler/internal/metrics"
)

// State of an assembler run.
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Status is a point-in-time view of the assembler.
type Status struct {
	State     State
	RunID     string
	Processed int
	Total     int
	Err       error
}

// Failure records a source that degraded to a placeholder page.
type Failure struct {
	SourceID    string `json:"source_id"`
	DisplayName string `json:"display_name"`
	Reason      string `json:"reason"`
	Detail      string `json:"detail,omitempty"`
}

// Segment maps one queued source to its pages in the output.
type Segment struct {
	SourceID    string `json:"source_id"`
	DisplayName string `json:"display_name"`
	FirstPage   int    `json:"first_page"`
	Pages       int    `json:"pages"`
	Placeholder bool   `json:"placeholder"`
}

// Result of a completed run.
type Result struct {
	RunID     string
	Output    []byte
	Failures  []Failure
	Segments  []Segment
	PageCount int
	Duration  time.Duration
}

// Progress is reported after every source.
type Progress struct {
	RunID     string
	Processed int
	Total     int
	Source    *Source
	Failed    bool
}

// RunInProgressError is returned when Run is called during another run.
type RunInProgressError struct {
	Status Status
}

func (e *RunInProgressError) Error() string {
	return fmt.Sprintf("run %s in progress (%d/%d)", e.Status.RunID, e.Status.Processed, e.Status.Total)
}

func (e *RunInProgressError) Is(target error) bool { return target == ErrRunInProgress }

// Options configures an Assembler.
type Options struct {
	Extractor  PageExtractor
	Sink       Sink
	OnProgress func(Progress)
}

// Assembler turns a queue snapshot into one output document. Runs are not
// reentrant; sources are extracted strictly in order, one at a time.
type Assembler struct {
	extractor  PageExtractor
	sink       Sink
	onProgress func(Progress)

	mu     sync.Mutex
	status Status
}

// New creates an assembler. A nil extractor uses NewExtractors with no
// rasterizer and no converter.
func New(opts Options) *Assembler {
	x := opts.Extractor
	if x == nil {
		x = NewExtractors(ExtractorOptions{})
	}
	return &Assembler{
		extractor:  x,
		sink:       opts.Sink,
		onProgress: opts.OnProgress,
		status:     Status{State: StateIdle},
	}
}

// Status returns the current state.
func (a *Assembler) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// Run snapshots q and assembles it. Mutating q during the run does not
// affect the run. Cancelling ctx stops the run between sources; a cancelled
// run fails and produces no output.
func (a *Assembler) Run(ctx context.Context, q *Queue) (*Result, error) {
	snap := q.Snapshot()

	a.mu.Lock()
	if a.status.State == StateRunning {
		st := a.status
		a.mu.Unlock()
		return nil, &RunInProgressError{Status: st}
	}
	runID := uuid.NewString()
	a.status = Status{State: StateRunning, RunID: runID, Total: snap.Len()}
	a.mu.Unlock()

	start := time.Now()
	res, err := a.run(ctx, runID, snap)
	dur := time.Since(start)

	a.mu.Lock()
	if err != nil {
		a.status.State = StateFailed
		a.status.Err = err
	} else {
		a.status.State = StateCompleted
	}
	a.mu.Unlock()

	metrics.ObserveRun(string(a.Status().State), dur)

	if err != nil {
		log.Error().Err(err).Str("run_id", runID).Int("sources", snap.Len()).Dur("duration", dur).Msg("assembly failed")
		return nil, err
	}
	res.Duration = dur
	metrics.ObserveOutput(len(res.Output))
	log.Info().
		Str("run_id", runID).
		Int("sources", snap.Len()).
		Int("pages", res.PageCount).
		Int("failures", len(res.Failures)).
		Int("bytes", len(res.Output)).
		Dur("duration", dur).
		Msg("assembly completed")
	return res, nil
}

func (a *Assembler) run(ctx context.Context, runID string, snap Snapshot) (*Result, error) {
	doc := NewDocument()
	res := &Result{RunID: runID}

	for i, src := range snap.All() {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("run cancelled after %d of %d sources: %w", i, snap.Len(), err)
		}

		first := doc.PageCount() + 1
		failed, err := a.appendSource(ctx, doc, src, res)
		if err != nil {
			return nil, err
		}
		res.Segments = append(res.Segments, Segment{
			SourceID:    src.ID,
			DisplayName: src.DisplayName,
			FirstPage:   first,
			Pages:       doc.PageCount() - first + 1,
			Placeholder: failed,
		})

		a.mu.Lock()
		a.status.Processed = i + 1
		a.mu.Unlock()
		if a.onProgress != nil {
			a.onProgress(Progress{RunID: runID, Processed: i + 1, Total: snap.Len(), Source: src, Failed: failed})
		}
	}

	if doc.PageCount() == 0 {
		return nil, ErrEmptyAssembly
	}

	out, err := a.sink.Serialize(doc)
	if err != nil {
		if !errors.Is(err, ErrSerialization) {
			err = &SerializationError{Err: err}
		}
		return nil, err
	}

	res.Output = out
	res.PageCount = doc.PageCount()
	return res, nil
}

// appendSource extracts src and appends its pages, or records a failure and
// appends a placeholder. Only a document-level append error is returned.
func (a *Assembler) appendSource(ctx context.Context, doc *Document, src *Source, res *Result) (bool, error) {
	start := time.Now()
	pages, err := a.extractor.Extract(ctx, doc, src)
	if err == nil {
		if err = doc.Append(pages...); err == nil {
			metrics.ObserveExtract(src.Kind.String(), "ok", time.Since(start))
			log.Debug().Str("source", src.DisplayName).Str("kind", src.Kind.String()).Int("pages", len(pages)).Msg("source appended")
			return false, nil
		}
		return false, &SerializationError{Err: err}
	}
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return false, fmt.Errorf("run cancelled during %s: %w", src.DisplayName, ctxErr)
	}

	metrics.ObserveExtract(src.Kind.String(), "placeholder", time.Since(start))
	metrics.IncPlaceholder()
	log.Warn().Err(err).Str("source", src.DisplayName).Str("source_id", src.ID).Msg("source replaced by placeholder page")

	res.Failures = append(res.Failures, Failure{
		SourceID:    src.ID,
		DisplayName: src.DisplayName,
		Reason:      FailureReason,
		Detail:      err.Error(),
	})
	if err := doc.Append(Placeholder(src)); err != nil {
		return true, &SerializationError{Err: err}
	}
	return true, nil
}
