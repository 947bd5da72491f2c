package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/pdfassembler/internal/converter"
	"github.com/local/pdfassembler/internal/storage"
)

// CleanupTemps removes conversion work directories under dir older than
// maxAge. They are normally removed by the converter; this catches the ones
// left behind by a killed process. It returns the number removed.
func CleanupTemps(dir string, maxAge time.Duration) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	now := time.Now()
	removed := 0
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), converter.WorkDirPrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil || now.Sub(info.ModTime()) < maxAge {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err == nil {
			removed++
		}
	}
	return removed
}

// StartJanitor runs CleanupTemps on os.TempDir every interval until ctx ends.
func StartJanitor(ctx context.Context, every, maxAge time.Duration) {
	go func() {
		t := time.NewTicker(every)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if n := CleanupTemps(os.TempDir(), maxAge); n > 0 {
					log.Info().Int("removed", n).Msg("stale conversion directories removed")
				}
			}
		}
	}()
}

// cleanupRun deletes the first n uploads of a run.
func (o *Orchestrator) cleanupRun(ctx context.Context, runID string, n int) {
	if n <= 0 {
		return
	}
	keys := make([]string, 0, n)
	for i := 0; i < n; i++ {
		keys = append(keys, storage.UploadKey(runID, i))
	}
	if err := o.deps.Blobs.Delete(ctx, keys...); err != nil {
		log.Warn().Err(err).Str("run_id", runID).Msg("upload cleanup failed")
	}
}
