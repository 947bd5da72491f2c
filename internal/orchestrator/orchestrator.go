package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/local/pdfassembler/internal/assembly"
	"github.com/local/pdfassembler/internal/filetype"
	"github.com/local/pdfassembler/internal/metrics"
	"github.com/local/pdfassembler/internal/queue"
	"github.com/local/pdfassembler/internal/statuscheck"
	"github.com/local/pdfassembler/internal/storage"
	"github.com/local/pdfassembler/internal/store"
)

const DefaultOutputName = "merged-document.pdf"

type Queue interface {
	Enqueue(ctx context.Context, job queue.Job) error
	CancelJob(ctx context.Context, runID string) error
}

type StatusStore interface {
	Set(ctx context.Context, runID string, st store.Status) error
	Get(ctx context.Context, runID string) (store.Status, bool, error)
}

type HealthChecker interface {
	Summary(ctx context.Context) statuscheck.Summary
}

type Dependencies struct {
	Queue   Queue
	Status  StatusStore
	Blobs   storage.BlobStore
	Checker HealthChecker

	MaxFiles       int
	MaxUploadBytes int64
	OutputName     string
}

type Orchestrator struct {
	deps Dependencies
}

func New(deps Dependencies) *Orchestrator {
	if deps.OutputName == "" {
		deps.OutputName = DefaultOutputName
	}
	if deps.MaxUploadBytes <= 0 {
		deps.MaxUploadBytes = 200 << 20
	}
	return &Orchestrator{deps: deps}
}

func (o *Orchestrator) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /status", o.handleStatus)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("POST /assemble", o.handleAssemble)
	mux.HandleFunc("GET /progress/{id}", o.handleProgress)
	mux.HandleFunc("GET /download/{id}", o.handleDownload)
	mux.HandleFunc("POST /cancel/{id}", o.handleCancel)
}

// sourceInfo describes one accepted upload in the assemble response.
type sourceInfo struct {
	Index int    `json:"index"`
	ID    string `json:"source_id"`
	Name  string `json:"name"`
	Kind  string `json:"kind"`
	Size  int64  `json:"size"`
	Pages int    `json:"pages,omitempty"`
}

type assembleResp struct {
	Status  string       `json:"status"`
	RunID   string       `json:"run_id"`
	Message string       `json:"message"`
	Sources []sourceInfo `json:"sources"`
}

// handleAssemble accepts the ordered uploads of one run. Every file is
// classified before anything is stored; one unsupported file rejects the run.
func (o *Orchestrator) handleAssemble(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, o.deps.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			http.Error(w, "upload too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		http.Error(w, "missing files", http.StatusBadRequest)
		return
	}
	if o.deps.MaxFiles > 0 && len(headers) > o.deps.MaxFiles {
		http.Error(w, fmt.Sprintf("too many files: %d (max %d)", len(headers), o.deps.MaxFiles), http.StatusBadRequest)
		return
	}

	srcs := make([]*assembly.Source, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			http.Error(w, "cannot read upload", http.StatusBadRequest)
			return
		}
		data, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			http.Error(w, "cannot read upload", http.StatusBadRequest)
			return
		}
		src, err := assembly.NewSource(assembly.Intake{
			Data:     data,
			MIMEType: fh.Header.Get("Content-Type"),
			FileName: fh.Filename,
			Size:     fh.Size,
		})
		if err != nil {
			log.Warn().Err(err).Str("file", fh.Filename).Msg("upload rejected")
			http.Error(w, fmt.Sprintf("unsupported file %q", fh.Filename), http.StatusBadRequest)
			return
		}
		srcs = append(srcs, src)
	}

	runID := uuid.NewString()
	outputName := sanitizeOutputName(r.FormValue("output_name"), o.deps.OutputName)
	refs := make([]queue.SourceRef, 0, len(srcs))
	infos := make([]sourceInfo, 0, len(srcs))
	for i, src := range srcs {
		key := storage.UploadKey(runID, i)
		data := src.Bytes()
		meta := storage.Metadata{
			Name:        src.DisplayName,
			ContentType: src.MIMEType,
			Extra:       map[string]string{"kind": src.Kind.String(), "source_id": src.ID},
		}
		if err := o.deps.Blobs.Put(r.Context(), key, data, meta); err != nil {
			log.Error().Err(err).Str("run_id", runID).Str("key", key).Msg("upload store failed")
			o.cleanupRun(context.WithoutCancel(r.Context()), runID, i)
			http.Error(w, "storage unavailable", http.StatusServiceUnavailable)
			return
		}
		refs = append(refs, queue.SourceRef{Key: key, Name: src.DisplayName, MIMEType: src.MIMEType, Size: src.ByteLength})
		info := sourceInfo{Index: i, ID: src.ID, Name: src.DisplayName, Kind: src.Kind.String(), Size: src.ByteLength}
		if src.Kind == filetype.KindPDF {
			info.Pages = countPages(data)
		}
		infos = append(infos, info)
	}

	start := time.Now()
	_ = o.deps.Status.Set(r.Context(), runID, store.Status{
		Status:  store.StatusQueued,
		Message: "queued",
		Start:   &start,
		Metadata: map[string]any{
			"output_name":   outputName,
			"total_sources": len(srcs),
			"sources":       infos,
		},
	})

	job := queue.Job{RunID: runID, Sources: refs, OutputName: outputName, Attempt: 1, EnqueuedAt: start}
	if err := o.deps.Queue.Enqueue(r.Context(), job); err != nil {
		log.Error().Err(err).Str("run_id", runID).Msg("enqueue failed")
		bg := context.WithoutCancel(r.Context())
		o.cleanupRun(bg, runID, len(srcs))
		end := time.Now()
		_ = o.deps.Status.Set(bg, runID, store.Status{
			Status:  store.StatusFailed,
			Message: "queue unavailable",
			Start:   &start,
			End:     &end,
		})
		http.Error(w, "queue unavailable", http.StatusServiceUnavailable)
		return
	}
	log.Info().Str("run_id", runID).Int("sources", len(srcs)).Str("output", outputName).Msg("run created")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(assembleResp{Status: "ok", RunID: runID, Message: "Assembly run created", Sources: infos})
}

func (o *Orchestrator) handleProgress(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	st, ok, err := o.deps.Status.Get(r.Context(), id)
	if err != nil {
		http.Error(w, "error", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	resp := map[string]any{
		"success":    st.Status == store.StatusSuccess,
		"run_id":     id,
		"status":     st.Status,
		"progress":   st.Progress,
		"message":    st.Message,
		"start_time": st.Start,
		"end_time":   st.End,
	}
	for _, k := range []string{"page_count", "failures", "segments", "output_name", "total_sources"} {
		if v, ok := st.Metadata[k]; ok {
			resp[k] = v
		}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// handleDownload serves the merged document of a finished run.
func (o *Orchestrator) handleDownload(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	st, ok, err := o.deps.Status.Get(r.Context(), id)
	if err != nil || !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if st.Status != store.StatusSuccess {
		http.Error(w, "not ready", http.StatusAccepted)
		return
	}
	key, _ := st.Metadata["output_key"].(string)
	if key == "" {
		key = storage.OutputKey(id)
	}
	data, _, err := o.deps.Blobs.Get(r.Context(), key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "result not available", http.StatusNotFound)
			return
		}
		log.Error().Err(err).Str("run_id", id).Msg("download failed")
		http.Error(w, "failed to read", http.StatusInternalServerError)
		return
	}
	name, _ := st.Metadata["output_name"].(string)
	if name == "" {
		name = o.deps.OutputName
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", fmt.Sprint(len(data)))
	_, _ = w.Write(data)
}

func (o *Orchestrator) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	st, ok, err := o.deps.Status.Get(r.Context(), id)
	if err != nil {
		http.Error(w, "error", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if st.Terminal() {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "run_id": id, "status": st.Status})
		return
	}
	if err := o.deps.Queue.CancelJob(r.Context(), id); err != nil {
		log.Error().Err(err).Str("run_id", id).Msg("cancel failed")
		http.Error(w, "cancel failed", http.StatusInternalServerError)
		return
	}
	now := time.Now()
	st.Status = store.StatusCancelled
	st.Message = "Cancelled"
	if reason := r.URL.Query().Get("reason"); reason != "" {
		st.Message = fmt.Sprintf("Cancelled: %s", reason)
	}
	st.End = &now
	_ = o.deps.Status.Set(r.Context(), id, st)
	log.Info().Str("run_id", id).Msg("run cancelled")

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "run_id": id, "status": store.StatusCancelled})
}

func (o *Orchestrator) handleStatus(w http.ResponseWriter, r *http.Request) {
	if o.deps.Checker == nil {
		http.Error(w, "status checks disabled", http.StatusNotFound)
		return
	}
	s := o.deps.Checker.Summary(r.Context())
	w.Header().Set("Content-Type", "application/json")
	if !s.Healthy() {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(s)
}

// sanitizeOutputName keeps the base name and forces a .pdf extension.
func sanitizeOutputName(name, def string) string {
	name = strings.TrimSpace(filepath.Base(strings.ReplaceAll(name, "\\", "/")))
	if name == "" || name == "." || name == "/" {
		return def
	}
	if !strings.EqualFold(filepath.Ext(name), ".pdf") {
		name += ".pdf"
	}
	return name
}
