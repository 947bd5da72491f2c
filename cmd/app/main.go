package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/local/pdfassembler/internal/assembly"
	cfgpkg "github.com/local/pdfassembler/internal/config"
	"github.com/local/pdfassembler/internal/dispatcher"
	logpkg "github.com/local/pdfassembler/internal/logger"
	"github.com/local/pdfassembler/internal/metrics"
	"github.com/local/pdfassembler/internal/orchestrator"
	"github.com/local/pdfassembler/internal/queue"
	"github.com/local/pdfassembler/internal/statuscheck"
	"github.com/local/pdfassembler/internal/storage"
	"github.com/local/pdfassembler/internal/store"
)

func main() {
	// .env is optional; real environment variables win
	_ = godotenv.Load()
	cfg := cfgpkg.FromEnv()

	if err := logpkg.Init(logpkg.FromConfig(cfg)); err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
	}
	defer logpkg.Close()
	metrics.Init()

	ctx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()

	// Queue
	rq, err := queue.NewRedisQueue(cfg.Queue.RedisURL, cfg.Queue.Stream, cfg.Queue.Group, cfg.Queue.PollInterval)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer rq.Close()

	// Status store shares the queue's connection pool
	rs := store.NewRedisStatusFromClient(rq.Client(), cfg.Queue.StatusTTL)

	// Blob storage
	blobs, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.Storage.Backend).Msg("failed to open storage")
	}

	engine := assembly.NewEngine(ctx, cfg)

	checkOpts := statuscheck.Options{Redis: rq, Storage: blobs, StorageBackend: blobs.Backend()}
	if engine.Converter != nil {
		checkOpts.LibreOffice = engine.Converter
	}
	if engine.Renderer != nil {
		checkOpts.MuPDF = engine.Renderer
	}

	orch := orchestrator.New(orchestrator.Dependencies{
		Queue:          rq,
		Status:         rs,
		Blobs:          blobs,
		Checker:        statuscheck.New(checkOpts),
		MaxFiles:       cfg.Assembly.MaxFiles,
		MaxUploadBytes: cfg.Assembly.MaxUploadBytes,
		OutputName:     cfg.Assembly.OutputName,
	})
	mux := http.NewServeMux()
	orch.RegisterRoutes(mux)
	orchestrator.StartJanitor(ctx, time.Hour, time.Hour)
	go reportDepths(ctx, rq)

	// Dispatcher worker (optional)
	var disp *dispatcher.Worker
	if cfg.Worker.Enabled {
		disp = dispatcher.New(dispatcher.FromConfig(cfg), dispatcher.Dependencies{
			Queue:     rq,
			Status:    rs,
			Blobs:     blobs,
			Extractor: engine.Extractors,
			Sink:      engine.Sink,
		})
		disp.Start()
	}

	srv := &http.Server{Addr: cfg.HTTP.Addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		log.Info().Str("addr", cfg.HTTP.Addr).Str("storage", blobs.Backend()).Bool("dispatcher", disp != nil).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	if disp != nil {
		if err := disp.Stop(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("worker did not drain before timeout")
		}
	}
	stopBackground()
	log.Info().Msg("shutdown complete")
}

// reportDepths publishes queue lengths to Prometheus.
func reportDepths(ctx context.Context, rq *queue.RedisQueue) {
	t := time.NewTicker(15 * time.Second)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			stream, delayed, dlq, err := rq.Depths(ctx)
			if err != nil {
				log.Debug().Err(err).Msg("queue depth probe failed")
				continue
			}
			metrics.SetQueueDepth("stream", stream)
			metrics.SetQueueDepth("delayed", delayed)
			metrics.SetQueueDepth("dlq", dlq)
		}
	}
}
