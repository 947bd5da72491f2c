package assembly

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/local/pdfassembler/internal/config"
	"github.com/local/pdfassembler/internal/converter"
	"github.com/local/pdfassembler/internal/imagerender"
)

// Engine bundles the extractor set and sink built from configuration.
// Renderer and Converter are nil when disabled or unavailable.
type Engine struct {
	Extractors Extractors
	Sink       Sink
	Renderer   *imagerender.Renderer
	Converter  *converter.LibreOffice
}

// NewEngine wires the raster fallback and the spreadsheet converter. A
// missing LibreOffice is logged and leaves spreadsheets to placeholders.
func NewEngine(ctx context.Context, cfg config.Config) Engine {
	var e Engine
	var opts ExtractorOptions

	if cfg.Assembly.RasterFallback {
		e.Renderer = imagerender.New(imagerender.Options{
			DPI:     cfg.Assembly.RasterDPI,
			Quality: cfg.Assembly.RasterQuality,
		})
		opts.Rasterizer = e.Renderer
	}

	if cfg.Converter.Enabled {
		lo := converter.NewLibreOffice(cfg.Converter.Binary, cfg.Converter.MaxWorkers, cfg.Converter.Timeout)
		if err := lo.Initialize(ctx); err != nil {
			log.Warn().Err(err).Msg("spreadsheet conversion disabled")
		} else {
			e.Converter = lo
			opts.Converter = lo
		}
	}

	e.Extractors = NewExtractors(opts)
	e.Sink = Sink{Optimize: cfg.Assembly.OptimizeOutput}
	return e
}
