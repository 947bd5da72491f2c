package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/local/pdfassembler/internal/assembly"
	"github.com/local/pdfassembler/internal/config"
	logpkg "github.com/local/pdfassembler/internal/logger"
)

type options struct {
	output      string
	optimize    bool
	rasterDPI   float64
	noRaster    bool
	libreoffice string
	noConvert   bool
	quiet       bool
	json        bool
	logLevel    string
}

// report is printed after a run.
type report struct {
	Output   string             `json:"output"`
	Pages    int                `json:"pages"`
	Bytes    int                `json:"bytes"`
	Segments []assembly.Segment `json:"segments"`
	Failures []assembly.Failure `json:"failures"`
}

func newRootCmd() *cobra.Command {
	cfg := config.FromEnv()
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "assemble [flags] file...",
		Short: "Merge PDFs, images and spreadsheets into one PDF",
		Long: `Merges the given files into a single PDF in argument order.
PDF pages are imported as they are, images are fitted onto A4 pages and
spreadsheets are converted with LibreOffice. A file that cannot be read
becomes a placeholder page naming it; the run still completes.`,
		Args:         cobra.MinimumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAssemble(cmd, cfg, opts, args)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.output, "output", "o", cfg.Assembly.OutputName, "output PDF path")
	f.BoolVar(&opts.optimize, "optimize", cfg.Assembly.OptimizeOutput, "optimize the merged document")
	f.Float64Var(&opts.rasterDPI, "raster-dpi", cfg.Assembly.RasterDPI, "resolution for rasterized PDF pages")
	f.BoolVar(&opts.noRaster, "no-raster", !cfg.Assembly.RasterFallback, "disable the raster fallback for damaged PDFs")
	f.StringVar(&opts.libreoffice, "libreoffice", cfg.Converter.Binary, "LibreOffice binary for spreadsheet conversion")
	f.BoolVar(&opts.noConvert, "no-convert", !cfg.Converter.Enabled, "do not convert spreadsheets")
	f.BoolVarP(&opts.quiet, "quiet", "q", false, "only print errors")
	f.BoolVar(&opts.json, "json", false, "print the run report as JSON")
	f.StringVar(&opts.logLevel, "log-level", "warn", "log level written to stderr")
	return cmd
}

func runAssemble(cmd *cobra.Command, cfg config.Config, opts *options, args []string) error {
	level := opts.logLevel
	if opts.quiet {
		level = "error"
	}
	_ = logpkg.Init(logpkg.Options{Level: level, Pretty: true, Console: cmd.ErrOrStderr()})
	defer logpkg.Close()

	cfg.Assembly.RasterFallback = !opts.noRaster
	cfg.Assembly.RasterDPI = opts.rasterDPI
	cfg.Assembly.OptimizeOutput = opts.optimize
	cfg.Converter.Enabled = !opts.noConvert
	cfg.Converter.Binary = opts.libreoffice

	q, err := loadQueue(args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	engine := assembly.NewEngine(ctx, cfg)
	asm := assembly.New(assembly.Options{
		Extractor: engine.Extractors,
		Sink:      engine.Sink,
		OnProgress: func(p assembly.Progress) {
			if opts.quiet || opts.json {
				return
			}
			mark := "ok"
			if p.Failed {
				mark = "placeholder"
			}
			cmd.PrintErrf("[%d/%d] %s: %s\n", p.Processed, p.Total, p.Source.DisplayName, mark)
		},
	})

	res, err := asm.Run(ctx, q)
	if err != nil {
		if errors.Is(err, assembly.ErrEmptyAssembly) {
			return fmt.Errorf("nothing to write: %w", err)
		}
		return fmt.Errorf("assembly failed: %w", err)
	}

	if dir := filepath.Dir(opts.output); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	if err := os.WriteFile(opts.output, res.Output, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", opts.output, err)
	}

	rep := report{
		Output:   opts.output,
		Pages:    res.PageCount,
		Bytes:    len(res.Output),
		Segments: res.Segments,
		Failures: res.Failures,
	}
	return printReport(cmd, rep, opts)
}

// loadQueue reads the files in argument order. A file that cannot be
// classified is rejected before anything is assembled.
func loadQueue(paths []string) (*assembly.Queue, error) {
	q := assembly.NewQueue()
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}
		src, err := assembly.NewSource(assembly.Intake{Data: data, FileName: p, Size: int64(len(data))})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		q.Append(src)
	}
	return q, nil
}

func printReport(cmd *cobra.Command, rep report, opts *options) error {
	if opts.json {
		data, err := json.MarshalIndent(rep, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal report: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}
	if opts.quiet {
		return nil
	}
	cmd.Printf("Wrote %s (%d pages, %d bytes)\n", rep.Output, rep.Pages, rep.Bytes)
	if len(rep.Failures) == 0 {
		return nil
	}
	cmd.Printf("%d file(s) replaced by a placeholder page:\n", len(rep.Failures))
	for _, f := range rep.Failures {
		cmd.Printf("  - %s: %s\n", f.DisplayName, f.Reason)
	}
	return nil
}
