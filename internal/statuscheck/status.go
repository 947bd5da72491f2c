package statuscheck

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// Pinger models the minimal capability we need from Redis and the blob store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// VersionReporter is satisfied by the LibreOffice converter.
type VersionReporter interface {
	Version() string
}

// PageCounter is satisfied by the MuPDF renderer.
type PageCounter interface {
	PageCount(data []byte) (int, error)
}

// Checker aggregates health checks for the services the assembler relies on.
type Checker struct {
	redis       Pinger
	storage     Pinger
	backend     string
	libreoffice VersionReporter
	mupdf       PageCounter
}

// Options configures the Checker.
type Options struct {
	Redis          Pinger
	Storage        Pinger
	StorageBackend string
	LibreOffice    VersionReporter
	MuPDF          PageCounter
}

// Status represents the readiness of a subsystem.
type Status struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// Summary bundles all subsystem statuses.
type Summary struct {
	Redis       Status `json:"redis"`
	Storage     Status `json:"storage"`
	LibreOffice Status `json:"libreoffice"`
	MuPDF       Status `json:"mupdf"`
}

// Healthy reports whether the services every run needs are up. LibreOffice
// is optional; without it spreadsheets become placeholder pages.
func (s Summary) Healthy() bool {
	return s.Redis.OK && s.Storage.OK
}

// New creates a new Checker with the provided options.
func New(opts Options) *Checker {
	return &Checker{
		redis:       opts.Redis,
		storage:     opts.Storage,
		backend:     opts.StorageBackend,
		libreoffice: opts.LibreOffice,
		mupdf:       opts.MuPDF,
	}
}

// Summary returns the current status snapshot.
func (c *Checker) Summary(ctx context.Context) Summary {
	return Summary{
		Redis:       c.checkPing(ctx, c.redis, "Connected"),
		Storage:     c.checkPing(ctx, c.storage, fmt.Sprintf("Available (%s)", c.backend)),
		LibreOffice: c.checkLibreOffice(),
		MuPDF:       c.checkMuPDF(),
	}
}

func (c *Checker) checkPing(ctx context.Context, p Pinger, okMsg string) Status {
	if p == nil {
		return Status{OK: false, Message: "client unavailable"}
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := p.Ping(ctx); err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	return Status{OK: true, Message: okMsg}
}

func (c *Checker) checkLibreOffice() Status {
	if c.libreoffice == nil {
		return Status{OK: false, Message: "Disabled"}
	}
	v := c.libreoffice.Version()
	if v == "" {
		return Status{OK: false, Message: "Binary not found"}
	}
	return Status{OK: true, Message: v}
}

func (c *Checker) checkMuPDF() Status {
	if c.mupdf == nil {
		return Status{OK: false, Message: "Disabled"}
	}
	probe, err := probePDF()
	if err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	if n, err := c.mupdf.PageCount(probe); err != nil || n != 1 {
		if err == nil {
			err = fmt.Errorf("probe returned %d pages", n)
		}
		return Status{OK: false, Message: trimError(err)}
	}
	return Status{OK: true, Message: "Available"}
}

var (
	probeOnce  sync.Once
	probeBytes []byte
	probeErr   error
)

// probePDF is a one-page document used to exercise the renderer.
func probePDF() ([]byte, error) {
	probeOnce.Do(func() {
		pdf := gofpdf.New("P", "pt", "A4", "")
		pdf.AddPage()
		var buf bytes.Buffer
		probeErr = pdf.Output(&buf)
		probeBytes = buf.Bytes()
	})
	return probeBytes, probeErr
}

func trimError(err error) string {
	if err == nil {
		return ""
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	msg := err.Error()
	if len(msg) > 120 {
		return msg[:120]
	}
	return msg
}
