package converter

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// WorkDirPrefix names the temporary directories used for conversions.
const WorkDirPrefix = "assemble_convert_"

var (
	// ErrProtected is returned for password protected workbooks.
	ErrProtected = errors.New("document is password protected")

	// ErrUnavailable is returned when the LibreOffice binary cannot be found.
	ErrUnavailable = errors.New("libreoffice not available")
)

// LibreOffice converts spreadsheets to PDF with a headless LibreOffice.
// Concurrent conversions are bounded by a semaphore.
type LibreOffice struct {
	binary     string
	maxWorkers int
	timeout    time.Duration
	semaphore  chan struct{}

	mu      sync.RWMutex
	version string
}

// NewLibreOffice creates a new LibreOffice converter instance
func NewLibreOffice(binary string, maxWorkers int, timeout time.Duration) *LibreOffice {
	if binary == "" {
		binary = "libreoffice"
	}
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	if timeout <= 0 {
		timeout = 180 * time.Second
	}
	return &LibreOffice{
		binary:     binary,
		maxWorkers: maxWorkers,
		timeout:    timeout,
		semaphore:  make(chan struct{}, maxWorkers),
	}
}

// Initialize verifies LibreOffice is installed.
func (l *LibreOffice) Initialize(ctx context.Context) error {
	log.Info().Str("binary", l.binary).Int("max_workers", l.maxWorkers).Msg("initializing LibreOffice converter")

	if err := l.checkInstallation(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	log.Info().Msg("LibreOffice converter initialized successfully")
	return nil
}

// Version returns the version string captured by Initialize.
func (l *LibreOffice) Version() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.version
}

func (l *LibreOffice) checkInstallation(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, l.binary, "--version")
	output, err := cmd.Output()
	if err != nil {
		return fmt.Errorf("%s not found in PATH: %w", l.binary, err)
	}

	v := strings.TrimSpace(string(output))
	l.mu.Lock()
	l.version = v
	l.mu.Unlock()

	log.Info().Str("version", v).Msg("LibreOffice found")
	return nil
}

// ConvertToPDF converts an in-memory workbook to PDF bytes. fileName is
// only used for its extension, which LibreOffice needs to pick an import filter.
func (l *LibreOffice) ConvertToPDF(ctx context.Context, fileName string, data []byte) ([]byte, error) {
	startTime := time.Now()

	if len(data) == 0 {
		return nil, fmt.Errorf("input validation failed: file is empty")
	}

	select {
	case l.semaphore <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-l.semaphore }()

	workDir, err := os.MkdirTemp("", WorkDirPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to create work directory: %w", err)
	}
	defer os.RemoveAll(workDir)

	ext := strings.ToLower(filepath.Ext(fileName))
	if ext == "" {
		ext = ".xlsx"
	}
	inputPath := filepath.Join(workDir, "input"+ext)
	if err := os.WriteFile(inputPath, data, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write input: %w", err)
	}

	if isProtected, err := l.checkPasswordProtection(ctx, inputPath); err != nil {
		log.Warn().Err(err).Str("file", fileName).Msg("could not check password protection")
	} else if isProtected {
		return nil, ErrProtected
	}

	// Unique profile directory so parallel conversions do not share a lock
	profileDir := filepath.Join(workDir, fmt.Sprintf("profile_%s", uuid.New().String()))
	if err := os.MkdirAll(profileDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create profile directory: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx,
		l.binary,
		fmt.Sprintf("-env:UserInstallation=file://%s", profileDir),
		"--headless",
		"--convert-to", "pdf",
		"--outdir", workDir,
		inputPath,
	)
	log.Debug().Str("cmd", strings.Join(cmd.Args, " ")).Msg("LibreOffice command")

	if out, err := cmd.CombinedOutput(); err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("conversion timeout after %v", l.timeout)
		}
		return nil, fmt.Errorf("conversion failed: %w: %s", err, strings.TrimSpace(string(out)))
	}

	pdf, err := os.ReadFile(expectedOutputPath(inputPath, workDir))
	if err != nil {
		return nil, fmt.Errorf("output file not created: %w", err)
	}

	log.Info().
		Str("file", fileName).
		Int("pdf_size", len(pdf)).
		Dur("duration", time.Since(startTime)).
		Msg("conversion successful")

	return pdf, nil
}

// checkPasswordProtection checks if a document is password protected
func (l *LibreOffice) checkPasswordProtection(ctx context.Context, filePath string) (bool, error) {
	cmd := exec.CommandContext(ctx, l.binary, "--headless", "--cat", filePath)

	output, err := cmd.CombinedOutput()
	if err != nil {
		outputStr := strings.ToLower(string(output))
		if strings.Contains(outputStr, "password") ||
			strings.Contains(outputStr, "encrypted") ||
			strings.Contains(outputStr, "protected") {
			return true, nil
		}
	}

	return false, nil
}

// expectedOutputPath is where LibreOffice writes the converted file
func expectedOutputPath(inputPath, outputDir string) string {
	baseName := filepath.Base(inputPath)
	nameWithoutExt := strings.TrimSuffix(baseName, filepath.Ext(baseName))
	return filepath.Join(outputDir, nameWithoutExt+".pdf")
}

// SupportedExtensions returns the spreadsheet extensions accepted for conversion
func (l *LibreOffice) SupportedExtensions() []string {
	return []string{"xls", "xlsx", "xlsm"}
}

// IsSupported checks if a file extension is supported for conversion
func (l *LibreOffice) IsSupported(extension string) bool {
	ext := strings.ToLower(strings.TrimPrefix(extension, "."))
	for _, supportedExt := range l.SupportedExtensions() {
		if ext == supportedExt {
			return true
		}
	}
	return false
}
