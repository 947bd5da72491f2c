package converter

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewLibreOffice_Defaults tests that zero values get sane defaults
func TestNewLibreOffice_Defaults(t *testing.T) {
	l := NewLibreOffice("", 0, 0)
	assert.Equal(t, "libreoffice", l.binary)
	assert.Equal(t, 1, l.maxWorkers)
	assert.Equal(t, 180*time.Second, l.timeout)
	assert.Equal(t, 1, cap(l.semaphore))
}

// TestIsSupported tests the spreadsheet extension filter
func TestIsSupported(t *testing.T) {
	l := NewLibreOffice("soffice", 2, time.Minute)
	for _, ext := range []string{"xls", ".xlsx", "XLSM"} {
		assert.True(t, l.IsSupported(ext), ext)
	}
	for _, ext := range []string{"pdf", "docx", ""} {
		assert.False(t, l.IsSupported(ext), ext)
	}
}

// TestExpectedOutputPath tests where converted output is looked up
func TestExpectedOutputPath(t *testing.T) {
	got := expectedOutputPath(filepath.Join("/tmp", "w", "input.xlsm"), "/tmp/w")
	assert.Equal(t, filepath.Join("/tmp/w", "input.pdf"), got)
}

// TestConvertToPDF_Errors tests failures that happen before LibreOffice runs
func TestConvertToPDF_Errors(t *testing.T) {
	l := NewLibreOffice("definitely-not-a-real-binary", 1, time.Second)

	_, err := l.ConvertToPDF(context.Background(), "book.xlsx", nil)
	require.Error(t, err)

	err = l.Initialize(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)

	_, err = l.ConvertToPDF(context.Background(), "book.xlsx", []byte("PK\x03\x04"))
	assert.Error(t, err)
}

// TestConvertToPDF_Cancelled tests that a cancelled context never takes a slot
func TestConvertToPDF_Cancelled(t *testing.T) {
	l := NewLibreOffice("definitely-not-a-real-binary", 1, time.Second)
	l.semaphore <- struct{}{}
	defer func() { <-l.semaphore }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := l.ConvertToPDF(ctx, "book.xls", []byte("data"))
	assert.ErrorIs(t, err, context.Canceled)
}
