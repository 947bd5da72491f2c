package assembly

import (
	"errors"
	"fmt"

	"github.com/local/pdfassembler/internal/filetype"
)

var (
	// ErrUnsupportedKind indicates intake could not classify a file.
	ErrUnsupportedKind = errors.New("unsupported kind")

	// ErrIndexOutOfRange indicates an invalid queue mutation index.
	ErrIndexOutOfRange = errors.New("index out of range")

	// ErrUnreadableDocument indicates no pages could be enumerated from a PDF source.
	ErrUnreadableDocument = errors.New("unreadable document")

	// ErrUnreadableImage indicates the dimensions of an image source could not be determined.
	ErrUnreadableImage = errors.New("unreadable image")

	// ErrEmptyAssembly indicates a run produced zero pages.
	ErrEmptyAssembly = errors.New("empty assembly")

	// ErrSerialization indicates the output document could not be encoded.
	ErrSerialization = errors.New("serialization error")

	// ErrRunInProgress indicates Run was called while another run was active.
	ErrRunInProgress = errors.New("run in progress")

	ErrDocumentEmpty    = errors.New("output document has no pages")
	ErrDocumentConsumed = errors.New("output document already serialized")

	// ErrNoConverter indicates a spreadsheet was queued without a configured converter.
	ErrNoConverter = errors.New("no spreadsheet converter configured")
)

// IndexOutOfRangeError reports a queue index outside [0, Length).
type IndexOutOfRangeError struct {
	Index  int
	Length int
}

func (e *IndexOutOfRangeError) Error() string {
	return fmt.Sprintf("index out of range: %d not in [0, %d)", e.Index, e.Length)
}

func (e *IndexOutOfRangeError) Is(target error) bool { return target == ErrIndexOutOfRange }

// ExtractionError is the per-source failure recorded by the assembler.
type ExtractionError struct {
	SourceID string
	Name     string
	Kind     filetype.Kind
	Err      error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s (%s): %v", e.Name, e.Kind, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// Is matches the kind-specific sentinel even when the cause is a library error.
func (e *ExtractionError) Is(target error) bool {
	switch target {
	case ErrUnreadableImage:
		return e.Kind == filetype.KindImage
	case ErrUnreadableDocument:
		return e.Kind != filetype.KindImage
	}
	return false
}

// SerializationError wraps a failure of the output writer.
type SerializationError struct {
	Err error
}

func (e *SerializationError) Error() string { return fmt.Sprintf("serialization error: %v", e.Err) }

func (e *SerializationError) Unwrap() error { return e.Err }

func (e *SerializationError) Is(target error) bool { return target == ErrSerialization }

func unreadable(src *Source, err error) error {
	return &ExtractionError{SourceID: src.ID, Name: src.DisplayName, Kind: src.Kind, Err: err}
}
