package assembly

import (
	"fmt"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/local/pdfassembler/internal/filetype"
)

// Intake is the tuple handed over by the intake boundary for one accepted file.
type Intake struct {
	Data     []byte
	MIMEType string
	FileName string
	Size     int64
}

// Source is one input artifact. Its bytes are private and never mutated after
// construction; a source is only ever replaced or removed from a queue.
type Source struct {
	ID          string
	DisplayName string
	ByteLength  int64
	Kind        filetype.Kind
	MIMEType    string

	data []byte
}

var detector = filetype.New()

// NewSource classifies the intake file and takes a private copy of its bytes.
func NewSource(in Intake) (*Source, error) {
	name := filepath.Base(in.FileName)
	if in.FileName == "" {
		name = "untitled"
	}
	if len(in.Data) == 0 {
		return nil, fmt.Errorf("%s: empty file: %w", name, ErrUnsupportedKind)
	}
	info, err := detector.Classify(in.MIMEType, in.FileName, in.Data)
	if err != nil {
		return nil, fmt.Errorf("%s: %v: %w", name, err, ErrUnsupportedKind)
	}

	data := make([]byte, len(in.Data))
	copy(data, in.Data)

	return &Source{
		ID:          uuid.NewString(),
		DisplayName: name,
		ByteLength:  int64(len(data)),
		Kind:        info.Kind,
		MIMEType:    info.MIMEType,
		data:        data,
	}, nil
}

// Bytes returns a copy of the source bytes.
func (s *Source) Bytes() []byte {
	out := make([]byte, len(s.data))
	copy(out, s.data)
	return out
}

func (s *Source) String() string {
	return fmt.Sprintf("%s(%s, %s, %d bytes)", s.DisplayName, s.ID, s.Kind, s.ByteLength)
}
