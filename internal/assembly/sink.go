package assembly

import (
	"bytes"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/rs/zerolog/log"
)

// Sink serializes an output document. It performs no I/O.
type Sink struct {
	// Optimize runs the serialized bytes through pdfcpu, dropping duplicate
	// resources. The unoptimized bytes are kept if optimization fails.
	Optimize bool
}

// Serialize encodes doc and marks it consumed. It fails on a document with
// no pages, a document that was already serialized, or a writer error.
func (s Sink) Serialize(doc *Document) ([]byte, error) {
	if doc == nil || doc.PageCount() == 0 {
		return nil, ErrDocumentEmpty
	}
	if doc.consumed {
		return nil, ErrDocumentConsumed
	}
	doc.consumed = true

	var buf bytes.Buffer
	if err := doc.pdf.Output(&buf); err != nil {
		return nil, &SerializationError{Err: err}
	}
	if buf.Len() == 0 {
		return nil, &SerializationError{Err: errNoPages}
	}

	if !s.Optimize {
		return buf.Bytes(), nil
	}

	var opt bytes.Buffer
	if err := api.Optimize(bytes.NewReader(buf.Bytes()), &opt, pdfcpuConfig()); err != nil {
		log.Warn().Err(err).Msg("output optimization failed, keeping unoptimized document")
		return buf.Bytes(), nil
	}
	log.Debug().Int("before", buf.Len()).Int("after", opt.Len()).Msg("output optimized")
	return opt.Bytes(), nil
}
