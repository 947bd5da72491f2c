package orchestrator

import (
	"bytes"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rs/zerolog/log"
)

// countPages returns the page count of an uploaded PDF, or 0 when pdfcpu
// cannot read it. Such a file is still accepted; the run decides later
// whether it becomes a placeholder page.
func countPages(data []byte) (n int) {
	defer func() {
		if r := recover(); r != nil {
			log.Debug().Interface("panic", r).Msg("pdf page count panicked")
			n = 0
		}
	}()
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	n, err := api.PageCount(bytes.NewReader(data), conf)
	if err != nil {
		log.Debug().Err(err).Msg("pdf page count failed")
		return 0
	}
	return n
}
