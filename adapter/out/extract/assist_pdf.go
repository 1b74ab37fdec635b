package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"

	"assist_server/pkg/apperr"

	"github.com/ledongthuc/pdf"
)

// extractPDF reads the text layer. Scanned PDFs without one yield empty text,
// which indexing reports as a document with no content.
func extractPDF(_ context.Context, data []byte) (text string, meta map[string]string, err error) {
	// the pdf reader panics on some malformed inputs
	defer func() {
		if r := recover(); r != nil {
			err = apperr.InvalidInput("document", "malformed pdf").WithError(fmt.Errorf("pdf: %v", r))
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", nil, apperr.InvalidInput("document", "malformed pdf").WithError(err)
	}

	plain, err := r.GetPlainText()
	if err != nil {
		return "", nil, apperr.InvalidInput("document", "unreadable pdf text").WithError(err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", nil, apperr.InvalidInput("document", "unreadable pdf text").WithError(err)
	}

	return buf.String(), map[string]string{
		"format": "pdf",
		"pages":  strconv.Itoa(r.NumPage()),
	}, nil
}
