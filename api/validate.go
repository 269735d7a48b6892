package api

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"

	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

var (
	scriptBlockPattern = regexp.MustCompile(`(?is)<script.*?>.*?</script>`)
	markupTagPattern   = regexp.MustCompile(`(?s)<.*?>`)
	headerStripper     = strings.NewReplacer(`'`, "", `"`, "", ";", "", "--", "")
)

// SanitizeHeader strip markup and SQL meta characters from a caller supplied header value
func SanitizeHeader(value string) string {
	value = scriptBlockPattern.ReplaceAllString(value, "")
	value = markupTagPattern.ReplaceAllString(value, "")
	value = headerStripper.Replace(value)
	return strings.TrimSpace(value)
}

// signRequestHeaders the caller supplied headers of a signing request
type signRequestHeaders struct {
	Sender   string `validate:"required,max=255"`
	CertName string `validate:"required,max=50"`
}

/*
readDocument read the request body, bounded by the size limit

	@param body io.Reader - request body
	@param maxSize int64 - largest accepted document in bytes
	@returns the document bytes
*/
func readDocument(body io.Reader, maxSize int64) ([]byte, error) {
	document, err := io.ReadAll(io.LimitReader(body, maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("unable to read request body: %s [%w]", err.Error(), ErrInvalidDocument)
	}
	if int64(len(document)) > maxSize {
		return nil, fmt.Errorf("limit is %d bytes [%w]", maxSize, ErrDocumentTooLarge)
	}
	if len(document) == 0 {
		return nil, fmt.Errorf("empty request body [%w]", ErrInvalidDocument)
	}
	return document, nil
}

// validateDocument verify the document parses as a PDF with at least one page
func validateDocument(document []byte) error {
	pages, err := pdfapi.PageCount(bytes.NewReader(document), model.NewDefaultConfiguration())
	if err != nil {
		return fmt.Errorf("document is not a readable PDF: %s [%w]", err.Error(), ErrInvalidDocument)
	}
	if pages < 1 {
		return fmt.Errorf("document has no pages [%w]", ErrInvalidDocument)
	}
	return nil
}
