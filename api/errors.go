package api

import (
	"errors"
	"net/http"

	"github.com/alwitt/pdfsigner/certificate"
	"github.com/alwitt/pdfsigner/store"
)

// Request validation errors
var (
	// ErrInvalidDocument request body is not a readable PDF with at least one page
	ErrInvalidDocument = errors.New("invalid document")
	// ErrDocumentTooLarge request body exceeds the size limit
	ErrDocumentTooLarge = errors.New("document exceeds size limit")
	// ErrMissingHeader a required request header is absent or malformed
	ErrMissingHeader = errors.New("missing or invalid request header")
	// ErrInvalidDocumentID the document ID is not a UUID
	ErrInvalidDocumentID = errors.New("invalid UUID format")
)

// Task-Status response header values
const (
	taskStatusHeader      = "Task-Status"
	taskStatusCompleted   = "Completed"
	taskStatusFailed      = "Failed"
	taskStatusInProgress  = "In Progress"
	taskStatusTransmitted = "Transmitted"
)

// MapHTTPStatus convert an error into its HTTP response code
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrInvalidDocument),
		errors.Is(err, ErrDocumentTooLarge),
		errors.Is(err, ErrMissingHeader),
		errors.Is(err, ErrInvalidDocumentID),
		errors.Is(err, certificate.ErrUnknownCertificate):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrDocumentNotFound),
		errors.Is(err, store.ErrArtifactNotFound):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
