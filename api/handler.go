// Package api - HTTP surface of the signing service
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/alwitt/goutils"
	"github.com/alwitt/pdfsigner/certificate"
	"github.com/alwitt/pdfsigner/models"
	"github.com/alwitt/pdfsigner/signing"
	"github.com/alwitt/pdfsigner/store"
	"github.com/apex/log"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// SignResponse response to an accepted signing request
type SignResponse struct {
	UUID string `json:"uuid"`
}

// ErrorResponse response describing a rejected request
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// HandlerParams signing API handler init parameters
type HandlerParams struct {
	// Certificates the active certificates
	Certificates certificate.Registry `validate:"required"`
	// Documents document status history
	Documents store.DocumentRegistry `validate:"required"`
	// Artifacts the output directory
	Artifacts store.ArtifactStore `validate:"required"`
	// Pipeline the background signing workflow
	Pipeline signing.Pipeline `validate:"required"`
	// MaxDocumentSize largest accepted document in bytes
	MaxDocumentSize int64 `validate:"gt=0"`
}

// SigningHandler HTTP handlers for document submission and retrieval
type SigningHandler struct {
	goutils.Component

	certificates    certificate.Registry
	documents       store.DocumentRegistry
	artifacts       store.ArtifactStore
	pipeline        signing.Pipeline
	maxDocumentSize int64
	validate        *validator.Validate
}

/*
NewSigningHandler define new signing API handler

	@param params HandlerParams - handler parameters
	@returns handler instance
*/
func NewSigningHandler(params HandlerParams) (*SigningHandler, error) {
	validate := validator.New()
	if err := validate.Struct(&params); err != nil {
		return nil, fmt.Errorf("invalid signing API handler parameters [%w]", err)
	}

	logTags := log.Fields{"package": "pdfsigner", "module": "api", "component": "signing-handler"}

	return &SigningHandler{
		Component: goutils.Component{
			LogTags: logTags,
			LogTagModifiers: []goutils.LogMetadataModifier{
				goutils.ModifyLogMetadataByRestRequestParam,
			},
		},
		certificates:    params.Certificates,
		documents:       params.Documents,
		artifacts:       params.Artifacts,
		pipeline:        params.Pipeline,
		maxDocumentSize: params.MaxDocumentSize,
		validate:        validate,
	}, nil
}

// respondJSON write a JSON response
func (h *SigningHandler) respondJSON(
	w http.ResponseWriter, r *http.Request, status int, body any, taskStatus string,
) {
	w.Header().Set("Content-Type", "application/json")
	if taskStatus != "" {
		w.Header().Set(taskStatusHeader, taskStatus)
	}
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.
			WithError(err).
			WithFields(h.GetLogTagsForContext(r.Context())).
			Error("Failed to write response")
	}
}

// respondError write an error response. Only the message reaches the caller.
func (h *SigningHandler) respondError(
	w http.ResponseWriter, r *http.Request, status int, message string, taskStatus string,
) {
	h.respondJSON(w, r, status, ErrorResponse{Detail: message}, taskStatus)
}

/*
Sign accept a document for asynchronous signing

Headers `sender` and `cert-name` name the caller and the certificate to sign with; the
body is the raw PDF. Unknown certificates and invalid documents are rejected before
anything is recorded.
*/
func (h *SigningHandler) Sign(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logTags := h.GetLogTagsForContext(ctx)

	headers := signRequestHeaders{
		Sender:   SanitizeHeader(r.Header.Get("sender")),
		CertName: SanitizeHeader(r.Header.Get("cert-name")),
	}
	if err := h.validate.Struct(&headers); err != nil {
		err = fmt.Errorf("%s [%w]", err.Error(), ErrMissingHeader)
		log.WithError(err).WithFields(logTags).Warn("Rejected signing request")
		h.respondError(w, r, MapHTTPStatus(err), "Headers 'sender' and 'cert-name' are required.", "")
		return
	}

	if !h.certificates.Has(headers.CertName) {
		log.
			WithFields(logTags).
			WithField("cert-name", headers.CertName).
			Warn("Rejected signing request for unknown certificate")
		h.respondError(
			w, r, MapHTTPStatus(certificate.ErrUnknownCertificate),
			fmt.Sprintf("Required certificate is unknown: %s.", headers.CertName), "",
		)
		return
	}

	document, err := readDocument(r.Body, h.maxDocumentSize)
	if err == nil {
		err = validateDocument(document)
	}
	if err != nil {
		log.WithError(err).WithFields(logTags).WithField("sender", headers.Sender).Warn("Rejected document")
		h.respondError(
			w, r, MapHTTPStatus(err),
			fmt.Sprintf(
				"Invalid file. Check the file integrity or the size limit of %d bytes.", h.maxDocumentSize,
			),
			"",
		)
		return
	}

	docUUID := uuid.NewString()
	if _, err := h.documents.CreateDocument(
		ctx, docUUID, headers.Sender, int64(len(document)),
	); err != nil {
		log.WithError(err).WithFields(logTags).WithField("uuid", docUUID).Error("Unable to record document")
		h.respondError(
			w, r, http.StatusInternalServerError,
			fmt.Sprintf("Unable to record document %s.", docUUID), taskStatusFailed,
		)
		return
	}

	log.
		WithFields(logTags).
		WithField("uuid", docUUID).
		WithField("sender", headers.Sender).
		WithField("cert-name", headers.CertName).
		Info("Queued document for signing")

	h.pipeline.Submit(ctx, signing.Job{UUID: docUUID, CertName: headers.CertName, Document: document})

	h.respondJSON(w, r, http.StatusOK, SignResponse{UUID: docUUID}, "")
}

/*
GetSigned report the state of a document, or deliver its signed artifact

A delivered artifact is recorded as Transmitted and removed from the output directory.
*/
func (h *SigningHandler) GetSigned(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logTags := h.GetLogTagsForContext(ctx)

	parsed, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		h.respondError(w, r, MapHTTPStatus(ErrInvalidDocumentID), "Invalid UUID format.", "")
		return
	}
	docUUID := parsed.String()

	current, err := h.documents.CurrentStatus(ctx, docUUID)
	if err != nil {
		status := MapHTTPStatus(err)
		if status == http.StatusNotFound {
			log.WithFields(logTags).WithField("uuid", docUUID).Warn("No such document")
			h.respondError(w, r, status, "No such UUID in database.", "")
		} else {
			log.WithError(err).WithFields(logTags).WithField("uuid", docUUID).Error("Status lookup failed")
			h.respondError(w, r, status, "Unable to read document status.", "")
		}
		return
	}

	switch current.Status {
	case models.DocumentStatusSaved:
		h.deliver(w, r, docUUID)

	case models.DocumentStatusFailed:
		message := current.Message
		if message == "" {
			message = "File processing failed with an unknown error."
		}
		h.respondJSON(
			w, r, http.StatusUnprocessableEntity, map[string]string{"error": message}, taskStatusFailed,
		)

	case models.DocumentStatusTransmitted:
		h.respondJSON(
			w, r, http.StatusGone,
			map[string]string{
				"warning": "File was processed, transmitted to the client and removed from the server.",
			},
			taskStatusTransmitted,
		)

	default:
		h.respondJSON(
			w, r, http.StatusAccepted,
			map[string]string{"status": "The file is still being processed, please try again later."},
			taskStatusInProgress,
		)
	}
}

// deliver serve a saved artifact, then record the hand off and purge the file
func (h *SigningHandler) deliver(w http.ResponseWriter, r *http.Request, docUUID string) {
	ctx := r.Context()
	logTags := h.GetLogTagsForContext(ctx)

	signed, err := h.artifacts.Retrieve(ctx, docUUID)
	if err != nil {
		if errors.Is(err, store.ErrArtifactNotFound) {
			log.WithFields(logTags).WithField("uuid", docUUID).Warn("Signed document missing from output directory")
			h.respondError(w, r, http.StatusNotFound, "Signed file was lost.", taskStatusFailed)
		} else {
			log.WithError(err).WithFields(logTags).WithField("uuid", docUUID).Error("Unable to read signed document")
			h.respondError(w, r, http.StatusInternalServerError, "Unable to read signed file.", taskStatusFailed)
		}
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set(
		"Content-Disposition", fmt.Sprintf("attachment; filename=%q", store.ArtifactFileName(docUUID)),
	)
	w.Header().Set("Content-Length", strconv.Itoa(len(signed)))
	w.Header().Set(taskStatusHeader, taskStatusCompleted)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(signed); err != nil {
		log.WithError(err).WithFields(logTags).WithField("uuid", docUUID).Error("Transmission failed")
		return
	}

	if _, err := h.documents.AppendEvent(
		ctx, docUUID, models.DocumentStatusTransmitted, "Signed file transmitted to the client",
	); err != nil {
		// Another request delivered the same artifact first
		log.WithError(err).WithFields(logTags).WithField("uuid", docUUID).Warn("Unable to record transmission")
		return
	}

	if err := h.artifacts.Delete(ctx, docUUID); err != nil {
		log.WithError(err).WithFields(logTags).WithField("uuid", docUUID).Error("Unable to purge signed document")
		return
	}

	log.WithFields(logTags).WithField("uuid", docUUID).Info("Transmitted signed document")
}

// Health liveness probe
func (h *SigningHandler) Health(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, r, http.StatusOK, map[string]string{"status": "Alive"}, "")
}
