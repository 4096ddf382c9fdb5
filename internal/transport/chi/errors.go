package chi

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/papernest/internal/domain"
	"github.com/kailas-cloud/papernest/internal/logger"
)

// Error codes returned in ErrorResponse.Code.
const (
	codeBadRequest          = "bad_request"
	codeValidationFailed    = "validation_failed"
	codeNotFound            = "not_found"
	codeAlreadyExists       = "already_exists"
	codeInvalidCredentials  = "invalid_credentials"
	codeUnauthorized        = "unauthorized"
	codeNoPaperText         = "no_paper_text"
	codeUnsupportedDocument = "unsupported_document"
	codeNotConfigured       = "service_not_configured"
	codeGenerationFailed    = "generation_failed"
	codePayloadTooLarge     = "payload_too_large"
	codeInternalError       = "internal_error"
)

// ErrorResponse is the JSON body of every error.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error) bool

// errorHandlers is ordered: the first matching sentinel wins.
var errorHandlers = []errorHandler{
	sentinelHandler(domain.ErrNotFound, http.StatusNotFound, codeNotFound),
	sentinelHandler(domain.ErrAlreadyExists, http.StatusBadRequest, codeAlreadyExists),
	sentinelHandler(domain.ErrValidation, http.StatusBadRequest, codeValidationFailed),
	sentinelHandler(domain.ErrInvalidCredentials, http.StatusUnauthorized, codeInvalidCredentials),
	sentinelHandler(domain.ErrUnauthorized, http.StatusUnauthorized, codeUnauthorized),
	sentinelHandler(domain.ErrNoPaperText, http.StatusBadRequest, codeNoPaperText),
	sentinelHandler(domain.ErrUnsupportedDocument, http.StatusUnsupportedMediaType, codeUnsupportedDocument),
	sentinelHandler(domain.ErrConfiguration, http.StatusServiceUnavailable, codeNotConfigured),
	sentinelHandler(domain.ErrGenerationFailed, http.StatusBadGateway, codeGenerationFailed),
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		msg := sentinel.Error()
		if status < http.StatusInternalServerError {
			msg = clientMessage(err, sentinel)
		}
		writeError(w, status, code, msg)
		return true
	}
}

// clientMessage returns the detail attached to sentinel ("validation failed: title is required")
// without the operation prefixes added while wrapping.
func clientMessage(err, sentinel error) string {
	prefix := sentinel.Error()
	for e := err; e != nil; e = errors.Unwrap(e) {
		if strings.HasPrefix(e.Error(), prefix) {
			return e.Error()
		}
	}
	return prefix
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logger.FromContext(r.Context(), s.logger)
	for _, h := range errorHandlers {
		if h(w, err) {
			log.Warn("domain error", zap.Error(err))
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}
