package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists signals a duplicate resource.
	ErrAlreadyExists = errors.New("already exists")
	// ErrValidation signals a malformed request.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidCredentials signals a failed login.
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrUnauthorized signals a missing or expired session.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrConfiguration signals a missing or rejected provider credential.
	// Not retried; the provider is unusable until reconfigured.
	ErrConfiguration = errors.New("provider configuration error")
	// ErrTransient signals a timeout, rate limit or network failure. Eligible for retry.
	ErrTransient = errors.New("transient provider error")
	// ErrProviderMismatch signals representations computed under another provider identity.
	ErrProviderMismatch = errors.New("provider mismatch")
	// ErrEmbeddingProviderError signals a non-retryable embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrInvalidChunking signals window/overlap parameters outside 0 < overlap < window.
	ErrInvalidChunking = errors.New("invalid chunking parameters")

	// ErrGenerationFailed signals a failed call to the generative text service.
	ErrGenerationFailed = errors.New("generation failed")
	// ErrNoPaperText signals a paper without extracted text.
	ErrNoPaperText = errors.New("paper has no text")
	// ErrUnsupportedDocument signals an upload format we cannot extract text from.
	ErrUnsupportedDocument = errors.New("unsupported document format")
)

// ProviderError wraps a provider failure with its classification sentinel.
type ProviderError struct {
	Provider   string
	StatusCode int
	Kind       error
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: %s (status %d): %v", e.Provider, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() []error { return []error{e.Kind, e.Err} }

// NewProviderError classifies err under kind (ErrConfiguration, ErrTransient, ErrEmbeddingProviderError).
func NewProviderError(provider string, status int, kind, err error) error {
	return &ProviderError{Provider: provider, StatusCode: status, Kind: kind, Err: err}
}

// IsRetryable reports whether err is worth another attempt.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient)
}
