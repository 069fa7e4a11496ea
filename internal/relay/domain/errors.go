package domain

import (
	"errors"
	"fmt"
)

var (
	ErrMissingFile              = errors.New("no file received")
	ErrStaging                  = errors.New("failed to stage upload")
	ErrBackendUnreachable       = errors.New("could not reach processing backend")
	ErrMalformedBackendResponse = errors.New("malformed response from processing backend")
	ErrUploadNotFound           = errors.New("staged upload not found")
)

// BackendError is a non-2xx reply from the processing backend. Message is the
// normalized, client-safe detail extracted from the reply body.
type BackendError struct {
	StatusCode int
	Message    string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("processing backend returned status %d: %s", e.StatusCode, e.Message)
}
