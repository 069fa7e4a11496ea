package domain

import "time"

// Upload is a file staged on local disk for the processing backend.
type Upload struct {
	ID           string    `json:"id"`
	OriginalName string    `json:"original_name"` // client-supplied filename
	StoredName   string    `json:"stored_name"`   // sanitized name on disk
	Path         string    `json:"path"`          // absolute path inside the staging dir
	Size         int64     `json:"size"`
	SHA256       string    `json:"sha256"`
	Retained     bool      `json:"retained"` // kept after the request until ExpiresAt
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Expired reports whether the upload is past its retention deadline.
func (u *Upload) Expired(now time.Time) bool {
	return !u.ExpiresAt.IsZero() && !now.Before(u.ExpiresAt)
}

// ErrorResponse is the envelope for every client-facing error.
type ErrorResponse struct {
	Error string `json:"error"`
}

// UploadResponse is returned by the upload helper route.
type UploadResponse struct {
	Success bool   `json:"success"`
	Path    string `json:"path"`
}

// ChatRequest is the body accepted by the chat relay.
type ChatRequest struct {
	Path  string `json:"path"`
	Query string `json:"query"`
}
