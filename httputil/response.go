package httputil

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"
)

// DefaultBodyLimit is the default maximum request body size (1 MB).
const DefaultBodyLimit int64 = 1 << 20

// Envelope is the uniform response wrapper for every endpoint, success or
// failure: {statusCode, data, message, success}.
type Envelope struct {
	StatusCode int         `json:"statusCode"`
	Data       interface{} `json:"data"`
	Message    string      `json:"message"`
	Success    bool        `json:"success"`
}

// WriteData sends a success (or failure, for status >= 400) envelope.
func WriteData(w http.ResponseWriter, status int, data interface{}, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(Envelope{
		StatusCode: status,
		Data:       data,
		Message:    message,
		Success:    status < 400,
	})
}

// WriteError sends a failure envelope with a null data field.
func WriteError(w http.ResponseWriter, status int, message string) {
	WriteData(w, status, nil, message)
}

// ValidID reports whether s is a well-formed entity ID.
func ValidID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

// Pagination bounds for listing endpoints.
const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// ParsePagination reads 1-indexed page and limit query parameters,
// falling back to page 1 / limit 10. Returns (limit, offset).
func ParsePagination(r *http.Request) (limit, offset int) {
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		page = 1
	}
	limit, err = strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit < 1 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	return limit, (page - 1) * limit
}

// MaxBody wraps r.Body with a size limit to prevent oversized payloads.
func MaxBody(r *http.Request, n int64) {
	r.Body = http.MaxBytesReader(nil, r.Body, n)
}
