package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
)

// Error writes JSON error responses.
type Error struct {
	logger log.Logger
}

// NewError creates an Error that logs what it writes.
func NewError(logger log.Logger) Error {
	return Error{
		logger: logger,
	}
}

// NotFound writes a 404 for the request path.
func (e Error) NotFound(w http.ResponseWriter, r *http.Request) {
	e.Error(w, "not found: "+r.URL.Path, http.StatusNotFound)
}

// Error writes the message with the status code.
func (e Error) Error(w http.ResponseWriter, message string, code int) {
	level.Warn(e.logger).Log("state", "error", "code", code, "message", message)

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)

	if err := json.NewEncoder(w).Encode(struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}{
		Code:    code,
		Message: message,
	}); err != nil {
		level.Error(e.logger).Log("state", "error", "err", err)
	}
}
