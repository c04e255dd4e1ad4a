package apierr

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mcoot/relsync/internal/model"
	"github.com/mcoot/relsync/internal/services/reconcile"
)

// APIError represents an API error response
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse wraps an APIError
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// Common error codes
const (
	CodeInvalidRequest      = "INVALID_REQUEST"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodePeerNotFound        = "PEER_NOT_FOUND"
	CodeSelfNotFound        = "SELF_NOT_FOUND"
	CodeNotAuthenticated    = "NOT_AUTHENTICATED"
	CodeNoCredentials       = "NO_CREDENTIALS"
	CodeSnapshotUnavailable = "SNAPSHOT_UNAVAILABLE"
	CodeInternalError       = "INTERNAL_ERROR"
)

// httpError combines an HTTP status code with an APIError
type httpError struct {
	status   int
	apiError APIError
}

// Error implements error interface
func (e *httpError) Error() string {
	return e.apiError.Message
}

// WriteError writes an error response to the response writer
func WriteError(w http.ResponseWriter, err error) {
	he := toHTTPError(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(he.status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: he.apiError})
}

// toHTTPError converts an error to an httpError
func toHTTPError(err error) *httpError {
	var he *httpError
	if errors.As(err, &he) {
		return he
	}

	switch {
	case errors.Is(err, model.ErrPeerNotFound):
		return &httpError{http.StatusNotFound, APIError{CodePeerNotFound, "Peer not found"}}
	case errors.Is(err, model.ErrSelfNotFound):
		return &httpError{http.StatusNotFound, APIError{CodeSelfNotFound, "No cached self profile"}}
	case errors.Is(err, model.ErrNoCredentials):
		return &httpError{http.StatusConflict, APIError{CodeNoCredentials, "No stored credentials"}}
	case errors.Is(err, model.ErrNotAuthenticated):
		return &httpError{http.StatusUnauthorized, APIError{CodeNotAuthenticated, err.Error()}}
	case errors.Is(err, reconcile.ErrSnapshotUnavailable):
		return &httpError{http.StatusBadGateway, APIError{CodeSnapshotUnavailable, err.Error()}}
	default:
		return &httpError{http.StatusInternalServerError, APIError{CodeInternalError, "Internal server error"}}
	}
}

// NewInvalidRequestError creates an invalid request error
func NewInvalidRequestError(message string) error {
	return &httpError{http.StatusBadRequest, APIError{CodeInvalidRequest, message}}
}

// NewUnauthorizedError creates an unauthorized error
func NewUnauthorizedError() error {
	return &httpError{http.StatusUnauthorized, APIError{CodeUnauthorized, "Authentication required"}}
}

// NewInternalError creates an internal server error
func NewInternalError() error {
	return &httpError{http.StatusInternalServerError, APIError{CodeInternalError, "Internal server error"}}
}

// WritePanic answers a request whose handler panicked
func WritePanic(w http.ResponseWriter, _ *http.Request, _ any) {
	WriteError(w, NewInternalError())
}
