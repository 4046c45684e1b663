package errors

import "net/http"

// APIError is the error every service operation returns. Status selects the
// HTTP status; Code is the stable machine-readable identifier clients match on.
type APIError struct {
	Status  int         `json:"-"`
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return e.Message
}

// WithDetails returns a copy of e carrying details.
func (e *APIError) WithDetails(details interface{}) *APIError {
	clone := *e
	clone.Details = details
	return &clone
}

// Transient reports a failure the caller may retry unchanged.
func (e *APIError) Transient() bool {
	return e != nil && e.Status == http.StatusServiceUnavailable
}

func New(status int, code, message string) *APIError {
	return &APIError{
		Status:  status,
		Code:    code,
		Message: message,
	}
}

func BadRequest(code, message string) *APIError {
	return New(http.StatusBadRequest, code, message)
}

// Required reports a missing required field as missing_<field>.
func Required(field string) *APIError {
	return New(http.StatusBadRequest, "missing_"+field, field+" is required")
}

func NotFound(code, message string) *APIError {
	return New(http.StatusNotFound, code, message)
}

func Conflict(code, message string) *APIError {
	return New(http.StatusConflict, code, message)
}

func Unavailable(message string) *APIError {
	if message == "" {
		message = "storage temporarily unavailable"
	}
	return New(http.StatusServiceUnavailable, "storage_unavailable", message)
}

func Internal(message string) *APIError {
	if message == "" {
		message = "internal server error"
	}
	return New(http.StatusInternalServerError, "internal_error", message)
}
