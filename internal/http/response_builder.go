// Package http exposes the engine as a JSON API.
//
// This file implements the Builder Pattern for JSON responses and the
// mapping of domain errors to status codes.

package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/renezit0/despesa-agil-93/internal/core"
	"github.com/renezit0/despesa-agil-93/internal/financing"
	"github.com/renezit0/despesa-agil-93/internal/projection"
)

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	body       any
	headers    map[string]string
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

// Header adds a custom header to the response.
func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Body sets the value encoded as the response body.
func (b *JSONResponseBuilder) Body(v any) *JSONResponseBuilder {
	b.body = v
	return b
}

// Write sends the built response. A nil body writes headers only.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if b.body == nil {
		w.WriteHeader(b.statusCode)
		return
	}

	payload, err := json.Marshal(b.body)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"response encoding failed"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(b.statusCode)
	_, _ = w.Write(append(payload, '\n'))
}

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error     string   `json:"error"`
	Partial   bool     `json:"partial,omitempty"`
	Completed []string `json:"completed,omitempty"`
	Failed    string   `json:"failed,omitempty"`
}

// ErrorResponse creates a standard error response.
func ErrorResponse(statusCode int, message string) *JSONResponseBuilder {
	return NewJSONResponse().Status(statusCode).Body(ErrorBody{Error: message})
}

// BadRequestError creates a 400 Bad Request error response.
func BadRequestError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message)
}

// UnprocessableEntityError creates a 422 Unprocessable Entity error response.
func UnprocessableEntityError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusUnprocessableEntity, message)
}

// NotFoundError creates a 404 Not Found error response.
func NotFoundError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusNotFound, message)
}

// InternalServerError creates a 500 Internal Server Error response.
func InternalServerError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, message)
}

var domainRuleErrors = []error{
	financing.ErrNotFinancing,
	financing.ErrNonPositivePayment,
	financing.ErrNegativeDiscount,
	financing.ErrAlreadySettled,
	financing.ErrPaymentExceedsBalance,
	projection.ErrNoSchedule,
}

// StatusFor maps an error returned by the services to its HTTP status.
func StatusFor(err error) int {
	var bad *badRequestError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &bad):
		return http.StatusBadRequest
	case errors.Is(err, errNoUser):
		return http.StatusUnauthorized
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrDuplicatePayment), errors.Is(err, core.ErrDuplicateInstance):
		return http.StatusConflict
	case core.IsValidation(err):
		return http.StatusUnprocessableEntity
	}
	for _, target := range domainRuleErrors {
		if errors.Is(err, target) {
			return http.StatusUnprocessableEntity
		}
	}
	return http.StatusInternalServerError
}

// ErrorFor builds the error response for err. Partial failures report the
// steps that were applied; other server errors hide their details.
func ErrorFor(err error) *JSONResponseBuilder {
	status := StatusFor(err)

	var partial *financing.PartialFailureError
	if errors.As(err, &partial) {
		return NewJSONResponse().Status(http.StatusInternalServerError).Body(ErrorBody{
			Error:     partial.Operation + " partially applied",
			Partial:   true,
			Completed: partial.Completed,
			Failed:    partial.Failed,
		})
	}

	switch status {
	case http.StatusInternalServerError:
		return InternalServerError("internal error")
	case http.StatusNotFound:
		return NotFoundError("not found")
	default:
		return ErrorResponse(status, err.Error())
	}
}
