// Package http exposes the ledger over a JSON API.
//
// This file implements a small builder for API responses so every handler
// writes status, headers and JSON bodies the same way.
package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"saldo/internal/core"
)

const contentTypeJSON = "application/json; charset=utf-8"

// ResponseBuilder provides a fluent API for building API responses.
type ResponseBuilder struct {
	statusCode int
	headers    map[string]string
	body       []byte
	value      any
	hasValue   bool
}

// NewResponse creates a new response builder with default 200 status.
func NewResponse() *ResponseBuilder {
	return &ResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

func (b *ResponseBuilder) Status(code int) *ResponseBuilder {
	b.statusCode = code
	return b
}

func (b *ResponseBuilder) Header(name, value string) *ResponseBuilder {
	b.headers[name] = value
	return b
}

// JSON sets v as the response body, encoded when written.
func (b *ResponseBuilder) JSON(v any) *ResponseBuilder {
	b.value = v
	b.hasValue = true
	return b
}

// Body sets a raw body with its content type.
func (b *ResponseBuilder) Body(content []byte, contentType string) *ResponseBuilder {
	b.headers["Content-Type"] = contentType
	b.body = content
	return b
}

// Attachment marks the body as a download named filename.
func (b *ResponseBuilder) Attachment(filename string) *ResponseBuilder {
	b.headers["Content-Disposition"] = `attachment; filename="` + filename + `"`
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *ResponseBuilder) Write(w http.ResponseWriter) {
	body := b.body
	if b.hasValue {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(b.value); err != nil {
			http.Error(w, `{"error":"encode response"}`, http.StatusInternalServerError)
			return
		}
		body = buf.Bytes()
		b.headers["Content-Type"] = contentTypeJSON
	}

	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if len(body) > 0 {
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	}
	w.WriteHeader(b.statusCode)
	if len(body) > 0 {
		_, _ = w.Write(body)
	}
}

type errorBody struct {
	Error string `json:"error"`
}

// ErrorResponse creates a JSON error response.
func ErrorResponse(statusCode int, message string) *ResponseBuilder {
	return NewResponse().Status(statusCode).JSON(errorBody{Error: message})
}

func NotFoundError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusNotFound, message)
}

func ConflictError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusConflict, message)
}

func UnprocessableEntityError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusUnprocessableEntity, message)
}

func InternalServerError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, message)
}

// StatusFor maps domain errors onto HTTP status codes.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// FromError builds the error response for err. Internal errors are reported
// generically; their details belong in the log.
func FromError(err error) *ResponseBuilder {
	switch StatusFor(err) {
	case http.StatusNotFound:
		return NotFoundError(err.Error())
	case http.StatusConflict:
		return ConflictError(err.Error())
	case http.StatusUnprocessableEntity:
		return UnprocessableEntityError(err.Error())
	default:
		return InternalServerError("internal error")
	}
}
