package api

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorClass represents a classification of request failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 responses.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network and timeout errors.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassDecode represents undecodable response bodies.
	ErrorClassDecode ErrorClass = "decode"
)

// APIError is a failed call to the remote service. Message carries the
// upstream explanation when the error body provided one.
type APIError struct {
	Endpoint   string
	StatusCode int
	Class      ErrorClass
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	detail := e.Message
	if detail == "" && e.StatusCode != 0 {
		detail = http.StatusText(e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s %s error (status %d): %s: %v", e.Endpoint, e.Class, e.StatusCode, detail, e.Err)
	}
	return fmt.Sprintf("%s %s error (status %d): %s", e.Endpoint, e.Class, e.StatusCode, detail)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// StatusCode returns the HTTP status of err if it is an APIError, else 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// IsNotFound reports whether err is a 404 from the remote service.
func IsNotFound(err error) bool {
	return StatusCode(err) == http.StatusNotFound
}

func classifyStatus(code int) ErrorClass {
	switch {
	case code == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case code >= 400 && code < 500:
		return ErrorClassClient
	case code >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}
