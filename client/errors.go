package client

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int
	// Code is the server's error code, e.g. VALIDATION_ERROR.
	Code    string
	Message string
	Body    []byte
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("emailguard: %s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("emailguard: %d %s: %s", e.StatusCode, e.Code, e.Message)
}

// RateLimitError is a 429 response. RetryAfter is the server's hint.
type RateLimitError struct {
	APIError
	RetryAfter time.Duration
}

func (e *RateLimitError) Unwrap() error { return &e.APIError }

type networkError struct {
	err error
}

func (e *networkError) Error() string { return "emailguard: network error: " + e.err.Error() }
func (e *networkError) Unwrap() error { return e.err }

func parseAPIError(status int, body []byte) *APIError {
	e := &APIError{StatusCode: status, Body: body}
	var payload struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	if json.Unmarshal(body, &payload) == nil {
		e.Code, e.Message = payload.Code, payload.Error
	}
	if e.Code == "" {
		e.Code = "API_ERROR"
	}
	if e.Message == "" {
		e.Message = http.StatusText(status)
	}
	return e
}

// inputError reports a request rejected before it was sent.
func inputError(msg string) *APIError {
	return &APIError{Code: "VALIDATION_ERROR", Message: msg}
}
