// Package llm provides chat completion providers used to generate answers.
package llm

import (
	"context"
	"fmt"
)

// Provider generates a completion for a system prompt and user content.
type Provider interface {
	Complete(ctx context.Context, modelID, systemPrompt, userContent string) (string, error)
}

// ErrorKind classifies provider failures.
type ErrorKind string

const (
	KindAuth        ErrorKind = "auth"
	KindRateLimit   ErrorKind = "rate_limit"
	KindMalformed   ErrorKind = "malformed"
	KindUnavailable ErrorKind = "unavailable"
)

// ProviderError is returned by providers for every failed completion.
type ProviderError struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("llm %s (status %d): %s", e.Kind, e.StatusCode, msg)
	}
	return fmt.Sprintf("llm %s: %s", e.Kind, msg)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// kindForStatus maps an HTTP status to an error kind.
func kindForStatus(status int) ErrorKind {
	switch {
	case status == 401 || status == 403:
		return KindAuth
	case status == 429:
		return KindRateLimit
	case status == 400 || status == 404 || status == 422:
		return KindMalformed
	default:
		return KindUnavailable
	}
}
