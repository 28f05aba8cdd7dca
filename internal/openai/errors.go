package openai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Kind classifies a failed call to the remote service.
type Kind int

const (
	KindNetwork Kind = iota
	KindAuth
	KindMalformedResponse
	KindUpstream
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindAuth:
		return "auth"
	case KindMalformedResponse:
		return "malformed_response"
	case KindUpstream:
		return "upstream"
	default:
		return "unknown"
	}
}

// GenerationError is returned for every failed image, chat or download call.
// StatusCode is zero when no HTTP response was received.
type GenerationError struct {
	Kind       Kind
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *GenerationError) Error() string {
	msg := e.Op + ": " + e.Kind.String()
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *GenerationError) Unwrap() error { return e.Err }

// UserMessage is the text shown on the form. It never includes the upstream
// body for auth failures.
func (e *GenerationError) UserMessage() string {
	switch e.Kind {
	case KindNetwork:
		return "Could not reach the image service. Please try again."
	case KindAuth:
		return "The API key was rejected."
	case KindMalformedResponse:
		return "The image service returned an unexpected response."
	default:
		if e.StatusCode == http.StatusTooManyRequests {
			return "The image service is rate limiting requests. Please wait and try again."
		}
		if e.Message != "" {
			return "The image service reported an error: " + e.Message
		}
		return fmt.Sprintf("The image service reported an error (status %d).", e.StatusCode)
	}
}

// KindOf returns the Kind of err, or false when err is not a GenerationError.
func KindOf(err error) (Kind, bool) {
	var ge *GenerationError
	if errors.As(err, &ge) {
		return ge.Kind, true
	}
	return 0, false
}

func networkError(op string, err error) *GenerationError {
	ge := &GenerationError{Kind: KindNetwork, Op: op, Err: err}
	var ne net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		ge.Message = "timeout"
	case errors.Is(err, context.Canceled):
		ge.Message = "canceled"
	case errors.As(err, &ne) && ne.Timeout():
		ge.Message = "timeout"
	}
	return ge
}

func statusError(op string, status int, message string) *GenerationError {
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		// auth messages echo part of the key
		return &GenerationError{Kind: KindAuth, Op: op, StatusCode: status}
	}
	return &GenerationError{Kind: KindUpstream, Op: op, StatusCode: status, Message: message}
}

func malformed(op string, status int, err error) *GenerationError {
	return &GenerationError{Kind: KindMalformedResponse, Op: op, StatusCode: status, Err: err}
}
