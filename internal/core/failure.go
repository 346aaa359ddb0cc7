package core

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// FailureKind classifies why a request did not produce a completion.
type FailureKind int

const (
	FailureUnknown FailureKind = iota
	FailureConnectivity
	FailureAuth
	FailureProtocol
	FailureRateLimit
	FailureCancelled
)

var failureKindNames = map[FailureKind]string{
	FailureUnknown:      "UnknownFailure",
	FailureConnectivity: "ConnectivityFailure",
	FailureAuth:         "AuthFailure",
	FailureProtocol:     "ProtocolFailure",
	FailureRateLimit:    "RateLimitFailure",
	FailureCancelled:    "Cancelled",
}

func (k FailureKind) String() string {
	if name, ok := failureKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("FailureKind(%d)", int(k))
}

// FailureKinds lists every kind in declaration order.
func FailureKinds() []FailureKind {
	return []FailureKind{
		FailureUnknown,
		FailureConnectivity,
		FailureAuth,
		FailureProtocol,
		FailureRateLimit,
		FailureCancelled,
	}
}

// Failure is a typed completion or probe error.
type Failure struct {
	Kind       FailureKind
	StatusCode int // 0 when no HTTP response was received
	Message    string
	Err        error
}

func (f *Failure) Error() string {
	if f.Err != nil && f.Message == "" {
		return fmt.Sprintf("%s: %v", f.Kind, f.Err)
	}
	if f.Err != nil {
		return fmt.Sprintf("%s: %s: %v", f.Kind, f.Message, f.Err)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

func (f *Failure) Unwrap() error { return f.Err }

// NewFailure builds a Failure of the given kind.
func NewFailure(kind FailureKind, msg string, err error) *Failure {
	return &Failure{Kind: kind, Message: msg, Err: err}
}

// ClassifyFailure maps any error to a FailureKind.
// A typed *Failure keeps its kind; context cancellation is Cancelled;
// network errors are Connectivity; anything else is Unknown.
func ClassifyFailure(err error) FailureKind {
	if err == nil {
		return FailureUnknown
	}
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return FailureCancelled
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return FailureConnectivity
	}
	return FailureUnknown
}

// FailureMessage returns the human-readable part of err for error records.
func FailureMessage(err error) string {
	if err == nil {
		return ""
	}
	var f *Failure
	if errors.As(err, &f) {
		if f.Message != "" {
			return f.Message
		}
		if f.Err != nil {
			return f.Err.Error()
		}
	}
	return err.Error()
}
