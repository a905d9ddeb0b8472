package providers

import (
	"context"
	"errors"
	"fmt"
)

// FailureKind classifies a failed completion attempt. Every provider maps
// its vendor errors onto exactly one kind.
type FailureKind string

const (
	KindAuth           FailureKind = "auth"
	KindRateLimited    FailureKind = "rate_limited"
	KindServer         FailureKind = "server"
	KindTimeout        FailureKind = "timeout"
	KindMalformed      FailureKind = "malformed"
	KindPolicyRejected FailureKind = "policy_rejected"
)

// Error is the normalized backend failure.
type Error struct {
	Kind   FailureKind
	Detail string
}

func (e *Error) Error() string {
	return fmt.Sprintf("backend %s: %s", e.Kind, e.Detail)
}

// Transient reports whether the failure is worth retrying. Auth, rate-limit,
// policy and malformed failures will not improve on a second attempt.
func (e *Error) Transient() bool {
	return e.Kind == KindServer || e.Kind == KindTimeout
}

// KindOf extracts the failure kind from any error returned by a Provider.
func KindOf(err error) FailureKind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	return KindServer
}

// classifyStatus maps an HTTP status code onto a failure kind.
func classifyStatus(status int, detail string) *Error {
	switch {
	case status == 401 || status == 403:
		return &Error{Kind: KindAuth, Detail: detail}
	case status == 429:
		return &Error{Kind: KindRateLimited, Detail: detail}
	case status >= 500:
		return &Error{Kind: KindServer, Detail: detail}
	default:
		return &Error{Kind: KindMalformed, Detail: detail}
	}
}

// classifyTransport folds context expiry into the timeout kind; anything
// else at the transport layer counts as a server-class failure.
func classifyTransport(err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Detail: "request deadline exceeded"}
	}
	return &Error{Kind: KindServer, Detail: err.Error()}
}
