package fetch

import (
	"errors"
	"fmt"
)

// ErrorKind is the closed set of ways a fetch can fail.
type ErrorKind int

const (
	// KindTransient failures are retried with backoff by the fetcher.
	KindTransient ErrorKind = iota + 1
	// KindSessionExpired means the session must be re-authenticated before the request can
	// succeed, the fetcher never retries it.
	KindSessionExpired
	// KindUpstream means the server answered with an error of its own, it is not retried.
	KindUpstream
	// KindAuth means logging in did not succeed.
	KindAuth
	// KindExhausted means every attempt failed transiently.
	KindExhausted
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindSessionExpired:
		return "session expired"
	case KindUpstream:
		return "upstream"
	case KindAuth:
		return "authentication"
	case KindExhausted:
		return "exhausted retries"
	}
	return "unclassified"
}

// ClassifiedError is every error produced by the fetch and auth layers.
type ClassifiedError struct {
	Kind   ErrorKind
	Reason string
	// URL is the requested url, or the redirect target for KindAuth.
	URL string
	Err error
}

func (e *ClassifiedError) Error() string {
	msg := e.Kind.String()
	if e.Reason != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Reason)
	}
	if e.URL != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.URL)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %s", msg, e.Err.Error())
	}
	return msg
}

func (e *ClassifiedError) Unwrap() error {
	return e.Err
}

// Fatal reports whether the error should be propagated to the caller as is.
func (e *ClassifiedError) Fatal() bool {
	return e.Kind != KindTransient && e.Kind != KindSessionExpired
}

// KindOf returns the kind of the first ClassifiedError in err's chain, or 0 if there is none.
func KindOf(err error) ErrorKind {
	var classified *ClassifiedError
	if errors.As(err, &classified) {
		return classified.Kind
	}
	return 0
}

func IsSessionExpired(err error) bool {
	return KindOf(err) == KindSessionExpired
}

func transient(reason string, err error) *ClassifiedError {
	return &ClassifiedError{Kind: KindTransient, Reason: reason, Err: err}
}
