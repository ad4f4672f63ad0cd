package pricing

import (
	"errors"
	"fmt"
)

// ErrorKind classifies resolution failures.
type ErrorKind int

const (
	// KindConnectionDegraded: durable backend unreachable. Never reaches callers.
	KindConnectionDegraded ErrorKind = iota + 1
	// KindFetchFailed: one strategy failed; the next one is tried.
	KindFetchFailed
	// KindPriceUnavailable: every strategy failed or no price slot was found.
	KindPriceUnavailable
	// KindExtractMalformed: document fetched but not parseable.
	KindExtractMalformed
	// KindVariantNotObtainable: the requested wear/track combination does not exist.
	KindVariantNotObtainable
)

func (k ErrorKind) String() string {
	switch k {
	case KindConnectionDegraded:
		return "connection_degraded"
	case KindFetchFailed:
		return "fetch_failed"
	case KindPriceUnavailable:
		return "price_unavailable"
	case KindExtractMalformed:
		return "extract_malformed"
	case KindVariantNotObtainable:
		return "variant_not_obtainable"
	}
	return "unknown"
}

// Error carries the kind of failure, the item it concerns and the cause.
type Error struct {
	Kind ErrorKind
	Item string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Item != "" {
		msg += " for " + e.Item
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on kind so errors.Is(err, ErrPriceUnavailable) works for any item.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Item == "" || t.Item == e.Item)
}

var (
	ErrConnectionDegraded   = &Error{Kind: KindConnectionDegraded}
	ErrFetchFailed          = &Error{Kind: KindFetchFailed}
	ErrPriceUnavailable     = &Error{Kind: KindPriceUnavailable}
	ErrExtractMalformed     = &Error{Kind: KindExtractMalformed}
	ErrVariantNotObtainable = &Error{Kind: KindVariantNotObtainable}
)

// Errorf builds an *Error of the given kind around a formatted cause.
func Errorf(kind ErrorKind, item string, format string, args ...any) *Error {
	return &Error{Kind: kind, Item: item, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the kind from err, or 0 if err is not a pricing error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
