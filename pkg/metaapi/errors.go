package metaapi

import (
	"errors"
	"fmt"
)

// ErrorKind is the canonical classification of a failure raised by the
// gateway or the client itself. Kind is the single axis callers should
// switch on; the wire error name is an implementation detail translated
// at the edge by errorFromWire.
type ErrorKind int

const (
	// KindInternal covers anything not otherwise classified.
	KindInternal ErrorKind = iota
	KindValidation
	KindNotFound
	KindNotSynchronized
	KindTimeout
	KindNotConnected
	KindTrade
	// KindUnauthorized is fatal: receiving it closes the transport.
	KindUnauthorized
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "Validation"
	case KindNotFound:
		return "NotFound"
	case KindNotSynchronized:
		return "NotSynchronized"
	case KindTimeout:
		return "Timeout"
	case KindNotConnected:
		return "NotConnected"
	case KindTrade:
		return "Trade"
	case KindUnauthorized:
		return "Unauthorized"
	default:
		return "Internal"
	}
}

// Fatal reports whether an error of this kind must close the transport.
func (k ErrorKind) Fatal() bool { return k == KindUnauthorized }

// TradingError is the concrete error type surfaced to RPC callers. It
// carries the canonical Kind plus whatever detail the wire payload
// supplied.
type TradingError struct {
	Kind    ErrorKind
	Message string

	// Details is the raw "details" payload on Validation errors, if any.
	Details interface{}

	// NumericCode/StringCode are populated for Trade errors.
	NumericCode int
	StringCode  string

	// wrapped is the underlying transport/internal error, if this
	// TradingError was constructed by wrapping one (e.g. ErrConnClosed).
	wrapped error
}

func (e *TradingError) Error() string {
	if e.StringCode != "" {
		return fmt.Sprintf("%s: %s (%s/%d)", e.Kind, e.Message, e.StringCode, e.NumericCode)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *TradingError) Unwrap() error { return e.wrapped }

// Is allows errors.Is(err, Timeout) style checks via a thin adapter;
// callers more commonly use errors.As with *TradingError and switch on Kind.
func (e *TradingError) Is(target error) bool {
	var k *kindSentinel
	if errors.As(target, &k) {
		return e.Kind == k.kind
	}
	return false
}

// kindSentinel lets callers write errors.Is(err, metaapi.Timeout) without
// constructing a full TradingError.
type kindSentinel struct{ kind ErrorKind }

func (s *kindSentinel) Error() string { return s.kind.String() }

var (
	Validation      error = &kindSentinel{KindValidation}
	NotFound        error = &kindSentinel{KindNotFound}
	NotSynchronized error = &kindSentinel{KindNotSynchronized}
	Timeout         error = &kindSentinel{KindTimeout}
	NotConnected    error = &kindSentinel{KindNotConnected}
	Trade           error = &kindSentinel{KindTrade}
	Unauthorized    error = &kindSentinel{KindUnauthorized}
	Internal        error = &kindSentinel{KindInternal}
)

// Sentinel transport-level errors: simple package-level values rather
// than typed wrappers, since callers only need identity comparison for
// these.
var (
	ErrConnClosed  = errors.New("metaapi: connection closed")
	ErrNotCallable = errors.New("metaapi: client is not connected and no connect is in flight")
)

// wireError is the shape of a processingError payload's error-bearing
// fields, decoded once by the RPC path and handed to errorFromWire.
type wireError struct {
	Error       string      `json:"error"`
	Message     string      `json:"message"`
	Details     interface{} `json:"details,omitempty"`
	NumericCode int         `json:"numericCode,omitempty"`
	StringCode  string      `json:"stringCode,omitempty"`

	// Legacy trade response aliases: some gateway versions send
	// description/error_code instead of stringCode/numericCode.
	Description string `json:"description,omitempty"`
	LegacyError int     `json:"error_code,omitempty"`
}

// wireNameToKind is the single place wire error names are translated to
// canonical kinds. Anything unrecognized maps to Internal.
var wireNameToKind = map[string]ErrorKind{
	"ValidationError":      KindValidation,
	"NotFoundError":        KindNotFound,
	"NotSynchronizedError": KindNotSynchronized,
	"TimeoutError":         KindTimeout,
	"NotConnectedError":    KindNotConnected,
	"NotAuthenticatedError": KindNotConnected,
	"TradeError":           KindTrade,
	"UnauthorizedError":    KindUnauthorized,
	"InternalError":        KindInternal,
}

// kindToWireName is the reverse of wireNameToKind, used if the client ever
// needs to re-serialize a classified error (e.g. for test fixtures or
// relaying over an internal bus).
var kindToWireName = func() map[ErrorKind]string {
	m := make(map[ErrorKind]string, len(wireNameToKind))
	for name, kind := range wireNameToKind {
		// NotAuthenticatedError and NotConnectedError both map from the
		// wire to KindNotConnected, but only NotConnectedError is the
		// canonical reverse mapping for it.
		if name == "NotAuthenticatedError" {
			continue
		}
		m[kind] = name
	}
	return m
}()

// errorFromWire classifies a processingError envelope into a *TradingError.
func errorFromWire(w wireError) *TradingError {
	kind, ok := wireNameToKind[w.Error]
	if !ok {
		kind = KindInternal
	}
	te := &TradingError{
		Kind:        kind,
		Message:     w.Message,
		Details:     w.Details,
		NumericCode: w.NumericCode,
		StringCode:  w.StringCode,
	}
	if te.StringCode == "" && w.Description != "" {
		te.StringCode = w.Description
	}
	if te.NumericCode == 0 && w.LegacyError != 0 {
		te.NumericCode = w.LegacyError
	}
	return te
}

// WireName returns the canonical wire error name for a kind, or "" if the
// kind has no direct wire representation (KindUnauthorized always has one).
func (k ErrorKind) WireName() string { return kindToWireName[k] }

func newTimeoutError(requestID, reqType string) *TradingError {
	return &TradingError{
		Kind:    KindTimeout,
		Message: fmt.Sprintf("request %s of type %s timed out", requestID, reqType),
	}
}

func newClosedError() *TradingError {
	return &TradingError{
		Kind:    KindInternal,
		Message: "request rejected, connection has been closed",
		wrapped: ErrConnClosed,
	}
}
