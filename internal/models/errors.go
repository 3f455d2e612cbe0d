package models

import (
	"errors"
	"fmt"
)

// Failure sentinels. Components wrap these with %w so callers can match
// with errors.Is regardless of the underlying provider error.
var (
	ErrCatalogUnavailable = errors.New("symbol catalog unavailable")
	ErrInvalidTicker      = errors.New("invalid ticker")
	ErrEmptyHistory       = errors.New("empty history")
	ErrFit                = errors.New("forecast fit failed")
	ErrTransientProvider  = errors.New("transient provider error")
)

// FailureKind tags a terminal pipeline failure
type FailureKind string

const (
	KindNone              FailureKind = ""
	KindCatalog           FailureKind = "catalog_unavailable"
	KindInvalidTicker     FailureKind = "invalid_ticker"
	KindEmptyHistory      FailureKind = "empty_history"
	KindFit               FailureKind = "fit_error"
	KindTransientProvider FailureKind = "transient_provider"
)

// Sentinel returns the sentinel error for the kind
func (k FailureKind) Sentinel() error {
	switch k {
	case KindCatalog:
		return ErrCatalogUnavailable
	case KindInvalidTicker:
		return ErrInvalidTicker
	case KindEmptyHistory:
		return ErrEmptyHistory
	case KindFit:
		return ErrFit
	case KindTransientProvider:
		return ErrTransientProvider
	}
	return nil
}

// Retryable reports whether retrying the same symbol may succeed.
func (k FailureKind) Retryable() bool {
	return k == KindTransientProvider || k == KindCatalog
}

// PipelineError is the failure value handed to presentation for one request.
type PipelineError struct {
	Kind   FailureKind
	Symbol string
	Err    error
}

func (e *PipelineError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Symbol, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Symbol, e.Kind, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the error's kind, so a PipelineError built
// from a plain provider error still satisfies errors.Is(err, ErrTransientProvider).
func (e *PipelineError) Is(target error) bool {
	s := e.Kind.Sentinel()
	return s != nil && target == s
}

// NewPipelineError classifies err and wraps it for symbol. Unclassified
// errors become transient provider failures.
func NewPipelineError(symbol string, err error) *PipelineError {
	kind := KindOf(err)
	if kind == KindNone {
		kind = KindTransientProvider
	}
	return &PipelineError{Kind: kind, Symbol: symbol, Err: err}
}

// KindOf classifies err by the sentinel it wraps. Returns KindNone for nil
// and for errors that wrap no known sentinel.
func KindOf(err error) FailureKind {
	if err == nil {
		return KindNone
	}
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	switch {
	case errors.Is(err, ErrEmptyHistory):
		return KindEmptyHistory
	case errors.Is(err, ErrFit):
		return KindFit
	case errors.Is(err, ErrInvalidTicker):
		return KindInvalidTicker
	case errors.Is(err, ErrCatalogUnavailable):
		return KindCatalog
	case errors.Is(err, ErrTransientProvider):
		return KindTransientProvider
	}
	return KindNone
}

// UserMessage is the text shown to an end user for a terminal failure.
func (e *PipelineError) UserMessage() string {
	switch e.Kind {
	case KindEmptyHistory, KindInvalidTicker:
		return fmt.Sprintf("No data for %s. This ticker was likely renamed or delisted; try another symbol.", e.Symbol)
	case KindFit:
		return fmt.Sprintf("Not enough history to forecast %s.", e.Symbol)
	case KindCatalog:
		return "The symbol catalog is unavailable. Try again later."
	default:
		return fmt.Sprintf("Could not load %s right now. Try again.", e.Symbol)
	}
}
