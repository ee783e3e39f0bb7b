package types

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common failure modes.
var (
	ErrTimeout        = errors.New("request timed out")
	ErrMaxRetries     = errors.New("max retries exceeded")
	ErrBlocked        = errors.New("blocked by robots.txt")
	ErrMaxDepth       = errors.New("max depth exceeded")
	ErrDuplicate      = errors.New("duplicate URL")
	ErrEmptyResponse  = errors.New("empty response body")
	ErrInvalidURL     = errors.New("invalid URL")
	ErrCrawlStopped   = errors.New("crawl has been stopped")
	ErrNoFetcher      = errors.New("no fetcher available for request")
	ErrCircuitOpen    = errors.New("circuit breaker is open")
	ErrMemoryPressure = errors.New("memory pressure")
)

// Kind classifies an error for retry/propagation decisions. It is
// a taxonomy of failure *kinds*, not of concrete error values.
type Kind int

const (
	KindInvalidRequest Kind = iota
	KindCircuitOpen
	KindRateLimit
	KindTimeout
	KindNetwork
	KindProvider
	KindResourceExhausted
	KindMemoryPressure
	KindDataIntegrity
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindInvalidRequest:
		return "invalid_request"
	case KindCircuitOpen:
		return "circuit_open"
	case KindRateLimit:
		return "rate_limit"
	case KindTimeout:
		return "timeout"
	case KindNetwork:
		return "network"
	case KindProvider:
		return "provider"
	case KindResourceExhausted:
		return "resource_exhausted"
	case KindMemoryPressure:
		return "memory_pressure"
	case KindDataIntegrity:
		return "data_integrity"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// RiptideError is the boundary-facing typed error: every component-level
// error that crosses an HTTP handler, the spider loop, or an AI worker gets
// classified into one of these before it is logged or serialized.
type RiptideError struct {
	Kind       Kind
	Message    string
	RetryAfter time.Duration // populated for KindRateLimit
	Err        error
}

func (e *RiptideError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *RiptideError) Unwrap() error { return e.Err }

// Retryable reports whether the retry layer should attempt this error by
// default, independent of the specific strategy chosen.
func (e *RiptideError) Retryable() bool {
	switch e.Kind {
	case KindInvalidRequest, KindCircuitOpen, KindDataIntegrity, KindFatal:
		return false
	default:
		return true
	}
}

// FetchError wraps errors that occur during fetching.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
	Retryable  bool
	RetryAfter time.Duration // populated from Retry-After header on HTTP 429
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch error for %s (status %d): %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch error for %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) IsRetryable() bool { return e.Retryable }

// ParseError wraps errors that occur during parsing/extraction.
type ParseError struct {
	URL      string
	Selector string
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error for %s (selector=%q): %v", e.URL, e.Selector, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// StorageError wraps errors that occur in the state store.
type StorageError struct {
	Backend string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error (%s): %v", e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// PipelineError wraps errors raised inside a composition-engine strategy.
type PipelineError struct {
	Stage string
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline error at stage %q: %v", e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }
