package model

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNoData               = errors.New("no elevation data available")
	ErrProviderFailure      = errors.New("elevation provider failure")
	ErrInsufficientGeometry = errors.New("road has fewer than 2 vertices")
	ErrInvalidInterval      = errors.New("sample interval must be positive")
	ErrWorkUnitExhausted    = errors.New("work unit exhausted its error budget")
	ErrNoPendingUnit        = errors.New("no pending work unit")
	ErrUnitNotFound         = errors.New("work unit not found")
	ErrInvalidTransition    = errors.New("invalid work unit transition")
	ErrProfileNotFound      = errors.New("road profile not found")
)

// ProviderError is a failed call to an elevation provider: a transport
// error, a timeout, a non-2xx status or a malformed body.
type ProviderError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("provider %s: HTTP %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

func (e *ProviderError) Is(target error) bool { return target == ErrProviderFailure }

// BatchError reports the batches of one fetch for which every provider failed.
type BatchError struct {
	Failed map[int]error
	Total  int
}

func (e *BatchError) Error() string {
	parts := make([]string, 0, len(e.Failed))
	for i := 0; i < e.Total; i++ {
		if err, ok := e.Failed[i]; ok {
			parts = append(parts, fmt.Sprintf("batch %d: %v", i, err))
		}
	}
	return fmt.Sprintf("%d/%d batches failed: %s", len(e.Failed), e.Total, strings.Join(parts, "; "))
}

func (e *BatchError) Is(target error) bool { return target == ErrProviderFailure }
