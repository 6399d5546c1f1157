package models

import (
	"errors"
	"fmt"
)

var (
	ErrLeaseUnavailable = errors.New("lease unavailable")
	ErrNoLease          = errors.New("no lease for url key")
	ErrLeaseExpired     = errors.New("lease expired")
	ErrFetchFailed      = errors.New("fetch failed")
	ErrMergeIncomplete  = errors.New("merge incomplete")
	ErrStaleWrite       = errors.New("stale write rejected")
	ErrUnknownDataset   = errors.New("unknown dataset")
)

// FetchError carries the cause of a failed upstream GET.
type FetchError struct {
	Key        string
	StatusCode int
	Cause      string
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d: %s", e.Key, e.StatusCode, e.Cause)
	}
	return fmt.Sprintf("fetch %s: %s", e.Key, e.Cause)
}

// Is matches ErrFetchFailed.
func (e *FetchError) Is(target error) bool { return target == ErrFetchFailed }

func (e *FetchError) Unwrap() error { return e.Err }
