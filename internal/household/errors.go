package household

import (
	"errors"
	"fmt"
)

var (
	// ErrRefreshInProgress is returned when a refresh is requested while
	// another cycle is still running.
	ErrRefreshInProgress = errors.New("refresh already in progress")

	// ErrNoRecords is returned when a non-empty batch produced no decodable record.
	ErrNoRecords = errors.New("no decodable records in batch")
)

// FetchError wraps a listing or download failure of the object store.
type FetchError struct {
	Op       string // "list" or "download"
	ObjectID string
	Err      error
}

func (e *FetchError) Error() string {
	if e.ObjectID == "" {
		return fmt.Sprintf("fetch %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("fetch %s %s: %v", e.Op, e.ObjectID, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// DecodeError reports a payload that is not a well-formed record.
type DecodeError struct {
	ObjectID string
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.ObjectID, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// TimeParseError reports a record whose Time field is missing or unparseable.
type TimeParseError struct {
	ObjectID string
	Sensor   string
	Value    any
}

func (e *TimeParseError) Error() string {
	return fmt.Sprintf("object %s (sensor %s): cannot parse Time %v", e.ObjectID, e.Sensor, e.Value)
}
