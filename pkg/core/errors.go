package core

import (
	"fmt"
)

// MalformedFieldError reports a raw value that could not be coerced to the
// type a field requires.
type MalformedFieldError struct {
	Field string
	Value any
	Want  string
	Err   error
}

func (e *MalformedFieldError) Error() string {
	msg := fmt.Sprintf("field %q: malformed value %v (want %s)", e.Field, formatErrValue(e.Value), e.Want)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MalformedFieldError) Unwrap() error { return e.Err }

// UnmappedLookupError reports a lookup input with no mapping and no declared
// default.
type UnmappedLookupError struct {
	Field string
	Value any
}

func (e *UnmappedLookupError) Error() string {
	return fmt.Sprintf("field %q: no mapping for %v and no default declared", e.Field, formatErrValue(e.Value))
}

// DuplicateKeyAmbiguityError reports that the dedup ordering could not pick
// a single winner for a business key.
type DuplicateKeyAmbiguityError struct {
	Key       Key
	Positions [2]int
	Err       error
}

func (e *DuplicateKeyAmbiguityError) Error() string {
	msg := fmt.Sprintf("ambiguous ordering for key %s between records %d and %d", e.Key, e.Positions[0], e.Positions[1])
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DuplicateKeyAmbiguityError) Unwrap() error { return e.Err }

// MergeConflictError reports a merge the target rejected. The target is left
// unchanged when this error is returned.
type MergeConflictError struct {
	Table string
	Key   Key
	Err   error
}

func (e *MergeConflictError) Error() string {
	if e.Key != nil {
		return fmt.Sprintf("merge into %s rejected at key %s: %v", e.Table, e.Key, e.Err)
	}
	return fmt.Sprintf("merge into %s rejected: %v", e.Table, e.Err)
}

func (e *MergeConflictError) Unwrap() error { return e.Err }

// RecordError ties an error to the position of a record in its batch.
type RecordError struct {
	Position int
	Err      error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("record %d: %v", e.Position, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }

func formatErrValue(v any) string {
	if s, ok := v.(string); ok {
		return fmt.Sprintf("%q", s)
	}
	if v == nil {
		return "<nil>"
	}
	return fmt.Sprint(v)
}
