// Package coltable is the public facade over the partition-reader stack:
// open an SSTable, read a single row, stream every row, or stream a
// token-range slice of rows.
//
// A short package-level overview naming the one or two entry points, plus
// sentinel-error conventions (wrapped errors checked with errors.Is).
package coltable

import (
	"errors"
	"fmt"

	"coltable/internal/rowconsumer"
	"coltable/internal/sstable"
	"coltable/reader"
)

// ErrMalformedSSTable reports a structural format violation in the
// underlying file. It wraps the lower layer's sentinel so callers can
// errors.Is against either.
var ErrMalformedSSTable = fmt.Errorf("coltable: malformed sstable: %w", sstable.ErrMalformed)

// ErrNotImplemented reports a behavior this package deliberately doesn't
// support (wrap-around partition ranges, multi-row-span range deletes).
// Use errors.As to recover the Cause.
var ErrNotImplemented = reader.ErrNotImplemented

// Cause narrows an ErrNotImplemented failure.
type Cause = reader.Cause

const (
	CauseWrapAround   = reader.CauseWrapAround
	CauseRangeDeletes = reader.CauseRangeDeletes
)

// IsMalformed reports whether err (or something it wraps) is a format
// violation from the underlying file.
func IsMalformed(err error) bool {
	return errors.Is(err, sstable.ErrMalformed) || errors.Is(err, rowconsumer.ErrMalformed)
}

// IsNotImplemented reports whether err (or something it wraps) is an
// explicitly out-of-scope behavior, and if so returns its Cause.
func IsNotImplemented(err error) (Cause, bool) {
	var nie *reader.NotImplementedError
	if errors.As(err, &nie) {
		return nie.Cause, true
	}
	return 0, false
}
