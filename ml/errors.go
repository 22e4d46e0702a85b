package ml

import (
	"github.com/pkg/errors"
)

var (
	// ErrLookup reports a symbol or token missing from a vocabulary or an
	// embedding source. Batch evaluation skips the affected example.
	ErrLookup = errors.New("lookup failed")

	// ErrShapeMismatch reports a violated width or length bound. It is a
	// configuration bug and is never skipped.
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrNumericInstability reports a non-finite loss, detected before the
	// optimizer touches any parameter.
	ErrNumericInstability = errors.New("numeric instability")
)

// IsLookup reports whether err is (or wraps) ErrLookup.
func IsLookup(err error) bool {
	return errors.Is(err, ErrLookup)
}
