package resolve

import (
	"errors"
	"fmt"
)

var (
	// ErrPackageUnknown is returned by a Lookup when the source has no such package.
	ErrPackageUnknown = errors.New("package not provided by source")
	// ErrSourceUnknown is returned by a Lookup when the source itself does not exist.
	ErrSourceUnknown = errors.New("source does not exist")

	ErrChannelNotFound = errors.New("channel not found")
	ErrVersionNotFound = errors.New("version not found")
	ErrLookupFailed    = errors.New("remote lookup failed")
)

// ResolutionError carries the package and descriptor a resolution failed for.
type ResolutionError struct {
	Package    string
	Descriptor string
	Err        error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve %s (%s): %v", e.Package, e.Descriptor, e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// isDefinitive reports whether err is a not-found answer that must not be retried.
func isDefinitive(err error) bool {
	return errors.Is(err, ErrPackageUnknown) || errors.Is(err, ErrSourceUnknown)
}
