package registry

import (
	"errors"
	"fmt"
)

var (
	// ErrCorrupt is reported when the persisted registry cannot be decoded.
	ErrCorrupt = errors.New("registry: persisted state corrupted")
	// ErrInvalidRecord is returned for records without a tracking id.
	ErrInvalidRecord = errors.New("registry: record has no tracking id")
	// ErrInvalidQuery is returned for out-of-range query arguments.
	ErrInvalidQuery = errors.New("registry: invalid query")
)

// DurabilityError reports that the registry could not read or commit its
// durable state. Callers running a batch must stop when they see one: the
// in-memory view still reflects the last successful commit, but nothing
// newer was persisted.
type DurabilityError struct {
	Op  string
	Err error
}

func (e *DurabilityError) Error() string {
	return fmt.Sprintf("registry %s: %v", e.Op, e.Err)
}

func (e *DurabilityError) Unwrap() error { return e.Err }

// IsDurability reports whether err is, or wraps, a DurabilityError.
func IsDurability(err error) bool {
	var de *DurabilityError
	return errors.As(err, &de)
}
