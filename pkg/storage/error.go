package storage

import (
	"errors"
	"fmt"
)

// NotFoundError is returned when a key doesn't exist in the store.
type NotFoundError struct {
	Key string
}

func (e NotFoundError) Error() string {
	if e.Key == "" {
		return "key not found"
	}

	return "key not found: " + e.Key
}

// QuotaExceededError is returned by Set when writing would exceed the
// capacity of the substrate, either for a single value or for the store.
type QuotaExceededError struct {
	Key   string
	Size  int
	Limit int
}

func (e QuotaExceededError) Error() string {
	return fmt.Sprintf("storage quota exceeded writing %q: %d bytes (limit %d)", e.Key, e.Size, e.Limit)
}

// IsNotFound reports whether err is, or wraps, a NotFoundError.
func IsNotFound(err error) bool {
	var nf NotFoundError
	return errors.As(err, &nf)
}

// IsQuotaExceeded reports whether err is, or wraps, a QuotaExceededError.
func IsQuotaExceeded(err error) bool {
	var qe QuotaExceededError
	return errors.As(err, &qe)
}

// CheckValueSize returns QuotaExceededError if value is larger than limit.
// A limit of zero or less disables the check.
func CheckValueSize(key string, value []byte, limit int) error {
	if limit > 0 && len(value) > limit {
		return QuotaExceededError{Key: key, Size: len(value), Limit: limit}
	}
	return nil
}
