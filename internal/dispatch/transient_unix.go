//go:build !windows

package dispatch

import (
	"errors"
	"syscall"
)

// isTransient reports start failures worth retrying: a freshly written
// executable still open for writing, or a momentary process limit.
func isTransient(err error) bool {
	return errors.Is(err, syscall.ETXTBSY) || errors.Is(err, syscall.EAGAIN)
}
