//go:build windows

package dispatch

func isTransient(err error) bool {
	return false
}
