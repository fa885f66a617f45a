//go:build !linux && !darwin

package blocksum

import "os"

// reserveSpace is a no-op on platforms without a size-preserving
// preallocation call.
func reserveSpace(file *os.File, size int64) error {
	return nil
}
