//go:build !linux

package blocksum

// adviseSequential is a no-op on non-Linux platforms.
func adviseSequential(data []byte) {
	// No-op: madvise hints are only applied on Linux
}
