//go:build !linux

package blocksum

// fadviseSequential is a no-op on non-Linux platforms.
// FADV_SEQUENTIAL is Linux-specific.
func fadviseSequential(fd int, offset, length int64) {
	// No-op
}

// DropPageCache is a no-op on non-Linux platforms: there is no per-file
// eviction call, so benchmark iterations after the first run warm.
func DropPageCache(path string) error {
	return nil
}
