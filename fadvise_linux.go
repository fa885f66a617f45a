//go:build linux

package blocksum

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// fadviseSequential hints to the kernel that the file will be read
// sequentially. Applied when a block reader opens the input.
// Best-effort: errors are silently ignored.
func fadviseSequential(fd int, offset, length int64) {
	_ = unix.Fadvise(fd, offset, length, unix.FADV_SEQUENTIAL)
}

// DropPageCache asks the kernel to evict path's pages from the page cache,
// so the next read measures the storage rather than memory. Dirty pages are
// flushed first because FADV_DONTNEED skips them.
func DropPageCache(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open for cache drop: %w", err)
	}
	defer f.Close()

	fd := int(f.Fd())
	if err := unix.Fdatasync(fd); err != nil {
		return fmt.Errorf("fdatasync: %w", err)
	}
	if err := unix.Fadvise(fd, 0, 0, unix.FADV_DONTNEED); err != nil {
		return fmt.Errorf("fadvise dontneed: %w", err)
	}
	return nil
}
