//go:build linux

package blocksum

import "golang.org/x/sys/unix"

// adviseSequential tells the kernel a mapping will be read front to back,
// enabling aggressive read-ahead on page faults.
// Best-effort: errors are silently ignored.
func adviseSequential(data []byte) {
	if len(data) == 0 {
		return
	}
	_ = unix.Madvise(data, unix.MADV_SEQUENTIAL)
}
