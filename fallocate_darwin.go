//go:build darwin

package blocksum

import (
	"os"

	"golang.org/x/sys/unix"
)

// reserveSpace pre-allocates disk blocks for an output file.
// On macOS, uses fcntl F_PREALLOCATE, which reserves space without
// setting the file size.
func reserveSpace(file *os.File, size int64) error {
	if size <= 0 {
		return nil
	}
	// F_PREALLOCATE with F_ALLOCATEALL - allocate all requested space or fail
	fst := unix.Fstore_t{
		Flags:   unix.F_ALLOCATEALL,
		Posmode: unix.F_PEOFPOSMODE,
		Offset:  0,
		Length:  size,
	}
	return unix.FcntlFstore(file.Fd(), unix.F_PREALLOCATE, &fst)
}
