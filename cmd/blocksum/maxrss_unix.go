//go:build unix

package main

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// getMaxRSS returns the peak resident set size of the process in bytes.
func getMaxRSS() uint64 {
	var rusage unix.Rusage
	if err := unix.Getrusage(unix.RUSAGE_SELF, &rusage); err != nil {
		return 0
	}
	// Linux reports kilobytes, the BSDs and macOS bytes.
	maxRSS := uint64(rusage.Maxrss)
	if runtime.GOOS != "darwin" && runtime.GOOS != "ios" {
		maxRSS *= 1024
	}
	return maxRSS
}
