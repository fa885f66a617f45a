//go:build linux

package blocksum

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// Filesystem magic numbers from statfs(2).
const (
	tmpfsMagic = 0x01021994
	ramfsMagic = 0x858458f6
	nfsMagic   = 0x6969
	smbMagic   = 0x517b
	smb2Magic  = 0xfe534d42
	cifsMagic  = 0xff534d42
)

const sysDevBlock = "/sys/dev/block"

// GuessMediaType classifies the storage holding path.
//
// Memory and network filesystems are recognized by their statfs magic.
// For everything else the backing block device's queue/rotational flag in
// sysfs decides between MediaHDD and MediaSSD. Device-mapper, loop and
// similar stacked devices often report a meaningless flag; the result is
// a hint, never a guarantee.
func GuessMediaType(path string) MediaType {
	var fs unix.Statfs_t
	if err := unix.Statfs(path, &fs); err != nil {
		return MediaUnknown
	}
	switch uint32(fs.Type) {
	case tmpfsMagic, ramfsMagic:
		return MediaMemory
	case nfsMagic, smbMagic, smb2Magic, cifsMagic:
		return MediaNetwork
	}

	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return MediaUnknown
	}
	return mediaFromSysfs(sysDevBlock, unix.Major(uint64(st.Dev)), unix.Minor(uint64(st.Dev)))
}

// mediaFromSysfs reads the rotational flag of device major:minor under
// root. Partitions have no queue directory of their own and inherit the
// flag of their parent disk.
func mediaFromSysfs(root string, major, minor uint32) MediaType {
	// sysfs device entries are symlinks into the device tree; resolve
	// before taking the parent.
	dev, err := filepath.EvalSymlinks(filepath.Join(root, fmt.Sprintf("%d:%d", major, minor)))
	if err != nil {
		return MediaUnknown
	}
	for _, p := range []string{
		filepath.Join(dev, "queue", "rotational"),
		filepath.Join(filepath.Dir(dev), "queue", "rotational"),
	} {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		switch strings.TrimSpace(string(data)) {
		case "1":
			return MediaHDD
		case "0":
			return MediaSSD
		}
	}
	return MediaUnknown
}
