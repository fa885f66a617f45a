package blocksum

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	sumerrors "github.com/tamirms/blocksum/errors"
)

const (
	KiB int64 = 1024
	MiB       = 1024 * KiB
	GiB       = 1024 * MiB
)

// ParseSize parses a byte count with an optional K, M or G suffix
// (case-insensitive, binary multiples), e.g. "512", "64K", "1M".
func ParseSize(text string) (int64, error) {
	t := strings.TrimSpace(text)
	if t == "" {
		return 0, fmt.Errorf("%w: empty", sumerrors.ErrInvalidSize)
	}

	mult := int64(1)
	switch t[len(t)-1] {
	case 'k', 'K':
		mult = KiB
	case 'm', 'M':
		mult = MiB
	case 'g', 'G':
		mult = GiB
	}
	if mult != 1 {
		t = t[:len(t)-1]
	}

	n, err := strconv.ParseInt(t, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %q", sumerrors.ErrInvalidSize, text)
	}
	if n > math.MaxInt64/mult {
		return 0, fmt.Errorf("%w: %q overflows", sumerrors.ErrInvalidSize, text)
	}
	return n * mult, nil
}

// FormatSize renders n with the largest exact binary suffix.
func FormatSize(n int64) string {
	switch {
	case n != 0 && n%GiB == 0:
		return strconv.FormatInt(n/GiB, 10) + "G"
	case n != 0 && n%MiB == 0:
		return strconv.FormatInt(n/MiB, 10) + "M"
	case n != 0 && n%KiB == 0:
		return strconv.FormatInt(n/KiB, 10) + "K"
	}
	return strconv.FormatInt(n, 10)
}
