//go:build !linux

package blocksum

// GuessMediaType always reports MediaUnknown on non-Linux platforms.
func GuessMediaType(path string) MediaType {
	return MediaUnknown
}
