package blocksum

// MediaType is a best-effort guess of the storage backing a file.
type MediaType int

const (
	MediaUnknown MediaType = iota
	MediaMemory
	MediaSSD
	MediaHDD
	MediaNetwork
)

// String returns the media name.
func (m MediaType) String() string {
	switch m {
	case MediaMemory:
		return "memory"
	case MediaSSD:
		return "ssd"
	case MediaHDD:
		return "hdd"
	case MediaNetwork:
		return "network"
	default:
		return "unknown"
	}
}
