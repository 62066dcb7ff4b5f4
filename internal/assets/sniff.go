package assets

import "bytes"

// Minimum size of a cached asset that is trusted without re-downloading.
const minCachedSize = 100

// Sniff returns the image MIME type implied by data's leading bytes.
func Sniff(data []byte) string {
	switch {
	case bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF}):
		return "image/jpeg"
	case bytes.HasPrefix(data, []byte{0x89, 0x50, 0x4E, 0x47}):
		return "image/png"
	case bytes.HasPrefix(data, []byte("GIF8")):
		return "image/gif"
	case len(data) > 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}

// Valid reports whether a cached asset looks like a complete image.
func Valid(data []byte) bool {
	return len(data) > minCachedSize && Sniff(data) != "application/octet-stream"
}
