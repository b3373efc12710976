package dicom

import (
	"bytes"
	"strings"
)

// MagicOffset is the byte offset of the DICM marker in a Part 10 file.
// The 128-byte preamble is followed by the 4-byte magic.
const (
	MagicOffset = 128
	MagicLength = 4
)

var magic = []byte("DICM")

// knownExtensions are the filename suffixes treated as DICOM without a
// magic-number probe.
var knownExtensions = []string{".dcm", ".dicom"}

// IsMagic reports whether b is the 4-byte DICM marker.
func IsMagic(b []byte) bool {
	return bytes.Equal(b, magic)
}

// HasKnownExtension reports whether key ends in a recognized DICOM
// extension, case-insensitively.
func HasKnownExtension(key string) bool {
	lower := strings.ToLower(key)
	for _, ext := range knownExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}
