package storage

import (
	"path/filepath"
	"strings"
)

// FormatForName guesses a volume's format from its file extension: .raw,
// .img and .iso are raw, everything else is qcow2.
func FormatForName(name string) VolumeFormat {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".raw", ".img", ".iso":
		return VolumeFormatRaw
	default:
		return VolumeFormatQCOW2
	}
}
