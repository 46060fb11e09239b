package upload

import (
	"net/url"
	"path/filepath"
	"strings"
)

// SourceType classifies a raw attachment source string.
type SourceType int

const (
	SourceUnknown SourceType = iota
	SourceExternalURL
	SourceLocalFile
	SourceDataURI
)

func (t SourceType) String() string {
	switch t {
	case SourceExternalURL:
		return "external_url"
	case SourceLocalFile:
		return "local_file"
	case SourceDataURI:
		return "data_uri"
	default:
		return "unknown"
	}
}

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".webp": true, ".svg": true, ".bmp": true, ".tiff": true,
	".tif": true, ".ico": true, ".avif": true,
}

// DetectSource classifies src so the pipeline knows whether to read bytes
// from disk, decode them inline, or link them externally.
func DetectSource(src string) SourceType {
	src = strings.TrimSpace(src)
	if src == "" {
		return SourceUnknown
	}

	if len(src) >= 5 && strings.EqualFold(src[:5], "data:") {
		return SourceDataURI
	}

	if parsed, err := url.Parse(src); err == nil {
		switch parsed.Scheme {
		case "http", "https":
			return SourceExternalURL
		}
	}

	if filepath.IsAbs(src) ||
		strings.HasPrefix(src, "./") || strings.HasPrefix(src, "../") ||
		strings.HasPrefix(src, "~") {
		return SourceLocalFile
	}

	if imageExtensions[strings.ToLower(filepath.Ext(src))] {
		return SourceLocalFile
	}
	return SourceUnknown
}
