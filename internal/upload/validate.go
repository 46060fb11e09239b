package upload

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"net/url"
	"path/filepath"
	"strings"
)

var (
	// ErrMediaType marks a media type outside the configured allowlist.
	ErrMediaType = errors.New("media type not allowed")

	// ErrMediaSize marks a payload above the configured size ceiling.
	ErrMediaSize = errors.New("media exceeds maximum size")

	// ErrBadDataURI marks an inline source that could not be decoded.
	ErrBadDataURI = errors.New("malformed data uri")
)

// Limits holds the validation policy. The maps are owned by the caller's
// config and treated as read-only here.
type Limits struct {
	AllowedUpload   map[string]bool
	AllowedExternal map[string]bool
	MaxSizeBytes    int64
}

type magicType struct {
	prefix []byte
	mime   string
}

var magicTypes = []magicType{
	{[]byte("\x89PNG\r\n\x1a\n"), "image/png"},
	{[]byte("\xff\xd8\xff"), "image/jpeg"},
	{[]byte("GIF87a"), "image/gif"},
	{[]byte("GIF89a"), "image/gif"},
	{[]byte("RIFF"), "image/webp"},
	{[]byte("<svg"), "image/svg+xml"},
	{[]byte("<?xml"), "image/svg+xml"},
	{[]byte("BM"), "image/bmp"},
}

// sniffMime detects a media type from leading magic bytes. Returns "" when
// nothing matches.
func sniffMime(data []byte) string {
	for _, m := range magicTypes {
		if !bytes.HasPrefix(data, m.prefix) {
			continue
		}
		// RIFF containers are only WEBP when the form tag says so.
		if m.mime == "image/webp" && (len(data) < 12 || !bytes.Equal(data[8:12], []byte("WEBP"))) {
			continue
		}
		return m.mime
	}
	return ""
}

func guessFromPath(src string) string {
	mediaType := mime.TypeByExtension(strings.ToLower(filepath.Ext(src)))
	if i := strings.IndexByte(mediaType, ';'); i >= 0 {
		mediaType = mediaType[:i]
	}
	return mediaType
}

// Validate checks an attachment source against the media-type allowlist and
// size ceiling. For data URIs the bytes are decoded from the source itself;
// local files pass their bytes in data; external URLs carry no bytes and
// only their extension is checked.
func Validate(src string, sourceType SourceType, data []byte, limits Limits) (string, []byte, error) {
	var mediaType string
	decoded := data

	switch sourceType {
	case SourceDataURI:
		var err error
		mediaType, decoded, err = parseDataURI(src)
		if err != nil {
			return "", nil, err
		}
	case SourceLocalFile:
		if len(data) > 0 {
			mediaType = sniffMime(data)
		}
		if mediaType == "" {
			mediaType = guessFromPath(src)
		}
	default:
		mediaType = guessFromPath(src)
	}
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}

	allowed := limits.AllowedUpload
	if sourceType == SourceExternalURL {
		allowed = limits.AllowedExternal
	}
	if !allowed[mediaType] {
		return "", nil, fmt.Errorf("%w: %s (source %s)", ErrMediaType, mediaType, truncateSource(src))
	}

	if limits.MaxSizeBytes > 0 && int64(len(decoded)) > limits.MaxSizeBytes {
		return "", nil, fmt.Errorf("%w: %d bytes > %d (source %s)", ErrMediaSize, len(decoded), limits.MaxSizeBytes, truncateSource(src))
	}
	return mediaType, decoded, nil
}

// parseDataURI splits data:[<mediatype>][;base64],<data> and decodes the
// payload.
func parseDataURI(src string) (string, []byte, error) {
	if len(src) < 5 || !strings.EqualFold(src[:5], "data:") {
		return "", nil, fmt.Errorf("%w: missing data: prefix", ErrBadDataURI)
	}
	rest := src[5:]
	comma := strings.IndexByte(rest, ',')
	if comma < 0 {
		return "", nil, fmt.Errorf("%w: missing payload separator", ErrBadDataURI)
	}
	header, payload := rest[:comma], rest[comma+1:]

	mediaType := "application/octet-stream"
	isBase64 := false
	for i, part := range strings.Split(header, ";") {
		if i == 0 && part != "" {
			mediaType = part
			continue
		}
		if strings.EqualFold(part, "base64") {
			isBase64 = true
		}
	}

	if isBase64 {
		decoded, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return "", nil, fmt.Errorf("%w: base64 decode: %v", ErrBadDataURI, err)
		}
		return mediaType, decoded, nil
	}
	decoded, err := url.PathUnescape(payload)
	if err != nil {
		return "", nil, fmt.Errorf("%w: percent decode: %v", ErrBadDataURI, err)
	}
	return mediaType, []byte(decoded), nil
}

func truncateSource(src string) string {
	const maxLen = 200
	if len(src) <= maxLen {
		return src
	}
	return src[:maxLen] + "..."
}
