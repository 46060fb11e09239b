package upload

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
)

func TestDetectSource(t *testing.T) {
	cases := []struct {
		src  string
		want SourceType
	}{
		{"https://example.com/cat.png", SourceExternalURL},
		{"http://example.com/cat", SourceExternalURL},
		{"data:image/png;base64,iVBOR", SourceDataURI},
		{"DATA:image/png;base64,iVBOR", SourceDataURI},
		{"/tmp/cat.png", SourceLocalFile},
		{"./images/cat.png", SourceLocalFile},
		{"../cat.jpeg", SourceLocalFile},
		{"~/cat.gif", SourceLocalFile},
		{"cat.webp", SourceLocalFile},
		{"notes.txt", SourceUnknown},
		{"", SourceUnknown},
		{"   ", SourceUnknown},
	}
	for _, tc := range cases {
		if got := DetectSource(tc.src); got != tc.want {
			t.Fatalf("DetectSource(%q) = %s, want %s", tc.src, got, tc.want)
		}
	}
}

func testLimits() Limits {
	return Limits{
		AllowedUpload:   map[string]bool{"image/png": true, "image/jpeg": true, "image/webp": true},
		AllowedExternal: map[string]bool{"image/png": true, "image/svg+xml": true},
		MaxSizeBytes:    1024,
	}
}

var pngHeader = []byte("\x89PNG\r\n\x1a\n rest of file")

func TestValidateSniffsLocalFileBytes(t *testing.T) {
	// Misleading extension; the magic bytes win.
	mediaType, data, err := Validate("./cat.jpeg", SourceLocalFile, pngHeader, testLimits())
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if mediaType != "image/png" {
		t.Fatalf("mediaType = %q, want image/png", mediaType)
	}
	if len(data) != len(pngHeader) {
		t.Fatalf("local file bytes should pass through")
	}
}

func TestValidateWebpNeedsRiffFormTag(t *testing.T) {
	riffOnly := []byte("RIFF\x00\x00\x00\x00WAVEfmt ")
	if got := sniffMime(riffOnly); got != "" {
		t.Fatalf("non-WEBP RIFF sniffed as %q", got)
	}
	webp := []byte("RIFF\x00\x00\x00\x00WEBPVP8 ")
	if got := sniffMime(webp); got != "image/webp" {
		t.Fatalf("WEBP sniffed as %q", got)
	}
}

func TestValidateRejectsDisallowedType(t *testing.T) {
	_, _, err := Validate("./doc.pdf", SourceLocalFile, []byte("%PDF-1.4"), testLimits())
	if !errors.Is(err, ErrMediaType) {
		t.Fatalf("expected media type rejection, got %v", err)
	}

	// External allowlist is separate: jpeg uploads fine but not linkable.
	_, _, err = Validate("https://example.com/cat.jpeg", SourceExternalURL, nil, testLimits())
	if !errors.Is(err, ErrMediaType) {
		t.Fatalf("external allowlist not applied, got %v", err)
	}
}

func TestValidateEnforcesSizeCeiling(t *testing.T) {
	big := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 2048)...)
	_, _, err := Validate("./big.png", SourceLocalFile, big, testLimits())
	if !errors.Is(err, ErrMediaSize) {
		t.Fatalf("expected size rejection, got %v", err)
	}
}

func TestValidateDecodesDataURI(t *testing.T) {
	payload := []byte("\x89PNG\r\n\x1a\nxyz")
	src := "data:image/png;base64," + base64.StdEncoding.EncodeToString(payload)

	mediaType, data, err := Validate(src, SourceDataURI, nil, testLimits())
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if mediaType != "image/png" {
		t.Fatalf("mediaType = %q, want image/png", mediaType)
	}
	if string(data) != string(payload) {
		t.Fatalf("decoded bytes differ")
	}
}

func TestValidateRejectsBadDataURI(t *testing.T) {
	_, _, err := Validate("data:image/png;base64,!!!not-base64!!!", SourceDataURI, nil, testLimits())
	if !errors.Is(err, ErrBadDataURI) {
		t.Fatalf("expected data uri rejection, got %v", err)
	}
	_, _, err = Validate("data:image/png;base64", SourceDataURI, nil, testLimits())
	if !errors.Is(err, ErrBadDataURI) {
		t.Fatalf("expected rejection without payload separator, got %v", err)
	}
}

func TestValidateTruncatesLongSourcesInErrors(t *testing.T) {
	long := "./" + strings.Repeat("a", 500) + ".pdf"
	_, _, err := Validate(long, SourceLocalFile, nil, testLimits())
	if err == nil {
		t.Fatalf("expected error")
	}
	if len(err.Error()) > 300 {
		t.Fatalf("error message embeds the full source: %d chars", len(err.Error()))
	}
}
