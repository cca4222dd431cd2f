// Package media converts uploads and remote images into the data URIs the edit pipeline works on.
package media

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotImage signals a payload whose sniffed type is not an image.
	ErrNotImage = errors.New("media: payload is not an image")
	// ErrTooLarge signals a payload above the configured byte limit.
	ErrTooLarge = errors.New("media: payload exceeds size limit")
	// ErrEmpty signals an empty payload.
	ErrEmpty = errors.New("media: payload is empty")
	// ErrMalformedDataURI signals a string that is not a base64 data URI.
	ErrMalformedDataURI = errors.New("media: malformed data uri")
)

// EncodeDataURI renders payload as a base64 data URI.
func EncodeDataURI(mimeType string, payload []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(payload)
}

// DecodeDataURI splits a base64 data URI into its media type and bytes.
func DecodeDataURI(uri string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return "", nil, ErrMalformedDataURI
	}
	header, encoded, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, ErrMalformedDataURI
	}
	mimeType, isBase64 := strings.CutSuffix(header, ";base64")
	if !isBase64 {
		return "", nil, fmt.Errorf("%w: only base64 payloads are supported", ErrMalformedDataURI)
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	payload, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrMalformedDataURI, err)
	}
	return mimeType, payload, nil
}

// Extension returns a file extension for an image media type.
func Extension(mimeType string) string {
	switch strings.ToLower(mimeType) {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ".bin"
	}
}
