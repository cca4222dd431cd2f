package media

import (
	"fmt"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// DefaultMaxBytes bounds uploads and fetched images.
const DefaultMaxBytes int64 = 10 << 20

// Decoder reads an uploaded file and returns it as an image data URI. The media type is
// sniffed from content; file names and client headers are ignored.
type Decoder struct {
	MaxBytes int64
}

// NewDecoder returns a decoder with the given limit, falling back to DefaultMaxBytes.
func NewDecoder(maxBytes int64) Decoder {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return Decoder{MaxBytes: maxBytes}
}

// Decode implements the pipeline's upload decoder.
func (d Decoder) Decode(r io.Reader) (string, error) {
	payload, err := readLimited(r, d.limit())
	if err != nil {
		return "", err
	}
	return toImageDataURI(payload)
}

func (d Decoder) limit() int64 {
	if d.MaxBytes <= 0 {
		return DefaultMaxBytes
	}
	return d.MaxBytes
}

func readLimited(r io.Reader, limit int64) ([]byte, error) {
	if r == nil {
		return nil, ErrEmpty
	}
	payload, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("media: read payload: %w", err)
	}
	if len(payload) == 0 {
		return nil, ErrEmpty
	}
	if int64(len(payload)) > limit {
		return nil, ErrTooLarge
	}
	return payload, nil
}

func toImageDataURI(payload []byte) (string, error) {
	detected := mimetype.Detect(payload)
	mimeType := detected.String()
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return "", fmt.Errorf("%w: detected %s", ErrNotImage, mimeType)
	}
	return EncodeDataURI(mimeType, payload), nil
}
