package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
	"github.com/oklog/ulid/v2"

	domain "github.com/muse-store/miniapp/internal/domain"
	"github.com/muse-store/miniapp/internal/media"
)

const (
	defaultPublicBaseURL = "https://storage.googleapis.com"
	mediaCacheControl    = "public, max-age=31536000, immutable"
)

var errBucketRequired = errors.New("storage: media bucket is required")

// ObjectWriter opens a writer for a new object.
type ObjectWriter interface {
	NewWriter(ctx context.Context, bucket, object, contentType, cacheControl string) io.WriteCloser
}

type gcsWriter struct {
	client *gcs.Client
}

func (g gcsWriter) NewWriter(ctx context.Context, bucket, object, contentType, cacheControl string) io.WriteCloser {
	w := g.client.Bucket(bucket).Object(object).If(gcs.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = cacheControl
	return w
}

// MediaStore offloads committed catalog images to Cloud Storage and returns their public URL.
type MediaStore struct {
	writer  ObjectWriter
	bucket  string
	baseURL string
	newID   func() string
}

// MediaStoreOption customises the store.
type MediaStoreOption func(*MediaStore)

// WithPublicBaseURL overrides the URL prefix objects are served under, e.g. a CDN host.
func WithPublicBaseURL(base string) MediaStoreOption {
	return func(s *MediaStore) {
		if base = strings.TrimRight(strings.TrimSpace(base), "/"); base != "" {
			s.baseURL = base
		}
	}
}

// WithObjectIDs injects the object id generator, primarily for tests.
func WithObjectIDs(gen func() string) MediaStoreOption {
	return func(s *MediaStore) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// NewMediaStore builds a store backed by a Cloud Storage client.
func NewMediaStore(client *gcs.Client, bucket string, opts ...MediaStoreOption) (*MediaStore, error) {
	if client == nil {
		return nil, errors.New("storage: client is required")
	}
	return NewMediaStoreWithWriter(gcsWriter{client: client}, bucket, opts...)
}

// NewMediaStoreWithWriter builds a store over an arbitrary object writer.
func NewMediaStoreWithWriter(writer ObjectWriter, bucket string, opts ...MediaStoreOption) (*MediaStore, error) {
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errBucketRequired
	}
	if writer == nil {
		return nil, errors.New("storage: object writer is required")
	}
	s := &MediaStore{
		writer:  writer,
		bucket:  bucket,
		baseURL: defaultPublicBaseURL + "/" + bucket,
		newID:   func() string { return strings.ToLower(ulid.Make().String()) },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Offload writes the data URI payload to a new immutable object.
func (s *MediaStore) Offload(ctx context.Context, target domain.EditTarget, dataURI string) (string, error) {
	mimeType, payload, err := media.DecodeDataURI(dataURI)
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return "", fmt.Errorf("storage: refusing to store %s", mimeType)
	}
	object, err := ObjectPath(target, s.newID(), media.Extension(mimeType))
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	w := s.writer.NewWriter(ctx, s.bucket, object, mimeType, mediaCacheControl)
	if _, err := w.Write(payload); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("storage: write %s: %w", object, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("storage: close %s: %w", object, err)
	}
	return s.baseURL + "/" + object, nil
}

// ObjectPath lays catalog media out as catalog/<kind>/<slot>/<id><ext>.
func ObjectPath(target domain.EditTarget, id, ext string) (string, error) {
	if !target.Valid() {
		return "", fmt.Errorf("storage: invalid target %s", target)
	}
	id = strings.TrimSpace(id)
	if id == "" || strings.ContainsAny(id, "/\\") {
		return "", errors.New("storage: object id is invalid")
	}
	slot := target.ID
	if target.Kind == domain.EditKindHero {
		slot = target.Index
	}
	return fmt.Sprintf("catalog/%s/%d/%s%s", target.Kind, slot, id, ext), nil
}
