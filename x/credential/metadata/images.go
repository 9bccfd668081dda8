package metadata

import (
	"context"
	"net/http"

	"github.com/compose-network/issuer/x/credential"
)

var allowedImageTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/gif":  true,
	"image/webp": true,
}

// ImageStore accepts proof images into a Store after size and type checks.
type ImageStore struct {
	store    Store
	maxBytes int64
}

func NewImageStore(store Store, maxBytes int64) *ImageStore {
	return &ImageStore{store: store, maxBytes: maxBytes}
}

// MaxBytes is the largest accepted image.
func (s *ImageStore) MaxBytes() int64 {
	return s.maxBytes
}

// PutImage sniffs the content type of data and stores it, returning the image URI.
func (s *ImageStore) PutImage(ctx context.Context, data []byte) (string, string, error) {
	if len(data) == 0 {
		return "", "", credential.Validation("image is empty")
	}
	if int64(len(data)) > s.maxBytes {
		return "", "", credential.Validation("image exceeds %d bytes", s.maxBytes).
			WithContext("size", len(data))
	}
	contentType := http.DetectContentType(data)
	if !allowedImageTypes[contentType] {
		return "", "", credential.Validation("unsupported image type %q", contentType).
			WithContext("content_type", contentType)
	}
	uri, err := s.store.Put(ctx, contentType, data)
	if err != nil {
		return "", "", credential.Internal("failed to store image").WithCause(err)
	}
	return uri, contentType, nil
}
