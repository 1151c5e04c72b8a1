package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
)

var galleryUploadContentTypes = []string{
	"image/png",
	"image/jpeg",
	"image/jpg",
	"image/webp",
	"image/gif",
}

// Bucket binds the signed URL client to a single bucket and exposes the
// narrow surface the gallery service needs.
type Bucket struct {
	client  *Client
	objects *gcs.Client
	name    string
	ttl     time.Duration
}

// NewBucket wires a signing client and an object client to a bucket name.
func NewBucket(client *Client, objects *gcs.Client, name string, ttl time.Duration) (*Bucket, error) {
	if client == nil {
		return nil, errNoSigner
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errInvalidBucket
	}
	if ttl <= 0 {
		ttl = defaultSignedURLExpiry
	}
	return &Bucket{client: client, objects: objects, name: name, ttl: ttl}, nil
}

// SignUpload issues a signed PUT URL restricted to gallery content types.
func (b *Bucket) SignUpload(ctx context.Context, object string, contentType string) (SignedURLResult, error) {
	return b.client.SignedURL(ctx, b.name, object, SignedURLOptions{
		Upload: &UploadOptions{
			Method:              "PUT",
			ContentType:         contentType,
			AllowedContentTypes: galleryUploadContentTypes,
			ExpiresIn:           b.ttl,
		},
	})
}

// SignDownload issues a signed GET URL for a stored object.
func (b *Bucket) SignDownload(ctx context.Context, object string) (SignedURLResult, error) {
	return b.client.SignedURL(ctx, b.name, object, SignedURLOptions{
		Download: &DownloadOptions{
			Method:         "GET",
			ExpiresIn:      b.ttl,
			AllowAnonymous: true,
		},
	})
}

// DeleteObject removes an object; a missing object is not an error.
func (b *Bucket) DeleteObject(ctx context.Context, object string) error {
	if b.objects == nil {
		return errors.New("storage: object client is not configured")
	}
	err := b.objects.Bucket(b.name).Object(object).Delete(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return nil
	}
	return err
}
