package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/velvette/api/internal/domain"
	pstorage "github.com/velvette/api/internal/platform/storage"
	"github.com/velvette/api/internal/repositories"
)

const (
	maxGalleryImageSize = int64(15 * 1024 * 1024) // 15 MiB

	galleryEventUploadIssued   = "gallery.upload.issued"
	galleryEventDownloadIssued = "gallery.download.issued"
	galleryEventDeleted        = "gallery.image.deleted"
)

var (
	errGalleryRepositoryRequired = errors.New("gallery service: repository is required")
	errGalleryStorageRequired    = errors.New("gallery service: storage is required")
	errGalleryClockRequired      = errors.New("gallery service: clock is required")
)

// ErrGalleryInvalidInput indicates the caller provided an invalid argument.
var ErrGalleryInvalidInput = errors.New("gallery: invalid input")

// ErrGalleryNotFound indicates the image does not exist.
var ErrGalleryNotFound = errors.New("gallery: not found")

// ErrGalleryUnavailable indicates the gallery backend cannot fulfil the request.
var ErrGalleryUnavailable = errors.New("gallery: unavailable")

var galleryContentTypes = map[string]struct{}{
	"image/png":  {},
	"image/jpeg": {},
	"image/jpg":  {},
	"image/webp": {},
	"image/gif":  {},
}

// GalleryStorage signs object URLs and removes objects for gallery images.
type GalleryStorage interface {
	SignUpload(ctx context.Context, object string, contentType string) (pstorage.SignedURLResult, error)
	SignDownload(ctx context.Context, object string) (pstorage.SignedURLResult, error)
	DeleteObject(ctx context.Context, object string) error
}

// GalleryServiceDeps wires the metadata repository and object storage.
type GalleryServiceDeps struct {
	Repository  repositories.GalleryRepository
	Storage     GalleryStorage
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(context.Context, string, map[string]any)
}

type galleryService struct {
	repo    repositories.GalleryRepository
	storage GalleryStorage
	now     func() time.Time
	newID   func() string
	logger  func(context.Context, string, map[string]any)
}

// NewGalleryService constructs a GalleryService backed by the provided dependencies.
func NewGalleryService(deps GalleryServiceDeps) (GalleryService, error) {
	if deps.Repository == nil {
		return nil, errGalleryRepositoryRequired
	}
	if deps.Storage == nil {
		return nil, errGalleryStorageRequired
	}
	if deps.Clock == nil {
		return nil, errGalleryClockRequired
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}

	return &galleryService{
		repo:    deps.Repository,
		storage: deps.Storage,
		now:     func() time.Time { return deps.Clock().UTC() },
		newID:   idGen,
		logger:  logger,
	}, nil
}

// RequestUpload reserves a gallery slot and returns a signed upload URL.
func (s *galleryService) RequestUpload(ctx context.Context, cmd GalleryUploadCommand) (SignedAssetResponse, error) {
	fileName := strings.TrimSpace(cmd.FileName)
	if fileName == "" {
		return SignedAssetResponse{}, fmt.Errorf("%w: file name is required", ErrGalleryInvalidInput)
	}
	contentType := strings.ToLower(strings.TrimSpace(cmd.ContentType))
	if _, ok := galleryContentTypes[contentType]; !ok {
		return SignedAssetResponse{}, fmt.Errorf("%w: content type %q not allowed", ErrGalleryInvalidInput, cmd.ContentType)
	}
	uploadedBy := strings.TrimSpace(cmd.UploadedBy)
	if uploadedBy == "" {
		return SignedAssetResponse{}, fmt.Errorf("%w: uploader is required", ErrGalleryInvalidInput)
	}

	imageID := s.newID()
	object, err := pstorage.BuildObjectPath(pstorage.PurposeGalleryImage, pstorage.PathParams{
		ImageID:  imageID,
		FileName: fileName,
	})
	if err != nil {
		return SignedAssetResponse{}, fmt.Errorf("%w: %v", ErrGalleryInvalidInput, err)
	}

	signed, err := s.storage.SignUpload(ctx, object, contentType)
	if err != nil {
		return SignedAssetResponse{}, fmt.Errorf("sign gallery upload: %w", err)
	}

	image := domain.GalleryImage{
		ID:          imageID,
		FileName:    fileName,
		ContentType: contentType,
		StoragePath: object,
		UploadedBy:  uploadedBy,
		CreatedAt:   s.now(),
	}
	if _, err := s.repo.Insert(ctx, image); err != nil {
		return SignedAssetResponse{}, s.translateGalleryRepoError(err)
	}

	s.logger(ctx, galleryEventUploadIssued, map[string]any{
		"imageId":  imageID,
		"uploader": uploadedBy,
	})

	return SignedAssetResponse{
		ImageID:   imageID,
		URL:       signed.URL,
		ExpiresAt: signed.ExpiresAt,
		Method:    signed.Method,
		Headers:   normalizeSignedHeaders(signed.Headers),
	}, nil
}

func (s *galleryService) GetImage(ctx context.Context, imageID string) (GalleryImage, error) {
	imageID = strings.TrimSpace(imageID)
	if imageID == "" {
		return GalleryImage{}, fmt.Errorf("%w: image id is required", ErrGalleryInvalidInput)
	}
	image, err := s.repo.FindByID(ctx, imageID)
	if err != nil {
		return GalleryImage{}, s.translateGalleryRepoError(err)
	}
	return image, nil
}

// SignDownload returns a short-lived download URL for a stored image.
func (s *galleryService) SignDownload(ctx context.Context, imageID string) (SignedAssetResponse, error) {
	image, err := s.GetImage(ctx, imageID)
	if err != nil {
		return SignedAssetResponse{}, err
	}
	signed, err := s.storage.SignDownload(ctx, image.StoragePath)
	if err != nil {
		return SignedAssetResponse{}, fmt.Errorf("sign gallery download: %w", err)
	}
	s.logger(ctx, galleryEventDownloadIssued, map[string]any{"imageId": image.ID})
	return SignedAssetResponse{
		ImageID:   image.ID,
		URL:       signed.URL,
		ExpiresAt: signed.ExpiresAt,
		Method:    signed.Method,
		Headers:   normalizeSignedHeaders(signed.Headers),
	}, nil
}

// normalizeSignedHeaders tidies the headers a signed URL requires the client
// to send. GCS returns them with inconsistent whitespace; blank names are
// dropped so the response never asks the client to set an unnamed header.
func normalizeSignedHeaders(headers map[string]string) map[string]string {
	if len(headers) == 0 {
		return nil
	}
	normalized := make(map[string]string, len(headers))
	for name, value := range headers {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		normalized[name] = strings.TrimSpace(value)
	}
	if len(normalized) == 0 {
		return nil
	}
	return normalized
}

func (s *galleryService) ListImages(ctx context.Context, filter GalleryListFilter) (GalleryImagePage, error) {
	page, err := s.repo.List(ctx, domain.Pagination{
		PageSize:  filter.Limit,
		PageToken: strings.TrimSpace(filter.PageToken),
	})
	if err != nil {
		return GalleryImagePage{}, s.translateGalleryRepoError(err)
	}
	items := page.Items
	if uploader := strings.TrimSpace(filter.UploadedBy); uploader != "" {
		filtered := items[:0:0]
		for _, image := range items {
			if image.UploadedBy == uploader {
				filtered = append(filtered, image)
			}
		}
		items = filtered
	}
	return GalleryImagePage{Images: items, NextPageToken: page.NextPageToken}, nil
}

// DeleteImage removes the metadata record and then the stored object. A
// failed object delete is logged but does not resurrect the record.
func (s *galleryService) DeleteImage(ctx context.Context, cmd DeleteImageCommand) error {
	imageID := strings.TrimSpace(cmd.ImageID)
	if imageID == "" {
		return fmt.Errorf("%w: image id is required", ErrGalleryInvalidInput)
	}
	image, err := s.repo.FindByID(ctx, imageID)
	if err != nil {
		return s.translateGalleryRepoError(err)
	}
	if err := s.repo.Delete(ctx, imageID); err != nil {
		return s.translateGalleryRepoError(err)
	}
	if err := s.storage.DeleteObject(ctx, image.StoragePath); err != nil {
		s.logger(ctx, "gallery.object_delete_failed", map[string]any{
			"imageId": imageID,
			"object":  image.StoragePath,
			"error":   err.Error(),
		})
	}
	s.logger(ctx, galleryEventDeleted, map[string]any{
		"imageId": imageID,
		"actor":   strings.TrimSpace(cmd.ActorID),
	})
	return nil
}

func (s *galleryService) translateGalleryRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		if repoErr.IsNotFound() {
			return ErrGalleryNotFound
		}
		return ErrGalleryUnavailable
	}
	return ErrGalleryUnavailable
}
