package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/velvette/api/internal/domain"
	pfirestore "github.com/velvette/api/internal/platform/firestore"
	"github.com/velvette/api/internal/platform/pagination"
	"github.com/velvette/api/internal/repositories"
)

const (
	galleryCollection      = "gallery"
	defaultGalleryPageSize = 24
	maxGalleryPageSize     = 100
)

// GalleryRepository stores uploaded media metadata in Firestore.
type GalleryRepository struct {
	base *pfirestore.BaseRepository[galleryImageDocument]
}

// NewGalleryRepository constructs a Firestore-backed gallery repository.
func NewGalleryRepository(provider *pfirestore.Provider) (*GalleryRepository, error) {
	if provider == nil {
		return nil, errors.New("gallery repository requires firestore provider")
	}
	return &GalleryRepository{
		base: pfirestore.NewBaseRepository[galleryImageDocument](provider, galleryCollection, nil, nil),
	}, nil
}

// Insert writes the metadata record for a newly issued upload.
func (r *GalleryRepository) Insert(ctx context.Context, image domain.GalleryImage) (domain.GalleryImage, error) {
	imageID := strings.TrimSpace(image.ID)
	if imageID == "" {
		return domain.GalleryImage{}, errors.New("gallery repository: image id is required")
	}
	doc := galleryImageDocumentFromDomain(image)
	if _, err := r.base.Set(ctx, imageID, doc); err != nil {
		return domain.GalleryImage{}, err
	}
	return doc.toDomain(imageID), nil
}

// FindByID reads one image record.
func (r *GalleryRepository) FindByID(ctx context.Context, imageID string) (domain.GalleryImage, error) {
	imageID = strings.TrimSpace(imageID)
	if imageID == "" {
		return domain.GalleryImage{}, errors.New("gallery repository: image id is required")
	}
	doc, err := r.base.Get(ctx, imageID)
	if err != nil {
		return domain.GalleryImage{}, err
	}
	return doc.Data.toDomain(imageID), nil
}

// List returns image records newest first with cursor pagination.
func (r *GalleryRepository) List(ctx context.Context, pager domain.Pagination) (domain.CursorPage[domain.GalleryImage], error) {
	pageSize := pager.PageSize
	if pageSize <= 0 {
		pageSize = defaultGalleryPageSize
	}
	if pageSize > maxGalleryPageSize {
		pageSize = maxGalleryPageSize
	}

	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		query = query.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Asc)
		if cursor, err := pagination.DecodeToken(pager.PageToken); err == nil && len(cursor.StartAfter) > 0 {
			query = query.StartAfter(decodeCursorValues(cursor.StartAfter)...)
		}
		return query.Limit(pageSize + 1)
	})
	if err != nil {
		if errors.Is(err, iterator.Done) || status.Code(err) == codes.NotFound {
			return domain.CursorPage[domain.GalleryImage]{}, nil
		}
		return domain.CursorPage[domain.GalleryImage]{}, err
	}

	page := domain.CursorPage[domain.GalleryImage]{Items: make([]domain.GalleryImage, 0, len(docs))}
	for i, doc := range docs {
		if i == pageSize {
			last := docs[pageSize-1]
			token, err := pagination.EncodeToken(pagination.Cursor{
				StartAfter: []any{last.Data.CreatedAt.Format(time.RFC3339Nano), last.ID},
			})
			if err != nil {
				return domain.CursorPage[domain.GalleryImage]{}, err
			}
			page.NextPageToken = token
			break
		}
		page.Items = append(page.Items, doc.Data.toDomain(doc.ID))
	}
	return page, nil
}

// Delete removes an image record.
func (r *GalleryRepository) Delete(ctx context.Context, imageID string) error {
	imageID = strings.TrimSpace(imageID)
	if imageID == "" {
		return errors.New("gallery repository: image id is required")
	}
	ref, err := r.base.DocumentRef(ctx, imageID)
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx); err != nil {
		return pfirestore.WrapError("gallery.delete", err)
	}
	return nil
}

type galleryImageDocument struct {
	FileName    string    `firestore:"fileName"`
	ContentType string    `firestore:"contentType"`
	StoragePath string    `firestore:"storagePath"`
	SizeBytes   int64     `firestore:"sizeBytes,omitempty"`
	UploadedBy  string    `firestore:"uploadedBy,omitempty"`
	CreatedAt   time.Time `firestore:"createdAt"`
}

func galleryImageDocumentFromDomain(image domain.GalleryImage) galleryImageDocument {
	return galleryImageDocument{
		FileName:    image.FileName,
		ContentType: image.ContentType,
		StoragePath: image.StoragePath,
		SizeBytes:   image.SizeBytes,
		UploadedBy:  image.UploadedBy,
		CreatedAt:   image.CreatedAt.UTC(),
	}
}

func (d galleryImageDocument) toDomain(id string) domain.GalleryImage {
	return domain.GalleryImage{
		ID:          id,
		FileName:    d.FileName,
		ContentType: d.ContentType,
		StoragePath: d.StoragePath,
		SizeBytes:   d.SizeBytes,
		UploadedBy:  d.UploadedBy,
		CreatedAt:   d.CreatedAt,
	}
}

var _ repositories.GalleryRepository = (*GalleryRepository)(nil)
