package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/velvette/api/internal/platform/auth"
	"github.com/velvette/api/internal/services"
)

type stubGalleryService struct {
	requestUploadFunc func(ctx context.Context, cmd services.GalleryUploadCommand) (services.SignedAssetResponse, error)
	getImageFunc      func(ctx context.Context, imageID string) (services.GalleryImage, error)
	signDownloadFunc  func(ctx context.Context, imageID string) (services.SignedAssetResponse, error)
	listImagesFunc    func(ctx context.Context, filter services.GalleryListFilter) (services.GalleryImagePage, error)
	deleteImageFunc   func(ctx context.Context, cmd services.DeleteImageCommand) error
}

func (s *stubGalleryService) RequestUpload(ctx context.Context, cmd services.GalleryUploadCommand) (services.SignedAssetResponse, error) {
	if s.requestUploadFunc == nil {
		return services.SignedAssetResponse{}, services.ErrGalleryUnavailable
	}
	return s.requestUploadFunc(ctx, cmd)
}

func (s *stubGalleryService) GetImage(ctx context.Context, imageID string) (services.GalleryImage, error) {
	if s.getImageFunc == nil {
		return services.GalleryImage{}, services.ErrGalleryUnavailable
	}
	return s.getImageFunc(ctx, imageID)
}

func (s *stubGalleryService) SignDownload(ctx context.Context, imageID string) (services.SignedAssetResponse, error) {
	if s.signDownloadFunc == nil {
		return services.SignedAssetResponse{}, services.ErrGalleryUnavailable
	}
	return s.signDownloadFunc(ctx, imageID)
}

func (s *stubGalleryService) ListImages(ctx context.Context, filter services.GalleryListFilter) (services.GalleryImagePage, error) {
	if s.listImagesFunc == nil {
		return services.GalleryImagePage{}, services.ErrGalleryUnavailable
	}
	return s.listImagesFunc(ctx, filter)
}

func (s *stubGalleryService) DeleteImage(ctx context.Context, cmd services.DeleteImageCommand) error {
	if s.deleteImageFunc == nil {
		return services.ErrGalleryUnavailable
	}
	return s.deleteImageFunc(ctx, cmd)
}

var _ services.GalleryService = (*stubGalleryService)(nil)

func newGalleryRouter(handler *GalleryHandlers) chi.Router {
	router := chi.NewRouter()
	router.Route("/gallery", handler.Routes)
	return router
}

func TestGalleryHandlersRequestUpload(t *testing.T) {
	expires := time.Date(2026, 2, 13, 10, 15, 0, 0, time.UTC)
	service := &stubGalleryService{
		requestUploadFunc: func(ctx context.Context, cmd services.GalleryUploadCommand) (services.SignedAssetResponse, error) {
			if cmd.FileName != "lookbook.jpg" || cmd.ContentType != "image/jpeg" {
				t.Fatalf("unexpected command: %+v", cmd)
			}
			if cmd.UploadedBy != "staff-1" {
				t.Fatalf("expected uploader staff-1, got %q", cmd.UploadedBy)
			}
			return services.SignedAssetResponse{
				ImageID:   "img-1",
				URL:       "https://storage.example.com/signed",
				Method:    http.MethodPut,
				ExpiresAt: expires,
				Headers:   map[string]string{"Content-Type": "image/jpeg"},
			}, nil
		},
	}

	router := newGalleryRouter(NewGalleryHandlers(nil, service))

	body := strings.NewReader(`{"file_name":"lookbook.jpg","content_type":"image/jpeg"}`)
	req := authenticated(httptest.NewRequest(http.MethodPost, "/gallery/uploads", body), "staff-1", auth.RoleStaff)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		Upload signedAssetPayload `json:"upload"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Upload.ImageID != "img-1" || resp.Upload.Method != http.MethodPut {
		t.Fatalf("unexpected upload payload: %+v", resp.Upload)
	}
}

func TestGalleryHandlersRequestUploadRejectsBadContentType(t *testing.T) {
	service := &stubGalleryService{
		requestUploadFunc: func(ctx context.Context, cmd services.GalleryUploadCommand) (services.SignedAssetResponse, error) {
			return services.SignedAssetResponse{}, services.ErrGalleryInvalidInput
		},
	}

	router := newGalleryRouter(NewGalleryHandlers(nil, service))

	body := strings.NewReader(`{"file_name":"script.sh","content_type":"text/x-shellscript"}`)
	req := authenticated(httptest.NewRequest(http.MethodPost, "/gallery/uploads", body), "staff-1", auth.RoleStaff)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestGalleryHandlersRequestUploadRateLimited(t *testing.T) {
	now := time.Date(2026, 2, 13, 10, 0, 0, 0, time.UTC)
	limiter := newSimpleRateLimiter(1, time.Minute, func() time.Time { return now })
	service := &stubGalleryService{
		requestUploadFunc: func(ctx context.Context, cmd services.GalleryUploadCommand) (services.SignedAssetResponse, error) {
			return services.SignedAssetResponse{ImageID: "img-1"}, nil
		},
	}

	router := newGalleryRouter(NewGalleryHandlers(nil, service, WithUploadRateLimiter(limiter)))

	send := func() *httptest.ResponseRecorder {
		body := strings.NewReader(`{"file_name":"a.jpg","content_type":"image/jpeg"}`)
		req := authenticated(httptest.NewRequest(http.MethodPost, "/gallery/uploads", body), "staff-1", auth.RoleStaff)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr
	}

	if rr := send(); rr.Code != http.StatusCreated {
		t.Fatalf("expected first upload to pass, got %d: %s", rr.Code, rr.Body.String())
	}
	if rr := send(); rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected status 429, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestGalleryHandlersListImages(t *testing.T) {
	created := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	service := &stubGalleryService{
		listImagesFunc: func(ctx context.Context, filter services.GalleryListFilter) (services.GalleryImagePage, error) {
			if filter.UploadedBy != "staff-1" || filter.Limit != 12 {
				t.Fatalf("unexpected filter: %+v", filter)
			}
			return services.GalleryImagePage{
				Images: []services.GalleryImage{
					{ID: "img-1", FileName: "lookbook.jpg", ContentType: "image/jpeg", StoragePath: "gallery/img-1", CreatedAt: created},
				},
				NextPageToken: "cursor-2",
			}, nil
		},
	}

	router := newGalleryRouter(NewGalleryHandlers(nil, service))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/gallery?uploaded_by=staff-1&page_size=12", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		Images        []galleryImagePayload `json:"images"`
		NextPageToken string                `json:"next_page_token"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Images) != 1 || resp.Images[0].ID != "img-1" {
		t.Fatalf("unexpected images payload: %+v", resp.Images)
	}
	if resp.NextPageToken != "cursor-2" {
		t.Fatalf("expected next page token surfaced, got %q", resp.NextPageToken)
	}
}

func TestGalleryHandlersListImagesRejectsBadPageSize(t *testing.T) {
	router := newGalleryRouter(NewGalleryHandlers(nil, &stubGalleryService{}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/gallery?page_size=zero", nil))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestGalleryHandlersSignDownloadNotFound(t *testing.T) {
	service := &stubGalleryService{
		signDownloadFunc: func(ctx context.Context, imageID string) (services.SignedAssetResponse, error) {
			return services.SignedAssetResponse{}, services.ErrGalleryNotFound
		},
	}

	router := newGalleryRouter(NewGalleryHandlers(nil, service))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/gallery/missing/download", nil))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestGalleryHandlersDeleteImage(t *testing.T) {
	deleted := false
	service := &stubGalleryService{
		deleteImageFunc: func(ctx context.Context, cmd services.DeleteImageCommand) error {
			if cmd.ImageID != "img-1" || cmd.ActorID != "admin-1" {
				t.Fatalf("unexpected command: %+v", cmd)
			}
			deleted = true
			return nil
		},
	}

	router := newGalleryRouter(NewGalleryHandlers(nil, service))

	req := authenticated(httptest.NewRequest(http.MethodDelete, "/gallery/img-1", nil), "admin-1", auth.RoleAdmin)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d: %s", rr.Code, rr.Body.String())
	}
	if !deleted {
		t.Fatalf("expected delete to be invoked")
	}
}

func TestGalleryHandlersDeleteImageRequiresIdentity(t *testing.T) {
	router := newGalleryRouter(NewGalleryHandlers(nil, &stubGalleryService{}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/gallery/img-1", nil))

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d: %s", rr.Code, rr.Body.String())
	}
}
