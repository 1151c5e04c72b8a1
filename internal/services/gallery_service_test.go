package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	domain "github.com/velvette/api/internal/domain"
	pstorage "github.com/velvette/api/internal/platform/storage"
)

type stubGalleryRepo struct {
	images  map[string]domain.GalleryImage
	order   []string
	listErr error
}

func newStubGalleryRepo() *stubGalleryRepo {
	return &stubGalleryRepo{images: map[string]domain.GalleryImage{}}
}

func (s *stubGalleryRepo) Insert(_ context.Context, image domain.GalleryImage) (domain.GalleryImage, error) {
	s.images[image.ID] = image
	s.order = append(s.order, image.ID)
	return image, nil
}

func (s *stubGalleryRepo) FindByID(_ context.Context, imageID string) (domain.GalleryImage, error) {
	image, ok := s.images[imageID]
	if !ok {
		return domain.GalleryImage{}, repoStatusError{notFound: true}
	}
	return image, nil
}

func (s *stubGalleryRepo) List(_ context.Context, _ domain.Pagination) (domain.CursorPage[domain.GalleryImage], error) {
	if s.listErr != nil {
		return domain.CursorPage[domain.GalleryImage]{}, s.listErr
	}
	var items []domain.GalleryImage
	for _, id := range s.order {
		if image, ok := s.images[id]; ok {
			items = append(items, image)
		}
	}
	return domain.CursorPage[domain.GalleryImage]{Items: items}, nil
}

func (s *stubGalleryRepo) Delete(_ context.Context, imageID string) error {
	if _, ok := s.images[imageID]; !ok {
		return repoStatusError{notFound: true}
	}
	delete(s.images, imageID)
	return nil
}

type stubGalleryStorage struct {
	uploads   []string
	downloads []string
	deletes   []string
	deleteErr error
}

func (s *stubGalleryStorage) SignUpload(_ context.Context, object string, contentType string) (pstorage.SignedURLResult, error) {
	s.uploads = append(s.uploads, object)
	return pstorage.SignedURLResult{
		URL:       "https://storage.example.com/upload/" + object,
		Method:    "PUT",
		ExpiresAt: time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC),
		Headers:   map[string]string{"Content-Type": contentType},
	}, nil
}

func (s *stubGalleryStorage) SignDownload(_ context.Context, object string) (pstorage.SignedURLResult, error) {
	s.downloads = append(s.downloads, object)
	return pstorage.SignedURLResult{
		URL:       "https://storage.example.com/download/" + object,
		Method:    "GET",
		ExpiresAt: time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC),
	}, nil
}

func (s *stubGalleryStorage) DeleteObject(_ context.Context, object string) error {
	s.deletes = append(s.deletes, object)
	return s.deleteErr
}

func newTestGalleryService(t *testing.T, repo *stubGalleryRepo, storage *stubGalleryStorage) GalleryService {
	t.Helper()
	counter := 0
	svc, err := NewGalleryService(GalleryServiceDeps{
		Repository: repo,
		Storage:    storage,
		Clock:      func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
		IDGenerator: func() string {
			counter++
			return fmt.Sprintf("img-%03d", counter)
		},
	})
	if err != nil {
		t.Fatalf("NewGalleryService returned error: %v", err)
	}
	return svc
}

func TestRequestUploadSignsAndPersists(t *testing.T) {
	repo := newStubGalleryRepo()
	storage := &stubGalleryStorage{}
	svc := newTestGalleryService(t, repo, storage)

	resp, err := svc.RequestUpload(context.Background(), GalleryUploadCommand{
		FileName:    "lookbook.jpg",
		ContentType: "image/jpeg",
		UploadedBy:  "admin-1",
	})
	if err != nil {
		t.Fatalf("RequestUpload returned error: %v", err)
	}
	if resp.ImageID == "" {
		t.Fatal("expected image id")
	}
	if resp.Method != "PUT" {
		t.Fatalf("expected PUT upload, got %q", resp.Method)
	}
	if len(storage.uploads) != 1 || !strings.HasPrefix(storage.uploads[0], "gallery/") {
		t.Fatalf("unexpected object path: %v", storage.uploads)
	}
	stored, ok := repo.images[resp.ImageID]
	if !ok {
		t.Fatal("metadata record not persisted")
	}
	if stored.StoragePath != storage.uploads[0] {
		t.Fatalf("storage path mismatch: %q vs %q", stored.StoragePath, storage.uploads[0])
	}
}

func TestRequestUploadValidation(t *testing.T) {
	svc := newTestGalleryService(t, newStubGalleryRepo(), &stubGalleryStorage{})

	cases := []struct {
		name string
		cmd  GalleryUploadCommand
	}{
		{"missing file name", GalleryUploadCommand{ContentType: "image/png", UploadedBy: "a"}},
		{"bad content type", GalleryUploadCommand{FileName: "x.exe", ContentType: "application/octet-stream", UploadedBy: "a"}},
		{"missing uploader", GalleryUploadCommand{FileName: "x.png", ContentType: "image/png"}},
		{"traversal file name", GalleryUploadCommand{FileName: "../x.png", ContentType: "image/png", UploadedBy: "a"}},
	}
	for _, tc := range cases {
		if _, err := svc.RequestUpload(context.Background(), tc.cmd); !errors.Is(err, ErrGalleryInvalidInput) {
			t.Fatalf("%s: expected invalid input, got %v", tc.name, err)
		}
	}
}

func TestSignDownloadUsesStoredPath(t *testing.T) {
	repo := newStubGalleryRepo()
	repo.images["img-1"] = domain.GalleryImage{ID: "img-1", StoragePath: "gallery/img-1/a.png"}
	repo.order = append(repo.order, "img-1")
	storage := &stubGalleryStorage{}
	svc := newTestGalleryService(t, repo, storage)

	resp, err := svc.SignDownload(context.Background(), "img-1")
	if err != nil {
		t.Fatalf("SignDownload returned error: %v", err)
	}
	if resp.Method != "GET" {
		t.Fatalf("expected GET, got %q", resp.Method)
	}
	if len(storage.downloads) != 1 || storage.downloads[0] != "gallery/img-1/a.png" {
		t.Fatalf("unexpected download object: %v", storage.downloads)
	}

	if _, err := svc.SignDownload(context.Background(), "missing"); !errors.Is(err, ErrGalleryNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListImagesFiltersByUploader(t *testing.T) {
	repo := newStubGalleryRepo()
	repo.images["a"] = domain.GalleryImage{ID: "a", UploadedBy: "admin-1"}
	repo.images["b"] = domain.GalleryImage{ID: "b", UploadedBy: "admin-2"}
	repo.order = []string{"a", "b"}
	svc := newTestGalleryService(t, repo, &stubGalleryStorage{})

	page, err := svc.ListImages(context.Background(), GalleryListFilter{UploadedBy: "admin-2"})
	if err != nil {
		t.Fatalf("ListImages returned error: %v", err)
	}
	if len(page.Images) != 1 || page.Images[0].ID != "b" {
		t.Fatalf("expected only admin-2 uploads, got %+v", page.Images)
	}
}

func TestDeleteImageRemovesObject(t *testing.T) {
	repo := newStubGalleryRepo()
	repo.images["img-1"] = domain.GalleryImage{ID: "img-1", StoragePath: "gallery/img-1/a.png"}
	repo.order = []string{"img-1"}
	storage := &stubGalleryStorage{}
	svc := newTestGalleryService(t, repo, storage)

	if err := svc.DeleteImage(context.Background(), DeleteImageCommand{ImageID: "img-1", ActorID: "admin-1"}); err != nil {
		t.Fatalf("DeleteImage returned error: %v", err)
	}
	if _, ok := repo.images["img-1"]; ok {
		t.Fatal("metadata record should be gone")
	}
	if len(storage.deletes) != 1 || storage.deletes[0] != "gallery/img-1/a.png" {
		t.Fatalf("object not deleted: %v", storage.deletes)
	}

	if err := svc.DeleteImage(context.Background(), DeleteImageCommand{ImageID: "img-1"}); !errors.Is(err, ErrGalleryNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestDeleteImageToleratesObjectDeleteFailure(t *testing.T) {
	repo := newStubGalleryRepo()
	repo.images["img-1"] = domain.GalleryImage{ID: "img-1", StoragePath: "gallery/img-1/a.png"}
	repo.order = []string{"img-1"}
	storage := &stubGalleryStorage{deleteErr: errors.New("gone")}
	svc := newTestGalleryService(t, repo, storage)

	if err := svc.DeleteImage(context.Background(), DeleteImageCommand{ImageID: "img-1"}); err != nil {
		t.Fatalf("DeleteImage should tolerate object delete failure, got %v", err)
	}
}

func TestNormalizeSignedHeaders(t *testing.T) {
	got := normalizeSignedHeaders(map[string]string{
		" Content-Type ":   " image/png ",
		"x-goog-meta-user": "user-1",
		"  ":               "orphan",
		"":                 "orphan",
	})
	want := map[string]string{
		"Content-Type":     "image/png",
		"x-goog-meta-user": "user-1",
	}
	if len(got) != len(want) {
		t.Fatalf("unexpected header count: %v", got)
	}
	for name, value := range want {
		if got[name] != value {
			t.Fatalf("header %q: got %q want %q", name, got[name], value)
		}
	}

	if normalizeSignedHeaders(nil) != nil {
		t.Fatal("nil input should stay nil")
	}
	if normalizeSignedHeaders(map[string]string{" ": "x"}) != nil {
		t.Fatal("all-blank input should collapse to nil")
	}
}
