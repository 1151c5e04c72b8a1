package storage

import "testing"

func TestBuildGalleryImagePath(t *testing.T) {
	path, err := BuildObjectPath(PurposeGalleryImage, PathParams{
		ImageID:  "img123",
		FileName: "lookbook.jpg",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := "gallery/img123/lookbook.jpg"
	if path != expected {
		t.Fatalf("expected %s, got %s", expected, path)
	}
}

func TestBuildProductImagePath(t *testing.T) {
	path, err := BuildObjectPath(PurposeProductImage, PathParams{
		ProductID: "prod456",
		FileName:  "front.webp",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := "catalog/products/prod456/front.webp"
	if path != expected {
		t.Fatalf("expected %s, got %s", expected, path)
	}
}

func TestBuildObjectPathRejectsInvalidSegment(t *testing.T) {
	_, err := BuildObjectPath(PurposeGalleryImage, PathParams{
		ImageID:  "../bad",
		FileName: "file.png",
	})
	if err == nil {
		t.Fatalf("expected error for invalid segment")
	}
}

func TestBuildObjectPathRejectsTraversalFileName(t *testing.T) {
	_, err := BuildObjectPath(PurposeAvatar, PathParams{
		UserID:   "user1",
		FileName: "..secret",
	})
	if err == nil {
		t.Fatalf("expected error for traversal filename")
	}
}
