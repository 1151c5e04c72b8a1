package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	domain "github.com/velvette/api/internal/domain"
	"github.com/velvette/api/internal/repositories"
)

type stubCatalogRepo struct {
	products    map[string]domain.Product
	collections map[string]domain.Collection
	outfits     map[string]domain.Outfit
	categories  map[string]domain.Category
	colors      map[string]domain.Color
	sizes       map[string]domain.Size

	upsertErr error
	deleted   []string
}

func newStubCatalogRepo() *stubCatalogRepo {
	return &stubCatalogRepo{
		products:    map[string]domain.Product{},
		collections: map[string]domain.Collection{},
		outfits:     map[string]domain.Outfit{},
		categories:  map[string]domain.Category{},
		colors:      map[string]domain.Color{},
		sizes:       map[string]domain.Size{},
	}
}

func (s *stubCatalogRepo) ListProducts(_ context.Context, filter repositories.ProductFilter) (domain.CursorPage[domain.Product], error) {
	var items []domain.Product
	for _, p := range s.products {
		if filter.OnlyPublished && !p.IsPublished {
			continue
		}
		items = append(items, p)
	}
	return domain.CursorPage[domain.Product]{Items: items}, nil
}

func (s *stubCatalogRepo) GetProduct(_ context.Context, productID string) (domain.Product, error) {
	p, ok := s.products[productID]
	if !ok {
		return domain.Product{}, repoStatusError{notFound: true}
	}
	return p, nil
}

func (s *stubCatalogRepo) GetPublishedProduct(_ context.Context, productID string) (domain.Product, error) {
	p, ok := s.products[productID]
	if !ok || !p.IsPublished {
		return domain.Product{}, repoStatusError{notFound: true}
	}
	return p, nil
}

func (s *stubCatalogRepo) UpsertProduct(_ context.Context, product domain.Product) (domain.Product, error) {
	if s.upsertErr != nil {
		return domain.Product{}, s.upsertErr
	}
	s.products[product.ID] = product
	return product, nil
}

func (s *stubCatalogRepo) DeleteProduct(_ context.Context, productID string) error {
	if _, ok := s.products[productID]; !ok {
		return repoStatusError{notFound: true}
	}
	delete(s.products, productID)
	s.deleted = append(s.deleted, productID)
	return nil
}

func (s *stubCatalogRepo) FindVariant(_ context.Context, variantID string) (domain.Variant, error) {
	for _, p := range s.products {
		for _, v := range p.Variants {
			if v.ID == variantID {
				return v, nil
			}
		}
	}
	return domain.Variant{}, repoStatusError{notFound: true}
}

func (s *stubCatalogRepo) ListCollections(context.Context, repositories.CollectionFilter) (domain.CursorPage[domain.Collection], error) {
	var items []domain.Collection
	for _, c := range s.collections {
		items = append(items, c)
	}
	return domain.CursorPage[domain.Collection]{Items: items}, nil
}

func (s *stubCatalogRepo) GetCollection(_ context.Context, collectionID string) (domain.Collection, error) {
	c, ok := s.collections[collectionID]
	if !ok {
		return domain.Collection{}, repoStatusError{notFound: true}
	}
	return c, nil
}

func (s *stubCatalogRepo) UpsertCollection(_ context.Context, collection domain.Collection) (domain.Collection, error) {
	if s.upsertErr != nil {
		return domain.Collection{}, s.upsertErr
	}
	s.collections[collection.ID] = collection
	return collection, nil
}

func (s *stubCatalogRepo) DeleteCollection(_ context.Context, collectionID string) error {
	delete(s.collections, collectionID)
	return nil
}

func (s *stubCatalogRepo) ListOutfits(context.Context, repositories.OutfitFilter) (domain.CursorPage[domain.Outfit], error) {
	var items []domain.Outfit
	for _, o := range s.outfits {
		items = append(items, o)
	}
	return domain.CursorPage[domain.Outfit]{Items: items}, nil
}

func (s *stubCatalogRepo) GetOutfit(_ context.Context, outfitID string) (domain.Outfit, error) {
	o, ok := s.outfits[outfitID]
	if !ok {
		return domain.Outfit{}, repoStatusError{notFound: true}
	}
	return o, nil
}

func (s *stubCatalogRepo) UpsertOutfit(_ context.Context, outfit domain.Outfit) (domain.Outfit, error) {
	s.outfits[outfit.ID] = outfit
	return outfit, nil
}

func (s *stubCatalogRepo) DeleteOutfit(_ context.Context, outfitID string) error {
	delete(s.outfits, outfitID)
	return nil
}

func (s *stubCatalogRepo) ListCategories(context.Context) ([]domain.Category, error) {
	var items []domain.Category
	for _, c := range s.categories {
		items = append(items, c)
	}
	return items, nil
}

func (s *stubCatalogRepo) GetCategory(_ context.Context, categoryID string) (domain.Category, error) {
	c, ok := s.categories[categoryID]
	if !ok {
		return domain.Category{}, repoStatusError{notFound: true}
	}
	return c, nil
}

func (s *stubCatalogRepo) UpsertCategory(_ context.Context, category domain.Category) (domain.Category, error) {
	s.categories[category.ID] = category
	return category, nil
}

func (s *stubCatalogRepo) DeleteCategory(_ context.Context, categoryID string) error {
	delete(s.categories, categoryID)
	return nil
}

func (s *stubCatalogRepo) ListColors(context.Context) ([]domain.Color, error) {
	var items []domain.Color
	for _, c := range s.colors {
		items = append(items, c)
	}
	return items, nil
}

func (s *stubCatalogRepo) UpsertColor(_ context.Context, color domain.Color) (domain.Color, error) {
	s.colors[color.ID] = color
	return color, nil
}

func (s *stubCatalogRepo) DeleteColor(_ context.Context, colorID string) error {
	delete(s.colors, colorID)
	return nil
}

func (s *stubCatalogRepo) ListSizes(context.Context) ([]domain.Size, error) {
	var items []domain.Size
	for _, sz := range s.sizes {
		items = append(items, sz)
	}
	return items, nil
}

func (s *stubCatalogRepo) UpsertSize(_ context.Context, size domain.Size) (domain.Size, error) {
	s.sizes[size.ID] = size
	return size, nil
}

func (s *stubCatalogRepo) DeleteSize(_ context.Context, sizeID string) error {
	delete(s.sizes, sizeID)
	return nil
}

func newTestCatalogService(t *testing.T, repo *stubCatalogRepo) CatalogService {
	t.Helper()
	counter := 0
	svc, err := NewCatalogService(CatalogServiceDeps{
		Repository: repo,
		Clock:      func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
		IDGenerator: func() string {
			counter++
			return fmt.Sprintf("id-%03d", counter)
		},
	})
	if err != nil {
		t.Fatalf("NewCatalogService returned error: %v", err)
	}
	return svc
}

func TestNewCatalogServiceValidatesDeps(t *testing.T) {
	if _, err := NewCatalogService(CatalogServiceDeps{Clock: time.Now}); !errors.Is(err, errCatalogRepositoryRequired) {
		t.Fatalf("expected repository validation error, got %v", err)
	}
	if _, err := NewCatalogService(CatalogServiceDeps{Repository: newStubCatalogRepo()}); !errors.Is(err, errCatalogClockRequired) {
		t.Fatalf("expected clock validation error, got %v", err)
	}
}

func TestCreateProductSanitisesDescription(t *testing.T) {
	repo := newStubCatalogRepo()
	svc := newTestCatalogService(t, repo)

	published := true
	product, err := svc.CreateProduct(context.Background(), UpsertProductCommand{
		Name:        "  Linen Shirt  ",
		Description: `<p class="lead">Soft linen.</p><script>alert(1)</script><img src="x" onerror="alert(2)" loading="lazy">`,
		IsPublished: &published,
		Variants: []Variant{
			{SKU: "LS-M", Color: "white", Size: "M", BasePrice: 450000},
		},
	})
	if err != nil {
		t.Fatalf("CreateProduct returned error: %v", err)
	}
	if product.Name != "Linen Shirt" {
		t.Fatalf("expected trimmed name, got %q", product.Name)
	}
	if strings.Contains(product.Description, "script") || strings.Contains(product.Description, "onerror") {
		t.Fatalf("description not sanitised: %q", product.Description)
	}
	if !strings.Contains(product.Description, `class="lead"`) {
		t.Fatalf("allowed class attribute stripped: %q", product.Description)
	}
	if !product.IsPublished {
		t.Fatal("expected product to be published")
	}
	if len(product.Variants) != 1 {
		t.Fatalf("expected 1 variant, got %d", len(product.Variants))
	}
	if product.Variants[0].ID == "" {
		t.Fatal("expected generated variant id")
	}
	if product.Variants[0].ProductID != product.ID {
		t.Fatalf("variant not bound to product: %q vs %q", product.Variants[0].ProductID, product.ID)
	}
}

func TestCreateProductRequiresNameAndVariants(t *testing.T) {
	svc := newTestCatalogService(t, newStubCatalogRepo())

	if _, err := svc.CreateProduct(context.Background(), UpsertProductCommand{Name: "   "}); !errors.Is(err, ErrCatalogInvalidInput) {
		t.Fatalf("expected invalid input for blank name, got %v", err)
	}
	if _, err := svc.CreateProduct(context.Background(), UpsertProductCommand{Name: "Shirt"}); !errors.Is(err, ErrCatalogInvalidInput) {
		t.Fatalf("expected invalid input for missing variants, got %v", err)
	}
}

func TestCreateProductRejectsBadVariants(t *testing.T) {
	svc := newTestCatalogService(t, newStubCatalogRepo())

	_, err := svc.CreateProduct(context.Background(), UpsertProductCommand{
		Name: "Shirt",
		Variants: []Variant{
			{ID: "v1", BasePrice: 100},
			{ID: "v1", BasePrice: 200},
		},
	})
	if !errors.Is(err, ErrCatalogInvalidInput) {
		t.Fatalf("expected duplicate variant rejection, got %v", err)
	}

	_, err = svc.CreateProduct(context.Background(), UpsertProductCommand{
		Name:     "Shirt",
		Variants: []Variant{{BasePrice: -1}},
	})
	if !errors.Is(err, ErrCatalogInvalidInput) {
		t.Fatalf("expected negative base price rejection, got %v", err)
	}

	negative := int64(-50)
	_, err = svc.CreateProduct(context.Background(), UpsertProductCommand{
		Name:     "Shirt",
		Variants: []Variant{{BasePrice: 100, SalePrice: &negative}},
	})
	if !errors.Is(err, ErrCatalogInvalidInput) {
		t.Fatalf("expected negative sale price rejection, got %v", err)
	}
}

func TestUpdateProductMergesFields(t *testing.T) {
	repo := newStubCatalogRepo()
	repo.products["p1"] = domain.Product{
		ID:          "p1",
		Name:        "Old Name",
		Description: "<p>old</p>",
		CategoryID:  "cat-1",
		IsPublished: false,
		Variants:    []domain.Variant{{ID: "v1", ProductID: "p1", BasePrice: 100}},
	}
	svc := newTestCatalogService(t, repo)

	published := true
	updated, err := svc.UpdateProduct(context.Background(), UpsertProductCommand{
		ID:          "p1",
		Name:        "New Name",
		IsPublished: &published,
	})
	if err != nil {
		t.Fatalf("UpdateProduct returned error: %v", err)
	}
	if updated.Name != "New Name" {
		t.Fatalf("name not updated: %q", updated.Name)
	}
	if updated.Description != "<p>old</p>" {
		t.Fatalf("description should be untouched, got %q", updated.Description)
	}
	if updated.CategoryID != "cat-1" {
		t.Fatalf("category should be untouched, got %q", updated.CategoryID)
	}
	if !updated.IsPublished {
		t.Fatal("expected publish flag to flip")
	}
	if len(updated.Variants) != 1 || updated.Variants[0].ID != "v1" {
		t.Fatalf("variants should be untouched, got %+v", updated.Variants)
	}
	if updated.UpdatedAt.IsZero() {
		t.Fatal("expected updated timestamp")
	}
}

func TestUpdateProductNotFound(t *testing.T) {
	svc := newTestCatalogService(t, newStubCatalogRepo())

	if _, err := svc.UpdateProduct(context.Background(), UpsertProductCommand{ID: "missing", Name: "x"}); !errors.Is(err, ErrCatalogNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestGetPublishedProductHidesDrafts(t *testing.T) {
	repo := newStubCatalogRepo()
	repo.products["draft"] = domain.Product{ID: "draft", Name: "Draft", IsPublished: false}
	svc := newTestCatalogService(t, repo)

	if _, err := svc.GetPublishedProduct(context.Background(), "draft"); !errors.Is(err, ErrCatalogNotFound) {
		t.Fatalf("expected drafts hidden from storefront, got %v", err)
	}
}

func TestFindVariantResolvesSnapshot(t *testing.T) {
	repo := newStubCatalogRepo()
	sale := int64(90000)
	repo.products["p1"] = domain.Product{
		ID: "p1",
		Variants: []domain.Variant{
			{ID: "v1", ProductID: "p1", SKU: "A", BasePrice: 120000, SalePrice: &sale},
		},
	}
	svc := newTestCatalogService(t, repo)

	variant, err := svc.FindVariant(context.Background(), "v1")
	if err != nil {
		t.Fatalf("FindVariant returned error: %v", err)
	}
	if variant.EffectiveUnitPrice() != 90000 {
		t.Fatalf("expected sale price to win, got %d", variant.EffectiveUnitPrice())
	}

	if _, err := svc.FindVariant(context.Background(), "missing"); !errors.Is(err, ErrCatalogNotFound) {
		t.Fatalf("expected not found for unknown variant, got %v", err)
	}
}

func TestCreateOutfitRequiresProducts(t *testing.T) {
	svc := newTestCatalogService(t, newStubCatalogRepo())

	if _, err := svc.CreateOutfit(context.Background(), UpsertOutfitCommand{Name: "Summer"}); !errors.Is(err, ErrCatalogInvalidInput) {
		t.Fatalf("expected invalid input for empty outfit, got %v", err)
	}
}

func TestUpdateCategoryRejectsSelfParent(t *testing.T) {
	repo := newStubCatalogRepo()
	repo.categories["c1"] = domain.Category{ID: "c1", Name: "Tops"}
	svc := newTestCatalogService(t, repo)

	self := "c1"
	if _, err := svc.UpdateCategory(context.Background(), UpsertCategoryCommand{ID: "c1", ParentID: &self}); !errors.Is(err, ErrCatalogInvalidInput) {
		t.Fatalf("expected self-parent rejection, got %v", err)
	}

	parent := "c0"
	updated, err := svc.UpdateCategory(context.Background(), UpsertCategoryCommand{ID: "c1", ParentID: &parent})
	if err != nil {
		t.Fatalf("UpdateCategory returned error: %v", err)
	}
	if updated.ParentID == nil || *updated.ParentID != "c0" {
		t.Fatalf("parent not applied: %+v", updated.ParentID)
	}
}

func TestUpsertColorGeneratesID(t *testing.T) {
	repo := newStubCatalogRepo()
	svc := newTestCatalogService(t, repo)

	color, err := svc.UpsertColor(context.Background(), UpsertColorCommand{Name: "Ivory", Hex: "#fffff0"})
	if err != nil {
		t.Fatalf("UpsertColor returned error: %v", err)
	}
	if color.ID == "" {
		t.Fatal("expected generated color id")
	}

	if _, err := svc.UpsertColor(context.Background(), UpsertColorCommand{Name: " "}); !errors.Is(err, ErrCatalogInvalidInput) {
		t.Fatalf("expected invalid input for blank color name, got %v", err)
	}
}

func TestCatalogTranslatesRepoFailures(t *testing.T) {
	repo := newStubCatalogRepo()
	repo.upsertErr = repoStatusError{unavailable: true}
	svc := newTestCatalogService(t, repo)

	_, err := svc.CreateProduct(context.Background(), UpsertProductCommand{
		Name:     "Shirt",
		Variants: []Variant{{BasePrice: 100}},
	})
	if !errors.Is(err, ErrCatalogUnavailable) {
		t.Fatalf("expected unavailable translation, got %v", err)
	}
}
