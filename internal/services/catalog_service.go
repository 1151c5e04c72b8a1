package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"

	domain "github.com/velvette/api/internal/domain"
	"github.com/velvette/api/internal/repositories"
)

var (
	errCatalogRepositoryRequired = errors.New("catalog service: repository is required")
	errCatalogClockRequired      = errors.New("catalog service: clock is required")
)

// ErrCatalogInvalidInput indicates the caller supplied invalid input.
var ErrCatalogInvalidInput = errors.New("catalog service: invalid input")

// ErrCatalogNotFound indicates the requested catalog entity does not exist.
var ErrCatalogNotFound = errors.New("catalog service: not found")

// ErrCatalogUnavailable indicates the catalog backend cannot fulfil the request.
var ErrCatalogUnavailable = errors.New("catalog service: unavailable")

// CatalogServiceDeps wires the repository and collaborators for catalog operations.
type CatalogServiceDeps struct {
	Repository  repositories.CatalogRepository
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(context.Context, string, map[string]any)
}

type catalogService struct {
	repo      repositories.CatalogRepository
	now       func() time.Time
	newID     func() string
	logger    func(context.Context, string, map[string]any)
	sanitizer *bluemonday.Policy
}

// NewCatalogService constructs a CatalogService enforcing dependency validation.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Repository == nil {
		return nil, errCatalogRepositoryRequired
	}
	if deps.Clock == nil {
		return nil, errCatalogClockRequired
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}

	return &catalogService{
		repo:      deps.Repository,
		now:       func() time.Time { return deps.Clock().UTC() },
		newID:     idGen,
		logger:    logger,
		sanitizer: newDescriptionPolicy(),
	}, nil
}

// newDescriptionPolicy allows the rich-text subset used by product and
// collection descriptions while stripping scripts and event handlers.
func newDescriptionPolicy() *bluemonday.Policy {
	policy := bluemonday.UGCPolicy()
	policy.AllowElements("figure", "figcaption")
	policy.AllowAttrs("class").OnElements("figure", "figcaption", "p", "span")
	policy.AllowAttrs("loading").OnElements("img")
	policy.RequireNoFollowOnLinks(true)
	return policy
}

func (s *catalogService) sanitize(html string) string {
	return strings.TrimSpace(s.sanitizer.Sanitize(html))
}

// CreateProduct persists a new product with its variant matrix.
func (s *catalogService) CreateProduct(ctx context.Context, cmd UpsertProductCommand) (Product, error) {
	if s == nil || s.repo == nil {
		return Product{}, ErrCatalogUnavailable
	}

	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		return Product{}, fmt.Errorf("%w: name is required", ErrCatalogInvalidInput)
	}
	if len(cmd.Variants) == 0 {
		return Product{}, fmt.Errorf("%w: at least one variant is required", ErrCatalogInvalidInput)
	}

	now := s.now()
	product := domain.Product{
		ID:            s.newID(),
		Name:          name,
		Description:   s.sanitize(cmd.Description),
		CategoryID:    strings.TrimSpace(cmd.CategoryID),
		CollectionIDs: copyStrings(cmd.CollectionIDs),
		ImagePaths:    copyStrings(cmd.ImagePaths),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if cmd.IsPublished != nil {
		product.IsPublished = *cmd.IsPublished
	}

	variants, err := s.normaliseVariants(product.ID, cmd.Variants)
	if err != nil {
		return Product{}, err
	}
	product.Variants = variants

	stored, err := s.repo.UpsertProduct(ctx, product)
	if err != nil {
		return Product{}, s.translateRepoError(err)
	}
	s.logger(ctx, "catalog.product.created", map[string]any{"productId": stored.ID})
	return stored, nil
}

// UpdateProduct replaces the mutable fields of an existing product.
func (s *catalogService) UpdateProduct(ctx context.Context, cmd UpsertProductCommand) (Product, error) {
	if s == nil || s.repo == nil {
		return Product{}, ErrCatalogUnavailable
	}

	productID := strings.TrimSpace(cmd.ID)
	if productID == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}

	product, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return Product{}, s.translateRepoError(err)
	}

	if name := strings.TrimSpace(cmd.Name); name != "" {
		product.Name = name
	}
	if cmd.Description != "" {
		product.Description = s.sanitize(cmd.Description)
	}
	if categoryID := strings.TrimSpace(cmd.CategoryID); categoryID != "" {
		product.CategoryID = categoryID
	}
	if cmd.CollectionIDs != nil {
		product.CollectionIDs = copyStrings(cmd.CollectionIDs)
	}
	if cmd.ImagePaths != nil {
		product.ImagePaths = copyStrings(cmd.ImagePaths)
	}
	if cmd.IsPublished != nil {
		product.IsPublished = *cmd.IsPublished
	}
	if cmd.Variants != nil {
		variants, err := s.normaliseVariants(product.ID, cmd.Variants)
		if err != nil {
			return Product{}, err
		}
		product.Variants = variants
	}
	product.UpdatedAt = s.now()

	stored, err := s.repo.UpsertProduct(ctx, product)
	if err != nil {
		return Product{}, s.translateRepoError(err)
	}
	return stored, nil
}

func (s *catalogService) normaliseVariants(productID string, input []Variant) ([]domain.Variant, error) {
	variants := make([]domain.Variant, 0, len(input))
	seen := make(map[string]struct{}, len(input))
	for _, variant := range input {
		variant.ID = strings.TrimSpace(variant.ID)
		if variant.ID == "" {
			variant.ID = s.newID()
		}
		if _, dup := seen[variant.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate variant id %q", ErrCatalogInvalidInput, variant.ID)
		}
		seen[variant.ID] = struct{}{}
		variant.ProductID = productID
		variant.SKU = strings.TrimSpace(variant.SKU)
		if variant.BasePrice < 0 {
			return nil, fmt.Errorf("%w: base price must be non-negative", ErrCatalogInvalidInput)
		}
		if variant.SalePrice != nil && *variant.SalePrice < 0 {
			return nil, fmt.Errorf("%w: sale price must be non-negative", ErrCatalogInvalidInput)
		}
		variants = append(variants, variant)
	}
	return variants, nil
}

func (s *catalogService) GetProduct(ctx context.Context, productID string) (Product, error) {
	if s == nil || s.repo == nil {
		return Product{}, ErrCatalogUnavailable
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return Product{}, ErrCatalogInvalidInput
	}
	product, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return Product{}, s.translateRepoError(err)
	}
	return product, nil
}

// GetPublishedProduct reads a product visible to the storefront.
func (s *catalogService) GetPublishedProduct(ctx context.Context, productID string) (Product, error) {
	if s == nil || s.repo == nil {
		return Product{}, ErrCatalogUnavailable
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return Product{}, ErrCatalogInvalidInput
	}
	product, err := s.repo.GetPublishedProduct(ctx, productID)
	if err != nil {
		return Product{}, s.translateRepoError(err)
	}
	return product, nil
}

func (s *catalogService) ListProducts(ctx context.Context, filter repositories.ProductFilter) ([]Product, error) {
	if s == nil || s.repo == nil {
		return nil, ErrCatalogUnavailable
	}
	page, err := s.repo.ListProducts(ctx, filter)
	if err != nil {
		return nil, s.translateRepoError(err)
	}
	return page.Items, nil
}

func (s *catalogService) DeleteProduct(ctx context.Context, productID string) error {
	if s == nil || s.repo == nil {
		return ErrCatalogUnavailable
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return ErrCatalogInvalidInput
	}
	if err := s.repo.DeleteProduct(ctx, productID); err != nil {
		return s.translateRepoError(err)
	}
	return nil
}

// FindVariant resolves a variant snapshot for cart additions.
func (s *catalogService) FindVariant(ctx context.Context, variantID string) (Variant, error) {
	if s == nil || s.repo == nil {
		return Variant{}, ErrCatalogUnavailable
	}
	variantID = strings.TrimSpace(variantID)
	if variantID == "" {
		return Variant{}, ErrCatalogInvalidInput
	}
	variant, err := s.repo.FindVariant(ctx, variantID)
	if err != nil {
		return Variant{}, s.translateRepoError(err)
	}
	return variant, nil
}

func (s *catalogService) CreateCollection(ctx context.Context, cmd UpsertCollectionCommand) (Collection, error) {
	if s == nil || s.repo == nil {
		return Collection{}, ErrCatalogUnavailable
	}
	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		return Collection{}, fmt.Errorf("%w: name is required", ErrCatalogInvalidInput)
	}
	now := s.now()
	collection := domain.Collection{
		ID:          s.newID(),
		Name:        name,
		Description: s.sanitize(cmd.Description),
		ImagePath:   strings.TrimSpace(cmd.ImagePath),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	stored, err := s.repo.UpsertCollection(ctx, collection)
	if err != nil {
		return Collection{}, s.translateRepoError(err)
	}
	return stored, nil
}

func (s *catalogService) UpdateCollection(ctx context.Context, cmd UpsertCollectionCommand) (Collection, error) {
	if s == nil || s.repo == nil {
		return Collection{}, ErrCatalogUnavailable
	}
	collectionID := strings.TrimSpace(cmd.ID)
	if collectionID == "" {
		return Collection{}, fmt.Errorf("%w: collection id is required", ErrCatalogInvalidInput)
	}
	collection, err := s.repo.GetCollection(ctx, collectionID)
	if err != nil {
		return Collection{}, s.translateRepoError(err)
	}
	if name := strings.TrimSpace(cmd.Name); name != "" {
		collection.Name = name
	}
	if cmd.Description != "" {
		collection.Description = s.sanitize(cmd.Description)
	}
	if imagePath := strings.TrimSpace(cmd.ImagePath); imagePath != "" {
		collection.ImagePath = imagePath
	}
	collection.UpdatedAt = s.now()
	stored, err := s.repo.UpsertCollection(ctx, collection)
	if err != nil {
		return Collection{}, s.translateRepoError(err)
	}
	return stored, nil
}

func (s *catalogService) ListCollections(ctx context.Context) ([]Collection, error) {
	if s == nil || s.repo == nil {
		return nil, ErrCatalogUnavailable
	}
	page, err := s.repo.ListCollections(ctx, repositories.CollectionFilter{})
	if err != nil {
		return nil, s.translateRepoError(err)
	}
	return page.Items, nil
}

func (s *catalogService) DeleteCollection(ctx context.Context, collectionID string) error {
	if s == nil || s.repo == nil {
		return ErrCatalogUnavailable
	}
	collectionID = strings.TrimSpace(collectionID)
	if collectionID == "" {
		return ErrCatalogInvalidInput
	}
	if err := s.repo.DeleteCollection(ctx, collectionID); err != nil {
		return s.translateRepoError(err)
	}
	return nil
}

func (s *catalogService) CreateOutfit(ctx context.Context, cmd UpsertOutfitCommand) (Outfit, error) {
	if s == nil || s.repo == nil {
		return Outfit{}, ErrCatalogUnavailable
	}
	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		return Outfit{}, fmt.Errorf("%w: name is required", ErrCatalogInvalidInput)
	}
	if len(cmd.ProductIDs) == 0 {
		return Outfit{}, fmt.Errorf("%w: an outfit needs at least one product", ErrCatalogInvalidInput)
	}
	now := s.now()
	outfit := domain.Outfit{
		ID:         s.newID(),
		Name:       name,
		ImagePath:  strings.TrimSpace(cmd.ImagePath),
		ProductIDs: copyStrings(cmd.ProductIDs),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	stored, err := s.repo.UpsertOutfit(ctx, outfit)
	if err != nil {
		return Outfit{}, s.translateRepoError(err)
	}
	return stored, nil
}

func (s *catalogService) UpdateOutfit(ctx context.Context, cmd UpsertOutfitCommand) (Outfit, error) {
	if s == nil || s.repo == nil {
		return Outfit{}, ErrCatalogUnavailable
	}
	outfitID := strings.TrimSpace(cmd.ID)
	if outfitID == "" {
		return Outfit{}, fmt.Errorf("%w: outfit id is required", ErrCatalogInvalidInput)
	}
	outfit, err := s.repo.GetOutfit(ctx, outfitID)
	if err != nil {
		return Outfit{}, s.translateRepoError(err)
	}
	if name := strings.TrimSpace(cmd.Name); name != "" {
		outfit.Name = name
	}
	if imagePath := strings.TrimSpace(cmd.ImagePath); imagePath != "" {
		outfit.ImagePath = imagePath
	}
	if cmd.ProductIDs != nil {
		outfit.ProductIDs = copyStrings(cmd.ProductIDs)
	}
	outfit.UpdatedAt = s.now()
	stored, err := s.repo.UpsertOutfit(ctx, outfit)
	if err != nil {
		return Outfit{}, s.translateRepoError(err)
	}
	return stored, nil
}

func (s *catalogService) ListOutfits(ctx context.Context) ([]Outfit, error) {
	if s == nil || s.repo == nil {
		return nil, ErrCatalogUnavailable
	}
	page, err := s.repo.ListOutfits(ctx, repositories.OutfitFilter{})
	if err != nil {
		return nil, s.translateRepoError(err)
	}
	return page.Items, nil
}

func (s *catalogService) DeleteOutfit(ctx context.Context, outfitID string) error {
	if s == nil || s.repo == nil {
		return ErrCatalogUnavailable
	}
	outfitID = strings.TrimSpace(outfitID)
	if outfitID == "" {
		return ErrCatalogInvalidInput
	}
	if err := s.repo.DeleteOutfit(ctx, outfitID); err != nil {
		return s.translateRepoError(err)
	}
	return nil
}

func (s *catalogService) CreateCategory(ctx context.Context, cmd UpsertCategoryCommand) (Category, error) {
	if s == nil || s.repo == nil {
		return Category{}, ErrCatalogUnavailable
	}
	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		return Category{}, fmt.Errorf("%w: name is required", ErrCatalogInvalidInput)
	}
	category := domain.Category{
		ID:        s.newID(),
		Name:      name,
		ParentID:  cmd.ParentID,
		CreatedAt: s.now(),
	}
	stored, err := s.repo.UpsertCategory(ctx, category)
	if err != nil {
		return Category{}, s.translateRepoError(err)
	}
	return stored, nil
}

func (s *catalogService) UpdateCategory(ctx context.Context, cmd UpsertCategoryCommand) (Category, error) {
	if s == nil || s.repo == nil {
		return Category{}, ErrCatalogUnavailable
	}
	categoryID := strings.TrimSpace(cmd.ID)
	if categoryID == "" {
		return Category{}, fmt.Errorf("%w: category id is required", ErrCatalogInvalidInput)
	}
	category, err := s.repo.GetCategory(ctx, categoryID)
	if err != nil {
		return Category{}, s.translateRepoError(err)
	}
	if name := strings.TrimSpace(cmd.Name); name != "" {
		category.Name = name
	}
	if cmd.ParentID != nil {
		if strings.TrimSpace(*cmd.ParentID) == categoryID {
			return Category{}, fmt.Errorf("%w: category cannot parent itself", ErrCatalogInvalidInput)
		}
		category.ParentID = cmd.ParentID
	}
	stored, err := s.repo.UpsertCategory(ctx, category)
	if err != nil {
		return Category{}, s.translateRepoError(err)
	}
	return stored, nil
}

func (s *catalogService) ListCategories(ctx context.Context) ([]Category, error) {
	if s == nil || s.repo == nil {
		return nil, ErrCatalogUnavailable
	}
	categories, err := s.repo.ListCategories(ctx)
	if err != nil {
		return nil, s.translateRepoError(err)
	}
	return categories, nil
}

func (s *catalogService) DeleteCategory(ctx context.Context, categoryID string) error {
	if s == nil || s.repo == nil {
		return ErrCatalogUnavailable
	}
	categoryID = strings.TrimSpace(categoryID)
	if categoryID == "" {
		return ErrCatalogInvalidInput
	}
	if err := s.repo.DeleteCategory(ctx, categoryID); err != nil {
		return s.translateRepoError(err)
	}
	return nil
}

func (s *catalogService) UpsertColor(ctx context.Context, cmd UpsertColorCommand) (Color, error) {
	if s == nil || s.repo == nil {
		return Color{}, ErrCatalogUnavailable
	}
	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		return Color{}, fmt.Errorf("%w: name is required", ErrCatalogInvalidInput)
	}
	color := domain.Color{
		ID:        strings.TrimSpace(cmd.ID),
		Name:      name,
		Hex:       strings.TrimSpace(cmd.Hex),
		CreatedAt: s.now(),
	}
	if color.ID == "" {
		color.ID = s.newID()
	}
	stored, err := s.repo.UpsertColor(ctx, color)
	if err != nil {
		return Color{}, s.translateRepoError(err)
	}
	return stored, nil
}

func (s *catalogService) ListColors(ctx context.Context) ([]Color, error) {
	if s == nil || s.repo == nil {
		return nil, ErrCatalogUnavailable
	}
	colors, err := s.repo.ListColors(ctx)
	if err != nil {
		return nil, s.translateRepoError(err)
	}
	return colors, nil
}

func (s *catalogService) DeleteColor(ctx context.Context, colorID string) error {
	if s == nil || s.repo == nil {
		return ErrCatalogUnavailable
	}
	colorID = strings.TrimSpace(colorID)
	if colorID == "" {
		return ErrCatalogInvalidInput
	}
	if err := s.repo.DeleteColor(ctx, colorID); err != nil {
		return s.translateRepoError(err)
	}
	return nil
}

func (s *catalogService) UpsertSize(ctx context.Context, cmd UpsertSizeCommand) (Size, error) {
	if s == nil || s.repo == nil {
		return Size{}, ErrCatalogUnavailable
	}
	label := strings.TrimSpace(cmd.Label)
	if label == "" {
		return Size{}, fmt.Errorf("%w: label is required", ErrCatalogInvalidInput)
	}
	size := domain.Size{
		ID:        strings.TrimSpace(cmd.ID),
		Name:      label,
		CreatedAt: s.now(),
	}
	if size.ID == "" {
		size.ID = s.newID()
	}
	stored, err := s.repo.UpsertSize(ctx, size)
	if err != nil {
		return Size{}, s.translateRepoError(err)
	}
	return stored, nil
}

func (s *catalogService) ListSizes(ctx context.Context) ([]Size, error) {
	if s == nil || s.repo == nil {
		return nil, ErrCatalogUnavailable
	}
	sizes, err := s.repo.ListSizes(ctx)
	if err != nil {
		return nil, s.translateRepoError(err)
	}
	return sizes, nil
}

func (s *catalogService) DeleteSize(ctx context.Context, sizeID string) error {
	if s == nil || s.repo == nil {
		return ErrCatalogUnavailable
	}
	sizeID = strings.TrimSpace(sizeID)
	if sizeID == "" {
		return ErrCatalogInvalidInput
	}
	if err := s.repo.DeleteSize(ctx, sizeID); err != nil {
		return s.translateRepoError(err)
	}
	return nil
}

func (s *catalogService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		if repoErr.IsNotFound() {
			return ErrCatalogNotFound
		}
		return ErrCatalogUnavailable
	}
	return ErrCatalogUnavailable
}

func copyStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
