package firestore

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/velvette/api/internal/domain"
	pfirestore "github.com/velvette/api/internal/platform/firestore"
	"github.com/velvette/api/internal/platform/pagination"
	"github.com/velvette/api/internal/repositories"
)

const (
	productCollection    = "products"
	collectionCollection = "collections"
	outfitCollection     = "outfits"
	categoryCollection   = "categories"
	colorCollection      = "colors"
	sizeCollection       = "sizes"

	defaultCatalogPageSize = 20
	maxCatalogPageSize     = 100
)

// CatalogRepository stores the merchandised catalogue in Firestore. Variants
// are embedded in their product document; a variantIds field supports direct
// variant lookups for cart additions.
type CatalogRepository struct {
	products    *pfirestore.BaseRepository[productDocument]
	collections *pfirestore.BaseRepository[collectionDocument]
	outfits     *pfirestore.BaseRepository[outfitDocument]
	categories  *pfirestore.BaseRepository[categoryDocument]
	colors      *pfirestore.BaseRepository[colorDocument]
	sizes       *pfirestore.BaseRepository[sizeDocument]
	provider    *pfirestore.Provider
}

// NewCatalogRepository constructs a Firestore-backed catalog repository.
func NewCatalogRepository(provider *pfirestore.Provider) (*CatalogRepository, error) {
	if provider == nil {
		return nil, errors.New("catalog repository requires firestore provider")
	}
	return &CatalogRepository{
		products:    pfirestore.NewBaseRepository[productDocument](provider, productCollection, nil, nil),
		collections: pfirestore.NewBaseRepository[collectionDocument](provider, collectionCollection, nil, nil),
		outfits:     pfirestore.NewBaseRepository[outfitDocument](provider, outfitCollection, nil, nil),
		categories:  pfirestore.NewBaseRepository[categoryDocument](provider, categoryCollection, nil, nil),
		colors:      pfirestore.NewBaseRepository[colorDocument](provider, colorCollection, nil, nil),
		sizes:       pfirestore.NewBaseRepository[sizeDocument](provider, sizeCollection, nil, nil),
		provider:    provider,
	}, nil
}

// Products ---------------------------------------------------------------

func (r *CatalogRepository) ListProducts(ctx context.Context, filter repositories.ProductFilter) (domain.CursorPage[domain.Product], error) {
	pageSize := filter.Pagination.PageSize
	if pageSize <= 0 {
		pageSize = defaultCatalogPageSize
	}
	if pageSize > maxCatalogPageSize {
		pageSize = maxCatalogPageSize
	}

	docs, err := r.products.Query(ctx, func(query firestore.Query) firestore.Query {
		if filter.CategoryID != nil && strings.TrimSpace(*filter.CategoryID) != "" {
			query = query.Where("categoryId", "==", strings.TrimSpace(*filter.CategoryID))
		}
		if filter.CollectionID != nil && strings.TrimSpace(*filter.CollectionID) != "" {
			query = query.Where("collectionIds", "array-contains", strings.TrimSpace(*filter.CollectionID))
		}
		if filter.OnlyPublished {
			query = query.Where("isPublished", "==", true)
		}
		query = query.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Asc)
		if cursor, err := pagination.DecodeToken(filter.Pagination.PageToken); err == nil && len(cursor.StartAfter) > 0 {
			query = query.StartAfter(decodeCursorValues(cursor.StartAfter)...)
		}
		return query.Limit(pageSize + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.Product]{}, err
	}

	page := domain.CursorPage[domain.Product]{Items: make([]domain.Product, 0, len(docs))}
	for i, doc := range docs {
		if i == pageSize {
			last := docs[pageSize-1]
			token, err := pagination.EncodeToken(pagination.Cursor{
				StartAfter: []any{last.Data.CreatedAt.Format(time.RFC3339Nano), last.ID},
			})
			if err != nil {
				return domain.CursorPage[domain.Product]{}, err
			}
			page.NextPageToken = token
			break
		}
		page.Items = append(page.Items, doc.Data.toDomain(doc.ID))
	}
	return page, nil
}

func (r *CatalogRepository) GetProduct(ctx context.Context, productID string) (domain.Product, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.Product{}, errors.New("catalog repository: product id is required")
	}
	doc, err := r.products.Get(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	return doc.Data.toDomain(productID), nil
}

func (r *CatalogRepository) GetPublishedProduct(ctx context.Context, productID string) (domain.Product, error) {
	product, err := r.GetProduct(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	if !product.IsPublished {
		return domain.Product{}, pfirestore.WrapError("catalog.getPublishedProduct", errDocHidden)
	}
	return product, nil
}

func (r *CatalogRepository) UpsertProduct(ctx context.Context, product domain.Product) (domain.Product, error) {
	productID := strings.TrimSpace(product.ID)
	if productID == "" {
		return domain.Product{}, errors.New("catalog repository: product id is required")
	}
	doc := productDocumentFromDomain(product)
	if _, err := r.products.Set(ctx, productID, doc); err != nil {
		return domain.Product{}, err
	}
	return doc.toDomain(productID), nil
}

func (r *CatalogRepository) DeleteProduct(ctx context.Context, productID string) error {
	return r.deleteDoc(ctx, r.products.DocumentRef, productID, "catalog.deleteProduct")
}

// FindVariant locates the product embedding the variant and returns the
// variant snapshot.
func (r *CatalogRepository) FindVariant(ctx context.Context, variantID string) (domain.Variant, error) {
	variantID = strings.TrimSpace(variantID)
	if variantID == "" {
		return domain.Variant{}, errors.New("catalog repository: variant id is required")
	}
	docs, err := r.products.Query(ctx, func(query firestore.Query) firestore.Query {
		return query.Where("variantIds", "array-contains", variantID).Limit(1)
	})
	if err != nil {
		return domain.Variant{}, err
	}
	for _, doc := range docs {
		for _, variant := range doc.Data.Variants {
			if variant.ID == variantID {
				return variant.toDomain(doc.ID), nil
			}
		}
	}
	return domain.Variant{}, pfirestore.WrapError("catalog.findVariant", errDocMissing)
}

// Collections ------------------------------------------------------------

func (r *CatalogRepository) ListCollections(ctx context.Context, filter repositories.CollectionFilter) (domain.CursorPage[domain.Collection], error) {
	docs, err := r.collections.Query(ctx, func(query firestore.Query) firestore.Query {
		if filter.OnlyPublished {
			query = query.Where("isPublished", "==", true)
		}
		return query.OrderBy("createdAt", firestore.Desc)
	})
	if err != nil {
		return domain.CursorPage[domain.Collection]{}, err
	}
	page := domain.CursorPage[domain.Collection]{Items: make([]domain.Collection, 0, len(docs))}
	for _, doc := range docs {
		page.Items = append(page.Items, doc.Data.toDomain(doc.ID))
	}
	return page, nil
}

func (r *CatalogRepository) GetCollection(ctx context.Context, collectionID string) (domain.Collection, error) {
	collectionID = strings.TrimSpace(collectionID)
	if collectionID == "" {
		return domain.Collection{}, errors.New("catalog repository: collection id is required")
	}
	doc, err := r.collections.Get(ctx, collectionID)
	if err != nil {
		return domain.Collection{}, err
	}
	return doc.Data.toDomain(collectionID), nil
}

func (r *CatalogRepository) UpsertCollection(ctx context.Context, collection domain.Collection) (domain.Collection, error) {
	collectionID := strings.TrimSpace(collection.ID)
	if collectionID == "" {
		return domain.Collection{}, errors.New("catalog repository: collection id is required")
	}
	doc := collectionDocumentFromDomain(collection)
	if _, err := r.collections.Set(ctx, collectionID, doc); err != nil {
		return domain.Collection{}, err
	}
	return doc.toDomain(collectionID), nil
}

func (r *CatalogRepository) DeleteCollection(ctx context.Context, collectionID string) error {
	return r.deleteDoc(ctx, r.collections.DocumentRef, collectionID, "catalog.deleteCollection")
}

// Outfits ----------------------------------------------------------------

func (r *CatalogRepository) ListOutfits(ctx context.Context, filter repositories.OutfitFilter) (domain.CursorPage[domain.Outfit], error) {
	docs, err := r.outfits.Query(ctx, func(query firestore.Query) firestore.Query {
		if filter.OnlyPublished {
			query = query.Where("isPublished", "==", true)
		}
		return query.OrderBy("createdAt", firestore.Desc)
	})
	if err != nil {
		return domain.CursorPage[domain.Outfit]{}, err
	}
	page := domain.CursorPage[domain.Outfit]{Items: make([]domain.Outfit, 0, len(docs))}
	for _, doc := range docs {
		page.Items = append(page.Items, doc.Data.toDomain(doc.ID))
	}
	return page, nil
}

func (r *CatalogRepository) GetOutfit(ctx context.Context, outfitID string) (domain.Outfit, error) {
	outfitID = strings.TrimSpace(outfitID)
	if outfitID == "" {
		return domain.Outfit{}, errors.New("catalog repository: outfit id is required")
	}
	doc, err := r.outfits.Get(ctx, outfitID)
	if err != nil {
		return domain.Outfit{}, err
	}
	return doc.Data.toDomain(outfitID), nil
}

func (r *CatalogRepository) UpsertOutfit(ctx context.Context, outfit domain.Outfit) (domain.Outfit, error) {
	outfitID := strings.TrimSpace(outfit.ID)
	if outfitID == "" {
		return domain.Outfit{}, errors.New("catalog repository: outfit id is required")
	}
	doc := outfitDocumentFromDomain(outfit)
	if _, err := r.outfits.Set(ctx, outfitID, doc); err != nil {
		return domain.Outfit{}, err
	}
	return doc.toDomain(outfitID), nil
}

func (r *CatalogRepository) DeleteOutfit(ctx context.Context, outfitID string) error {
	return r.deleteDoc(ctx, r.outfits.DocumentRef, outfitID, "catalog.deleteOutfit")
}

// Categories -------------------------------------------------------------

func (r *CatalogRepository) ListCategories(ctx context.Context) ([]domain.Category, error) {
	docs, err := r.categories.Query(ctx, func(query firestore.Query) firestore.Query {
		return query.OrderBy("name", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	items := make([]domain.Category, 0, len(docs))
	for _, doc := range docs {
		items = append(items, doc.Data.toDomain(doc.ID))
	}
	return items, nil
}

func (r *CatalogRepository) GetCategory(ctx context.Context, categoryID string) (domain.Category, error) {
	categoryID = strings.TrimSpace(categoryID)
	if categoryID == "" {
		return domain.Category{}, errors.New("catalog repository: category id is required")
	}
	doc, err := r.categories.Get(ctx, categoryID)
	if err != nil {
		return domain.Category{}, err
	}
	return doc.Data.toDomain(categoryID), nil
}

func (r *CatalogRepository) UpsertCategory(ctx context.Context, category domain.Category) (domain.Category, error) {
	categoryID := strings.TrimSpace(category.ID)
	if categoryID == "" {
		return domain.Category{}, errors.New("catalog repository: category id is required")
	}
	doc := categoryDocumentFromDomain(category)
	if _, err := r.categories.Set(ctx, categoryID, doc); err != nil {
		return domain.Category{}, err
	}
	return doc.toDomain(categoryID), nil
}

func (r *CatalogRepository) DeleteCategory(ctx context.Context, categoryID string) error {
	return r.deleteDoc(ctx, r.categories.DocumentRef, categoryID, "catalog.deleteCategory")
}

// Colors and sizes -------------------------------------------------------

func (r *CatalogRepository) ListColors(ctx context.Context) ([]domain.Color, error) {
	docs, err := r.colors.Query(ctx, func(query firestore.Query) firestore.Query {
		return query.OrderBy("name", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	items := make([]domain.Color, 0, len(docs))
	for _, doc := range docs {
		items = append(items, doc.Data.toDomain(doc.ID))
	}
	return items, nil
}

func (r *CatalogRepository) UpsertColor(ctx context.Context, color domain.Color) (domain.Color, error) {
	colorID := strings.TrimSpace(color.ID)
	if colorID == "" {
		return domain.Color{}, errors.New("catalog repository: color id is required")
	}
	doc := colorDocument{
		Name:      color.Name,
		Hex:       color.Hex,
		CreatedAt: color.CreatedAt.UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if _, err := r.colors.Set(ctx, colorID, doc); err != nil {
		return domain.Color{}, err
	}
	return doc.toDomain(colorID), nil
}

func (r *CatalogRepository) DeleteColor(ctx context.Context, colorID string) error {
	return r.deleteDoc(ctx, r.colors.DocumentRef, colorID, "catalog.deleteColor")
}

func (r *CatalogRepository) ListSizes(ctx context.Context) ([]domain.Size, error) {
	docs, err := r.sizes.Query(ctx, func(query firestore.Query) firestore.Query {
		return query.OrderBy("sortIndex", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	items := make([]domain.Size, 0, len(docs))
	for _, doc := range docs {
		items = append(items, doc.Data.toDomain(doc.ID))
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].SortIndex < items[j].SortIndex })
	return items, nil
}

func (r *CatalogRepository) UpsertSize(ctx context.Context, size domain.Size) (domain.Size, error) {
	sizeID := strings.TrimSpace(size.ID)
	if sizeID == "" {
		return domain.Size{}, errors.New("catalog repository: size id is required")
	}
	doc := sizeDocument{
		Name:      size.Name,
		SortIndex: size.SortIndex,
		CreatedAt: size.CreatedAt.UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if _, err := r.sizes.Set(ctx, sizeID, doc); err != nil {
		return domain.Size{}, err
	}
	return doc.toDomain(sizeID), nil
}

func (r *CatalogRepository) DeleteSize(ctx context.Context, sizeID string) error {
	return r.deleteDoc(ctx, r.sizes.DocumentRef, sizeID, "catalog.deleteSize")
}

func (r *CatalogRepository) deleteDoc(ctx context.Context, refFn func(context.Context, string) (*firestore.DocumentRef, error), id, op string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return errors.New("catalog repository: document id is required")
	}
	ref, err := refFn(ctx, id)
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx); err != nil {
		return pfirestore.WrapError(op, err)
	}
	return nil
}

var (
	errDocMissing = status.Error(codes.NotFound, "document not found")
	errDocHidden  = status.Error(codes.NotFound, "document not published")
)

// Documents --------------------------------------------------------------

type productDocument struct {
	Name          string                  `firestore:"name"`
	Slug          string                  `firestore:"slug,omitempty"`
	Description   string                  `firestore:"description,omitempty"`
	CategoryID    string                  `firestore:"categoryId,omitempty"`
	CollectionIDs []string                `firestore:"collectionIds,omitempty"`
	Variants      []productVariantDocument `firestore:"variants"`
	VariantIDs    []string                `firestore:"variantIds"`
	ImagePaths    []string                `firestore:"imagePaths,omitempty"`
	IsPublished   bool                    `firestore:"isPublished"`
	CreatedAt     time.Time               `firestore:"createdAt"`
	UpdatedAt     time.Time               `firestore:"updatedAt"`
}

type productVariantDocument struct {
	ID        string `firestore:"id"`
	SKU       string `firestore:"sku,omitempty"`
	Color     string `firestore:"color,omitempty"`
	Size      string `firestore:"size,omitempty"`
	BasePrice int64  `firestore:"basePrice"`
	SalePrice *int64 `firestore:"salePrice,omitempty"`
	ImagePath string `firestore:"imagePath,omitempty"`
	Stock     int    `firestore:"stock"`
}

func productDocumentFromDomain(product domain.Product) productDocument {
	doc := productDocument{
		Name:          product.Name,
		Slug:          product.Slug,
		Description:   product.Description,
		CategoryID:    product.CategoryID,
		CollectionIDs: append([]string(nil), product.CollectionIDs...),
		Variants:      make([]productVariantDocument, 0, len(product.Variants)),
		VariantIDs:    make([]string, 0, len(product.Variants)),
		ImagePaths:    append([]string(nil), product.ImagePaths...),
		IsPublished:   product.IsPublished,
		CreatedAt:     product.CreatedAt.UTC(),
		UpdatedAt:     product.UpdatedAt.UTC(),
	}
	for _, variant := range product.Variants {
		variantDoc := productVariantDocument{
			ID:        variant.ID,
			SKU:       variant.SKU,
			Color:     variant.Color,
			Size:      variant.Size,
			BasePrice: variant.BasePrice,
			ImagePath: variant.ImagePath,
			Stock:     variant.Stock,
		}
		if variant.SalePrice != nil {
			price := *variant.SalePrice
			variantDoc.SalePrice = &price
		}
		doc.Variants = append(doc.Variants, variantDoc)
		doc.VariantIDs = append(doc.VariantIDs, variant.ID)
	}
	return doc
}

func (d productDocument) toDomain(id string) domain.Product {
	product := domain.Product{
		ID:            id,
		Name:          d.Name,
		Slug:          d.Slug,
		Description:   d.Description,
		CategoryID:    d.CategoryID,
		CollectionIDs: append([]string(nil), d.CollectionIDs...),
		Variants:      make([]domain.Variant, 0, len(d.Variants)),
		ImagePaths:    append([]string(nil), d.ImagePaths...),
		IsPublished:   d.IsPublished,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
	for _, variant := range d.Variants {
		product.Variants = append(product.Variants, variant.toDomain(id))
	}
	return product
}

func (d productVariantDocument) toDomain(productID string) domain.Variant {
	variant := domain.Variant{
		ID:        d.ID,
		ProductID: productID,
		SKU:       d.SKU,
		Color:     d.Color,
		Size:      d.Size,
		BasePrice: d.BasePrice,
		ImagePath: d.ImagePath,
		Stock:     d.Stock,
	}
	if d.SalePrice != nil {
		price := *d.SalePrice
		variant.SalePrice = &price
	}
	return variant
}

type collectionDocument struct {
	Name        string    `firestore:"name"`
	Slug        string    `firestore:"slug,omitempty"`
	Description string    `firestore:"description,omitempty"`
	ImagePath   string    `firestore:"imagePath,omitempty"`
	IsPublished bool      `firestore:"isPublished"`
	CreatedAt   time.Time `firestore:"createdAt"`
	UpdatedAt   time.Time `firestore:"updatedAt"`
}

func collectionDocumentFromDomain(collection domain.Collection) collectionDocument {
	return collectionDocument{
		Name:        collection.Name,
		Slug:        collection.Slug,
		Description: collection.Description,
		ImagePath:   collection.ImagePath,
		IsPublished: collection.IsPublished,
		CreatedAt:   collection.CreatedAt.UTC(),
		UpdatedAt:   collection.UpdatedAt.UTC(),
	}
}

func (d collectionDocument) toDomain(id string) domain.Collection {
	return domain.Collection{
		ID:          id,
		Name:        d.Name,
		Slug:        d.Slug,
		Description: d.Description,
		ImagePath:   d.ImagePath,
		IsPublished: d.IsPublished,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

type outfitDocument struct {
	Name        string    `firestore:"name"`
	Description string    `firestore:"description,omitempty"`
	ProductIDs  []string  `firestore:"productIds"`
	ImagePath   string    `firestore:"imagePath,omitempty"`
	IsPublished bool      `firestore:"isPublished"`
	CreatedAt   time.Time `firestore:"createdAt"`
	UpdatedAt   time.Time `firestore:"updatedAt"`
}

func outfitDocumentFromDomain(outfit domain.Outfit) outfitDocument {
	return outfitDocument{
		Name:        outfit.Name,
		Description: outfit.Description,
		ProductIDs:  append([]string(nil), outfit.ProductIDs...),
		ImagePath:   outfit.ImagePath,
		IsPublished: outfit.IsPublished,
		CreatedAt:   outfit.CreatedAt.UTC(),
		UpdatedAt:   outfit.UpdatedAt.UTC(),
	}
}

func (d outfitDocument) toDomain(id string) domain.Outfit {
	return domain.Outfit{
		ID:          id,
		Name:        d.Name,
		Description: d.Description,
		ProductIDs:  append([]string(nil), d.ProductIDs...),
		ImagePath:   d.ImagePath,
		IsPublished: d.IsPublished,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

type categoryDocument struct {
	Name      string    `firestore:"name"`
	Slug      string    `firestore:"slug,omitempty"`
	ParentID  *string   `firestore:"parentId,omitempty"`
	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

func categoryDocumentFromDomain(category domain.Category) categoryDocument {
	return categoryDocument{
		Name:      category.Name,
		Slug:      category.Slug,
		ParentID:  category.ParentID,
		CreatedAt: category.CreatedAt.UTC(),
		UpdatedAt: time.Now().UTC(),
	}
}

func (d categoryDocument) toDomain(id string) domain.Category {
	return domain.Category{
		ID:        id,
		Name:      d.Name,
		Slug:      d.Slug,
		ParentID:  d.ParentID,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

type colorDocument struct {
	Name      string    `firestore:"name"`
	Hex       string    `firestore:"hex,omitempty"`
	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

func (d colorDocument) toDomain(id string) domain.Color {
	return domain.Color{
		ID:        id,
		Name:      d.Name,
		Hex:       d.Hex,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

type sizeDocument struct {
	Name      string    `firestore:"name"`
	SortIndex int       `firestore:"sortIndex"`
	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

func (d sizeDocument) toDomain(id string) domain.Size {
	return domain.Size{
		ID:        id,
		Name:      d.Name,
		SortIndex: d.SortIndex,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

var _ repositories.CatalogRepository = (*CatalogRepository)(nil)
