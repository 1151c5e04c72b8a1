package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/text/language"

	"github.com/velvette/api/internal/platform/listview"
	"github.com/velvette/api/internal/repositories"
	"github.com/velvette/api/internal/services"
)

const maxCatalogBodySize = 256 * 1024

// AdminCatalogHandlers exposes the back-office catalog CRUD surface. The
// admin router group enforces role checks before these run.
type AdminCatalogHandlers struct {
	catalog services.CatalogService

	productView *listview.View[services.Product]
}

// NewAdminCatalogHandlers constructs the back-office catalog handlers.
func NewAdminCatalogHandlers(catalog services.CatalogService) *AdminCatalogHandlers {
	productView := listview.New(
		listview.WithSearchKeys(
			func(p services.Product) string { return p.Name },
			func(p services.Product) string { return p.Slug },
		),
		listview.WithStatusKey(func(p services.Product) string {
			if p.IsPublished {
				return "published"
			}
			return "draft"
		}),
		listview.WithSorter("name", listview.StringSorter(language.Vietnamese, func(p services.Product) string { return p.Name })),
		listview.WithSorter("created_at", listview.TimeSorter(func(p services.Product) *time.Time {
			if p.CreatedAt.IsZero() {
				return nil
			}
			t := p.CreatedAt
			return &t
		})),
		listview.WithSorter("updated_at", listview.TimeSorter(func(p services.Product) *time.Time {
			if p.UpdatedAt.IsZero() {
				return nil
			}
			t := p.UpdatedAt
			return &t
		})),
	)

	return &AdminCatalogHandlers{
		catalog:     catalog,
		productView: productView,
	}
}

// Routes wires the catalog admin endpoints onto the provided router.
func (h *AdminCatalogHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/products", h.listProducts)
	r.Post("/products", h.createProduct)
	r.Get("/products/{productID}", h.getProduct)
	r.Put("/products/{productID}", h.updateProduct)
	r.Delete("/products/{productID}", h.deleteProduct)

	r.Get("/collections", h.listCollections)
	r.Post("/collections", h.createCollection)
	r.Put("/collections/{collectionID}", h.updateCollection)
	r.Delete("/collections/{collectionID}", h.deleteCollection)

	r.Get("/outfits", h.listOutfits)
	r.Post("/outfits", h.createOutfit)
	r.Put("/outfits/{outfitID}", h.updateOutfit)
	r.Delete("/outfits/{outfitID}", h.deleteOutfit)

	r.Get("/categories", h.listCategories)
	r.Post("/categories", h.createCategory)
	r.Put("/categories/{categoryID}", h.updateCategory)
	r.Delete("/categories/{categoryID}", h.deleteCategory)

	r.Get("/colors", h.listColors)
	r.Put("/colors", h.upsertColor)
	r.Delete("/colors/{colorID}", h.deleteColor)

	r.Get("/sizes", h.listSizes)
	r.Put("/sizes", h.upsertSize)
	r.Delete("/sizes/{sizeID}", h.deleteSize)
}

type productRequest struct {
	Name          string           `json:"name"`
	Description   string           `json:"description"`
	CategoryID    string           `json:"category_id"`
	CollectionIDs []string         `json:"collection_ids"`
	Variants      []variantRequest `json:"variants"`
	ImagePaths    []string         `json:"image_paths"`
	IsPublished   *bool            `json:"is_published"`
}

type variantRequest struct {
	ID        string `json:"id"`
	SKU       string `json:"sku"`
	Color     string `json:"color"`
	Size      string `json:"size"`
	BasePrice int64  `json:"base_price"`
	SalePrice *int64 `json:"sale_price"`
	ImagePath string `json:"image_path"`
	Stock     int    `json:"stock"`
}

func (r productRequest) toCommand(id string) services.UpsertProductCommand {
	cmd := services.UpsertProductCommand{
		ID:            id,
		Name:          r.Name,
		Description:   r.Description,
		CategoryID:    r.CategoryID,
		CollectionIDs: r.CollectionIDs,
		ImagePaths:    r.ImagePaths,
		IsPublished:   r.IsPublished,
	}
	for _, variant := range r.Variants {
		cmd.Variants = append(cmd.Variants, services.Variant{
			ID:        strings.TrimSpace(variant.ID),
			SKU:       strings.TrimSpace(variant.SKU),
			Color:     strings.TrimSpace(variant.Color),
			Size:      strings.TrimSpace(variant.Size),
			BasePrice: variant.BasePrice,
			SalePrice: variant.SalePrice,
			ImagePath: strings.TrimSpace(variant.ImagePath),
			Stock:     variant.Stock,
		})
	}
	return cmd
}

func (h *AdminCatalogHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	filter := repositories.ProductFilter{}
	query := r.URL.Query()
	if categoryID := strings.TrimSpace(query.Get("category_id")); categoryID != "" {
		filter.CategoryID = &categoryID
	}
	if collectionID := strings.TrimSpace(query.Get("collection_id")); collectionID != "" {
		filter.CollectionID = &collectionID
	}

	products, err := h.catalog.ListProducts(ctx, filter)
	if err != nil {
		writePublicCatalogError(ctx, w, err)
		return
	}

	page := h.productView.Apply(products, parseListQuery(r))
	payloads := make([]productPayload, 0, len(page.Items))
	for _, product := range page.Items {
		payloads = append(payloads, buildProductPayload(product))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"products":    payloads,
		"page":        page.Page,
		"per_page":    page.PerPage,
		"total_items": page.TotalItems,
		"total_pages": page.TotalPages,
	})
}

func (h *AdminCatalogHandlers) createProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req productRequest
	if err := decodeJSONBody(r, maxCatalogBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	product, err := h.catalog.CreateProduct(ctx, req.toCommand(""))
	if err != nil {
		writePublicCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, map[string]any{"product": buildProductPayload(product)})
}

func (h *AdminCatalogHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	product, err := h.catalog.GetProduct(ctx, chi.URLParam(r, "productID"))
	if err != nil {
		writePublicCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"product": buildProductPayload(product)})
}

func (h *AdminCatalogHandlers) updateProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req productRequest
	if err := decodeJSONBody(r, maxCatalogBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	product, err := h.catalog.UpdateProduct(ctx, req.toCommand(chi.URLParam(r, "productID")))
	if err != nil {
		writePublicCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"product": buildProductPayload(product)})
}

func (h *AdminCatalogHandlers) deleteProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.catalog.DeleteProduct(ctx, chi.URLParam(r, "productID")); err != nil {
		writePublicCatalogError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type collectionRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	ImagePath   string `json:"image_path"`
}

func (h *AdminCatalogHandlers) listCollections(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	collections, err := h.catalog.ListCollections(ctx)
	if err != nil {
		writePublicCatalogError(ctx, w, err)
		return
	}
	payloads := make([]collectionPayload, 0, len(collections))
	for _, collection := range collections {
		payloads = append(payloads, buildCollectionPayload(collection))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"collections": payloads})
}

func (h *AdminCatalogHandlers) createCollection(w http.ResponseWriter, r *http.Request) {
	h.upsertCollection(w, r, "")
}

func (h *AdminCatalogHandlers) updateCollection(w http.ResponseWriter, r *http.Request) {
	h.upsertCollection(w, r, chi.URLParam(r, "collectionID"))
}

func (h *AdminCatalogHandlers) upsertCollection(w http.ResponseWriter, r *http.Request, id string) {
	ctx := r.Context()
	var req collectionRequest
	if err := decodeJSONBody(r, maxCatalogBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	cmd := services.UpsertCollectionCommand{
		ID:          id,
		Name:        req.Name,
		Description: req.Description,
		ImagePath:   req.ImagePath,
	}

	var (
		collection services.Collection
		err        error
		status     = http.StatusOK
	)
	if id == "" {
		collection, err = h.catalog.CreateCollection(ctx, cmd)
		status = http.StatusCreated
	} else {
		collection, err = h.catalog.UpdateCollection(ctx, cmd)
	}
	if err != nil {
		writePublicCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, status, map[string]any{"collection": buildCollectionPayload(collection)})
}

func (h *AdminCatalogHandlers) deleteCollection(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.catalog.DeleteCollection(ctx, chi.URLParam(r, "collectionID")); err != nil {
		writePublicCatalogError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type outfitRequest struct {
	Name       string   `json:"name"`
	ImagePath  string   `json:"image_path"`
	ProductIDs []string `json:"product_ids"`
}

func (h *AdminCatalogHandlers) listOutfits(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	outfits, err := h.catalog.ListOutfits(ctx)
	if err != nil {
		writePublicCatalogError(ctx, w, err)
		return
	}
	payloads := make([]outfitPayload, 0, len(outfits))
	for _, outfit := range outfits {
		payloads = append(payloads, buildOutfitPayload(outfit))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"outfits": payloads})
}

func (h *AdminCatalogHandlers) createOutfit(w http.ResponseWriter, r *http.Request) {
	h.upsertOutfit(w, r, "")
}

func (h *AdminCatalogHandlers) updateOutfit(w http.ResponseWriter, r *http.Request) {
	h.upsertOutfit(w, r, chi.URLParam(r, "outfitID"))
}

func (h *AdminCatalogHandlers) upsertOutfit(w http.ResponseWriter, r *http.Request, id string) {
	ctx := r.Context()
	var req outfitRequest
	if err := decodeJSONBody(r, maxCatalogBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	cmd := services.UpsertOutfitCommand{
		ID:         id,
		Name:       req.Name,
		ImagePath:  req.ImagePath,
		ProductIDs: req.ProductIDs,
	}

	var (
		outfit services.Outfit
		err    error
		status = http.StatusOK
	)
	if id == "" {
		outfit, err = h.catalog.CreateOutfit(ctx, cmd)
		status = http.StatusCreated
	} else {
		outfit, err = h.catalog.UpdateOutfit(ctx, cmd)
	}
	if err != nil {
		writePublicCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, status, map[string]any{"outfit": buildOutfitPayload(outfit)})
}

func (h *AdminCatalogHandlers) deleteOutfit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.catalog.DeleteOutfit(ctx, chi.URLParam(r, "outfitID")); err != nil {
		writePublicCatalogError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type categoryRequest struct {
	Name     string  `json:"name"`
	ParentID *string `json:"parent_id"`
}

func (h *AdminCatalogHandlers) listCategories(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	categories, err := h.catalog.ListCategories(ctx)
	if err != nil {
		writePublicCatalogError(ctx, w, err)
		return
	}
	payloads := make([]categoryPayload, 0, len(categories))
	for _, category := range categories {
		payloads = append(payloads, buildCategoryPayload(category))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"categories": payloads})
}

func (h *AdminCatalogHandlers) createCategory(w http.ResponseWriter, r *http.Request) {
	h.upsertCategory(w, r, "")
}

func (h *AdminCatalogHandlers) updateCategory(w http.ResponseWriter, r *http.Request) {
	h.upsertCategory(w, r, chi.URLParam(r, "categoryID"))
}

func (h *AdminCatalogHandlers) upsertCategory(w http.ResponseWriter, r *http.Request, id string) {
	ctx := r.Context()
	var req categoryRequest
	if err := decodeJSONBody(r, maxCatalogBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	cmd := services.UpsertCategoryCommand{
		ID:       id,
		Name:     req.Name,
		ParentID: req.ParentID,
	}

	var (
		category services.Category
		err      error
		status   = http.StatusOK
	)
	if id == "" {
		category, err = h.catalog.CreateCategory(ctx, cmd)
		status = http.StatusCreated
	} else {
		category, err = h.catalog.UpdateCategory(ctx, cmd)
	}
	if err != nil {
		writePublicCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, status, map[string]any{"category": buildCategoryPayload(category)})
}

func (h *AdminCatalogHandlers) deleteCategory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.catalog.DeleteCategory(ctx, chi.URLParam(r, "categoryID")); err != nil {
		writePublicCatalogError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type colorRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Hex  string `json:"hex"`
}

func (h *AdminCatalogHandlers) listColors(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	colors, err := h.catalog.ListColors(ctx)
	if err != nil {
		writePublicCatalogError(ctx, w, err)
		return
	}
	payloads := make([]colorPayload, 0, len(colors))
	for _, color := range colors {
		payloads = append(payloads, colorPayload{ID: color.ID, Name: color.Name, Hex: color.Hex})
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"colors": payloads})
}

func (h *AdminCatalogHandlers) upsertColor(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req colorRequest
	if err := decodeJSONBody(r, maxCatalogBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	color, err := h.catalog.UpsertColor(ctx, services.UpsertColorCommand{
		ID:   req.ID,
		Name: req.Name,
		Hex:  req.Hex,
	})
	if err != nil {
		writePublicCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"color": colorPayload{ID: color.ID, Name: color.Name, Hex: color.Hex}})
}

func (h *AdminCatalogHandlers) deleteColor(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.catalog.DeleteColor(ctx, chi.URLParam(r, "colorID")); err != nil {
		writePublicCatalogError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type sizeRequest struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

func (h *AdminCatalogHandlers) listSizes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sizes, err := h.catalog.ListSizes(ctx)
	if err != nil {
		writePublicCatalogError(ctx, w, err)
		return
	}
	payloads := make([]sizePayload, 0, len(sizes))
	for _, size := range sizes {
		payloads = append(payloads, sizePayload{ID: size.ID, Name: size.Name, SortIndex: size.SortIndex})
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"sizes": payloads})
}

func (h *AdminCatalogHandlers) upsertSize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req sizeRequest
	if err := decodeJSONBody(r, maxCatalogBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	size, err := h.catalog.UpsertSize(ctx, services.UpsertSizeCommand{
		ID:    req.ID,
		Label: req.Label,
	})
	if err != nil {
		writePublicCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"size": sizePayload{ID: size.ID, Name: size.Name, SortIndex: size.SortIndex}})
}

func (h *AdminCatalogHandlers) deleteSize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.catalog.DeleteSize(ctx, chi.URLParam(r, "sizeID")); err != nil {
		writePublicCatalogError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
