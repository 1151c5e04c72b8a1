package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/velvette/api/internal/platform/httpx"
	"github.com/velvette/api/internal/platform/listview"
	"github.com/velvette/api/internal/repositories"
	"github.com/velvette/api/internal/services"
	"golang.org/x/text/language"
)

// PublicCatalogHandlers serves the storefront read surface: published
// products, collections, outfits, and lookup data. No authentication.
type PublicCatalogHandlers struct {
	catalog services.CatalogService

	productView *listview.View[services.Product]
}

// NewPublicCatalogHandlers constructs the storefront catalog handlers.
func NewPublicCatalogHandlers(catalog services.CatalogService) *PublicCatalogHandlers {
	productView := listview.New(
		listview.WithSearchKeys(
			func(p services.Product) string { return p.Name },
			func(p services.Product) string { return p.Description },
		),
		listview.WithSorter("name", listview.StringSorter(language.Vietnamese, func(p services.Product) string { return p.Name })),
		listview.WithSorter("price", listview.NumberSorter(func(p services.Product) int64 {
			lowest := int64(0)
			for i, variant := range p.Variants {
				price := variant.EffectiveUnitPrice()
				if i == 0 || price < lowest {
					lowest = price
				}
			}
			return lowest
		})),
		listview.WithSorter("created_at", listview.TimeSorter(func(p services.Product) *time.Time {
			if p.CreatedAt.IsZero() {
				return nil
			}
			t := p.CreatedAt
			return &t
		})),
	)

	return &PublicCatalogHandlers{
		catalog:     catalog,
		productView: productView,
	}
}

// Routes wires the /public endpoints onto the provided router.
func (h *PublicCatalogHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/products", h.listProducts)
	r.Get("/products/{productID}", h.getProduct)
	r.Get("/collections", h.listCollections)
	r.Get("/outfits", h.listOutfits)
	r.Get("/categories", h.listCategories)
	r.Get("/colors", h.listColors)
	r.Get("/sizes", h.listSizes)
}

func (h *PublicCatalogHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeCatalogUnavailable(ctx, w)
		return
	}

	filter := repositories.ProductFilter{OnlyPublished: true}
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

func (h *PublicCatalogHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeCatalogUnavailable(ctx, w)
		return
	}

	product, err := h.catalog.GetPublishedProduct(ctx, chi.URLParam(r, "productID"))
	if err != nil {
		writePublicCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"product": buildProductPayload(product)})
}

func (h *PublicCatalogHandlers) listCollections(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeCatalogUnavailable(ctx, w)
		return
	}

	collections, err := h.catalog.ListCollections(ctx)
	if err != nil {
		writePublicCatalogError(ctx, w, err)
		return
	}

	payloads := make([]collectionPayload, 0, len(collections))
	for _, collection := range collections {
		if !collection.IsPublished {
			continue
		}
		payloads = append(payloads, buildCollectionPayload(collection))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"collections": payloads})
}

func (h *PublicCatalogHandlers) listOutfits(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeCatalogUnavailable(ctx, w)
		return
	}

	outfits, err := h.catalog.ListOutfits(ctx)
	if err != nil {
		writePublicCatalogError(ctx, w, err)
		return
	}

	payloads := make([]outfitPayload, 0, len(outfits))
	for _, outfit := range outfits {
		if !outfit.IsPublished {
			continue
		}
		payloads = append(payloads, buildOutfitPayload(outfit))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"outfits": payloads})
}

func (h *PublicCatalogHandlers) listCategories(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeCatalogUnavailable(ctx, w)
		return
	}

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

func (h *PublicCatalogHandlers) listColors(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeCatalogUnavailable(ctx, w)
		return
	}

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

func (h *PublicCatalogHandlers) listSizes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeCatalogUnavailable(ctx, w)
		return
	}

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

// parseListQuery maps the shared list query parameters onto a listview query.
func parseListQuery(r *http.Request) listview.Query {
	query := r.URL.Query()
	q := listview.Query{
		Search:     strings.TrimSpace(query.Get("q")),
		Status:     strings.TrimSpace(query.Get("status")),
		SortField:  strings.TrimSpace(query.Get("sort")),
		Descending: strings.EqualFold(strings.TrimSpace(query.Get("order")), "desc"),
		Page:       1,
		PerPage:    listview.DefaultPerPage,
	}
	if raw := strings.TrimSpace(query.Get("page")); raw != "" {
		if page, err := strconv.Atoi(raw); err == nil && page > 0 {
			q.Page = page
		}
	}
	if raw := strings.TrimSpace(query.Get("per_page")); raw != "" {
		if perPage, err := strconv.Atoi(raw); err == nil && perPage > 0 && perPage <= 100 {
			q.PerPage = perPage
		}
	}
	return q
}

func writeCatalogUnavailable(ctx context.Context, w http.ResponseWriter) {
	httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog is unavailable", http.StatusServiceUnavailable))
}

func writePublicCatalogError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrCatalogInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCatalogNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("not_found", "catalog entry not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCatalogUnavailable):
		writeCatalogUnavailable(ctx, w)
	default:
		httpx.WriteError(ctx, w, httpx.NewError("catalog_error", "catalog operation failed", http.StatusInternalServerError))
	}
}
