package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/velvette/api/internal/platform/auth"
	"github.com/velvette/api/internal/platform/httpx"
	"github.com/velvette/api/internal/platform/pagination"
	"github.com/velvette/api/internal/services"
)

const (
	maxGalleryBodySize = 16 * 1024

	defaultUploadRateLimit  = 30
	defaultUploadRateWindow = time.Minute
)

// GalleryHandlers exposes the shared image gallery: signed uploads and
// downloads plus metadata listings. Every route requires a staff or admin
// caller; uploads are additionally rate limited per caller to keep
// signed-URL churn bounded.
type GalleryHandlers struct {
	authn   *auth.Authenticator
	gallery services.GalleryService
	uploads rateLimiter
}

// GalleryOption customises gallery handler construction.
type GalleryOption func(*GalleryHandlers)

// WithUploadRateLimiter overrides the per-caller upload limiter.
func WithUploadRateLimiter(limiter rateLimiter) GalleryOption {
	return func(h *GalleryHandlers) {
		h.uploads = limiter
	}
}

// NewGalleryHandlers constructs the gallery handlers.
func NewGalleryHandlers(authn *auth.Authenticator, gallery services.GalleryService, opts ...GalleryOption) *GalleryHandlers {
	h := &GalleryHandlers{
		authn:   authn,
		gallery: gallery,
		uploads: newSimpleRateLimiter(defaultUploadRateLimit, defaultUploadRateWindow, time.Now),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes wires the gallery endpoints onto the provided router.
func (h *GalleryHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth(auth.RoleStaff, auth.RoleAdmin))
	}
	r.Get("/", h.listImages)
	r.Post("/uploads", h.requestUpload)
	r.Get("/{imageID}", h.getImage)
	r.Get("/{imageID}/download", h.signDownload)
	r.Delete("/{imageID}", h.deleteImage)
}

func (h *GalleryHandlers) listImages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	pager, err := pagination.FromRequest(r, pagination.Options{})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	filter := services.GalleryListFilter{
		UploadedBy: strings.TrimSpace(query.Get("uploaded_by")),
		Limit:      pager.PageSize,
		PageToken:  pager.PageToken,
	}

	page, err := h.gallery.ListImages(ctx, filter)
	if err != nil {
		writeGalleryError(ctx, w, err)
		return
	}
	payloads := make([]galleryImagePayload, 0, len(page.Images))
	for _, image := range page.Images {
		payloads = append(payloads, buildGalleryImagePayload(image))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"images":          payloads,
		"next_page_token": page.NextPageToken,
	})
}

type uploadRequest struct {
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
}

func (h *GalleryHandlers) requestUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	if h.uploads != nil && !h.uploads.Allow(identity.UID) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many upload requests, slow down", http.StatusTooManyRequests))
		return
	}

	var req uploadRequest
	if err := decodeJSONBody(r, maxGalleryBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	signed, err := h.gallery.RequestUpload(ctx, services.GalleryUploadCommand{
		FileName:    req.FileName,
		ContentType: req.ContentType,
		UploadedBy:  identity.UID,
	})
	if err != nil {
		writeGalleryError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, map[string]any{"upload": buildSignedAssetPayload(signed)})
}

func (h *GalleryHandlers) getImage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	image, err := h.gallery.GetImage(ctx, chi.URLParam(r, "imageID"))
	if err != nil {
		writeGalleryError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"image": buildGalleryImagePayload(image)})
}

func (h *GalleryHandlers) signDownload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	signed, err := h.gallery.SignDownload(ctx, chi.URLParam(r, "imageID"))
	if err != nil {
		writeGalleryError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"download": buildSignedAssetPayload(signed)})
}

func (h *GalleryHandlers) deleteImage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	err := h.gallery.DeleteImage(ctx, services.DeleteImageCommand{
		ImageID: chi.URLParam(r, "imageID"),
		ActorID: identity.UID,
	})
	if err != nil {
		writeGalleryError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeGalleryError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrGalleryInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrGalleryNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("image_not_found", "image not found", http.StatusNotFound))
	case errors.Is(err, services.ErrGalleryUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("unavailable", "gallery backend unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
	}
}
