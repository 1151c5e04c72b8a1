package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/velvette/api/internal/platform/httpx"
	"github.com/velvette/api/internal/platform/pagination"
	"github.com/velvette/api/internal/services"
)

const maxAdminBodySize = 16 * 1024

// AdminHandlers covers the back-office order and user management surface.
// The admin router group enforces role checks before these run.
type AdminHandlers struct {
	orders services.OrderService
	users  services.UserService
}

// NewAdminHandlers constructs the back-office order/user handlers.
func NewAdminHandlers(orders services.OrderService, users services.UserService) *AdminHandlers {
	return &AdminHandlers{orders: orders, users: users}
}

// Routes wires the admin order and user endpoints onto the provided router.
func (h *AdminHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/orders", h.listOrders)
	r.Get("/orders/{orderID}", h.getOrder)
	r.Patch("/orders/{orderID}/status", h.updateOrderStatus)

	r.Get("/users", h.listUsers)
	r.Patch("/users/{userID}/active", h.setUserActive)
}

func (h *AdminHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	pager, err := pagination.FromRequest(r, pagination.Options{})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	filter := services.OrderListFilter{
		UserID:    strings.TrimSpace(query.Get("user_id")),
		Limit:     pager.PageSize,
		PageToken: pager.PageToken,
	}
	if statuses, err := parseStatusFilter(query["status"]); err == nil {
		filter.Statuses = statuses
	}
	if from, ok := parseTimeParam(query.Get("from")); ok {
		filter.From = &from
	}
	if to, ok := parseTimeParam(query.Get("to")); ok {
		filter.To = &to
	}

	page, err := h.orders.ListOrders(ctx, filter)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	payloads := make([]orderPayload, 0, len(page.Orders))
	for _, order := range page.Orders {
		payloads = append(payloads, buildOrderPayload(order))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"orders":          payloads,
		"next_page_token": page.NextPageToken,
	})
}

func (h *AdminHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(ctx, services.GetOrderCommand{
		OrderID:     chi.URLParam(r, "orderID"),
		RequesterID: identity.UID,
		Admin:       true,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"order": buildOrderPayload(order)})
}

type orderStatusRequest struct {
	Status string `json:"status"`
}

func (h *AdminHandlers) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req orderStatusRequest
	if err := decodeJSONBody(r, maxAdminBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	order, err := h.orders.UpdateStatus(ctx, services.OrderStatusCommand{
		OrderID: chi.URLParam(r, "orderID"),
		Status:  services.OrderStatus(strings.TrimSpace(req.Status)),
		ActorID: identity.UID,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"order": buildOrderPayload(order)})
}

func (h *AdminHandlers) listUsers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	pager, err := pagination.FromRequest(r, pagination.Options{})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	filter := services.UserListFilter{
		OnlyActive: query.Get("only_active") == "true",
		Limit:      pager.PageSize,
		PageToken:  pager.PageToken,
	}

	page, err := h.users.ListUsers(ctx, filter)
	if err != nil {
		writeUserError(ctx, w, err)
		return
	}
	payloads := make([]profilePayload, 0, len(page.Users))
	for _, user := range page.Users {
		payloads = append(payloads, buildProfilePayload(user))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"users":           payloads,
		"next_page_token": page.NextPageToken,
	})
}

type setUserActiveRequest struct {
	Active bool `json:"active"`
}

func (h *AdminHandlers) setUserActive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req setUserActiveRequest
	if err := decodeJSONBody(r, maxAdminBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	profile, err := h.users.SetUserActive(ctx, services.SetUserActiveCommand{
		UserID:  chi.URLParam(r, "userID"),
		Active:  req.Active,
		ActorID: identity.UID,
	})
	if err != nil {
		writeUserError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"user": buildProfilePayload(profile)})
}

// parseTimeParam accepts RFC 3339 timestamps and bare dates.
func parseTimeParam(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, true
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, true
	}
	return time.Time{}, false
}
