package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/velvette/api/internal/platform/auth"
	"github.com/velvette/api/internal/platform/httpx"
	"github.com/velvette/api/internal/platform/pagination"
	"github.com/velvette/api/internal/services"
)

const maxOrderBodySize = 32 * 1024

// OrderHandlers exposes checkout and order history endpoints for customers.
type OrderHandlers struct {
	authn  *auth.Authenticator
	orders services.OrderService
}

// NewOrderHandlers constructs order handlers backed by the order service.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{
		authn:  authn,
		orders: orders,
	}
}

// Routes wires the /orders endpoints onto the provided router.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		// Checkout supports guests; reads require an account.
		r.With(h.authn.OptionalFirebaseAuth()).Post("/", h.placeOrder)
		r.With(h.authn.RequireFirebaseAuth()).Get("/", h.listOrders)
		r.With(h.authn.RequireFirebaseAuth()).Get("/{orderID}", h.getOrder)
		return
	}
	r.Post("/", h.placeOrder)
	r.Get("/", h.listOrders)
	r.Get("/{orderID}", h.getOrder)
}

type placeOrderRequest struct {
	AddressID     string          `json:"address_id"`
	Address       *addressRequest `json:"address"`
	PaymentMethod string          `json:"payment_method"`
	Note          string          `json:"note"`
	ShippingFee   *int64          `json:"shipping_fee"`
	Discount      *int64          `json:"discount"`
}

func (h *OrderHandlers) placeOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return
	}

	var req placeOrderRequest
	if err := decodeJSONBody(r, maxOrderBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	cmd := services.PlaceOrderCommand{
		OwnerID:       cartOwnerID(ctx),
		AddressID:     strings.TrimSpace(req.AddressID),
		PaymentMethod: services.PaymentMethod(strings.TrimSpace(req.PaymentMethod)),
		Note:          req.Note,
		ShippingFee:   req.ShippingFee,
		Discount:      req.Discount,
	}
	if identity, ok := auth.IdentityFromContext(ctx); ok && identity != nil {
		cmd.UserID = identity.UID
	}
	if req.Address != nil {
		addr := req.Address.toAddress()
		cmd.Address = &addr
	}

	order, err := h.orders.PlaceOrder(ctx, cmd)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, map[string]any{"order": buildOrderPayload(order)})
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	filter := services.OrderListFilter{UserID: identity.UID}
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "limit must be a non-negative integer", http.StatusBadRequest))
			return
		}
		filter.Limit = limit
	}
	if statuses, err := parseStatusFilter(r.URL.Query()["status"]); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	} else {
		filter.Statuses = statuses
	}

	if token := strings.TrimSpace(r.URL.Query().Get("page_token")); token != "" {
		if _, err := pagination.DecodeToken(token); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
			return
		}
		filter.PageToken = token
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

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(ctx, services.GetOrderCommand{
		OrderID:     chi.URLParam(r, "orderID"),
		RequesterID: identity.UID,
		Admin:       identity.HasRole(auth.RoleAdmin),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"order": buildOrderPayload(order)})
}

func parseStatusFilter(raw []string) ([]services.OrderStatus, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	statuses := make([]services.OrderStatus, 0, len(raw))
	for _, entry := range raw {
		for _, part := range strings.Split(entry, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			statuses = append(statuses, services.OrderStatus(part))
		}
	}
	return statuses, nil
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrOrderEmptyCart):
		httpx.WriteError(ctx, w, httpx.NewError("cart_empty", "cannot place an order with an empty cart", http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderPaymentFailed):
		httpx.WriteError(ctx, w, httpx.NewError("payment_failed", "payment setup was declined", http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrOrderUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "order operation failed", http.StatusInternalServerError))
	}
}
