package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/velvette/api/internal/domain"
	"github.com/velvette/api/internal/platform/auth"
	"github.com/velvette/api/internal/platform/pagination"
	"github.com/velvette/api/internal/services"
)

func newAdminRouter(handler *AdminHandlers) chi.Router {
	router := chi.NewRouter()
	router.Route("/admin", handler.Routes)
	return router
}

func TestAdminHandlersListOrdersForwardsFilters(t *testing.T) {
	now := time.Date(2026, 2, 12, 9, 0, 0, 0, time.UTC)
	service := &stubOrderService{
		listOrdersFunc: func(ctx context.Context, filter services.OrderListFilter) (services.OrderPage, error) {
			if filter.UserID != "user-7" {
				t.Fatalf("expected user filter, got %q", filter.UserID)
			}
			if len(filter.Statuses) != 1 || filter.Statuses[0] != domain.OrderStatusShipping {
				t.Fatalf("unexpected statuses %+v", filter.Statuses)
			}
			if filter.Limit != 25 {
				t.Fatalf("expected page size 25, got %d", filter.Limit)
			}
			if filter.From == nil || !filter.From.Equal(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)) {
				t.Fatalf("unexpected from bound %v", filter.From)
			}
			if filter.To == nil {
				t.Fatalf("expected to bound")
			}
			return services.OrderPage{
				Orders:        []services.Order{testOrderFixture(now)},
				NextPageToken: "cursor-2",
			}, nil
		},
	}

	router := newAdminRouter(NewAdminHandlers(service, &stubUserService{}))

	target := "/admin/orders?user_id=user-7&status=shipping&page_size=25&from=2026-02-01&to=2026-02-12T00:00:00Z"
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		Orders        []orderPayload `json:"orders"`
		NextPageToken string         `json:"next_page_token"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Orders) != 1 {
		t.Fatalf("expected one order, got %d", len(resp.Orders))
	}
	if resp.NextPageToken != "cursor-2" {
		t.Fatalf("expected next page token surfaced, got %q", resp.NextPageToken)
	}
}

func TestAdminHandlersListOrdersForwardsPageToken(t *testing.T) {
	now := time.Date(2026, 2, 12, 9, 0, 0, 0, time.UTC)
	token, err := pagination.EncodeToken(pagination.Cursor{StartAfter: []any{"2026-02-11", "order-40"}})
	if err != nil {
		t.Fatalf("EncodeToken returned error: %v", err)
	}

	service := &stubOrderService{
		listOrdersFunc: func(ctx context.Context, filter services.OrderListFilter) (services.OrderPage, error) {
			if filter.PageToken != token {
				t.Fatalf("expected page token forwarded, got %q", filter.PageToken)
			}
			return services.OrderPage{Orders: []services.Order{testOrderFixture(now)}}, nil
		},
	}

	router := newAdminRouter(NewAdminHandlers(service, &stubUserService{}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin/orders?page_token="+token, nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestAdminHandlersListOrdersRejectsBadPageToken(t *testing.T) {
	router := newAdminRouter(NewAdminHandlers(&stubOrderService{}, &stubUserService{}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin/orders?page_token=%25%25bad", nil))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestAdminHandlersUpdateOrderStatus(t *testing.T) {
	now := time.Date(2026, 2, 12, 9, 0, 0, 0, time.UTC)
	service := &stubOrderService{
		updateStatusFunc: func(ctx context.Context, cmd services.OrderStatusCommand) (services.Order, error) {
			if cmd.OrderID != "order-41" {
				t.Fatalf("unexpected order id %q", cmd.OrderID)
			}
			if cmd.Status != domain.OrderStatusShipping {
				t.Fatalf("unexpected status %q", cmd.Status)
			}
			if cmd.ActorID != "staff-1" {
				t.Fatalf("expected actor staff-1, got %q", cmd.ActorID)
			}
			order := testOrderFixture(now)
			order.Status = cmd.Status
			return order, nil
		},
	}

	router := newAdminRouter(NewAdminHandlers(service, &stubUserService{}))

	body := strings.NewReader(`{"status":"shipping"}`)
	req := httptest.NewRequest(http.MethodPatch, "/admin/orders/order-41/status", body)
	req = authenticated(req, "staff-1", auth.RoleStaff)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		Order orderPayload `json:"order"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Order.Status != "shipping" {
		t.Fatalf("expected shipping status, got %q", resp.Order.Status)
	}
}

func TestAdminHandlersUpdateOrderStatusInvalidTransition(t *testing.T) {
	service := &stubOrderService{
		updateStatusFunc: func(ctx context.Context, cmd services.OrderStatusCommand) (services.Order, error) {
			return services.Order{}, services.ErrOrderInvalidInput
		},
	}

	router := newAdminRouter(NewAdminHandlers(service, &stubUserService{}))

	body := strings.NewReader(`{"status":"bogus"}`)
	req := authenticated(httptest.NewRequest(http.MethodPatch, "/admin/orders/order-41/status", body), "staff-1", auth.RoleStaff)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestAdminHandlersUpdateOrderStatusRequiresIdentity(t *testing.T) {
	router := newAdminRouter(NewAdminHandlers(&stubOrderService{}, &stubUserService{}))

	body := strings.NewReader(`{"status":"shipping"}`)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPatch, "/admin/orders/order-41/status", body))

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestAdminHandlersListUsers(t *testing.T) {
	service := &stubUserService{
		listUsersFunc: func(ctx context.Context, filter services.UserListFilter) (services.UserPage, error) {
			if !filter.OnlyActive {
				t.Fatalf("expected only_active filter")
			}
			if filter.Limit != 50 {
				t.Fatalf("expected page size 50, got %d", filter.Limit)
			}
			return services.UserPage{
				Users: []services.UserProfile{
					{ID: "user-7", DisplayName: "Mai", IsActive: true},
				},
				NextPageToken: "cursor-9",
			}, nil
		},
	}

	router := newAdminRouter(NewAdminHandlers(&stubOrderService{}, service))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin/users?only_active=true&page_size=50", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		Users         []profilePayload `json:"users"`
		NextPageToken string           `json:"next_page_token"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Users) != 1 || resp.Users[0].ID != "user-7" {
		t.Fatalf("unexpected users payload: %+v", resp.Users)
	}
	if resp.NextPageToken != "cursor-9" {
		t.Fatalf("expected next page token surfaced, got %q", resp.NextPageToken)
	}
}

func TestAdminHandlersListUsersClampsPageSize(t *testing.T) {
	service := &stubUserService{
		listUsersFunc: func(ctx context.Context, filter services.UserListFilter) (services.UserPage, error) {
			if filter.Limit != pagination.DefaultMaxPageSize {
				t.Fatalf("expected clamped page size %d, got %d", pagination.DefaultMaxPageSize, filter.Limit)
			}
			return services.UserPage{}, nil
		},
	}

	router := newAdminRouter(NewAdminHandlers(&stubOrderService{}, service))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin/users?page_size=9999", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestAdminHandlersSetUserActive(t *testing.T) {
	service := &stubUserService{
		setActiveFunc: func(ctx context.Context, cmd services.SetUserActiveCommand) (services.UserProfile, error) {
			if cmd.UserID != "user-7" || cmd.Active {
				t.Fatalf("unexpected command: %+v", cmd)
			}
			if cmd.ActorID != "admin-1" {
				t.Fatalf("expected actor admin-1, got %q", cmd.ActorID)
			}
			return services.UserProfile{ID: "user-7", IsActive: false}, nil
		},
	}

	router := newAdminRouter(NewAdminHandlers(&stubOrderService{}, service))

	body := strings.NewReader(`{"active":false}`)
	req := authenticated(httptest.NewRequest(http.MethodPatch, "/admin/users/user-7/active", body), "admin-1", auth.RoleAdmin)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestAdminHandlersSetUserActiveNotFound(t *testing.T) {
	service := &stubUserService{
		setActiveFunc: func(ctx context.Context, cmd services.SetUserActiveCommand) (services.UserProfile, error) {
			return services.UserProfile{}, services.ErrUserNotFound
		},
	}

	router := newAdminRouter(NewAdminHandlers(&stubOrderService{}, service))

	body := strings.NewReader(`{"active":true}`)
	req := authenticated(httptest.NewRequest(http.MethodPatch, "/admin/users/ghost/active", body), "admin-1", auth.RoleAdmin)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d: %s", rr.Code, rr.Body.String())
	}
}
