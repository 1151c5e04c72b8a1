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

	"github.com/velvette/api/internal/platform/auth"
	"github.com/velvette/api/internal/services"
)

type stubUserService struct {
	getProfileFunc    func(ctx context.Context, userID string) (services.UserProfile, error)
	upsertProfileFunc func(ctx context.Context, cmd services.UpsertProfileCommand) (services.UserProfile, error)
	listUsersFunc     func(ctx context.Context, filter services.UserListFilter) (services.UserPage, error)
	setActiveFunc     func(ctx context.Context, cmd services.SetUserActiveCommand) (services.UserProfile, error)
	listAddressesFunc func(ctx context.Context, userID string) ([]services.Address, error)
	upsertAddressFunc func(ctx context.Context, cmd services.UpsertAddressCommand) (services.Address, error)
	deleteAddressFunc func(ctx context.Context, cmd services.DeleteAddressCommand) error
}

func (s *stubUserService) GetProfile(ctx context.Context, userID string) (services.UserProfile, error) {
	if s.getProfileFunc == nil {
		return services.UserProfile{}, services.ErrUserUnavailable
	}
	return s.getProfileFunc(ctx, userID)
}

func (s *stubUserService) UpsertProfile(ctx context.Context, cmd services.UpsertProfileCommand) (services.UserProfile, error) {
	if s.upsertProfileFunc == nil {
		return services.UserProfile{}, services.ErrUserUnavailable
	}
	return s.upsertProfileFunc(ctx, cmd)
}

func (s *stubUserService) ListUsers(ctx context.Context, filter services.UserListFilter) (services.UserPage, error) {
	if s.listUsersFunc == nil {
		return services.UserPage{}, services.ErrUserUnavailable
	}
	return s.listUsersFunc(ctx, filter)
}

func (s *stubUserService) SetUserActive(ctx context.Context, cmd services.SetUserActiveCommand) (services.UserProfile, error) {
	if s.setActiveFunc == nil {
		return services.UserProfile{}, services.ErrUserUnavailable
	}
	return s.setActiveFunc(ctx, cmd)
}

func (s *stubUserService) ListAddresses(ctx context.Context, userID string) ([]services.Address, error) {
	if s.listAddressesFunc == nil {
		return nil, services.ErrUserUnavailable
	}
	return s.listAddressesFunc(ctx, userID)
}

func (s *stubUserService) UpsertAddress(ctx context.Context, cmd services.UpsertAddressCommand) (services.Address, error) {
	if s.upsertAddressFunc == nil {
		return services.Address{}, services.ErrUserUnavailable
	}
	return s.upsertAddressFunc(ctx, cmd)
}

func (s *stubUserService) DeleteAddress(ctx context.Context, cmd services.DeleteAddressCommand) error {
	if s.deleteAddressFunc == nil {
		return services.ErrUserUnavailable
	}
	return s.deleteAddressFunc(ctx, cmd)
}

var _ services.UserService = (*stubUserService)(nil)

func newMeRouter(handler *MeHandlers) chi.Router {
	router := chi.NewRouter()
	router.Route("/me", handler.Routes)
	return router
}

func authenticated(req *http.Request, uid string, roles ...string) *http.Request {
	return req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: uid, Roles: roles}))
}

func TestMeHandlersGetProfile(t *testing.T) {
	now := time.Date(2026, 1, 20, 8, 0, 0, 0, time.UTC)
	service := &stubUserService{
		getProfileFunc: func(ctx context.Context, userID string) (services.UserProfile, error) {
			if userID != "user-7" {
				t.Fatalf("unexpected user id %q", userID)
			}
			return services.UserProfile{
				ID:          "user-7",
				DisplayName: "Mai Nguyễn",
				Email:       "mai@example.com",
				Roles:       []string{"user"},
				IsActive:    true,
				CreatedAt:   now,
			}, nil
		},
	}

	router := newMeRouter(NewMeHandlers(nil, service))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authenticated(httptest.NewRequest(http.MethodGet, "/me", nil), "user-7"))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		Profile profilePayload `json:"profile"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Profile.ID != "user-7" || resp.Profile.DisplayName != "Mai Nguyễn" {
		t.Fatalf("unexpected profile payload: %+v", resp.Profile)
	}
}

func TestMeHandlersGetProfileRequiresIdentity(t *testing.T) {
	router := newMeRouter(NewMeHandlers(nil, &stubUserService{}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/me", nil))

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestMeHandlersUpdateProfile(t *testing.T) {
	service := &stubUserService{
		upsertProfileFunc: func(ctx context.Context, cmd services.UpsertProfileCommand) (services.UserProfile, error) {
			if cmd.UserID != "user-7" {
				t.Fatalf("unexpected user id %q", cmd.UserID)
			}
			if cmd.DisplayName == nil || *cmd.DisplayName != "Mai" {
				t.Fatalf("expected display name update, got %+v", cmd)
			}
			if cmd.Email != nil {
				t.Fatalf("expected untouched email, got %q", *cmd.Email)
			}
			return services.UserProfile{ID: "user-7", DisplayName: "Mai"}, nil
		},
	}

	router := newMeRouter(NewMeHandlers(nil, service))

	body := strings.NewReader(`{"display_name":"Mai"}`)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authenticated(httptest.NewRequest(http.MethodPatch, "/me", body), "user-7"))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestMeHandlersUpdateProfileInvalidInput(t *testing.T) {
	service := &stubUserService{
		upsertProfileFunc: func(ctx context.Context, cmd services.UpsertProfileCommand) (services.UserProfile, error) {
			return services.UserProfile{}, services.ErrUserInvalidInput
		},
	}

	router := newMeRouter(NewMeHandlers(nil, service))

	body := strings.NewReader(`{"display_name":"x"}`)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authenticated(httptest.NewRequest(http.MethodPatch, "/me", body), "user-7"))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestMeHandlersListAddresses(t *testing.T) {
	service := &stubUserService{
		listAddressesFunc: func(ctx context.Context, userID string) ([]services.Address, error) {
			return []services.Address{
				{ID: "addr-1", UserID: userID, Recipient: "Mai", City: "Hà Nội", IsDefault: true},
				{ID: "addr-2", UserID: userID, Recipient: "Mai", City: "Đà Nẵng"},
			}, nil
		},
	}

	router := newMeRouter(NewMeHandlers(nil, service))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authenticated(httptest.NewRequest(http.MethodGet, "/me/addresses", nil), "user-7"))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		Addresses []addressPayload `json:"addresses"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Addresses) != 2 || !resp.Addresses[0].IsDefault {
		t.Fatalf("unexpected addresses payload: %+v", resp.Addresses)
	}
}

func TestMeHandlersCreateAddress(t *testing.T) {
	service := &stubUserService{
		upsertAddressFunc: func(ctx context.Context, cmd services.UpsertAddressCommand) (services.Address, error) {
			if cmd.UserID != "user-7" || cmd.AddressID != "" {
				t.Fatalf("unexpected command: %+v", cmd)
			}
			if cmd.Address.City != "Hà Nội" || !cmd.Address.IsDefault {
				t.Fatalf("unexpected address: %+v", cmd.Address)
			}
			addr := cmd.Address
			addr.ID = "addr-9"
			return addr, nil
		},
	}

	router := newMeRouter(NewMeHandlers(nil, service))

	body := strings.NewReader(`{
		"recipient": "Mai",
		"phone": "0901234567",
		"line1": "12 Lý Thường Kiệt",
		"district": "Hoàn Kiếm",
		"city": "Hà Nội",
		"is_default": true
	}`)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authenticated(httptest.NewRequest(http.MethodPost, "/me/addresses", body), "user-7"))

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestMeHandlersUpdateAddressNotFound(t *testing.T) {
	service := &stubUserService{
		upsertAddressFunc: func(ctx context.Context, cmd services.UpsertAddressCommand) (services.Address, error) {
			if cmd.AddressID != "addr-404" {
				t.Fatalf("unexpected address id %q", cmd.AddressID)
			}
			return services.Address{}, services.ErrUserAddressNotFound
		},
	}

	router := newMeRouter(NewMeHandlers(nil, service))

	body := strings.NewReader(`{"recipient":"Mai","city":"Hà Nội"}`)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authenticated(httptest.NewRequest(http.MethodPut, "/me/addresses/addr-404", body), "user-7"))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestMeHandlersDeleteAddress(t *testing.T) {
	deleted := false
	service := &stubUserService{
		deleteAddressFunc: func(ctx context.Context, cmd services.DeleteAddressCommand) error {
			if cmd.UserID != "user-7" || cmd.AddressID != "addr-1" {
				t.Fatalf("unexpected command: %+v", cmd)
			}
			deleted = true
			return nil
		},
	}

	router := newMeRouter(NewMeHandlers(nil, service))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authenticated(httptest.NewRequest(http.MethodDelete, "/me/addresses/addr-1", nil), "user-7"))

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d: %s", rr.Code, rr.Body.String())
	}
	if !deleted {
		t.Fatalf("expected delete to be invoked")
	}
}
