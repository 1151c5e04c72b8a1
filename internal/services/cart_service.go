package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/velvette/api/internal/domain"
	"github.com/velvette/api/internal/repositories"
)

var (
	errCartGuestStoreRequired = errors.New("cart service: guest store is required")
	errCartClockRequired      = errors.New("cart service: clock is required")
)

// ErrCartInvalidInput indicates the caller supplied invalid input.
var ErrCartInvalidInput = errors.New("cart service: invalid input")

// ErrCartUnavailable indicates the cart service cannot fulfil the request due to missing dependencies or backend issues.
var ErrCartUnavailable = errors.New("cart service: unavailable")

// ErrCartNotFound indicates the requested cart does not exist.
var ErrCartNotFound = errors.New("cart service: not found")

// CartSyncQueue mirrors authenticated cart mutations to the remote table.
// Enqueue operations never fail; delivery is retried by the drain worker.
type CartSyncQueue interface {
	EnqueueUpsert(ownerID string, item CartItem)
	EnqueueDelete(ownerID, variantID string)
	EnqueueReplace(ownerID string, items []CartItem)
	EnqueueClear(ownerID string)
	Status() SyncStatus
}

// CartServiceDeps wires the stores and sync queue for cart operations.
type CartServiceDeps struct {
	Remote      repositories.CartRepository
	GuestStore  repositories.GuestCartStore
	Sync        CartSyncQueue
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(context.Context, string, map[string]any)
}

type cartService struct {
	remote repositories.CartRepository
	guest  repositories.GuestCartStore
	sync   CartSyncQueue
	newID  func() string
	now    func() time.Time
	logger func(context.Context, string, map[string]any)

	mu    sync.Mutex
	carts map[string]domain.Cart
}

// NewCartService constructs a CartService enforcing dependency validation.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.GuestStore == nil {
		return nil, errCartGuestStoreRequired
	}
	if deps.Clock == nil {
		return nil, errCartClockRequired
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}

	service := &cartService{
		remote: deps.Remote,
		guest:  deps.GuestStore,
		sync:   deps.Sync,
		newID:  idGen,
		now:    func() time.Time { return deps.Clock().UTC() },
		logger: logger,
		carts:  make(map[string]domain.Cart),
	}
	return service, nil
}

// GetCart loads the owner's cart, creating an empty one when absent.
func (s *cartService) GetCart(ctx context.Context, ownerID string) (Cart, error) {
	if s == nil {
		return Cart{}, ErrCartUnavailable
	}

	owner := strings.TrimSpace(ownerID)
	if owner == "" {
		return Cart{}, ErrCartInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cart, err := s.loadCartLocked(ctx, owner)
	if err != nil {
		return Cart{}, err
	}
	return cloneCart(cart), nil
}

// AddItem merges the variant into the cart: an existing line for the same
// variant ID has its quantity incremented, otherwise a new line is appended.
func (s *cartService) AddItem(ctx context.Context, cmd AddCartItemCommand) (Cart, error) {
	if s == nil {
		return Cart{}, ErrCartUnavailable
	}

	owner := strings.TrimSpace(cmd.OwnerID)
	if owner == "" {
		return Cart{}, ErrCartInvalidInput
	}
	variantID := strings.TrimSpace(cmd.Variant.ID)
	if variantID == "" {
		return Cart{}, fmt.Errorf("%w: variant id is required", ErrCartInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cart, err := s.loadCartLocked(ctx, owner)
	if err != nil {
		return Cart{}, err
	}

	now := s.now()
	idx := indexOfVariant(cart.Items, variantID)
	if idx >= 0 {
		cart.Items[idx].Quantity += cmd.Quantity
		ts := now
		cart.Items[idx].UpdatedAt = &ts
	} else {
		cart.Items = append(cart.Items, domain.CartItem{
			ID:        s.newID(),
			Variant:   cmd.Variant,
			Quantity:  cmd.Quantity,
			CreatedAt: now,
		})
		idx = len(cart.Items) - 1
	}
	cart.TotalPrice = cartTotal(cart.Items)
	cart.UpdatedAt = now

	s.persistLocked(ctx, cart)
	item := cart.Items[idx]
	s.mirrorLocked(cart, func() {
		s.sync.EnqueueUpsert(owner, item)
	})

	s.carts[owner] = cart
	return cloneCart(cart), nil
}

// RemoveItem drops the line for the variant. An absent variant is a no-op.
func (s *cartService) RemoveItem(ctx context.Context, ownerID, variantID string) (Cart, error) {
	if s == nil {
		return Cart{}, ErrCartUnavailable
	}

	owner := strings.TrimSpace(ownerID)
	variant := strings.TrimSpace(variantID)
	if owner == "" || variant == "" {
		return Cart{}, ErrCartInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cart, err := s.loadCartLocked(ctx, owner)
	if err != nil {
		return Cart{}, err
	}

	idx := indexOfVariant(cart.Items, variant)
	if idx < 0 {
		return cloneCart(cart), nil
	}

	cart.Items = append(cart.Items[:idx], cart.Items[idx+1:]...)
	cart.TotalPrice = cartTotal(cart.Items)
	cart.UpdatedAt = s.now()

	s.persistLocked(ctx, cart)
	s.mirrorLocked(cart, func() {
		s.sync.EnqueueDelete(owner, variant)
	})

	s.carts[owner] = cart
	return cloneCart(cart), nil
}

// UpdateItemQuantity sets the line's quantity verbatim. Zero and negative
// values are stored as given; no lower bound is enforced here.
func (s *cartService) UpdateItemQuantity(ctx context.Context, cmd UpdateCartQuantityCommand) (Cart, error) {
	if s == nil {
		return Cart{}, ErrCartUnavailable
	}

	owner := strings.TrimSpace(cmd.OwnerID)
	variant := strings.TrimSpace(cmd.VariantID)
	if owner == "" || variant == "" {
		return Cart{}, ErrCartInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cart, err := s.loadCartLocked(ctx, owner)
	if err != nil {
		return Cart{}, err
	}

	idx := indexOfVariant(cart.Items, variant)
	if idx < 0 {
		return cloneCart(cart), nil
	}

	now := s.now()
	cart.Items[idx].Quantity = cmd.Quantity
	ts := now
	cart.Items[idx].UpdatedAt = &ts
	cart.TotalPrice = cartTotal(cart.Items)
	cart.UpdatedAt = now

	s.persistLocked(ctx, cart)
	item := cart.Items[idx]
	s.mirrorLocked(cart, func() {
		s.sync.EnqueueUpsert(owner, item)
	})

	s.carts[owner] = cart
	return cloneCart(cart), nil
}

// ClearCart resets the owner's cart to empty. The guest store row is
// deleted; authenticated carts mirror the clear remotely.
func (s *cartService) ClearCart(ctx context.Context, ownerID string) error {
	if s == nil {
		return ErrCartUnavailable
	}

	owner := strings.TrimSpace(ownerID)
	if owner == "" {
		return ErrCartInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.carts[owner] = s.newCart(owner)

	if owner == domain.GuestOwnerID {
		if err := s.guest.Clear(ctx); err != nil {
			s.logger(ctx, "cart.guest_clear_failed", map[string]any{
				"error": err.Error(),
			})
		}
		return nil
	}
	if s.sync != nil {
		s.sync.EnqueueClear(owner)
	}
	return nil
}

// SwitchOwner transitions the session between guest and authenticated
// ownership. Login discards the in-memory guest cart without merging;
// logout reloads the locally persisted guest cart.
func (s *cartService) SwitchOwner(ctx context.Context, cmd SwitchOwnerCommand) (Cart, error) {
	if s == nil {
		return Cart{}, ErrCartUnavailable
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		// Logout: forget session carts and reload the guest cart from disk.
		s.carts = make(map[string]domain.Cart)
		cart, err := s.loadCartLocked(ctx, domain.GuestOwnerID)
		if err != nil {
			return Cart{}, err
		}
		return cloneCart(cart), nil
	}

	delete(s.carts, domain.GuestOwnerID)
	cart, err := s.loadCartLocked(ctx, userID)
	if err != nil {
		return Cart{}, err
	}
	return cloneCart(cart), nil
}

// SyncStatus reports the remote mirror's current state.
func (s *cartService) SyncStatus() SyncStatus {
	if s == nil || s.sync == nil {
		return SyncStatus{State: domain.SyncStateIdle}
	}
	return s.sync.Status()
}

// loadCartLocked resolves the owner's cart from the session cache, the
// guest store, or the remote table, in that order. Callers hold s.mu.
func (s *cartService) loadCartLocked(ctx context.Context, ownerID string) (domain.Cart, error) {
	if cached, ok := s.carts[ownerID]; ok {
		return cached, nil
	}

	var cart domain.Cart
	if ownerID == domain.GuestOwnerID {
		loaded, found, err := s.guest.Load(ctx)
		if err != nil {
			return domain.Cart{}, translateCartRepoError(err)
		}
		if found {
			cart = loaded
		} else {
			cart = s.newCart(ownerID)
		}
	} else {
		if s.remote == nil {
			return domain.Cart{}, ErrCartUnavailable
		}
		loaded, err := s.remote.GetCart(ctx, ownerID)
		if err != nil {
			if isRepoNotFound(err) {
				cart = s.newCart(ownerID)
			} else {
				return domain.Cart{}, translateCartRepoError(err)
			}
		} else {
			cart = loaded
		}
	}

	cart = s.normaliseCart(cart, ownerID)
	s.carts[ownerID] = cart
	return cart, nil
}

// mirrorLocked queues the incremental mutation for the remote table. Once a
// delivery has been dropped the remote may be missing writes, so the next
// mutation ships a full snapshot replace to bring the mirror back in line.
// Callers hold s.mu.
func (s *cartService) mirrorLocked(cart domain.Cart, incremental func()) {
	if cart.OwnerID == domain.GuestOwnerID || s.sync == nil {
		return
	}
	if s.sync.Status().State == domain.SyncStateFailed {
		items := make([]domain.CartItem, len(cart.Items))
		copy(items, cart.Items)
		s.sync.EnqueueReplace(cart.OwnerID, items)
		return
	}
	incremental()
}

// persistLocked writes the guest cart to the local store. Failures are
// logged, never surfaced: the in-memory state stays authoritative.
func (s *cartService) persistLocked(ctx context.Context, cart domain.Cart) {
	if cart.OwnerID != domain.GuestOwnerID {
		return
	}
	if err := s.guest.Save(ctx, cart); err != nil {
		s.logger(ctx, "cart.guest_save_failed", map[string]any{
			"error": err.Error(),
		})
	}
}

func (s *cartService) newCart(ownerID string) domain.Cart {
	now := s.now()
	return domain.Cart{
		ID:        ownerID,
		OwnerID:   ownerID,
		Items:     []domain.CartItem{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (s *cartService) normaliseCart(cart domain.Cart, ownerID string) domain.Cart {
	if cart.ID = strings.TrimSpace(cart.ID); cart.ID == "" {
		cart.ID = ownerID
	}
	if cart.OwnerID = strings.TrimSpace(cart.OwnerID); cart.OwnerID == "" {
		cart.OwnerID = ownerID
	}
	if cart.Items == nil {
		cart.Items = []domain.CartItem{}
	}
	cart.TotalPrice = cartTotal(cart.Items)
	if cart.CreatedAt.IsZero() {
		cart.CreatedAt = s.now()
	}
	if cart.UpdatedAt.IsZero() {
		cart.UpdatedAt = cart.CreatedAt
	}
	return cart
}

func cartTotal(items []domain.CartItem) int64 {
	var total int64
	for _, item := range items {
		total += item.LineTotal()
	}
	return total
}

func indexOfVariant(items []domain.CartItem, variantID string) int {
	for i, item := range items {
		if strings.TrimSpace(item.Variant.ID) == variantID {
			return i
		}
	}
	return -1
}

func cloneCart(cart domain.Cart) domain.Cart {
	dup := cart
	dup.Items = make([]domain.CartItem, len(cart.Items))
	copy(dup.Items, cart.Items)
	for i := range dup.Items {
		if dup.Items[i].UpdatedAt != nil {
			ts := dup.Items[i].UpdatedAt.UTC()
			dup.Items[i].UpdatedAt = &ts
		}
	}
	return dup
}

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

func translateCartRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		if repoErr.IsNotFound() {
			return ErrCartNotFound
		}
		return ErrCartUnavailable
	}
	return ErrCartUnavailable
}
