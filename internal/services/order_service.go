package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/velvette/api/internal/domain"
	"github.com/velvette/api/internal/repositories"
)

var (
	errOrderRepositoryRequired = errors.New("order service: repository is required")
	errOrderCartsRequired      = errors.New("order service: cart access is required")
	errOrderAddressesRequired  = errors.New("order service: address repository is required")
	errOrderClockRequired      = errors.New("order service: clock is required")
)

const (
	orderEventPlaced        = "order.placed"
	orderEventPublishFailed = "order.event_publish_failed"
	orderEventCartClear     = "order.cart_clear_failed"
	maxOrderNoteLength      = 2000
)

// ErrOrderInvalidInput indicates the caller supplied invalid checkout input.
var ErrOrderInvalidInput = errors.New("order service: invalid input")

// ErrOrderEmptyCart indicates checkout was attempted with no cart lines.
var ErrOrderEmptyCart = errors.New("order service: cart is empty")

// ErrOrderNotFound indicates the requested order does not exist or is not visible to the requester.
var ErrOrderNotFound = errors.New("order service: not found")

// ErrOrderUnavailable indicates the order service cannot fulfil the request due to backend issues.
var ErrOrderUnavailable = errors.New("order service: unavailable")

// ErrOrderPaymentFailed indicates the card processor rejected the payment setup; the cart is left intact.
var ErrOrderPaymentFailed = errors.New("order service: payment setup failed")

// cartAccess is the slice of the cart service checkout depends on.
type cartAccess interface {
	GetCart(ctx context.Context, ownerID string) (Cart, error)
	ClearCart(ctx context.Context, ownerID string) error
}

// PaymentIntentRequest asks the card processor to prepare a payment for an order.
type PaymentIntentRequest struct {
	OrderID  string
	Amount   int64
	Currency string
	Metadata map[string]string
}

// PaymentIntentResult carries the processor's intent reference back to the order.
type PaymentIntentResult struct {
	IntentID     string
	ClientSecret string
}

// PaymentIntentCreator prepares online payments at checkout.
type PaymentIntentCreator interface {
	CreateIntent(ctx context.Context, req PaymentIntentRequest) (PaymentIntentResult, error)
}

// OrderPlacedEvent is the payload published after an order persists.
type OrderPlacedEvent struct {
	OrderID       string    `json:"orderId"`
	UserID        string    `json:"userId,omitempty"`
	FinalPrice    int64     `json:"finalPrice"`
	PaymentMethod string    `json:"paymentMethod"`
	Status        string    `json:"status"`
	PlacedAt      time.Time `json:"placedAt"`
}

// OrderEventPublisher delivers order events to the message broker.
type OrderEventPublisher interface {
	PublishOrderPlaced(ctx context.Context, event OrderPlacedEvent) (string, error)
}

// OrderServiceDeps wires repositories and collaborators for order operations.
type OrderServiceDeps struct {
	Repository         repositories.OrderRepository
	Addresses          repositories.AddressRepository
	Carts              cartAccess
	Payments           PaymentIntentCreator
	Events             OrderEventPublisher
	Clock              func() time.Time
	IDGenerator        func() string
	Logger             func(context.Context, string, map[string]any)
	DefaultShippingFee int64
	Currency           string
}

type orderService struct {
	repo        repositories.OrderRepository
	addresses   repositories.AddressRepository
	carts       cartAccess
	payments    PaymentIntentCreator
	events      OrderEventPublisher
	now         func() time.Time
	newID       func() string
	logger      func(context.Context, string, map[string]any)
	shippingFee int64
	currency    string
}

// NewOrderService constructs an OrderService enforcing dependency validation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Repository == nil {
		return nil, errOrderRepositoryRequired
	}
	if deps.Carts == nil {
		return nil, errOrderCartsRequired
	}
	if deps.Addresses == nil {
		return nil, errOrderAddressesRequired
	}
	if deps.Clock == nil {
		return nil, errOrderClockRequired
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = "VND"
	}

	return &orderService{
		repo:        deps.Repository,
		addresses:   deps.Addresses,
		carts:       deps.Carts,
		payments:    deps.Payments,
		events:      deps.Events,
		now:         func() time.Time { return deps.Clock().UTC() },
		newID:       idGen,
		logger:      logger,
		shippingFee: deps.DefaultShippingFee,
		currency:    currency,
	}, nil
}

// initialStatusFor maps the payment method to the order's starting status.
func initialStatusFor(method domain.PaymentMethod) domain.OrderStatus {
	if method == domain.PaymentMethodOnline {
		return domain.OrderStatusPendingPayment
	}
	return domain.OrderStatusPendingApproval
}

// PlaceOrder reduces the owner's cart plus checkout inputs into an immutable
// order. Validation failures block before any persistence; persistence
// failures leave the cart intact for retry. On success the cart is cleared
// and an order-placed event is published fire-and-forget.
func (s *orderService) PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (Order, error) {
	if s == nil || s.repo == nil {
		return Order{}, ErrOrderUnavailable
	}

	userID := strings.TrimSpace(cmd.UserID)
	ownerID := strings.TrimSpace(cmd.OwnerID)
	if ownerID == "" {
		if userID != "" {
			ownerID = userID
		} else {
			ownerID = domain.GuestOwnerID
		}
	}

	if !validPaymentMethod(cmd.PaymentMethod) {
		return Order{}, fmt.Errorf("%w: unknown payment method %q", ErrOrderInvalidInput, cmd.PaymentMethod)
	}

	note := strings.TrimSpace(cmd.Note)
	if len(note) > maxOrderNoteLength {
		return Order{}, fmt.Errorf("%w: note must be %d characters or fewer", ErrOrderInvalidInput, maxOrderNoteLength)
	}

	cart, err := s.carts.GetCart(ctx, ownerID)
	if err != nil {
		return Order{}, ErrOrderUnavailable
	}
	if len(cart.Items) == 0 {
		return Order{}, ErrOrderEmptyCart
	}

	address, addressID, err := s.resolveAddress(ctx, userID, cmd)
	if err != nil {
		return Order{}, err
	}

	now := s.now()
	subtotal := cartTotal(cart.Items)
	shippingFee := s.shippingFee
	if cmd.ShippingFee != nil {
		shippingFee = *cmd.ShippingFee
	}
	var discount int64
	if cmd.Discount != nil {
		discount = *cmd.Discount
	}

	order := domain.Order{
		ID:              s.newID(),
		UserID:          userID,
		ShippingAddress: address,
		AddressID:       addressID,
		Items:           cloneCart(cart).Items,
		Subtotal:        subtotal,
		ShippingFee:     shippingFee,
		Discount:        discount,
		FinalPrice:      subtotal + shippingFee - discount,
		Note:            note,
		PaymentMethod:   cmd.PaymentMethod,
		Status:          initialStatusFor(cmd.PaymentMethod),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if order.PaymentMethod == domain.PaymentMethodOnline && s.payments != nil {
		intent, err := s.payments.CreateIntent(ctx, PaymentIntentRequest{
			OrderID:  order.ID,
			Amount:   order.FinalPrice,
			Currency: s.currency,
			Metadata: map[string]string{"orderId": order.ID},
		})
		if err != nil {
			return Order{}, fmt.Errorf("%w: %v", ErrOrderPaymentFailed, err)
		}
		intentID := intent.IntentID
		order.PaymentIntentID = &intentID
	}

	if err := s.repo.Insert(ctx, order); err != nil {
		return Order{}, s.translateRepoError(err)
	}

	if err := s.carts.ClearCart(ctx, ownerID); err != nil {
		s.logger(ctx, orderEventCartClear, map[string]any{
			"orderId": order.ID,
			"ownerID": ownerID,
			"error":   err.Error(),
		})
	}

	if s.events != nil {
		event := OrderPlacedEvent{
			OrderID:       order.ID,
			UserID:        order.UserID,
			FinalPrice:    order.FinalPrice,
			PaymentMethod: string(order.PaymentMethod),
			Status:        string(order.Status),
			PlacedAt:      order.CreatedAt,
		}
		if _, err := s.events.PublishOrderPlaced(ctx, event); err != nil {
			s.logger(ctx, orderEventPublishFailed, map[string]any{
				"orderId": order.ID,
				"error":   err.Error(),
			})
		}
	}

	s.logger(ctx, orderEventPlaced, map[string]any{
		"orderId":    order.ID,
		"finalPrice": order.FinalPrice,
		"status":     string(order.Status),
	})

	return order, nil
}

// resolveAddress loads the saved address or persists a guest record. Runs
// before any order persistence so validation failures have no side effects
// beyond a throwaway address row.
func (s *orderService) resolveAddress(ctx context.Context, userID string, cmd PlaceOrderCommand) (domain.Address, string, error) {
	addressID := strings.TrimSpace(cmd.AddressID)
	if addressID != "" {
		if userID == "" {
			return domain.Address{}, "", fmt.Errorf("%w: saved addresses require an authenticated user", ErrOrderInvalidInput)
		}
		address, err := s.addresses.Get(ctx, userID, addressID)
		if err != nil {
			if isRepoNotFound(err) {
				return domain.Address{}, "", fmt.Errorf("%w: shipping address not found", ErrOrderInvalidInput)
			}
			return domain.Address{}, "", ErrOrderUnavailable
		}
		return address, address.ID, nil
	}

	if cmd.Address == nil {
		return domain.Address{}, "", fmt.Errorf("%w: shipping address is required", ErrOrderInvalidInput)
	}

	address := *cmd.Address
	address.Recipient = strings.TrimSpace(address.Recipient)
	address.Phone = strings.TrimSpace(address.Phone)
	address.Line1 = strings.TrimSpace(address.Line1)
	address.City = strings.TrimSpace(address.City)
	if address.Recipient == "" || address.Phone == "" || address.Line1 == "" || address.City == "" {
		return domain.Address{}, "", fmt.Errorf("%w: recipient, phone, line1 and city are required", ErrOrderInvalidInput)
	}

	address.ID = s.newID()
	address.UserID = userID
	address.CreatedAt = s.now()

	stored, err := s.addresses.InsertGuest(ctx, address)
	if err != nil {
		return domain.Address{}, "", ErrOrderUnavailable
	}
	return stored, stored.ID, nil
}

// GetOrder reads one order. Non-admin requesters only see their own orders;
// anything else reads as not found.
func (s *orderService) GetOrder(ctx context.Context, cmd GetOrderCommand) (Order, error) {
	if s == nil || s.repo == nil {
		return Order{}, ErrOrderUnavailable
	}

	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, ErrOrderInvalidInput
	}

	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.translateRepoError(err)
	}

	if !cmd.Admin {
		requester := strings.TrimSpace(cmd.RequesterID)
		if requester == "" || order.UserID != requester {
			return Order{}, ErrOrderNotFound
		}
	}
	return order, nil
}

// ListOrders returns one page of orders matching the filter, newest first.
func (s *orderService) ListOrders(ctx context.Context, filter OrderListFilter) (OrderPage, error) {
	if s == nil || s.repo == nil {
		return OrderPage{}, ErrOrderUnavailable
	}

	repoFilter := repositories.OrderListFilter{
		UserID: strings.TrimSpace(filter.UserID),
		Status: filter.Statuses,
		DateRange: domain.RangeQuery[time.Time]{
			From: filter.From,
			To:   filter.To,
		},
		Pagination: domain.Pagination{
			PageSize:  filter.Limit,
			PageToken: strings.TrimSpace(filter.PageToken),
		},
	}

	page, err := s.repo.List(ctx, repoFilter)
	if err != nil {
		return OrderPage{}, s.translateRepoError(err)
	}
	return OrderPage{Orders: page.Items, NextPageToken: page.NextPageToken}, nil
}

// UpdateStatus transitions an order's status. Orders are immutable after
// creation except for this field.
func (s *orderService) UpdateStatus(ctx context.Context, cmd OrderStatusCommand) (Order, error) {
	if s == nil || s.repo == nil {
		return Order{}, ErrOrderUnavailable
	}

	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, ErrOrderInvalidInput
	}
	if !validOrderStatus(cmd.Status) {
		return Order{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, cmd.Status)
	}

	updated, err := s.repo.UpdateStatus(ctx, orderID, cmd.Status, strings.TrimSpace(cmd.ActorID), s.now())
	if err != nil {
		return Order{}, s.translateRepoError(err)
	}
	return updated, nil
}

func validPaymentMethod(method domain.PaymentMethod) bool {
	switch method {
	case domain.PaymentMethodCOD, domain.PaymentMethodOnline, domain.PaymentMethodBankTransfer:
		return true
	}
	return false
}

func validOrderStatus(status domain.OrderStatus) bool {
	switch status {
	case domain.OrderStatusPendingPayment, domain.OrderStatusPendingApproval,
		domain.OrderStatusShipping, domain.OrderStatusCompleted, domain.OrderStatusCanceled:
		return true
	}
	return false
}

func (s *orderService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		if repoErr.IsNotFound() {
			return ErrOrderNotFound
		}
		return ErrOrderUnavailable
	}
	return ErrOrderUnavailable
}
