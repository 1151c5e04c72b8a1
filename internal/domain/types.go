package domain

import (
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// SortOrder indicates ascending or descending ordering for list queries.
type SortOrder string

const (
	// SortAsc sorts results in ascending order.
	SortAsc SortOrder = "asc"
	// SortDesc sorts results in descending order.
	SortDesc SortOrder = "desc"
)

// RangeQuery represents inclusive range filters for numeric or timestamp fields.
type RangeQuery[T comparable] struct {
	From *T
	To   *T
}

// GuestOwnerID keys the local-only cart held before a user signs in.
const GuestOwnerID = "guest"

// Variant is the sellable unit of a product: one colour/size combination
// with its pricing and presentation snapshot.
type Variant struct {
	ID        string
	ProductID string
	SKU       string
	Color     string
	Size      string
	BasePrice int64
	SalePrice *int64
	ImagePath string
	Stock     int
}

// EffectiveUnitPrice returns the sale price when one is set, falling back to
// the base price.
func (v Variant) EffectiveUnitPrice() int64 {
	if v.SalePrice != nil {
		return *v.SalePrice
	}
	return v.BasePrice
}

// CartItem stores a single variant line within a cart. The variant is a
// snapshot taken at add time, not a live reference.
type CartItem struct {
	ID        string
	Variant   Variant
	Quantity  int
	CreatedAt time.Time
	UpdatedAt *time.Time
}

// LineTotal returns quantity times the effective unit price.
func (i CartItem) LineTotal() int64 {
	return int64(i.Quantity) * i.Variant.EffectiveUnitPrice()
}

// Cart aggregates the mutable shopping cart state for an owner. The owner is
// either a user ID or GuestOwnerID.
type Cart struct {
	ID         string
	OwnerID    string
	Items      []CartItem
	TotalPrice int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// SyncState describes the observable state of the remote cart mirror.
type SyncState string

const (
	// SyncStateIdle indicates no pending remote operations.
	SyncStateIdle SyncState = "idle"
	// SyncStatePending indicates queued operations not yet attempted.
	SyncStatePending SyncState = "pending"
	// SyncStateRetrying indicates at least one operation failed and is backing off.
	SyncStateRetrying SyncState = "retrying"
	// SyncStateFailed indicates an operation exhausted its retry budget.
	SyncStateFailed SyncState = "failed"
)

// SyncStatus reports outbox progress for a cart owner.
type SyncStatus struct {
	State       SyncState
	Pending     int
	LastError   string
	LastAttempt *time.Time
}

// PaymentMethod enumerates supported checkout payment options.
type PaymentMethod string

const (
	// PaymentMethodCOD settles in cash on delivery.
	PaymentMethodCOD PaymentMethod = "cod"
	// PaymentMethodOnline settles through the card processor at checkout.
	PaymentMethodOnline PaymentMethod = "online_payment"
	// PaymentMethodBankTransfer settles through a manual bank transfer.
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
)

// OrderStatus enumerates valid lifecycle states for orders.
type OrderStatus string

const (
	// OrderStatusPendingPayment indicates the order awaits online payment completion.
	OrderStatusPendingPayment OrderStatus = "pending_payment"
	// OrderStatusPendingApproval indicates the order awaits back-office confirmation.
	OrderStatusPendingApproval OrderStatus = "pending_approval"
	// OrderStatusShipping indicates the order has been handed to the carrier.
	OrderStatusShipping OrderStatus = "shipping"
	// OrderStatusCompleted indicates the order has been delivered and closed.
	OrderStatusCompleted OrderStatus = "completed"
	// OrderStatusCanceled indicates the order has been canceled.
	OrderStatusCanceled OrderStatus = "canceled"
)

// Order captures an immutable order record built from a cart at checkout.
// Only Status (and its audit timestamps) may change after creation.
type Order struct {
	ID              string
	UserID          string
	ShippingAddress Address
	AddressID       string
	Items           []CartItem
	Subtotal        int64
	ShippingFee     int64
	Discount        int64
	FinalPrice      int64
	Note            string
	PaymentMethod   PaymentMethod
	Status          OrderStatus
	PaymentIntentID *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	StatusChangedAt *time.Time
	StatusChangedBy *string
}

// Address represents a shipping address. Guest checkouts create throwaway
// records with an empty UserID.
type Address struct {
	ID        string
	UserID    string
	Recipient string
	Phone     string
	Line1     string
	Ward      string
	District  string
	City      string
	IsDefault bool
	CreatedAt time.Time
}

// Color is a back-office managed colour swatch referenced by variants.
type Color struct {
	ID        string
	Name      string
	Hex       string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Size is a back-office managed size referenced by variants.
type Size struct {
	ID        string
	Name      string
	SortIndex int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Product is the catalogue entry grouping a variant matrix.
type Product struct {
	ID            string
	Name          string
	Slug          string
	Description   string
	CategoryID    string
	CollectionIDs []string
	Variants      []Variant
	ImagePaths    []string
	IsPublished   bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Collection groups products for merchandising surfaces.
type Collection struct {
	ID          string
	Name        string
	Slug        string
	Description string
	ImagePath   string
	IsPublished bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Outfit is a curated set of products presented together.
type Outfit struct {
	ID          string
	Name        string
	Description string
	ProductIDs  []string
	ImagePath   string
	IsPublished bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Category is a tree node organising the catalogue.
type Category struct {
	ID        string
	Name      string
	Slug      string
	ParentID  *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// UserProfile captures the canonical projection of a Firebase Auth user.
type UserProfile struct {
	ID          string
	DisplayName string
	Email       string
	PhoneNumber string
	PhotoURL    string
	Roles       []string
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsAdmin reports whether the profile carries the admin role.
func (p UserProfile) IsAdmin() bool {
	for _, role := range p.Roles {
		if role == "admin" {
			return true
		}
	}
	return false
}

// GalleryImage stores metadata for an object uploaded to the image bucket.
type GalleryImage struct {
	ID          string
	FileName    string
	ContentType string
	StoragePath string
	SizeBytes   int64
	UploadedBy  string
	CreatedAt   time.Time
}

// SignedAssetResponse returns signed URL payloads for upload/download flows.
type SignedAssetResponse struct {
	ImageID   string
	URL       string
	ExpiresAt time.Time
	Method    string
	Headers   map[string]string
}

const (
	// HealthStatusOK indicates all dependencies are healthy.
	HealthStatusOK = "ok"
	// HealthStatusDegraded indicates at least one dependency is degraded but service remains running.
	HealthStatusDegraded = "degraded"
	// HealthStatusError indicates the service or a critical dependency is unavailable.
	HealthStatusError = "error"
)

// SystemHealthCheck describes the outcome of an individual dependency probe.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency status for health endpoints.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}
