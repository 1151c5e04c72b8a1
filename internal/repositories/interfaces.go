package repositories

import (
	"context"
	"time"

	domain "github.com/velvette/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Carts() CartRepository
	Orders() OrderRepository
	Addresses() AddressRepository
	Users() UserRepository
	Catalog() CatalogRepository
	Gallery() GalleryRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// CartRepository mirrors authenticated carts to the remote datastore. Writes
// are keyed by (cart ID, variant ID) so the outbox can replay them safely.
type CartRepository interface {
	GetCart(ctx context.Context, ownerID string) (domain.Cart, error)
	UpsertItem(ctx context.Context, ownerID string, item domain.CartItem) error
	DeleteItem(ctx context.Context, ownerID string, variantID string) error
	ReplaceItems(ctx context.Context, ownerID string, items []domain.CartItem) error
	ClearCart(ctx context.Context, ownerID string) error
}

// GuestCartStore persists the guest cart on the device running the
// storefront. The cart lives under a single fixed key: it is read on store
// initialisation, overwritten after every mutation, and removed on clear.
type GuestCartStore interface {
	Load(ctx context.Context) (domain.Cart, bool, error)
	Save(ctx context.Context, cart domain.Cart) error
	Clear(ctx context.Context) error
}

// OrderRepository persists immutable order records; only status transitions
// update an existing document.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	UpdateStatus(ctx context.Context, orderID string, status domain.OrderStatus, changedBy string, changedAt time.Time) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
}

// AddressRepository stores shipping addresses per user plus throwaway guest records.
type AddressRepository interface {
	List(ctx context.Context, userID string) ([]domain.Address, error)
	Get(ctx context.Context, userID string, addressID string) (domain.Address, error)
	Upsert(ctx context.Context, addr domain.Address) (domain.Address, error)
	Delete(ctx context.Context, userID string, addressID string) error
	InsertGuest(ctx context.Context, addr domain.Address) (domain.Address, error)
}

// UserRepository stores user profiles mirrored from Firebase identities.
type UserRepository interface {
	FindByID(ctx context.Context, userID string) (domain.UserProfile, error)
	Upsert(ctx context.Context, profile domain.UserProfile) (domain.UserProfile, error)
	List(ctx context.Context, filter UserListFilter) (domain.CursorPage[domain.UserProfile], error)
	SetActive(ctx context.Context, userID string, active bool, updatedAt time.Time) (domain.UserProfile, error)
}

// CatalogRepository bundles product/collection/outfit/category/colour/size
// storage with shared transactions.
type CatalogRepository interface {
	ListProducts(ctx context.Context, filter ProductFilter) (domain.CursorPage[domain.Product], error)
	GetProduct(ctx context.Context, productID string) (domain.Product, error)
	GetPublishedProduct(ctx context.Context, productID string) (domain.Product, error)
	UpsertProduct(ctx context.Context, product domain.Product) (domain.Product, error)
	DeleteProduct(ctx context.Context, productID string) error
	FindVariant(ctx context.Context, variantID string) (domain.Variant, error)

	ListCollections(ctx context.Context, filter CollectionFilter) (domain.CursorPage[domain.Collection], error)
	GetCollection(ctx context.Context, collectionID string) (domain.Collection, error)
	UpsertCollection(ctx context.Context, collection domain.Collection) (domain.Collection, error)
	DeleteCollection(ctx context.Context, collectionID string) error

	ListOutfits(ctx context.Context, filter OutfitFilter) (domain.CursorPage[domain.Outfit], error)
	GetOutfit(ctx context.Context, outfitID string) (domain.Outfit, error)
	UpsertOutfit(ctx context.Context, outfit domain.Outfit) (domain.Outfit, error)
	DeleteOutfit(ctx context.Context, outfitID string) error

	ListCategories(ctx context.Context) ([]domain.Category, error)
	GetCategory(ctx context.Context, categoryID string) (domain.Category, error)
	UpsertCategory(ctx context.Context, category domain.Category) (domain.Category, error)
	DeleteCategory(ctx context.Context, categoryID string) error

	ListColors(ctx context.Context) ([]domain.Color, error)
	UpsertColor(ctx context.Context, color domain.Color) (domain.Color, error)
	DeleteColor(ctx context.Context, colorID string) error

	ListSizes(ctx context.Context) ([]domain.Size, error)
	UpsertSize(ctx context.Context, size domain.Size) (domain.Size, error)
	DeleteSize(ctx context.Context, sizeID string) error
}

// GalleryRepository handles image metadata synchronized with Cloud Storage objects.
type GalleryRepository interface {
	Insert(ctx context.Context, image domain.GalleryImage) (domain.GalleryImage, error)
	FindByID(ctx context.Context, imageID string) (domain.GalleryImage, error)
	List(ctx context.Context, pager domain.Pagination) (domain.CursorPage[domain.GalleryImage], error)
	Delete(ctx context.Context, imageID string) error
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// Filter DTOs shared across repositories ------------------------------------

type OrderListFilter struct {
	UserID     string
	Status     []domain.OrderStatus
	DateRange  domain.RangeQuery[time.Time]
	Pagination domain.Pagination
}

type UserListFilter struct {
	IsActive   *bool
	Pagination domain.Pagination
}

type ProductFilter struct {
	CategoryID    *string
	CollectionID  *string
	OnlyPublished bool
	Pagination    domain.Pagination
}

type CollectionFilter struct {
	OnlyPublished bool
	Pagination    domain.Pagination
}

type OutfitFilter struct {
	OnlyPublished bool
	Pagination    domain.Pagination
}
