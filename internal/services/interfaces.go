package services

import (
	"context"
	"time"

	domain "github.com/velvette/api/internal/domain"
	"github.com/velvette/api/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination          = domain.Pagination
	SortOrder           = domain.SortOrder
	Cart                = domain.Cart
	CartItem            = domain.CartItem
	SyncStatus          = domain.SyncStatus
	Variant             = domain.Variant
	Product             = domain.Product
	Collection          = domain.Collection
	Outfit              = domain.Outfit
	Category            = domain.Category
	Color               = domain.Color
	Size                = domain.Size
	Order               = domain.Order
	OrderStatus         = domain.OrderStatus
	PaymentMethod       = domain.PaymentMethod
	Address             = domain.Address
	UserProfile         = domain.UserProfile
	GalleryImage        = domain.GalleryImage
	SignedAssetResponse = domain.SignedAssetResponse
	SystemHealthReport  = domain.SystemHealthReport
)

// CartService is the single source of truth for cart contents during a
// session. Guest carts persist to the local store; authenticated carts are
// mirrored to the remote table through the sync outbox.
type CartService interface {
	GetCart(ctx context.Context, ownerID string) (Cart, error)
	AddItem(ctx context.Context, cmd AddCartItemCommand) (Cart, error)
	RemoveItem(ctx context.Context, ownerID, variantID string) (Cart, error)
	UpdateItemQuantity(ctx context.Context, cmd UpdateCartQuantityCommand) (Cart, error)
	ClearCart(ctx context.Context, ownerID string) error
	SwitchOwner(ctx context.Context, cmd SwitchOwnerCommand) (Cart, error)
	SyncStatus() SyncStatus
}

// AddCartItemCommand adds a variant snapshot to the owner's cart. An
// existing line for the same variant has its quantity incremented.
type AddCartItemCommand struct {
	OwnerID  string
	Variant  Variant
	Quantity int
}

// UpdateCartQuantityCommand sets a line's quantity verbatim.
type UpdateCartQuantityCommand struct {
	OwnerID   string
	VariantID string
	Quantity  int
}

// SwitchOwnerCommand transitions the cart session between guest and
// authenticated ownership. An empty UserID means logout back to the guest
// cart; a non-empty UserID loads that user's remote cart and leaves the
// guest cart behind.
type SwitchOwnerCommand struct {
	UserID string
}

// OrderService reduces carts into immutable orders and exposes the
// admin-facing status workflow.
type OrderService interface {
	PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (Order, error)
	GetOrder(ctx context.Context, cmd GetOrderCommand) (Order, error)
	ListOrders(ctx context.Context, filter OrderListFilter) (OrderPage, error)
	UpdateStatus(ctx context.Context, cmd OrderStatusCommand) (Order, error)
}

// PlaceOrderCommand carries the checkout inputs. Exactly one of AddressID
// (saved address, authenticated) or Address (guest or one-off) must be set.
type PlaceOrderCommand struct {
	UserID        string
	OwnerID       string
	AddressID     string
	Address       *Address
	PaymentMethod PaymentMethod
	Note          string
	ShippingFee   *int64
	Discount      *int64
}

// GetOrderCommand reads one order. Non-admin requesters only see their own.
type GetOrderCommand struct {
	OrderID     string
	RequesterID string
	Admin       bool
}

// OrderListFilter narrows admin and per-user order listings.
type OrderListFilter struct {
	UserID    string
	Statuses  []OrderStatus
	From      *time.Time
	To        *time.Time
	Limit     int
	PageToken string
}

// OrderPage is one page of a cursor-paginated order listing.
type OrderPage struct {
	Orders        []Order
	NextPageToken string
}

// OrderStatusCommand transitions an order's status (admin only).
type OrderStatusCommand struct {
	OrderID string
	Status  OrderStatus
	ActorID string
}

// CatalogService manages back-office catalog entities. Rich-text
// descriptions are sanitised before persistence.
type CatalogService interface {
	CreateProduct(ctx context.Context, cmd UpsertProductCommand) (Product, error)
	UpdateProduct(ctx context.Context, cmd UpsertProductCommand) (Product, error)
	GetProduct(ctx context.Context, productID string) (Product, error)
	GetPublishedProduct(ctx context.Context, productID string) (Product, error)
	ListProducts(ctx context.Context, filter repositories.ProductFilter) ([]Product, error)
	DeleteProduct(ctx context.Context, productID string) error
	FindVariant(ctx context.Context, variantID string) (Variant, error)

	CreateCollection(ctx context.Context, cmd UpsertCollectionCommand) (Collection, error)
	UpdateCollection(ctx context.Context, cmd UpsertCollectionCommand) (Collection, error)
	ListCollections(ctx context.Context) ([]Collection, error)
	DeleteCollection(ctx context.Context, collectionID string) error

	CreateOutfit(ctx context.Context, cmd UpsertOutfitCommand) (Outfit, error)
	UpdateOutfit(ctx context.Context, cmd UpsertOutfitCommand) (Outfit, error)
	ListOutfits(ctx context.Context) ([]Outfit, error)
	DeleteOutfit(ctx context.Context, outfitID string) error

	CreateCategory(ctx context.Context, cmd UpsertCategoryCommand) (Category, error)
	UpdateCategory(ctx context.Context, cmd UpsertCategoryCommand) (Category, error)
	ListCategories(ctx context.Context) ([]Category, error)
	DeleteCategory(ctx context.Context, categoryID string) error

	UpsertColor(ctx context.Context, cmd UpsertColorCommand) (Color, error)
	ListColors(ctx context.Context) ([]Color, error)
	DeleteColor(ctx context.Context, colorID string) error

	UpsertSize(ctx context.Context, cmd UpsertSizeCommand) (Size, error)
	ListSizes(ctx context.Context) ([]Size, error)
	DeleteSize(ctx context.Context, sizeID string) error
}

// UpsertProductCommand creates or updates a product. An empty ID requests
// creation.
type UpsertProductCommand struct {
	ID            string
	Name          string
	Description   string
	CategoryID    string
	CollectionIDs []string
	Variants      []Variant
	ImagePaths    []string
	IsPublished   *bool
}

// UpsertCollectionCommand creates or updates a collection.
type UpsertCollectionCommand struct {
	ID          string
	Name        string
	Description string
	ImagePath   string
}

// UpsertOutfitCommand creates or updates an outfit.
type UpsertOutfitCommand struct {
	ID         string
	Name       string
	ImagePath  string
	ProductIDs []string
}

// UpsertCategoryCommand creates or updates a category.
type UpsertCategoryCommand struct {
	ID       string
	Name     string
	ParentID *string
}

// UpsertColorCommand creates or updates a named color swatch.
type UpsertColorCommand struct {
	ID   string
	Name string
	Hex  string
}

// UpsertSizeCommand creates or updates a size label.
type UpsertSizeCommand struct {
	ID    string
	Label string
}

// UserService manages profile and saved-address surfaces.
type UserService interface {
	GetProfile(ctx context.Context, userID string) (UserProfile, error)
	UpsertProfile(ctx context.Context, cmd UpsertProfileCommand) (UserProfile, error)
	ListUsers(ctx context.Context, filter UserListFilter) (UserPage, error)
	SetUserActive(ctx context.Context, cmd SetUserActiveCommand) (UserProfile, error)
	ListAddresses(ctx context.Context, userID string) ([]Address, error)
	UpsertAddress(ctx context.Context, cmd UpsertAddressCommand) (Address, error)
	DeleteAddress(ctx context.Context, cmd DeleteAddressCommand) error
}

// UpsertProfileCommand creates or updates the caller's profile.
type UpsertProfileCommand struct {
	UserID      string
	DisplayName *string
	Email       *string
	Phone       *string
	PhotoPath   *string
}

// UserListFilter narrows admin user listings.
type UserListFilter struct {
	OnlyActive bool
	Limit      int
	PageToken  string
}

// UserPage is one page of a cursor-paginated user listing.
type UserPage struct {
	Users         []UserProfile
	NextPageToken string
}

// SetUserActiveCommand enables or disables a user account (admin only).
type SetUserActiveCommand struct {
	UserID  string
	Active  bool
	ActorID string
}

// UpsertAddressCommand creates or updates a saved shipping address.
type UpsertAddressCommand struct {
	UserID    string
	AddressID string
	Address   Address
}

// DeleteAddressCommand removes a saved shipping address.
type DeleteAddressCommand struct {
	UserID    string
	AddressID string
}

// GalleryService manages image metadata and signed storage URLs.
type GalleryService interface {
	RequestUpload(ctx context.Context, cmd GalleryUploadCommand) (SignedAssetResponse, error)
	GetImage(ctx context.Context, imageID string) (GalleryImage, error)
	SignDownload(ctx context.Context, imageID string) (SignedAssetResponse, error)
	ListImages(ctx context.Context, filter GalleryListFilter) (GalleryImagePage, error)
	DeleteImage(ctx context.Context, cmd DeleteImageCommand) error
}

// GalleryUploadCommand reserves a gallery slot and signs an upload URL.
type GalleryUploadCommand struct {
	FileName    string
	ContentType string
	UploadedBy  string
}

// GalleryListFilter narrows gallery listings.
type GalleryListFilter struct {
	UploadedBy string
	Limit      int
	PageToken  string
}

// GalleryImagePage is one page of a cursor-paginated gallery listing.
type GalleryImagePage struct {
	Images        []GalleryImage
	NextPageToken string
}

// DeleteImageCommand removes the metadata record and the stored object.
type DeleteImageCommand struct {
	ImageID string
	ActorID string
}

// SystemService reports process and dependency health.
type SystemService interface {
	Health(ctx context.Context) (SystemHealthReport, error)
}
