package firestore

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/velvette/api/internal/domain"
	pfirestore "github.com/velvette/api/internal/platform/firestore"
	"github.com/velvette/api/internal/repositories"
)

const cartCollection = "carts"

// CartRepository mirrors authenticated carts to Firestore. The document ID is
// the owner ID and line items live in an items map keyed by variant ID, so
// replayed outbox writes land on the same entry.
type CartRepository struct {
	base     *pfirestore.BaseRepository[cartDocument]
	provider *pfirestore.Provider
}

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	return &CartRepository{
		base:     pfirestore.NewBaseRepository[cartDocument](provider, cartCollection, nil, nil),
		provider: provider,
	}, nil
}

// GetCart loads the mirrored cart for the given owner.
func (r *CartRepository) GetCart(ctx context.Context, ownerID string) (domain.Cart, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return domain.Cart{}, errors.New("cart repository: owner id is required")
	}
	doc, err := r.base.Get(ctx, ownerID)
	if err != nil {
		return domain.Cart{}, err
	}
	return doc.Data.toDomain(ownerID), nil
}

// UpsertItem writes a single line item under its variant ID.
func (r *CartRepository) UpsertItem(ctx context.Context, ownerID string, item domain.CartItem) error {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return errors.New("cart repository: owner id is required")
	}
	variantID := strings.TrimSpace(item.Variant.ID)
	if variantID == "" {
		return errors.New("cart repository: variant id is required")
	}
	return r.mutate(ctx, ownerID, "carts.upsertItem", func(doc *cartDocument) {
		if doc.Items == nil {
			doc.Items = map[string]cartItemDocument{}
		}
		doc.Items[variantID] = cartItemFromDomain(item)
	})
}

// DeleteItem removes a line item; a missing item is a no-op.
func (r *CartRepository) DeleteItem(ctx context.Context, ownerID string, variantID string) error {
	ownerID = strings.TrimSpace(ownerID)
	variantID = strings.TrimSpace(variantID)
	if ownerID == "" || variantID == "" {
		return errors.New("cart repository: owner id and variant id are required")
	}
	return r.mutate(ctx, ownerID, "carts.deleteItem", func(doc *cartDocument) {
		delete(doc.Items, variantID)
	})
}

// ReplaceItems overwrites the whole item set in one write.
func (r *CartRepository) ReplaceItems(ctx context.Context, ownerID string, items []domain.CartItem) error {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return errors.New("cart repository: owner id is required")
	}
	return r.mutate(ctx, ownerID, "carts.replaceItems", func(doc *cartDocument) {
		doc.Items = map[string]cartItemDocument{}
		for _, item := range items {
			variantID := strings.TrimSpace(item.Variant.ID)
			if variantID == "" {
				continue
			}
			doc.Items[variantID] = cartItemFromDomain(item)
		}
	})
}

// ClearCart deletes the cart document; clearing an absent cart is a no-op.
func (r *CartRepository) ClearCart(ctx context.Context, ownerID string) error {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return errors.New("cart repository: owner id is required")
	}
	ref, err := r.base.DocumentRef(ctx, ownerID)
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx); err != nil && status.Code(err) != codes.NotFound {
		return pfirestore.WrapError("carts.clear", err)
	}
	return nil
}

func (r *CartRepository) mutate(ctx context.Context, ownerID, op string, apply func(*cartDocument)) error {
	ref, err := r.base.DocumentRef(ctx, ownerID)
	if err != nil {
		return err
	}
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		var doc cartDocument
		snap, err := tx.Get(ref)
		switch status.Code(err) {
		case codes.NotFound:
			doc.CreatedAt = time.Now().UTC()
		case codes.OK:
			if err := snap.DataTo(&doc); err != nil {
				return err
			}
		default:
			return err
		}
		apply(&doc)
		doc.UpdatedAt = time.Now().UTC()
		doc.Total = doc.total()
		return tx.Set(ref, doc)
	})
	if err != nil {
		return pfirestore.WrapError(op, err)
	}
	return nil
}

type cartDocument struct {
	Items     map[string]cartItemDocument `firestore:"items"`
	Total     int64                       `firestore:"total"`
	CreatedAt time.Time                   `firestore:"createdAt"`
	UpdatedAt time.Time                   `firestore:"updatedAt"`
}

func (d cartDocument) total() int64 {
	var total int64
	for _, item := range d.Items {
		price := item.BasePrice
		if item.SalePrice != nil {
			price = *item.SalePrice
		}
		total += int64(item.Quantity) * price
	}
	return total
}

func (d cartDocument) toDomain(ownerID string) domain.Cart {
	cart := domain.Cart{
		ID:         ownerID,
		OwnerID:    ownerID,
		Items:      make([]domain.CartItem, 0, len(d.Items)),
		TotalPrice: d.Total,
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}
	variantIDs := make([]string, 0, len(d.Items))
	for variantID := range d.Items {
		variantIDs = append(variantIDs, variantID)
	}
	sort.Strings(variantIDs)
	for _, variantID := range variantIDs {
		cart.Items = append(cart.Items, d.Items[variantID].toDomain(variantID))
	}
	return cart
}

type cartItemDocument struct {
	LineID    string     `firestore:"lineId"`
	ProductID string     `firestore:"productId"`
	SKU       string     `firestore:"sku,omitempty"`
	Color     string     `firestore:"color,omitempty"`
	Size      string     `firestore:"size,omitempty"`
	BasePrice int64      `firestore:"basePrice"`
	SalePrice *int64     `firestore:"salePrice,omitempty"`
	ImagePath string     `firestore:"imagePath,omitempty"`
	Quantity  int        `firestore:"quantity"`
	CreatedAt time.Time  `firestore:"createdAt"`
	UpdatedAt *time.Time `firestore:"updatedAt,omitempty"`
}

func cartItemFromDomain(item domain.CartItem) cartItemDocument {
	doc := cartItemDocument{
		LineID:    item.ID,
		ProductID: item.Variant.ProductID,
		SKU:       item.Variant.SKU,
		Color:     item.Variant.Color,
		Size:      item.Variant.Size,
		BasePrice: item.Variant.BasePrice,
		ImagePath: item.Variant.ImagePath,
		Quantity:  item.Quantity,
		CreatedAt: item.CreatedAt,
	}
	if item.Variant.SalePrice != nil {
		price := *item.Variant.SalePrice
		doc.SalePrice = &price
	}
	if item.UpdatedAt != nil {
		updated := item.UpdatedAt.UTC()
		doc.UpdatedAt = &updated
	}
	return doc
}

func (d cartItemDocument) toDomain(variantID string) domain.CartItem {
	item := domain.CartItem{
		ID: d.LineID,
		Variant: domain.Variant{
			ID:        variantID,
			ProductID: d.ProductID,
			SKU:       d.SKU,
			Color:     d.Color,
			Size:      d.Size,
			BasePrice: d.BasePrice,
			ImagePath: d.ImagePath,
		},
		Quantity:  d.Quantity,
		CreatedAt: d.CreatedAt,
	}
	if d.SalePrice != nil {
		price := *d.SalePrice
		item.Variant.SalePrice = &price
	}
	if d.UpdatedAt != nil {
		updated := *d.UpdatedAt
		item.UpdatedAt = &updated
	}
	return item
}

var _ repositories.CartRepository = (*CartRepository)(nil)
