package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/velvette/api/internal/domain"
	pfirestore "github.com/velvette/api/internal/platform/firestore"
	"github.com/velvette/api/internal/platform/pagination"
	"github.com/velvette/api/internal/repositories"
)

const (
	orderCollection       = "orders"
	defaultOrderPageSize  = 20
	maxOrderPageSize      = 100
	maxOrderStatusFilters = 10
)

// OrderRepository stores orders in Firestore. Order documents are written
// once; only the status fields mutate afterwards.
type OrderRepository struct {
	base     *pfirestore.BaseRepository[orderDocument]
	provider *pfirestore.Provider
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		base:     pfirestore.NewBaseRepository[orderDocument](provider, orderCollection, nil, nil),
		provider: provider,
	}, nil
}

// Insert writes a new order document.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	orderID := strings.TrimSpace(order.ID)
	if orderID == "" {
		return errors.New("order repository: order id is required")
	}
	if _, err := r.base.Set(ctx, orderID, orderDocumentFromDomain(order)); err != nil {
		return err
	}
	return nil
}

// FindByID reads a single order.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}
	doc, err := r.base.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return doc.Data.toDomain(orderID), nil
}

// UpdateStatus transitions the order status inside a transaction and records
// who changed it.
func (r *OrderRepository) UpdateStatus(ctx context.Context, orderID string, newStatus domain.OrderStatus, changedBy string, changedAt time.Time) (domain.Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}
	ref, err := r.base.DocumentRef(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}

	var saved domain.Order
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode order %s: %w", orderID, err)
		}
		changedAt = changedAt.UTC()
		doc.Status = string(newStatus)
		doc.StatusChangedAt = &changedAt
		if trimmed := strings.TrimSpace(changedBy); trimmed != "" {
			doc.StatusChangedBy = &trimmed
		}
		doc.UpdatedAt = changedAt
		if err := tx.Set(ref, doc); err != nil {
			return err
		}
		saved = doc.toDomain(orderID)
		return nil
	})
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.updateStatus", err)
	}
	return saved, nil
}

// List returns a filtered, cursor-paginated order page ordered by creation
// time descending.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	pageSize := filter.Pagination.PageSize
	if pageSize <= 0 {
		pageSize = defaultOrderPageSize
	}
	if pageSize > maxOrderPageSize {
		pageSize = maxOrderPageSize
	}

	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		if userID := strings.TrimSpace(filter.UserID); userID != "" {
			query = query.Where("userId", "==", userID)
		}
		if n := len(filter.Status); n > 0 && n <= maxOrderStatusFilters {
			statuses := make([]string, 0, n)
			for _, s := range filter.Status {
				statuses = append(statuses, string(s))
			}
			query = query.Where("status", "in", statuses)
		}
		if filter.DateRange.From != nil {
			query = query.Where("createdAt", ">=", filter.DateRange.From.UTC())
		}
		if filter.DateRange.To != nil {
			query = query.Where("createdAt", "<", filter.DateRange.To.UTC())
		}
		query = query.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Asc)
		if cursor, err := pagination.DecodeToken(filter.Pagination.PageToken); err == nil && len(cursor.StartAfter) > 0 {
			query = query.StartAfter(decodeCursorValues(cursor.StartAfter)...)
		}
		return query.Limit(pageSize + 1)
	})
	if err != nil {
		if errors.Is(err, iterator.Done) || status.Code(err) == codes.NotFound {
			return domain.CursorPage[domain.Order]{}, nil
		}
		return domain.CursorPage[domain.Order]{}, err
	}

	page := domain.CursorPage[domain.Order]{Items: make([]domain.Order, 0, len(docs))}
	for i, doc := range docs {
		if i == pageSize {
			last := docs[pageSize-1]
			token, err := pagination.EncodeToken(pagination.Cursor{
				StartAfter: []any{last.Data.CreatedAt.Format(time.RFC3339Nano), last.ID},
			})
			if err != nil {
				return domain.CursorPage[domain.Order]{}, err
			}
			page.NextPageToken = token
			break
		}
		page.Items = append(page.Items, doc.Data.toDomain(doc.ID))
	}
	return page, nil
}

type orderDocument struct {
	UserID          string                 `firestore:"userId,omitempty"`
	Address         orderAddressDocument   `firestore:"address"`
	AddressID       string                 `firestore:"addressId,omitempty"`
	Items           []orderItemDocument    `firestore:"items"`
	Subtotal        int64                  `firestore:"subtotal"`
	ShippingFee     int64                  `firestore:"shippingFee"`
	Discount        int64                  `firestore:"discount"`
	FinalPrice      int64                  `firestore:"finalPrice"`
	Note            string                 `firestore:"note,omitempty"`
	PaymentMethod   string                 `firestore:"paymentMethod"`
	Status          string                 `firestore:"status"`
	PaymentIntentID *string                `firestore:"paymentIntentId,omitempty"`
	StatusChangedAt *time.Time             `firestore:"statusChangedAt,omitempty"`
	StatusChangedBy *string                `firestore:"statusChangedBy,omitempty"`
	CreatedAt       time.Time              `firestore:"createdAt"`
	UpdatedAt       time.Time              `firestore:"updatedAt"`
}

type orderAddressDocument struct {
	ID        string `firestore:"id,omitempty"`
	Recipient string `firestore:"recipient"`
	Phone     string `firestore:"phone"`
	Line1     string `firestore:"line1"`
	Ward      string `firestore:"ward,omitempty"`
	District  string `firestore:"district,omitempty"`
	City      string `firestore:"city"`
}

type orderItemDocument struct {
	LineID    string `firestore:"lineId"`
	VariantID string `firestore:"variantId"`
	ProductID string `firestore:"productId"`
	SKU       string `firestore:"sku,omitempty"`
	Color     string `firestore:"color,omitempty"`
	Size      string `firestore:"size,omitempty"`
	BasePrice int64  `firestore:"basePrice"`
	SalePrice *int64 `firestore:"salePrice,omitempty"`
	ImagePath string `firestore:"imagePath,omitempty"`
	Quantity  int    `firestore:"quantity"`
}

func orderDocumentFromDomain(order domain.Order) orderDocument {
	doc := orderDocument{
		UserID: strings.TrimSpace(order.UserID),
		Address: orderAddressDocument{
			ID:        order.ShippingAddress.ID,
			Recipient: order.ShippingAddress.Recipient,
			Phone:     order.ShippingAddress.Phone,
			Line1:     order.ShippingAddress.Line1,
			Ward:      order.ShippingAddress.Ward,
			District:  order.ShippingAddress.District,
			City:      order.ShippingAddress.City,
		},
		AddressID:       strings.TrimSpace(order.AddressID),
		Items:           make([]orderItemDocument, 0, len(order.Items)),
		Subtotal:        order.Subtotal,
		ShippingFee:     order.ShippingFee,
		Discount:        order.Discount,
		FinalPrice:      order.FinalPrice,
		Note:            strings.TrimSpace(order.Note),
		PaymentMethod:   string(order.PaymentMethod),
		Status:          string(order.Status),
		PaymentIntentID: order.PaymentIntentID,
		StatusChangedBy: order.StatusChangedBy,
		CreatedAt:       order.CreatedAt.UTC(),
		UpdatedAt:       order.UpdatedAt.UTC(),
	}
	if order.StatusChangedAt != nil {
		changedAt := order.StatusChangedAt.UTC()
		doc.StatusChangedAt = &changedAt
	}
	for _, item := range order.Items {
		itemDoc := orderItemDocument{
			LineID:    item.ID,
			VariantID: item.Variant.ID,
			ProductID: item.Variant.ProductID,
			SKU:       item.Variant.SKU,
			Color:     item.Variant.Color,
			Size:      item.Variant.Size,
			BasePrice: item.Variant.BasePrice,
			ImagePath: item.Variant.ImagePath,
			Quantity:  item.Quantity,
		}
		if item.Variant.SalePrice != nil {
			price := *item.Variant.SalePrice
			itemDoc.SalePrice = &price
		}
		doc.Items = append(doc.Items, itemDoc)
	}
	return doc
}

func (d orderDocument) toDomain(id string) domain.Order {
	order := domain.Order{
		ID:     id,
		UserID: d.UserID,
		ShippingAddress: domain.Address{
			ID:        d.Address.ID,
			Recipient: d.Address.Recipient,
			Phone:     d.Address.Phone,
			Line1:     d.Address.Line1,
			Ward:      d.Address.Ward,
			District:  d.Address.District,
			City:      d.Address.City,
		},
		AddressID:       d.AddressID,
		Items:           make([]domain.CartItem, 0, len(d.Items)),
		Subtotal:        d.Subtotal,
		ShippingFee:     d.ShippingFee,
		Discount:        d.Discount,
		FinalPrice:      d.FinalPrice,
		Note:            d.Note,
		PaymentMethod:   domain.PaymentMethod(d.PaymentMethod),
		Status:          domain.OrderStatus(d.Status),
		PaymentIntentID: d.PaymentIntentID,
		StatusChangedAt: d.StatusChangedAt,
		StatusChangedBy: d.StatusChangedBy,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
	for _, item := range d.Items {
		domainItem := domain.CartItem{
			ID: item.LineID,
			Variant: domain.Variant{
				ID:        item.VariantID,
				ProductID: item.ProductID,
				SKU:       item.SKU,
				Color:     item.Color,
				Size:      item.Size,
				BasePrice: item.BasePrice,
				ImagePath: item.ImagePath,
			},
			Quantity: item.Quantity,
		}
		if item.SalePrice != nil {
			price := *item.SalePrice
			domainItem.Variant.SalePrice = &price
		}
		order.Items = append(order.Items, domainItem)
	}
	return order
}

// decodeCursorValues restores timestamp cursor components that the JSON
// page-token round trip flattened into RFC3339 strings.
func decodeCursorValues(values []any) []any {
	out := make([]any, len(values))
	for i, value := range values {
		if text, ok := value.(string); ok {
			if ts, err := time.Parse(time.RFC3339Nano, text); err == nil && i == 0 {
				out[i] = ts
				continue
			}
		}
		out[i] = value
	}
	return out
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

