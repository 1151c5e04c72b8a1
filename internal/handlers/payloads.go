package handlers

import (
	"strings"

	"github.com/velvette/api/internal/services"
)

type variantPayload struct {
	ID        string `json:"id"`
	ProductID string `json:"product_id,omitempty"`
	SKU       string `json:"sku,omitempty"`
	Color     string `json:"color,omitempty"`
	Size      string `json:"size,omitempty"`
	BasePrice int64  `json:"base_price"`
	SalePrice *int64 `json:"sale_price,omitempty"`
	UnitPrice int64  `json:"unit_price"`
	ImagePath string `json:"image_path,omitempty"`
	Stock     int    `json:"stock"`
}

func buildVariantPayload(v services.Variant) variantPayload {
	payload := variantPayload{
		ID:        v.ID,
		ProductID: v.ProductID,
		SKU:       v.SKU,
		Color:     v.Color,
		Size:      v.Size,
		BasePrice: v.BasePrice,
		UnitPrice: v.EffectiveUnitPrice(),
		ImagePath: v.ImagePath,
		Stock:     v.Stock,
	}
	if v.SalePrice != nil {
		sale := *v.SalePrice
		payload.SalePrice = &sale
	}
	return payload
}

type cartItemPayload struct {
	Variant   variantPayload `json:"variant"`
	Quantity  int            `json:"quantity"`
	LineTotal int64          `json:"line_total"`
	AddedAt   string         `json:"added_at,omitempty"`
	UpdatedAt string         `json:"updated_at,omitempty"`
}

type cartPayload struct {
	ID         string            `json:"id"`
	OwnerID    string            `json:"owner_id"`
	Items      []cartItemPayload `json:"items"`
	ItemsCount int               `json:"items_count"`
	TotalPrice int64             `json:"total_price"`
	UpdatedAt  string            `json:"updated_at,omitempty"`
}

func buildCartPayload(cart services.Cart) cartPayload {
	payload := cartPayload{
		ID:         cart.ID,
		OwnerID:    cart.OwnerID,
		Items:      make([]cartItemPayload, 0, len(cart.Items)),
		ItemsCount: len(cart.Items),
		TotalPrice: cart.TotalPrice,
		UpdatedAt:  formatTime(cart.UpdatedAt),
	}
	for _, item := range cart.Items {
		payload.Items = append(payload.Items, cartItemPayload{
			Variant:   buildVariantPayload(item.Variant),
			Quantity:  item.Quantity,
			LineTotal: item.LineTotal(),
			AddedAt:   formatTime(item.CreatedAt),
			UpdatedAt: formatTimePointer(item.UpdatedAt),
		})
	}
	return payload
}

type addressPayload struct {
	ID        string `json:"id,omitempty"`
	Recipient string `json:"recipient"`
	Phone     string `json:"phone"`
	Line1     string `json:"line1"`
	Ward      string `json:"ward,omitempty"`
	District  string `json:"district,omitempty"`
	City      string `json:"city"`
	IsDefault bool   `json:"is_default"`
	CreatedAt string `json:"created_at,omitempty"`
}

func buildAddressPayload(addr services.Address) addressPayload {
	return addressPayload{
		ID:        addr.ID,
		Recipient: addr.Recipient,
		Phone:     addr.Phone,
		Line1:     addr.Line1,
		Ward:      addr.Ward,
		District:  addr.District,
		City:      addr.City,
		IsDefault: addr.IsDefault,
		CreatedAt: formatTime(addr.CreatedAt),
	}
}

type addressRequest struct {
	Recipient string `json:"recipient"`
	Phone     string `json:"phone"`
	Line1     string `json:"line1"`
	Ward      string `json:"ward"`
	District  string `json:"district"`
	City      string `json:"city"`
	IsDefault bool   `json:"is_default"`
}

func (r addressRequest) toAddress() services.Address {
	return services.Address{
		Recipient: strings.TrimSpace(r.Recipient),
		Phone:     strings.TrimSpace(r.Phone),
		Line1:     strings.TrimSpace(r.Line1),
		Ward:      strings.TrimSpace(r.Ward),
		District:  strings.TrimSpace(r.District),
		City:      strings.TrimSpace(r.City),
		IsDefault: r.IsDefault,
	}
}

type orderPayload struct {
	ID              string            `json:"id"`
	UserID          string            `json:"user_id,omitempty"`
	ShippingAddress addressPayload    `json:"shipping_address"`
	Items           []cartItemPayload `json:"items"`
	Subtotal        int64             `json:"subtotal"`
	ShippingFee     int64             `json:"shipping_fee"`
	Discount        int64             `json:"discount"`
	FinalPrice      int64             `json:"final_price"`
	Note            string            `json:"note,omitempty"`
	PaymentMethod   string            `json:"payment_method"`
	Status          string            `json:"status"`
	PaymentIntentID *string           `json:"payment_intent_id,omitempty"`
	CreatedAt       string            `json:"created_at"`
	UpdatedAt       string            `json:"updated_at,omitempty"`
	StatusChangedAt string            `json:"status_changed_at,omitempty"`
}

func buildOrderPayload(order services.Order) orderPayload {
	payload := orderPayload{
		ID:              order.ID,
		UserID:          order.UserID,
		ShippingAddress: buildAddressPayload(order.ShippingAddress),
		Items:           make([]cartItemPayload, 0, len(order.Items)),
		Subtotal:        order.Subtotal,
		ShippingFee:     order.ShippingFee,
		Discount:        order.Discount,
		FinalPrice:      order.FinalPrice,
		Note:            order.Note,
		PaymentMethod:   string(order.PaymentMethod),
		Status:          string(order.Status),
		PaymentIntentID: cloneStringPointer(order.PaymentIntentID),
		CreatedAt:       formatTime(order.CreatedAt),
		UpdatedAt:       formatTime(order.UpdatedAt),
		StatusChangedAt: formatTimePointer(order.StatusChangedAt),
	}
	for _, item := range order.Items {
		payload.Items = append(payload.Items, cartItemPayload{
			Variant:   buildVariantPayload(item.Variant),
			Quantity:  item.Quantity,
			LineTotal: item.LineTotal(),
		})
	}
	return payload
}

type productPayload struct {
	ID            string           `json:"id"`
	Name          string           `json:"name"`
	Slug          string           `json:"slug,omitempty"`
	Description   string           `json:"description,omitempty"`
	CategoryID    string           `json:"category_id,omitempty"`
	CollectionIDs []string         `json:"collection_ids,omitempty"`
	Variants      []variantPayload `json:"variants"`
	ImagePaths    []string         `json:"image_paths,omitempty"`
	IsPublished   bool             `json:"is_published"`
	CreatedAt     string           `json:"created_at,omitempty"`
	UpdatedAt     string           `json:"updated_at,omitempty"`
}

func buildProductPayload(product services.Product) productPayload {
	payload := productPayload{
		ID:            product.ID,
		Name:          product.Name,
		Slug:          product.Slug,
		Description:   product.Description,
		CategoryID:    product.CategoryID,
		CollectionIDs: product.CollectionIDs,
		Variants:      make([]variantPayload, 0, len(product.Variants)),
		ImagePaths:    product.ImagePaths,
		IsPublished:   product.IsPublished,
		CreatedAt:     formatTime(product.CreatedAt),
		UpdatedAt:     formatTime(product.UpdatedAt),
	}
	for _, variant := range product.Variants {
		payload.Variants = append(payload.Variants, buildVariantPayload(variant))
	}
	return payload
}

type collectionPayload struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Slug        string `json:"slug,omitempty"`
	Description string `json:"description,omitempty"`
	ImagePath   string `json:"image_path,omitempty"`
	IsPublished bool   `json:"is_published"`
	CreatedAt   string `json:"created_at,omitempty"`
	UpdatedAt   string `json:"updated_at,omitempty"`
}

func buildCollectionPayload(collection services.Collection) collectionPayload {
	return collectionPayload{
		ID:          collection.ID,
		Name:        collection.Name,
		Slug:        collection.Slug,
		Description: collection.Description,
		ImagePath:   collection.ImagePath,
		IsPublished: collection.IsPublished,
		CreatedAt:   formatTime(collection.CreatedAt),
		UpdatedAt:   formatTime(collection.UpdatedAt),
	}
}

type outfitPayload struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	ProductIDs  []string `json:"product_ids"`
	ImagePath   string   `json:"image_path,omitempty"`
	IsPublished bool     `json:"is_published"`
	CreatedAt   string   `json:"created_at,omitempty"`
	UpdatedAt   string   `json:"updated_at,omitempty"`
}

func buildOutfitPayload(outfit services.Outfit) outfitPayload {
	return outfitPayload{
		ID:          outfit.ID,
		Name:        outfit.Name,
		Description: outfit.Description,
		ProductIDs:  outfit.ProductIDs,
		ImagePath:   outfit.ImagePath,
		IsPublished: outfit.IsPublished,
		CreatedAt:   formatTime(outfit.CreatedAt),
		UpdatedAt:   formatTime(outfit.UpdatedAt),
	}
}

type categoryPayload struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Slug     string  `json:"slug,omitempty"`
	ParentID *string `json:"parent_id,omitempty"`
}

func buildCategoryPayload(category services.Category) categoryPayload {
	return categoryPayload{
		ID:       category.ID,
		Name:     category.Name,
		Slug:     category.Slug,
		ParentID: cloneStringPointer(category.ParentID),
	}
}

type colorPayload struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Hex  string `json:"hex"`
}

type sizePayload struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	SortIndex int    `json:"sort_index"`
}

type profilePayload struct {
	ID          string   `json:"id"`
	DisplayName string   `json:"display_name,omitempty"`
	Email       string   `json:"email,omitempty"`
	PhoneNumber string   `json:"phone_number,omitempty"`
	PhotoURL    string   `json:"photo_url,omitempty"`
	Roles       []string `json:"roles"`
	IsActive    bool     `json:"is_active"`
	CreatedAt   string   `json:"created_at,omitempty"`
	UpdatedAt   string   `json:"updated_at,omitempty"`
}

func buildProfilePayload(profile services.UserProfile) profilePayload {
	return profilePayload{
		ID:          profile.ID,
		DisplayName: profile.DisplayName,
		Email:       profile.Email,
		PhoneNumber: profile.PhoneNumber,
		PhotoURL:    profile.PhotoURL,
		Roles:       profile.Roles,
		IsActive:    profile.IsActive,
		CreatedAt:   formatTime(profile.CreatedAt),
		UpdatedAt:   formatTime(profile.UpdatedAt),
	}
}

type galleryImagePayload struct {
	ID          string `json:"id"`
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	StoragePath string `json:"storage_path"`
	SizeBytes   int64  `json:"size_bytes,omitempty"`
	UploadedBy  string `json:"uploaded_by,omitempty"`
	CreatedAt   string `json:"created_at,omitempty"`
}

func buildGalleryImagePayload(image services.GalleryImage) galleryImagePayload {
	return galleryImagePayload{
		ID:          image.ID,
		FileName:    image.FileName,
		ContentType: image.ContentType,
		StoragePath: image.StoragePath,
		SizeBytes:   image.SizeBytes,
		UploadedBy:  image.UploadedBy,
		CreatedAt:   formatTime(image.CreatedAt),
	}
}

type signedAssetPayload struct {
	ImageID   string            `json:"image_id,omitempty"`
	URL       string            `json:"url"`
	Method    string            `json:"method"`
	ExpiresAt string            `json:"expires_at"`
	Headers   map[string]string `json:"headers,omitempty"`
}

func buildSignedAssetPayload(signed services.SignedAssetResponse) signedAssetPayload {
	return signedAssetPayload{
		ImageID:   signed.ImageID,
		URL:       signed.URL,
		Method:    signed.Method,
		ExpiresAt: formatTime(signed.ExpiresAt),
		Headers:   signed.Headers,
	}
}
