// Package sqlite keeps the guest shopping cart in a local SQLite database so
// anonymous visitors keep their cart across restarts without any remote call.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	domain "github.com/velvette/api/internal/domain"
	"github.com/velvette/api/internal/repositories"
)

const guestCartSchema = `
PRAGMA foreign_keys = ON;

CREATE TABLE IF NOT EXISTS guest_cart(
  id TEXT PRIMARY KEY,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS guest_cart_items(
  variant_id TEXT PRIMARY KEY,
  line_id TEXT NOT NULL DEFAULT '',
  cart_id TEXT NOT NULL REFERENCES guest_cart(id) ON DELETE CASCADE,
  product_id TEXT NOT NULL,
  sku TEXT NOT NULL DEFAULT '',
  color TEXT NOT NULL DEFAULT '',
  size TEXT NOT NULL DEFAULT '',
  base_price INTEGER NOT NULL,
  sale_price INTEGER,
  image_path TEXT NOT NULL DEFAULT '',
  stock INTEGER NOT NULL DEFAULT 0,
  quantity INTEGER NOT NULL,
  created_at TEXT NOT NULL,
  updated_at TEXT
);
CREATE INDEX IF NOT EXISTS idx_guest_cart_items_cart ON guest_cart_items(cart_id);
`

// Open opens (creating if needed) the guest cart database at dsn and ensures
// the schema exists.
func Open(dsn string) (*sqlx.DB, error) {
	if dsn == "" {
		return nil, errors.New("guest cart store: dsn is required")
	}
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open guest cart db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping guest cart db: %w", err)
	}
	if _, err := db.Exec(guestCartSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure guest cart schema: %w", err)
	}
	return db, nil
}

// GuestCartStore reads and writes the single local guest cart.
type GuestCartStore struct {
	db *sqlx.DB
}

// NewGuestCartStore wraps an opened guest cart database.
func NewGuestCartStore(db *sqlx.DB) (*GuestCartStore, error) {
	if db == nil {
		return nil, errors.New("guest cart store requires database handle")
	}
	return &GuestCartStore{db: db}, nil
}

type guestCartRow struct {
	ID        string `db:"id"`
	CreatedAt string `db:"created_at"`
	UpdatedAt string `db:"updated_at"`
}

type guestCartItemRow struct {
	VariantID string         `db:"variant_id"`
	LineID    string         `db:"line_id"`
	CartID    string         `db:"cart_id"`
	ProductID string         `db:"product_id"`
	SKU       string         `db:"sku"`
	Color     string         `db:"color"`
	Size      string         `db:"size"`
	BasePrice int64          `db:"base_price"`
	SalePrice sql.NullInt64  `db:"sale_price"`
	ImagePath string         `db:"image_path"`
	Stock     int            `db:"stock"`
	Quantity  int            `db:"quantity"`
	CreatedAt string         `db:"created_at"`
	UpdatedAt sql.NullString `db:"updated_at"`
}

// Load returns the stored cart and whether one exists.
func (s *GuestCartStore) Load(ctx context.Context) (domain.Cart, bool, error) {
	var meta guestCartRow
	err := s.db.GetContext(ctx, &meta, `SELECT id, created_at, updated_at FROM guest_cart LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Cart{}, false, nil
	}
	if err != nil {
		return domain.Cart{}, false, fmt.Errorf("load guest cart: %w", err)
	}

	var rows []guestCartItemRow
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT variant_id, line_id, cart_id, product_id, sku, color, size, base_price,
		       sale_price, image_path, stock, quantity, created_at, updated_at
		FROM guest_cart_items
		WHERE cart_id = ?
		ORDER BY created_at ASC, variant_id ASC
	`, meta.ID); err != nil {
		return domain.Cart{}, false, fmt.Errorf("load guest cart items: %w", err)
	}

	cart := domain.Cart{
		ID:        meta.ID,
		OwnerID:   domain.GuestOwnerID,
		Items:     make([]domain.CartItem, 0, len(rows)),
		CreatedAt: parseStoredTime(meta.CreatedAt),
		UpdatedAt: parseStoredTime(meta.UpdatedAt),
	}
	for _, row := range rows {
		lineID := row.LineID
		if lineID == "" {
			// Rows written before line ids were stored fall back to the
			// variant id.
			lineID = row.VariantID
		}
		item := domain.CartItem{
			ID: lineID,
			Variant: domain.Variant{
				ID:        row.VariantID,
				ProductID: row.ProductID,
				SKU:       row.SKU,
				Color:     row.Color,
				Size:      row.Size,
				BasePrice: row.BasePrice,
				ImagePath: row.ImagePath,
				Stock:     row.Stock,
			},
			Quantity:  row.Quantity,
			CreatedAt: parseStoredTime(row.CreatedAt),
		}
		if row.SalePrice.Valid {
			sale := row.SalePrice.Int64
			item.Variant.SalePrice = &sale
		}
		if row.UpdatedAt.Valid {
			updated := parseStoredTime(row.UpdatedAt.String)
			item.UpdatedAt = &updated
		}
		cart.Items = append(cart.Items, item)
		cart.TotalPrice += item.LineTotal()
	}
	return cart, true, nil
}

// Save replaces the stored cart wholesale inside a transaction.
func (s *GuestCartStore) Save(ctx context.Context, cart domain.Cart) error {
	if cart.ID == "" {
		return errors.New("guest cart store: cart id is required")
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin guest cart save: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM guest_cart_items`); err != nil {
		return fmt.Errorf("clear guest cart items: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM guest_cart`); err != nil {
		return fmt.Errorf("clear guest cart: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO guest_cart(id, created_at, updated_at) VALUES(?,?,?)`,
		cart.ID, formatStoredTime(cart.CreatedAt), formatStoredTime(cart.UpdatedAt),
	); err != nil {
		return fmt.Errorf("save guest cart: %w", err)
	}

	for _, item := range cart.Items {
		var salePrice any
		if item.Variant.SalePrice != nil {
			salePrice = *item.Variant.SalePrice
		}
		var updatedAt any
		if item.UpdatedAt != nil {
			updatedAt = formatStoredTime(*item.UpdatedAt)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO guest_cart_items(
				variant_id, line_id, cart_id, product_id, sku, color, size, base_price,
				sale_price, image_path, stock, quantity, created_at, updated_at
			) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		`,
			item.Variant.ID, item.ID, cart.ID, item.Variant.ProductID, item.Variant.SKU,
			item.Variant.Color, item.Variant.Size, item.Variant.BasePrice,
			salePrice, item.Variant.ImagePath, item.Variant.Stock,
			item.Quantity, formatStoredTime(item.CreatedAt), updatedAt,
		); err != nil {
			return fmt.Errorf("save guest cart item %s: %w", item.Variant.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit guest cart save: %w", err)
	}
	return nil
}

// Clear removes the stored cart entirely.
func (s *GuestCartStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM guest_cart_items`); err != nil {
		return fmt.Errorf("clear guest cart items: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM guest_cart`); err != nil {
		return fmt.Errorf("clear guest cart: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *GuestCartStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func formatStoredTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseStoredTime(raw string) time.Time {
	parsed, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return parsed.UTC()
}

var _ repositories.GuestCartStore = (*GuestCartStore)(nil)
