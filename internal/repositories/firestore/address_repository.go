package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	domain "github.com/velvette/api/internal/domain"
	pfirestore "github.com/velvette/api/internal/platform/firestore"
	"github.com/velvette/api/internal/repositories"
)

const (
	addressCollectionPattern = "users/%s/addresses"
	guestAddressCollection   = "guest_addresses"
)

// AddressRepository persists saved addresses under each user document, plus
// throwaway guest checkout records in a flat collection.
type AddressRepository struct {
	provider *pfirestore.Provider
}

// NewAddressRepository constructs a Firestore-backed address repository.
func NewAddressRepository(provider *pfirestore.Provider) (*AddressRepository, error) {
	if provider == nil {
		return nil, errors.New("address repository requires firestore provider")
	}
	return &AddressRepository{provider: provider}, nil
}

// List returns all addresses for the specified user, newest first.
func (r *AddressRepository) List(ctx context.Context, userID string) ([]domain.Address, error) {
	coll, err := r.collection(ctx, userID)
	if err != nil {
		return nil, err
	}

	iter := coll.OrderBy("createdAt", firestore.Desc).Documents(ctx)
	defer iter.Stop()

	var results []domain.Address
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, pfirestore.WrapError("addresses.list", err)
		}
		addr, err := decodeAddressDocument(snap, userID)
		if err != nil {
			return nil, err
		}
		results = append(results, addr)
	}
	return results, nil
}

// Get reads one saved address.
func (r *AddressRepository) Get(ctx context.Context, userID string, addressID string) (domain.Address, error) {
	coll, err := r.collection(ctx, userID)
	if err != nil {
		return domain.Address{}, err
	}
	id := strings.TrimSpace(addressID)
	if id == "" {
		return domain.Address{}, errors.New("address repository: address id is required")
	}
	snap, err := coll.Doc(id).Get(ctx)
	if err != nil {
		return domain.Address{}, pfirestore.WrapError("addresses.get", err)
	}
	return decodeAddressDocument(snap, userID)
}

// Upsert writes an address document keyed by its ID.
func (r *AddressRepository) Upsert(ctx context.Context, addr domain.Address) (domain.Address, error) {
	coll, err := r.collection(ctx, addr.UserID)
	if err != nil {
		return domain.Address{}, err
	}
	id := strings.TrimSpace(addr.ID)
	if id == "" {
		return domain.Address{}, errors.New("address repository: address id is required")
	}
	doc := addressDocumentFromDomain(addr)
	if _, err := coll.Doc(id).Set(ctx, doc); err != nil {
		return domain.Address{}, pfirestore.WrapError("addresses.upsert", err)
	}
	return doc.toDomain(id, addr.UserID), nil
}

// Delete removes the specified address document.
func (r *AddressRepository) Delete(ctx context.Context, userID string, addressID string) error {
	coll, err := r.collection(ctx, userID)
	if err != nil {
		return err
	}
	id := strings.TrimSpace(addressID)
	if id == "" {
		return errors.New("address repository: address id is required")
	}
	if _, err := coll.Doc(id).Delete(ctx); err != nil {
		return pfirestore.WrapError("addresses.delete", err)
	}
	return nil
}

// InsertGuest stores a one-off checkout address outside any user document.
func (r *AddressRepository) InsertGuest(ctx context.Context, addr domain.Address) (domain.Address, error) {
	if r == nil || r.provider == nil {
		return domain.Address{}, errors.New("address repository not initialised")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Address{}, err
	}
	doc := addressDocumentFromDomain(addr)
	ref := client.Collection(guestAddressCollection).NewDoc()
	if _, err := ref.Set(ctx, doc); err != nil {
		return domain.Address{}, pfirestore.WrapError("addresses.insertGuest", err)
	}
	return doc.toDomain(ref.ID, ""), nil
}

func (r *AddressRepository) collection(ctx context.Context, userID string) (*firestore.CollectionRef, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("address repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return nil, errors.New("address repository: user id is required")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(fmt.Sprintf(addressCollectionPattern, uid)), nil
}

func decodeAddressDocument(snapshot *firestore.DocumentSnapshot, userID string) (domain.Address, error) {
	var doc addressDocument
	if err := snapshot.DataTo(&doc); err != nil {
		return domain.Address{}, fmt.Errorf("decode address %s: %w", snapshot.Ref.ID, err)
	}
	return doc.toDomain(snapshot.Ref.ID, userID), nil
}

type addressDocument struct {
	Recipient string    `firestore:"recipient"`
	Phone     string    `firestore:"phone"`
	Line1     string    `firestore:"line1"`
	Ward      string    `firestore:"ward,omitempty"`
	District  string    `firestore:"district,omitempty"`
	City      string    `firestore:"city"`
	IsDefault bool      `firestore:"isDefault"`
	CreatedAt time.Time `firestore:"createdAt"`
}

func addressDocumentFromDomain(addr domain.Address) addressDocument {
	createdAt := addr.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	return addressDocument{
		Recipient: addr.Recipient,
		Phone:     addr.Phone,
		Line1:     addr.Line1,
		Ward:      addr.Ward,
		District:  addr.District,
		City:      addr.City,
		IsDefault: addr.IsDefault,
		CreatedAt: createdAt,
	}
}

func (d addressDocument) toDomain(id, userID string) domain.Address {
	return domain.Address{
		ID:        id,
		UserID:    userID,
		Recipient: d.Recipient,
		Phone:     d.Phone,
		Line1:     d.Line1,
		Ward:      d.Ward,
		District:  d.District,
		City:      d.City,
		IsDefault: d.IsDefault,
		CreatedAt: d.CreatedAt,
	}
}

var _ repositories.AddressRepository = (*AddressRepository)(nil)
