package firestore

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	pfirestore "github.com/velvette/api/internal/platform/firestore"
	"github.com/velvette/api/internal/repositories"
)

// Registry bundles the Firestore-backed repositories behind the
// repositories.Registry contract so the container can wire services without
// knowing about individual constructors.
type Registry struct {
	provider *pfirestore.Provider

	carts     *CartRepository
	orders    *OrderRepository
	addresses *AddressRepository
	users     *UserRepository
	catalog   *CatalogRepository
	gallery   *GalleryRepository
	health    repositories.HealthRepository
}

// RegistryDeps carries the inputs needed to build the Firestore registry.
type RegistryDeps struct {
	Provider *pfirestore.Provider
	// ExtraChecks are appended to the Firestore probe in the health report,
	// letting the caller register storage, pubsub, or payment probes.
	ExtraChecks []repositories.DependencyCheck
}

// NewRegistry constructs every Firestore repository plus a health repository
// that probes the datastore connection.
func NewRegistry(deps RegistryDeps) (*Registry, error) {
	if deps.Provider == nil {
		return nil, errors.New("firestore registry requires provider")
	}

	reg := &Registry{provider: deps.Provider}

	var err error
	if reg.carts, err = NewCartRepository(deps.Provider); err != nil {
		return nil, fmt.Errorf("build cart repository: %w", err)
	}
	if reg.orders, err = NewOrderRepository(deps.Provider); err != nil {
		return nil, fmt.Errorf("build order repository: %w", err)
	}
	if reg.addresses, err = NewAddressRepository(deps.Provider); err != nil {
		return nil, fmt.Errorf("build address repository: %w", err)
	}
	if reg.users, err = NewUserRepository(deps.Provider); err != nil {
		return nil, fmt.Errorf("build user repository: %w", err)
	}
	if reg.catalog, err = NewCatalogRepository(deps.Provider); err != nil {
		return nil, fmt.Errorf("build catalog repository: %w", err)
	}
	if reg.gallery, err = NewGalleryRepository(deps.Provider); err != nil {
		return nil, fmt.Errorf("build gallery repository: %w", err)
	}

	checks := append([]repositories.DependencyCheck{
		{Name: "firestore", Check: firestorePing(deps.Provider)},
	}, deps.ExtraChecks...)
	if reg.health, err = repositories.NewDependencyHealthRepository(checks); err != nil {
		return nil, fmt.Errorf("build health repository: %w", err)
	}

	return reg, nil
}

// Close releases the Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

// Carts returns the cart repository.
func (r *Registry) Carts() repositories.CartRepository { return r.carts }

// Orders returns the order repository.
func (r *Registry) Orders() repositories.OrderRepository { return r.orders }

// Addresses returns the address repository.
func (r *Registry) Addresses() repositories.AddressRepository { return r.addresses }

// Users returns the user repository.
func (r *Registry) Users() repositories.UserRepository { return r.users }

// Catalog returns the catalog repository.
func (r *Registry) Catalog() repositories.CatalogRepository { return r.catalog }

// Gallery returns the gallery repository.
func (r *Registry) Gallery() repositories.GalleryRepository { return r.gallery }

// Health returns the dependency health repository.
func (r *Registry) Health() repositories.HealthRepository { return r.health }

// RunInTx executes fn inside a Firestore transaction.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if r == nil || r.provider == nil {
		return errors.New("firestore registry not initialised")
	}
	return r.provider.RunTransaction(ctx, func(ctx context.Context, _ *firestore.Transaction) error {
		return fn(ctx)
	})
}

func firestorePing(provider *pfirestore.Provider) func(context.Context) error {
	return func(ctx context.Context) error {
		client, err := provider.Client(ctx)
		if err != nil {
			return err
		}
		iter := client.Collections(ctx)
		defer iter.Stop()
		if _, err := iter.Next(); err != nil && !errors.Is(err, iterator.Done) {
			return err
		}
		return nil
	}
}

var _ repositories.Registry = (*Registry)(nil)
