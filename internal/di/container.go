package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/velvette/api/internal/platform/auth"
	"github.com/velvette/api/internal/platform/config"
	"github.com/velvette/api/internal/repositories"
	"github.com/velvette/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Cart    services.CartService
	Orders  services.OrderService
	Catalog services.CatalogService
	Users   services.UserService
	Gallery services.GalleryService
	System  services.SystemService
}

// ContainerDeps carries the externally constructed collaborators the container
// cannot build itself: the datastore registry, the on-device guest store, the
// sync outbox, and the third-party clients for payments, events, identity, and
// object storage.
type ContainerDeps struct {
	Config     config.Config
	Registry   repositories.Registry
	GuestStore repositories.GuestCartStore
	Sync       services.CartSyncQueue
	Payments   services.PaymentIntentCreator
	Events     services.OrderEventPublisher
	Firebase   auth.UserGetter
	Storage    services.GalleryStorage
	Build      services.BuildInfo

	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(context.Context, string, map[string]any)
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies. Production wiring provides real
// implementations, while tests can supply in-memory registries and stub collaborators.
func NewContainer(deps ContainerDeps) (*Container, error) {
	if deps.Registry == nil {
		return nil, errors.New("repositories registry is required")
	}
	if deps.GuestStore == nil {
		return nil, errors.New("guest cart store is required")
	}
	if deps.Firebase == nil {
		return nil, errors.New("firebase user getter is required")
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}

	svc, err := buildServices(deps)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       deps.Config,
		Repositories: deps.Registry,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(deps ContainerDeps) (Services, error) {
	var svc Services
	reg := deps.Registry

	cartSvc, err := services.NewCartService(services.CartServiceDeps{
		Remote:      reg.Carts(),
		GuestStore:  deps.GuestStore,
		Sync:        deps.Sync,
		Clock:       deps.Clock,
		IDGenerator: deps.IDGenerator,
		Logger:      deps.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build cart service: %w", err)
	}
	svc.Cart = cartSvc

	catalogSvc, err := services.NewCatalogService(services.CatalogServiceDeps{
		Repository:  reg.Catalog(),
		Clock:       deps.Clock,
		IDGenerator: deps.IDGenerator,
		Logger:      deps.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build catalog service: %w", err)
	}
	svc.Catalog = catalogSvc

	userSvc, err := services.NewUserService(services.UserServiceDeps{
		Users:       reg.Users(),
		Addresses:   reg.Addresses(),
		Firebase:    deps.Firebase,
		Clock:       deps.Clock,
		IDGenerator: deps.IDGenerator,
		Logger:      deps.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build user service: %w", err)
	}
	svc.Users = userSvc

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Repository:         reg.Orders(),
		Addresses:          reg.Addresses(),
		Carts:              cartSvc,
		Payments:           deps.Payments,
		Events:             deps.Events,
		Clock:              deps.Clock,
		IDGenerator:        deps.IDGenerator,
		Logger:             deps.Logger,
		DefaultShippingFee: deps.Config.Checkout.ShippingFee,
		Currency:           deps.Config.Checkout.Currency,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	// The gallery is optional: deployments without a bucket simply do not
	// expose the back-office image endpoints.
	if deps.Storage != nil {
		gallerySvc, err := services.NewGalleryService(services.GalleryServiceDeps{
			Repository:  reg.Gallery(),
			Storage:     deps.Storage,
			Clock:       deps.Clock,
			IDGenerator: deps.IDGenerator,
			Logger:      deps.Logger,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build gallery service: %w", err)
		}
		svc.Gallery = gallerySvc
	}

	systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
		HealthRepository: reg.Health(),
		Clock:            deps.Clock,
		Build:            deps.Build,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build system service: %w", err)
	}
	svc.System = systemSvc

	return svc, nil
}
