package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/velvette/api/internal/domain"
	pfirestore "github.com/velvette/api/internal/platform/firestore"
	"github.com/velvette/api/internal/repositories"
)

const (
	userCollection      = "users"
	defaultUserPageSize = 20
	maxUserPageSize     = 100
)

// UserRepository stores user profiles mirrored from Firebase identities.
type UserRepository struct {
	base     *pfirestore.BaseRepository[userDocument]
	provider *pfirestore.Provider
}

// NewUserRepository constructs a Firestore-backed user repository.
func NewUserRepository(provider *pfirestore.Provider) (*UserRepository, error) {
	if provider == nil {
		return nil, errors.New("user repository requires firestore provider")
	}
	return &UserRepository{
		base:     pfirestore.NewBaseRepository[userDocument](provider, userCollection, nil, nil),
		provider: provider,
	}, nil
}

// FindByID reads a profile by Firebase UID.
func (r *UserRepository) FindByID(ctx context.Context, userID string) (domain.UserProfile, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.UserProfile{}, errors.New("user repository: user id is required")
	}
	doc, err := r.base.Get(ctx, userID)
	if err != nil {
		return domain.UserProfile{}, err
	}
	return doc.Data.toDomain(userID), nil
}

// Upsert writes the whole profile document.
func (r *UserRepository) Upsert(ctx context.Context, profile domain.UserProfile) (domain.UserProfile, error) {
	userID := strings.TrimSpace(profile.ID)
	if userID == "" {
		return domain.UserProfile{}, errors.New("user repository: user id is required")
	}
	doc := userDocumentFromDomain(profile)
	if _, err := r.base.Set(ctx, userID, doc); err != nil {
		return domain.UserProfile{}, err
	}
	return doc.toDomain(userID), nil
}

// List returns profiles for the admin back office ordered by creation time.
func (r *UserRepository) List(ctx context.Context, filter repositories.UserListFilter) (domain.CursorPage[domain.UserProfile], error) {
	pageSize := filter.Pagination.PageSize
	if pageSize <= 0 {
		pageSize = defaultUserPageSize
	}
	if pageSize > maxUserPageSize {
		pageSize = maxUserPageSize
	}

	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		if filter.IsActive != nil {
			query = query.Where("isActive", "==", *filter.IsActive)
		}
		return query.OrderBy("createdAt", firestore.Desc).Limit(pageSize)
	})
	if err != nil {
		return domain.CursorPage[domain.UserProfile]{}, err
	}
	page := domain.CursorPage[domain.UserProfile]{Items: make([]domain.UserProfile, 0, len(docs))}
	for _, doc := range docs {
		page.Items = append(page.Items, doc.Data.toDomain(doc.ID))
	}
	return page, nil
}

// SetActive flips the account flag in place.
func (r *UserRepository) SetActive(ctx context.Context, userID string, active bool, updatedAt time.Time) (domain.UserProfile, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.UserProfile{}, errors.New("user repository: user id is required")
	}
	if _, err := r.base.Update(ctx, userID, []firestore.Update{
		{Path: "isActive", Value: active},
		{Path: "updatedAt", Value: updatedAt.UTC()},
	}); err != nil {
		return domain.UserProfile{}, err
	}
	return r.FindByID(ctx, userID)
}

type userDocument struct {
	DisplayName string    `firestore:"displayName,omitempty"`
	Email       string    `firestore:"email,omitempty"`
	PhoneNumber string    `firestore:"phoneNumber,omitempty"`
	PhotoURL    string    `firestore:"photoUrl,omitempty"`
	Roles       []string  `firestore:"roles,omitempty"`
	IsActive    bool      `firestore:"isActive"`
	CreatedAt   time.Time `firestore:"createdAt"`
	UpdatedAt   time.Time `firestore:"updatedAt"`
}

func userDocumentFromDomain(profile domain.UserProfile) userDocument {
	return userDocument{
		DisplayName: profile.DisplayName,
		Email:       profile.Email,
		PhoneNumber: profile.PhoneNumber,
		PhotoURL:    profile.PhotoURL,
		Roles:       append([]string(nil), profile.Roles...),
		IsActive:    profile.IsActive,
		CreatedAt:   profile.CreatedAt.UTC(),
		UpdatedAt:   profile.UpdatedAt.UTC(),
	}
}

func (d userDocument) toDomain(id string) domain.UserProfile {
	return domain.UserProfile{
		ID:          id,
		DisplayName: d.DisplayName,
		Email:       d.Email,
		PhoneNumber: d.PhoneNumber,
		PhotoURL:    d.PhotoURL,
		Roles:       append([]string(nil), d.Roles...),
		IsActive:    d.IsActive,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

var _ repositories.UserRepository = (*UserRepository)(nil)
