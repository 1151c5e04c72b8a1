package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	firebaseauth "firebase.google.com/go/v4/auth"
	"github.com/oklog/ulid/v2"

	domain "github.com/velvette/api/internal/domain"
	"github.com/velvette/api/internal/platform/auth"
	"github.com/velvette/api/internal/repositories"
)

var (
	errUserRepositoryRequired = errors.New("user service: user repository is required")
	errUserFirebaseRequired   = errors.New("user service: firebase user getter is required")
	errUserClockRequired      = errors.New("user service: clock is required")
)

// ErrUserInvalidInput indicates the caller supplied invalid input.
var ErrUserInvalidInput = errors.New("user service: invalid input")

// ErrUserNotFound indicates the requested user does not exist.
var ErrUserNotFound = errors.New("user service: not found")

// ErrUserUnavailable indicates the user backend cannot fulfil the request.
var ErrUserUnavailable = errors.New("user service: unavailable")

// ErrUserAddressNotFound indicates the requested saved address does not exist.
var ErrUserAddressNotFound = errors.New("user service: address not found")

var userPhonePattern = regexp.MustCompile(`^[0-9+()\-\s]{8,15}$`)

// UserServiceDeps wires the repositories and Firebase lookup for user operations.
type UserServiceDeps struct {
	Users       repositories.UserRepository
	Addresses   repositories.AddressRepository
	Firebase    auth.UserGetter
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(context.Context, string, map[string]any)
}

type userService struct {
	users     repositories.UserRepository
	addresses repositories.AddressRepository
	firebase  auth.UserGetter
	now       func() time.Time
	newID     func() string
	logger    func(context.Context, string, map[string]any)
}

// NewUserService wires dependencies into a concrete UserService implementation.
func NewUserService(deps UserServiceDeps) (UserService, error) {
	if deps.Users == nil {
		return nil, errUserRepositoryRequired
	}
	if deps.Firebase == nil {
		return nil, errUserFirebaseRequired
	}
	if deps.Clock == nil {
		return nil, errUserClockRequired
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}

	return &userService{
		users:     deps.Users,
		addresses: deps.Addresses,
		firebase:  deps.Firebase,
		now:       func() time.Time { return deps.Clock().UTC() },
		newID:     idGen,
		logger:    logger,
	}, nil
}

// GetProfile reads the stored profile, seeding it from the Firebase identity
// on first access.
func (s *userService) GetProfile(ctx context.Context, userID string) (UserProfile, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return UserProfile{}, fmt.Errorf("%w: user id is required", ErrUserInvalidInput)
	}

	profile, err := s.users.FindByID(ctx, userID)
	if err == nil {
		return profile, nil
	}
	if !isRepoNotFound(err) {
		return UserProfile{}, s.translateUserRepoError(err)
	}

	record, err := s.firebase.GetUser(ctx, userID)
	if err != nil {
		return UserProfile{}, fmt.Errorf("fetch firebase user: %w", err)
	}

	fresh := profileFromFirebase(record, s.now())
	fresh.ID = userID
	saved, err := s.users.Upsert(ctx, fresh)
	if err != nil {
		return UserProfile{}, s.translateUserRepoError(err)
	}
	s.logger(ctx, "user.profile.seeded", map[string]any{"userId": userID})
	return saved, nil
}

// UpsertProfile merges the supplied fields into the caller's profile.
func (s *userService) UpsertProfile(ctx context.Context, cmd UpsertProfileCommand) (UserProfile, error) {
	profile, err := s.GetProfile(ctx, cmd.UserID)
	if err != nil {
		return UserProfile{}, err
	}

	if cmd.DisplayName != nil {
		name := strings.TrimSpace(*cmd.DisplayName)
		if length := utf8.RuneCountInString(name); length < 2 || length > 100 {
			return UserProfile{}, fmt.Errorf("%w: display name must be 2-100 characters", ErrUserInvalidInput)
		}
		profile.DisplayName = name
	}
	if cmd.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*cmd.Email))
		if email != "" && !strings.Contains(email, "@") {
			return UserProfile{}, fmt.Errorf("%w: malformed email", ErrUserInvalidInput)
		}
		profile.Email = email
	}
	if cmd.Phone != nil {
		phone := strings.TrimSpace(*cmd.Phone)
		if phone != "" && !userPhonePattern.MatchString(phone) {
			return UserProfile{}, fmt.Errorf("%w: malformed phone number", ErrUserInvalidInput)
		}
		profile.PhoneNumber = phone
	}
	if cmd.PhotoPath != nil {
		profile.PhotoURL = strings.TrimSpace(*cmd.PhotoPath)
	}
	profile.UpdatedAt = s.now()

	saved, err := s.users.Upsert(ctx, profile)
	if err != nil {
		return UserProfile{}, s.translateUserRepoError(err)
	}
	return saved, nil
}

// ListUsers returns one page of profiles for the admin back office.
func (s *userService) ListUsers(ctx context.Context, filter UserListFilter) (UserPage, error) {
	repoFilter := repositories.UserListFilter{
		Pagination: domain.Pagination{
			PageSize:  filter.Limit,
			PageToken: strings.TrimSpace(filter.PageToken),
		},
	}
	if filter.OnlyActive {
		active := true
		repoFilter.IsActive = &active
	}
	page, err := s.users.List(ctx, repoFilter)
	if err != nil {
		return UserPage{}, s.translateUserRepoError(err)
	}
	return UserPage{Users: page.Items, NextPageToken: page.NextPageToken}, nil
}

// SetUserActive enables or disables an account.
func (s *userService) SetUserActive(ctx context.Context, cmd SetUserActiveCommand) (UserProfile, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return UserProfile{}, fmt.Errorf("%w: user id is required", ErrUserInvalidInput)
	}
	if strings.TrimSpace(cmd.ActorID) == "" {
		return UserProfile{}, fmt.Errorf("%w: actor id is required", ErrUserInvalidInput)
	}

	saved, err := s.users.SetActive(ctx, userID, cmd.Active, s.now())
	if err != nil {
		return UserProfile{}, s.translateUserRepoError(err)
	}
	s.logger(ctx, "user.active_changed", map[string]any{
		"userId": userID,
		"active": cmd.Active,
		"actor":  cmd.ActorID,
	})
	return saved, nil
}

// ListAddresses returns the caller's saved shipping addresses, default first.
func (s *userService) ListAddresses(ctx context.Context, userID string) ([]Address, error) {
	if s.addresses == nil {
		return nil, ErrUserUnavailable
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrUserInvalidInput)
	}
	items, err := s.addresses.List(ctx, userID)
	if err != nil {
		return nil, s.translateUserRepoError(err)
	}
	ordered := append([]Address(nil), items...)
	for i, addr := range ordered {
		if addr.IsDefault && i != 0 {
			ordered[0], ordered[i] = ordered[i], ordered[0]
			break
		}
	}
	return ordered, nil
}

// UpsertAddress validates and stores a shipping address. The first saved
// address becomes the default; marking a later one default demotes the rest.
func (s *userService) UpsertAddress(ctx context.Context, cmd UpsertAddressCommand) (Address, error) {
	if s.addresses == nil {
		return Address{}, ErrUserUnavailable
	}
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return Address{}, fmt.Errorf("%w: user id is required", ErrUserInvalidInput)
	}

	addr, err := sanitizeAddress(cmd.Address)
	if err != nil {
		return Address{}, err
	}
	addr.UserID = userID

	existing, err := s.addresses.List(ctx, userID)
	if err != nil {
		return Address{}, s.translateUserRepoError(err)
	}

	addressID := strings.TrimSpace(cmd.AddressID)
	if addressID != "" {
		current, err := s.addresses.Get(ctx, userID, addressID)
		if err != nil {
			if isRepoNotFound(err) {
				return Address{}, ErrUserAddressNotFound
			}
			return Address{}, s.translateUserRepoError(err)
		}
		addr.ID = current.ID
		addr.CreatedAt = current.CreatedAt
	} else {
		addr.ID = s.newID()
		addr.CreatedAt = s.now()
		if len(existing) == 0 {
			addr.IsDefault = true
		}
	}

	saved, err := s.addresses.Upsert(ctx, addr)
	if err != nil {
		return Address{}, s.translateUserRepoError(err)
	}

	if saved.IsDefault {
		for _, other := range existing {
			if other.ID == saved.ID || !other.IsDefault {
				continue
			}
			other.IsDefault = false
			if _, err := s.addresses.Upsert(ctx, other); err != nil {
				return Address{}, s.translateUserRepoError(err)
			}
		}
	}
	return saved, nil
}

// DeleteAddress removes a saved address, promoting another one to default
// when the removed address held the flag.
func (s *userService) DeleteAddress(ctx context.Context, cmd DeleteAddressCommand) error {
	if s.addresses == nil {
		return ErrUserUnavailable
	}
	userID := strings.TrimSpace(cmd.UserID)
	addressID := strings.TrimSpace(cmd.AddressID)
	if userID == "" || addressID == "" {
		return fmt.Errorf("%w: user id and address id are required", ErrUserInvalidInput)
	}

	target, err := s.addresses.Get(ctx, userID, addressID)
	if err != nil {
		if isRepoNotFound(err) {
			return ErrUserAddressNotFound
		}
		return s.translateUserRepoError(err)
	}

	if err := s.addresses.Delete(ctx, userID, addressID); err != nil {
		return s.translateUserRepoError(err)
	}
	if !target.IsDefault {
		return nil
	}

	remaining, err := s.addresses.List(ctx, userID)
	if err != nil {
		return s.translateUserRepoError(err)
	}
	if len(remaining) == 0 {
		return nil
	}
	next := remaining[0]
	next.IsDefault = true
	if _, err := s.addresses.Upsert(ctx, next); err != nil {
		return s.translateUserRepoError(err)
	}
	return nil
}

func sanitizeAddress(addr Address) (Address, error) {
	cleaned := Address{
		ID:        strings.TrimSpace(addr.ID),
		UserID:    strings.TrimSpace(addr.UserID),
		Recipient: strings.TrimSpace(addr.Recipient),
		Phone:     strings.TrimSpace(addr.Phone),
		Line1:     strings.TrimSpace(addr.Line1),
		Ward:      strings.TrimSpace(addr.Ward),
		District:  strings.TrimSpace(addr.District),
		City:      strings.TrimSpace(addr.City),
		IsDefault: addr.IsDefault,
		CreatedAt: addr.CreatedAt,
	}
	if cleaned.Recipient == "" || utf8.RuneCountInString(cleaned.Recipient) > 200 {
		return Address{}, fmt.Errorf("%w: recipient is required", ErrUserInvalidInput)
	}
	if cleaned.Phone == "" || !userPhonePattern.MatchString(cleaned.Phone) {
		return Address{}, fmt.Errorf("%w: valid phone number is required", ErrUserInvalidInput)
	}
	if cleaned.Line1 == "" {
		return Address{}, fmt.Errorf("%w: street address is required", ErrUserInvalidInput)
	}
	if cleaned.City == "" {
		return Address{}, fmt.Errorf("%w: city is required", ErrUserInvalidInput)
	}
	return cleaned, nil
}

func profileFromFirebase(record *firebaseauth.UserRecord, now time.Time) domain.UserProfile {
	if record == nil {
		return domain.UserProfile{}
	}

	profile := domain.UserProfile{
		Roles:     []string{auth.RoleUser},
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if record.UserInfo != nil {
		profile.ID = strings.TrimSpace(record.UserInfo.UID)
		profile.DisplayName = strings.TrimSpace(record.UserInfo.DisplayName)
		profile.Email = strings.ToLower(strings.TrimSpace(record.UserInfo.Email))
		profile.PhoneNumber = strings.TrimSpace(record.UserInfo.PhoneNumber)
		profile.PhotoURL = strings.TrimSpace(record.UserInfo.PhotoURL)
	}
	if value, ok := record.CustomClaims["role"]; ok {
		if role, ok := value.(string); ok {
			role = strings.ToLower(strings.TrimSpace(role))
			if role != "" && role != auth.RoleUser {
				profile.Roles = append(profile.Roles, role)
			}
		}
	}
	return profile
}

func (s *userService) translateUserRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		if repoErr.IsNotFound() {
			return ErrUserNotFound
		}
		return ErrUserUnavailable
	}
	return ErrUserUnavailable
}
