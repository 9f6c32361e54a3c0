package auth

import (
	"context"
	"errors"
	"fmt"

	"go_certbot/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrUserNotFound is returned when no user matches
var ErrUserNotFound = errors.New("user not found")

// UsersConfig controls role assignment and the starting quota
type UsersConfig struct {
	OwnerIDs     []int64
	AdminIDs     []int64
	DefaultQuota int
}

// Service registers chat users and answers role questions
type Service struct {
	db     *gorm.DB
	config UsersConfig
}

// NewService creates a user service
func NewService(db *gorm.DB, config UsersConfig) *Service {
	return &Service{db: db, config: config}
}

// EnsureUser returns the user for externalID, creating it on first contact.
// The role is re-derived from configuration on every call so that promoting
// an id in the config takes effect without a migration.
func (s *Service) EnsureUser(ctx context.Context, externalID int64, username string) (*model.User, error) {
	role := s.roleFor(externalID)

	user := &model.User{
		ExternalID: externalID,
		Username:   username,
		Role:       role,
		Quota:      s.config.DefaultQuota,
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(user).Error
	if err != nil {
		return nil, fmt.Errorf("failed to register user %d: %w", externalID, err)
	}

	existing, err := s.FindByExternalID(ctx, externalID)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if existing.Role != role {
		updates["role"] = role
	}
	if username != "" && existing.Username != username {
		updates["username"] = username
	}
	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(existing).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("failed to update user %d: %w", externalID, err)
		}
		existing.Role = role
		if username != "" {
			existing.Username = username
		}
	}

	return existing, nil
}

// FindByExternalID loads a user by chat identity
func (s *Service) FindByExternalID(ctx context.Context, externalID int64) (*model.User, error) {
	var user model.User
	err := s.db.WithContext(ctx).Where("external_id = ?", externalID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Get loads a user by id
func (s *Service) Get(ctx context.Context, id int) (*model.User, error) {
	var user model.User
	err := s.db.WithContext(ctx).First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// IsAdmin reports whether the user may run admin commands
func IsAdmin(user *model.User) bool {
	return user.Role == model.UserRoleOwner || user.Role == model.UserRoleAdmin
}

// IsOwner reports whether the user may run owner-only commands
func IsOwner(user *model.User) bool {
	return user.Role == model.UserRoleOwner
}

func (s *Service) roleFor(externalID int64) model.UserRole {
	for _, id := range s.config.OwnerIDs {
		if id == externalID {
			return model.UserRoleOwner
		}
	}
	for _, id := range s.config.AdminIDs {
		if id == externalID {
			return model.UserRoleAdmin
		}
	}
	return model.UserRoleMember
}
