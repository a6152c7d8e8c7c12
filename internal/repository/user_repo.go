package repository

import (
	"context"

	"crm/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserRepository reads acting identities. Users are provisioned by the
// identity provider, so there is no write path here.
type UserRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
}

type userRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	var user model.User
	if err := GetDB(ctx, r.db).Select("id", "organization_id", "username", "role", "is_active").
		First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}
