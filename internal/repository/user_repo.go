package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/lqCintern/farm-management-sub004/internal/model"
)

// UserRepository 用户数据访问接口（同时承担工人档案可用性存储）
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByPhone(ctx context.Context, phone string) (*model.User, error)
	SetAvailability(ctx context.Context, userID, state string) error
	// ListAvailableWorkers 可用且在册的工人，排除 excludeIDs，最多 limit 条
	ListAvailableWorkers(ctx context.Context, excludeIDs []string, limit int) ([]model.User, error)
}

// userRepo UserRepository 的 GORM 实现
type userRepo struct {
	db *gorm.DB
}

// NewUserRepo 创建 UserRepository 实例
func NewUserRepo(db *gorm.DB) UserRepository {
	return &userRepo{db: db}
}

func (r *userRepo) Create(ctx context.Context, user *model.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

func (r *userRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).
		Where("user_id = ?", id).
		First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepo) GetByPhone(ctx context.Context, phone string) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).
		Where("phone = ?", phone).
		First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepo) SetAvailability(ctx context.Context, userID, state string) error {
	result := r.db.WithContext(ctx).
		Model(&model.User{}).
		Where("user_id = ?", userID).
		Update("availability", state)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *userRepo) ListAvailableWorkers(ctx context.Context, excludeIDs []string, limit int) ([]model.User, error) {
	var users []model.User
	db := r.db.WithContext(ctx).
		Where("is_worker = ? AND availability = ?", true, model.AvailabilityAvailable).
		// 至少在一个农户中有效在册，离户或从未入户的工人无从安排
		Where("EXISTS (SELECT 1 FROM household_workers hw WHERE hw.worker_id = users.user_id AND hw.is_active)")
	if len(excludeIDs) > 0 {
		db = db.Where("user_id NOT IN ?", excludeIDs)
	}
	err := db.Order("name ASC").Limit(limit).Find(&users).Error
	return users, err
}
