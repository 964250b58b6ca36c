package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/lqCintern/farm-management-sub004/internal/model"
)

// HouseholdRepository 农户数据访问接口
type HouseholdRepository interface {
	Create(ctx context.Context, household *model.Household) error
	GetByID(ctx context.Context, id string) (*model.Household, error)
	GetByOwner(ctx context.Context, ownerID string) (*model.Household, error)
	Update(ctx context.Context, household *model.Household) error
}

// HouseholdWorkerRepository 农户成员数据访问接口
type HouseholdWorkerRepository interface {
	Create(ctx context.Context, membership *model.HouseholdWorker) error
	// Get 查询成员关系（不区分是否激活）
	Get(ctx context.Context, householdID, workerID string) (*model.HouseholdWorker, error)
	Update(ctx context.Context, membership *model.HouseholdWorker) error
	ListByHousehold(ctx context.Context, householdID string, includeInactive bool) ([]model.HouseholdWorker, error)
	// FindActiveByWorker 工人最早加入的激活成员关系
	FindActiveByWorker(ctx context.Context, workerID string) (*model.HouseholdWorker, error)
}

// ── Household Repository 实现 ──

type householdRepo struct {
	db *gorm.DB
}

func NewHouseholdRepo(db *gorm.DB) HouseholdRepository {
	return &householdRepo{db: db}
}

func (r *householdRepo) Create(ctx context.Context, household *model.Household) error {
	return r.db.WithContext(ctx).Create(household).Error
}

func (r *householdRepo) GetByID(ctx context.Context, id string) (*model.Household, error) {
	var household model.Household
	err := r.db.WithContext(ctx).
		Preload("Owner").
		Where("household_id = ?", id).
		First(&household).Error
	if err != nil {
		return nil, err
	}
	return &household, nil
}

func (r *householdRepo) GetByOwner(ctx context.Context, ownerID string) (*model.Household, error) {
	var household model.Household
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		First(&household).Error
	if err != nil {
		return nil, err
	}
	return &household, nil
}

func (r *householdRepo) Update(ctx context.Context, household *model.Household) error {
	return r.db.WithContext(ctx).
		Model(household).
		Where("household_id = ?", household.HouseholdID).
		Updates(map[string]interface{}{
			"name":        household.Name,
			"province":    household.Province,
			"district":    household.District,
			"ward":        household.Ward,
			"address":     household.Address,
			"description": household.Description,
		}).Error
}

// ── HouseholdWorker Repository 实现 ──

type householdWorkerRepo struct {
	db *gorm.DB
}

func NewHouseholdWorkerRepo(db *gorm.DB) HouseholdWorkerRepository {
	return &householdWorkerRepo{db: db}
}

func (r *householdWorkerRepo) Create(ctx context.Context, membership *model.HouseholdWorker) error {
	return r.db.WithContext(ctx).Create(membership).Error
}

func (r *householdWorkerRepo) Get(ctx context.Context, householdID, workerID string) (*model.HouseholdWorker, error) {
	var m model.HouseholdWorker
	err := r.db.WithContext(ctx).
		Where("household_id = ? AND worker_id = ?", householdID, workerID).
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *householdWorkerRepo) Update(ctx context.Context, membership *model.HouseholdWorker) error {
	return r.db.WithContext(ctx).
		Model(membership).
		Where("household_worker_id = ?", membership.HouseholdWorkerID).
		Updates(map[string]interface{}{
			"relationship": membership.Relationship,
			"is_active":    membership.IsActive,
			"joined_date":  membership.JoinedDate,
		}).Error
}

func (r *householdWorkerRepo) ListByHousehold(ctx context.Context, householdID string, includeInactive bool) ([]model.HouseholdWorker, error) {
	var list []model.HouseholdWorker
	db := r.db.WithContext(ctx).
		Preload("Worker").
		Where("household_id = ?", householdID)
	if !includeInactive {
		db = db.Where("is_active = ?", true)
	}
	err := db.Order("joined_date ASC").Find(&list).Error
	return list, err
}

func (r *householdWorkerRepo) FindActiveByWorker(ctx context.Context, workerID string) (*model.HouseholdWorker, error) {
	var m model.HouseholdWorker
	err := r.db.WithContext(ctx).
		Where("worker_id = ? AND is_active = ?", workerID, true).
		Order("joined_date ASC, created_at ASC").
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}
