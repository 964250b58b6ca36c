package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lqCintern/farm-management-sub004/internal/model"
	pkgerrors "github.com/lqCintern/farm-management-sub004/pkg/errors"
)

// RequestFilter 农户可见请求查询条件
type RequestFilter struct {
	Status          string
	IncludeChildren bool
	// Offset/Limit 分页，Limit 为 0 表示不分页
	Offset int
	Limit  int
	// ExcludeGroupIDs 排除这些分组内的请求（已加入的分组）
	ExcludeGroupIDs []string
}

// LaborRequestRepository 用工请求数据访问接口
type LaborRequestRepository interface {
	Create(ctx context.Context, req *model.LaborRequest) error
	GetByID(ctx context.Context, id string) (*model.LaborRequest, error)
	// GetByIDForUpdate 加行锁读取（须在事务内调用），用于分组聚合与加入的串行化
	GetByIDForUpdate(ctx context.Context, id string) (*model.LaborRequest, error)
	Update(ctx context.Context, req *model.LaborRequest) error
	ListByGroup(ctx context.Context, groupID string) ([]model.LaborRequest, error)
	FindChildInGroup(ctx context.Context, groupID, householdID string) (*model.LaborRequest, error)
	ListForHousehold(ctx context.Context, householdID string, filter RequestFilter) ([]model.LaborRequest, int64, error)
	ListJoinedGroupIDs(ctx context.Context, householdID string) ([]string, error)
}

type laborRequestRepo struct {
	db *gorm.DB
}

func NewLaborRequestRepo(db *gorm.DB) LaborRequestRepository {
	return &laborRequestRepo{db: db}
}

func (r *laborRequestRepo) Create(ctx context.Context, req *model.LaborRequest) error {
	return r.db.WithContext(ctx).Create(req).Error
}

func (r *laborRequestRepo) GetByID(ctx context.Context, id string) (*model.LaborRequest, error) {
	var req model.LaborRequest
	err := r.db.WithContext(ctx).
		Preload("RequestingHousehold").
		Preload("ProvidingHousehold").
		Where("labor_request_id = ?", id).
		First(&req).Error
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *laborRequestRepo) GetByIDForUpdate(ctx context.Context, id string) (*model.LaborRequest, error) {
	var req model.LaborRequest
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("labor_request_id = ?", id).
		First(&req).Error
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *laborRequestRepo) Update(ctx context.Context, req *model.LaborRequest) error {
	oldVersion := req.Version
	result := r.db.WithContext(ctx).
		Model(&model.LaborRequest{}).
		Where("labor_request_id = ? AND version = ?", req.LaborRequestID, oldVersion).
		Updates(map[string]interface{}{
			"providing_household_id": req.ProvidingHouseholdID,
			"farm_activity_id":       req.FarmActivityID,
			"title":                  req.Title,
			"description":            req.Description,
			"workers_needed":         req.WorkersNeeded,
			"start_date":             req.StartDate,
			"end_date":               req.EndDate,
			"start_time":             req.StartTime,
			"end_time":               req.EndTime,
			"status":                 req.Status,
			"is_public":              req.IsPublic,
			"max_acceptors":          req.MaxAcceptors,
			"updated_by":             req.UpdatedBy,
			"version":                oldVersion + 1,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.ErrOptimisticLock
	}
	req.Version = oldVersion + 1
	return nil
}

func (r *laborRequestRepo) ListByGroup(ctx context.Context, groupID string) ([]model.LaborRequest, error) {
	var list []model.LaborRequest
	err := r.db.WithContext(ctx).
		Preload("ProvidingHousehold").
		Where("request_group_id = ?", groupID).
		Order("created_at ASC").
		Find(&list).Error
	return list, err
}

func (r *laborRequestRepo) FindChildInGroup(ctx context.Context, groupID, householdID string) (*model.LaborRequest, error) {
	var req model.LaborRequest
	err := r.db.WithContext(ctx).
		Where("request_group_id = ? AND providing_household_id = ? AND parent_request_id IS NOT NULL", groupID, householdID).
		First(&req).Error
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *laborRequestRepo) ListForHousehold(ctx context.Context, householdID string, filter RequestFilter) ([]model.LaborRequest, int64, error) {
	var (
		list  []model.LaborRequest
		total int64
	)
	db := r.db.WithContext(ctx).
		Model(&model.LaborRequest{}).
		Where("(requesting_household_id = ? OR providing_household_id = ? OR is_public = ?)", householdID, householdID, true)

	if filter.Status != "" {
		db = db.Where("status = ?", filter.Status)
	}
	if !filter.IncludeChildren {
		db = db.Where("parent_request_id IS NULL")
	}
	if len(filter.ExcludeGroupIDs) > 0 {
		db = db.Where("(request_group_id IS NULL OR request_group_id NOT IN ?)", filter.ExcludeGroupIDs)
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	db = db.Preload("RequestingHousehold").Preload("ProvidingHousehold").Order("created_at DESC")
	if filter.Limit > 0 {
		db = db.Offset(filter.Offset).Limit(filter.Limit)
	}
	err := db.Find(&list).Error
	return list, total, err
}

func (r *laborRequestRepo) ListJoinedGroupIDs(ctx context.Context, householdID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&model.LaborRequest{}).
		Where("providing_household_id = ? AND parent_request_id IS NOT NULL", householdID).
		Distinct().
		Pluck("request_group_id", &ids).Error
	return ids, err
}
