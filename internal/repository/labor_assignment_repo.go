package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lqCintern/farm-management-sub004/internal/model"
	pkgerrors "github.com/lqCintern/farm-management-sub004/pkg/errors"
)

// AssignmentFilter 工人安排查询条件
type AssignmentFilter struct {
	Status    string
	StartDate *time.Time
	EndDate   *time.Time
	// Upcoming 为 true 时仅返回 work_date >= Today，按日期升序
	Upcoming bool
	Today    time.Time
}

// HouseholdPair 有过换工往来的户对（未规范化）
type HouseholdPair struct {
	WorkerHouseholdID     string
	RequestingHouseholdID string
}

// LaborAssignmentRepository 用工安排数据访问接口
type LaborAssignmentRepository interface {
	Create(ctx context.Context, a *model.LaborAssignment) error
	GetByID(ctx context.Context, id string) (*model.LaborAssignment, error)
	// GetByIDForUpdate 加行锁读取（须在事务内调用），不挂载关联
	GetByIDForUpdate(ctx context.Context, id string) (*model.LaborAssignment, error)
	// Transition 仅当当前状态仍为 from 时写入状态及完成字段，否则返回 ErrOptimisticLock
	Transition(ctx context.Context, a *model.LaborAssignment, from string) error
	// SetRating 只写一个评分字段（RatingColumnWorker / RatingColumnFarmer），仅限已完成的安排
	SetRating(ctx context.Context, id, column string, rating int, updatedBy string) error
	// LockWorkerDay 事务级咨询锁，串行化同一工人同一天的排班检查与写入
	LockWorkerDay(ctx context.Context, workerID string, day time.Time) error
	// ExistsForWorkerOnDate 是否存在占用当天的安排（assigned/completed），excludeID 为正在更新的安排
	ExistsForWorkerOnDate(ctx context.Context, workerID string, day time.Time, excludeID string) (bool, error)
	ListByWorker(ctx context.Context, workerID string, filter AssignmentFilter) ([]model.LaborAssignment, error)
	ListByRequest(ctx context.Context, requestID string) ([]model.LaborAssignment, error)
	ListCompletedByRequest(ctx context.Context, requestID string) ([]model.LaborAssignment, error)
	// ListCompletedExchangeBetween 两户之间已完成、计入账本类型的安排。
	// after（最近一次清零）非空时取：清零后入账的，以及尚未入账且清零后完成的
	ListCompletedExchangeBetween(ctx context.Context, householdX, householdY string, after *time.Time) ([]model.LaborAssignment, error)
	ListExchangePairs(ctx context.Context) ([]HouseholdPair, error)
}

type laborAssignmentRepo struct {
	db *gorm.DB
}

func NewLaborAssignmentRepo(db *gorm.DB) LaborAssignmentRepository {
	return &laborAssignmentRepo{db: db}
}

func (r *laborAssignmentRepo) Create(ctx context.Context, a *model.LaborAssignment) error {
	return r.db.WithContext(ctx).Create(a).Error
}

func (r *laborAssignmentRepo) GetByID(ctx context.Context, id string) (*model.LaborAssignment, error) {
	var a model.LaborAssignment
	err := r.db.WithContext(ctx).
		Preload("LaborRequest").
		Preload("Worker").
		Where("labor_assignment_id = ?", id).
		First(&a).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *laborAssignmentRepo) GetByIDForUpdate(ctx context.Context, id string) (*model.LaborAssignment, error) {
	var a model.LaborAssignment
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("labor_assignment_id = ?", id).
		First(&a).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *laborAssignmentRepo) Transition(ctx context.Context, a *model.LaborAssignment, from string) error {
	result := r.db.WithContext(ctx).
		Model(&model.LaborAssignment{}).
		Where("labor_assignment_id = ? AND status = ?", a.LaborAssignmentID, from).
		Updates(map[string]interface{}{
			"status":       a.Status,
			"hours_worked": a.HoursWorked,
			"work_units":   a.WorkUnits,
			"notes":        a.Notes,
			"completed_at": a.CompletedAt,
			"updated_by":   a.UpdatedBy,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.ErrOptimisticLock
	}
	return nil
}

// 评分字段
const (
	RatingColumnWorker = "worker_rating"
	RatingColumnFarmer = "farmer_rating"
)

func (r *laborAssignmentRepo) SetRating(ctx context.Context, id, column string, rating int, updatedBy string) error {
	if column != RatingColumnWorker && column != RatingColumnFarmer {
		return fmt.Errorf("未知评分字段: %s", column)
	}
	result := r.db.WithContext(ctx).
		Model(&model.LaborAssignment{}).
		Where("labor_assignment_id = ? AND status = ?", id, model.AssignmentStatusCompleted).
		Updates(map[string]interface{}{
			column:       rating,
			"updated_by": updatedBy,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *laborAssignmentRepo) LockWorkerDay(ctx context.Context, workerID string, day time.Time) error {
	key := fmt.Sprintf("labor_assignment:%s:%s", workerID, dateParam(day))
	return r.db.WithContext(ctx).Exec("SELECT pg_advisory_xact_lock(hashtext(?))", key).Error
}

func (r *laborAssignmentRepo) ExistsForWorkerOnDate(ctx context.Context, workerID string, day time.Time, excludeID string) (bool, error) {
	var count int64
	db := r.db.WithContext(ctx).
		Model(&model.LaborAssignment{}).
		Where("worker_id = ? AND work_date = ? AND status IN ?", workerID, dateParam(day),
			[]string{model.AssignmentStatusAssigned, model.AssignmentStatusCompleted})
	if excludeID != "" {
		db = db.Where("labor_assignment_id <> ?", excludeID)
	}
	if err := db.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *laborAssignmentRepo) ListByWorker(ctx context.Context, workerID string, filter AssignmentFilter) ([]model.LaborAssignment, error) {
	var list []model.LaborAssignment
	db := r.db.WithContext(ctx).
		Preload("LaborRequest").
		Where("worker_id = ?", workerID)

	if filter.Status != "" {
		db = db.Where("status = ?", filter.Status)
	}
	if filter.StartDate != nil {
		db = db.Where("work_date >= ?", dateParam(*filter.StartDate))
	}
	if filter.EndDate != nil {
		db = db.Where("work_date <= ?", dateParam(*filter.EndDate))
	}

	if filter.Upcoming {
		db = db.Where("work_date >= ?", dateParam(filter.Today)).
			Order("work_date ASC, start_time ASC")
	} else {
		db = db.Order("work_date DESC, start_time DESC")
	}

	err := db.Find(&list).Error
	return list, err
}

func (r *laborAssignmentRepo) ListByRequest(ctx context.Context, requestID string) ([]model.LaborAssignment, error) {
	var list []model.LaborAssignment
	err := r.db.WithContext(ctx).
		Preload("Worker").
		Where("labor_request_id = ?", requestID).
		Order("work_date ASC, start_time ASC").
		Find(&list).Error
	return list, err
}

func (r *laborAssignmentRepo) ListCompletedByRequest(ctx context.Context, requestID string) ([]model.LaborAssignment, error) {
	var list []model.LaborAssignment
	err := r.db.WithContext(ctx).
		Preload("LaborRequest").
		Where("labor_request_id = ? AND status = ?", requestID, model.AssignmentStatusCompleted).
		Order("work_date ASC").
		Find(&list).Error
	return list, err
}

func (r *laborAssignmentRepo) ListCompletedExchangeBetween(ctx context.Context, householdX, householdY string, after *time.Time) ([]model.LaborAssignment, error) {
	var list []model.LaborAssignment
	db := r.db.WithContext(ctx).
		Preload("LaborRequest").
		Joins("JOIN labor_requests lr ON lr.labor_request_id = labor_assignments.labor_request_id").
		Where("labor_assignments.status = ? AND labor_assignments.hours_worked > 0", model.AssignmentStatusCompleted).
		Where("lr.request_type IN ?", []string{model.RequestTypeExchange, model.RequestTypeMixed}).
		Where("((labor_assignments.home_household_id = ? AND lr.requesting_household_id = ?) OR (labor_assignments.home_household_id = ? AND lr.requesting_household_id = ?))",
			householdX, householdY, householdY, householdX)
	if after != nil {
		// 按入账时间而非完成时间划分：清零前完成、清零后才补记的安排仍属于本期
		db = db.Where(`(EXISTS (SELECT 1 FROM labor_exchange_transactions t
				WHERE t.labor_assignment_id = labor_assignments.labor_assignment_id AND t.created_at > ?)
			OR (labor_assignments.completed_at > ? AND NOT EXISTS (SELECT 1 FROM labor_exchange_transactions t
				WHERE t.labor_assignment_id = labor_assignments.labor_assignment_id)))`, *after, *after)
	}
	err := db.Order("labor_assignments.completed_at ASC").Find(&list).Error
	return list, err
}

func (r *laborAssignmentRepo) ListExchangePairs(ctx context.Context) ([]HouseholdPair, error) {
	var pairs []HouseholdPair
	err := r.db.WithContext(ctx).
		Table("labor_assignments la").
		Select("DISTINCT la.home_household_id AS worker_household_id, lr.requesting_household_id AS requesting_household_id").
		Joins("JOIN labor_requests lr ON lr.labor_request_id = la.labor_request_id").
		Where("la.status = ? AND la.hours_worked > 0", model.AssignmentStatusCompleted).
		Where("lr.request_type IN ?", []string{model.RequestTypeExchange, model.RequestTypeMixed}).
		Where("la.home_household_id <> lr.requesting_household_id").
		Scan(&pairs).Error
	return pairs, err
}
