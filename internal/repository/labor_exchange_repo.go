package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lqCintern/farm-management-sub004/internal/model"
)

// LaborExchangeRepository 换工账本数据访问接口
type LaborExchangeRepository interface {
	GetByID(ctx context.Context, id string) (*model.LaborExchange, error)
	// GetByIDForUpdate 加行锁读取（须在事务内调用）
	GetByIDForUpdate(ctx context.Context, id string) (*model.LaborExchange, error)
	GetByPair(ctx context.Context, householdA, householdB string) (*model.LaborExchange, error)
	// GetOrCreateForUpdate 按规范化户对取账本并加行锁，不存在则创建（并发创建由唯一约束兜底）
	GetOrCreateForUpdate(ctx context.Context, householdA, householdB string) (*model.LaborExchange, error)
	// ApplyDelta 原子累加余额并更新最后交易时间
	ApplyDelta(ctx context.Context, id string, delta float64, at time.Time) error
	SetBalance(ctx context.Context, id string, balance float64, at time.Time) error
	ListByHousehold(ctx context.Context, householdID string) ([]model.LaborExchange, error)
	List(ctx context.Context) ([]model.LaborExchange, error)
}

// ExchangeTransactionRepository 账本流水数据访问接口（只追加）
type ExchangeTransactionRepository interface {
	Create(ctx context.Context, tx *model.LaborExchangeTransaction) error
	ExistsForAssignment(ctx context.Context, assignmentID string) (bool, error)
	// ListByExchange 按创建时间倒序
	ListByExchange(ctx context.Context, exchangeID string) ([]model.LaborExchangeTransaction, error)
	SumByExchange(ctx context.Context, exchangeID string) (float64, error)
	LatestReset(ctx context.Context, exchangeID string) (*model.LaborExchangeTransaction, error)
}

// ── LaborExchange Repository 实现 ──

type laborExchangeRepo struct {
	db *gorm.DB
}

func NewLaborExchangeRepo(db *gorm.DB) LaborExchangeRepository {
	return &laborExchangeRepo{db: db}
}

func (r *laborExchangeRepo) GetByID(ctx context.Context, id string) (*model.LaborExchange, error) {
	var ex model.LaborExchange
	err := r.db.WithContext(ctx).
		Preload("HouseholdA").
		Preload("HouseholdB").
		Where("labor_exchange_id = ?", id).
		First(&ex).Error
	if err != nil {
		return nil, err
	}
	return &ex, nil
}

func (r *laborExchangeRepo) GetByIDForUpdate(ctx context.Context, id string) (*model.LaborExchange, error) {
	var ex model.LaborExchange
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("labor_exchange_id = ?", id).
		First(&ex).Error
	if err != nil {
		return nil, err
	}
	return &ex, nil
}

func (r *laborExchangeRepo) GetByPair(ctx context.Context, householdA, householdB string) (*model.LaborExchange, error) {
	var ex model.LaborExchange
	err := r.db.WithContext(ctx).
		Where("household_a_id = ? AND household_b_id = ?", householdA, householdB).
		First(&ex).Error
	if err != nil {
		return nil, err
	}
	return &ex, nil
}

func (r *laborExchangeRepo) GetOrCreateForUpdate(ctx context.Context, householdA, householdB string) (*model.LaborExchange, error) {
	seed := &model.LaborExchange{HouseholdAID: householdA, HouseholdBID: householdB}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "household_a_id"}, {Name: "household_b_id"}},
			DoNothing: true,
		}).
		Create(seed).Error
	if err != nil {
		return nil, err
	}

	var ex model.LaborExchange
	err = r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("household_a_id = ? AND household_b_id = ?", householdA, householdB).
		First(&ex).Error
	if err != nil {
		return nil, err
	}
	return &ex, nil
}

func (r *laborExchangeRepo) ApplyDelta(ctx context.Context, id string, delta float64, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&model.LaborExchange{}).
		Where("labor_exchange_id = ?", id).
		Updates(map[string]interface{}{
			"hours_balance":         gorm.Expr("hours_balance + ?", delta),
			"last_transaction_date": at,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *laborExchangeRepo) SetBalance(ctx context.Context, id string, balance float64, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&model.LaborExchange{}).
		Where("labor_exchange_id = ?", id).
		Updates(map[string]interface{}{
			"hours_balance":         balance,
			"last_transaction_date": at,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *laborExchangeRepo) ListByHousehold(ctx context.Context, householdID string) ([]model.LaborExchange, error) {
	var list []model.LaborExchange
	err := r.db.WithContext(ctx).
		Preload("HouseholdA").
		Preload("HouseholdB").
		Where("household_a_id = ? OR household_b_id = ?", householdID, householdID).
		Order("last_transaction_date DESC NULLS LAST").
		Find(&list).Error
	return list, err
}

func (r *laborExchangeRepo) List(ctx context.Context) ([]model.LaborExchange, error) {
	var list []model.LaborExchange
	err := r.db.WithContext(ctx).Order("created_at ASC").Find(&list).Error
	return list, err
}

// ── ExchangeTransaction Repository 实现 ──

type exchangeTransactionRepo struct {
	db *gorm.DB
}

func NewExchangeTransactionRepo(db *gorm.DB) ExchangeTransactionRepository {
	return &exchangeTransactionRepo{db: db}
}

func (r *exchangeTransactionRepo) Create(ctx context.Context, tx *model.LaborExchangeTransaction) error {
	return r.db.WithContext(ctx).Create(tx).Error
}

func (r *exchangeTransactionRepo) ExistsForAssignment(ctx context.Context, assignmentID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.LaborExchangeTransaction{}).
		Where("labor_assignment_id = ?", assignmentID).
		Count(&count).Error
	return count > 0, err
}

func (r *exchangeTransactionRepo) ListByExchange(ctx context.Context, exchangeID string) ([]model.LaborExchangeTransaction, error) {
	var list []model.LaborExchangeTransaction
	err := r.db.WithContext(ctx).
		Where("labor_exchange_id = ?", exchangeID).
		Order("created_at DESC").
		Find(&list).Error
	return list, err
}

func (r *exchangeTransactionRepo) SumByExchange(ctx context.Context, exchangeID string) (float64, error) {
	var sum float64
	err := r.db.WithContext(ctx).
		Model(&model.LaborExchangeTransaction{}).
		Where("labor_exchange_id = ?", exchangeID).
		Select("COALESCE(SUM(hours), 0)").
		Scan(&sum).Error
	return sum, err
}

func (r *exchangeTransactionRepo) LatestReset(ctx context.Context, exchangeID string) (*model.LaborExchangeTransaction, error) {
	var tx model.LaborExchangeTransaction
	err := r.db.WithContext(ctx).
		Where("labor_exchange_id = ? AND kind = ?", exchangeID, model.TransactionKindReset).
		Order("created_at DESC").
		First(&tx).Error
	if err != nil {
		return nil, err
	}
	return &tx, nil
}
