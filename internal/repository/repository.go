package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// Repository 所有 Repository 的聚合入口
type Repository struct {
	User            UserRepository
	Household       HouseholdRepository
	HouseholdWorker HouseholdWorkerRepository
	LaborRequest    LaborRequestRepository
	LaborAssignment LaborAssignmentRepository
	LaborExchange   LaborExchangeRepository
	ExchangeTx      ExchangeTransactionRepository
	Tx              TxManager
}

// TxManager 事务管理
type TxManager interface {
	// Transaction 在单个数据库事务内执行 fn，fn 返回错误时整体回滚。
	// fn 收到的 Repository 绑定到该事务，必须用它完成事务内的全部读写。
	Transaction(ctx context.Context, fn func(tx *Repository) error) error
}

// NewRepository 创建 Repository 聚合
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{
		User:            NewUserRepo(db),
		Household:       NewHouseholdRepo(db),
		HouseholdWorker: NewHouseholdWorkerRepo(db),
		LaborRequest:    NewLaborRequestRepo(db),
		LaborAssignment: NewLaborAssignmentRepo(db),
		LaborExchange:   NewLaborExchangeRepo(db),
		ExchangeTx:      NewExchangeTransactionRepo(db),
		Tx:              &gormTxManager{db: db},
	}
}

type gormTxManager struct {
	db *gorm.DB
}

func (m *gormTxManager) Transaction(ctx context.Context, fn func(tx *Repository) error) error {
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewRepository(tx))
	})
}

// dateParam 日期参数统一按 YYYY-MM-DD 传入，由 PostgreSQL 推断为 DATE，避免时区换算
func dateParam(t time.Time) string {
	return t.Format("2006-01-02")
}
