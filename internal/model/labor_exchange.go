package model

import "time"

// LaborExchange 户对换工账本 — 对应 labor_exchanges
// 户对按 household_a_id < household_b_id 规范化；hours_balance > 0 表示 b 欠 a 工时
type LaborExchange struct {
	LaborExchangeID     string     `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"labor_exchange_id"`
	HouseholdAID        string     `gorm:"type:uuid;not null"                             json:"household_a_id"`
	HouseholdBID        string     `gorm:"type:uuid;not null"                             json:"household_b_id"`
	HoursBalance        float64    `gorm:"type:numeric(10,2);not null;default:0"          json:"hours_balance"`
	LastTransactionDate *time.Time `json:"last_transaction_date,omitempty"`
	Timestamps

	// 关联
	HouseholdA *Household `gorm:"foreignKey:HouseholdAID;references:HouseholdID" json:"household_a,omitempty"`
	HouseholdB *Household `gorm:"foreignKey:HouseholdBID;references:HouseholdID" json:"household_b,omitempty"`
}

func (LaborExchange) TableName() string { return "labor_exchanges" }

// Involves 户是否为账本一方
func (e *LaborExchange) Involves(householdID string) bool {
	return e.HouseholdAID == householdID || e.HouseholdBID == householdID
}

// 账本流水类型
const (
	TransactionKindAssignment = "assignment"
	TransactionKindReset      = "reset"
	TransactionKindAdjustment = "adjustment"
)

// LaborExchangeTransaction 账本流水 — 对应 labor_exchange_transactions（只追加不可变）
type LaborExchangeTransaction struct {
	TransactionID     string    `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"transaction_id"`
	LaborExchangeID   string    `gorm:"type:uuid;not null"                             json:"labor_exchange_id"`
	LaborAssignmentID *string   `gorm:"type:uuid"                                      json:"labor_assignment_id,omitempty"`
	Kind              string    `gorm:"type:varchar(20);not null;default:'assignment'" json:"kind"`
	Hours             float64   `gorm:"type:numeric(10,2);not null"                    json:"hours"`
	Description       string    `gorm:"type:varchar(500)"                              json:"description,omitempty"`
	CreatedAt         time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"             json:"created_at"`
}

func (LaborExchangeTransaction) TableName() string { return "labor_exchange_transactions" }
