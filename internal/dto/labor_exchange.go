package dto

import (
	"time"

	"github.com/lqCintern/farm-management-sub004/internal/model"
)

// 账本方向（从查看方视角）
const (
	DirectionOwedToYou = "owed_to_you"
	DirectionYouOwe    = "you_owe"
	DirectionBalanced  = "balanced"
)

// LedgerEntryResult 一次完成记录的记账结果
type LedgerEntryResult struct {
	Success      bool    `json:"success"`
	AssignmentID string  `json:"assignment_id"`
	ExchangeID   string  `json:"exchange_id,omitempty"`
	Delta        float64 `json:"delta"`
	// Balance 记账后的规范户对余额
	Balance         float64 `json:"balance"`
	AlreadyRecorded bool    `json:"already_recorded,omitempty"`
	// Skipped 非换工类型或本户出工，不计入账本
	Skipped bool   `json:"skipped,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// HouseholdExchange 从某户视角看到的账本
type HouseholdExchange struct {
	ExchangeID          string           `json:"exchange_id"`
	OtherHouseholdID    string           `json:"other_household_id"`
	OtherHousehold      *model.Household `json:"other_household,omitempty"`
	Balance             float64          `json:"balance"`
	Direction           string           `json:"direction"`
	LastTransactionDate *time.Time       `json:"last_transaction_date,omitempty"`
}

// ExchangeDetails 账本详情；流水按时间倒序
type ExchangeDetails struct {
	Exchange         *model.LaborExchange             `json:"exchange"`
	OtherHouseholdID string                           `json:"other_household_id"`
	Balance          float64                          `json:"balance"`
	Direction        string                           `json:"direction"`
	Transactions     []model.LaborExchangeTransaction `json:"transactions"`
}

// ResetResult 清零结果
type ResetResult struct {
	ExchangeID      string                          `json:"exchange_id"`
	PreviousBalance float64                         `json:"previous_balance"`
	Transaction     *model.LaborExchangeTransaction `json:"transaction"`
}

// RecalculatePairRequest 重算指定户对
type RecalculatePairRequest struct {
	HouseholdID string `json:"household_id" binding:"required"`
}

// RecalculateResult 单个户对的重算结果
type RecalculateResult struct {
	ExchangeID      string  `json:"exchange_id,omitempty"`
	HouseholdAID    string  `json:"household_a_id"`
	HouseholdBID    string  `json:"household_b_id"`
	PreviousBalance float64 `json:"previous_balance"`
	Balance         float64 `json:"balance"`
	Replayed        int     `json:"replayed"`
	// Backfilled 补记的漏记完成记录数
	Backfilled int     `json:"backfilled"`
	Adjustment float64 `json:"adjustment"`
}

// RecalculateAllResult 全量重算结果
type RecalculateAllResult struct {
	Total    int                 `json:"total"`
	Adjusted int                 `json:"adjusted"`
	Results  []RecalculateResult `json:"results"`
	Errors   []ItemError         `json:"errors,omitempty"`
}
