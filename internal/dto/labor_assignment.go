package dto

import "github.com/lqCintern/farm-management-sub004/internal/model"

// CreateAssignmentRequest 安排工人
type CreateAssignmentRequest struct {
	WorkerID  string `json:"worker_id"  binding:"required"`
	WorkDate  string `json:"work_date"  binding:"required,datetime=2006-01-02"`
	StartTime string `json:"start_time" binding:"omitempty,hhmm"`
	EndTime   string `json:"end_time"   binding:"omitempty,hhmm"`
	Notes     string `json:"notes"`
}

// BatchAssignRequest 批量安排：WorkerIDs × Dates 的笛卡尔积
type BatchAssignRequest struct {
	WorkerIDs []string `json:"worker_ids" binding:"required,min=1"`
	Dates     []string `json:"dates"      binding:"required,min=1,dive,datetime=2006-01-02"`
	StartTime string   `json:"start_time" binding:"omitempty,hhmm"`
	EndTime   string   `json:"end_time"   binding:"omitempty,hhmm"`
}

// BatchAssignResult 批量安排结果；Successful=0 时整批回滚
type BatchAssignResult struct {
	Success     bool                    `json:"success"`
	Total       int                     `json:"total"`
	Successful  int                     `json:"successful"`
	Failed      int                     `json:"failed"`
	Assignments []model.LaborAssignment `json:"assignments"`
	Errors      []ItemError             `json:"errors,omitempty"`
}

// UpdateAssignmentStatusRequest 变更安排状态
type UpdateAssignmentStatusRequest struct {
	Status      string   `json:"status"       binding:"required,oneof=completed rejected missed"`
	HoursWorked *float64 `json:"hours_worked" binding:"omitempty,gt=0,lte=24"`
	Notes       *string  `json:"notes"`
}

// AssignmentStatusResult 状态变更结果
// 账本记账失败不撤销完成状态，失败原因放在 ExchangeErrors
type AssignmentStatusResult struct {
	Success        bool                   `json:"success"`
	Assignment     *model.LaborAssignment `json:"assignment"`
	LedgerEntry    *LedgerEntryResult     `json:"ledger_entry,omitempty"`
	ExchangeErrors []ItemError            `json:"exchange_errors,omitempty"`
}

// RateAssignmentRequest 评分
type RateAssignmentRequest struct {
	Rating int `json:"rating" binding:"required,min=1,max=5"`
}

// ListAssignmentsQuery 工人安排查询
type ListAssignmentsQuery struct {
	Status    string `form:"status"     binding:"omitempty,oneof=assigned completed rejected missed"`
	StartDate string `form:"start_date" binding:"omitempty,datetime=2006-01-02"`
	EndDate   string `form:"end_date"   binding:"omitempty,datetime=2006-01-02"`
	Upcoming  bool   `form:"upcoming"`
}
