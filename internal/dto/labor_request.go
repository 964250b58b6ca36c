package dto

import "github.com/lqCintern/farm-management-sub004/internal/model"

// LaborRequestParams 用工请求的任务字段
type LaborRequestParams struct {
	ProvidingHouseholdID *string `json:"providing_household_id"`
	FarmActivityID       *string `json:"farm_activity_id"`
	Title                string  `json:"title"          binding:"required,max=200"`
	Description          string  `json:"description"`
	WorkersNeeded        int     `json:"workers_needed" binding:"omitempty,min=1"`
	RequestType          string  `json:"request_type"   binding:"omitempty,oneof=single exchange mixed public"`
	StartDate            string  `json:"start_date"     binding:"required,datetime=2006-01-02"`
	EndDate              string  `json:"end_date"       binding:"required,datetime=2006-01-02"`
	StartTime            string  `json:"start_time"     binding:"omitempty,hhmm"`
	EndTime              string  `json:"end_time"       binding:"omitempty,hhmm"`
	IsPublic             bool    `json:"is_public"`
	MaxAcceptors         *int    `json:"max_acceptors"  binding:"omitempty,min=1"`
}

// CreateMixedLaborRequest 混合请求：一个父请求 + 多个定向子请求
type CreateMixedLaborRequest struct {
	LaborRequestParams
	ProviderIDs []string `json:"provider_ids"`
}

// MixedOptions 父请求的公开选项
type MixedOptions struct {
	IsPublic     bool
	MaxAcceptors *int
}

// UpdateLaborRequest 修改请求，nil 字段保持不变
// 非 pending 状态下不得修改起止日期
type UpdateLaborRequest struct {
	FarmActivityID *string `json:"farm_activity_id"`
	Title          *string `json:"title"          binding:"omitempty,max=200"`
	Description    *string `json:"description"`
	WorkersNeeded  *int    `json:"workers_needed" binding:"omitempty,min=1"`
	StartDate      *string `json:"start_date"     binding:"omitempty,datetime=2006-01-02"`
	EndDate        *string `json:"end_date"       binding:"omitempty,datetime=2006-01-02"`
	StartTime      *string `json:"start_time"     binding:"omitempty,hhmm"`
	EndTime        *string `json:"end_time"       binding:"omitempty,hhmm"`
}

// ListLaborRequestsQuery 农户可见请求查询
type ListLaborRequestsQuery struct {
	PaginationRequest
	Status          string `form:"status"           binding:"omitempty,oneof=pending accepted declined cancelled completed"`
	IncludeChildren bool   `form:"include_children"`
	ExcludeJoined   bool   `form:"exclude_joined"`
}

// SuggestWorkersQuery 推荐工人查询
type SuggestWorkersQuery struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=100"`
}

// MixedRequestResult 混合请求创建结果
// 父请求原子创建；子请求逐个提交，失败项记录在 Errors，已创建的子请求保留
type MixedRequestResult struct {
	Success  bool                 `json:"success"`
	Parent   *model.LaborRequest  `json:"parent"`
	Children []model.LaborRequest `json:"children"`
	Errors   []ItemError          `json:"errors,omitempty"`
}

// JoinResult 加入公开请求结果
// 已加入时 Success=false 且返回已有子请求，调用方据 AlreadyJoined 区分
type JoinResult struct {
	Success       bool                `json:"success"`
	AlreadyJoined bool                `json:"already_joined"`
	Request       *model.LaborRequest `json:"request"`
}

// GroupStatus 分组内子请求按状态计数
type GroupStatus struct {
	GroupID      string `json:"group_id"`
	ParentID     string `json:"parent_id"`
	ParentStatus string `json:"parent_status"`
	Total        int    `json:"total"`
	Pending      int    `json:"pending"`
	Accepted     int    `json:"accepted"`
	Declined     int    `json:"declined"`
	Cancelled    int    `json:"cancelled"`
	Completed    int    `json:"completed"`
}

// RequestGroupView 分组详情
type RequestGroupView struct {
	Parent   *model.LaborRequest  `json:"parent"`
	Children []model.LaborRequest `json:"children"`
	Status   GroupStatus          `json:"status"`
}

// ProcessRequestResult 请求状态流转结果
// ExchangeErrors 为完成请求时账本记账的失败项，不影响请求本身的完成
type ProcessRequestResult struct {
	Success        bool                `json:"success"`
	Request        *model.LaborRequest `json:"request"`
	GroupStatus    *GroupStatus        `json:"group_status,omitempty"`
	LedgerEntries  []LedgerEntryResult `json:"ledger_entries,omitempty"`
	ExchangeErrors []ItemError         `json:"exchange_errors,omitempty"`
}
