package model

import "gorm.io/datatypes"

// 用工请求类型
const (
	RequestTypeSingle   = "single"
	RequestTypeExchange = "exchange"
	RequestTypeMixed    = "mixed"
	RequestTypePublic   = "public"
)

// 用工请求状态: pending → {accepted, declined, cancelled}; accepted → {completed, cancelled}
const (
	RequestStatusPending   = "pending"
	RequestStatusAccepted  = "accepted"
	RequestStatusDeclined  = "declined"
	RequestStatusCancelled = "cancelled"
	RequestStatusCompleted = "completed"
)

// LaborRequest 用工请求表 — 对应 labor_requests
type LaborRequest struct {
	LaborRequestID        string         `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"labor_request_id"`
	RequestingHouseholdID string         `gorm:"type:uuid;not null"                             json:"requesting_household_id"`
	ProvidingHouseholdID  *string        `gorm:"type:uuid"                                      json:"providing_household_id,omitempty"`
	FarmActivityID        *string        `gorm:"type:uuid"                                      json:"farm_activity_id,omitempty"`
	Title                 string         `gorm:"type:varchar(200);not null"                     json:"title"`
	Description           string         `gorm:"type:text"                                      json:"description,omitempty"`
	WorkersNeeded         int            `gorm:"not null;default:1"                             json:"workers_needed"`
	RequestType           string         `gorm:"type:varchar(20);not null;default:'exchange'"   json:"request_type"`
	StartDate             datatypes.Date `gorm:"not null"                                       json:"start_date"`
	EndDate               datatypes.Date `gorm:"not null"                                       json:"end_date"`
	StartTime             string         `gorm:"type:varchar(5)"                                json:"start_time,omitempty"` // HH:MM
	EndTime               string         `gorm:"type:varchar(5)"                                json:"end_time,omitempty"`
	Status                string         `gorm:"type:varchar(20);not null;default:'pending'"    json:"status"`
	IsPublic              bool           `gorm:"not null;default:false"                         json:"is_public"`
	MaxAcceptors          *int           `json:"max_acceptors,omitempty"`
	RequestGroupID        *string        `gorm:"type:uuid"                                      json:"request_group_id,omitempty"`
	ParentRequestID       *string        `gorm:"type:uuid"                                      json:"parent_request_id,omitempty"` // nil 表示原始/父请求
	VersionedModel

	// 关联
	RequestingHousehold *Household `gorm:"foreignKey:RequestingHouseholdID;references:HouseholdID" json:"requesting_household,omitempty"`
	ProvidingHousehold  *Household `gorm:"foreignKey:ProvidingHouseholdID;references:HouseholdID"  json:"providing_household,omitempty"`
}

func (LaborRequest) TableName() string { return "labor_requests" }

// IsParent 是否为原始（父）请求
func (r *LaborRequest) IsParent() bool { return r.ParentRequestID == nil }

// InGroup 是否属于请求分组
func (r *LaborRequest) InGroup() bool { return r.RequestGroupID != nil }

// IsTerminal declined/cancelled/completed 为终态
func (r *LaborRequest) IsTerminal() bool {
	switch r.Status {
	case RequestStatusDeclined, RequestStatusCancelled, RequestStatusCompleted:
		return true
	}
	return false
}

// FeedsLedger 该类型完成的安排是否计入换工账本
func FeedsLedger(requestType string) bool {
	return requestType == RequestTypeExchange || requestType == RequestTypeMixed
}
