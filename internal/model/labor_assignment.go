package model

import (
	"time"

	"gorm.io/datatypes"
)

// 安排状态: assigned → {completed, rejected, missed}，均为终态
const (
	AssignmentStatusAssigned  = "assigned"
	AssignmentStatusCompleted = "completed"
	AssignmentStatusRejected  = "rejected"
	AssignmentStatusMissed    = "missed"
)

// LaborAssignment 用工安排表 — 对应 labor_assignments
type LaborAssignment struct {
	LaborAssignmentID string         `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"labor_assignment_id"`
	LaborRequestID    string         `gorm:"type:uuid;not null"                             json:"labor_request_id"`
	WorkerID          string         `gorm:"type:uuid;not null"                             json:"worker_id"`
	HomeHouseholdID   string         `gorm:"type:uuid;not null"                             json:"home_household_id"`
	WorkDate          datatypes.Date `gorm:"not null"                                       json:"work_date"`
	StartTime         string         `gorm:"type:varchar(5)"                                json:"start_time,omitempty"`
	EndTime           string         `gorm:"type:varchar(5)"                                json:"end_time,omitempty"`
	HoursWorked       *float64       `gorm:"type:numeric(6,2)"                              json:"hours_worked,omitempty"`
	WorkUnits         *float64       `gorm:"type:numeric(6,2)"                              json:"work_units,omitempty"`
	Status            string         `gorm:"type:varchar(20);not null;default:'assigned'"   json:"status"`
	WorkerRating      *int           `gorm:"type:smallint"                                  json:"worker_rating,omitempty"`
	FarmerRating      *int           `gorm:"type:smallint"                                  json:"farmer_rating,omitempty"`
	Notes             string         `gorm:"type:text"                                      json:"notes,omitempty"`
	CompletedAt       *time.Time     `json:"completed_at,omitempty"`
	BaseModel

	// 关联
	LaborRequest  *LaborRequest `gorm:"foreignKey:LaborRequestID;references:LaborRequestID" json:"labor_request,omitempty"`
	Worker        *User         `gorm:"foreignKey:WorkerID;references:UserID"               json:"worker,omitempty"`
	HomeHousehold *Household    `gorm:"foreignKey:HomeHouseholdID;references:HouseholdID"   json:"home_household,omitempty"`
}

func (LaborAssignment) TableName() string { return "labor_assignments" }

// IsTerminal completed/rejected/missed 为终态
func (a *LaborAssignment) IsTerminal() bool {
	return a.Status != AssignmentStatusAssigned
}

// OccupiesDay 该安排是否占用工人当天（同日排他判定）
func (a *LaborAssignment) OccupiesDay() bool {
	return a.Status == AssignmentStatusAssigned || a.Status == AssignmentStatusCompleted
}

// WorkDay 返回工作日期（time.Time）
func (a *LaborAssignment) WorkDay() time.Time { return time.Time(a.WorkDate) }
