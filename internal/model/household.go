package model

import "gorm.io/datatypes"

// Household 农户表 — 对应 households（每户唯一户主）
type Household struct {
	HouseholdID string `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"household_id"`
	OwnerID     string `gorm:"type:uuid;not null;uniqueIndex"                 json:"owner_id"`
	Name        string `gorm:"type:varchar(100);not null"                     json:"name"`
	Province    string `gorm:"type:varchar(100)"                              json:"province,omitempty"`
	District    string `gorm:"type:varchar(100)"                              json:"district,omitempty"`
	Ward        string `gorm:"type:varchar(100)"                              json:"ward,omitempty"`
	Address     string `gorm:"type:varchar(255)"                              json:"address,omitempty"`
	Description string `gorm:"type:text"                                      json:"description,omitempty"`
	Timestamps

	// 关联
	Owner *User `gorm:"foreignKey:OwnerID;references:UserID" json:"owner,omitempty"`
}

func (Household) TableName() string { return "households" }

// 户主自动加入时使用的关系标签
const RelationshipOwner = "owner"

// HouseholdWorker 农户成员表 — 对应 household_workers
// 移除成员时置 is_active=false，不删除记录
type HouseholdWorker struct {
	HouseholdWorkerID string         `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"household_worker_id"`
	HouseholdID       string         `gorm:"type:uuid;not null"                             json:"household_id"`
	WorkerID          string         `gorm:"type:uuid;not null"                             json:"worker_id"`
	Relationship      string         `gorm:"type:varchar(50);not null;default:'member'"     json:"relationship"`
	IsActive          bool           `gorm:"not null;default:true"                          json:"is_active"`
	JoinedDate        datatypes.Date `gorm:"not null"                                       json:"joined_date"`
	Timestamps

	// 关联
	Household *Household `gorm:"foreignKey:HouseholdID;references:HouseholdID" json:"household,omitempty"`
	Worker    *User      `gorm:"foreignKey:WorkerID;references:UserID"        json:"worker,omitempty"`
}

func (HouseholdWorker) TableName() string { return "household_workers" }
