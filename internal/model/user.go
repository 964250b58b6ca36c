package model

// 工人可用性（档案上的三态标记）
const (
	AvailabilityAvailable   = "available"
	AvailabilityBusy        = "busy"
	AvailabilityUnavailable = "unavailable"
)

// User 用户表 — 对应 users
type User struct {
	UserID       string `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"  json:"user_id"`
	Name         string `gorm:"type:varchar(100);not null"                      json:"name"`
	Phone        string `gorm:"type:varchar(20);not null;uniqueIndex"           json:"phone"`
	PasswordHash string `gorm:"type:varchar(255);not null"                      json:"-"`
	Role         string `gorm:"type:varchar(20);not null;default:'farmer'"      json:"role"` // farmer | admin
	IsWorker     bool   `gorm:"not null;default:false"                          json:"is_worker"`
	Availability string `gorm:"type:varchar(20);not null;default:'available'"   json:"availability"`
	Timestamps
}

// TableName 指定表名
func (User) TableName() string { return "users" }

// IsValidAvailability 校验可用性取值
func IsValidAvailability(state string) bool {
	switch state {
	case AvailabilityAvailable, AvailabilityBusy, AvailabilityUnavailable:
		return true
	}
	return false
}
