package dto

// ── 认证模块 DTO ──

// RegisterRequest 注册请求
type RegisterRequest struct {
	Name     string `json:"name"      binding:"required,min=2,max=100"`
	Phone    string `json:"phone"     binding:"required,min=6,max=20"`
	Password string `json:"password"  binding:"required,min=8,max=64"`
	IsWorker bool   `json:"is_worker"`
}

// LoginRequest 登录请求
type LoginRequest struct {
	Phone    string `json:"phone"    binding:"required"`
	Password string `json:"password" binding:"required"`
}

// RefreshTokenRequest 刷新 Token 请求
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// TokenResponse Token 对响应
type TokenResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	ExpiresIn    int          `json:"expires_in"` // Access Token 有效期（秒）
	User         UserResponse `json:"user"`
}

// UserResponse 用户信息响应（脱敏）
type UserResponse struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	Role         string `json:"role"`
	IsWorker     bool   `json:"is_worker"`
	Availability string `json:"availability"`
	HouseholdID  string `json:"household_id,omitempty"`
}

// SetAvailabilityRequest 更新工人可用性
type SetAvailabilityRequest struct {
	Availability string `json:"availability" binding:"required,oneof=available busy unavailable"`
}
