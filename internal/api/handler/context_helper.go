package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/lqCintern/farm-management-sub004/internal/service"
	"github.com/lqCintern/farm-management-sub004/pkg/jwt"
	"github.com/lqCintern/farm-management-sub004/pkg/response"
)

// 与 middleware.JWTAuth 注入的键保持一致
const (
	ctxUserID = "user_id"
	ctxClaims = "claims"
)

// MustGetUserID 从 Gin 上下文中安全提取 user_id。
// 如果 JWT 中间件未正确注入 user_id，返回 false 并写入 401 响应。
// 调用方应在 ok=false 时直接 return。
func MustGetUserID(c *gin.Context) (string, bool) {
	v, exists := c.Get(ctxUserID)
	if !exists {
		response.Unauthorized(c, 10005, "未认证")
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		response.Unauthorized(c, 10005, "未认证")
		return "", false
	}
	return s, true
}

// MustGetClaims 提取完整的 Access Token 声明（登出时需要 jti 与过期时间）
func MustGetClaims(c *gin.Context) (*jwt.Claims, bool) {
	v, exists := c.Get(ctxClaims)
	if !exists {
		response.Unauthorized(c, 10005, "未认证")
		return nil, false
	}
	claims, ok := v.(*jwt.Claims)
	if !ok || claims == nil {
		response.Unauthorized(c, 10005, "未认证")
		return nil, false
	}
	return claims, true
}

// resolveActor 组装 Actor：用户不是户主时 HouseholdID 为空，由 Service 层据此拒绝
func resolveActor(c *gin.Context, households service.HouseholdService) (service.Actor, bool) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return service.Actor{}, false
	}
	actor := service.Actor{UserID: userID}

	h, err := households.FindHouseholdByOwner(c.Request.Context(), userID)
	switch {
	case err == nil:
		actor.HouseholdID = h.HouseholdID
	case errors.Is(err, service.ErrHouseholdNotFound):
	default:
		handleError(c, err)
		return service.Actor{}, false
	}
	return actor, true
}

// mustOwnHousehold 需要"以本户身份"调用的接口：未拥有农户直接 403
func mustOwnHousehold(c *gin.Context, households service.HouseholdService) (service.Actor, bool) {
	actor, ok := resolveActor(c, households)
	if !ok {
		return actor, false
	}
	if actor.HouseholdID == "" {
		response.Forbidden(c, 20011, "请先创建农户")
		return actor, false
	}
	return actor, true
}

// handleError 业务错误按分类映射状态码，其余一律 500
func handleError(c *gin.Context, err error) {
	if response.BizError(c, err) {
		return
	}
	_ = c.Error(err)
	response.InternalError(c)
}
