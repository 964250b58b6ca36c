package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/lqCintern/farm-management-sub004/internal/dto"
	"github.com/lqCintern/farm-management-sub004/internal/service"
	"github.com/lqCintern/farm-management-sub004/pkg/response"
)

// HouseholdHandler 农户目录 HTTP 处理器
type HouseholdHandler struct {
	householdSvc service.HouseholdService
}

// NewHouseholdHandler 创建 HouseholdHandler
func NewHouseholdHandler(householdSvc service.HouseholdService) *HouseholdHandler {
	return &HouseholdHandler{householdSvc: householdSvc}
}

// CreateHousehold 创建农户（当前用户为户主）
// POST /api/v1/households
func (h *HouseholdHandler) CreateHousehold(c *gin.Context) {
	var req dto.CreateHouseholdRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}

	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	household, err := h.householdSvc.CreateHousehold(c.Request.Context(), userID, &req)
	if err != nil {
		handleError(c, err)
		return
	}

	response.Created(c, household)
}

// GetMyHousehold 当前用户名下的农户
// GET /api/v1/households/me
func (h *HouseholdHandler) GetMyHousehold(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	household, err := h.householdSvc.FindHouseholdByOwner(c.Request.Context(), userID)
	if err != nil {
		handleError(c, err)
		return
	}

	response.OK(c, household)
}

// GetHousehold 农户详情
// GET /api/v1/households/:id
func (h *HouseholdHandler) GetHousehold(c *gin.Context) {
	household, err := h.householdSvc.GetHousehold(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}

	response.OK(c, household)
}

// ListWorkers 本户成员
// GET /api/v1/households/me/workers?include_inactive=true
func (h *HouseholdHandler) ListWorkers(c *gin.Context) {
	var query dto.ListWorkersQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		bindFailed(c, err)
		return
	}

	actor, ok := mustOwnHousehold(c, h.householdSvc)
	if !ok {
		return
	}

	workers, err := h.householdSvc.ListWorkers(c.Request.Context(), actor.HouseholdID, query.IncludeInactive)
	if err != nil {
		handleError(c, err)
		return
	}

	response.OK(c, gin.H{"list": workers})
}

// AddWorker 添加成员（已停用的成员关系会被重新激活）
// POST /api/v1/households/me/workers
func (h *HouseholdHandler) AddWorker(c *gin.Context) {
	var req dto.AddWorkerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}

	actor, ok := mustOwnHousehold(c, h.householdSvc)
	if !ok {
		return
	}

	member, err := h.householdSvc.AddWorker(c.Request.Context(), actor.HouseholdID, req.WorkerID, req.Relationship, actor)
	if err != nil {
		handleError(c, err)
		return
	}

	response.Created(c, member)
}

// RemoveWorker 停用成员关系
// DELETE /api/v1/households/me/workers/:worker_id
func (h *HouseholdHandler) RemoveWorker(c *gin.Context) {
	actor, ok := mustOwnHousehold(c, h.householdSvc)
	if !ok {
		return
	}

	if err := h.householdSvc.RemoveWorker(c.Request.Context(), actor.HouseholdID, c.Param("worker_id"), actor); err != nil {
		handleError(c, err)
		return
	}

	response.OK(c, nil)
}

// SetAvailability 工人更新自己的可用性
// PUT /api/v1/users/me/availability
func (h *HouseholdHandler) SetAvailability(c *gin.Context) {
	var req dto.SetAvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}

	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	if err := h.householdSvc.SetAvailability(c.Request.Context(), userID, req.Availability); err != nil {
		handleError(c, err)
		return
	}

	response.OK(c, gin.H{"availability": req.Availability})
}
