package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lqCintern/farm-management-sub004/internal/dto"
	"github.com/lqCintern/farm-management-sub004/internal/service"
	"github.com/lqCintern/farm-management-sub004/pkg/response"
)

// AssignmentHandler 用工安排 HTTP 处理器
type AssignmentHandler struct {
	assignmentSvc service.AssignmentService
	householdSvc  service.HouseholdService
}

// NewAssignmentHandler 创建 AssignmentHandler
func NewAssignmentHandler(assignmentSvc service.AssignmentService, householdSvc service.HouseholdService) *AssignmentHandler {
	return &AssignmentHandler{assignmentSvc: assignmentSvc, householdSvc: householdSvc}
}

// CreateAssignment 为请求安排一名工人
// POST /api/v1/labor-requests/:id/assignments
func (h *AssignmentHandler) CreateAssignment(c *gin.Context) {
	var req dto.CreateAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}

	actor, ok := mustOwnHousehold(c, h.householdSvc)
	if !ok {
		return
	}

	a, err := h.assignmentSvc.CreateAssignment(c.Request.Context(), c.Param("id"), actor.HouseholdID, &req)
	if err != nil {
		handleError(c, err)
		return
	}

	response.Created(c, a)
}

// BatchAssign 工人 × 日期批量安排
// POST /api/v1/labor-requests/:id/assignments/batch
//
// 全部冲突时整批回滚，返回 409 并带上逐项失败原因
func (h *AssignmentHandler) BatchAssign(c *gin.Context) {
	var req dto.BatchAssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}

	actor, ok := mustOwnHousehold(c, h.householdSvc)
	if !ok {
		return
	}

	result, err := h.assignmentSvc.BatchAssignWorkers(c.Request.Context(), c.Param("id"), actor.HouseholdID, &req)
	if err != nil {
		handleError(c, err)
		return
	}

	if result.Successful == 0 {
		c.JSON(http.StatusConflict, response.Response{
			Code:    22014,
			Message: "没有可安排的工人或日期",
			Data:    result,
		})
		return
	}
	response.Created(c, result)
}

// ListRequestAssignments 请求下的全部安排
// GET /api/v1/labor-requests/:id/assignments
func (h *AssignmentHandler) ListRequestAssignments(c *gin.Context) {
	actor, ok := mustOwnHousehold(c, h.householdSvc)
	if !ok {
		return
	}

	list, err := h.assignmentSvc.ListRequestAssignments(c.Request.Context(), c.Param("id"), actor.HouseholdID)
	if err != nil {
		handleError(c, err)
		return
	}

	response.OK(c, gin.H{"list": list})
}

// UpdateStatus 完成 / 拒绝 / 缺勤
// PUT /api/v1/assignments/:id/status
func (h *AssignmentHandler) UpdateStatus(c *gin.Context) {
	var req dto.UpdateAssignmentStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}

	actor, ok := resolveActor(c, h.householdSvc)
	if !ok {
		return
	}

	result, err := h.assignmentSvc.UpdateAssignmentStatus(c.Request.Context(), c.Param("id"), &req, actor)
	if err != nil {
		handleError(c, err)
		return
	}

	response.OK(c, result)
}

// Rate 评分
// PUT /api/v1/assignments/:id/rating
func (h *AssignmentHandler) Rate(c *gin.Context) {
	var req dto.RateAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}

	actor, ok := resolveActor(c, h.householdSvc)
	if !ok {
		return
	}

	a, err := h.assignmentSvc.RateAssignment(c.Request.Context(), c.Param("id"), req.Rating, actor)
	if err != nil {
		handleError(c, err)
		return
	}

	response.OK(c, a)
}

// MyAssignments 当前工人的安排
// GET /api/v1/assignments/me?upcoming=true
func (h *AssignmentHandler) MyAssignments(c *gin.Context) {
	var query dto.ListAssignmentsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		bindFailed(c, err)
		return
	}

	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	list, err := h.assignmentSvc.FindWorkerAssignments(c.Request.Context(), userID, &query)
	if err != nil {
		handleError(c, err)
		return
	}

	response.OK(c, gin.H{"list": list})
}
