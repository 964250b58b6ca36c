package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/lqCintern/farm-management-sub004/internal/dto"
	"github.com/lqCintern/farm-management-sub004/internal/service"
	"github.com/lqCintern/farm-management-sub004/pkg/response"
)

// RequestHandler 用工请求 HTTP 处理器
type RequestHandler struct {
	requestSvc   service.RequestService
	householdSvc service.HouseholdService
}

// NewRequestHandler 创建 RequestHandler
func NewRequestHandler(requestSvc service.RequestService, householdSvc service.HouseholdService) *RequestHandler {
	return &RequestHandler{requestSvc: requestSvc, householdSvc: householdSvc}
}

// CreateRequest 发起用工请求
// POST /api/v1/labor-requests
func (h *RequestHandler) CreateRequest(c *gin.Context) {
	var req dto.LaborRequestParams
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}

	actor, ok := mustOwnHousehold(c, h.householdSvc)
	if !ok {
		return
	}

	created, err := h.requestSvc.CreateRequest(c.Request.Context(), actor.HouseholdID, &req)
	if err != nil {
		handleError(c, err)
		return
	}

	response.Created(c, created)
}

// CreateMixedRequest 混合请求：父请求 + 每个目标农户一个子请求
// POST /api/v1/labor-requests/mixed
//
// 部分子请求失败仍返回 201，失败项在 errors 中
func (h *RequestHandler) CreateMixedRequest(c *gin.Context) {
	var req dto.CreateMixedLaborRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}

	actor, ok := mustOwnHousehold(c, h.householdSvc)
	if !ok {
		return
	}

	opts := dto.MixedOptions{IsPublic: req.IsPublic, MaxAcceptors: req.MaxAcceptors}
	result, err := h.requestSvc.CreateMixedRequest(c.Request.Context(), actor.HouseholdID, &req.LaborRequestParams, req.ProviderIDs, opts)
	if err != nil {
		handleError(c, err)
		return
	}

	response.Created(c, result)
}

// ListRequests 本户可见的请求（发出的、收到的与公开的）
// GET /api/v1/labor-requests?status=pending&exclude_joined=true&page=1&page_size=20
func (h *RequestHandler) ListRequests(c *gin.Context) {
	var query dto.ListLaborRequestsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		bindFailed(c, err)
		return
	}

	actor, ok := mustOwnHousehold(c, h.householdSvc)
	if !ok {
		return
	}

	list, total, err := h.requestSvc.FindRequestsForHousehold(c.Request.Context(), actor.HouseholdID, &query)
	if err != nil {
		handleError(c, err)
		return
	}

	response.OKPage(c, list, total, query.GetPage(), query.GetPageSize())
}

// GetRequest 请求详情
// GET /api/v1/labor-requests/:id
func (h *RequestHandler) GetRequest(c *gin.Context) {
	actor, ok := resolveActor(c, h.householdSvc)
	if !ok {
		return
	}

	req, err := h.requestSvc.GetRequest(c.Request.Context(), c.Param("id"), actor.HouseholdID)
	if err != nil {
		handleError(c, err)
		return
	}

	response.OK(c, req)
}

// UpdateRequest 修改请求
// PUT /api/v1/labor-requests/:id
func (h *RequestHandler) UpdateRequest(c *gin.Context) {
	var req dto.UpdateLaborRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}

	actor, ok := mustOwnHousehold(c, h.householdSvc)
	if !ok {
		return
	}

	updated, err := h.requestSvc.UpdateRequest(c.Request.Context(), c.Param("id"), actor.HouseholdID, &req)
	if err != nil {
		handleError(c, err)
		return
	}

	response.OK(c, updated)
}

// JoinRequest 加入公开请求；重复加入返回已有子请求
// POST /api/v1/labor-requests/:id/join
func (h *RequestHandler) JoinRequest(c *gin.Context) {
	actor, ok := mustOwnHousehold(c, h.householdSvc)
	if !ok {
		return
	}

	result, err := h.requestSvc.JoinPublicRequest(c.Request.Context(), c.Param("id"), actor.HouseholdID)
	if err != nil {
		handleError(c, err)
		return
	}

	if result.AlreadyJoined {
		response.OK(c, result)
		return
	}
	response.Created(c, result)
}

// ProcessRequest 状态流转：accept | decline | cancel | complete
// POST /api/v1/labor-requests/:id/{action}
func (h *RequestHandler) ProcessRequest(action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := resolveActor(c, h.householdSvc)
		if !ok {
			return
		}

		result, err := h.requestSvc.ProcessRequest(c.Request.Context(), c.Param("id"), action, actor)
		if err != nil {
			handleError(c, err)
			return
		}

		response.OK(c, result)
	}
}

// GetGroup 分组详情与状态计数
// GET /api/v1/labor-requests/:id/group
func (h *RequestHandler) GetGroup(c *gin.Context) {
	actor, ok := resolveActor(c, h.householdSvc)
	if !ok {
		return
	}

	id := c.Param("id")
	if _, err := h.requestSvc.GetRequest(c.Request.Context(), id, actor.HouseholdID); err != nil {
		handleError(c, err)
		return
	}

	view, err := h.requestSvc.GetGroupStatus(c.Request.Context(), id)
	if err != nil {
		handleError(c, err)
		return
	}

	response.OK(c, view)
}

// SuggestWorkers 推荐可用工人
// GET /api/v1/labor-requests/:id/suggested-workers?limit=10
func (h *RequestHandler) SuggestWorkers(c *gin.Context) {
	var query dto.SuggestWorkersQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		bindFailed(c, err)
		return
	}

	actor, ok := mustOwnHousehold(c, h.householdSvc)
	if !ok {
		return
	}

	id := c.Param("id")
	if _, err := h.requestSvc.GetRequest(c.Request.Context(), id, actor.HouseholdID); err != nil {
		handleError(c, err)
		return
	}

	workers, err := h.requestSvc.SuggestWorkers(c.Request.Context(), id, query.Limit)
	if err != nil {
		handleError(c, err)
		return
	}

	response.OK(c, gin.H{"list": workers})
}
