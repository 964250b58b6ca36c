package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/lqCintern/farm-management-sub004/internal/dto"
	"github.com/lqCintern/farm-management-sub004/internal/service"
	"github.com/lqCintern/farm-management-sub004/pkg/response"
)

// ExchangeHandler 换工账本 HTTP 处理器
type ExchangeHandler struct {
	exchangeSvc  service.ExchangeService
	householdSvc service.HouseholdService
}

// NewExchangeHandler 创建 ExchangeHandler
func NewExchangeHandler(exchangeSvc service.ExchangeService, householdSvc service.HouseholdService) *ExchangeHandler {
	return &ExchangeHandler{exchangeSvc: exchangeSvc, householdSvc: householdSvc}
}

// ListExchanges 本户的全部账本（本户视角余额）
// GET /api/v1/exchanges
func (h *ExchangeHandler) ListExchanges(c *gin.Context) {
	actor, ok := mustOwnHousehold(c, h.householdSvc)
	if !ok {
		return
	}

	list, err := h.exchangeSvc.GetHouseholdExchanges(c.Request.Context(), actor.HouseholdID)
	if err != nil {
		handleError(c, err)
		return
	}

	response.OK(c, gin.H{"list": list})
}

// GetExchange 账本详情与流水
// GET /api/v1/exchanges/:id
func (h *ExchangeHandler) GetExchange(c *gin.Context) {
	actor, ok := mustOwnHousehold(c, h.householdSvc)
	if !ok {
		return
	}

	details, err := h.exchangeSvc.GetExchangeDetails(c.Request.Context(), c.Param("id"), actor.HouseholdID)
	if err != nil {
		handleError(c, err)
		return
	}

	response.OK(c, details)
}

// ResetBalance 清零
// POST /api/v1/exchanges/:id/reset
func (h *ExchangeHandler) ResetBalance(c *gin.Context) {
	actor, ok := mustOwnHousehold(c, h.householdSvc)
	if !ok {
		return
	}

	result, err := h.exchangeSvc.ResetBalance(c.Request.Context(), c.Param("id"), actor.HouseholdID)
	if err != nil {
		handleError(c, err)
		return
	}

	response.OK(c, result)
}

// RecalculatePair 本户与指定农户的账本重算
// POST /api/v1/exchanges/recalculate
func (h *ExchangeHandler) RecalculatePair(c *gin.Context) {
	var req dto.RecalculatePairRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}

	actor, ok := mustOwnHousehold(c, h.householdSvc)
	if !ok {
		return
	}

	result, err := h.exchangeSvc.RecalculateBalance(c.Request.Context(), actor.HouseholdID, req.HouseholdID)
	if err != nil {
		handleError(c, err)
		return
	}

	response.OK(c, result)
}

// RecalculateAll 全量重算（运维）
// POST /api/v1/admin/exchanges/recalculate-all
func (h *ExchangeHandler) RecalculateAll(c *gin.Context) {
	result, err := h.exchangeSvc.RecalculateAllBalances(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}

	response.OK(c, result)
}
