package handler

import "github.com/lqCintern/farm-management-sub004/internal/service"

// Handler 所有 Handler 的聚合入口
type Handler struct {
	Auth       *AuthHandler
	Household  *HouseholdHandler
	Request    *RequestHandler
	Assignment *AssignmentHandler
	Exchange   *ExchangeHandler
	Export     *ExportHandler
}

// NewHandler 创建 Handler 聚合
func NewHandler(svc *service.Service) *Handler {
	return &Handler{
		Auth:       NewAuthHandler(svc.Auth),
		Household:  NewHouseholdHandler(svc.Household),
		Request:    NewRequestHandler(svc.Request, svc.Household),
		Assignment: NewAssignmentHandler(svc.Assignment, svc.Household),
		Exchange:   NewExchangeHandler(svc.Exchange, svc.Household),
		Export:     NewExportHandler(svc.Export, svc.Household),
	}
}
