package handler

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/lqCintern/farm-management-sub004/internal/service"
	"github.com/lqCintern/farm-management-sub004/pkg/response"
)

const (
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	contentTypeICS  = "text/calendar; charset=utf-8"
)

// ExportHandler 导出模块 HTTP 处理器
type ExportHandler struct {
	exportSvc    service.ExportService
	householdSvc service.HouseholdService
}

// NewExportHandler 创建 ExportHandler
func NewExportHandler(exportSvc service.ExportService, householdSvc service.HouseholdService) *ExportHandler {
	return &ExportHandler{exportSvc: exportSvc, householdSvc: householdSvc}
}

// ExportStatement 导出账本对账单
// GET /api/v1/exchanges/:id/export
func (h *ExportHandler) ExportStatement(c *gin.Context) {
	actor, ok := mustOwnHousehold(c, h.householdSvc)
	if !ok {
		return
	}

	buf, filename, err := h.exportSvc.ExportExchangeStatement(c.Request.Context(), c.Param("id"), actor.HouseholdID)
	if err != nil {
		h.handleExportError(c, err)
		return
	}

	attachment(c, filename)
	c.Data(http.StatusOK, contentTypeXLSX, buf.Bytes())
}

// ExportCalendar 导出当前工人的未来安排
// GET /api/v1/assignments/me/calendar.ics
func (h *ExportHandler) ExportCalendar(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	buf, filename, err := h.exportSvc.ExportWorkerCalendar(c.Request.Context(), userID)
	if err != nil {
		h.handleExportError(c, err)
		return
	}

	attachment(c, filename)
	c.Data(http.StatusOK, contentTypeICS, buf.Bytes())
}

// attachment 下载响应头；文件名含中文，按 RFC 5987 编码
func attachment(c *gin.Context, filename string) {
	c.Header("Content-Description", "File Transfer")
	c.Header("Content-Disposition", "attachment; filename*=UTF-8''"+url.QueryEscape(filename))
}

func (h *ExportHandler) handleExportError(c *gin.Context, err error) {
	if errors.Is(err, service.ErrExportGenerateFail) {
		response.Error(c, http.StatusInternalServerError, 50001, "生成导出文件失败")
		return
	}
	handleError(c, err)
}
