package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/lqCintern/farm-management-sub004/internal/model"
	"github.com/lqCintern/farm-management-sub004/internal/repository"
)

// ── 导出模块业务错误 ──

var ErrExportGenerateFail = errors.New("生成导出文件失败")

const (
	defaultWorkStart = "07:00"
	defaultWorkEnd   = "17:00"
)

// ExportService 导出业务接口
//
// 导出以 bytes.Buffer 返回，由 Handler 层设置 HTTP 响应头后写入 Response。
type ExportService interface {
	// ExportExchangeStatement 账本对账单 (.xlsx)，余额按 householdID 视角累计
	ExportExchangeStatement(ctx context.Context, exchangeID, householdID string) (*bytes.Buffer, string, error)
	// ExportWorkerCalendar 工人未来安排 (.ics)
	ExportWorkerCalendar(ctx context.Context, workerID string) (*bytes.Buffer, string, error)
}

type exportService struct {
	repo     *repository.Repository
	exchange ExchangeService
	loc      *time.Location
	logger   *zap.Logger
	now      func() time.Time
}

// NewExportService 创建 ExportService 实例
func NewExportService(repo *repository.Repository, exchange ExchangeService, loc *time.Location, logger *zap.Logger) ExportService {
	return &exportService{repo: repo, exchange: exchange, loc: loc, logger: logger, now: time.Now}
}

// ═══════════════════════════════════════════════════════════
// ExportExchangeStatement 对账单
// ═══════════════════════════════════════════════════════════
//
// 表头: | 日期 | 类型 | 说明 | 工时 | 累计余额 |
// 流水按时间正序；工时与余额均换算为查看方视角，正数表示对方欠本户。

func (s *exportService) ExportExchangeStatement(ctx context.Context, exchangeID, householdID string) (*bytes.Buffer, string, error) {
	details, err := s.exchange.GetExchangeDetails(ctx, exchangeID, householdID)
	if err != nil {
		return nil, "", err
	}
	ex := details.Exchange

	otherName := details.OtherHouseholdID
	if h := otherHousehold(ex, householdID); h != nil {
		otherName = h.Name
	}

	f := excelize.NewFile()
	defer f.Close()

	sheetName := "对账单"
	idx, _ := f.NewSheet(sheetName)
	f.SetActiveSheet(idx)
	f.DeleteSheet("Sheet1")

	f.SetColWidth(sheetName, "A", "A", 20)
	f.SetColWidth(sheetName, "B", "B", 10)
	f.SetColWidth(sheetName, "C", "C", 36)
	f.SetColWidth(sheetName, "D", "E", 12)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#70AD47"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})

	// 标题行
	f.SetCellValue(sheetName, "A1", fmt.Sprintf("与 %s 的换工对账单", otherName))
	f.MergeCell(sheetName, "A1", "E1")
	f.SetCellStyle(sheetName, "A1", "A1", headerStyle)

	row := 2
	for i, title := range []string{"日期", "类型", "说明", "工时", "累计余额"} {
		f.SetCellValue(sheetName, cell(colName(i), row), title)
	}
	f.SetCellStyle(sheetName, cell("A", row), cell("E", row), headerStyle)

	// 详情流水为倒序
	txs := details.Transactions
	running := 0.0
	row = 3
	for i := len(txs) - 1; i >= 0; i-- {
		t := txs[i]
		hours := perspective(ex.HouseholdAID, householdID, t.Hours)
		running = round2(running + hours)

		f.SetCellValue(sheetName, cell("A", row), t.CreatedAt.In(s.loc).Format("2006-01-02 15:04"))
		f.SetCellValue(sheetName, cell("B", row), transactionKindLabel(t.Kind))
		f.SetCellValue(sheetName, cell("C", row), t.Description)
		f.SetCellValue(sheetName, cell("D", row), hours)
		f.SetCellValue(sheetName, cell("E", row), running)
		row++
	}

	// 合计行：与账本余额一致
	f.SetCellValue(sheetName, cell("C", row), "当前余额")
	f.SetCellValue(sheetName, cell("E", row), details.Balance)
	f.SetCellStyle(sheetName, cell("C", row), cell("E", row), headerStyle)

	if running != details.Balance {
		s.logger.Warn("流水累计与账本余额不一致",
			zap.String("exchange_id", exchangeID),
			zap.Float64("running", running),
			zap.Float64("balance", details.Balance),
		)
	}

	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		s.logger.Error("写入 Excel 失败", zap.Error(err))
		return nil, "", ErrExportGenerateFail
	}

	filename := fmt.Sprintf("换工对账单_%s_%s.xlsx", otherName, s.now().In(s.loc).Format("20060102"))
	return buf, filename, nil
}

func otherHousehold(ex *model.LaborExchange, viewer string) *model.Household {
	if ex.HouseholdAID == viewer {
		return ex.HouseholdB
	}
	return ex.HouseholdA
}

func transactionKindLabel(kind string) string {
	switch kind {
	case model.TransactionKindReset:
		return "清零"
	case model.TransactionKindAdjustment:
		return "重算调整"
	}
	return "出工"
}

// ═══════════════════════════════════════════════════════════
// ExportWorkerCalendar 工人日历
// ═══════════════════════════════════════════════════════════

func (s *exportService) ExportWorkerCalendar(ctx context.Context, workerID string) (*bytes.Buffer, string, error) {
	now := s.now()
	list, err := s.repo.LaborAssignment.ListByWorker(ctx, workerID, repository.AssignmentFilter{
		Status:   model.AssignmentStatusAssigned,
		Upcoming: true,
		Today:    todayIn(now, s.loc),
	})
	if err != nil {
		s.logger.Error("查询工人安排失败", zap.String("worker_id", workerID), zap.Error(err))
		return nil, "", err
	}

	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId("-//farm-labor-exchange//assignments//ZH")
	cal.SetXWRCalName("用工安排")
	cal.SetXWRTimezone(s.loc.String())

	for i := range list {
		a := &list[i]
		start, end := s.assignmentWindow(a)

		evt := cal.AddEvent(a.LaborAssignmentID + "@farm-labor-exchange")
		evt.SetDtStampTime(now.UTC())
		evt.SetStartAt(start)
		evt.SetEndAt(end)

		summary := "用工安排"
		if a.LaborRequest != nil {
			summary = a.LaborRequest.Title
			if a.LaborRequest.Description != "" {
				evt.SetDescription(a.LaborRequest.Description)
			}
		}
		evt.SetSummary(summary)
	}

	buf := bytes.NewBufferString(cal.Serialize())
	return buf, "assignments.ics", nil
}

// assignmentWindow 安排时段：优先用安排自身时间，其次请求时间，最后用默认工作时段
func (s *exportService) assignmentWindow(a *model.LaborAssignment) (time.Time, time.Time) {
	startHHMM, endHHMM := a.StartTime, a.EndTime
	if a.LaborRequest != nil {
		if startHHMM == "" {
			startHHMM = a.LaborRequest.StartTime
		}
		if endHHMM == "" {
			endHHMM = a.LaborRequest.EndTime
		}
	}
	if !validHHMM(startHHMM) {
		startHHMM = defaultWorkStart
	}
	if !validHHMM(endHHMM) {
		endHHMM = defaultWorkEnd
	}
	day := a.WorkDay()
	start, end := atClock(day, startHHMM, s.loc), atClock(day, endHHMM, s.loc)
	if !end.After(start) {
		end = start.Add(time.Hour)
	}
	return start, end
}

// atClock 日期 + HH:MM，在业务时区下构造时刻
func atClock(day time.Time, hhmm string, loc *time.Location) time.Time {
	t, _ := time.Parse("15:04", hhmm)
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, loc)
}

// ── 辅助函数 ──

func colName(idx int) string {
	name, _ := excelize.ColumnNumberToName(idx + 1)
	return name
}

func cell(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}
