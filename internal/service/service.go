package service

import (
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lqCintern/farm-management-sub004/config"
	"github.com/lqCintern/farm-management-sub004/internal/event"
	"github.com/lqCintern/farm-management-sub004/internal/repository"
	"github.com/lqCintern/farm-management-sub004/pkg/jwt"
)

// Service 所有 Service 的聚合入口
type Service struct {
	Auth       AuthService
	Household  HouseholdService
	Request    RequestService
	Assignment AssignmentService
	Exchange   ExchangeService
	Export     ExportService
}

// NewService 创建 Service 聚合
// blacklist 为 nil 时登出不落黑名单（Redis 不可用）
func NewService(
	cfg *config.Config,
	repo *repository.Repository,
	jwtMgr *jwt.Manager,
	blacklist TokenBlacklist,
	publisher event.Publisher,
	logger *zap.Logger,
) *Service {
	exchange := NewExchangeService(repo, publisher, logger)
	return &Service{
		Auth:       NewAuthService(cfg, repo, jwtMgr, blacklist, logger),
		Household:  NewHouseholdService(repo, cfg.Exchange.Location(), logger),
		Request:    NewRequestService(repo, exchange, publisher, &cfg.Exchange, logger),
		Assignment: NewAssignmentService(repo, exchange, publisher, &cfg.Exchange, logger),
		Exchange:   exchange,
		Export:     NewExportService(repo, exchange, cfg.Exchange.Location(), logger),
	}
}

// Actor 操作人及其名下农户（由接入层显式解析后传入）
// HouseholdID 为空表示该用户不是任何农户的户主
type Actor struct {
	UserID      string
	HouseholdID string
}

// OwnsHousehold 是否为指定农户的户主
func (a Actor) OwnsHousehold(householdID string) bool {
	return a.HouseholdID != "" && a.HouseholdID == householdID
}

// ── 日期与时间 ──

const dateLayout = "2006-01-02"

// parseDate 解析 YYYY-MM-DD，返回 UTC 零点
func parseDate(s string) (time.Time, bool) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// validHHMM 校验 HH:MM
func validHHMM(s string) bool {
	if len(s) != 5 || s[2] != ':' {
		return false
	}
	_, err := time.Parse("15:04", s)
	return err == nil
}

// dayKey 日期比较统一按 YYYY-MM-DD 字符串
func dayKey(t time.Time) string { return t.Format(dateLayout) }

// todayIn 业务时区下的"今天"，以 UTC 零点表示
func todayIn(now time.Time, loc *time.Location) time.Time {
	y, m, d := now.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// round2 工时保留两位小数（与 numeric(10,2) 一致）
func round2(v float64) float64 {
	r := math.Round(v*100) / 100
	if r == 0 {
		return 0 // 消除 -0
	}
	return r
}

func strPtr(s string) *string { return &s }
