package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/lqCintern/farm-management-sub004/internal/dto"
	"github.com/lqCintern/farm-management-sub004/internal/event"
	"github.com/lqCintern/farm-management-sub004/internal/model"
	"github.com/lqCintern/farm-management-sub004/internal/repository"
	pkgerrors "github.com/lqCintern/farm-management-sub004/pkg/errors"
)

// ── 换工账本业务错误 ──

var (
	ErrExchangeNotFound       = pkgerrors.NotFound(23001, "换工账本不存在")
	ErrNotExchangeParty       = pkgerrors.Authorization(23002, "非该换工账本的当事农户")
	ErrHoursRequired          = pkgerrors.Validation(23003, "完成记录缺少有效工时").WithField("hours_worked")
	ErrDirectionResolution    = pkgerrors.Direction(23004, "完成记录的双方与账本户对不匹配")
	ErrSameHousehold          = pkgerrors.Validation(23005, "户对的两方不能是同一农户")
	ErrAssignmentNotCompleted = pkgerrors.StateConflict(23006, "安排尚未完成，不能记账")
)

// errLedgerDuplicate 并发记账撞上唯一约束，回滚后按"已记账"处理
var errLedgerDuplicate = errors.New("assignment already recorded")

// ExchangeService 换工账本业务接口
//
// 约定：
//   - 户对按 id 字典序规范化，较小者为 a；hours_balance > 0 表示 b 欠 a
//   - 每条完成记录至多记账一次（流水表对 labor_assignment_id 唯一）
//   - 余额变更与流水追加在同一事务内，并对账本行加锁
type ExchangeService interface {
	ProcessCompletedAssignment(ctx context.Context, assignmentID string) (*dto.LedgerEntryResult, error)
	GetHouseholdExchanges(ctx context.Context, householdID string) ([]dto.HouseholdExchange, error)
	GetExchangeDetails(ctx context.Context, exchangeID, householdID string) (*dto.ExchangeDetails, error)
	ResetBalance(ctx context.Context, exchangeID, householdID string) (*dto.ResetResult, error)
	RecalculateBalance(ctx context.Context, householdX, householdY string) (*dto.RecalculateResult, error)
	RecalculateAllBalances(ctx context.Context) (*dto.RecalculateAllResult, error)
}

type exchangeService struct {
	repo      *repository.Repository
	publisher event.Publisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewExchangeService 创建 ExchangeService 实例
func NewExchangeService(repo *repository.Repository, publisher event.Publisher, logger *zap.Logger) ExchangeService {
	return &exchangeService{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// ═══════════════════════════════════════════════════════════
// ProcessCompletedAssignment 完成记录记账
// ═══════════════════════════════════════════════════════════

func (s *exchangeService) ProcessCompletedAssignment(ctx context.Context, assignmentID string) (*dto.LedgerEntryResult, error) {
	result := &dto.LedgerEntryResult{AssignmentID: assignmentID}

	err := s.repo.Tx.Transaction(ctx, func(tx *repository.Repository) error {
		a, err := tx.LaborAssignment.GetByID(ctx, assignmentID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrAssignmentNotFound
			}
			return err
		}
		req, err := s.requestOf(ctx, tx, a)
		if err != nil {
			return err
		}

		if !model.FeedsLedger(req.RequestType) {
			result.Success, result.Skipped = true, true
			result.Reason = "非换工类型请求，不计入账本"
			return nil
		}
		if a.Status != model.AssignmentStatusCompleted {
			return ErrAssignmentNotCompleted
		}
		if a.HoursWorked == nil || *a.HoursWorked <= 0 {
			return ErrHoursRequired
		}
		if a.HomeHouseholdID == req.RequestingHouseholdID {
			result.Success, result.Skipped = true, true
			result.Reason = "本户出工，不计入账本"
			return nil
		}

		ha, hb := canonicalPair(a.HomeHouseholdID, req.RequestingHouseholdID)
		ex, err := tx.LaborExchange.GetOrCreateForUpdate(ctx, ha, hb)
		if err != nil {
			return err
		}
		result.ExchangeID = ex.LaborExchangeID

		// 已持有账本行锁，同一户对的重复记账在此串行
		recorded, err := tx.ExchangeTx.ExistsForAssignment(ctx, a.LaborAssignmentID)
		if err != nil {
			return err
		}
		if recorded {
			result.Success, result.AlreadyRecorded = true, true
			result.Balance = round2(ex.HoursBalance)
			return nil
		}

		delta, err := resolveDelta(ex.HouseholdAID, ex.HouseholdBID, a.HomeHouseholdID, req.RequestingHouseholdID, *a.HoursWorked)
		if err != nil {
			s.logger.Error("换工方向解析失败，请执行余额重算",
				zap.String("exchange_id", ex.LaborExchangeID),
				zap.String("assignment_id", a.LaborAssignmentID),
				zap.String("worker_household_id", a.HomeHouseholdID),
				zap.String("requesting_household_id", req.RequestingHouseholdID),
			)
			return err
		}

		now := s.now()
		if err := tx.LaborExchange.ApplyDelta(ctx, ex.LaborExchangeID, delta, now); err != nil {
			return err
		}
		entry := &model.LaborExchangeTransaction{
			LaborExchangeID:   ex.LaborExchangeID,
			LaborAssignmentID: strPtr(a.LaborAssignmentID),
			Kind:              model.TransactionKindAssignment,
			Hours:             delta,
			Description:       fmt.Sprintf("%s 完成用工 %.2f 小时（%s）", dayKey(a.WorkDay()), *a.HoursWorked, req.Title),
			CreatedAt:         now,
		}
		if err := tx.ExchangeTx.Create(ctx, entry); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return errLedgerDuplicate
			}
			return err
		}

		result.Success = true
		result.Delta = delta
		result.Balance = round2(ex.HoursBalance + delta)
		return nil
	})

	if errors.Is(err, errLedgerDuplicate) {
		return &dto.LedgerEntryResult{
			Success:         true,
			AssignmentID:    assignmentID,
			ExchangeID:      result.ExchangeID,
			AlreadyRecorded: true,
		}, nil
	}
	if err != nil {
		if pkgerrors.KindOf(err) == "" {
			s.logger.Error("完成记录记账失败", zap.String("assignment_id", assignmentID), zap.Error(err))
		}
		return nil, err
	}

	if result.Delta != 0 {
		s.publisher.Publish(ctx, event.New(event.ExchangeUpdated, result.ExchangeID, map[string]any{
			"assignment_id": assignmentID,
			"delta":         result.Delta,
			"balance":       result.Balance,
		}))
	}
	return result, nil
}

func (s *exchangeService) requestOf(ctx context.Context, repo *repository.Repository, a *model.LaborAssignment) (*model.LaborRequest, error) {
	if a.LaborRequest != nil {
		return a.LaborRequest, nil
	}
	req, err := repo.LaborRequest.GetByID(ctx, a.LaborRequestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}
	return req, nil
}

// ═══════════════════════════════════════════════════════════
// 查询
// ═══════════════════════════════════════════════════════════

func (s *exchangeService) GetHouseholdExchanges(ctx context.Context, householdID string) ([]dto.HouseholdExchange, error) {
	list, err := s.repo.LaborExchange.ListByHousehold(ctx, householdID)
	if err != nil {
		s.logger.Error("查询换工账本失败", zap.String("household_id", householdID), zap.Error(err))
		return nil, err
	}

	views := make([]dto.HouseholdExchange, 0, len(list))
	for i := range list {
		ex := &list[i]
		balance := perspective(ex.HouseholdAID, householdID, ex.HoursBalance)
		view := dto.HouseholdExchange{
			ExchangeID:          ex.LaborExchangeID,
			Balance:             balance,
			Direction:           directionOf(balance),
			LastTransactionDate: ex.LastTransactionDate,
		}
		if ex.HouseholdAID == householdID {
			view.OtherHouseholdID, view.OtherHousehold = ex.HouseholdBID, ex.HouseholdB
		} else {
			view.OtherHouseholdID, view.OtherHousehold = ex.HouseholdAID, ex.HouseholdA
		}
		views = append(views, view)
	}
	return views, nil
}

func (s *exchangeService) GetExchangeDetails(ctx context.Context, exchangeID, householdID string) (*dto.ExchangeDetails, error) {
	ex, err := s.repo.LaborExchange.GetByID(ctx, exchangeID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrExchangeNotFound
		}
		return nil, err
	}
	if !ex.Involves(householdID) {
		return nil, ErrNotExchangeParty
	}

	txs, err := s.repo.ExchangeTx.ListByExchange(ctx, exchangeID)
	if err != nil {
		s.logger.Error("查询账本流水失败", zap.String("exchange_id", exchangeID), zap.Error(err))
		return nil, err
	}

	balance := perspective(ex.HouseholdAID, householdID, ex.HoursBalance)
	other := ex.HouseholdAID
	if other == householdID {
		other = ex.HouseholdBID
	}
	return &dto.ExchangeDetails{
		Exchange:         ex,
		OtherHouseholdID: other,
		Balance:          balance,
		Direction:        directionOf(balance),
		Transactions:     txs,
	}, nil
}

// ═══════════════════════════════════════════════════════════
// ResetBalance 清零
// ═══════════════════════════════════════════════════════════
//
// 流水增量记为 -旧余额，使流水总和与余额保持一致

func (s *exchangeService) ResetBalance(ctx context.Context, exchangeID, householdID string) (*dto.ResetResult, error) {
	result := &dto.ResetResult{ExchangeID: exchangeID}

	err := s.repo.Tx.Transaction(ctx, func(tx *repository.Repository) error {
		ex, err := tx.LaborExchange.GetByIDForUpdate(ctx, exchangeID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrExchangeNotFound
			}
			return err
		}
		if !ex.Involves(householdID) {
			return ErrNotExchangeParty
		}

		now := s.now()
		old := round2(ex.HoursBalance)
		if err := tx.LaborExchange.SetBalance(ctx, exchangeID, 0, now); err != nil {
			return err
		}
		entry := &model.LaborExchangeTransaction{
			LaborExchangeID: exchangeID,
			Kind:            model.TransactionKindReset,
			Hours:           round2(0 - old),
			Description:     fmt.Sprintf("余额清零（原余额 %.2f）", old),
			CreatedAt:       now,
		}
		if err := tx.ExchangeTx.Create(ctx, entry); err != nil {
			return err
		}

		result.PreviousBalance = old
		result.Transaction = entry
		return nil
	})
	if err != nil {
		if pkgerrors.KindOf(err) == "" {
			s.logger.Error("账本清零失败", zap.String("exchange_id", exchangeID), zap.Error(err))
		}
		return nil, err
	}

	s.logger.Info("账本已清零",
		zap.String("exchange_id", exchangeID),
		zap.String("household_id", householdID),
		zap.Float64("previous_balance", result.PreviousBalance),
	)
	s.publisher.Publish(ctx, event.New(event.ExchangeReset, exchangeID, map[string]any{
		"household_id":     householdID,
		"previous_balance": result.PreviousBalance,
	}))
	return result, nil
}

// ═══════════════════════════════════════════════════════════
// RecalculateBalance 按历史完成记录重放
// ═══════════════════════════════════════════════════════════
//
// 重放范围：最近一次清零之后完成的 exchange/mixed 类型记录。
// 漏记的完成记录补记为 assignment 流水；流水总和与期望余额仍不一致时
// 追加一条 adjustment 流水，最后将余额写为期望值。重复执行不再追加流水。

func (s *exchangeService) RecalculateBalance(ctx context.Context, householdX, householdY string) (*dto.RecalculateResult, error) {
	if householdX == "" || householdY == "" || householdX == householdY {
		return nil, ErrSameHousehold
	}
	ha, hb := canonicalPair(householdX, householdY)
	result := &dto.RecalculateResult{HouseholdAID: ha, HouseholdBID: hb}

	err := s.repo.Tx.Transaction(ctx, func(tx *repository.Repository) error {
		ex, err := tx.LaborExchange.GetByPair(ctx, ha, hb)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		var after *time.Time
		if ex != nil {
			reset, err := tx.ExchangeTx.LatestReset(ctx, ex.LaborExchangeID)
			if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			if reset != nil {
				after = &reset.CreatedAt
			}
		}

		assignments, err := tx.LaborAssignment.ListCompletedExchangeBetween(ctx, ha, hb, after)
		if err != nil {
			return err
		}
		if ex == nil && len(assignments) == 0 {
			return nil // 从未往来，不建空账本
		}

		// 加锁后重新读取，保证与并发记账串行
		ex, err = tx.LaborExchange.GetOrCreateForUpdate(ctx, ha, hb)
		if err != nil {
			return err
		}
		result.ExchangeID = ex.LaborExchangeID
		result.PreviousBalance = round2(ex.HoursBalance)

		now := s.now()
		var expected, backfilled float64
		for i := range assignments {
			a := &assignments[i]
			req, err := s.requestOf(ctx, tx, a)
			if err != nil {
				return err
			}
			delta, err := resolveDelta(ha, hb, a.HomeHouseholdID, req.RequestingHouseholdID, *a.HoursWorked)
			if err != nil {
				s.logger.Error("重算时方向解析失败",
					zap.String("exchange_id", ex.LaborExchangeID),
					zap.String("assignment_id", a.LaborAssignmentID),
				)
				return err
			}
			expected += delta
			result.Replayed++

			recorded, err := tx.ExchangeTx.ExistsForAssignment(ctx, a.LaborAssignmentID)
			if err != nil {
				return err
			}
			if recorded {
				continue
			}
			if err := tx.ExchangeTx.Create(ctx, &model.LaborExchangeTransaction{
				LaborExchangeID:   ex.LaborExchangeID,
				LaborAssignmentID: strPtr(a.LaborAssignmentID),
				Kind:              model.TransactionKindAssignment,
				Hours:             delta,
				Description:       fmt.Sprintf("重算补记 %s 完成用工 %.2f 小时", dayKey(a.WorkDay()), *a.HoursWorked),
				CreatedAt:         now,
			}); err != nil {
				return err
			}
			backfilled += delta
			result.Backfilled++
		}
		expected = round2(expected)

		sum, err := tx.ExchangeTx.SumByExchange(ctx, ex.LaborExchangeID)
		if err != nil {
			return err
		}
		// sum 已包含本次补记的流水
		adjustment := round2(expected - sum)
		if adjustment != 0 {
			if err := tx.ExchangeTx.Create(ctx, &model.LaborExchangeTransaction{
				LaborExchangeID: ex.LaborExchangeID,
				Kind:            model.TransactionKindAdjustment,
				Hours:           adjustment,
				Description:     fmt.Sprintf("余额重算校正（期望 %.2f）", expected),
				CreatedAt:       now,
			}); err != nil {
				return err
			}
			result.Adjustment = adjustment
		}

		if expected != result.PreviousBalance || adjustment != 0 || backfilled != 0 {
			if err := tx.LaborExchange.SetBalance(ctx, ex.LaborExchangeID, expected, now); err != nil {
				return err
			}
		}
		result.Balance = expected
		return nil
	})
	if err != nil {
		if pkgerrors.KindOf(err) == "" {
			s.logger.Error("余额重算失败", zap.String("household_a_id", ha), zap.String("household_b_id", hb), zap.Error(err))
		}
		return nil, err
	}

	if result.ExchangeID != "" && result.Balance != result.PreviousBalance {
		s.logger.Warn("余额重算发现偏差",
			zap.String("exchange_id", result.ExchangeID),
			zap.Float64("previous_balance", result.PreviousBalance),
			zap.Float64("balance", result.Balance),
		)
		s.publisher.Publish(ctx, event.New(event.ExchangeUpdated, result.ExchangeID, map[string]any{
			"balance":    result.Balance,
			"adjustment": result.Adjustment,
		}))
	}
	return result, nil
}

func (s *exchangeService) RecalculateAllBalances(ctx context.Context) (*dto.RecalculateAllResult, error) {
	pairs := make(map[[2]string]struct{})

	exchanges, err := s.repo.LaborExchange.List(ctx)
	if err != nil {
		s.logger.Error("查询换工账本失败", zap.Error(err))
		return nil, err
	}
	for _, ex := range exchanges {
		pairs[[2]string{ex.HouseholdAID, ex.HouseholdBID}] = struct{}{}
	}

	history, err := s.repo.LaborAssignment.ListExchangePairs(ctx)
	if err != nil {
		s.logger.Error("查询换工户对失败", zap.Error(err))
		return nil, err
	}
	for _, p := range history {
		a, b := canonicalPair(p.WorkerHouseholdID, p.RequestingHouseholdID)
		pairs[[2]string{a, b}] = struct{}{}
	}

	result := &dto.RecalculateAllResult{Results: make([]dto.RecalculateResult, 0, len(pairs))}
	for pair := range pairs {
		result.Total++
		r, err := s.RecalculateBalance(ctx, pair[0], pair[1])
		if err != nil {
			result.Errors = append(result.Errors, itemError(pair[0]+":"+pair[1], err))
			continue
		}
		if r.Adjustment != 0 || r.Backfilled > 0 || r.Balance != r.PreviousBalance {
			result.Adjusted++
		}
		result.Results = append(result.Results, *r)
	}

	s.logger.Info("全量余额重算完成",
		zap.Int("total", result.Total),
		zap.Int("adjusted", result.Adjusted),
		zap.Int("failed", len(result.Errors)),
	)
	return result, nil
}

// itemError 将错误转为单项失败记录
func itemError(ref string, err error) dto.ItemError {
	var e *pkgerrors.Error
	if errors.As(err, &e) {
		return dto.ItemError{Ref: ref, Code: e.Code, Message: e.Error()}
	}
	return dto.ItemError{Ref: ref, Code: 50000, Message: "服务器内部错误"}
}
