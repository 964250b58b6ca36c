package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/lqCintern/farm-management-sub004/config"
	"github.com/lqCintern/farm-management-sub004/internal/dto"
	"github.com/lqCintern/farm-management-sub004/internal/event"
	"github.com/lqCintern/farm-management-sub004/internal/model"
	"github.com/lqCintern/farm-management-sub004/internal/repository"
	pkgerrors "github.com/lqCintern/farm-management-sub004/pkg/errors"
)

// ── 用工安排业务错误 ──

var (
	ErrAssignmentNotFound      = pkgerrors.NotFound(22001, "用工安排不存在")
	ErrWorkDateOutOfRange      = pkgerrors.Validation(22002, "工作日期不在请求日期范围内").WithField("work_date")
	ErrWorkerDoubleBooked      = pkgerrors.StateConflict(22003, "该工人当天已有安排")
	ErrWorkerNoHousehold       = pkgerrors.Validation(22004, "工人未加入任何农户").WithField("worker_id")
	ErrRequestNotSchedulable   = pkgerrors.StateConflict(22005, "请求已结束，不能安排工人")
	ErrInvalidAssignmentStatus = pkgerrors.Validation(22006, "安排状态无效").WithField("status")
	ErrAssignmentFinalized     = pkgerrors.StateConflict(22007, "安排已结束，不能变更状态")
	ErrNotAssignmentParty      = pkgerrors.Authorization(22008, "无权操作该安排")
	ErrInvalidHours            = pkgerrors.Validation(22009, "工时必须大于 0").WithField("hours_worked")
	ErrInvalidRating           = pkgerrors.Validation(22010, "评分须在 1-5 之间").WithField("rating")
	ErrRatingNotAllowed        = pkgerrors.StateConflict(22011, "仅已完成的安排可以评分")
	ErrEmptyBatch              = pkgerrors.Validation(22012, "工人与日期不能为空")
	ErrInvalidWorkDate         = pkgerrors.Validation(22013, "工作日期格式应为 YYYY-MM-DD").WithField("work_date")
	ErrRequestNotAccepted      = pkgerrors.StateConflict(22014, "请求尚未被接受，不能安排工人")
)

// errNothingAssigned 批量安排无一成功，用于触发整批回滚
var errNothingAssigned = errors.New("no assignment created")

// errBookingRace 写入时撞上工人+日期唯一索引。PG 事务此时已中止，
// 不能按单项失败继续，只能整体回滚，返回前转换为 ErrWorkerDoubleBooked
var errBookingRace = errors.New("worker-day unique index violated")

func bookingError(err error) error {
	if errors.Is(err, errBookingRace) {
		return ErrWorkerDoubleBooked
	}
	return err
}

// AssignmentService 用工安排业务接口
//
// 排他规则按"工人 + 自然日"：同一工人同一天至多一条 assigned/completed 安排，
// 与具体时段是否重叠无关。
type AssignmentService interface {
	CreateAssignment(ctx context.Context, requestID, householdID string, params *dto.CreateAssignmentRequest) (*model.LaborAssignment, error)
	BatchAssignWorkers(ctx context.Context, requestID, householdID string, params *dto.BatchAssignRequest) (*dto.BatchAssignResult, error)
	UpdateAssignmentStatus(ctx context.Context, assignmentID string, params *dto.UpdateAssignmentStatusRequest, actor Actor) (*dto.AssignmentStatusResult, error)
	FindWorkerAssignments(ctx context.Context, workerID string, query *dto.ListAssignmentsQuery) ([]model.LaborAssignment, error)
	ListRequestAssignments(ctx context.Context, requestID, householdID string) ([]model.LaborAssignment, error)
	RateAssignment(ctx context.Context, assignmentID string, rating int, actor Actor) (*model.LaborAssignment, error)
}

type assignmentService struct {
	repo      *repository.Repository
	ledger    ExchangeService
	publisher event.Publisher
	cfg       *config.ExchangeConfig
	loc       *time.Location
	logger    *zap.Logger
	now       func() time.Time
}

// NewAssignmentService 创建 AssignmentService 实例
func NewAssignmentService(
	repo *repository.Repository,
	ledger ExchangeService,
	publisher event.Publisher,
	cfg *config.ExchangeConfig,
	logger *zap.Logger,
) AssignmentService {
	return &assignmentService{
		repo:      repo,
		ledger:    ledger,
		publisher: publisher,
		cfg:       cfg,
		loc:       cfg.Location(),
		logger:    logger,
		now:       time.Now,
	}
}

func (s *assignmentService) today() time.Time { return todayIn(s.now(), s.loc) }

// schedulableRequest 校验请求存在、归属调用方且处于 accepted
func (s *assignmentService) schedulableRequest(ctx context.Context, requestID, householdID string) (*model.LaborRequest, error) {
	req, err := s.repo.LaborRequest.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}
	if req.RequestingHouseholdID != householdID {
		return nil, ErrNotRequester
	}
	if req.IsTerminal() {
		return nil, ErrRequestNotSchedulable
	}
	if req.Status != model.RequestStatusAccepted {
		return nil, ErrRequestNotAccepted
	}
	return req, nil
}

func withinRequest(req *model.LaborRequest, day time.Time) bool {
	k := dayKey(day)
	return k >= dayKey(time.Time(req.StartDate)) && k <= dayKey(time.Time(req.EndDate))
}

// bookWorkerDay 在事务内串行化同一工人同一天的检查与写入
func (s *assignmentService) bookWorkerDay(ctx context.Context, tx *repository.Repository, a *model.LaborAssignment) error {
	day := a.WorkDay()
	if err := tx.LaborAssignment.LockWorkerDay(ctx, a.WorkerID, day); err != nil {
		return err
	}
	taken, err := tx.LaborAssignment.ExistsForWorkerOnDate(ctx, a.WorkerID, day, "")
	if err != nil {
		return err
	}
	if taken {
		return ErrWorkerDoubleBooked
	}
	if err := tx.LaborAssignment.Create(ctx, a); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: %s@%s", errBookingRace, a.WorkerID, dayKey(day))
		}
		return err
	}
	// 当天的安排立即占用工人
	if dayKey(day) == dayKey(s.today()) {
		if err := tx.User.SetAvailability(ctx, a.WorkerID, model.AvailabilityBusy); err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
	}
	return nil
}

// ═══════════════════════════════════════════════════════════
// CreateAssignment
// ═══════════════════════════════════════════════════════════

func (s *assignmentService) CreateAssignment(ctx context.Context, requestID, householdID string, params *dto.CreateAssignmentRequest) (*model.LaborAssignment, error) {
	req, err := s.schedulableRequest(ctx, requestID, householdID)
	if err != nil {
		return nil, err
	}

	day, ok := parseDate(params.WorkDate)
	if !ok {
		return nil, ErrInvalidWorkDate
	}
	if errs := validateTimeWindow(params.StartTime, params.EndTime); len(errs) > 0 {
		return nil, errs
	}
	if !withinRequest(req, day) {
		return nil, ErrWorkDateOutOfRange
	}

	membership, err := s.repo.HouseholdWorker.FindActiveByWorker(ctx, params.WorkerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWorkerNoHousehold
		}
		return nil, err
	}

	a := s.newAssignment(req, params.WorkerID, membership.HouseholdID, day, params.StartTime, params.EndTime)
	a.Notes = params.Notes

	err = s.repo.Tx.Transaction(ctx, func(tx *repository.Repository) error {
		return s.bookWorkerDay(ctx, tx, a)
	})
	if err = bookingError(err); err != nil {
		if pkgerrors.KindOf(err) == "" {
			s.logger.Error("创建用工安排失败", zap.String("request_id", requestID), zap.Error(err))
		}
		return nil, err
	}

	s.publishCreated(ctx, a)
	return a, nil
}

func (s *assignmentService) newAssignment(req *model.LaborRequest, workerID, homeHouseholdID string, day time.Time, startTime, endTime string) *model.LaborAssignment {
	if startTime == "" {
		startTime = req.StartTime
	}
	if endTime == "" {
		endTime = req.EndTime
	}
	return &model.LaborAssignment{
		LaborRequestID:  req.LaborRequestID,
		WorkerID:        workerID,
		HomeHouseholdID: homeHouseholdID,
		WorkDate:        datatypes.Date(day),
		StartTime:       startTime,
		EndTime:         endTime,
		Status:          model.AssignmentStatusAssigned,
	}
}

func (s *assignmentService) publishCreated(ctx context.Context, a *model.LaborAssignment) {
	s.publisher.Publish(ctx, event.New(event.AssignmentCreated, a.LaborAssignmentID, map[string]any{
		"labor_request_id": a.LaborRequestID,
		"worker_id":        a.WorkerID,
		"work_date":        dayKey(a.WorkDay()),
	}))
}

// ═══════════════════════════════════════════════════════════
// BatchAssignWorkers 工人 × 日期
// ═══════════════════════════════════════════════════════════
//
// 日期越界在写入前整体拒绝；其余失败项逐条记录。
// 全部写入在一个事务内，无一成功时整体回滚；写入撞上唯一索引时整批回滚。

func (s *assignmentService) BatchAssignWorkers(ctx context.Context, requestID, householdID string, params *dto.BatchAssignRequest) (*dto.BatchAssignResult, error) {
	if len(params.WorkerIDs) == 0 || len(params.Dates) == 0 {
		return nil, ErrEmptyBatch
	}
	req, err := s.schedulableRequest(ctx, requestID, householdID)
	if err != nil {
		return nil, err
	}
	if errs := validateTimeWindow(params.StartTime, params.EndTime); len(errs) > 0 {
		return nil, errs
	}

	var errs pkgerrors.List
	days := make([]time.Time, 0, len(params.Dates))
	for i, raw := range params.Dates {
		day, ok := parseDate(raw)
		if !ok {
			errs = append(errs, ErrInvalidWorkDate.WithField(fmt.Sprintf("dates[%d]", i)))
			continue
		}
		if !withinRequest(req, day) {
			errs = append(errs, ErrWorkDateOutOfRange.WithField(fmt.Sprintf("dates[%d]", i)))
			continue
		}
		days = append(days, day)
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}

	// 工人所属农户在事务外解析
	homes := make(map[string]string, len(params.WorkerIDs))
	for _, workerID := range params.WorkerIDs {
		if _, done := homes[workerID]; done {
			continue
		}
		m, err := s.repo.HouseholdWorker.FindActiveByWorker(ctx, workerID)
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, err
			}
			homes[workerID] = ""
			continue
		}
		homes[workerID] = m.HouseholdID
	}

	result := &dto.BatchAssignResult{Assignments: []model.LaborAssignment{}}
	err = s.repo.Tx.Transaction(ctx, func(tx *repository.Repository) error {
		result.Total, result.Successful, result.Failed = 0, 0, 0
		result.Assignments = result.Assignments[:0]
		result.Errors = nil

		for _, workerID := range params.WorkerIDs {
			for _, day := range days {
				result.Total++
				ref := workerID + "@" + dayKey(day)

				home := homes[workerID]
				if home == "" {
					result.Failed++
					result.Errors = append(result.Errors, itemError(ref, ErrWorkerNoHousehold))
					continue
				}

				a := s.newAssignment(req, workerID, home, day, params.StartTime, params.EndTime)
				if err := s.bookWorkerDay(ctx, tx, a); err != nil {
					if errors.Is(err, ErrWorkerDoubleBooked) {
						result.Failed++
						result.Errors = append(result.Errors, itemError(ref, err))
						continue
					}
					return err
				}
				result.Successful++
				result.Assignments = append(result.Assignments, *a)
			}
		}

		if result.Successful == 0 {
			return errNothingAssigned
		}
		return nil
	})

	if errors.Is(err, errNothingAssigned) {
		result.Assignments = []model.LaborAssignment{}
		return result, nil
	}
	if errors.Is(err, errBookingRace) {
		s.logger.Warn("批量安排与并发写入冲突，整批回滚", zap.String("request_id", requestID), zap.Error(err))
		return nil, ErrWorkerDoubleBooked
	}
	if err != nil {
		s.logger.Error("批量安排失败", zap.String("request_id", requestID), zap.Error(err))
		return nil, err
	}

	result.Success = result.Failed == 0
	for i := range result.Assignments {
		s.publishCreated(ctx, &result.Assignments[i])
	}
	s.logger.Info("批量安排完成",
		zap.String("request_id", requestID),
		zap.Int("total", result.Total),
		zap.Int("successful", result.Successful),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

// ═══════════════════════════════════════════════════════════
// UpdateAssignmentStatus
// ═══════════════════════════════════════════════════════════

func (s *assignmentService) UpdateAssignmentStatus(ctx context.Context, assignmentID string, params *dto.UpdateAssignmentStatusRequest, actor Actor) (*dto.AssignmentStatusResult, error) {
	switch params.Status {
	case model.AssignmentStatusCompleted, model.AssignmentStatusRejected, model.AssignmentStatusMissed:
	default:
		return nil, ErrInvalidAssignmentStatus
	}
	if params.HoursWorked != nil && *params.HoursWorked <= 0 {
		return nil, ErrInvalidHours
	}

	var updated *model.LaborAssignment
	err := s.repo.Tx.Transaction(ctx, func(tx *repository.Repository) error {
		// 行锁：并发的状态流转在此串行，后到者读到终态
		a, err := tx.LaborAssignment.GetByIDForUpdate(ctx, assignmentID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrAssignmentNotFound
			}
			return err
		}
		req, err := tx.LaborRequest.GetByID(ctx, a.LaborRequestID)
		if err != nil {
			return err
		}

		// completed/missed 由请求方户主确认；rejected 工人本人也可执行
		owner := actor.OwnsHousehold(req.RequestingHouseholdID)
		if !owner && !(params.Status == model.AssignmentStatusRejected && actor.UserID == a.WorkerID) {
			return ErrNotAssignmentParty
		}
		if a.IsTerminal() {
			return ErrAssignmentFinalized
		}

		a.Status = params.Status
		a.UpdatedBy = strPtr(actor.UserID)
		if params.Notes != nil {
			a.Notes = *params.Notes
		}
		if params.Status == model.AssignmentStatusCompleted {
			now := s.now()
			a.CompletedAt = &now
			if params.HoursWorked != nil {
				hours := round2(*params.HoursWorked)
				units := round2(hours / s.cfg.HoursPerWorkUnit)
				a.HoursWorked, a.WorkUnits = &hours, &units
			}
		}
		if err := tx.LaborAssignment.Transition(ctx, a, model.AssignmentStatusAssigned); err != nil {
			if errors.Is(err, pkgerrors.ErrOptimisticLock) {
				return ErrAssignmentFinalized
			}
			return err
		}

		// 当天被拒绝/缺勤，工人恢复可用
		if params.Status != model.AssignmentStatusCompleted && dayKey(a.WorkDay()) == dayKey(s.today()) {
			if err := tx.User.SetAvailability(ctx, a.WorkerID, model.AvailabilityAvailable); err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
		}

		a.LaborRequest = req
		updated = a
		return nil
	})
	if err != nil {
		if pkgerrors.KindOf(err) == "" {
			s.logger.Error("更新安排状态失败", zap.String("assignment_id", assignmentID), zap.Error(err))
		}
		return nil, err
	}

	result := &dto.AssignmentStatusResult{Success: true, Assignment: updated}

	// 记账失败不撤销完成状态
	if updated.Status == model.AssignmentStatusCompleted && updated.HoursWorked != nil {
		entry, err := s.ledger.ProcessCompletedAssignment(ctx, assignmentID)
		if err != nil {
			result.ExchangeErrors = append(result.ExchangeErrors, itemError(assignmentID, err))
		} else {
			result.LedgerEntry = entry
		}
	}

	s.publisher.Publish(ctx, event.New(event.AssignmentStatusChanged, assignmentID, map[string]any{
		"status":           updated.Status,
		"worker_id":        updated.WorkerID,
		"labor_request_id": updated.LaborRequestID,
	}))
	return result, nil
}

// ═══════════════════════════════════════════════════════════
// 查询与评分
// ═══════════════════════════════════════════════════════════

// FindWorkerAssignments upcoming 时按日期升序且仅含今天及以后，否则按日期降序
func (s *assignmentService) FindWorkerAssignments(ctx context.Context, workerID string, query *dto.ListAssignmentsQuery) ([]model.LaborAssignment, error) {
	filter := repository.AssignmentFilter{
		Status:   query.Status,
		Upcoming: query.Upcoming,
		Today:    s.today(),
	}

	var errs pkgerrors.List
	if query.StartDate != "" {
		if d, ok := parseDate(query.StartDate); ok {
			filter.StartDate = &d
		} else {
			errs = append(errs, pkgerrors.Validation(22013, "日期格式应为 YYYY-MM-DD").WithField("start_date"))
		}
	}
	if query.EndDate != "" {
		if d, ok := parseDate(query.EndDate); ok {
			filter.EndDate = &d
		} else {
			errs = append(errs, pkgerrors.Validation(22013, "日期格式应为 YYYY-MM-DD").WithField("end_date"))
		}
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}

	list, err := s.repo.LaborAssignment.ListByWorker(ctx, workerID, filter)
	if err != nil {
		s.logger.Error("查询工人安排失败", zap.String("worker_id", workerID), zap.Error(err))
		return nil, err
	}
	return list, nil
}

func (s *assignmentService) ListRequestAssignments(ctx context.Context, requestID, householdID string) ([]model.LaborAssignment, error) {
	req, err := s.repo.LaborRequest.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}
	if req.RequestingHouseholdID != householdID &&
		(req.ProvidingHouseholdID == nil || *req.ProvidingHouseholdID != householdID) {
		return nil, ErrRequestNotVisible
	}
	return s.repo.LaborAssignment.ListByRequest(ctx, requestID)
}

// RateAssignment 请求方户主给工人评分，工人给请求方评分；仅限已完成的安排
func (s *assignmentService) RateAssignment(ctx context.Context, assignmentID string, rating int, actor Actor) (*model.LaborAssignment, error) {
	if rating < 1 || rating > 5 {
		return nil, ErrInvalidRating
	}

	a, err := s.repo.LaborAssignment.GetByID(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAssignmentNotFound
		}
		return nil, err
	}
	if a.Status != model.AssignmentStatusCompleted {
		return nil, ErrRatingNotAllowed
	}
	if a.LaborRequest == nil {
		return nil, ErrRequestNotFound
	}

	var column string
	switch {
	case actor.OwnsHousehold(a.LaborRequest.RequestingHouseholdID):
		column = repository.RatingColumnWorker
		a.WorkerRating = &rating
	case actor.UserID == a.WorkerID:
		column = repository.RatingColumnFarmer
		a.FarmerRating = &rating
	default:
		return nil, ErrNotAssignmentParty
	}
	a.UpdatedBy = strPtr(actor.UserID)

	// 只写本方评分字段，双方同时评分互不覆盖
	if err := s.repo.LaborAssignment.SetRating(ctx, assignmentID, column, rating, actor.UserID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRatingNotAllowed
		}
		s.logger.Error("保存评分失败", zap.String("assignment_id", assignmentID), zap.Error(err))
		return nil, err
	}
	return a, nil
}
