package service

import (
	"context"
	"errors"
	"strings"
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

// ── 用工请求业务错误 ──

var (
	ErrRequestNotFound      = pkgerrors.NotFound(21001, "用工请求不存在")
	ErrTitleRequired        = pkgerrors.Validation(21002, "标题不能为空").WithField("title")
	ErrInvalidWorkersNeeded = pkgerrors.Validation(21003, "所需工人数必须大于 0").WithField("workers_needed")
	ErrInvalidDateRange     = pkgerrors.Validation(21004, "结束日期不能早于开始日期").WithField("end_date")
	ErrInvalidRequestType   = pkgerrors.Validation(21005, "请求类型无效").WithField("request_type")
	ErrInvalidTimeFormat    = pkgerrors.Validation(21006, "时间格式应为 HH:MM")
	ErrProviderIsRequester  = pkgerrors.Validation(21007, "不能向本户发起请求").WithField("providing_household_id")
	ErrProviderNotFound     = pkgerrors.NotFound(21008, "目标农户不存在").WithField("providing_household_id")
	ErrDatesImmutable       = pkgerrors.StateConflict(21009, "请求已非待处理状态，不能修改起止日期")
	ErrNotRequester         = pkgerrors.Authorization(21010, "仅请求方户主可执行此操作")
	ErrNotProvider          = pkgerrors.Authorization(21011, "仅被请求方户主可执行此操作")
	ErrInvalidTransition    = pkgerrors.StateConflict(21012, "当前状态不允许该操作")
	ErrInvalidAction        = pkgerrors.Validation(21013, "无效的操作").WithField("action")
	ErrNotPublic            = pkgerrors.StateConflict(21014, "该请求不是公开请求")
	ErrCannotJoinOwn        = pkgerrors.Validation(21015, "不能加入本户发起的请求")
	ErrMaxAcceptorsReached  = pkgerrors.StateConflict(21016, "加入农户数已达上限")
	ErrInvalidMaxAcceptors  = pkgerrors.Validation(21017, "加入上限必须大于 0").WithField("max_acceptors")
	ErrNotInGroup           = pkgerrors.StateConflict(21018, "该请求不属于任何分组")
	ErrRequestNotVisible    = pkgerrors.Authorization(21019, "无权查看该请求")
	ErrRequestClosed        = pkgerrors.StateConflict(21020, "请求已结束")
	ErrPublicWithProvider   = pkgerrors.Validation(21021, "公开请求不能指定被请求方").WithField("providing_household_id")
	ErrNoProviders          = pkgerrors.Validation(21022, "非公开的混合请求至少需要一个目标农户").WithField("provider_ids")
	ErrDuplicateProvider    = pkgerrors.Validation(21023, "目标农户重复").WithField("provider_ids")
	ErrAlreadyInGroup       = pkgerrors.StateConflict(21024, "该农户在组内已有子请求")
)

// 请求动作
const (
	ActionAccept   = "accept"
	ActionDecline  = "decline"
	ActionCancel   = "cancel"
	ActionComplete = "complete"
)

// errJoinRaced 并发加入撞上唯一约束，回滚后返回已有子请求
var errJoinRaced = errors.New("join raced")

// RequestService 用工请求业务接口
//
// 状态机：pending → {accepted, declined, cancelled}；accepted → {completed, cancelled}。
// 分组内子请求接受/拒绝后汇总父请求状态；取消父请求级联取消未结束的子请求。
type RequestService interface {
	CreateRequest(ctx context.Context, householdID string, params *dto.LaborRequestParams) (*model.LaborRequest, error)
	// CreateMixedRequest 父请求原子创建，子请求逐个提交，失败项收集在结果中
	CreateMixedRequest(ctx context.Context, householdID string, params *dto.LaborRequestParams, providerIDs []string, opts dto.MixedOptions) (*dto.MixedRequestResult, error)
	JoinPublicRequest(ctx context.Context, requestID, householdID string) (*dto.JoinResult, error)
	UpdateRequest(ctx context.Context, requestID, householdID string, params *dto.UpdateLaborRequest) (*model.LaborRequest, error)
	ProcessRequest(ctx context.Context, requestID, action string, actor Actor) (*dto.ProcessRequestResult, error)
	FindRequestsForHousehold(ctx context.Context, householdID string, query *dto.ListLaborRequestsQuery) ([]model.LaborRequest, int64, error)
	SuggestWorkers(ctx context.Context, requestID string, maxSuggestions int) ([]model.User, error)
	GetRequest(ctx context.Context, requestID, householdID string) (*model.LaborRequest, error)
	GetGroupStatus(ctx context.Context, requestID string) (*dto.RequestGroupView, error)
}

type requestService struct {
	repo      *repository.Repository
	ledger    ExchangeService
	publisher event.Publisher
	cfg       *config.ExchangeConfig
	logger    *zap.Logger
}

// NewRequestService 创建 RequestService 实例
func NewRequestService(
	repo *repository.Repository,
	ledger ExchangeService,
	publisher event.Publisher,
	cfg *config.ExchangeConfig,
	logger *zap.Logger,
) RequestService {
	return &requestService{
		repo:      repo,
		ledger:    ledger,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger,
	}
}

// ── 参数校验 ──

// buildRequest 校验任务字段并构造待创建的请求，多字段错误合并为 List
func buildRequest(householdID string, p *dto.LaborRequestParams) (*model.LaborRequest, error) {
	var errs pkgerrors.List

	title := strings.TrimSpace(p.Title)
	if title == "" {
		errs = append(errs, ErrTitleRequired)
	}

	workers := p.WorkersNeeded
	if workers == 0 {
		workers = 1
	}
	if workers < 0 {
		errs = append(errs, ErrInvalidWorkersNeeded)
	}

	reqType := p.RequestType
	if reqType == "" {
		reqType = model.RequestTypeExchange
	}
	switch reqType {
	case model.RequestTypeSingle, model.RequestTypeExchange, model.RequestTypeMixed, model.RequestTypePublic:
	default:
		errs = append(errs, ErrInvalidRequestType)
	}

	start, okStart := parseDate(p.StartDate)
	if !okStart {
		errs = append(errs, pkgerrors.Validation(21004, "开始日期格式应为 YYYY-MM-DD").WithField("start_date"))
	}
	end, okEnd := parseDate(p.EndDate)
	if !okEnd {
		errs = append(errs, pkgerrors.Validation(21004, "结束日期格式应为 YYYY-MM-DD").WithField("end_date"))
	}
	if okStart && okEnd && end.Before(start) {
		errs = append(errs, ErrInvalidDateRange)
	}

	errs = append(errs, validateTimeWindow(p.StartTime, p.EndTime)...)

	isPublic := p.IsPublic || reqType == model.RequestTypePublic
	if isPublic && p.ProvidingHouseholdID != nil && *p.ProvidingHouseholdID != "" {
		errs = append(errs, ErrPublicWithProvider)
	}
	if p.ProvidingHouseholdID != nil && *p.ProvidingHouseholdID == householdID {
		errs = append(errs, ErrProviderIsRequester)
	}
	if p.MaxAcceptors != nil && *p.MaxAcceptors <= 0 {
		errs = append(errs, ErrInvalidMaxAcceptors)
	}

	if err := errs.Err(); err != nil {
		return nil, err
	}

	req := &model.LaborRequest{
		RequestingHouseholdID: householdID,
		FarmActivityID:        p.FarmActivityID,
		Title:                 title,
		Description:           p.Description,
		WorkersNeeded:         workers,
		RequestType:           reqType,
		StartDate:             datatypes.Date(start),
		EndDate:               datatypes.Date(end),
		StartTime:             p.StartTime,
		EndTime:               p.EndTime,
		Status:                model.RequestStatusPending,
		IsPublic:              isPublic,
	}
	if p.ProvidingHouseholdID != nil && *p.ProvidingHouseholdID != "" {
		req.ProvidingHouseholdID = strPtr(*p.ProvidingHouseholdID)
	}
	if isPublic {
		req.MaxAcceptors = p.MaxAcceptors
	}
	return req, nil
}

// validateTimeWindow 起止时间可为空；均给出时结束须晚于开始
func validateTimeWindow(startTime, endTime string) pkgerrors.List {
	var errs pkgerrors.List
	if startTime != "" && !validHHMM(startTime) {
		errs = append(errs, ErrInvalidTimeFormat.WithField("start_time"))
	}
	if endTime != "" && !validHHMM(endTime) {
		errs = append(errs, ErrInvalidTimeFormat.WithField("end_time"))
	}
	if len(errs) == 0 && startTime != "" && endTime != "" && endTime <= startTime {
		errs = append(errs, pkgerrors.Validation(21006, "结束时间必须晚于开始时间").WithField("end_time"))
	}
	return errs
}

func (s *requestService) getRequest(ctx context.Context, repo *repository.Repository, id string) (*model.LaborRequest, error) {
	req, err := repo.LaborRequest.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}
	return req, nil
}

func (s *requestService) lockRequest(ctx context.Context, tx *repository.Repository, id string) (*model.LaborRequest, error) {
	req, err := tx.LaborRequest.GetByIDForUpdate(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}
	return req, nil
}

func (s *requestService) ensureHousehold(ctx context.Context, householdID string) error {
	if _, err := s.repo.Household.GetByID(ctx, householdID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrProviderNotFound
		}
		return err
	}
	return nil
}

// ═══════════════════════════════════════════════════════════
// 创建
// ═══════════════════════════════════════════════════════════

func (s *requestService) CreateRequest(ctx context.Context, householdID string, params *dto.LaborRequestParams) (*model.LaborRequest, error) {
	req, err := buildRequest(householdID, params)
	if err != nil {
		return nil, err
	}
	if req.ProvidingHouseholdID != nil {
		if err := s.ensureHousehold(ctx, *req.ProvidingHouseholdID); err != nil {
			return nil, err
		}
	}
	// 公开请求即潜在分组的父请求
	if req.IsPublic {
		newRequestGroup(req)
	}

	if err := s.repo.LaborRequest.Create(ctx, req); err != nil {
		s.logger.Error("创建用工请求失败", zap.String("household_id", householdID), zap.Error(err))
		return nil, err
	}

	s.publisher.Publish(ctx, event.New(event.RequestCreated, req.LaborRequestID, map[string]any{
		"requesting_household_id": householdID,
		"providing_household_id":  req.ProvidingHouseholdID,
		"is_public":               req.IsPublic,
	}))
	return req, nil
}

// ═══════════════════════════════════════════════════════════
// CreateMixedRequest 两阶段：父请求原子创建 + 子请求逐个提交
// ═══════════════════════════════════════════════════════════

func (s *requestService) CreateMixedRequest(
	ctx context.Context,
	householdID string,
	params *dto.LaborRequestParams,
	providerIDs []string,
	opts dto.MixedOptions,
) (*dto.MixedRequestResult, error) {
	p := *params
	p.ProvidingHouseholdID = nil
	p.RequestType = model.RequestTypeMixed
	p.IsPublic = opts.IsPublic
	p.MaxAcceptors = opts.MaxAcceptors

	parent, err := buildRequest(householdID, &p)
	if err != nil {
		return nil, err
	}
	if len(providerIDs) == 0 && !opts.IsPublic {
		return nil, ErrNoProviders
	}

	// 阶段 1：父请求
	group := newRequestGroup(parent)
	err = s.repo.Tx.Transaction(ctx, func(tx *repository.Repository) error {
		return tx.LaborRequest.Create(ctx, parent)
	})
	if err != nil {
		s.logger.Error("创建混合请求父请求失败", zap.String("household_id", householdID), zap.Error(err))
		return nil, err
	}

	// 阶段 2：子请求各自提交，失败不回滚已创建的
	result := &dto.MixedRequestResult{Parent: parent, Children: []model.LaborRequest{}}
	seen := make(map[string]bool, len(providerIDs))
	for _, providerID := range providerIDs {
		child, err := s.createChild(ctx, group, householdID, providerID, seen)
		if err != nil {
			if pkgerrors.KindOf(err) == "" {
				s.logger.Error("创建子请求失败",
					zap.String("parent_id", parent.LaborRequestID),
					zap.String("provider_id", providerID),
					zap.Error(err),
				)
			}
			result.Errors = append(result.Errors, itemError(providerID, err))
			continue
		}
		group.Replace(child)
		result.Children = append(result.Children, *child)
	}
	result.Success = len(result.Errors) == 0

	s.publisher.Publish(ctx, event.New(event.RequestCreated, parent.LaborRequestID, map[string]any{
		"requesting_household_id": householdID,
		"request_group_id":        *parent.RequestGroupID,
		"children":                len(result.Children),
		"is_public":               parent.IsPublic,
	}))
	for _, c := range result.Children {
		s.publisher.Publish(ctx, event.New(event.RequestCreated, c.LaborRequestID, map[string]any{
			"requesting_household_id": householdID,
			"providing_household_id":  *c.ProvidingHouseholdID,
			"parent_request_id":       parent.LaborRequestID,
		}))
	}
	return result, nil
}

func (s *requestService) createChild(ctx context.Context, group *RequestGroup, householdID, providerID string, seen map[string]bool) (*model.LaborRequest, error) {
	providerID = strings.TrimSpace(providerID)
	switch {
	case providerID == "":
		return nil, ErrProviderNotFound
	case providerID == householdID:
		return nil, ErrProviderIsRequester
	case seen[providerID]:
		return nil, ErrDuplicateProvider
	}
	seen[providerID] = true

	if err := s.ensureHousehold(ctx, providerID); err != nil {
		return nil, err
	}

	child := group.NewChild(providerID)
	if err := s.repo.LaborRequest.Create(ctx, child); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrAlreadyInGroup
		}
		return nil, err
	}
	return child, nil
}

// ═══════════════════════════════════════════════════════════
// JoinPublicRequest 加入公开请求（幂等）
// ═══════════════════════════════════════════════════════════

func (s *requestService) JoinPublicRequest(ctx context.Context, requestID, householdID string) (*dto.JoinResult, error) {
	target, err := s.getRequest(ctx, s.repo, requestID)
	if err != nil {
		return nil, err
	}
	parentID := target.LaborRequestID
	if target.ParentRequestID != nil {
		parentID = *target.ParentRequestID
	}

	result := &dto.JoinResult{}
	err = s.repo.Tx.Transaction(ctx, func(tx *repository.Repository) error {
		// 锁父请求，同组的加入与汇总在此串行
		parent, err := s.lockRequest(ctx, tx, parentID)
		if err != nil {
			return err
		}
		if !parent.IsPublic {
			return ErrNotPublic
		}
		if parent.RequestingHouseholdID == householdID {
			return ErrCannotJoinOwn
		}

		if parent.RequestGroupID == nil {
			newRequestGroup(parent)
			if err := tx.LaborRequest.Update(ctx, parent); err != nil {
				return err
			}
		}
		members, err := tx.LaborRequest.ListByGroup(ctx, *parent.RequestGroupID)
		if err != nil {
			return err
		}
		group := loadRequestGroup(parent, members)

		if existing := group.ChildFor(householdID); existing != nil {
			result.AlreadyJoined = true
			result.Request = existing
			return nil
		}
		if parent.IsTerminal() {
			return ErrRequestClosed
		}
		if parent.MaxAcceptors != nil && group.ActiveChildren() >= *parent.MaxAcceptors {
			return ErrMaxAcceptorsReached
		}

		child := group.NewChild(householdID)
		if err := tx.LaborRequest.Create(ctx, child); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return errJoinRaced
			}
			return err
		}
		result.Success = true
		result.Request = child
		return nil
	})

	if errors.Is(err, errJoinRaced) {
		existing, ferr := s.findChild(ctx, parentID, householdID)
		if ferr != nil {
			return nil, ferr
		}
		return &dto.JoinResult{AlreadyJoined: true, Request: existing}, nil
	}
	if err != nil {
		if pkgerrors.KindOf(err) == "" {
			s.logger.Error("加入公开请求失败", zap.String("request_id", requestID), zap.Error(err))
		}
		return nil, err
	}

	if result.Success {
		s.publisher.Publish(ctx, event.New(event.RequestJoined, result.Request.LaborRequestID, map[string]any{
			"parent_request_id":      parentID,
			"providing_household_id": householdID,
		}))
	}
	return result, nil
}

func (s *requestService) findChild(ctx context.Context, parentID, householdID string) (*model.LaborRequest, error) {
	parent, err := s.getRequest(ctx, s.repo, parentID)
	if err != nil {
		return nil, err
	}
	if parent.RequestGroupID == nil {
		return nil, ErrNotInGroup
	}
	child, err := s.repo.LaborRequest.FindChildInGroup(ctx, *parent.RequestGroupID, householdID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}
	return child, nil
}

// ═══════════════════════════════════════════════════════════
// UpdateRequest
// ═══════════════════════════════════════════════════════════

func (s *requestService) UpdateRequest(ctx context.Context, requestID, householdID string, params *dto.UpdateLaborRequest) (*model.LaborRequest, error) {
	req, err := s.getRequest(ctx, s.repo, requestID)
	if err != nil {
		return nil, err
	}
	if req.RequestingHouseholdID != householdID {
		return nil, ErrNotRequester
	}
	if req.IsTerminal() {
		return nil, ErrRequestClosed
	}

	var errs pkgerrors.List

	start, end := time.Time(req.StartDate), time.Time(req.EndDate)
	datesChanged := false
	if params.StartDate != nil {
		t, ok := parseDate(*params.StartDate)
		if !ok {
			errs = append(errs, pkgerrors.Validation(21004, "开始日期格式应为 YYYY-MM-DD").WithField("start_date"))
		} else if dayKey(t) != dayKey(start) {
			start, datesChanged = t, true
		}
	}
	if params.EndDate != nil {
		t, ok := parseDate(*params.EndDate)
		if !ok {
			errs = append(errs, pkgerrors.Validation(21004, "结束日期格式应为 YYYY-MM-DD").WithField("end_date"))
		} else if dayKey(t) != dayKey(end) {
			end, datesChanged = t, true
		}
	}
	if datesChanged && req.Status != model.RequestStatusPending {
		return nil, ErrDatesImmutable
	}
	if end.Before(start) {
		errs = append(errs, ErrInvalidDateRange)
	}

	if params.Title != nil {
		if t := strings.TrimSpace(*params.Title); t == "" {
			errs = append(errs, ErrTitleRequired)
		} else {
			req.Title = t
		}
	}
	if params.WorkersNeeded != nil {
		if *params.WorkersNeeded <= 0 {
			errs = append(errs, ErrInvalidWorkersNeeded)
		} else {
			req.WorkersNeeded = *params.WorkersNeeded
		}
	}
	if params.Description != nil {
		req.Description = *params.Description
	}
	if params.FarmActivityID != nil {
		req.FarmActivityID = params.FarmActivityID
	}
	if params.StartTime != nil {
		req.StartTime = *params.StartTime
	}
	if params.EndTime != nil {
		req.EndTime = *params.EndTime
	}
	errs = append(errs, validateTimeWindow(req.StartTime, req.EndTime)...)

	if err := errs.Err(); err != nil {
		return nil, err
	}

	req.StartDate = datatypes.Date(start)
	req.EndDate = datatypes.Date(end)
	if err := s.repo.LaborRequest.Update(ctx, req); err != nil {
		if !errors.Is(err, pkgerrors.ErrOptimisticLock) {
			s.logger.Error("更新用工请求失败", zap.String("request_id", requestID), zap.Error(err))
		}
		return nil, err
	}
	return req, nil
}

// ═══════════════════════════════════════════════════════════
// ProcessRequest 状态流转
// ═══════════════════════════════════════════════════════════

func (s *requestService) ProcessRequest(ctx context.Context, requestID, action string, actor Actor) (*dto.ProcessRequestResult, error) {
	switch action {
	case ActionAccept, ActionDecline, ActionCancel, ActionComplete:
	default:
		return nil, ErrInvalidAction
	}

	target, err := s.getRequest(ctx, s.repo, requestID)
	if err != nil {
		return nil, err
	}

	result := &dto.ProcessRequestResult{}
	err = s.repo.Tx.Transaction(ctx, func(tx *repository.Repository) error {
		// 加锁顺序固定为先父后子
		var parent *model.LaborRequest
		if target.ParentRequestID != nil {
			p, err := s.lockRequest(ctx, tx, *target.ParentRequestID)
			if err != nil {
				return err
			}
			parent = p
		}
		req, err := s.lockRequest(ctx, tx, requestID)
		if err != nil {
			return err
		}

		if err := authorizeAction(req, action, actor); err != nil {
			return err
		}

		next, err := nextStatus(req.Status, action)
		if err != nil {
			return err
		}
		result.Request = req
		if next == req.Status {
			return nil // 重复接受视为成功
		}

		req.Status = next
		req.UpdatedBy = strPtr(actor.UserID)
		if err := tx.LaborRequest.Update(ctx, req); err != nil {
			return err
		}

		// 取消父请求：级联取消未结束的子请求
		if action == ActionCancel && req.IsParent() && req.InGroup() {
			if err := s.cascadeCancel(ctx, tx, req, actor.UserID); err != nil {
				return err
			}
		}

		// 子请求接受/拒绝：汇总父请求状态
		if parent != nil && (action == ActionAccept || action == ActionDecline) {
			if err := s.aggregateParent(ctx, tx, parent, req, actor.UserID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if pkgerrors.KindOf(err) == "" && !errors.Is(err, pkgerrors.ErrOptimisticLock) {
			s.logger.Error("处理用工请求失败",
				zap.String("request_id", requestID),
				zap.String("action", action),
				zap.Error(err),
			)
		}
		return nil, err
	}
	result.Success = true

	// 完成换工类请求：逐条记账，失败只收集
	if action == ActionComplete && model.FeedsLedger(result.Request.RequestType) {
		s.recordCompletedAssignments(ctx, result)
	}

	if result.Request.InGroup() {
		if view, err := s.GetGroupStatus(ctx, requestID); err == nil {
			result.GroupStatus = &view.Status
		} else {
			s.logger.Warn("查询分组状态失败", zap.String("request_id", requestID), zap.Error(err))
		}
	}

	s.publisher.Publish(ctx, event.New(event.RequestResponded, requestID, map[string]any{
		"action":                  action,
		"status":                  result.Request.Status,
		"requesting_household_id": result.Request.RequestingHouseholdID,
		"acting_user_id":          actor.UserID,
	}))
	return result, nil
}

func (s *requestService) recordCompletedAssignments(ctx context.Context, result *dto.ProcessRequestResult) {
	assignments, err := s.repo.LaborAssignment.ListCompletedByRequest(ctx, result.Request.LaborRequestID)
	if err != nil {
		s.logger.Error("查询已完成安排失败", zap.String("request_id", result.Request.LaborRequestID), zap.Error(err))
		result.ExchangeErrors = append(result.ExchangeErrors, itemError(result.Request.LaborRequestID, err))
		return
	}
	for _, a := range assignments {
		entry, err := s.ledger.ProcessCompletedAssignment(ctx, a.LaborAssignmentID)
		if err != nil {
			result.ExchangeErrors = append(result.ExchangeErrors, itemError(a.LaborAssignmentID, err))
			continue
		}
		result.LedgerEntries = append(result.LedgerEntries, *entry)
	}
}

// authorizeAction 接受/拒绝由被请求方户主执行，取消/完成由请求方户主执行
func authorizeAction(req *model.LaborRequest, action string, actor Actor) error {
	switch action {
	case ActionAccept, ActionDecline:
		if req.ProvidingHouseholdID == nil || !actor.OwnsHousehold(*req.ProvidingHouseholdID) {
			return ErrNotProvider
		}
	case ActionCancel, ActionComplete:
		if !actor.OwnsHousehold(req.RequestingHouseholdID) {
			return ErrNotRequester
		}
	}
	return nil
}

// nextStatus 状态机
func nextStatus(current, action string) (string, error) {
	switch action {
	case ActionAccept:
		if current == model.RequestStatusPending || current == model.RequestStatusAccepted {
			return model.RequestStatusAccepted, nil
		}
	case ActionDecline:
		if current == model.RequestStatusPending {
			return model.RequestStatusDeclined, nil
		}
	case ActionCancel:
		if current == model.RequestStatusPending || current == model.RequestStatusAccepted {
			return model.RequestStatusCancelled, nil
		}
	case ActionComplete:
		if current == model.RequestStatusAccepted {
			return model.RequestStatusCompleted, nil
		}
	}
	return "", ErrInvalidTransition
}

func (s *requestService) cascadeCancel(ctx context.Context, tx *repository.Repository, parent *model.LaborRequest, userID string) error {
	members, err := tx.LaborRequest.ListByGroup(ctx, *parent.RequestGroupID)
	if err != nil {
		return err
	}
	group := loadRequestGroup(parent, members)
	for i := range group.Children {
		child := &group.Children[i]
		if child.IsTerminal() {
			continue
		}
		child.Status = model.RequestStatusCancelled
		child.UpdatedBy = strPtr(userID)
		if err := tx.LaborRequest.Update(ctx, child); err != nil {
			return err
		}
	}
	return nil
}

// aggregateParent 任一子请求接受 → 父请求 accepted；全部拒绝 → declined
// 父请求已结束时不再变更
func (s *requestService) aggregateParent(ctx context.Context, tx *repository.Repository, parent, child *model.LaborRequest, userID string) error {
	if parent.IsTerminal() || parent.RequestGroupID == nil {
		return nil
	}
	members, err := tx.LaborRequest.ListByGroup(ctx, *parent.RequestGroupID)
	if err != nil {
		return err
	}
	group := loadRequestGroup(parent, members)
	group.Replace(child)

	status, ok := group.Aggregate()
	if !ok || status == parent.Status {
		return nil
	}
	parent.Status = status
	parent.UpdatedBy = strPtr(userID)
	return tx.LaborRequest.Update(ctx, parent)
}

// ═══════════════════════════════════════════════════════════
// 查询
// ═══════════════════════════════════════════════════════════

func (s *requestService) FindRequestsForHousehold(ctx context.Context, householdID string, query *dto.ListLaborRequestsQuery) ([]model.LaborRequest, int64, error) {
	filter := repository.RequestFilter{
		Status:          query.Status,
		IncludeChildren: query.IncludeChildren,
		Offset:          query.GetOffset(),
		Limit:           query.GetPageSize(),
	}
	if query.ExcludeJoined {
		groupIDs, err := s.repo.LaborRequest.ListJoinedGroupIDs(ctx, householdID)
		if err != nil {
			s.logger.Error("查询已加入分组失败", zap.String("household_id", householdID), zap.Error(err))
			return nil, 0, err
		}
		filter.ExcludeGroupIDs = groupIDs
	}

	list, total, err := s.repo.LaborRequest.ListForHousehold(ctx, householdID, filter)
	if err != nil {
		s.logger.Error("查询用工请求失败", zap.String("household_id", householdID), zap.Error(err))
		return nil, 0, err
	}
	return list, total, nil
}

// SuggestWorkers 可用且不属于请求方农户的工人
func (s *requestService) SuggestWorkers(ctx context.Context, requestID string, maxSuggestions int) ([]model.User, error) {
	req, err := s.getRequest(ctx, s.repo, requestID)
	if err != nil {
		return nil, err
	}
	if maxSuggestions <= 0 {
		maxSuggestions = s.cfg.MaxSuggestions
	}

	members, err := s.repo.HouseholdWorker.ListByHousehold(ctx, req.RequestingHouseholdID, false)
	if err != nil {
		return nil, err
	}
	exclude := make([]string, 0, len(members)+1)
	for _, m := range members {
		exclude = append(exclude, m.WorkerID)
	}
	if req.RequestingHousehold != nil {
		exclude = append(exclude, req.RequestingHousehold.OwnerID)
	}

	return s.repo.User.ListAvailableWorkers(ctx, exclude, maxSuggestions)
}

// GetRequest 请求方、被请求方或公开请求可见
func (s *requestService) GetRequest(ctx context.Context, requestID, householdID string) (*model.LaborRequest, error) {
	req, err := s.getRequest(ctx, s.repo, requestID)
	if err != nil {
		return nil, err
	}
	visible := req.IsPublic ||
		req.RequestingHouseholdID == householdID ||
		(req.ProvidingHouseholdID != nil && *req.ProvidingHouseholdID == householdID)
	if !visible {
		return nil, ErrRequestNotVisible
	}
	return req, nil
}

func (s *requestService) GetGroupStatus(ctx context.Context, requestID string) (*dto.RequestGroupView, error) {
	req, err := s.getRequest(ctx, s.repo, requestID)
	if err != nil {
		return nil, err
	}
	if !req.InGroup() {
		return nil, ErrNotInGroup
	}

	parent := req
	if req.ParentRequestID != nil {
		if parent, err = s.getRequest(ctx, s.repo, *req.ParentRequestID); err != nil {
			return nil, err
		}
	}
	members, err := s.repo.LaborRequest.ListByGroup(ctx, *req.RequestGroupID)
	if err != nil {
		return nil, err
	}

	group := loadRequestGroup(parent, members)
	return &dto.RequestGroupView{
		Parent:   group.Parent,
		Children: group.Children,
		Status:   group.Status(),
	}, nil
}
