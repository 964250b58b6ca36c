package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/lqCintern/farm-management-sub004/internal/dto"
	"github.com/lqCintern/farm-management-sub004/internal/model"
	"github.com/lqCintern/farm-management-sub004/internal/repository"
	pkgerrors "github.com/lqCintern/farm-management-sub004/pkg/errors"
)

// ── 农户模块业务错误 ──

var (
	ErrHouseholdNotFound   = pkgerrors.NotFound(20001, "农户不存在")
	ErrHouseholdExists     = pkgerrors.StateConflict(20002, "该用户已拥有农户")
	ErrNotHouseholdOwner   = pkgerrors.Authorization(20003, "仅户主可执行此操作")
	ErrWorkerNotFound      = pkgerrors.NotFound(20004, "工人不存在")
	ErrNotAWorker          = pkgerrors.Validation(20005, "该用户未登记为工人").WithField("worker_id")
	ErrMembershipNotFound  = pkgerrors.NotFound(20006, "成员关系不存在")
	ErrInvalidAvailability = pkgerrors.Validation(20007, "可用性取值无效").WithField("availability")
	ErrNoActiveMembership  = pkgerrors.NotFound(20008, "工人未加入任何农户")
	ErrHouseholdName       = pkgerrors.Validation(20009, "农户名称不能为空").WithField("name")
	ErrUserNotFound        = pkgerrors.NotFound(20010, "用户不存在")
)

// HouseholdService 农户目录业务接口
type HouseholdService interface {
	CreateHousehold(ctx context.Context, ownerID string, req *dto.CreateHouseholdRequest) (*model.Household, error)
	GetHousehold(ctx context.Context, id string) (*model.Household, error)
	FindHouseholdByOwner(ctx context.Context, userID string) (*model.Household, error)
	// FindActiveMembership 工人最早加入的激活成员关系
	FindActiveMembership(ctx context.Context, workerID string) (*model.HouseholdWorker, error)
	AddWorker(ctx context.Context, householdID, workerID, relationship string, actor Actor) (*model.HouseholdWorker, error)
	RemoveWorker(ctx context.Context, householdID, workerID string, actor Actor) error
	ListWorkers(ctx context.Context, householdID string, includeInactive bool) ([]model.HouseholdWorker, error)
	SetAvailability(ctx context.Context, workerID, state string) error
}

type householdService struct {
	repo   *repository.Repository
	loc    *time.Location
	logger *zap.Logger
	now    func() time.Time
}

// NewHouseholdService 创建 HouseholdService 实例
func NewHouseholdService(repo *repository.Repository, loc *time.Location, logger *zap.Logger) HouseholdService {
	return &householdService{repo: repo, loc: loc, logger: logger, now: time.Now}
}

func (s *householdService) CreateHousehold(ctx context.Context, ownerID string, req *dto.CreateHouseholdRequest) (*model.Household, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, ErrHouseholdName
	}

	owner, err := s.repo.User.GetByID(ctx, ownerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if _, err := s.repo.Household.GetByOwner(ctx, ownerID); err == nil {
		return nil, ErrHouseholdExists
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	household := &model.Household{
		OwnerID:     ownerID,
		Name:        name,
		Province:    req.Province,
		District:    req.District,
		Ward:        req.Ward,
		Address:     req.Address,
		Description: req.Description,
	}

	err = s.repo.Tx.Transaction(ctx, func(tx *repository.Repository) error {
		if err := tx.Household.Create(ctx, household); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrHouseholdExists
			}
			return err
		}
		// 户主本人也是工人时自动成为成员
		if owner.IsWorker {
			return tx.HouseholdWorker.Create(ctx, &model.HouseholdWorker{
				HouseholdID:  household.HouseholdID,
				WorkerID:     ownerID,
				Relationship: model.RelationshipOwner,
				IsActive:     true,
				JoinedDate:   datatypes.Date(todayIn(s.now(), s.loc)),
			})
		}
		return nil
	})
	if err != nil {
		if pkgerrors.KindOf(err) == "" {
			s.logger.Error("创建农户失败", zap.String("owner_id", ownerID), zap.Error(err))
		}
		return nil, err
	}

	s.logger.Info("农户已创建", zap.String("household_id", household.HouseholdID), zap.String("owner_id", ownerID))
	return household, nil
}

func (s *householdService) GetHousehold(ctx context.Context, id string) (*model.Household, error) {
	household, err := s.repo.Household.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrHouseholdNotFound
		}
		return nil, err
	}
	return household, nil
}

func (s *householdService) FindHouseholdByOwner(ctx context.Context, userID string) (*model.Household, error) {
	household, err := s.repo.Household.GetByOwner(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrHouseholdNotFound
		}
		return nil, err
	}
	return household, nil
}

func (s *householdService) FindActiveMembership(ctx context.Context, workerID string) (*model.HouseholdWorker, error) {
	m, err := s.repo.HouseholdWorker.FindActiveByWorker(ctx, workerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoActiveMembership
		}
		return nil, err
	}
	return m, nil
}

// AddWorker 已有（含停用）成员关系时重新激活，不重复创建
func (s *householdService) AddWorker(ctx context.Context, householdID, workerID, relationship string, actor Actor) (*model.HouseholdWorker, error) {
	household, err := s.GetHousehold(ctx, householdID)
	if err != nil {
		return nil, err
	}
	if household.OwnerID != actor.UserID {
		return nil, ErrNotHouseholdOwner
	}

	worker, err := s.repo.User.GetByID(ctx, workerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWorkerNotFound
		}
		return nil, err
	}
	if !worker.IsWorker {
		return nil, ErrNotAWorker
	}

	relationship = strings.TrimSpace(relationship)
	if relationship == "" {
		relationship = "member"
	}

	existing, err := s.repo.HouseholdWorker.Get(ctx, householdID, workerID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if existing != nil {
		existing.IsActive = true
		existing.Relationship = relationship
		if err := s.repo.HouseholdWorker.Update(ctx, existing); err != nil {
			s.logger.Error("重新激活成员失败", zap.String("household_id", householdID), zap.Error(err))
			return nil, err
		}
		existing.Worker = worker
		return existing, nil
	}

	m := &model.HouseholdWorker{
		HouseholdID:  householdID,
		WorkerID:     workerID,
		Relationship: relationship,
		IsActive:     true,
		JoinedDate:   datatypes.Date(todayIn(s.now(), s.loc)),
	}
	if err := s.repo.HouseholdWorker.Create(ctx, m); err != nil {
		s.logger.Error("添加成员失败", zap.String("household_id", householdID), zap.Error(err))
		return nil, err
	}
	m.Worker = worker
	return m, nil
}

// RemoveWorker 停用成员关系，保留记录
func (s *householdService) RemoveWorker(ctx context.Context, householdID, workerID string, actor Actor) error {
	household, err := s.GetHousehold(ctx, householdID)
	if err != nil {
		return err
	}
	if household.OwnerID != actor.UserID {
		return ErrNotHouseholdOwner
	}

	m, err := s.repo.HouseholdWorker.Get(ctx, householdID, workerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrMembershipNotFound
		}
		return err
	}
	if !m.IsActive {
		return nil
	}
	m.IsActive = false
	return s.repo.HouseholdWorker.Update(ctx, m)
}

func (s *householdService) ListWorkers(ctx context.Context, householdID string, includeInactive bool) ([]model.HouseholdWorker, error) {
	if _, err := s.GetHousehold(ctx, householdID); err != nil {
		return nil, err
	}
	return s.repo.HouseholdWorker.ListByHousehold(ctx, householdID, includeInactive)
}

func (s *householdService) SetAvailability(ctx context.Context, workerID, state string) error {
	if !model.IsValidAvailability(state) {
		return ErrInvalidAvailability
	}
	if err := s.repo.User.SetAvailability(ctx, workerID, state); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrWorkerNotFound
		}
		s.logger.Error("更新可用性失败", zap.String("worker_id", workerID), zap.Error(err))
		return err
	}
	return nil
}
