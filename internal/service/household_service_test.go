package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lqCintern/farm-management-sub004/internal/dto"
	"github.com/lqCintern/farm-management-sub004/internal/model"
)

func TestHouseholdService_Create_OwnerIsWorker(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.addUser("u-1", "阿福", true)

	h, err := env.household.CreateHousehold(ctx, "u-1", &dto.CreateHouseholdRequest{Name: "  阿福家  ", Province: "安江"})
	if err != nil {
		t.Fatalf("CreateHousehold 应成功: %v", err)
	}
	if h.Name != "阿福家" || h.OwnerID != "u-1" || h.Province != "安江" {
		t.Errorf("农户字段不符: %+v", h)
	}

	m, err := env.household.FindActiveMembership(ctx, "u-1")
	if err != nil {
		t.Fatalf("户主是工人时应自动成为成员: %v", err)
	}
	if m.HouseholdID != h.HouseholdID || m.Relationship != model.RelationshipOwner {
		t.Errorf("成员关系不符: %+v", m)
	}
	if dayKey(time.Time(m.JoinedDate)) != "2026-06-10" {
		t.Errorf("加入日期应为业务时区今天，实际=%s", dayKey(time.Time(m.JoinedDate)))
	}
}

func TestHouseholdService_Create_OwnerNotWorker(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.addUser("u-1", "阿福", false)

	h, err := env.household.CreateHousehold(ctx, "u-1", &dto.CreateHouseholdRequest{Name: "阿福家"})
	if err != nil {
		t.Fatalf("CreateHousehold 应成功: %v", err)
	}
	workers, _ := env.household.ListWorkers(ctx, h.HouseholdID, true)
	if len(workers) != 0 {
		t.Errorf("非工人户主不应自动成为成员，实际 %d 个成员", len(workers))
	}
}

func TestHouseholdService_Create_Errors(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.addUser("u-1", "阿福", false)

	if _, err := env.household.CreateHousehold(ctx, "u-1", &dto.CreateHouseholdRequest{Name: "  "}); !errors.Is(err, ErrHouseholdName) {
		t.Errorf("期望 ErrHouseholdName，实际: %v", err)
	}
	if _, err := env.household.CreateHousehold(ctx, "u-missing", &dto.CreateHouseholdRequest{Name: "无名"}); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("期望 ErrUserNotFound，实际: %v", err)
	}
	if _, err := env.household.CreateHousehold(ctx, "u-1", &dto.CreateHouseholdRequest{Name: "阿福家"}); err != nil {
		t.Fatal(err)
	}
	if _, err := env.household.CreateHousehold(ctx, "u-1", &dto.CreateHouseholdRequest{Name: "阿福二号"}); !errors.Is(err, ErrHouseholdExists) {
		t.Errorf("一个用户只能拥有一个农户，实际: %v", err)
	}
}

func TestHouseholdService_Lookup(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.addUser("u-1", "阿福", false)
	env.addHousehold("hh-1", "u-1")

	h, err := env.household.GetHousehold(ctx, "hh-1")
	if err != nil || h.Owner == nil || h.Owner.UserID != "u-1" {
		t.Errorf("GetHousehold 应带出户主: %+v %v", h, err)
	}
	if _, err := env.household.GetHousehold(ctx, "hh-x"); !errors.Is(err, ErrHouseholdNotFound) {
		t.Errorf("期望 ErrHouseholdNotFound，实际: %v", err)
	}

	owned, err := env.household.FindHouseholdByOwner(ctx, "u-1")
	if err != nil || owned.HouseholdID != "hh-1" {
		t.Errorf("FindHouseholdByOwner 不符: %+v %v", owned, err)
	}
	if _, err := env.household.FindHouseholdByOwner(ctx, "u-none"); !errors.Is(err, ErrHouseholdNotFound) {
		t.Errorf("期望 ErrHouseholdNotFound，实际: %v", err)
	}
}

func TestHouseholdService_AddWorker(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.addUser("u-1", "阿福", false)
	env.addUser("u-2", "阿贵", false)
	env.addUser("w-1", "阿水", true)
	owner := env.addHousehold("hh-1", "u-1")
	env.addHousehold("hh-2", "u-2")

	m, err := env.household.AddWorker(ctx, "hh-1", "w-1", "", owner)
	if err != nil {
		t.Fatalf("AddWorker 应成功: %v", err)
	}
	if m.Relationship != "member" || !m.IsActive || m.Worker == nil || m.Worker.Name != "阿水" {
		t.Errorf("成员字段不符: %+v", m)
	}

	tests := []struct {
		name        string
		householdID string
		workerID    string
		actor       Actor
		want        error
	}{
		{"非户主", "hh-1", "w-1", Actor{UserID: "u-2", HouseholdID: "hh-2"}, ErrNotHouseholdOwner},
		{"农户不存在", "hh-x", "w-1", owner, ErrHouseholdNotFound},
		{"工人不存在", "hh-1", "w-x", owner, ErrWorkerNotFound},
		{"不是工人", "hh-1", "u-2", owner, ErrNotAWorker},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := env.household.AddWorker(ctx, tt.householdID, tt.workerID, "", tt.actor); !errors.Is(err, tt.want) {
				t.Errorf("期望 %v，实际: %v", tt.want, err)
			}
		})
	}
}

func TestHouseholdService_RemoveAndReactivate(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.addUser("u-1", "阿福", false)
	env.addUser("w-1", "阿水", true)
	owner := env.addHousehold("hh-1", "u-1")

	first, err := env.household.AddWorker(ctx, "hh-1", "w-1", "雇工", owner)
	if err != nil {
		t.Fatal(err)
	}
	if err := env.household.RemoveWorker(ctx, "hh-1", "w-1", owner); err != nil {
		t.Fatalf("RemoveWorker 应成功: %v", err)
	}
	// 重复移除无副作用
	if err := env.household.RemoveWorker(ctx, "hh-1", "w-1", owner); err != nil {
		t.Errorf("重复移除应成功: %v", err)
	}

	active, _ := env.household.ListWorkers(ctx, "hh-1", false)
	all, _ := env.household.ListWorkers(ctx, "hh-1", true)
	// 户主 u-1 由 addHousehold 写入成员关系
	if len(active) != 1 || len(all) != 2 {
		t.Errorf("停用后激活成员 1 个、全部 2 个，实际 %d/%d", len(active), len(all))
	}

	again, err := env.household.AddWorker(ctx, "hh-1", "w-1", "亲戚", owner)
	if err != nil {
		t.Fatalf("重新添加应成功: %v", err)
	}
	if again.HouseholdWorkerID != first.HouseholdWorkerID {
		t.Error("重新添加应复用原成员关系而不是新建")
	}
	if !again.IsActive || again.Relationship != "亲戚" {
		t.Errorf("重新激活后字段不符: %+v", again)
	}

	if err := env.household.RemoveWorker(ctx, "hh-1", "w-missing", owner); !errors.Is(err, ErrMembershipNotFound) {
		t.Errorf("期望 ErrMembershipNotFound，实际: %v", err)
	}
}

func TestHouseholdService_FindActiveMembership_Earliest(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.addUser("u-1", "阿福", false)
	env.addUser("u-2", "阿贵", false)
	env.addUser("w-1", "阿水", true)
	env.addHousehold("hh-1", "u-1")
	second := env.addHousehold("hh-2", "u-2")
	env.addMember("hh-1", "w-1") // 2026-01-01 加入

	if _, err := env.household.AddWorker(ctx, "hh-2", "w-1", "", second); err != nil {
		t.Fatal(err)
	}
	m, err := env.household.FindActiveMembership(ctx, "w-1")
	if err != nil || m.HouseholdID != "hh-1" {
		t.Errorf("应返回最早加入的农户 hh-1，实际 %+v %v", m, err)
	}

	if err := env.household.RemoveWorker(ctx, "hh-1", "w-1", Actor{UserID: "u-1", HouseholdID: "hh-1"}); err != nil {
		t.Fatal(err)
	}
	m, err = env.household.FindActiveMembership(ctx, "w-1")
	if err != nil || m.HouseholdID != "hh-2" {
		t.Errorf("停用后应返回 hh-2，实际 %+v %v", m, err)
	}

	if _, err := env.household.FindActiveMembership(ctx, "w-none"); !errors.Is(err, ErrNoActiveMembership) {
		t.Errorf("期望 ErrNoActiveMembership，实际: %v", err)
	}
}

func TestHouseholdService_SetAvailability(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.addUser("w-1", "阿水", true)

	if err := env.household.SetAvailability(ctx, "w-1", model.AvailabilityUnavailable); err != nil {
		t.Fatalf("SetAvailability 应成功: %v", err)
	}
	u, _ := env.repo.User.GetByID(ctx, "w-1")
	if u.Availability != model.AvailabilityUnavailable {
		t.Errorf("期望 unavailable，实际=%s", u.Availability)
	}

	if err := env.household.SetAvailability(ctx, "w-1", "sleeping"); !errors.Is(err, ErrInvalidAvailability) {
		t.Errorf("期望 ErrInvalidAvailability，实际: %v", err)
	}
	if err := env.household.SetAvailability(ctx, "w-x", model.AvailabilityBusy); !errors.Is(err, ErrWorkerNotFound) {
		t.Errorf("期望 ErrWorkerNotFound，实际: %v", err)
	}
}
