package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/lqCintern/farm-management-sub004/config"
	"github.com/lqCintern/farm-management-sub004/internal/event"
	"github.com/lqCintern/farm-management-sub004/internal/model"
	"github.com/lqCintern/farm-management-sub004/internal/repository"
	pkgerrors "github.com/lqCintern/farm-management-sub004/pkg/errors"
)

// ── 内存存储 ──
//
// 所有 mock repository 共享同一个 memStore：
//   - txMu 串行化事务，模拟行锁/咨询锁
//   - 事务开始前快照，fn 返回错误时恢复，模拟回滚
//   - 读取返回副本并按真实实现挂载关联（Preload）
//   - 唯一约束冲突返回 gorm.ErrDuplicatedKey（与 TranslateError 一致）

type memStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	seq   int
	order map[string]int // 插入顺序，用于同一时刻记录的稳定排序
	clock time.Time

	users       map[string]*model.User
	households  map[string]*model.Household
	members     map[string]*model.HouseholdWorker
	requests    map[string]*model.LaborRequest
	assignments map[string]*model.LaborAssignment
	exchanges   map[string]*model.LaborExchange
	txs         map[string]*model.LaborExchangeTransaction

	// 故障注入
	failTxCreate error
	// afterAssignmentRead 读取安排后、调用方写回前执行，模拟并发写入已提交
	afterAssignmentRead func(s *memStore, id string)
	// beforeAssignmentCreate 在冲突检查之后、写入之前执行，模拟并发事务抢先写入同一工人同一天
	beforeAssignmentCreate func(s *memStore, a *model.LaborAssignment)
}

func newMemStore() *memStore {
	return &memStore{
		order:       make(map[string]int),
		clock:       time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
		users:       make(map[string]*model.User),
		households:  make(map[string]*model.Household),
		members:     make(map[string]*model.HouseholdWorker),
		requests:    make(map[string]*model.LaborRequest),
		assignments: make(map[string]*model.LaborAssignment),
		exchanges:   make(map[string]*model.LaborExchange),
		txs:         make(map[string]*model.LaborExchangeTransaction),
	}
}

// nextID 生成 id 并记录插入顺序（调用方须持有 mu）
func (s *memStore) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%03d", prefix, s.seq)
}

func (s *memStore) track(id string) time.Time {
	s.seq++
	s.order[id] = s.seq
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

type memSnapshot struct {
	order       map[string]int
	users       map[string]*model.User
	households  map[string]*model.Household
	members     map[string]*model.HouseholdWorker
	requests    map[string]*model.LaborRequest
	assignments map[string]*model.LaborAssignment
	exchanges   map[string]*model.LaborExchange
	txs         map[string]*model.LaborExchangeTransaction
}

func cloneMap[T any](m map[string]*T) map[string]*T {
	out := make(map[string]*T, len(m))
	for k, v := range m {
		cp := *v
		out[k] = &cp
	}
	return out
}

func (s *memStore) snapshot() memSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	order := make(map[string]int, len(s.order))
	for k, v := range s.order {
		order[k] = v
	}
	return memSnapshot{
		order:       order,
		users:       cloneMap(s.users),
		households:  cloneMap(s.households),
		members:     cloneMap(s.members),
		requests:    cloneMap(s.requests),
		assignments: cloneMap(s.assignments),
		exchanges:   cloneMap(s.exchanges),
		txs:         cloneMap(s.txs),
	}
}

func (s *memStore) restore(snap memSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.order = snap.order
	s.users = snap.users
	s.households = snap.households
	s.members = snap.members
	s.requests = snap.requests
	s.assignments = snap.assignments
	s.exchanges = snap.exchanges
	s.txs = snap.txs
}

// repository 组装绑定到该存储的 Repository
func (s *memStore) repository() *repository.Repository {
	return &repository.Repository{
		User:            &mockUserRepo{s},
		Household:       &mockHouseholdRepo{s},
		HouseholdWorker: &mockHouseholdWorkerRepo{s},
		LaborRequest:    &mockLaborRequestRepo{s},
		LaborAssignment: &mockLaborAssignmentRepo{s},
		LaborExchange:   &mockLaborExchangeRepo{s},
		ExchangeTx:      &mockExchangeTxRepo{s},
		Tx:              &mockTxManager{s},
	}
}

type mockTxManager struct{ s *memStore }

func (m *mockTxManager) Transaction(_ context.Context, fn func(tx *repository.Repository) error) error {
	m.s.txMu.Lock()
	defer m.s.txMu.Unlock()

	snap := m.s.snapshot()
	if err := fn(m.s.repository()); err != nil {
		m.s.restore(snap)
		return err
	}
	return nil
}

// ── Mock UserRepository ──

type mockUserRepo struct{ s *memStore }

func (m *mockUserRepo) Create(_ context.Context, user *model.User) error {
	s := m.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Phone == user.Phone {
			return gorm.ErrDuplicatedKey
		}
	}
	if user.UserID == "" {
		user.UserID = s.nextID("user")
	}
	if user.Availability == "" {
		user.Availability = model.AvailabilityAvailable
	}
	if user.Role == "" {
		user.Role = "farmer"
	}
	at := s.track(user.UserID)
	user.CreatedAt, user.UpdatedAt = at, at
	cp := *user
	s.users[user.UserID] = &cp
	return nil
}

func (m *mockUserRepo) GetByID(_ context.Context, id string) (*model.User, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if u, ok := m.s.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockUserRepo) GetByPhone(_ context.Context, phone string) (*model.User, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, u := range m.s.users {
		if u.Phone == phone {
			cp := *u
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockUserRepo) SetAvailability(_ context.Context, userID, state string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	u, ok := m.s.users[userID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	u.Availability = state
	return nil
}

func (m *mockUserRepo) ListAvailableWorkers(_ context.Context, excludeIDs []string, limit int) ([]model.User, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	excluded := make(map[string]bool, len(excludeIDs))
	for _, id := range excludeIDs {
		excluded[id] = true
	}
	active := make(map[string]bool)
	for _, hw := range m.s.members {
		if hw.IsActive {
			active[hw.WorkerID] = true
		}
	}
	var result []model.User
	for _, u := range m.s.users {
		if u.IsWorker && u.Availability == model.AvailabilityAvailable && active[u.UserID] && !excluded[u.UserID] {
			result = append(result, *u)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// ── Mock HouseholdRepository ──

type mockHouseholdRepo struct{ s *memStore }

func (m *mockHouseholdRepo) Create(_ context.Context, h *model.Household) error {
	s := m.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.households {
		if existing.OwnerID == h.OwnerID {
			return gorm.ErrDuplicatedKey
		}
	}
	if h.HouseholdID == "" {
		h.HouseholdID = s.nextID("hh")
	}
	at := s.track(h.HouseholdID)
	h.CreatedAt, h.UpdatedAt = at, at
	cp := *h
	cp.Owner = nil
	s.households[h.HouseholdID] = &cp
	return nil
}

func (m *mockHouseholdRepo) GetByID(_ context.Context, id string) (*model.Household, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	h, ok := m.s.households[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *h
	if u, ok := m.s.users[h.OwnerID]; ok {
		owner := *u
		cp.Owner = &owner
	}
	return &cp, nil
}

func (m *mockHouseholdRepo) GetByOwner(_ context.Context, ownerID string) (*model.Household, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, h := range m.s.households {
		if h.OwnerID == ownerID {
			cp := *h
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockHouseholdRepo) Update(_ context.Context, h *model.Household) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.households[h.HouseholdID]; !ok {
		return gorm.ErrRecordNotFound
	}
	cp := *h
	cp.Owner = nil
	m.s.households[h.HouseholdID] = &cp
	return nil
}

// ── Mock HouseholdWorkerRepository ──

type mockHouseholdWorkerRepo struct{ s *memStore }

func (m *mockHouseholdWorkerRepo) Create(_ context.Context, hw *model.HouseholdWorker) error {
	s := m.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.members {
		if existing.HouseholdID == hw.HouseholdID && existing.WorkerID == hw.WorkerID {
			return gorm.ErrDuplicatedKey
		}
	}
	if hw.HouseholdWorkerID == "" {
		hw.HouseholdWorkerID = s.nextID("hw")
	}
	at := s.track(hw.HouseholdWorkerID)
	hw.CreatedAt, hw.UpdatedAt = at, at
	cp := *hw
	cp.Household, cp.Worker = nil, nil
	s.members[hw.HouseholdWorkerID] = &cp
	return nil
}

func (m *mockHouseholdWorkerRepo) Get(_ context.Context, householdID, workerID string) (*model.HouseholdWorker, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, hw := range m.s.members {
		if hw.HouseholdID == householdID && hw.WorkerID == workerID {
			cp := *hw
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockHouseholdWorkerRepo) Update(_ context.Context, hw *model.HouseholdWorker) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	stored, ok := m.s.members[hw.HouseholdWorkerID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	stored.Relationship = hw.Relationship
	stored.IsActive = hw.IsActive
	stored.JoinedDate = hw.JoinedDate
	return nil
}

func (m *mockHouseholdWorkerRepo) sorted(filter func(*model.HouseholdWorker) bool) []model.HouseholdWorker {
	var result []model.HouseholdWorker
	for _, hw := range m.s.members {
		if filter(hw) {
			cp := *hw
			if u, ok := m.s.users[hw.WorkerID]; ok {
				w := *u
				cp.Worker = &w
			}
			result = append(result, cp)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		di, dj := time.Time(result[i].JoinedDate), time.Time(result[j].JoinedDate)
		if !di.Equal(dj) {
			return di.Before(dj)
		}
		return m.s.order[result[i].HouseholdWorkerID] < m.s.order[result[j].HouseholdWorkerID]
	})
	return result
}

func (m *mockHouseholdWorkerRepo) ListByHousehold(_ context.Context, householdID string, includeInactive bool) ([]model.HouseholdWorker, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	return m.sorted(func(hw *model.HouseholdWorker) bool {
		return hw.HouseholdID == householdID && (includeInactive || hw.IsActive)
	}), nil
}

func (m *mockHouseholdWorkerRepo) FindActiveByWorker(_ context.Context, workerID string) (*model.HouseholdWorker, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	list := m.sorted(func(hw *model.HouseholdWorker) bool {
		return hw.WorkerID == workerID && hw.IsActive
	})
	if len(list) == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	first := list[0]
	first.Worker = nil
	return &first, nil
}

// ── Mock LaborRequestRepository ──

type mockLaborRequestRepo struct{ s *memStore }

// withHouseholds 挂载请求方/被请求方农户（调用方须持有 mu）
func (m *mockLaborRequestRepo) withHouseholds(r *model.LaborRequest) model.LaborRequest {
	cp := *r
	if h, ok := m.s.households[r.RequestingHouseholdID]; ok {
		hh := *h
		cp.RequestingHousehold = &hh
	}
	if r.ProvidingHouseholdID != nil {
		if h, ok := m.s.households[*r.ProvidingHouseholdID]; ok {
			hh := *h
			cp.ProvidingHousehold = &hh
		}
	}
	return cp
}

func (m *mockLaborRequestRepo) Create(_ context.Context, req *model.LaborRequest) error {
	s := m.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if req.ParentRequestID != nil && req.RequestGroupID != nil && req.ProvidingHouseholdID != nil {
		for _, r := range s.requests {
			if r.ParentRequestID != nil && r.RequestGroupID != nil && r.ProvidingHouseholdID != nil &&
				*r.RequestGroupID == *req.RequestGroupID && *r.ProvidingHouseholdID == *req.ProvidingHouseholdID {
				return gorm.ErrDuplicatedKey
			}
		}
	}
	if req.LaborRequestID == "" {
		req.LaborRequestID = s.nextID("req")
	}
	if req.Version == 0 {
		req.Version = 1
	}
	at := s.track(req.LaborRequestID)
	req.CreatedAt, req.UpdatedAt = at, at
	cp := *req
	cp.RequestingHousehold, cp.ProvidingHousehold = nil, nil
	s.requests[req.LaborRequestID] = &cp
	return nil
}

func (m *mockLaborRequestRepo) GetByID(_ context.Context, id string) (*model.LaborRequest, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	r, ok := m.s.requests[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := m.withHouseholds(r)
	return &cp, nil
}

func (m *mockLaborRequestRepo) GetByIDForUpdate(ctx context.Context, id string) (*model.LaborRequest, error) {
	return m.GetByID(ctx, id)
}

func (m *mockLaborRequestRepo) Update(_ context.Context, req *model.LaborRequest) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	stored, ok := m.s.requests[req.LaborRequestID]
	if !ok || stored.Version != req.Version {
		return pkgerrors.ErrOptimisticLock
	}
	req.Version++
	cp := *req
	cp.RequestingHousehold, cp.ProvidingHousehold = nil, nil
	cp.CreatedAt = stored.CreatedAt
	m.s.requests[req.LaborRequestID] = &cp
	return nil
}

func (m *mockLaborRequestRepo) byCreated(list []model.LaborRequest, desc bool) {
	sort.Slice(list, func(i, j int) bool {
		oi, oj := m.s.order[list[i].LaborRequestID], m.s.order[list[j].LaborRequestID]
		if desc {
			return oi > oj
		}
		return oi < oj
	})
}

func (m *mockLaborRequestRepo) ListByGroup(_ context.Context, groupID string) ([]model.LaborRequest, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var list []model.LaborRequest
	for _, r := range m.s.requests {
		if r.RequestGroupID != nil && *r.RequestGroupID == groupID {
			list = append(list, m.withHouseholds(r))
		}
	}
	m.byCreated(list, false)
	return list, nil
}

func (m *mockLaborRequestRepo) FindChildInGroup(_ context.Context, groupID, householdID string) (*model.LaborRequest, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, r := range m.s.requests {
		if r.ParentRequestID != nil && r.RequestGroupID != nil && *r.RequestGroupID == groupID &&
			r.ProvidingHouseholdID != nil && *r.ProvidingHouseholdID == householdID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockLaborRequestRepo) ListForHousehold(_ context.Context, householdID string, filter repository.RequestFilter) ([]model.LaborRequest, int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	excluded := make(map[string]bool, len(filter.ExcludeGroupIDs))
	for _, id := range filter.ExcludeGroupIDs {
		excluded[id] = true
	}
	var list []model.LaborRequest
	for _, r := range m.s.requests {
		visible := r.RequestingHouseholdID == householdID || r.IsPublic ||
			(r.ProvidingHouseholdID != nil && *r.ProvidingHouseholdID == householdID)
		if !visible {
			continue
		}
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		if !filter.IncludeChildren && r.ParentRequestID != nil {
			continue
		}
		if r.RequestGroupID != nil && excluded[*r.RequestGroupID] {
			continue
		}
		list = append(list, m.withHouseholds(r))
	}
	m.byCreated(list, true)
	total := int64(len(list))
	if filter.Limit > 0 {
		if filter.Offset >= len(list) {
			return nil, total, nil
		}
		list = list[filter.Offset:min(filter.Offset+filter.Limit, len(list))]
	}
	return list, total, nil
}

func (m *mockLaborRequestRepo) ListJoinedGroupIDs(_ context.Context, householdID string) ([]string, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	seen := make(map[string]bool)
	var ids []string
	for _, r := range m.s.requests {
		if r.ParentRequestID != nil && r.RequestGroupID != nil && r.ProvidingHouseholdID != nil &&
			*r.ProvidingHouseholdID == householdID && !seen[*r.RequestGroupID] {
			seen[*r.RequestGroupID] = true
			ids = append(ids, *r.RequestGroupID)
		}
	}
	return ids, nil
}

// ── Mock LaborAssignmentRepository ──

type mockLaborAssignmentRepo struct{ s *memStore }

// withRelations 挂载请求与工人（调用方须持有 mu）
func (m *mockLaborAssignmentRepo) withRelations(a *model.LaborAssignment) model.LaborAssignment {
	cp := *a
	if r, ok := m.s.requests[a.LaborRequestID]; ok {
		req := (&mockLaborRequestRepo{m.s}).withHouseholds(r)
		cp.LaborRequest = &req
	}
	if u, ok := m.s.users[a.WorkerID]; ok {
		w := *u
		cp.Worker = &w
	}
	return cp
}

func (m *mockLaborAssignmentRepo) occupied(workerID string, day time.Time, excludeID string) bool {
	for _, a := range m.s.assignments {
		if a.WorkerID == workerID && a.LaborAssignmentID != excludeID &&
			dayKey(a.WorkDay()) == dayKey(day) && a.OccupiesDay() {
			return true
		}
	}
	return false
}

func (m *mockLaborAssignmentRepo) Create(_ context.Context, a *model.LaborAssignment) error {
	s := m.s
	s.mu.Lock()
	hook := s.beforeAssignmentCreate
	s.beforeAssignmentCreate = nil
	s.mu.Unlock()
	if hook != nil {
		hook(s, a)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if a.OccupiesDay() && m.occupied(a.WorkerID, a.WorkDay(), "") {
		return gorm.ErrDuplicatedKey
	}
	if a.LaborAssignmentID == "" {
		a.LaborAssignmentID = s.nextID("asg")
	}
	at := s.track(a.LaborAssignmentID)
	a.CreatedAt, a.UpdatedAt = at, at
	cp := *a
	cp.LaborRequest, cp.Worker, cp.HomeHousehold = nil, nil, nil
	s.assignments[a.LaborAssignmentID] = &cp
	return nil
}

func (m *mockLaborAssignmentRepo) read(id string, relations bool) (*model.LaborAssignment, error) {
	m.s.mu.Lock()
	a, ok := m.s.assignments[id]
	if !ok {
		m.s.mu.Unlock()
		return nil, gorm.ErrRecordNotFound
	}
	cp := *a
	if relations {
		cp = m.withRelations(a)
	}
	hook := m.s.afterAssignmentRead
	m.s.afterAssignmentRead = nil
	m.s.mu.Unlock()

	if hook != nil {
		hook(m.s, id)
	}
	return &cp, nil
}

func (m *mockLaborAssignmentRepo) GetByID(_ context.Context, id string) (*model.LaborAssignment, error) {
	return m.read(id, true)
}

func (m *mockLaborAssignmentRepo) GetByIDForUpdate(_ context.Context, id string) (*model.LaborAssignment, error) {
	return m.read(id, false)
}

func (m *mockLaborAssignmentRepo) Transition(_ context.Context, a *model.LaborAssignment, from string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	stored, ok := m.s.assignments[a.LaborAssignmentID]
	if !ok || stored.Status != from {
		return pkgerrors.ErrOptimisticLock
	}
	stored.Status = a.Status
	stored.HoursWorked = a.HoursWorked
	stored.WorkUnits = a.WorkUnits
	stored.Notes = a.Notes
	stored.CompletedAt = a.CompletedAt
	stored.UpdatedBy = a.UpdatedBy
	return nil
}

func (m *mockLaborAssignmentRepo) SetRating(_ context.Context, id, column string, rating int, updatedBy string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	stored, ok := m.s.assignments[id]
	if !ok || stored.Status != model.AssignmentStatusCompleted {
		return gorm.ErrRecordNotFound
	}
	switch column {
	case repository.RatingColumnWorker:
		stored.WorkerRating = &rating
	case repository.RatingColumnFarmer:
		stored.FarmerRating = &rating
	default:
		return fmt.Errorf("未知评分字段: %s", column)
	}
	stored.UpdatedBy = &updatedBy
	return nil
}

func (m *mockLaborAssignmentRepo) LockWorkerDay(_ context.Context, _ string, _ time.Time) error {
	return nil // 事务已由 txMu 串行化
}

func (m *mockLaborAssignmentRepo) ExistsForWorkerOnDate(_ context.Context, workerID string, day time.Time, excludeID string) (bool, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	return m.occupied(workerID, day, excludeID), nil
}

func (m *mockLaborAssignmentRepo) collect(filter func(*model.LaborAssignment) bool) []model.LaborAssignment {
	var list []model.LaborAssignment
	for _, a := range m.s.assignments {
		if filter(a) {
			list = append(list, m.withRelations(a))
		}
	}
	return list
}

func (m *mockLaborAssignmentRepo) ListByWorker(_ context.Context, workerID string, filter repository.AssignmentFilter) ([]model.LaborAssignment, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	list := m.collect(func(a *model.LaborAssignment) bool {
		day := dayKey(a.WorkDay())
		switch {
		case a.WorkerID != workerID:
			return false
		case filter.Status != "" && a.Status != filter.Status:
			return false
		case filter.StartDate != nil && day < dayKey(*filter.StartDate):
			return false
		case filter.EndDate != nil && day > dayKey(*filter.EndDate):
			return false
		case filter.Upcoming && day < dayKey(filter.Today):
			return false
		}
		return true
	})
	sort.Slice(list, func(i, j int) bool {
		ki := dayKey(list[i].WorkDay()) + list[i].StartTime
		kj := dayKey(list[j].WorkDay()) + list[j].StartTime
		if filter.Upcoming {
			return ki < kj
		}
		return ki > kj
	})
	return list, nil
}

func (m *mockLaborAssignmentRepo) byWorkDate(list []model.LaborAssignment) {
	sort.Slice(list, func(i, j int) bool {
		ki, kj := dayKey(list[i].WorkDay()), dayKey(list[j].WorkDay())
		if ki != kj {
			return ki < kj
		}
		return m.s.order[list[i].LaborAssignmentID] < m.s.order[list[j].LaborAssignmentID]
	})
}

func (m *mockLaborAssignmentRepo) ListByRequest(_ context.Context, requestID string) ([]model.LaborAssignment, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	list := m.collect(func(a *model.LaborAssignment) bool { return a.LaborRequestID == requestID })
	m.byWorkDate(list)
	return list, nil
}

func (m *mockLaborAssignmentRepo) ListCompletedByRequest(_ context.Context, requestID string) ([]model.LaborAssignment, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	list := m.collect(func(a *model.LaborAssignment) bool {
		return a.LaborRequestID == requestID && a.Status == model.AssignmentStatusCompleted
	})
	m.byWorkDate(list)
	return list, nil
}

func (m *mockLaborAssignmentRepo) feedsLedger(a *model.LaborAssignment) (*model.LaborRequest, bool) {
	r, ok := m.s.requests[a.LaborRequestID]
	if !ok || a.Status != model.AssignmentStatusCompleted || a.HoursWorked == nil || *a.HoursWorked <= 0 {
		return nil, false
	}
	return r, model.FeedsLedger(r.RequestType)
}

func (m *mockLaborAssignmentRepo) ListCompletedExchangeBetween(_ context.Context, x, y string, after *time.Time) ([]model.LaborAssignment, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	list := m.collect(func(a *model.LaborAssignment) bool {
		r, ok := m.feedsLedger(a)
		if !ok {
			return false
		}
		between := (a.HomeHouseholdID == x && r.RequestingHouseholdID == y) ||
			(a.HomeHouseholdID == y && r.RequestingHouseholdID == x)
		if !between {
			return false
		}
		if after == nil {
			return true
		}
		for _, t := range m.s.txs {
			if t.LaborAssignmentID != nil && *t.LaborAssignmentID == a.LaborAssignmentID {
				return t.CreatedAt.After(*after)
			}
		}
		return a.CompletedAt != nil && a.CompletedAt.After(*after)
	})
	sort.Slice(list, func(i, j int) bool {
		ci, cj := list[i].CompletedAt, list[j].CompletedAt
		if ci != nil && cj != nil && !ci.Equal(*cj) {
			return ci.Before(*cj)
		}
		return m.s.order[list[i].LaborAssignmentID] < m.s.order[list[j].LaborAssignmentID]
	})
	return list, nil
}

func (m *mockLaborAssignmentRepo) ListExchangePairs(_ context.Context) ([]repository.HouseholdPair, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	seen := make(map[repository.HouseholdPair]bool)
	var pairs []repository.HouseholdPair
	for _, a := range m.s.assignments {
		r, ok := m.feedsLedger(a)
		if !ok || a.HomeHouseholdID == r.RequestingHouseholdID {
			continue
		}
		p := repository.HouseholdPair{WorkerHouseholdID: a.HomeHouseholdID, RequestingHouseholdID: r.RequestingHouseholdID}
		if !seen[p] {
			seen[p] = true
			pairs = append(pairs, p)
		}
	}
	return pairs, nil
}

// ── Mock LaborExchangeRepository ──

type mockLaborExchangeRepo struct{ s *memStore }

func (m *mockLaborExchangeRepo) withHouseholds(ex *model.LaborExchange) model.LaborExchange {
	cp := *ex
	if h, ok := m.s.households[ex.HouseholdAID]; ok {
		hh := *h
		cp.HouseholdA = &hh
	}
	if h, ok := m.s.households[ex.HouseholdBID]; ok {
		hh := *h
		cp.HouseholdB = &hh
	}
	return cp
}

func (m *mockLaborExchangeRepo) GetByID(_ context.Context, id string) (*model.LaborExchange, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	ex, ok := m.s.exchanges[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := m.withHouseholds(ex)
	return &cp, nil
}

func (m *mockLaborExchangeRepo) GetByIDForUpdate(_ context.Context, id string) (*model.LaborExchange, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	ex, ok := m.s.exchanges[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *ex
	return &cp, nil
}

func (m *mockLaborExchangeRepo) findPair(a, b string) *model.LaborExchange {
	for _, ex := range m.s.exchanges {
		if ex.HouseholdAID == a && ex.HouseholdBID == b {
			return ex
		}
	}
	return nil
}

func (m *mockLaborExchangeRepo) GetByPair(_ context.Context, a, b string) (*model.LaborExchange, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if ex := m.findPair(a, b); ex != nil {
		cp := *ex
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockLaborExchangeRepo) GetOrCreateForUpdate(_ context.Context, a, b string) (*model.LaborExchange, error) {
	s := m.s
	s.mu.Lock()
	defer s.mu.Unlock()
	ex := m.findPair(a, b)
	if ex == nil {
		id := s.nextID("ex")
		at := s.track(id)
		ex = &model.LaborExchange{LaborExchangeID: id, HouseholdAID: a, HouseholdBID: b}
		ex.CreatedAt, ex.UpdatedAt = at, at
		s.exchanges[id] = ex
	}
	cp := *ex
	return &cp, nil
}

func (m *mockLaborExchangeRepo) ApplyDelta(_ context.Context, id string, delta float64, at time.Time) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	ex, ok := m.s.exchanges[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	ex.HoursBalance = round2(ex.HoursBalance + delta)
	ex.LastTransactionDate = &at
	return nil
}

func (m *mockLaborExchangeRepo) SetBalance(_ context.Context, id string, balance float64, at time.Time) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	ex, ok := m.s.exchanges[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	ex.HoursBalance = balance
	ex.LastTransactionDate = &at
	return nil
}

func (m *mockLaborExchangeRepo) ListByHousehold(_ context.Context, householdID string) ([]model.LaborExchange, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var list []model.LaborExchange
	for _, ex := range m.s.exchanges {
		if ex.Involves(householdID) {
			list = append(list, m.withHouseholds(ex))
		}
	}
	sort.Slice(list, func(i, j int) bool {
		return m.s.order[list[i].LaborExchangeID] < m.s.order[list[j].LaborExchangeID]
	})
	return list, nil
}

func (m *mockLaborExchangeRepo) List(_ context.Context) ([]model.LaborExchange, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var list []model.LaborExchange
	for _, ex := range m.s.exchanges {
		list = append(list, *ex)
	}
	sort.Slice(list, func(i, j int) bool {
		return m.s.order[list[i].LaborExchangeID] < m.s.order[list[j].LaborExchangeID]
	})
	return list, nil
}

// ── Mock ExchangeTransactionRepository ──

type mockExchangeTxRepo struct{ s *memStore }

func (m *mockExchangeTxRepo) Create(_ context.Context, t *model.LaborExchangeTransaction) error {
	s := m.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failTxCreate != nil {
		return s.failTxCreate
	}
	if t.LaborAssignmentID != nil {
		for _, existing := range s.txs {
			if existing.LaborAssignmentID != nil && *existing.LaborAssignmentID == *t.LaborAssignmentID {
				return gorm.ErrDuplicatedKey
			}
		}
	}
	if t.TransactionID == "" {
		t.TransactionID = s.nextID("tx")
	}
	at := s.track(t.TransactionID)
	if t.CreatedAt.IsZero() {
		t.CreatedAt = at
	}
	cp := *t
	s.txs[t.TransactionID] = &cp
	return nil
}

func (m *mockExchangeTxRepo) ExistsForAssignment(_ context.Context, assignmentID string) (bool, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, t := range m.s.txs {
		if t.LaborAssignmentID != nil && *t.LaborAssignmentID == assignmentID {
			return true, nil
		}
	}
	return false, nil
}

// ofExchange 按创建时间倒序（调用方须持有 mu）
func (m *mockExchangeTxRepo) ofExchange(exchangeID string) []model.LaborExchangeTransaction {
	var list []model.LaborExchangeTransaction
	for _, t := range m.s.txs {
		if t.LaborExchangeID == exchangeID {
			list = append(list, *t)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.After(list[j].CreatedAt)
		}
		return m.s.order[list[i].TransactionID] > m.s.order[list[j].TransactionID]
	})
	return list
}

func (m *mockExchangeTxRepo) ListByExchange(_ context.Context, exchangeID string) ([]model.LaborExchangeTransaction, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	return m.ofExchange(exchangeID), nil
}

func (m *mockExchangeTxRepo) SumByExchange(_ context.Context, exchangeID string) (float64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var sum float64
	for _, t := range m.ofExchange(exchangeID) {
		sum += t.Hours
	}
	return round2(sum), nil
}

func (m *mockExchangeTxRepo) LatestReset(_ context.Context, exchangeID string) (*model.LaborExchangeTransaction, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, t := range m.ofExchange(exchangeID) {
		if t.Kind == model.TransactionKindReset {
			cp := t
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

// ── 事件记录 ──

type recordingPublisher struct {
	mu     sync.Mutex
	events []event.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e event.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingPublisher) count(eventType string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

// ── 测试时钟 ──

// testClock 每次读取前进一分钟，保证流水时间严格递增
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock(start time.Time) *testClock { return &testClock{t: start} }

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Minute)
	return c.t
}

// ── 测试夹具 ──

func testExchangeConfig() *config.ExchangeConfig {
	return &config.ExchangeConfig{
		Timezone:         "Asia/Ho_Chi_Minh",
		HoursPerWorkUnit: 8,
		MaxSuggestions:   10,
	}
}

// testEnv 一组共享存储的服务实例
type testEnv struct {
	store      *memStore
	repo       *repository.Repository
	publisher  *recordingPublisher
	clock      *testClock
	exchange   *exchangeService
	household  *householdService
	request    *requestService
	assignment *assignmentService
}

// newTestEnv 默认"今天"为 2026-06-10（业务时区）
func newTestEnv() *testEnv {
	store := newMemStore()
	repo := store.repository()
	pub := &recordingPublisher{}
	cfg := testExchangeConfig()
	logger := zap.NewNop()
	clock := newTestClock(time.Date(2026, 6, 10, 1, 0, 0, 0, time.UTC))

	ex := NewExchangeService(repo, pub, logger).(*exchangeService)
	ex.now = clock.Now
	hh := NewHouseholdService(repo, cfg.Location(), logger).(*householdService)
	hh.now = clock.Now
	req := NewRequestService(repo, ex, pub, cfg, logger).(*requestService)
	asg := NewAssignmentService(repo, ex, pub, cfg, logger).(*assignmentService)
	asg.now = clock.Now

	return &testEnv{
		store:      store,
		repo:       repo,
		publisher:  pub,
		clock:      clock,
		exchange:   ex,
		household:  hh,
		request:    req,
		assignment: asg,
	}
}

// addUser 直接写入用户
func (e *testEnv) addUser(id, name string, isWorker bool) *model.User {
	u := &model.User{UserID: id, Name: name, Phone: "phone-" + id, IsWorker: isWorker}
	if err := e.repo.User.Create(context.Background(), u); err != nil {
		panic(err)
	}
	return u
}

// addHousehold 写入农户及户主成员关系，返回户主对应的 Actor
func (e *testEnv) addHousehold(id, ownerID string) Actor {
	ctx := context.Background()
	if err := e.repo.Household.Create(ctx, &model.Household{HouseholdID: id, OwnerID: ownerID, Name: "农户-" + id}); err != nil {
		panic(err)
	}
	e.addMember(id, ownerID)
	return Actor{UserID: ownerID, HouseholdID: id}
}

func (e *testEnv) addMember(householdID, workerID string) {
	err := e.repo.HouseholdWorker.Create(context.Background(), &model.HouseholdWorker{
		HouseholdID:  householdID,
		WorkerID:     workerID,
		Relationship: "member",
		IsActive:     true,
		JoinedDate:   datatypes.Date(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)),
	})
	if err != nil {
		panic(err)
	}
}

// addRequest 写入一条 6 月份的请求
func (e *testEnv) addRequest(requesterID, reqType, status string) *model.LaborRequest {
	r := &model.LaborRequest{
		RequestingHouseholdID: requesterID,
		Title:                 "插秧",
		WorkersNeeded:         2,
		RequestType:           reqType,
		StartDate:             datatypes.Date(time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)),
		EndDate:               datatypes.Date(time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC)),
		StartTime:             "07:00",
		EndTime:               "11:00",
		Status:                status,
	}
	if err := e.repo.LaborRequest.Create(context.Background(), r); err != nil {
		panic(err)
	}
	return r
}

// addCompleted 写入一条已完成但未记账的安排
func (e *testEnv) addCompleted(requestID, workerID, homeID string, day int, hours float64) *model.LaborAssignment {
	completed := e.clock.Now()
	a := &model.LaborAssignment{
		LaborRequestID:  requestID,
		WorkerID:        workerID,
		HomeHouseholdID: homeID,
		WorkDate:        datatypes.Date(time.Date(2026, 6, day, 0, 0, 0, 0, time.UTC)),
		Status:          model.AssignmentStatusCompleted,
		HoursWorked:     &hours,
		CompletedAt:     &completed,
	}
	if err := e.repo.LaborAssignment.Create(context.Background(), a); err != nil {
		panic(err)
	}
	return a
}

// balanceOf 规范户对余额
func (e *testEnv) balanceOf(x, y string) float64 {
	a, b := canonicalPair(x, y)
	ex, err := e.repo.LaborExchange.GetByPair(context.Background(), a, b)
	if err != nil {
		return 0
	}
	return ex.HoursBalance
}
