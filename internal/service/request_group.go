package service

import (
	"github.com/google/uuid"

	"github.com/lqCintern/farm-management-sub004/internal/dto"
	"github.com/lqCintern/farm-management-sub004/internal/model"
)

// RequestGroup 父请求及其定向子请求（两级结构）
// 子请求只能经由 NewChild 从父请求派生，保证同组 id、仅父请求可公开
type RequestGroup struct {
	Parent   *model.LaborRequest
	Children []model.LaborRequest
}

// newRequestGroup 父请求尚无分组 id 时分配新 id
func newRequestGroup(parent *model.LaborRequest) *RequestGroup {
	if parent.RequestGroupID == nil {
		parent.RequestGroupID = strPtr(uuid.NewString())
	}
	return &RequestGroup{Parent: parent}
}

// loadRequestGroup 从同组记录中区分父请求与子请求
func loadRequestGroup(parent *model.LaborRequest, members []model.LaborRequest) *RequestGroup {
	g := newRequestGroup(parent)
	for _, m := range members {
		if m.ParentRequestID != nil && *m.ParentRequestID == parent.LaborRequestID {
			g.Children = append(g.Children, m)
		}
	}
	return g
}

// NewChild 为指定农户派生子请求，复制父请求的任务字段
func (g *RequestGroup) NewChild(providerID string) *model.LaborRequest {
	p := g.Parent
	child := &model.LaborRequest{
		RequestingHouseholdID: p.RequestingHouseholdID,
		ProvidingHouseholdID:  strPtr(providerID),
		FarmActivityID:        p.FarmActivityID,
		Title:                 p.Title,
		Description:           p.Description,
		WorkersNeeded:         p.WorkersNeeded,
		RequestType:           p.RequestType,
		StartDate:             p.StartDate,
		EndDate:               p.EndDate,
		StartTime:             p.StartTime,
		EndTime:               p.EndTime,
		Status:                model.RequestStatusPending,
		IsPublic:              false,
		RequestGroupID:        p.RequestGroupID,
		ParentRequestID:       strPtr(p.LaborRequestID),
	}
	child.CreatedBy = p.CreatedBy
	return child
}

// ChildFor 指定农户在组内的子请求
func (g *RequestGroup) ChildFor(householdID string) *model.LaborRequest {
	for i := range g.Children {
		c := &g.Children[i]
		if c.ProvidingHouseholdID != nil && *c.ProvidingHouseholdID == householdID {
			return c
		}
	}
	return nil
}

// Replace 用最新状态替换组内子请求
func (g *RequestGroup) Replace(child *model.LaborRequest) {
	for i := range g.Children {
		if g.Children[i].LaborRequestID == child.LaborRequestID {
			g.Children[i] = *child
			return
		}
	}
	g.Children = append(g.Children, *child)
}

// ActiveChildren 未拒绝、未取消的子请求数（max_acceptors 判定口径）
func (g *RequestGroup) ActiveChildren() int {
	n := 0
	for _, c := range g.Children {
		if c.Status != model.RequestStatusDeclined && c.Status != model.RequestStatusCancelled {
			n++
		}
	}
	return n
}

// Aggregate 子请求接受/拒绝后父请求应有的状态
// 任一子请求已接受 → accepted；全部拒绝 → declined；否则不变（ok=false）
func (g *RequestGroup) Aggregate() (status string, ok bool) {
	if len(g.Children) == 0 {
		return "", false
	}
	allDeclined := true
	for _, c := range g.Children {
		if c.Status == model.RequestStatusAccepted {
			return model.RequestStatusAccepted, true
		}
		if c.Status != model.RequestStatusDeclined {
			allDeclined = false
		}
	}
	if allDeclined {
		return model.RequestStatusDeclined, true
	}
	return "", false
}

// Status 子请求按状态计数
func (g *RequestGroup) Status() dto.GroupStatus {
	st := dto.GroupStatus{
		ParentID:     g.Parent.LaborRequestID,
		ParentStatus: g.Parent.Status,
		Total:        len(g.Children),
	}
	if g.Parent.RequestGroupID != nil {
		st.GroupID = *g.Parent.RequestGroupID
	}
	for _, c := range g.Children {
		switch c.Status {
		case model.RequestStatusPending:
			st.Pending++
		case model.RequestStatusAccepted:
			st.Accepted++
		case model.RequestStatusDeclined:
			st.Declined++
		case model.RequestStatusCancelled:
			st.Cancelled++
		case model.RequestStatusCompleted:
			st.Completed++
		}
	}
	return st
}
