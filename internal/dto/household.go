package dto

// CreateHouseholdRequest 创建农户
type CreateHouseholdRequest struct {
	Name        string `json:"name"        binding:"required,max=100"`
	Province    string `json:"province"    binding:"max=100"`
	District    string `json:"district"    binding:"max=100"`
	Ward        string `json:"ward"        binding:"max=100"`
	Address     string `json:"address"     binding:"max=255"`
	Description string `json:"description"`
}

// AddWorkerRequest 添加农户成员
type AddWorkerRequest struct {
	WorkerID     string `json:"worker_id"    binding:"required"`
	Relationship string `json:"relationship" binding:"max=50"`
}

// ListWorkersQuery 成员列表查询
type ListWorkersQuery struct {
	IncludeInactive bool `form:"include_inactive"`
}
