package taskqueue

import (
	"encoding/json"
	"time"
)

// TaskType 任务类型
type TaskType string

const (
	// TaskRegulationIngest 法规入库任务
	TaskRegulationIngest TaskType = "regulation_ingest"
	// TaskRegulationDelete 法规删除任务
	TaskRegulationDelete TaskType = "regulation_delete"
)

// TaskStatus 任务状态
type TaskStatus string

const (
	// StatusPending 等待处理
	StatusPending TaskStatus = "pending"
	// StatusProcessing 处理中
	StatusProcessing TaskStatus = "processing"
	// StatusCompleted 已完成
	StatusCompleted TaskStatus = "completed"
	// StatusFailed 处理失败
	StatusFailed TaskStatus = "failed"
)

// Task 任务基础结构
type Task struct {
	ID          string          `json:"id"`           // 任务唯一标识符
	Type        TaskType        `json:"type"`         // 任务类型
	RegID       string          `json:"reg_id"`       // 关联的法规集合ID
	Status      TaskStatus      `json:"status"`       // 任务状态
	Payload     json.RawMessage `json:"payload"`      // 任务载荷数据
	Result      json.RawMessage `json:"result"`       // 任务结果数据
	Error       string          `json:"error"`        // 错误信息（如果处理失败）
	CreatedAt   time.Time       `json:"created_at"`   // 创建时间
	UpdatedAt   time.Time       `json:"updated_at"`   // 更新时间
	StartedAt   *time.Time      `json:"started_at"`   // 开始处理时间
	CompletedAt *time.Time      `json:"completed_at"` // 完成时间
	Attempts    int             `json:"attempts"`     // 尝试次数
	MaxRetries  int             `json:"max_retries"`  // 最大重试次数
}

// RegulationIngestPayload 法规入库任务载荷
// 页面流由上游解析器产出后序列化存放，此处只携带其位置
type RegulationIngestPayload struct {
	RegID      string `json:"reg_id"`      // 法规集合ID
	Title      string `json:"title"`       // 法规标题
	SourceFile string `json:"source_file"` // 来源文件名
	PagesPath  string `json:"pages_path"`  // 序列化页面流（JSON数组）的文件路径
}

// RegulationIngestResult 法规入库任务结果
type RegulationIngestResult struct {
	RegID      string `json:"reg_id"`      // 法规集合ID
	TotalPages int    `json:"total_pages"` // 入库页数
	Error      string `json:"error,omitempty"`
}

// RegulationDeletePayload 法规删除任务载荷
type RegulationDeletePayload struct {
	RegID string `json:"reg_id"` // 法规集合ID
}
