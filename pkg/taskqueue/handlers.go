package taskqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/reg-retrieval-system/internal/models"
	"github.com/fyerfyer/reg-retrieval-system/internal/services"
)

// IngestHandler 法规入库任务处理器
type IngestHandler struct {
	ingest *services.IngestService
	logger *logrus.Logger
}

// NewIngestHandler 创建入库任务处理器
func NewIngestHandler(ingest *services.IngestService, log *logrus.Logger) *IngestHandler {
	if log == nil {
		log = logrus.New()
	}
	return &IngestHandler{
		ingest: ingest,
		logger: log,
	}
}

// ProcessTask 处理入库任务
// 从载荷指向的文件读取序列化页面流后执行完整入库流水线
func (h *IngestHandler) ProcessTask(ctx context.Context, task *Task) error {
	var payload RegulationIngestPayload
	if err := UnmarshalPayload(task.Payload, &payload); err != nil {
		return ErrInvalidPayload
	}
	if payload.RegID == "" || payload.PagesPath == "" {
		return ErrInvalidPayload
	}

	h.logger.WithFields(logrus.Fields{
		"task_id":    task.ID,
		"reg_id":     payload.RegID,
		"pages_path": payload.PagesPath,
	}).Info("Processing regulation ingest task")

	data, err := os.ReadFile(payload.PagesPath)
	if err != nil {
		return fmt.Errorf("failed to read pages file %s: %w", payload.PagesPath, err)
	}

	var pages []*models.PageDocument
	if err := json.Unmarshal(data, &pages); err != nil {
		return fmt.Errorf("failed to parse pages file %s: %w", payload.PagesPath, err)
	}

	return h.ingest.IngestPages(ctx, payload.RegID, pages, services.IngestOptions{
		Title:      payload.Title,
		SourceFile: payload.SourceFile,
	})
}

// GetTaskTypes 返回支持的任务类型
func (h *IngestHandler) GetTaskTypes() []TaskType {
	return []TaskType{TaskRegulationIngest}
}

// DeleteHandler 法规删除任务处理器
type DeleteHandler struct {
	ingest *services.IngestService
	logger *logrus.Logger
}

// NewDeleteHandler 创建删除任务处理器
func NewDeleteHandler(ingest *services.IngestService, log *logrus.Logger) *DeleteHandler {
	if log == nil {
		log = logrus.New()
	}
	return &DeleteHandler{
		ingest: ingest,
		logger: log,
	}
}

// ProcessTask 处理删除任务
func (h *DeleteHandler) ProcessTask(ctx context.Context, task *Task) error {
	var payload RegulationDeletePayload
	if err := UnmarshalPayload(task.Payload, &payload); err != nil {
		return ErrInvalidPayload
	}
	if payload.RegID == "" {
		return ErrInvalidPayload
	}

	h.logger.WithFields(logrus.Fields{
		"task_id": task.ID,
		"reg_id":  payload.RegID,
	}).Info("Processing regulation delete task")

	return h.ingest.DeleteRegulation(ctx, payload.RegID)
}

// GetTaskTypes 返回支持的任务类型
func (h *DeleteHandler) GetTaskTypes() []TaskType {
	return []TaskType{TaskRegulationDelete}
}
