package services

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/reg-retrieval-system/internal/index"
	"github.com/fyerfyer/reg-retrieval-system/internal/models"
	"github.com/fyerfyer/reg-retrieval-system/internal/pagestore"
	"github.com/fyerfyer/reg-retrieval-system/internal/repository"
	"github.com/fyerfyer/reg-retrieval-system/internal/structure"
	"github.com/fyerfyer/reg-retrieval-system/internal/tableregistry"
)

// IngestOptions 入库附加信息
type IngestOptions struct {
	Title      string // 法规标题
	SourceFile string // 来源文件名
}

// IngestService 入库服务
// 单写者流水线：同一集合不支持并发入库，不同集合互不影响
type IngestService struct {
	store        pagestore.Store
	regRepo      repository.RegulationRepository
	keywordIndex index.Index
	vectorIndex  index.Index
	titleLimit   int
	logger       *logrus.Logger
}

// NewIngestService 创建入库服务
func NewIngestService(
	store pagestore.Store,
	regRepo repository.RegulationRepository,
	keywordIndex index.Index,
	vectorIndex index.Index,
	titleLimit int,
	log *logrus.Logger,
) *IngestService {
	if log == nil {
		log = logrus.New()
	}
	if titleLimit <= 0 {
		titleLimit = 50
	}
	return &IngestService{
		store:        store,
		regRepo:      regRepo,
		keywordIndex: keywordIndex,
		vectorIndex:  vectorIndex,
		titleLimit:   titleLimit,
		logger:       log,
	}
}

// IngestPages 将一个法规的完整页面流入库
// 依次完成：章节结构构建 → 表格注册表构建 → 页面与制品持久化 → 双后端索引；
// 任一阶段失败都会把法规标记为失败并返回错误
func (s *IngestService) IngestPages(ctx context.Context, regID string, pages []*models.PageDocument, opts IngestOptions) error {
	if regID == "" {
		return fmt.Errorf("regulation ID cannot be empty")
	}
	if len(pages) == 0 {
		return fmt.Errorf("page stream is empty for regulation %s", regID)
	}
	for _, page := range pages {
		if page.RegID != regID {
			return fmt.Errorf("page %d belongs to regulation %s, expected %s", page.PageNum, page.RegID, regID)
		}
	}

	s.logger.WithFields(logrus.Fields{
		"reg_id": regID,
		"pages":  len(pages),
	}).Info("Starting regulation ingestion")

	if err := s.ensureRecord(regID, opts); err != nil {
		return err
	}

	if err := s.ingest(ctx, regID, pages); err != nil {
		if markErr := s.regRepo.MarkFailed(regID, err.Error()); markErr != nil {
			s.logger.WithError(markErr).Warn("Failed to mark regulation as failed")
		}
		return err
	}

	if err := s.regRepo.MarkReady(regID, len(pages)); err != nil {
		return err
	}

	s.logger.WithField("reg_id", regID).Info("Regulation ingestion completed")
	return nil
}

// ensureRecord 创建或重置法规元数据记录
func (s *IngestService) ensureRecord(regID string, opts IngestOptions) error {
	existing, err := s.regRepo.GetByID(regID)
	if err != nil {
		if !models.IsCode(err, models.ErrCodeRegulationNotFound) {
			return err
		}
		return s.regRepo.Create(&models.RegulationInfo{
			RegID:      regID,
			Title:      opts.Title,
			SourceFile: opts.SourceFile,
			Status:     models.RegStatusIndexing,
		})
	}

	// 重新入库：重置状态，保留已有标题除非显式传入
	existing.Status = models.RegStatusIndexing
	existing.Error = ""
	if opts.Title != "" {
		existing.Title = opts.Title
	}
	if opts.SourceFile != "" {
		existing.SourceFile = opts.SourceFile
	}
	return s.regRepo.Update(existing)
}

// ingest 执行入库流水线主体
func (s *IngestService) ingest(ctx context.Context, regID string, pages []*models.PageDocument) error {
	// 重新入库前清空两个后端的旧条目，否则残留条目会在融合排序中重复计分
	if err := s.keywordIndex.DeleteCollection(ctx, regID); err != nil {
		return err
	}
	if err := s.vectorIndex.DeleteCollection(ctx, regID); err != nil {
		return err
	}

	// 章节结构构建会在原地标注块的章节归属
	docStructure := structure.BuildFromPages(regID, pages, s.titleLimit, s.logger)

	// 表格注册表构建并回填续段归属
	registry := tableregistry.Build(regID, pages, s.logger)
	registry.Annotate(pages)

	// 页面持久化，每页原子写入
	for _, page := range pages {
		if err := s.store.SavePage(ctx, page); err != nil {
			return err
		}
	}

	if err := s.store.SaveStructure(ctx, docStructure); err != nil {
		return err
	}
	if err := s.store.SaveTableRegistry(ctx, registry); err != nil {
		return err
	}

	return s.indexPages(ctx, regID, pages, docStructure, registry)
}

// indexPages 将全部内容块送入两个索引后端
func (s *IngestService) indexPages(
	ctx context.Context,
	regID string,
	pages []*models.PageDocument,
	docStructure *models.DocumentStructure,
	registry *tableregistry.Registry,
) error {
	indexed := 0
	for _, page := range pages {
		for i := range page.ContentBlocks {
			block := &page.ContentBlocks[i]
			bctx := s.blockContext(page, block, docStructure, registry)

			if err := s.keywordIndex.IndexBlock(ctx, regID, page.PageNum, block, bctx); err != nil {
				return err
			}
			if err := s.vectorIndex.IndexBlock(ctx, regID, page.PageNum, block, bctx); err != nil {
				return err
			}
			indexed++
		}
	}

	s.logger.WithFields(logrus.Fields{
		"reg_id": regID,
		"blocks": indexed,
	}).Info("Indexed content blocks into both backends")
	return nil
}

// blockContext 从章节树和表格注册表提取块的结构化上下文
func (s *IngestService) blockContext(
	page *models.PageDocument,
	block *models.ContentBlock,
	docStructure *models.DocumentStructure,
	registry *tableregistry.Registry,
) index.BlockContext {
	bctx := index.BlockContext{ChapterPath: page.ChapterPath}

	if block.ChapterNodeID != "" {
		if node, ok := docStructure.Node(block.ChapterNodeID); ok {
			bctx.SectionNumber = node.SectionNumber
			bctx.ChapterPath = docStructure.PathOf(node.NodeID)
		}
	}
	if block.BlockType == models.BlockTypeTable {
		if master, ok := registry.MasterOf(block.BlockID); ok {
			bctx.TableID = master
		}
	}
	return bctx
}

// DeleteRegulation 删除一个法规集合及其全部派生数据
// 索引、存储制品和元数据记录依次清理；索引清理失败不阻断存储清理
func (s *IngestService) DeleteRegulation(ctx context.Context, regID string) error {
	if err := s.keywordIndex.DeleteCollection(ctx, regID); err != nil {
		s.logger.WithField("reg_id", regID).WithError(err).Warn("Failed to delete keyword index entries")
	}
	if err := s.vectorIndex.DeleteCollection(ctx, regID); err != nil {
		s.logger.WithField("reg_id", regID).WithError(err).Warn("Failed to delete vector index entries")
	}

	if err := s.store.DeleteCollection(ctx, regID); err != nil {
		return err
	}

	if err := s.regRepo.Delete(regID); err != nil {
		return err
	}

	s.logger.WithField("reg_id", regID).Info("Regulation deleted")
	return nil
}
