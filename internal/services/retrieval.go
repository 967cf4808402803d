package services

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/reg-retrieval-system/internal/index"
	"github.com/fyerfyer/reg-retrieval-system/internal/models"
	"github.com/fyerfyer/reg-retrieval-system/internal/pagestore"
	"github.com/fyerfyer/reg-retrieval-system/internal/reference"
	"github.com/fyerfyer/reg-retrieval-system/internal/repository"
	"github.com/fyerfyer/reg-retrieval-system/internal/search"
	"github.com/fyerfyer/reg-retrieval-system/internal/tableregistry"
)

// RetrievalService 检索服务门面
// 聚合混合检索、页面加载、引用与注释解析等读路径操作，可并发调用
type RetrievalService struct {
	store       pagestore.Store
	regRepo     repository.RegulationRepository
	searcher    *search.HybridSearcher
	resolver    *reference.Resolver
	annotations *reference.AnnotationLookup
	logger      *logrus.Logger
}

// NewRetrievalService 创建检索服务
func NewRetrievalService(
	store pagestore.Store,
	regRepo repository.RegulationRepository,
	searcher *search.HybridSearcher,
	resolver *reference.Resolver,
	annotations *reference.AnnotationLookup,
	log *logrus.Logger,
) *RetrievalService {
	if log == nil {
		log = logrus.New()
	}
	return &RetrievalService{
		store:       store,
		regRepo:     regRepo,
		searcher:    searcher,
		resolver:    resolver,
		annotations: annotations,
		logger:      log,
	}
}

// Search 执行混合检索
func (s *RetrievalService) Search(ctx context.Context, query string, opts index.SearchOptions) ([]*models.SearchResult, error) {
	results, err := s.searcher.Search(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	s.logger.WithFields(logrus.Fields{
		"query":   query,
		"reg_id":  opts.RegID,
		"results": len(results),
	}).Debug("Hybrid search completed")
	return results, nil
}

// GetPage 加载单个页面
func (s *RetrievalService) GetPage(ctx context.Context, regID string, pageNum int) (*models.PageDocument, error) {
	return s.store.LoadPage(ctx, regID, pageNum)
}

// GetPageRange 加载页码区间，跨页表格原位拼接
func (s *RetrievalService) GetPageRange(ctx context.Context, regID string, start, end int) (*models.MergedContent, error) {
	return s.store.LoadPageRange(ctx, regID, start, end)
}

// GetStructure 加载法规的章节结构
func (s *RetrievalService) GetStructure(ctx context.Context, regID string) (*models.DocumentStructure, error) {
	return s.store.LoadStructure(ctx, regID)
}

// GetChapter 按章节编号查找章节节点
func (s *RetrievalService) GetChapter(ctx context.Context, regID, section string) (*models.ChapterNode, error) {
	structure, err := s.store.LoadStructure(ctx, regID)
	if err != nil {
		return nil, err
	}
	node, ok := structure.FindBySectionNumber(section)
	if !ok {
		return nil, models.NewChapterNotFoundError(regID, section)
	}
	return node, nil
}

// GetFullTable 返回指定表格拼接去重后的完整内容
func (s *RetrievalService) GetFullTable(ctx context.Context, regID, tableID string) (string, error) {
	registry, err := s.store.LoadTableRegistry(ctx, regID)
	if err != nil {
		return "", err
	}
	return registry.GetFullTable(tableID)
}

// GetTablesOnPage 返回指定页面上出现的逻辑表格
func (s *RetrievalService) GetTablesOnPage(ctx context.Context, regID string, pageNum int) ([]*tableregistry.LogicalTable, error) {
	registry, err := s.store.LoadTableRegistry(ctx, regID)
	if err != nil {
		return nil, err
	}
	return registry.GetTablesOnPage(pageNum), nil
}

// ResolveReference 解析自由文本交叉引用
func (s *RetrievalService) ResolveReference(ctx context.Context, regID, refText string) (*models.ResolvedReference, error) {
	return s.resolver.Resolve(ctx, regID, refText)
}

// FindAnnotation 按注释标识查找，pageHint>0时优先检查该页
func (s *RetrievalService) FindAnnotation(ctx context.Context, regID, rawID string, pageHint int) (*models.Annotation, error) {
	return s.annotations.Find(ctx, regID, rawID, pageHint)
}

// GetRegulation 获取法规元数据
func (s *RetrievalService) GetRegulation(ctx context.Context, regID string) (*models.RegulationInfo, error) {
	return s.regRepo.GetByID(regID)
}

// ListRegulations 列出法规，status为空时不过滤
func (s *RetrievalService) ListRegulations(ctx context.Context, status models.RegulationStatus) ([]*models.RegulationInfo, error) {
	return s.regRepo.List(status)
}
