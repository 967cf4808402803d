package index

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/reg-retrieval-system/internal/embedding"
	"github.com/fyerfyer/reg-retrieval-system/internal/models"
	"github.com/fyerfyer/reg-retrieval-system/internal/vectordb"
)

// DefaultMinEmbedLength 嵌入文本的默认最短长度（rune）
// 过短文本的向量噪声过大，跳过是已知且可接受的取舍
const DefaultMinEmbedLength = 10

// VectorIndex 向量索引后端
// 嵌入能力和向量仓库均由外部注入
type VectorIndex struct {
	embedder       embedding.Client
	repo           vectordb.Repository
	minEmbedLength int
	snippetLength  int
	logger         *logrus.Logger
}

// NewVectorIndex 创建向量索引后端
func NewVectorIndex(config Config) (Index, error) {
	if config.Embedder == nil {
		return nil, fmt.Errorf("vector index requires an embedder")
	}
	if config.VectorRepo == nil {
		return nil, fmt.Errorf("vector index requires a vector repository")
	}
	log := config.Logger
	if log == nil {
		log = logrus.New()
	}

	minLen := config.MinEmbedLength
	if minLen <= 0 {
		minLen = DefaultMinEmbedLength
	}

	return &VectorIndex{
		embedder:       config.Embedder,
		repo:           config.VectorRepo,
		minEmbedLength: minLen,
		snippetLength:  config.SnippetLength,
		logger:         log,
	}, nil
}

// Name 返回后端名称
func (v *VectorIndex) Name() string {
	return "vector"
}

// IndexBlock 将一个内容块向量化后写入仓库
// 低于最短长度的文本直接跳过，不算失败
func (v *VectorIndex) IndexBlock(ctx context.Context, regID string, pageNum int, block *models.ContentBlock, bctx BlockContext) error {
	if utf8.RuneCountInString(block.Content) < v.minEmbedLength {
		v.logger.WithFields(logrus.Fields{
			"reg_id":   regID,
			"page_num": pageNum,
			"block_id": block.BlockID,
		}).Debug("Block too short to embed, skipped")
		return nil
	}

	vectors, err := v.embedder.EmbedDocuments(ctx, []string{block.Content})
	if err != nil {
		return models.NewIndexError(regID, err)
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return models.NewIndexError(regID, fmt.Errorf("embedder returned no vector for block %s", block.BlockID))
	}

	doc := vectordb.Document{
		ID:          entryID(regID, pageNum, block.BlockID),
		RegID:       regID,
		PageNum:     pageNum,
		BlockID:     block.BlockID,
		BlockType:   string(block.BlockType),
		ChapterPath: bctx.ChapterPath,
		Text:        block.Content,
		Vector:      vectors[0],
		Metadata: map[string]interface{}{
			"section_number": bctx.SectionNumber,
			"table_id":       bctx.TableID,
		},
	}

	if err := v.repo.Add(doc); err != nil {
		return models.NewIndexError(regID, err)
	}
	return nil
}

// Search 执行语义检索
// 章节/类型过滤在向量召回之后应用，因此召回量放大一倍作候选
func (v *VectorIndex) Search(ctx context.Context, query string, opts SearchOptions) ([]*models.SearchResult, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}

	vector, err := v.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, models.NewIndexError(opts.RegID, err)
	}

	filter := vectordb.SearchFilter{MaxResults: limit * 2}
	if opts.RegID != "" {
		filter.RegIDs = []string{opts.RegID}
	}
	if opts.SectionNumber != "" {
		filter.Metadata = map[string]interface{}{"section_number": opts.SectionNumber}
	}

	hits, err := v.repo.Search(vector, filter)
	if err != nil {
		return nil, models.NewIndexError(opts.RegID, err)
	}

	results := make([]*models.SearchResult, 0, limit)
	for _, hit := range hits {
		doc := hit.Document
		if !matchesBlockTypes(doc.BlockType, opts.BlockTypes) {
			continue
		}
		if opts.ChapterScope != "" && !pathContains(doc.ChapterPath, opts.ChapterScope) {
			continue
		}

		results = append(results, &models.SearchResult{
			RegID:       doc.RegID,
			PageNum:     doc.PageNum,
			ChapterPath: doc.ChapterPath,
			BlockID:     doc.BlockID,
			Snippet:     truncateSnippet(doc.Text, v.snippetLength),
			Score:       float64(hit.Score),
		})
		if len(results) >= limit {
			break
		}
	}
	return results, nil
}

// pathContains 判断章节路径中是否存在包含scope的标题
func pathContains(path []string, scope string) bool {
	for _, title := range path {
		if strings.Contains(title, scope) {
			return true
		}
	}
	return false
}

// DeleteCollection 删除一个法规集合的全部向量
func (v *VectorIndex) DeleteCollection(ctx context.Context, regID string) error {
	if err := v.repo.DeleteByRegID(regID); err != nil {
		return models.NewIndexError(regID, err)
	}
	return nil
}

// Close 关闭向量仓库
func (v *VectorIndex) Close() error {
	return v.repo.Close()
}

func init() {
	RegisterBackend("vector", NewVectorIndex)
}
