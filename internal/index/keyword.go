package index

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/reg-retrieval-system/internal/models"
)

// blockEntry 关键词索引中的一条内容块记录
type blockEntry struct {
	RegID         string `json:"reg_id"`
	PageNum       int    `json:"page_num"`
	BlockID       string `json:"block_id"`
	BlockType     string `json:"block_type"`
	Content       string `json:"content"`
	ChapterPath   string `json:"chapter_path"` // 用"/"连接的章节标题路径
	SectionNumber string `json:"section_number"`
	TableID       string `json:"table_id"`
}

// KeywordIndex 基于Bleve的关键词索引后端
type KeywordIndex struct {
	index         bleve.Index
	snippetLength int
	logger        *logrus.Logger
}

// NewKeywordIndex 创建或打开关键词索引
// 路径已存在时复用现有索引；修改字段映射后需删除索引目录重建
func NewKeywordIndex(config Config) (Index, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("keyword index path is required")
	}
	log := config.Logger
	if log == nil {
		log = logrus.New()
	}

	im := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	// 标准分析器只做小写化和分词，不做词干还原
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("content", textFieldMapping)
	docMapping.AddFieldMappingsAt("chapter_path", textFieldMapping)

	keywordFieldMapping := bleve.NewKeywordFieldMapping()
	docMapping.AddFieldMappingsAt("reg_id", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("block_id", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("block_type", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("section_number", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("table_id", keywordFieldMapping)

	im.AddDocumentMapping("block", docMapping)
	im.DefaultType = "block"
	im.DefaultMapping = docMapping

	var idx bleve.Index
	var err error
	if _, statErr := os.Stat(config.Path); statErr == nil {
		idx, err = bleve.Open(config.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open keyword index: %w", err)
		}
	} else {
		idx, err = bleve.New(config.Path, im)
		if err != nil {
			return nil, fmt.Errorf("failed to create keyword index: %w", err)
		}
	}

	return &KeywordIndex{
		index:         idx,
		snippetLength: config.SnippetLength,
		logger:        log,
	}, nil
}

// Name 返回后端名称
func (k *KeywordIndex) Name() string {
	return "keyword"
}

// entryID 生成索引条目ID
func entryID(regID string, pageNum int, blockID string) string {
	return fmt.Sprintf("%s:%d:%s", regID, pageNum, blockID)
}

// IndexBlock 将一个内容块写入关键词索引
func (k *KeywordIndex) IndexBlock(ctx context.Context, regID string, pageNum int, block *models.ContentBlock, bctx BlockContext) error {
	if block.Content == "" {
		return nil
	}

	entry := blockEntry{
		RegID:         regID,
		PageNum:       pageNum,
		BlockID:       block.BlockID,
		BlockType:     string(block.BlockType),
		Content:       block.Content,
		ChapterPath:   strings.Join(bctx.ChapterPath, "/"),
		SectionNumber: bctx.SectionNumber,
		TableID:       bctx.TableID,
	}

	if err := k.index.Index(entryID(regID, pageNum, block.BlockID), entry); err != nil {
		return models.NewIndexError(regID, err)
	}
	return nil
}

// Search 执行关键词检索
func (k *KeywordIndex) Search(ctx context.Context, query string, opts SearchOptions) ([]*models.SearchResult, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}

	conjuncts := []blevequery.Query{}

	mq := bleve.NewMatchQuery(query)
	mq.SetField("content")
	conjuncts = append(conjuncts, mq)

	if opts.RegID != "" {
		tq := bleve.NewTermQuery(opts.RegID)
		tq.SetField("reg_id")
		conjuncts = append(conjuncts, tq)
	}
	if opts.SectionNumber != "" {
		tq := bleve.NewTermQuery(opts.SectionNumber)
		tq.SetField("section_number")
		conjuncts = append(conjuncts, tq)
	}
	if opts.ChapterScope != "" {
		cq := bleve.NewMatchQuery(opts.ChapterScope)
		cq.SetField("chapter_path")
		conjuncts = append(conjuncts, cq)
	}
	if len(opts.BlockTypes) > 0 {
		typeQueries := make([]blevequery.Query, 0, len(opts.BlockTypes))
		for _, bt := range opts.BlockTypes {
			tq := bleve.NewTermQuery(bt)
			tq.SetField("block_type")
			typeQueries = append(typeQueries, tq)
		}
		conjuncts = append(conjuncts, bleve.NewDisjunctionQuery(typeQueries...))
	}

	var q blevequery.Query
	if len(conjuncts) == 1 {
		q = conjuncts[0]
	} else {
		q = bleve.NewConjunctionQuery(conjuncts...)
	}

	req := bleve.NewSearchRequest(q)
	req.Size = limit
	req.Fields = []string{"*"}

	res, err := k.index.Search(req)
	if err != nil {
		return nil, models.NewIndexError(opts.RegID, err)
	}

	results := make([]*models.SearchResult, 0, len(res.Hits))
	for _, hit := range res.Hits {
		result := &models.SearchResult{Score: hit.Score}
		if v, ok := hit.Fields["reg_id"].(string); ok {
			result.RegID = v
		}
		if v, ok := hit.Fields["page_num"].(float64); ok {
			result.PageNum = int(v)
		}
		if v, ok := hit.Fields["block_id"].(string); ok {
			result.BlockID = v
		}
		if v, ok := hit.Fields["content"].(string); ok {
			result.Snippet = truncateSnippet(v, k.snippetLength)
		}
		if v, ok := hit.Fields["chapter_path"].(string); ok && v != "" {
			result.ChapterPath = strings.Split(v, "/")
		}
		results = append(results, result)
	}
	return results, nil
}

// DeleteCollection 删除一个法规集合的全部索引条目
func (k *KeywordIndex) DeleteCollection(ctx context.Context, regID string) error {
	tq := bleve.NewTermQuery(regID)
	tq.SetField("reg_id")

	// 分批取出并删除，避免一次性加载超大集合
	for {
		req := bleve.NewSearchRequest(tq)
		req.Size = 1000
		res, err := k.index.Search(req)
		if err != nil {
			return models.NewIndexError(regID, err)
		}
		if len(res.Hits) == 0 {
			return nil
		}

		batch := k.index.NewBatch()
		for _, hit := range res.Hits {
			batch.Delete(hit.ID)
		}
		if err := k.index.Batch(batch); err != nil {
			return models.NewIndexError(regID, err)
		}
	}
}

// Close 关闭关键词索引
func (k *KeywordIndex) Close() error {
	return k.index.Close()
}

func init() {
	RegisterBackend("keyword", NewKeywordIndex)
}
