package index

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/reg-retrieval-system/internal/embedding"
	"github.com/fyerfyer/reg-retrieval-system/internal/models"
	"github.com/fyerfyer/reg-retrieval-system/internal/vectordb"
)

// DefaultSnippetLength 检索结果摘要的默认截断长度（按rune计）
const DefaultSnippetLength = 200

// BlockContext 内容块入库时随附的结构化上下文
// 由摄取方从章节树和表格注册表中提取
type BlockContext struct {
	ChapterPath   []string // 章节标题路径
	SectionNumber string   // 所属章节编号
	TableID       string   // 所属逻辑表格ID（仅表格块）
}

// SearchOptions 检索选项
type SearchOptions struct {
	RegID         string   // 限定法规集合
	ChapterScope  string   // 限定章节（匹配章节路径中的标题）
	BlockTypes    []string // 限定内容块类型
	SectionNumber string   // 限定章节编号
	Limit         int      // 最大返回条数
}

// Index 索引后端接口
// 关键词后端和向量后端实现同一契约，调用方无须感知差异
type Index interface {
	// IndexBlock 将一个内容块写入索引
	IndexBlock(ctx context.Context, regID string, pageNum int, block *models.ContentBlock, bctx BlockContext) error

	// Search 执行检索，按后端内部得分降序返回
	Search(ctx context.Context, query string, opts SearchOptions) ([]*models.SearchResult, error)

	// DeleteCollection 删除一个法规集合的全部索引条目
	DeleteCollection(ctx context.Context, regID string) error

	// Name 返回后端名称
	Name() string

	// Close 关闭后端
	Close() error
}

// Config 索引后端配置
// 关键词后端使用Path；向量后端使用Embedder、VectorRepo和MinEmbedLength
type Config struct {
	Path           string              // 关键词索引的存储路径
	MinEmbedLength int                 // 低于该长度（rune）的文本跳过向量化
	SnippetLength  int                 // 摘要截断长度
	Embedder       embedding.Client    // 注入的嵌入能力
	VectorRepo     vectordb.Repository // 注入的向量仓库
	Logger         *logrus.Logger
}

// Factory 索引后端工厂函数类型
type Factory func(config Config) (Index, error)

// 注册的索引后端实现
var backendRegistry = make(map[string]Factory)

// RegisterBackend 注册索引后端工厂函数
func RegisterBackend(name string, factory Factory) {
	backendRegistry[name] = factory
}

// NewIndex 根据名称创建索引后端
func NewIndex(name string, config Config) (Index, error) {
	factory, ok := backendRegistry[name]
	if !ok {
		return nil, fmt.Errorf("index backend not registered: %s", name)
	}
	return factory(config)
}

// truncateSnippet 截断内容生成摘要
func truncateSnippet(content string, limit int) string {
	if limit <= 0 {
		limit = DefaultSnippetLength
	}
	if utf8.RuneCountInString(content) <= limit {
		return content
	}
	runes := []rune(content)
	return string(runes[:limit]) + "..."
}

// matchesBlockTypes 判断块类型是否在过滤列表中
func matchesBlockTypes(blockType string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, t := range allowed {
		if t == blockType {
			return true
		}
	}
	return false
}
