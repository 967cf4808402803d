package pagestore

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/reg-retrieval-system/internal/models"
	"github.com/fyerfyer/reg-retrieval-system/internal/tableregistry"
)

// Store 页面存储接口
// 每个(reg_id, page_num)对应一个可寻址的制品，无需二级索引即可O(1)取页；
// 章节结构与表格注册表作为独立制品随集合一起存储
type Store interface {
	// SavePage 持久化单个页面，按页原子写入
	SavePage(ctx context.Context, page *models.PageDocument) error

	// LoadPage 加载指定页面
	// 集合不存在返回RegulationNotFound，页面不存在返回PageNotFound
	LoadPage(ctx context.Context, regID string, pageNum int) (*models.PageDocument, error)

	// LoadPageRange 加载页码区间并合并为单段Markdown，跨页表格在原位拼接
	// start>end或start<1返回InvalidPageRange；区间内个别缺页跳过并记录日志
	LoadPageRange(ctx context.Context, regID string, start, end int) (*models.MergedContent, error)

	// ListCollections 列出所有已存储的集合ID
	ListCollections(ctx context.Context) ([]string, error)

	// ListPages 列出集合内已存储的页码（升序）
	ListPages(ctx context.Context, regID string) ([]int, error)

	// DeleteCollection 删除整个集合及其派生制品
	DeleteCollection(ctx context.Context, regID string) error

	// SaveStructure 持久化章节结构制品
	SaveStructure(ctx context.Context, structure *models.DocumentStructure) error

	// LoadStructure 加载章节结构制品
	LoadStructure(ctx context.Context, regID string) (*models.DocumentStructure, error)

	// SaveTableRegistry 持久化表格注册表制品
	SaveTableRegistry(ctx context.Context, registry *tableregistry.Registry) error

	// LoadTableRegistry 加载表格注册表制品
	LoadTableRegistry(ctx context.Context, regID string) (*tableregistry.Registry, error)
}

// Config 页面存储配置
type Config struct {
	Type      string // 存储类型：local 或 minio
	Path      string // 本地存储根目录
	Bucket    string // MinIO桶名称
	Endpoint  string // MinIO端点
	AccessKey string
	SecretKey string
	UseSSL    bool
	// MaxPageSpan 单次范围加载的最大页数，超出部分被截断
	MaxPageSpan int
	Logger      *logrus.Logger
}

// Factory 页面存储工厂函数类型
type Factory func(config Config) (Store, error)

// 注册的存储实现
var storeFactories = make(map[string]Factory)

// RegisterStore 注册页面存储实现
func RegisterStore(name string, factory Factory) {
	storeFactories[name] = factory
}

// NewStore 根据配置创建页面存储实例
func NewStore(config Config) (Store, error) {
	factory, ok := storeFactories[config.Type]
	if !ok {
		return nil, fmt.Errorf("page store type not registered: %s", config.Type)
	}
	return factory(config)
}

// DefaultMaxPageSpan 范围加载的默认页数上限
const DefaultMaxPageSpan = 10
