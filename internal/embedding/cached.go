package embedding

import (
	"context"
	"encoding/json"
	"time"

	"github.com/fyerfyer/reg-retrieval-system/internal/cache"
)

// CachedClient 带缓存的嵌入客户端装饰器
// 只缓存查询向量：文档向量在入库时一次性生成，重复概率低
type CachedClient struct {
	inner Client
	cache cache.Cache
	ttl   time.Duration
}

// NewCachedClient 将嵌入客户端包装为带缓存的客户端
func NewCachedClient(inner Client, c cache.Cache, ttl time.Duration) *CachedClient {
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	return &CachedClient{
		inner: inner,
		cache: c,
		ttl:   ttl,
	}
}

// EmbedQuery 生成查询文本的向量表示，优先从缓存读取
func (c *CachedClient) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	key := cache.VectorKey(c.inner.Name(), text)

	if cached, found, err := c.cache.Get(key); err == nil && found {
		var vector []float32
		if err := json.Unmarshal([]byte(cached), &vector); err == nil {
			return vector, nil
		}
		// 缓存内容损坏时当作未命中，重新生成
	}

	vector, err := c.inner.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(vector); err == nil {
		// 缓存写入失败不影响结果返回
		_ = c.cache.Set(key, string(data), c.ttl)
	}
	return vector, nil
}

// EmbedDocuments 批量生成文档文本的向量表示，不走缓存
func (c *CachedClient) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	return c.inner.EmbedDocuments(ctx, texts)
}

// Name 返回底层模型名称
func (c *CachedClient) Name() string {
	return c.inner.Name()
}

// Dimensions 返回底层模型向量维度
func (c *CachedClient) Dimensions() int {
	return c.inner.Dimensions()
}
