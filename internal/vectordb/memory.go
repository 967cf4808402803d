package vectordb

import (
	"fmt"
	"sync"
	"time"
)

// MemoryRepository 内存向量仓库实现
// 用于开发和测试环境的简单内存存储
type MemoryRepository struct {
	mu          sync.RWMutex
	dimension   int
	distType    DistanceType
	documents   map[string]Document // ID到内容块的映射
	regToDocIDs map[string][]string // 法规ID到内容块ID的映射
}

// NewMemoryRepository 创建内存向量仓库
func NewMemoryRepository(config Config) (Repository, error) {
	if config.Dimension <= 0 {
		return nil, fmt.Errorf("vector dimension must be positive")
	}

	distType := config.DistanceType
	if distType != Cosine && distType != DotProduct && distType != Euclidean {
		distType = Cosine // 默认使用余弦距离
	}

	return &MemoryRepository{
		dimension:   config.Dimension,
		distType:    distType,
		documents:   make(map[string]Document),
		regToDocIDs: make(map[string][]string),
	}, nil
}

// Add 添加单个内容块
func (r *MemoryRepository) Add(doc Document) error {
	if doc.ID == "" {
		return ErrInvalidID
	}
	if err := ValidateVector(doc.Vector, r.dimension); err != nil {
		return err
	}

	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}
	if doc.Metadata == nil {
		doc.Metadata = make(map[string]interface{})
	}

	// 余弦距离下先做归一化
	if r.distType == Cosine {
		doc.Vector = normalizeVector(doc.Vector)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// 同ID重复写入视为覆盖，反向索引不追加
	if _, exists := r.documents[doc.ID]; !exists {
		r.regToDocIDs[doc.RegID] = append(r.regToDocIDs[doc.RegID], doc.ID)
	}
	r.documents[doc.ID] = doc

	return nil
}

// AddBatch 批量添加内容块
func (r *MemoryRepository) AddBatch(docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	// 单次加锁完成批处理
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range docs {
		doc := &docs[i]

		if doc.ID == "" {
			return ErrInvalidID
		}
		if err := ValidateVector(doc.Vector, r.dimension); err != nil {
			return fmt.Errorf("invalid vector for document %s: %v", doc.ID, err)
		}

		if doc.CreatedAt.IsZero() {
			doc.CreatedAt = time.Now()
		}
		if doc.Metadata == nil {
			doc.Metadata = make(map[string]interface{})
		}

		if r.distType == Cosine {
			doc.Vector = normalizeVector(doc.Vector)
		}

		if _, exists := r.documents[doc.ID]; !exists {
			r.regToDocIDs[doc.RegID] = append(r.regToDocIDs[doc.RegID], doc.ID)
		}
		r.documents[doc.ID] = *doc
	}

	return nil
}

// Get 获取单个内容块
func (r *MemoryRepository) Get(id string) (Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	doc, exists := r.documents[id]
	if !exists {
		return Document{}, ErrDocumentNotFound
	}

	return doc, nil
}

// Delete 删除单个内容块
func (r *MemoryRepository) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, exists := r.documents[id]
	if !exists {
		return ErrDocumentNotFound
	}

	delete(r.documents, id)

	if docIDs, ok := r.regToDocIDs[doc.RegID]; ok {
		updatedIDs := make([]string, 0, len(docIDs)-1)
		for _, docID := range docIDs {
			if docID != id {
				updatedIDs = append(updatedIDs, docID)
			}
		}

		if len(updatedIDs) == 0 {
			delete(r.regToDocIDs, doc.RegID)
		} else {
			r.regToDocIDs[doc.RegID] = updatedIDs
		}
	}

	return nil
}

// DeleteByRegID 删除指定法规的所有内容块
func (r *MemoryRepository) DeleteByRegID(regID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	docIDs, exists := r.regToDocIDs[regID]
	if !exists {
		return nil
	}

	for _, id := range docIDs {
		delete(r.documents, id)
	}
	delete(r.regToDocIDs, regID)

	return nil
}

// Search 相似度搜索
func (r *MemoryRepository) Search(vector []float32, filter SearchFilter) ([]SearchResult, error) {
	if err := ValidateVector(vector, r.dimension); err != nil {
		return nil, err
	}

	if r.distType == Cosine {
		vector = normalizeVector(vector)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	// 指定法规时用索引直接取相关内容块，避免全表扫描
	var candidates []Document
	if len(filter.RegIDs) > 0 {
		for _, regID := range filter.RegIDs {
			for _, docID := range r.regToDocIDs[regID] {
				if doc, ok := r.documents[docID]; ok && matchMetadata(doc.Metadata, filter.Metadata) {
					candidates = append(candidates, doc)
				}
			}
		}
	} else {
		candidates = make([]Document, 0, len(r.documents))
		for _, doc := range r.documents {
			if matchMetadata(doc.Metadata, filter.Metadata) {
				candidates = append(candidates, doc)
			}
		}
	}

	if len(candidates) == 0 {
		return []SearchResult{}, nil
	}

	results := make([]SearchResult, 0, len(candidates))
	for _, doc := range candidates {
		dist, err := ComputeDistance(vector, doc.Vector, r.distType)
		if err != nil {
			return nil, fmt.Errorf("error computing distance: %v", err)
		}

		score := DistanceToScore(dist, r.distType)
		if score >= filter.MinScore {
			results = append(results, SearchResult{
				Document: doc,
				Score:    score,
				Distance: dist,
			})
		}
	}

	SortSearchResults(results)

	if filter.MaxResults > 0 && len(results) > filter.MaxResults {
		results = results[:filter.MaxResults]
	}

	return results, nil
}

// Count 获取内容块总数
func (r *MemoryRepository) Count() (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.documents), nil
}

// GetDimension 返回向量维数
func (r *MemoryRepository) GetDimension() int {
	return r.dimension
}

// Close 关闭数据库连接
// 对于内存实现这是一个空操作
func (r *MemoryRepository) Close() error {
	return nil
}

func init() {
	RegisterRepository("memory", NewMemoryRepository)
}
