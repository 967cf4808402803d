//go:build cgo

package vectordb

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/DataIntelligenceCrew/go-faiss"
)

// FaissRepository 基于Faiss的向量仓库
// 元数据随索引一起持久化为旁路JSON文件
type FaissRepository struct {
	mu             sync.RWMutex
	index          faiss.Index
	documents      map[string]Document
	regToDocIDs    map[string][]string
	idToPosition   map[string]int
	posToID        map[int]string
	indexPath      string
	metaPath       string
	dimension      int
	distanceType   DistanceType
	saveOnClose    bool
	autoSave       bool
	autoSaveCount  int
	operationCount int
}

// faissMetadata Faiss索引的旁路元数据
type faissMetadata struct {
	Documents      map[string]Document `json:"documents"`
	RegToDocIDs    map[string][]string `json:"reg_to_doc_ids"`
	IDToPosition   map[string]int      `json:"id_to_position"`
	OperationCount int                 `json:"operation_count"`
}

// NewFaissRepository 创建新的Faiss向量仓库
func NewFaissRepository(config Config) (Repository, error) {
	if config.Dimension <= 0 {
		return nil, fmt.Errorf("vector dimension must be positive")
	}

	if config.Path != "" && !config.InMemory {
		if err := os.MkdirAll(filepath.Dir(config.Path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %v", err)
		}
	}

	distType := config.DistanceType
	if distType == "" {
		distType = Cosine
	}

	indexPath := config.Path
	metaPath := ""
	if indexPath != "" {
		metaPath = indexPath + ".meta.json"
	}

	repo := &FaissRepository{
		documents:     make(map[string]Document),
		regToDocIDs:   make(map[string][]string),
		idToPosition:  make(map[string]int),
		posToID:       make(map[int]string),
		indexPath:     indexPath,
		metaPath:      metaPath,
		dimension:     config.Dimension,
		distanceType:  distType,
		saveOnClose:   true,
		autoSave:      true,
		autoSaveCount: 100,
	}

	var index faiss.Index
	var err error

	// 尝试从文件加载已有索引
	if indexPath != "" && !config.InMemory && fileExists(indexPath) {
		index, err = faiss.ReadIndex(indexPath, 0)
		if err != nil {
			if config.CreateIfNotExists {
				index, err = createFaissIndex(config.Dimension, distType)
				if err != nil {
					return nil, fmt.Errorf("failed to create Faiss index: %v", err)
				}
			} else {
				return nil, fmt.Errorf("failed to read index file: %v", err)
			}
		} else {
			if err := repo.loadMetadata(metaPath); err != nil {
				return nil, fmt.Errorf("failed to load index metadata: %v", err)
			}
		}
	} else {
		index, err = createFaissIndex(config.Dimension, distType)
		if err != nil {
			return nil, fmt.Errorf("failed to create Faiss index: %v", err)
		}
	}

	repo.index = index
	return repo, nil
}

// createFaissIndex 创建Faiss索引
func createFaissIndex(dimension int, distType DistanceType) (faiss.Index, error) {
	var metric int
	switch distType {
	case Cosine, DotProduct:
		metric = faiss.MetricInnerProduct
	case Euclidean:
		metric = faiss.MetricL2
	default:
		metric = faiss.MetricL2
	}
	return faiss.NewIndexFlat(dimension, metric)
}

// Add 添加单个内容块
func (r *FaissRepository) Add(doc Document) error {
	if doc.ID == "" {
		return ErrInvalidID
	}
	if err := ValidateVector(doc.Vector, r.dimension); err != nil {
		return err
	}
	if r.distanceType == Cosine {
		doc.Vector = normalizeVector(doc.Vector)
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}
	if doc.Metadata == nil {
		doc.Metadata = make(map[string]interface{})
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	nextPos := int(r.index.Ntotal())
	if err := r.index.Add(doc.Vector); err != nil {
		return fmt.Errorf("failed to add vector to index: %v", err)
	}

	// 同ID重复写入视为覆盖：旧向量位置失效，反向索引不追加
	if oldPos, exists := r.idToPosition[doc.ID]; exists {
		delete(r.posToID, oldPos)
	} else {
		r.regToDocIDs[doc.RegID] = append(r.regToDocIDs[doc.RegID], doc.ID)
	}
	r.documents[doc.ID] = doc
	r.idToPosition[doc.ID] = nextPos
	r.posToID[nextPos] = doc.ID
	r.operationCount++

	if r.autoSave && r.operationCount >= r.autoSaveCount {
		if err := r.saveIndex(); err != nil {
			return fmt.Errorf("auto-save failed: %v", err)
		}
		r.operationCount = 0
	}
	return nil
}

// AddBatch 批量添加内容块
func (r *FaissRepository) AddBatch(docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	for i := range docs {
		if docs[i].ID == "" {
			return ErrInvalidID
		}
		if err := ValidateVector(docs[i].Vector, r.dimension); err != nil {
			return fmt.Errorf("invalid vector for document %s: %v", docs[i].ID, err)
		}
		if r.distanceType == Cosine {
			docs[i].Vector = normalizeVector(docs[i].Vector)
		}
		if docs[i].CreatedAt.IsZero() {
			docs[i].CreatedAt = time.Now()
		}
		if docs[i].Metadata == nil {
			docs[i].Metadata = make(map[string]interface{})
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	startPos := int(r.index.Ntotal())
	for _, doc := range docs {
		if err := r.index.Add(doc.Vector); err != nil {
			return fmt.Errorf("failed to add vector to index: %v", err)
		}
	}

	for i, doc := range docs {
		position := startPos + i
		if oldPos, exists := r.idToPosition[doc.ID]; exists {
			delete(r.posToID, oldPos)
		} else {
			r.regToDocIDs[doc.RegID] = append(r.regToDocIDs[doc.RegID], doc.ID)
		}
		r.documents[doc.ID] = doc
		r.idToPosition[doc.ID] = position
		r.posToID[position] = doc.ID
	}
	r.operationCount += len(docs)
	if r.autoSave && r.operationCount >= r.autoSaveCount {
		if err := r.saveIndex(); err != nil {
			return fmt.Errorf("auto-save failed: %v", err)
		}
		r.operationCount = 0
	}
	return nil
}

// Get 获取单个内容块
func (r *FaissRepository) Get(id string) (Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, exists := r.documents[id]
	if !exists {
		return Document{}, ErrDocumentNotFound
	}
	return doc, nil
}

// Delete 删除单个内容块
// 向量留在Faiss索引中，但查询时已无对应元数据会被跳过
func (r *FaissRepository) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, exists := r.documents[id]
	if !exists {
		return ErrDocumentNotFound
	}
	delete(r.documents, id)
	if pos, ok := r.idToPosition[id]; ok {
		delete(r.posToID, pos)
	}
	delete(r.idToPosition, id)
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
	r.operationCount++
	return nil
}

// DeleteByRegID 删除指定法规的所有内容块
func (r *FaissRepository) DeleteByRegID(regID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	docIDs, exists := r.regToDocIDs[regID]
	if !exists {
		return nil
	}
	for _, id := range docIDs {
		delete(r.documents, id)
		if pos, ok := r.idToPosition[id]; ok {
			delete(r.posToID, pos)
		}
		delete(r.idToPosition, id)
	}
	delete(r.regToDocIDs, regID)
	r.operationCount += len(docIDs)
	return nil
}

// Search 相似度搜索
func (r *FaissRepository) Search(vector []float32, filter SearchFilter) ([]SearchResult, error) {
	if err := ValidateVector(vector, r.dimension); err != nil {
		return nil, err
	}
	if r.distanceType == Cosine {
		vector = normalizeVector(vector)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.documents) == 0 {
		return []SearchResult{}, nil
	}

	k := filter.MaxResults
	if k <= 0 {
		k = 10
	}
	// 已删除向量和过滤条件会减少命中，多取一倍作候选
	queryLimit := k * 2
	total := int(r.index.Ntotal())
	if queryLimit > total {
		queryLimit = total
	}
	if queryLimit == 0 {
		return []SearchResult{}, nil
	}

	distances, indices, err := r.index.Search(vector, int64(queryLimit))
	if err != nil {
		return nil, fmt.Errorf("failed to search index: %v", err)
	}

	regIDFilter := make(map[string]bool)
	for _, id := range filter.RegIDs {
		regIDFilter[id] = true
	}

	var results []SearchResult
	for i := 0; i < len(indices); i++ {
		idx := indices[i]
		if idx < 0 {
			continue
		}
		docID, ok := r.posToID[int(idx)]
		if !ok {
			continue
		}
		doc, exists := r.documents[docID]
		if !exists {
			continue
		}
		if len(regIDFilter) > 0 && !regIDFilter[doc.RegID] {
			continue
		}
		if !matchMetadata(doc.Metadata, filter.Metadata) {
			continue
		}
		dist := distances[i]
		score := DistanceToScore(dist, r.distanceType)
		if score < filter.MinScore {
			continue
		}
		results = append(results, SearchResult{
			Document: doc,
			Score:    score,
			Distance: dist,
		})
		if len(results) >= k {
			break
		}
	}

	SortSearchResults(results)
	return results, nil
}

// Count 获取内容块总数
func (r *FaissRepository) Count() (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.documents), nil
}

// GetDimension 返回向量维数
func (r *FaissRepository) GetDimension() int {
	return r.dimension
}

// Close 关闭仓库
func (r *FaissRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveOnClose && r.indexPath != "" {
		if err := r.saveIndex(); err != nil {
			return fmt.Errorf("failed to save index on close: %v", err)
		}
	}
	return nil
}

// saveIndex 保存索引和元数据到文件
func (r *FaissRepository) saveIndex() error {
	if r.indexPath == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(r.indexPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %v", err)
	}
	if err := faiss.WriteIndex(r.index, r.indexPath); err != nil {
		return fmt.Errorf("failed to write index to file: %v", err)
	}
	return r.saveMetadata()
}

// saveMetadata 保存元数据到旁路文件
func (r *FaissRepository) saveMetadata() error {
	if r.metaPath == "" {
		return nil
	}
	metadata := faissMetadata{
		Documents:      r.documents,
		RegToDocIDs:    r.regToDocIDs,
		IDToPosition:   r.idToPosition,
		OperationCount: r.operationCount,
	}
	data, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %v", err)
	}
	if err := os.WriteFile(r.metaPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write metadata file: %v", err)
	}
	return nil
}

// loadMetadata 从旁路文件加载元数据
func (r *FaissRepository) loadMetadata(path string) error {
	if path == "" || !fileExists(path) {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read metadata file: %v", err)
	}
	var metadata faissMetadata
	if err := json.Unmarshal(data, &metadata); err != nil {
		return fmt.Errorf("failed to unmarshal metadata: %v", err)
	}
	r.documents = metadata.Documents
	r.regToDocIDs = metadata.RegToDocIDs
	r.idToPosition = metadata.IDToPosition
	r.operationCount = metadata.OperationCount
	r.posToID = make(map[int]string, len(metadata.IDToPosition))
	for id, pos := range metadata.IDToPosition {
		r.posToID[pos] = id
	}
	return nil
}

// fileExists 检查文件是否存在
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}

func init() {
	RegisterRepository("faiss", NewFaissRepository)
}
