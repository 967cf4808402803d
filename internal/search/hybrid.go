package search

import (
	"context"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/reg-retrieval-system/internal/index"
	"github.com/fyerfyer/reg-retrieval-system/internal/models"
)

// DefaultRRFConstant RRF衰减常数的参考值
// 削弱头部排名差异的影响
const DefaultRRFConstant = 60

// FusionConfig 融合配置
// 权重不要求和为1，只需保证跨查询可比
type FusionConfig struct {
	KeywordWeight float64 // 关键词后端权重
	VectorWeight  float64 // 向量后端权重
	RRFConstant   int     // RRF衰减常数k
	Limit         int     // 默认返回条数
}

// DefaultFusionConfig 返回默认融合配置
func DefaultFusionConfig() FusionConfig {
	return FusionConfig{
		KeywordWeight: 0.4,
		VectorWeight:  0.6,
		RRFConstant:   DefaultRRFConstant,
		Limit:         10,
	}
}

// RankedList 一个后端返回的有序结果列表及其融合权重
type RankedList struct {
	Weight  float64
	Results []*models.SearchResult
}

// HybridSearcher 混合检索器
// 独立查询两个后端，用倒数排名融合合并为单一排序
type HybridSearcher struct {
	keyword index.Index
	vector  index.Index
	cfg     FusionConfig
	logger  *logrus.Logger
}

// NewHybridSearcher 创建混合检索器
func NewHybridSearcher(keyword, vector index.Index, cfg FusionConfig, log *logrus.Logger) *HybridSearcher {
	if log == nil {
		log = logrus.New()
	}
	if cfg.RRFConstant <= 0 {
		cfg.RRFConstant = DefaultRRFConstant
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 10
	}
	return &HybridSearcher{
		keyword: keyword,
		vector:  vector,
		cfg:     cfg,
		logger:  log,
	}
}

// Search 执行混合检索
// 单个后端失败时降级为另一后端的结果；两个后端都失败才返回错误
func (h *HybridSearcher) Search(ctx context.Context, query string, opts index.SearchOptions) ([]*models.SearchResult, error) {
	if opts.Limit <= 0 {
		opts.Limit = h.cfg.Limit
	}

	var (
		wg         sync.WaitGroup
		kwResults  []*models.SearchResult
		vecResults []*models.SearchResult
		kwErr      error
		vecErr     error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		kwResults, kwErr = h.keyword.Search(ctx, query, opts)
	}()
	go func() {
		defer wg.Done()
		vecResults, vecErr = h.vector.Search(ctx, query, opts)
	}()
	wg.Wait()

	if kwErr != nil && vecErr != nil {
		return nil, models.NewIndexError(opts.RegID, kwErr)
	}
	if kwErr != nil {
		h.logger.WithError(kwErr).Warn("Keyword backend failed, falling back to vector results")
	}
	if vecErr != nil {
		h.logger.WithError(vecErr).Warn("Vector backend failed, falling back to keyword results")
	}

	fused := FuseRRF([]RankedList{
		{Weight: h.cfg.KeywordWeight, Results: kwResults},
		{Weight: h.cfg.VectorWeight, Results: vecResults},
	}, h.cfg.RRFConstant, opts.Limit)

	return fused, nil
}

// FuseRRF 倒数排名融合
// 每个键的融合得分为 Σ weight / (k + rank + 1)，rank在各自列表内从0起算；
// 只出现在一个后端的键仍获得（较小的）融合得分
func FuseRRF(lists []RankedList, k int, limit int) []*models.SearchResult {
	if k <= 0 {
		k = DefaultRRFConstant
	}

	type fusedEntry struct {
		result *models.SearchResult
		score  float64
	}
	scoreMap := make(map[models.ResultKey]*fusedEntry)

	for _, list := range lists {
		for rank, result := range list.Results {
			key := result.Key()
			contribution := list.Weight / float64(k+rank+1)
			if entry, exists := scoreMap[key]; exists {
				entry.score += contribution
			} else {
				scoreMap[key] = &fusedEntry{result: result, score: contribution}
			}
		}
	}

	fused := make([]*models.SearchResult, 0, len(scoreMap))
	for _, entry := range scoreMap {
		// 替换为融合得分，不保留后端内部得分
		r := *entry.result
		r.Score = entry.score
		fused = append(fused, &r)
	}

	// 得分降序，同分按页码升序、块ID字典序，保证结果确定
	sort.Slice(fused, func(i, j int) bool {
		if fused[i].Score != fused[j].Score {
			return fused[i].Score > fused[j].Score
		}
		if fused[i].PageNum != fused[j].PageNum {
			return fused[i].PageNum < fused[j].PageNum
		}
		return fused[i].BlockID < fused[j].BlockID
	})

	if limit > 0 && len(fused) > limit {
		fused = fused[:limit]
	}
	return fused
}
