package search

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyerfyer/reg-retrieval-system/internal/index"
	"github.com/fyerfyer/reg-retrieval-system/internal/models"
)

// fakeIndex 返回固定结果的索引后端，用于融合逻辑测试
type fakeIndex struct {
	name    string
	results []*models.SearchResult
	err     error
}

func (f *fakeIndex) IndexBlock(ctx context.Context, regID string, pageNum int, block *models.ContentBlock, bctx index.BlockContext) error {
	return nil
}

func (f *fakeIndex) Search(ctx context.Context, query string, opts index.SearchOptions) ([]*models.SearchResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

func (f *fakeIndex) DeleteCollection(ctx context.Context, regID string) error { return nil }

func (f *fakeIndex) Name() string { return f.name }

func (f *fakeIndex) Close() error { return nil }

func result(regID string, pageNum int, blockID string) *models.SearchResult {
	return &models.SearchResult{RegID: regID, PageNum: pageNum, BlockID: blockID, Score: 1.0}
}

// TestFuseRRF 测试倒数排名融合的得分计算与排序
func TestFuseRRF(t *testing.T) {
	t.Run("result in both lists outranks single-list result", func(t *testing.T) {
		// b1同时出现在两个列表，b2和b3各只出现一次
		keyword := []*models.SearchResult{
			result("reg", 1, "b1"),
			result("reg", 2, "b2"),
		}
		vector := []*models.SearchResult{
			result("reg", 1, "b1"),
			result("reg", 3, "b3"),
		}

		fused := FuseRRF([]RankedList{
			{Weight: 0.4, Results: keyword},
			{Weight: 0.6, Results: vector},
		}, 60, 10)

		require.Len(t, fused, 3)
		assert.Equal(t, "b1", fused[0].BlockID, "双后端命中的结果应该排在最前")

		expected := 0.4/61.0 + 0.6/61.0
		assert.InDelta(t, expected, fused[0].Score, 1e-9, "融合得分为各列表贡献之和")
	})

	t.Run("deterministic tie break", func(t *testing.T) {
		// 两条结果只出现在同一个列表的同一权重下不可能同分，
		// 构造两个列表同排名使得分相同
		listA := []*models.SearchResult{result("reg", 5, "b-z")}
		listB := []*models.SearchResult{result("reg", 2, "b-a")}

		fused := FuseRRF([]RankedList{
			{Weight: 0.5, Results: listA},
			{Weight: 0.5, Results: listB},
		}, 60, 10)

		require.Len(t, fused, 2)
		assert.Equal(t, "b-a", fused[0].BlockID, "同分时按页码升序排列")
		assert.Equal(t, "b-z", fused[1].BlockID)
	})

	t.Run("same page tie break by block id", func(t *testing.T) {
		listA := []*models.SearchResult{result("reg", 1, "b-z")}
		listB := []*models.SearchResult{result("reg", 1, "b-a")}

		fused := FuseRRF([]RankedList{
			{Weight: 0.5, Results: listA},
			{Weight: 0.5, Results: listB},
		}, 60, 10)

		assert.Equal(t, "b-a", fused[0].BlockID, "同分同页时按块ID字典序")
	})

	t.Run("limit truncates fused results", func(t *testing.T) {
		var results []*models.SearchResult
		for i := 1; i <= 20; i++ {
			results = append(results, result("reg", i, "b"))
		}
		fused := FuseRRF([]RankedList{{Weight: 1.0, Results: results}}, 60, 5)
		assert.Len(t, fused, 5)
	})

	t.Run("repeated fusion is deterministic", func(t *testing.T) {
		keyword := []*models.SearchResult{
			result("reg", 1, "b1"), result("reg", 2, "b2"), result("reg", 3, "b3"),
		}
		vector := []*models.SearchResult{
			result("reg", 3, "b3"), result("reg", 4, "b4"), result("reg", 1, "b1"),
		}
		lists := []RankedList{
			{Weight: 0.4, Results: keyword},
			{Weight: 0.6, Results: vector},
		}

		first := FuseRRF(lists, 60, 10)
		for i := 0; i < 10; i++ {
			again := FuseRRF(lists, 60, 10)
			require.Equal(t, len(first), len(again))
			for j := range first {
				assert.Equal(t, first[j].BlockID, again[j].BlockID, "相同输入应该得到完全一致的顺序")
				assert.Equal(t, first[j].Score, again[j].Score)
			}
		}
	})
}

// TestHybridSearch 测试混合检索的后端协同与降级
func TestHybridSearch(t *testing.T) {
	ctx := context.Background()

	t.Run("merges both backends", func(t *testing.T) {
		keyword := &fakeIndex{name: "keyword", results: []*models.SearchResult{
			result("reg", 1, "b1"), result("reg", 2, "b2"),
		}}
		vector := &fakeIndex{name: "vector", results: []*models.SearchResult{
			result("reg", 1, "b1"), result("reg", 3, "b3"),
		}}

		searcher := NewHybridSearcher(keyword, vector, DefaultFusionConfig(), nil)
		results, err := searcher.Search(ctx, "防火间距", index.SearchOptions{RegID: "reg"})
		require.NoError(t, err)

		assert.Len(t, results, 3)
		assert.Equal(t, "b1", results[0].BlockID)
	})

	t.Run("degrades when one backend fails", func(t *testing.T) {
		keyword := &fakeIndex{name: "keyword", err: errors.New("index corrupted")}
		vector := &fakeIndex{name: "vector", results: []*models.SearchResult{
			result("reg", 3, "b3"),
		}}

		searcher := NewHybridSearcher(keyword, vector, DefaultFusionConfig(), nil)
		results, err := searcher.Search(ctx, "防火间距", index.SearchOptions{RegID: "reg"})
		require.NoError(t, err, "单个后端失败时应该降级而不是报错")

		require.Len(t, results, 1)
		assert.Equal(t, "b3", results[0].BlockID)
	})

	t.Run("fails when both backends fail", func(t *testing.T) {
		keyword := &fakeIndex{name: "keyword", err: errors.New("keyword down")}
		vector := &fakeIndex{name: "vector", err: errors.New("vector down")}

		searcher := NewHybridSearcher(keyword, vector, DefaultFusionConfig(), nil)
		_, err := searcher.Search(ctx, "防火间距", index.SearchOptions{RegID: "reg"})
		require.Error(t, err, "两个后端都失败才返回错误")
		assert.True(t, models.IsCode(err, models.ErrCodeIndex))
	})
}
