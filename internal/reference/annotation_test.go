package reference

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyerfyer/reg-retrieval-system/internal/models"
	"github.com/fyerfyer/reg-retrieval-system/internal/pagestore"
)

// TestNormalizeAnnotationID 测试注释标识的规范化
func TestNormalizeAnnotationID(t *testing.T) {
	t.Run("equivalent numeral forms", func(t *testing.T) {
		// 阿拉伯数字、带圈数字、中文数字指向同一个注释
		assert.Equal(t, "注1", NormalizeAnnotationID("注1"))
		assert.Equal(t, "注1", NormalizeAnnotationID("注①"))
		assert.Equal(t, "注1", NormalizeAnnotationID("注一"))
	})

	t.Run("circled numbers", func(t *testing.T) {
		assert.Equal(t, "注12", NormalizeAnnotationID("注⑫"))
		assert.Equal(t, "注20", NormalizeAnnotationID("注⑳"))
		assert.Equal(t, "注21", NormalizeAnnotationID("注㉑"))
		assert.Equal(t, "注35", NormalizeAnnotationID("注㉟"))
	})

	t.Run("cjk numerals with positional ten", func(t *testing.T) {
		assert.Equal(t, "注10", NormalizeAnnotationID("注十"))
		assert.Equal(t, "注12", NormalizeAnnotationID("注十二"))
		assert.Equal(t, "注21", NormalizeAnnotationID("注二十一"))
	})

	t.Run("fullwidth digits", func(t *testing.T) {
		assert.Equal(t, "注15", NormalizeAnnotationID("注１５"))
	})

	t.Run("latin letters uppercased", func(t *testing.T) {
		assert.Equal(t, "方案A", NormalizeAnnotationID("方案a"))
		assert.Equal(t, "方案A", NormalizeAnnotationID("方案A"))
	})

	t.Run("whitespace and punctuation stripped", func(t *testing.T) {
		assert.Equal(t, "注3", NormalizeAnnotationID(" 注 3 "))
		assert.Equal(t, "注3", NormalizeAnnotationID("注3."))
		assert.Equal(t, "注3", NormalizeAnnotationID("注３："))
	})

	t.Run("idempotent", func(t *testing.T) {
		inputs := []string{"注①", "注十二", "方案a", " 注 3 ."}
		for _, in := range inputs {
			once := NormalizeAnnotationID(in)
			twice := NormalizeAnnotationID(once)
			assert.Equal(t, once, twice, "规范化应该幂等，输入: %s", in)
		}
	})

	t.Run("empty input", func(t *testing.T) {
		assert.Equal(t, "", NormalizeAnnotationID(""))
		assert.Equal(t, "", NormalizeAnnotationID("   "))
	})
}

func annotationStore(t *testing.T) pagestore.Store {
	t.Helper()
	store, err := pagestore.NewLocalStore(pagestore.Config{Path: t.TempDir()})
	require.NoError(t, err)
	return store
}

// TestAnnotationLookup 测试注释查找
func TestAnnotationLookup(t *testing.T) {
	ctx := context.Background()
	store := annotationStore(t)

	pages := []*models.PageDocument{
		{
			RegID: "reg-001", PageNum: 1,
			ContentBlocks: []models.ContentBlock{
				{BlockID: "b1", BlockType: models.BlockTypeText, Content: "正文。"},
			},
		},
		{
			RegID: "reg-001", PageNum: 2,
			ContentBlocks: []models.ContentBlock{
				{BlockID: "b2", BlockType: models.BlockTypeText, Content: "正文。"},
			},
			Annotations: []models.Annotation{
				{AnnotationID: "注①", Content: "本表指标不含地下室。"},
			},
		},
	}
	for _, p := range pages {
		require.NoError(t, store.SavePage(ctx, p))
	}

	lookup := NewAnnotationLookup(store, nil)

	t.Run("find by equivalent form", func(t *testing.T) {
		// 存储的是"注①"，用"注一"查找
		ann, err := lookup.Find(ctx, "reg-001", "注一", 0)
		require.NoError(t, err)

		assert.Equal(t, "注1", ann.NormalizedID)
		assert.Equal(t, 2, ann.PageNum, "命中结果应该携带所在页码")
		assert.Contains(t, ann.Content, "地下室")
	})

	t.Run("page hint hits directly", func(t *testing.T) {
		ann, err := lookup.Find(ctx, "reg-001", "注1", 2)
		require.NoError(t, err)
		assert.Equal(t, "注1", ann.NormalizedID)
	})

	t.Run("wrong page hint falls back to full scan", func(t *testing.T) {
		ann, err := lookup.Find(ctx, "reg-001", "注1", 1)
		require.NoError(t, err, "提示页未命中时应该回落到全扫描")
		assert.Equal(t, 2, ann.PageNum)
	})

	t.Run("missing annotation", func(t *testing.T) {
		_, err := lookup.Find(ctx, "reg-001", "注99", 0)
		require.Error(t, err)
		assert.True(t, models.IsCode(err, models.ErrCodeAnnotationNotFound))
	})

	t.Run("missing regulation", func(t *testing.T) {
		_, err := lookup.Find(ctx, "no-such-reg", "注1", 0)
		require.Error(t, err)
		assert.True(t, models.IsCode(err, models.ErrCodeRegulationNotFound))
	})
}
