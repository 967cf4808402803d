package tableregistry

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyerfyer/reg-retrieval-system/internal/models"
)

func tablePage(regID string, pageNum int, fromPrev, toNext bool, blocks ...models.ContentBlock) *models.PageDocument {
	return &models.PageDocument{
		RegID:             regID,
		PageNum:           pageNum,
		ContentBlocks:     blocks,
		ContinuesFromPrev: fromPrev,
		ContinuesToNext:   toNext,
	}
}

func table(id, markdown string, truncated bool, caption string) models.ContentBlock {
	return models.ContentBlock{
		BlockID:   id,
		BlockType: models.BlockTypeTable,
		Content:   markdown,
		TableMeta: &models.TableMeta{IsTruncated: truncated, Caption: caption},
	}
}

// TestBuildCrossPageTable 测试跨页表格的识别与拼接
func TestBuildCrossPageTable(t *testing.T) {
	pages := []*models.PageDocument{
		tablePage("reg-001", 1, false, true,
			table("tab-1", "| 项目 | 指标 |\n|---|---|\n| 甲 | 1 |", true, "表6-2"),
		),
		tablePage("reg-001", 2, true, false,
			table("tab-2", "| 项目 | 指标 |\n|---|---|\n| 乙 | 2 |", false, ""),
		),
	}

	registry := Build("reg-001", pages, nil)

	require.Len(t, registry.Tables, 1, "两个片段应该合并为一张逻辑表格")
	lt := registry.Tables["tab-1"]
	require.NotNil(t, lt)
	assert.True(t, lt.IsCrossPage())
	assert.Len(t, lt.Segments, 2)
	assert.Equal(t, "表6-2", lt.Caption)

	full := lt.FullMarkdown()
	t.Logf("拼接结果:\n%s", full)
	assert.Equal(t, 1, strings.Count(full, "| 项目 | 指标 |"), "拼接后表头只保留一份")
	assert.Contains(t, full, "| 甲 | 1 |")
	assert.Contains(t, full, "| 乙 | 2 |")

	// 两个块ID都能回查到主表
	master, ok := registry.MasterOf("tab-2")
	require.True(t, ok)
	assert.Equal(t, "tab-1", master)
	assert.Equal(t, []string{"tab-1"}, registry.PageToTables[1])
	assert.Equal(t, []string{"tab-1"}, registry.PageToTables[2])
}

// TestBuildBrokenChain 测试延续标记断链时各段独立成表
func TestBuildBrokenChain(t *testing.T) {
	pages := []*models.PageDocument{
		tablePage("reg-002", 1, false, true,
			table("tab-1", "| A |\n|---|\n| 1 |", true, ""),
		),
		// 下一页没有承接标记，链条中断
		tablePage("reg-002", 2, false, false,
			table("tab-2", "| B |\n|---|\n| 2 |", false, ""),
		),
	}

	registry := Build("reg-002", pages, nil)

	assert.Len(t, registry.Tables, 2, "断链时两个表格块各自独立成表")
	assert.False(t, registry.Tables["tab-1"].IsCrossPage())
	assert.False(t, registry.Tables["tab-2"].IsCrossPage())
}

// TestBuildThreeSegments 测试跨三页表格的中间段延续
func TestBuildThreeSegments(t *testing.T) {
	pages := []*models.PageDocument{
		tablePage("reg-003", 1, false, true,
			table("s1", "| A |\n|---|\n| 1 |", true, "表1"),
		),
		// 中间段未单独标记截断，但本页仍延续且无其他表格
		tablePage("reg-003", 2, true, true,
			table("s2", "| A |\n|---|\n| 2 |", false, ""),
		),
		tablePage("reg-003", 3, true, false,
			table("s3", "| A |\n|---|\n| 3 |", false, ""),
		),
	}

	registry := Build("reg-003", pages, nil)

	require.Len(t, registry.Tables, 1)
	lt := registry.Tables["s1"]
	assert.Len(t, lt.Segments, 3)
	assert.Equal(t, []int{0, 1, 2}, []int{
		lt.Segments[0].SegmentIndex,
		lt.Segments[1].SegmentIndex,
		lt.Segments[2].SegmentIndex,
	})
}

// TestGetFullTable 测试按主表ID和续段块ID取完整表格
func TestGetFullTable(t *testing.T) {
	pages := []*models.PageDocument{
		tablePage("reg-004", 1, false, true,
			table("tab-1", "| A |\n|---|\n| 1 |", true, ""),
		),
		tablePage("reg-004", 2, true, false,
			table("tab-2", "| A |\n|---|\n| 2 |", false, ""),
		),
	}
	registry := Build("reg-004", pages, nil)

	full, err := registry.GetFullTable("tab-1")
	require.NoError(t, err)
	assert.Contains(t, full, "| 2 |")

	// 传入续段块ID时回查主表
	viaSegment, err := registry.GetFullTable("tab-2")
	require.NoError(t, err)
	assert.Equal(t, full, viaSegment)

	_, err = registry.GetFullTable("no-such-table")
	require.Error(t, err)
	assert.True(t, models.IsCode(err, models.ErrCodeTableNotFound))
}

// TestAnnotate 测试续段块的归属回填
func TestAnnotate(t *testing.T) {
	pages := []*models.PageDocument{
		tablePage("reg-005", 1, false, true,
			table("tab-1", "| A |\n|---|\n| 1 |", true, ""),
		),
		tablePage("reg-005", 2, true, false,
			models.ContentBlock{BlockID: "tab-2", BlockType: models.BlockTypeTable, Content: "| A |\n|---|\n| 2 |"},
		),
	}

	registry := Build("reg-005", pages, nil)
	registry.Annotate(pages)

	cont := pages[1].ContentBlocks[0]
	require.NotNil(t, cont.TableMeta, "续段块应该被回填表格元数据")
	assert.Equal(t, "tab-1", cont.TableMeta.MasterTableID)
	assert.Equal(t, 1, cont.TableMeta.SegmentIndex)

	// 首段块不回填master指针
	first := pages[0].ContentBlocks[0]
	assert.Empty(t, first.TableMeta.MasterTableID)
}

// TestFindByCaption 测试按表格标题查找
func TestFindByCaption(t *testing.T) {
	pages := []*models.PageDocument{
		tablePage("reg-006", 1, false, false,
			table("tab-1", "| A |\n|---|\n| 1 |", false, "表6-2 用地指标"),
		),
	}
	registry := Build("reg-006", pages, nil)

	lt, ok := registry.FindByCaption("表6-2")
	require.True(t, ok, "标题包含匹配应该命中")
	assert.Equal(t, "tab-1", lt.TableID)

	_, ok = registry.FindByCaption("表9-9")
	assert.False(t, ok)
}
