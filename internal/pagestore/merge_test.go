package pagestore

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyerfyer/reg-retrieval-system/internal/models"
)

func truncatedTable(id, markdown string) models.ContentBlock {
	return models.ContentBlock{
		BlockID:   id,
		BlockType: models.BlockTypeTable,
		Content:   markdown,
		TableMeta: &models.TableMeta{IsTruncated: true},
	}
}

// TestMergePagesCrossPageTable 测试跨页表格在原位拼接且表头只保留一份
func TestMergePagesCrossPageTable(t *testing.T) {
	page1 := &models.PageDocument{
		RegID:   "reg-001",
		PageNum: 1,
		ContentBlocks: []models.ContentBlock{
			{BlockID: "p1-t1", BlockType: models.BlockTypeText, Content: "表前说明文字。"},
			truncatedTable("p1-tab", "| 项目 | 指标 |\n|---|---|\n| 甲 | 1 |"),
		},
		ContinuesToNext: true,
	}
	page2 := &models.PageDocument{
		RegID:   "reg-001",
		PageNum: 2,
		ContentBlocks: []models.ContentBlock{
			{
				BlockID:   "p2-tab",
				BlockType: models.BlockTypeTable,
				Content:   "| 项目 | 指标 |\n|---|---|\n| 乙 | 2 |",
			},
			{BlockID: "p2-t1", BlockType: models.BlockTypeText, Content: "表后说明文字。"},
		},
		ContinuesFromPrev: true,
	}

	markdown, hasMerged := mergePages([]*models.PageDocument{page1, page2})

	assert.True(t, hasMerged, "应该发生跨页表格拼接")
	assert.Equal(t, 1, strings.Count(markdown, "| 项目 | 指标 |"), "拼接后表头只应该出现一次")
	assert.Contains(t, markdown, "| 甲 | 1 |")
	assert.Contains(t, markdown, "| 乙 | 2 |")

	// 数据行在首段位置连续出现
	idxFirst := strings.Index(markdown, "| 甲 | 1 |")
	idxSecond := strings.Index(markdown, "| 乙 | 2 |")
	idxAfter := strings.Index(markdown, "表后说明文字")
	require.True(t, idxFirst >= 0 && idxSecond >= 0 && idxAfter >= 0)
	assert.Less(t, idxFirst, idxSecond)
	assert.Less(t, idxSecond, idxAfter, "续段数据行应该拼接在首段位置而不是第二页位置")
}

// TestMergePagesThreeSegments 测试跨三页的表格拼接
func TestMergePagesThreeSegments(t *testing.T) {
	page1 := &models.PageDocument{
		RegID: "reg-002", PageNum: 1,
		ContentBlocks:   []models.ContentBlock{truncatedTable("s1", "| A | B |\n|---|---|\n| 1 | 2 |")},
		ContinuesToNext: true,
	}
	page2 := &models.PageDocument{
		RegID: "reg-002", PageNum: 2,
		ContentBlocks: []models.ContentBlock{
			{BlockID: "s2", BlockType: models.BlockTypeTable, Content: "| A | B |\n|---|---|\n| 3 | 4 |"},
		},
		ContinuesFromPrev: true,
		ContinuesToNext:   true,
	}
	page3 := &models.PageDocument{
		RegID: "reg-002", PageNum: 3,
		ContentBlocks: []models.ContentBlock{
			{BlockID: "s3", BlockType: models.BlockTypeTable, Content: "| A | B |\n|---|---|\n| 5 | 6 |"},
		},
		ContinuesFromPrev: true,
	}

	markdown, hasMerged := mergePages([]*models.PageDocument{page1, page2, page3})

	assert.True(t, hasMerged)
	assert.Equal(t, 1, strings.Count(markdown, "| A | B |"), "三段拼接后表头仍只出现一次")
	for _, row := range []string{"| 1 | 2 |", "| 3 | 4 |", "| 5 | 6 |"} {
		assert.Contains(t, markdown, row)
	}
}

// TestMergePagesNoTable 测试无表格页面的普通拼接
func TestMergePagesNoTable(t *testing.T) {
	page1 := &models.PageDocument{
		RegID: "reg-003", PageNum: 1,
		ContentBlocks: []models.ContentBlock{
			{BlockID: "a", BlockType: models.BlockTypeText, Content: "第一页内容。"},
		},
	}
	page2 := &models.PageDocument{
		RegID: "reg-003", PageNum: 2,
		ContentBlocks: []models.ContentBlock{
			{BlockID: "b", BlockType: models.BlockTypeText, Content: "第二页内容。"},
		},
	}

	markdown, hasMerged := mergePages([]*models.PageDocument{page1, page2})

	assert.False(t, hasMerged, "没有跨页表格时不应该标记拼接")
	assert.Equal(t, "第一页内容。\n\n第二页内容。", markdown)
}

// TestMergePagesBrokenChain 测试延续标记断链时的落位
func TestMergePagesBrokenChain(t *testing.T) {
	page1 := &models.PageDocument{
		RegID: "reg-004", PageNum: 1,
		ContentBlocks:   []models.ContentBlock{truncatedTable("t1", "| A |\n|---|\n| 1 |")},
		ContinuesToNext: true,
	}
	// 下一页没有承接标记
	page2 := &models.PageDocument{
		RegID: "reg-004", PageNum: 2,
		ContentBlocks: []models.ContentBlock{
			{BlockID: "x", BlockType: models.BlockTypeText, Content: "普通正文。"},
		},
	}

	markdown, hasMerged := mergePages([]*models.PageDocument{page1, page2})

	assert.False(t, hasMerged, "断链时不算发生拼接")
	assert.Contains(t, markdown, "| 1 |", "未等到续段的表格应该原样落位")
	assert.Contains(t, markdown, "普通正文。")
}
