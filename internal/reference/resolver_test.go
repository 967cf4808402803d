package reference

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyerfyer/reg-retrieval-system/internal/models"
	"github.com/fyerfyer/reg-retrieval-system/internal/pagestore"
	"github.com/fyerfyer/reg-retrieval-system/internal/tableregistry"
)

// resolverFixture 准备一个带结构、表格和注释的集合
func resolverFixture(t *testing.T) (*Resolver, context.Context) {
	t.Helper()
	ctx := context.Background()

	store, err := pagestore.NewLocalStore(pagestore.Config{Path: t.TempDir()})
	require.NoError(t, err)

	structure := models.NewDocumentStructure("reg-001")
	structure.AllNodes["n6"] = &models.ChapterNode{
		NodeID: "n6", SectionNumber: "6", Title: "验收规定", Level: 1, PageNum: 12,
	}
	structure.AllNodes["n6-1"] = &models.ChapterNode{
		NodeID: "n6-1", SectionNumber: "6.1", Title: "验收条件", Level: 2, PageNum: 12,
		ParentID: "n6",
	}
	structure.AllNodes["n214"] = &models.ChapterNode{
		NodeID: "n214", SectionNumber: "2.1.4", Title: "防火间距", Level: 3, PageNum: 5,
	}
	structure.AllNodes["napp"] = &models.ChapterNode{
		NodeID: "napp", SectionNumber: "附录A", Title: "术语", Level: 1, PageNum: 30,
	}
	structure.RootNodeIDs = []string{"n6", "n214", "napp"}
	structure.AllNodes["n6"].ChildrenIDs = []string{"n6-1"}
	require.NoError(t, store.SaveStructure(ctx, structure))

	registry := tableregistry.NewRegistry("reg-001")
	registry.Tables["tab-1"] = &tableregistry.LogicalTable{
		TableID: "tab-1",
		Caption: "表6-2",
		Segments: []tableregistry.TableSegment{
			{PageNum: 13, BlockID: "tab-1", SegmentIndex: 0, Markdown: "| 项目 | 指标 |\n|---|---|\n| 容积率 | 2.0 |"},
		},
	}
	registry.BlockToTable["tab-1"] = "tab-1"
	registry.PageToTables[13] = []string{"tab-1"}
	require.NoError(t, store.SaveTableRegistry(ctx, registry))

	page12 := &models.PageDocument{
		RegID: "reg-001", PageNum: 12,
		ContentBlocks: []models.ContentBlock{
			{BlockID: "h6", BlockType: models.BlockTypeHeading, Content: "第六章 验收规定", ChapterNodeID: "n6"},
			{BlockID: "t6", BlockType: models.BlockTypeText, Content: "建设工程竣工后应当组织验收。", ChapterNodeID: "n6"},
		},
		Annotations: []models.Annotation{
			{AnnotationID: "注①", Content: "验收不含临时工程。"},
		},
	}
	require.NoError(t, store.SavePage(ctx, page12))

	lookup := NewAnnotationLookup(store, nil)
	return NewResolver(store, lookup, nil), ctx
}

// TestResolveChapter 测试章引用解析
func TestResolveChapter(t *testing.T) {
	resolver, ctx := resolverFixture(t)

	ref, err := resolver.Resolve(ctx, "reg-001", "见第六章")
	require.NoError(t, err)

	assert.Equal(t, models.RefTypeChapter, ref.RefType)
	assert.Equal(t, 12, ref.PageNum)
	assert.Equal(t, "n6", ref.TargetID)
	assert.Equal(t, []string{"验收规定"}, ref.ChapterPath)
	assert.Contains(t, ref.Preview, "竣工后应当组织验收", "预览取章节首个非标题块")
}

// TestResolveChapterEmbedded 测试引用文本混在长句中的识别
func TestResolveChapterEmbedded(t *testing.T) {
	resolver, ctx := resolverFixture(t)

	ref, err := resolver.Resolve(ctx, "reg-001", "具体要求详见第六章相关规定。")
	require.NoError(t, err)
	assert.Equal(t, models.RefTypeChapter, ref.RefType)
	assert.Equal(t, "n6", ref.TargetID)
}

// TestResolveTable 测试表格引用解析
func TestResolveTable(t *testing.T) {
	resolver, ctx := resolverFixture(t)

	ref, err := resolver.Resolve(ctx, "reg-001", "参见表6-2")
	require.NoError(t, err)

	assert.Equal(t, models.RefTypeTable, ref.RefType)
	assert.Equal(t, 13, ref.PageNum, "表格引用应该指向首段所在页")
	assert.Equal(t, "tab-1", ref.TargetID)
	assert.Contains(t, ref.Preview, "容积率")
}

// TestResolveTableFullwidth 测试全角编号与变体破折号
func TestResolveTableFullwidth(t *testing.T) {
	resolver, ctx := resolverFixture(t)

	ref, err := resolver.Resolve(ctx, "reg-001", "参见表６—２")
	require.NoError(t, err, "全角数字和长破折号应该被规范化后匹配")
	assert.Equal(t, "tab-1", ref.TargetID)
}

// TestResolveSection 测试点分编号引用解析
func TestResolveSection(t *testing.T) {
	resolver, ctx := resolverFixture(t)

	ref, err := resolver.Resolve(ctx, "reg-001", "见2.1.4")
	require.NoError(t, err)

	assert.Equal(t, models.RefTypeSection, ref.RefType)
	assert.Equal(t, 5, ref.PageNum)
	assert.Equal(t, "n214", ref.TargetID)
}

// TestResolveAnnotation 测试注释引用解析
func TestResolveAnnotation(t *testing.T) {
	resolver, ctx := resolverFixture(t)

	t.Run("existing annotation", func(t *testing.T) {
		ref, err := resolver.Resolve(ctx, "reg-001", "见注1")
		require.NoError(t, err)

		assert.Equal(t, models.RefTypeAnnotation, ref.RefType)
		assert.Equal(t, 12, ref.PageNum)
		assert.Equal(t, "注1", ref.TargetID)
		assert.Contains(t, ref.Preview, "临时工程")
	})

	t.Run("missing annotation", func(t *testing.T) {
		_, err := resolver.Resolve(ctx, "reg-001", "见注99")
		require.Error(t, err)
		assert.True(t, models.IsCode(err, models.ErrCodeReferenceResolution), "目标不存在时返回引用解析错误")
	})
}

// TestResolveAppendix 测试附录引用解析
func TestResolveAppendix(t *testing.T) {
	resolver, ctx := resolverFixture(t)

	ref, err := resolver.Resolve(ctx, "reg-001", "见附录a")
	require.NoError(t, err, "附录字母应该大小写不敏感")

	assert.Equal(t, models.RefTypeAppendix, ref.RefType)
	assert.Equal(t, 30, ref.PageNum)
	assert.Equal(t, "napp", ref.TargetID)
}

// TestResolveNoPattern 测试无模式命中的失败路径
func TestResolveNoPattern(t *testing.T) {
	resolver, ctx := resolverFixture(t)

	_, err := resolver.Resolve(ctx, "reg-001", "如上所述")
	require.Error(t, err)
	assert.True(t, models.IsCode(err, models.ErrCodeReferenceResolution))
}

// TestPlainPreview 测试Markdown纯文本预览
func TestPlainPreview(t *testing.T) {
	t.Run("strips markdown syntax", func(t *testing.T) {
		preview := PlainPreview("# 标题\n\n**加粗**正文，[链接](http://example.com)。", 100)
		assert.NotContains(t, preview, "#")
		assert.NotContains(t, preview, "**")
		assert.Contains(t, preview, "加粗")
		assert.Contains(t, preview, "链接")
	})

	t.Run("truncates long content", func(t *testing.T) {
		long := "这是一段很长的内容。"
		for i := 0; i < 5; i++ {
			long += long
		}
		preview := PlainPreview(long, 20)
		assert.LessOrEqual(t, len([]rune(preview)), 23, "超长内容应该被截断并加省略号")
		assert.Contains(t, preview, "...")
	})
}
