package index

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyerfyer/reg-retrieval-system/internal/models"
	"github.com/fyerfyer/reg-retrieval-system/internal/vectordb"
)

// fakeEmbedder 按预置映射返回向量的测试嵌入器
type fakeEmbedder struct {
	vectors map[string][]float32
	dim     int
}

func newFakeEmbedder() *fakeEmbedder {
	return &fakeEmbedder{
		vectors: make(map[string][]float32),
		dim:     4,
	}
}

func (f *fakeEmbedder) set(text string, vec []float32) {
	f.vectors[text] = vec
}

func (f *fakeEmbedder) embed(text string) []float32 {
	if vec, ok := f.vectors[text]; ok {
		return vec
	}
	return []float32{1, 0, 0, 0}
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return f.embed(text), nil
}

func (f *fakeEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i, t := range texts {
		vecs[i] = f.embed(t)
	}
	return vecs, nil
}

func (f *fakeEmbedder) Name() string { return "fake" }

func (f *fakeEmbedder) Dimensions() int { return f.dim }

func newTestVectorIndex(t *testing.T, embedder *fakeEmbedder) (Index, vectordb.Repository) {
	t.Helper()
	repo, err := vectordb.NewMemoryRepository(vectordb.Config{Dimension: 4, DistanceType: vectordb.Cosine})
	require.NoError(t, err)

	idx, err := NewVectorIndex(Config{
		Embedder:       embedder,
		VectorRepo:     repo,
		MinEmbedLength: 5,
	})
	require.NoError(t, err)
	return idx, repo
}

// TestVectorIndexSearch 测试向量索引的写入与语义检索
func TestVectorIndexSearch(t *testing.T) {
	ctx := context.Background()
	embedder := newFakeEmbedder()

	fireText := "建筑之间的防火间距要求。"
	greenText := "绿地率和绿化覆盖率指标。"
	embedder.set(fireText, []float32{1, 0, 0, 0})
	embedder.set(greenText, []float32{0, 1, 0, 0})
	embedder.set("防火", []float32{0.9, 0.1, 0, 0})

	idx, _ := newTestVectorIndex(t, embedder)

	require.NoError(t, idx.IndexBlock(ctx, "reg-001", 3, &models.ContentBlock{
		BlockID: "b1", BlockType: models.BlockTypeText, Content: fireText,
	}, BlockContext{ChapterPath: []string{"消防规定"}, SectionNumber: "4.2"}))
	require.NoError(t, idx.IndexBlock(ctx, "reg-001", 8, &models.ContentBlock{
		BlockID: "b2", BlockType: models.BlockTypeText, Content: greenText,
	}, BlockContext{ChapterPath: []string{"绿化规定"}}))

	results, err := idx.Search(ctx, "防火", SearchOptions{RegID: "reg-001", Limit: 10})
	require.NoError(t, err)
	require.NotEmpty(t, results)

	top := results[0]
	assert.Equal(t, "b1", top.BlockID, "语义最接近的块应该排在最前")
	assert.Equal(t, 3, top.PageNum)
	assert.Equal(t, []string{"消防规定"}, top.ChapterPath)
	assert.Contains(t, top.Snippet, "防火间距")
}

// TestVectorIndexShortBlockSkipped 测试过短文本不入向量索引
func TestVectorIndexShortBlockSkipped(t *testing.T) {
	ctx := context.Background()
	embedder := newFakeEmbedder()
	idx, repo := newTestVectorIndex(t, embedder)

	err := idx.IndexBlock(ctx, "reg-001", 1, &models.ContentBlock{
		BlockID: "tiny", BlockType: models.BlockTypeText, Content: "第1条",
	}, BlockContext{})
	require.NoError(t, err, "过短文本跳过不算失败")

	count, err := repo.Count()
	require.NoError(t, err)
	assert.Equal(t, 0, count, "过短文本不应该写入向量仓库")
}

// TestVectorIndexChapterScope 测试章节范围过滤
func TestVectorIndexChapterScope(t *testing.T) {
	ctx := context.Background()
	embedder := newFakeEmbedder()

	fire := "消防车道的设置要求如下。"
	green := "绿化带的设置要求如下。"
	embedder.set(fire, []float32{1, 0, 0, 0})
	embedder.set(green, []float32{0.9, 0.1, 0, 0})
	embedder.set("设置要求", []float32{1, 0, 0, 0})

	idx, _ := newTestVectorIndex(t, embedder)

	require.NoError(t, idx.IndexBlock(ctx, "reg-001", 1, &models.ContentBlock{
		BlockID: "b1", BlockType: models.BlockTypeText, Content: fire,
	}, BlockContext{ChapterPath: []string{"消防规定"}}))
	require.NoError(t, idx.IndexBlock(ctx, "reg-001", 2, &models.ContentBlock{
		BlockID: "b2", BlockType: models.BlockTypeText, Content: green,
	}, BlockContext{ChapterPath: []string{"绿化规定"}}))

	results, err := idx.Search(ctx, "设置要求", SearchOptions{
		RegID:        "reg-001",
		ChapterScope: "消防",
		Limit:        10,
	})
	require.NoError(t, err)
	require.Len(t, results, 1, "章节范围过滤应该排除其他章节的结果")
	assert.Equal(t, "b1", results[0].BlockID)
}

// TestVectorIndexBlockTypeFilter 测试块类型过滤
func TestVectorIndexBlockTypeFilter(t *testing.T) {
	ctx := context.Background()
	embedder := newFakeEmbedder()
	idx, _ := newTestVectorIndex(t, embedder)

	require.NoError(t, idx.IndexBlock(ctx, "reg-001", 1, &models.ContentBlock{
		BlockID: "text-1", BlockType: models.BlockTypeText, Content: "容积率指标说明文字。",
	}, BlockContext{}))
	require.NoError(t, idx.IndexBlock(ctx, "reg-001", 1, &models.ContentBlock{
		BlockID: "table-1", BlockType: models.BlockTypeTable, Content: "| 用地 | 容积率 |\n|---|---|",
	}, BlockContext{TableID: "table-1"}))

	results, err := idx.Search(ctx, "容积率", SearchOptions{
		RegID:      "reg-001",
		BlockTypes: []string{string(models.BlockTypeTable)},
		Limit:      10,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "table-1", results[0].BlockID)
}

// TestVectorIndexDeleteCollection 测试按法规删除向量
func TestVectorIndexDeleteCollection(t *testing.T) {
	ctx := context.Background()
	embedder := newFakeEmbedder()
	idx, repo := newTestVectorIndex(t, embedder)

	require.NoError(t, idx.IndexBlock(ctx, "reg-a", 1, &models.ContentBlock{
		BlockID: "b1", BlockType: models.BlockTypeText, Content: "第一个法规的内容块。",
	}, BlockContext{}))
	require.NoError(t, idx.IndexBlock(ctx, "reg-b", 1, &models.ContentBlock{
		BlockID: "b2", BlockType: models.BlockTypeText, Content: "第二个法规的内容块。",
	}, BlockContext{}))

	require.NoError(t, idx.DeleteCollection(ctx, "reg-a"))

	count, err := repo.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, count, "只应该删除指定法规的向量")
}
