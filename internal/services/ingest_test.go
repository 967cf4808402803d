package services

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyerfyer/reg-retrieval-system/internal/database"
	"github.com/fyerfyer/reg-retrieval-system/internal/index"
	"github.com/fyerfyer/reg-retrieval-system/internal/models"
	"github.com/fyerfyer/reg-retrieval-system/internal/pagestore"
	"github.com/fyerfyer/reg-retrieval-system/internal/reference"
	"github.com/fyerfyer/reg-retrieval-system/internal/repository"
	"github.com/fyerfyer/reg-retrieval-system/internal/search"
	"github.com/fyerfyer/reg-retrieval-system/internal/vectordb"
)

// constEmbedder 返回固定向量的测试嵌入器
type constEmbedder struct{}

func (constEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0, 0, 0}, nil
}

func (constEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i := range texts {
		vecs[i] = []float32{1, 0, 0, 0}
	}
	return vecs, nil
}

func (constEmbedder) Name() string { return "const" }

func (constEmbedder) Dimensions() int { return 4 }

// testEnv 入库与检索服务的完整测试装置
type testEnv struct {
	ingest    *IngestService
	retrieval *RetrievalService
	store     pagestore.Store
	regRepo   repository.RegulationRepository
	vecRepo   vectordb.Repository
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	store, err := pagestore.NewLocalStore(pagestore.Config{Path: t.TempDir(), Logger: log})
	require.NoError(t, err)

	db, err := database.Open(&database.Config{
		Type: "sqlite",
		DSN:  filepath.Join(t.TempDir(), "test.db"),
	}, log)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close(db) })
	regRepo := repository.NewRegulationRepository(db)

	keywordIdx, err := index.NewKeywordIndex(index.Config{
		Path:   filepath.Join(t.TempDir(), "keyword.bleve"),
		Logger: log,
	})
	require.NoError(t, err)
	t.Cleanup(func() { keywordIdx.Close() })

	vecRepo, err := vectordb.NewMemoryRepository(vectordb.Config{Dimension: 4, DistanceType: vectordb.Cosine})
	require.NoError(t, err)
	vectorIdx, err := index.NewVectorIndex(index.Config{
		Embedder:       constEmbedder{},
		VectorRepo:     vecRepo,
		MinEmbedLength: 5,
		Logger:         log,
	})
	require.NoError(t, err)

	searcher := search.NewHybridSearcher(keywordIdx, vectorIdx, search.DefaultFusionConfig(), log)
	lookup := reference.NewAnnotationLookup(store, log)
	resolver := reference.NewResolver(store, lookup, log)

	return &testEnv{
		ingest:    NewIngestService(store, regRepo, keywordIdx, vectorIdx, 50, log),
		retrieval: NewRetrievalService(store, regRepo, searcher, resolver, lookup, log),
		store:     store,
		regRepo:   regRepo,
		vecRepo:   vecRepo,
	}
}

// ingestPages 构造一份带章节、跨页表格和注释的页面流
func ingestPages(regID string) []*models.PageDocument {
	return []*models.PageDocument{
		{
			RegID:   regID,
			PageNum: 1,
			ContentBlocks: []models.ContentBlock{
				{BlockID: "p1-h1", BlockType: models.BlockTypeHeading, Content: "第一章 总则", OrderInPage: 0},
				{BlockID: "p1-t1", BlockType: models.BlockTypeText, Content: "为了加强城乡规划管理，制定本规定。", OrderInPage: 1},
				{
					BlockID: "p1-tab", BlockType: models.BlockTypeTable, OrderInPage: 2,
					Content:   "| 用地类型 | 容积率 |\n|---|---|\n| 居住用地 | 2.0 |",
					TableMeta: &models.TableMeta{Caption: "表1-1", IsTruncated: true},
				},
			},
			ContinuesToNext: true,
		},
		{
			RegID:   regID,
			PageNum: 2,
			ContentBlocks: []models.ContentBlock{
				{
					BlockID: "p2-tab", BlockType: models.BlockTypeTable, OrderInPage: 0,
					Content: "| 用地类型 | 容积率 |\n|---|---|\n| 商业用地 | 3.5 |",
				},
				{BlockID: "p2-t1", BlockType: models.BlockTypeText, Content: "建筑间的防火间距不应小于十三米。", OrderInPage: 1},
			},
			ContinuesFromPrev: true,
			Annotations: []models.Annotation{
				{AnnotationID: "注①", Content: "容积率指标不含地下室。"},
			},
		},
	}
}

// TestIngestPipeline 测试完整入库流水线
func TestIngestPipeline(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	err := env.ingest.IngestPages(ctx, "reg-001", ingestPages("reg-001"), IngestOptions{
		Title:      "测试规定",
		SourceFile: "test.pdf",
	})
	require.NoError(t, err, "入库流水线应该成功完成")

	t.Run("regulation marked ready", func(t *testing.T) {
		info, err := env.regRepo.GetByID("reg-001")
		require.NoError(t, err)
		assert.Equal(t, models.RegStatusReady, info.Status)
		assert.Equal(t, 2, info.TotalPages)
	})

	t.Run("pages persisted", func(t *testing.T) {
		page, err := env.retrieval.GetPage(ctx, "reg-001", 1)
		require.NoError(t, err)
		assert.Len(t, page.ContentBlocks, 3)

		_, err = env.retrieval.GetPage(ctx, "reg-001", 99999)
		assert.True(t, models.IsCode(err, models.ErrCodePageNotFound))
	})

	t.Run("structure built", func(t *testing.T) {
		structure, err := env.retrieval.GetStructure(ctx, "reg-001")
		require.NoError(t, err)
		require.Len(t, structure.RootNodeIDs, 1)

		node, err := env.retrieval.GetChapter(ctx, "reg-001", "1")
		require.NoError(t, err)
		assert.Equal(t, "总则", node.Title)
	})

	t.Run("cross page table stitched", func(t *testing.T) {
		full, err := env.retrieval.GetFullTable(ctx, "reg-001", "p1-tab")
		require.NoError(t, err)
		assert.Contains(t, full, "居住用地")
		assert.Contains(t, full, "商业用地", "续段数据行应该并入完整表格")

		tables, err := env.retrieval.GetTablesOnPage(ctx, "reg-001", 2)
		require.NoError(t, err)
		require.Len(t, tables, 1)
		assert.Equal(t, "p1-tab", tables[0].TableID)
	})

	t.Run("hybrid search finds indexed blocks", func(t *testing.T) {
		results, err := env.retrieval.Search(ctx, "防火间距", index.SearchOptions{RegID: "reg-001", Limit: 5})
		require.NoError(t, err)
		require.NotEmpty(t, results)

		found := false
		for _, r := range results {
			if r.BlockID == "p2-t1" {
				found = true
				assert.Equal(t, 2, r.PageNum)
			}
		}
		assert.True(t, found, "入库后的内容块应该可以被混合检索命中")
	})

	t.Run("reference resolution", func(t *testing.T) {
		ref, err := env.retrieval.ResolveReference(ctx, "reg-001", "见第一章")
		require.NoError(t, err)
		assert.Equal(t, models.RefTypeChapter, ref.RefType)
		assert.Equal(t, 1, ref.PageNum)
	})

	t.Run("annotation lookup", func(t *testing.T) {
		ann, err := env.retrieval.FindAnnotation(ctx, "reg-001", "注一", 0)
		require.NoError(t, err)
		assert.Equal(t, "注1", ann.NormalizedID)
		assert.Equal(t, 2, ann.PageNum)
	})

	t.Run("page range with merged table", func(t *testing.T) {
		merged, err := env.retrieval.GetPageRange(ctx, "reg-001", 1, 2)
		require.NoError(t, err)
		assert.True(t, merged.HasMergedTables)

		_, err = env.retrieval.GetPageRange(ctx, "reg-001", 5, 3)
		assert.True(t, models.IsCode(err, models.ErrCodeInvalidPageRange))
	})
}

// TestIngestValidation 测试入库参数校验
func TestIngestValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	t.Run("empty regulation id", func(t *testing.T) {
		err := env.ingest.IngestPages(ctx, "", ingestPages(""), IngestOptions{})
		assert.Error(t, err)
	})

	t.Run("empty page stream", func(t *testing.T) {
		err := env.ingest.IngestPages(ctx, "reg-002", nil, IngestOptions{})
		assert.Error(t, err)
	})

	t.Run("page belongs to another regulation", func(t *testing.T) {
		err := env.ingest.IngestPages(ctx, "reg-002", ingestPages("reg-other"), IngestOptions{})
		assert.Error(t, err, "页面归属与集合ID不一致应该被拒绝")
	})
}

// TestReingest 测试重复入库时的状态重置与索引清理
func TestReingest(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.ingest.IngestPages(ctx, "reg-003", ingestPages("reg-003"), IngestOptions{Title: "原标题"}))

	countAfterFirst, err := env.vecRepo.Count()
	require.NoError(t, err)
	require.Greater(t, countAfterFirst, 0)

	// 不带新标题重新入库，原标题保留
	require.NoError(t, env.ingest.IngestPages(ctx, "reg-003", ingestPages("reg-003"), IngestOptions{}))

	info, err := env.regRepo.GetByID("reg-003")
	require.NoError(t, err)
	assert.Equal(t, "原标题", info.Title, "未显式传入标题时保留已有标题")
	assert.Equal(t, models.RegStatusReady, info.Status)

	t.Run("vector entries not duplicated", func(t *testing.T) {
		count, err := env.vecRepo.Count()
		require.NoError(t, err)
		assert.Equal(t, countAfterFirst, count, "重新入库后向量条目数应与首次入库一致")
	})

	t.Run("search returns each block once", func(t *testing.T) {
		results, err := env.retrieval.Search(ctx, "防火间距", index.SearchOptions{RegID: "reg-003", Limit: 10})
		require.NoError(t, err)
		require.NotEmpty(t, results)

		seen := make(map[string]bool)
		for _, r := range results {
			assert.False(t, seen[r.BlockID], "块%s在结果中重复出现", r.BlockID)
			seen[r.BlockID] = true
		}
	})
}

// TestDeleteRegulation 测试法规删除的级联清理
func TestDeleteRegulation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.ingest.IngestPages(ctx, "reg-004", ingestPages("reg-004"), IngestOptions{Title: "待删除"}))
	require.NoError(t, env.ingest.DeleteRegulation(ctx, "reg-004"))

	_, err := env.retrieval.GetPage(ctx, "reg-004", 1)
	assert.True(t, models.IsCode(err, models.ErrCodeRegulationNotFound), "删除后页面应该不可见")

	_, err = env.regRepo.GetByID("reg-004")
	assert.True(t, models.IsCode(err, models.ErrCodeRegulationNotFound), "删除后元数据记录应该移除")

	results, err := env.retrieval.Search(ctx, "防火间距", index.SearchOptions{RegID: "reg-004", Limit: 5})
	require.NoError(t, err)
	assert.Empty(t, results, "删除后索引不应该再命中")
}
