package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	appconfig "github.com/fyerfyer/reg-retrieval-system/config"
	"github.com/fyerfyer/reg-retrieval-system/internal/cache"
	"github.com/fyerfyer/reg-retrieval-system/internal/database"
	"github.com/fyerfyer/reg-retrieval-system/internal/embedding"
	"github.com/fyerfyer/reg-retrieval-system/internal/index"
	"github.com/fyerfyer/reg-retrieval-system/internal/models"
	"github.com/fyerfyer/reg-retrieval-system/internal/pagestore"
	"github.com/fyerfyer/reg-retrieval-system/internal/reference"
	"github.com/fyerfyer/reg-retrieval-system/internal/repository"
	"github.com/fyerfyer/reg-retrieval-system/internal/search"
	"github.com/fyerfyer/reg-retrieval-system/internal/services"
	"github.com/fyerfyer/reg-retrieval-system/internal/vectordb"
	"github.com/fyerfyer/reg-retrieval-system/pkg/logger"
	"github.com/fyerfyer/reg-retrieval-system/pkg/taskqueue"
)

// 命令行选项
type options struct {
	ConfigFile string // 配置文件路径
	Worker     bool   // 以队列工作者模式运行
	IngestFile string // 待入库的页面流JSON文件
	RegID      string // 法规集合ID
	Title      string // 法规标题
	Query      string // 检索查询
	RefText    string // 待解析的引用文本
	DeleteReg  string // 待删除的法规集合ID
}

func main() {
	opts := parseFlags()

	cfg, err := appconfig.Load(opts.ConfigFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging)
	log.Info("Starting regulation retrieval system")

	app, err := buildApp(cfg, log)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}
	defer app.close()

	ctx := context.Background()

	switch {
	case opts.Worker:
		runWorker(cfg, app, log)
	case opts.IngestFile != "":
		if opts.RegID == "" {
			log.Fatal("-reg is required for ingestion")
		}
		runIngest(ctx, cfg, app, opts, log)
	case opts.DeleteReg != "":
		if err := app.ingest.DeleteRegulation(ctx, opts.DeleteReg); err != nil {
			log.Fatalf("Failed to delete regulation: %v", err)
		}
		log.WithField("reg_id", opts.DeleteReg).Info("Regulation deleted")
	case opts.Query != "":
		runQuery(ctx, app, opts, log)
	case opts.RefText != "":
		runResolve(ctx, app, opts, log)
	default:
		flag.Usage()
	}
}

// parseFlags 解析命令行参数
func parseFlags() options {
	opts := options{}

	flag.StringVar(&opts.ConfigFile, "config", "", "Path to config file")
	flag.BoolVar(&opts.Worker, "worker", false, "Run as task queue worker")
	flag.StringVar(&opts.IngestFile, "ingest", "", "Path to serialized page stream (JSON array)")
	flag.StringVar(&opts.RegID, "reg", "", "Regulation collection ID")
	flag.StringVar(&opts.Title, "title", "", "Regulation title")
	flag.StringVar(&opts.Query, "query", "", "Run a hybrid search query")
	flag.StringVar(&opts.RefText, "resolve", "", "Resolve a cross-reference text")
	flag.StringVar(&opts.DeleteReg, "delete", "", "Delete a regulation collection")

	flag.Parse()
	return opts
}

// app 组装完成的服务集合
type app struct {
	store      pagestore.Store
	regRepo    repository.RegulationRepository
	keywordIdx index.Index
	vectorIdx  index.Index
	ingest     *services.IngestService
	retrieval  *services.RetrievalService
	closers    []func() error
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
}

// buildApp 按配置组装存储、索引和服务
func buildApp(cfg *appconfig.Config, log *logrus.Logger) (*app, error) {
	a := &app{}

	db, err := database.Open(&database.Config{
		Type: cfg.Database.Type,
		DSN:  cfg.Database.DSN,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	a.closers = append(a.closers, func() error { return database.Close(db) })
	a.regRepo = repository.NewRegulationRepository(db)

	a.store, err = pagestore.NewStore(pagestore.Config{
		Type:        cfg.Storage.Type,
		Path:        cfg.Storage.Path,
		Bucket:      cfg.Storage.Bucket,
		Endpoint:    cfg.Storage.Endpoint,
		AccessKey:   cfg.Storage.AccessKey,
		SecretKey:   cfg.Storage.SecretKey,
		UseSSL:      cfg.Storage.UseSSL,
		MaxPageSpan: cfg.Search.MaxPageSpan,
		Logger:      log,
	})
	if err != nil {
		return nil, fmt.Errorf("page store: %w", err)
	}

	embedder, err := setupEmbedding(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("embedding: %w", err)
	}

	vecRepo, err := setupVectorDB(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("vector database: %w", err)
	}
	a.closers = append(a.closers, vecRepo.Close)

	a.keywordIdx, err = index.NewIndex("keyword", index.Config{
		Path:   cfg.Keyword.Path,
		Logger: log,
	})
	if err != nil {
		return nil, fmt.Errorf("keyword index: %w", err)
	}
	a.closers = append(a.closers, a.keywordIdx.Close)

	a.vectorIdx, err = index.NewIndex("vector", index.Config{
		Embedder:       embedder,
		VectorRepo:     vecRepo,
		MinEmbedLength: cfg.Search.MinEmbedLength,
		Logger:         log,
	})
	if err != nil {
		return nil, fmt.Errorf("vector index: %w", err)
	}

	searcher := search.NewHybridSearcher(a.keywordIdx, a.vectorIdx, search.FusionConfig{
		KeywordWeight: cfg.Search.KeywordWeight,
		VectorWeight:  cfg.Search.VectorWeight,
		RRFConstant:   cfg.Search.RRFConstant,
		Limit:         cfg.Search.Limit,
	}, log)

	lookup := reference.NewAnnotationLookup(a.store, log)
	resolver := reference.NewResolver(a.store, lookup, log)

	a.ingest = services.NewIngestService(a.store, a.regRepo, a.keywordIdx, a.vectorIdx,
		cfg.Search.HeadingTitleLimit, log)
	a.retrieval = services.NewRetrievalService(a.store, a.regRepo, searcher, resolver, lookup, log)

	return a, nil
}

// setupEmbedding 创建嵌入客户端，启用缓存时包一层查询向量缓存
func setupEmbedding(cfg *appconfig.Config, log *logrus.Logger) (embedding.Client, error) {
	client, err := embedding.NewClient(cfg.Embed.Provider,
		embedding.WithAPIKey(cfg.Embed.APIKey),
		embedding.WithModel(cfg.Embed.Model),
		embedding.WithBaseURL(cfg.Embed.Endpoint),
		embedding.WithDimensions(cfg.Embed.Dimensions),
		embedding.WithBatchSize(cfg.Embed.BatchSize),
	)
	if err != nil {
		return nil, err
	}

	if !cfg.Cache.Enable {
		return client, nil
	}

	c, err := cache.NewCache(cache.Config{
		Type:          cfg.Cache.Type,
		RedisAddr:     cfg.Cache.Address,
		RedisPassword: cfg.Cache.Password,
		RedisDB:       cfg.Cache.DB,
		DefaultTTL:    time.Duration(cfg.Cache.TTL) * time.Second,
	})
	if err != nil {
		log.WithError(err).Warn("Cache initialization failed, running without query vector cache")
		return client, nil
	}
	return embedding.NewCachedClient(client, c, time.Duration(cfg.Cache.TTL)*time.Second), nil
}

// setupVectorDB 创建向量仓库，faiss初始化失败时回退到内存实现
func setupVectorDB(cfg *appconfig.Config, log *logrus.Logger) (vectordb.Repository, error) {
	repo, err := vectordb.NewRepository(vectordb.Config{
		Type:              cfg.VectorDB.Type,
		Path:              cfg.VectorDB.Path,
		Dimension:         cfg.VectorDB.Dim,
		DistanceType:      vectordb.DistanceType(cfg.VectorDB.Distance),
		CreateIfNotExists: true,
	})
	if err != nil {
		log.WithError(err).Warn("Vector database initialization failed, falling back to memory")
		return vectordb.NewRepository(vectordb.Config{
			Type:         "memory",
			Dimension:    cfg.VectorDB.Dim,
			DistanceType: vectordb.Cosine,
		})
	}
	return repo, nil
}

// runWorker 以队列工作者模式运行，直到收到终止信号
func runWorker(cfg *appconfig.Config, a *app, log *logrus.Logger) {
	if !cfg.Queue.Enable {
		log.Fatal("Task queue is disabled in config, cannot run worker")
	}

	queueCfg := &taskqueue.Config{
		RedisAddr:     cfg.Queue.RedisAddr,
		RedisPassword: cfg.Queue.RedisPassword,
		RedisDB:       cfg.Queue.RedisDB,
		Concurrency:   cfg.Queue.Concurrency,
		RetryLimit:    cfg.Queue.RetryLimit,
		RetryDelay:    time.Minute,
		Queues:        taskqueue.DefaultConfig().Queues,
	}

	queue, err := taskqueue.NewRedisQueue(queueCfg)
	if err != nil {
		log.Fatalf("Failed to connect to task queue: %v", err)
	}
	defer queue.Close()

	worker := taskqueue.NewRedisWorker(queue.(*taskqueue.RedisQueue), queueCfg)
	worker.RegisterHandler(taskqueue.TaskRegulationIngest, taskqueue.NewIngestHandler(a.ingest, log))
	worker.RegisterHandler(taskqueue.TaskRegulationDelete, taskqueue.NewDeleteHandler(a.ingest, log))

	if err := worker.Start(); err != nil {
		log.Fatalf("Failed to start worker: %v", err)
	}
	log.WithField("concurrency", cfg.Queue.Concurrency).Info("Worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down worker...")
	worker.Stop()
	log.Info("Worker exited")
}

// runIngest 执行一次入库：队列启用时入队等待，否则同步执行
func runIngest(ctx context.Context, cfg *appconfig.Config, a *app, opts options, log *logrus.Logger) {
	if cfg.Queue.Enable {
		queue, err := taskqueue.NewQueue("redis", &taskqueue.Config{
			RedisAddr:     cfg.Queue.RedisAddr,
			RedisPassword: cfg.Queue.RedisPassword,
			RedisDB:       cfg.Queue.RedisDB,
		})
		if err != nil {
			log.Fatalf("Failed to connect to task queue: %v", err)
		}
		defer queue.Close()

		taskID, err := queue.Enqueue(ctx, taskqueue.TaskRegulationIngest, opts.RegID,
			&taskqueue.RegulationIngestPayload{
				RegID:     opts.RegID,
				Title:     opts.Title,
				PagesPath: opts.IngestFile,
			})
		if err != nil {
			log.Fatalf("Failed to enqueue ingest task: %v", err)
		}

		log.WithField("task_id", taskID).Info("Ingest task enqueued, waiting for completion")
		task, err := queue.WaitForTask(ctx, taskID, 30*time.Minute)
		if err != nil {
			log.Fatalf("Failed waiting for task: %v", err)
		}
		if task.Status == taskqueue.StatusFailed {
			log.Fatalf("Ingest task failed: %s", task.Error)
		}
		log.WithField("reg_id", opts.RegID).Info("Ingestion completed")
		return
	}

	data, err := os.ReadFile(opts.IngestFile)
	if err != nil {
		log.Fatalf("Failed to read pages file: %v", err)
	}
	var pages []*models.PageDocument
	if err := json.Unmarshal(data, &pages); err != nil {
		log.Fatalf("Failed to parse pages file: %v", err)
	}

	if err := a.ingest.IngestPages(ctx, opts.RegID, pages, services.IngestOptions{
		Title:      opts.Title,
		SourceFile: opts.IngestFile,
	}); err != nil {
		log.Fatalf("Ingestion failed: %v", err)
	}
	log.WithFields(logrus.Fields{"reg_id": opts.RegID, "pages": len(pages)}).Info("Ingestion completed")
}

// runQuery 执行一次混合检索并打印结果
func runQuery(ctx context.Context, a *app, opts options, log *logrus.Logger) {
	results, err := a.retrieval.Search(ctx, opts.Query, index.SearchOptions{RegID: opts.RegID})
	if err != nil {
		log.Fatalf("Search failed: %v", err)
	}

	out, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		log.Fatalf("Failed to render results: %v", err)
	}
	fmt.Println(string(out))
}

// runResolve 解析一条引用文本并打印结果
func runResolve(ctx context.Context, a *app, opts options, log *logrus.Logger) {
	if opts.RegID == "" {
		log.Fatal("-reg is required for reference resolution")
	}

	ref, err := a.retrieval.ResolveReference(ctx, opts.RegID, opts.RefText)
	if err != nil {
		log.Fatalf("Reference resolution failed: %v", err)
	}

	out, err := json.MarshalIndent(ref, "", "  ")
	if err != nil {
		log.Fatalf("Failed to render reference: %v", err)
	}
	fmt.Println(string(out))
}
