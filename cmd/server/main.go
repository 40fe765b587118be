// Package main 是应用程序的入口点。
package main

import (
	"context"
	"drone-helpdesk-go/internal/bootstrap"
	"drone-helpdesk-go/internal/config"
	"drone-helpdesk-go/internal/handler"
	"drone-helpdesk-go/internal/middleware"
	"drone-helpdesk-go/internal/pipeline"
	"drone-helpdesk-go/internal/repository"
	"drone-helpdesk-go/internal/service"
	"drone-helpdesk-go/pkg/database"
	"drone-helpdesk-go/pkg/kafka"
	"drone-helpdesk-go/pkg/llm"
	"drone-helpdesk-go/pkg/log"
	"drone-helpdesk-go/pkg/storage"
	"drone-helpdesk-go/pkg/token"
	"drone-helpdesk-go/pkg/watcher"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
)

func main() {
	configPath := flag.String("config", "./configs/config.yaml", "配置文件路径")
	flag.Parse()

	// 1. 初始化配置
	config.Init(*configPath)
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync()
	log.Info("日志记录器初始化成功")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. 初始化数据库、Redis 与对象存储
	if err := database.InitMySQL(cfg.Database.MySQL.DSN); err != nil {
		log.Fatal("MySQL 初始化失败", err)
	}
	if err := database.InitRedis(ctx, cfg.Database.Redis); err != nil {
		log.Fatal("Redis 初始化失败", err)
	}

	var store *storage.Store
	if cfg.MinIO.Endpoint != "" {
		s, err := storage.InitMinIO(ctx, cfg.MinIO)
		if err != nil {
			log.Fatal("MinIO 初始化失败", err)
		}
		store = s
	}

	// 4. 向量索引与摄取管道
	index, closeIndex, err := bootstrap.NewIndex(ctx, cfg)
	if err != nil {
		log.Fatal("向量索引初始化失败", err)
	}
	defer closeIndex()

	chunker, err := pipeline.NewChunker(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap)
	if err != nil {
		log.Fatal("分块器配置无效", err)
	}
	docRepo := repository.NewDocumentRepository(database.DB)
	conversationRepo := repository.NewConversationRepository(database.RDB)

	var fetcher pipeline.ObjectFetcher
	if store != nil {
		fetcher = store
	}
	indexer := pipeline.NewIndexer(bootstrap.NewExtractor(cfg), chunker, index, docRepo, fetcher)

	// 5. 初始化 Service (依赖注入)
	retrievalService := service.NewRetrievalService(index, cfg.RAG.SearchTimeout())
	answerService := service.NewAnswerService(retrievalService, llm.NewClient(cfg.LLM), service.AnswerOptions{
		TopK:          cfg.RAG.TopK,
		HistoryWindow: cfg.RAG.HistoryWindow,
		Temperature:   cfg.LLM.Generation.Temperature,
		MaxTokens:     cfg.LLM.Generation.MaxTokens,
		AuthorityName: cfg.LLM.Prompt.AuthorityName,
		SystemPrompt:  cfg.LLM.Prompt.System,
	})
	classifier := service.NewEscalationClassifier(cfg.LLM.Prompt.AuthorityName)
	helpdeskService := service.NewHelpdeskService(answerService, classifier, conversationRepo, cfg.RAG.HistoryWindow, cfg.RAG.ExportWindow)

	var (
		objectStore  service.ObjectStore
		taskProducer service.TaskProducer
		producer     *kafka.Producer
	)
	if store != nil {
		objectStore = store
	}
	if cfg.Kafka.Brokers != "" {
		producer = kafka.NewProducer(cfg.Kafka)
		defer producer.Close()
		taskProducer = producer
	}
	documentService := service.NewDocumentService(docRepo, objectStore, taskProducer, cfg.RAG.DocsDir)

	// 6. 后台任务：Kafka 摄取消费者与语料目录监听
	var background sync.WaitGroup
	if producer != nil {
		background.Add(1)
		go func() {
			defer background.Done()
			kafka.StartConsumer(ctx, cfg.Kafka, indexer, database.RDB)
		}()
	}
	if cfg.RAG.Watch {
		startWatcher(ctx, &background, cfg.RAG.DocsDir, indexer, documentService, producer != nil)
	}

	// 7. 设置 Gin 模式并注册路由
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(middleware.RequestLogger(), gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		stats, err := index.Stats(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"code": http.StatusServiceUnavailable, "message": err.Error(), "data": nil})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "ok", "data": stats})
	})

	auth := middleware.AuthMiddleware(token.NewVerifier(cfg.JWT.Secret))
	chatHandler := handler.NewChatHandler(helpdeskService)
	documentHandler := handler.NewDocumentHandler(documentService)

	apiV1 := r.Group("/api/v1")
	{
		// WebSocket 无法设置请求头，token 放在路径中
		apiV1.GET("/chat/ws/:token", auth, chatHandler.Stream)

		authed := apiV1.Group("/")
		authed.Use(auth)
		{
			authed.POST("/chat/query", chatHandler.Query)
			authed.GET("/search", handler.NewSearchHandler(retrievalService, cfg.RAG.TopK).Search)
			authed.GET("/documents", documentHandler.ListDocuments)
			authed.GET("/documents/download", documentHandler.GenerateDownloadURL)
			authed.POST("/documents/ingest", documentHandler.Ingest)
			authed.GET("/conversations/:id", handler.NewConversationHandler(helpdeskService).Export)
		}
	}

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	<-ctx.Done()
	log.Info("接收到停机信号，正在关闭服务...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("HTTP 服务器关闭失败: %v", err)
	}
	background.Wait()
	log.Info("服务已优雅关闭")
}

// startWatcher 监听语料目录。有 Kafka 时新文件作为任务入队，否则在当前进程内直接摄取。
func startWatcher(ctx context.Context, wg *sync.WaitGroup, dir string, indexer *pipeline.Indexer, docs service.DocumentService, queued bool) {
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		log.Errorf("[CorpusWatcher] 创建语料目录失败: %v", err)
		return
	}
	handle := func(ctx context.Context, path string) error {
		if queued {
			return docs.EnqueueFile(ctx, path)
		}
		res := indexer.IngestFile(ctx, path)
		return res.Err
	}
	w, err := watcher.NewCorpusWatcher(dir, watcher.DefaultDebounce, handle)
	if err != nil {
		log.Errorf("[CorpusWatcher] 启动失败: %v", err)
		return
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = w.Run(ctx)
	}()
}
