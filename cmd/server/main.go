// Package main 是应用程序的入口点。
package main

import (
	"context"
	"flag"
	"fmt"
	"localchat-go/internal/config"
	"localchat-go/internal/handler"
	"localchat-go/internal/middleware"
	"localchat-go/internal/pipeline"
	"localchat-go/internal/repository"
	"localchat-go/internal/service"
	"localchat-go/pkg/database"
	"localchat-go/pkg/kafka"
	"localchat-go/pkg/llm"
	"localchat-go/pkg/log"
	"net/http"
	"os"
	"os/signal"
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
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 初始化数据库和 Redis
	database.InitDB(cfg.Database.Driver, cfg.Database.DSN)
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)

	// 4. 初始化 Repository
	conversationRepo := repository.NewConversationRepository(database.DB)
	messageRepo := repository.NewMessageRepository(database.DB)
	projectRepo := repository.NewProjectRepository(database.DB)

	lockTTL := time.Duration(cfg.Chat.LockTTLSeconds) * time.Second
	var generationLock repository.GenerationLock
	if database.RDB != nil {
		generationLock = repository.NewRedisGenerationLock(database.RDB, lockTTL)
	} else {
		generationLock = repository.NewLocalGenerationLock()
	}

	// 5. 初始化 Service (依赖注入)
	llmClient := llm.NewClient(cfg.LLM)
	titleService := service.NewTitleService(conversationRepo, messageRepo, llmClient)
	titleTimeout := time.Duration(cfg.Chat.TitleTimeoutSeconds) * time.Second

	bgCtx, cancelBg := context.WithCancel(context.Background())
	defer cancelBg()

	// 6. 标题生成：启用 Kafka 时投递任务并启动后台消费者，否则在进程内异步执行
	var titleDispatcher service.TitleDispatcher
	if cfg.Kafka.Enabled {
		kafka.InitProducer(cfg.Kafka)
		defer kafka.CloseProducer()
		titleDispatcher = kafka.TitleTaskDispatcher{}
		go kafka.StartConsumer(bgCtx, cfg.Kafka, pipeline.NewTitleProcessor(titleService, titleTimeout))
	} else {
		titleDispatcher = service.NewAsyncTitleDispatcher(titleService, titleTimeout)
	}

	aggregator := service.NewStreamAggregator(conversationRepo, messageRepo, titleDispatcher, time.Now)
	chatService := service.NewChatService(conversationRepo, messageRepo, projectRepo, generationLock, llmClient, aggregator, cfg.LLM.Generation)
	conversationService := service.NewConversationService(conversationRepo, messageRepo, projectRepo)
	projectService := service.NewProjectService(projectRepo)
	pricingService := service.NewPricingService(cfg.Pricing, database.RDB)

	// 7. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	r.Use(middleware.RequestLogger(), gin.Recovery())

	// 8. 注册路由
	handler.RegisterRoutes(r,
		handler.NewChatHandler(chatService),
		handler.NewConversationHandler(conversationService, titleService),
		handler.NewProjectHandler(projectService),
		handler.NewCatalogHandler(pricingService),
	)

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

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	// 设置一个5秒的超时上下文
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("HTTP 服务器关闭失败: %v", err)
	}
	cancelBg()

	log.Info("服务已优雅关闭")
}
