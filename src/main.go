package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"receipt-scanner-go/src/analytics"
	"receipt-scanner-go/src/configs"
	"receipt-scanner-go/src/configs/database"
	"receipt-scanner-go/src/configs/server"
	"receipt-scanner-go/src/core/metrics"
	"receipt-scanner-go/src/core/utils"
	"receipt-scanner-go/src/ocrproxy"
	"receipt-scanner-go/src/offline"
	"receipt-scanner-go/src/ota"

	// 导入所有providers以确保init函数被调用
	_ "receipt-scanner-go/src/core/providers/ocr/google"
	_ "receipt-scanner-go/src/core/providers/ocr/openai"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func LoadConfigAndLogger() (*configs.Config, *utils.Logger, error) {
	// 加载配置,默认使用.config.yaml
	config, configPath, err := configs.LoadConfig()
	if err != nil {
		return nil, nil, err
	}

	// 初始化日志系统
	logger, err := utils.NewLogger(config)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("日志系统初始化成功, 配置文件路径: %s", configPath)

	return config, logger, nil
}

// initStore 配置了数据库时使用数据库，否则退回内存存储
func initStore(config *configs.Config, logger *utils.Logger) analytics.Store {
	db, dbType, err := database.InitDB()
	if err != nil {
		logger.Warn("数据库不可用，分析日志仅保存在内存中: %v", err)
		return analytics.NewMemoryStore(config.Analytics.Retention)
	}
	logger.Info("数据库连接成功: %s", dbType)
	return analytics.NewGormStore(db, config.Analytics.Retention)
}

// services 需要在关闭时收尾的服务
type services struct {
	ocr *ocrproxy.DefaultOCRService
	hub *offline.Hub
}

func StartHttpServer(config *configs.Config, logger *utils.Logger, store analytics.Store, m *metrics.Metrics, g *errgroup.Group, groupCtx context.Context) (*services, error) {
	// 初始化Gin引擎
	if config.Log.LogLevel == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	router.SetTrustedProxies([]string{"0.0.0.0"})

	// API路由全部挂载到/api前缀下
	apiGroup := router.Group("/api")

	// 版本标记
	versionService := ota.NewDefaultVersionService(config.AppVersion, "VERSION", config.Offline.VersionPath)
	if err := versionService.Start(groupCtx, router, apiGroup); err != nil {
		logger.Error("版本服务启动失败", err)
		return nil, err
	}

	// 配置查询
	cfgService, err := server.NewDefaultCfgService(config, logger)
	if err != nil {
		return nil, err
	}
	if err := cfgService.Start(groupCtx, router, apiGroup); err != nil {
		logger.Error("Cfg 服务启动失败", err)
		return nil, err
	}

	// 分析日志
	analyticsService := analytics.NewService(store, logger)
	if err := analyticsService.Start(groupCtx, router, apiGroup); err != nil {
		logger.Error("分析日志服务启动失败", err)
		return nil, err
	}

	// 启动OCR代理
	provider, err := ocrproxy.NewProvider(config, logger)
	if err != nil {
		logger.Error("OCR provider 初始化失败 %v", err)
		return nil, err
	}
	ocrService, err := ocrproxy.NewDefaultOCRService(config, provider, store, logger, m)
	if err != nil {
		logger.Error("OCR 代理初始化失败 %v", err)
		return nil, err
	}
	if err := ocrService.Start(groupCtx, router, apiGroup); err != nil {
		logger.Error("OCR 代理启动失败", err)
		return nil, err
	}

	// 离线缓存：站内资源来自静态目录与版本标记，其余回源
	local := http.NewServeMux()
	local.Handle(config.Offline.VersionPath, versionService.Handler())
	local.Handle("/", offline.DirOrigin(config.Web.StaticDir))
	fetcher, err := offline.NewOriginFetcher(config.Web.Origin, local, 30*time.Second)
	if err != nil {
		return nil, err
	}
	manager := offline.NewManager(config.Offline, offline.NewCacheStorage(), fetcher, logger, m)
	hub := offline.NewHub(manager, logger)
	manager.SetBroadcaster(hub)
	router.GET("/sw", gin.WrapH(hub))
	router.NoRoute(gin.WrapH(manager.Handler()))

	router.GET("/metrics", gin.WrapH(m.Handler()))
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "version": versionService.Version()})
	})

	g.Go(func() error {
		if err := manager.Install(groupCtx); err != nil {
			logger.Warn("离线缓存安装失败: %v", err)
		}
		if err := manager.Activate(groupCtx); err != nil {
			logger.Warn("离线缓存激活失败: %v", err)
		}
		return manager.Run(groupCtx)
	})

	// HTTP Server（支持优雅关机）
	httpServer := &http.Server{
		Addr:    config.Server.IP + ":" + strconv.Itoa(config.Server.Port),
		Handler: router,
	}

	g.Go(func() error {
		logger.Info("Gin 服务已启动，访问地址: http://%s", httpServer.Addr)

		// 在单独的 goroutine 中监听关闭信号
		go func() {
			<-groupCtx.Done()
			logger.Info("收到关闭信号，开始关闭HTTP服务...")
			hub.Close()

			// 创建关闭超时上下文
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("HTTP服务关闭失败", err)
			} else {
				logger.Info("HTTP服务已优雅关闭")
			}
		}()

		// ListenAndServe 返回 ErrServerClosed 时表示正常关闭
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP 服务启动失败", err)
			return err
		}
		return nil
	})

	return &services{ocr: ocrService, hub: hub}, nil
}

func GracefulShutdown(cancel context.CancelFunc, logger *utils.Logger, g *errgroup.Group, svc *services) {
	// 监听系统信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	// 等待信号
	sig := <-sigChan
	logger.Info("接收到系统信号: %v，开始优雅关闭服务", sig)

	// 取消上下文，通知所有服务开始关闭
	cancel()

	// 等待所有服务关闭，设置超时保护
	done := make(chan error, 1)
	go func() {
		err := g.Wait()
		svc.ocr.Wait()
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			logger.Error("服务关闭过程中出现错误", err)
			os.Exit(1)
		}
		logger.Info("所有服务已优雅关闭")
	case <-time.After(15 * time.Second):
		logger.Error("服务关闭超时，强制退出")
		os.Exit(1)
	}
}

func main() {
	// 先加载 .env，配置中的密钥可被环境变量覆盖
	envErr := godotenv.Load()

	// 加载配置和初始化日志系统
	config, logger, err := LoadConfigAndLogger()
	if err != nil {
		fmt.Println("加载配置或初始化日志系统失败:", err)
		os.Exit(1)
	}
	defer logger.Close()
	if envErr != nil {
		logger.Warn("未找到 .env 文件，使用系统环境变量")
	}

	store := initStore(config, logger)
	m := metrics.New()

	// 创建可取消的上下文
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g, groupCtx := errgroup.WithContext(ctx)

	svc, err := StartHttpServer(config, logger, store, m, g, groupCtx)
	if err != nil {
		logger.Error("启动服务失败:", err)
		cancel()
		os.Exit(1)
	}

	// 启动优雅关机处理
	GracefulShutdown(cancel, logger, g, svc)

	logger.Info("程序已成功退出")
}
