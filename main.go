package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"gebeya/app/repositories"
	"gebeya/bootstrap"
	btsConfig "gebeya/config"
	"gebeya/pkg/config"
	"gebeya/pkg/hub"
	"gebeya/pkg/notify"
	"gebeya/pkg/queue"
	"gebeya/pkg/reconcile"
	"gebeya/routes"
)

// 加载应用程序的基础配置
func init() {
	// 加载 config 目录下的配置信息
	btsConfig.Initialize()
}

// App 应用程序上下文，用于优雅关闭
type App struct {
	server *http.Server
	worker *queue.Worker
	hub    *hub.Registry
}

func main() {
	// 解析命令行参数
	env := parseFlags()

	// 初始化基础组件
	if err := setupApplication(env); err != nil {
		log.Fatalf("初始化应用程序失败: %v", err)
	}

	// 组装业务服务
	svc, worker := setupServices()

	// 创建并配置 Gin 服务器
	router := setupServer(svc)

	app := &App{
		server: &http.Server{
			Addr:    ":" + config.Get("app.port"),
			Handler: router,
		},
		worker: worker,
		hub:    svc.Hub,
	}

	// 启动服务器（包含优雅关闭）
	app.start()
}

// parseFlags 解析命令行参数
func parseFlags() string {
	var env string
	flag.StringVar(&env, "env", "", "加载 .env 文件，例如 --env=testing 将加载 .env.testing 文件")
	flag.Parse()
	return env
}

// setupApplication 初始化应用程序的基础组件
func setupApplication(env string) error {
	// 先初始化配置
	config.InitConfig(env)

	// 然后初始化日志
	bootstrap.SetupLogger()

	// 初始化数据库
	bootstrap.SetupDB()

	// 初始化 Redis
	bootstrap.SetupRedis()

	return nil
}

// setupServices 组装业务服务
// 依赖方向：适配器注册表 / 仓库 / 连接注册表 -> 对账引擎 -> 队列工作器
func setupServices() (*routes.Services, *queue.Worker) {
	gateway := bootstrap.SetupPaygate()
	repo := repositories.NewPaymentRepository()
	connHub := bootstrap.SetupHub()
	dispatcher := notify.NewDispatcher(connHub)

	engine := reconcile.NewEngine(
		gateway,
		repo,
		dispatcher,
		config.GetString("payment.default_currency", "ETB"),
		time.Duration(config.GetInt("payment.timeout", 10))*time.Second,
	)

	queueService := queue.NewQueueService()
	worker := bootstrap.SetupQueue(queueService, engine)

	return &routes.Services{
		Gateway: gateway,
		Repo:    repo,
		Engine:  engine,
		Queue:   queueService,
		Hub:     connHub,
	}, worker
}

// setupServer 配置并返回 Gin 服务器实例
func setupServer(svc *routes.Services) *gin.Engine {
	// 设置 gin 为生产模式，减少不必要的日志输出
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// 设置路由
	bootstrap.SetupRoute(router, svc)

	return router
}

// start 启动服务器并处理优雅关闭
func (a *App) start() {
	// 创建系统信号监听器
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("服务器正在启动，监听端口 %s\n", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("服务器启动失败: %v", err)
		}
	}()

	// 等待中断信号
	<-quit
	log.Println("正在关闭服务器...")

	// 先停 worker，保证在途对账任务处理完或退回队列
	if a.worker != nil {
		a.worker.Stop()
	}

	// 断开所有推送连接
	if a.hub != nil {
		a.hub.CloseAll()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 优雅关闭服务器
	if err := a.server.Shutdown(ctx); err != nil {
		log.Fatalf("服务器关闭异常: %v", err)
	}

	log.Println("服务器已成功关闭")
}
