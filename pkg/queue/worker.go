package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gebeya/pkg/logger"
	"gebeya/pkg/paygate"
	"gebeya/pkg/reconcile"
)

// Reconciler 工作器对对账引擎的依赖
type Reconciler interface {
	Reconcile(ctx context.Context, provider paygate.Provider, reference string) (*reconcile.Outcome, error)
}

// Worker 队列工作器组
type Worker struct {
	queueService *QueueService
	engine       Reconciler
	stopChan     chan struct{}
	wg           sync.WaitGroup
	config       WorkerConfig
}

// WorkerConfig 工作器配置
type WorkerConfig struct {
	WorkerCount     int           // 并发工作器数量
	MaxRetries      int           // 最大重试次数
	RetryInterval   time.Duration // 重试间隔
	ShutdownTimeout time.Duration // 关闭超时时间
}

// NewWorker 创建新的工作器组
func NewWorker(qs *QueueService, engine Reconciler, config WorkerConfig) *Worker {
	if config.WorkerCount <= 0 {
		config.WorkerCount = 4
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	if config.RetryInterval <= 0 {
		config.RetryInterval = 2 * time.Second
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = 30 * time.Second
	}

	return &Worker{
		queueService: qs,
		engine:       engine,
		stopChan:     make(chan struct{}),
		config:       config,
	}
}

// Start 启动工作器组
func (w *Worker) Start() {
	for i := 0; i < w.config.WorkerCount; i++ {
		w.wg.Add(1)
		go w.startWorker(i)
	}
}

// startWorker 启动单个工作器
func (w *Worker) startWorker(id int) {
	defer w.wg.Done()

	logger.InfoString("Worker", "Start", fmt.Sprintf("Worker %d started", id))

	for {
		select {
		case <-w.stopChan:
			logger.InfoString("Worker", "Stop", fmt.Sprintf("Worker %d stopping", id))
			return
		default:
			if err := w.processNextTask(); err != nil {
				logger.ErrorString("Worker", "Error", fmt.Sprintf("Worker %d: %v", id, err))
				time.Sleep(time.Second) // 错误恢复延迟
			}
		}
	}
}

// processNextTask 取出并处理下一个任务
func (w *Worker) processNextTask() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// 短阻塞弹出，保证 stopChan 能被及时观察到
	task, err := w.queueService.PopTask(ctx, 3*time.Second)
	if err != nil {
		return fmt.Errorf("pop task error: %w", err)
	}
	if task == nil {
		return nil
	}

	start := time.Now()
	defer func() {
		w.queueService.metrics.RecordProcessingTime(time.Since(start))
	}()

	return w.handleTask(ctx, task)
}

// handleTask 处理单个 webhook 对账任务
// 供应商暂不可用时在重试预算内重新入队，结构性坏报文直接判死不再重试
func (w *Worker) handleTask(ctx context.Context, task *WebhookTask) error {
	_, err := w.engine.Reconcile(ctx, paygate.Provider(task.Provider), task.Reference)
	if err == nil {
		w.queueService.metrics.RecordSuccess(OpProcess)
		return nil
	}

	if errors.Is(err, paygate.ErrProviderUnavailable) {
		task.Attempts++
		if task.Attempts < w.config.MaxRetries {
			w.queueService.metrics.RecordRequeue()
			logger.WarnString("Worker", "Requeue",
				fmt.Sprintf("reference=%s attempts=%d: %v", task.Reference, task.Attempts, err))
			time.Sleep(w.config.RetryInterval)
			return w.queueService.PushTask(ctx, task)
		}
		w.queueService.metrics.RecordError(OpProcess)
		logger.ErrorString("Worker", "RetryExhausted",
			fmt.Sprintf("reference=%s attempts=%d: %v", task.Reference, task.Attempts, err))
		return nil
	}

	// 不可重试错误：留痕后丢弃，客户端 verify 或下一次 webhook 仍可收敛
	w.queueService.metrics.RecordError(OpProcess)
	logger.ErrorString("Worker", "Process",
		fmt.Sprintf("reference=%s provider=%s: %v", task.Reference, task.Provider, err))
	return nil
}

// Stop 优雅关闭工作器组
func (w *Worker) Stop() {
	close(w.stopChan)

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.InfoString("Worker", "Stop", "All workers stopped gracefully")
	case <-time.After(w.config.ShutdownTimeout):
		logger.WarnString("Worker", "Stop", "Worker shutdown timed out")
	}
}
