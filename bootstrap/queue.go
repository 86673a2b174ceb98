package bootstrap

import (
	"time"

	"gebeya/pkg/config"
	"gebeya/pkg/logger"
	"gebeya/pkg/queue"
	"gebeya/pkg/redis"
)

// SetupQueue 启动 webhook 对账队列
// 返回的 Worker 交给 main 在关停时 Stop
func SetupQueue(queueService *queue.QueueService, engine queue.Reconciler) *queue.Worker {
	if redis.Manager == nil {
		logger.ErrorString("Queue", "Setup", "Redis manager not initialized")
		return nil
	}

	worker := queue.NewWorker(queueService, engine, queue.WorkerConfig{
		WorkerCount:     config.GetInt("queue.worker_count", 4),
		MaxRetries:      config.GetInt("queue.retry_times", 3),
		RetryInterval:   time.Duration(config.GetInt("queue.retry_delay", 2)) * time.Second,
		ShutdownTimeout: 30 * time.Second,
	})

	worker.Start()

	logger.InfoString("Queue", "Setup", "队列服务启动成功")
	return worker
}
