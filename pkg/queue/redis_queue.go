// Package queue webhook 对账任务队列
//
// 已通过签名校验的 webhook 先入队再回 200，处理失败重新入队而不是丢弃，
// 避免把内部故障暴露给供应商引起重试风暴。
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"gebeya/pkg/config"
	"gebeya/pkg/redis"
)

// WebhookTask 一次待对账的 webhook 通知
type WebhookTask struct {
	ID         string    `json:"id"`
	Provider   string    `json:"provider"`
	Reference  string    `json:"reference"`
	Attempts   int       `json:"attempts"`
	ReceivedAt time.Time `json:"received_at"`
}

// QueueService Redis 队列服务
type QueueService struct {
	client      *redis.RedisClient
	prefix      string
	rateLimiter *rate.Limiter
	metrics     *QueueMetrics
}

// NewQueueService 创建新的队列服务实例
func NewQueueService() *QueueService {
	rateLimit := config.GetInt("queue.rate_limit", 100)
	burst := config.GetInt("queue.rate_burst", rateLimit)

	return &QueueService{
		client:      redis.GetRedis(redis.QueueDB),
		prefix:      config.GetString("redis.queue_prefix", "gebeya:webhook"),
		rateLimiter: rate.NewLimiter(rate.Limit(rateLimit), burst),
		metrics:     NewQueueMetrics(),
	}
}

// PushTask 将任务推送到队列
func (q *QueueService) PushTask(ctx context.Context, task *WebhookTask) error {
	// 应用限流
	if err := q.rateLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit exceeded: %w", err)
	}

	taskJSON, err := json.Marshal(task)
	if err != nil {
		q.metrics.RecordError(OpPush)
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	key := fmt.Sprintf("%s:tasks", q.prefix)
	if err := q.client.Client.LPush(ctx, key, taskJSON).Err(); err != nil {
		q.metrics.RecordError(OpPush)
		return fmt.Errorf("failed to push task: %w", err)
	}

	q.metrics.RecordSuccess(OpPush)
	return nil
}

// PopTask 从队列中获取任务，空队列阻塞至 timeout 后返回 (nil, nil)
func (q *QueueService) PopTask(ctx context.Context, timeout time.Duration) (*WebhookTask, error) {
	key := fmt.Sprintf("%s:tasks", q.prefix)

	result, err := q.client.Client.BRPop(ctx, timeout, key).Result()
	if err != nil {
		if err == goredis.Nil {
			return nil, nil
		}
		if err == context.DeadlineExceeded || err == context.Canceled {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to pop task from queue: %w", err)
	}

	if len(result) != 2 {
		return nil, fmt.Errorf("invalid result from queue")
	}

	var task WebhookTask
	if err := json.Unmarshal([]byte(result[1]), &task); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task: %w", err)
	}

	return &task, nil
}

// Length 当前队列长度
func (q *QueueService) Length(ctx context.Context) (int64, error) {
	key := fmt.Sprintf("%s:tasks", q.prefix)
	return q.client.Client.LLen(ctx, key).Result()
}

// Ping 检查队列服务健康状态
func (q *QueueService) Ping(ctx context.Context) error {
	return q.client.Ping()
}

// Metrics 暴露指标收集器
func (q *QueueService) Metrics() *QueueMetrics {
	return q.metrics
}
