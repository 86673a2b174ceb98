package queue

import (
	"sync/atomic"
	"time"
)

// MetricOperation 定义指标操作类型
type MetricOperation string

const (
	OpPush    MetricOperation = "push"
	OpProcess MetricOperation = "process"
)

// QueueMetrics 队列性能指标收集器
type QueueMetrics struct {
	totalTasks      atomic.Int64
	successfulTasks atomic.Int64
	failedTasks     atomic.Int64
	requeuedTasks   atomic.Int64

	// 处理耗时（毫秒），粗粒度观测用
	totalProcessMs atomic.Int64
	processCount   atomic.Int64
}

// NewQueueMetrics 创建新的指标收集器
func NewQueueMetrics() *QueueMetrics {
	return &QueueMetrics{}
}

// RecordSuccess 记录成功操作
func (m *QueueMetrics) RecordSuccess(op MetricOperation) {
	m.successfulTasks.Add(1)
	m.totalTasks.Add(1)
}

// RecordError 记录失败操作
func (m *QueueMetrics) RecordError(op MetricOperation) {
	m.failedTasks.Add(1)
	m.totalTasks.Add(1)
}

// RecordRequeue 记录重新入队
func (m *QueueMetrics) RecordRequeue() {
	m.requeuedTasks.Add(1)
}

// RecordProcessingTime 记录任务处理时间
func (m *QueueMetrics) RecordProcessingTime(d time.Duration) {
	m.totalProcessMs.Add(d.Milliseconds())
	m.processCount.Add(1)
}

// Snapshot 指标快照
type Snapshot struct {
	Total        int64 `json:"total"`
	Successful   int64 `json:"successful"`
	Failed       int64 `json:"failed"`
	Requeued     int64 `json:"requeued"`
	AvgProcessMs int64 `json:"avg_process_ms"`
}

// Snapshot 读取当前指标
func (m *QueueMetrics) Snapshot() Snapshot {
	s := Snapshot{
		Total:      m.totalTasks.Load(),
		Successful: m.successfulTasks.Load(),
		Failed:     m.failedTasks.Load(),
		Requeued:   m.requeuedTasks.Load(),
	}
	if count := m.processCount.Load(); count > 0 {
		s.AvgProcessMs = m.totalProcessMs.Load() / count
	}
	return s
}
