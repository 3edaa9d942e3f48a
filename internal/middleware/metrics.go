package middleware

import (
	"fmt"
	"sync"
	"time"

	"github.com/wolfitem/nostr-digest/internal/infrastructure/logger"
)

// MetricsCollector 收集一次运行的统计信息，nil 接收者上的调用均为空操作
type MetricsCollector struct {
	mu sync.Mutex

	startTime time.Time

	// 订阅源统计
	feedsFetched int64
	feedsFailed  int64
	itemsKept    int64

	// 中继统计
	relayAccepts  int64
	relayRejects  int64
	notesSent     int64
	relayDuration time.Duration
}

// NewMetricsCollector 创建新的统计收集器
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{startTime: time.Now()}
}

// RecordFeed 记录一次订阅源获取
func (m *MetricsCollector) RecordFeed(ok bool) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if ok {
		m.feedsFetched++
	} else {
		m.feedsFailed++
	}
}

// RecordItems 记录聚合后保留的条目数
func (m *MetricsCollector) RecordItems(count int) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.itemsKept += int64(count)
}

// RecordRelay 记录一次中继发送
func (m *MetricsCollector) RecordRelay(duration time.Duration, ok bool) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if ok {
		m.relayAccepts++
	} else {
		m.relayRejects++
	}
	m.relayDuration += duration
}

// RecordNote 记录一条成功发布的笔记
func (m *MetricsCollector) RecordNote() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.notesSent++
}

// GetReport 获取统计报告
func (m *MetricsCollector) GetReport() Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := Report{
		Uptime:       time.Since(m.startTime),
		FeedsFetched: m.feedsFetched,
		FeedsFailed:  m.feedsFailed,
		ItemsKept:    m.itemsKept,
		RelayAccepts: m.relayAccepts,
		RelayRejects: m.relayRejects,
		NotesSent:    m.notesSent,
	}
	if attempts := m.relayAccepts + m.relayRejects; attempts > 0 {
		r.AvgRelayLatency = m.relayDuration / time.Duration(attempts)
		r.RelaySuccessRate = float64(m.relayAccepts) / float64(attempts) * 100
	}
	return r
}

// Report 运行统计报告
type Report struct {
	Uptime           time.Duration
	FeedsFetched     int64
	FeedsFailed      int64
	ItemsKept        int64
	RelayAccepts     int64
	RelayRejects     int64
	NotesSent        int64
	AvgRelayLatency  time.Duration
	RelaySuccessRate float64
}

// LogMetrics 记录统计到日志
func LogMetrics(metrics *MetricsCollector) {
	if metrics == nil {
		return
	}
	report := metrics.GetReport()
	logger.Info("运行统计",
		"uptime", report.Uptime,
		"feeds_fetched", report.FeedsFetched,
		"feeds_failed", report.FeedsFailed,
		"items_kept", report.ItemsKept,
		"relay_accepts", report.RelayAccepts,
		"relay_rejects", report.RelayRejects,
		"relay_success_rate", fmt.Sprintf("%.2f%%", report.RelaySuccessRate),
		"relay_avg_latency", fmt.Sprintf("%dms", report.AvgRelayLatency.Milliseconds()),
		"notes_sent", report.NotesSent,
	)
}
