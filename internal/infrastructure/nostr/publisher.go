package nostr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/sourcegraph/conc/iter"
	"github.com/wolfitem/nostr-digest/internal/domain/model"
	"github.com/wolfitem/nostr-digest/internal/infrastructure/logger"
	"github.com/wolfitem/nostr-digest/internal/middleware"
)

// DefaultRelayTimeout 单个中继的默认发送超时
const DefaultRelayTimeout = 8 * time.Second

// ErrPublishFailed 所有中继均未接受事件
var ErrPublishFailed = errors.New("publish failed on all relays")

var (
	okColor  = color.New(color.FgGreen)
	errColor = color.New(color.FgRed)
)

// Publisher 将事件广播到所有中继，至少一个接受即视为成功
type Publisher struct {
	relays  []string
	sender  Sender
	timeout time.Duration
	out     io.Writer
	metrics *middleware.MetricsCollector
	log     *logger.ContextLogger
}

// NewPublisher 创建发布器，out 接收每个中继的 [OK]/[ERR] 状态行
func NewPublisher(relays []string, sender Sender, timeout time.Duration, out io.Writer, metrics *middleware.MetricsCollector) *Publisher {
	if timeout <= 0 {
		timeout = DefaultRelayTimeout
	}
	if out == nil {
		out = io.Discard
	}
	return &Publisher{
		relays:  relays,
		sender:  sender,
		timeout: timeout,
		out:     out,
		metrics: metrics,
		log:     logger.WithContext("publisher"),
	}
}

// Relays 返回配置的中继列表
func (p *Publisher) Relays() []string {
	return p.relays
}

// Publish 并发发送到所有中继并等待全部结束，任何中继的失败都不影响其他中继
func (p *Publisher) Publish(ctx context.Context, ev *Event) ([]model.RelayOutcome, error) {
	// 每个中继一个协程，不受 GOMAXPROCS 限制
	mapper := iter.Mapper[string, model.RelayOutcome]{MaxGoroutines: len(p.relays)}
	outcomes := mapper.Map(p.relays, func(relay *string) model.RelayOutcome {
		sendCtx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()

		start := time.Now()
		err := p.sender.Send(sendCtx, *relay, ev)
		p.metrics.RecordRelay(time.Since(start), err == nil)
		return model.RelayOutcome{Relay: *relay, Err: err}
	})

	accepted := 0
	for _, o := range outcomes {
		if o.OK() {
			accepted++
			okColor.Fprintf(p.out, "[OK]  %s\n", o.Relay)
			p.log.Info("中继接受事件", "relay", o.Relay, "event_id", ev.ID)
			continue
		}
		errColor.Fprintf(p.out, "[ERR] %s → %v\n", o.Relay, o.Err)
		p.log.Warn("中继发送失败", "relay", o.Relay, "event_id", ev.ID, "error", o.Err)
	}

	if accepted == 0 {
		return outcomes, fmt.Errorf("event %s: %w", ev.ID, ErrPublishFailed)
	}
	p.metrics.RecordNote()
	return outcomes, nil
}
