package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/wolfitem/nostr-digest/internal/domain/model"
	"github.com/wolfitem/nostr-digest/internal/domain/service"
	"github.com/wolfitem/nostr-digest/internal/infrastructure/logger"
	"github.com/wolfitem/nostr-digest/internal/infrastructure/nostr"
	"github.com/wolfitem/nostr-digest/internal/middleware"
)

// NoRecentItemsMessage 所有分类都没有新条目时打印的提示
const NoRecentItemsMessage = "No recent items (try increasing SINCE_DAYS)."

var (
	// ErrMissingKey 发布模式下未配置私钥
	ErrMissingKey = errors.New("missing NOSTR_NSEC")
	// ErrNoRelays 发布模式下没有可用的中继
	ErrNoRelays = errors.New("no relays configured")
)

// Gatherer 按分类聚合条目
type Gatherer interface {
	Aggregate(ctx context.Context, categories []model.Category) model.Digest
}

// EventPublisher 将签名事件广播到中继
type EventPublisher interface {
	Publish(ctx context.Context, ev *nostr.Event) ([]model.RelayOutcome, error)
}

// DigestService 定义摘要生成与发布的应用服务接口
type DigestService interface {
	// Run 聚合、预览，并在发布模式下签名发布父笔记及其分类回复
	Run(ctx context.Context) error
}

// Dependencies 应用服务的外部依赖
type Dependencies struct {
	Gatherer  Gatherer
	Publisher EventPublisher
	Metrics   *middleware.MetricsCollector
	Now       func() time.Time
}

type digestService struct {
	params model.DigestParams
	out    io.Writer
	deps   Dependencies
}

// NewDigestService 使用运行参数和给定依赖创建服务，预览与状态行写入 out
func NewDigestService(params model.DigestParams, out io.Writer, deps Dependencies) DigestService {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if out == nil {
		out = io.Discard
	}
	return &digestService{params: params, out: out, deps: deps}
}

// NewDefaultDigestService 基于参数创建使用真实网络的服务
func NewDefaultDigestService(params model.DigestParams, out io.Writer) DigestService {
	metrics := middleware.NewMetricsCollector()
	feeds := service.NewFeedService(params.FeedTimeout, metrics)
	return NewDigestService(params, out, Dependencies{
		Gatherer:  service.NewAggregator(feeds, params.Window(), params.MaxPerCat),
		Publisher: nostr.NewPublisher(params.Relays, nostr.NewWebsocketSender(), params.RelayTimeout, out, metrics),
		Metrics:   metrics,
	})
}

type childNote struct {
	category string
	text     string
}

// Run 执行 GATHER → PREVIEW → REQUIRE_KEY → 父笔记 → 分类回复
func (s *digestService) Run(ctx context.Context) error {
	params, out := s.params, s.out
	logger.Info("开始生成摘要", "categories", len(params.Categories), "since_days", params.SinceDays, "post", params.Post)
	defer logger.TimeTrack("DigestRun")()
	defer middleware.LogMetrics(s.deps.Metrics)
	logger.LogMemStatsOnce("start")

	digest := s.deps.Gatherer.Aggregate(ctx, params.Categories)
	s.deps.Metrics.RecordItems(digest.Total())
	if digest.Total() == 0 {
		logger.Info("没有找到新条目", "since_days", params.SinceDays)
		fmt.Fprintln(out, NoRecentItemsMessage)
		return nil
	}

	// 预览不需要私钥，总是输出
	formatter := service.NewFormatter(params.Title, params.Hashtags, params.Window())
	parentText := formatter.SummaryText(digest.Counts(), s.deps.Now())
	fmt.Fprintf(out, "\n--- PARENT NOTE PREVIEW ---\n\n%s\n\n", parentText)

	var children []childNote
	for _, g := range digest.Groups {
		if len(g.Items) == 0 {
			continue
		}
		text := formatter.DetailText(g.Name, g.Items)
		children = append(children, childNote{category: g.Name, text: text})
		fmt.Fprintf(out, "\n--- CHILD NOTE PREVIEW (%s) ---\n\n%s\n\n", g.Name, text)
	}

	if !params.Post {
		fmt.Fprintln(out, "(Dry run: not posting)")
		return nil
	}

	signer, err := requireKey(params.SecretKey)
	if err != nil {
		return err
	}
	if len(params.Relays) == 0 {
		return ErrNoRelays
	}

	parent, err := signer.Sign(parentText, nil)
	if err != nil {
		return fmt.Errorf("sign parent note: %w", err)
	}
	// 父笔记未被任何中继接受时不发布回复
	if _, err := s.deps.Publisher.Publish(ctx, parent); err != nil {
		return fmt.Errorf("publish parent note: %w", err)
	}
	fmt.Fprintf(out, "Published parent as npub: %s\n", signer.Keys().Npub())
	logger.Info("父笔记发布成功", "event_id", parent.ID)

	for _, c := range children {
		ev, err := signer.Sign(c.text, nostr.Tags{nostr.ReplyTag(parent.ID)})
		if err != nil {
			return fmt.Errorf("sign reply for %q: %w", c.category, err)
		}
		if _, err := s.deps.Publisher.Publish(ctx, ev); err != nil {
			return fmt.Errorf("publish reply for %q: %w", c.category, err)
		}
		logger.Info("分类回复发布成功", "category", c.category, "event_id", ev.ID)
	}
	return nil
}

func requireKey(secret string) (*nostr.Signer, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, ErrMissingKey
	}
	keys, err := nostr.ParseSecretKey(secret)
	if err != nil {
		return nil, err
	}
	return nostr.NewSigner(keys), nil
}
