package service

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gilliek/go-opml/opml"
	"github.com/mmcdole/gofeed"
	"github.com/sourcegraph/conc/iter"
	"github.com/wolfitem/nostr-digest/internal/domain/model"
	"github.com/wolfitem/nostr-digest/internal/infrastructure/logger"
	"github.com/wolfitem/nostr-digest/internal/middleware"
)

// DefaultFeedTimeout 单个订阅源的默认获取超时
const DefaultFeedTimeout = 15 * time.Second

// ungroupedCategory OPML 顶层直接出现的订阅源归入此分类
const ungroupedCategory = "Other"

// epoch 缺失或无效日期的占位值，过滤时总是排在最后
var epoch = time.Unix(0, 0).UTC()

// FeedService 定义订阅源获取的领域服务接口
type FeedService interface {
	// ParseOpml 解析OPML文件，顶层分组作为分类
	ParseOpml(opmlFilePath string) ([]model.Category, error)

	// Fetch 获取并解析单个订阅源，失败时记录日志并返回空列表
	Fetch(ctx context.Context, url string) []model.FeedItem

	// FetchAll 并发获取多个订阅源，结果按URL顺序拼接
	FetchAll(ctx context.Context, urls []string) []model.FeedItem
}

type feedService struct {
	parser  *gofeed.Parser
	timeout time.Duration
	metrics *middleware.MetricsCollector
}

// NewFeedService 创建一个新的订阅源服务实例，metrics 可为 nil
func NewFeedService(timeout time.Duration, metrics *middleware.MetricsCollector) FeedService {
	if timeout <= 0 {
		timeout = DefaultFeedTimeout
	}
	fp := gofeed.NewParser()
	fp.Client = &http.Client{Timeout: timeout}
	return &feedService{parser: fp, timeout: timeout, metrics: metrics}
}

// ParseOpml 解析OPML文件并返回分类列表
func (s *feedService) ParseOpml(opmlFilePath string) ([]model.Category, error) {
	logger.Info("开始解析OPML文件", "file", opmlFilePath)
	defer logger.TimeTrack("ParseOpml")()

	doc, err := opml.NewOPMLFromFile(opmlFilePath)
	if err != nil {
		return nil, fmt.Errorf("解析OPML文件失败: %w", err)
	}

	var categories []model.Category
	var ungrouped []string
	for _, outline := range doc.Outlines() {
		if len(outline.Outlines) == 0 {
			if outline.XMLURL != "" {
				ungrouped = append(ungrouped, outline.XMLURL)
			}
			continue
		}
		feeds := extractFeeds(outline)
		if len(feeds) == 0 {
			continue
		}
		categories = append(categories, model.Category{Name: outlineName(outline), Feeds: feeds})
	}
	if len(ungrouped) > 0 {
		categories = append(categories, model.Category{Name: ungroupedCategory, Feeds: ungrouped})
	}

	logger.Info("OPML文件解析完成", "file", opmlFilePath, "categories_count", len(categories))
	return categories, nil
}

func outlineName(outline opml.Outline) string {
	if outline.Title != "" {
		return outline.Title
	}
	return outline.Text
}

// extractFeeds 递归提取outline中的订阅源地址
func extractFeeds(outline opml.Outline) []string {
	var feeds []string
	if outline.XMLURL != "" {
		feeds = append(feeds, outline.XMLURL)
	}
	for _, child := range outline.Outlines {
		feeds = append(feeds, extractFeeds(child)...)
	}
	return feeds
}

// Fetch 获取单个订阅源
func (s *feedService) Fetch(ctx context.Context, url string) []model.FeedItem {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	feed, err := s.parser.ParseURLWithContext(url, ctx)
	if err != nil {
		logger.Error("Feed error", "url", url, "error", err)
		s.metrics.RecordFeed(false)
		return []model.FeedItem{}
	}
	s.metrics.RecordFeed(true)

	items := make([]model.FeedItem, 0, len(feed.Items))
	for _, it := range feed.Items {
		items = append(items, toFeedItem(it, url))
	}
	logger.Debug("成功获取订阅源", "url", url, "items_count", len(items))
	return items
}

// FetchAll 同时获取所有订阅源，单个失败不影响其他
func (s *feedService) FetchAll(ctx context.Context, urls []string) []model.FeedItem {
	mapper := iter.Mapper[string, []model.FeedItem]{MaxGoroutines: len(urls)}
	results := mapper.Map(urls, func(u *string) []model.FeedItem {
		return s.Fetch(ctx, *u)
	})
	var all []model.FeedItem
	for _, r := range results {
		all = append(all, r...)
	}
	return all
}

func toFeedItem(it *gofeed.Item, feedURL string) model.FeedItem {
	link := strings.TrimSpace(it.Link)
	if link == "" {
		link = strings.TrimSpace(it.GUID)
	}

	published := epoch
	if it.PublishedParsed != nil {
		published = *it.PublishedParsed
	} else if it.UpdatedParsed != nil {
		published = *it.UpdatedParsed
	}

	hostSource := it.Link
	if hostSource == "" {
		hostSource = feedURL
	}

	return model.FeedItem{
		Title:       strings.TrimSpace(it.Title),
		Link:        link,
		PublishedAt: published,
		Source:      SourceHost(hostSource),
	}
}

// SourceHost 去掉 http(s):// 前缀后取第一个路径段
func SourceHost(rawURL string) string {
	s := rawURL
	for _, prefix := range []string{"https://", "http://"} {
		if strings.HasPrefix(s, prefix) {
			s = s[len(prefix):]
			break
		}
	}
	host, _, _ := strings.Cut(s, "/")
	return host
}
