package service

import (
	"context"
	"sort"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/wolfitem/nostr-digest/internal/domain/model"
	"github.com/wolfitem/nostr-digest/internal/infrastructure/logger"
)

const (
	// DefaultSinceDays 默认新鲜度窗口（天）
	DefaultSinceDays = 7
	// DefaultMaxPerCat 每个分类默认保留的条目数
	DefaultMaxPerCat = 5
)

// Aggregator 按分类获取、过滤、去重并截断条目
type Aggregator struct {
	feeds     FeedService
	window    time.Duration
	maxPerCat int
	now       func() time.Time
}

// NewAggregator 创建聚合器，非正数参数使用默认值
func NewAggregator(feeds FeedService, window time.Duration, maxPerCat int) *Aggregator {
	if window <= 0 {
		window = DefaultSinceDays * 24 * time.Hour
	}
	if maxPerCat <= 0 {
		maxPerCat = DefaultMaxPerCat
	}
	return &Aggregator{feeds: feeds, window: window, maxPerCat: maxPerCat, now: time.Now}
}

// Aggregate 依次处理每个分类，分类内部的订阅源并发获取
func (a *Aggregator) Aggregate(ctx context.Context, categories []model.Category) model.Digest {
	defer logger.TimeTrack("Aggregate")()

	cutoff := a.now().Add(-a.window)
	digest := model.Digest{Groups: make([]model.CategoryGroup, 0, len(categories))}
	for _, cat := range categories {
		all := a.feeds.FetchAll(ctx, cat.Feeds)
		fresh := SortNewestFirst(FilterFresh(all, cutoff))
		items := Truncate(Dedupe(fresh), a.maxPerCat)
		logger.Info("分类聚合完成", "category", cat.Name, "fetched", len(all), "fresh", len(fresh), "kept", len(items))
		digest.Groups = append(digest.Groups, model.CategoryGroup{Name: cat.Name, Items: items})
	}
	return digest
}

// FilterFresh 只保留发布时间不早于 cutoff 的条目
func FilterFresh(items []model.FeedItem, cutoff time.Time) []model.FeedItem {
	out := make([]model.FeedItem, 0, len(items))
	for _, it := range items {
		if !it.PublishedAt.Before(cutoff) {
			out = append(out, it)
		}
	}
	return out
}

// SortNewestFirst 按发布时间倒序稳定排序，原地修改并返回
func SortNewestFirst(items []model.FeedItem) []model.FeedItem {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].PublishedAt.After(items[j].PublishedAt)
	})
	return items
}

// Dedupe 按链接去重，保留首次出现的条目；没有链接的条目被丢弃
func Dedupe(items []model.FeedItem) []model.FeedItem {
	seen := mapset.NewThreadUnsafeSet[string]()
	out := make([]model.FeedItem, 0, len(items))
	for _, it := range items {
		if it.Link == "" || seen.Contains(it.Link) {
			continue
		}
		seen.Add(it.Link)
		out = append(out, it)
	}
	return out
}

// Truncate 最多保留前 max 个条目
func Truncate(items []model.FeedItem, max int) []model.FeedItem {
	if len(items) <= max {
		return items
	}
	return items[:max]
}
