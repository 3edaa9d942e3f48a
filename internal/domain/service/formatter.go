package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/wolfitem/nostr-digest/internal/domain/model"
)

const (
	// DefaultHashtags 默认话题标签
	DefaultHashtags = "#Bitcoin #Development #Lightning #Fedimint #Cashu"
	// DefaultTitle 默认摘要标题
	DefaultTitle = "Bitcoin Development Digest"
	// maxTitleRunes 条目标题的最大长度
	maxTitleRunes = 160
)

// Formatter 渲染父笔记与分类回复的纯文本
type Formatter struct {
	Title    string
	Hashtags string
	Window   time.Duration
}

// NewFormatter 创建格式化器，空值使用默认值
func NewFormatter(title, hashtags string, window time.Duration) Formatter {
	if title == "" {
		title = DefaultTitle
	}
	if hashtags == "" {
		hashtags = DefaultHashtags
	}
	if window <= 0 {
		window = DefaultSinceDays * 24 * time.Hour
	}
	return Formatter{Title: title, Hashtags: hashtags, Window: window}
}

// SummaryText 渲染父笔记：日期区间、每个分类的数量以及话题标签
func (f Formatter) SummaryText(counts []model.CategoryCount, now time.Time) string {
	end := now.UTC()
	start := end.Add(-f.Window)

	lines := []string{
		fmt.Sprintf("# %s — %s → %s", f.Title, start.Format("2006-01-02"), end.Format("2006-01-02")),
		"",
	}
	for _, c := range counts {
		lines = append(lines, fmt.Sprintf("• %s: %s", c.Name, Pluralize(c.Count)))
	}
	lines = append(lines, "", "Replies contain details per category.", f.Hashtags)
	return strings.Join(lines, "\n")
}

// DetailText 渲染单个分类的回复笔记
func (f Formatter) DetailText(category string, items []model.FeedItem) string {
	bullets := make([]string, 0, len(items))
	for _, it := range items {
		bullets = append(bullets, fmt.Sprintf("• %s\n  %s", CleanTitle(it.Title), it.Link))
	}

	lines := []string{
		"## " + category,
		"",
		strings.Join(bullets, "\n"),
		"",
		f.Hashtags,
	}
	return strings.Join(lines, "\n")
}

// Pluralize 返回 "1 update" 或 "N updates"
func Pluralize(count int) string {
	if count == 1 {
		return "1 update"
	}
	return fmt.Sprintf("%d updates", count)
}

// CleanTitle 合并连续空白并截断到 160 个字符
func CleanTitle(title string) string {
	t := strings.Join(strings.Fields(title), " ")
	r := []rune(t)
	if len(r) > maxTitleRunes {
		return string(r[:maxTitleRunes])
	}
	return t
}
