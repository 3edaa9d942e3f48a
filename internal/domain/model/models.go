package model

import "time"

// DigestParams 包含一次运行所需的全部参数，启动时构造一次
type DigestParams struct {
	Categories   []Category    // 分类及其订阅源，按配置顺序
	Relays       []string      // 中继地址列表
	SinceDays    int           // 获取几天内的条目
	MaxPerCat    int           // 每个分类最多保留的条目数
	Hashtags     string        // 附加在每条笔记末尾的话题标签
	Title        string        // 摘要标题
	SecretKey    string        // nsec 或十六进制私钥，仅发布时需要
	Post         bool          // 是否真正发布
	FeedTimeout  time.Duration // 单个订阅源的获取超时
	RelayTimeout time.Duration // 单个中继的发送超时
}

// Window 返回新鲜度窗口
func (p DigestParams) Window() time.Duration {
	return time.Duration(p.SinceDays) * 24 * time.Hour
}

// Category 表示一个分类及其订阅源
type Category struct {
	Name  string   `mapstructure:"name"`
	Feeds []string `mapstructure:"feeds"`
}

// FeedItem 表示订阅源中的一个条目
type FeedItem struct {
	Title       string    // 标题
	Link        string    // 链接
	PublishedAt time.Time // 发布时间，缺失时为 Unix 纪元
	Source      string    // 显示用的主机名
}

// CategoryGroup 表示一个分类过滤、去重、截断后的条目，按时间倒序
type CategoryGroup struct {
	Name  string
	Items []FeedItem
}

// CategoryCount 表示一个分类的条目数量
type CategoryCount struct {
	Name  string
	Count int
}

// Digest 表示一次聚合的结果，分组顺序与配置一致
type Digest struct {
	Groups []CategoryGroup
}

// Counts 返回每个分类的条目数量
func (d Digest) Counts() []CategoryCount {
	counts := make([]CategoryCount, 0, len(d.Groups))
	for _, g := range d.Groups {
		counts = append(counts, CategoryCount{Name: g.Name, Count: len(g.Items)})
	}
	return counts
}

// Total 返回所有分类的条目总数
func (d Digest) Total() int {
	total := 0
	for _, g := range d.Groups {
		total += len(g.Items)
	}
	return total
}

// RelayOutcome 表示向单个中继发送的结果
type RelayOutcome struct {
	Relay string
	Err   error
}

// OK 表示中继是否接受
func (o RelayOutcome) OK() bool {
	return o.Err == nil
}
