package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/wolfitem/nostr-digest/internal/domain/model"
	domainservice "github.com/wolfitem/nostr-digest/internal/domain/service"
	"github.com/wolfitem/nostr-digest/internal/infrastructure/logger"
	"github.com/wolfitem/nostr-digest/internal/infrastructure/nostr"
)

var defaultRelays = []string{
	"wss://relay.primal.net",
	"wss://nos.lol",
	"wss://relay.damus.io",
	"wss://relay.nostr.bg",
	"wss://nostr.wine",
	"wss://relay.wellorder.net",
}

var defaultCategories = []model.Category{
	{Name: "Core Protocol", Feeds: []string{
		"https://bitcoinops.org/feed.xml",
		"https://github.com/bitcoin/bitcoin/releases.atom",
	}},
	{Name: "Lightning & L2", Feeds: []string{
		"https://github.com/lightningnetwork/lnd/releases.atom",
		"https://github.com/ElementsProject/lightning/releases.atom",
		"https://github.com/lightningdevkit/rust-lightning/releases.atom",
		"https://github.com/ACINQ/eclair/releases.atom",
		"https://github.com/ACINQ/phoenix/releases.atom",
	}},
	{Name: "Federated / Ecash", Feeds: []string{
		"https://github.com/fedimint/fedimint/releases.atom",
		"https://github.com/cashubtc/nuts/releases.atom",
	}},
	{Name: "Use-cases & Adoption", Feeds: []string{
		"https://blog.blockstream.com/rss/",
	}},
}

func setDefaults() {
	viper.SetDefault("nostr.relays", defaultRelays)
	viper.SetDefault("nostr.relay_timeout", int(nostr.DefaultRelayTimeout/time.Second))
	viper.SetDefault("digest.since_days", domainservice.DefaultSinceDays)
	viper.SetDefault("digest.max_per_cat", domainservice.DefaultMaxPerCat)
	viper.SetDefault("digest.hashtags", domainservice.DefaultHashtags)
	viper.SetDefault("digest.title", domainservice.DefaultTitle)
	viper.SetDefault("feeds.timeout", int(domainservice.DefaultFeedTimeout/time.Second))
	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.console", true)
}

// bindEnv 保留原有的环境变量名
func bindEnv() {
	viper.BindEnv("nostr.relays", "RELAYS")
	viper.BindEnv("nostr.nsec", "NOSTR_NSEC")
	viper.BindEnv("nostr.relay_timeout", "RELAY_TIMEOUT")
	viper.BindEnv("digest.since_days", "SINCE_DAYS")
	viper.BindEnv("digest.max_per_cat", "MAX_PER_CAT")
	viper.BindEnv("digest.hashtags", "HASHTAGS")
	viper.BindEnv("digest.title", "DIGEST_TITLE")
	viper.BindEnv("feeds.timeout", "FEED_TIMEOUT")
	viper.BindEnv("rss.opml_file", "OPML_FILE")
	viper.BindEnv("logger.level", "LOG_LEVEL")
	viper.AutomaticEnv()
}

// buildParams 从 viper 构造一次运行的参数
func buildParams() (model.DigestParams, error) {
	categories, err := loadCategories()
	if err != nil {
		return model.DigestParams{}, err
	}

	params := model.DigestParams{
		Categories:   categories,
		Relays:       stringList("nostr.relays"),
		SinceDays:    viper.GetInt("digest.since_days"),
		MaxPerCat:    viper.GetInt("digest.max_per_cat"),
		Hashtags:     viper.GetString("digest.hashtags"),
		Title:        viper.GetString("digest.title"),
		SecretKey:    viper.GetString("nostr.nsec"),
		Post:         postFlag,
		FeedTimeout:  time.Duration(viper.GetInt("feeds.timeout")) * time.Second,
		RelayTimeout: time.Duration(viper.GetInt("nostr.relay_timeout")) * time.Second,
	}
	return domainservice.NewValidator().Sanitize(params), nil
}

// loadCategories 优先使用OPML，其次配置文件，最后使用内置分类
func loadCategories() ([]model.Category, error) {
	path := opmlFile
	if path == "" {
		path = viper.GetString("rss.opml_file")
	}
	if path != "" {
		if err := domainservice.NewValidator().ValidateOpmlPath(path); err != nil {
			return nil, fmt.Errorf("OPML文件无效: %w", err)
		}
		return domainservice.NewFeedService(0, nil).ParseOpml(path)
	}

	var categories []model.Category
	if err := viper.UnmarshalKey("categories", &categories); err != nil {
		return nil, fmt.Errorf("解析分类配置失败: %w", err)
	}
	if len(categories) == 0 {
		logger.Debug("未配置分类，使用内置分类")
		return defaultCategories, nil
	}
	return categories, nil
}

// stringList 支持逗号分隔的字符串（环境变量）或yaml列表
func stringList(key string) []string {
	if s, ok := viper.Get(key).(string); ok {
		return splitList(s)
	}
	return viper.GetStringSlice(key)
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
