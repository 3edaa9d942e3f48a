package service

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/wolfitem/nostr-digest/internal/domain/model"
	"github.com/wolfitem/nostr-digest/internal/infrastructure/logger"
)

// Validator 提供输入验证功能
type Validator struct{}

// NewValidator 创建新的验证器实例
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateOpmlPath 验证OPML文件路径
func (v *Validator) ValidateOpmlPath(filePath string) error {
	if strings.TrimSpace(filePath) == "" {
		return errors.New("文件路径不能为空")
	}

	cleanPath := filepath.Clean(filePath)
	if !strings.HasSuffix(strings.ToLower(cleanPath), ".opml") && !strings.HasSuffix(strings.ToLower(cleanPath), ".xml") {
		return fmt.Errorf("只允许.opml或.xml文件: %s", cleanPath)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return fmt.Errorf("文件访问失败: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("路径指向目录而非文件: %s", cleanPath)
	}
	// 最大10MB限制
	if info.Size() > 10*1024*1024 {
		return fmt.Errorf("文件过大(>10MB): %s", cleanPath)
	}
	return nil
}

// ValidateFeedURL 验证订阅源URL，只允许HTTP/HTTPS
func (v *Validator) ValidateFeedURL(raw string) error {
	return validateURL(raw, "http", "https")
}

// ValidateRelayURL 验证中继URL，只允许WS/WSS
func (v *Validator) ValidateRelayURL(raw string) error {
	return validateURL(raw, "ws", "wss")
}

func validateURL(raw string, schemes ...string) error {
	if strings.TrimSpace(raw) == "" {
		return errors.New("URL不能为空")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("无效的URL格式: %s: %w", raw, err)
	}
	if u.Host == "" {
		return fmt.Errorf("URL缺少主机名: %s", raw)
	}
	scheme := strings.ToLower(u.Scheme)
	for _, s := range schemes {
		if scheme == s {
			return nil
		}
	}
	return fmt.Errorf("不支持的协议 %q，只允许 %s: %s", u.Scheme, strings.Join(schemes, "/"), raw)
}

// Sanitize 丢弃无效的中继和订阅源并补齐默认值，返回清理后的参数
func (v *Validator) Sanitize(params model.DigestParams) model.DigestParams {
	relays := make([]string, 0, len(params.Relays))
	for _, r := range params.Relays {
		if err := v.ValidateRelayURL(r); err != nil {
			logger.Warn("忽略无效的中继地址", "relay", r, "error", err)
			continue
		}
		relays = append(relays, r)
	}
	params.Relays = relays

	categories := make([]model.Category, 0, len(params.Categories))
	for _, c := range params.Categories {
		feeds := make([]string, 0, len(c.Feeds))
		for _, f := range c.Feeds {
			if err := v.ValidateFeedURL(f); err != nil {
				logger.Warn("忽略无效的订阅源地址", "category", c.Name, "url", f, "error", err)
				continue
			}
			feeds = append(feeds, f)
		}
		categories = append(categories, model.Category{Name: c.Name, Feeds: feeds})
	}
	params.Categories = categories

	if params.SinceDays <= 0 {
		params.SinceDays = DefaultSinceDays
	}
	if params.MaxPerCat <= 0 {
		params.MaxPerCat = DefaultMaxPerCat
	}
	return params
}
