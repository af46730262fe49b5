package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/iabetor/morningbrief/internal/logger"
)

// ModelConfig 描述一个 LLM 模型的连接信息。
type ModelConfig struct {
	Name   string // 显示名称
	APIURL string // API 地址
	APIKey string // API Key
	Model  string // 模型名称或接入点 ID
}

// providerEntry 是一个 Provider 及其名称的组合。
type providerEntry struct {
	name     string
	provider Provider
}

// MultiProvider 实现多 LLM 自动降级。
// 按优先级列表顺序尝试，当前模型请求失败时自动切换到下一个，并记住可用的模型。
type MultiProvider struct {
	entries []providerEntry
	current int
	mu      sync.RWMutex
}

// NewMultiProvider 根据模型配置列表创建 MultiProvider。
func NewMultiProvider(configs []ModelConfig, timeout time.Duration) (*MultiProvider, error) {
	if len(configs) == 0 {
		return nil, fmt.Errorf("至少需要一个 LLM 模型配置")
	}

	entries := make([]providerEntry, 0, len(configs))
	for _, cfg := range configs {
		entries = append(entries, providerEntry{
			name:     cfg.Name,
			provider: NewOpenAIProvider(cfg.APIURL, cfg.APIKey, cfg.Model, timeout),
		})
	}

	logger.Infof("[llm] 多模型已初始化，共 %d 个模型：%s", len(entries), formatModelNames(entries))
	return &MultiProvider{entries: entries}, nil
}

// CurrentName 返回当前活跃模型的名称。
func (m *MultiProvider) CurrentName() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.entries[m.current].name
}

// Complete 实现 Provider 接口，从当前活跃模型开始尝试，可降级的错误切换到下一个。
func (m *MultiProvider) Complete(ctx context.Context, messages []Message) (string, error) {
	m.mu.RLock()
	startIdx := m.current
	total := len(m.entries)
	m.mu.RUnlock()

	var lastErr error
	for i := 0; i < total; i++ {
		idx := (startIdx + i) % total
		entry := m.entries[idx]

		logger.Debugf("[llm] 尝试模型 [%s] (%d/%d)", entry.name, idx+1, total)

		reply, err := entry.provider.Complete(ctx, messages)
		if err == nil {
			if idx != startIdx {
				m.mu.Lock()
				m.current = idx
				m.mu.Unlock()
				logger.Infof("[llm] 切换到模型 [%s]", entry.name)
			}
			return reply, nil
		}

		lastErr = err
		logger.Warnf("[llm] 模型 [%s] 请求失败: %v", entry.name, err)

		// 调用方取消时不再尝试其他模型
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if !shouldFallback(err) {
			return "", err
		}
	}

	return "", fmt.Errorf("所有 LLM 模型均不可用，最后错误: %w", lastErr)
}

// shouldFallback 判断错误是否应该触发降级到下一个模型。
func shouldFallback(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 401, 402, 403, 404, 429, 500, 502, 503, 504:
			return true
		}
	}
	if errors.Is(err, ErrEmptyReply) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	errMsg := strings.ToLower(err.Error())
	fallbackKeywords := []string{
		"insufficient", "balance", "quota",
		"rate limit", "too many requests",
		"余额不足", "额度", "限流",
		"timeout", "deadline exceeded", "connection refused",
	}
	for _, kw := range fallbackKeywords {
		if strings.Contains(errMsg, kw) {
			return true
		}
	}
	return false
}

// formatModelNames 格式化模型名称列表用于日志。
func formatModelNames(entries []providerEntry) string {
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.name
	}
	return strings.Join(names, " → ")
}
