// Package llm 提供 OpenAI 兼容的对话补全客户端及多模型自动降级。
package llm

import (
	"context"
	"errors"
	"fmt"
)

// Message 表示与 LLM 对话中的一条消息。
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Provider 定义一次性返回完整回复的 LLM 后端接口。
type Provider interface {
	// Complete 发送对话消息并返回完整的回复文本。
	Complete(ctx context.Context, messages []Message) (string, error)
}

// APIError 表示服务端返回了非 200 状态码。
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("[llm] API 返回状态码 %d: %s", e.StatusCode, e.Body)
}

// ErrEmptyReply 表示模型返回了空内容。
var ErrEmptyReply = errors.New("[llm] 模型返回空回复")
