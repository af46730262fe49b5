package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/iabetor/morningbrief/internal/logger"
)

const maxErrorBody = 1024

// OpenAIProvider 通过 chat completions 接口与 OpenAI 兼容的 API 通信。
// 回复整体缓冲后返回，不使用流式。
type OpenAIProvider struct {
	apiURL      string
	apiKey      string
	model       string
	temperature float64
	httpClient  *http.Client
}

// NewOpenAIProvider 创建一个新的 OpenAI 兼容 LLM 提供者。
// timeout <= 0 时使用 60 秒。
func NewOpenAIProvider(apiURL, apiKey, model string, timeout time.Duration) *OpenAIProvider {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OpenAIProvider{
		apiURL:      strings.TrimRight(apiURL, "/"),
		apiKey:      apiKey,
		model:       model,
		temperature: 0.3,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// chatRequest 是发送到 chat completions 接口的 JSON 请求体。
type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream"`
	Temperature float64   `json:"temperature"`
}

// chatResponse 是非流式响应体中我们关心的部分。
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete 向 OpenAI 兼容 API 发送对话消息并返回完整回复。
func (p *OpenAIProvider) Complete(ctx context.Context, messages []Message) (string, error) {
	bodyBytes, err := json.Marshal(chatRequest{
		Model:       p.model,
		Messages:    messages,
		Stream:      false,
		Temperature: p.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("[llm] 序列化请求体失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.apiURL+"/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("[llm] 创建请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	start := time.Now()
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("[llm] 请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("[llm] 解析响应失败: %w", err)
	}
	if len(parsed.Choices) == 0 || strings.TrimSpace(parsed.Choices[0].Message.Content) == "" {
		return "", ErrEmptyReply
	}

	content := parsed.Choices[0].Message.Content
	logger.Debugf("[llm] 模型 %s 回复 %d 个字符，耗时 %s",
		p.model, len([]rune(content)), time.Since(start).Round(time.Millisecond))
	return content, nil
}
