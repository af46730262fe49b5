package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/iabetor/morningbrief/internal/logger"
	"github.com/iabetor/morningbrief/internal/metrics"
)

const (
	// DefaultEndpoint PushPlus 发送接口。
	DefaultEndpoint = "http://www.pushplus.plus/send"
	channelPushPlus = "pushplus"
	defaultTimeout  = 10 * time.Second
	maxResponseBody = 64 * 1024
)

// ErrMissingToken 未配置 PushPlus token。
var ErrMissingToken = errors.New("未配置 PushPlus token")

// NotificationError 推送失败：传输错误或非 2xx 状态码。
type NotificationError struct {
	StatusCode int // 传输错误时为 0
	Body       string
	Err        error
}

func (e *NotificationError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("[notify] 推送失败，状态码 %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("[notify] 推送失败: %v", e.Err)
}

func (e *NotificationError) Unwrap() error { return e.Err }

// Options PushPlus 客户端配置。
type Options struct {
	Token    string
	Endpoint string
	Timeout  time.Duration
	Client   *http.Client
	History  *History // 可为 nil
}

// PushPlus 推送客户端。
type PushPlus struct {
	token    string
	endpoint string
	client   *http.Client
	history  *History
}

type pushRequest struct {
	Token    string `json:"token"`
	Title    string `json:"title"`
	Content  string `json:"content"`
	Template string `json:"template"`
}

// NewPushPlus 创建 PushPlus 客户端，token 为空时返回 ErrMissingToken。
func NewPushPlus(opts Options) (*PushPlus, error) {
	if opts.Token == "" {
		return nil, ErrMissingToken
	}
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	return &PushPlus{token: opts.Token, endpoint: endpoint, client: client, history: opts.History}, nil
}

// Send 发送一条消息，返回服务端原始响应体（不解析）。
// 每次尝试都会写入推送记录。
func (p *PushPlus) Send(ctx context.Context, msg Message) (string, error) {
	if msg.Template == "" {
		msg.Template = TemplateMarkdown
	}

	body, err := p.post(ctx, msg)
	metrics.RecordNotification(channelPushPlus, err)

	if p.history != nil {
		status, response := StatusSent, body
		if err != nil {
			status, response = StatusFailed, err.Error()
		}
		if herr := p.history.Record(ctx, Record{
			Channel:  channelPushPlus,
			Title:    msg.Title,
			Status:   status,
			Response: response,
		}); herr != nil {
			logger.Warnf("[notify] 写入推送记录失败: %v", herr)
		}
	}

	if err != nil {
		logger.Errorf("[notify] %v", err)
		return "", err
	}
	logger.Infof("[notify] 推送结果: %s", body)
	return body, nil
}

func (p *PushPlus) post(ctx context.Context, msg Message) (string, error) {
	payload, err := json.Marshal(pushRequest{
		Token:    p.token,
		Title:    msg.Title,
		Content:  msg.Content,
		Template: msg.Template,
	})
	if err != nil {
		return "", &NotificationError{Err: fmt.Errorf("序列化请求失败: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", &NotificationError{Err: fmt.Errorf("创建请求失败: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", &NotificationError{Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return "", &NotificationError{StatusCode: resp.StatusCode, Err: fmt.Errorf("读取响应失败: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &NotificationError{StatusCode: resp.StatusCode, Body: string(data)}
	}
	return string(data), nil
}
