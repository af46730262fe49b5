package narrative

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iabetor/morningbrief/internal/llm"
	"github.com/iabetor/morningbrief/internal/logger"
	"github.com/iabetor/morningbrief/internal/rss"
)

// Generator 是实际执行加工的后端。
type Generator interface {
	Generate(ctx context.Context, item rss.FeedItem) (Article, error)
}

// LLMGenerator 通过大模型一次性完成翻译和解读。
type LLMGenerator struct {
	provider llm.Provider
}

// NewLLMGenerator 创建基于 llm.Provider 的加工后端。
func NewLLMGenerator(provider llm.Provider) *LLMGenerator {
	return &LLMGenerator{provider: provider}
}

// Generate 发送固定模板的指令并严格解析回复。
func (g *LLMGenerator) Generate(ctx context.Context, item rss.FeedItem) (Article, error) {
	messages := []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: BuildPrompt(item)},
	}

	raw, err := g.provider.Complete(ctx, messages)
	if err != nil {
		return Article{}, &GenerationError{Stage: StageRequest, Err: err}
	}
	return ParseReply(raw)
}

// Options Processor 参数。
type Options struct {
	Timeout       time.Duration // 单条新闻的加工超时，<= 0 表示 60 秒
	FailureNotice string        // 为空使用 DefaultFailureNotice
}

// Processor 加工单条新闻，失败时降级。
type Processor struct {
	gen     Generator
	timeout time.Duration
	notice  string
}

// NewProcessor 创建新闻加工器。
func NewProcessor(gen Generator, opts Options) *Processor {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	notice := opts.FailureNotice
	if notice == "" {
		notice = DefaultFailureNotice
	}
	return &Processor{gen: gen, timeout: timeout, notice: notice}
}

// Process 加工一条新闻。无论成功与否都返回完整的 Article，不会 panic。
func (p *Processor) Process(ctx context.Context, item rss.FeedItem) (article Article) {
	defer func() {
		if r := recover(); r != nil {
			article = p.degrade(item, &GenerationError{Stage: StagePanic, Err: fmt.Errorf("%v", r)})
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	result, err := p.gen.Generate(ctx, item)
	if err != nil {
		return p.degrade(item, classify(ctx, err))
	}

	logger.Infof("[narrative] 《%s》加工完成，耗时 %s", item.Title, time.Since(start).Round(time.Millisecond))
	return result
}

// degrade 生成降级记录：标题保持原文，全文为固定提示，解读中展示失败原因。
func (p *Processor) degrade(item rss.FeedItem, err *GenerationError) Article {
	logger.Warnf("[narrative] 《%s》加工失败，使用降级结果: %v", item.Title, err)
	return Article{
		TranslatedTitle: item.Title,
		FullTranslation: p.notice,
		AISummary:       "AI 处理出错: " + err.Error(),
		Degraded:        true,
		Err:             err,
	}
}

// classify 把任意错误归一为 GenerationError，超时单独标记。
func classify(ctx context.Context, err error) *GenerationError {
	timedOut := errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded)

	var genErr *GenerationError
	if errors.As(err, &genErr) {
		if timedOut && genErr.Stage == StageRequest {
			return &GenerationError{Stage: StageTimeout, Err: genErr.Err}
		}
		return genErr
	}
	if timedOut {
		return &GenerationError{Stage: StageTimeout, Err: err}
	}
	return &GenerationError{Stage: StageRequest, Err: err}
}
