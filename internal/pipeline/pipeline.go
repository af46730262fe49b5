// Package pipeline 把新闻源抓取和逐条加工串联为一期早报。
package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/iabetor/morningbrief/internal/logger"
	"github.com/iabetor/morningbrief/internal/metrics"
	"github.com/iabetor/morningbrief/internal/narrative"
	"github.com/iabetor/morningbrief/internal/rss"
)

// Fetcher 抓取新闻源。
type Fetcher interface {
	FetchFeed(ctx context.Context, endpoint string, maxItems int) (*rss.Feed, error)
}

// ArticleProcessor 加工单条新闻，永远返回完整的 Article。
type ArticleProcessor interface {
	Process(ctx context.Context, item rss.FeedItem) narrative.Article
}

// Entry 早报中的一条：原始新闻及其加工结果。
type Entry struct {
	Item    rss.FeedItem      `json:"item"`
	Article narrative.Article `json:"article"`
}

// Edition 一期早报。
type Edition struct {
	Date        time.Time `json:"date"`
	GeneratedAt time.Time `json:"generated_at"`
	FeedTitle   string    `json:"feed_title"`
	Endpoint    string    `json:"endpoint"`
	Entries     []Entry   `json:"entries"`

	// FetchErr 非空表示新闻源不可达，Entries 为空。
	FetchErr   error  `json:"-"`
	FetchError string `json:"fetch_error,omitempty"`
}

// Empty 返回早报是否没有任何条目。
func (e *Edition) Empty() bool {
	return len(e.Entries) == 0
}

// Progress 每加工完一条新闻上报一次。Index 从 0 开始。
type Progress struct {
	Index int
	Total int
	Entry Entry
}

// Options 流水线配置。
type Options struct {
	Endpoint string
	MaxItems int
	// TTL 内重复请求复用上一期早报，0 表示每次都重新生成。
	TTL time.Duration
}

// Pipeline 是早报生成的编排器。同一时刻只运行一次生成。
type Pipeline struct {
	fetcher   Fetcher
	processor ArticleProcessor
	opts      Options
	state     *StateMachine
	now       func() time.Time

	runMu  sync.Mutex
	mu     sync.RWMutex
	latest *Edition
}

// New 创建流水线。
func New(fetcher Fetcher, processor ArticleProcessor, opts Options) *Pipeline {
	return &Pipeline{
		fetcher:   fetcher,
		processor: processor,
		opts:      opts,
		state:     NewStateMachine(),
		now:       time.Now,
	}
}

// State 返回当前运行状态。
func (p *Pipeline) State() State {
	return p.state.Current()
}

// Latest 返回最近一期早报，尚未生成时返回 nil。
func (p *Pipeline) Latest() *Edition {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.latest
}

// Current 在 TTL 内返回最近一期早报，否则重新生成。
func (p *Pipeline) Current(ctx context.Context) (*Edition, error) {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	if latest := p.Latest(); latest != nil && p.opts.TTL > 0 && p.now().Sub(latest.GeneratedAt) < p.opts.TTL {
		return latest, nil
	}
	return p.run(ctx, nil)
}

// Run 抓取新闻源并按顺序逐条加工，每加工完一条调用一次 progress（可为 nil）。
//
// 新闻源不可达时返回 FetchErr 非空的空早报，不返回错误；
// 单条加工失败只影响该条（降级记录），不影响其他条目；
// ctx 取消时在两条之间停止并返回 ctx.Err()。
func (p *Pipeline) Run(ctx context.Context, progress func(Progress)) (*Edition, error) {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	return p.run(ctx, progress)
}

func (p *Pipeline) run(ctx context.Context, progress func(Progress)) (*Edition, error) {
	now := p.now()
	edition := &Edition{
		Date:        now,
		GeneratedAt: now,
		Endpoint:    p.opts.Endpoint,
		Entries:     []Entry{},
	}

	p.state.Transition(StateFetching)
	feed, err := p.fetcher.FetchFeed(ctx, p.opts.Endpoint, p.opts.MaxItems)
	metrics.RecordFetch(err)
	if err != nil {
		if ctx.Err() != nil {
			p.state.ForceIdle()
			return nil, ctx.Err()
		}
		var fetchErr *rss.FetchError
		if !errors.As(err, &fetchErr) {
			err = &rss.FetchError{Endpoint: p.opts.Endpoint, Err: err}
		}
		logger.Errorf("[pipeline] %v", err)
		edition.FetchErr = err
		edition.FetchError = err.Error()
		p.state.Transition(StateReady)
		p.store(edition)
		return edition, nil
	}

	edition.FeedTitle = feed.Title
	total := len(feed.Items)
	logger.Infof("[pipeline] 获取到 %d 条新闻，开始加工", total)

	p.state.Transition(StateProcessing)
	for i, item := range feed.Items {
		if err := ctx.Err(); err != nil {
			logger.Warnf("[pipeline] 已取消，完成 %d/%d 条", i, total)
			p.state.ForceIdle()
			return nil, err
		}

		entry := Entry{Item: item, Article: p.processor.Process(ctx, item)}
		metrics.RecordArticle(entry.Article.Degraded)
		edition.Entries = append(edition.Entries, entry)

		if progress != nil {
			progress(Progress{Index: i, Total: total, Entry: entry})
		}
	}

	// 最后一条加工期间被取消时，结果含有取消导致的降级记录，不能缓存
	if err := ctx.Err(); err != nil {
		logger.Warnf("[pipeline] 已取消，丢弃本次结果")
		p.state.ForceIdle()
		return nil, err
	}

	p.state.Transition(StateReady)
	p.store(edition)
	logger.Infof("[pipeline] 早报生成完成: %d 条，耗时 %v", total, p.now().Sub(now).Round(time.Millisecond))
	return edition, nil
}

func (p *Pipeline) store(e *Edition) {
	p.mu.Lock()
	p.latest = e
	p.mu.Unlock()
}
