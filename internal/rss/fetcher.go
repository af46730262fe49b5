package rss

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/iabetor/morningbrief/internal/logger"
	"github.com/mmcdole/gofeed"
	"golang.org/x/net/html"
)

const (
	defaultMaxItems     = 3
	defaultFetchTimeout = 10 * time.Second
	defaultSummaryRunes = 2000
	userAgent           = "MorningBrief/1.0 Feed Reader"
)

// Options 抓取器参数，零值字段使用默认值。
type Options struct {
	Timeout         time.Duration
	MaxItems        int
	MaxSummaryRunes int
	Client          *http.Client
}

// Fetcher 负责抓取单个新闻源并转换为 FeedItem。
// 不做缓存，每次调用都会访问网络。
type Fetcher struct {
	parser       *gofeed.Parser
	client       *http.Client
	maxItems     int
	summaryRunes int
}

// NewFetcher 创建新闻源抓取器。
func NewFetcher(opts Options) *Fetcher {
	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultFetchTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	maxItems := opts.MaxItems
	if maxItems <= 0 {
		maxItems = defaultMaxItems
	}
	summaryRunes := opts.MaxSummaryRunes
	if summaryRunes <= 0 {
		summaryRunes = defaultSummaryRunes
	}

	return &Fetcher{
		parser:       gofeed.NewParser(),
		client:       client,
		maxItems:     maxItems,
		summaryRunes: summaryRunes,
	}
}

// Fetch 抓取 endpoint 并返回最多 maxItems 条新闻，保持新闻源原有顺序。
// maxItems <= 0 时使用默认上限。失败时返回 *FetchError，不返回部分数据。
func (f *Fetcher) Fetch(ctx context.Context, endpoint string, maxItems int) ([]FeedItem, error) {
	feed, err := f.FetchFeed(ctx, endpoint, maxItems)
	if err != nil {
		return nil, err
	}
	return feed.Items, nil
}

// FetchFeed 与 Fetch 相同，但同时返回新闻源标题。
func (f *Fetcher) FetchFeed(ctx context.Context, endpoint string, maxItems int) (*Feed, error) {
	if maxItems <= 0 {
		maxItems = f.maxItems
	}

	start := time.Now()
	parsed, err := f.parseFeed(ctx, endpoint)
	if err != nil {
		logger.Warnf("[rss] 抓取 %s 失败: %v", endpoint, err)
		return nil, &FetchError{Endpoint: endpoint, Err: err}
	}

	items := f.convertItems(parsed, maxItems)
	logger.Infof("[rss] 抓取 %s 完成: %d/%d 条, 耗时 %s",
		endpoint, len(items), len(parsed.Items), time.Since(start).Round(time.Millisecond))

	return &Feed{
		Title:    parsed.Title,
		Endpoint: endpoint,
		Items:    items,
	}, nil
}

// Items 以惰性序列的形式返回新闻，只能遍历一次。
// 抓取失败时产出一次 (零值, err) 后结束。
func (f *Fetcher) Items(ctx context.Context, endpoint string, maxItems int) iter.Seq2[FeedItem, error] {
	consumed := false
	return func(yield func(FeedItem, error) bool) {
		if consumed {
			return
		}
		consumed = true

		items, err := f.Fetch(ctx, endpoint, maxItems)
		if err != nil {
			yield(FeedItem{}, err)
			return
		}
		for _, item := range items {
			if !yield(item, nil) {
				return
			}
		}
	}
}

// parseFeed 请求并解析 Feed。
func (f *Fetcher) parseFeed(ctx context.Context, endpoint string) (*gofeed.Feed, error) {
	if strings.TrimSpace(endpoint) == "" {
		return nil, errors.New("新闻源地址为空")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	return f.parser.Parse(resp.Body)
}

// convertItems 将 gofeed 条目转换为 FeedItem，截断到 maxItems。
func (f *Fetcher) convertItems(feed *gofeed.Feed, maxItems int) []FeedItem {
	n := min(len(feed.Items), maxItems)

	items := make([]FeedItem, 0, n)
	for _, gItem := range feed.Items[:n] {
		summary := gItem.Description
		if summary == "" {
			summary = gItem.Content
		}
		summary = truncate(stripHTML(summary), f.summaryRunes)

		var published time.Time
		if gItem.PublishedParsed != nil {
			published = *gItem.PublishedParsed
		} else if gItem.UpdatedParsed != nil {
			published = *gItem.UpdatedParsed
		}

		items = append(items, FeedItem{
			Title:     strings.TrimSpace(gItem.Title),
			Link:      gItem.Link,
			Summary:   summary,
			Published: published,
		})
	}
	return items
}

// stripHTML 剥离 HTML 标签，只保留纯文本，实体会被解码。
func stripHTML(s string) string {
	z := html.NewTokenizer(strings.NewReader(s))
	var sb strings.Builder
	skip := 0 // script/style 嵌套深度

	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(sb.String()), " ")
		case html.TextToken:
			if skip == 0 {
				sb.Write(z.Text())
			}
		case html.StartTagToken:
			name, _ := z.TagName()
			if isRawTextTag(name) {
				skip++
			}
			if isBlockTag(name) {
				sb.WriteByte(' ')
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if isRawTextTag(name) && skip > 0 {
				skip--
			}
			if isBlockTag(name) {
				sb.WriteByte(' ')
			}
		case html.SelfClosingTagToken:
			sb.WriteByte(' ')
		}
	}
}

func isRawTextTag(name []byte) bool {
	switch string(name) {
	case "script", "style":
		return true
	}
	return false
}

func isBlockTag(name []byte) bool {
	switch string(name) {
	case "p", "div", "li", "br", "h1", "h2", "h3", "h4", "tr", "blockquote":
		return true
	}
	return false
}

// truncate 截断字符串到指定字符数（按 UTF-8 字符计算）。
func truncate(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxLen]) + "..."
}
