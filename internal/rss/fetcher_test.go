package rss

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

const testRSSFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Test Wire</title>
    <link>https://example.com</link>
    <description>A test RSS feed</description>
    <item>
      <title>EU reaches deal on AI Act</title>
      <link>https://example.com/post/1</link>
      <description>&lt;p&gt;Negotiators agreed on &lt;b&gt;the AI Act&lt;/b&gt;.&lt;/p&gt;</description>
      <pubDate>Thu, 19 Feb 2026 06:00:00 +0800</pubDate>
    </item>
    <item>
      <title>Toyota solid-state battery</title>
      <link>https://example.com/post/2</link>
      <description>Ten minutes to charge</description>
      <pubDate>Thu, 19 Feb 2026 08:00:00 +0800</pubDate>
    </item>
    <item>
      <title>Third story</title>
      <link>https://example.com/post/3</link>
      <description>plain</description>
      <pubDate>Thu, 19 Feb 2026 07:00:00 +0800</pubDate>
    </item>
    <item>
      <title>Fourth story</title>
      <link>https://example.com/post/4</link>
      <description>plain</description>
    </item>
  </channel>
</rss>`

const testAtomFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Atom Blog</title>
  <entry>
    <title>Atom entry</title>
    <link href="https://example.com/atom/1"/>
    <summary>Atom summary</summary>
    <updated>2026-02-19T09:00:00+08:00</updated>
  </entry>
</feed>`

const testEmptyFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>Empty</title></channel></rss>`

func setupTestServer(content string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprint(w, content)
	}))
}

func TestFetchTruncatesAndPreservesOrder(t *testing.T) {
	srv := setupTestServer(testRSSFeed)
	defer srv.Close()

	fetcher := NewFetcher(Options{})
	items, err := fetcher.Fetch(context.Background(), srv.URL, 3)
	if err != nil {
		t.Fatalf("Fetch 失败: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("期望 3 条，得到 %d 条", len(items))
	}

	// 不按发布时间重排
	want := []string{"EU reaches deal on AI Act", "Toyota solid-state battery", "Third story"}
	for i, w := range want {
		if items[i].Title != w {
			t.Errorf("items[%d].Title = %q, 期望 %q", i, items[i].Title, w)
		}
	}
	if items[0].Link != "https://example.com/post/1" {
		t.Errorf("Link 不匹配: %s", items[0].Link)
	}
	if items[0].Summary != "Negotiators agreed on the AI Act." {
		t.Errorf("HTML 应被剥离，实际: %q", items[0].Summary)
	}
	if items[0].Published.IsZero() {
		t.Error("Published 应被解析")
	}
}

func TestFetchMinOfCountAndLimit(t *testing.T) {
	srv := setupTestServer(testRSSFeed)
	defer srv.Close()

	fetcher := NewFetcher(Options{})
	for _, limit := range []int{1, 2, 4, 10} {
		items, err := fetcher.Fetch(context.Background(), srv.URL, limit)
		if err != nil {
			t.Fatalf("Fetch(%d) 失败: %v", limit, err)
		}
		if want := min(4, limit); len(items) != want {
			t.Errorf("limit=%d: 期望 %d 条，得到 %d 条", limit, want, len(items))
		}
	}
}

func TestFetchDefaultLimit(t *testing.T) {
	srv := setupTestServer(testRSSFeed)
	defer srv.Close()

	items, err := NewFetcher(Options{MaxItems: 2}).Fetch(context.Background(), srv.URL, 0)
	if err != nil {
		t.Fatalf("Fetch 失败: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("期望使用默认上限 2，得到 %d 条", len(items))
	}
}

func TestFetchEmptyFeed(t *testing.T) {
	srv := setupTestServer(testEmptyFeed)
	defer srv.Close()

	items, err := NewFetcher(Options{}).Fetch(context.Background(), srv.URL, 3)
	if err != nil {
		t.Fatalf("空 Feed 不应报错: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("期望 0 条，得到 %d 条", len(items))
	}
}

func TestFetchFeedAtom(t *testing.T) {
	srv := setupTestServer(testAtomFeed)
	defer srv.Close()

	feed, err := NewFetcher(Options{}).FetchFeed(context.Background(), srv.URL, 3)
	if err != nil {
		t.Fatalf("FetchFeed Atom 失败: %v", err)
	}
	if feed.Title != "Atom Blog" {
		t.Errorf("Atom 标题不匹配: %s", feed.Title)
	}
	if len(feed.Items) != 1 || feed.Items[0].Summary != "Atom summary" {
		t.Errorf("Atom 条目不匹配: %+v", feed.Items)
	}
	if feed.Items[0].Published.IsZero() {
		t.Error("应使用 updated 作为发布时间")
	}
}

func TestFetchInvalidContent(t *testing.T) {
	srv := setupTestServer("not xml")
	defer srv.Close()

	_, err := NewFetcher(Options{}).Fetch(context.Background(), srv.URL, 3)
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("期望 FetchError，得到 %v", err)
	}
	if fetchErr.Endpoint != srv.URL {
		t.Errorf("Endpoint 不匹配: %s", fetchErr.Endpoint)
	}
}

func TestFetchHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewFetcher(Options{}).Fetch(context.Background(), srv.URL, 3)
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("期望 FetchError，得到 %v", err)
	}
	if !strings.Contains(err.Error(), "HTTP 502") {
		t.Errorf("错误信息应包含状态码: %v", err)
	}
}

func TestFetchTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	_, err := NewFetcher(Options{Timeout: 50 * time.Millisecond}).Fetch(context.Background(), srv.URL, 3)
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("超时应返回 FetchError，得到 %v", err)
	}
}

func TestFetchEmptyEndpoint(t *testing.T) {
	_, err := NewFetcher(Options{}).Fetch(context.Background(), " ", 3)
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("空地址应返回 FetchError，得到 %v", err)
	}
}

func TestItemsSinglePass(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		fmt.Fprint(w, testRSSFeed)
	}))
	defer srv.Close()

	seq := NewFetcher(Options{}).Items(context.Background(), srv.URL, 2)

	var titles []string
	for item, err := range seq {
		if err != nil {
			t.Fatalf("Items 产出错误: %v", err)
		}
		titles = append(titles, item.Title)
	}
	if len(titles) != 2 {
		t.Fatalf("期望 2 条，得到 %d 条", len(titles))
	}

	// 第二次遍历不产出任何内容
	for range seq {
		t.Fatal("序列不可重复遍历")
	}
	if calls != 1 {
		t.Errorf("应只请求一次，实际 %d 次", calls)
	}
}

func TestItemsYieldsError(t *testing.T) {
	srv := setupTestServer("garbage")
	defer srv.Close()

	var gotErr error
	for _, err := range NewFetcher(Options{}).Items(context.Background(), srv.URL, 2) {
		gotErr = err
	}
	if gotErr == nil {
		t.Fatal("期望产出错误")
	}
}

func TestStripHTML(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"<p>Hello <b>World</b></p>", "Hello World"},
		{"plain text", "plain text"},
		{"&amp; &lt; &gt; &quot;", "& < > \""},
		{"<div>  多个   空格  </div>", "多个 空格"},
		{"<p>one</p><p>two</p>", "one two"},
		{"keep<script>alert(1)</script> text", "keep text"},
		{"", ""},
	}

	for _, tc := range tests {
		got := stripHTML(tc.input)
		if got != tc.expected {
			t.Errorf("stripHTML(%q) = %q, 期望 %q", tc.input, got, tc.expected)
		}
	}
}

func TestTruncate(t *testing.T) {
	short := "短文本"
	if got := truncate(short, 200); got != short {
		t.Errorf("短文本不应被截断: %s", got)
	}

	long := strings.Repeat("这是一段很长的文字", 50)
	runes := []rune(truncate(long, 200))
	// 200 字符 + "..." = 203 runes
	if len(runes) != 203 {
		t.Errorf("截断后长度应为 203 rune，实际 %d", len(runes))
	}
}
