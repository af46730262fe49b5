// Package rss 提供新闻源（RSS/Atom/JSON Feed）的抓取与条目规整。
package rss

import (
	"fmt"
	"time"
)

// FeedItem 新闻源中的一条新闻，只读，不持久化。
type FeedItem struct {
	Title     string    `json:"title"`
	Link      string    `json:"link"`
	Summary   string    `json:"summary"`
	Published time.Time `json:"published"`
}

// Feed 一次抓取的结果。
type Feed struct {
	Title    string     `json:"title"`
	Endpoint string     `json:"endpoint"`
	Items    []FeedItem `json:"items"`
}

// FetchError 表示新闻源不可达或内容无法解析。
type FetchError struct {
	Endpoint string
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("抓取新闻源 %s 失败: %v", e.Endpoint, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
