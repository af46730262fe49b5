// Package narrative 把一条原始新闻加工为译文标题、全文译文和 AI 解读。
//
// Processor.Process 永远返回完整的 Article：远端调用失败、超时或回复格式不符时，
// 返回降级记录，失败原因写入 AISummary 展示给读者。
package narrative

import (
	"fmt"
)

// DefaultFailureNotice 降级记录的 FullTranslation。
const DefaultFailureNotice = "⚠️ 翻译处理失败，请稍后刷新重试。"

// Article 由一条 FeedItem 加工得到，只读。
type Article struct {
	TranslatedTitle string `json:"translated_title"`
	FullTranslation string `json:"full_translation"`
	AISummary       string `json:"ai_summary"`

	// Degraded 为 true 表示这是失败后的降级记录。
	Degraded bool  `json:"degraded"`
	Err      error `json:"-"`
}

// Stage 标识失败发生的阶段。
type Stage string

const (
	StageRequest Stage = "request"
	StageTimeout Stage = "timeout"
	StageParse   Stage = "parse"
	StagePanic   Stage = "panic"
)

// GenerationError 表示远端加工失败或回复无法解析。
// 它不会越过 Processor 边界，只会出现在降级记录的 Err 字段中。
type GenerationError struct {
	Stage Stage
	Err   error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("AI 处理失败(%s): %v", e.Stage, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }
