package narrative

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/template"
	"unicode"
	"unicode/utf8"

	"github.com/iabetor/morningbrief/internal/rss"
)

const systemPrompt = "你是一名资深国际新闻编辑，擅长把外文新闻翻译成流畅的简体中文，并给出有洞察力的解读。你只输出 JSON。"

var promptTemplate = template.Must(template.New("prompt").Parse(`请处理下面这条新闻：

新闻标题：{{.Title}}
新闻摘要：{{.Summary}}

要求：
1. translated_title：把标题翻译成简体中文。
2. full_translation：把摘要完整、忠实地翻译成简体中文，不要删减。
3. ai_summary：用 100 字左右写出核心解读，说明这条新闻的影响，可以用一个 emoji 开头并用 **核心解读** 加粗小标题。

只输出一个 JSON 对象，不要输出任何其他文字，格式如下：
{"translated_title": "...", "full_translation": "...", "ai_summary": "..."}`))

// BuildPrompt 把新闻标题和摘要嵌入固定的指令模板。
func BuildPrompt(item rss.FeedItem) string {
	var buf bytes.Buffer
	// 模板只引用 FeedItem 的字符串字段，不会失败
	_ = promptTemplate.Execute(&buf, item)
	return buf.String()
}

// reply 是模型回复的 JSON 结构，指针用于区分缺失和空值。
type reply struct {
	TranslatedTitle *string `json:"translated_title"`
	FullTranslation *string `json:"full_translation"`
	AISummary       *string `json:"ai_summary"`
}

// ParseReply 严格解析模型回复：去掉 markdown 代码块标记后，
// 内容必须恰好是一个只含三个字段的 JSON 对象，且字段均为非空字符串。
// 任何偏差都返回 StageParse 的 GenerationError。
func ParseReply(raw string) (Article, error) {
	body := stripCodeFence(raw)
	if !strings.HasPrefix(body, "{") || !strings.HasSuffix(body, "}") {
		return Article{}, parseError(fmt.Errorf("回复不是 JSON 对象: %q", abbreviate(body, 80)))
	}

	dec := json.NewDecoder(strings.NewReader(body))
	dec.DisallowUnknownFields()

	var r reply
	if err := dec.Decode(&r); err != nil {
		return Article{}, parseError(fmt.Errorf("JSON 解析失败: %w", err))
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Article{}, parseError(errors.New("JSON 对象之后存在多余内容"))
	}

	fields := []struct {
		name string
		val  *string
	}{
		{"translated_title", r.TranslatedTitle},
		{"full_translation", r.FullTranslation},
		{"ai_summary", r.AISummary},
	}
	for _, f := range fields {
		if f.val == nil {
			return Article{}, parseError(fmt.Errorf("缺少字段 %s", f.name))
		}
		if strings.TrimSpace(*f.val) == "" {
			return Article{}, parseError(fmt.Errorf("字段 %s 为空", f.name))
		}
	}

	return Article{
		TranslatedTitle: *r.TranslatedTitle,
		FullTranslation: *r.FullTranslation,
		AISummary:       *r.AISummary,
	}, nil
}

// stripCodeFence 去掉 ```json ... ``` 包裹，围栏可以与 JSON 在同一行。
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// 语言标记（json、JSON 等）
	s = strings.TrimLeftFunc(s, func(r rune) bool {
		return r < utf8.RuneSelf && unicode.IsLetter(r)
	})
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func parseError(err error) error {
	return &GenerationError{Stage: StageParse, Err: err}
}

func abbreviate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
