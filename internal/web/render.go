package web

import (
	"html/template"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var boldPattern = regexp.MustCompile(`\*\*(.+?)\*\*`)

// Sanitizer 把模型输出转换为可安全嵌入页面的 HTML。
type Sanitizer struct {
	policy *bluemonday.Policy
}

// NewSanitizer 使用 UGC 策略，外部链接强制 nofollow 并在新窗口打开。
func NewSanitizer() *Sanitizer {
	p := bluemonday.UGCPolicy()
	p.RequireNoFollowOnLinks(true)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	return &Sanitizer{policy: p}
}

// Render 转义文本，把 **粗体** 转为 <strong>，换行转为 <br>，再做一次白名单清洗。
func (s *Sanitizer) Render(text string) template.HTML {
	escaped := template.HTMLEscapeString(strings.TrimSpace(text))
	withBold := boldPattern.ReplaceAllString(escaped, "<strong>$1</strong>")
	withBreaks := strings.ReplaceAll(withBold, "\n", "<br>")
	return template.HTML(s.policy.Sanitize(withBreaks))
}

// PlainText 去掉 markdown 粗体标记，供语音合成使用。
func PlainText(text string) string {
	return strings.TrimSpace(boldPattern.ReplaceAllString(text, "$1"))
}
