// Package notify 通过 PushPlus 推送每日早报提醒。
package notify

import (
	"fmt"
	"time"
)

// TemplateMarkdown PushPlus 的 markdown 模板。
const TemplateMarkdown = "markdown"

// Message 一条推送消息。
type Message struct {
	Title    string
	Content  string
	Template string
}

// BuildDailyMessage 生成每日早报提醒，正文中的链接指向 appURL。
func BuildDailyMessage(appURL string, date time.Time) Message {
	title := fmt.Sprintf("🌍 全球深度早报 (%s)", date.Format("2006-01-02"))
	content := fmt.Sprintf(`
### 📅 今日新闻已整理完毕
AI 助手已为您聚合了全球多行业的重要新闻，并生成了深度解读。

**请点击下方链接开始阅读与收听：**
[👉 点击打开全球早报 APP](%s)

---
*来自 GitHub Actions 自动推送*
`, appURL)

	return Message{Title: title, Content: content, Template: TemplateMarkdown}
}
