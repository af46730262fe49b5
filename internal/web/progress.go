package web

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/iabetor/morningbrief/internal/logger"
	"github.com/iabetor/morningbrief/internal/pipeline"
)

const progressWriteTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// 进度消息类型。
const (
	progressTypeProgress = "progress"
	progressTypeDone     = "done"
	progressTypeError    = "error"
)

// progressMessage 的 Index 从 1 开始，表示已完成的条数。
type progressMessage struct {
	Type     string `json:"type"`
	Index    int    `json:"index"`
	Total    int    `json:"total"`
	Title    string `json:"title,omitempty"`
	Degraded bool   `json:"degraded,omitempty"`
	Message  string `json:"message,omitempty"`
}

// handleRegenerate 重新生成早报，并通过 WebSocket 逐条推送加工进度。
// 客户端断开时取消生成。
func (s *Server) handleRegenerate(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade 已写出错误响应
		logger.Warnf("[web] WebSocket 升级失败: %v", err)
		return nil
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	// 只读不处理，用于感知客户端关闭
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	send := func(msg progressMessage) {
		conn.SetWriteDeadline(time.Now().Add(progressWriteTimeout))
		if err := conn.WriteJSON(msg); err != nil {
			logger.Debugf("[web] 发送进度失败: %v", err)
			cancel()
		}
	}

	edition, err := s.editions.Run(ctx, func(p pipeline.Progress) {
		send(progressMessage{
			Type:     progressTypeProgress,
			Index:    p.Index + 1,
			Total:    p.Total,
			Title:    p.Entry.Article.TranslatedTitle,
			Degraded: p.Entry.Article.Degraded,
		})
	})
	if err != nil {
		send(progressMessage{Type: progressTypeError, Message: err.Error()})
		return nil
	}

	send(progressMessage{
		Type:    progressTypeDone,
		Total:   len(edition.Entries),
		Message: edition.FetchError,
	})
	conn.SetWriteDeadline(time.Now().Add(progressWriteTimeout))
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return nil
}
