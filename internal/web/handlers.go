package web

import (
	"errors"
	"html/template"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iabetor/morningbrief/internal/logger"
	"github.com/iabetor/morningbrief/internal/pipeline"
	"github.com/iabetor/morningbrief/internal/tts"
)

const maxSpeechRunes = 5000

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type speechRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice"`
}

type editionResponse struct {
	Title   string            `json:"title"`
	Date    DateInfo          `json:"date"`
	State   string            `json:"state"`
	Edition *pipeline.Edition `json:"edition"`
}

type pageView struct {
	Title        string
	Date         string
	Voices       []tts.VoiceProfile
	DefaultVoice string
	Entries      []entryView
	Empty        bool
	FetchError   string
}

type entryView struct {
	Number     int
	Title      string
	Link       string
	Source     string
	Published  string
	Full       template.HTML
	Summary    template.HTML
	SpeechText string
	Degraded   bool
}

func (s *Server) handleIndex(c echo.Context) error {
	edition, err := s.editions.Current(c.Request().Context())
	if err != nil {
		return err
	}

	voices := s.speaker.Voices()
	view := pageView{
		Title:        s.title,
		Date:         NewDateInfo(s.now()).String(),
		Voices:       voices.List(),
		DefaultVoice: voices.Default().Label,
		Empty:        edition.Empty(),
		FetchError:   edition.FetchError,
	}
	for i, e := range edition.Entries {
		ev := entryView{
			Number:     i + 1,
			Title:      e.Article.TranslatedTitle,
			Link:       e.Item.Link,
			Source:     edition.FeedTitle,
			Full:       s.sanitizer.Render(e.Article.FullTranslation),
			Summary:    s.sanitizer.Render(e.Article.AISummary),
			SpeechText: PlainText(e.Article.AISummary),
			Degraded:   e.Article.Degraded,
		}
		if !e.Item.Published.IsZero() {
			ev.Published = e.Item.Published.Local().Format("01-02 15:04")
		}
		view.Entries = append(view.Entries, ev)
	}

	var buf strings.Builder
	if err := s.page.Execute(&buf, view); err != nil {
		return err
	}
	return c.HTML(http.StatusOK, buf.String())
}

func (s *Server) handleEdition(c echo.Context) error {
	edition, err := s.editions.Current(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, editionResponse{
		Title:   s.title,
		Date:    NewDateInfo(s.now()),
		State:   s.editions.State().String(),
		Edition: edition,
	})
}

func (s *Server) handleSpeech(c echo.Context) error {
	var req speechRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "bad_request", Message: "请求格式错误"})
	}
	text := PlainText(req.Text)
	if text == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "bad_request", Message: "播报文本为空"})
	}
	if len([]rune(text)) > maxSpeechRunes {
		return c.JSON(http.StatusRequestEntityTooLarge, errorResponse{Error: "too_large", Message: "播报文本过长"})
	}

	artifact, err := s.speaker.Synthesize(c.Request().Context(), text, req.Voice)
	if err != nil {
		cause := err
		var synErr *tts.SynthesisError
		if errors.As(err, &synErr) && synErr.Err != nil {
			cause = synErr.Err
		}
		logger.Warnf("[web] %v", err)
		return c.JSON(http.StatusBadGateway, errorResponse{
			Error:   "synthesis_failed",
			Message: "语音生成失败: " + cause.Error(),
		})
	}
	defer func() {
		if err := artifact.Release(); err != nil {
			logger.Warnf("[web] 释放音频文件失败: %v", err)
		}
	}()

	f, err := artifact.Open()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal", Message: "读取音频失败"})
	}
	defer f.Close()

	h := c.Response().Header()
	h.Set("X-Voice", artifact.Voice.Slug)
	h.Set("Cache-Control", "no-store")
	if artifact.Size > 0 {
		h.Set(echo.HeaderContentLength, strconv.FormatInt(artifact.Size, 10))
	}
	if artifact.Duration > 0 {
		h.Set("X-Audio-Duration-Ms", strconv.FormatInt(artifact.Duration.Milliseconds(), 10))
	}
	return c.Stream(http.StatusOK, "audio/mpeg", f)
}

func (s *Server) handleHealth(c echo.Context) error {
	resp := map[string]any{
		"status": "ok",
		"state":  s.editions.State().String(),
	}
	if latest := s.editions.Latest(); latest != nil {
		resp["generated_at"] = latest.GeneratedAt
		resp["entries"] = len(latest.Entries)
	}
	return c.JSON(http.StatusOK, resp)
}
