// Package web 提供早报页面、语音播报接口和运维端点。
package web

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iabetor/morningbrief/internal/logger"
	"github.com/iabetor/morningbrief/internal/metrics"
	"github.com/iabetor/morningbrief/internal/pipeline"
	"github.com/iabetor/morningbrief/internal/tts"
)

//go:embed templates/*.html
var templateFS embed.FS

// DefaultTitle 页面标题。
const DefaultTitle = "全球深度早报"

// EditionSource 提供早报内容。
type EditionSource interface {
	Current(ctx context.Context) (*pipeline.Edition, error)
	Run(ctx context.Context, progress func(pipeline.Progress)) (*pipeline.Edition, error)
	Latest() *pipeline.Edition
	State() pipeline.State
}

// Speaker 把解读文本合成为音频。
type Speaker interface {
	Synthesize(ctx context.Context, text, voiceLabel string) (*tts.Artifact, error)
	Voices() *tts.Voices
}

// Options 服务配置。
type Options struct {
	Title               string
	SpeechRatePerMinute int
	Now                 func() time.Time
}

// Server 基于 echo 的 HTTP 服务。
type Server struct {
	echo      *echo.Echo
	editions  EditionSource
	speaker   Speaker
	sanitizer *Sanitizer
	limiter   *RateLimiter
	page      *template.Template
	title     string
	now       func() time.Time
}

// NewServer 创建服务并注册路由。
func NewServer(editions EditionSource, speaker Speaker, opts Options) (*Server, error) {
	page, err := template.ParseFS(templateFS, "templates/index.html")
	if err != nil {
		return nil, err
	}

	s := &Server{
		echo:      echo.New(),
		editions:  editions,
		speaker:   speaker,
		sanitizer: NewSanitizer(),
		limiter:   NewRateLimiter(opts.SpeechRatePerMinute, 0),
		page:      page,
		title:     opts.Title,
		now:       opts.Now,
	}
	if s.title == "" {
		s.title = DefaultTitle
	}
	if s.now == nil {
		s.now = time.Now
	}

	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:   true,
		LogURI:      true,
		LogError:    true,
		LogMethod:   true,
		LogLatency:  true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			metrics.HTTPRequests.WithLabelValues(v.Method, c.Path(), strconv.Itoa(v.Status)).Inc()
			if v.Error == nil {
				logger.Debugf("[web] %s %s %d %dms", v.Method, v.URI, v.Status, v.Latency.Milliseconds())
			} else {
				logger.Warnf("[web] %s %s %d %dms: %v", v.Method, v.URI, v.Status, v.Latency.Milliseconds(), v.Error)
			}
			return nil
		},
	}))
	s.echo.Use(middleware.Recover())

	s.echo.GET("/", s.handleIndex)
	s.echo.GET("/api/edition", s.handleEdition)
	s.echo.GET("/api/edition/stream", s.handleRegenerate, s.limiter.Middleware())
	s.echo.POST("/api/speech", s.handleSpeech, s.limiter.Middleware())
	s.echo.GET("/healthz", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	return s, nil
}

// ServeHTTP 实现 http.Handler。
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Start 开始监听，Shutdown 后返回 nil。
func (s *Server) Start(addr string) error {
	logger.Infof("[web] 服务启动: %s", addr)
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown 优雅关闭。
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
