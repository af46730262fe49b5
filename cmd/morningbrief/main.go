package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iabetor/morningbrief/internal/config"
	"github.com/iabetor/morningbrief/internal/logger"
	"github.com/iabetor/morningbrief/internal/pipeline"
	"github.com/iabetor/morningbrief/internal/web"
)

func main() {
	configPath := flag.String("config", "configs/morningbrief.yaml", "配置文件路径")
	once := flag.Bool("once", false, "生成一期早报输出为 JSON 后退出")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "配置无效: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(logger.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		JSON:       cfg.Log.JSON,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Infof("[main] MorningBrief 启动中 (feed=%s, processor=%s, tts=%s)",
		cfg.Feed.URL, cfg.Processor.Engine, cfg.TTS.Engine)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := build(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化组件失败: %v\n", err)
		os.Exit(1)
	}
	defer c.Close()

	if *once {
		if err := runOnce(ctx, c.pipeline); err != nil {
			fmt.Fprintf(os.Stderr, "生成早报失败: %v\n", err)
			os.Exit(1)
		}
		return
	}

	srv, err := web.NewServer(c.pipeline, c.synth, web.Options{
		Title:               cfg.Server.Title,
		SpeechRatePerMinute: cfg.Server.SpeechRatePerMinute,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "创建 HTTP 服务失败: %v\n", err)
		os.Exit(1)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(cfg.Server.Addr)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Errorf("[main] HTTP 服务异常退出: %v", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logger.Info("[main] 收到退出信号，正在关闭...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("[main] HTTP 服务关闭失败: %v", err)
	}

	logger.Info("[main] MorningBrief 已停止")
}

// runOnce 生成一期早报并以 JSON 输出到标准输出，加工进度写入日志。
func runOnce(ctx context.Context, p *pipeline.Pipeline) error {
	edition, err := p.Run(ctx, func(pr pipeline.Progress) {
		logger.Infof("[main] 进度 %d/%d: %s", pr.Index+1, pr.Total, pr.Entry.Article.TranslatedTitle)
	})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(edition)
}
