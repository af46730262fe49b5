// notify 推送每日早报提醒，由外部定时任务（cron / CI）调用。
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iabetor/morningbrief/internal/config"
	"github.com/iabetor/morningbrief/internal/database"
	"github.com/iabetor/morningbrief/internal/logger"
	"github.com/iabetor/morningbrief/internal/notify"
)

func main() {
	configPath := flag.String("config", "configs/morningbrief.yaml", "配置文件路径")
	appURL := flag.String("url", "", "早报页面地址，默认使用 server.app_url")
	skipIfSent := flag.Bool("skip-if-sent", false, "今天已成功推送过则跳过")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Init(logger.Options{Level: cfg.Log.Level, File: cfg.Log.File, JSON: cfg.Log.JSON}); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, *appURL, *skipIfSent); err != nil {
		logger.Errorf("[notify] %v", err)
		logger.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, appURL string, skipIfSent bool) error {
	if cfg.Notify.PushPlusToken == "" {
		return fmt.Errorf("❌ 错误：未找到 PUSHPLUS_TOKEN (notify.pushplus_token)")
	}
	if appURL == "" {
		appURL = cfg.Server.AppURL
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var history *notify.History
	db, err := database.Open(cfg.Database.Path)
	if err == nil {
		err = db.Migrate()
	}
	if err != nil {
		// 推送记录不可用不影响推送本身
		if db != nil {
			db.Close()
		}
		logger.Warnf("[notify] 推送记录不可用: %v", err)
	} else {
		defer db.Close()
		history = notify.NewHistory(db)
	}

	now := time.Now()
	if skipIfSent && history != nil {
		sent, err := history.SentOn(ctx, now)
		if err != nil {
			logger.Warnf("[notify] %v", err)
		} else if sent {
			logger.Info("[notify] 今日已推送，跳过")
			return nil
		}
	}

	client, err := notify.NewPushPlus(notify.Options{
		Token:    cfg.Notify.PushPlusToken,
		Endpoint: cfg.Notify.Endpoint,
		Timeout:  cfg.NotifyTimeout(),
		History:  history,
	})
	if err != nil {
		return err
	}

	if _, err := client.Send(ctx, notify.BuildDailyMessage(appURL, now)); err != nil {
		return err
	}
	return nil
}
