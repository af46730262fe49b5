package main

import (
	"fmt"
	"time"

	"github.com/iabetor/morningbrief/internal/audio"
	"github.com/iabetor/morningbrief/internal/config"
	"github.com/iabetor/morningbrief/internal/database"
	"github.com/iabetor/morningbrief/internal/llm"
	"github.com/iabetor/morningbrief/internal/logger"
	"github.com/iabetor/morningbrief/internal/narrative"
	"github.com/iabetor/morningbrief/internal/pipeline"
	"github.com/iabetor/morningbrief/internal/rss"
	"github.com/iabetor/morningbrief/internal/tts"
)

// components 服务运行所需的全部组件。
type components struct {
	db       *database.DB
	synth    *tts.Synthesizer
	pipeline *pipeline.Pipeline
}

// build 根据配置创建并连接各组件。
func build(cfg *config.Config) (*components, error) {
	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, err
	}

	c := &components{db: db}

	cache, err := audio.NewCache(db, cfg.Audio.CacheDir, cfg.Audio.CacheMaxMB)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("初始化音频缓存失败: %w", err)
	}

	engine, err := newTTSEngine(cfg)
	if err != nil {
		c.Close()
		return nil, err
	}

	overrides := make([]tts.VoiceProfile, 0, len(cfg.TTS.Voices))
	for _, v := range cfg.TTS.Voices {
		overrides = append(overrides, tts.VoiceProfile{Label: v.Label, EdgeVoice: v.Edge, TencentVoiceType: v.VoiceType})
	}
	voices := tts.NewVoices(overrides, cfg.TTS.DefaultVoice)

	c.synth = tts.NewSynthesizer(engine, voices, cache, tts.Options{
		Timeout: cfg.TTSTimeout(),
		Retries: cfg.TTS.Retries,
		TempDir: cfg.Audio.TempDir,
	})

	gen, err := newGenerator(cfg)
	if err != nil {
		c.Close()
		return nil, err
	}
	processor := narrative.NewProcessor(gen, narrative.Options{
		Timeout:       cfg.ProcessorTimeout(),
		FailureNotice: cfg.Processor.FailureNotice,
	})

	fetcher := rss.NewFetcher(rss.Options{
		Timeout:         cfg.FeedTimeout(),
		MaxItems:        cfg.Feed.MaxItems,
		MaxSummaryRunes: cfg.Feed.MaxSummaryRunes,
	})

	c.pipeline = pipeline.New(fetcher, processor, pipeline.Options{
		Endpoint: cfg.Feed.URL,
		MaxItems: cfg.Feed.MaxItems,
		TTL:      cfg.EditionTTL(),
	})
	return c, nil
}

// Close 释放数据库等资源。
func (c *components) Close() {
	if c.db != nil {
		if err := c.db.Close(); err != nil {
			logger.Warnf("[main] 关闭数据库失败: %v", err)
		}
	}
}

func newTTSEngine(cfg *config.Config) (tts.Engine, error) {
	switch cfg.TTS.Engine {
	case tts.EngineTencent:
		return tts.NewTencentEngine(tts.TencentConfig{
			SecretID:  cfg.Tencent.SecretID,
			SecretKey: cfg.Tencent.SecretKey,
			Region:    cfg.Tencent.Region,
			Speed:     cfg.TTS.Speed,
		})
	default:
		logger.Info("[main] 使用 Edge TTS 引擎")
		return tts.NewEdgeEngine(), nil
	}
}

func newGenerator(cfg *config.Config) (narrative.Generator, error) {
	if cfg.Processor.Engine == "tmt" {
		tr, err := narrative.NewTencentTranslator(cfg.Tencent.SecretID, cfg.Tencent.SecretKey, cfg.Tencent.Region)
		if err != nil {
			return nil, err
		}
		return narrative.NewTranslatorGenerator(tr, cfg.Processor.TargetLang), nil
	}

	models := make([]llm.ModelConfig, 0, len(cfg.LLM.Models)+1)
	for _, m := range cfg.LLM.Models {
		models = append(models, llm.ModelConfig{Name: m.Name, APIURL: m.APIURL, APIKey: m.APIKey, Model: m.Model})
	}
	if len(models) == 0 {
		models = append(models, llm.ModelConfig{Name: cfg.LLM.Model, APIURL: cfg.LLM.APIURL, APIKey: cfg.LLM.APIKey, Model: cfg.LLM.Model})
	}

	provider, err := llm.NewMultiProvider(models, time.Duration(cfg.LLM.TimeoutSec)*time.Second)
	if err != nil {
		return nil, fmt.Errorf("初始化大模型失败: %w", err)
	}
	return narrative.NewLLMGenerator(provider), nil
}
