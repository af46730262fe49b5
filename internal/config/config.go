package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 是 morningbrief 的顶层配置结构。
// 在 main 中构造一次，按指针传给各组件。
type Config struct {
	Feed      FeedConfig      `yaml:"feed"`
	LLM       LLMConfig       `yaml:"llm"`
	Processor ProcessorConfig `yaml:"processor"`
	Tencent   TencentConfig   `yaml:"tencent"`
	TTS       TTSConfig       `yaml:"tts"`
	Audio     AudioConfig     `yaml:"audio"`
	Database  DatabaseConfig  `yaml:"database"`
	Server    ServerConfig    `yaml:"server"`
	Notify    NotifyConfig    `yaml:"notify"`
	Log       LogConfig       `yaml:"log"`
}

// FeedConfig 新闻源配置。
type FeedConfig struct {
	URL             string `yaml:"url"`
	MaxItems        int    `yaml:"max_items"`
	TimeoutSec      int    `yaml:"timeout"`
	MaxSummaryRunes int    `yaml:"max_summary_runes"`
	CacheTTLSec     int    `yaml:"cache_ttl"` // 早报复用时长，负数表示每次请求都重新生成
}

// LLMConfig 大模型配置。Models 非空时按顺序自动降级，否则使用单个 APIURL/APIKey/Model。
type LLMConfig struct {
	APIURL     string        `yaml:"api_url"`
	APIKey     string        `yaml:"api_key"`
	Model      string        `yaml:"model"`
	Models     []ModelConfig `yaml:"models"`
	TimeoutSec int           `yaml:"timeout"`
}

// ModelConfig 一个候选模型。
type ModelConfig struct {
	Name   string `yaml:"name"`
	APIURL string `yaml:"api_url"`
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// ProcessorConfig 新闻加工配置。
type ProcessorConfig struct {
	Engine        string `yaml:"engine"` // llm 或 tmt
	TimeoutSec    int    `yaml:"timeout"`
	FailureNotice string `yaml:"failure_notice"`
	TargetLang    string `yaml:"target_lang"`
}

// TencentConfig 腾讯云凭证，TMT 翻译与 TTS 共用。
type TencentConfig struct {
	SecretID  string `yaml:"secret_id"`
	SecretKey string `yaml:"secret_key"`
	Region    string `yaml:"region"`
}

// TTSConfig 语音合成配置。
type TTSConfig struct {
	Engine       string        `yaml:"engine"` // edge 或 tencent
	TimeoutSec   int           `yaml:"timeout"`
	Retries      int           `yaml:"retries"`
	DefaultVoice string        `yaml:"default_voice"`
	Voices       []VoiceConfig `yaml:"voices"`
	Speed        float64       `yaml:"speed"` // 腾讯云语速 [-2, 6]，0 为正常语速
}

// VoiceConfig 覆盖或新增一个播报声音。
type VoiceConfig struct {
	Label     string `yaml:"label"`
	Edge      string `yaml:"edge"`
	VoiceType int64  `yaml:"tencent_voice_type"`
}

// AudioConfig 音频产物存储配置。
type AudioConfig struct {
	CacheDir   string `yaml:"cache_dir"`
	CacheMaxMB int64  `yaml:"cache_max_mb"` // 0 表示禁用缓存，每次合成写临时文件
	TempDir    string `yaml:"temp_dir"`
}

// DatabaseConfig SQLite 配置。
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// ServerConfig HTTP 服务配置。
type ServerConfig struct {
	Addr                string `yaml:"addr"`
	AppURL              string `yaml:"app_url"`
	SpeechRatePerMinute int    `yaml:"speech_rate_per_minute"`
	Title               string `yaml:"title"`
}

// NotifyConfig PushPlus 推送配置。
type NotifyConfig struct {
	PushPlusToken string `yaml:"pushplus_token"`
	Endpoint      string `yaml:"endpoint"`
	TimeoutSec    int    `yaml:"timeout"`
}

// LogConfig 日志配置。
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	JSON       bool   `yaml:"json"`
}

// ConfigurationError 表示启动时必需的配置缺失或非法，属于致命错误。
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("配置错误 %s: %s", e.Field, e.Reason)
}

// Load 读取 YAML 配置文件并返回 Config。
// 支持 ${VAR_NAME} 形式的环境变量展开。
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件 %s 失败: %w", path, err)
	}
	return Parse(data)
}

// Parse 解析 YAML 内容，展开环境变量并填充默认值。
func Parse(data []byte) (*Config, error) {
	expanded := os.Expand(string(data), os.Getenv)

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	setDefaults(cfg)
	return cfg, nil
}

// setDefaults 为未设置的配置项填充默认值。
func setDefaults(cfg *Config) {
	if cfg.Feed.MaxItems == 0 {
		cfg.Feed.MaxItems = 3
	}
	if cfg.Feed.TimeoutSec == 0 {
		cfg.Feed.TimeoutSec = 10
	}
	if cfg.Feed.MaxSummaryRunes == 0 {
		cfg.Feed.MaxSummaryRunes = 2000
	}
	if cfg.Feed.CacheTTLSec == 0 {
		cfg.Feed.CacheTTLSec = 600
	}

	if cfg.LLM.APIURL == "" {
		cfg.LLM.APIURL = "https://api.openai.com/v1"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "gpt-4o-mini"
	}
	if cfg.LLM.TimeoutSec == 0 {
		cfg.LLM.TimeoutSec = 60
	}
	cfg.LLM.APIURL = strings.TrimRight(cfg.LLM.APIURL, "/")
	// 去除 API Key 两端可能的空白（环境变量展开后常见）
	cfg.LLM.APIKey = strings.TrimSpace(cfg.LLM.APIKey)
	for i := range cfg.LLM.Models {
		m := &cfg.LLM.Models[i]
		m.APIKey = strings.TrimSpace(m.APIKey)
		m.APIURL = strings.TrimRight(m.APIURL, "/")
		if m.Name == "" {
			m.Name = m.Model
		}
	}

	if cfg.Processor.Engine == "" {
		cfg.Processor.Engine = "llm"
	}
	if cfg.Processor.TimeoutSec == 0 {
		cfg.Processor.TimeoutSec = cfg.LLM.TimeoutSec
	}
	if cfg.Processor.TargetLang == "" {
		cfg.Processor.TargetLang = "zh"
	}

	if cfg.Tencent.Region == "" {
		cfg.Tencent.Region = "ap-guangzhou"
	}

	if cfg.TTS.Engine == "" {
		cfg.TTS.Engine = "edge"
	}
	if cfg.TTS.TimeoutSec == 0 {
		cfg.TTS.TimeoutSec = 30
	}
	// 最多重试一次
	if cfg.TTS.Retries < 0 {
		cfg.TTS.Retries = 0
	} else if cfg.TTS.Retries == 0 || cfg.TTS.Retries > 1 {
		cfg.TTS.Retries = 1
	}
	if cfg.TTS.DefaultVoice == "" {
		cfg.TTS.DefaultVoice = "知性女声"
	}

	if cfg.Audio.CacheDir == "" {
		cfg.Audio.CacheDir = expandHome("~/.morningbrief/audio")
	} else {
		cfg.Audio.CacheDir = expandHome(cfg.Audio.CacheDir)
	}
	if cfg.Audio.TempDir == "" {
		cfg.Audio.TempDir = os.TempDir()
	}

	if cfg.Database.Path == "" {
		cfg.Database.Path = expandHome("~/.morningbrief/morningbrief.db")
	} else {
		cfg.Database.Path = expandHome(cfg.Database.Path)
	}

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.SpeechRatePerMinute == 0 {
		cfg.Server.SpeechRatePerMinute = 20
	}
	if cfg.Server.Title == "" {
		cfg.Server.Title = "全球深度早报"
	}

	if cfg.Notify.Endpoint == "" {
		cfg.Notify.Endpoint = "http://www.pushplus.plus/send"
	}
	if cfg.Notify.TimeoutSec == 0 {
		cfg.Notify.TimeoutSec = 10
	}
	cfg.Notify.PushPlusToken = strings.TrimSpace(cfg.Notify.PushPlusToken)

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

// expandHome 将 ~/ 替换为用户主目录，Go 不会自动展开。
func expandHome(p string) string {
	if !strings.HasPrefix(p, "~/") {
		return p
	}
	home, _ := os.UserHomeDir()
	if home == "" {
		return "." + p[1:]
	}
	return home + p[1:]
}

// Validate 检查服务启动所需的配置。
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Feed.URL) == "" {
		return &ConfigurationError{Field: "feed.url", Reason: "未配置新闻源地址"}
	}

	switch c.Processor.Engine {
	case "llm":
		if len(c.LLM.Models) == 0 && c.LLM.APIKey == "" {
			return &ConfigurationError{Field: "llm.api_key", Reason: "使用 llm 引擎时必须提供 API Key"}
		}
		for i, m := range c.LLM.Models {
			if m.APIKey == "" || m.APIURL == "" || m.Model == "" {
				return &ConfigurationError{
					Field:  fmt.Sprintf("llm.models[%d]", i),
					Reason: "api_url、api_key、model 均不能为空",
				}
			}
		}
	case "tmt":
		if err := c.requireTencent("processor.engine=tmt"); err != nil {
			return err
		}
	default:
		return &ConfigurationError{Field: "processor.engine", Reason: fmt.Sprintf("不支持的引擎 %q", c.Processor.Engine)}
	}

	switch c.TTS.Engine {
	case "edge":
	case "tencent":
		if err := c.requireTencent("tts.engine=tencent"); err != nil {
			return err
		}
	default:
		return &ConfigurationError{Field: "tts.engine", Reason: fmt.Sprintf("不支持的引擎 %q", c.TTS.Engine)}
	}
	return nil
}

func (c *Config) requireTencent(reason string) error {
	if c.Tencent.SecretID == "" || c.Tencent.SecretKey == "" {
		return &ConfigurationError{Field: "tencent", Reason: reason + " 需要 secret_id 和 secret_key"}
	}
	return nil
}

// FeedTimeout 返回新闻源抓取超时。
func (c *Config) FeedTimeout() time.Duration { return seconds(c.Feed.TimeoutSec) }

// EditionTTL 返回早报复用时长，0 表示不复用。
func (c *Config) EditionTTL() time.Duration {
	if c.Feed.CacheTTLSec < 0 {
		return 0
	}
	return seconds(c.Feed.CacheTTLSec)
}

// ProcessorTimeout 返回单条新闻加工超时。
func (c *Config) ProcessorTimeout() time.Duration { return seconds(c.Processor.TimeoutSec) }

// TTSTimeout 返回单次合成尝试的超时。
func (c *Config) TTSTimeout() time.Duration { return seconds(c.TTS.TimeoutSec) }

// NotifyTimeout 返回推送请求超时。
func (c *Config) NotifyTimeout() time.Duration { return seconds(c.Notify.TimeoutSec) }

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }
