// Package tts 将新闻解读合成为可播放的 MP3 音频。
package tts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/iabetor/morningbrief/internal/audio"
	"github.com/iabetor/morningbrief/internal/logger"
	"github.com/iabetor/morningbrief/internal/metrics"
)

const (
	defaultTimeout = 30 * time.Second
	maxRetries     = 1
	previewRunes   = 40
)

var (
	// ErrEmptyText 待合成文本为空。
	ErrEmptyText = errors.New("待合成文本为空")
	// ErrEmptyAudio 引擎未返回音频数据。
	ErrEmptyAudio = errors.New("未收到音频数据")
)

// SynthesisError 语音合成失败。
type SynthesisError struct {
	Voice string
	Err   error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("[tts] 语音合成失败 (voice=%s): %v", e.Voice, e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }

// Artifact 一次合成得到的音频文件。
// 缓存中的文件由缓存管理，Release 不删除；临时文件在 Release 时删除。
type Artifact struct {
	Path     string
	Voice    VoiceProfile
	Size     int64
	Duration time.Duration
	Cached   bool

	mu      sync.Mutex
	file    *os.File // 缓存命中时预先打开的文件
	once    sync.Once
	release func() error
}

// Open 打开音频用于读取，调用方负责关闭。
// 缓存产物返回合成时已打开的句柄，不受之后的缓存淘汰影响。
func (a *Artifact) Open() (*os.File, error) {
	a.mu.Lock()
	f := a.file
	a.file = nil
	a.mu.Unlock()
	if f != nil {
		return f, nil
	}
	return os.Open(a.Path)
}

// Release 交付完成后释放音频文件，可重复调用。
func (a *Artifact) Release() error {
	var err error
	a.once.Do(func() {
		a.mu.Lock()
		if a.file != nil {
			a.file.Close()
			a.file = nil
		}
		a.mu.Unlock()
		if a.release != nil {
			err = a.release()
		}
	})
	return err
}

// Options 合成器配置。
type Options struct {
	Timeout time.Duration // 单次尝试超时
	Retries int           // 失败后重试次数，最多 1 次
	TempDir string        // 未启用缓存时临时文件目录
}

// Synthesizer 语音合成器：解析声音、限时调用引擎、保存音频。
type Synthesizer struct {
	engine Engine
	voices *Voices
	cache  *audio.Cache
	opts   Options
	group  singleflight.Group
}

// clip 一次成功合成的结果，在并发的相同请求之间共享。
type clip struct {
	data      []byte
	duration  time.Duration
	cachePath string
}

// NewSynthesizer 创建合成器。voices 为 nil 时使用内置声音表，cache 可以为 nil。
func NewSynthesizer(engine Engine, voices *Voices, cache *audio.Cache, opts Options) *Synthesizer {
	if voices == nil {
		voices = defaultVoices
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.Retries > maxRetries {
		opts.Retries = maxRetries
	}
	if opts.TempDir == "" {
		opts.TempDir = os.TempDir()
	}
	return &Synthesizer{engine: engine, voices: voices, cache: cache, opts: opts}
}

// Voices 返回声音表。
func (s *Synthesizer) Voices() *Voices {
	return s.voices
}

// Synthesize 以 voiceLabel 对应的声音合成 text。
// 未知声音回退为默认声音；所有失败都返回 *SynthesisError。
func (s *Synthesizer) Synthesize(ctx context.Context, text, voiceLabel string) (*Artifact, error) {
	voice := s.voices.Resolve(voiceLabel)
	if strings.TrimSpace(text) == "" {
		return nil, &SynthesisError{Voice: voice.Label, Err: ErrEmptyText}
	}

	key := audio.Key(s.engine.Name()+"/"+voice.ID(s.engine.Name()), text)

	if s.cacheEnabled() {
		if f, entry, ok := s.cache.Open(key); ok {
			logger.Debugf("[tts] 缓存命中: %s", voice.Label)
			metrics.RecordSynthesis("cache", nil, 0)
			return s.cachedArtifact(f, entry, voice), nil
		}
	}

	// 相同请求只合成一次；单个调用方取消不影响其他等待者
	ch := s.group.DoChan(key, func() (any, error) {
		return s.produce(context.WithoutCancel(ctx), key, text, voice)
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, &SynthesisError{Voice: voice.Label, Err: ctx.Err()}
	}
	if res.Err != nil {
		return nil, &SynthesisError{Voice: voice.Label, Err: res.Err}
	}

	c := res.Val.(*clip)
	if c.cachePath != "" {
		// 并发写入可能已把它淘汰，此时退回临时文件
		if f, entry, ok := s.cache.Open(key); ok {
			return s.cachedArtifact(f, entry, voice), nil
		}
	}

	// 每个调用方各自持有一个临时文件
	path := filepath.Join(s.opts.TempDir, "narration-"+uuid.NewString()+".mp3")
	if err := os.WriteFile(path, c.data, 0644); err != nil {
		return nil, &SynthesisError{Voice: voice.Label, Err: fmt.Errorf("写入音频文件失败: %w", err)}
	}
	return &Artifact{
		Path:     path,
		Voice:    voice,
		Size:     int64(len(c.data)),
		Duration: c.duration,
		release: func() error {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return err
			}
			return nil
		},
	}, nil
}

func (s *Synthesizer) cachedArtifact(f *os.File, entry audio.CacheEntry, voice VoiceProfile) *Artifact {
	return &Artifact{
		Path:     s.cache.FilePath(entry.Key),
		Voice:    voice,
		Size:     entry.Size,
		Duration: entry.Duration,
		Cached:   true,
		file:     f,
	}
}

// produce 调用引擎（带重试），探测时长，并在启用缓存时写入缓存。
func (s *Synthesizer) produce(ctx context.Context, key, text string, voice VoiceProfile) (*clip, error) {
	start := time.Now()
	data, err := s.synthesizeWithRetry(ctx, text, voice)
	metrics.RecordSynthesis(s.engine.Name(), err, time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	c := &clip{data: data}
	if d, err := audio.ProbeDuration(data); err != nil {
		logger.Warnf("[tts] 无法探测音频时长: %v", err)
	} else {
		c.duration = d
	}

	if s.cacheEnabled() {
		path, err := s.cache.Store(audio.CacheEntry{
			Key:         key,
			Voice:       voice.Label,
			Engine:      s.engine.Name(),
			TextPreview: preview(text),
			Duration:    c.duration,
		}, data)
		if err != nil {
			logger.Warnf("[tts] 写入缓存失败，改用临时文件: %v", err)
		} else {
			c.cachePath = path
		}
	}

	logger.Infof("[tts] 合成完成: voice=%s, %d 字节, 时长 %v, 耗时 %v",
		voice.Label, len(data), c.duration, time.Since(start).Round(time.Millisecond))
	return c, nil
}

func (s *Synthesizer) synthesizeWithRetry(ctx context.Context, text string, voice VoiceProfile) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= s.opts.Retries; attempt++ {
		if attempt > 0 {
			logger.Warnf("[tts] 第 %d 次重试 (voice=%s): %v", attempt, voice.Label, lastErr)
		}
		data, err := s.attempt(ctx, text, voice)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

// attempt 单次合成，引擎不响应取消时也在超时后返回。
func (s *Synthesizer) attempt(ctx context.Context, text string, voice VoiceProfile) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	type result struct {
		data []byte
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- result{err: fmt.Errorf("引擎 panic: %v", r)}
			}
		}()
		data, err := s.engine.Synthesize(ctx, text, voice)
		ch <- result{data: data, err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, r.err
		}
		if len(r.data) == 0 {
			return nil, ErrEmptyAudio
		}
		return r.data, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("合成超时: %w", ctx.Err())
	}
}

func (s *Synthesizer) cacheEnabled() bool {
	return s.cache != nil && s.cache.Enabled()
}

func preview(text string) string {
	r := []rune(strings.TrimSpace(text))
	if len(r) > previewRunes {
		return string(r[:previewRunes])
	}
	return string(r)
}
