package tts

import "context"

// 引擎名称。
const (
	EngineEdge    = "edge"
	EngineTencent = "tencent"
)

// Engine 定义语音合成后端接口。
type Engine interface {
	// Name 返回引擎名称，用于日志、指标和缓存键。
	Name() string
	// Synthesize 将文本以指定声音合成为 MP3 音频。
	Synthesize(ctx context.Context, text string, voice VoiceProfile) ([]byte, error)
}
