package tts

import (
	"bytes"
	"context"
	"fmt"

	"github.com/iabetor/morningbrief/internal/logger"
	"github.com/pp-group/edge-tts-go/biz/service/tts/edge"
)

// EdgeEngine 使用微软 Edge TTS 实现语音合成，
// 通过 edge-tts-go 流式获取 MP3 音频块。
type EdgeEngine struct{}

// NewEdgeEngine 创建 Edge TTS 引擎。声音在每次合成时指定。
func NewEdgeEngine() *EdgeEngine {
	return &EdgeEngine{}
}

// Name 返回引擎名称。
func (e *EdgeEngine) Name() string { return EngineEdge }

// Synthesize 将文本合成为 MP3。
func (e *EdgeEngine) Synthesize(ctx context.Context, text string, voice VoiceProfile) ([]byte, error) {
	logger.Debugf("[tts] edge-tts: 正在合成 %d 个字符，语音=%s", len([]rune(text)), voice.EdgeVoice)

	comm, err := edge.NewCommunicate(text, edge.WithVoice(voice.EdgeVoice))
	if err != nil {
		return nil, fmt.Errorf("edge-tts 创建实例失败: %w", err)
	}

	ch, err := comm.Stream()
	if err != nil {
		return nil, fmt.Errorf("edge-tts 开始流式合成失败: %w", err)
	}

	var mp3Buf bytes.Buffer
	for msg := range ch {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		// Stream() 返回的 map 中，type=="audio" 的条目包含音频数据
		if msgType, ok := msg["type"].(string); ok && msgType == "audio" {
			if data, ok := msg["data"].([]byte); ok {
				mp3Buf.Write(data)
			}
		}
	}

	logger.Debugf("[tts] edge-tts: 收到 %d 字节 MP3 数据", mp3Buf.Len())
	return mp3Buf.Bytes(), nil
}
