package audio

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/hajimehoshi/go-mp3"
)

// bytesPerFrame go-mp3 固定输出 16-bit 立体声 PCM。
const bytesPerFrame = 4

// ProbeDuration 解析 MP3 帧头估算播放时长。
func ProbeDuration(data []byte) (time.Duration, error) {
	if len(data) == 0 {
		return 0, errors.New("音频数据为空")
	}

	decoder, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("MP3 解码失败: %w", err)
	}

	sampleRate := decoder.SampleRate()
	length := decoder.Length()
	if sampleRate <= 0 || length <= 0 {
		return 0, errors.New("无法确定 MP3 时长")
	}

	frames := length / bytesPerFrame
	return time.Duration(frames) * time.Second / time.Duration(sampleRate), nil
}
