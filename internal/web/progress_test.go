package web

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/iabetor/morningbrief/internal/tts"
)

func dialProgress(t *testing.T, editions *fakeEditions) *websocket.Conn {
	t.Helper()
	synth := tts.NewSynthesizer(&fakeEngine{data: []byte("x")}, nil, nil, tts.Options{TempDir: t.TempDir()})
	srv, err := NewServer(editions, synth, Options{SpeechRatePerMinute: 20})
	if err != nil {
		t.Fatalf("NewServer 失败: %v", err)
	}
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/edition/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("连接失败: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func TestRegenerate_StreamsProgress(t *testing.T) {
	conn := dialProgress(t, &fakeEditions{edition: sampleEdition()})

	var msgs []progressMessage
	for {
		var msg progressMessage
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		msgs = append(msgs, msg)
		if msg.Type == progressTypeDone {
			break
		}
	}

	if len(msgs) != 3 {
		t.Fatalf("期望 2 条进度和 1 条完成消息，得到 %d: %+v", len(msgs), msgs)
	}
	if msgs[0].Type != progressTypeProgress || msgs[0].Index != 1 || msgs[0].Total != 2 {
		t.Errorf("第一条进度不符: %+v", msgs[0])
	}
	if msgs[0].Title != "欧盟达成历史性 AI 监管法案" {
		t.Errorf("Title = %q", msgs[0].Title)
	}
	if msgs[1].Index != 2 || !msgs[1].Degraded {
		t.Errorf("第二条应标记降级: %+v", msgs[1])
	}
	if msgs[2].Total != 2 {
		t.Errorf("完成消息 Total = %d", msgs[2].Total)
	}

	// 服务端发送完成后正常关闭
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Errorf("期望正常关闭，得到 %v", err)
	}
}

func TestRegenerate_Error(t *testing.T) {
	conn := dialProgress(t, &fakeEditions{edition: sampleEdition(), runErr: errors.New("context canceled")})

	var msg progressMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("读取消息失败: %v", err)
	}
	if msg.Type != progressTypeError || msg.Message != "context canceled" {
		t.Errorf("错误消息不符: %+v", msg)
	}
}
