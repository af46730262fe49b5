package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/iabetor/morningbrief/internal/database"
)

func newTestHistory(t *testing.T) *History {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("打开数据库失败: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("迁移失败: %v", err)
	}
	return NewHistory(db)
}

func TestBuildDailyMessage(t *testing.T) {
	date := time.Date(2026, 3, 5, 7, 30, 0, 0, time.Local)
	msg := BuildDailyMessage("https://brief.example.com/", date)

	if msg.Title != "🌍 全球深度早报 (2026-03-05)" {
		t.Errorf("Title = %q", msg.Title)
	}
	if msg.Template != TemplateMarkdown {
		t.Errorf("Template = %q", msg.Template)
	}
	for _, want := range []string{"### 📅 今日新闻已整理完毕", "[👉 点击打开全球早报 APP](https://brief.example.com/)"} {
		if !strings.Contains(msg.Content, want) {
			t.Errorf("正文缺少 %q", want)
		}
	}
}

func TestNewPushPlus_MissingToken(t *testing.T) {
	if _, err := NewPushPlus(Options{}); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("期望 ErrMissingToken，得到 %v", err)
	}
}

func TestSend_PostsJSON(t *testing.T) {
	var got pushRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %s", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("解析请求失败: %v", err)
		}
		w.Write([]byte(`{"code":200,"msg":"请求成功","data":"abc"}`))
	}))
	defer srv.Close()

	history := newTestHistory(t)
	pp, err := NewPushPlus(Options{Token: "tok", Endpoint: srv.URL, History: history})
	if err != nil {
		t.Fatalf("NewPushPlus 失败: %v", err)
	}

	body, err := pp.Send(context.Background(), Message{Title: "标题", Content: "正文"})
	if err != nil {
		t.Fatalf("Send 失败: %v", err)
	}
	if !strings.Contains(body, "请求成功") {
		t.Errorf("响应体 = %s", body)
	}
	want := pushRequest{Token: "tok", Title: "标题", Content: "正文", Template: "markdown"}
	if got != want {
		t.Errorf("请求体 = %+v, 期望 %+v", got, want)
	}

	records, err := history.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent 失败: %v", err)
	}
	if len(records) != 1 || records[0].Status != StatusSent || records[0].Title != "标题" {
		t.Errorf("推送记录不符: %+v", records)
	}
	sent, err := history.SentOn(context.Background(), time.Now())
	if err != nil || !sent {
		t.Errorf("SentOn = %v, %v", sent, err)
	}
}

func TestSend_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("server busy"))
	}))
	defer srv.Close()

	history := newTestHistory(t)
	pp, _ := NewPushPlus(Options{Token: "tok", Endpoint: srv.URL, History: history})

	_, err := pp.Send(context.Background(), Message{Title: "t", Content: "c"})
	var nerr *NotificationError
	if !errors.As(err, &nerr) {
		t.Fatalf("期望 NotificationError，得到 %v", err)
	}
	if nerr.StatusCode != http.StatusInternalServerError || nerr.Body != "server busy" {
		t.Errorf("错误详情不符: %+v", nerr)
	}

	records, _ := history.Recent(context.Background(), 10)
	if len(records) != 1 || records[0].Status != StatusFailed {
		t.Errorf("失败也应记录: %+v", records)
	}
	sent, _ := history.SentOn(context.Background(), time.Now())
	if sent {
		t.Error("失败的推送不应计为已推送")
	}
}

func TestSend_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	endpoint := srv.URL
	srv.Close()

	pp, _ := NewPushPlus(Options{Token: "tok", Endpoint: endpoint, Timeout: time.Second})
	_, err := pp.Send(context.Background(), Message{Title: "t"})

	var nerr *NotificationError
	if !errors.As(err, &nerr) || nerr.StatusCode != 0 || nerr.Err == nil {
		t.Fatalf("期望传输错误，得到 %v", err)
	}
}

func TestHistory_RecentOrder(t *testing.T) {
	h := newTestHistory(t)
	ctx := context.Background()
	for _, title := range []string{"a", "b", "c"} {
		if err := h.Record(ctx, Record{Channel: "pushplus", Title: title, Status: StatusSent}); err != nil {
			t.Fatalf("Record 失败: %v", err)
		}
	}
	records, err := h.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent 失败: %v", err)
	}
	if len(records) != 2 || records[0].Title != "c" || records[1].Title != "b" {
		t.Errorf("记录顺序不符: %+v", records)
	}
}
