package audio

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/iabetor/morningbrief/internal/database"
)

func newTestCache(t *testing.T, maxSizeMB int64) *Cache {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("打开数据库失败: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("迁移失败: %v", err)
	}

	c, err := NewCache(db, filepath.Join(t.TempDir(), "audio"), maxSizeMB)
	if err != nil {
		t.Fatalf("NewCache 失败: %v", err)
	}

	// 可控时钟，每次调用前进一秒
	clock := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	c.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return c
}

func TestKey(t *testing.T) {
	a := Key("zh-CN-XiaoxiaoNeural", "你好")
	if a != Key("zh-CN-XiaoxiaoNeural", "你好") {
		t.Error("相同输入应得到相同键")
	}
	if a == Key("zh-CN-YunxiNeural", "你好") {
		t.Error("不同声音应得到不同键")
	}
	if Key("ab", "c") == Key("a", "bc") {
		t.Error("声音和文本的边界应参与计算")
	}
	if len(a) != 64 {
		t.Errorf("键长度 = %d", len(a))
	}
}

func TestCache_Disabled(t *testing.T) {
	c, err := NewCache(nil, t.TempDir(), 0)
	if err != nil {
		t.Fatalf("NewCache 失败: %v", err)
	}
	if c.Enabled() {
		t.Fatal("maxSizeMB=0 时应禁用")
	}
	if _, ok := c.Lookup("x"); ok {
		t.Error("禁用时不应命中")
	}
	if _, err := c.Store(CacheEntry{Key: "x"}, []byte("a")); err == nil {
		t.Error("禁用时 Store 应返回错误")
	}
}

func TestCache_RequiresDatabase(t *testing.T) {
	if _, err := NewCache(nil, t.TempDir(), 10); err == nil {
		t.Fatal("启用缓存但无数据库时应返回错误")
	}
}

func TestCache_StoreAndLookup(t *testing.T) {
	c := newTestCache(t, 10)
	key := Key("v", "text")
	data := []byte("fake mp3 data")

	path, err := c.Store(CacheEntry{Key: key, Voice: "v", Engine: "edge", Duration: 1500 * time.Millisecond}, data)
	if err != nil {
		t.Fatalf("Store 失败: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil || !bytes.Equal(got, data) {
		t.Fatalf("缓存文件内容不符: %v", err)
	}

	entry, ok := c.Lookup(key)
	if !ok {
		t.Fatal("应命中缓存")
	}
	if entry.Size != int64(len(data)) || entry.Voice != "v" || entry.Duration != 1500*time.Millisecond {
		t.Errorf("条目不符: %+v", entry)
	}
	if !entry.LastPlayed.After(entry.CachedAt) {
		t.Errorf("Lookup 应更新 last_played: %v <= %v", entry.LastPlayed, entry.CachedAt)
	}
}

func TestCache_LookupMissingFile(t *testing.T) {
	c := newTestCache(t, 10)
	key := Key("v", "gone")
	path, err := c.Store(CacheEntry{Key: key, Voice: "v"}, []byte("x"))
	if err != nil {
		t.Fatalf("Store 失败: %v", err)
	}
	os.Remove(path)

	if _, ok := c.Lookup(key); ok {
		t.Fatal("文件被删除后不应命中")
	}
	entries, _ := c.List()
	if len(entries) != 0 {
		t.Errorf("无效条目应被移除，剩余 %d", len(entries))
	}
}

func TestCache_EvictsLeastRecentlyPlayed(t *testing.T) {
	c := newTestCache(t, 1)
	chunk := bytes.Repeat([]byte{0xff}, 400*1024)

	keys := []string{Key("v", "a"), Key("v", "b")}
	for _, k := range keys {
		if _, err := c.Store(CacheEntry{Key: k, Voice: "v"}, chunk); err != nil {
			t.Fatalf("Store 失败: %v", err)
		}
	}
	// 播放 a，使 b 成为最久未播放
	if _, ok := c.Lookup(keys[0]); !ok {
		t.Fatal("a 应命中")
	}

	third := Key("v", "c")
	if _, err := c.Store(CacheEntry{Key: third, Voice: "v"}, chunk); err != nil {
		t.Fatalf("Store 失败: %v", err)
	}

	if _, ok := c.Lookup(keys[1]); ok {
		t.Error("b 应被淘汰")
	}
	if _, ok := c.Lookup(keys[0]); !ok {
		t.Error("a 不应被淘汰")
	}
	if _, ok := c.Lookup(third); !ok {
		t.Error("新写入的条目不应被淘汰")
	}
	total, _ := c.TotalSize()
	if total > 1024*1024 {
		t.Errorf("总大小 %d 超过上限", total)
	}
}

func TestCache_Delete(t *testing.T) {
	c := newTestCache(t, 10)
	key := Key("v", "del")
	path, _ := c.Store(CacheEntry{Key: key, Voice: "v"}, []byte("x"))
	if err := c.Delete(key); err != nil {
		t.Fatalf("Delete 失败: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("文件应被删除")
	}
}

func TestProbeDuration_Invalid(t *testing.T) {
	if _, err := ProbeDuration(nil); err == nil {
		t.Error("空数据应返回错误")
	}
	if _, err := ProbeDuration([]byte("not an mp3")); err == nil {
		t.Error("非 MP3 数据应返回错误")
	}
}

func TestCache_OpenSurvivesEviction(t *testing.T) {
	c := newTestCache(t, 10)
	key := Key("v", "open")
	data := []byte("fake mp3 data")
	if _, err := c.Store(CacheEntry{Key: key, Voice: "v"}, data); err != nil {
		t.Fatalf("Store 失败: %v", err)
	}

	f, entry, ok := c.Open(key)
	if !ok {
		t.Fatal("应命中缓存")
	}
	defer f.Close()
	if entry.Key != key || entry.Size != int64(len(data)) {
		t.Errorf("条目不符: %+v", entry)
	}

	// 打开之后被淘汰，已打开的句柄仍可读出完整内容
	if err := c.Delete(key); err != nil {
		t.Fatalf("Delete 失败: %v", err)
	}
	got, err := io.ReadAll(f)
	if err != nil {
		t.Fatalf("读取失败: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("内容 = %q", got)
	}

	if _, _, ok := c.Open(key); ok {
		t.Error("删除后不应再命中")
	}
}
