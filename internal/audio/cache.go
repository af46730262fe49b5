// Package audio 管理合成音频的本地缓存和 MP3 探测。
package audio

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/iabetor/morningbrief/internal/database"
	"github.com/iabetor/morningbrief/internal/logger"
)

// timeLayout 固定宽度，保证按字符串排序即按时间排序。
const timeLayout = "2006-01-02 15:04:05.000000000"

// CacheEntry 缓存索引中的一条记录。
type CacheEntry struct {
	Key         string
	Voice       string
	Engine      string
	TextPreview string
	Size        int64
	Duration    time.Duration
	CachedAt    time.Time
	LastPlayed  time.Time
}

// Cache 管理合成音频文件，索引保存在 SQLite 的 audio_cache 表中。
// 总大小超过上限时按 last_played 淘汰最久未播放的文件。
type Cache struct {
	mu       sync.Mutex
	db       *database.DB
	cacheDir string
	maxSize  int64 // 字节，0 表示禁用缓存
	now      func() time.Time
}

// Key 由声音和文本计算缓存键。
func Key(voice, text string) string {
	h := sha256.New()
	h.Write([]byte(voice))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// NewCache 创建音频缓存。maxSizeMB 为 0 时缓存被禁用，db 可以为 nil。
func NewCache(db *database.DB, cacheDir string, maxSizeMB int64) (*Cache, error) {
	c := &Cache{
		db:       db,
		cacheDir: cacheDir,
		maxSize:  maxSizeMB * 1024 * 1024,
		now:      time.Now,
	}
	if !c.Enabled() {
		return c, nil
	}
	if db == nil {
		return nil, errors.New("启用音频缓存需要数据库")
	}

	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return nil, fmt.Errorf("创建缓存目录失败: %w", err)
	}

	// 校验索引：移除本地文件不存在的条目
	if err := c.validate(); err != nil {
		logger.Warnf("[cache] 校验缓存索引失败: %v", err)
	}
	return c, nil
}

// Enabled 返回缓存是否启用。
func (c *Cache) Enabled() bool {
	return c.maxSize > 0
}

// FilePath 返回缓存文件的完整路径。
func (c *Cache) FilePath(key string) string {
	return filepath.Join(c.cacheDir, key+".mp3")
}

// Lookup 查找缓存条目并更新最后播放时间。
func (c *Cache) Lookup(key string) (CacheEntry, bool) {
	if !c.Enabled() {
		return CacheEntry{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lookupLocked(key)
}

// Open 查找缓存条目并打开文件。文件在持锁期间打开，
// 之后即使被淘汰删除，已打开的句柄仍可完整读出。调用方负责关闭。
func (c *Cache) Open(key string) (*os.File, CacheEntry, bool) {
	if !c.Enabled() {
		return nil, CacheEntry{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.lookupLocked(key)
	if !ok {
		return nil, CacheEntry{}, false
	}
	f, err := os.Open(c.FilePath(key))
	if err != nil {
		logger.Warnf("[cache] 打开缓存文件失败: %v", err)
		c.db.Exec(`DELETE FROM audio_cache WHERE cache_key = ?`, key)
		return nil, CacheEntry{}, false
	}
	return f, entry, true
}

func (c *Cache) lookupLocked(key string) (CacheEntry, bool) {
	entry, err := c.get(key)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			logger.Warnf("[cache] 查询缓存失败: %v", err)
		}
		return CacheEntry{}, false
	}

	if _, err := os.Stat(c.FilePath(key)); err != nil {
		c.db.Exec(`DELETE FROM audio_cache WHERE cache_key = ?`, key)
		return CacheEntry{}, false
	}

	entry.LastPlayed = c.now()
	if _, err := c.db.Exec(`UPDATE audio_cache SET last_played = ? WHERE cache_key = ?`,
		formatTime(entry.LastPlayed), key); err != nil {
		logger.Warnf("[cache] 更新播放时间失败: %v", err)
	}
	return entry, true
}

// Store 写入音频文件和索引，然后按需淘汰。返回缓存文件路径。
func (c *Cache) Store(entry CacheEntry, data []byte) (string, error) {
	if !c.Enabled() {
		return "", errors.New("音频缓存未启用")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	path := c.FilePath(entry.Key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return "", fmt.Errorf("写入缓存文件失败: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("重命名缓存文件失败: %w", err)
	}

	now := c.now()
	entry.Size = int64(len(data))
	entry.CachedAt = now
	entry.LastPlayed = now

	_, err := c.db.Exec(`INSERT INTO audio_cache
		(cache_key, voice, engine, text_preview, size, duration_ms, cached_at, last_played)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET
			size = excluded.size, duration_ms = excluded.duration_ms,
			cached_at = excluded.cached_at, last_played = excluded.last_played`,
		entry.Key, entry.Voice, entry.Engine, entry.TextPreview, entry.Size,
		entry.Duration.Milliseconds(), formatTime(entry.CachedAt), formatTime(entry.LastPlayed))
	if err != nil {
		return "", fmt.Errorf("保存缓存索引失败: %w", err)
	}

	c.evictLocked(entry.Key)

	logger.Infof("[cache] 已缓存: %s (%s, %d bytes)", entry.Voice, short(entry.Key), entry.Size)
	return path, nil
}

// List 返回所有缓存条目，按 last_played 倒序排列。
func (c *Cache) List() ([]CacheEntry, error) {
	if !c.Enabled() {
		return nil, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.query(`SELECT cache_key, voice, engine, text_preview, size, duration_ms, cached_at, last_played
		FROM audio_cache ORDER BY last_played DESC`)
}

// TotalSize 返回缓存文件总大小（字节）。
func (c *Cache) TotalSize() (int64, error) {
	if !c.Enabled() {
		return 0, nil
	}
	var total sql.NullInt64
	if err := c.db.QueryRow(`SELECT SUM(size) FROM audio_cache`).Scan(&total); err != nil {
		return 0, err
	}
	return total.Int64, nil
}

// Delete 删除指定缓存条目。
func (c *Cache) Delete(key string) error {
	if !c.Enabled() {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.removeLocked(key)
}

func (c *Cache) removeLocked(key string) error {
	if err := os.Remove(c.FilePath(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("删除缓存文件失败: %w", err)
	}
	if _, err := c.db.Exec(`DELETE FROM audio_cache WHERE cache_key = ?`, key); err != nil {
		return fmt.Errorf("删除缓存索引失败: %w", err)
	}
	return nil
}

// evictLocked 淘汰最久未播放的条目直到总大小不超过上限，keep 不参与淘汰（调用方需持有锁）。
func (c *Cache) evictLocked(keep string) {
	total, err := c.TotalSize()
	if err != nil || total <= c.maxSize {
		return
	}

	entries, err := c.query(`SELECT cache_key, voice, engine, text_preview, size, duration_ms, cached_at, last_played
		FROM audio_cache ORDER BY last_played ASC`)
	if err != nil {
		logger.Warnf("[cache] 读取缓存索引失败: %v", err)
		return
	}

	for _, e := range entries {
		if total <= c.maxSize {
			break
		}
		if e.Key == keep {
			continue
		}
		if err := c.removeLocked(e.Key); err != nil {
			logger.Warnf("[cache] %v", err)
			continue
		}
		total -= e.Size
		logger.Infof("[cache] LRU 淘汰: %s (%s)", e.Voice, short(e.Key))
	}
}

// validate 移除本地文件不存在的条目。
func (c *Cache) validate() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := c.query(`SELECT cache_key, voice, engine, text_preview, size, duration_ms, cached_at, last_played
		FROM audio_cache`)
	if err != nil {
		return err
	}

	removed := 0
	for _, e := range entries {
		if _, err := os.Stat(c.FilePath(e.Key)); err != nil {
			c.db.Exec(`DELETE FROM audio_cache WHERE cache_key = ?`, e.Key)
			removed++
		}
	}
	if removed > 0 {
		logger.Infof("[cache] 索引校验：移除 %d 个无效条目", removed)
	}
	logger.Infof("[cache] 缓存已加载: %d 个音频, 目录 %s", len(entries)-removed, c.cacheDir)
	return nil
}

func (c *Cache) get(key string) (CacheEntry, error) {
	row := c.db.QueryRow(`SELECT cache_key, voice, engine, text_preview, size, duration_ms, cached_at, last_played
		FROM audio_cache WHERE cache_key = ?`, key)
	return scanEntry(row)
}

func (c *Cache) query(q string) ([]CacheEntry, error) {
	rows, err := c.db.Query(q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []CacheEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (CacheEntry, error) {
	var (
		e                    CacheEntry
		durationMS           int64
		cachedAt, lastPlayed string
	)
	if err := s.Scan(&e.Key, &e.Voice, &e.Engine, &e.TextPreview, &e.Size, &durationMS, &cachedAt, &lastPlayed); err != nil {
		return CacheEntry{}, err
	}
	e.Duration = time.Duration(durationMS) * time.Millisecond
	e.CachedAt = parseTime(cachedAt)
	e.LastPlayed = parseTime(lastPlayed)
	return e, nil
}

func short(key string) string {
	if len(key) > 12 {
		return key[:12]
	}
	return key
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
