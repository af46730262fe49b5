// Package database 管理 morningbrief 的 SQLite 数据库。
package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/iabetor/morningbrief/internal/logger"
	_ "modernc.org/sqlite"
)

// DB 是统一的 SQLite 数据库连接。
// 音频缓存索引和推送记录共用同一个数据库文件。
type DB struct {
	*sql.DB
	path string
}

// Open 打开或创建数据库。dbPath 为 ":memory:" 时使用内存数据库。
func Open(dbPath string) (*DB, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("数据库路径为空")
	}

	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("创建数据库目录失败: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}
	// SQLite 单写者，避免 database is locked
	db.SetMaxOpenConns(1)

	if dbPath != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("设置 WAL 模式失败: %w", err)
		}
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("设置 busy_timeout 失败: %w", err)
	}

	logger.Infof("[database] 数据库已打开: %s", dbPath)
	return &DB{DB: db, path: dbPath}, nil
}

// Path 返回数据库文件路径。
func (db *DB) Path() string {
	return db.path
}

// Migrate 运行数据库迁移。
func (db *DB) Migrate() error {
	migrations := []string{
		// 合成音频缓存索引，key = sha256(voice, text)
		`CREATE TABLE IF NOT EXISTS audio_cache (
			cache_key TEXT PRIMARY KEY,
			voice TEXT NOT NULL,
			engine TEXT NOT NULL,
			text_preview TEXT DEFAULT '',
			size INTEGER DEFAULT 0,
			duration_ms INTEGER DEFAULT 0,
			cached_at DATETIME NOT NULL,
			last_played DATETIME NOT NULL
		)`,
		// 推送记录
		`CREATE TABLE IF NOT EXISTS notifications (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			channel TEXT NOT NULL,
			title TEXT NOT NULL,
			status TEXT NOT NULL,
			response TEXT DEFAULT '',
			sent_at DATETIME NOT NULL
		)`,
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("数据库迁移失败: %w", err)
		}
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_audio_cache_last_played ON audio_cache(last_played)`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_sent_at ON notifications(sent_at)`,
	}
	for _, idx := range indexes {
		if _, err := db.Exec(idx); err != nil {
			logger.Warnf("[database] 创建索引失败: %v", err)
		}
	}

	logger.Info("[database] 数据库迁移完成")
	return nil
}

// Close 关闭数据库连接。
func (db *DB) Close() error {
	if db.DB != nil {
		return db.DB.Close()
	}
	return nil
}
