package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/iabetor/morningbrief/internal/database"
)

// 推送状态。
const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

// Record 一条推送记录。
type Record struct {
	ID       int64
	Channel  string
	Title    string
	Status   string
	Response string
	SentAt   time.Time
}

// History 推送记录，保存在 notifications 表中。
type History struct {
	db  *database.DB
	now func() time.Time
}

// NewHistory 创建推送记录存储，db 需已完成迁移。
func NewHistory(db *database.DB) *History {
	return &History{db: db, now: time.Now}
}

// Record 写入一条推送记录。
func (h *History) Record(ctx context.Context, r Record) error {
	if r.SentAt.IsZero() {
		r.SentAt = h.now()
	}
	_, err := h.db.ExecContext(ctx,
		`INSERT INTO notifications (channel, title, status, response, sent_at) VALUES (?, ?, ?, ?, ?)`,
		r.Channel, r.Title, r.Status, r.Response, r.SentAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("写入推送记录失败: %w", err)
	}
	return nil
}

// Recent 返回最近 limit 条推送记录，新的在前。
func (h *History) Recent(ctx context.Context, limit int) ([]Record, error) {
	rows, err := h.db.QueryContext(ctx,
		`SELECT id, channel, title, status, response, sent_at FROM notifications ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("查询推送记录失败: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			r      Record
			sentAt string
		)
		if err := rows.Scan(&r.ID, &r.Channel, &r.Title, &r.Status, &r.Response, &sentAt); err != nil {
			return nil, err
		}
		r.SentAt, _ = time.Parse(time.RFC3339, sentAt)
		records = append(records, r)
	}
	return records, rows.Err()
}

// SentOn 返回指定日期（本地时区）是否已成功推送过。
func (h *History) SentOn(ctx context.Context, date time.Time) (bool, error) {
	y, m, d := date.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, date.Location())
	end := start.AddDate(0, 0, 1)

	var n int
	err := h.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE status = ? AND sent_at >= ? AND sent_at < ?`,
		StatusSent, start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("查询推送记录失败: %w", err)
	}
	return n > 0, nil
}
