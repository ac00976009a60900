package sqlite

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"tradefeed/internal/application/port"
	"tradefeed/internal/domain/model"
)

// MemoryPath 会话结束即丢弃
const MemoryPath = ":memory:"

// Repo 会话 K 线缓存
type Repo struct {
	db *sql.DB
}

func New(path string) (*Repo, error) {
	if path == "" {
		path = MemoryPath
	}
	// ensure directory exists
	if path != MemoryPath {
		if dir := filepath.Dir(path); dir != "." && dir != "" {
			_ = os.MkdirAll(dir, 0o755)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// 内存库每个连接是独立的数据库，必须只用一个连接
	db.SetMaxOpenConns(1)

	r := &Repo{db: db}
	if err := r.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repo) Close() error { return r.db.Close() }

func (r *Repo) migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS bars (
  stream TEXT NOT NULL,
  ts_ms INTEGER NOT NULL,
  open REAL NOT NULL,
  high REAL NOT NULL,
  low REAL NOT NULL,
  close REAL NOT NULL,
  volume REAL NOT NULL,
  turnover REAL,
  updated_at INTEGER NOT NULL,
  PRIMARY KEY(stream, ts_ms)
);
`)
	return err
}

// UpsertBars 同一 key 同一时间戳覆盖写入，实时推送的未收盘 K 线会反复更新同一行
func (r *Repo) UpsertBars(ctx context.Context, key string, bars []model.KLinePoint) error {
	if len(bars) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO bars(stream, ts_ms, open, high, low, close, volume, turnover, updated_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(stream, ts_ms) DO UPDATE SET
		open=excluded.open, high=excluded.high, low=excluded.low, close=excluded.close,
		volume=excluded.volume, turnover=excluded.turnover, updated_at=excluded.updated_at
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UnixMilli()
	for _, b := range bars {
		var turnover sql.NullFloat64
		if b.Turnover != nil {
			turnover = sql.NullFloat64{Float64: *b.Turnover, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, key, b.Timestamp, b.Open, b.High, b.Low, b.Close, b.Volume, turnover, now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Bars 最近 limit 根，按时间升序；limit <= 0 返回全部
func (r *Repo) Bars(ctx context.Context, key string, limit int) ([]model.KLinePoint, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT ts_ms, open, high, low, close, volume, turnover FROM (
			SELECT * FROM bars WHERE stream=? ORDER BY ts_ms DESC LIMIT ?
		) ORDER BY ts_ms ASC
	`, key, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.KLinePoint
	for rows.Next() {
		var b model.KLinePoint
		var turnover sql.NullFloat64
		if err := rows.Scan(&b.Timestamp, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &turnover); err != nil {
			return nil, err
		}
		if turnover.Valid {
			v := turnover.Float64
			b.Turnover = &v
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

var _ port.BarStore = (*Repo)(nil)
