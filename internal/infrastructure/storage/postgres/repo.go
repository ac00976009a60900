package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"tradefeed/internal/application/port"
	"tradefeed/internal/domain/model"
)

// Repo 已解析品种的目录，供 SearchSymbols 补充结果
type Repo struct {
	db *sql.DB
}

func New(dsn string) (*Repo, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	r := &Repo{db: db}
	if err := r.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

// NewWithDB 复用已有连接，测试时注入
func NewWithDB(db *sql.DB) *Repo { return &Repo{db: db} }

func (r *Repo) Close() error { return r.db.Close() }

func (r *Repo) migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS symbols (
  ticker TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  provider TEXT NOT NULL,
  payload JSONB NOT NULL,
  updated_at BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_symbols_name ON symbols(name);
`)
	return err
}

func (r *Repo) SaveSymbol(ctx context.Context, info model.SymbolInfo) error {
	payload, err := json.Marshal(info)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO symbols(ticker, name, provider, payload, updated_at)
		VALUES($1, $2, $3, $4, $5)
		ON CONFLICT(ticker) DO UPDATE SET
		name=excluded.name, provider=excluded.provider, payload=excluded.payload, updated_at=excluded.updated_at
	`, info.Ticker, info.Name, info.Provider, string(payload), time.Now().UnixMilli())
	return err
}

// SearchSymbols 按 ticker 或名称做不区分大小写的子串匹配
func (r *Repo) SearchSymbols(ctx context.Context, query string, limit int) ([]model.SymbolInfo, error) {
	if limit <= 0 {
		limit = 50
	}
	pattern := "%" + escapeLike(strings.TrimSpace(query)) + "%"
	rows, err := r.db.QueryContext(ctx, `
		SELECT payload FROM symbols
		WHERE ticker ILIKE $1 OR name ILIKE $1
		ORDER BY updated_at DESC
		LIMIT $2
	`, pattern, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.SymbolInfo
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var info model.SymbolInfo
		if err := json.Unmarshal(payload, &info); err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

var _ port.SymbolCatalog = (*Repo)(nil)
