package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

type Repository interface {
	CreateRender(ctx context.Context, render *Render) error
	GetRender(ctx context.Context, id string) (*Render, error)
	ListRenders(ctx context.Context, limit int) ([]*Render, error)
	UpdateRenderStatus(ctx context.Context, id, status, errorMsg string) error

	CreateUpload(ctx context.Context, upload *Upload) error
	UpdateUpload(ctx context.Context, id, status, link, errorMsg string) error
	ListUploads(ctx context.Context, renderID string) ([]*Upload, error)

	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) CreateRender(ctx context.Context, rd *Render) error {
	targets, err := json.Marshal(rd.Targets)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO renders (id, status, sources, targets, plan, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, rd.ID, rd.Status, rd.Sources, string(targets), rd.Plan, nullString(rd.Error),
		formatTime(rd.CreatedAt), formatTime(rd.UpdatedAt))
	return err
}

func (r *SQLiteRepository) GetRender(ctx context.Context, id string) (*Render, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, status, sources, targets, plan, error, created_at, updated_at
		FROM renders WHERE id = ?
	`, id)

	rd, err := scanRender(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return rd, err
}

func (r *SQLiteRepository) ListRenders(ctx context.Context, limit int) ([]*Render, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, status, sources, targets, plan, error, created_at, updated_at
		FROM renders ORDER BY created_at DESC, rowid DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var renders []*Render
	for rows.Next() {
		rd, err := scanRender(rows)
		if err != nil {
			return nil, err
		}
		renders = append(renders, rd)
	}
	return renders, rows.Err()
}

func (r *SQLiteRepository) UpdateRenderStatus(ctx context.Context, id, status, errorMsg string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE renders SET status = ?, error = ?, updated_at = ? WHERE id = ?
	`, status, nullString(errorMsg), formatTime(time.Now()), id)
	return err
}

func (r *SQLiteRepository) CreateUpload(ctx context.Context, u *Upload) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO uploads (id, render_id, path, link, status, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, u.ID, u.RenderID, u.Path, nullString(u.Link), u.Status, nullString(u.Error),
		formatTime(u.CreatedAt), formatTime(u.UpdatedAt))
	return err
}

func (r *SQLiteRepository) UpdateUpload(ctx context.Context, id, status, link, errorMsg string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE uploads SET status = ?, link = ?, error = ?, updated_at = ? WHERE id = ?
	`, status, nullString(link), nullString(errorMsg), formatTime(time.Now()), id)
	return err
}

func (r *SQLiteRepository) ListUploads(ctx context.Context, renderID string) ([]*Upload, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, render_id, path, link, status, error, created_at, updated_at
		FROM uploads WHERE render_id = ? ORDER BY created_at ASC, rowid ASC
	`, renderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var uploads []*Upload
	for rows.Next() {
		var u Upload
		var link, errMsg sql.NullString
		var createdAt, updatedAt string
		if err := rows.Scan(&u.ID, &u.RenderID, &u.Path, &link, &u.Status, &errMsg, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		u.Link = link.String
		u.Error = errMsg.String
		u.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		u.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		uploads = append(uploads, &u)
	}
	return uploads, rows.Err()
}

func (r *SQLiteRepository) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, "SELECT value FROM config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (r *SQLiteRepository) SetConfig(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRender(row scanner) (*Render, error) {
	var rd Render
	var targets string
	var errMsg sql.NullString
	var createdAt, updatedAt string

	if err := row.Scan(&rd.ID, &rd.Status, &rd.Sources, &targets, &rd.Plan, &errMsg, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(targets), &rd.Targets); err != nil {
		return nil, fmt.Errorf("render %s: decode targets: %w", rd.ID, err)
	}
	rd.Error = errMsg.String
	rd.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	rd.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &rd, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
