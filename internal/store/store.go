// Package store is the SQLite-backed media catalogue, plan history and
// post log.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/zebadrabbit/HelpMePost/internal/model"
)

var (
	ErrMediaNotFound = errors.New("store: media not found")
	ErrPlanNotFound  = errors.New("store: plan not found")
)

const timeLayout = "2006-01-02 15:04:05"

const schema = `
CREATE TABLE IF NOT EXISTS media (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	original_name TEXT NOT NULL,
	content_type  TEXT NOT NULL,
	size_bytes    INTEGER NOT NULL,
	path          TEXT NOT NULL,
	created_at    TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS plans (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	model      TEXT NOT NULL,
	plan_json  TEXT NOT NULL,
	created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS posts (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	plan_id   INTEGER NULL REFERENCES plans(id),
	platform  TEXT NOT NULL,
	uri       TEXT NOT NULL,
	cid       TEXT NULL,
	posted_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database file at path and applies
// the schema. Foreign keys are enforced on every connection.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// One connection serializes writers.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// AddMedia records a file that already lives at path.
func (s *Store) AddMedia(ctx context.Context, name, contentType string, size int64, path string) (model.MediaRef, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO media (original_name, content_type, size_bytes, path) VALUES (?, ?, ?, ?)`,
		name, contentType, size, path)
	if err != nil {
		return model.MediaRef{}, fmt.Errorf("store: insert media: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.MediaRef{}, err
	}
	return model.MediaRef{ID: id, Filename: name, ContentType: contentType, Size: size}, nil
}

// ImportFile copies src into dir under a random name and records it. The
// content type comes from the file's bytes, falling back to its extension.
func (s *Store) ImportFile(ctx context.Context, src, dir string) (model.MediaRef, error) {
	data, err := os.ReadFile(src)
	if err != nil {
		return model.MediaRef{}, fmt.Errorf("store: read %s: %w", src, err)
	}
	ct := http.DetectContentType(data)
	if ct == "application/octet-stream" {
		if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(src))); byExt != "" {
			ct = byExt
		}
	}
	ct, _, _ = strings.Cut(ct, ";")

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return model.MediaRef{}, fmt.Errorf("store: create %s: %w", dir, err)
	}
	dst := filepath.Join(dir, uuid.NewString()+strings.ToLower(filepath.Ext(src)))
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return model.MediaRef{}, fmt.Errorf("store: write %s: %w", dst, err)
	}
	ref, err := s.AddMedia(ctx, filepath.Base(src), ct, int64(len(data)), dst)
	if err != nil {
		os.Remove(dst)
		return model.MediaRef{}, err
	}
	return ref, nil
}

// Lookup returns the media rows for ids in the order given.
func (s *Store) Lookup(ctx context.Context, ids []int64) ([]model.MediaRef, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	q := `SELECT id, original_name, content_type, size_bytes FROM media WHERE id IN (` +
		strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",") + `)`
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: lookup media: %w", err)
	}
	defer rows.Close()

	byID := make(map[int64]model.MediaRef, len(ids))
	for rows.Next() {
		var m model.MediaRef
		if err := rows.Scan(&m.ID, &m.Filename, &m.ContentType, &m.Size); err != nil {
			return nil, err
		}
		byID[m.ID] = m
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]model.MediaRef, len(ids))
	for i, id := range ids {
		m, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: id %d", ErrMediaNotFound, id)
		}
		out[i] = m
	}
	return out, nil
}

// Fetch returns a media item's bytes and content type.
func (s *Store) Fetch(ctx context.Context, id int64) ([]byte, string, error) {
	var path, ct string
	err := s.db.QueryRowContext(ctx, `SELECT path, content_type FROM media WHERE id = ?`, id).Scan(&path, &ct)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", fmt.Errorf("%w: id %d", ErrMediaNotFound, id)
	}
	if err != nil {
		return nil, "", fmt.Errorf("store: fetch media %d: %w", id, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("store: read media %d: %w", id, err)
	}
	return data, ct, nil
}

// PlanRecord is one stored plan.
type PlanRecord struct {
	ID        int64       `json:"id"`
	Model     string      `json:"model"`
	CreatedAt time.Time   `json:"created_at"`
	Plan      *model.Plan `json:"plan"`
}

// InsertPlan stores p under its meta.model label and returns its id.
func (s *Store) InsertPlan(ctx context.Context, p *model.Plan) (int64, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return 0, fmt.Errorf("store: encode plan: %w", err)
	}
	name := p.Meta.Model
	if name == "" {
		name = "unknown"
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO plans (model, plan_json) VALUES (?, ?)`, name, string(b))
	if err != nil {
		return 0, fmt.Errorf("store: insert plan: %w", err)
	}
	return res.LastInsertId()
}

func (s *Store) GetPlan(ctx context.Context, id int64) (PlanRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, model, plan_json, created_at FROM plans WHERE id = ?`, id)
	rec, err := scanPlan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return PlanRecord{}, fmt.Errorf("%w: id %d", ErrPlanNotFound, id)
	}
	return rec, err
}

// ListPlans returns up to limit plans, newest first.
func (s *Store) ListPlans(ctx context.Context, limit int) ([]PlanRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, model, plan_json, created_at FROM plans ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list plans: %w", err)
	}
	defer rows.Close()
	var out []PlanRecord
	for rows.Next() {
		rec, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPlan(r scanner) (PlanRecord, error) {
	var (
		rec     PlanRecord
		raw     string
		created string
	)
	if err := r.Scan(&rec.ID, &rec.Model, &raw, &created); err != nil {
		return PlanRecord{}, err
	}
	rec.Plan = &model.Plan{}
	if err := json.Unmarshal([]byte(raw), rec.Plan); err != nil {
		return PlanRecord{}, fmt.Errorf("store: decode plan %d: %w", rec.ID, err)
	}
	rec.CreatedAt = parseTime(created)
	return rec, nil
}

// PostRecord is one successful publish.
type PostRecord struct {
	ID       int64          `json:"id"`
	PlanID   int64          `json:"plan_id,omitempty"`
	Platform model.Platform `json:"platform"`
	URI      string         `json:"uri"`
	CID      string         `json:"cid,omitempty"`
	PostedAt time.Time      `json:"posted_at"`
}

// RecordPost logs a published post. planID 0 means the post was not
// made from a stored plan.
func (s *Store) RecordPost(ctx context.Context, planID int64, platform model.Platform, uri, cid string) (int64, error) {
	var pid, c any
	if planID != 0 {
		pid = planID
	}
	if cid != "" {
		c = cid
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO posts (plan_id, platform, uri, cid) VALUES (?, ?, ?, ?)`, pid, string(platform), uri, c)
	if err != nil {
		return 0, fmt.Errorf("store: record post: %w", err)
	}
	return res.LastInsertId()
}

// ListPosts returns up to limit posts, newest first.
func (s *Store) ListPosts(ctx context.Context, limit int) ([]PostRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, plan_id, platform, uri, cid, posted_at FROM posts ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list posts: %w", err)
	}
	defer rows.Close()
	var out []PostRecord
	for rows.Next() {
		var (
			p        PostRecord
			planID   sql.NullInt64
			cid      sql.NullString
			platform string
			posted   string
		)
		if err := rows.Scan(&p.ID, &planID, &platform, &p.URI, &cid, &posted); err != nil {
			return nil, err
		}
		p.PlanID, p.CID, p.Platform = planID.Int64, cid.String, model.Platform(platform)
		p.PostedAt = parseTime(posted)
		out = append(out, p)
	}
	return out, rows.Err()
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
