package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/HildaM/logs/slog"
	"github.com/hildam/deep-dive-go/entity/model"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS deep_research (
	id          TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL,
	project_id  TEXT NOT NULL DEFAULT '',
	topic       TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	plan        JSONB NOT NULL DEFAULT '[]',
	sources     JSONB NOT NULL DEFAULT '[]',
	status      TEXT NOT NULL,
	report      TEXT NOT NULL DEFAULT '',
	insights    JSONB NOT NULL DEFAULT '[]',
	type        TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_deep_research_user ON deep_research (user_id);
CREATE TABLE IF NOT EXISTS workflows (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	name       TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL,
	messages   JSONB NOT NULL DEFAULT '[]',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS documents (
	id            TEXT PRIMARY KEY,
	user_id       TEXT NOT NULL,
	name          TEXT NOT NULL,
	document_type TEXT NOT NULL DEFAULT '',
	domain        TEXT NOT NULL DEFAULT '',
	description   TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_documents_user ON documents (user_id);
`

// Postgres 基于 sqlx 的存储
type Postgres struct {
	db *sqlx.DB
}

// NewPostgres 创建 postgres 存储
func NewPostgres(db *sqlx.DB) *Postgres {
	return &Postgres{db: db}
}

// Migrate 建表
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

type reportRow struct {
	ID          string         `db:"id"`
	UserID      string         `db:"user_id"`
	ProjectID   string         `db:"project_id"`
	Topic       string         `db:"topic"`
	Description string         `db:"description"`
	Plan        types.JSONText `db:"plan"`
	Sources     types.JSONText `db:"sources"`
	Status      string         `db:"status"`
	Report      string         `db:"report"`
	Insights    types.JSONText `db:"insights"`
	Type        string         `db:"type"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

func (row *reportRow) toModel() (*model.DeepResearch, error) {
	r := &model.DeepResearch{
		ID:          row.ID,
		UserID:      row.UserID,
		ProjectID:   row.ProjectID,
		Topic:       row.Topic,
		Description: row.Description,
		Status:      row.Status,
		Report:      row.Report,
		Type:        row.Type,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}
	if err := unmarshalJSON(row.Plan, &r.Plan); err != nil {
		return nil, fmt.Errorf("plan: %w", err)
	}
	if err := unmarshalJSON(row.Sources, &r.Sources); err != nil {
		return nil, fmt.Errorf("sources: %w", err)
	}
	if err := unmarshalJSON(row.Insights, &r.Insights); err != nil {
		return nil, fmt.Errorf("insights: %w", err)
	}
	return r, nil
}

func (p *Postgres) InsertReport(ctx context.Context, r *model.DeepResearch) error {
	plan, sources, insights, err := reportJSON(r)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	_, err = p.db.ExecContext(ctx, `INSERT INTO deep_research (id, user_id, project_id, topic, description, plan, sources, status, report, insights, type, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		r.ID, r.UserID, r.ProjectID, r.Topic, r.Description, plan, sources, r.Status, r.Report, insights, r.Type, now, now)
	if err != nil {
		slog.Error("InsertReport failed, id = %s, err = %+v", r.ID, err)
		return fmt.Errorf("insert report %s: %w", r.ID, err)
	}
	r.CreatedAt, r.UpdatedAt = now, now
	return nil
}

func (p *Postgres) GetReport(ctx context.Context, userID, id string) (*model.DeepResearch, error) {
	var row reportRow
	err := p.db.GetContext(ctx, &row, `SELECT id, user_id, project_id, topic, description, plan, sources, status, report, insights, type, created_at, updated_at FROM deep_research WHERE id = $1 AND user_id = $2`, id, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get report %s: %w", id, err)
	}
	return row.toModel()
}

func (p *Postgres) UpdateReport(ctx context.Context, r *model.DeepResearch) error {
	plan, sources, insights, err := reportJSON(r)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	res, err := p.db.ExecContext(ctx, `UPDATE deep_research SET topic = $3, description = $4, plan = $5, sources = $6, status = $7, report = $8, insights = $9, updated_at = $10 WHERE id = $1 AND user_id = $2`,
		r.ID, r.UserID, r.Topic, r.Description, plan, sources, r.Status, r.Report, insights, now)
	if err != nil {
		slog.Error("UpdateReport failed, id = %s, err = %+v", r.ID, err)
		return fmt.Errorf("update report %s: %w", r.ID, err)
	}
	if err := affected(res); err != nil {
		return err
	}
	r.UpdatedAt = now
	return nil
}

type workflowRow struct {
	ID        string         `db:"id"`
	UserID    string         `db:"user_id"`
	Name      string         `db:"name"`
	Status    string         `db:"status"`
	Messages  types.JSONText `db:"messages"`
	CreatedAt time.Time      `db:"created_at"`
	UpdatedAt time.Time      `db:"updated_at"`
}

func (p *Postgres) InsertWorkflow(ctx context.Context, w *model.Workflow) error {
	msgs, err := marshalJSON(w.Messages)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	_, err = p.db.ExecContext(ctx, `INSERT INTO workflows (id, user_id, name, status, messages, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		w.ID, w.UserID, w.Name, w.Status, msgs, now, now)
	if err != nil {
		slog.Error("InsertWorkflow failed, id = %s, err = %+v", w.ID, err)
		return fmt.Errorf("insert workflow %s: %w", w.ID, err)
	}
	w.CreatedAt, w.UpdatedAt = now, now
	return nil
}

func (p *Postgres) GetWorkflow(ctx context.Context, userID, id string) (*model.Workflow, error) {
	var row workflowRow
	err := p.db.GetContext(ctx, &row, `SELECT id, user_id, name, status, messages, created_at, updated_at FROM workflows WHERE id = $1 AND user_id = $2`, id, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get workflow %s: %w", id, err)
	}
	w := &model.Workflow{
		ID:        row.ID,
		UserID:    row.UserID,
		Name:      row.Name,
		Status:    row.Status,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
	if err := unmarshalJSON(row.Messages, &w.Messages); err != nil {
		return nil, fmt.Errorf("messages: %w", err)
	}
	return w, nil
}

func (p *Postgres) UpdateWorkflow(ctx context.Context, w *model.Workflow) error {
	msgs, err := marshalJSON(w.Messages)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	res, err := p.db.ExecContext(ctx, `UPDATE workflows SET name = $3, status = $4, messages = $5, updated_at = $6 WHERE id = $1 AND user_id = $2`,
		w.ID, w.UserID, w.Name, w.Status, msgs, now)
	if err != nil {
		slog.Error("UpdateWorkflow failed, id = %s, err = %+v", w.ID, err)
		return fmt.Errorf("update workflow %s: %w", w.ID, err)
	}
	if err := affected(res); err != nil {
		return err
	}
	w.UpdatedAt = now
	return nil
}

func (p *Postgres) InsertDocument(ctx context.Context, d *model.Document) error {
	_, err := p.db.NamedExecContext(ctx, `INSERT INTO documents (id, user_id, name, document_type, domain, description) VALUES (:id, :user_id, :name, :document_type, :domain, :description)`, d)
	if err != nil {
		return fmt.Errorf("insert document %s: %w", d.ID, err)
	}
	return nil
}

func (p *Postgres) ListDocuments(ctx context.Context, userID string) ([]model.Document, error) {
	var docs []model.Document
	err := p.db.SelectContext(ctx, &docs, `SELECT id, user_id, name, document_type, domain, description FROM documents WHERE user_id = $1 ORDER BY name`, userID)
	if err != nil {
		return nil, fmt.Errorf("list documents of %s: %w", userID, err)
	}
	return docs, nil
}

func reportJSON(r *model.DeepResearch) (plan, sources, insights types.JSONText, err error) {
	if plan, err = marshalJSON(r.Plan); err != nil {
		return
	}
	if sources, err = marshalJSON(r.Sources); err != nil {
		return
	}
	insights, err = marshalJSON(r.Insights)
	return
}

// marshalJSON nil 切片写成空数组
func marshalJSON[T any](v []T) (types.JSONText, error) {
	if v == nil {
		v = []T{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return types.JSONText(b), nil
}

func unmarshalJSON(raw types.JSONText, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	return raw.Unmarshal(dst)
}

// affected 更新不到记录视为不存在
func affected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
