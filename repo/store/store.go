// Package store 研究记录、工作流记录和内部文档的持久化
package store

import (
	"context"
	"errors"

	"github.com/HildaM/logs/slog"
	"github.com/hildam/deep-dive-go/entity/model"
	"github.com/jmoiron/sqlx"

	_ "github.com/lib/pq" // postgres 驱动
)

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("record not found")

// ReportStore 深度研究记录
type ReportStore interface {
	InsertReport(ctx context.Context, r *model.DeepResearch) error
	GetReport(ctx context.Context, userID, id string) (*model.DeepResearch, error)
	UpdateReport(ctx context.Context, r *model.DeepResearch) error
}

// WorkflowStore 分析工作流记录
type WorkflowStore interface {
	InsertWorkflow(ctx context.Context, w *model.Workflow) error
	GetWorkflow(ctx context.Context, userID, id string) (*model.Workflow, error)
	UpdateWorkflow(ctx context.Context, w *model.Workflow) error
}

// DocumentStore 用户上传的内部文档
type DocumentStore interface {
	InsertDocument(ctx context.Context, d *model.Document) error
	ListDocuments(ctx context.Context, userID string) ([]model.Document, error)
}

// Store 全部存储能力
type Store interface {
	ReportStore
	WorkflowStore
	DocumentStore
}

// Open 配置了 DSN 时连接 postgres 并建表，否则使用内存存储
func Open(ctx context.Context, dsn string) (Store, func() error, error) {
	if dsn == "" {
		slog.Info("store: memory")
		return NewMemory(), func() error { return nil }, nil
	}
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, nil, err
	}
	pg := NewPostgres(db)
	if err := pg.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	slog.Info("store: postgres")
	return pg, db.Close, nil
}
