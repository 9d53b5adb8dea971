// Package service 深度研究与金融分析工作流的业务编排，负责记录持久化和事件推送
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/HildaM/logs/slog"
	"github.com/google/uuid"

	"github.com/hildam/deep-dive-go/agent"
	"github.com/hildam/deep-dive-go/entity/consts"
	"github.com/hildam/deep-dive-go/entity/model"
	"github.com/hildam/deep-dive-go/repo/event"
	"github.com/hildam/deep-dive-go/repo/store"
)

// ErrEmptyTopic 研究主题为空
var ErrEmptyTopic = errors.New("research topic is empty")

// Orchestrator 报告工作流，线程ID即研究记录ID
type Orchestrator interface {
	Start(ctx context.Context, threadID string, in *model.ReportInput) (*agent.Outcome, error)
	Resume(ctx context.Context, threadID string, fb *model.PlanFeedback) (*agent.Outcome, error)
}

// ResearchService 深度研究：生成大纲、按审核结果重写大纲或完成报告
type ResearchService struct {
	reports store.ReportStore
	docs    store.DocumentStore
	orch    Orchestrator
}

// NewResearchService 创建实例
func NewResearchService(reports store.ReportStore, docs store.DocumentStore, orch Orchestrator) *ResearchService {
	return &ResearchService{reports: reports, docs: docs, orch: orch}
}

// StartPlanner 创建研究记录并生成大纲，运行停在人工审核处
func (s *ResearchService) StartPlanner(ctx context.Context, userID, projectID, topic string) (*model.ResearchResult, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, ErrEmptyTopic
	}

	rec := &model.DeepResearch{
		ID:        uuid.NewString(),
		UserID:    userID,
		ProjectID: projectID,
		Topic:     topic,
		Status:    consts.StatusToBeStarted,
		Type:      consts.ResearchType,
	}
	if err := s.reports.InsertReport(ctx, rec); err != nil {
		return nil, err
	}

	docs, err := s.docs.ListDocuments(ctx, userID)
	if err != nil {
		slog.Error("StartPlanner failed, list documents user = %s, err = %+v", userID, err)
		return nil, err
	}

	if err := s.setStatus(ctx, rec, consts.StatusInPlanning); err != nil {
		return nil, err
	}

	out, err := s.orch.Start(ctx, rec.ID, &model.ReportInput{
		Topic:             topic,
		InternalDocuments: model.FormatDocuments(docs),
		UserID:            userID,
		ProjectID:         projectID,
	})
	if err != nil {
		return nil, err
	}
	if !out.Interrupted {
		return nil, fmt.Errorf("report %s finished without plan review", rec.ID)
	}
	return s.savePlan(ctx, rec, out.Plan)
}

// ContinueResearch 注入审核结果：通过时运行到结束并保存报告，修改意见时保存重写后的大纲
func (s *ResearchService) ContinueResearch(ctx context.Context, userID, reportID string, fb *model.PlanFeedback) (*model.ResearchResult, error) {
	if fb == nil || (!fb.Approved && strings.TrimSpace(fb.Text) == "") {
		return nil, model.ErrInvalidFeedback
	}
	rec, err := s.reports.GetReport(ctx, userID, reportID)
	if err != nil {
		return nil, err
	}

	prev := rec.Status
	if fb.Approved {
		if err := s.setStatus(ctx, rec, consts.StatusInProgress); err != nil {
			return nil, err
		}
	}

	// 恢复失败时保留原大纲并回退状态
	out, err := s.orch.Resume(ctx, reportID, fb)
	if err != nil {
		if rec.Status != prev {
			rec.Status = prev
			if uerr := s.reports.UpdateReport(ctx, rec); uerr != nil {
				slog.Error("ContinueResearch failed, restore status report = %s, err = %+v", rec.ID, uerr)
			}
		}
		return nil, err
	}
	if out.Interrupted {
		return s.savePlan(ctx, rec, out.Plan)
	}

	var sources model.SourceList
	for _, sec := range out.Sections {
		sources = append(sources, sec.Sources...)
	}
	rec.Report = out.Report
	rec.Sources = sources.Titles()
	rec.Status = consts.StatusCompleted
	if err := s.reports.UpdateReport(ctx, rec); err != nil {
		return nil, err
	}
	slog.Info("ContinueResearch info, report = %s completed, sources = %d", rec.ID, len(rec.Sources))
	return &model.ResearchResult{
		ReportID: rec.ID,
		Type:     model.ResultReport,
		Topic:    rec.Topic,
		Report:   rec.Report,
	}, nil
}

// GetReport 读取研究记录
func (s *ResearchService) GetReport(ctx context.Context, userID, reportID string) (*model.DeepResearch, error) {
	return s.reports.GetReport(ctx, userID, reportID)
}

// savePlan 保存等待审核的大纲
func (s *ResearchService) savePlan(ctx context.Context, rec *model.DeepResearch, plan *model.ReportPlan) (*model.ResearchResult, error) {
	if plan == nil {
		return nil, fmt.Errorf("report %s interrupted without plan", rec.ID)
	}
	rec.Plan = plan.Sections
	rec.Description = plan.Description
	rec.Status = consts.StatusInPlanning
	if err := s.reports.UpdateReport(ctx, rec); err != nil {
		return nil, err
	}
	return &model.ResearchResult{
		ReportID:    rec.ID,
		Type:        model.ResultPlan,
		Topic:       rec.Topic,
		Description: plan.Description,
		Plan:        plan.Sections,
	}, nil
}

// setStatus 更新状态并推送 status 事件
func (s *ResearchService) setStatus(ctx context.Context, rec *model.DeepResearch, status string) error {
	rec.Status = status
	if err := s.reports.UpdateReport(ctx, rec); err != nil {
		return err
	}
	event.Emit(ctx, model.Event{Event: consts.EventStatus, Status: status, ReportID: rec.ID})
	return nil
}
