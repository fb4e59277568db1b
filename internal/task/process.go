package task

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"strings"

	"Danni-Agent/internal/a2a"
	xerrors "Danni-Agent/internal/errors"
	"Danni-Agent/internal/observability/alerting"
	"Danni-Agent/internal/swarm"
	"Danni-Agent/pkg/logger"
)

// 分析产出物的名称与描述。
const (
	ArtifactBrandAnalysis    = "brand-analysis"
	brandAnalysisDescription = "Strategic brand analysis from Danni"
)

// Process 对任务执行品牌分析，并根据结果推进到 completed 或 failed。
//
// 任务已处于 working 时不会重复迁移；无法进入 working（例如已终态）时原样返回当前任务。
func (r *Registry) Process(ctx context.Context, id string) (*a2a.Task, error) {
	r.mu.Lock()
	current, err := r.store.Get(ctx, id)
	if err != nil {
		r.mu.Unlock()
		return nil, err
	}
	if current.Status.State != a2a.StateWorking {
		if _, err := r.updateStatusLocked(ctx, id, a2a.StateWorking,
			a2a.AgentMessage("Danni is analyzing your brief...", nil)); err != nil {
			r.mu.Unlock()
			if stdErrors.Is(err, ErrInvalidTransition) {
				return current, nil
			}
			return nil, err
		}
	}
	brief := Brief(current)
	if strings.TrimSpace(brief) == "" {
		defer r.mu.Unlock()
		if _, err := r.addMessageLocked(ctx, id, *a2a.AgentMessage("No text content found in user messages.", nil)); err != nil {
			return nil, err
		}
		if _, err := r.updateStatusLocked(ctx, id, a2a.StateFailed, a2a.AgentMessage("Task failed: empty brief", nil)); err != nil {
			return nil, err
		}
		return r.store.Get(ctx, id)
	}
	r.mu.Unlock()

	output, execErr := r.execute(ctx, brief)

	r.mu.Lock()
	defer r.mu.Unlock()
	if execErr == nil {
		execErr = r.completeLocked(ctx, id, output)
	}
	if execErr != nil {
		r.failLocked(ctx, current, execErr)
	}
	return r.store.Get(ctx, id)
}

func (r *Registry) execute(ctx context.Context, brief string) (*swarm.Output, error) {
	if r.executor == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置分析执行器")
	}
	return r.executor.Execute(ctx, swarm.Input{Brief: brief}, nil)
}

func (r *Registry) completeLocked(ctx context.Context, id string, output *swarm.Output) error {
	dataPart, err := a2a.DataPart("application/json", output)
	if err != nil {
		return err
	}
	artifact := a2a.Artifact{
		ArtifactID:  r.newID(),
		Name:        ArtifactBrandAnalysis,
		Description: brandAnalysisDescription,
		Parts:       []a2a.Part{a2a.TextPart(output.Analysis.Synthesis), dataPart},
	}
	if _, err := r.addArtifactLocked(ctx, id, artifact); err != nil {
		return err
	}
	if _, err := r.addMessageLocked(ctx, id, *a2a.AgentMessage("Analysis complete. Results attached as artifact.", nil)); err != nil {
		return err
	}
	if _, err := r.updateStatusLocked(ctx, id, a2a.StateCompleted, a2a.AgentMessage("Task completed successfully.", nil)); err != nil {
		return err
	}
	logger.Audit().Info("分析完成",
		slog.String("task_id", id),
		slog.Int64("duration_ms", output.Metadata.DurationMs))
	return nil
}

// failLocked 记录失败消息并尽力迁移到 failed，迁移失败只记录日志。
func (r *Registry) failLocked(ctx context.Context, t *a2a.Task, cause error) {
	msg := cause.Error()
	if _, err := r.addMessageLocked(ctx, t.ID, *a2a.AgentMessage("Analysis failed: "+msg, nil)); err != nil {
		r.logger.Error("追加失败消息出错", slog.String("task_id", t.ID), slog.Any("error", err))
	}
	if _, err := r.updateStatusLocked(ctx, t.ID, a2a.StateFailed, a2a.AgentMessage("Task failed: "+msg, nil)); err != nil {
		r.logger.Warn("任务无法迁移到 failed",
			slog.String("task_id", t.ID),
			slog.Any("error", err),
			slog.String("original_error", msg))
	}
	logger.Audit().Warn("分析失败",
		slog.String("task_id", t.ID),
		slog.String("error", msg),
		slog.String("error_code", string(xerrors.CodeOf(cause))))
	r.notify(ctx, t, cause, "process")
}

func (r *Registry) notify(ctx context.Context, t *a2a.Task, cause error, stage string) {
	if r.alerter == nil {
		return
	}
	code := xerrors.CodeOf(cause)
	if code == xerrors.CodeUnknown {
		code = CodeTaskProcessing
	}
	event := alerting.NewEvent(code, cause, stage)
	event.TaskID = t.ID
	event.ContextID = t.ContextID
	if err := r.alerter.Notify(ctx, event); err != nil {
		r.logger.Error("告警通知失败", slog.Any("error", err), slog.String("task_id", t.ID))
	}
}
