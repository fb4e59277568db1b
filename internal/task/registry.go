package task

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"Danni-Agent/internal/a2a"
	"Danni-Agent/internal/observability/alerting"
	"Danni-Agent/internal/observability/metrics"
	"Danni-Agent/internal/swarm"
	"Danni-Agent/internal/tracker"
	"Danni-Agent/pkg/logger"
)

// Executor 执行品牌分析，由 swarm.Orchestrator 实现。
type Executor interface {
	Execute(ctx context.Context, in swarm.Input, tr *tracker.Tracker) (*swarm.Output, error)
}

// Registry 管理任务生命周期，是唯一允许修改任务状态的组件。
//
// 所有变更在 mu 下串行执行；Process 在调用 Executor 期间释放锁。
type Registry struct {
	mu       sync.Mutex
	store    Store
	executor Executor
	alerter  alerting.Dispatcher
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
}

// Option 定义可选的 Registry 配置。
type Option func(*Registry)

// WithStore 替换默认的内存存储。
func WithStore(store Store) Option {
	return func(r *Registry) {
		if store != nil {
			r.store = store
		}
	}
}

// WithClock 覆盖状态时间戳使用的时钟。
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// WithIDGenerator 覆盖任务、上下文与产出物 ID 的生成方式。
func WithIDGenerator(gen func() string) Option {
	return func(r *Registry) {
		if gen != nil {
			r.newID = gen
		}
	}
}

// WithLogger 替换默认日志记录器。
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithAlerter 配置分析失败时的告警分发器。
func WithAlerter(d alerting.Dispatcher) Option {
	return func(r *Registry) {
		r.alerter = d
	}
}

// NewRegistry 创建 Registry。
func NewRegistry(executor Executor, opts ...Option) *Registry {
	r := &Registry{
		store:    NewMemoryStore(),
		executor: executor,
		logger:   logger.Named("task"),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// NewID 生成一个新的标识符，供产出物等附属实体使用。
func (r *Registry) NewID() string { return r.newID() }

// Create 以 submitted 状态创建任务；contextID 为空时生成新的上下文。
func (r *Registry) Create(ctx context.Context, msg a2a.Message, contextID string) (*a2a.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if contextID == "" {
		contextID = r.newID()
	}
	t := &a2a.Task{
		ID:        r.newID(),
		ContextID: contextID,
		Status: a2a.TaskStatus{
			State:     a2a.StateSubmitted,
			Timestamp: a2a.Now(r.now),
		},
		Artifacts: []a2a.Artifact{},
		History:   []a2a.Message{*msg.Clone()},
	}
	if err := r.store.Put(ctx, t); err != nil {
		return nil, err
	}
	indexed, err := r.store.IndexContext(ctx, contextID, t.ID)
	if err != nil {
		return nil, err
	}
	if !indexed {
		r.logger.Debug("上下文已绑定到其他任务，保留原映射",
			slog.String("context_id", contextID),
			slog.String("task_id", t.ID))
	}
	metrics.ObserveTaskTransition(string(a2a.StateSubmitted))
	logger.Audit().Info("任务已创建",
		slog.String("task_id", t.ID),
		slog.String("context_id", contextID))
	return t, nil
}

// Get 返回任务副本。
func (r *Registry) Get(ctx context.Context, id string) (*a2a.Task, error) {
	return r.store.Get(ctx, id)
}

// FindByContextID 返回上下文绑定的任务。
func (r *Registry) FindByContextID(ctx context.Context, contextID string) (*a2a.Task, error) {
	id, ok, err := r.store.LookupContext(ctx, contextID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, notFound(contextID)
	}
	return r.store.Get(ctx, id)
}

// UpdateStatus 沿迁移表推进任务状态，并覆盖 status。
func (r *Registry) UpdateStatus(ctx context.Context, id string, state a2a.TaskState, msg *a2a.Message) (*a2a.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.updateStatusLocked(ctx, id, state, msg)
}

func (r *Registry) updateStatusLocked(ctx context.Context, id string, state a2a.TaskState, msg *a2a.Message) (*a2a.Task, error) {
	t, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	from := t.Status.State
	if !a2a.CanTransition(from, state) {
		return nil, invalidTransition(id, from, state)
	}
	t.Status = a2a.TaskStatus{State: state, Message: msg.Clone(), Timestamp: a2a.Now(r.now)}
	if err := r.store.Put(ctx, t); err != nil {
		return nil, err
	}
	metrics.ObserveTaskTransition(string(state))
	r.logger.Debug("任务状态变更",
		slog.String("task_id", id),
		slog.String("from", string(from)),
		slog.String("to", string(state)))
	return t, nil
}

// Resume 把 input-required 的任务带回 working：校验、追加用户消息与迁移在同一把锁内完成。
// 任务已不在 input-required 时返回迁移错误，历史保持不变。
func (r *Registry) Resume(ctx context.Context, id string, msg a2a.Message, status *a2a.Message) (*a2a.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if from := t.Status.State; from != a2a.StateInputRequired {
		return nil, invalidTransition(id, from, a2a.StateWorking)
	}
	if _, err := r.addMessageLocked(ctx, id, msg); err != nil {
		return nil, err
	}
	return r.updateStatusLocked(ctx, id, a2a.StateWorking, status)
}

// AddArtifact 追加产出物。completed 之外的终态拒绝追加。
func (r *Registry) AddArtifact(ctx context.Context, id string, artifact a2a.Artifact) (*a2a.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.addArtifactLocked(ctx, id, artifact)
}

func (r *Registry) addArtifactLocked(ctx context.Context, id string, artifact a2a.Artifact) (*a2a.Task, error) {
	t, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if state := t.Status.State; state.IsTerminal() && state != a2a.StateCompleted {
		return nil, mutationRejected(id, state, "add artifact")
	}
	t.Artifacts = append(t.Artifacts, artifact.Clone())
	if err := r.store.Put(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// AddMessage 向历史追加一条消息。
func (r *Registry) AddMessage(ctx context.Context, id string, msg a2a.Message) (*a2a.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.addMessageLocked(ctx, id, msg)
}

func (r *Registry) addMessageLocked(ctx context.Context, id string, msg a2a.Message) (*a2a.Task, error) {
	t, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	t.History = append(t.History, *msg.Clone())
	if err := r.store.Put(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// Cancel 将非终态任务强制置为 canceled。
func (r *Registry) Cancel(ctx context.Context, id string) (*a2a.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Status.State.IsTerminal() {
		return nil, notCancelable(id, t.Status.State)
	}
	t.Status = a2a.TaskStatus{State: a2a.StateCanceled, Timestamp: a2a.Now(r.now)}
	if err := r.store.Put(ctx, t); err != nil {
		return nil, err
	}
	metrics.ObserveTaskTransition(string(a2a.StateCanceled))
	logger.Audit().Info("任务已取消", slog.String("task_id", id))
	return t, nil
}

// Brief 拼接全部用户消息中的文本片段。
func Brief(t *a2a.Task) string {
	var texts []string
	for _, m := range t.History {
		if m.Role != a2a.RoleUser {
			continue
		}
		texts = append(texts, m.Texts()...)
	}
	return strings.Join(texts, "\n")
}
