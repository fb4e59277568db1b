package swarm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	xerrors "Danni-Agent/internal/errors"
	"Danni-Agent/internal/llm"
	"Danni-Agent/internal/observability/metrics"
	"Danni-Agent/internal/tracker"
	"Danni-Agent/pkg/logger"
)

const (
	defaultStagger     = time.Second
	defaultCallTimeout = 120 * time.Second
	maxConcurrency     = 4
	agentsUsed         = 5
)

// CodeAgentOutputMissing 表示结果组装时找不到某位分析师的输出。
const CodeAgentOutputMissing xerrors.Code = "SWARM_AGENT_OUTPUT_MISSING"

func init() {
	xerrors.Register(CodeAgentOutputMissing, xerrors.Attributes{
		Message:  "agent output missing",
		Severity: xerrors.SeverityCritical,
		RPCCode:  xerrors.RPCInternalError,
	})
}

// Orchestrator 协调四位并行分析师与综合代理。
type Orchestrator struct {
	client    llm.Client
	stagger   time.Duration
	timeout   time.Duration
	maxTokens int
	subs      []tracker.Subscriber
	logger    *slog.Logger
	now       func() time.Time
}

// Option 定义可选的 Orchestrator 配置。
type Option func(*Orchestrator)

// WithStagger 设置相邻分析师之间的启动间隔。
func WithStagger(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d >= 0 {
			o.stagger = d
		}
	}
}

// WithCallTimeout 设置每次模型调用的超时。
func WithCallTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithMaxTokens 设置每次调用的最大输出 token 数，0 表示使用后端默认值。
func WithMaxTokens(n int) Option {
	return func(o *Orchestrator) {
		if n >= 0 {
			o.maxTokens = n
		}
	}
}

// WithSubscribers 为每次执行新建的 Tracker 挂载额外订阅者，例如 Redis 或 RabbitMQ 转发器。
func WithSubscribers(subs ...tracker.Subscriber) Option {
	return func(o *Orchestrator) {
		o.subs = append(o.subs, subs...)
	}
}

// WithLogger 替换默认日志记录器。
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock 覆盖耗时统计使用的时钟。
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// New 创建 Orchestrator。
func New(client llm.Client, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		client:  client,
		stagger: defaultStagger,
		timeout: defaultCallTimeout,
		logger:  logger.Named("swarm"),
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

// NewTracker 创建挂载了全局订阅者的 Tracker。
func (o *Orchestrator) NewTracker(extra ...tracker.Subscriber) *tracker.Tracker {
	subs := make([]tracker.Subscriber, 0, len(o.subs)+len(extra))
	subs = append(subs, o.subs...)
	subs = append(subs, extra...)
	return tracker.New(tracker.WithSubscribers(subs...))
}

// Execute 并行运行四位分析师，再串行执行综合。
//
// 分析师失败不会中断执行，而是以 failed/timeout 状态进入结果；综合失败则整体失败。
// tr 为 nil 时使用 NewTracker 创建的 Tracker。
func (o *Orchestrator) Execute(ctx context.Context, in Input, tr *tracker.Tracker) (*Output, error) {
	if o.client == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置大模型客户端")
	}
	if strings.TrimSpace(in.Brief) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "brief is required")
	}
	if tr == nil {
		tr = o.NewTracker()
	}
	start := o.now()

	results := make([]AgentOutput, len(analysts))
	var g errgroup.Group
	g.SetLimit(maxConcurrency)
	for i, a := range analysts {
		delay := time.Duration(i) * o.stagger
		g.Go(func() error {
			if delay > 0 {
				timer := time.NewTimer(delay)
				select {
				case <-timer.C:
				case <-ctx.Done():
					timer.Stop()
				}
			}
			results[i] = o.runAnalyst(ctx, a, in, tr)
			return nil
		})
	}
	_ = g.Wait()

	tr.SynthesisStarted()
	synthesis, err := o.synthesize(ctx, in.Brief, results, tr)
	if err != nil {
		return nil, err
	}
	tr.SynthesisCompleted()

	out := &Output{
		Brief: in.Brief,
		Metadata: Metadata{
			AgentsUsed: agentsUsed,
			DurationMs: o.now().Sub(start).Milliseconds(),
			TxHashes:   []string{},
		},
	}
	out.Analysis.Synthesis = synthesis
	slots := []struct {
		match string
		dst   *AgentOutput
	}{
		{"Market", &out.Analysis.Market},
		{"Competitive", &out.Analysis.Competitive},
		{"Cultural", &out.Analysis.Cultural},
		{"Brand", &out.Analysis.Brand},
	}
	for _, slot := range slots {
		found, err := findAgentOutput(results, slot.match)
		if err != nil {
			return nil, err
		}
		*slot.dst = found
	}

	if err := validate.Struct(out); err != nil {
		o.logger.Warn("蜂群输出未通过结构校验", slog.Any("error", err))
	}
	return out, nil
}

// RunAnalyst 单独运行一位分析师，供数据类工具调用。
func (o *Orchestrator) RunAnalyst(ctx context.Context, name string, in Input, tr *tracker.Tracker) (AgentOutput, error) {
	if o.client == nil {
		return AgentOutput{}, xerrors.New(xerrors.CodeInitializationFailure, "未配置大模型客户端")
	}
	a, ok := lookupAnalyst(name)
	if !ok {
		return AgentOutput{}, xerrors.Newf(xerrors.CodeInvalidArgument, "unknown analyst: %s", name)
	}
	if tr == nil {
		tr = o.NewTracker()
	}
	return o.runAnalyst(ctx, a, in, tr), nil
}

func (o *Orchestrator) runAnalyst(ctx context.Context, a Analyst, in Input, tr *tracker.Tracker) AgentOutput {
	start := o.now()
	tr.LogStart(a.Name)

	output, err := o.complete(ctx, a.Name, a.prompt, FormatInput(in))
	elapsed := o.now().Sub(start)
	if err != nil {
		status := StatusFailed
		if errors.Is(err, context.DeadlineExceeded) {
			status = StatusTimeout
		}
		tr.LogFail(a.Name, err.Error(), elapsed)
		metrics.ObserveAgentRun(a.Name, string(status), elapsed)
		o.logger.Warn("分析师执行失败",
			slog.String("agent", a.Name),
			slog.String("status", string(status)),
			slog.Any("error", err))
		return AgentOutput{
			AgentName:  a.Name,
			Status:     status,
			Output:     "Agent failed: " + err.Error(),
			Sources:    []string{},
			DurationMs: elapsed.Milliseconds(),
		}
	}

	tr.LogComplete(a.Name, output, elapsed)
	metrics.ObserveAgentRun(a.Name, string(StatusCompleted), elapsed)
	return AgentOutput{
		AgentName:  a.Name,
		Status:     StatusCompleted,
		Output:     output,
		Sources:    ExtractSources(output),
		DurationMs: elapsed.Milliseconds(),
	}
}

func (o *Orchestrator) synthesize(ctx context.Context, brief string, outputs []AgentOutput, tr *tracker.Tracker) (string, error) {
	start := o.now()
	tr.LogStart(SynthesisAgent)

	output, err := o.complete(ctx, SynthesisAgent, synthesisPrompt, synthesisInput(brief, outputs))
	elapsed := o.now().Sub(start)
	if err != nil {
		tr.LogFail(SynthesisAgent, err.Error(), elapsed)
		metrics.ObserveAgentRun(SynthesisAgent, string(StatusFailed), elapsed)
		return "", xerrors.Wrap(xerrors.CodeExecutorFailure, err, "Danni synthesis failed")
	}
	tr.LogComplete(SynthesisAgent, output, elapsed)
	metrics.ObserveAgentRun(SynthesisAgent, string(StatusCompleted), elapsed)
	return output, nil
}

// complete 在独立的超时上下文中调用模型；超时错误保留 context.DeadlineExceeded 以便区分状态。
func (o *Orchestrator) complete(ctx context.Context, name, promptFile, userMessage string) (string, error) {
	systemPrompt, err := loadPrompt(promptFile)
	if err != nil {
		return "", err
	}
	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	output, err := o.client.Complete(callCtx, llm.Request{
		SystemPrompt: systemPrompt,
		UserMessage:  userMessage,
		MaxTokens:    o.maxTokens,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%s timed out after %dms: %w", name, o.timeout.Milliseconds(), context.DeadlineExceeded)
		}
		return "", err
	}
	return output, nil
}

func findAgentOutput(results []AgentOutput, match string) (AgentOutput, error) {
	for _, r := range results {
		if strings.Contains(r.AgentName, match) {
			return r, nil
		}
	}
	return AgentOutput{}, xerrors.New(CodeAgentOutputMissing, "Agent output not found for: "+match)
}
