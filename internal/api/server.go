package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/rs/cors"

	"Danni-Agent/internal/a2a"
	"Danni-Agent/internal/ap2"
	"Danni-Agent/internal/observability/metrics"
	"Danni-Agent/internal/swarm"
	"Danni-Agent/internal/task"
	"Danni-Agent/internal/tracker"
	"Danni-Agent/internal/web3"
	"Danni-Agent/pkg/logger"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// describe 把校验错误转换为面向调用方的描述。
var describe = a2a.DescribeValidation

// Config 控制 HTTP 服务。
type Config struct {
	Address string
	// PublicURL 是代理卡片和注册文件中公布的外部地址。
	PublicURL string
	// AgentURI 用于 ERC-8004 身份查询。
	AgentURI        string
	PayTo           string
	AllowedOrigins  []string
	ShutdownTimeout time.Duration
}

// Analyzer 执行蜂群分析；*swarm.Orchestrator 实现了该接口。
type Analyzer interface {
	Execute(ctx context.Context, in swarm.Input, tr *tracker.Tracker) (*swarm.Output, error)
	RunAnalyst(ctx context.Context, name string, in swarm.Input, tr *tracker.Tracker) (swarm.AgentOutput, error)
	NewTracker(extra ...tracker.Subscriber) *tracker.Tracker
}

// ReputationNotifier 在付款结算后提交链上声誉反馈。
type ReputationNotifier interface {
	NotifyPayment(ctx context.Context, agentURI, endpoint, txHash, amount string) (bool, error)
}

// ChainStatus 报告已连接链的状态，用于健康检查。
type ChainStatus interface {
	Snapshots(ctx context.Context) ([]web3.ChainSnapshot, map[string]error)
}

// Server 暴露 A2A、MCP、发现文档与分析接口。
type Server struct {
	cfg        Config
	tasks      *task.Registry
	swarm      Analyzer
	ledger     *ap2.Ledger
	reputation ReputationNotifier
	chains     ChainStatus
	chain      web3.ChainDefinition
	logger     *slog.Logger
	now        func() time.Time
	router     chi.Router
}

// Option 自定义 Server。
type Option func(*Server)

// WithLedger 设置付款账本，未设置时使用内存账本。
func WithLedger(l *ap2.Ledger) Option {
	return func(s *Server) {
		if l != nil {
			s.ledger = l
		}
	}
}

// WithReputation 启用付款后的声誉反馈。
func WithReputation(n ReputationNotifier) Option {
	return func(s *Server) {
		s.reputation = n
	}
}

// WithChainStatus 让 /healthz 附带链状态。
func WithChainStatus(c ChainStatus) Option {
	return func(s *Server) {
		s.chains = c
	}
}

// WithChainDefinition 设置注册文件中公布的链与注册表地址。
func WithChainDefinition(def web3.ChainDefinition) Option {
	return func(s *Server) {
		if def.ChainID != 0 {
			s.chain = def
		}
	}
}

// WithLogger 替换默认日志器。
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock 替换时间来源，测试使用。
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// New 构造 API 服务实例。
func New(cfg Config, tasks *task.Registry, analyzer Analyzer, opts ...Option) *Server {
	if cfg.Address == "" {
		cfg.Address = ":8080"
	}
	cfg.PublicURL = strings.TrimRight(cfg.PublicURL, "/")
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}

	s := &Server{
		cfg:    cfg,
		tasks:  tasks,
		swarm:  analyzer,
		ledger: ap2.NewLedger(),
		chain:  web3.DefaultChains().Chains["base-sepolia"],
		logger: logger.Named("api"),
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(observe)

	r.Post("/api/a2a", s.handleA2A)
	r.Post("/api/mcp", s.handleMCP)
	r.Post("/api/danni/analyze", s.handleAnalyze)
	r.Get("/api/payments/history", s.handlePaymentHistory)
	r.Get("/.well-known/agent.json", s.handleAgentCard)
	r.Get("/.well-known/agent-registration.json", s.handleRegistration)
	r.Get("/healthz", s.handleHealthz)
	r.Handle("/metrics", metrics.Handler())
	return r
}

// Handler 返回带 CORS 的完整路由，测试可直接使用。
func (s *Server) Handler() http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{"X-Payment-Response"},
	}).Handler(s.router)
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.cfg.Address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("API 服务已启动", slog.String("address", s.cfg.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("API 服务关闭超时", slog.Any("error", err))
		}
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// observe 记录每个请求的路由模板、状态码与耗时。
func observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if pattern := rc.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.ObserveHTTPRequest(route, r.Method, status, time.Since(start))
	})
}

type healthResponse struct {
	Status string               `json:"status"`
	Agent  string               `json:"agent"`
	Chains []web3.ChainSnapshot `json:"chains,omitempty"`
	Errors map[string]string    `json:"errors,omitempty"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Agent: agentName}
	if s.chains != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		snapshots, errs := s.chains.Snapshots(ctx)
		resp.Chains = snapshots
		if len(errs) > 0 {
			resp.Status = "degraded"
			resp.Errors = make(map[string]string, len(errs))
			for name, err := range errs {
				resp.Errors[name] = err.Error()
			}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
