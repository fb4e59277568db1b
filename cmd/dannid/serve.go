package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"Danni-Agent/internal/api"
	"Danni-Agent/internal/config"
	"Danni-Agent/internal/llm"
	"Danni-Agent/internal/llm/anthropic"
	"Danni-Agent/internal/llm/cli"
	"Danni-Agent/internal/llm/openai"
	"Danni-Agent/internal/observability/alerting"
	"Danni-Agent/internal/observability/metrics"
	"Danni-Agent/internal/swarm"
	"Danni-Agent/internal/task"
	"Danni-Agent/internal/tracker"
	"Danni-Agent/internal/web3"
	"Danni-Agent/internal/web3/erc8004"
	"Danni-Agent/internal/web3/provider"
	"Danni-Agent/pkg/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Danni HTTP server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	log := logger.Named("dannid")
	log.Info("启动 Danni",
		slog.String("version", version),
		slog.String("address", cfg.Server.Address),
		slog.String("llm_backend", cfg.LLM.Backend),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	client, err := newLLMClient(cfg)
	if err != nil {
		return err
	}

	subscribers, closeSubscribers, err := newEventSinks(ctx, cfg.Tracker)
	if err != nil {
		return err
	}
	defer closeSubscribers()

	orch := swarm.New(client,
		swarm.WithStagger(cfg.Swarm.Stagger.Std()),
		swarm.WithCallTimeout(cfg.Swarm.CallTimeout.Std()),
		swarm.WithMaxTokens(cfg.Swarm.MaxTokens),
		swarm.WithSubscribers(subscribers...),
	)

	notifiers := []alerting.Notifier{alerting.LogNotifier{}}
	if cfg.Alerting.WebhookURL != "" {
		notifiers = append(notifiers, &alerting.WebhookNotifier{URL: cfg.Alerting.WebhookURL})
	}
	tasks := task.NewRegistry(orch, task.WithAlerter(alerting.NewFanout(notifiers...)))

	payTo := cfg.Agent.WalletAddress
	if payTo == "" {
		payTo = common.Address{}.Hex()
		log.Warn("未配置收款钱包，报价将使用零地址")
	}

	opts := []api.Option{}
	if cfg.Web3.Enabled {
		chains, err := newChainRegistry(ctx, cfg.Web3)
		if err != nil {
			return err
		}
		defer chains.Close()

		def := chains.DefaultDefinition()
		opts = append(opts, api.WithChainStatus(chains), api.WithChainDefinition(def))

		reputation, err := newIdentityClient(chains, cfg.Agent.WalletPrivateKey)
		if err != nil {
			log.Warn("声誉上报不可用", slog.Any("error", err))
		} else {
			opts = append(opts, api.WithReputation(reputation))
		}
	}

	server := api.New(api.Config{
		Address:         cfg.Server.Address,
		PublicURL:       cfg.Server.PublicURL,
		AgentURI:        cfg.Agent.URI,
		PayTo:           payTo,
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		ShutdownTimeout: cfg.Server.ShutdownTimeout.Std(),
	}, tasks, orch, opts...)

	if cfg.Metrics.Address != "" {
		go func() {
			if err := metrics.StartServer(ctx, cfg.Metrics.Address); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("指标服务异常退出", slog.Any("error", err))
			}
		}()
	}

	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("Danni 已停止")
	return nil
}

// newLLMClient 根据 llm.backend 选择推理后端。
func newLLMClient(cfg *config.Config) (llm.Client, error) {
	switch cfg.LLM.Backend {
	case "cli":
		return cli.NewClient(cli.Config{
			Executable: cfg.LLM.CLI.Executable,
			Args:       cfg.LLM.CLI.Args,
			WorkingDir: cfg.LLM.CLI.WorkingDir,
		}), nil
	case "api":
		c := cfg.LLM.Anthropic
		return anthropic.NewClient(anthropic.Config{
			APIKey:    c.APIKey,
			BaseURL:   c.BaseURL,
			Model:     c.Model,
			MaxTokens: c.MaxTokens,
			Timeout:   c.Timeout.Std(),
		})
	case "openai":
		c := cfg.LLM.OpenAI
		return openai.NewClient(openai.Config{
			APIKey:    c.APIKey,
			BaseURL:   c.BaseURL,
			Model:     c.Model,
			MaxTokens: c.MaxTokens,
			Timeout:   c.Timeout.Std(),
		})
	default:
		return nil, fmt.Errorf("不支持的 llm.backend: %s", cfg.LLM.Backend)
	}
}

// newEventSinks 连接可选的 Redis 与 RabbitMQ 事件转发。
func newEventSinks(ctx context.Context, cfg config.TrackerConfig) ([]tracker.Subscriber, func(), error) {
	var (
		subs    []tracker.Subscriber
		closers []func() error
	)
	closeAll := func() {
		for _, c := range closers {
			_ = c()
		}
	}

	if cfg.Redis.Address != "" {
		pub, err := tracker.NewRedisPublisher(ctx, tracker.RedisConfig{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Channel:  cfg.Redis.Channel,
		})
		if err != nil {
			return nil, nil, err
		}
		subs = append(subs, pub)
		closers = append(closers, pub.Close)
	}
	if cfg.RabbitMQ.URL != "" {
		pub, err := tracker.NewAMQPPublisher(tracker.AMQPConfig{
			URL:      cfg.RabbitMQ.URL,
			Exchange: cfg.RabbitMQ.Exchange,
			Durable:  cfg.RabbitMQ.Durable,
		})
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		subs = append(subs, pub)
		closers = append(closers, pub.Close)
	}
	return subs, closeAll, nil
}

func newChainRegistry(ctx context.Context, cfg config.Web3Config) (*provider.Registry, error) {
	defs, err := web3.LoadChainDefinitions(cfg.ChainConfig)
	if err != nil {
		return nil, err
	}
	return provider.NewRegistry(ctx, defs, cfg.DefaultChain)
}

func newIdentityClient(chains *provider.Registry, privateKey string) (*erc8004.Client, error) {
	backend, err := chains.DefaultClient()
	if err != nil {
		return nil, err
	}
	def := chains.DefaultDefinition()
	return erc8004.NewClient(backend, erc8004.Config{
		ChainID:            def.ChainID,
		IdentityRegistry:   def.Registries.Identity,
		ReputationRegistry: def.Registries.Reputation,
		PrivateKey:         privateKey,
	})
}
