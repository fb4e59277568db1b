package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const envNamespace = "DANNI"

// envOverrides 中的字段都以 DANNI_ 为前缀读取；带 envconfig 标签的字段
// 在前缀变量缺失时回退到不带前缀的同名变量（例如 WALLET_ADDRESS）。
// 未设置的变量保持零值，不会覆盖配置文件。
type envOverrides struct {
	Address      string         `envconfig:"HTTP_ADDRESS"`
	PublicURL    string         `envconfig:"PUBLIC_URL"`
	AgentURI     string         `envconfig:"AGENT_URI"`
	Wallet       string         `envconfig:"WALLET_ADDRESS"`
	WalletKey    string         `envconfig:"WALLET_PRIVATE_KEY"`
	UseCLI       *bool          `envconfig:"USE_CLI"`
	Backend      string         `envconfig:"LLM_BACKEND"`
	AnthropicKey string         `envconfig:"ANTHROPIC_API_KEY"`
	OpenAIKey    string         `envconfig:"OPENAI_API_KEY"`
	Stagger      *time.Duration `envconfig:"SWARM_STAGGER"`
	CallTimeout  *time.Duration `envconfig:"SWARM_CALL_TIMEOUT"`
	LogLevel     string         `envconfig:"LOG_LEVEL"`
	LogFormat    string         `envconfig:"LOG_FORMAT"`
	ChainConfig  string         `envconfig:"CHAIN_CONFIG"`
	DefaultChain string         `envconfig:"DEFAULT_CHAIN"`
	Web3Enabled  *bool          `envconfig:"WEB3_ENABLED"`
	RedisAddress string         `envconfig:"REDIS_ADDRESS"`
	RedisPass    string         `envconfig:"REDIS_PASSWORD"`
	AMQPURL      string         `envconfig:"AMQP_URL"`
	WebhookURL   string         `envconfig:"ALERT_WEBHOOK_URL"`
	MetricsAddr  string         `envconfig:"METRICS_ADDRESS"`
}

func (c *Config) applyEnv() error {
	var env envOverrides
	if err := envconfig.Process(envNamespace, &env); err != nil {
		return fmt.Errorf("读取环境变量失败: %w", err)
	}

	setString(&c.Server.Address, env.Address)
	setString(&c.Server.PublicURL, env.PublicURL)
	setString(&c.Agent.URI, env.AgentURI)
	setString(&c.Agent.WalletAddress, env.Wallet)
	setString(&c.Agent.WalletPrivateKey, env.WalletKey)

	if env.UseCLI != nil {
		if *env.UseCLI {
			c.LLM.Backend = "cli"
		} else {
			c.LLM.Backend = "api"
		}
	}
	setString(&c.LLM.Backend, env.Backend)
	setString(&c.LLM.Anthropic.APIKey, env.AnthropicKey)
	setString(&c.LLM.OpenAI.APIKey, env.OpenAIKey)

	if env.Stagger != nil {
		c.Swarm.Stagger = Duration(*env.Stagger)
	}
	if env.CallTimeout != nil {
		c.Swarm.CallTimeout = Duration(*env.CallTimeout)
	}

	setString(&c.Logging.Level, env.LogLevel)
	setString(&c.Logging.Format, env.LogFormat)

	setString(&c.Web3.ChainConfig, env.ChainConfig)
	setString(&c.Web3.DefaultChain, env.DefaultChain)
	if env.Web3Enabled != nil {
		c.Web3.Enabled = *env.Web3Enabled
	}

	setString(&c.Tracker.Redis.Address, env.RedisAddress)
	setString(&c.Tracker.Redis.Password, env.RedisPass)
	setString(&c.Tracker.RabbitMQ.URL, env.AMQPURL)
	setString(&c.Alerting.WebhookURL, env.WebhookURL)
	setString(&c.Metrics.Address, env.MetricsAddr)
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
