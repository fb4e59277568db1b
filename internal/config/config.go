package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"Danni-Agent/pkg/logger"
)

// DefaultPath 是未设置 DANNI_CONFIG 时尝试读取的配置文件。
const DefaultPath = "configs/danni.json"

// DefaultAgentURI 是 ERC-8004 身份注册时使用的代理地址。
const DefaultAgentURI = "https://danni.subfrac.cloud"

// Config 描述了 Danni 在启动阶段需要加载的全部配置。
type Config struct {
	Server   ServerConfig   `json:"server"`
	Agent    AgentConfig    `json:"agent"`
	LLM      LLMConfig      `json:"llm"`
	Swarm    SwarmConfig    `json:"swarm"`
	Logging  logger.Config  `json:"logging"`
	Web3     Web3Config     `json:"web3"`
	Tracker  TrackerConfig  `json:"tracker"`
	Alerting AlertingConfig `json:"alerting"`
	Metrics  MetricsConfig  `json:"metrics"`
}

// ServerConfig 控制 API 服务的监听地址等参数。
type ServerConfig struct {
	Address         string   `json:"address"`
	PublicURL       string   `json:"public_url"`
	AllowedOrigins  []string `json:"allowed_origins"`
	ShutdownTimeout Duration `json:"shutdown_timeout"`
}

// AgentConfig 描述代理身份与收款钱包。
type AgentConfig struct {
	URI              string `json:"uri"`
	WalletAddress    string `json:"wallet_address"`
	WalletPrivateKey string `json:"-"`
}

// LLMConfig 用于配置大模型推理的调用方式。
type LLMConfig struct {
	// Backend 取值 cli、api 或 openai。
	Backend   string          `json:"backend"`
	CLI       CLIConfig       `json:"cli"`
	Anthropic HostedLLMConfig `json:"anthropic"`
	OpenAI    HostedLLMConfig `json:"openai"`
}

// CLIConfig 描述本地命令行推理进程。
type CLIConfig struct {
	Executable string   `json:"executable"`
	Args       []string `json:"args"`
	WorkingDir string   `json:"working_dir"`
}

// HostedLLMConfig 描述托管的 HTTP 推理接口。
type HostedLLMConfig struct {
	APIKey    string   `json:"-"`
	BaseURL   string   `json:"base_url"`
	Model     string   `json:"model"`
	MaxTokens int      `json:"max_tokens"`
	Timeout   Duration `json:"timeout"`
}

// SwarmConfig 控制分析师并发调度。
type SwarmConfig struct {
	Stagger     Duration `json:"stagger"`
	CallTimeout Duration `json:"call_timeout"`
	MaxTokens   int      `json:"max_tokens"`
}

// Web3Config 指向链定义文件以及默认使用的链。
type Web3Config struct {
	Enabled      bool   `json:"enabled"`
	ChainConfig  string `json:"chain_config"`
	DefaultChain string `json:"default_chain"`
}

// TrackerConfig 描述执行事件的外部转发目标，均为可选。
type TrackerConfig struct {
	Redis    RedisConfig    `json:"redis"`
	RabbitMQ RabbitMQConfig `json:"rabbitmq"`
}

// RedisConfig 对应 Redis 发布通道。
type RedisConfig struct {
	Address  string `json:"address"`
	Password string `json:"-"`
	DB       int    `json:"db"`
	Channel  string `json:"channel"`
}

// RabbitMQConfig 对应 RabbitMQ 交换机。
type RabbitMQConfig struct {
	URL      string `json:"url"`
	Exchange string `json:"exchange"`
	Durable  bool   `json:"durable"`
}

// AlertingConfig 配置任务失败告警。
type AlertingConfig struct {
	WebhookURL string `json:"webhook_url"`
}

// MetricsConfig 配置独立的 Prometheus 监听地址，为空时只挂载在主服务的 /metrics。
type MetricsConfig struct {
	Address string `json:"address"`
}

// Duration 让 JSON 中可以直接书写 "1s"、"2m" 这样的时长。
type Duration time.Duration

// Std 返回标准库时长。
func (d Duration) Std() time.Duration { return time.Duration(d) }

// MarshalJSON 以字符串形式输出。
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON 接受时长字符串或纳秒整数。
func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("无效的时长 %q: %w", v, err)
		}
		*d = Duration(parsed)
	case float64:
		*d = Duration(time.Duration(v))
	default:
		return fmt.Errorf("无效的时长 %s", string(data))
	}
	return nil
}

// Load 解析配置文件并叠加环境变量。path 为空时读取 DANNI_CONFIG，
// 仍为空则尝试 DefaultPath；默认路径不存在时只使用默认值与环境变量。
func Load(path string) (*Config, error) {
	explicit := true
	if path == "" {
		path = os.Getenv("DANNI_CONFIG")
	}
	if path == "" {
		path = DefaultPath
		explicit = false
	}

	var cfg Config
	content, err := readFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(content, &cfg); err != nil {
			return nil, fmt.Errorf("解析配置失败: %w", err)
		}
		cfg.resolvePaths(filepath.Dir(path))
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return nil, err
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func readFile(path string) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开配置文件失败: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}
	return content, nil
}

// resolvePaths 把配置文件中的相对路径解释为相对于文件所在目录。
func (c *Config) resolvePaths(baseDir string) {
	for _, p := range []*string{&c.LLM.CLI.WorkingDir, &c.Logging.Audit.Path, &c.Web3.ChainConfig} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(baseDir, *p)
		}
	}
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = Duration(10 * time.Second)
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"*"}
	}

	if c.Agent.URI == "" {
		c.Agent.URI = DefaultAgentURI
	}
	if c.Server.PublicURL == "" {
		c.Server.PublicURL = c.Agent.URI
	}

	c.LLM.Backend = strings.ToLower(strings.TrimSpace(c.LLM.Backend))
	if c.LLM.Backend == "" {
		c.LLM.Backend = "cli"
	}

	if c.Swarm.Stagger <= 0 {
		c.Swarm.Stagger = Duration(time.Second)
	}
	if c.Swarm.CallTimeout <= 0 {
		c.Swarm.CallTimeout = Duration(120 * time.Second)
	}
	if c.Swarm.MaxTokens <= 0 {
		c.Swarm.MaxTokens = 16384
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}

	if c.Web3.DefaultChain == "" {
		c.Web3.DefaultChain = "base-sepolia"
	}

	if c.Tracker.Redis.Address != "" && c.Tracker.Redis.Channel == "" {
		c.Tracker.Redis.Channel = "danni:swarm"
	}
	if c.Tracker.RabbitMQ.URL != "" && c.Tracker.RabbitMQ.Exchange == "" {
		c.Tracker.RabbitMQ.Exchange = "danni.swarm"
	}
}

// Validate 检查互相依赖的配置项。
func (c *Config) Validate() error {
	switch c.LLM.Backend {
	case "cli":
	case "api":
		if strings.TrimSpace(c.LLM.Anthropic.APIKey) == "" {
			return errors.New("llm.backend=api 需要设置 ANTHROPIC_API_KEY")
		}
	case "openai":
		if strings.TrimSpace(c.LLM.OpenAI.APIKey) == "" {
			return errors.New("llm.backend=openai 需要设置 OPENAI_API_KEY")
		}
	default:
		return fmt.Errorf("不支持的 llm.backend: %s", c.LLM.Backend)
	}
	return nil
}
