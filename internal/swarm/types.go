package swarm

import (
	"github.com/go-playground/validator/v10"
)

// AgentStatus 表示单个分析师调用的最终状态。
type AgentStatus string

const (
	StatusCompleted AgentStatus = "completed"
	StatusFailed    AgentStatus = "failed"
	StatusTimeout   AgentStatus = "timeout"
)

// Input 是一次蜂群分析的输入。
type Input struct {
	Brief    string `json:"brief" validate:"required"`
	Brand    string `json:"brand,omitempty"`
	Industry string `json:"industry,omitempty"`
}

// AgentOutput 记录单个分析师的产出。
type AgentOutput struct {
	AgentName  string      `json:"agentName" validate:"required"`
	Status     AgentStatus `json:"status" validate:"oneof=completed failed timeout"`
	Output     string      `json:"output"`
	Sources    []string    `json:"sources" validate:"required"`
	DurationMs int64       `json:"durationMs" validate:"gte=0"`
}

// Analysis 汇总四位分析师与综合结论。
type Analysis struct {
	Market      AgentOutput `json:"market"`
	Competitive AgentOutput `json:"competitive"`
	Cultural    AgentOutput `json:"cultural"`
	Brand       AgentOutput `json:"brand"`
	Synthesis   string      `json:"synthesis"`
}

// Metadata 描述执行统计。
type Metadata struct {
	AgentsUsed           int      `json:"agentsUsed" validate:"gte=0"`
	DataSourcesPurchased int      `json:"dataSourcesPurchased" validate:"gte=0"`
	TotalCostUSD         float64  `json:"totalCostUsd" validate:"gte=0"`
	DurationMs           int64    `json:"durationMs" validate:"gte=0"`
	TxHashes             []string `json:"txHashes" validate:"required"`
}

// Output 是蜂群的完整结果。
type Output struct {
	Brief    string   `json:"brief" validate:"required"`
	Analysis Analysis `json:"analysis"`
	Metadata Metadata `json:"metadata"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())
