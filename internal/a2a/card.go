package a2a

// AgentSkill 描述代理对外提供的一项能力。
type AgentSkill struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Tags        []string `json:"tags,omitempty"`
	Examples    []string `json:"examples,omitempty"`
	InputModes  []string `json:"inputModes,omitempty"`
	OutputModes []string `json:"outputModes,omitempty"`
}

// AgentCapabilities 声明协议可选特性。
type AgentCapabilities struct {
	Streaming         bool `json:"streaming"`
	PushNotifications bool `json:"pushNotifications"`
}

// AgentProvider 标识代理的运营方。
type AgentProvider struct {
	Organization string `json:"organization"`
	URL          string `json:"url"`
}

// AgentAuthentication 列出客户端可用的认证方案。
type AgentAuthentication struct {
	Schemes []string `json:"schemes"`
}

// SkillPrice 是代理卡片中单个技能的报价。
type SkillPrice struct {
	Amount  string `json:"amount"`
	Network string `json:"network"`
	Asset   string `json:"asset"`
}

// AgentCard 发布在 /.well-known/agent.json。
type AgentCard struct {
	Name           string                `json:"name"`
	Description    string                `json:"description"`
	URL            string                `json:"url"`
	Version        string                `json:"version"`
	Provider       *AgentProvider        `json:"provider,omitempty"`
	Capabilities   AgentCapabilities     `json:"capabilities"`
	Skills         []AgentSkill          `json:"skills"`
	Authentication *AgentAuthentication  `json:"authentication,omitempty"`
	Pricing        map[string]SkillPrice `json:"pricing,omitempty"`
}
