package api

import (
	"net/http"
	"strconv"

	"Danni-Agent/internal/a2a"
	"Danni-Agent/internal/ap2"
)

const (
	agentName    = "Danni"
	agentVersion = "1.0.0"

	registrationType = "https://eips.ethereum.org/EIPS/eip-8004#registration-v1"
)

var skillNames = map[string]string{
	ap2.SkillBrandAnalysis:   "Strategic Brand Analysis",
	ap2.SkillCompetitiveScan: "Competitive Landscape Scan",
	ap2.SkillMarketPulse:     "Market Pulse",
}

var skillDescriptions = map[string]string{
	ap2.SkillBrandAnalysis:   "Premium brand strategy from 5 parallel AI analysts",
	ap2.SkillCompetitiveScan: "Competitive intelligence on a brand and its named competitors",
	ap2.SkillMarketPulse:     "Market trends, sizing and growth signals for an industry",
}

// AgentCard 构造 /.well-known/agent.json 的内容。
func (s *Server) AgentCard() a2a.AgentCard {
	skills := ap2.Skills()
	card := a2a.AgentCard{
		Name:        agentName,
		Description: "Autonomous brand strategist powered by swarm intelligence",
		URL:         s.cfg.PublicURL,
		Version:     agentVersion,
		Provider:    &a2a.AgentProvider{Organization: "Subfracture", URL: "https://subfrac.cloud"},
		Capabilities: a2a.AgentCapabilities{
			Streaming:         true,
			PushNotifications: false,
		},
		Skills:         make([]a2a.AgentSkill, 0, len(skills)),
		Authentication: &a2a.AgentAuthentication{Schemes: []string{"x402"}},
		Pricing:        make(map[string]a2a.SkillPrice, len(skills)),
	}
	for _, skill := range skills {
		card.Skills = append(card.Skills, a2a.AgentSkill{
			ID:          skill.ID,
			Name:        skillNames[skill.ID],
			Description: skillDescriptions[skill.ID],
			InputModes:  []string{"text/plain"},
			OutputModes: []string{"text/plain", "application/json"},
		})
		card.Pricing[skill.ID] = a2a.SkillPrice{
			Amount:  skill.Price,
			Network: ap2.NetworkBaseSepolia,
			Asset:   "USDC",
		}
	}
	return card
}

// RegistrationFile 是 ERC-8004 注册文件。
type RegistrationFile struct {
	Type         string              `json:"type"`
	AgentURI     string              `json:"agentURI"`
	Name         string              `json:"name"`
	Description  string              `json:"description"`
	Version      string              `json:"version"`
	Provider     a2a.AgentProvider   `json:"provider"`
	Chains       []RegistrationChain `json:"chains"`
	Capabilities []string            `json:"capabilities"`
	Endpoints    map[string]string   `json:"endpoints"`
}

// RegistrationChain 描述注册表所在的链。
type RegistrationChain struct {
	ChainID   int64             `json:"chainId"`
	Network   string            `json:"network"`
	Contracts map[string]string `json:"contracts"`
}

// Registration 构造 ERC-8004 注册文件。
func (s *Server) Registration() RegistrationFile {
	base := s.cfg.PublicURL
	network := s.chain.Network
	if network == "" {
		network = "chain-" + strconv.FormatInt(s.chain.ChainID, 10)
	}
	return RegistrationFile{
		Type:        registrationType,
		AgentURI:    s.cfg.AgentURI,
		Name:        agentName,
		Description: "Autonomous brand strategist powered by swarm intelligence and x402 payments",
		Version:     agentVersion,
		Provider:    a2a.AgentProvider{Organization: "Subfracture", URL: "https://subfrac.cloud"},
		Chains: []RegistrationChain{{
			ChainID: s.chain.ChainID,
			Network: network,
			Contracts: map[string]string{
				"identity":   s.chain.Registries.Identity,
				"reputation": s.chain.Registries.Reputation,
			},
		}},
		Capabilities: []string{"x402-payments", "brand-analysis", "competitive-intelligence", "a2a-protocol", "ap2-protocol"},
		Endpoints: map[string]string{
			"a2a":       base + "/api/a2a",
			"mcp":       base + "/api/mcp",
			"agentCard": base + "/.well-known/agent.json",
		},
	}
}

func (s *Server) handleAgentCard(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Cache-Control", "public, max-age=300")
	writeJSON(w, http.StatusOK, s.AgentCard())
}

func (s *Server) handleRegistration(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Cache-Control", "public, max-age=300")
	writeJSON(w, http.StatusOK, s.Registration())
}
