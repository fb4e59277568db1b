package web3

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ChainDefinitions models the structure of configs/chains.yaml.
type ChainDefinitions struct {
	Chains map[string]ChainDefinition `yaml:"chains"`
}

// ChainDefinition describes one EVM network and the ERC-8004 registries
// deployed on it.
type ChainDefinition struct {
	ChainID     int64      `yaml:"chain_id"`
	Network     string     `yaml:"network"`
	RPCURL      string     `yaml:"rpc_url"`
	Explorer    string     `yaml:"explorer"`
	Description string     `yaml:"description"`
	Registries  Registries `yaml:"registries"`
}

// Registries holds the ERC-8004 contract addresses of a chain.
type Registries struct {
	Identity   string `yaml:"identity"`
	Reputation string `yaml:"reputation"`
	Validation string `yaml:"validation"`
}

// CAIP2 returns the chain identifier in eip155:<id> form.
func (d ChainDefinition) CAIP2() string {
	return fmt.Sprintf("eip155:%d", d.ChainID)
}

// DefaultChains returns the built-in Base Sepolia definition used when no
// chain file is configured.
func DefaultChains() ChainDefinitions {
	return ChainDefinitions{Chains: map[string]ChainDefinition{
		"base-sepolia": {
			ChainID:     BaseSepoliaChainID,
			Network:     "base-sepolia",
			RPCURL:      "https://sepolia.base.org",
			Explorer:    "https://sepolia.basescan.org",
			Description: "Base Sepolia testnet",
			Registries: Registries{
				Identity:   IdentityRegistryAddress,
				Reputation: ReputationRegistryAddress,
				Validation: ValidationRegistryAddress,
			},
		},
	}}
}

// LoadChainDefinitions parses the YAML file containing chain metadata. An
// empty path yields DefaultChains.
func LoadChainDefinitions(path string) (ChainDefinitions, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultChains(), nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return ChainDefinitions{}, fmt.Errorf("读取链配置失败: %w", err)
	}

	var defs ChainDefinitions
	if err := yaml.Unmarshal(content, &defs); err != nil {
		return ChainDefinitions{}, fmt.Errorf("解析链配置失败: %w", err)
	}
	if defs.Chains == nil {
		defs.Chains = map[string]ChainDefinition{}
	}
	for name, def := range defs.Chains {
		if def.ChainID <= 0 {
			return ChainDefinitions{}, fmt.Errorf("链 %s 缺少 chain_id", name)
		}
		if def.Network == "" {
			def.Network = name
			defs.Chains[name] = def
		}
	}
	return defs, nil
}
