package ap2

import (
	"fmt"
	"math/big"
	"strings"
)

// CAIP-2 network identifiers.
const (
	NetworkBaseSepolia = "eip155:84532"
	NetworkSkaleEuropa = "eip155:1444673419"
)

// USDC contract addresses per network.
const (
	USDCBaseSepolia = "0x036CbD53842c5426634e7929541eC2318f3dCF7e"
	USDCSkaleEuropa = "0xD1A64e20e93E088979631061CACa74E08B3c0f55"
)

const (
	FacilitatorDefault = "https://x402.org/facilitator"
	FacilitatorKobaru  = "https://gateway.kobaru.io"
)

const (
	PriceBrandAnalysis = "$100"
	PriceDataEndpoint  = "$5"

	// usdcUnits converts whole USDC into the token's 6-decimal base units.
	usdcUnits = 1_000_000
)

// Skill identifiers offered by the agent.
const (
	SkillBrandAnalysis   = "brand-analysis"
	SkillCompetitiveScan = "competitive-scan"
	SkillMarketPulse     = "market-pulse"
)

// Skill is one priced entry of the static pricing table.
type Skill struct {
	ID          string
	Price       string
	Description string
}

var pricing = map[string]Skill{
	SkillBrandAnalysis:   {ID: SkillBrandAnalysis, Price: PriceBrandAnalysis, Description: "Strategic Brand Analysis"},
	SkillCompetitiveScan: {ID: SkillCompetitiveScan, Price: PriceDataEndpoint, Description: "Competitive Landscape Scan"},
	SkillMarketPulse:     {ID: SkillMarketPulse, Price: PriceDataEndpoint, Description: "Market Pulse"},
}

// skillOrder is the order skills are listed to clients.
var skillOrder = []string{SkillBrandAnalysis, SkillCompetitiveScan, SkillMarketPulse}

// LookupSkill returns the pricing entry for id.
func LookupSkill(id string) (Skill, bool) {
	s, ok := pricing[id]
	return s, ok
}

// Skills returns the pricing table in listing order.
func Skills() []Skill {
	out := make([]Skill, 0, len(skillOrder))
	for _, id := range skillOrder {
		out = append(out, pricing[id])
	}
	return out
}

// SkillIDs returns the valid skill ids in listing order.
func SkillIDs() []string {
	return append([]string(nil), skillOrder...)
}

// BaseUnits converts a "$<decimal>" price into integer USDC base units.
func BaseUnits(price string) (string, error) {
	amount, ok := new(big.Rat).SetString(strings.TrimPrefix(strings.TrimSpace(price), "$"))
	if !ok {
		return "", fmt.Errorf("invalid price %q", price)
	}
	amount.Mul(amount, big.NewRat(usdcUnits, 1))
	if !amount.IsInt() {
		return "", fmt.Errorf("price %q is finer than one base unit", price)
	}
	return amount.Num().String(), nil
}
