package swarm

import (
	"embed"
	"fmt"
	"regexp"
	"strings"
)

//go:embed prompts/*.txt
var promptFS embed.FS

// Analyst 描述一位并行分析师。Match 用于在结果中按名称子串定位。
type Analyst struct {
	Name   string
	Match  string
	prompt string
}

// SynthesisAgent 是综合阶段的代理名称。
const SynthesisAgent = "Danni Synthesis"

// 启动顺序决定了错峰延迟：第 i 位分析师延迟 i 个单位启动。
var analysts = []Analyst{
	{Name: "Market Analyst", Match: "Market", prompt: "market-analyst.txt"},
	{Name: "Competitive Intel", Match: "Competitive", prompt: "competitive-intel.txt"},
	{Name: "Cultural Resonance", Match: "Cultural", prompt: "cultural-resonance.txt"},
	{Name: "Brand Architect", Match: "Brand", prompt: "brand-architect.txt"},
}

const synthesisPrompt = "danni-synthesis.txt"

// Analysts 返回分析师列表的副本。
func Analysts() []Analyst {
	out := make([]Analyst, len(analysts))
	copy(out, analysts)
	return out
}

func lookupAnalyst(name string) (Analyst, bool) {
	for _, a := range analysts {
		if a.Name == name {
			return a, true
		}
	}
	return Analyst{}, false
}

func loadPrompt(file string) (string, error) {
	raw, err := promptFS.ReadFile("prompts/" + file)
	if err != nil {
		return "", fmt.Errorf("Prompt not found: %s", file)
	}
	return strings.TrimSpace(string(raw)), nil
}

// FormatInput 把简报格式化为分析师的用户消息。
func FormatInput(in Input) string {
	brand := in.Brand
	if brand == "" {
		brand = "Not specified"
	}
	industry := in.Industry
	if industry == "" {
		industry = "Not specified"
	}
	return "## Strategic Brief\n" + in.Brief + "\n\n## Brand\n" + brand + "\n\n## Industry\n" + industry
}

var citationPattern = regexp.MustCompile(`(?m)^\[(\d+)\]\s+(.+)$`)

// ExtractSources 提取形如 "[N] text" 的引用行。
func ExtractSources(output string) []string {
	matches := citationPattern.FindAllStringSubmatch(output, -1)
	sources := make([]string, 0, len(matches))
	for _, m := range matches {
		sources = append(sources, strings.TrimSpace(m[2]))
	}
	return sources
}

func synthesisInput(brief string, outputs []AgentOutput) string {
	sections := make([]string, 0, len(outputs))
	for _, o := range outputs {
		sections = append(sections, "## "+strings.ToUpper(o.AgentName)+"\n"+o.Output)
	}
	return "## Original Brief\n" + brief + "\n\n" + strings.Join(sections, "\n\n")
}
