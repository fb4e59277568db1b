package swarm

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xerrors "Danni-Agent/internal/errors"
	"Danni-Agent/internal/llm"
	"Danni-Agent/internal/tracker"
)

// agentOf identifies the caller from its system prompt.
func agentOf(req llm.Request) string {
	for _, a := range analysts {
		if strings.Contains(req.SystemPrompt, a.Name) {
			return a.Name
		}
	}
	if strings.HasPrefix(req.SystemPrompt, "You are Danni") {
		return SynthesisAgent
	}
	return ""
}

type scriptedLLM struct {
	mu        sync.Mutex
	calls     map[string]llm.Request
	responses map[string]func(ctx context.Context) (string, error)
}

func newScriptedLLM() *scriptedLLM {
	return &scriptedLLM{
		calls:     make(map[string]llm.Request),
		responses: make(map[string]func(ctx context.Context) (string, error)),
	}
}

func (s *scriptedLLM) Complete(ctx context.Context, req llm.Request) (string, error) {
	name := agentOf(req)
	s.mu.Lock()
	s.calls[name] = req
	fn := s.responses[name]
	s.mu.Unlock()
	if fn != nil {
		return fn(ctx)
	}
	return name + " report\n[1] Source for " + name, nil
}

func (s *scriptedLLM) request(name string) llm.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[name]
}

func TestExecuteAllAnalystsSucceed(t *testing.T) {
	client := newScriptedLLM()
	var (
		mu     sync.Mutex
		events []tracker.Event
	)
	sub := tracker.SubscriberFunc(func(e tracker.Event) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	})
	o := New(client, WithStagger(0), WithMaxTokens(2048))
	tr := o.NewTracker(sub)

	out, err := o.Execute(context.Background(), Input{Brief: "Launch oat milk", Brand: "Oatly"}, tr)
	require.NoError(t, err)

	assert.Equal(t, "Launch oat milk", out.Brief)
	assert.Equal(t, "Market Analyst", out.Analysis.Market.AgentName)
	assert.Equal(t, "Competitive Intel", out.Analysis.Competitive.AgentName)
	assert.Equal(t, "Cultural Resonance", out.Analysis.Cultural.AgentName)
	assert.Equal(t, "Brand Architect", out.Analysis.Brand.AgentName)
	assert.Equal(t, StatusCompleted, out.Analysis.Market.Status)
	assert.Equal(t, []string{"Source for Market Analyst"}, out.Analysis.Market.Sources)
	assert.Equal(t, SynthesisAgent+" report\n[1] Source for "+SynthesisAgent, out.Analysis.Synthesis)

	assert.Equal(t, 5, out.Metadata.AgentsUsed)
	assert.Zero(t, out.Metadata.DataSourcesPurchased)
	assert.Zero(t, out.Metadata.TotalCostUSD)
	assert.NotNil(t, out.Metadata.TxHashes)
	assert.Empty(t, out.Metadata.TxHashes)

	marketReq := client.request("Market Analyst")
	assert.Equal(t, "## Strategic Brief\nLaunch oat milk\n\n## Brand\nOatly\n\n## Industry\nNot specified", marketReq.UserMessage)
	assert.Equal(t, 2048, marketReq.MaxTokens)

	synthReq := client.request(SynthesisAgent)
	assert.True(t, strings.HasPrefix(synthReq.UserMessage, "## Original Brief\nLaunch oat milk\n\n## MARKET ANALYST\n"))
	assert.Contains(t, synthReq.UserMessage, "\n\n## BRAND ARCHITECT\nBrand Architect report")

	summary := tr.Summary()
	assert.Equal(t, 5, summary.Total)
	assert.Equal(t, 5, summary.Completed)

	mu.Lock()
	defer mu.Unlock()
	var kinds []tracker.Kind
	for _, e := range events {
		kinds = append(kinds, e.Kind)
	}
	assert.Contains(t, kinds, tracker.SynthesisStart)
	assert.Contains(t, kinds, tracker.SynthesisComplete)
	assert.Equal(t, tracker.SynthesisComplete, kinds[len(kinds)-1])
}

func TestExecuteRecordsAnalystFailure(t *testing.T) {
	client := newScriptedLLM()
	client.responses["Cultural Resonance"] = func(context.Context) (string, error) {
		return "", errors.New("rate limited")
	}
	o := New(client, WithStagger(0))
	tr := o.NewTracker()

	out, err := o.Execute(context.Background(), Input{Brief: "brief"}, tr)
	require.NoError(t, err)

	cultural := out.Analysis.Cultural
	assert.Equal(t, StatusFailed, cultural.Status)
	assert.Equal(t, "Agent failed: rate limited", cultural.Output)
	assert.Empty(t, cultural.Sources)
	assert.Contains(t, client.request(SynthesisAgent).UserMessage, "## CULTURAL RESONANCE\nAgent failed: rate limited")

	summary := tr.Summary()
	assert.Equal(t, 5, summary.Total)
	assert.Equal(t, 4, summary.Completed)
	assert.Equal(t, 1, summary.Failed)
}

func TestExecuteMarksTimeout(t *testing.T) {
	client := newScriptedLLM()
	client.responses["Brand Architect"] = func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}
	o := New(client, WithStagger(0), WithCallTimeout(20*time.Millisecond))

	out, err := o.Execute(context.Background(), Input{Brief: "brief"}, nil)
	require.NoError(t, err)

	brand := out.Analysis.Brand
	assert.Equal(t, StatusTimeout, brand.Status)
	assert.True(t, strings.HasPrefix(brand.Output, "Agent failed: Brand Architect timed out after 20ms"))
}

func TestExecuteTimeoutWhenBackendIgnoresContextError(t *testing.T) {
	client := newScriptedLLM()
	client.responses["Market Analyst"] = func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "", errors.New("signal: killed")
	}
	o := New(client, WithStagger(0), WithCallTimeout(20*time.Millisecond))

	out, err := o.Execute(context.Background(), Input{Brief: "brief"}, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusTimeout, out.Analysis.Market.Status)
}

func TestExecuteSynthesisFailureIsFatal(t *testing.T) {
	client := newScriptedLLM()
	client.responses[SynthesisAgent] = func(context.Context) (string, error) {
		return "", errors.New("exit status 1")
	}
	o := New(client, WithStagger(0))
	tr := o.NewTracker()

	out, err := o.Execute(context.Background(), Input{Brief: "brief"}, tr)
	require.Error(t, err)
	assert.Nil(t, out)
	assert.Equal(t, "Danni synthesis failed: exit status 1", err.Error())

	summary := tr.Summary()
	assert.Equal(t, 4, summary.Completed)
	assert.Equal(t, 1, summary.Failed)
}

func TestExecuteRejectsBlankBrief(t *testing.T) {
	o := New(newScriptedLLM(), WithStagger(0))
	_, err := o.Execute(context.Background(), Input{Brief: "  "}, nil)
	require.Error(t, err)
	assert.Equal(t, xerrors.CodeInvalidArgument, xerrors.CodeOf(err))
}

func TestExecuteStaggersLaunches(t *testing.T) {
	var (
		mu     sync.Mutex
		starts []string
	)
	client := llm.ClientFunc(func(ctx context.Context, req llm.Request) (string, error) {
		mu.Lock()
		starts = append(starts, agentOf(req))
		mu.Unlock()
		return "ok", nil
	})
	o := New(client, WithStagger(15*time.Millisecond))

	_, err := o.Execute(context.Background(), Input{Brief: "brief"}, nil)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"Market Analyst", "Competitive Intel", "Cultural Resonance", "Brand Architect", SynthesisAgent}, starts)
}

func TestRunAnalyst(t *testing.T) {
	client := newScriptedLLM()
	o := New(client, WithStagger(0))

	out, err := o.RunAnalyst(context.Background(), "Competitive Intel", Input{Brief: "Scan", Brand: "Acme"}, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, out.Status)
	assert.Equal(t, []string{"Source for Competitive Intel"}, out.Sources)

	_, err = o.RunAnalyst(context.Background(), "Oracle", Input{Brief: "x"}, nil)
	require.Error(t, err)
	assert.Equal(t, xerrors.CodeInvalidArgument, xerrors.CodeOf(err))
}

func TestExtractSources(t *testing.T) {
	text := "Body\n[1]  Mintel, Plant milk report, 2024  \nnot [2] inline\n[12] Nielsen\n[x] skip"
	assert.Equal(t, []string{"Mintel, Plant milk report, 2024", "Nielsen"}, ExtractSources(text))
	assert.Empty(t, ExtractSources("no citations"))
}

func TestFindAgentOutputMissing(t *testing.T) {
	_, err := findAgentOutput([]AgentOutput{{AgentName: "Market Analyst"}}, "Cultural")
	require.Error(t, err)
	assert.Equal(t, "Agent output not found for: Cultural", err.Error())
	assert.Equal(t, CodeAgentOutputMissing, xerrors.CodeOf(err))
}

func TestPromptsEmbedded(t *testing.T) {
	for _, a := range Analysts() {
		p, err := loadPrompt(a.prompt)
		require.NoError(t, err, a.Name)
		assert.Contains(t, p, a.Name)
	}
	_, err := loadPrompt(synthesisPrompt)
	require.NoError(t, err)
	_, err = loadPrompt("missing.txt")
	require.Error(t, err)
}
