package api

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Danni-Agent/internal/ap2"
	"Danni-Agent/internal/swarm"
	"Danni-Agent/internal/tracker"
	"Danni-Agent/internal/web3"
)

func (e *testEnv) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestAgentCard(t *testing.T) {
	env := newTestEnv(t, cannedLLM(nil))
	rec := env.get(t, "/.well-known/agent.json")
	require.Equal(t, http.StatusOK, rec.Code)

	card := env.server.AgentCard()
	assert.Equal(t, "Danni", card.Name)
	assert.Equal(t, "https://danni.example", card.URL)
	assert.True(t, card.Capabilities.Streaming)
	assert.False(t, card.Capabilities.PushNotifications)
	assert.Equal(t, []string{"x402"}, card.Authentication.Schemes)
	require.NotEmpty(t, card.Skills)
	assert.Equal(t, ap2.SkillBrandAnalysis, card.Skills[0].ID)
	assert.Equal(t, "Strategic Brand Analysis", card.Skills[0].Name)
	assert.Equal(t, "$100", card.Pricing[ap2.SkillBrandAnalysis].Amount)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	assert.Equal(t, "1.0.0", decoded["version"])
}

func TestRegistrationFile(t *testing.T) {
	env := newTestEnv(t, cannedLLM(nil))
	rec := env.get(t, "/.well-known/agent-registration.json")
	require.Equal(t, http.StatusOK, rec.Code)

	var reg RegistrationFile
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reg))
	assert.Equal(t, "https://eips.ethereum.org/EIPS/eip-8004#registration-v1", reg.Type)
	assert.Equal(t, "https://danni.example", reg.AgentURI)
	require.Len(t, reg.Chains, 1)
	assert.EqualValues(t, web3.BaseSepoliaChainID, reg.Chains[0].ChainID)
	assert.Equal(t, web3.IdentityRegistryAddress, reg.Chains[0].Contracts["identity"])
	assert.Equal(t, "https://danni.example/api/mcp", reg.Endpoints["mcp"])
	assert.Contains(t, reg.Capabilities, "ap2-protocol")
}

type fakeChains struct {
	snapshots []web3.ChainSnapshot
	errs      map[string]error
}

func (f fakeChains) Snapshots(context.Context) ([]web3.ChainSnapshot, map[string]error) {
	return f.snapshots, f.errs
}

func TestHealthzReportsChains(t *testing.T) {
	env := newTestEnv(t, cannedLLM(nil))
	rec := env.get(t, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","agent":"Danni"}`, rec.Body.String())

	srv := New(Config{}, env.tasks, nil, WithChainStatus(fakeChains{
		snapshots: []web3.ChainSnapshot{{Name: "base-sepolia", ChainID: "84532", BlockNumber: "100"}},
		errs:      map[string]error{"skale": errors.New("dial timeout")},
	}))
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	var health healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "degraded", health.Status)
	require.Len(t, health.Chains, 1)
	assert.Equal(t, "100", health.Chains[0].BlockNumber)
	assert.Equal(t, "dial timeout", health.Errors["skale"])
}

func TestAnalyzeRequiresBrief(t *testing.T) {
	env := newTestEnv(t, cannedLLM(nil))
	rec := env.post(t, "/api/danni/analyze", `{"brand":"Acme"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Missing \"brief\" in request body"}`, rec.Body.String())
}

func TestAnalyzeReturnsJSON(t *testing.T) {
	env := newTestEnv(t, cannedLLM(nil))
	rec := env.post(t, "/api/danni/analyze", `{"brief":"Refresh the Acme identity","brand":"Acme"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var out swarm.Output
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "Refresh the Acme identity", out.Brief)
	assert.Equal(t, "Market Analyst", out.Analysis.Market.AgentName)
	assert.Zero(t, env.ledger.Count())
}

type sseEvent struct {
	name string
	data string
}

func readSSE(t *testing.T, body string) []sseEvent {
	t.Helper()
	var (
		events  []sseEvent
		current sseEvent
	)
	scanner := bufio.NewScanner(strings.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			current.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			current.data = strings.TrimPrefix(line, "data: ")
		case line == "" && current.name != "":
			events = append(events, current)
			current = sseEvent{}
		}
	}
	require.NoError(t, scanner.Err())
	return events
}

func TestAnalyzeStreamsEvents(t *testing.T) {
	env := newTestEnv(t, cannedLLM(nil))

	settlementHeader, err := json.Marshal(map[string]any{
		"success":     true,
		"transaction": "0xfeed",
		"network":     "eip155:84532",
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/danni/analyze", strings.NewReader(`{"brief":"Refresh Acme"}`))
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set(paymentResponseHeader, base64.StdEncoding.EncodeToString(settlementHeader))
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	events := readSSE(t, rec.Body.String())
	require.NotEmpty(t, events)
	assert.Equal(t, string(tracker.PaymentConfirmed), events[0].name)

	counts := map[string]int{}
	for _, ev := range events {
		counts[ev.name]++
	}
	assert.Equal(t, 5, counts[string(tracker.AgentStart)])
	assert.Equal(t, 5, counts[string(tracker.AgentComplete)])
	assert.Equal(t, 1, counts[string(tracker.SynthesisStart)])
	assert.Equal(t, 1, counts[string(tracker.SynthesisComplete)])

	last := events[len(events)-1]
	require.Equal(t, "result", last.name)
	var out swarm.Output
	require.NoError(t, json.Unmarshal([]byte(last.data), &out))
	assert.Equal(t, "Position the brand around craft.", out.Analysis.Synthesis)

	history := env.ledger.List()
	require.Len(t, history, 1)
	assert.Equal(t, "0xfeed", history[0].TxHash)
	assert.Equal(t, ap2.TxConfirmed, history[0].Status)
}

func TestAnalyzeStreamReportsFailure(t *testing.T) {
	env := newTestEnv(t, cannedLLM(errors.New("model overloaded")))

	req := httptest.NewRequest(http.MethodPost, "/api/danni/analyze", strings.NewReader(`{"brief":"Refresh Acme"}`))
	req.Header.Set("Accept", "text/event-stream")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	events := readSSE(t, rec.Body.String())
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, "error", last.name)
	assert.Contains(t, last.data, "Danni synthesis failed")
}

func TestPaymentHistory(t *testing.T) {
	env := newTestEnv(t, cannedLLM(nil))
	rec := env.get(t, "/api/payments/history")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	env.ledger.Record(ap2.Transaction{ID: "1", TxHash: "0x1", Status: ap2.TxConfirmed})
	env.ledger.Record(ap2.Transaction{ID: "2", TxHash: "0x2", Status: ap2.TxFailed})

	rec = env.get(t, "/api/payments/history")
	var txs []ap2.Transaction
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &txs))
	require.Len(t, txs, 2)
	assert.Equal(t, "0x2", txs[0].TxHash)
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, cannedLLM(nil))
	req := httptest.NewRequest(http.MethodOptions, "/api/a2a", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, cannedLLM(nil))
	env.get(t, "/healthz")

	rec := env.get(t, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "danni_http_requests_total")
}
