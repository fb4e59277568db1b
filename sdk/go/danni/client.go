// Package danni is a small client for the Danni agent's A2A endpoint. It covers
// the paid flow: request a quote with an IntentMandate, settle it with a
// PaymentMandate on the same context, then read the analysis artifacts.
package danni

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// DefaultHTTPTimeout covers a full swarm run, which can take several minutes.
const DefaultHTTPTimeout = 10 * time.Minute

const (
	a2aPath       = "/api/a2a"
	agentCardPath = "/.well-known/agent.json"

	typeIntentMandate  = "ap2.mandates.IntentMandate"
	typePaymentMandate = "ap2.mandates.PaymentMandate"

	artifactCartMandate = "cart-mandate"
)

// Task states reported by the agent.
const (
	StateSubmitted     = "submitted"
	StateWorking       = "working"
	StateInputRequired = "input-required"
	StateCompleted     = "completed"
	StateFailed        = "failed"
	StateCanceled      = "canceled"
)

// Part is one message or artifact fragment.
type Part struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	MimeType string          `json:"mimeType,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// Message is a conversation turn.
type Message struct {
	Role      string         `json:"role"`
	Parts     []Part         `json:"parts"`
	MessageID string         `json:"messageId,omitempty"`
	ContextID string         `json:"contextId,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Artifact is an output attached to a task.
type Artifact struct {
	ArtifactID  string         `json:"artifactId"`
	Name        string         `json:"name,omitempty"`
	Description string         `json:"description,omitempty"`
	Parts       []Part         `json:"parts"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// TaskStatus is the current state of a task.
type TaskStatus struct {
	State     string   `json:"state"`
	Message   *Message `json:"message,omitempty"`
	Timestamp string   `json:"timestamp,omitempty"`
}

// Task mirrors the agent's task entity.
type Task struct {
	ID        string     `json:"id"`
	ContextID string     `json:"contextId"`
	Status    TaskStatus `json:"status"`
	Artifacts []Artifact `json:"artifacts"`
	History   []Message  `json:"history"`
}

// Artifact returns the first artifact called name.
func (t *Task) Artifact(name string) (*Artifact, bool) {
	for i := range t.Artifacts {
		if t.Artifacts[i].Name == name {
			return &t.Artifacts[i], true
		}
	}
	return nil, false
}

// Cart is the subset of a CartMandate a payer needs.
type Cart struct {
	Contents struct {
		Total string `json:"total"`
	} `json:"contents"`
	PaymentRequest struct {
		PayTo       string `json:"payTo"`
		Network     string `json:"network"`
		Asset       string `json:"asset"`
		Amount      string `json:"amount"`
		Facilitator string `json:"facilitator"`
	} `json:"paymentRequest"`
	ExpiresAt string `json:"expiresAt,omitempty"`
}

// Cart decodes the cart mandate attached by a quote.
func (t *Task) Cart() (*Cart, bool) {
	artifact, ok := t.Artifact(artifactCartMandate)
	if !ok {
		return nil, false
	}
	for _, p := range artifact.Parts {
		if p.Type != "data" || len(p.Data) == 0 {
			continue
		}
		var cart Cart
		if err := json.Unmarshal(p.Data, &cart); err == nil {
			return &cart, true
		}
	}
	return nil, false
}

// AgentCard is the subset of /.well-known/agent.json the client reads.
type AgentCard struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	URL         string `json:"url"`
	Version     string `json:"version"`
	Skills      []struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		Description string `json:"description"`
	} `json:"skills"`
	Pricing map[string]struct {
		Amount  string `json:"amount"`
		Network string `json:"network"`
		Asset   string `json:"asset"`
	} `json:"pricing"`
}

// RPCError is a JSON-RPC error returned by the agent.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("danni rpc error (%d): %s", e.Code, e.Message)
}

// APIError represents a non-2xx HTTP response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("danni api error (%d): %s", e.StatusCode, e.Message)
}

// Client talks to one Danni deployment.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	nextID     atomic.Int64
}

// NewClient creates a client for the agent at rawURL. When httpClient is nil a
// client with DefaultHTTPTimeout is used.
func NewClient(rawURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid base url: %q", rawURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

// AgentCard fetches the agent card.
func (c *Client) AgentCard(ctx context.Context) (AgentCard, error) {
	req, err := c.newRequest(ctx, http.MethodGet, agentCardPath, nil)
	if err != nil {
		return AgentCard{}, err
	}
	var card AgentCard
	if err := c.do(req, &card); err != nil {
		return AgentCard{}, err
	}
	return card, nil
}

// RequestQuote sends brief together with an IntentMandate for skillID. The
// returned task is input-required and carries the cart mandate.
func (c *Client) RequestQuote(ctx context.Context, brief, skillID, description string) (*Task, error) {
	intent, err := dataPart(map[string]any{
		"type":        typeIntentMandate,
		"description": description,
		"skillId":     skillID,
	})
	if err != nil {
		return nil, err
	}
	return c.send(ctx, userMessage(textPart(brief), intent), "")
}

// Pay settles the quote bound to contextID. payload is the signed x402
// authorization; txHash may be empty when not yet known.
func (c *Client) Pay(ctx context.Context, contextID, payload, txHash string) (*Task, error) {
	if contextID == "" {
		return nil, errors.New("danni: contextID is required to settle a quote")
	}
	mandate := map[string]any{"type": typePaymentMandate, "paymentPayload": payload}
	if txHash != "" {
		mandate["transactionHash"] = txHash
	}
	part, err := dataPart(mandate)
	if err != nil {
		return nil, err
	}
	return c.send(ctx, userMessage(part), contextID)
}

// Ask sends a plain text brief without any payment mandate.
func (c *Client) Ask(ctx context.Context, text string) (*Task, error) {
	return c.send(ctx, userMessage(textPart(text)), "")
}

// GetTask fetches a task by id.
func (c *Client) GetTask(ctx context.Context, id string) (*Task, error) {
	return c.taskCall(ctx, "GetTask", map[string]any{"id": id})
}

// CancelTask cancels a non-terminal task.
func (c *Client) CancelTask(ctx context.Context, id string) (*Task, error) {
	return c.taskCall(ctx, "CancelTask", map[string]any{"id": id})
}

func (c *Client) send(ctx context.Context, msg Message, contextID string) (*Task, error) {
	params := map[string]any{"message": msg}
	if contextID != "" {
		params["contextId"] = contextID
	}
	return c.taskCall(ctx, "SendMessage", params)
}

func (c *Client) taskCall(ctx context.Context, method string, params any) (*Task, error) {
	var result struct {
		Task *Task `json:"task"`
	}
	if err := c.call(ctx, method, params, &result); err != nil {
		return nil, err
	}
	if result.Task == nil {
		return nil, errors.New("danni: response carried no task")
	}
	return result.Task, nil
}

func (c *Client) call(ctx context.Context, method string, params, out any) error {
	body, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      c.nextID.Add(1),
		"method":  method,
		"params":  params,
	})
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, a2aPath, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	var envelope struct {
		Result json.RawMessage `json:"result"`
		Error  *RPCError       `json:"error"`
	}
	if err := c.do(req, &envelope); err != nil {
		return err
	}
	if envelope.Error != nil {
		return envelope.Error
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	rel := &url.URL{Path: path.Join(c.baseURL.Path, endpoint)}
	u := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var flat struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &flat) == nil && flat.Error != "" {
			apiErr.Message = flat.Error
		} else {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return apiErr
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func textPart(text string) Part { return Part{Type: "text", Text: text} }

func dataPart(v any) (Part, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return Part{}, fmt.Errorf("encode data part: %w", err)
	}
	return Part{Type: "data", MimeType: "application/json", Data: raw}, nil
}

func userMessage(parts ...Part) Message {
	return Message{Role: "user", Parts: parts, MessageID: uuid.NewString()}
}
