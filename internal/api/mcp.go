package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"Danni-Agent/internal/ap2"
	xerrors "Danni-Agent/internal/errors"
	"Danni-Agent/internal/observability/metrics"
	"Danni-Agent/internal/swarm"
)

const (
	mcpProtocolVersion = "2025-06-18"
	mcpServerName      = "danni-mcp"

	toolBrandAnalysis   = "brand_analysis"
	toolCompetitiveScan = "competitive_scan"
	toolMarketPulse     = "market_pulse"

	analystCompetitive = "Competitive Intel"
	analystMarket      = "Market Analyst"
)

type mcpTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
	Annotations map[string]any `json:"annotations"`
}

type mcpContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type mcpToolResult struct {
	Content []mcpContent `json:"content"`
	IsError bool         `json:"isError,omitempty"`
}

type toolCallParams struct {
	Name      string          `json:"name" validate:"required"`
	Arguments json.RawMessage `json:"arguments"`
}

type brandAnalysisArgs struct {
	Brief    string `json:"brief" validate:"required"`
	Brand    string `json:"brand"`
	Industry string `json:"industry"`
}

type competitiveScanArgs struct {
	Brand       string   `json:"brand" validate:"required"`
	Competitors []string `json:"competitors"`
}

type marketPulseArgs struct {
	Industry string `json:"industry" validate:"required"`
}

func x402Annotation(price string) map[string]any {
	return map[string]any{
		"x402": map[string]any{
			"price":       price,
			"network":     ap2.NetworkBaseSepolia,
			"asset":       "USDC",
			"facilitator": ap2.FacilitatorDefault,
		},
	}
}

func objectSchema(required []string, props map[string]any) map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

func stringProp(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

// mcpTools 列出对外发布的工具及其 x402 报价。
func mcpTools() []mcpTool {
	return []mcpTool{
		{
			Name:        toolBrandAnalysis,
			Description: "Comprehensive brand strategy analysis by Danni. 5 parallel AI analysts (market, competitive, cultural, brand architecture, synthesis) produce a strategic brief. Price: $100 USDC on Base Sepolia.",
			InputSchema: objectSchema([]string{"brief"}, map[string]any{
				"brief":    stringProp("The brand brief or question to analyze"),
				"brand":    stringProp("Optional brand name"),
				"industry": stringProp("Optional industry context"),
			}),
			Annotations: x402Annotation(ap2.PriceBrandAnalysis),
		},
		{
			Name:        toolCompetitiveScan,
			Description: "Competitive landscape scan for a brand against named competitors. Price: $5 USDC on Base Sepolia.",
			InputSchema: objectSchema([]string{"brand"}, map[string]any{
				"brand": stringProp("The brand to scan"),
				"competitors": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "Competitors to compare against",
				},
			}),
			Annotations: x402Annotation(ap2.PriceDataEndpoint),
		},
		{
			Name:        toolMarketPulse,
			Description: "Market trends, sizing and growth signals for an industry. Price: $5 USDC on Base Sepolia.",
			InputSchema: objectSchema([]string{"industry"}, map[string]any{
				"industry": stringProp("The industry to analyze"),
			}),
			Annotations: x402Annotation(ap2.PriceDataEndpoint),
		},
	}
}

// handleMCP 处理 POST /api/mcp 上的工具协议调用。
func (s *Server) handleMCP(w http.ResponseWriter, r *http.Request) {
	req, envErr := decodeRPC(r)
	if envErr != nil {
		metrics.ObserveRPC("mcp", "invalid", envErr.outcome())
		writeJSON(w, http.StatusOK, envErr)
		return
	}

	var resp rpcResponse
	method := req.Method
	switch req.Method {
	case "initialize":
		resp = rpcSuccess(req.ID, map[string]any{
			"protocolVersion": mcpProtocolVersion,
			"capabilities":    map[string]any{"tools": map[string]any{"listChanged": false}},
			"serverInfo":      map[string]any{"name": mcpServerName, "version": agentVersion},
		})
	case "notifications/initialized":
		metrics.ObserveRPC("mcp", method, "ok")
		w.WriteHeader(http.StatusAccepted)
		return
	case "tools/list":
		resp = rpcSuccess(req.ID, map[string]any{"tools": mcpTools()})
	case "tools/call":
		resp = s.callTool(r.Context(), req)
	default:
		method = "unknown"
		resp = rpcFailure(req.ID, xerrors.RPCMethodNotFound, "Unknown method: "+req.Method)
	}
	metrics.ObserveRPC("mcp", method, resp.outcome())
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) callTool(ctx context.Context, req rpcRequest) rpcResponse {
	var params toolCallParams
	if err := decodeParams(req.Params, &params); err != nil {
		return invalidParams(req.ID, err)
	}

	var (
		payload any
		err     error
	)
	switch params.Name {
	case toolBrandAnalysis:
		payload, err = s.brandAnalysis(ctx, params.Arguments)
	case toolCompetitiveScan:
		payload, err = s.competitiveScan(ctx, params.Arguments)
	case toolMarketPulse:
		payload, err = s.marketPulse(ctx, params.Arguments)
	default:
		return rpcSuccess(req.ID, toolError("Unknown tool: "+params.Name))
	}
	if err != nil {
		if xerrors.CodeOf(err) == xerrors.CodeInvalidArgument {
			return rpcSuccess(req.ID, toolError("Invalid input: "+err.Error()))
		}
		s.logger.Warn("工具调用失败", slog.String("tool", params.Name), slog.Any("error", err))
		return rpcSuccess(req.ID, toolError(err.Error()))
	}

	text, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return rpcSuccess(req.ID, toolError(err.Error()))
	}
	return rpcSuccess(req.ID, mcpToolResult{Content: []mcpContent{{Type: "text", Text: string(text)}}})
}

func toolError(text string) mcpToolResult {
	return mcpToolResult{Content: []mcpContent{{Type: "text", Text: text}}, IsError: true}
}

// decodeArgs 解码并校验工具参数，失败统一归为 INVALID_ARGUMENT。
func decodeArgs(raw json.RawMessage, v any) error {
	if err := decodeParams(raw, v); err != nil {
		return xerrors.New(xerrors.CodeInvalidArgument, err.Error())
	}
	return nil
}

func (s *Server) brandAnalysis(ctx context.Context, raw json.RawMessage) (any, error) {
	var args brandAnalysisArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	return s.swarm.Execute(ctx, swarm.Input{Brief: args.Brief, Brand: args.Brand, Industry: args.Industry}, nil)
}

type analystReport struct {
	Brand       string   `json:"brand,omitempty"`
	Competitors []string `json:"competitors,omitempty"`
	Industry    string   `json:"industry,omitempty"`
	Analysis    string   `json:"analysis"`
	Sources     []string `json:"sources"`
	Status      string   `json:"status"`
	FetchedAt   string   `json:"fetchedAt"`
}

func (s *Server) competitiveScan(ctx context.Context, raw json.RawMessage) (any, error) {
	var args competitiveScanArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	brief := "Competitive landscape scan for " + args.Brand
	if len(args.Competitors) > 0 {
		brief += " against " + strings.Join(args.Competitors, ", ")
	}
	out, err := s.swarm.RunAnalyst(ctx, analystCompetitive, swarm.Input{Brief: brief, Brand: args.Brand}, nil)
	if err != nil {
		return nil, err
	}
	return analystReport{
		Brand:       args.Brand,
		Competitors: args.Competitors,
		Analysis:    out.Output,
		Sources:     out.Sources,
		Status:      string(out.Status),
		FetchedAt:   s.now().UTC().Format(timeLayout),
	}, nil
}

func (s *Server) marketPulse(ctx context.Context, raw json.RawMessage) (any, error) {
	var args marketPulseArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	brief := "Market pulse for the " + args.Industry + " industry: trends, sizing and growth signals"
	out, err := s.swarm.RunAnalyst(ctx, analystMarket, swarm.Input{Brief: brief, Industry: args.Industry}, nil)
	if err != nil {
		return nil, err
	}
	return analystReport{
		Industry:  args.Industry,
		Analysis:  out.Output,
		Sources:   out.Sources,
		Status:    string(out.Status),
		FetchedAt: s.now().UTC().Format(timeLayout),
	}, nil
}

const timeLayout = "2006-01-02T15:04:05.000Z07:00"
