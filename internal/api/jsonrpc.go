package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	xerrors "Danni-Agent/internal/errors"
)

const maxBodyBytes = 1 << 20

// rpcRequest 是 JSON-RPC 2.0 请求信封。
type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// rpcResponse 是 JSON-RPC 2.0 响应信封；ID 为空时编码为 null。
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func rpcSuccess(id json.RawMessage, result any) rpcResponse {
	return rpcResponse{JSONRPC: "2.0", ID: id, Result: result}
}

func rpcFailure(id json.RawMessage, code int, message string) rpcResponse {
	return rpcResponse{JSONRPC: "2.0", ID: id, Error: &rpcError{Code: code, Message: message}}
}

// rpcFromError 使用错误码注册表把领域错误映射到 JSON-RPC 错误。
func rpcFromError(id json.RawMessage, err error) rpcResponse {
	return rpcFailure(id, xerrors.RPCCodeOf(err), err.Error())
}

// decodeRPC 读取并校验请求信封。返回的 *rpcResponse 非空时表示信封错误，
// 此时 id 一律为 null。
func decodeRPC(r *http.Request) (rpcRequest, *rpcResponse) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil || !json.Valid(body) {
		resp := rpcFailure(nil, xerrors.RPCParseError, "Invalid JSON")
		return rpcRequest{}, &resp
	}
	var req rpcRequest
	if err := json.Unmarshal(body, &req); err != nil || !validEnvelope(req) {
		resp := rpcFailure(nil, xerrors.RPCInvalidRequest, "Invalid JSON-RPC request")
		return rpcRequest{}, &resp
	}
	return req, nil
}

func validEnvelope(req rpcRequest) bool {
	if req.JSONRPC != "2.0" || req.Method == "" {
		return false
	}
	id := bytes.TrimSpace(req.ID)
	if len(id) == 0 || bytes.Equal(id, []byte("null")) {
		return false
	}
	if id[0] == '"' {
		var s string
		return json.Unmarshal(id, &s) == nil
	}
	var n json.Number
	return json.Unmarshal(id, &n) == nil
}

// decodeParams 解码 params；缺省时按空对象处理。
func decodeParams(raw json.RawMessage, v any) error {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		raw = json.RawMessage("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(v); err != nil {
		return err
	}
	if err := validate.Struct(v); err != nil {
		return describe(err)
	}
	return nil
}

func invalidParams(id json.RawMessage, err error) rpcResponse {
	return rpcFailure(id, xerrors.RPCInvalidParams, fmt.Sprintf("Invalid params: %v", err))
}

// outcome 返回用于指标标签的调用结果。
func (r rpcResponse) outcome() string {
	if r.Error == nil {
		return "ok"
	}
	return fmt.Sprintf("%d", r.Error.Code)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
