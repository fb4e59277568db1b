// Package api exposes the agent over HTTP: the A2A and MCP JSON-RPC surfaces,
// the agent card and ERC-8004 registration file, the streaming analysis
// endpoint and payment history.
package api
