// Package web3 houses blockchain connectivity for the agent: chain
// definitions loaded from YAML, the backend contract shared by RPC clients,
// and the ERC-8004 identity and reputation registries on Base Sepolia.
package web3
