package web3

import (
	"context"
	"math/big"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Base Sepolia and the ERC-8004 registries deployed on it.
const (
	BaseSepoliaChainID = 84532

	IdentityRegistryAddress   = "0x8004A818BFB912233c491871b3d84c89A494BD9e"
	ReputationRegistryAddress = "0x8004B663056A597Dffe9eCcC1965A193B7388713"
	ValidationRegistryAddress = "0x8004CB39f29c09145F24Ad9dDe2A108C1A2cdfC5"
)

// ChainSnapshot represents summarized network metadata for health reporting.
type ChainSnapshot struct {
	Name        string `json:"name"`
	ChainID     string `json:"chainId"`
	BlockNumber string `json:"blockNumber"`
	Notes       string `json:"notes,omitempty"`
}

// Backend is the subset of an EVM JSON-RPC client needed to read and write
// registry contracts. *ethclient.Client satisfies it.
type Backend interface {
	CallContract(ctx context.Context, call gethcore.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, call gethcore.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Client is a named chain connection.
type Client interface {
	Backend
	Name() string
	Snapshot(ctx context.Context) (ChainSnapshot, error)
	Close()
}
