package erc8004

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	lru "github.com/hashicorp/golang-lru/v2"

	"Danni-Agent/internal/web3"
	"Danni-Agent/pkg/logger"
)

// Feedback tags attached to every payment review.
const (
	FeedbackTagPayment = "x402-payment"
	FeedbackTagService = "brand-analysis"

	feedbackValue    = 100
	feedbackDecimals = 0

	defaultCacheSize   = 64
	defaultReceiptPoll = 2 * time.Second
	gasMarginPercent   = 20
)

// ErrNoSigner is returned by write operations when no private key is configured.
var ErrNoSigner = errors.New("WALLET_PRIVATE_KEY is required for ERC-8004 write operations")

// Config configures a registry client.
type Config struct {
	ChainID            int64
	IdentityRegistry   string
	ReputationRegistry string
	// PrivateKey is a hex secp256k1 key, with or without 0x. Reads work without it.
	PrivateKey  string
	CacheSize   int
	ReceiptPoll time.Duration
}

// Feedback describes one payment review submitted to the reputation registry.
type Feedback struct {
	AgentID         *big.Int
	Endpoint        string
	TransactionHash string
	PaymentAmount   string
}

// Summary is the aggregated reputation of an agent.
type Summary struct {
	Count        *big.Int `json:"count"`
	AverageScore *big.Int `json:"averageScore"`
}

// Registration reports the outcome of Register.
type Registration struct {
	AgentID           *big.Int
	TxHash            common.Hash
	BlockNumber       uint64
	AlreadyRegistered bool
}

// Client reads and writes the ERC-8004 identity and reputation registries.
type Client struct {
	backend    web3.Backend
	chainID    *big.Int
	identity   common.Address
	reputation common.Address
	key        *ecdsa.PrivateKey
	from       common.Address
	identABI   abi.ABI
	repABI     abi.ABI
	ids        *lru.Cache[string, *big.Int]
	poll       time.Duration
	logger     *slog.Logger
}

// NewClient builds a Client on top of backend.
func NewClient(backend web3.Backend, cfg Config) (*Client, error) {
	if backend == nil {
		return nil, errors.New("未配置链访问后端")
	}
	chainID := cfg.ChainID
	if chainID <= 0 {
		chainID = web3.BaseSepoliaChainID
	}
	identity := cfg.IdentityRegistry
	if identity == "" {
		identity = web3.IdentityRegistryAddress
	}
	reputation := cfg.ReputationRegistry
	if reputation == "" {
		reputation = web3.ReputationRegistryAddress
	}
	if !common.IsHexAddress(identity) || !common.IsHexAddress(reputation) {
		return nil, fmt.Errorf("无效的注册表地址: %s / %s", identity, reputation)
	}

	identABI, err := abi.JSON(strings.NewReader(identityRegistryABI))
	if err != nil {
		return nil, fmt.Errorf("解析身份注册表 ABI 失败: %w", err)
	}
	repABI, err := abi.JSON(strings.NewReader(reputationRegistryABI))
	if err != nil {
		return nil, fmt.Errorf("解析声誉注册表 ABI 失败: %w", err)
	}

	size := cfg.CacheSize
	if size <= 0 {
		size = defaultCacheSize
	}
	ids, err := lru.New[string, *big.Int](size)
	if err != nil {
		return nil, err
	}
	poll := cfg.ReceiptPoll
	if poll <= 0 {
		poll = defaultReceiptPoll
	}

	c := &Client{
		backend:    backend,
		chainID:    big.NewInt(chainID),
		identity:   common.HexToAddress(identity),
		reputation: common.HexToAddress(reputation),
		identABI:   identABI,
		repABI:     repABI,
		ids:        ids,
		poll:       poll,
		logger:     logger.Named("erc8004"),
	}
	if raw := strings.TrimSpace(cfg.PrivateKey); raw != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(raw, "0x"))
		if err != nil {
			return nil, fmt.Errorf("解析钱包私钥失败: %w", err)
		}
		c.key = key
		c.from = crypto.PubkeyToAddress(key.PublicKey)
	}
	return c, nil
}

// Address returns the signer address, or the zero address without a key.
func (c *Client) Address() common.Address { return c.from }

// AgentID resolves the registered id of agentURI. Zero means not registered.
// Positive ids are cached; registrations are permanent.
func (c *Client) AgentID(ctx context.Context, agentURI string) (*big.Int, error) {
	if id, ok := c.ids.Get(agentURI); ok {
		return new(big.Int).Set(id), nil
	}
	out, err := c.call(ctx, c.identity, c.identABI, "getAgentId", agentURI)
	if err != nil {
		return nil, err
	}
	id, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("getAgentId 返回了意外的类型 %T", out[0])
	}
	if id.Sign() > 0 {
		c.ids.Add(agentURI, new(big.Int).Set(id))
	}
	return id, nil
}

// SubmitPaymentFeedback records a positive review for a settled payment.
func (c *Client) SubmitPaymentFeedback(ctx context.Context, fb Feedback) (common.Hash, error) {
	if fb.AgentID == nil || fb.AgentID.Sign() <= 0 {
		return common.Hash{}, errors.New("agentId 必须为正数")
	}
	feedbackHash := crypto.Keccak256Hash([]byte(fb.TransactionHash))
	data, err := c.repABI.Pack("giveFeedback",
		fb.AgentID,
		big.NewInt(feedbackValue),
		uint8(feedbackDecimals),
		FeedbackTagPayment,
		FeedbackTagService,
		fb.Endpoint,
		"tx:"+fb.TransactionHash,
		[32]byte(feedbackHash),
	)
	if err != nil {
		return common.Hash{}, fmt.Errorf("编码 giveFeedback 失败: %w", err)
	}
	hash, err := c.transact(ctx, c.reputation, data)
	if err != nil {
		return common.Hash{}, err
	}
	logger.Audit().Info("已提交声誉反馈",
		slog.String("agent_id", fb.AgentID.String()),
		slog.String("payment_tx", fb.TransactionHash),
		slog.String("payment_amount", fb.PaymentAmount),
		slog.String("feedback_tx", hash.Hex()))
	return hash, nil
}

// NotifyPayment resolves the agent id of agentURI and, when registered,
// submits payment feedback. It returns registered=false without error when
// the agent has no identity yet.
func (c *Client) NotifyPayment(ctx context.Context, agentURI, endpoint, txHash, amount string) (bool, error) {
	id, err := c.AgentID(ctx, agentURI)
	if err != nil {
		return false, err
	}
	if id.Sign() <= 0 {
		return false, nil
	}
	_, err = c.SubmitPaymentFeedback(ctx, Feedback{
		AgentID:         id,
		Endpoint:        endpoint,
		TransactionHash: txHash,
		PaymentAmount:   amount,
	})
	return err == nil, err
}

// ReputationSummary reads the x402-payment reputation of agentID across all
// clients.
func (c *Client) ReputationSummary(ctx context.Context, agentID *big.Int) (Summary, error) {
	out, err := c.call(ctx, c.reputation, c.repABI, "getSummary",
		agentID, []common.Address{}, FeedbackTagPayment, "")
	if err != nil {
		return Summary{}, err
	}
	count, ok1 := out[0].(*big.Int)
	avg, ok2 := out[1].(*big.Int)
	if !ok1 || !ok2 {
		return Summary{}, fmt.Errorf("getSummary 返回了意外的类型 %T/%T", out[0], out[1])
	}
	return Summary{Count: count, AverageScore: avg}, nil
}

// Register registers agentURI with the identity registry unless it already
// has an id, waits for the transaction to be mined and returns the new id.
func (c *Client) Register(ctx context.Context, agentURI string) (Registration, error) {
	existing, err := c.AgentID(ctx, agentURI)
	if err != nil {
		c.logger.Debug("查询已有身份失败，继续注册", slog.Any("error", err))
	} else if existing.Sign() > 0 {
		return Registration{AgentID: existing, AlreadyRegistered: true}, nil
	}

	data, err := c.identABI.Pack("register", agentURI)
	if err != nil {
		return Registration{}, fmt.Errorf("编码 register 失败: %w", err)
	}
	hash, err := c.transact(ctx, c.identity, data)
	if err != nil {
		return Registration{}, err
	}
	receipt, err := c.waitMined(ctx, hash)
	if err != nil {
		return Registration{TxHash: hash}, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return Registration{TxHash: hash, BlockNumber: blockOf(receipt)}, fmt.Errorf("注册交易 %s 执行失败", hash.Hex())
	}

	id, err := c.AgentID(ctx, agentURI)
	if err != nil {
		return Registration{TxHash: hash, BlockNumber: blockOf(receipt)}, err
	}
	logger.Audit().Info("代理身份已注册",
		slog.String("agent_uri", agentURI),
		slog.String("agent_id", id.String()),
		slog.String("tx", hash.Hex()))
	return Registration{AgentID: id, TxHash: hash, BlockNumber: blockOf(receipt)}, nil
}

func (c *Client) call(ctx context.Context, to common.Address, contract abi.ABI, method string, args ...any) ([]any, error) {
	data, err := contract.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("编码 %s 失败: %w", method, err)
	}
	raw, err := c.backend.CallContract(ctx, gethcore.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("调用 %s 失败: %w", method, err)
	}
	out, err := contract.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("解码 %s 返回值失败: %w", method, err)
	}
	if len(out) != len(contract.Methods[method].Outputs) {
		return nil, fmt.Errorf("%s 返回值数量不符", method)
	}
	return out, nil
}

// transact signs and broadcasts a legacy transaction calling to with data.
func (c *Client) transact(ctx context.Context, to common.Address, data []byte) (common.Hash, error) {
	if c.key == nil {
		return common.Hash{}, ErrNoSigner
	}
	nonce, err := c.backend.PendingNonceAt(ctx, c.from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("获取 nonce 失败: %w", err)
	}
	gasPrice, err := c.backend.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("获取 gas 价格失败: %w", err)
	}
	gas, err := c.backend.EstimateGas(ctx, gethcore.CallMsg{From: c.from, To: &to, Data: data})
	if err != nil {
		return common.Hash{}, fmt.Errorf("估算 gas 失败: %w", err)
	}
	gas += gas * gasMarginPercent / 100

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gas,
		To:       &to,
		Value:    new(big.Int),
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("签名交易失败: %w", err)
	}
	if err := c.backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("发送交易失败: %w", err)
	}
	return signed.Hash(), nil
}

func (c *Client) waitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()
	for {
		receipt, err := c.backend.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, gethcore.NotFound) {
			return nil, fmt.Errorf("查询交易回执失败: %w", err)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func blockOf(r *types.Receipt) uint64 {
	if r == nil || r.BlockNumber == nil {
		return 0
	}
	return r.BlockNumber.Uint64()
}
