package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Register the agent URI with the ERC-8004 identity registry",
	Long:  "register looks up the configured agent URI and, if it has no agent id yet, submits a register transaction signed with DANNI_WALLET_PRIVATE_KEY.",
	RunE:  runRegister,
}

func runRegister(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Agent.WalletPrivateKey == "" {
		return errors.New("注册身份需要设置 DANNI_WALLET_PRIVATE_KEY")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	chains, err := newChainRegistry(ctx, cfg.Web3)
	if err != nil {
		return err
	}
	defer chains.Close()

	identity, err := newIdentityClient(chains, cfg.Agent.WalletPrivateKey)
	if err != nil {
		return err
	}

	reg, err := identity.Register(ctx, cfg.Agent.URI)
	if err != nil {
		return fmt.Errorf("注册 %s 失败: %w", cfg.Agent.URI, err)
	}
	if reg.AlreadyRegistered {
		fmt.Printf("%s 已注册, agent id %s\n", cfg.Agent.URI, reg.AgentID)
		return nil
	}
	fmt.Printf("%s 注册成功, agent id %s, tx %s, block %d\n", cfg.Agent.URI, reg.AgentID, reg.TxHash.Hex(), reg.BlockNumber)
	return nil
}
