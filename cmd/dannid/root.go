package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"Danni-Agent/internal/config"
	"Danni-Agent/pkg/logger"
)

const version = "1.0.0"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:           "dannid",
	Short:         "Danni - paid brand strategy agent",
	Long:          "dannid serves the Danni agent over A2A and MCP, quotes AP2 cart mandates and runs the analyst swarm once payment arrives.",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $DANNI_CONFIG or "+config.DefaultPath+")")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(registerCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of dannid",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("dannid v%s\n", version)
	},
}

// loadConfig 读取配置并初始化全局日志。
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("加载配置失败: %w", err)
	}
	if err := logger.Init(cfg.Logging); err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}
	return cfg, nil
}
