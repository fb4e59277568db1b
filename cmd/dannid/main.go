package main

import (
	"fmt"
	"os"
)

// main 是 Danni 守护进程的入口。
func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "dannid 运行失败: %v\n", err)
		os.Exit(1)
	}
}
