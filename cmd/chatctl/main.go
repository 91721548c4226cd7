// Package main 是命令行聊天客户端的入口点。
package main

import (
	"fmt"
	"os"

	"localchat-go/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
