// Package cmd 命令行入口：HTTP 服务与控制台运行
package cmd

import (
	"github.com/spf13/cobra"
)

// Execute 执行根命令
func Execute() error {
	var cfgPath string
	root := &cobra.Command{
		Use:          "deep-dive",
		Short:        "Deep research reports and financial analysis workflows",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "./config.yaml", "config file")

	root.AddCommand(serveCMD(&cfgPath), planCMD(&cfgPath), analyzeCMD(&cfgPath))
	return root.Execute()
}
