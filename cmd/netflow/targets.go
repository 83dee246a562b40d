package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"cdpnetflow/pkg/api"
)

// targetsCmd 列出调试端点上的目标
var targetsCmd = &cobra.Command{
	Use:   "targets",
	Short: "列出调试端点上可附着的目标",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		svc, err := api.NewService(newLogger(cfg), cfg)
		if err != nil {
			return err
		}
		defer svc.Close()

		targets, err := svc.ListTargets(cmd.Context())
		if err != nil {
			return err
		}
		if len(targets) == 0 {
			fmt.Println("调试端点上没有目标")
			return nil
		}
		for _, t := range targets {
			fmt.Printf("%-40s  %-16s  %s\n", t.ID, t.Type, t.URL)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(targetsCmd)
}
