package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"cdpnetflow/pkg/api"
	"cdpnetflow/pkg/traffic"
)

var (
	captureTarget   string
	capturePatterns []string
)

// captureCmd 附着目标并持续捕获流量
var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "附着目标并捕获网络流量，Ctrl+C 结束",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		log := newLogger(cfg)
		svc, err := api.NewService(log, cfg)
		if err != nil {
			return err
		}
		defer svc.Close()

		mon, err := svc.Attach(cmd.Context(), captureTarget)
		if err != nil {
			return err
		}
		fmt.Printf("会话 %s 已附着，开始捕获\n", mon.SessionID())

		offReq := mon.OnRequest(func(req *traffic.Request) {
			fmt.Printf(">> %-6s %s\n", req.Method(), req.URL())
		})
		defer offReq()
		offResp := mon.OnResponse(func(resp *traffic.Response) {
			fmt.Printf("<< %d %s\n", resp.Status(), resp.URL())
		})
		defer offResp()
		offFail := mon.OnRequestFailed(func(req *traffic.Request) {
			fmt.Printf("!! %s %s\n", req.Failure(), req.URL())
		})
		defer offFail()

		patterns := append(append([]string(nil), cfg.Capture.Patterns...), capturePatterns...)
		for _, p := range patterns {
			if err := mon.Route(p, func(rt *traffic.Route) {
				// 命中只观察不改写，原样放行
				if err := rt.Continue(cmd.Context(), nil); err != nil {
					log.Warn("放行失败", "url", rt.Request().URL(), "error", err)
				}
			}); err != nil {
				return err
			}
		}

		<-cmd.Context().Done()
		fmt.Println("收到退出信号，正在收口")
		return mon.Close()
	},
}

func init() {
	captureCmd.Flags().StringVar(&captureTarget, "target", "", "目标标识，空值取第一个页面")
	captureCmd.Flags().StringArrayVar(&capturePatterns, "pattern", nil, "拦截的 URL 通配模式，可重复")
	rootCmd.AddCommand(captureCmd)
}
