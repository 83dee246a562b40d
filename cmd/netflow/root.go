package main

import (
	"github.com/spf13/cobra"

	"cdpnetflow/internal/config"
	"cdpnetflow/internal/logger"
)

var (
	cfgFile     string
	devtoolsURL string
	dbPath      string
	logLevel    string
	rawHeaders  bool
	intercept   bool
	bodyLimit   int64
)

// rootCmd 根命令
var rootCmd = &cobra.Command{
	Use:   "netflow",
	Short: "基于 DevTools 协议的浏览器流量捕获与拦截工具",
	Long: `netflow 附着到调试端口上的浏览器目标，跟踪每个网络请求的完整
生命周期（请求、重定向、响应、完成或失败），可按 URL 通配模式拦截
请求并改写、伪造或中止，终结的流量记录落入 SQLite 存储。`,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "配置文件路径 (YAML)")
	pf.StringVar(&devtoolsURL, "devtools", "", "DevTools 调试端点，如 http://127.0.0.1:9222")
	pf.StringVar(&dbPath, "db", "", "SQLite 存储路径")
	pf.StringVar(&logLevel, "log-level", "", "日志级别 debug/info/warn/error")
	pf.BoolVar(&rawHeaders, "raw-headers", true, "采集线路实发头部")
	pf.BoolVar(&intercept, "intercept", true, "启用请求拦截")
	pf.Int64Var(&bodyLimit, "body-limit", 0, "落库正文上限（字节），零值用配置值")
}

// loadConfig 读取配置文件并套用命令行覆盖
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.NewConfig()
	if cfgFile != "" {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	fl := cmd.Flags()
	if devtoolsURL != "" {
		cfg.DevTools.URL = devtoolsURL
	}
	if dbPath != "" {
		cfg.Sqlite.Dsn = dbPath
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if fl.Changed("raw-headers") {
		cfg.Capture.RawHeaders = rawHeaders
	}
	if fl.Changed("intercept") {
		cfg.Capture.Intercept = intercept
	}
	if bodyLimit > 0 {
		cfg.Capture.BodyLimit = bodyLimit
	}
	return cfg, nil
}

// newLogger 按配置构建日志器
func newLogger(cfg *config.Config) logger.Logger {
	return logger.New(logger.Options{
		Level:   cfg.Log.Level,
		Writers: cfg.Log.Writer,
		File:    cfg.Log.File,
	})
}
