// Package cli 实现 ingestctl 命令行，所有操作都通过 HTTP 接口完成
package cli

import (
	"ClickFlow/pkg/ingestclient"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "CLICKFLOW"

// Version 在构建时注入
var Version = "dev"

// app 保存一次命令执行所需的共享状态
type app struct {
	v      *viper.Viper
	client *ingestclient.Client
	stdin  io.Reader
}

// Execute 运行命令行并返回进程退出码
func Execute() int {
	root := NewRootCmd()
	if err := root.Execute(); err != nil {
		var apiErr *ingestclient.APIError
		if errors.As(err, &apiErr) {
			fmt.Fprintf(os.Stderr, "Error (HTTP %d): %s\n", apiErr.StatusCode, apiErr.Message)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

// NewRootCmd 创建根命令。参数优先级: 命令行 > CLICKFLOW_* 环境变量 > 默认值
func NewRootCmd() *cobra.Command {
	a := &app{v: viper.New(), stdin: os.Stdin}

	root := &cobra.Command{
		Use:           "ingestctl",
		Short:         "ClickFlow 摄取服务命令行",
		Long:          "ingestctl 通过 HTTP 接口操作 ClickFlow：配置 ClickHouse 连接、浏览表结构、预览数据以及在 ClickHouse 与平面文件之间摄取数据。",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a.stdin = cmd.InOrStdin()
			format := a.v.GetString("output")
			if format != "table" && format != "json" {
				return fmt.Errorf("不支持的输出格式 %q: 可选 table 或 json", format)
			}
			a.client = ingestclient.New(a.v.GetString("server"),
				ingestclient.WithToken(a.v.GetString("token")))
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.String("server", "http://localhost:8080", "ClickFlow 服务地址")
	pf.String("token", "", "API 令牌 (启用鉴权时需要)")
	pf.StringP("output", "o", "table", "输出格式 (table, json)")
	pf.Duration("timeout", 10*time.Minute, "单次请求超时")

	a.v.SetEnvPrefix(envPrefix)
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()
	_ = a.v.BindPFlags(pf)

	root.AddCommand(
		a.newConfigureCmd(),
		a.newTestCmd(),
		a.newLoginCmd(),
		a.newTablesCmd(),
		a.newColumnsCmd(),
		a.newFlatFileColumnsCmd(),
		a.newPreviewCmd(),
		a.newIngestCmd(),
		a.newJoinCmd(),
		a.newJobsCmd(),
		a.newHashPasswordCmd(),
	)
	return root
}

// ctx 返回带超时的上下文
func (a *app) ctx(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), a.v.GetDuration("timeout"))
}

func (a *app) jsonOutput() bool {
	return a.v.GetString("output") == "json"
}
