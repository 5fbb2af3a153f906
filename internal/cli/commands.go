// file: internal/cli/commands.go
package cli

import (
	"ClickFlow/internal/core/domain"
	"ClickFlow/internal/service"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func (a *app) newConfigureCmd() *cobra.Command {
	var (
		d           domain.ConnectionDetails
		askPassword bool
	)
	cmd := &cobra.Command{
		Use:   "configure",
		Short: "配置服务端使用的 ClickHouse 连接",
		Example: `  ingestctl configure --host ch.internal --port 8443 --database uk_price_paid --username ingestor_user --ask-password
  ingestctl configure --host localhost --port 9000 --jwt-token "$CH_JWT"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if askPassword {
				pw, err := readPassword(a.stdin, cmd.ErrOrStderr(), "ClickHouse 密码: ")
				if err != nil {
					return err
				}
				d.Password = pw
			}
			ctx, cancel := a.ctx(cmd)
			defer cancel()
			msg, err := a.client.ConfigureConnection(ctx, d)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), msg)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&d.Host, "host", "localhost", "ClickHouse 主机")
	f.IntVar(&d.Port, "port", 8123, "ClickHouse 端口 (8123/8443 走 HTTP，其余走原生协议)")
	f.StringVar(&d.Database, "database", "default", "数据库")
	f.StringVar(&d.Username, "username", "default", "用户名")
	f.StringVar(&d.Password, "password", "", "密码")
	f.StringVar(&d.JWTToken, "jwt-token", "", "JWT 令牌，设置后以 Bearer 方式认证")
	f.BoolVar(&askPassword, "ask-password", false, "从终端读取密码")
	return cmd
}

func (a *app) newTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "测试当前 ClickHouse 连接",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := a.ctx(cmd)
			defer cancel()
			msg, err := a.client.TestConnection(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), msg)
			if strings.HasPrefix(msg, "Connection failed") {
				return fmt.Errorf("连接测试未通过")
			}
			return nil
		},
	}
}

func (a *app) newLoginCmd() *cobra.Command {
	var username string
	cmd := &cobra.Command{
		Use:     "login",
		Short:   "登录并打印 API 令牌",
		Example: `  export CLICKFLOW_TOKEN=$(ingestctl login --username ops)`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pw, err := readPassword(a.stdin, cmd.ErrOrStderr(), "密码: ")
			if err != nil {
				return err
			}
			ctx, cancel := a.ctx(cmd)
			defer cancel()
			token, err := a.client.Login(ctx, username, pw)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "用户名")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func (a *app) newTablesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "列出当前数据库中的表",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := a.ctx(cmd)
			defer cancel()
			tables, err := a.client.Tables(ctx)
			if err != nil {
				return err
			}
			return a.renderList(cmd.OutOrStdout(), "TABLE", tables)
		},
	}
}

func (a *app) newColumnsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "columns <table>",
		Short: "列出 ClickHouse 表的列",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.ctx(cmd)
			defer cancel()
			cols, err := a.client.Columns(ctx, args[0])
			if err != nil {
				return err
			}
			return a.renderList(cmd.OutOrStdout(), "COLUMN", cols)
		},
	}
}

func (a *app) newFlatFileColumnsCmd() *cobra.Command {
	var delimiter string
	cmd := &cobra.Command{
		Use:   "flatfile-columns <file>",
		Short: "读取平面文件的表头",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.ctx(cmd)
			defer cancel()
			cols, err := a.client.FlatFileColumns(ctx, args[0], delimiter)
			if err != nil {
				return err
			}
			return a.renderList(cmd.OutOrStdout(), "COLUMN", cols)
		},
	}
	cmd.Flags().StringVarP(&delimiter, "delimiter", "d", ",", `分隔符 (单个字符，或 "tab")`)
	return cmd
}

func (a *app) newPreviewCmd() *cobra.Command {
	var req domain.DataRequest
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "预览表或平面文件中的数据",
		Example: `  ingestctl preview --source ClickHouse --table uk_price_paid --columns price,town --limit 20
  ingestctl preview --source FlatFile --file input.csv -d ';'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := a.ctx(cmd)
			defer cancel()

			header := req.Columns
			if len(header) == 0 {
				var err error
				if kind, _ := domain.ParseSourceKind(req.Source); kind == domain.SourceFlatFile {
					header, err = a.client.FlatFileColumns(ctx, req.FileName, req.Delimiter)
				} else {
					header, err = a.client.Columns(ctx, req.TableName)
				}
				if err != nil {
					return err
				}
			}
			grid, err := a.client.Data(ctx, req)
			if err != nil {
				return err
			}
			return a.renderGrid(cmd.OutOrStdout(), header, grid)
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.Source, "source", "ClickHouse", "数据来源 (ClickHouse 或 FlatFile)")
	f.StringVar(&req.TableName, "table", "", "ClickHouse 表名")
	f.StringVar(&req.FileName, "file", "", "平面文件名")
	f.StringVarP(&req.Delimiter, "delimiter", "d", ",", "分隔符")
	f.StringSliceVar(&req.Columns, "columns", nil, "要预览的列，默认全部")
	f.IntVar(&req.Limit, "limit", 0, "最多返回的行数，0 表示使用服务端默认值")
	return cmd
}

func (a *app) newIngestCmd() *cobra.Command {
	var req domain.IngestionRequest
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "在 ClickHouse 表与平面文件之间摄取数据",
		Example: `  # ClickHouse -> output.csv
  ingestctl ingest --source ClickHouse --table uk_price_paid --columns price,town --file output.csv

  # input.csv -> ClickHouse
  ingestctl ingest --source FlatFile --file input.csv --table uk_price_paid --columns price,town`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := a.ctx(cmd)
			defer cancel()
			res, err := a.client.Ingest(ctx, req)
			if err != nil {
				return err
			}
			return a.renderResult(cmd.OutOrStdout(), res)
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.Source, "source", "", "数据来源 (ClickHouse 或 FlatFile)")
	f.StringVar(&req.TableName, "table", "", "ClickHouse 表 (来源表或目标表)")
	f.StringVar(&req.FileName, "file", "", "平面文件 (输出文件或输入文件)")
	f.StringSliceVar(&req.Columns, "columns", nil, "要摄取的列")
	f.StringVarP(&req.Delimiter, "delimiter", "d", ",", "分隔符")
	_ = cmd.MarkFlagRequired("source")
	_ = cmd.MarkFlagRequired("columns")
	return cmd
}

func (a *app) newJoinCmd() *cobra.Command {
	var req domain.JoinIngestionRequest
	cmd := &cobra.Command{
		Use:     "join",
		Short:   "把多表 JOIN 的结果导出到平面文件",
		Example: `  ingestctl join --tables orders,customers --on "orders.customer_id = customers.id" --columns orders.id,customers.name --file joined.csv`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := a.ctx(cmd)
			defer cancel()
			res, err := a.client.JoinIngest(ctx, req)
			if err != nil {
				return err
			}
			return a.renderResult(cmd.OutOrStdout(), res)
		},
	}
	f := cmd.Flags()
	f.StringSliceVar(&req.Tables, "tables", nil, "参与 JOIN 的表，至少两个")
	f.StringVar(&req.JoinCondition, "on", "", "JOIN 条件，对每个后续表使用同一条件")
	f.StringSliceVar(&req.Columns, "columns", nil, "输出列 (可带表前缀)")
	f.StringVar(&req.FileName, "file", "", "输出文件，默认 output.csv")
	f.StringVarP(&req.Delimiter, "delimiter", "d", ",", "分隔符")
	_ = cmd.MarkFlagRequired("tables")
	_ = cmd.MarkFlagRequired("on")
	return cmd
}

func (a *app) newJobsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "jobs [id]",
		Short: "查看摄取任务历史",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.ctx(cmd)
			defer cancel()
			if len(args) == 1 {
				job, err := a.client.Job(ctx, args[0])
				if err != nil {
					return err
				}
				return a.renderJobs(cmd.OutOrStdout(), []*domain.Job{job})
			}
			jobs, err := a.client.Jobs(ctx, limit)
			if err != nil {
				return err
			}
			return a.renderJobs(cmd.OutOrStdout(), jobs)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "最多显示的任务数")
	return cmd
}

func (a *app) newHashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password",
		Short: "生成可写入 auth.users[].password_hash 的 bcrypt 哈希",
		Args:  cobra.NoArgs,
		// 不访问服务端
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, _ []string) error {
			pw, err := readPassword(cmd.InOrStdin(), cmd.ErrOrStderr(), "密码: ")
			if err != nil {
				return err
			}
			hash, err := service.HashPassword(pw)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}
