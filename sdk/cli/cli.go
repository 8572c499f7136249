package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ChenBigdata421/jxt-bench/sdk/config"
	"github.com/ChenBigdata421/jxt-bench/sdk/pkg/bench"
	"github.com/ChenBigdata421/jxt-bench/sdk/pkg/logger"
)

// 退出码
const (
	ExitOK      = 0
	ExitFailure = 1
)

// usageError 配置错误，退出前打印用法
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

// runError 运行失败，结果中已包含退出码
type runError struct {
	err  error
	code int
}

func (e *runError) Error() string { return e.err.Error() }
func (e *runError) Unwrap() error { return e.err }

var descriptions = map[bench.Role]string{
	bench.ProducerOnly: "Send timestamped messages at a target rate and trace every send",
	bench.ConsumerOnly: "Receive messages and trace end-to-end latency from the embedded send timestamp",
	bench.Both:         "Run a producer and a consumer against the same topic in one process",
}

// NewCommand 创建角色对应的命令
func NewCommand(role bench.Role) *cobra.Command {
	cmd := &cobra.Command{
		Use:           role.String(),
		Short:         descriptions[role],
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	bindings := registerFlags(cmd.Flags(), role)

	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd, bindings)
		if err != nil {
			return &usageError{err: err}
		}
		runner := bench.NewRunner(cfg, role)
		if err := runner.Validate(); err != nil {
			return &usageError{err: err}
		}

		logger.SetupWith(cfg.Logger, cmd.ErrOrStderr())
		defer logger.Sync()
		runner.Logger = logger.Named("bench")

		results, err := runner.Run(cmd.Context())
		if err != nil {
			logger.Logger.Error("Benchmark failed", zap.String("role", role.String()), zap.Error(err))
			return &runError{err: err, code: ExitFailure}
		}
		if code := bench.ExitCode(results...); code != ExitOK {
			return &runError{err: fmt.Errorf("%s stopped with exit code %d", role, code), code: code}
		}
		return nil
	}
	return cmd
}

// loadConfig 合并配置文件、环境变量与命令行参数
func loadConfig(cmd *cobra.Command, bindings []binding) (*config.Bench, error) {
	v := config.NewViper()
	if err := bindFlags(v, cmd.Flags(), bindings); err != nil {
		return nil, err
	}
	path, _ := cmd.Flags().GetString(FlagConfig)
	return config.Setup(v, path)
}

// Execute 运行命令并返回进程退出码
//
// --help 返回 0；配置错误在创建任何传输或日志之前打印用法并返回 1。
func Execute(ctx context.Context, role bench.Role, args []string, stdout, stderr io.Writer) int {
	cmd := NewCommand(role)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return ExitOK
	}

	var rerr *runError
	if errors.As(err, &rerr) {
		fmt.Fprintf(stderr, "Error: %v\n", rerr.err)
		return rerr.code
	}
	// 参数解析错误与配置错误都打印用法
	fmt.Fprintf(stderr, "Error: %v\n", err)
	fmt.Fprint(stderr, cmd.UsageString())
	return ExitFailure
}
