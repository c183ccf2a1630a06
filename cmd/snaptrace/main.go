package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	cfgpkg "snaptrace/internal/config"
	"snaptrace/internal/diag"
	"snaptrace/internal/pipeline"
)

var pipelineRun = pipeline.Run

// 退出码：0 成功；1 运行期失败；3 配置/装配失败。
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 3
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// exitError 携带退出码；由 execute 统一输出与映射。
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func configErr(format string, err error) error {
	return &exitError{code: exitConfig, err: fmt.Errorf(format+": %w", err)}
}

func runtimeErr(format string, err error) error {
	return &exitError{code: exitRuntime, err: fmt.Errorf(format+": %w", err)}
}

// app: 单次命令执行期间共享的状态。
type app struct {
	configPath string
	logLevel   string
	status     bool

	corrID string
	logger *diag.Logger
	stderr io.Writer
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	// 在任何 ENV 读取前加载工作目录下的 .env（不覆盖已有 ENV）。
	_ = loadDotEnv(".env")

	a := &app{corrID: uuid.NewString(), stderr: stderr}
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	defer func() { _ = a.logger.Close() }()
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if !errors.As(err, &ee) {
		// cobra 的参数/旗标错误
		fprintf(stderr, "参数错误: %v\n", err)
		return exitConfig
	}
	if !errors.Is(err, context.Canceled) {
		fprintf(stderr, "%v\n", err)
	}
	if ee.code == exitRuntime {
		code := diag.Classify(err)
		diag.IncOp("cli", "error", "error")
		if code != diag.CodeUnknown {
			diag.IncError("cli", string(code))
		}
	}
	a.logger.Error("cli", string(diag.Classify(err)), "first error", nil)
	return ee.code
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "snaptrace",
		Short: "Replay object change logs into a browsable state timeline",
		Long: `snaptrace reads newline-delimited change records, rebuilds the cumulative
object state after every record, and answers where each value came from.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "配置文件（.json/.yaml/.toml）；缺省读取 "+cfgpkg.EnvPrefix+"CONFIG_FILE 或 ./config.{json,yaml,toml}")
	pf.StringVar(&a.logLevel, "log-level", "", "日志级别 debug|info|warn|error（覆盖配置）")
	pf.BoolVar(&a.status, "status", true, "终端状态提示（stderr）。TTY 动态刷新；非 TTY 打点输出")

	root.AddCommand(
		a.runCmd(),
		a.stateCmd(),
		a.changesCmd(),
		a.originCmd(),
		a.diffCmd(),
		a.serveCmd(),
		a.initConfigCmd(),
	)
	return root
}

func fprintf(w io.Writer, format string, a ...any) { _, _ = fmt.Fprintf(w, format, a...) }
