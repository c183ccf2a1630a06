package main

import (
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/tidwall/sjson"

	cfgpkg "snaptrace/internal/config"
	"snaptrace/internal/diag"
)

func (a *app) runCmd() *cobra.Command {
	var (
		outDir string
		retain bool
		epoch  int64
	)
	cmd := &cobra.Command{
		Use:   "run [roots...]",
		Short: "Replay logs and export <file>.timeline.jsonl per source",
		Long: `Roots are files or directories; "-" reads STDIN and cannot be mixed with other roots.
Without roots the configured inputs are used.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			over := cfgpkg.Config{Inputs: args, RetainStaleOrigins: retain, EpochMS: epoch}
			cfg, err := a.prepare(over)
			if err != nil {
				return err
			}
			if outDir != "" {
				patched, err := sjson.SetBytes(cfg.Options.Writer, "output_dir", outDir)
				if err != nil {
					return configErr("输出目录覆盖失败", err)
				}
				cfg.Options.Writer = patched
			}
			if err := preflightCheckOutputDir(cfg); err != nil {
				return configErr("输出目录不可写或无法创建", err)
			}
			comp, set, err := cfgpkg.Assemble(cfg)
			if err != nil {
				return configErr("装配失败", err)
			}

			// 终端提示由流水线旁路输出
			diag.SetTerminal(diag.NewTerminal(a.stderr, a.status))
			defer diag.SetTerminal(nil)

			a.logger.DebugStart("config", "effective", "", "", map[string]string{
				"inputs_count":         strconv.Itoa(len(cfg.Inputs)),
				"retain_stale_origins": strconv.FormatBool(cfg.RetainStaleOrigins),
				"epoch_ms":             strconv.FormatInt(cfg.EpochMS, 10),
				"reader":               cfg.Components.Reader,
				"splitter":             cfg.Components.Splitter,
				"decoder":              cfg.Components.Decoder,
				"assembler":            cfg.Components.Assembler,
				"writer":               cfg.Components.Writer,
			})

			start := time.Now()
			t := a.logger.Start("pipeline", "run")
			if err := pipelineRun(cmd.Context(), comp, set, a.logger); err != nil {
				return runtimeErr("运行失败", err)
			}
			t.Finish("run", 0)
			diag.IncOp("pipeline", "finish", "success")
			diag.ObserveDuration("pipeline", "finish", time.Since(start).Milliseconds())
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVarP(&outDir, "out", "o", "", `输出目录（覆盖 writer.output_dir；"-" 为标准输出）`)
	f.BoolVar(&retain, "retain-stale-origins", false, "保留被整体替换字段下的旧来源")
	f.Int64Var(&epoch, "epoch-ms", 0, "时间戳起点（毫秒）")
	return cmd
}
