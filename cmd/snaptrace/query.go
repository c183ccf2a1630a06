package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/tidwall/pretty"

	cfgpkg "snaptrace/internal/config"
	"snaptrace/internal/pipeline"
	"snaptrace/pkg/contract"
	"snaptrace/pkg/structdiff"
	"snaptrace/pkg/timeline"
)

// loaded: 查询子命令的共同输入。
type loaded struct {
	cfg  cfgpkg.Config
	comp pipeline.Components
	res  pipeline.FileResult
}

// loadTimeline 装配组件并回放单个日志文件。
// renderer 非空且不同于配置时替换渲染器，并丢弃原渲染器 Options。
func (a *app) loadTimeline(ctx context.Context, file, renderer string) (loaded, error) {
	cfg, err := a.prepare(cfgpkg.Config{Inputs: []string{file}})
	if err != nil {
		return loaded{}, err
	}
	if renderer != "" && renderer != cfg.Components.Renderer {
		cfg.Components.Renderer = renderer
		cfg.Options.Renderer = nil
	}
	comp, set, err := cfgpkg.Assemble(cfg)
	if err != nil {
		return loaded{}, configErr("装配失败", err)
	}
	res, err := pipeline.Load(ctx, comp, set, a.logger, file)
	if err != nil {
		return loaded{}, runtimeErr("加载失败", err)
	}
	return loaded{cfg: cfg, comp: comp, res: res}, nil
}

// at 校验位置；越界按“无数据”报告。
func (l loaded) at(pos int) error {
	if n := l.res.Timeline.Len(); pos < 0 || pos >= n {
		return runtimeErr("无数据", fmt.Errorf("position %d of %d: %w", pos, n, contract.ErrOutOfRange))
	}
	return nil
}

func (a *app) stateCmd() *cobra.Command {
	var pos int
	cmd := &cobra.Command{
		Use:   "state <file>",
		Short: "Print the cumulative state at a position",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := a.loadTimeline(cmd.Context(), args[0], "")
			if err != nil {
				return err
			}
			if err := l.at(pos); err != nil {
				return err
			}
			fprintf(cmd.OutOrStdout(), "%s\n", contract.Indent(timeline.StateAt(l.res.Timeline, pos)))
			return nil
		},
	}
	cmd.Flags().IntVar(&pos, "at", 0, "条目位置（0 起）")
	_ = cmd.MarkFlagRequired("at")
	return cmd
}

func (a *app) changesCmd() *cobra.Command {
	var pos int
	cmd := &cobra.Command{
		Use:   "changes <file>",
		Short: "Print the field changes recorded at a position",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := a.loadTimeline(cmd.Context(), args[0], "")
			if err != nil {
				return err
			}
			if err := l.at(pos); err != nil {
				return err
			}
			b, err := timeline.ChangesAt(l.res.Timeline, pos).MarshalJSON()
			if err != nil {
				return runtimeErr("编码失败", err)
			}
			_, err = cmd.OutOrStdout().Write(pretty.Pretty(b))
			return err
		},
	}
	cmd.Flags().IntVar(&pos, "at", 0, "条目位置（0 起）")
	_ = cmd.MarkFlagRequired("at")
	return cmd
}

func (a *app) originCmd() *cobra.Command {
	var (
		pos  int
		path string
	)
	cmd := &cobra.Command{
		Use:   "origin <file>",
		Short: "Show which entry set the value at a path, with its backtrace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := a.loadTimeline(cmd.Context(), args[0], "")
			if err != nil {
				return err
			}
			if err := l.at(pos); err != nil {
				return err
			}
			e, ok := timeline.OriginEntry(l.res.Timeline, pos, path)
			if !ok {
				return runtimeErr("无来源", fmt.Errorf("%q at %d: %w", path, pos, contract.ErrOutOfRange))
			}
			printOrigin(cmd.OutOrStdout(), path, e)
			return nil
		},
	}
	cmd.Flags().IntVar(&pos, "at", 0, "条目位置（0 起）")
	cmd.Flags().StringVar(&path, "path", "", "值路径，例如 items[0].name")
	_ = cmd.MarkFlagRequired("at")
	_ = cmd.MarkFlagRequired("path")
	return cmd
}

func printOrigin(w io.Writer, path string, e timeline.Entry) {
	lr := lipgloss.NewRenderer(w)
	head := lr.NewStyle().Bold(true)
	dim := lr.NewStyle().Foreground(lipgloss.Color("241"))

	var b strings.Builder
	b.WriteString(head.Render(fmt.Sprintf("%s ← %s @ %d", path, e.Record.Label(), e.Position)))
	b.WriteByte('\n')
	if len(e.Record.Backtrace) == 0 {
		b.WriteString(dim.Render("  (no backtrace)"))
		b.WriteByte('\n')
	}
	for _, f := range e.Record.Backtrace {
		fmt.Fprintf(&b, "  at %s (%s:%d)\n", f.Function, f.Base(), f.Line)
		if f.Code != "" {
			b.WriteString(dim.Render("     " + strings.TrimSpace(f.Code)))
			b.WriteByte('\n')
		}
	}
	_, _ = io.WriteString(w, b.String())
}

func (a *app) diffCmd() *cobra.Command {
	var (
		pos      int
		field    string
		maxLines int
		format   string
	)
	cmd := &cobra.Command{
		Use:   "diff <file>",
		Short: "Render the before/after diff of a field changed at a position",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := a.loadTimeline(cmd.Context(), args[0], format)
			if err != nil {
				return err
			}
			if err := l.at(pos); err != nil {
				return err
			}
			fc, ok := timeline.ChangesAt(l.res.Timeline, pos).Get(field)
			if !ok {
				return runtimeErr("无数据", fmt.Errorf("field %q not changed at %d: %w", field, pos, contract.ErrOutOfRange))
			}
			n := cfgpkg.EffectiveMaxLines(l.cfg)
			if cmd.Flags().Changed("max-lines") {
				n = max(maxLines, 0)
			}
			res := structdiff.Diff(fc.Before, fc.After, n)
			view := structdiff.View(fmt.Sprintf("%s @ %d", field, pos), fc.Before, fc.After, res)
			if err := l.comp.Renderer.Render(cmd.Context(), cmd.OutOrStdout(), view); err != nil {
				return runtimeErr("渲染失败", err)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.IntVar(&pos, "at", 0, "条目位置（0 起）")
	f.StringVar(&field, "field", "", "字段名")
	f.IntVar(&maxLines, "max-lines", 0, "截断行数（<=0 不截断；缺省取配置 max_lines）")
	f.StringVar(&format, "format", "", "渲染器 terminal|unified（缺省取配置）")
	_ = cmd.MarkFlagRequired("at")
	_ = cmd.MarkFlagRequired("field")
	return cmd
}
