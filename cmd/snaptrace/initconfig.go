package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	cfgpkg "snaptrace/internal/config"
)

func (a *app) initConfigCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "init-config [dir]",
		Short: "Write a default config and .env template (never overwrites)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			f, err := cfgpkg.ParseFormat(format)
			if err != nil {
				return configErr("生成默认配置失败", err)
			}
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return configErr("生成默认配置失败", err)
			}
			cfgPath := filepath.Join(dir, "config."+string(f))
			if err := writeConfig(cfgPath, cfgpkg.DefaultTemplateConfig(), f); err != nil {
				return configErr("生成默认配置失败", err)
			}
			if err := writeDotEnv(filepath.Join(dir, ".env")); err != nil {
				fprintf(a.stderr, "提示：.env 生成失败（已跳过）：%v\n", err)
			}
			fprintf(cmd.OutOrStdout(), "%s\n", cfgPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "json", "配置格式 json|yaml|toml")
	return cmd
}
