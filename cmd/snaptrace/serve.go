package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	cfgpkg "snaptrace/internal/config"
	"snaptrace/internal/server"
	"snaptrace/pkg/contract"
)

var listenAndServe = (*server.Server).ListenAndServe

func (a *app) serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve <file>",
		Short: "Serve the timeline of a log file over HTTP",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file := args[0]
			if strings.TrimSpace(file) == "-" {
				return configErr("serve", fmt.Errorf("stdin cannot be served: %w", contract.ErrInvalidInput))
			}
			cfg, err := a.prepare(cfgpkg.Config{Inputs: []string{file}, Server: cfgpkg.Server{Addr: addr}})
			if err != nil {
				return err
			}
			comp, set, err := cfgpkg.Assemble(cfg)
			if err != nil {
				return configErr("装配失败", err)
			}
			srv := server.New(server.Options{Path: file, MaxLines: cfgpkg.EffectiveMaxLines(cfg)}, comp, set, a.logger)
			if err := srv.Reload(cmd.Context()); err != nil {
				return runtimeErr("加载失败", err)
			}
			fprintf(a.stderr, "[serve] %s | 条目 %d | http://%s\n", file, srv.Timeline().Len(), displayAddr(cfg.Server.Addr))
			a.logger.StartWithKV("server", "listen", file, "", map[string]string{"addr": cfg.Server.Addr})
			if err := listenAndServe(srv, cmd.Context(), cfg.Server.Addr); err != nil {
				return runtimeErr("服务失败", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "监听地址（覆盖 server.addr）")
	return cmd
}

// displayAddr: ":8080" → "localhost:8080"
func displayAddr(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "localhost" + addr
	}
	return addr
}
