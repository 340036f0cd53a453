package main

import (
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"greenscan/internal/metrics"
	"greenscan/internal/rules"
	"greenscan/internal/server"
)

func newServeCmd(g *globals) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP upload service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := g.cfg
			if addr != "" {
				cfg.Server.Addr = addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			catalog, err := loadCatalog(cfg)
			if err != nil {
				return err
			}
			if cfg.Rules.Watch && cfg.Rules.Path != "" {
				w, err := rules.NewWatcher(catalog, rules.DefaultDebounce)
				if err != nil {
					return err
				}
				w.OnReload(func(c *rules.Catalog, err error) {
					if err == nil {
						metrics.RulesLoaded.Set(float64(c.Len()))
					}
				})
				if err := w.Start(); err != nil {
					return err
				}
				defer w.Stop()
			}

			p, err := newPipeline(cfg, catalog, false)
			if err != nil {
				return err
			}
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			srv := server.New(server.Options{
				Addr:           cfg.Server.Addr,
				Analyzer:       p,
				Catalog:        catalog,
				Store:          st,
				MaxUploadBytes: int64(cfg.Server.MaxUploadMB) << 20,
			})
			log.Info().
				Str("addr", cfg.Server.Addr).
				Str("workspaces", cfg.Workspace.Base).
				Bool("dynamic", cfg.Toolchain.Enabled).
				Msg("Starting greenscan server")
			return srv.ListenAndServe(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}
