// File: cmd/serve.go
package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/graphedit/internal/server"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.SetServerAddr(addr)
			}
			return withApp(ctx, true, func(a *app) error {
				if cfg.Auth().JWTSecret == "" {
					a.log.Warn("auth.jwt_secret is empty; bearer tokens will be rejected")
				}
				a.log.Info("Starting graphedit", zap.String("version", Version), zap.Bool("graph", a.graph != nil))
				return server.New(cfg.Server(), a.serverDeps(), a.log).Run(ctx)
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}
