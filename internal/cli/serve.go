package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matzehuels/prerender/pkg/server"
)

func (c *CLI) serveCommand() *cobra.Command {
	var addr string
	var noCache bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Render entries over HTTP",
		Long: `Render entries over HTTP.

  GET  /render/<entry>?data=<json>   render with query props
  POST /render/<entry>               render with the body as props
  GET  /issues                       recent render failures
  GET  /healthz                      liveness`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runServe(cmd.Context(), addr, noCache)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable the render result cache")
	return cmd
}

func (c *CLI) runServe(ctx context.Context, addr string, noCache bool) error {
	a, err := c.openApp(ctx, appOptions{noCache: noCache})
	if err != nil {
		return err
	}
	defer a.Close()

	if addr == "" {
		addr = a.cfg.Server.Addr
	}
	h := server.New(a.runner, server.Options{
		OutputRoot:     a.out,
		RuntimeEntries: a.cfg.Runtime,
		Issues:         a.issues,
		Logger:         a.logger,
	})
	printInfo("Serving %s", StyleHighlight.Render(fmt.Sprintf("%d entries", len(a.manifest.Entries))))
	printKeyValue("Output", a.out.String())
	printKeyValue("Manifest", a.cfg.Resolve(a.cfg.Manifest))
	if a.issues != nil {
		printKeyValue("Issues", a.cfg.Resolve(a.cfg.Issues.Database))
	}
	err = server.ListenAndServe(ctx, addr, h, a.logger)
	if errors.Is(err, context.Canceled) {
		printSuccess("Server stopped")
		return nil
	}
	return err
}
