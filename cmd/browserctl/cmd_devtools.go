package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shehryarbajwa/browserctl/internal/browser"
	"github.com/shehryarbajwa/browserctl/internal/proxy"
)

const defaultDevtoolsAddr = "127.0.0.1:9333"

var devtoolsCmd = &cobra.Command{
	Use:   `devtools ['{"addr":"127.0.0.1:9333"}']`,
	Short: "Expose the running browser to an external DevTools client",
	Long: `Runs a DevTools proxy in the foreground until interrupted. Point a
DevTools client (chrome://inspect, or a CDP library) at the printed endpoint.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p := struct {
			Addr string `json:"addr"`
		}{Addr: defaultDevtoolsAddr}
		if err := decodeArgs(args, &p); err != nil {
			return err
		}

		sup, err := browser.NewSupervisor(cfg, logger)
		if err != nil {
			return err
		}
		endpoint, err := sup.Endpoint(cmd.Context())
		if err != nil {
			return err
		}
		srv, err := proxy.NewServer(endpoint, logger)
		if err != nil {
			return err
		}

		return srv.Serve(cmd.Context(), p.Addr, func(addr string) {
			logger.Info("devtools proxy listening", zap.String("addr", addr), zap.String("browser", endpoint))
			if err := writeJSON(map[string]string{
				"result":   fmt.Sprintf("DevTools proxy listening on %s. Press Ctrl+C to stop.", addr),
				"endpoint": "http://" + addr,
			}); err != nil {
				logger.Warn("write result", zap.Error(err))
			}
		})
	},
}
