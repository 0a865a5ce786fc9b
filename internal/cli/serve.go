package cli

import (
	"github.com/spf13/cobra"

	"github.com/modelfetch-dev/modelfetch/internal/api"
)

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	var listenAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the acquisition engine with its HTTP API",
		Long: `Start the engine as a long-running daemon exposing the REST control
API and the server-sent progress event stream. The status, pause,
resume and cancel commands talk to this daemon.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			engine, cfg, err := buildEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			addr := cfg.Settings.ListenAddr
			if listenAddr != "" {
				addr = listenAddr
			}
			return api.NewServer(engine, addr).Serve(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&listenAddr, "listen", "", "Listen address (defaults to listen_addr from config)")
	return cmd
}
