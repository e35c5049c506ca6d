// internal/cli/api.go
package supportbot

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/mwiater/supportbot/internal/logging"
	"github.com/mwiater/supportbot/internal/server"
	"github.com/spf13/cobra"
)

var (
	apiHost string
	apiPort int
)

// apiCmd serves the chat model over HTTP.
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Serve the support model over HTTP",
	Long:  `Start the HTTP API. The model loads in the background; /chat returns 503 until it is ready.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cfg := *GetConfig()
		if cmd.Flags().Changed("host") {
			cfg.Server.Host = apiHost
		}
		if cmd.Flags().Changed("port") {
			cfg.Server.Port = apiPort
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		s, err := newSession(&cfg)
		if err != nil {
			return err
		}
		defer s.backend.Close()

		// Serve saves the tracker on shutdown.
		return server.New(cfg, s.bot, s.tracker, logging.New("api")).Run(ctx)
	},
}

func init() {
	apiCmd.Flags().StringVar(&apiHost, "host", "", "listen host (overrides server.host)")
	apiCmd.Flags().IntVar(&apiPort, "port", 0, "listen port (overrides server.port)")
	rootCmd.AddCommand(apiCmd)
}
