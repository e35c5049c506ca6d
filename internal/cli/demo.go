// internal/cli/demo.go
package supportbot

import (
	"os"
	"os/signal"

	"github.com/mwiater/supportbot/internal/chat"
	"github.com/spf13/cobra"
)

var demoTUI bool

// demoCmd starts an interactive chat with the loaded model.
var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Chat with the support model in the terminal",
	Long:  `Load the base model and adapter, then answer questions typed at the prompt until 'quit', 'exit' or 'q'.`,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		s, err := newSession(GetConfig())
		if err != nil {
			return err
		}
		defer func() {
			if cerr := s.close(); err == nil {
				err = cerr
			}
		}()

		cmd.Println("Loading model...")
		if err := s.load(ctx); err != nil {
			return err
		}

		return chat.Run(ctx, s.bot, chat.Options{
			TUI:       demoTUI,
			ModelName: s.cfg.ModelName,
			In:        cmd.InOrStdin(),
			Out:       cmd.OutOrStdout(),
		})
	},
}

func init() {
	demoCmd.Flags().BoolVar(&demoTUI, "tui", false, "use the full-screen terminal UI")
	rootCmd.AddCommand(demoCmd)
}
