// Package chat runs the interactive demo: a line-oriented prompt loop or a Bubble Tea TUI, both
// talking to the same chat model.
package chat

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/mwiater/supportbot/internal/inference"
)

// exitWords end a demo session. Matching ignores case and surrounding whitespace.
var exitWords = []string{"quit", "exit", "q"}

// Options selects the demo front end.
type Options struct {
	TUI       bool
	ModelName string
	In        io.Reader
	Out       io.Writer
}

// Run starts the demo selected by opts.
func Run(ctx context.Context, chatter inference.Chatter, opts Options) error {
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.TUI {
		return RunTUI(ctx, chatter, opts)
	}
	return RunLine(ctx, chatter, opts.In, opts.Out)
}

// IsExitCommand reports whether input ends the session.
func IsExitCommand(input string) bool {
	input = strings.ToLower(strings.TrimSpace(input))
	for _, w := range exitWords {
		if input == w {
			return true
		}
	}
	return false
}
