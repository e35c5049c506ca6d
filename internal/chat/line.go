package chat

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/mwiater/supportbot/internal/inference"
)

var (
	userLabel      = color.New(color.FgCyan, color.Bold).SprintFunc()
	assistantLabel = color.New(color.FgMagenta, color.Bold).SprintFunc()
	bannerText     = color.New(color.FgGreen).SprintFunc()
)

// RunLine reads questions from in, one per line, and writes answers to out until an exit word,
// end of input or a chat error. Blank lines are ignored.
func RunLine(ctx context.Context, chatter inference.Chatter, in io.Reader, out io.Writer) error {
	rule := strings.Repeat("=", 60)
	fmt.Fprintln(out, bannerText(rule))
	fmt.Fprintln(out, bannerText("CUSTOMER SUPPORT CHATBOT - DEMO"))
	fmt.Fprintln(out, bannerText(rule))
	fmt.Fprintln(out, "Type 'quit' to exit")

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprintf(out, "\n%s ", userLabel("You:"))
		if !scanner.Scan() {
			break
		}
		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			continue
		}
		if IsExitCommand(question) {
			break
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		response, err := chatter.Chat(ctx, question)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "\n%s %s\n", assistantLabel("Assistant:"), response)
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	fmt.Fprintln(out, "\nBye!")
	return nil
}
