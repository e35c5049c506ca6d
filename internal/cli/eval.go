// internal/cli/eval.go
package supportbot

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"

	"github.com/fatih/color"
	"github.com/mwiater/supportbot/internal/appconfig"
	"github.com/mwiater/supportbot/internal/evaluation"
	"github.com/spf13/cobra"
)

// reportIntentLimit caps the per-intent lines in the evaluation report.
const reportIntentLimit = 10

var (
	evalSamples int
	evalDataset string

	heading     = color.New(color.FgGreen, color.Bold).SprintFunc()
	coherentTag = color.New(color.FgGreen).SprintFunc()
	failedTag   = color.New(color.FgRed).SprintFunc()
)

// evalCmd scores the model on held-out support queries.
var evalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Evaluate the support model on held-out queries",
	Long: `Run the model over held-out queries from a local dataset file (--dataset) or the configured
Hugging Face dataset, score every answer and append the run to the results file.`,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		cfg := GetConfig()
		s, err := newSession(cfg)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := s.close(); err == nil {
				err = cerr
			}
		}()

		samples := cfg.Evaluation.Samples
		if cmd.Flags().Changed("samples") {
			samples = evalSamples
		}
		datasetPath := cfg.Evaluation.DatasetPath
		if cmd.Flags().Changed("dataset") {
			datasetPath = evalDataset
		}

		out := cmd.OutOrStdout()
		items, err := loadItems(cmd, *cfg, datasetPath, samples)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Evaluating on %d samples...\n", len(items))

		if err := s.load(ctx); err != nil {
			return err
		}

		result, err := evaluation.Run(ctx, s.bot, items,
			evaluation.WithModel(cfg.ModelName),
			evaluation.WithProgress(func(i, total int, item evaluation.Item, response string, coherent bool) {
				printProgress(out, i, total, item, coherent)
			}),
		)
		if err != nil {
			return err
		}

		printEvalReport(out, result)
		path, err := evaluation.AppendResult(cfg.Evaluation.ResultsDir, cfg.ModelName, result)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "\nResults appended to %s\n", path)
		return nil
	},
}

func loadItems(cmd *cobra.Command, cfg appconfig.Config, datasetPath string, samples int) ([]evaluation.Item, error) {
	if strings.TrimSpace(datasetPath) != "" {
		return evaluation.LoadDataset(datasetPath, samples)
	}
	client := &http.Client{Timeout: cfg.RequestTimeout()}
	return evaluation.FetchHubDataset(cmd.Context(), client, cfg.Evaluation.HubURL, cfg.Evaluation.Dataset, cfg.Evaluation.Split, samples)
}

func printProgress(out io.Writer, i, total int, item evaluation.Item, coherent bool) {
	status := coherentTag("ok")
	if !coherent {
		status = failedTag("incoherent")
	}
	fmt.Fprintf(out, "[%d/%d] %s %s\n", i, total, item.Intent, status)
}

// printEvalReport writes the summary block for one evaluation run.
func printEvalReport(out io.Writer, r evaluation.Result) {
	rule := strings.Repeat("=", 50)
	fmt.Fprintln(out, "\n"+rule)
	fmt.Fprintln(out, heading("EVALUATION RESULTS"))
	fmt.Fprintln(out, rule)
	fmt.Fprintf(out, "Coherence Rate: %.1f%%\n", r.CoherenceRate*100)
	fmt.Fprintf(out, "Avg Length Score: %.2f\n", r.AvgLengthScore)
	fmt.Fprintf(out, "Avg Keyword Score: %.2f\n", r.AvgKeywordScore)

	fmt.Fprintln(out, "\nBy Intent:")
	for _, intent := range r.SortedIntents(reportIntentLimit) {
		stats := r.ByIntent[intent]
		fmt.Fprintf(out, "  %s: %.0f%% (%d samples)\n", intent, stats.Rate()*100, stats.Count)
	}
}

func init() {
	evalCmd.Flags().IntVar(&evalSamples, "samples", 0, "number of held-out queries (overrides evaluation.samples)")
	evalCmd.Flags().StringVar(&evalDataset, "dataset", "", "local .json, .jsonl or .yaml dataset (overrides the hub dataset)")
	rootCmd.AddCommand(evalCmd)
}
