// internal/cli/metrics.go
package supportbot

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/k0kubun/pp"
	"github.com/mwiater/supportbot/internal/metrics"
	"github.com/spf13/cobra"
)

var metricsFile string

// metricsCmd groups metrics subcommands.
var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Group commands for saved inference metrics",
}

// metricsShowCmd prints a saved metrics summary. Without --file the newest file in the metrics
// directory is used.
var metricsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show a saved metrics summary",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := metricsFile
		if path == "" {
			latest, err := latestMetricsFile(GetConfig().MetricsDir)
			if err != nil {
				return err
			}
			path = latest
		}
		summary, err := metrics.ReadSummary(path)
		if err != nil {
			return err
		}
		printSummary(cmd.OutOrStdout(), path, summary)
		return nil
	},
}

// latestMetricsFile returns the newest metrics_YYYYMMDD.json in dir. The date stamp sorts lexically.
func latestMetricsFile(dir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "metrics_*.json"))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("no metrics files in %s", dir)
	}
	sort.Strings(matches)
	return matches[len(matches)-1], nil
}

func printSummary(out io.Writer, path string, s metrics.Summary) {
	fmt.Fprintf(out, "Metrics file: %s\n\n", path)
	fmt.Fprintf(out, "  Model:           %s\n", s.Model.ModelName)
	fmt.Fprintf(out, "  Adapter:         %s\n", s.Model.AdapterPath)
	fmt.Fprintf(out, "  Load Time:       %.2fs\n", s.Model.LoadTimeSeconds)
	fmt.Fprintf(out, "  Total Requests:  %d\n", s.Stats.TotalRequests)
	fmt.Fprintf(out, "  Errors:          %d (rate %.4f)\n", s.Model.Errors, s.Stats.ErrorRate)
	fmt.Fprintf(out, "  Latency (ms):    avg %.2f, min %.2f, max %.2f\n", s.Stats.AvgLatencyMs, s.Stats.MinLatencyMs, s.Stats.MaxLatencyMs)
	fmt.Fprintf(out, "  Avg Resp Length: %.1f\n", s.Stats.AvgResponseLength)

	if len(s.RecentInferences) == 0 {
		return
	}
	fmt.Fprintln(out, "\nRecent inferences:")
	pp.ColoringEnabled = isTerminal(out)
	pp.Fprintln(out, s.RecentInferences)
}

func isTerminal(out io.Writer) bool {
	f, ok := out.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0 && os.Getenv("NO_COLOR") == ""
}

func init() {
	metricsShowCmd.Flags().StringVar(&metricsFile, "file", "", "metrics file to show (defaults to the newest in metricsDir)")
	metricsCmd.AddCommand(metricsShowCmd)
	rootCmd.AddCommand(metricsCmd)
}
