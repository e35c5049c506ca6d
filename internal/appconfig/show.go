package appconfig

import (
	"fmt"
	"io"
)

// ShowConfig prints the current configuration summary.
func ShowConfig(out io.Writer, cfg Config) {
	if cfg.ConfigPath == "" {
		fmt.Fprintln(out, "No config file loaded (using defaults).")
	} else {
		fmt.Fprintf(out, "Config file: %s\n\n", cfg.ConfigPath)
	}

	g := cfg.Generation
	fmt.Fprintln(out, "Current configuration:")
	fmt.Fprintf(out, "  Model Name:         %s\n", cfg.ModelName)
	fmt.Fprintf(out, "  Base Model:         %s\n", g.BaseModel)
	fmt.Fprintf(out, "  Adapter:            %s\n", g.AdapterPath)
	fmt.Fprintf(out, "  Max New Tokens:     %d\n", g.MaxNewTokens)
	fmt.Fprintf(out, "  Temperature:        %v\n", g.Temperature)
	fmt.Fprintf(out, "  Top P:              %v\n", g.TopP)
	fmt.Fprintf(out, "  Repetition Penalty: %v\n", g.RepetitionPenalty)
	fmt.Fprintf(out, "  Backend:            %s (%s) %s\n", cfg.BackendName(), cfg.Backend.Type, cfg.Backend.URL)
	fmt.Fprintf(out, "  Request Timeout:    %s\n", cfg.RequestTimeout())
	fmt.Fprintf(out, "  API Listen Address: %s\n", cfg.Addr())
	fmt.Fprintf(out, "  Log Dir:            %s\n", cfg.LogDir)
	fmt.Fprintf(out, "  Metrics Dir:        %s\n", cfg.MetricsDir)
	if cfg.Evaluation.DatasetPath != "" {
		fmt.Fprintf(out, "  Eval Dataset:       %s\n", cfg.Evaluation.DatasetPath)
	} else {
		fmt.Fprintf(out, "  Eval Dataset:       %s (%s split, hub)\n", cfg.Evaluation.Dataset, cfg.Evaluation.Split)
	}
	fmt.Fprintf(out, "  Eval Samples:       %d\n", cfg.Evaluation.Samples)
	fmt.Fprintf(out, "  Debug:              %v\n", cfg.Debug)
}
