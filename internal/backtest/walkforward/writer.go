package walkforward

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Writer handles writing backtest artifacts to disk
type Writer struct {
	outputDir string
}

// ArtifactPaths lists the files one run produces
type ArtifactPaths struct {
	ResultsJSONL string `json:"results_jsonl"`
	ReportMD     string `json:"report_md"`
	OutputDir    string `json:"output_dir"`
}

// NewWriter writes under outputDir/<date>
func NewWriter(outputDir string, at time.Time) *Writer {
	return &Writer{outputDir: filepath.Join(outputDir, at.UTC().Format("2006-01-02"))}
}

// Paths returns the paths of all generated artifacts
func (w *Writer) Paths(run *Run) ArtifactPaths {
	return ArtifactPaths{
		ResultsJSONL: filepath.Join(w.outputDir, run.ID+".jsonl"),
		ReportMD:     filepath.Join(w.outputDir, run.ID+".md"),
		OutputDir:    w.outputDir,
	}
}

// WriteAll writes the JSONL results and the markdown report
func (w *Writer) WriteAll(run *Run) error {
	if err := os.MkdirAll(w.outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := w.WriteResults(run); err != nil {
		return err
	}
	return w.WriteReport(run)
}

// WriteResults writes one line per ranked grid result, then the full run
func (w *Writer) WriteResults(run *Run) error {
	file, err := os.Create(w.Paths(run).ResultsJSONL)
	if err != nil {
		return fmt.Errorf("failed to create results file: %w", err)
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	for _, r := range run.Results {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("failed to write grid result: %w", err)
		}
	}
	if err := enc.Encode(run); err != nil {
		return fmt.Errorf("failed to write run summary: %w", err)
	}
	return nil
}

// WriteReport writes the markdown report
func (w *Writer) WriteReport(run *Run) error {
	if err := os.WriteFile(w.Paths(run).ReportMD, []byte(RenderReport(run)), 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// RenderReport renders the ranked results and folds as markdown
func RenderReport(run *Run) string {
	var report strings.Builder

	fmt.Fprintf(&report, "# Walk-Forward Backtest %s\n\n", run.ID)
	fmt.Fprintf(&report, "**Generated**: %s\n", run.CreatedAt.Format("2006-01-02 15:04:05 UTC"))
	fmt.Fprintf(&report, "**Mode**: %s, **Symbols**: %s\n", run.Mode, strings.Join(run.Symbols, ", "))
	fmt.Fprintf(&report, "**Period**: %s to %s, train=%dd test=%dd step=%dd, lookback=%dh baseline=%dd\n\n",
		run.Window.Start.Format("2006-01-02"), run.Window.End.Format("2006-01-02"),
		run.Window.TrainDays, run.Window.TestDays, run.Window.StepDays,
		run.Window.LookbackHours, run.Window.BaselineDays)

	report.WriteString("## Ranked Results\n\n")
	report.WriteString("| Rank | Params | Sharpe | Return | Max DD | Hit Rate | Trades | Denied |\n")
	report.WriteString("|-----:|--------|-------:|-------:|-------:|---------:|-------:|-------:|\n")
	for _, r := range run.Results {
		m := r.Metrics
		fmt.Fprintf(&report, "| %d | %s | %.2f | %.2f%% | %.2f%% | %.1f%% | %d | %d |\n",
			r.Rank, r.Params.Key(), m.Sharpe, m.TotalReturn*100, m.MaxDrawdown*100, m.HitRate*100, m.Trades, m.Orders.Denied)
	}
	report.WriteString("\n")

	report.WriteString("## Folds\n\n")
	report.WriteString("| Pair | Train | Test | Selected | Train Sharpe | Test Sharpe | Test Return |\n")
	report.WriteString("|-----:|-------|------|----------|-------------:|------------:|------------:|\n")
	for _, f := range run.Folds {
		fmt.Fprintf(&report, "| %d | %s..%s | %s..%s | %s | %.2f | %.2f | %.2f%% |\n",
			f.Pair.Index,
			f.Pair.Train.Start.Format("2006-01-02"), f.Pair.Train.End.Format("2006-01-02"),
			f.Pair.Test.Start.Format("2006-01-02"), f.Pair.Test.End.Format("2006-01-02"),
			f.Selected.Key(), f.TrainMetrics.Sharpe, f.TestMetrics.Sharpe, f.TestMetrics.TotalReturn*100)
	}
	report.WriteString("\n")

	oos := run.OutOfSample
	report.WriteString("## Out-of-Sample\n\n")
	fmt.Fprintf(&report, "- **Sharpe**: %.2f\n", oos.Sharpe)
	fmt.Fprintf(&report, "- **Return**: %.2f%%\n", oos.TotalReturn*100)
	fmt.Fprintf(&report, "- **Max Drawdown**: %.2f%%\n", oos.MaxDrawdown*100)
	fmt.Fprintf(&report, "- **Trades**: %d (hit rate %.1f%%)\n\n", oos.Trades, oos.HitRate*100)

	report.WriteString("## Methodology\n\n")
	report.WriteString("1. Baselines are frozen from mention counts in windows ending at or before each window start\n")
	report.WriteString("2. Each bar scores mentions in [t - lookback, t) and fills at the bar close\n")
	report.WriteString("3. Every simulated order passes the pre-trade policy gate\n")
	report.WriteString("4. Positions are liquidated at the last bar of each window\n")
	report.WriteString("5. Results are ranked by Sharpe, not raw return\n")

	return report.String()
}
