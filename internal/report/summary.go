// Package report renders the run journal: a colored console summary and an
// XLSX workbook with one sheet of scenario outcomes and one of container logs.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"

	"github.com/kubev2v/flowharness/internal/models"
)

var (
	passed  = color.New(color.FgGreen, color.Bold)
	failed  = color.New(color.FgRed, color.Bold)
	skipped = color.New(color.FgYellow)
	faint   = color.New(color.Faint)
)

func statusColor(s models.ScenarioStatus) *color.Color {
	switch s {
	case models.ScenarioStatusPassed:
		return passed
	case models.ScenarioStatusFailed:
		return failed
	default:
		return skipped
	}
}

// Summary writes one line per scenario followed by the totals of the run.
func Summary(w io.Writer, run models.Run, results []models.ScenarioResult) error {
	header := fmt.Sprintf("Run %s (%s, %s) started %s", run.ID, run.Engine, run.AgentImage, run.StartedAt.Format(time.RFC3339))
	if run.FinishedAt != nil {
		header += fmt.Sprintf(", took %s", run.FinishedAt.Sub(run.StartedAt).Round(time.Second))
	}
	if _, err := fmt.Fprintln(w, header); err != nil {
		return err
	}

	counts := make(map[models.ScenarioStatus]int)
	for _, r := range results {
		counts[r.Status]++
		status := statusColor(r.Status).Sprintf("%-7s", r.Status)
		if _, err := fmt.Fprintf(w, "  %s %s: %s %s\n", status, r.Feature, r.Name, faint.Sprintf("(%s)", r.Duration().Round(time.Millisecond))); err != nil {
			return err
		}
		if r.Error != "" {
			if _, err := fmt.Fprintf(w, "          %s\n", failed.Sprint(r.Error)); err != nil {
				return err
			}
		}
	}

	_, err := fmt.Fprintf(w, "%d scenarios: %s, %s, %s\n", len(results),
		passed.Sprintf("%d passed", counts[models.ScenarioStatusPassed]),
		failed.Sprintf("%d failed", counts[models.ScenarioStatusFailed]),
		skipped.Sprintf("%d skipped", counts[models.ScenarioStatusSkipped]))
	return err
}
