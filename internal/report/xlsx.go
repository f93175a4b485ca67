package report

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/kubev2v/flowharness/internal/models"
)

const (
	scenariosSheet = "Scenarios"
	logsSheet      = "Logs"
)

var (
	scenarioHeader = []any{"Scenario", "Feature", "Name", "Status", "Started", "Duration (s)", "Error"}
	logHeader      = []any{"Scenario", "Container", "Logs"}
)

// lastChars keeps the end of s when it does not fit into one cell.
func lastChars(s string) string {
	r := []rune(s)
	if len(r) <= excelize.TotalCellChars {
		return s
	}
	return string(r[len(r)-excelize.TotalCellChars:])
}

// ExportXLSX writes the scenarios of a run and the logs collected for them to path.
// logs is keyed by scenario id.
func ExportXLSX(path string, run models.Run, scenarios []models.ScenarioResult, logs map[string][]models.ContainerLog) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", scenariosSheet); err != nil {
		return err
	}
	if _, err := f.NewSheet(logsSheet); err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}

	if err := writeRow(f, scenariosSheet, 1, scenarioHeader); err != nil {
		return err
	}
	if err := f.SetCellStyle(scenariosSheet, "A1", "G1", bold); err != nil {
		return err
	}
	for i, s := range scenarios {
		row := []any{s.ID, s.Feature, s.Name, string(s.Status), s.StartedAt.Format("2006-01-02 15:04:05"), s.Duration().Seconds(), lastChars(s.Error)}
		if err := writeRow(f, scenariosSheet, i+2, row); err != nil {
			return err
		}
	}

	if err := writeRow(f, logsSheet, 1, logHeader); err != nil {
		return err
	}
	if err := f.SetCellStyle(logsSheet, "A1", "C1", bold); err != nil {
		return err
	}
	next := 2
	for _, s := range scenarios {
		for _, l := range logs[s.ID] {
			if err := writeRow(f, logsSheet, next, []any{s.ID, l.Container, lastChars(l.Logs)}); err != nil {
				return err
			}
			next++
		}
	}

	f.SetActiveSheet(0)
	if err := f.SetDocProps(&excelize.DocProperties{
		Title:   fmt.Sprintf("flowharness run %s", run.ID),
		Subject: run.AgentImage,
		Creator: "flowharness",
	}); err != nil {
		return err
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}
