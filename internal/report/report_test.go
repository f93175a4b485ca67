package report_test

import (
	"bytes"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/xuri/excelize/v2"

	"github.com/kubev2v/flowharness/internal/models"
	"github.com/kubev2v/flowharness/internal/report"
)

var _ = Describe("Report", func() {
	var (
		run       models.Run
		scenarios []models.ScenarioResult
	)

	BeforeEach(func() {
		start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
		finished := start.Add(90 * time.Second)
		run = models.Run{ID: uuid.New(), StartedAt: start, FinishedAt: &finished, Engine: "docker", AgentImage: "apacheminificpp:behave"}
		scenarios = []models.ScenarioResult{
			{ID: "core-1", RunID: run.ID, Feature: "core.feature", Name: "files are moved", Status: models.ScenarioStatusPassed, StartedAt: start, FinishedAt: start.Add(30 * time.Second)},
			{ID: "core-2", RunID: run.ID, Feature: "core.feature", Name: "agent restarts", Status: models.ScenarioStatusFailed, Error: "condition timed out", StartedAt: start.Add(30 * time.Second), FinishedAt: start.Add(60 * time.Second)},
			{ID: "core-3", RunID: run.ID, Feature: "core.feature", Name: "needs kubernetes", Status: models.ScenarioStatusSkipped, StartedAt: start.Add(60 * time.Second), FinishedAt: start.Add(60 * time.Second)},
		}
	})

	It("summarizes the run on the console", func() {
		var buf bytes.Buffer

		Expect(report.Summary(&buf, run, scenarios)).To(Succeed())

		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		Expect(lines[0]).To(HavePrefix("Run " + run.ID.String() + " (docker, apacheminificpp:behave)"))
		Expect(lines[0]).To(HaveSuffix("took 1m30s"))
		Expect(lines[1]).To(Equal("  passed  core.feature: files are moved (30s)"))
		Expect(lines[3]).To(ContainSubstring("condition timed out"))
		Expect(lines[len(lines)-1]).To(Equal("3 scenarios: 1 passed, 1 failed, 1 skipped"))
	})

	// Given a run with scenarios and container logs
	// When it is exported
	// Then the workbook should hold one row per scenario and per container log
	It("exports scenarios and logs to a workbook", func() {
		// Arrange
		path := filepath.Join(GinkgoT().TempDir(), "run.xlsx")
		logs := map[string][]models.ContainerLog{
			"core-2": {
				{ScenarioID: "core-2", Container: "minifi-primary-core-2", Logs: "Starting Flow Controller"},
				{ScenarioID: "core-2", Container: "nifi-core-2", Logs: strings.Repeat("x", excelize.TotalCellChars+10)},
			},
		}

		// Act
		err := report.ExportXLSX(path, run, scenarios, logs)

		// Assert
		Expect(err).NotTo(HaveOccurred())
		f, err := excelize.OpenFile(path)
		Expect(err).NotTo(HaveOccurred())
		defer f.Close()

		Expect(f.GetSheetList()).To(Equal([]string{"Scenarios", "Logs"}))
		rows, err := f.GetRows("Scenarios")
		Expect(err).NotTo(HaveOccurred())
		Expect(rows).To(HaveLen(4))
		Expect(rows[0][0]).To(Equal("Scenario"))
		Expect(rows[2][3]).To(Equal("failed"))
		Expect(rows[2][6]).To(Equal("condition timed out"))

		rows, err = f.GetRows("Logs")
		Expect(err).NotTo(HaveOccurred())
		Expect(rows).To(HaveLen(3))
		Expect(rows[1]).To(Equal([]string{"core-2", "minifi-primary-core-2", "Starting Flow Controller"}))
		Expect(rows[2][2]).To(HaveLen(excelize.TotalCellChars))
	})
})
