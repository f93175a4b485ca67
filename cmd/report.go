package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kubev2v/flowharness/internal/config"
	"github.com/kubev2v/flowharness/internal/models"
	"github.com/kubev2v/flowharness/internal/report"
	"github.com/kubev2v/flowharness/internal/store"
	"github.com/kubev2v/flowharness/pkg/filter"
)

func NewReportCommand(cfg *config.Configuration) *cobra.Command {
	var runID, where string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarize a run from the journal, the latest one by default",
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			if cfg.Harness.DataFolder == "" {
				return errors.New("data-folder must be set to read the run journal")
			}
			if runID != "" {
				if _, err := uuid.Parse(runID); err != nil {
					return fmt.Errorf("run-id must be a valid UUID: %w", err)
				}
			}
			if where != "" {
				if _, err := filter.Parse([]byte(where)); err != nil {
					return fmt.Errorf("invalid filter: %w", err)
				}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			journal, err := openJournal(cmd.Context(), cfg.Harness.DataFolder)
			if err != nil {
				return err
			}
			defer journal.Close()
			return writeReport(cmd.Context(), journal, runID, where, cfg.Report.XLSXPath)
		},
	}
	cmd.Flags().StringVar(&cfg.Harness.DataFolder, "data-folder", cfg.Harness.DataFolder, "Folder of the run journal")
	cmd.Flags().StringVar(&runID, "run-id", "", "Run to report on")
	cmd.Flags().StringVar(&where, "filter", "", "Only report scenarios matching the expression, e.g. \"status = 'failed' and duration > 1m\"")
	cmd.Flags().StringVar(&cfg.Report.XLSXPath, "xlsx", cfg.Report.XLSXPath, "Also export the run to this XLSX workbook")
	return cmd
}

func writeReport(ctx context.Context, journal *store.Store, runID, where, xlsxPath string) error {
	var (
		r   *models.Run
		err error
	)
	if runID == "" {
		r, err = journal.Runs().Latest(ctx)
	} else {
		r, err = journal.Runs().Get(ctx, uuid.MustParse(runID))
	}
	if err != nil {
		return err
	}

	var filters []sq.Sqlizer
	if where != "" {
		expr, err := filter.Parse([]byte(where))
		if err != nil {
			return fmt.Errorf("invalid filter: %w", err)
		}
		filters = append(filters, sq.Expr(expr.Sql()))
	}

	results, err := journal.Scenarios().ListByRun(ctx, r.ID, filters...)
	if err != nil {
		return err
	}
	if err := report.Summary(os.Stdout, *r, results); err != nil {
		return err
	}
	if xlsxPath == "" {
		return nil
	}

	logs := make(map[string][]models.ContainerLog, len(results))
	for _, res := range results {
		l, err := journal.Logs().ListByScenario(ctx, r.ID, res.ID)
		if err != nil {
			return err
		}
		logs[res.ID] = l
	}
	return report.ExportXLSX(xlsxPath, *r, results, logs)
}
