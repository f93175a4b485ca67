package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kubev2v/flowharness/internal/config"
	"github.com/kubev2v/flowharness/internal/container"
	"github.com/kubev2v/flowharness/internal/images"
	"github.com/kubev2v/flowharness/internal/models"
	"github.com/kubev2v/flowharness/pkg/scheduler"
)

func NewImagesCommand(cfg *config.Configuration) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "images",
		Short: "Build or remove the images the scenarios use",
	}
	registerEngineFlags(cmd.PersistentFlags(), cfg)
	registerAgentFlags(cmd.PersistentFlags(), cfg)
	cmd.PersistentFlags().StringVar(&cfg.Harness.ResourceDir, "resource-dir", cfg.Harness.ResourceDir, "Directory of host resources bound into containers")

	cmd.AddCommand(newImagesBuildCommand(cfg), newImagesCleanCommand(cfg), newImagesListCommand(cfg))
	return cmd
}

func newImagesBuildCommand(cfg *config.Configuration) *cobra.Command {
	var workers int
	cmd := &cobra.Command{
		Use:   "build [engines...]",
		Short: "Build images ahead of a run, every known engine by default",
		RunE: func(cmd *cobra.Command, args []string) error {
			imgs, err := newImageStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			return buildImages(cmd.Context(), imgs, engineArgs(imgs, args), workers)
		},
	}
	cmd.Flags().IntVar(&workers, "workers", 2, "Number of concurrent builds")
	return cmd
}

func newImagesCleanCommand(cfg *config.Configuration) *cobra.Command {
	return &cobra.Command{
		Use:   "clean [engines...]",
		Short: "Remove built images, every known engine by default",
		RunE: func(cmd *cobra.Command, args []string) error {
			imgs, err := newImageStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			var errs []error
			for _, engine := range engineArgs(imgs, args) {
				if err := imgs.Remove(cmd.Context(), engine); err != nil {
					errs = append(errs, fmt.Errorf("%s: %w", engine, err))
				}
			}
			return errors.Join(errs...)
		},
	}
}

func newImagesListCommand(cfg *config.Configuration) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the engines with an image recipe",
		RunE: func(cmd *cobra.Command, _ []string) error {
			imgs := images.NewStore(nil, cfg.Agent, cfg.Harness.ResourceDir)
			for _, engine := range imgs.Engines() {
				fmt.Fprintln(cmd.OutOrStdout(), engine)
			}
			return nil
		},
	}
}

func newImageStore(ctx context.Context, cfg *config.Configuration) (*images.Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	rt, err := container.NewRuntime(ctx, cfg.Engine)
	if err != nil {
		return nil, err
	}
	return images.NewStore(rt, cfg.Agent, cfg.Harness.ResourceDir), nil
}

func engineArgs(imgs *images.Store, args []string) []string {
	if len(args) > 0 {
		return args
	}
	return imgs.Engines()
}

// buildImages builds the engines on a bounded worker pool and reports each outcome.
func buildImages(ctx context.Context, imgs *images.Store, engines []string, workers int) error {
	log := zap.S().Named("images")
	sched := scheduler.NewScheduler[string](workers)
	defer sched.Close()

	futures := make([]*models.Future[models.Result[string]], 0, len(engines))
	for _, engine := range engines {
		futures = append(futures, sched.AddWork(func(ctx context.Context) (string, error) {
			return imgs.GetImage(ctx, engine)
		}))
	}

	ok := color.New(color.FgGreen)
	ko := color.New(color.FgRed, color.Bold)
	var errs []error
	for i, f := range futures {
		res, err := f.Wait(ctx)
		if err == nil {
			err = res.Err
		}
		if err != nil {
			log.Errorw("image build failed", "engine", engines[i], "error", err)
			fmt.Fprintf(os.Stdout, "%s %s: %v\n", ko.Sprint("FAILED"), engines[i], err)
			errs = append(errs, fmt.Errorf("%s: %w", engines[i], err))
			continue
		}
		fmt.Fprintf(os.Stdout, "%s %s: %s\n", ok.Sprint("BUILT "), engines[i], res.Data)
	}
	return errors.Join(errs...)
}
