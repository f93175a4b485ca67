package scenario

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kubev2v/flowharness/internal/container"
	"github.com/kubev2v/flowharness/internal/infra"
	"github.com/kubev2v/flowharness/internal/models"
	"github.com/kubev2v/flowharness/pkg/certificates"
)

const teardownTimeout = 2 * time.Minute

// Before sets up a scenario of featureFile: a fresh <id>-net network,
// an empty service registry and a new root CA. astNodeIDs are the gherkin
// nodes the scenario was compiled from and locate it in an indexed feature.
func (h *Harness) Before(ctx context.Context, featureFile, name string, astNodeIDs ...string) (*Context, error) {
	id := ScenarioID(featureFile, h.scenarioIndex(featureFile, astNodeIDs))
	log := zap.S().Named("scenario").With("scenario_id", id)
	log.Infow("running scenario", "feature", featureFile, "name", name)

	network := id + "-net"
	if err := h.Runtime.RemoveNetwork(ctx, network); err != nil {
		log.Warnw("failed to remove stale network", "network", network, "error", err)
	}
	if err := h.Runtime.CreateNetwork(ctx, network); err != nil {
		return nil, err
	}

	ca, err := certificates.NewRootCA(time.Now().Add(rootCAValidity))
	if err != nil {
		return nil, fmt.Errorf("failed to create root ca: %w", err)
	}
	workDir, err := os.MkdirTemp("", "flowharness-"+id+"-")
	if err != nil {
		return nil, err
	}

	return &Context{
		Env: &infra.Env{
			ScenarioID:  id,
			Network:     network,
			Runtime:     h.Runtime,
			Images:      h.Images,
			RootCA:      ca,
			ResourceDir: h.Config.Harness.ResourceDir,
			Agent:       h.Config.Agent,
			NiFi:        h.Config.NiFi,
		},
		RunID:    h.RunID,
		Feature:  featureFile,
		Name:     name,
		Config:   h.Config,
		harness:  h,
		services: make(map[string]container.Service),
		started:  time.Now(),
		workDir:  workDir,
		log:      log,
	}, nil
}

// After collects logs, cleans up every service concurrently, stops the
// embedded C2 server, deletes the kind cluster and removes the network.
// The scenario outcome is recorded in the run journal.
func (h *Harness) After(ctx context.Context, sc *Context, scenarioErr error) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), teardownTimeout)
	defer cancel()

	var errs []error
	if err := h.record(ctx, sc, scenarioErr); err != nil {
		sc.log.Warnw("failed to record scenario", "error", err)
	}

	if h.Config.Harness.KeepContainers {
		sc.log.Infow("keeping containers", "network", sc.Network)
	} else {
		g, gctx := errgroup.WithContext(ctx)
		for _, svc := range sc.Services() {
			g.Go(func() error {
				return svc.CleanUp(gctx)
			})
		}
		errs = append(errs, g.Wait())
	}

	if sc.C2 != nil {
		sc.C2.Stop(ctx)
	}
	if sc.Kube != nil {
		errs = append(errs, sc.Kube.Delete(ctx))
	}
	if !h.Config.Harness.KeepContainers {
		errs = append(errs, h.Runtime.RemoveNetwork(ctx, sc.Network))
	}
	errs = append(errs, os.RemoveAll(sc.workDir))
	return errors.Join(errs...)
}

// Result is the outcome of the scenario.
func (c *Context) Result(scenarioErr error) models.ScenarioResult {
	r := models.ScenarioResult{
		ID:         c.ScenarioID,
		RunID:      c.RunID,
		Feature:    c.Feature,
		Name:       c.Name,
		Status:     models.ScenarioStatusPassed,
		StartedAt:  c.started,
		FinishedAt: time.Now(),
	}
	if scenarioErr != nil {
		r.Status = models.ScenarioStatusFailed
		r.Error = scenarioErr.Error()
	}
	return r
}

func (h *Harness) record(ctx context.Context, sc *Context, scenarioErr error) error {
	if h.Store == nil {
		return nil
	}
	if err := h.Store.Scenarios().Save(ctx, sc.Result(scenarioErr)); err != nil {
		return err
	}
	for _, svc := range sc.Services() {
		logs, err := svc.Logs(ctx)
		if err != nil {
			sc.log.Debugw("no logs collected", "service", svc.Name(), "error", err)
			continue
		}
		if err := h.Store.Logs().Save(ctx, models.ContainerLog{
			ScenarioID: sc.ScenarioID,
			RunID:      sc.RunID,
			Container:  svc.Name(),
			Logs:       logs,
		}); err != nil {
			return err
		}
	}
	return nil
}

// StartRun records the beginning of the run in the journal.
func (h *Harness) StartRun(ctx context.Context) error {
	if h.Store == nil {
		return nil
	}
	return h.Store.Runs().Create(ctx, &models.Run{
		ID:         h.RunID,
		StartedAt:  time.Now(),
		Engine:     h.Runtime.Engine(),
		AgentImage: h.Config.Agent.AgentImage(),
		Tags:       h.Config.Harness.Tags,
	})
}

// FinishRun stores the exit status of the run.
func (h *Harness) FinishRun(ctx context.Context, status int) error {
	if h.Store == nil {
		return nil
	}
	return h.Store.Runs().Finish(ctx, h.RunID, time.Now(), status)
}
