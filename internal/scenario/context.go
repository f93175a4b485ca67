// Package scenario holds the state of one running scenario: its id, network,
// services, and the optional embedded C2 server and kind cluster. The
// Before and After hooks create and tear that state down.
package scenario

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kubev2v/flowharness/internal/c2"
	"github.com/kubev2v/flowharness/internal/config"
	"github.com/kubev2v/flowharness/internal/container"
	"github.com/kubev2v/flowharness/internal/images"
	"github.com/kubev2v/flowharness/internal/infra"
	"github.com/kubev2v/flowharness/internal/kube"
	"github.com/kubev2v/flowharness/internal/store"
	"github.com/kubev2v/flowharness/pkg/certificates"
	srvErrors "github.com/kubev2v/flowharness/pkg/errors"
)

const (
	idPlaceholder  = "${scenario_id}"
	rootCAValidity = 365 * 24 * time.Hour
)

// Harness is what outlives a single scenario.
type Harness struct {
	Config  *config.Configuration
	Runtime container.Runtime
	Images  *images.Store
	// Store is the run journal. Nil disables journaling.
	Store *store.Store
	RunID uuid.UUID

	mu        sync.Mutex
	positions map[string]int
	started   map[string]int
}

func NewHarness(cfg *config.Configuration, rt container.Runtime, imgs *images.Store, st *store.Store) *Harness {
	return &Harness{
		Config:  cfg,
		Runtime: rt,
		Images:  imgs,
		Store:   st,
		RunID:     uuid.New(),
		positions: make(map[string]int),
		started:   make(map[string]int),
	}
}

// ScenarioID is <feature file base name>-<zero based position of the scenario in the feature>.
func ScenarioID(featureFile string, index int) string {
	base := filepath.Base(featureFile)
	if i := strings.Index(base, "."); i >= 0 {
		base = base[:i]
	}
	return fmt.Sprintf("%s-%d", base, index)
}

// Context is the state of the running scenario.
type Context struct {
	*infra.Env

	RunID   uuid.UUID
	Feature string
	Name    string
	Config  *config.Configuration

	C2   *c2.Server
	Kube *kube.Cluster

	harness  *Harness
	services map[string]container.Service
	order    []string
	started  time.Time
	workDir  string
	log      *zap.SugaredLogger
}

// InjectScenarioID replaces every ${scenario_id} in text.
func (c *Context) InjectScenarioID(text string) string {
	return strings.ReplaceAll(text, idPlaceholder, c.ScenarioID)
}

// Add registers a service under name, replacing an earlier one.
func (c *Context) Add(name string, svc container.Service) {
	if _, ok := c.services[name]; !ok {
		c.order = append(c.order, name)
	}
	c.services[name] = svc
}

func (c *Context) Get(name string) (container.Service, error) {
	svc, ok := c.services[name]
	if !ok {
		return nil, srvErrors.NewContainerNotFoundError(name)
	}
	return svc, nil
}

// Services returns the registered services in registration order.
func (c *Context) Services() []container.Service {
	out := make([]container.Service, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.services[name])
	}
	return out
}

// DeployAll deploys every service in registration order.
func (c *Context) DeployAll(ctx context.Context) error {
	for _, svc := range c.Services() {
		if err := c.Deploy(ctx, svc); err != nil {
			return err
		}
	}
	return nil
}

// Deploy starts a service and attaches its log to a failure.
func (c *Context) Deploy(ctx context.Context, svc container.Service) error {
	err := svc.Deploy(ctx)
	if err == nil {
		return nil
	}
	if logs, logErr := svc.Logs(ctx); logErr == nil && logs != "" {
		c.log.Infow("service failed to start", "service", svc.Name(), "logs", logs)
	}
	return fmt.Errorf("failed to deploy %s: %w", svc.Name(), err)
}

func asMinifi(svc container.Service) (*infra.MinifiContainer, bool) {
	switch m := svc.(type) {
	case *infra.MinifiContainer:
		return m, true
	case *infra.MinifiAsPod:
		return m.MinifiContainer, true
	default:
		return nil, false
	}
}

// GetMinifiContainer returns the agent registered under name.
func (c *Context) GetMinifiContainer(name string) (*infra.MinifiContainer, error) {
	svc, err := c.Get(name)
	if err != nil {
		return nil, err
	}
	m, ok := asMinifi(svc)
	if !ok {
		return nil, fmt.Errorf("container %s is not a minifi agent", name)
	}
	return m, nil
}

// GetOrCreateMinifiContainer returns the agent registered under name, creating it first if needed.
func (c *Context) GetOrCreateMinifiContainer(name string) *infra.MinifiContainer {
	if svc, ok := c.services[name]; ok {
		if m, ok := asMinifi(svc); ok {
			return m
		}
	}
	m := infra.NewMinifiContainer(c.Env, name)
	c.Add(name, m)
	return m
}

func (c *Context) GetOrCreateDefaultMinifiContainer() *infra.MinifiContainer {
	return c.GetOrCreateMinifiContainer(infra.DefaultMinifiName)
}

// C2BaseURL is where agents reach the C2 server of the scenario: the
// embedded server through the host alias or the C2 server container.
func (c *Context) C2BaseURL(ssl bool) string {
	scheme := "http"
	if ssl {
		scheme = "https"
	}
	if c.Config.C2.Embedded {
		return fmt.Sprintf("%s://%s:%d", scheme, c.Runtime.HostAlias(), c.Config.C2.Port)
	}
	return fmt.Sprintf("%s://%s:%d", scheme, c.ServiceName(infra.C2ServerService), infra.C2ServerPort)
}

// StartEmbeddedC2 starts the in-process C2 server once per scenario.
func (c *Context) StartEmbeddedC2(ctx context.Context, ssl bool) (*c2.Server, error) {
	if c.C2 != nil {
		return c.C2, nil
	}
	var kp *certificates.KeyPair
	if ssl {
		var err error
		if kp, err = c.ServerCert(c.Runtime.HostAlias()); err != nil {
			return nil, err
		}
	}
	srv, err := c2.NewServer(c.Config.C2.Port, kp)
	if err != nil {
		return nil, err
	}
	if err := srv.Start(ctx); err != nil {
		return nil, err
	}
	c.C2 = srv
	return srv, nil
}

// KubeCluster creates the kind cluster of the scenario on first use.
func (c *Context) KubeCluster(ctx context.Context) (*kube.Cluster, error) {
	if c.Kube != nil {
		return c.Kube, nil
	}
	dir, err := os.MkdirTemp(c.workDir, "kind-")
	if err != nil {
		return nil, err
	}
	cluster := kube.NewCluster(c.Runtime, c.ResourceDir, dir)
	if err := cluster.Prepare(ctx); err != nil {
		return nil, err
	}
	if err := cluster.Delete(ctx); err != nil {
		c.log.Debugw("no stale kind cluster removed", "error", err)
	}
	if err := cluster.Create(ctx); err != nil {
		return nil, err
	}
	c.Kube = cluster
	return cluster, nil
}
