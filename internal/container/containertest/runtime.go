// Package containertest provides an in-memory container.Runtime for tests.
package containertest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/kubev2v/flowharness/internal/container"
	"github.com/kubev2v/flowharness/internal/models"
	srvErrors "github.com/kubev2v/flowharness/pkg/errors"
)

// ExecFunc answers a command run in the named container.
type ExecFunc func(name string, cmd []string) container.ExecResult

// FakeContainer is the recorded state of one created container.
type FakeContainer struct {
	ID       string
	Spec     *container.Spec
	Running  bool
	Exited   bool
	ExitCode int
	Logs     []string
	Starts   int
	Removed  bool
}

type Runtime struct {
	mu sync.Mutex

	seq        int
	containers map[string]*FakeContainer
	byName     map[string]string

	Networks   map[string]bool
	Images     map[string][]string
	Builds     []container.BuildRequest
	Execs      [][]string
	ExecFunc   ExecFunc
	CreateErr  error
	BuildErr   error
	StartLogs  map[string][]string
	OnceResult container.ExecResult
}

func NewRuntime() *Runtime {
	return &Runtime{
		containers: make(map[string]*FakeContainer),
		byName:     make(map[string]string),
		Networks:   make(map[string]bool),
		Images:     make(map[string][]string),
		StartLogs:  make(map[string][]string),
	}
}

func (r *Runtime) Engine() string { return "fake" }

func (r *Runtime) HostAlias() string { return "host.fake.internal" }

func (r *Runtime) CreateNetwork(_ context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Networks[name] = true
	return nil
}

func (r *Runtime) RemoveNetwork(_ context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.Networks, name)
	return nil
}

func (r *Runtime) Create(_ context.Context, spec *container.Spec) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.CreateErr != nil {
		return "", r.CreateErr
	}
	r.seq++
	id := fmt.Sprintf("fake-%d", r.seq)
	r.containers[id] = &FakeContainer{ID: id, Spec: spec}
	r.byName[spec.Name()] = id
	return id, nil
}

// get resolves an id or, like the real engines, a container name.
func (r *Runtime) get(id string) (*FakeContainer, error) {
	if byName, ok := r.byName[id]; ok {
		id = byName
	}
	c, ok := r.containers[id]
	if !ok || c.Removed {
		return nil, srvErrors.NewContainerNotFoundError(id)
	}
	return c, nil
}

func (r *Runtime) Start(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, err := r.get(id)
	if err != nil {
		return err
	}
	c.Running = true
	c.Exited = false
	c.Starts++
	c.Logs = append(c.Logs, r.StartLogs[c.Spec.Name()]...)
	return nil
}

func (r *Runtime) Stop(_ context.Context, id string, _ time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, err := r.get(id)
	if err != nil {
		return err
	}
	c.Running = false
	return nil
}

func (r *Runtime) Remove(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, err := r.get(id)
	if err != nil {
		return err
	}
	c.Running = false
	c.Removed = true
	return nil
}

func (r *Runtime) Status(_ context.Context, id string) (models.ContainerStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, err := r.get(id)
	if err != nil {
		return models.ContainerStatus{}, err
	}
	return models.ContainerStatus{Running: c.Running, Exited: c.Exited, ExitCode: c.ExitCode}, nil
}

func (r *Runtime) Logs(_ context.Context, id string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, err := r.get(id)
	if err != nil {
		return "", err
	}
	return strings.Join(c.Logs, "\n"), nil
}

func (r *Runtime) Exec(_ context.Context, id string, cmd ...string) (container.ExecResult, error) {
	r.mu.Lock()
	c, err := r.get(id)
	if err != nil {
		r.mu.Unlock()
		return container.ExecResult{}, err
	}
	r.Execs = append(r.Execs, cmd)
	fn := r.ExecFunc
	name := c.Spec.Name()
	r.mu.Unlock()

	if fn == nil {
		return container.ExecResult{}, nil
	}
	return fn(name, cmd), nil
}

func (r *Runtime) Wait(_ context.Context, id string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, err := r.get(id)
	if err != nil {
		return -1, err
	}
	c.Running = false
	c.Exited = true
	c.ExitCode = r.OnceResult.ExitCode
	if r.OnceResult.Output != "" {
		c.Logs = append(c.Logs, r.OnceResult.Output)
	}
	return c.ExitCode, nil
}

func (r *Runtime) BuildImage(_ context.Context, req container.BuildRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.BuildErr != nil {
		return r.BuildErr
	}
	r.Builds = append(r.Builds, req)
	r.Images[req.Tag] = []string{req.Dockerfile}
	return nil
}

func (r *Runtime) RemoveImage(_ context.Context, tag string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.Images, tag)
	return nil
}

func (r *Runtime) ImageExists(_ context.Context, tag string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.Images[tag]
	return ok, nil
}

func (r *Runtime) ImageHistory(_ context.Context, tag string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.Images[tag]
	if !ok {
		return nil, fmt.Errorf("image %s not found", tag)
	}
	return h, nil
}

func (r *Runtime) TagImage(_ context.Context, source, target string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.Images[source]
	if !ok {
		return fmt.Errorf("image %s not found", source)
	}
	r.Images[target] = h
	return nil
}

// Container returns the last container created under name.
func (r *Runtime) Container(name string) (*FakeContainer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byName[name]
	if !ok {
		return nil, false
	}
	return r.containers[id], true
}

// AppendLogs adds lines to the logs of the named container.
func (r *Runtime) AppendLogs(name string, lines ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.byName[name]; ok {
		r.containers[id].Logs = append(r.containers[id].Logs, lines...)
	}
}

// Exit marks the named container as exited with code.
func (r *Runtime) Exit(name string, code int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.byName[name]; ok {
		c := r.containers[id]
		c.Running = false
		c.Exited = true
		c.ExitCode = code
	}
}

// File returns the content injected at fullPath into the named container.
func (r *Runtime) File(name, fullPath string) (string, bool) {
	c, ok := r.Container(name)
	if !ok {
		return "", false
	}
	for _, f := range c.Spec.Files() {
		if f.FullPath() == fullPath {
			return string(f.Content), true
		}
	}
	return "", false
}
