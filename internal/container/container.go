package container

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kubev2v/flowharness/internal/models"
	srvErrors "github.com/kubev2v/flowharness/pkg/errors"
	"github.com/kubev2v/flowharness/pkg/wait"
)

// Service is a scenario container: the agent, NiFi, a broker or an emulator.
type Service interface {
	Name() string
	Deploy(ctx context.Context) error
	Logs(ctx context.Context) (string, error)
	Exited(ctx context.Context) bool
	CleanUp(ctx context.Context) error
}

// Container is the base of every scenario service. Services embed it and
// fill in image, command and files before Deploy.
type Container struct {
	name    string
	image   string
	network string

	Entrypoint []string
	Command    []string
	Env        map[string]string
	Aliases    []string
	Ports      map[int]int
	User       string
	Files      []File
	Dirs       []Directory
	HostFiles  []HostFile

	runtime Runtime
	log     *zap.SugaredLogger

	mu    sync.Mutex
	id    string
	state models.ContainerState
}

func New(rt Runtime, name, image, network string) *Container {
	return &Container{
		name:    name,
		image:   image,
		network: network,
		Env:     make(map[string]string),
		Ports:   make(map[int]int),
		runtime: rt,
		log:     zap.S().Named("container").With("container", name),
		state:   models.ContainerStateCreated,
	}
}

func (c *Container) Name() string { return c.name }
func (c *Container) Image() string { return c.image }
func (c *Container) Network() string { return c.network }
func (c *Container) Runtime() Runtime { return c.runtime }

// SetImage replaces the image. It has no effect once deployed.
func (c *Container) SetImage(image string) {
	c.image = image
}

func (c *Container) ID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

func (c *Container) State() models.ContainerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Container) transition(next models.ContainerState) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.state.CanTransition(next) {
		return srvErrors.NewInvalidStateError(string(c.state), string(next))
	}
	c.log.Debugw("state changed", "from", c.state, "to", next)
	c.state = next
	return nil
}

// AddFile injects content at dir/name when the container is deployed.
func (c *Container) AddFile(dir, name, content string) {
	c.Files = append(c.Files, File{Path: dir, Name: name, Content: []byte(content)})
}

// AddDirectory injects a set of files under dir.
func (c *Container) AddDirectory(dir string, files map[string]string) {
	for i := range c.Dirs {
		if c.Dirs[i].Path == dir {
			for k, v := range files {
				c.Dirs[i].Files[k] = v
			}
			return
		}
	}
	d := Directory{Path: dir, Files: make(map[string]string, len(files))}
	for k, v := range files {
		d.Files[k] = v
	}
	c.Dirs = append(c.Dirs, d)
}

func (c *Container) AddHostFile(hostPath, containerPath string) {
	c.HostFiles = append(c.HostFiles, HostFile{HostPath: hostPath, ContainerPath: containerPath})
}

// Spec assembles the engine request from the container fields.
func (c *Container) Spec() *Spec {
	s := NewSpec(c.name, c.image).
		WithEnvVars(c.Env).
		WithNetwork(c.network, c.Aliases...).
		WithUser(c.User)
	if len(c.Entrypoint) > 0 {
		s.WithEntrypoint(c.Entrypoint...)
	}
	if len(c.Command) > 0 {
		s.WithCmd(c.Command...)
	}
	for host, ctr := range c.Ports {
		s.WithPort(host, ctr)
	}
	for _, f := range c.Files {
		s.WithFile(f)
	}
	for _, d := range c.Dirs {
		names := make([]string, 0, len(d.Files))
		for name := range d.Files {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			s.WithFile(File{Path: d.Path, Name: name, Content: []byte(d.Files[name])})
		}
	}
	for _, hf := range c.HostFiles {
		s.WithBindMount(hf.HostPath, hf.ContainerPath)
	}
	return s
}

// Deploy creates the container with its files and starts it.
func (c *Container) Deploy(ctx context.Context) error {
	if c.State() != models.ContainerStateCreated {
		return c.Start(ctx)
	}

	c.log.Infow("deploying container", "image", c.image, "network", c.network)
	id, err := c.runtime.Create(ctx, c.Spec())
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.id = id
	c.mu.Unlock()
	if err := c.transition(models.ContainerStateDeployed); err != nil {
		return err
	}
	return c.Start(ctx)
}

// Start starts a deployed, stopped or exited container.
func (c *Container) Start(ctx context.Context) error {
	if c.State() == models.ContainerStateRunning {
		return nil
	}
	if !c.State().CanTransition(models.ContainerStateRunning) {
		return srvErrors.NewInvalidStateError(string(c.State()), string(models.ContainerStateRunning))
	}
	if err := c.runtime.Start(ctx, c.ID()); err != nil {
		return err
	}
	return c.transition(models.ContainerStateRunning)
}

func (c *Container) Stop(ctx context.Context) error {
	switch c.State() {
	case models.ContainerStateCreated, models.ContainerStateStopped:
		return nil
	}
	c.log.Infow("stopping container")
	if err := c.runtime.Stop(ctx, c.ID(), defaultStopTimeout); err != nil {
		return err
	}
	return c.transition(models.ContainerStateStopped)
}

func (c *Container) Restart(ctx context.Context) error {
	if err := c.Stop(ctx); err != nil {
		return err
	}
	return c.Start(ctx)
}

// Kill stops the container without a grace period.
func (c *Container) Kill(ctx context.Context) error {
	if c.State() == models.ContainerStateCreated {
		return nil
	}
	if err := c.runtime.Stop(ctx, c.ID(), time.Second); err != nil {
		return err
	}
	return c.transition(models.ContainerStateStopped)
}

func (c *Container) Logs(ctx context.Context) (string, error) {
	if c.ID() == "" {
		return "", nil
	}
	return c.runtime.Logs(ctx, c.ID())
}

func (c *Container) Exec(ctx context.Context, cmd ...string) (ExecResult, error) {
	if c.ID() == "" {
		return ExecResult{}, srvErrors.NewContainerNotFoundError(c.name)
	}
	return c.runtime.Exec(ctx, c.ID(), cmd...)
}

// Run executes cmd and fails with a CommandError on a non-zero exit code.
func (c *Container) Run(ctx context.Context, cmd ...string) (string, error) {
	res, err := c.Exec(ctx, cmd...)
	return CheckExec(cmd, res, err)
}

// Exited reports whether the process inside the container has ended.
// A running container whose engine reports it exited moves to the exited state.
func (c *Container) Exited(ctx context.Context) bool {
	_, exited := c.exitStatus(ctx)
	return exited
}

// ExitCode returns the exit code of an exited container.
func (c *Container) ExitCode(ctx context.Context) (int, bool) {
	return c.exitStatus(ctx)
}

func (c *Container) exitStatus(ctx context.Context) (int, bool) {
	if c.ID() == "" {
		return 0, false
	}
	status, err := c.runtime.Status(ctx, c.ID())
	if err != nil {
		c.log.Debugw("failed to get container status", "error", err)
		return 0, false
	}
	if status.Running {
		return 0, false
	}
	if c.State() == models.ContainerStateRunning {
		_ = c.transition(models.ContainerStateExited)
	}
	return status.ExitCode, true
}

// CleanUp stops and removes the container. Calling it again is a no-op.
func (c *Container) CleanUp(ctx context.Context) error {
	id := c.ID()
	if id == "" {
		return nil
	}
	c.log.Debugw("cleaning up container")
	if err := c.runtime.Remove(ctx, id); err != nil {
		return err
	}
	c.mu.Lock()
	c.id = ""
	c.state = models.ContainerStateCreated
	c.mu.Unlock()
	return nil
}

// bail stops a wait as soon as the container is no longer running.
func (c *Container) bail(ctx context.Context) error {
	if code, exited := c.exitStatus(ctx); exited {
		return srvErrors.NewContainerExitedError(c.name, code)
	}
	return nil
}

// WaitFor polls cond with the same exit detection as the log waits.
func (c *Container) WaitFor(ctx context.Context, name string, timeout time.Duration, cond wait.Condition, opts ...wait.Option) error {
	opts = append([]wait.Option{wait.WithName(c.name + ": " + name), wait.WithBail(c.bail)}, opts...)
	return wait.ForCondition(ctx, timeout, cond, opts...)
}

// WaitForLogMatch polls the logs until match accepts them.
func (c *Container) WaitForLogMatch(ctx context.Context, name string, timeout time.Duration, match func(logs string) bool, opts ...wait.Option) error {
	cond := func(ctx context.Context) (bool, error) {
		logs, err := c.Logs(ctx)
		if err != nil {
			return false, err
		}
		return match(logs), nil
	}
	return c.WaitFor(ctx, name, timeout, cond, opts...)
}

// WaitForLog waits until every text appears in the logs. It gives up early if the container exits.
func (c *Container) WaitForLog(ctx context.Context, timeout time.Duration, texts ...string) error {
	return c.WaitForLogMatch(ctx, fmt.Sprintf("log contains %q", texts), timeout, func(logs string) bool {
		for _, t := range texts {
			if !strings.Contains(logs, t) {
				return false
			}
		}
		return true
	})
}

// WaitForLogCount waits until text appears at least count times in the logs.
func (c *Container) WaitForLogCount(ctx context.Context, timeout time.Duration, text string, count int) error {
	return c.WaitForLogMatch(ctx, fmt.Sprintf("log contains %q %d times", text, count), timeout, func(logs string) bool {
		return strings.Count(logs, text) >= count
	})
}

// WaitForLogRegex waits until the pattern matches the logs.
func (c *Container) WaitForLogRegex(ctx context.Context, timeout time.Duration, pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("invalid log pattern %q: %w", pattern, err)
	}
	return c.WaitForLogMatch(ctx, fmt.Sprintf("log matches %q", pattern), timeout, re.MatchString)
}

// ReadFile returns the content of a file inside the container.
func (c *Container) ReadFile(ctx context.Context, file string) (string, error) {
	return c.Run(ctx, "cat", file)
}

// FileContents returns the contents of every regular file directly under dir.
func (c *Container) FileContents(ctx context.Context, dir string) ([]string, error) {
	names, err := c.ListFiles(ctx, dir)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(names))
	for _, name := range names {
		content, err := c.ReadFile(ctx, path.Join(dir, name))
		if err != nil {
			return nil, err
		}
		out = append(out, content)
	}
	return out, nil
}

// ListFiles returns the names of the regular files directly under dir.
func (c *Container) ListFiles(ctx context.Context, dir string) ([]string, error) {
	out, err := c.Run(ctx, "find", dir, "-maxdepth", "1", "-type", "f")
	if err != nil {
		return nil, err
	}
	var names []string
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			names = append(names, path.Base(line))
		}
	}
	sort.Strings(names)
	return names, nil
}
