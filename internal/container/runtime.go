package container

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kubev2v/flowharness/internal/config"
	"github.com/kubev2v/flowharness/internal/models"
	srvErrors "github.com/kubev2v/flowharness/pkg/errors"
)

const (
	EnginePodman = "podman"
	EngineDocker = "docker"

	defaultStopTimeout = 10 * time.Second

	podmanHostAlias = "host.containers.internal"
	dockerHostAlias = "host.docker.internal"
)

// ExecResult is the outcome of a command run inside a container.
type ExecResult struct {
	ExitCode int
	Output   string
}

// BuildRequest describes an image build. Dockerfile holds the file content;
// ContextFiles are written next to it in the build context.
type BuildRequest struct {
	Tag          string
	Dockerfile   string
	ContextFiles map[string][]byte
}

// Runtime is the container engine the harness drives.
type Runtime interface {
	Engine() string
	// HostAlias is the name under which containers reach the host.
	HostAlias() string

	CreateNetwork(ctx context.Context, name string) error
	RemoveNetwork(ctx context.Context, name string) error

	Create(ctx context.Context, spec *Spec) (string, error)
	Start(ctx context.Context, id string) error
	Stop(ctx context.Context, id string, timeout time.Duration) error
	Remove(ctx context.Context, id string) error
	Status(ctx context.Context, id string) (models.ContainerStatus, error)
	Logs(ctx context.Context, id string) (string, error)
	Exec(ctx context.Context, id string, cmd ...string) (ExecResult, error)
	Wait(ctx context.Context, id string) (int, error)

	BuildImage(ctx context.Context, req BuildRequest) error
	RemoveImage(ctx context.Context, tag string) error
	ImageExists(ctx context.Context, tag string) (bool, error)
	ImageHistory(ctx context.Context, tag string) ([]string, error)
	TagImage(ctx context.Context, source, target string) error
}

// NewRuntime connects to the engine selected in the configuration.
func NewRuntime(ctx context.Context, cfg config.Engine) (Runtime, error) {
	switch cfg.Kind {
	case EnginePodman:
		return NewPodmanRuntime(ctx, cfg.PodmanSocket)
	case EngineDocker:
		return NewDockerRuntime(ctx)
	default:
		return nil, srvErrors.NewUnknownOptionError("container engine", cfg.Kind)
	}
}

// RunOnce runs a short-lived container to completion and returns its exit code and output.
// The container is removed afterwards.
func RunOnce(ctx context.Context, rt Runtime, spec *Spec) (ExecResult, error) {
	log := zap.S().Named("container")

	id, err := rt.Create(ctx, spec)
	if err != nil {
		return ExecResult{}, err
	}
	defer func() {
		if err := rt.Remove(context.WithoutCancel(ctx), id); err != nil {
			log.Warnw("failed to remove one-off container", "name", spec.Name(), "error", err)
		}
	}()

	if err := rt.Start(ctx, id); err != nil {
		return ExecResult{}, err
	}
	exitCode, err := rt.Wait(ctx, id)
	if err != nil {
		return ExecResult{}, err
	}
	output, err := rt.Logs(ctx, id)
	if err != nil {
		return ExecResult{}, err
	}

	log.Debugw("one-off container finished", "name", spec.Name(), "image", spec.Image(), "exit_code", exitCode)
	return ExecResult{ExitCode: exitCode, Output: output}, nil
}

// CheckExec turns a non-zero exit code into a CommandError.
func CheckExec(cmd []string, res ExecResult, err error) (string, error) {
	if err != nil {
		return "", fmt.Errorf("failed to exec %v: %w", cmd, err)
	}
	if res.ExitCode != 0 {
		return res.Output, srvErrors.NewCommandError(cmd, res.ExitCode, res.Output)
	}
	return res.Output, nil
}
