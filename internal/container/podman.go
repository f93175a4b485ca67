package container

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/containers/buildah/define"
	"github.com/containers/podman/v5/pkg/api/handlers"
	"github.com/containers/podman/v5/pkg/bindings"
	"github.com/containers/podman/v5/pkg/bindings/containers"
	"github.com/containers/podman/v5/pkg/bindings/images"
	"github.com/containers/podman/v5/pkg/bindings/network"
	"github.com/containers/podman/v5/pkg/domain/entities"
	"github.com/containers/podman/v5/pkg/specgen"
	specs "github.com/opencontainers/runtime-spec/specs-go"
	nettypes "go.podman.io/common/libnetwork/types"
	"go.uber.org/zap"

	"github.com/kubev2v/flowharness/internal/models"
)

// PodmanRuntime drives containers through the podman REST socket.
type PodmanRuntime struct {
	conn context.Context
	log  *zap.SugaredLogger
}

func NewPodmanRuntime(ctx context.Context, socket string) (*PodmanRuntime, error) {
	conn, err := bindings.NewConnection(ctx, socket)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to podman: %w", err)
	}
	return &PodmanRuntime{conn: conn, log: zap.S().Named("podman")}, nil
}

func (p *PodmanRuntime) Engine() string { return EnginePodman }

// bindings carry the connection in the context; cancellation comes from the caller.
func (p *PodmanRuntime) withConn(ctx context.Context) (context.Context, context.CancelFunc) {
	conn, cancel := context.WithCancel(p.conn)
	stop := context.AfterFunc(ctx, cancel)
	return conn, func() {
		stop()
		cancel()
	}
}

func (p *PodmanRuntime) HostAlias() string { return podmanHostAlias }

func (p *PodmanRuntime) CreateNetwork(ctx context.Context, name string) error {
	conn, cancel := p.withConn(ctx)
	defer cancel()

	exists, err := network.Exists(conn, name, nil)
	if err != nil {
		return fmt.Errorf("failed to check network: %w", err)
	}
	if exists {
		p.log.Debugw("removing stale network", "network", name)
		if _, err := network.Remove(conn, name, new(network.RemoveOptions).WithForce(true)); err != nil {
			return fmt.Errorf("failed to remove stale network %s: %w", name, err)
		}
	}
	if _, err := network.Create(conn, &nettypes.Network{Name: name}); err != nil {
		return fmt.Errorf("failed to create network %s: %w", name, err)
	}
	return nil
}

func (p *PodmanRuntime) RemoveNetwork(ctx context.Context, name string) error {
	conn, cancel := p.withConn(ctx)
	defer cancel()

	exists, err := network.Exists(conn, name, nil)
	if err != nil {
		return fmt.Errorf("failed to check network: %w", err)
	}
	if !exists {
		return nil
	}
	if _, err := network.Remove(conn, name, nil); err != nil {
		return fmt.Errorf("failed to remove network %s: %w", name, err)
	}
	return nil
}

func (p *PodmanRuntime) Create(ctx context.Context, spec *Spec) (string, error) {
	conn, cancel := p.withConn(ctx)
	defer cancel()

	s := specgen.NewSpecGenerator(spec.Image(), false)
	s.Name = spec.Name()
	s.Entrypoint = spec.Entrypoint()
	s.Command = spec.Cmd()
	s.Env = spec.EnvVars()
	s.User = spec.User()

	if spec.Network() != "" {
		s.NetNS = specgen.Namespace{NSMode: specgen.Bridge}
		s.Networks = map[string]nettypes.PerNetworkOptions{
			spec.Network(): {Aliases: spec.Aliases()},
		}
	}

	if len(spec.Ports()) > 0 {
		s.PortMappings = make([]nettypes.PortMapping, 0, len(spec.Ports()))
		for hostPort, containerPort := range spec.Ports() {
			s.PortMappings = append(s.PortMappings, nettypes.PortMapping{
				HostPort:      uint16(hostPort),
				ContainerPort: uint16(containerPort),
				Protocol:      "tcp",
			})
		}
	}

	for _, b := range spec.Binds() {
		s.Mounts = append(s.Mounts, specs.Mount{
			Type:        "bind",
			Source:      b.HostPath,
			Destination: b.ContainerPath,
			Options:     []string{"rbind"},
		})
	}

	createResponse, err := containers.CreateWithSpec(conn, s, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create container %s: %w", spec.Name(), err)
	}

	copyFiles := func() error {
		if len(spec.Files()) == 0 {
			return nil
		}
		archive, err := tarFiles(spec.Files())
		if err != nil {
			return err
		}
		copyFn, err := containers.CopyFromArchive(conn, createResponse.ID, "/", bytes.NewReader(archive))
		if err != nil {
			return fmt.Errorf("failed to copy files into %s: %w", spec.Name(), err)
		}
		if err := copyFn(); err != nil {
			return fmt.Errorf("failed to copy files into %s: %w", spec.Name(), err)
		}
		return nil
	}
	if err := provision(ctx, createResponse.ID, copyFiles, p.Remove); err != nil {
		return "", err
	}

	return createResponse.ID, nil
}

func (p *PodmanRuntime) Start(ctx context.Context, id string) error {
	conn, cancel := p.withConn(ctx)
	defer cancel()

	if err := containers.Start(conn, id, nil); err != nil {
		return fmt.Errorf("failed to start container: %w", err)
	}
	return nil
}

func (p *PodmanRuntime) Stop(ctx context.Context, id string, timeout time.Duration) error {
	conn, cancel := p.withConn(ctx)
	defer cancel()

	if timeout <= 0 {
		timeout = defaultStopTimeout
	}
	opts := new(containers.StopOptions).WithTimeout(uint(timeout.Seconds()))
	if err := containers.Stop(conn, id, opts); err != nil {
		return fmt.Errorf("failed to stop container: %w", err)
	}
	return nil
}

func (p *PodmanRuntime) Remove(ctx context.Context, id string) error {
	conn, cancel := p.withConn(ctx)
	defer cancel()

	if _, err := containers.Remove(conn, id, new(containers.RemoveOptions).WithForce(true)); err != nil {
		return fmt.Errorf("failed to remove container: %w", err)
	}
	return nil
}

func (p *PodmanRuntime) Status(ctx context.Context, id string) (models.ContainerStatus, error) {
	conn, cancel := p.withConn(ctx)
	defer cancel()

	data, err := containers.Inspect(conn, id, nil)
	if err != nil {
		return models.ContainerStatus{}, fmt.Errorf("failed to inspect container: %w", err)
	}
	return models.ContainerStatus{
		Running:  data.State.Running,
		Exited:   data.State.Status == "exited",
		ExitCode: int(data.State.ExitCode),
	}, nil
}

func (p *PodmanRuntime) Logs(ctx context.Context, id string) (string, error) {
	conn, cancel := p.withConn(ctx)
	defer cancel()

	var (
		lines []string
		wg    sync.WaitGroup
	)
	out := make(chan string)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for line := range out {
			lines = append(lines, line)
		}
	}()

	opts := new(containers.LogOptions).WithStdout(true).WithStderr(true)
	err := containers.Logs(conn, id, opts, out, out)
	close(out)
	wg.Wait()
	if err != nil {
		return "", fmt.Errorf("failed to get logs: %w", err)
	}
	return strings.Join(lines, "\n"), nil
}

func (p *PodmanRuntime) Exec(ctx context.Context, id string, cmd ...string) (ExecResult, error) {
	conn, cancel := p.withConn(ctx)
	defer cancel()

	execConfig := new(handlers.ExecCreateConfig)
	execConfig.AttachStdout = true
	execConfig.AttachStderr = true
	execConfig.Cmd = cmd

	sessionID, err := containers.ExecCreate(conn, id, execConfig)
	if err != nil {
		return ExecResult{}, fmt.Errorf("failed to create exec session: %w", err)
	}

	var output bytes.Buffer
	opts := new(containers.ExecStartAndAttachOptions).
		WithOutputStream(&output).
		WithErrorStream(&output).
		WithAttachOutput(true).
		WithAttachError(true)
	if err := containers.ExecStartAndAttach(conn, sessionID, opts); err != nil {
		return ExecResult{}, fmt.Errorf("failed to run exec session: %w", err)
	}

	inspect, err := containers.ExecInspect(conn, sessionID, nil)
	if err != nil {
		return ExecResult{}, fmt.Errorf("failed to inspect exec session: %w", err)
	}
	return ExecResult{ExitCode: inspect.ExitCode, Output: output.String()}, nil
}

func (p *PodmanRuntime) Wait(ctx context.Context, id string) (int, error) {
	conn, cancel := p.withConn(ctx)
	defer cancel()

	exitCode, err := containers.Wait(conn, id, nil)
	if err != nil {
		return -1, fmt.Errorf("failed to wait for container: %w", err)
	}
	return int(exitCode), nil
}

func (p *PodmanRuntime) BuildImage(ctx context.Context, req BuildRequest) error {
	conn, cancel := p.withConn(ctx)
	defer cancel()

	dir, err := os.MkdirTemp("", "flowharness-build-")
	if err != nil {
		return fmt.Errorf("failed to create build context: %w", err)
	}
	defer os.RemoveAll(dir)

	dockerfile := filepath.Join(dir, "Dockerfile")
	if err := os.WriteFile(dockerfile, []byte(req.Dockerfile), 0o644); err != nil {
		return fmt.Errorf("failed to write Dockerfile: %w", err)
	}
	for name, content := range req.ContextFiles {
		target := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("failed to create build context: %w", err)
		}
		if err := os.WriteFile(target, content, 0o644); err != nil {
			return fmt.Errorf("failed to write %s to build context: %w", name, err)
		}
	}

	var out bytes.Buffer
	opts := entities.BuildOptions{
		BuildOptions: define.BuildOptions{
			ContextDirectory:       dir,
			Output:                 req.Tag,
			RemoveIntermediateCtrs: true,
			Out:                    &out,
			Err:                    &out,
			ReportWriter:           &out,
		},
	}
	if _, err := images.Build(conn, []string{dockerfile}, opts); err != nil {
		p.log.Errorw("image build failed", "tag", req.Tag, "output", out.String())
		return fmt.Errorf("failed to build image %s: %w", req.Tag, err)
	}
	p.log.Debugw("image built", "tag", req.Tag)
	return nil
}

func (p *PodmanRuntime) RemoveImage(ctx context.Context, tag string) error {
	conn, cancel := p.withConn(ctx)
	defer cancel()

	_, errs := images.Remove(conn, []string{tag}, new(images.RemoveOptions).WithForce(true))
	if len(errs) > 0 {
		return fmt.Errorf("failed to remove image %s: %w", tag, errs[0])
	}
	return nil
}

func (p *PodmanRuntime) ImageExists(ctx context.Context, tag string) (bool, error) {
	conn, cancel := p.withConn(ctx)
	defer cancel()

	exists, err := images.Exists(conn, tag, nil)
	if err != nil {
		return false, fmt.Errorf("failed to check image %s: %w", tag, err)
	}
	return exists, nil
}

func (p *PodmanRuntime) ImageHistory(ctx context.Context, tag string) ([]string, error) {
	conn, cancel := p.withConn(ctx)
	defer cancel()

	layers, err := images.History(conn, tag, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to read history of %s: %w", tag, err)
	}
	out := make([]string, 0, len(layers))
	for _, l := range layers {
		out = append(out, l.CreatedBy)
	}
	return out, nil
}

func (p *PodmanRuntime) TagImage(ctx context.Context, source, target string) error {
	conn, cancel := p.withConn(ctx)
	defer cancel()

	repo, tag := splitReference(target)
	if err := images.Tag(conn, source, tag, repo, nil); err != nil {
		return fmt.Errorf("failed to tag %s as %s: %w", source, target, err)
	}
	return nil
}

// splitReference splits "repo:tag" on the last colon after the final slash.
func splitReference(ref string) (string, string) {
	i := strings.LastIndex(ref, ":")
	if i < 0 || strings.Contains(ref[i:], "/") {
		return ref, "latest"
	}
	return ref[:i], ref[i+1:]
}
