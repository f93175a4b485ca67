package container

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	cerrdefs "github.com/containerd/errdefs"
	dcontainer "github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	dnetwork "github.com/docker/docker/api/types/network"
	"github.com/testcontainers/testcontainers-go"
	tcexec "github.com/testcontainers/testcontainers-go/exec"
	"go.uber.org/zap"

	"github.com/kubev2v/flowharness/internal/models"
	srvErrors "github.com/kubev2v/flowharness/pkg/errors"
)

// DockerRuntime drives containers through the docker engine with testcontainers.
type DockerRuntime struct {
	client   *testcontainers.DockerClient
	provider *testcontainers.DockerProvider
	log      *zap.SugaredLogger

	mu         sync.Mutex
	containers map[string]testcontainers.Container
}

func NewDockerRuntime(ctx context.Context) (*DockerRuntime, error) {
	cli, err := testcontainers.NewDockerClientWithOpts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to docker: %w", err)
	}
	provider, err := testcontainers.NewDockerProvider()
	if err != nil {
		return nil, fmt.Errorf("failed to create docker provider: %w", err)
	}
	return &DockerRuntime{
		client:     cli,
		provider:   provider,
		log:        zap.S().Named("docker"),
		containers: make(map[string]testcontainers.Container),
	}, nil
}

func (d *DockerRuntime) Engine() string { return EngineDocker }

func (d *DockerRuntime) HostAlias() string { return dockerHostAlias }

func (d *DockerRuntime) CreateNetwork(ctx context.Context, name string) error {
	if _, err := d.client.NetworkInspect(ctx, name, dnetwork.InspectOptions{}); err == nil {
		d.log.Debugw("removing stale network", "network", name)
		if err := d.client.NetworkRemove(ctx, name); err != nil {
			return fmt.Errorf("failed to remove stale network %s: %w", name, err)
		}
	} else if !cerrdefs.IsNotFound(err) {
		return fmt.Errorf("failed to check network: %w", err)
	}

	if _, err := d.client.NetworkCreate(ctx, name, dnetwork.CreateOptions{Driver: "bridge"}); err != nil {
		return fmt.Errorf("failed to create network %s: %w", name, err)
	}
	return nil
}

func (d *DockerRuntime) RemoveNetwork(ctx context.Context, name string) error {
	if err := d.client.NetworkRemove(ctx, name); err != nil && !cerrdefs.IsNotFound(err) {
		return fmt.Errorf("failed to remove network %s: %w", name, err)
	}
	return nil
}

func (d *DockerRuntime) Create(ctx context.Context, spec *Spec) (string, error) {
	req := testcontainers.ContainerRequest{
		Image:      spec.Image(),
		Name:       spec.Name(),
		Entrypoint: spec.Entrypoint(),
		Cmd:        spec.Cmd(),
		Env:        spec.EnvVars(),
		User:       spec.User(),
	}

	if spec.Network() != "" {
		req.Networks = []string{spec.Network()}
		req.NetworkAliases = map[string][]string{spec.Network(): spec.Aliases()}
	}

	for hostPort, containerPort := range spec.Ports() {
		req.ExposedPorts = append(req.ExposedPorts, fmt.Sprintf("%d:%d/tcp", hostPort, containerPort))
	}

	for _, f := range spec.Files() {
		req.Files = append(req.Files, testcontainers.ContainerFile{
			Reader:            bytes.NewReader(f.Content),
			ContainerFilePath: f.FullPath(),
			FileMode:          f.mode(),
		})
	}

	binds := spec.Binds()
	req.HostConfigModifier = func(hc *dcontainer.HostConfig) {
		hc.ExtraHosts = append(hc.ExtraHosts, dockerHostAlias+":host-gateway")
		for _, b := range binds {
			hc.Binds = append(hc.Binds, b.HostPath+":"+b.ContainerPath)
		}
	}

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          false,
	})
	if err != nil {
		// the container may exist with its files half copied
		if termErr := testcontainers.TerminateContainer(c); termErr != nil {
			err = errors.Join(err, termErr)
		}
		return "", fmt.Errorf("failed to create container %s: %w", spec.Name(), err)
	}

	id := c.GetContainerID()
	d.mu.Lock()
	d.containers[id] = c
	d.mu.Unlock()
	return id, nil
}

func (d *DockerRuntime) get(id string) (testcontainers.Container, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.containers[id]
	if !ok {
		return nil, srvErrors.NewContainerNotFoundError(id)
	}
	return c, nil
}

func (d *DockerRuntime) Start(ctx context.Context, id string) error {
	c, err := d.get(id)
	if err != nil {
		return err
	}
	if err := c.Start(ctx); err != nil {
		return fmt.Errorf("failed to start container: %w", err)
	}
	return nil
}

func (d *DockerRuntime) Stop(ctx context.Context, id string, timeout time.Duration) error {
	c, err := d.get(id)
	if err != nil {
		return err
	}
	if timeout <= 0 {
		timeout = defaultStopTimeout
	}
	if err := c.Stop(ctx, &timeout); err != nil {
		return fmt.Errorf("failed to stop container: %w", err)
	}
	return nil
}

func (d *DockerRuntime) Remove(ctx context.Context, id string) error {
	c, err := d.get(id)
	if err != nil {
		return err
	}
	if err := c.Terminate(ctx); err != nil {
		return fmt.Errorf("failed to remove container: %w", err)
	}
	d.mu.Lock()
	delete(d.containers, id)
	d.mu.Unlock()
	return nil
}

func (d *DockerRuntime) Status(ctx context.Context, id string) (models.ContainerStatus, error) {
	c, err := d.get(id)
	if err != nil {
		return models.ContainerStatus{}, err
	}
	state, err := c.State(ctx)
	if err != nil {
		return models.ContainerStatus{}, fmt.Errorf("failed to inspect container: %w", err)
	}
	return models.ContainerStatus{
		Running:  state.Running,
		Exited:   state.Status == "exited",
		ExitCode: state.ExitCode,
	}, nil
}

func (d *DockerRuntime) Logs(ctx context.Context, id string) (string, error) {
	c, err := d.get(id)
	if err != nil {
		return "", err
	}
	rc, err := c.Logs(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get logs: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return "", fmt.Errorf("failed to read logs: %w", err)
	}
	return strings.TrimRight(string(data), "\n"), nil
}

func (d *DockerRuntime) Exec(ctx context.Context, id string, cmd ...string) (ExecResult, error) {
	c, err := d.get(id)
	if err != nil {
		return ExecResult{}, err
	}
	exitCode, reader, err := c.Exec(ctx, cmd, tcexec.Multiplexed())
	if err != nil {
		return ExecResult{}, fmt.Errorf("failed to exec in container: %w", err)
	}
	output, err := io.ReadAll(reader)
	if err != nil {
		return ExecResult{}, fmt.Errorf("failed to read exec output: %w", err)
	}
	return ExecResult{ExitCode: exitCode, Output: string(output)}, nil
}

func (d *DockerRuntime) Wait(ctx context.Context, id string) (int, error) {
	statusCh, errCh := d.client.ContainerWait(ctx, id, dcontainer.WaitConditionNotRunning)
	select {
	case status := <-statusCh:
		return int(status.StatusCode), nil
	case err := <-errCh:
		return -1, fmt.Errorf("failed to wait for container: %w", err)
	}
}

func (d *DockerRuntime) BuildImage(ctx context.Context, req BuildRequest) error {
	archive, err := buildContext(req)
	if err != nil {
		return err
	}
	repo, tag := splitReference(req.Tag)
	_, err = d.provider.BuildImage(ctx, &testcontainers.ContainerRequest{
		FromDockerfile: testcontainers.FromDockerfile{
			ContextArchive: bytes.NewReader(archive),
			Dockerfile:     "Dockerfile",
			Repo:           repo,
			Tag:            tag,
			KeepImage:      true,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to build image %s: %w", req.Tag, err)
	}
	d.log.Debugw("image built", "tag", req.Tag)
	return nil
}

func (d *DockerRuntime) RemoveImage(ctx context.Context, tag string) error {
	_, err := d.client.ImageRemove(ctx, tag, image.RemoveOptions{Force: true, PruneChildren: true})
	if err != nil && !cerrdefs.IsNotFound(err) {
		return fmt.Errorf("failed to remove image %s: %w", tag, err)
	}
	return nil
}

func (d *DockerRuntime) ImageExists(ctx context.Context, tag string) (bool, error) {
	if _, err := d.client.ImageInspect(ctx, tag); err != nil {
		if cerrdefs.IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check image %s: %w", tag, err)
	}
	return true, nil
}

func (d *DockerRuntime) ImageHistory(ctx context.Context, tag string) ([]string, error) {
	items, err := d.client.ImageHistory(ctx, tag)
	if err != nil {
		return nil, fmt.Errorf("failed to read history of %s: %w", tag, err)
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.CreatedBy)
	}
	return out, nil
}

func (d *DockerRuntime) TagImage(ctx context.Context, source, target string) error {
	if err := d.client.ImageTag(ctx, source, target); err != nil {
		return fmt.Errorf("failed to tag %s as %s: %w", source, target, err)
	}
	return nil
}
