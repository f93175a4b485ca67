// Package kube runs a throwaway kind cluster for scenarios that deploy the
// agent as a pod. The kind CLI creates and deletes the cluster, objects are
// applied with kubectl inside the control plane node and readiness is
// observed through client-go.
package kube

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/kubev2v/flowharness/internal/container"
	srvErrors "github.com/kubev2v/flowharness/pkg/errors"
)

const (
	ControlPlaneContainer = "kind-control-plane"
	MinifiImage           = "apacheminificpp:docker_test"
	MinifiNamespace       = "daemon"
	MinifiPod             = "minifi"
	MinifiConfMountPath   = "/tmp/minifi_conf"

	kindVersion        = "v0.31.0"
	resourcesMountPath = "/var/tmp"
	startupTimeout     = 120 * time.Second
	pollInterval       = time.Second
)

// CommandRunner runs a host command and returns its combined output.
type CommandRunner func(ctx context.Context, env []string, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, env []string, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = append(os.Environ(), env...)
	return cmd.CombinedOutput()
}

type Option func(*Cluster)

// WithClient skips building a client from the kind kubeconfig.
func WithClient(client kubernetes.Interface) Option {
	return func(c *Cluster) { c.client = client }
}

func WithCommandRunner(run CommandRunner) Option {
	return func(c *Cluster) { c.run = run }
}

// WithKindBinary uses an existing kind binary instead of downloading one.
func WithKindBinary(path string) Option {
	return func(c *Cluster) { c.kindPath = path }
}

// Cluster is a single node kind cluster whose node mounts the resource
// directory read-only at /var/tmp and a minifi conf directory at /tmp/minifi_conf.
type Cluster struct {
	runtime     container.Runtime
	resourceDir string
	workDir     string
	kindPath    string
	configPath  string
	confDir     string

	run    CommandRunner
	client kubernetes.Interface
	log    *zap.SugaredLogger
}

// NewCluster prepares a cluster working in workDir. Nothing is created until Create.
func NewCluster(rt container.Runtime, resourceDir, workDir string, opts ...Option) *Cluster {
	c := &Cluster{
		runtime:     rt,
		resourceDir: resourceDir,
		workDir:     workDir,
		configPath:  filepath.Join(workDir, "kind-config.yml"),
		confDir:     filepath.Join(workDir, "minifi_conf"),
		run:         execRunner,
		log:         zap.S().Named("kube"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cluster) ConfDir() string { return c.confDir }

type kindMount struct {
	HostPath      string `yaml:"hostPath"`
	ContainerPath string `yaml:"containerPath"`
	ReadOnly      bool   `yaml:"readOnly,omitempty"`
}

type kindNode struct {
	Role        string      `yaml:"role"`
	ExtraMounts []kindMount `yaml:"extraMounts"`
}

type kindConfig struct {
	APIVersion string     `yaml:"apiVersion"`
	Kind       string     `yaml:"kind"`
	Nodes      []kindNode `yaml:"nodes"`
}

// Config renders the kind cluster configuration.
func (c *Cluster) Config() ([]byte, error) {
	resources, err := filepath.Abs(c.resourceDir)
	if err != nil {
		return nil, err
	}
	cfg := kindConfig{
		APIVersion: "kind.x-k8s.io/v1alpha4",
		Kind:       "Cluster",
		Nodes: []kindNode{{
			Role: "control-plane",
			ExtraMounts: []kindMount{
				{HostPath: resources, ContainerPath: resourcesMountPath, ReadOnly: true},
				{HostPath: c.confDir, ContainerPath: MinifiConfMountPath},
			},
		}},
	}
	return yaml.Marshal(cfg)
}

// Prepare downloads kind when needed and writes the cluster configuration.
func (c *Cluster) Prepare(ctx context.Context) error {
	if err := os.MkdirAll(c.confDir, 0o755); err != nil {
		return fmt.Errorf("failed to create minifi conf dir: %w", err)
	}
	if c.kindPath == "" {
		c.kindPath = filepath.Join(c.workDir, "kind")
		if err := c.downloadKind(ctx); err != nil {
			return err
		}
	}
	cfg, err := c.Config()
	if err != nil {
		return err
	}
	return os.WriteFile(c.configPath, cfg, 0o644)
}

// kindURL returns the download link of the kind release for the host platform.
func kindURL(goos, goarch string) string {
	if goarch != "arm64" {
		goarch = "amd64"
	}
	if goos != "darwin" {
		goos = "linux"
	}
	return fmt.Sprintf("https://kind.sigs.k8s.io/dl/%s/kind-%s-%s", kindVersion, goos, goarch)
}

func (c *Cluster) downloadKind(ctx context.Context) error {
	if _, err := os.Stat(c.kindPath); err == nil {
		return nil
	}
	url := kindURL(goruntime.GOOS, goruntime.GOARCH)
	c.log.Infow("downloading kind", "url", url)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("could not download kind: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("could not download kind: %s", resp.Status)
	}

	f, err := os.OpenFile(c.kindPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o755)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		_ = f.Close()
		return fmt.Errorf("could not download kind: %w", err)
	}
	return f.Close()
}

func (c *Cluster) kindEnv() []string {
	if c.runtime.Engine() == container.EnginePodman {
		return []string{"KIND_EXPERIMENTAL_PROVIDER=podman"}
	}
	return nil
}

func (c *Cluster) kind(ctx context.Context, args ...string) ([]byte, error) {
	c.log.Debugw("running kind", "args", args)
	out, err := c.run(ctx, c.kindEnv(), c.kindPath, args...)
	if err != nil {
		return out, fmt.Errorf("kind %s failed: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return out, nil
}

// Create starts the cluster and connects a client through its kubeconfig.
func (c *Cluster) Create(ctx context.Context) error {
	if _, err := c.kind(ctx, "create", "cluster", "--config="+c.configPath); err != nil {
		return err
	}
	if c.client != nil {
		return nil
	}
	kubeconfig, err := c.kind(ctx, "get", "kubeconfig")
	if err != nil {
		return err
	}
	restConfig, err := clientcmd.RESTConfigFromKubeConfig(kubeconfig)
	if err != nil {
		return fmt.Errorf("failed to parse kind kubeconfig: %w", err)
	}
	client, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return fmt.Errorf("failed to create kubernetes client: %w", err)
	}
	c.client = client
	return nil
}

// Delete removes the cluster. Deleting a missing cluster is not an error for kind.
func (c *Cluster) Delete(ctx context.Context) error {
	_, err := c.kind(ctx, "delete", "cluster")
	return err
}

func (c *Cluster) LoadImage(ctx context.Context, image string) error {
	_, err := c.kind(ctx, "load", "docker-image", image)
	return err
}

// WriteMinifiConf writes a file the agent pod sees under /tmp/minifi_conf.
func (c *Cluster) WriteMinifiConf(name, content string) error {
	return os.WriteFile(filepath.Join(c.confDir, name), []byte(content), 0o644)
}

// Exec runs a command on the control plane node.
func (c *Cluster) Exec(ctx context.Context, cmd ...string) (container.ExecResult, error) {
	return c.runtime.Exec(ctx, ControlPlaneContainer, cmd...)
}

// CreateHelperObjects applies the namespace, dependencies, helper-pod,
// clusterrole and clusterrolebinding resource files and waits for the
// pods the scenarios rely on.
func (c *Cluster) CreateHelperObjects(ctx context.Context) error {
	if err := c.WaitForDefaultServiceAccount(ctx, metav1.NamespaceDefault); err != nil {
		return err
	}
	namespaces, err := c.applyObjectsOfType(ctx, "namespace")
	if err != nil {
		return err
	}
	for _, ns := range namespaces {
		if err := c.WaitForDefaultServiceAccount(ctx, ns); err != nil {
			return err
		}
	}

	for _, kind := range []string{"dependencies", "helper-pod", "clusterrole", "clusterrolebinding"} {
		if _, err := c.applyObjectsOfType(ctx, kind); err != nil {
			return err
		}
	}

	for _, pod := range []struct{ namespace, name string }{
		{metav1.NamespaceDefault, "hello-world-one"},
		{metav1.NamespaceDefault, "hello-world-two"},
		{metav1.NamespaceSystem, "metrics-server"},
	} {
		if err := c.WaitForPod(ctx, pod.namespace, pod.name); err != nil {
			return err
		}
	}
	return nil
}

// CreateMinifiPod applies the test pod definitions and waits for daemon/minifi.
func (c *Cluster) CreateMinifiPod(ctx context.Context) error {
	if _, err := c.applyObjectsOfType(ctx, "test-pod"); err != nil {
		return err
	}
	return c.WaitForPod(ctx, MinifiNamespace, MinifiPod)
}

// Logs returns the log of the agent pod.
func (c *Cluster) Logs(ctx context.Context) (string, error) {
	if c.client == nil {
		return "", fmt.Errorf("the kind kubernetes cluster is not running")
	}
	out, err := c.client.CoreV1().Pods(MinifiNamespace).GetLogs(MinifiPod, &corev1.PodLogOptions{}).DoRaw(ctx)
	if err != nil {
		return "", fmt.Errorf("could not get logs from the kind kubernetes cluster: %w", err)
	}
	return string(out), nil
}

// PodRunning reports whether a pod whose name starts with prefix is running.
func (c *Cluster) PodRunning(ctx context.Context, namespace, prefix string) (bool, error) {
	pods, err := c.client.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return false, err
	}
	for _, p := range pods.Items {
		if strings.HasPrefix(p.Name, prefix) && p.Status.Phase == corev1.PodRunning {
			return true, nil
		}
	}
	return false, nil
}

func (c *Cluster) WaitForPod(ctx context.Context, namespace, prefix string) error {
	err := wait.PollUntilContextTimeout(ctx, pollInterval, startupTimeout, true, func(ctx context.Context) (bool, error) {
		running, err := c.PodRunning(ctx, namespace, prefix)
		if err != nil {
			c.log.Debugw("failed to list pods", "namespace", namespace, "error", err)
			return false, nil
		}
		return running, nil
	})
	if err != nil {
		return srvErrors.NewConditionTimeoutError(fmt.Sprintf("pod %s:%s running", namespace, prefix), startupTimeout)
	}
	return nil
}

func (c *Cluster) WaitForDefaultServiceAccount(ctx context.Context, namespace string) error {
	err := wait.PollUntilContextTimeout(ctx, pollInterval, startupTimeout, true, func(ctx context.Context) (bool, error) {
		_, err := c.client.CoreV1().ServiceAccounts(namespace).Get(ctx, "default", metav1.GetOptions{})
		if apierrors.IsNotFound(err) {
			return false, nil
		}
		if err != nil {
			c.log.Debugw("failed to get service account", "namespace", namespace, "error", err)
			return false, nil
		}
		return true, nil
	})
	if err != nil {
		return srvErrors.NewConditionTimeoutError("default service account of namespace "+namespace, startupTimeout)
	}
	return nil
}
