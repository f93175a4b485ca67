package infra

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kubev2v/flowharness/internal/container"
)

const (
	AzureService       = "azure-storage-server"
	AzureTestContainer = "test-container"

	azuriteImage      = "mcr.microsoft.com/azure-storage/azurite:3.35.0"
	azureCLIImage     = "mcr.microsoft.com/azure-cli"
	azureStartedLog   = "Azurite Queue service is successfully listening at"
	azureStartupWait  = 15 * time.Second
	azureBlobDir      = "/data/__blobstorage__"
	azureAccountName  = "devstoreaccount1"
	azureAccountKey   = "Eby8vdM02xNOcqFlqUwJPLlmEtlCDXJ1OUzFT50uSRZ6IFsuFq2UVErCz4I6tq/K1SZFPTOtr/KBHBeksoGMGw=="
)

// AzureServer is an Azurite blob, queue and table emulator serving TLS.
type AzureServer struct {
	*container.Container

	env      *Env
	prepared bool
}

func NewAzureServer(env *Env) *AzureServer {
	c := container.New(env.Runtime, env.ServiceName(AzureService), azuriteImage, env.Network)
	c.Command = []string{
		"azurite", "--blobHost", "0.0.0.0", "--queueHost", "0.0.0.0", "--tableHost", "0.0.0.0",
		"--location", "/data", "--cert", "/workspace/azure.pem", "--key", "/workspace/azure-key.pem",
	}
	return &AzureServer{Container: c, env: env}
}

// ConnectionString addresses the emulator from inside the scenario network.
func (a *AzureServer) ConnectionString() string {
	host := a.Name()
	return strings.Join([]string{
		"DefaultEndpointsProtocol=https",
		"AccountName=" + azureAccountName,
		"AccountKey=" + azureAccountKey,
		fmt.Sprintf("BlobEndpoint=https://%s:10000/%s", host, azureAccountName),
		fmt.Sprintf("QueueEndpoint=https://%s:10001/%s", host, azureAccountName),
		fmt.Sprintf("TableEndpoint=https://%s:10002/%s", host, azureAccountName),
	}, ";") + ";"
}

func (a *AzureServer) AccountName() string { return azureAccountName }
func (a *AzureServer) AccountKey() string  { return azureAccountKey }

func (a *AzureServer) Deploy(ctx context.Context) error {
	if !a.prepared {
		kp, err := a.env.ServerCert(a.Name())
		if err != nil {
			return err
		}
		a.Files = append(a.Files,
			container.File{Path: "/etc/ssl/certs", Name: "ca-certificates.crt", Content: a.env.RootCA.CertPEM()},
			container.File{Path: "/workspace", Name: "azure.pem", Content: kp.CertPEM()},
			container.File{Path: "/workspace", Name: "azure-key.pem", Content: kp.KeyPEM()},
		)
		a.prepared = true
	}
	if err := a.Container.Deploy(ctx); err != nil {
		return err
	}
	return a.WaitForLog(ctx, azureStartupWait, azureStartedLog)
}

// StoredBlobs returns the content of every blob file the emulator persisted.
func (a *AzureServer) StoredBlobs(ctx context.Context) ([]string, error) {
	return a.FileContents(ctx, azureBlobDir)
}

// AddTestBlob uploads content to the test container, optionally followed by a snapshot.
func (a *AzureServer) AddTestBlob(ctx context.Context, name, content string, withSnapshot bool) error {
	if _, err := a.az(ctx, "storage", "container", "create", "--name", AzureTestContainer); err != nil {
		return err
	}
	if _, err := a.az(ctx, "storage", "blob", "upload", "--container-name", AzureTestContainer, "--name", name, "--data", content); err != nil {
		return err
	}
	if !withSnapshot {
		return nil
	}
	_, err := a.az(ctx, "storage", "blob", "snapshot", "--container-name", AzureTestContainer, "--name", name)
	return err
}

// BlobCount counts the blobs of the test container, optionally with the soft deleted ones.
func (a *AzureServer) BlobCount(ctx context.Context, includeDeleted bool) (int, error) {
	args := []string{"storage", "blob", "list", "--container-name", AzureTestContainer}
	if includeDeleted {
		args = append(args, "--include", "deleted")
	}
	out, err := a.az(ctx, append(args, "--query", "length(@)", "--output", "tsv")...)
	if err != nil {
		return 0, err
	}
	return parseCount(out)
}

// SnapshotCount counts the snapshots of the test container.
func (a *AzureServer) SnapshotCount(ctx context.Context) (int, error) {
	out, err := a.az(ctx, "storage", "blob", "list", "--container-name", AzureTestContainer,
		"--include", "s", "--query", "length([?snapshot != null])", "--output", "tsv")
	if err != nil {
		return 0, err
	}
	return parseCount(out)
}

// az runs one Azure CLI command in a throwaway container on the scenario network.
func (a *AzureServer) az(ctx context.Context, args ...string) (string, error) {
	cmd := append([]string{"az"}, args...)
	cmd = append(cmd, "--connection-string", a.ConnectionString())
	spec := container.NewSpec(a.env.OneOffName("azure-cli"), azureCLIImage).
		WithNetwork(a.env.Network).
		WithEnvVar("REQUESTS_CA_BUNDLE", "/etc/ssl/certs/root_ca.crt").
		WithFile(container.File{Path: "/etc/ssl/certs", Name: "root_ca.crt", Content: a.env.RootCA.CertPEM()}).
		WithCmd(cmd...)
	res, err := container.RunOnce(ctx, a.env.Runtime, spec)
	return container.CheckExec(cmd, res, err)
}

func parseCount(out string) (int, error) {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	last := strings.TrimSpace(lines[len(lines)-1])
	n, err := strconv.Atoi(last)
	if err != nil {
		return 0, fmt.Errorf("failed to parse count from %q: %w", last, err)
	}
	return n, nil
}
