package steps

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cucumber/godog"

	"github.com/kubev2v/flowharness/internal/checkers"
	"github.com/kubev2v/flowharness/internal/flow"
	"github.com/kubev2v/flowharness/internal/infra"
	"github.com/kubev2v/flowharness/pkg/wait"
)

func (s *steps) registerStorage(ctx *godog.ScenarioContext) {
	ctx.Step(`^an Azure storage server is set up$`, s.azureServerIsSetUp)
	ctx.Step(`^the ([^\s"]+) processor is set up to use the Azure storage server$`, s.processorUsesAzure)
	ctx.Step(`^a test blob "([^"]*)" with the content "([^"]*)" is created on the Azure storage server( with a snapshot)?$`, s.azureBlobIsCreated)
	ctx.Step(`^the object on the Azure storage server is "([^"]*)" in less than (.+)$`, s.azureHasData)
	ctx.Step(`^the Azure blob storage becomes empty in less than (.+)$`, s.azureBecomesEmpty)
	ctx.Step(`^(\d+) blobs? and snapshots? (?:is|are) present on the Azure storage server in less than (.+)$`, s.azureBlobCount)

	ctx.Step(`^a PostgreSQL server is set up$`, s.postgresIsSetUp)
	ctx.Step(`^the "([^"]*)" table of the PostgreSQL server has (\d+) rows? in less than (.+)$`, s.postgresRowCount)
	ctx.Step(`^the "([^"]*)" table of the PostgreSQL server has (\d+) rows? where "([^"]*)" is "([^"]*)" in less than (.+)$`, s.postgresFilteredRowCount)

	ctx.Step(`^a Couchbase server is set up$`, s.couchbaseIsSetUp)
	ctx.Step(`^the ([^\s"]+) processor is set up to use the Couchbase server$`, s.processorUsesCouchbase)
	ctx.Step(`^the Couchbase document "([^"]*)" contains "([^"]*)" in less than (.+)$`, s.couchbaseDocumentContains)
}

func (s *steps) azureServer() (*infra.AzureServer, error) {
	return service[*infra.AzureServer](s.sc, infra.AzureService)
}

func (s *steps) azureServerIsSetUp() error {
	s.sc.Add(infra.AzureService, infra.NewAzureServer(s.sc.Env))
	return nil
}

func (s *steps) processorUsesAzure(name string) error {
	azure, err := s.azureServer()
	if err != nil {
		return err
	}
	p, err := s.processor("", name)
	if err != nil {
		return err
	}
	p.SetProperty("Container Name", infra.AzureTestContainer).
		SetProperty("Connection String", azure.ConnectionString()).
		SetProperty("Create Container", "true")
	return nil
}

func (s *steps) azureBlobIsCreated(ctx context.Context, name, content, snapshot string) error {
	azure, err := s.azureServer()
	if err != nil {
		return err
	}
	return azure.AddTestBlob(ctx, name, content, snapshot != "")
}

func (s *steps) azureHasData(ctx context.Context, data, within string) error {
	timeout, err := duration(within)
	if err != nil {
		return err
	}
	azure, err := s.azureServer()
	if err != nil {
		return err
	}
	return checkers.NewAzureChecker(azure).WaitForStorageServerData(ctx, data, timeout)
}

func (s *steps) azureBecomesEmpty(ctx context.Context, within string) error {
	timeout, err := duration(within)
	if err != nil {
		return err
	}
	azure, err := s.azureServer()
	if err != nil {
		return err
	}
	return checkers.NewAzureChecker(azure).WaitForBlobStorageEmpty(ctx, timeout)
}

func (s *steps) azureBlobCount(ctx context.Context, count int, within string) error {
	timeout, err := duration(within)
	if err != nil {
		return err
	}
	azure, err := s.azureServer()
	if err != nil {
		return err
	}
	return checkers.NewAzureChecker(azure).WaitForBlobAndSnapshotCount(ctx, count, timeout)
}

// postgresIsSetUp also switches the default agent to the image with the ODBC drivers.
func (s *steps) postgresIsSetUp() error {
	s.sc.Add(infra.PostgreSQLService, infra.NewPostgreSQLServer(s.sc.Env))
	s.minifi("").Options.SQL = true
	return nil
}

func (s *steps) waitForRows(ctx context.Context, table string, where map[string]any, count int, within string) error {
	timeout, err := duration(within)
	if err != nil {
		return err
	}
	pg, err := service[*infra.PostgreSQLServer](s.sc, infra.PostgreSQLService)
	if err != nil {
		return err
	}
	checker, err := checkers.NewPostgresChecker(pg.DSN())
	if err != nil {
		return err
	}
	defer checker.Close()
	return checker.WaitForRowCount(ctx, table, where, count, timeout)
}

func (s *steps) postgresRowCount(ctx context.Context, table string, count int, within string) error {
	return s.waitForRows(ctx, table, nil, count, within)
}

func (s *steps) postgresFilteredRowCount(ctx context.Context, table string, count int, column, value, within string) error {
	return s.waitForRows(ctx, table, map[string]any{column: value}, count, within)
}

func (s *steps) couchbaseServer() (*infra.CouchbaseServer, error) {
	return service[*infra.CouchbaseServer](s.sc, infra.CouchbaseService)
}

func (s *steps) couchbaseIsSetUp() error {
	s.sc.Add(infra.CouchbaseService, infra.NewCouchbaseServer(s.sc.Env))
	return nil
}

// processorUsesCouchbase adds a cluster controller service for the server and points the processor at it.
func (s *steps) processorUsesCouchbase(name string) error {
	cb, err := s.couchbaseServer()
	if err != nil {
		return err
	}
	f := s.minifi("").Flow
	p, err := f.GetProcessor(name)
	if err != nil {
		return err
	}
	const serviceName = "CouchbaseClusterService"
	if _, err := f.GetControllerService(serviceName); err != nil {
		f.AddControllerService(flow.NewControllerService(serviceName, "")).
			SetProperty("Connection String", cb.ConnectionString()).
			SetProperty("User Name", infra.CouchbaseUser).
			SetProperty("User Password", infra.CouchbasePassword)
	}
	p.SetProperty("Couchbase Cluster Controller Service", serviceName).
		SetProperty("Bucket Name", infra.CouchbaseBucket)
	return nil
}

func (s *steps) couchbaseDocumentContains(ctx context.Context, key, text, within string) error {
	timeout, err := duration(within)
	if err != nil {
		return err
	}
	cb, err := s.couchbaseServer()
	if err != nil {
		return err
	}
	return cb.WaitFor(ctx, fmt.Sprintf("document %s contains %q", key, text), timeout, func(ctx context.Context) (bool, error) {
		doc, err := cb.Document(ctx, key)
		if err != nil {
			return false, err
		}
		return strings.Contains(doc, text), nil
	}, wait.WithInterval(2*time.Second))
}
