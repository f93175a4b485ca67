package infra

import (
	"context"
	"fmt"
	"time"

	"github.com/kubev2v/flowharness/internal/container"
	"github.com/kubev2v/flowharness/internal/images"
	"github.com/kubev2v/flowharness/pkg/wait"
)

const (
	PostgreSQLService = "postgresql-server"
	CouchbaseService  = "couchbase-server"

	PostgresPort     = 5432
	PostgresUser     = "postgres"
	PostgresPassword = "password"
	PostgresDatabase = "postgres"

	CouchbaseUser     = "Administrator"
	CouchbasePassword = "password123"
	CouchbaseBucket   = "test_bucket"

	// the agent sql image points its ODBC data source at this host
	postgresAlias       = "postgres"
	postgresReadyLog    = "database system is ready to accept connections"
	postgresStartupWait = 60 * time.Second
	couchbaseImage      = "couchbase:community-7.6.2"
	couchbaseStartedLog = "logs available in"
	couchbaseSetupWait  = 120 * time.Second
)

var couchbasePorts = []int{8091, 8092, 8093, 8094, 8095, 8096, 8097, 9123, 11207, 11210, 11280, 18091, 18092, 18093, 18094, 18095, 18096}

// PostgreSQLServer is seeded with test_table and test_table2. Its port is
// published on the host so checkers can query it directly.
type PostgreSQLServer struct {
	*container.Container

	env *Env
}

func NewPostgreSQLServer(env *Env) *PostgreSQLServer {
	c := container.New(env.Runtime, env.ServiceName(PostgreSQLService), "", env.Network)
	c.Env["POSTGRES_PASSWORD"] = PostgresPassword
	c.Aliases = []string{postgresAlias}
	c.Ports[PostgresPort] = PostgresPort
	return &PostgreSQLServer{Container: c, env: env}
}

// DSN addresses the published port from the host.
func (p *PostgreSQLServer) DSN() string {
	return fmt.Sprintf("host=localhost port=%d user=%s password=%s dbname=%s sslmode=disable",
		PostgresPort, PostgresUser, PostgresPassword, PostgresDatabase)
}

func (p *PostgreSQLServer) Deploy(ctx context.Context) error {
	image, err := p.env.Images.GetImage(ctx, images.EnginePostgreSQLServer)
	if err != nil {
		return err
	}
	p.SetImage(image)
	if err := p.Container.Deploy(ctx); err != nil {
		return err
	}
	// the init scripts run against a temporary server first
	return p.WaitForLogCount(ctx, postgresStartupWait, postgresReadyLog, 2)
}

// CouchbaseServer runs a single node cluster with one bucket.
type CouchbaseServer struct {
	*container.Container

	env *Env
}

func NewCouchbaseServer(env *Env) *CouchbaseServer {
	c := container.New(env.Runtime, env.ServiceName(CouchbaseService), couchbaseImage, env.Network)
	for _, port := range couchbasePorts {
		c.Ports[port] = port
	}
	return &CouchbaseServer{Container: c, env: env}
}

func (c *CouchbaseServer) ConnectionString() string {
	return "couchbase://" + c.Name()
}

func (c *CouchbaseServer) Deploy(ctx context.Context) error {
	if err := c.Container.Deploy(ctx); err != nil {
		return err
	}
	if err := c.WaitForLog(ctx, couchbaseSetupWait, couchbaseStartedLog); err != nil {
		return err
	}
	setup := [][]string{
		{"couchbase-cli", "cluster-init", "-c", "localhost", "--cluster-username", CouchbaseUser, "--cluster-password", CouchbasePassword,
			"--services", "data,index,query", "--cluster-ramsize", "2048", "--cluster-index-ramsize", "256"},
		{"couchbase-cli", "bucket-create", "-c", "localhost", "--username", CouchbaseUser, "--password", CouchbasePassword,
			"--bucket", CouchbaseBucket, "--bucket-type", "couchbase", "--bucket-ramsize", "1024"},
	}
	for _, cmd := range setup {
		// the REST API comes up some time after the log line
		err := c.WaitFor(ctx, cmd[1], couchbaseSetupWait, func(ctx context.Context) (bool, error) {
			if _, err := c.Run(ctx, cmd...); err != nil {
				return false, err
			}
			return true, nil
		}, wait.WithInterval(2*time.Second))
		if err != nil {
			return err
		}
	}
	return nil
}

// Document returns the JSON document stored under key in the test bucket.
func (c *CouchbaseServer) Document(ctx context.Context, key string) (string, error) {
	return c.Run(ctx, "cbq", "-u", CouchbaseUser, "-p", CouchbasePassword, "-q",
		"-s", fmt.Sprintf("SELECT RAW d FROM `%s` d USE KEYS %q", CouchbaseBucket, key))
}
