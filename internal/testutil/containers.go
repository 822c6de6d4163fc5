//go:build integration

// Package testutil starts database containers for integration tests.
package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/network"
	"github.com/testcontainers/testcontainers-go/wait"

	_ "github.com/denisenkom/go-mssqldb"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
)

const (
	mysqlImage     = "mysql:8.0.36"
	postgresImage  = "postgres:16-alpine"
	sqlserverImage = "mcr.microsoft.com/mssql/server:2022-latest"
	databaseName   = "outbox"
	password       = "Secret-pass1"
	startupTimeout = 3 * time.Minute
)

// Database is a started container with an open handle.
type Database struct {
	Container testcontainers.Container
	Network   *testcontainers.DockerNetwork
	DB        *sql.DB
	// DSN reaches the database from the host.
	DSN string
	// NetworkDSN reaches the database from containers on Network.
	NetworkDSN string
}

type containerSpec struct {
	image  string
	port   nat.Port
	alias  string
	driver string
	env    map[string]string
	dsn    func(host, port string) string
}

// StartMySQL starts MySQL 8 with an "outbox" database.
func StartMySQL(t *testing.T, ctx context.Context) Database {
	t.Helper()

	return start(t, ctx, containerSpec{
		image:  mysqlImage,
		port:   "3306/tcp",
		alias:  "mysql",
		driver: "mysql",
		env: map[string]string{
			"MYSQL_ROOT_PASSWORD": password,
			"MYSQL_DATABASE":      databaseName,
		},
		dsn: func(host, port string) string {
			return fmt.Sprintf("root:%s@tcp(%s:%s)/%s?parseTime=true", password, host, port, databaseName)
		},
	})
}

// StartPostgres starts PostgreSQL with an "outbox" database.
func StartPostgres(t *testing.T, ctx context.Context) Database {
	t.Helper()

	return start(t, ctx, containerSpec{
		image:  postgresImage,
		port:   "5432/tcp",
		alias:  "postgres",
		driver: "postgres",
		env: map[string]string{
			"POSTGRES_PASSWORD": password,
			"POSTGRES_DB":       databaseName,
		},
		dsn: func(host, port string) string {
			return fmt.Sprintf("postgres://postgres:%s@%s:%s/%s?sslmode=disable", password, host, port, databaseName)
		},
	})
}

// StartSQLServer starts SQL Server and uses the master database.
func StartSQLServer(t *testing.T, ctx context.Context) Database {
	t.Helper()

	return start(t, ctx, containerSpec{
		image:  sqlserverImage,
		port:   "1433/tcp",
		alias:  "sqlserver",
		driver: "sqlserver",
		env: map[string]string{
			"ACCEPT_EULA":       "Y",
			"MSSQL_SA_PASSWORD": password,
		},
		dsn: func(host, port string) string {
			return fmt.Sprintf("sqlserver://sa:%s@%s:%s?database=master", password, host, port)
		},
	})
}

func start(t *testing.T, ctx context.Context, s containerSpec) Database {
	t.Helper()

	net, err := network.New(ctx)
	if err != nil {
		t.Skipf("create network: %v", err)
	}
	t.Cleanup(func() {
		_ = net.Remove(ctx)
	})

	req := testcontainers.ContainerRequest{
		Image:        s.image,
		ExposedPorts: []string{string(s.port)},
		Env:          s.env,
		Networks:     []string{net.Name},
		NetworkAliases: map[string][]string{
			net.Name: {s.alias},
		},
		WaitingFor: wait.ForSQL(s.port, s.driver, func(host string, port nat.Port) string {
			return s.dsn(host, port.Port())
		}).WithStartupTimeout(startupTimeout),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("start %s container: %v", s.alias, err)
	}
	t.Cleanup(func() {
		_ = container.Terminate(ctx)
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("resolve host: %v", err)
	}
	mappedPort, err := container.MappedPort(ctx, s.port)
	if err != nil {
		t.Fatalf("resolve port: %v", err)
	}

	dsn := s.dsn(host, mappedPort.Port())
	db, err := sql.Open(s.driver, dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})

	return Database{
		Container:  container,
		Network:    net,
		DB:         db,
		DSN:        dsn,
		NetworkDSN: s.dsn(s.alias, s.port.Port()),
	}
}
