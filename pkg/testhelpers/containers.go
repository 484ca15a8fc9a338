package testhelpers

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/ekaya-inc/whereabouts/pkg/config"
	"github.com/ekaya-inc/whereabouts/pkg/database"
)

const (
	// PostgresImage backs the pgstore integration tests.
	PostgresImage = "postgres:16-alpine"
	// Neo4jImage backs the neo4jstore integration tests.
	Neo4jImage = "neo4j:5-community"

	neo4jPassword = "test_password"
)

// TestDB holds a shared PostgreSQL container with the graph schema migrated.
type TestDB struct {
	Container testcontainers.Container
	DB        *database.DB
	ConnStr   string
}

var (
	sharedTestDB     *TestDB
	sharedTestDBOnce sync.Once
	sharedTestDBErr  error
)

// GetTestDB returns a shared PostgreSQL container for integration tests.
// The container is created once and reused across all tests in the run.
func GetTestDB(t *testing.T) *TestDB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	sharedTestDBOnce.Do(func() {
		sharedTestDB, sharedTestDBErr = setupTestDB()
	})

	if sharedTestDBErr != nil {
		t.Fatalf("Failed to setup test database: %v", sharedTestDBErr)
	}

	return sharedTestDB
}

func setupTestDB() (*TestDB, error) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        PostgresImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       "whereabouts_test",
			"POSTGRES_USER":     "whereabouts",
			"POSTGRES_PASSWORD": "test_password",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start test container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}

	connStr := fmt.Sprintf("postgres://whereabouts:test_password@%s:%s/whereabouts_test?sslmode=disable",
		host, port.Port())

	var db *database.DB
	for i := 0; i < 10; i++ {
		db, err = database.NewConnectionURL(ctx, connStr, 10, 0, 0)
		if err == nil {
			break
		}
		time.Sleep(500 * time.Millisecond)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to test database: %w", err)
	}

	sqlDB, err := database.OpenSQL(connStr)
	if err != nil {
		return nil, err
	}
	defer sqlDB.Close()

	if err := database.RunMigrations(sqlDB, zap.NewNop()); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &TestDB{
		Container: container,
		DB:        db,
		ConnStr:   connStr,
	}, nil
}

// TestNeo4j holds a shared Neo4j container.
type TestNeo4j struct {
	Container testcontainers.Container
	Driver    neo4j.DriverWithContext
	URI       string
}

var (
	sharedNeo4j     *TestNeo4j
	sharedNeo4jOnce sync.Once
	sharedNeo4jErr  error
)

// GetTestNeo4j returns a shared Neo4j container for integration tests.
func GetTestNeo4j(t *testing.T) *TestNeo4j {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	sharedNeo4jOnce.Do(func() {
		sharedNeo4j, sharedNeo4jErr = setupNeo4j()
	})

	if sharedNeo4jErr != nil {
		t.Fatalf("Failed to setup neo4j: %v", sharedNeo4jErr)
	}

	return sharedNeo4j
}

func setupNeo4j() (*TestNeo4j, error) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        Neo4jImage,
		ExposedPorts: []string{"7687/tcp"},
		Env: map[string]string{
			"NEO4J_AUTH": "neo4j/" + neo4jPassword,
		},
		WaitingFor: wait.ForLog("Started.").WithStartupTimeout(120 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start neo4j container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}

	port, err := container.MappedPort(ctx, "7687")
	if err != nil {
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}

	uri := fmt.Sprintf("neo4j://%s:%s", host, port.Port())
	driver, err := database.NewNeo4jDriver(ctx, &config.Neo4jConfig{
		URI:            uri,
		User:           "neo4j",
		Password:       neo4jPassword,
		ConnectTimeout: 30 * time.Second,
	})
	if err != nil {
		return nil, err
	}

	return &TestNeo4j{
		Container: container,
		Driver:    driver,
		URI:       uri,
	}, nil
}
