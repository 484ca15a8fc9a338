//go:build integration

package testhelpers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetTestDB_SchemaMigrated(t *testing.T) {
	testDB := GetTestDB(t)
	ctx := context.Background()

	for _, table := range []string{"graph_vertices", "graph_edges"} {
		var exists bool
		err := testDB.DB.Pool.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM information_schema.tables
				WHERE table_schema = 'public' AND table_name = $1
			)`, table).Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, "table %s should exist", table)
	}
}

func TestGetTestNeo4j_Connectivity(t *testing.T) {
	testNeo4j := GetTestNeo4j(t)
	require.NoError(t, testNeo4j.Driver.VerifyConnectivity(context.Background()))
}
