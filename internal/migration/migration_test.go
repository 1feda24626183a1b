package migration

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/smallbiznis/bookpost/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(embeddedMigrations, migrationsDir)
	require.NoError(t, err)

	ups, downs := map[string]bool{}, map[string]bool{}
	for _, entry := range entries {
		name := entry.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		}
	}
	require.NotEmpty(t, ups)
	assert.Equal(t, ups, downs)
}

func TestIdempotencyMigrationHasUniqueKey(t *testing.T) {
	body, err := fs.ReadFile(embeddedMigrations, migrationsDir+"/000003_idempotency_records.up.sql")
	require.NoError(t, err)
	assert.Contains(t, string(body), "ON idempotency_records (tenant_id, payload_hash)")
}

func TestApplyAutoMigratesSQLite(t *testing.T) {
	conn := testutil.NewSQLite(t)

	require.NoError(t, Apply(conn))
	for _, table := range []string{"tenant_entitlements", "usage_counters", "idempotency_records"} {
		assert.True(t, conn.Migrator().HasTable(table), table)
	}
	// idempotent
	require.NoError(t, Apply(conn))
}

func TestApplyRequiresConnection(t *testing.T) {
	assert.Error(t, Apply(nil))
	assert.Error(t, RunMigrations(nil))
}
