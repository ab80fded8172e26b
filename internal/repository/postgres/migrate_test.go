package postgres

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/therapyassist/therapy-api/migrations"
)

func TestLoadOrdersByVersion(t *testing.T) {
	files := fstest.MapFS{
		"010_indexes.sql": {Data: []byte("CREATE INDEX a ON b (c);")},
		"002_outbox.sql":  {Data: []byte("CREATE TABLE outbox ();")},
		"README.md":       {Data: []byte("docs")},
		"draft.sql":       {Data: []byte("-- no version")},
	}

	got, err := NewMigrator(nil, files).Load()
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 2, got[0].Version)
	assert.Equal(t, "002_outbox.sql", got[0].Name)
	assert.Equal(t, 10, got[1].Version)
}

func TestLoadRejectsDuplicateVersions(t *testing.T) {
	files := fstest.MapFS{
		"001_a.sql": {Data: []byte("SELECT 1;")},
		"1_b.sql":   {Data: []byte("SELECT 2;")},
	}

	_, err := NewMigrator(nil, files).Load()
	assert.Error(t, err)
}

func TestEmbeddedSchemaCoversRepositories(t *testing.T) {
	got, err := NewMigrator(nil, migrations.FS).Load()
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Equal(t, 1, got[0].Version)

	for _, table := range []string{"patients", "appointments", "payments", "payment_appointments", "session_notes", "outbox_events"} {
		assert.Contains(t, got[0].SQL, "CREATE TABLE IF NOT EXISTS "+table+" ")
	}
}
