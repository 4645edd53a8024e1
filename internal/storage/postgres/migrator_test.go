package postgres

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"
)

func migrationFile(body string) *fstest.MapFile {
	return &fstest.MapFile{Data: []byte(body)}
}

func TestParseMigrations_SortsByVersion(t *testing.T) {
	t.Parallel()

	got, err := parseMigrations(fstest.MapFS{
		"sql/migrations/0002_ranking.up.sql":   migrationFile("CREATE TABLE r (id INT);"),
		"sql/migrations/0002_ranking.down.sql": migrationFile("DROP TABLE r;"),
		"sql/migrations/0001_init.up.sql":      migrationFile("CREATE TABLE i (id INT);"),
		"sql/migrations/0001_init.down.sql":    migrationFile("DROP TABLE i;"),
	})

	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, migration{Version: 1, Name: "init", Up: "CREATE TABLE i (id INT);", Down: "DROP TABLE i;"}, got[0])
	require.Equal(t, "0002_ranking", got[1].label())
}

func TestParseMigrations_Rejects(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		files   fstest.MapFS
		wantErr string
	}{
		"missing down": {
			files:   fstest.MapFS{"sql/migrations/0001_init.up.sql": migrationFile("SELECT 1;")},
			wantErr: "both up and down",
		},
		"bad file name": {
			files:   fstest.MapFS{"sql/migrations/init.sql": migrationFile("SELECT 1;")},
			wantErr: "invalid migration file name",
		},
		"blank body": {
			files: fstest.MapFS{
				"sql/migrations/0001_init.up.sql":   migrationFile(" \n\t"),
				"sql/migrations/0001_init.down.sql": migrationFile("SELECT 1;"),
			},
			wantErr: "empty",
		},
		"conflicting names": {
			files: fstest.MapFS{
				"sql/migrations/0001_init.up.sql":    migrationFile("SELECT 1;"),
				"sql/migrations/0001_other.down.sql": migrationFile("SELECT 1;"),
			},
			wantErr: "two names",
		},
		"empty dir": {
			files:   fstest.MapFS{"sql/migrations/.keep/x": migrationFile("")},
			wantErr: "no migration files",
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := parseMigrations(tc.files)
			require.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestEmbeddedMigrations_CreateAllTables(t *testing.T) {
	t.Parallel()

	all, err := parseMigrations(embeddedMigrations)
	require.NoError(t, err)
	require.NotEmpty(t, all)
	require.EqualValues(t, 1, all[0].Version)

	for _, table := range []string{
		"coupons", "user_coupons", "products", "balances",
		"orders", "order_items", "outbox_messages", "saga_journal",
	} {
		require.Contains(t, all[0].Up, "CREATE TABLE IF NOT EXISTS "+table+" ")
	}
}
