package migrations

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedScriptsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(Files, "sql")
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			t.Fatalf("unexpected file %s", name)
		}
	}
	require.Equal(t, ups, downs)
}

func TestEmbeddedSourceOrdersVersions(t *testing.T) {
	src, err := iofs.New(Files, "sql")
	require.NoError(t, err)
	defer src.Close()

	first, err := src.First()
	require.NoError(t, err)
	require.Equal(t, uint(1), first)

	next, err := src.Next(first)
	require.NoError(t, err)
	require.Equal(t, uint(2), next)

	last, err := src.Next(next)
	require.NoError(t, err)
	require.Equal(t, uint(3), last)
}

func TestDocumentSchemaCarriesConstraintNames(t *testing.T) {
	raw, err := fs.ReadFile(Files, "sql/000002_documents.up.sql")
	require.NoError(t, err)
	schema := string(raw)
	for _, name := range []string{
		"quotations_one_active_per_project",
		"quotations_number_version_key",
		"orders_quotation_id_key",
		"invoices_order_id_key",
	} {
		require.Contains(t, schema, name)
	}
}
