package postgres

import (
	"reflect"
	"testing"

	"searchrollup/internal/storage"
)

// TestPgFQN covers plain and schema-qualified table names.
func TestPgFQN(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want string
	}{
		{"search_aggregates", `"search_aggregates"`},
		{"public.search_aggregates", `"public"."search_aggregates"`},
		{`odd"name`, `"odd""name"`},
	}
	for _, tt := range tests {
		if got := pgFQN(tt.in); got != tt.want {
			t.Errorf("pgFQN(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestSplitFQN(t *testing.T) {
	t.Parallel()
	got := splitFQN("public.search_aggregates")
	want := []string{"public", "search_aggregates"}
	if !reflect.DeepEqual([]string(got), want) {
		t.Errorf("splitFQN = %v, want %v", got, want)
	}
	got = splitFQN("search_aggregates")
	if !reflect.DeepEqual([]string(got), []string{"search_aggregates"}) {
		t.Errorf("splitFQN = %v, want [search_aggregates]", got)
	}
}

// TestCreateTableSQL verifies hyphenated columns come out quoted and typed.
func TestCreateTableSQL(t *testing.T) {
	t.Parallel()
	cfg := storage.Config{
		Table: "search_aggregates",
		Schema: []storage.Column{
			{Name: "engine", Type: storage.ColumnText},
			{Name: "tagged-sap", Type: storage.ColumnInteger},
			{Name: "mean_count", Type: storage.ColumnReal},
		},
	}
	want := `CREATE TABLE "search_aggregates" ("engine" TEXT, "tagged-sap" BIGINT, "mean_count" DOUBLE PRECISION)`
	if got := createTableSQL(cfg); got != want {
		t.Errorf("createTableSQL =\n  %s\nwant\n  %s", got, want)
	}
}
