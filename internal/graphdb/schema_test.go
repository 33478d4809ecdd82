package graphdb_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/odvcencio/memorybank/internal/graphdb"
	"github.com/odvcencio/memorybank/internal/graphdb/graphdbtest"
)

func TestMigrateAppliesSchemaThenExtensions(t *testing.T) {
	conn := graphdbtest.NewConn()
	if err := graphdb.Migrate(context.Background(), conn, nil); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	calls := conn.Calls()
	want := len(graphdb.SchemaStatements()) + 2*len(graphdb.Extensions)
	if len(calls) != want {
		t.Fatalf("query count = %d, want %d", len(calls), want)
	}
	if !strings.HasPrefix(calls[0].Query, "CREATE NODE TABLE IF NOT EXISTS Repository") {
		t.Fatalf("first statement = %q, want Repository table", calls[0].Query)
	}
	if got := calls[len(calls)-1].Query; got != "LOAD algo" {
		t.Fatalf("last statement = %q, want %q", got, "LOAD algo")
	}
}

func TestMigrateToleratesInstallFailureAndLoadedExtension(t *testing.T) {
	conn := graphdbtest.NewConn()
	conn.OnError("INSTALL algo", errors.New("network unreachable"))
	conn.OnError("LOAD algo", errors.New("Binder exception: Extension algo is already loaded"))

	if err := graphdb.Migrate(context.Background(), conn, nil); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
}

func TestMigrateFailsWhenSchemaFails(t *testing.T) {
	conn := graphdbtest.NewConn()
	conn.OnError("CREATE REL TABLE IF NOT EXISTS GOVERNS", errors.New("catalog exception"))

	err := graphdb.Migrate(context.Background(), conn, nil)
	if err == nil || !strings.Contains(err.Error(), "catalog exception") {
		t.Fatalf("Migrate error = %v, want catalog exception", err)
	}
}

func TestSchemaCoversEveryKind(t *testing.T) {
	ddl := strings.Join(graphdb.SchemaStatements(), "\n")
	for _, kind := range append(append([]string{}, graphdb.NodeKinds...), graphdb.RelKinds...) {
		if !strings.Contains(ddl, "EXISTS "+kind+"(") {
			t.Fatalf("schema has no table for %s", kind)
		}
	}
}

func TestValidIdentifier(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{in: "Component", want: true},
		{in: "DEPENDS_ON", want: true},
		{in: "_g1", want: true},
		{in: "1abc", want: false},
		{in: "a-b", want: false},
		{in: "x') RETURN 1 //", want: false},
		{in: "", want: false},
	}
	for _, tc := range tests {
		if got := graphdb.ValidIdentifier(tc.in); got != tc.want {
			t.Fatalf("ValidIdentifier(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestRowAccessors(t *testing.T) {
	row := graphdb.Row{
		"s":    "x",
		"i32":  int32(7),
		"u64":  uint64(9),
		"f":    float32(0.5),
		"list": []any{"a", nil, "b"},
		"null": nil,
	}
	if got := row.String("s"); got != "x" {
		t.Fatalf("String = %q, want x", got)
	}
	if got := row.Int64("i32"); got != 7 {
		t.Fatalf("Int64(int32) = %d, want 7", got)
	}
	if got := row.Int64("u64"); got != 9 {
		t.Fatalf("Int64(uint64) = %d, want 9", got)
	}
	if got := row.Float64("f"); got != 0.5 {
		t.Fatalf("Float64 = %v, want 0.5", got)
	}
	if got := row.Strings("list"); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("Strings = %v, want [a b]", got)
	}
	if row.Has("null") || row.Has("missing") {
		t.Fatal("Has reported a null or missing column")
	}
	if got := row.String("null"); got != "" {
		t.Fatalf("String(null) = %q, want empty", got)
	}
}
