package db

import (
	"testing"

	"github.com/gocql/gocql"

	"github.com/acme/lead-engagement/internal/config"
)

func TestDSN(t *testing.T) {
	got := DSN(config.PostgresConfig{User: "u", Password: "p", Host: "db", Port: 5432, Database: "leads"})
	want := "postgres://u:p@db:5432/leads?sslmode=disable"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestParseConsistency(t *testing.T) {
	cases := map[string]gocql.Consistency{
		"one":          gocql.One,
		"local_quorum": gocql.LocalQuorum,
		"":             gocql.Quorum,
		"bogus":        gocql.Quorum,
	}
	for in, want := range cases {
		if got := parseConsistency(in); got != want {
			t.Errorf("%q: expected %v, got %v", in, want, got)
		}
	}
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := migrations.ReadDir("migrations")
	if err != nil {
		t.Fatalf("read embedded migrations: %v", err)
	}
	if len(entries) < 2 {
		t.Fatalf("expected schema migrations, got %d", len(entries))
	}
}
