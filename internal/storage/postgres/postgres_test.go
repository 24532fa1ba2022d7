package postgres

import (
	"strings"
	"testing"
)

func TestDSNFromOptions(t *testing.T) {
	t.Setenv("PGHOST", "")
	t.Setenv("PGPORT", "")
	t.Setenv("PGPASSWORD", "")
	dsn := Options{Host: "db", Port: 6543, User: "anim", Database: "frames"}.DSN()
	for _, want := range []string{"host=db", "port=6543", "user=anim", "dbname=frames", "sslmode=disable"} {
		if !strings.Contains(dsn, want) {
			t.Errorf("expected %q in %q", want, dsn)
		}
	}
	if strings.Contains(dsn, "password=") {
		t.Errorf("expected no password in %q", dsn)
	}
}

func TestDSNFallsBackToEnv(t *testing.T) {
	t.Setenv("PGHOST", "envhost")
	t.Setenv("PGPORT", "15432")
	t.Setenv("PGPASSWORD", "secret")
	dsn := Options{}.DSN()
	for _, want := range []string{"host=envhost", "port=15432", "password=secret", "user=animgraph"} {
		if !strings.Contains(dsn, want) {
			t.Errorf("expected %q in %q", want, dsn)
		}
	}
}

func TestClampLimit(t *testing.T) {
	cases := map[int]int{0: 200, -5: 200, 50: 50, 20000: 10000}
	for in, want := range cases {
		if got := clampLimit(in); got != want {
			t.Errorf("clampLimit(%d): expected %d, got %d", in, want, got)
		}
	}
}
