package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tidwall/gjson"
)

func isolate(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("APP_ENV_FILE", filepath.Join(dir, "missing.env"))
	t.Setenv("APP_PROBES_FILE", filepath.Join(dir, "missing.yml"))
	t.Setenv("APP_DATA_DIR", filepath.Join(dir, "data"))
	t.Setenv("APP_DB_PATH", filepath.Join(dir, "data", "status.db"))
	t.Setenv("APP_STORE", "sqlite")
	t.Setenv("STATUS_TITLE", "CLI Status")
	t.Setenv("LOG_LEVEL", "error")
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestStatusJSON(t *testing.T) {
	isolate(t)
	out, err := execute(t, "status", "--json")
	if err != nil {
		t.Fatalf("status: %v\n%s", err, out)
	}
	if got := gjson.Get(out, "title").String(); got != "CLI Status" {
		t.Fatalf("title = %q in %s", got, out)
	}
	if got := gjson.Get(out, "globalStatus").String(); got != "operational" {
		t.Fatalf("globalStatus = %q", got)
	}
}

func TestStatusTable(t *testing.T) {
	isolate(t)
	out, err := execute(t, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out, "CLI Status") || !strings.Contains(out, "All Systems Operational") {
		t.Fatalf("output = %s", out)
	}
}

func TestPurge(t *testing.T) {
	isolate(t)
	if out, err := execute(t, "purge", "--days", "7"); err != nil {
		t.Fatalf("purge: %v\n%s", err, out)
	}
}

func TestBadConfigFails(t *testing.T) {
	isolate(t)
	t.Setenv("APP_STORE", "cassandra")
	if _, err := execute(t, "status"); err == nil {
		t.Fatal("expected config error")
	}
}
