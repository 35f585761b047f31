package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCommand()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func TestScanReportsHeaderMismatch(t *testing.T) {
	path := writeFile(t, "photo.png", "SELECT name FROM users UNION SELECT password FROM admins")

	out, err := runCLI(t, "scan", path)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	var report struct {
		Clean      bool     `json:"clean"`
		Categories []string `json:"threat_categories"`
	}
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode output %q: %v", out, err)
	}
	if report.Clean {
		t.Fatalf("expected dirty report, got %s", out)
	}
}

func TestProcessStoresInvoice(t *testing.T) {
	t.Setenv("CATALOG_PATH", "")
	path := writeFile(t, "invoice_2024.pdf", "%PDF-1.4\nInvoice #INV001 Amount: R150.00 Date: 2024-01-15 Customer: ABC Corp\n%%EOF")
	archiveDir := t.TempDir()

	out, err := runCLI(t, "process", "--archive", archiveDir, path)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	var rec struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal([]byte(out), &rec); err != nil {
		t.Fatalf("decode output %q: %v", out, err)
	}
	if rec.Status != "stored" {
		t.Fatalf("expected stored, got %s", out)
	}
	if _, err := os.Stat(filepath.Join(archiveDir, "records", rec.ID+".json")); err != nil {
		t.Fatalf("expected archived record: %v", err)
	}
}

func TestScanRequiresPath(t *testing.T) {
	if _, err := runCLI(t, "scan"); err == nil {
		t.Fatal("expected argument error")
	}
}
