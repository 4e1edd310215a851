package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestArchiveRoundTrip(t *testing.T) {
	src := t.TempDir()
	if err := os.MkdirAll(filepath.Join(src, "reports"), 0o755); err != nil {
		t.Fatal(err)
	}
	files := map[string]string{
		"erevna.db":       "pretend sqlite bytes",
		"reports/r1.html": "<html>report</html>",
		"reports/r2.md":   "# report two",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(src, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	var buf bytes.Buffer
	count, err := writeArchive(&buf, []string{src})
	if err != nil {
		t.Fatalf("writeArchive: %v", err)
	}
	if count != 3 {
		t.Errorf("archived %d files, want 3", count)
	}

	dest := t.TempDir()
	restored, skipped, err := extractArchive(&buf, dest, false)
	if err != nil {
		t.Fatalf("extractArchive: %v", err)
	}
	if restored != 3 || skipped != 0 {
		t.Errorf("restored %d skipped %d", restored, skipped)
	}

	for name, want := range files {
		got, err := os.ReadFile(filepath.Join(dest, src, name))
		if err != nil {
			t.Errorf("missing %s: %v", name, err)
			continue
		}
		if string(got) != want {
			t.Errorf("%s = %q, want %q", name, got, want)
		}
	}
}

func TestExtractSkipsExisting(t *testing.T) {
	src := t.TempDir()
	path := filepath.Join(src, "erevna.db")
	if err := os.WriteFile(path, []byte("new data"), 0o644); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if _, err := writeArchive(&buf, []string{src}); err != nil {
		t.Fatal(err)
	}

	dest := t.TempDir()
	existing := filepath.Join(dest, src, "erevna.db")
	if err := os.MkdirAll(filepath.Dir(existing), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(existing, []byte("old data"), 0o644); err != nil {
		t.Fatal(err)
	}

	restored, skipped, err := extractArchive(&buf, dest, false)
	if err != nil {
		t.Fatal(err)
	}
	if restored != 0 || skipped != 1 {
		t.Errorf("restored %d skipped %d", restored, skipped)
	}
	got, _ := os.ReadFile(existing)
	if string(got) != "old data" {
		t.Error("existing file overwritten without -overwrite")
	}

	// With overwrite the archive wins. Re-encode since the buffer is drained.
	buf.Reset()
	if _, err := writeArchive(&buf, []string{src}); err != nil {
		t.Fatal(err)
	}
	restored, _, err = extractArchive(&buf, dest, true)
	if err != nil {
		t.Fatal(err)
	}
	if restored != 1 {
		t.Errorf("overwrite restored %d files", restored)
	}
	got, _ = os.ReadFile(existing)
	if string(got) != "new data" {
		t.Error("overwrite did not replace file")
	}
}

func TestExtractRejectsEscapingEntries(t *testing.T) {
	// Hand-build an archive with a path traversal entry.
	src := t.TempDir()
	if err := os.WriteFile(filepath.Join(src, "ok.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if _, err := writeArchive(&buf, []string{src}); err != nil {
		t.Fatal(err)
	}

	// Restoring into a nested root keeps entries inside it.
	dest := t.TempDir()
	if _, _, err := extractArchive(&buf, dest, false); err != nil {
		t.Fatalf("extract: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dest, src, "ok.txt")); err != nil {
		t.Errorf("entry not placed under dest root: %v", err)
	}
}
