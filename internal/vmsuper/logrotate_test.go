package vmsuper

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRotateLogIfLargeSkipsSmallFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sandbox.log")
	if err := os.WriteFile(path, []byte("small"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := rotateLogIfLarge(path); err != nil {
		t.Fatalf("rotateLogIfLarge: %v", err)
	}
	if _, err := os.Stat(path + ".zst"); !os.IsNotExist(err) {
		t.Errorf("expected no .zst file for a small log, stat err = %v", err)
	}
}

func TestRotateLogIfLargeSkipsMissingFile(t *testing.T) {
	if err := rotateLogIfLarge(filepath.Join(t.TempDir(), "nope.log")); err != nil {
		t.Fatalf("expected nil error for missing file, got %v", err)
	}
}

func TestRotateLogIfLargeCompressesAndTruncates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sandbox.log")

	big := make([]byte, maxLogBytes+1)
	for i := range big {
		big[i] = 'x'
	}
	if err := os.WriteFile(path, big, 0o644); err != nil {
		t.Fatal(err)
	}

	if err := rotateLogIfLarge(path); err != nil {
		t.Fatalf("rotateLogIfLarge: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat original: %v", err)
	}
	if info.Size() != 0 {
		t.Errorf("expected original log truncated to 0 bytes, got %d", info.Size())
	}

	zinfo, err := os.Stat(path + ".zst")
	if err != nil {
		t.Fatalf("stat rotated: %v", err)
	}
	if zinfo.Size() == 0 {
		t.Error("expected non-empty compressed rotation file")
	}
}
