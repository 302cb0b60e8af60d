package resource

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestNewHandlerWipesRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "downloads")
	if err := os.MkdirAll(filepath.Join(root, "stale"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "stale", "old.mp3"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := NewHandler(root); err != nil {
		t.Fatalf("NewHandler: %v", err)
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("root not wiped, %d entries remain", len(entries))
	}
}

func TestClaimNumbersSequentially(t *testing.T) {
	h, err := NewHandler(filepath.Join(t.TempDir(), "downloads"))
	if err != nil {
		t.Fatal(err)
	}

	r0, err := h.Claim()
	if err != nil {
		t.Fatal(err)
	}
	r1, err := h.Claim()
	if err != nil {
		t.Fatal(err)
	}

	if filepath.Base(r0.Path()) != "0" || filepath.Base(r1.Path()) != "1" {
		t.Errorf("claims numbered %q, %q; want 0, 1", filepath.Base(r0.Path()), filepath.Base(r1.Path()))
	}
	for _, r := range []*Resource{r0, r1} {
		if fi, err := os.Stat(r.Path()); err != nil || !fi.IsDir() {
			t.Errorf("claimed path %s not a directory: %v", r.Path(), err)
		}
	}
}

func TestCloseRemovesDirExactlyOnce(t *testing.T) {
	h, err := NewHandler(filepath.Join(t.TempDir(), "downloads"))
	if err != nil {
		t.Fatal(err)
	}
	r, err := h.Claim()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(r.Path(), "partial.m4a"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if r.Open() {
		t.Error("resource still open after Close")
	}
	if _, err := os.Stat(r.Path()); !os.IsNotExist(err) {
		t.Errorf("directory still exists after Close: %v", err)
	}

	if err := r.Close(); !errors.Is(err, ErrClosed) {
		t.Errorf("second Close = %v, want ErrClosed", err)
	}
}
