package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteWorkbook writes placeholder workbook bytes to dir/name and returns the path.
func WriteWorkbook(t testing.TB, dir, name string, content string) string {
	t.Helper()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}
