// Where: internal/infra/envfile/envfile_test.go
// What: Tests for env file discovery and materialization.
// Why: Generated files are read by docker run --env-file, byte for byte.
package envfile

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/joho/godotenv"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "template.core_backend.env"), "A=1\n")
	writeFile(t, filepath.Join(dir, "template.admin_app.env"), "B=2\n")
	writeFile(t, filepath.Join(dir, "template..env"), "C=3\n")
	writeFile(t, filepath.Join(dir, "stack.yaml"), "project: x\n")
	writeFile(t, filepath.Join(dir, ".core_backend.env"), "A=old\n")
	if err := os.Mkdir(filepath.Join(dir, "template.dir.env"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	pairs, err := Discover(dir)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	want := []Pair{
		{Name: "admin_app", Template: filepath.Join(dir, "template.admin_app.env"), Target: filepath.Join(dir, ".admin_app.env")},
		{Name: "core_backend", Template: filepath.Join(dir, "template.core_backend.env"), Target: filepath.Join(dir, ".core_backend.env")},
	}
	if !reflect.DeepEqual(pairs, want) {
		t.Fatalf("unexpected pairs:\n got %+v\nwant %+v", pairs, want)
	}
}

func TestDiscoverErrors(t *testing.T) {
	if _, err := Discover(" "); err == nil {
		t.Fatalf("expected error for blank dir")
	}
	if _, err := Discover(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatalf("expected error for missing dir")
	}
}

func TestMaterializeAppliesOverrides(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "template.core_backend.env"), "DOMAIN=localhost\nOPENAI_API_KEY=\nLOG_LEVEL=info\n")

	results, err := Materialize(dir, map[string]string{
		"DOMAIN":         "testing.example.org",
		"OPENAI_API_KEY": "sk-test",
		"UNUSED":         "ignored",
	}, false)
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}
	if len(results) != 1 || results[0].Status != StatusWritten {
		t.Fatalf("unexpected results: %+v", results)
	}
	if !reflect.DeepEqual(results[0].Replaced, []string{"DOMAIN", "OPENAI_API_KEY"}) {
		t.Fatalf("unexpected replaced keys: %v", results[0].Replaced)
	}

	target := filepath.Join(dir, ".core_backend.env")
	got, err := godotenv.Read(target)
	if err != nil {
		t.Fatalf("read target: %v", err)
	}
	want := map[string]string{"DOMAIN": "testing.example.org", "OPENAI_API_KEY": "sk-test", "LOG_LEVEL": "info"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected values: %v", got)
	}
	info, err := os.Stat(target)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("unexpected mode %v", perm)
	}
}

func TestMaterializeSkipsExistingUnlessForced(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "template.caddy.env"), "DOMAIN=localhost\n")
	target := filepath.Join(dir, ".caddy.env")
	writeFile(t, target, "DOMAIN=kept\n")

	results, err := Materialize(dir, map[string]string{"DOMAIN": "new"}, false)
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}
	if results[0].Status != StatusSkipped {
		t.Fatalf("expected skip, got %+v", results[0])
	}
	if got, _ := godotenv.Read(target); got["DOMAIN"] != "kept" {
		t.Fatalf("existing file was modified: %v", got)
	}

	results, err = Materialize(dir, map[string]string{"DOMAIN": "new"}, true)
	if err != nil {
		t.Fatalf("materialize forced: %v", err)
	}
	if results[0].Status != StatusWritten {
		t.Fatalf("expected write, got %+v", results[0])
	}
	if got, _ := godotenv.Read(target); got["DOMAIN"] != "new" {
		t.Fatalf("forced write did not apply: %v", got)
	}
}

func readRaw(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

func TestMaterializeWritesPlainDockerEnvFile(t *testing.T) {
	dir := t.TempDir()
	template := "# database\nPOSTGRES_USER=postgres\nPOSTGRES_PORT=05432\n\nexport PASSWORD=\nQUOTED=\"a b\" # trailing\n"
	writeFile(t, filepath.Join(dir, "template.vectordb.env"), template)

	if _, err := Materialize(dir, map[string]string{"PASSWORD": "pa$$w0rd\"x"}, false); err != nil {
		t.Fatalf("materialize: %v", err)
	}
	want := "# database\nPOSTGRES_USER=postgres\nPOSTGRES_PORT=05432\n\nPASSWORD=pa$$w0rd\"x\nQUOTED=\"a b\" # trailing\n"
	if got := readRaw(t, filepath.Join(dir, ".vectordb.env")); got != want {
		t.Fatalf("unexpected file:\n got %q\nwant %q", got, want)
	}
}

func TestMaterializeRejectsMultilineValues(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "template.core_backend.env"), "CERT=\n")

	_, err := Materialize(dir, map[string]string{"CERT": "line1\nline2"}, false)
	if !errors.Is(err, ErrMultilineValue) {
		t.Fatalf("expected ErrMultilineValue, got %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(dir, ".core_backend.env")); !errors.Is(statErr, os.ErrNotExist) {
		t.Fatalf("nothing should be written, stat err = %v", statErr)
	}
}

func TestMaterializeForcedTightensExistingMode(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "template.vectordb.env"), "PASSWORD=\n")
	target := filepath.Join(dir, ".vectordb.env")
	writeFile(t, target, "PASSWORD=old\n")
	if err := os.Chmod(target, 0o644); err != nil {
		t.Fatalf("chmod: %v", err)
	}

	if _, err := Materialize(dir, map[string]string{"PASSWORD": "secret"}, true); err != nil {
		t.Fatalf("materialize: %v", err)
	}
	info, err := os.Stat(target)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("unexpected mode %v", perm)
	}
	if got := readRaw(t, target); got != "PASSWORD=secret\n" {
		t.Fatalf("unexpected content %q", got)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 2 {
		t.Fatalf("temp file left behind: %v", entries)
	}
}
