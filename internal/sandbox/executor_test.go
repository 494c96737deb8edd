package sandbox

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestExecutor(t *testing.T) (*Executor, string) {
	t.Helper()
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "notes.txt"), []byte("hello sandbox"), 0644); err != nil {
		t.Fatal(err)
	}
	ex, err := New([]string{root}, 5*time.Second)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return ex, root
}

func TestExecuteSimpleScript(t *testing.T) {
	ex, _ := newTestExecutor(t)

	res := ex.Execute(context.Background(), `
import "strings"

func Run() (string, error) {
	return strings.ToUpper("ok"), nil
}
`)
	if res.Error != "" {
		t.Fatalf("unexpected error: %s", res.Error)
	}
	if res.Output != "OK" {
		t.Errorf("output = %q, want OK", res.Output)
	}
}

func TestExecuteReadsScopedFile(t *testing.T) {
	ex, _ := newTestExecutor(t)

	res := ex.Execute(context.Background(), `
import "sandboxfs"

func Run() (string, error) {
	return sandboxfs.ReadFile("notes.txt")
}
`)
	if res.Error != "" {
		t.Fatalf("unexpected error: %s", res.Error)
	}
	if res.Output != "hello sandbox" {
		t.Errorf("output = %q", res.Output)
	}
}

func TestExecutePathOutsideRootIsDeniedNotThrown(t *testing.T) {
	ex, _ := newTestExecutor(t)

	res := ex.Execute(context.Background(), `
import "sandboxfs"

func Run() (string, error) {
	return sandboxfs.ReadFile("/etc/passwd")
}
`)
	if res.Error == "" {
		t.Fatal("expected an error result for out-of-scope path")
	}
	if !strings.Contains(strings.ToLower(res.Error), "access denied") {
		t.Errorf("error should say access denied, got: %s", res.Error)
	}
}

func TestExecuteTraversalIsDenied(t *testing.T) {
	ex, _ := newTestExecutor(t)

	res := ex.Execute(context.Background(), `
import "sandboxfs"

func Run() (string, error) {
	return sandboxfs.ReadFile("../../../etc/passwd")
}
`)
	if !strings.Contains(strings.ToLower(res.Error), "access denied") {
		t.Errorf("traversal should be denied, got: %+v", res)
	}
}

func TestExecuteForbiddenImport(t *testing.T) {
	ex, _ := newTestExecutor(t)

	res := ex.Execute(context.Background(), `
import "os/exec"

func Run() (string, error) {
	return "", nil
}
`)
	if !strings.Contains(res.Error, "forbidden imports") {
		t.Errorf("expected forbidden import error, got: %+v", res)
	}
}

func TestExecuteListAndStat(t *testing.T) {
	ex, _ := newTestExecutor(t)

	res := ex.Execute(context.Background(), `
import (
	"fmt"
	"sandboxfs"
)

func Run() (string, error) {
	names, err := sandboxfs.ListDir(".")
	if err != nil {
		return "", err
	}
	info, err := sandboxfs.Stat("notes.txt")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d entries, notes.txt is %d bytes", len(names), info.Size), nil
}
`)
	if res.Error != "" {
		t.Fatalf("unexpected error: %s", res.Error)
	}
	if res.Output != "1 entries, notes.txt is 13 bytes" {
		t.Errorf("output = %q", res.Output)
	}
}

func TestExecuteTimeout(t *testing.T) {
	root := t.TempDir()
	ex, err := New([]string{root}, 50*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}

	res := ex.Execute(context.Background(), `
import "time"

func Run() (string, error) {
	time.Sleep(2 * time.Second)
	return "late", nil
}
`)
	if !strings.Contains(res.Error, "timed out") {
		t.Errorf("expected timeout error, got: %+v", res)
	}
}

func TestExecuteScriptErrorIsCaught(t *testing.T) {
	ex, _ := newTestExecutor(t)

	res := ex.Execute(context.Background(), `
import "errors"

func Run() (string, error) {
	return "", errors.New("deliberate failure")
}
`)
	if res.Error != "deliberate failure" {
		t.Errorf("script error should surface in result, got: %+v", res)
	}
}

func TestExecuteMissingRunFunc(t *testing.T) {
	ex, _ := newTestExecutor(t)
	res := ex.Execute(context.Background(), `func NotRun() {}`)
	if !strings.Contains(res.Error, "func Run() (string, error)") {
		t.Errorf("expected missing Run error, got: %+v", res)
	}
}

func TestNewRequiresRoot(t *testing.T) {
	if _, err := New(nil, time.Second); err == nil {
		t.Fatal("New without roots should fail")
	}
}
