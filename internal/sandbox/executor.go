// Package sandbox runs untrusted scripts through the Yaegi interpreter with a
// read-only, path-scoped view of the filesystem. Instead of compiled plugins
// or os/exec (which can hang, crash, or escape), scripts are interpreted Go
// restricted to a stdlib whitelist plus an enumerated capability surface:
// ReadFile, ListDir, Stat, and Glob, all bound to declared root directories.
// No network, no process spawning, no writes.
package sandbox

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"intentgraph/internal/logging"
)

// DefaultTimeout bounds one script execution when no timeout is configured.
const DefaultTimeout = 5 * time.Second

// Result is the structured outcome of a script run. Faults (bad imports,
// panics, timeouts, denied paths surfaced by the script) land in Error rather
// than propagating, so a calling conversation can react to them.
type Result struct {
	Output string `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}

// FileInfo is the stat shape exposed to scripts.
type FileInfo struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
	Dir  bool   `json:"dir"`
}

// Executor interprets scripts against one or more declared roots.
type Executor struct {
	roots   []string
	timeout time.Duration
	allowed map[string]bool
}

// New creates an executor scoped to the given root directories. Roots are
// canonicalized once; every path a script touches is resolved and checked
// against them. At least one root is required.
func New(roots []string, timeout time.Duration) (*Executor, error) {
	if len(roots) == 0 {
		return nil, fmt.Errorf("sandbox requires at least one root directory")
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	canonical := make([]string, 0, len(roots))
	for _, root := range roots {
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("cannot canonicalize sandbox root %s: %w", root, err)
		}
		if resolved, err := filepath.EvalSymlinks(abs); err == nil {
			abs = resolved
		}
		canonical = append(canonical, filepath.Clean(abs))
	}

	return &Executor{
		roots:   canonical,
		timeout: timeout,
		allowed: map[string]bool{
			// Safe stdlib packages.
			"strings":         true,
			"strconv":         true,
			"fmt":             true,
			"math":            true,
			"regexp":          true,
			"encoding/json":   true,
			"encoding/base64": true,
			"time":            true,
			"sort":            true,
			"bytes":           true,
			"path":            true,
			"path/filepath":   true,
			"errors":          true,
			// The capability surface.
			"sandboxfs": true,

			// Explicitly absent (unsafe): os, os/exec, net, net/http,
			// syscall, unsafe, plugin, io/ioutil.
		},
	}, nil
}

// Roots returns the canonicalized root directories.
func (e *Executor) Roots() []string {
	return append([]string(nil), e.roots...)
}

// Execute interprets a script that must define
//
//	func Run() (string, error)
//
// and returns its output. Execution is time-bounded; every fault is caught
// and returned as a Result carrying Error.
func (e *Executor) Execute(ctx context.Context, code string) *Result {
	logging.SandboxDebug("Execute: script of %d bytes", len(code))

	if err := e.validateImports(code); err != nil {
		return &Result{Error: err.Error()}
	}

	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return &Result{Error: fmt.Sprintf("failed to load stdlib: %v", err)}
	}
	if err := i.Use(e.exports()); err != nil {
		return &Result{Error: fmt.Sprintf("failed to load sandboxfs: %v", err)}
	}

	if _, err := i.Eval(wrapCode(code)); err != nil {
		return &Result{Error: fmt.Sprintf("script evaluation failed: %v", err)}
	}

	run, err := i.Eval("main.Run")
	if err != nil {
		return &Result{Error: "script must define: func Run() (string, error)"}
	}
	runFunc, ok := run.Interface().(func() (string, error))
	if !ok {
		return &Result{Error: "Run has incorrect signature (expected: func() (string, error))"}
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resultCh := make(chan string, 1)
	errCh := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				errCh <- fmt.Errorf("script panicked: %v", r)
			}
		}()
		out, err := runFunc()
		if err != nil {
			errCh <- err
			return
		}
		resultCh <- out
	}()

	select {
	case out := <-resultCh:
		logging.SandboxDebug("Execute: completed, output %d bytes", len(out))
		return &Result{Output: out}
	case err := <-errCh:
		logging.Sandbox("Execute: script error: %v", err)
		return &Result{Error: err.Error()}
	case <-ctx.Done():
		logging.Sandbox("Execute: timed out after %v", e.timeout)
		return &Result{Error: fmt.Sprintf("script execution timed out: %v", ctx.Err())}
	}
}

// exports builds the sandboxfs capability package injected into the
// interpreter.
func (e *Executor) exports() interp.Exports {
	return interp.Exports{
		"sandboxfs/sandboxfs": {
			"ReadFile": reflect.ValueOf(e.readFile),
			"ListDir":  reflect.ValueOf(e.listDir),
			"Stat":     reflect.ValueOf(e.stat),
			"Glob":     reflect.ValueOf(e.glob),
			"FileInfo": reflect.ValueOf((*FileInfo)(nil)),
		},
	}
}

// resolve canonicalizes a script-supplied path and rejects anything outside
// the declared roots. Relative paths resolve against the first root.
func (e *Executor) resolve(path string) (string, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(e.roots[0], path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("access denied: cannot resolve %s", path)
	}
	abs = filepath.Clean(abs)
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	for _, root := range e.roots {
		if abs == root || strings.HasPrefix(abs, root+string(filepath.Separator)) {
			return abs, nil
		}
	}
	return "", fmt.Errorf("access denied: %s is outside the sandbox roots", path)
}

func (e *Executor) readFile(path string) (string, error) {
	abs, err := e.resolve(path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return "", fmt.Errorf("read failed: %v", err)
	}
	return string(data), nil
}

func (e *Executor) listDir(path string) ([]string, error) {
	abs, err := e.resolve(path)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("list failed: %v", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

func (e *Executor) stat(path string) (FileInfo, error) {
	abs, err := e.resolve(path)
	if err != nil {
		return FileInfo{}, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return FileInfo{}, fmt.Errorf("stat failed: %v", err)
	}
	return FileInfo{Name: info.Name(), Size: info.Size(), Dir: info.IsDir()}, nil
}

func (e *Executor) glob(pattern string) ([]string, error) {
	if !filepath.IsAbs(pattern) {
		pattern = filepath.Join(e.roots[0], pattern)
	}
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("bad glob pattern: %v", err)
	}
	inScope := make([]string, 0, len(matches))
	for _, m := range matches {
		if _, err := e.resolve(m); err == nil {
			inScope = append(inScope, m)
		}
	}
	sort.Strings(inScope)
	return inScope, nil
}

// validateImports checks that the script only imports whitelisted packages.
func (e *Executor) validateImports(code string) error {
	var imports []string
	inBlock := false
	for _, line := range strings.Split(code, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "import (") {
			inBlock = true
			continue
		}
		if inBlock && strings.HasPrefix(trimmed, ")") {
			inBlock = false
			continue
		}
		if inBlock {
			if pkg := strings.Trim(trimmed, `"`); pkg != "" {
				imports = append(imports, pkg)
			}
		} else if strings.HasPrefix(trimmed, "import ") {
			pkg := strings.Trim(strings.TrimPrefix(trimmed, "import "), `"`)
			imports = append(imports, pkg)
		}
	}

	var forbidden []string
	for _, pkg := range imports {
		// Aliased imports: keep only the quoted path.
		if idx := strings.LastIndex(pkg, `"`); idx >= 0 {
			pkg = strings.Trim(pkg[strings.Index(pkg, `"`):], `"`)
		}
		if !e.allowed[pkg] {
			forbidden = append(forbidden, pkg)
		}
	}
	if len(forbidden) > 0 {
		return fmt.Errorf("forbidden imports: %v", forbidden)
	}
	return nil
}

// wrapCode wraps the script in a main package if it is not one already.
func wrapCode(code string) string {
	if strings.Contains(code, "package main") {
		return code
	}
	return "package main\n\n" + code
}
