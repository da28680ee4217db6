//go:build linux || darwin

package discovery

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"plugin"
	"sort"
	"strings"
	"sync"

	"github.com/stellarlinkco/agentdeck/internal/domain"
)

// PluginProvider scans one or more root directories for compiled shared
// objects built with `go build -buildmode=plugin` and named "test_*.so".
// Each plugin exports a package-level `var Cases map[string]CaseFunc`
// keyed by test name, and an optional `var Docs map[string]string` for
// docstrings. Module is derived from the plugin's base filename with the
// "test_" prefix and ".so" suffix stripped.
//
// The stdlib plugin package caches a loaded plugin by its path for the
// life of the process, so re-opening the same path on reload would return
// the stale symbol table. Reload works around this by copying the
// artifact's bytes to a content-hashed temp path before calling
// plugin.Open, the standard idiom for in-process Go plugin hot-reload.
type PluginProvider struct {
	roots   []string
	exclude map[string]struct{}
	tmpDir  string

	scan singleflightScan

	mu      sync.RWMutex
	loaded  map[string]*loadedPlugin // path -> plugin
	entries map[string]entry         // qualifiedName -> entry

	reloadMu sync.RWMutex
}

type loadedPlugin struct {
	path    string
	modTime int64
	size    int64
}

// NewPluginProvider creates a provider scanning the given roots. Plugins
// under the paths (files or directories) in exclude are opened in place
// rather than through a fresh temp copy, so a rebuilt artifact there is
// not picked up by Reload.
func NewPluginProvider(roots []string, exclude []string, tmpDir string) *PluginProvider {
	if tmpDir == "" {
		tmpDir = os.TempDir()
	}
	ex := make(map[string]struct{}, len(exclude))
	for _, e := range trimAll(exclude) {
		ex[filepath.Clean(e)] = struct{}{}
	}
	return &PluginProvider{
		roots:   trimAll(roots),
		exclude: ex,
		tmpDir:  tmpDir,
		loaded:  make(map[string]*loadedPlugin),
		entries: make(map[string]entry),
	}
}

// ListTests returns the current snapshot, scanning lazily on first call or
// after a Reload invalidated the cache.
func (p *PluginProvider) ListTests(ctx context.Context) (Result, error) {
	p.reloadMu.RLock()
	defer p.reloadMu.RUnlock()
	res, err := p.scan.do(p.scanOnce)
	return res, err
}

func (p *PluginProvider) scanOnce() (Result, error) {
	p.mu.RLock()
	haveAny := len(p.entries) > 0
	p.mu.RUnlock()
	if haveAny {
		return p.snapshot(), nil
	}
	return p.loadAll()
}

func (p *PluginProvider) snapshot() Result {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]domain.TestDescriptor, 0, len(p.entries))
	for _, e := range p.entries {
		out = append(out, e.descriptor)
	}
	sortDescriptors(out)
	return Result{Tests: out}
}

// Case looks up a loaded CaseFunc by qualified name, scanning first when a
// Reload has emptied the cache.
func (p *PluginProvider) Case(qualifiedName string) (CaseFunc, bool) {
	p.mu.RLock()
	empty := len(p.entries) == 0
	p.mu.RUnlock()
	if empty {
		_, _ = p.ListTests(context.Background())
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.entries[qualifiedName]
	if !ok {
		return nil, false
	}
	return e.fn, true
}

// Reload drops cached plugins owned by the configured roots (excluding the
// configured exclusion list) and re-scans on the next ListTests call.
func (p *PluginProvider) Reload(ctx context.Context) error {
	p.reloadMu.Lock()
	defer p.reloadMu.Unlock()

	p.mu.Lock()
	p.entries = make(map[string]entry)
	p.loaded = make(map[string]*loadedPlugin)
	p.mu.Unlock()
	slog.Info("discovery: plugin cache invalidated", "roots", p.roots)
	return nil
}

func (p *PluginProvider) loadAll() (Result, error) {
	var errs []string
	entries := make(map[string]entry)
	loaded := make(map[string]*loadedPlugin)

	var paths []string
	for _, root := range p.roots {
		found, err := findPlugins(root)
		if err != nil {
			errs = append(errs, err.Error())
			slog.Warn("discovery: scan root failed", "root", root, "error", err)
			continue
		}
		paths = append(paths, found...)
	}
	sort.Strings(paths)

	for _, path := range paths {
		module, fileEntries, lp, err := p.loadOne(path)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", path, err))
			slog.Warn("discovery: plugin load failed", "path", path, "error", err)
			continue
		}
		for name, e := range fileEntries {
			qn := qualifiedName(module, name)
			entries[qn] = e
		}
		loaded[path] = lp
	}

	p.mu.Lock()
	p.entries = entries
	p.loaded = loaded
	p.mu.Unlock()
	slog.Info("discovery: plugin scan complete", "test_count", len(entries), "error_count", len(errs))

	out := make([]domain.TestDescriptor, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.descriptor)
	}
	sortDescriptors(out)

	return Result{Tests: out, ErrorText: strings.Join(errs, "; ")}, nil
}

func (p *PluginProvider) isExcluded(path string) bool {
	clean := filepath.Clean(path)
	if _, ok := p.exclude[clean]; ok {
		return true
	}
	for ex := range p.exclude {
		if strings.HasPrefix(clean, ex+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func (p *PluginProvider) loadOne(path string) (module string, out map[string]entry, lp *loadedPlugin, err error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", nil, nil, err
	}

	freshPath := path
	if !p.isExcluded(path) {
		freshPath, err = copyToTemp(path, p.tmpDir)
		if err != nil {
			return "", nil, nil, fmt.Errorf("copy for reload: %w", err)
		}
	}

	plug, err := plugin.Open(freshPath)
	if err != nil {
		return "", nil, nil, fmt.Errorf("open: %w", err)
	}

	casesSym, err := plug.Lookup("Cases")
	if err != nil {
		return "", nil, nil, fmt.Errorf("missing Cases symbol: %w", err)
	}
	cases, ok := casesSym.(*map[string]func() (domain.CaseSpec, error))
	if !ok {
		return "", nil, nil, fmt.Errorf("Cases has unexpected type %T", casesSym)
	}

	docs := map[string]string{}
	if docsSym, err := plug.Lookup("Docs"); err == nil {
		if d, ok := docsSym.(*map[string]string); ok && d != nil {
			docs = *d
		}
	}

	base := filepath.Base(path)
	module = strings.TrimSuffix(strings.TrimPrefix(base, "test_"), ".so")

	out = make(map[string]entry, len(*cases))
	for name, fn := range *cases {
		name = strings.TrimSpace(name)
		if name == "" || fn == nil {
			continue
		}
		qn := qualifiedName(module, name)
		out[name] = entry{
			descriptor: domain.TestDescriptor{
				QualifiedName: qn,
				Module:        module,
				Name:          name,
				Docstring:     docs[name],
			},
			fn: CaseFunc(fn),
		}
	}

	return module, out, &loadedPlugin{path: path, modTime: info.ModTime().UnixNano(), size: info.Size()}, nil
}

func findPlugins(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read dir %q: %w", root, err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, "test_") && strings.HasSuffix(name, ".so") {
			out = append(out, filepath.Join(root, name))
		}
	}
	return out, nil
}

// copyToTemp copies path to a content-hashed name under dir, so each call
// to plugin.Open receives a path the runtime has never cached.
func copyToTemp(path, dir string) (string, error) {
	src, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer src.Close()

	h := sha256.New()
	if _, err := io.Copy(h, src); err != nil {
		return "", err
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return "", err
	}

	sum := hex.EncodeToString(h.Sum(nil))[:16]
	dstPath := filepath.Join(dir, fmt.Sprintf("%s-%s.so", filepath.Base(path), sum))

	if _, err := os.Stat(dstPath); err == nil {
		return dstPath, nil
	}

	dst, err := os.CreateTemp(dir, "plugin-*.so.tmp")
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(dst.Name())
		return "", err
	}
	if err := dst.Sync(); err != nil {
		dst.Close()
		os.Remove(dst.Name())
		return "", err
	}
	if err := dst.Close(); err != nil {
		os.Remove(dst.Name())
		return "", err
	}
	if err := os.Rename(dst.Name(), dstPath); err != nil {
		os.Remove(dst.Name())
		return "", err
	}
	return dstPath, nil
}
