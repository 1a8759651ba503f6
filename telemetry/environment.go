package telemetry

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Environment describes the host workspace for usage records.
type Environment interface {
	WorkspaceType() string
	FileCount() int
	PrimaryLanguage() string
}

// StaticEnvironment reports fixed values.
type StaticEnvironment struct {
	Type     string
	Files    int
	Language string
}

func (s StaticEnvironment) WorkspaceType() string   { return s.Type }
func (s StaticEnvironment) FileCount() int          { return s.Files }
func (s StaticEnvironment) PrimaryLanguage() string { return s.Language }

// unknownEnvironment is used when no Environment is configured.
var unknownEnvironment = StaticEnvironment{Type: "unknown", Language: "unknown"}

// maxScannedFiles bounds a workspace walk.
const maxScannedFiles = 100_000

// workspaceMarkers maps root-level files to a workspace type, checked in order.
var workspaceMarkers = []struct {
	file string
	kind string
}{
	{"go.mod", "go"},
	{"package.json", "node"},
	{"pyproject.toml", "python"},
	{"requirements.txt", "python"},
	{"Cargo.toml", "rust"},
	{"pom.xml", "java"},
	{"build.gradle", "java"},
	{"Gemfile", "ruby"},
	{"composer.json", "php"},
}

var extensionLanguages = map[string]string{
	".go":    "go",
	".ts":    "typescript",
	".tsx":   "typescript",
	".js":    "javascript",
	".jsx":   "javascript",
	".mjs":   "javascript",
	".py":    "python",
	".rs":    "rust",
	".java":  "java",
	".kt":    "kotlin",
	".rb":    "ruby",
	".php":   "php",
	".c":     "c",
	".h":     "c",
	".cpp":   "cpp",
	".cc":    "cpp",
	".cs":    "csharp",
	".swift": "swift",
}

var skippedDirs = map[string]bool{
	"node_modules": true,
	"vendor":       true,
	"target":       true,
	"dist":         true,
	"build":        true,
}

// WorkspaceEnvironment inspects a directory tree. The tree is scanned once,
// on first use; call Refresh to rescan.
type WorkspaceEnvironment struct {
	root string

	mu      sync.Mutex
	scanned bool
	kind    string
	files   int
	lang    string
}

// NewWorkspaceEnvironment creates an Environment rooted at root.
func NewWorkspaceEnvironment(root string) *WorkspaceEnvironment {
	return &WorkspaceEnvironment{root: root}
}

// Root returns the workspace directory.
func (w *WorkspaceEnvironment) Root() string {
	return w.root
}

func (w *WorkspaceEnvironment) WorkspaceType() string {
	w.ensure()
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.kind
}

func (w *WorkspaceEnvironment) FileCount() int {
	w.ensure()
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.files
}

func (w *WorkspaceEnvironment) PrimaryLanguage() string {
	w.ensure()
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lang
}

// Refresh rescans the workspace.
func (w *WorkspaceEnvironment) Refresh() {
	kind, files, lang := scanWorkspace(w.root)
	w.mu.Lock()
	w.kind, w.files, w.lang = kind, files, lang
	w.scanned = true
	w.mu.Unlock()
}

func (w *WorkspaceEnvironment) ensure() {
	w.mu.Lock()
	scanned := w.scanned
	w.mu.Unlock()
	if !scanned {
		w.Refresh()
	}
}

func scanWorkspace(root string) (kind string, files int, lang string) {
	if root == "" {
		return "none", 0, "unknown"
	}
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return "none", 0, "unknown"
	}

	counts := make(map[string]int)
	errStop := errors.New("stop")
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			name := d.Name()
			if path != root && (strings.HasPrefix(name, ".") || skippedDirs[name]) {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		files++
		if l, ok := extensionLanguages[strings.ToLower(filepath.Ext(d.Name()))]; ok {
			counts[l]++
		}
		if files >= maxScannedFiles {
			return errStop
		}
		return nil
	})

	kind = "generic"
	if files == 0 {
		kind = "empty"
	}
	for _, m := range workspaceMarkers {
		if _, err := os.Stat(filepath.Join(root, m.file)); err == nil {
			kind = m.kind
			break
		}
	}

	lang = "unknown"
	best := 0
	for l, n := range counts {
		if n > best || (n == best && l < lang) {
			lang, best = l, n
		}
	}
	return kind, files, lang
}
