package template

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
)

// Loader resolves file-based views. In production mode each view is loaded
// and compiled once per process; in development every lookup reloads and
// recompiles from disk, trading speed for edit-reload convenience.
type Loader struct {
	// Dir is the template directory; view names are joined onto it.
	Dir string
	// Production enables the process-lifetime compile cache.
	Production bool
	// Globals are bindings visible to embedded code after the context.
	Globals map[string]any

	mu    sync.RWMutex
	cache map[string]*Template
}

// NewLoader builds a Loader for dir.
func NewLoader(dir string, production bool) *Loader {
	return &Loader{Dir: dir, Production: production}
}

// View loads and compiles the named template file.
func (l *Loader) View(name string) (*Template, error) {
	if l.Production {
		l.mu.RLock()
		t, ok := l.cache[name]
		l.mu.RUnlock()
		if ok {
			return t, nil
		}
	}

	path := filepath.Join(l.Dir, name)
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read view %q", path)
	}
	t, err := l.Compile(string(blob), name)
	if err != nil {
		return nil, err
	}

	if l.Production {
		l.mu.Lock()
		if l.cache == nil {
			l.cache = map[string]*Template{}
		}
		l.cache[name] = t
		l.mu.Unlock()
	}
	return t, nil
}

// Render is a convenience for View followed by Render.
func (l *Loader) Render(name string, ctx map[string]any) (string, error) {
	t, err := l.View(name)
	if err != nil {
		return "", err
	}
	return t.Render(ctx)
}
