// Package fixtures provides the development harness that turns a
// directory of JSON files into live data providers. A file named
// "<componentID>__<dataType>.json" registers a provider-role definition
// on discovery, publishes its content through the manager on every write,
// and removes the definition when the file disappears. Front-end
// developers edit a fixture and watch the dependent views react.
package fixtures

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/flowmail/flowmail/internal/core"
	"github.com/flowmail/flowmail/internal/logging"
	"github.com/flowmail/flowmail/internal/types"
)

// Provider watches a fixture directory and feeds the dependency core.
type Provider struct {
	core     *core.Core
	logger   logging.Logger
	dir      string
	debounce time.Duration

	watcher *fsnotify.Watcher

	mu   sync.Mutex
	defs map[string]string // fixture path -> definition id
}

// NewProvider creates a fixture provider over the given directory.
func NewProvider(c *core.Core, logger logging.Logger, dir string, debounce time.Duration) (*Provider, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if logger == nil {
		logger = logging.NewNopLogger()
	}

	return &Provider{
		core:     c,
		logger:   logger.WithComponent("fixtures"),
		dir:      dir,
		debounce: debounce,
		watcher:  watcher,
		defs:     make(map[string]string),
	}, nil
}

// Start scans the directory, registers the existing fixtures, and then
// processes filesystem events until the context is cancelled.
func (p *Provider) Start(ctx context.Context) error {
	if err := p.Scan(ctx); err != nil {
		return err
	}

	if err := p.watcher.Add(p.dir); err != nil {
		return err
	}

	// Rapid editor writes collapse into one publish per path.
	timers := make(map[string]*time.Timer)
	var timersMu sync.Mutex

	defer func() {
		timersMu.Lock()
		for _, t := range timers {
			t.Stop()
		}
		timersMu.Unlock()
		_ = p.watcher.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-p.watcher.Events:
			if !ok {
				return nil
			}
			path := event.Name
			if _, _, valid := ParseFixtureName(filepath.Base(path)); !valid {
				continue
			}

			switch {
			case event.Op&(fsnotify.Create|fsnotify.Write) != 0:
				timersMu.Lock()
				if t, exists := timers[path]; exists {
					t.Stop()
				}
				timers[path] = time.AfterFunc(p.debounce, func() {
					p.load(ctx, path)
				})
				timersMu.Unlock()

			case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				p.unload(ctx, path)
			}

		case err, ok := <-p.watcher.Errors:
			if !ok {
				return nil
			}
			p.logger.Warn(ctx, err, "watch error", "dir", p.dir)
		}
	}
}

// Close releases the underlying watcher when Start was never run.
func (p *Provider) Close() error {
	return p.watcher.Close()
}

// Scan registers and publishes every fixture already in the directory.
// Start runs it automatically; the list command uses it standalone.
func (p *Provider) Scan(ctx context.Context) error {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, _, valid := ParseFixtureName(entry.Name()); valid {
			p.load(ctx, filepath.Join(p.dir, entry.Name()))
		}
	}

	return nil
}

// load registers the fixture's provider definition (first sight only) and
// publishes its content through the manager.
func (p *Provider) load(ctx context.Context, path string) {
	componentID, dataType, valid := ParseFixtureName(filepath.Base(path))
	if !valid {
		return
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		p.logger.Warn(ctx, err, "fixture read failed", "path", path)
		return
	}

	var payload interface{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		p.logger.Warn(ctx, err, "fixture is not valid JSON", "path", path)
		return
	}

	p.mu.Lock()
	_, known := p.defs[path]
	if !known {
		defID := p.core.Registry.RegisterDefinition(&types.DependencyDefinition{
			ComponentID: componentID,
			DataType:    dataType,
			Role:        types.RoleProvider,
			OneToMany:   true,
		})
		p.defs[path] = defID
	}
	p.mu.Unlock()

	p.core.Manager.UpdateData(componentID, dataType, payload)
	p.logger.Debug(ctx, "fixture published",
		"component_id", componentID, "data_type", dataType, "path", path)
}

// unload removes the fixture's definition, cascading removal of its
// instances.
func (p *Provider) unload(ctx context.Context, path string) {
	p.mu.Lock()
	defID, known := p.defs[path]
	delete(p.defs, path)
	p.mu.Unlock()

	if !known {
		return
	}

	p.core.Registry.RemoveDefinition(defID)
	p.logger.Debug(ctx, "fixture removed", "path", path)
}

// DefinitionCount returns the number of fixtures currently registered.
func (p *Provider) DefinitionCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.defs)
}

// ParseFixtureName splits "<componentID>__<dataType>.json" into its parts.
func ParseFixtureName(name string) (componentID, dataType string, ok bool) {
	if !strings.HasSuffix(name, ".json") {
		return "", "", false
	}
	base := strings.TrimSuffix(name, ".json")

	parts := strings.SplitN(base, "__", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}

	return parts[0], parts[1], true
}
