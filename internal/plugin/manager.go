package plugin

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/ayusman/neurablink/internal/logging"
)

var (
	// ErrPluginNotFound is returned when a requested plugin cannot be found.
	ErrPluginNotFound = errors.New("plugin not found")
	// ErrActionNotSupported is returned when a plugin does not list the requested action.
	ErrActionNotSupported = errors.New("action not supported by plugin")
	// ErrPluginFailed is returned when a plugin reports success=false.
	ErrPluginFailed = errors.New("plugin reported failure")
)

// Manager manages plugin discovery and access.
type Manager struct {
	pluginDir string
	plugins   map[string]*Plugin
	mu        sync.RWMutex
	log       logrus.FieldLogger
}

// NewManager creates a new plugin Manager with the given plugin directory.
func NewManager(pluginDir string, log logrus.FieldLogger) *Manager {
	return &Manager{
		pluginDir: pluginDir,
		plugins:   make(map[string]*Plugin),
		log:       logging.OrDiscard(log).WithField("component", "plugin"),
	}
}

// Discover scans the plugin directory for plugin.json files and loads them.
// A missing directory yields no plugins. Unreadable manifests are skipped.
func (m *Manager) Discover() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.plugins = make(map[string]*Plugin)

	info, err := os.Stat(m.pluginDir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return nil
	}

	entries, err := os.ReadDir(m.pluginDir)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		pluginPath := filepath.Join(m.pluginDir, entry.Name())
		manifestPath := filepath.Join(pluginPath, "plugin.json")

		manifestData, err := os.ReadFile(manifestPath)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			m.log.WithError(err).WithField("path", manifestPath).Warn("skipping unreadable plugin manifest")
			continue
		}

		var manifest Manifest
		if err := codec.Unmarshal(manifestData, &manifest); err != nil || manifest.Name == "" {
			m.log.WithError(err).WithField("path", manifestPath).Warn("skipping invalid plugin manifest")
			continue
		}

		m.plugins[manifest.Name] = &Plugin{
			Manifest:   manifest,
			Path:       pluginPath,
			Executable: filepath.Join(pluginPath, manifest.Executable),
		}
	}

	m.log.WithField("count", len(m.plugins)).Info("plugins discovered")
	return nil
}

// Get returns a plugin by name.
func (m *Manager) Get(name string) (*Plugin, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	plugin, ok := m.plugins[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrPluginNotFound, name)
	}

	return plugin, nil
}

// List returns all discovered plugins sorted by name.
func (m *Manager) List() []*Plugin {
	m.mu.RLock()
	defer m.mu.RUnlock()

	plugins := make([]*Plugin, 0, len(m.plugins))
	for _, plugin := range m.plugins {
		plugins = append(plugins, plugin)
	}
	sort.Slice(plugins, func(i, j int) bool {
		return plugins[i].Manifest.Name < plugins[j].Manifest.Name
	})

	return plugins
}

// PluginDir returns the plugin directory path.
func (m *Manager) PluginDir() string {
	return m.pluginDir
}

// Run looks up name, checks that it supports action and executes it for ev.
// A response with success=false is returned together with ErrPluginFailed.
func (m *Manager) Run(ctx context.Context, exec *Executor, name, action string, ev Event, params any) (*Response, error) {
	plug, err := m.Get(name)
	if err != nil {
		return nil, err
	}
	if !plug.Supports(action) {
		return nil, fmt.Errorf("%w: %s/%s", ErrActionNotSupported, name, action)
	}

	req := &Request{Action: action, Event: ev}
	if params != nil {
		raw, err := codec.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal params: %w", err)
		}
		req.Params = raw
	}

	resp, err := exec.Execute(ctx, plug, req)
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return resp, fmt.Errorf("%w: %s", ErrPluginFailed, resp.Error)
	}
	return resp, nil
}
