package bus

import (
	"fmt"
	"log/slog"
)

// FireAndForgetPlugin is the name of the plugin returned by FireAndForget.
const FireAndForgetPlugin = "fire-and-forget"

// Plugin extends a bus. Init runs once per plugin name.
type Plugin interface {
	Name() string
	Init(b *Bus) error
}

type pluginFunc struct {
	name string
	init func(*Bus) error
}

func (p pluginFunc) Name() string      { return p.name }
func (p pluginFunc) Init(b *Bus) error { return p.init(b) }

// NewPlugin builds a Plugin from a name and an init function.
func NewPlugin(name string, init func(*Bus) error) Plugin {
	return pluginFunc{name: name, init: init}
}

// Use initializes p unless a plugin with the same name is already loaded.
// A plugin whose Init fails is not recorded and may be used again.
func (b *Bus) Use(p Plugin) error {
	if p == nil || p.Name() == "" {
		return ErrInvalidPlugin
	}

	b.pluginMu.Lock()
	defer b.pluginMu.Unlock()

	name := p.Name()
	if b.Loaded(name) {
		return nil
	}

	if err := p.Init(b); err != nil {
		return fmt.Errorf("plugin %s: %w", name, err)
	}

	b.mu.Lock()
	b.plugins[name] = p
	b.mu.Unlock()

	b.logger.Info("plugin loaded", slog.String("plugin", name))
	return nil
}

// Loaded reports whether a plugin named name has been initialized.
func (b *Bus) Loaded(name string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.plugins[name]
	return ok
}

// FireAndForget returns the plugin that allows Act without a reply callback.
func FireAndForget() Plugin {
	return NewPlugin(FireAndForgetPlugin, func(b *Bus) error {
		b.fireAndForget.Store(true)
		return nil
	})
}
