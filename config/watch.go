package config

import (
	"log/slog"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Watcher holds the viper instance live-reload is attached to, fanning
// out each reload to every subscriber registered via OnChange (spec
// §6.3's ambient stack: config should not require a restart to apply).
type Watcher struct {
	v      *viper.Viper
	logger *slog.Logger

	mu   sync.Mutex
	subs []func(Config)
}

// OnChange registers fn to run, with the newly reloaded Config, every
// time the watched file changes. fn is also safe to register after
// LoadWatched has already started watching.
func (w *Watcher) OnChange(fn func(Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.subs = append(w.subs, fn)
}

// Notify runs every registered subscriber with cfg. It is called
// internally on each fsnotify reload; exported so tests can exercise
// the fan-out without touching the filesystem.
func (w *Watcher) Notify(cfg Config) {
	w.mu.Lock()
	subs := make([]func(Config), len(w.subs))
	copy(subs, w.subs)
	w.mu.Unlock()

	for _, fn := range subs {
		fn(cfg)
	}
}

// LoadWatched is Load, but keeps the underlying viper instance around
// and enables fsnotify-backed live reload of the config file. Callers
// register interest in reloads via the returned Watcher's OnChange.
func LoadWatched(logger *slog.Logger) (Config, *Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	v := newViper()
	_ = v.ReadInConfig()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, nil, err
	}
	applyBounds(&cfg)

	w := &Watcher{v: v, logger: logger}
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated Config
		if err := v.Unmarshal(&updated); err != nil {
			logger.Error("config: reload failed, keeping previous values", "error", err)
			return
		}
		applyBounds(&updated)
		logger.Info("config: reloaded")
		w.Notify(updated)
	})
	v.WatchConfig()

	return cfg, w, nil
}
