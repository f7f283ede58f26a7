package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flywheel-gateway/control-plane/config"
)

func TestLoadWatched_AppliesDefaults(t *testing.T) {
	cfg, watcher, err := config.LoadWatched(nil)
	require.NoError(t, err)
	require.NotNil(t, watcher)
	assert.Equal(t, 8080, cfg.Port)
}

func TestWatcher_OnChange_FansOutToAllSubscribers(t *testing.T) {
	_, watcher, err := config.LoadWatched(nil)
	require.NoError(t, err)

	var gotA, gotB config.Config
	watcher.OnChange(func(c config.Config) { gotA = c })
	watcher.OnChange(func(c config.Config) { gotB = c })

	// Exercise the subscriber fan-out directly; a real fsnotify event is
	// covered by viper's own tests, not re-tested here.
	watcher.Notify(config.Config{Port: 9999})

	assert.Equal(t, 9999, gotA.Port)
	assert.Equal(t, 9999, gotB.Port)
}
