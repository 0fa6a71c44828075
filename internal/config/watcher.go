// Package config - watcher.go provides config file hot-reload support.
//
// The watcher polls the config file for changes (stat-based, every 5 seconds)
// and notifies registered callbacks when funded-rule parameters change.
//
// Only the Risk configuration is reloadable. Database URL, webhook secret,
// listen address, and other structural settings require a process restart.
package config

import (
	"encoding/json"
	"log"
	"os"
	"reflect"
	"sync"
	"time"
)

// ConfigWatcher monitors the config file for changes and invokes callbacks
// when funded-rule fields change. It uses stat-based polling (no external
// dependencies like fsnotify required).
type ConfigWatcher struct {
	path     string
	logger   *log.Logger
	mu       sync.RWMutex
	current  *Config
	lastMod  time.Time
	onChange []func(old, new *Config)
	done     chan struct{}
	stopped  bool
}

// NewConfigWatcher creates a watcher for the given config file path.
// initial is the currently loaded config. The watcher does not start
// until Start() is called.
func NewConfigWatcher(path string, initial *Config, logger *log.Logger) *ConfigWatcher {
	if logger == nil {
		logger = log.New(log.Writer(), "", log.LstdFlags)
	}
	return &ConfigWatcher{
		path:    path,
		logger:  logger,
		current: initial,
		done:    make(chan struct{}),
	}
}

// OnChange registers a callback that will be called when the config file
// changes and the new config passes validation. Multiple callbacks may
// be registered. Callbacks receive the old and new config values.
func (w *ConfigWatcher) OnChange(fn func(old, new *Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = append(w.onChange, fn)
}

// Start begins polling the config file for changes. It returns immediately;
// the watcher runs in a background goroutine. Returns an error if the
// initial file stat fails.
func (w *ConfigWatcher) Start() error {
	info, err := os.Stat(w.path)
	if err != nil {
		return err
	}
	w.lastMod = info.ModTime()
	w.logger.Printf("[config-watcher] watching %s for changes (poll interval: 5s)", w.path)

	go w.pollLoop()
	return nil
}

// Stop stops the config watcher. Safe to call multiple times.
func (w *ConfigWatcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.stopped {
		w.stopped = true
		close(w.done)
		w.logger.Println("[config-watcher] stopped")
	}
}

// Current returns the most recently loaded valid config.
func (w *ConfigWatcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

func (w *ConfigWatcher) pollLoop() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.checkForChanges()
		}
	}
}

func (w *ConfigWatcher) checkForChanges() {
	info, err := os.Stat(w.path)
	if err != nil {
		w.logger.Printf("[config-watcher] stat error: %v", err)
		return
	}

	if !info.ModTime().After(w.lastMod) {
		return // file hasn't changed
	}
	w.lastMod = info.ModTime()

	data, err := os.ReadFile(w.path)
	if err != nil {
		w.logger.Printf("[config-watcher] read error: %v", err)
		return
	}

	newCfg := Default()
	if err := json.Unmarshal(data, &newCfg); err != nil {
		w.logger.Printf("[config-watcher] parse error (keeping old config): %v", err)
		return
	}
	applyEnvOverrides(&newCfg)

	if err := newCfg.Validate(); err != nil {
		w.logger.Printf("[config-watcher] validation error (keeping old config): %v", err)
		return
	}

	w.mu.RLock()
	oldCfg := w.current
	w.mu.RUnlock()

	if reflect.DeepEqual(oldCfg.Risk, newCfg.Risk) {
		w.logger.Printf("[config-watcher] file changed but risk config unchanged, skipping")
		return
	}

	w.logRiskChanges(oldCfg.Risk, newCfg.Risk)

	w.mu.Lock()
	w.current = &newCfg
	callbacks := make([]func(old, new *Config), len(w.onChange))
	copy(callbacks, w.onChange)
	w.mu.Unlock()

	for _, fn := range callbacks {
		fn(oldCfg, &newCfg)
	}
}

func (w *ConfigWatcher) logRiskChanges(old, new RiskConfig) {
	if old.MaxDailyLoss != new.MaxDailyLoss {
		w.logger.Printf("[config-watcher] max_daily_loss: %.2f -> %.2f", old.MaxDailyLoss, new.MaxDailyLoss)
	}
	if old.TrailingDrawdown != new.TrailingDrawdown {
		w.logger.Printf("[config-watcher] trailing_drawdown: %.2f -> %.2f", old.TrailingDrawdown, new.TrailingDrawdown)
	}
	if old.MaxContracts != new.MaxContracts {
		w.logger.Printf("[config-watcher] max_contracts: %d -> %d", old.MaxContracts, new.MaxContracts)
	}
	if old.MaxConcurrentPositions != new.MaxConcurrentPositions {
		w.logger.Printf("[config-watcher] max_concurrent_positions: %d -> %d", old.MaxConcurrentPositions, new.MaxConcurrentPositions)
	}
	if old.MaxDailyTrades != new.MaxDailyTrades {
		w.logger.Printf("[config-watcher] max_daily_trades: %d -> %d", old.MaxDailyTrades, new.MaxDailyTrades)
	}
	if old.CircuitBreaker != new.CircuitBreaker {
		w.logger.Printf("[config-watcher] circuit_breaker: consecutive=%d hourly=%d cooldown=%dmin",
			new.CircuitBreaker.MaxConsecutiveFailures, new.CircuitBreaker.MaxFailuresPerHour, new.CircuitBreaker.CooldownMinutes)
	}
}
