package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Manager owns the config file. Every change, from Update or from an edit on
// disk, is validated before it replaces the live config.
type Manager struct {
	path     string
	debounce time.Duration

	mu       sync.RWMutex
	cfg      Config
	watcher  *fsnotify.Watcher
	onChange func(Config)
}

type managerOptions struct {
	configPath    string
	initialConfig *Config
	debounce      time.Duration
}

type ManagerOption func(*managerOptions)

var (
	defaultManager *Manager
	managerMu      sync.Mutex
)

func NewManager(opts ...ManagerOption) (*Manager, error) {
	options := managerOptions{debounce: 300 * time.Millisecond}
	for _, opt := range opts {
		opt(&options)
	}

	path := options.configPath
	if path == "" {
		var err error
		if path, err = defaultConfigPath(); err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create config dir: %w", err)
	}

	cfg, err := loadOrCreateConfig(path, options)
	if err != nil {
		return nil, err
	}
	return &Manager{path: path, cfg: cfg, debounce: options.debounce}, nil
}

func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

func (m *Manager) Path() string {
	return m.path
}

// UpdateFromJSON merges a partial JSON document over the current config, so
// `{"max_rounds": 3}` leaves every other setting alone.
func (m *Manager) UpdateFromJSON(jsonStr string) error {
	cfg := m.Get()
	if err := json.Unmarshal([]byte(jsonStr), &cfg); err != nil {
		return fmt.Errorf("parse config json: %w", err)
	}
	return m.Update(cfg)
}

// Update validates cfg, writes it to disk and makes it live.
func (m *Manager) Update(cfg Config) error {
	_, err := m.accept(cfg, "update", true)
	return err
}

// Mutate applies fn to a copy of the current config and persists the result.
func (m *Manager) Mutate(fn func(*Config)) error {
	cfg := m.Get()
	fn(&cfg)
	return m.Update(cfg)
}

// accept is the single path by which a config becomes live. It reports
// whether anything changed.
func (m *Manager) accept(next Config, source string, persist bool) (bool, error) {
	if err := next.Validate(); err != nil {
		return false, err
	}

	m.mu.Lock()
	current := m.cfg
	if reflect.DeepEqual(current, next) {
		m.mu.Unlock()
		return false, nil
	}
	if persist {
		if err := writeConfigFile(m.path, next); err != nil {
			m.mu.Unlock()
			return false, err
		}
	}
	m.cfg = next
	cb := m.onChange
	m.mu.Unlock()

	log.Printf("[Config] %s applied (%s)", source, strings.Join(Changes(current, next), ", "))
	if cb != nil {
		cb(next)
	}
	return true, nil
}

// Changes names the config sections that differ between old and next.
func Changes(old, next Config) []string {
	var out []string
	add := func(name string, a, b any) {
		if !reflect.DeepEqual(a, b) {
			out = append(out, name)
		}
	}
	add("mode", old.Mode, next.Mode)
	add("network", old.Network, next.Network)
	add("llm", llmSection(old), llmSection(next))
	add("negotiation", negotiationSection(old), negotiationSection(next))
	add("settlement", settlementSection(old), settlementSection(next))
	add("storage", storageSection(old), storageSection(next))
	add("timeline", old.Timeline, next.Timeline)
	add("debug", debugSection(old), debugSection(next))
	if len(out) == 0 {
		out = append(out, "none")
	}
	return out
}

func llmSection(c Config) [7]any {
	return [7]any{c.LLMProvider, c.LLMModel, c.LLMBaseURL, c.LLMTemperature, c.LLMTimeoutMS, c.DeepSeekAPIKey, c.OpenAIAPIKey}
}

func negotiationSection(c Config) [6]any {
	return [6]any{c.MaxRounds, c.MarketPriceMin, c.MarketPriceMax, c.CongestionMultiplier, c.CounterMin, c.CounterMax}
}

func settlementSection(c Config) [5]any {
	return [5]any{c.RelayerURL, c.RelayerTimeoutMS, c.ContractAddress, c.AgentAPrivateKey, c.AgentBPrivateKey}
}

func storageSection(c Config) [6]any {
	return [6]any{c.ProjectDir, c.ResultsDir, c.DataDir, c.DBPath, c.RegistryPath, c.HTTPAddr}
}

func debugSection(c Config) [3]any {
	return [3]any{c.Debug, c.EinoDebugEnabled, c.EinoDebugPort}
}

// Watch reloads the config whenever the file changes on disk. Edits that do
// not validate are logged and ignored. Writes made by Update come back as
// events too; they match the live config and are dropped.
func (m *Manager) Watch(ctx context.Context, onChange func(Config)) error {
	m.mu.Lock()
	m.onChange = onChange
	if m.watcher != nil {
		m.mu.Unlock()
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		m.mu.Unlock()
		return err
	}
	m.watcher = watcher
	m.mu.Unlock()

	if err := watcher.Add(filepath.Dir(m.path)); err != nil {
		return fmt.Errorf("watch config dir: %w", err)
	}
	go m.watchLoop(ctx, watcher)
	return nil
}

func (m *Manager) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer watcher.Close()

	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	schedule := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(m.debounce, m.reloadFromDisk)
	}

	for {
		select {
		case evt, ok := <-watcher.Events:
			if !ok {
				return
			}
			if m.isConfigEvent(evt) {
				schedule()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[Config] watcher error: %v", err)
		case <-ctx.Done():
			return
		}
	}
}

func (m *Manager) isConfigEvent(evt fsnotify.Event) bool {
	if filepath.Clean(evt.Name) != filepath.Clean(m.path) {
		return false
	}
	return evt.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0
}

// reloadFromDisk re-reads the file. A deleted file is written back from the
// live config.
func (m *Manager) reloadFromDisk() {
	var cfg Config
	err := loadConfigFromFile(m.path, &cfg)
	switch {
	case errors.Is(err, os.ErrNotExist):
		live := m.Get()
		if err := writeConfigFile(m.path, live); err != nil {
			log.Printf("[Config] restore %s failed: %v", m.path, err)
			return
		}
		log.Printf("[Config] %s was removed, restored from the live config", m.path)
		return
	case err != nil:
		log.Printf("[Config] reload failed: %v", err)
		return
	}

	if _, err := m.accept(cfg, "reload", false); err != nil {
		log.Printf("[Config] rejected reload of %s: %v", m.path, err)
	}
}

func loadOrCreateConfig(path string, options managerOptions) (Config, error) {
	var cfg Config
	_, statErr := os.Stat(path)
	switch {
	case statErr == nil:
		if err := loadConfigFromFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("load config: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return Config{}, fmt.Errorf("config %s: %w", path, err)
		}
		return cfg, nil
	case !errors.Is(statErr, os.ErrNotExist):
		return Config{}, fmt.Errorf("stat config: %w", statErr)
	}

	if options.initialConfig != nil {
		cfg = *options.initialConfig
	} else {
		cfg = *DefaultConfigWithRoot(filepath.Dir(path))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	if err := writeConfigFile(path, cfg); err != nil {
		return Config{}, fmt.Errorf("write initial config: %w", err)
	}
	return cfg, nil
}

func defaultConfigPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		if dir, err = os.Getwd(); err != nil {
			return "", err
		}
	}
	return filepath.Join(dir, "RightOfWay", "config.json"), nil
}

// writeConfigFile replaces path atomically so a watcher never reads a
// partial file.
func writeConfigFile(path string, cfg Config) error {
	data, err := json.MarshalIndent(&cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "cfg-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	name := tmp.Name()
	if _, err := tmp.Write(append(data, '\n')); err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(name)
		return fmt.Errorf("write temp config: %w", err)
	}
	return os.Rename(name, path)
}

func WithConfigDir(dir string) ManagerOption {
	return func(o *managerOptions) {
		if dir != "" {
			o.configPath = filepath.Join(dir, "config.json")
		}
	}
}

func WithConfigPath(path string) ManagerOption {
	return func(o *managerOptions) {
		if path != "" {
			o.configPath = path
		}
	}
}

func WithDebounce(d time.Duration) ManagerOption {
	return func(o *managerOptions) {
		if d > 0 {
			o.debounce = d
		}
	}
}

func WithInitialConfig(cfg *Config) ManagerOption {
	return func(o *managerOptions) { o.initialConfig = cfg }
}

func DefaultManager() *Manager {
	managerMu.Lock()
	defer managerMu.Unlock()
	if defaultManager != nil {
		return defaultManager
	}
	mgr, err := NewManager()
	if err != nil {
		log.Printf("[Config] failed to create default manager: %v", err)
		return nil
	}
	defaultManager = mgr
	return defaultManager
}

func SetDefaultManager(mgr *Manager) {
	managerMu.Lock()
	defer managerMu.Unlock()
	defaultManager = mgr
}

// Get returns a copy of the default manager's config, or the environment
// defaults when no manager can be created.
func Get() *Config {
	if mgr := DefaultManager(); mgr != nil {
		cfg := mgr.Get()
		return &cfg
	}
	return DefaultConfig()
}
