package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LogLevel string        `json:"log_level" yaml:"log_level"`
	Backend  BackendConfig `json:"backend" yaml:"backend"`
	Stream   StreamConfig  `json:"stream" yaml:"stream"`
	Feed     FeedConfig    `json:"feed" yaml:"feed"`
	History  HistoryConfig `json:"history" yaml:"history"`
	Alerts   AlertsConfig  `json:"alerts" yaml:"alerts"`
	Pairing  PairingConfig `json:"pairing" yaml:"pairing"`
	Archive  ArchiveConfig `json:"archive" yaml:"archive"`
	API      APIConfig     `json:"api" yaml:"api"`
}

type BackendConfig struct {
	BaseURL string        `json:"base_url" yaml:"base_url"`
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

type StreamConfig struct {
	Enabled        bool          `json:"enabled" yaml:"enabled"`
	URL            string        `json:"url" yaml:"url"`
	PingInterval   time.Duration `json:"ping_interval" yaml:"ping_interval"`
	InitialBackoff time.Duration `json:"initial_backoff" yaml:"initial_backoff"`
	MaxBackoff     time.Duration `json:"max_backoff" yaml:"max_backoff"`
}

type FeedConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Brokers []string `json:"brokers" yaml:"brokers"`
	Topic   string   `json:"topic" yaml:"topic"`
	GroupID string   `json:"group_id" yaml:"group_id"`
}

type HistoryConfig struct {
	Capacity    int `json:"capacity" yaml:"capacity"`
	TrendPoints int `json:"trend_points" yaml:"trend_points"`
}

type AlertsConfig struct {
	StoreLimit   int           `json:"store_limit" yaml:"store_limit"`
	FetchLimit   int           `json:"fetch_limit" yaml:"fetch_limit"`
	RecentWindow time.Duration `json:"recent_window" yaml:"recent_window"`
}

type PairingConfig struct {
	Path       string        `json:"path" yaml:"path"`
	TTL        time.Duration `json:"ttl" yaml:"ttl"`
	PublicBase string        `json:"public_base" yaml:"public_base"`
}

type ArchiveConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Driver  string `json:"driver" yaml:"driver"`
	DSN     string `json:"dsn" yaml:"dsn"`
}

type APIConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Backend: BackendConfig{
			BaseURL: "http://localhost:8000",
			Timeout: 10 * time.Second,
		},
		Stream: StreamConfig{
			Enabled:        true,
			URL:            "ws://localhost:8000/ws",
			PingInterval:   5 * time.Second,
			InitialBackoff: 1 * time.Second,
			MaxBackoff:     30 * time.Second,
		},
		Feed: FeedConfig{Enabled: false},
		History: HistoryConfig{
			Capacity:    200,
			TrendPoints: 30,
		},
		Alerts: AlertsConfig{
			StoreLimit:   1000,
			FetchLimit:   50,
			RecentWindow: 5 * time.Second,
		},
		Pairing: PairingConfig{
			Path: "/api/pair/create-session",
			TTL:  5 * time.Minute,
		},
		Archive: ArchiveConfig{Enabled: false, Driver: "sqlite", DSN: "file:aquawatch.db?_pragma=busy_timeout(5000)"},
		API:     APIConfig{Enabled: true, Addr: ":8081"},
	}
}

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()

	trimmed := strings.TrimSpace(string(content))
	if len(trimmed) == 0 {
		return nil, errors.New("config file is empty")
	}
	var decodeErr error
	if looksLikeJSON(trimmed) {
		decodeErr = json.Unmarshal([]byte(trimmed), cfg)
	} else {
		decodeErr = yaml.Unmarshal([]byte(trimmed), cfg)
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	if path == "" || cfg == nil {
		return errors.New("config path or config is empty")
	}
	var data []byte
	var err error
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".json" {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func looksLikeJSON(s string) bool {
	for _, ch := range s {
		if ch == '{' || ch == '[' {
			return true
		}
		if ch > ' ' {
			return false
		}
	}
	return false
}

func applyDefaults(cfg *Config) {
	if cfg.Backend.Timeout <= 0 {
		cfg.Backend.Timeout = 10 * time.Second
	}
	if cfg.Stream.PingInterval <= 0 {
		cfg.Stream.PingInterval = 5 * time.Second
	}
	if cfg.Stream.InitialBackoff <= 0 {
		cfg.Stream.InitialBackoff = 1 * time.Second
	}
	if cfg.Stream.MaxBackoff < cfg.Stream.InitialBackoff {
		cfg.Stream.MaxBackoff = 30 * time.Second
	}
	if cfg.History.Capacity <= 0 {
		cfg.History.Capacity = 200
	}
	if cfg.History.TrendPoints <= 0 {
		cfg.History.TrendPoints = 30
	}
	if cfg.History.TrendPoints > cfg.History.Capacity {
		cfg.History.TrendPoints = cfg.History.Capacity
	}
	if cfg.Alerts.StoreLimit <= 0 {
		cfg.Alerts.StoreLimit = 1000
	}
	if cfg.Alerts.FetchLimit <= 0 {
		cfg.Alerts.FetchLimit = 50
	}
	if cfg.Alerts.RecentWindow <= 0 {
		cfg.Alerts.RecentWindow = 5 * time.Second
	}
	if cfg.Pairing.Path == "" {
		cfg.Pairing.Path = "/api/pair/create-session"
	}
	if cfg.Pairing.TTL <= 0 {
		cfg.Pairing.TTL = 5 * time.Minute
	}
}

func Validate(cfg *Config) error {
	if cfg.Backend.BaseURL == "" {
		return errors.New("backend.base_url is required")
	}
	if _, err := url.Parse(cfg.Backend.BaseURL); err != nil {
		return fmt.Errorf("backend.base_url invalid: %w", err)
	}
	if cfg.Stream.Enabled && cfg.Stream.URL == "" {
		return errors.New("stream.url required when stream.enabled is true")
	}
	if cfg.Feed.Enabled {
		if len(cfg.Feed.Brokers) == 0 || cfg.Feed.Topic == "" || cfg.Feed.GroupID == "" {
			return errors.New("feed requires brokers, topic, group_id")
		}
	}
	if cfg.Archive.Enabled {
		driver := strings.ToLower(cfg.Archive.Driver)
		if driver != "sqlite" && driver != "postgres" && driver != "postgresql" {
			return fmt.Errorf("archive.driver unsupported: %s", cfg.Archive.Driver)
		}
	}
	if cfg.API.Enabled && cfg.API.Addr == "" {
		return errors.New("api.addr required when api.enabled is true")
	}
	return nil
}

type Manager struct {
	path    string
	cfg     atomic.Value
	modTime time.Time
}

func NewManager(path string) (*Manager, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	m := &Manager{path: path}
	m.cfg.Store(cfg)
	info, err := os.Stat(path)
	if err == nil {
		m.modTime = info.ModTime()
	}
	return m, nil
}

// NewStaticManager wraps an in-memory config with no backing file.
func NewStaticManager(cfg *Config) *Manager {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	applyDefaults(cfg)
	m := &Manager{}
	m.cfg.Store(cfg)
	return m
}

func (m *Manager) Get() *Config {
	if v := m.cfg.Load(); v != nil {
		return v.(*Config)
	}
	return DefaultConfig()
}

func (m *Manager) Path() string {
	return m.path
}

func (m *Manager) Reload() (*Config, error) {
	if m.path == "" {
		return m.Get(), nil
	}
	cfg, err := Load(m.path)
	if err != nil {
		return nil, err
	}
	m.cfg.Store(cfg)
	if info, err := os.Stat(m.path); err == nil {
		m.modTime = info.ModTime()
	}
	return cfg, nil
}

func (m *Manager) NeedsReload() (bool, error) {
	if m.path == "" {
		return false, nil
	}
	info, err := os.Stat(m.path)
	if err != nil {
		return false, err
	}
	return info.ModTime().After(m.modTime), nil
}

func (m *Manager) Watch(interval time.Duration, onReload func(*Config), onError func(error), stop <-chan struct{}) {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			needs, err := m.NeedsReload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if !needs {
				continue
			}
			cfg, err := m.Reload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if onReload != nil {
				onReload(cfg)
			}
		case <-stop:
			return
		}
	}
}

func ResolvePath(path string) string {
	if path == "" {
		return path
	}
	if filepath.IsAbs(path) {
		return path
	}
	cwd, err := os.Getwd()
	if err != nil {
		return path
	}
	return filepath.Join(cwd, path)
}
