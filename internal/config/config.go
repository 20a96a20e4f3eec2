// Package config loads application configuration from YAML files and
// environment variables, with environment taking precedence over file
// values and file values over defaults.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the complete application configuration.
type Config struct {
	Capture CaptureConfig `yaml:"capture" json:"capture"`
	Segment SegmentConfig `yaml:"segment" json:"segment"`
	Chyron  ChyronConfig  `yaml:"chyron" json:"chyron"`
	Output  OutputConfig  `yaml:"output" json:"output"`
	Upload  UploadConfig  `yaml:"upload" json:"upload"`
	Gallery GalleryConfig `yaml:"gallery" json:"gallery"`
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// CaptureConfig holds webcam acquisition settings.
type CaptureConfig struct {
	Device       string        `yaml:"device" json:"device" env:"SNAPCOMMIT_DEVICE" default:"0"`
	Width        int           `yaml:"width" json:"width" env:"SNAPCOMMIT_WIDTH" default:"0"`
	Height       int           `yaml:"height" json:"height" env:"SNAPCOMMIT_HEIGHT" default:"0"`
	WarmupFrames int           `yaml:"warmup_frames" json:"warmup_frames" env:"SNAPCOMMIT_WARMUP_FRAMES" default:"3"`
	Timeout      time.Duration `yaml:"timeout" json:"timeout" env:"SNAPCOMMIT_CAPTURE_TIMEOUT" default:"10s"`
}

// SegmentConfig holds background-removal settings.
type SegmentConfig struct {
	Enabled      bool   `yaml:"enabled" json:"enabled" env:"SNAPCOMMIT_SEGMENT" default:"true"`
	ModelPath    string `yaml:"model_path" json:"model_path" env:"SNAPCOMMIT_MODEL_PATH"`
	ModelURL     string `yaml:"model_url" json:"model_url" env:"SNAPCOMMIT_MODEL_URL"`
	ModelSHA256  string `yaml:"model_sha256" json:"model_sha256" env:"SNAPCOMMIT_MODEL_SHA256"`
	CenterPerson bool   `yaml:"center_person" json:"center_person" env:"SNAPCOMMIT_CENTER_PERSON" default:"true"`
	Background   string `yaml:"background" json:"background" env:"SNAPCOMMIT_BACKGROUND" default:"#00c000"`
}

// ChyronConfig holds text-overlay settings.
type ChyronConfig struct {
	Enabled       bool    `yaml:"enabled" json:"enabled" env:"SNAPCOMMIT_CHYRON" default:"true"`
	Font          string  `yaml:"font" json:"font" env:"SNAPCOMMIT_FONT" default:"DejaVuSansMono"`
	TitleFont     string  `yaml:"title_font" json:"title_font" env:"SNAPCOMMIT_TITLE_FONT"`
	InfoFont      string  `yaml:"info_font" json:"info_font" env:"SNAPCOMMIT_INFO_FONT"`
	SHAFont       string  `yaml:"sha_font" json:"sha_font" env:"SNAPCOMMIT_SHA_FONT"`
	StatsFont     string  `yaml:"stats_font" json:"stats_font" env:"SNAPCOMMIT_STATS_FONT"`
	TitleFontSize float64 `yaml:"title_font_size" json:"title_font_size" env:"SNAPCOMMIT_TITLE_FONT_SIZE" default:"28"`
	InfoFontSize  float64 `yaml:"info_font_size" json:"info_font_size" env:"SNAPCOMMIT_INFO_FONT_SIZE" default:"18"`
	Opacity       float64 `yaml:"opacity" json:"opacity" env:"SNAPCOMMIT_CHYRON_OPACITY" default:"0.75"`
}

// OutputConfig holds artifact destination settings.
type OutputConfig struct {
	Dir string `yaml:"dir" json:"dir" env:"SNAPCOMMIT_OUTPUT_DIR"`
}

// UploadConfig holds gallery upload settings. Remote sends the raw
// frame and lets the daemon run the processing stages.
type UploadConfig struct {
	Enabled bool          `yaml:"enabled" json:"enabled" env:"SNAPCOMMIT_UPLOAD" default:"false"`
	URL     string        `yaml:"url" json:"url" env:"SNAPCOMMIT_UPLOAD_URL"`
	Remote  bool          `yaml:"remote" json:"remote" env:"SNAPCOMMIT_UPLOAD_REMOTE" default:"false"`
	Timeout time.Duration `yaml:"timeout" json:"timeout" env:"SNAPCOMMIT_UPLOAD_TIMEOUT" default:"15s"`
}

// GalleryConfig holds settings for the gallery daemon.
type GalleryConfig struct {
	Host             string `yaml:"host" json:"host" env:"SNAPCOMMIT_HOST" default:"0.0.0.0"`
	Port             int    `yaml:"port" json:"port" env:"SNAPCOMMIT_PORT" default:"8080"`
	DataDir          string `yaml:"data_dir" json:"data_dir" env:"SNAPCOMMIT_DATA_DIR"`
	DatabaseType     string `yaml:"database_type" json:"database_type" env:"SNAPCOMMIT_DATABASE_TYPE" default:"sqlite"`
	DatabaseURL      string `yaml:"database_url" json:"database_url" env:"SNAPCOMMIT_DATABASE_URL"`
	DatabasePath     string `yaml:"database_path" json:"database_path" env:"SNAPCOMMIT_DATABASE_PATH"`
	WatchDir         string `yaml:"watch_dir" json:"watch_dir" env:"SNAPCOMMIT_WATCH_DIR"`
	ThumbnailWidth   int    `yaml:"thumbnail_width" json:"thumbnail_width" env:"SNAPCOMMIT_THUMBNAIL_WIDTH" default:"300"`
	ThumbnailQuality int    `yaml:"thumbnail_quality" json:"thumbnail_quality" env:"SNAPCOMMIT_THUMBNAIL_QUALITY" default:"85"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level" env:"SNAPCOMMIT_LOG_LEVEL" default:"info"`
	Format string `yaml:"format" json:"format" env:"SNAPCOMMIT_LOG_FORMAT" default:"text"`
}

// Manager holds the active configuration and notifies watchers on reload.
type Manager struct {
	config     *Config
	configPath string
	watchers   []Watcher
	mu         sync.RWMutex
}

// Watcher is called when configuration changes.
type Watcher func(oldConfig, newConfig *Config)

var (
	globalManager *Manager
	managerOnce   sync.Once
)

// GetManager returns the global configuration manager instance.
func GetManager() *Manager {
	managerOnce.Do(func() {
		globalManager = NewManager()
	})
	return globalManager
}

// NewManager creates a manager seeded with defaults.
func NewManager() *Manager {
	return &Manager{
		config:   Default(),
		watchers: make([]Watcher, 0),
	}
}

// Default returns the default application configuration.
func Default() *Config {
	return &Config{
		Capture: CaptureConfig{
			Device:       "0",
			WarmupFrames: 3,
			Timeout:      10 * time.Second,
		},
		Segment: SegmentConfig{
			Enabled:      true,
			CenterPerson: true,
			Background:   "#00c000",
		},
		Chyron: ChyronConfig{
			Enabled:       true,
			Font:          "DejaVuSansMono",
			TitleFontSize: 28,
			InfoFontSize:  18,
			Opacity:       0.75,
		},
		Upload: UploadConfig{
			Timeout: 15 * time.Second,
		},
		Gallery: GalleryConfig{
			Host:             "0.0.0.0",
			Port:             8080,
			DatabaseType:     "sqlite",
			ThumbnailWidth:   300,
			ThumbnailQuality: 85,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from file and environment variables.
func (m *Manager) Load(configPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	oldConfig := *m.config
	m.configPath = configPath

	newConfig := Default()

	if configPath != "" && fileExists(configPath) {
		if err := loadFromFile(configPath, newConfig); err != nil {
			return fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := loadStructFromEnv(reflect.ValueOf(newConfig).Elem()); err != nil {
		return fmt.Errorf("failed to load config from environment: %w", err)
	}

	if err := validate(newConfig); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	applyDerived(newConfig)

	m.config = newConfig

	for _, watcher := range m.watchers {
		go watcher(&oldConfig, newConfig)
	}

	return nil
}

// Get returns the current configuration (thread-safe).
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Return a copy to prevent external modifications
	configCopy := *m.config
	return &configCopy
}

// AddWatcher adds a configuration change watcher.
func (m *Manager) AddWatcher(watcher Watcher) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watchers = append(m.watchers, watcher)
}

// Save writes the current configuration back to its file.
func (m *Manager) Save() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.configPath == "" {
		return fmt.Errorf("no config path set")
	}

	return saveToFile(m.configPath, m.config)
}

func loadFromFile(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, config)
	case ".json":
		return json.Unmarshal(data, config)
	default:
		return fmt.Errorf("unsupported config file format: %s", ext)
	}
}

func saveToFile(path string, config *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	ext := strings.ToLower(filepath.Ext(path))
	var data []byte
	var err error

	switch ext {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(config)
	case ".json":
		data, err = json.MarshalIndent(config, "", "  ")
	default:
		return fmt.Errorf("unsupported config file format: %s", ext)
	}

	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o644)
}

func loadStructFromEnv(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		if !field.CanSet() {
			continue
		}

		if field.Kind() == reflect.Struct && field.Type() != reflect.TypeOf(time.Duration(0)) {
			if err := loadStructFromEnv(field); err != nil {
				return err
			}
			continue
		}

		envTag := fieldType.Tag.Get("env")
		if envTag == "" {
			continue
		}

		envValue := os.Getenv(envTag)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set field %s: %w", fieldType.Name, err)
		}
	}

	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			duration, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(duration))
		} else {
			intVal, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(intVal)
		}
	case reflect.Float32, reflect.Float64:
		floatVal, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(floatVal)
	case reflect.Bool:
		boolVal, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(boolVal)
	default:
		return fmt.Errorf("unsupported field type: %v", field.Kind())
	}

	return nil
}

func validate(config *Config) error {
	if config.Gallery.Port < 1 || config.Gallery.Port > 65535 {
		return fmt.Errorf("invalid gallery port: %d", config.Gallery.Port)
	}

	if config.Gallery.DatabaseType != "sqlite" && config.Gallery.DatabaseType != "postgres" {
		return fmt.Errorf("unsupported database type: %s", config.Gallery.DatabaseType)
	}

	if config.Capture.WarmupFrames < 0 {
		return fmt.Errorf("invalid warmup frame count: %d", config.Capture.WarmupFrames)
	}

	if config.Chyron.Opacity < 0 || config.Chyron.Opacity > 1 {
		return fmt.Errorf("chyron opacity out of range: %v", config.Chyron.Opacity)
	}

	if config.Chyron.TitleFontSize <= 0 || config.Chyron.InfoFontSize <= 0 {
		return fmt.Errorf("font sizes must be positive")
	}

	return nil
}

func applyDerived(config *Config) {
	if config.Gallery.DataDir == "" {
		config.Gallery.DataDir = defaultDataDir()
	}

	if config.Gallery.DatabasePath == "" && config.Gallery.DatabaseType == "sqlite" {
		config.Gallery.DatabasePath = filepath.Join(config.Gallery.DataDir, "snapcommit.db")
	}

	if config.Gallery.WatchDir == "" {
		config.Gallery.WatchDir = filepath.Join(config.Gallery.DataDir, "images")
	}

	if config.Output.Dir == "" {
		config.Output.Dir = filepath.Join(config.Gallery.DataDir, "images")
	}

	if config.Segment.ModelPath == "" {
		config.Segment.ModelPath = filepath.Join(config.Gallery.DataDir, "models", "u2net.onnx")
	}

	// Role fonts inherit the default face unless set explicitly.
	if config.Chyron.TitleFont == "" {
		config.Chyron.TitleFont = config.Chyron.Font
	}
	if config.Chyron.InfoFont == "" {
		config.Chyron.InfoFont = config.Chyron.Font
	}
	if config.Chyron.SHAFont == "" {
		config.Chyron.SHAFont = config.Chyron.Font
	}
	if config.Chyron.StatsFont == "" {
		config.Chyron.StatsFont = config.Chyron.Font
	}
}

func defaultDataDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".snapcommit")
	}
	return "./snapcommit-data"
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Global convenience functions

// Get returns the current global configuration.
func Get() *Config {
	return GetManager().Get()
}

// Load loads configuration from the specified path.
func Load(configPath string) error {
	return GetManager().Load(configPath)
}
