// config.go: settings struct and functions to load and save application settings.
package conf

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// LogConfig defines the configuration for log files
type LogConfig struct {
	Enabled bool   // true to enable log file
	Path    string // path to log file
}

// MainSettings contains the main application settings
type MainSettings struct {
	Name string    // name of the node, can be used to identify the instance
	Log  LogConfig // logging settings
}

// ServerSettings contains the HTTP server settings
type ServerSettings struct {
	Host        string // interface to bind to
	Port        int    // port to listen on
	DataDir     string // legacy root data directory (images/ + annotations/)
	ProjectsDir string // base directory holding per-project directories
	Debug       bool   // true to enable debug logging on the server
}

// ExportSettings contains defaults for dataset exports
type ExportSettings struct {
	TrainSplit float64 // fraction of done images assigned to the train set
	ValSplit   float64 // fraction of done images assigned to the val set
	Shuffle    bool    // shuffle images before splitting
	Seed       int64   // seed for the deterministic shuffle
}

// Settings contains all application settings
type Settings struct {
	Main   MainSettings
	Server ServerSettings
	Export ExportSettings
}

var (
	settingsInstance *Settings
	once             sync.Once
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment into a Settings struct.
func Load() (*Settings, error) {
	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsMutex.Lock()
	defer settingsMutex.Unlock()
	settingsInstance = settings

	return settings, nil
}

func initViper() error {
	viper.SetConfigName("labelkit")
	viper.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	viper.SetEnvPrefix("LABELKIT")
	viper.AutomaticEnv()

	setDefaultConfig()

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return fmt.Errorf("fatal error reading config file: %w", err)
		}
		// No config file is fine, defaults and env vars apply.
	}

	return nil
}

// GetDefaultConfigPaths returns the list of directories searched for labelkit.yaml.
func GetDefaultConfigPaths() ([]string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("error fetching user config directory: %w", err)
	}
	return []string{
		filepath.Join(configDir, "labelkit"),
		".",
	}, nil
}

// Setting returns the current settings instance, loading defaults on first use.
func Setting() *Settings {
	once.Do(func() {
		if settingsInstance == nil {
			if _, err := Load(); err != nil {
				log.Printf("error loading settings: %v", err)
			}
		}
	})

	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// SaveSettings writes the current settings to the given path as YAML.
func SaveSettings(settings *Settings, path string) error {
	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}
	return nil
}
