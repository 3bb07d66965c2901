// Package config loads, infers, and persists the agentscope configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"agentscope/internal/utils"
)

const (
	treeFocusKey = "tree_focus"

	errorConfigMissingFormat   = "stat configuration %s: %w"
	errorConfigIsDirectory     = "configuration path %s is a directory"
	errorConfigReadFormat      = "read configuration from %s: %w"
	errorConfigDecodeFormat    = "decode configuration from %s: %w"
	errorTreeFocusMissing      = "invalid configuration %s: required key tree_focus is absent"
	errorTreeFocusNotListError = "invalid configuration %s: tree_focus must be a list of directories"
	errorConfigWriteFormat     = "write configuration to %s: %w"
	errorConfigEncodeFormat    = "encode configuration for %s: %w"

	warningConfigFallbackMessage = "configuration unusable, falling back to default focus list"
)

// Source selects which configuration file a run reads.
type Source string

const (
	// SourceManual reads the hand-maintained configuration file.
	SourceManual Source = "manual"
	// SourceAuto reads the configuration written by filesystem inference.
	SourceAuto Source = "auto"
	// SourceDetected reads an externally detected configuration when present.
	SourceDetected Source = "detected"
)

// Settings is the structured configuration driving a generation run.
type Settings struct {
	ProjectTitle      string   `mapstructure:"project_title" yaml:"project_title"`
	TreeFocus         []string `mapstructure:"tree_focus" yaml:"tree_focus"`
	ExcludeDirs       []string `mapstructure:"exclude_dirs" yaml:"exclude_dirs"`
	ImportantDirs     []string `mapstructure:"important_dirs" yaml:"important_dirs"`
	IncludeExtensions []string `mapstructure:"include_extensions" yaml:"include_extensions"`
}

// DefaultSettings is the hard-coded minimal configuration used when loading fails.
func DefaultSettings() Settings {
	return Settings{
		ProjectTitle:      defaultProjectTitle,
		TreeFocus:         []string{"src", "app"},
		ExcludeDirs:       defaultExcludeDirs(),
		ImportantDirs:     defaultImportantDirs(),
		IncludeExtensions: defaultIncludeExtensions(),
	}
}

// SelectPath maps a configuration source to its file path inside configDir.
// The detected source falls back to the manual file when the detected file is
// absent; the manual source itself has no further fallback.
func SelectPath(configDirectory string, source Source) string {
	switch source {
	case SourceAuto:
		return filepath.Join(configDirectory, utils.AutoConfigFileName)
	case SourceDetected:
		detectedPath := filepath.Join(configDirectory, utils.DetectedConfigFileName)
		if pathInformation, statError := os.Stat(detectedPath); statError == nil && !pathInformation.IsDir() {
			return detectedPath
		}
		return filepath.Join(configDirectory, utils.ManualConfigFileName)
	default:
		return filepath.Join(configDirectory, utils.ManualConfigFileName)
	}
}

// Load reads and validates the configuration at path. The required tree_focus
// key must be present and decode as a list.
func Load(path string) (Settings, error) {
	pathInformation, statError := os.Stat(path)
	if statError != nil {
		return Settings{}, fmt.Errorf(errorConfigMissingFormat, path, statError)
	}
	if pathInformation.IsDir() {
		return Settings{}, fmt.Errorf(errorConfigIsDirectory, path)
	}

	reader := viper.New()
	reader.SetConfigFile(path)
	if readError := reader.ReadInConfig(); readError != nil {
		return Settings{}, fmt.Errorf(errorConfigReadFormat, path, readError)
	}

	rawTreeFocus := reader.Get(treeFocusKey)
	if rawTreeFocus == nil {
		return Settings{}, fmt.Errorf(errorTreeFocusMissing, path)
	}
	if _, isList := rawTreeFocus.([]interface{}); !isList {
		return Settings{}, fmt.Errorf(errorTreeFocusNotListError, path)
	}

	var loadedSettings Settings
	if decodeError := reader.Unmarshal(&loadedSettings); decodeError != nil {
		return Settings{}, fmt.Errorf(errorConfigDecodeFormat, path, decodeError)
	}
	return loadedSettings, nil
}

// LoadOrDefault loads the configuration at path and substitutes the default
// focus list when loading fails. The failure is logged, never fatal.
func LoadOrDefault(path string, logger *zap.Logger) Settings {
	loadedSettings, loadError := Load(path)
	if loadError != nil {
		if logger != nil {
			logger.Warn(warningConfigFallbackMessage, zap.String("path", path), zap.Error(loadError))
		}
		return DefaultSettings()
	}
	return loadedSettings
}

// Save writes settings as YAML to path, overwriting any previous content.
// Field order follows the struct definition.
func Save(settings Settings, path string) error {
	encodedSettings, encodeError := yaml.Marshal(settings)
	if encodeError != nil {
		return fmt.Errorf(errorConfigEncodeFormat, path, encodeError)
	}
	if writeError := os.WriteFile(path, encodedSettings, 0o644); writeError != nil {
		return fmt.Errorf(errorConfigWriteFormat, path, writeError)
	}
	return nil
}
