package cnf

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// YamlConfig mirrors AppConfig for YAML-based deployments.
type YamlConfig struct {
	Database struct {
		Path              string `yaml:"path"`
		ValidateNotebooks *bool  `yaml:"validate_notebooks"`
	} `yaml:"database"`
	LogLevel string `yaml:"log_level"`
	TimeZone string `yaml:"timezone"`
}

// LoadYAMLConfig loads the storage configuration from a YAML file.
func LoadYAMLConfig(path string) (AppConfig, error) {
	config := &YamlConfig{}

	file, err := os.Open(path)
	if err != nil {
		return AppConfig{}, fmt.Errorf("error opening configuration file: %w", err)
	}
	defer file.Close()

	if err := yaml.NewDecoder(file).Decode(config); err != nil {
		return AppConfig{}, fmt.Errorf("error decoding YAML: %w", err)
	}

	ac := AppConfig{
		DBPath:            config.Database.Path,
		LogLevel:          config.LogLevel,
		TimeZone:          config.TimeZone,
		ValidateNotebooks: true,
	}
	if config.Database.ValidateNotebooks != nil {
		ac.ValidateNotebooks = *config.Database.ValidateNotebooks
	}
	if ac.DBPath == "" {
		ac.DBPath = DefaultDatabaseLocation()
	}
	if ac.LogLevel == "" {
		ac.LogLevel = "info"
	}

	// Keep the raw map in sync for packages reading cnf.Config directly.
	Config = map[string]string{
		"DB_PATH":   ac.DBPath,
		"LOG_LEVEL": ac.LogLevel,
		"TIMEZONE":  ac.TimeZone,
	}

	return ac, nil
}
