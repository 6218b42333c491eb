package cnf

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config – public map with the raw configuration options.
var Config map[string]string

// AppConfig – typed configuration for easier use.
type AppConfig struct {
	DBPath            string
	LogLevel          string
	TimeZone          string
	ValidateNotebooks bool
}

// LoadConfig reads a key=value file, ignoring blank lines and comments.
func LoadConfig(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open configuration file: %w", err)
	}
	defer file.Close()

	config := make(map[string]string)
	scanner := bufio.NewScanner(file)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.Contains(line, "=") {
			parts := strings.SplitN(line, "=", 2)
			key := strings.TrimSpace(parts[0])
			value := strings.TrimSpace(parts[1])
			if value != "" {
				commentIdx := -1
				for _, marker := range []string{" #", "\t#", " ;", "\t;"} {
					if idx := strings.Index(value, marker); idx >= 0 && (commentIdx == -1 || idx < commentIdx) {
						commentIdx = idx
					}
				}
				if commentIdx >= 0 {
					value = strings.TrimSpace(value[:commentIdx])
				}
			}
			config[key] = value
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config: %w", err)
	}

	Config = config
	return config, nil
}

// LoadEnv merges a .env file (if present) and the process environment
// over cfg. Environment values win.
func LoadEnv(cfg map[string]string) map[string]string {
	if cfg == nil {
		cfg = make(map[string]string)
	}
	if env, err := godotenv.Read(); err == nil {
		for k, v := range env {
			cfg[k] = v
		}
	}
	for _, key := range []string{"SQLITESTORAGEDB", "DB_PATH", "LOG_LEVEL", "TIMEZONE", "VALIDATE_NOTEBOOKS"} {
		if v := os.Getenv(key); v != "" {
			cfg[key] = v
		}
	}
	Config = cfg
	return cfg
}

// ParseConfig converts map[string]string into AppConfig with defaults.
func ParseConfig(cfg map[string]string) (AppConfig, error) {
	ac := AppConfig{
		DBPath:            strings.TrimSpace(cfg["DB_PATH"]),
		LogLevel:          strings.TrimSpace(cfg["LOG_LEVEL"]),
		TimeZone:          strings.TrimSpace(cfg["TIMEZONE"]),
		ValidateNotebooks: true,
	}

	// SQLITESTORAGEDB takes precedence over everything else.
	if v := strings.TrimSpace(cfg["SQLITESTORAGEDB"]); v != "" {
		ac.DBPath = v
	}
	if ac.DBPath == "" {
		ac.DBPath = DefaultDatabaseLocation()
	}
	if ac.LogLevel == "" {
		ac.LogLevel = "info"
	}

	if v, ok := cfg["VALIDATE_NOTEBOOKS"]; ok {
		b, err := strconv.ParseBool(strings.ToLower(strings.TrimSpace(v)))
		if err == nil {
			ac.ValidateNotebooks = b
		}
	}

	return ac, nil
}

// DefaultDatabaseLocation resolves the calendar database path: the
// privileged per-system data directory when it is writable, the plain
// user data directory otherwise.
func DefaultDatabaseLocation() string {
	if v := os.Getenv("SQLITESTORAGEDB"); v != "" {
		return v
	}

	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}

	privileged := filepath.Join(home, ".local", "share", "system", "privileged")
	dir := filepath.Join(home, ".local", "share", "system", "Calendar", "mkcal")
	if directoryIsRW(privileged) {
		dir = filepath.Join(privileged, "Calendar", "mkcal")
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "unable to create calendar database directory %s: %v\n", dir, err)
	}

	return filepath.Join(dir, "db")
}

func directoryIsRW(dirPath string) bool {
	info, err := os.Stat(dirPath)
	if err != nil || !info.IsDir() {
		return false
	}
	f, err := os.CreateTemp(dirPath, ".probe")
	if err != nil {
		return false
	}
	name := f.Name()
	f.Close()
	os.Remove(name)
	return true
}
